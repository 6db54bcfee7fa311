// Package app wires tracking, zone interaction and rendering into the Gyre
// engine. One goroutine drives Tick; everything else only hands data over
// through mutex-guarded cells that the next tick picks up.
package app

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ayusman/gyre/internal/bridge"
	"github.com/ayusman/gyre/internal/capture"
	"github.com/ayusman/gyre/internal/config"
	"github.com/ayusman/gyre/internal/detector"
	"github.com/ayusman/gyre/internal/geom"
	"github.com/ayusman/gyre/internal/gesture"
	"github.com/ayusman/gyre/internal/hook"
	"github.com/ayusman/gyre/internal/media"
	"github.com/ayusman/gyre/internal/metrics"
	"github.com/ayusman/gyre/internal/render"
	"github.com/ayusman/gyre/internal/store"
	"github.com/ayusman/gyre/internal/tracking"
)

// Engine timing constants.
const (
	// EstimatorPollInterval is how often estimator initialisation is retried.
	EstimatorPollInterval = 2 * time.Second
	// RecentEvents is the number of zone events kept for the state feed.
	RecentEvents = 32
	// eventBacklog bounds events waiting to be written to the store.
	eventBacklog = 128
)

// Options holds the engine's collaborators. Nil fields get production
// defaults built from Config.
type Options struct {
	Config    config.Config
	Store     *store.Store
	Camera    capture.Camera
	Estimator detector.Estimator
	Bridge    *bridge.Client
	Media     gesture.MediaLoader
	Hooks     *hook.Dispatcher
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
}

// Overlay controls editor-only drawing.
type Overlay struct {
	Selected string `json:"selected"`
	ShowMesh bool   `json:"show_mesh"`
	MeshCols int    `json:"mesh_cols"`
	MeshRows int    `json:"mesh_rows"`
}

// Engine runs the per-tick pipeline: source arbitration, zone physics and
// scene composition.
type Engine struct {
	cfg     config.Config
	store   *store.Store
	logger  *slog.Logger
	metrics *metrics.Metrics
	hooks   *hook.Dispatcher
	loader  *media.Loader

	arbiter    *tracking.Arbiter
	table      *gesture.Table
	compositor *render.Compositor
	source     *capture.Source
	bridge     *bridge.Client
	estimator  detector.Estimator

	enabled atomic.Bool

	// Owned by the tick goroutine.
	canvas *image.RGBA
	scene  render.Scene
	bg     *media.Clip
	ticks  uint64

	// Pending changes, applied at the start of the next tick.
	pendingMu       sync.Mutex
	pendingZones    []gesture.ZoneConfig
	hasPendingZones bool
	pendingSettings *store.Settings
	pendingOverlay  *Overlay

	// Published after each tick.
	frameMu sync.Mutex
	front   *image.RGBA

	stateMu  sync.RWMutex
	state    State
	recent   []gesture.Event
	status   string
	settings store.Settings
	overlay  Overlay

	// OnEvent, if set, is called on the tick goroutine for every zone edge.
	OnEvent func(gesture.Event)

	records chan gesture.Event
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates an engine. Stored zones and layout settings are loaded from
// the store when one is given.
func New(opts Options) (*Engine, error) {
	cfg := opts.Config
	if cfg.CanvasWidth <= 0 || cfg.CanvasHeight <= 0 {
		return nil, fmt.Errorf("invalid canvas size %dx%d", cfg.CanvasWidth, cfg.CanvasHeight)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	e := &Engine{
		cfg:        cfg,
		store:      opts.Store,
		logger:     logger.With("component", "app.engine"),
		metrics:    opts.Metrics,
		hooks:      opts.Hooks,
		loader:     media.NewLoader(cfg.MediaDir, cfg.AudioPlayer, logger),
		compositor: render.NewCompositor(),
		canvas:     image.NewRGBA(image.Rect(0, 0, cfg.CanvasWidth, cfg.CanvasHeight)),
		front:      image.NewRGBA(image.Rect(0, 0, cfg.CanvasWidth, cfg.CanvasHeight)),
		records:    make(chan gesture.Event, eventBacklog),
	}
	e.enabled.Store(true)

	trackingCfg := tracking.DefaultConfig()
	if cfg.AnalysisFPS > 0 {
		trackingCfg.AnalysisFPS = float64(cfg.AnalysisFPS)
	}
	e.arbiter = tracking.NewArbiter(trackingCfg, logger)

	params := gesture.DefaultParams()
	if cfg.Remote() {
		params.Mode = gesture.ModeRemote
	}
	params.DepthGate = cfg.DepthGate
	if cfg.DepthThresholdMM > 0 {
		params.DepthThresholdMM = cfg.DepthThresholdMM
	}

	load := opts.Media
	if load == nil {
		load = e.loadMedia
	}
	e.table = gesture.NewTable(params, load, logger)

	e.scene = render.Scene{
		Background: color.Black,
		Transform: geom.Transform{
			SourceW:     cfg.CameraWidth,
			SourceH:     cfg.CameraHeight,
			CanvasW:     cfg.CanvasWidth,
			CanvasH:     cfg.CanvasHeight,
			Zoom:        cfg.Zoom,
			RotationDeg: config.NormalizeRotation(cfg.RotationDeg),
			Mirror:      cfg.Mirror,
		},
		DepthGate:        params.DepthGate,
		DepthThresholdMM: params.DepthThresholdMM,
	}

	if cfg.Remote() {
		e.bridge = opts.Bridge
		if e.bridge == nil {
			if cfg.BridgeURL == "" {
				return nil, errors.New("remote vision source needs a bridge URL")
			}
			e.bridge = bridge.NewClient(cfg.BridgeURL, bridge.DefaultConfig(), logger)
		}
		e.bridge.OnStatus = func(s bridge.Status) {
			e.setStatus(fmt.Sprintf("bridge: %s %dx%d", s.DeviceName, s.ResW, s.ResH))
		}
		e.bridge.OnConnect = e.configureBridge
	} else {
		cam := opts.Camera
		if cam == nil {
			cam = capture.NewCamera(cfg.CameraID, cfg.CameraWidth, cfg.CameraHeight)
		}
		srcCfg := capture.DefaultSourceConfig()
		if cfg.DisplayFPS > 0 {
			srcCfg.FPS = cfg.DisplayFPS
		}
		e.source = capture.NewSource(cam, srcCfg, e.setStatus, logger)

		e.estimator = opts.Estimator
		if e.estimator == nil {
			mp := detector.NewMediaPipeEstimator(logger)
			mp.Script = cfg.EstimatorScript
			e.estimator = mp
		}
	}

	if e.metrics != nil {
		e.arbiter.SetObserver(e.metrics)
		if e.bridge != nil {
			e.bridge.SetObserver(e.metrics)
		}
	}

	if e.store != nil {
		if err := e.loadStored(); err != nil {
			return nil, err
		}
	}

	return e, nil
}

// loadStored queues the persisted zones and settings for the first tick.
func (e *Engine) loadStored() error {
	zones, err := e.store.Zones().List()
	if err != nil {
		return fmt.Errorf("load zones: %w", err)
	}
	settings, err := e.store.Settings().Layout()
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	e.SyncZones(zones)
	e.ApplySettings(settings)
	e.logger.Info("layout loaded", "zones", len(zones))
	return nil
}

func (e *Engine) loadMedia(cfg gesture.ZoneConfig) (media.Audio, media.Animation) {
	audio, err := e.loader.Audio(cfg.AudioRef, cfg.Volume)
	if err != nil {
		e.logger.Warn("zone audio unavailable", "zone", cfg.ID, "error", err)
	}
	anim, err := e.loader.Animation(cfg.ImageRef)
	if err != nil {
		e.logger.Warn("zone image unavailable", "zone", cfg.ID, "error", err)
	}
	return audio, anim
}

// Start launches camera acquisition or the bridge connection, estimator
// initialisation and the event recorder. It returns immediately.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)

	if e.hooks != nil {
		e.hooks.Start(ctx)
	}
	if e.bridge != nil {
		e.bridge.Start(ctx)
	}
	if e.source != nil {
		e.source.Start(ctx)
	}
	if e.estimator != nil {
		e.wg.Add(1)
		go e.initEstimator(ctx)
	}

	e.wg.Add(1)
	go e.recordEvents(ctx)

	e.logger.Info("engine started", "source", e.cfg.VisionSource)
}

// Close stops every background task, releases the camera, closes the
// bridge and estimator and pauses all zone media.
func (e *Engine) Close() error {
	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()

	e.arbiter.Close()

	var errs []error
	if e.source != nil {
		if err := e.source.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close camera: %w", err))
		}
	}
	if e.bridge != nil {
		if err := e.bridge.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close bridge: %w", err))
		}
	}
	if e.estimator != nil {
		if err := e.estimator.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close estimator: %w", err))
		}
	}
	if e.hooks != nil {
		e.hooks.Close()
	}

	e.table.Close(time.Now())
	e.logger.Info("engine stopped")
	return errors.Join(errs...)
}

// initEstimator retries estimator initialisation until it succeeds or ctx
// is cancelled. Until then the local path counts every tick as a miss.
func (e *Engine) initEstimator(ctx context.Context) {
	defer e.wg.Done()

	for {
		err := e.estimator.Init(ctx, detector.DefaultOptions())
		if err == nil {
			e.arbiter.SetEstimator(e.estimator)
			e.logger.Info("estimator ready")
			return
		}
		e.logger.Warn("estimator unavailable, retrying", "in", EstimatorPollInterval, "error", err)

		select {
		case <-ctx.Done():
			return
		case <-time.After(EstimatorPollInterval):
		}
	}
}

// configureBridge tells the bridge what to stream. It runs on every connect.
func (e *Engine) configureBridge() {
	if e.cfg.TargetIP == "" {
		return
	}
	if err := e.bridge.SetConfig(e.cfg.TargetIP, e.cfg.VisionSource); err != nil {
		e.logger.Warn("bridge set_config failed", "error", err)
	}
}

// recordEvents persists zone events off the tick goroutine.
func (e *Engine) recordEvents(ctx context.Context) {
	defer e.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-e.records:
			if e.store == nil {
				continue
			}
			if err := e.store.Events().Record(ev.ZoneID, string(ev.Kind), ev.At); err != nil {
				e.logger.Warn("record zone event failed", "zone", ev.ZoneID, "error", err)
			}
		}
	}
}

// SetEnabled turns tracking on or off. While disabled zones see no pointer.
func (e *Engine) SetEnabled(enabled bool) {
	e.enabled.Store(enabled)
	e.logger.Info("tracking toggled", "enabled", enabled)
}

// Enabled reports whether tracking is on.
func (e *Engine) Enabled() bool {
	return e.enabled.Load()
}

// SyncZones replaces the zone configuration. It takes effect on the next tick.
func (e *Engine) SyncZones(zones []gesture.ZoneConfig) {
	cp := make([]gesture.ZoneConfig, len(zones))
	copy(cp, zones)

	e.pendingMu.Lock()
	e.pendingZones = cp
	e.hasPendingZones = true
	e.pendingMu.Unlock()
}

// ReloadZones re-reads zones from the store and syncs them.
func (e *Engine) ReloadZones() error {
	if e.store == nil {
		return nil
	}
	zones, err := e.store.Zones().List()
	if err != nil {
		return fmt.Errorf("reload zones: %w", err)
	}
	e.SyncZones(zones)
	return nil
}

// ApplySettings replaces the layout settings. It takes effect on the next tick.
func (e *Engine) ApplySettings(s store.Settings) {
	if s.VisionSource != "" && s.VisionSource != e.cfg.VisionSource {
		e.logger.Warn("vision source change takes effect on restart", "configured", e.cfg.VisionSource, "saved", s.VisionSource)
	}

	e.pendingMu.Lock()
	e.pendingSettings = &s
	e.pendingMu.Unlock()

	e.stateMu.Lock()
	e.settings = s
	e.stateMu.Unlock()
}

// Settings returns the layout settings in effect.
func (e *Engine) Settings() store.Settings {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	return e.settings
}

// SetOverlay replaces the editor overlay. It takes effect on the next tick.
func (e *Engine) SetOverlay(o Overlay) error {
	if o.ShowMesh {
		if _, err := render.NewMesh(o.MeshCols, o.MeshRows); err != nil {
			return err
		}
	}

	e.pendingMu.Lock()
	e.pendingOverlay = &o
	e.pendingMu.Unlock()

	e.stateMu.Lock()
	e.overlay = o
	e.stateMu.Unlock()
	return nil
}

// Overlay returns the editor overlay in effect.
func (e *Engine) Overlay() Overlay {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	return e.overlay
}

// Bridge returns the bridge client, or nil in local mode.
func (e *Engine) Bridge() *bridge.Client {
	return e.bridge
}

// Frame returns a copy of the most recently composited scene.
func (e *Engine) Frame() *image.RGBA {
	e.frameMu.Lock()
	defer e.frameMu.Unlock()

	out := image.NewRGBA(e.front.Rect)
	copy(out.Pix, e.front.Pix)
	return out
}

// CopyFrame copies the most recent scene into dst, which must match the
// canvas size.
func (e *Engine) CopyFrame(dst *image.RGBA) bool {
	e.frameMu.Lock()
	defer e.frameMu.Unlock()

	if dst.Rect != e.front.Rect {
		return false
	}
	copy(dst.Pix, e.front.Pix)
	return true
}

// CanvasSize returns the canvas dimensions in pixels.
func (e *Engine) CanvasSize() (int, int) {
	return e.cfg.CanvasWidth, e.cfg.CanvasHeight
}

func (e *Engine) setStatus(status string) {
	e.stateMu.Lock()
	e.status = status
	e.stateMu.Unlock()
	e.logger.Debug("status", "status", status)
}
