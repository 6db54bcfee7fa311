package app

import (
	"context"
	"image"
	"time"

	"github.com/ayusman/gyre/internal/bridge"
	"github.com/ayusman/gyre/internal/config"
	"github.com/ayusman/gyre/internal/detector"
	"github.com/ayusman/gyre/internal/geom"
	"github.com/ayusman/gyre/internal/gesture"
	"github.com/ayusman/gyre/internal/render"
	"github.com/ayusman/gyre/internal/store"
)

// DefaultDisplayFPS is the headless tick rate when none is configured.
const DefaultDisplayFPS = 60

// State is the engine status published after every tick.
type State struct {
	Tick     uint64          `json:"tick"`
	At       time.Time       `json:"at"`
	Enabled  bool            `json:"enabled"`
	Tracking bool            `json:"tracking"`
	Source   string          `json:"source,omitempty"`
	Gesture  string          `json:"gesture,omitempty"`
	Pointer  *geom.Point     `json:"pointer,omitempty"` // canvas pixels
	Zones    []gesture.View  `json:"zones"`
	Active   int             `json:"active"`
	Events   []gesture.Event `json:"events"`
	Status   string          `json:"status,omitempty"`
	Bridge   *BridgeState    `json:"bridge,omitempty"`
}

// BridgeState summarises the remote connection.
type BridgeState struct {
	URL           string        `json:"url"`
	Connected     bool          `json:"connected"`
	CenterDepthMM float64       `json:"center_depth_mm,omitempty"`
	Device        bridge.Status `json:"device"`
}

// Run drives Tick from a ticker at the display rate until ctx is
// cancelled. It is used when no display window owns the loop.
func (e *Engine) Run(ctx context.Context) error {
	fps := e.cfg.DisplayFPS
	if fps <= 0 {
		fps = DefaultDisplayFPS
	}

	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			e.Tick(now)
		}
	}
}

// Tick runs one frame: arbitration, zone physics and drawing, back to
// back on the calling goroutine.
func (e *Engine) Tick(now time.Time) {
	start := time.Now()

	var frame image.Image
	var remote []detector.Hand
	switch {
	case e.bridge != nil:
		frame = e.bridge.Latest().Frame
		remote = e.bridge.Hands(now)
	case e.source != nil:
		frame, _ = e.source.Latest()
	}

	e.step(now, frame, remote)

	if e.metrics != nil {
		e.metrics.ObserveTick(time.Since(start))
	}
}

// step is Tick with its inputs already gathered.
func (e *Engine) step(now time.Time, frame image.Image, remote []detector.Hand) {
	e.ticks++
	e.applyPending(now)

	if frame != nil {
		b := frame.Bounds()
		e.scene.Transform.SourceW = b.Dx()
		e.scene.Transform.SourceH = b.Dy()
	}
	e.arbiter.SetTransform(e.scene.Transform)

	enabled := e.enabled.Load()
	if enabled {
		e.arbiter.Analyze(frame, now, remote)
	} else {
		e.arbiter.Reset()
	}
	snap := e.arbiter.Snapshot()

	var pointer *geom.Point
	if snap != nil {
		p := snap.PointerOn(e.cfg.CanvasWidth, e.cfg.CanvasHeight)
		pointer = &p
	}

	events := e.table.Step(pointer, now)
	e.emit(events)

	views := e.table.Views()

	e.scene.Frame = frame
	e.scene.Zones = views
	e.scene.Tracking = snap
	e.scene.Now = now
	if e.bg != nil {
		e.scene.BackgroundImage = e.bg.Frame(now)
	}
	e.compositor.Draw(e.canvas, e.scene)

	e.frameMu.Lock()
	e.front, e.canvas = e.canvas, e.front
	e.frameMu.Unlock()

	active := e.table.ActiveCount()
	if e.metrics != nil {
		e.metrics.SetActiveZones(active)
		e.metrics.SetTracking(snap != nil)
	}

	st := State{
		Tick:     e.ticks,
		At:       now,
		Enabled:  enabled,
		Tracking: snap != nil,
		Pointer:  pointer,
		Zones:    views,
		Active:   active,
	}
	if snap != nil {
		st.Source = string(snap.Source)
		st.Gesture = snap.Gesture
	}
	if e.bridge != nil {
		latest := e.bridge.Latest()
		st.Bridge = &BridgeState{
			URL:           e.bridge.URL(),
			Connected:     latest.Connected,
			CenterDepthMM: latest.CenterDepthMM,
			Device:        latest.Status,
		}
	}
	e.publish(st, events)
}

// emit fans zone edges out to metrics, hooks, the store and OnEvent.
func (e *Engine) emit(events []gesture.Event) {
	if len(events) == 0 {
		return
	}

	if e.hooks != nil {
		e.hooks.Dispatch(events...)
	}
	for _, ev := range events {
		if e.metrics != nil {
			e.metrics.ObserveZoneEvent(string(ev.Kind))
		}
		select {
		case e.records <- ev:
		default:
			e.logger.Warn("event backlog full, not recording", "zone", ev.ZoneID, "kind", ev.Kind)
		}
		if e.OnEvent != nil {
			e.OnEvent(ev)
		}
	}
}

func (e *Engine) publish(st State, events []gesture.Event) {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()

	e.recent = append(e.recent, events...)
	if n := len(e.recent); n > RecentEvents {
		e.recent = append(e.recent[:0:0], e.recent[n-RecentEvents:]...)
	}
	st.Status = e.status
	e.state = st
}

// State returns the state published by the last tick.
func (e *Engine) State() State {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()

	st := e.state
	st.Events = append([]gesture.Event(nil), e.recent...)
	return st
}

// applyPending consumes configuration handed over since the last tick.
func (e *Engine) applyPending(now time.Time) {
	e.pendingMu.Lock()
	zones, hasZones := e.pendingZones, e.hasPendingZones
	settings, overlay := e.pendingSettings, e.pendingOverlay
	e.pendingZones, e.hasPendingZones = nil, false
	e.pendingSettings, e.pendingOverlay = nil, nil
	e.pendingMu.Unlock()

	if hasZones {
		e.table.Sync(zones, now)
	}
	if settings != nil {
		e.applySettings(*settings, now)
	}
	if overlay != nil {
		e.applyOverlay(*overlay)
	}
}

func (e *Engine) applySettings(s store.Settings, now time.Time) {
	if s.BackgroundColor != "" {
		c, err := render.ParseHexColor(s.BackgroundColor)
		if err != nil {
			e.logger.Warn("invalid background colour", "value", s.BackgroundColor, "error", err)
		} else {
			e.scene.Background = c
		}
	}

	if s.BackgroundImage == "" {
		e.bg = nil
		e.scene.BackgroundImage = nil
	} else {
		clip, err := e.loader.Image(s.BackgroundImage)
		if err != nil {
			e.logger.Warn("background image unavailable", "ref", s.BackgroundImage, "error", err)
		} else {
			clip.Resume(now)
			e.bg = clip
		}
	}

	t := &e.scene.Transform
	if s.Zoom != nil {
		t.Zoom = *s.Zoom
	}
	if s.RotationDeg != nil {
		t.RotationDeg = config.NormalizeRotation(*s.RotationDeg)
	}
	if s.Mirror != nil {
		t.Mirror = *s.Mirror
	}

	params := e.table.Params()
	if s.DepthGate != nil {
		params.DepthGate = *s.DepthGate
	}
	if s.DepthThresholdMM != nil && *s.DepthThresholdMM > 0 {
		params.DepthThresholdMM = *s.DepthThresholdMM
	}
	e.table.SetParams(params)
	e.scene.DepthGate = params.DepthGate
	e.scene.DepthThresholdMM = params.DepthThresholdMM

	if s.ShowSkeleton != nil {
		e.scene.ShowSkeleton = *s.ShowSkeleton
	}

	e.logger.Debug("settings applied", "zoom", t.Zoom, "rotation", t.RotationDeg, "mirror", t.Mirror, "depth_gate", params.DepthGate)
}

func (e *Engine) applyOverlay(o Overlay) {
	e.scene.Selected = o.Selected
	e.scene.Mesh = nil
	if o.ShowMesh {
		mesh, err := render.NewMesh(o.MeshCols, o.MeshRows)
		if err != nil {
			e.logger.Warn("invalid mesh overlay", "error", err)
			return
		}
		e.scene.Mesh = mesh
	}
}
