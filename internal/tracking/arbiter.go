package tracking

import (
	"image"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/image/draw"

	"github.com/ayusman/gyre/internal/detector"
	"github.com/ayusman/gyre/internal/geom"
)

// SourceKind names the producer behind a snapshot.
type SourceKind string

const (
	SourceNone   SourceKind = "none"
	SourceLocal  SourceKind = "local"
	SourceRemote SourceKind = "remote"
)

// Input is one tick's worth of hand data. It is either RemoteHands pushed by
// the bridge or a LocalFrame to run through the on-device estimator.
type Input interface {
	Kind() SourceKind
}

// RemoteHands carries pre-computed hands from the bridge.
type RemoteHands struct {
	Hands []detector.Hand
}

// Kind implements Input.
func (RemoteHands) Kind() SourceKind { return SourceRemote }

// LocalFrame carries a camera frame for on-device inference.
type LocalFrame struct {
	Frame image.Image
}

// Kind implements Input.
func (LocalFrame) Kind() SourceKind { return SourceLocal }

// Observer receives inference bookkeeping events.
type Observer interface {
	ObserveDispatch()
	ObserveInferenceFailure()
	ObserveInferenceTimeout()
}

type nopObserver struct{}

func (nopObserver) ObserveDispatch()         {}
func (nopObserver) ObserveInferenceFailure() {}
func (nopObserver) ObserveInferenceTimeout() {}

// Config holds arbiter tuning.
type Config struct {
	AnalysisFPS      float64       // on-device inference cadence
	AnalysisWidth    int           // width of the down-scaled analysis buffer
	PreCrop          bool          // crop the frame to its visible part before scaling
	HoldFrames       int           // detections a pointer survives without a fresh hit
	LandmarkAlpha    float64       // smoothing of the landmark set
	PointerAlpha     float64       // smoothing of the fingertip
	InferenceTimeout time.Duration // abandon an in-flight call after this long
}

// DefaultConfig returns the standard arbiter configuration.
func DefaultConfig() Config {
	return Config{
		AnalysisFPS:      15,
		AnalysisWidth:    320,
		PreCrop:          true,
		HoldFrames:       6,
		LandmarkAlpha:    LandmarkAlpha,
		PointerAlpha:     PointerAlpha,
		InferenceTimeout: 2 * time.Second,
	}
}

type result struct {
	hands []detector.Hand
	err   error
	crop  geom.Rect
}

// Arbiter chooses between remote bridge hands and the on-device estimator
// and maintains the tracking snapshot.
//
// Analyze must be called from a single goroutine (the render tick); it is
// the only writer of the snapshot. Estimator completions only fill a
// single-slot result cell which the next Analyze call consumes.
type Arbiter struct {
	cfg       Config
	logger    *slog.Logger
	observer  Observer
	landmarks Smoother
	pointer   Smoother
	transform geom.Transform

	estMu     sync.Mutex
	estimator detector.Estimator

	busy         atomic.Bool
	alive        atomic.Bool
	lastDispatch time.Time
	dispatchedAt time.Time
	buf          *image.RGBA

	cellMu      sync.Mutex
	cell        *result
	pendingCrop geom.Rect
	// call numbers dispatches; abandoned counts timed-out calls whose
	// completion has not arrived yet and must be dropped.
	call      uint64
	abandoned int

	snapshot *Snapshot
	spawn    func(func())
}

// NewArbiter creates an Arbiter. The estimator may be attached later with
// SetEstimator once it becomes available.
func NewArbiter(cfg Config, logger *slog.Logger) *Arbiter {
	def := DefaultConfig()
	if cfg.AnalysisFPS <= 0 {
		cfg.AnalysisFPS = def.AnalysisFPS
	}
	if cfg.AnalysisWidth <= 0 {
		cfg.AnalysisWidth = def.AnalysisWidth
	}
	if cfg.HoldFrames <= 0 {
		cfg.HoldFrames = def.HoldFrames
	}
	if cfg.LandmarkAlpha <= 0 {
		cfg.LandmarkAlpha = def.LandmarkAlpha
	}
	if cfg.PointerAlpha <= 0 {
		cfg.PointerAlpha = def.PointerAlpha
	}
	if logger == nil {
		logger = slog.Default()
	}

	a := &Arbiter{
		cfg:       cfg,
		logger:    logger.With("component", "tracking.arbiter"),
		observer:  nopObserver{},
		landmarks: NewSmoother(cfg.LandmarkAlpha),
		pointer:   NewSmoother(cfg.PointerAlpha),
		spawn:     func(fn func()) { go fn() },
	}
	a.alive.Store(true)
	return a
}

// SetObserver installs an observer for inference events.
func (a *Arbiter) SetObserver(o Observer) {
	if o == nil {
		o = nopObserver{}
	}
	a.observer = o
}

// SetEstimator attaches the on-device estimator and registers the result callback.
func (a *Arbiter) SetEstimator(est detector.Estimator) {
	a.estMu.Lock()
	a.estimator = est
	a.estMu.Unlock()

	if est != nil {
		est.OnResult(a.onResult)
	}
}

// Estimator returns the attached estimator, or nil.
func (a *Arbiter) Estimator() detector.Estimator {
	a.estMu.Lock()
	defer a.estMu.Unlock()
	return a.estimator
}

// SetTransform sets the display transform used for the visibility filter
// and for mapping landmarks into display space.
func (a *Arbiter) SetTransform(t geom.Transform) {
	a.transform = t
}

// Snapshot returns the current tracking snapshot, or nil.
func (a *Arbiter) Snapshot() *Snapshot {
	return a.snapshot
}

// Busy reports whether an inference call is in flight.
func (a *Arbiter) Busy() bool {
	return a.busy.Load()
}

// Reset clears the tracking snapshot and discards any completed result
// that has not been applied yet.
func (a *Arbiter) Reset() {
	a.snapshot = nil
	a.takeResult()
}

// Close stops accepting estimator completions.
func (a *Arbiter) Close() {
	a.alive.Store(false)
}

// Analyze runs one arbitration step and returns the resulting snapshot.
func (a *Arbiter) Analyze(frame image.Image, now time.Time, remote []detector.Hand) *Snapshot {
	var in Input = LocalFrame{Frame: frame}
	if len(remote) > 0 {
		in = RemoteHands{Hands: remote}
	}

	switch v := in.(type) {
	case RemoteHands:
		a.takeResult()
		a.apply(v.Hands, geom.Full, SourceRemote)

	case LocalFrame:
		est := a.Estimator()
		if est == nil {
			a.miss()
			break
		}
		if res, ok := a.takeResult(); ok {
			if res.err != nil {
				a.logger.Debug("inference failed", "error", res.err)
				a.observer.ObserveInferenceFailure()
			} else {
				a.apply(res.hands, res.crop, SourceLocal)
			}
		}
		a.dispatch(est, v.Frame, now)
	}

	return a.snapshot
}

// apply selects the first visible hand, smooths it and stores it.
// If no hand is visible the pointer decays through its hold frames.
func (a *Arbiter) apply(hands []detector.Hand, crop geom.Rect, source SourceKind) {
	for i := range hands {
		tip, ok := hands[i].Pointer()
		if !ok || !a.transform.Visible(crop.Unmap(tip)) {
			continue
		}

		pts := hands[i].Points()
		for j := range pts {
			pts[j] = a.transform.ToDisplay(crop.Unmap(pts[j]))
		}

		var prevLandmarks []geom.Point
		var prevPointer *geom.Point
		if a.snapshot != nil {
			prevLandmarks = a.snapshot.Landmarks
			p := a.snapshot.Pointer
			prevPointer = &p
		}

		landmarks := a.landmarks.Smooth(prevLandmarks, pts)
		pointer := a.pointer.SmoothPoint(prevPointer, landmarks[detector.PointerLandmark])

		a.snapshot = &Snapshot{
			Landmarks: landmarks,
			Pointer:   pointer,
			Hold:      a.cfg.HoldFrames,
			Gesture:   hands[i].Gesture,
			Source:    source,
		}
		return
	}

	a.miss()
}

// miss consumes one hold frame, clearing the snapshot once none remain.
func (a *Arbiter) miss() {
	if a.snapshot == nil {
		return
	}
	if a.snapshot.Hold > 0 {
		a.snapshot = a.snapshot.held()
		return
	}
	a.snapshot = nil
}

func (a *Arbiter) dispatch(est detector.Estimator, frame image.Image, now time.Time) {
	if frame == nil || frame.Bounds().Empty() {
		return
	}

	if a.busy.Load() {
		if a.cfg.InferenceTimeout <= 0 || now.Sub(a.dispatchedAt) <= a.cfg.InferenceTimeout {
			return
		}
		a.logger.Warn("inference call timed out", "after", now.Sub(a.dispatchedAt))
		a.observer.ObserveInferenceTimeout()
		// The abandoned call may still be reading the old buffer.
		a.buf = nil
		a.cellMu.Lock()
		a.abandoned++
		a.cellMu.Unlock()
		a.busy.Store(false)
	}

	interval := time.Duration(float64(time.Second) / a.cfg.AnalysisFPS)
	if !a.lastDispatch.IsZero() && now.Sub(a.lastDispatch) < interval {
		return
	}

	crop := geom.Full
	if a.cfg.PreCrop {
		crop = a.transform.VisibleSourceRect()
	}
	buf, crop := a.prepare(frame, crop)

	a.cellMu.Lock()
	a.pendingCrop = crop
	a.call++
	call := a.call
	a.cellMu.Unlock()

	a.busy.Store(true)
	a.lastDispatch = now
	a.dispatchedAt = now
	a.observer.ObserveDispatch()

	a.spawn(func() {
		if err := est.Send(buf); err != nil {
			a.logger.Debug("inference dispatch failed", "error", err)
			a.observer.ObserveInferenceFailure()
			a.sendFailed(call)
		}
	})
}

// prepare scales the (optionally cropped) frame into the analysis buffer.
// It returns the crop actually used after snapping to whole pixels.
func (a *Arbiter) prepare(frame image.Image, crop geom.Rect) (*image.RGBA, geom.Rect) {
	b := frame.Bounds()
	w, h := float64(b.Dx()), float64(b.Dy())

	sr := image.Rect(
		b.Min.X+floorPx(crop.X*w),
		b.Min.Y+floorPx(crop.Y*h),
		b.Min.X+ceilPx((crop.X+crop.W)*w),
		b.Min.Y+ceilPx((crop.Y+crop.H)*h),
	).Intersect(b)
	if sr.Empty() {
		sr = b
	}

	snapped := geom.Rect{
		X: float64(sr.Min.X-b.Min.X) / w,
		Y: float64(sr.Min.Y-b.Min.Y) / h,
		W: float64(sr.Dx()) / w,
		H: float64(sr.Dy()) / h,
	}

	dw := a.cfg.AnalysisWidth
	if dw > sr.Dx() {
		dw = sr.Dx()
	}
	dh := int(math.Round(float64(dw) * float64(sr.Dy()) / float64(sr.Dx())))
	if dh < 1 {
		dh = 1
	}

	if a.buf == nil || a.buf.Bounds().Dx() != dw || a.buf.Bounds().Dy() != dh {
		a.buf = image.NewRGBA(image.Rect(0, 0, dw, dh))
	}
	draw.ApproxBiLinear.Scale(a.buf, a.buf.Bounds(), frame, sr, draw.Src, nil)

	return a.buf, snapped
}

// floorPx and ceilPx tolerate float noise from the inverse transform so an
// exact pixel edge is not widened by one.
func floorPx(v float64) int { return int(math.Floor(v + 1e-6)) }
func ceilPx(v float64) int  { return int(math.Ceil(v - 1e-6)) }

// onResult is the estimator completion callback. It runs on the estimator's
// goroutine, fills the result cell and releases the in-flight flag.
func (a *Arbiter) onResult(hands []detector.Hand, err error) {
	if !a.alive.Load() {
		return
	}

	a.cellMu.Lock()
	if a.abandoned > 0 {
		// Estimators complete in order, so this is the oldest timed-out call.
		a.abandoned--
		a.cellMu.Unlock()
		return
	}
	a.cell = &result{hands: hands, err: err, crop: a.pendingCrop}
	a.cellMu.Unlock()

	a.busy.Store(false)
}

// sendFailed releases the in-flight flag for a call that will never
// complete. A call that was already abandoned no longer owns the flag.
func (a *Arbiter) sendFailed(call uint64) {
	a.cellMu.Lock()
	defer a.cellMu.Unlock()

	if call == a.call {
		a.busy.Store(false)
		return
	}
	if a.abandoned > 0 {
		a.abandoned--
	}
}

func (a *Arbiter) takeResult() (result, bool) {
	a.cellMu.Lock()
	defer a.cellMu.Unlock()

	if a.cell == nil {
		return result{}, false
	}
	res := *a.cell
	a.cell = nil
	return res, true
}
