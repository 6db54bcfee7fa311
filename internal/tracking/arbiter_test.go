package tracking

import (
	"errors"
	"image"
	"math"
	"testing"
	"time"

	"github.com/ayusman/gyre/internal/detector"
	"github.com/ayusman/gyre/internal/geom"
)

type countingObserver struct {
	dispatches, failures, timeouts int
}

func (o *countingObserver) ObserveDispatch()         { o.dispatches++ }
func (o *countingObserver) ObserveInferenceFailure() { o.failures++ }
func (o *countingObserver) ObserveInferenceTimeout() { o.timeouts++ }

func newTestArbiter(t *testing.T) *Arbiter {
	t.Helper()
	cfg := DefaultConfig()
	cfg.PreCrop = false
	a := NewArbiter(cfg, nil)
	a.spawn = func(fn func()) { fn() }
	a.SetTransform(geom.Transform{SourceW: 640, SourceH: 480, CanvasW: 640, CanvasH: 480})
	return a
}

func testFrame() image.Image {
	return image.NewRGBA(image.Rect(0, 0, 640, 480))
}

func TestArbiter_RemoteHands(t *testing.T) {
	t.Run("selects first visible hand", func(t *testing.T) {
		a := newTestArbiter(t)
		// 4:3 source on a 16:9 canvas crops the top and bottom.
		a.SetTransform(geom.Transform{SourceW: 640, SourceH: 480, CanvasW: 1600, CanvasH: 900})

		hidden := detector.PointingHand(0.5, 0.02)
		visible := detector.PointingHand(0.5, 0.5)

		snap := a.Analyze(nil, time.Now(), []detector.Hand{hidden, visible})
		if snap == nil {
			t.Fatal("expected a snapshot")
		}
		if snap.Source != SourceRemote {
			t.Errorf("expected remote source, got %s", snap.Source)
		}
		if math.Abs(snap.Pointer.X-0.5) > 1e-6 || math.Abs(snap.Pointer.Y-0.5) > 1e-6 {
			t.Errorf("expected pointer at centre, got %+v", snap.Pointer)
		}
		if snap.Hold != 6 {
			t.Errorf("expected hold 6, got %d", snap.Hold)
		}
	})

	t.Run("skips the local estimator", func(t *testing.T) {
		a := newTestArbiter(t)
		est := detector.NewMockEstimator()
		a.SetEstimator(est)

		a.Analyze(testFrame(), time.Now(), []detector.Hand{detector.PointingHand(0.5, 0.5)})
		if est.Sent() != 0 {
			t.Errorf("expected no inference dispatch, got %d", est.Sent())
		}
	})

	t.Run("no visible hand decays the hold", func(t *testing.T) {
		a := newTestArbiter(t)
		now := time.Now()
		a.Analyze(nil, now, []detector.Hand{detector.PointingHand(0.5, 0.5)})

		offscreen := detector.PointingHand(1.5, 0.5)
		snap := a.Analyze(nil, now, []detector.Hand{offscreen})
		if snap == nil || snap.Hold != 5 {
			t.Fatalf("expected hold 5, got %+v", snap)
		}
	})

	t.Run("smooths between messages", func(t *testing.T) {
		a := newTestArbiter(t)
		now := time.Now()
		a.Analyze(nil, now, []detector.Hand{detector.PointingHand(0.2, 0.5)})
		snap := a.Analyze(nil, now, []detector.Hand{detector.PointingHand(0.6, 0.5)})

		// Landmark EMA first, then pointer EMA on top.
		landmark := 0.2 + (0.6-0.2)*LandmarkAlpha
		want := 0.2 + (landmark-0.2)*PointerAlpha
		if math.Abs(snap.Pointer.X-want) > 1e-9 {
			t.Errorf("expected pointer x %v, got %v", want, snap.Pointer.X)
		}
	})
}

func TestArbiter_HoldDecay(t *testing.T) {
	a := newTestArbiter(t)
	now := time.Now()

	a.Analyze(nil, now, []detector.Hand{detector.PointingHand(0.5, 0.5)})

	// Empty remote input with no estimator: every tick is a miss.
	for i := 5; i >= 0; i-- {
		snap := a.Analyze(nil, now, nil)
		if snap == nil {
			t.Fatalf("snapshot cleared early at hold %d", i)
		}
		if snap.Hold != i {
			t.Errorf("expected hold %d, got %d", i, snap.Hold)
		}
	}

	if snap := a.Analyze(nil, now, nil); snap != nil {
		t.Errorf("expected snapshot to clear after hold expires, got %+v", snap)
	}
}

func TestArbiter_LocalInference(t *testing.T) {
	t.Run("result lands on the next tick", func(t *testing.T) {
		a := newTestArbiter(t)
		est := detector.NewMockEstimator()
		est.SetHands([]detector.Hand{detector.PointingHand(0.4, 0.5)})
		a.SetEstimator(est)

		now := time.Now()
		if snap := a.Analyze(testFrame(), now, nil); snap != nil {
			t.Fatalf("expected no snapshot on dispatch tick, got %+v", snap)
		}
		if est.Sent() != 1 {
			t.Fatalf("expected one dispatch, got %d", est.Sent())
		}

		snap := a.Analyze(testFrame(), now.Add(time.Millisecond), nil)
		if snap == nil || snap.Source != SourceLocal {
			t.Fatalf("expected local snapshot, got %+v", snap)
		}
		if math.Abs(snap.Pointer.X-0.4) > 1e-3 {
			t.Errorf("expected pointer x 0.4, got %v", snap.Pointer.X)
		}
	})

	t.Run("throttles dispatch", func(t *testing.T) {
		a := newTestArbiter(t)
		est := detector.NewMockEstimator()
		a.SetEstimator(est)

		start := time.Now()
		a.Analyze(testFrame(), start, nil)
		a.Analyze(testFrame(), start.Add(30*time.Millisecond), nil)
		if est.Sent() != 1 {
			t.Errorf("expected 1 dispatch within the interval, got %d", est.Sent())
		}

		a.Analyze(testFrame(), start.Add(70*time.Millisecond), nil)
		if est.Sent() != 2 {
			t.Errorf("expected 2 dispatches after the interval, got %d", est.Sent())
		}
	})

	t.Run("single call in flight", func(t *testing.T) {
		a := newTestArbiter(t)
		est := detector.NewMockEstimator()
		est.SetManual(true)
		a.SetEstimator(est)

		start := time.Now()
		for i := 0; i < 10; i++ {
			a.Analyze(testFrame(), start.Add(time.Duration(i)*100*time.Millisecond), nil)
		}
		if est.Sent() != 1 {
			t.Errorf("expected 1 in-flight dispatch, got %d", est.Sent())
		}
		if !a.Busy() {
			t.Error("expected busy while the call is pending")
		}

		est.Complete()
		if a.Busy() {
			t.Error("expected busy cleared after completion")
		}
	})

	t.Run("failed dispatch clears busy", func(t *testing.T) {
		a := newTestArbiter(t)
		obs := &countingObserver{}
		a.SetObserver(obs)
		est := detector.NewMockEstimator()
		est.SetSendError(errors.New("pipe closed"))
		a.SetEstimator(est)

		a.Analyze(testFrame(), time.Now(), nil)
		if a.Busy() {
			t.Error("expected busy cleared after a failed dispatch")
		}
		if obs.dispatches != 1 || obs.failures != 1 {
			t.Errorf("expected 1 dispatch and 1 failure, got %+v", obs)
		}
	})

	t.Run("inference error skips the update", func(t *testing.T) {
		a := newTestArbiter(t)
		est := detector.NewMockEstimator()
		est.SetError(errors.New("model missing"))
		a.SetEstimator(est)

		now := time.Now()
		a.Analyze(testFrame(), now, nil)
		if snap := a.Analyze(testFrame(), now.Add(time.Millisecond), nil); snap != nil {
			t.Errorf("expected no snapshot, got %+v", snap)
		}
	})

	t.Run("timed out call is abandoned", func(t *testing.T) {
		a := newTestArbiter(t)
		obs := &countingObserver{}
		a.SetObserver(obs)
		est := detector.NewMockEstimator()
		est.SetManual(true)
		a.SetEstimator(est)

		start := time.Now()
		a.Analyze(testFrame(), start, nil)
		a.Analyze(testFrame(), start.Add(time.Second), nil)
		if est.Sent() != 1 {
			t.Fatalf("expected 1 dispatch before timeout, got %d", est.Sent())
		}

		a.Analyze(testFrame(), start.Add(3*time.Second), nil)
		if est.Sent() != 2 {
			t.Errorf("expected redispatch after timeout, got %d", est.Sent())
		}
		if obs.timeouts != 1 {
			t.Errorf("expected 1 timeout, got %d", obs.timeouts)
		}
	})

	t.Run("late completion of an abandoned call is dropped", func(t *testing.T) {
		a := newTestArbiter(t)
		est := detector.NewMockEstimator()
		est.SetManual(true)
		est.SetHands([]detector.Hand{detector.PointingHand(0.5, 0.5)})
		a.SetEstimator(est)

		start := time.Now()
		a.Analyze(testFrame(), start, nil)
		a.Analyze(testFrame(), start.Add(3*time.Second), nil)
		if est.Sent() != 2 || !a.Busy() {
			t.Fatalf("after timeout: sent %d, busy %v", est.Sent(), a.Busy())
		}

		est.Complete()
		if !a.Busy() {
			t.Error("late completion released the redispatched call")
		}
		if _, ok := a.takeResult(); ok {
			t.Error("late completion filled the result cell")
		}

		a.Analyze(testFrame(), start.Add(3100*time.Millisecond), nil)
		if est.Sent() != 2 {
			t.Fatalf("expected no dispatch while call 2 runs, got %d sends", est.Sent())
		}

		est.Complete()
		if a.Busy() {
			t.Error("expected busy cleared by the current call")
		}
		snap := a.Analyze(testFrame(), start.Add(3200*time.Millisecond), nil)
		if snap == nil || snap.Source != SourceLocal {
			t.Errorf("expected local snapshot from call 2, got %+v", snap)
		}
		if est.Sent() != 3 {
			t.Errorf("expected third dispatch once call 2 finished, got %d", est.Sent())
		}
	})

	t.Run("abandoned call failing to send keeps the current call busy", func(t *testing.T) {
		a := newTestArbiter(t)
		var queued []func()
		a.spawn = func(fn func()) { queued = append(queued, fn) }
		est := detector.NewMockEstimator()
		est.SetManual(true)
		a.SetEstimator(est)

		start := time.Now()
		a.Analyze(testFrame(), start, nil)
		a.Analyze(testFrame(), start.Add(3*time.Second), nil)
		if len(queued) != 2 {
			t.Fatalf("expected 2 queued sends, got %d", len(queued))
		}

		queued[1]()
		est.SetSendError(errors.New("pipe closed"))
		queued[0]()
		est.SetSendError(nil)
		if !a.Busy() {
			t.Fatal("failed send of the abandoned call released the current call")
		}

		est.Complete()
		if a.Busy() {
			t.Error("expected busy cleared by the current call")
		}
		if _, ok := a.takeResult(); !ok {
			t.Error("current call's completion was dropped")
		}
	})

	t.Run("analysis buffer is down-scaled", func(t *testing.T) {
		a := newTestArbiter(t)
		est := detector.NewMockEstimator()
		a.SetEstimator(est)

		a.Analyze(testFrame(), time.Now(), nil)

		b := est.LastFrame().Bounds()
		if b.Dx() != 320 || b.Dy() != 240 {
			t.Errorf("expected 320x240 analysis frame, got %dx%d", b.Dx(), b.Dy())
		}
	})

	t.Run("closed arbiter ignores completions", func(t *testing.T) {
		a := newTestArbiter(t)
		est := detector.NewMockEstimator()
		est.SetManual(true)
		est.SetHands([]detector.Hand{detector.PointingHand(0.5, 0.5)})
		a.SetEstimator(est)

		now := time.Now()
		a.Analyze(testFrame(), now, nil)
		a.Close()
		est.Complete()

		if _, ok := a.takeResult(); ok {
			t.Error("expected completion after Close to be dropped")
		}
	})
}

func TestArbiter_PreCrop(t *testing.T) {
	cfg := DefaultConfig()
	a := NewArbiter(cfg, nil)
	a.spawn = func(fn func()) { fn() }
	a.SetTransform(geom.Transform{SourceW: 640, SourceH: 480, CanvasW: 640, CanvasH: 480, Zoom: 2})

	est := detector.NewMockEstimator()
	// Centre of the cropped buffer is the centre of the full frame.
	est.SetHands([]detector.Hand{detector.PointingHand(0.5, 0.5)})
	a.SetEstimator(est)

	now := time.Now()
	a.Analyze(testFrame(), now, nil)

	b := est.LastFrame().Bounds()
	if b.Dx() != 320 || b.Dy() != 240 {
		t.Errorf("expected cropped 320x240 buffer, got %dx%d", b.Dx(), b.Dy())
	}

	snap := a.Analyze(testFrame(), now.Add(time.Millisecond), nil)
	if snap == nil {
		t.Fatal("expected snapshot")
	}
	if math.Abs(snap.Pointer.X-0.5) > 1e-6 || math.Abs(snap.Pointer.Y-0.5) > 1e-6 {
		t.Errorf("expected centred pointer, got %+v", snap.Pointer)
	}
}

func TestArbiter_ResetDropsPendingResult(t *testing.T) {
	a := newTestArbiter(t)
	est := detector.NewMockEstimator()
	est.SetHands([]detector.Hand{detector.PointingHand(0.5, 0.5)})
	a.SetEstimator(est)

	now := time.Now()
	a.Analyze(testFrame(), now, nil)
	a.Reset()

	if snap := a.Analyze(testFrame(), now.Add(time.Millisecond), nil); snap != nil {
		t.Errorf("stale detection applied after Reset: %+v", snap)
	}
}
