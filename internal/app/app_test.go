package app

import (
	"image/color"
	"math"
	"testing"
	"time"

	"github.com/ayusman/gyre/internal/capture"
	"github.com/ayusman/gyre/internal/config"
	"github.com/ayusman/gyre/internal/detector"
	"github.com/ayusman/gyre/internal/geom"
	"github.com/ayusman/gyre/internal/gesture"
	"github.com/ayusman/gyre/internal/media"
	"github.com/ayusman/gyre/internal/metrics"
	"github.com/ayusman/gyre/internal/store"
	"github.com/ayusman/gyre/internal/tracking"
)

const tick = 16 * time.Millisecond

var t0 = time.Unix(1700000000, 0)

func testConfig(source string) config.Config {
	return config.Config{
		CameraWidth:      320,
		CameraHeight:     180,
		CanvasWidth:      320,
		CanvasHeight:     180,
		DisplayFPS:       60,
		AnalysisFPS:      15,
		Zoom:             1,
		VisionSource:     source,
		BridgeURL:        "ws://127.0.0.1:1",
		DepthThresholdMM: 1200,
	}
}

func newTestEngine(t *testing.T, opts Options) *Engine {
	t.Helper()
	if opts.Config.CanvasWidth == 0 {
		opts.Config = testConfig(config.SourceRemote)
	}
	e, err := New(opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return e
}

func testZone() gesture.ZoneConfig {
	return gesture.ZoneConfig{ID: "z1", Center: geom.Point{X: 160, Y: 90}, Radius: 40, Stroke: 3, Color: "#ff0000"}
}

// orbitHand puts the fingertip 20px from the test zone centre at deg.
func orbitHand(deg float64) detector.Hand {
	rad := deg * math.Pi / 180
	return detector.PointingHand(0.5+20*math.Cos(rad)/320, 0.5+20*math.Sin(rad)/180)
}

func hands(h ...detector.Hand) []detector.Hand { return h }

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"zero canvas", func(c *config.Config) { c.CanvasWidth = 0 }},
		{"remote without bridge url", func(c *config.Config) { c.BridgeURL = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(config.SourceRemote)
			tt.mutate(&cfg)
			if _, err := New(Options{Config: cfg}); err == nil {
				t.Error("expected error")
			}
		})
	}
}

// Each vision source wires exactly one hand producer.
func TestNew_SourceWiring(t *testing.T) {
	remote := newTestEngine(t, Options{})
	if remote.bridge == nil || remote.estimator != nil || remote.source != nil {
		t.Errorf("remote: bridge %v, estimator %v, source %v", remote.bridge != nil, remote.estimator != nil, remote.source != nil)
	}

	local := newTestEngine(t, Options{
		Config:    testConfig(config.SourceLocal),
		Camera:    capture.NewMockCamera(nil, false),
		Estimator: detector.NewMockEstimator(),
	})
	if local.bridge != nil || local.estimator == nil || local.source == nil {
		t.Errorf("local: bridge %v, estimator %v, source %v", local.bridge != nil, local.estimator != nil, local.source != nil)
	}
}

func TestEngine_RemoteHoldDecay(t *testing.T) {
	e := newTestEngine(t, Options{})
	e.SyncZones([]gesture.ZoneConfig{testZone()})

	now := t0
	e.step(now, nil, hands(detector.PointingHand(0.5, 0.5)))

	st := e.State()
	if !st.Tracking || st.Source != string(tracking.SourceRemote) {
		t.Fatalf("expected remote tracking, got %+v", st)
	}
	if st.Pointer == nil || math.Abs(st.Pointer.X-160) > 1e-6 || math.Abs(st.Pointer.Y-90) > 1e-6 {
		t.Fatalf("pointer = %v, want (160, 90)", st.Pointer)
	}
	if !st.Zones[0].Inside {
		t.Fatal("expected pointer inside zone")
	}

	// An empty hand list is a miss: the pointer survives the hold frames.
	hold := tracking.DefaultConfig().HoldFrames
	for i := 0; i < hold; i++ {
		now = now.Add(tick)
		e.step(now, nil, hands())
		if st := e.State(); !st.Tracking || !st.Zones[0].Inside {
			t.Fatalf("miss %d: tracking=%v inside=%v", i+1, st.Tracking, st.Zones[0].Inside)
		}
	}

	now = now.Add(tick)
	e.step(now, nil, hands())
	st = e.State()
	if st.Tracking || st.Pointer != nil {
		t.Error("expected tracking to clear after the hold frames")
	}
	if st.Zones[0].Inside {
		t.Error("expected zone to reset once the pointer is gone")
	}
}

func TestEngine_OrbitActivates(t *testing.T) {
	m := metrics.New()
	var got []gesture.Event

	e := newTestEngine(t, Options{Metrics: m})
	e.OnEvent = func(ev gesture.Event) { got = append(got, ev) }
	e.SyncZones([]gesture.ZoneConfig{testZone()})

	now := t0
	for i := 0; i < 60 && e.State().Active == 0; i++ {
		now = now.Add(tick)
		e.step(now, nil, hands(orbitHand(float64(i)*10)))
	}

	st := e.State()
	if st.Active != 1 || !st.Zones[0].Active {
		t.Fatalf("expected zone active after a clockwise orbit, got %+v", st.Zones[0])
	}
	if len(got) != 1 || got[0].Kind != gesture.EventActivate || got[0].ZoneID != "z1" {
		t.Fatalf("events = %+v", got)
	}
	if len(st.Events) != 1 {
		t.Errorf("expected event in state feed, got %d", len(st.Events))
	}

	// Hand gone: active survives while the freshness window is open.
	for i := 0; i < 20; i++ {
		now = now.Add(tick)
		e.step(now, nil, nil)
	}
	if e.State().Active != 1 {
		t.Fatal("activation should survive a short dropout")
	}

	now = now.Add(gesture.DefaultParams().Freshness)
	e.step(now, nil, nil)
	if e.State().Active != 0 {
		t.Fatal("activation should end once the gesture goes stale")
	}
	if len(got) != 2 || got[1].Kind != gesture.EventDeactivate {
		t.Fatalf("expected deactivate event, got %+v", got)
	}
}

func TestEngine_MediaEdges(t *testing.T) {
	audio := media.NewRecorder(time.Second)
	e := newTestEngine(t, Options{
		Media: func(cfg gesture.ZoneConfig) (media.Audio, media.Animation) {
			return audio, media.RecorderAnimation{Recorder: media.NewRecorder(0)}
		},
	})
	z := testZone()
	z.AudioRef = "chime.mp3"
	e.SyncZones([]gesture.ZoneConfig{z})

	now := t0
	for i := 0; i < 60 && e.State().Active == 0; i++ {
		now = now.Add(tick)
		e.step(now, nil, hands(orbitHand(float64(i)*10)))
	}
	if !audio.Playing() || audio.Resumes() != 1 {
		t.Fatalf("expected audio to start once, resumes=%d", audio.Resumes())
	}

	// Removing the zone pauses its media.
	e.SyncZones(nil)
	e.step(now.Add(tick), nil, nil)
	if audio.Playing() {
		t.Error("expected audio paused after zone removal")
	}
	if len(e.State().Zones) != 0 {
		t.Error("expected zone removed")
	}
}

func TestEngine_SyncZonesNextTick(t *testing.T) {
	e := newTestEngine(t, Options{})
	e.SyncZones([]gesture.ZoneConfig{testZone()})

	if len(e.State().Zones) != 0 {
		t.Fatal("zones should not change before the next tick")
	}
	e.step(t0, nil, nil)
	if len(e.State().Zones) != 1 {
		t.Fatal("expected one zone after tick")
	}

	moved := testZone()
	moved.Center.X = 60
	e.SyncZones([]gesture.ZoneConfig{moved})
	e.step(t0.Add(tick), nil, nil)
	if zs := e.State().Zones; len(zs) != 1 || zs[0].Config.Center.X != 60 {
		t.Errorf("expected updated zone, got %+v", zs)
	}
}

func TestEngine_ApplySettings(t *testing.T) {
	t.Run("mirror maps the pointer", func(t *testing.T) {
		e := newTestEngine(t, Options{})
		z := testZone()
		z.Center.X = 240
		e.SyncZones([]gesture.ZoneConfig{z})

		mirror := true
		e.ApplySettings(store.Settings{Mirror: &mirror})
		e.step(t0, nil, hands(detector.PointingHand(0.25, 0.5)))

		st := e.State()
		if st.Pointer == nil || math.Abs(st.Pointer.X-240) > 1e-6 {
			t.Fatalf("pointer = %v, want x=240", st.Pointer)
		}
		if !st.Zones[0].Inside {
			t.Error("expected mirrored pointer inside zone")
		}
	})

	t.Run("depth gate blocks far hands", func(t *testing.T) {
		e := newTestEngine(t, Options{})
		e.SyncZones([]gesture.ZoneConfig{testZone()})

		gate, threshold := true, 1000.0
		e.ApplySettings(store.Settings{DepthGate: &gate, DepthThresholdMM: &threshold})
		e.step(t0, nil, hands(detector.WithDepth(detector.PointingHand(0.5, 0.5), 1500)))

		st := e.State()
		if st.Zones[0].Inside || !st.Zones[0].DepthBlock {
			t.Errorf("expected depth-blocked zone, got %+v", st.Zones[0])
		}
		if e.Settings().DepthThresholdMM == nil || *e.Settings().DepthThresholdMM != 1000 {
			t.Error("settings not retained")
		}
	})

	t.Run("background colour", func(t *testing.T) {
		e := newTestEngine(t, Options{})
		e.ApplySettings(store.Settings{BackgroundColor: "#102030"})
		e.step(t0, nil, nil)

		want := color.RGBA{0x10, 0x20, 0x30, 0xff}
		if got := e.Frame().RGBAAt(0, 0); got != want {
			t.Errorf("background = %v, want %v", got, want)
		}
	})
}

func TestEngine_Disabled(t *testing.T) {
	e := newTestEngine(t, Options{})
	e.SyncZones([]gesture.ZoneConfig{testZone()})
	e.step(t0, nil, hands(detector.PointingHand(0.5, 0.5)))

	e.SetEnabled(false)
	if e.Enabled() {
		t.Fatal("expected disabled")
	}
	e.step(t0.Add(tick), nil, hands(detector.PointingHand(0.5, 0.5)))

	st := e.State()
	if st.Enabled || st.Tracking {
		t.Errorf("expected no tracking while disabled, got %+v", st)
	}
	if st.Zones[0].Inside {
		t.Error("zones should see no pointer while disabled")
	}
}

func TestEngine_Frame(t *testing.T) {
	e := newTestEngine(t, Options{})
	e.SyncZones([]gesture.ZoneConfig{testZone()})
	e.step(t0, nil, nil)

	frame := e.Frame()
	if w, h := e.CanvasSize(); frame.Bounds().Dx() != w || frame.Bounds().Dy() != h {
		t.Fatalf("frame size %v", frame.Bounds())
	}
	if got := frame.RGBAAt(200, 90); got.R < 200 || got.G != 0 {
		t.Errorf("zone outline pixel = %v, want red", got)
	}

	// Frame returns a copy.
	frame.SetRGBA(200, 90, color.RGBA{})
	if got := e.Frame().RGBAAt(200, 90); got.R < 200 {
		t.Error("Frame() exposed the engine's buffer")
	}

	dst := e.Frame()
	if !e.CopyFrame(dst) {
		t.Error("CopyFrame() rejected a matching buffer")
	}
}

func TestEngine_Overlay(t *testing.T) {
	e := newTestEngine(t, Options{})

	if err := e.SetOverlay(Overlay{ShowMesh: true, MeshCols: 1, MeshRows: 4}); err == nil {
		t.Error("expected error for a degenerate mesh")
	}
	if err := e.SetOverlay(Overlay{Selected: "z1", ShowMesh: true, MeshCols: 3, MeshRows: 3}); err != nil {
		t.Fatalf("SetOverlay() error = %v", err)
	}
	e.step(t0, nil, nil)

	if e.scene.Mesh == nil || e.scene.Selected != "z1" {
		t.Errorf("overlay not applied: mesh=%v selected=%q", e.scene.Mesh, e.scene.Selected)
	}
	if e.Overlay().MeshCols != 3 {
		t.Error("overlay not retained")
	}
}

func TestEngine_LoadsStoredLayout(t *testing.T) {
	s, err := store.New(t.TempDir() + "/gyre.db")
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	z := testZone()
	if err := s.Zones().Create(&z); err != nil {
		t.Fatal(err)
	}
	rot := 180
	if err := s.Settings().SaveLayout(store.Settings{RotationDeg: &rot}); err != nil {
		t.Fatal(err)
	}

	e := newTestEngine(t, Options{Store: s})
	e.step(t0, nil, nil)

	if len(e.State().Zones) != 1 {
		t.Fatal("expected stored zone loaded")
	}
	if e.scene.Transform.RotationDeg != 180 {
		t.Errorf("rotation = %d, want 180", e.scene.Transform.RotationDeg)
	}

	z2 := gesture.ZoneConfig{Center: geom.Point{X: 50, Y: 50}, Radius: 20}
	if err := s.Zones().Create(&z2); err != nil {
		t.Fatal(err)
	}
	if err := e.ReloadZones(); err != nil {
		t.Fatal(err)
	}
	e.step(t0.Add(tick), nil, nil)
	if len(e.State().Zones) != 2 {
		t.Error("expected reload to pick up the new zone")
	}
}

func TestEngine_RecentEventsBounded(t *testing.T) {
	e := newTestEngine(t, Options{})
	for i := 0; i < RecentEvents+10; i++ {
		e.publish(State{}, []gesture.Event{{Kind: gesture.EventActivate, ZoneID: "z"}})
	}
	if n := len(e.State().Events); n != RecentEvents {
		t.Errorf("expected %d recent events, got %d", RecentEvents, n)
	}
}
