package display

import (
	"context"
	"errors"
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
)

type fakeEngine struct {
	ticks []time.Time
	fill  color.RGBA
}

func (f *fakeEngine) Tick(now time.Time) { f.ticks = append(f.ticks, now) }

func (f *fakeEngine) CopyFrame(dst *image.RGBA) bool {
	for i := 0; i < len(dst.Pix); i += 4 {
		dst.Pix[i], dst.Pix[i+1], dst.Pix[i+2], dst.Pix[i+3] = f.fill.R, f.fill.G, f.fill.B, f.fill.A
	}
	return true
}

func (f *fakeEngine) CanvasSize() (int, int) { return 64, 36 }

func newTestWindow(e Engine, pressed ...ebiten.Key) (*Window, *[]bool) {
	w := New(e, Config{}, nil)
	keys := map[ebiten.Key]bool{}
	for _, k := range pressed {
		keys[k] = true
	}
	w.justPressed = func(k ebiten.Key) bool { return keys[k] }

	var calls []bool
	w.setFullscreen = func(on bool) { calls = append(calls, on) }
	w.now = func() time.Time { return time.Unix(100, 0) }
	return w, &calls
}

func TestNew_Defaults(t *testing.T) {
	w := New(&fakeEngine{}, Config{}, nil)
	if w.cfg.Title != "Gyre" || w.cfg.FPS != 60 {
		t.Errorf("config = %+v", w.cfg)
	}
	if b := w.frame.Bounds(); b.Dx() != 64 || b.Dy() != 36 {
		t.Errorf("frame bounds = %v, want canvas size", b)
	}
	if lw, lh := w.Layout(1920, 1080); lw != 64 || lh != 36 {
		t.Errorf("Layout() = %dx%d, want 64x36", lw, lh)
	}
}

func TestWindow_UpdateTicksEngine(t *testing.T) {
	e := &fakeEngine{fill: color.RGBA{R: 9, G: 8, B: 7, A: 255}}
	w, _ := newTestWindow(e)

	for i := 0; i < 3; i++ {
		if err := w.Update(); err != nil {
			t.Fatalf("Update() error = %v", err)
		}
	}
	if len(e.ticks) != 3 || !e.ticks[0].Equal(time.Unix(100, 0)) {
		t.Errorf("ticks = %v", e.ticks)
	}
	if got := w.frame.RGBAAt(10, 10); got != e.fill {
		t.Errorf("frame pixel = %v, want %v", got, e.fill)
	}
}

func TestWindow_Keys(t *testing.T) {
	tests := []struct {
		name       string
		keys       []ebiten.Key
		terminate  bool
		fullscreen bool
	}{
		{"none", nil, false, false},
		{"f toggles fullscreen", []ebiten.Key{ebiten.KeyF}, false, true},
		{"f11 toggles fullscreen", []ebiten.Key{ebiten.KeyF11}, false, true},
		{"escape quits", []ebiten.Key{ebiten.KeyEscape}, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := &fakeEngine{}
			w, calls := newTestWindow(e, tt.keys...)

			err := w.Update()
			if got := errors.Is(err, ebiten.Termination); got != tt.terminate {
				t.Errorf("terminated = %v, want %v", got, tt.terminate)
			}
			if w.Fullscreen() != tt.fullscreen {
				t.Errorf("fullscreen = %v, want %v", w.Fullscreen(), tt.fullscreen)
			}
			if tt.fullscreen && (len(*calls) != 1 || !(*calls)[0]) {
				t.Errorf("SetFullscreen calls = %v", *calls)
			}
			if tt.terminate && len(e.ticks) != 0 {
				t.Error("engine ticked after quit")
			}
		})
	}
}

func TestWindow_ToggleTwice(t *testing.T) {
	w, calls := newTestWindow(&fakeEngine{}, ebiten.KeyF)
	w.Update()
	w.Update()
	if w.Fullscreen() {
		t.Error("expected windowed after two toggles")
	}
	if len(*calls) != 2 || (*calls)[0] != true || (*calls)[1] != false {
		t.Errorf("SetFullscreen calls = %v", *calls)
	}
}

func TestWindow_ContextCancelled(t *testing.T) {
	e := &fakeEngine{}
	w, _ := newTestWindow(e)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w.ctx = ctx

	if err := w.Update(); !errors.Is(err, ebiten.Termination) {
		t.Errorf("Update() error = %v, want Termination", err)
	}
}
