// Package display shows the composited scene in a projector window. The
// window's update loop drives the engine tick, so rendering follows the
// display refresh rate.
package display

import (
	"context"
	"image"
	"log/slog"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
)

// Engine is the part of the engine the window drives.
type Engine interface {
	Tick(now time.Time)
	CopyFrame(dst *image.RGBA) bool
	CanvasSize() (int, int)
}

// Config controls the projector window.
type Config struct {
	Title      string
	FPS        int
	Fullscreen bool
}

// Window is an ebiten game wrapping the engine.
type Window struct {
	engine Engine
	cfg    Config
	logger *slog.Logger

	ctx        context.Context
	frame      *image.RGBA
	fullscreen bool

	// Swapped in tests.
	justPressed   func(ebiten.Key) bool
	setFullscreen func(bool)
	now           func() time.Time
}

// New creates a projector window for e.
func New(e Engine, cfg Config, logger *slog.Logger) *Window {
	if cfg.Title == "" {
		cfg.Title = "Gyre"
	}
	if cfg.FPS <= 0 {
		cfg.FPS = 60
	}
	if logger == nil {
		logger = slog.Default()
	}
	w, h := e.CanvasSize()
	return &Window{
		engine:        e,
		cfg:           cfg,
		logger:        logger.With("component", "display"),
		ctx:           context.Background(),
		frame:         image.NewRGBA(image.Rect(0, 0, w, h)),
		justPressed:   inpututil.IsKeyJustPressed,
		setFullscreen: ebiten.SetFullscreen,
		now:           time.Now,
	}
}

// Run opens the window and blocks until it is closed, Escape is pressed or
// ctx is cancelled. It must be called from the main goroutine.
func (w *Window) Run(ctx context.Context) error {
	w.ctx = ctx
	width, height := w.engine.CanvasSize()

	ebiten.SetWindowTitle(w.cfg.Title)
	ebiten.SetWindowSize(width, height)
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	ebiten.SetTPS(w.cfg.FPS)
	if w.cfg.Fullscreen {
		w.toggleFullscreen()
	}

	w.logger.Info("projector window open", "width", width, "height", height, "fps", w.cfg.FPS)
	err := ebiten.RunGame(w)
	w.logger.Info("projector window closed")
	return err
}

// Update advances the engine one tick and handles window keys.
func (w *Window) Update() error {
	if w.ctx.Err() != nil || w.justPressed(ebiten.KeyEscape) {
		return ebiten.Termination
	}
	if w.justPressed(ebiten.KeyF) || w.justPressed(ebiten.KeyF11) {
		w.toggleFullscreen()
	}

	w.engine.Tick(w.now())
	w.engine.CopyFrame(w.frame)
	return nil
}

// Draw uploads the latest composited frame.
func (w *Window) Draw(screen *ebiten.Image) {
	screen.WritePixels(w.frame.Pix)
}

// Layout keeps the logical screen at canvas size; ebiten scales it to the
// window.
func (w *Window) Layout(outsideWidth, outsideHeight int) (int, int) {
	return w.engine.CanvasSize()
}

// Fullscreen reports whether the window is fullscreen.
func (w *Window) Fullscreen() bool {
	return w.fullscreen
}

func (w *Window) toggleFullscreen() {
	w.fullscreen = !w.fullscreen
	w.setFullscreen(w.fullscreen)
	w.logger.Debug("fullscreen toggled", "fullscreen", w.fullscreen)
}
