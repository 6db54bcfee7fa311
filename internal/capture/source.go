package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"
)

// Retry defaults for opening a device.
const (
	DefaultMaxAttempts = 5
	DefaultBaseDelay   = 500 * time.Millisecond
	DefaultMaxDelay    = 8 * time.Second

	// readFailureLimit consecutive read errors make the source reopen the device.
	readFailureLimit = 30
)

// StatusFunc receives human-readable acquisition status lines.
type StatusFunc func(status string)

// SourceConfig configures a Source.
type SourceConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	FPS         int
}

// DefaultSourceConfig returns the standard retry policy.
func DefaultSourceConfig() SourceConfig {
	return SourceConfig{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultBaseDelay,
		MaxDelay:    DefaultMaxDelay,
		FPS:         DefaultFPS,
	}
}

// Source acquires a Camera in the background and keeps its most recent
// frame. Readers never block on the device: Latest returns whatever frame
// arrived last, or nil while the camera is still coming up.
type Source struct {
	cam    Camera
	cfg    SourceConfig
	logger *slog.Logger
	status StatusFunc

	mu       sync.RWMutex
	frame    image.Image
	frameAt  time.Time
	lastStat string
	frames   uint64

	cancel context.CancelFunc
	done   chan struct{}
}

// NewSource creates a Source for cam. status may be nil.
func NewSource(cam Camera, cfg SourceConfig, status StatusFunc, logger *slog.Logger) *Source {
	def := DefaultSourceConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = def.BaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = def.MaxDelay
	}
	if cfg.FPS <= 0 {
		cfg.FPS = def.FPS
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{
		cam:    cam,
		cfg:    cfg,
		logger: logger.With("component", "capture.source"),
		status: status,
	}
}

// Start begins acquisition in the background. It returns immediately.
func (s *Source) Start(ctx context.Context) {
	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	done := s.done
	s.mu.Unlock()

	go func() {
		defer close(done)
		s.run(ctx)
	}()
}

// Close stops acquisition, cancels pending retries and releases the camera.
func (s *Source) Close() error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	return s.cam.Close()
}

// Latest returns the most recent frame and when it was captured.
func (s *Source) Latest() (image.Image, time.Time) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.frame, s.frameAt
}

// Status returns the last reported status line.
func (s *Source) Status() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastStat
}

// Frames returns how many frames have been captured.
func (s *Source) Frames() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.frames
}

func (s *Source) run(ctx context.Context) {
	for {
		if err := s.Acquire(ctx); err != nil {
			if !errors.Is(err, context.Canceled) {
				s.logger.Error("camera acquisition failed", "error", err)
			}
			return
		}

		s.readLoop(ctx)
		s.cam.Close()

		if ctx.Err() != nil {
			return
		}
		s.report("Camera lost, reconnecting")
	}
}

// Acquire opens the camera, retrying busy devices with exponential backoff
// up to MaxAttempts. Permission errors are not retried.
func (s *Source) Acquire(ctx context.Context) error {
	delay := s.cfg.BaseDelay

	for attempt := 1; ; attempt++ {
		err := s.cam.Open()
		if err == nil {
			s.cam.SetFPS(s.cfg.FPS)
			if r, ok := s.cam.(interface{ Resolution() (int, int) }); ok {
				w, h := r.Resolution()
				s.logger.Info("camera opened", "width", w, "height", h, "fps", s.cfg.FPS)
			}
			s.report("Camera ready")
			return nil
		}

		if errors.Is(err, ErrPermissionDenied) {
			s.report("Camera permission denied")
			return err
		}
		if attempt >= s.cfg.MaxAttempts {
			s.report(fmt.Sprintf("Camera unavailable after %d attempts", attempt))
			return fmt.Errorf("acquire camera: %w", err)
		}

		if errors.Is(err, ErrDeviceBusy) {
			s.report(fmt.Sprintf("Camera busy, retrying in %s (attempt %d/%d)", delay, attempt, s.cfg.MaxAttempts))
		} else {
			s.report(fmt.Sprintf("Camera error, retrying in %s (attempt %d/%d)", delay, attempt, s.cfg.MaxAttempts))
		}
		s.logger.Warn("camera open failed", "attempt", attempt, "delay", delay, "error", err)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay *= 2
		if delay > s.cfg.MaxDelay {
			delay = s.cfg.MaxDelay
		}
	}
}

func (s *Source) readLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Second / time.Duration(s.cfg.FPS))
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		mat, err := s.cam.Grab()
		if err != nil {
			failures++
			if failures >= readFailureLimit {
				s.logger.Warn("camera stopped delivering frames", "error", err)
				return
			}
			continue
		}
		failures = 0

		img, err := mat.ToImage()
		mat.Close()
		if err != nil {
			s.logger.Debug("frame conversion failed", "error", err)
			continue
		}

		s.mu.Lock()
		s.frame = img
		s.frameAt = time.Now()
		s.frames++
		s.mu.Unlock()
	}
}

func (s *Source) report(status string) {
	s.mu.Lock()
	changed := status != s.lastStat
	s.lastStat = status
	s.mu.Unlock()

	if changed && s.status != nil {
		s.status(status)
	}
}
