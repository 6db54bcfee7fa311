package media

import (
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"sync"
	"time"
)

// DefaultPlayer is the command used to play audio files.
const DefaultPlayer = "ffplay"

// ProcessAudio plays an audio file through an external player process
// (ffplay by default). Pausing stops the process and remembers how far
// playback got, so the next Resume seeks back to the same spot.
type ProcessAudio struct {
	path   string
	volume float64
	player string
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	cmd     *exec.Cmd
	done    chan struct{}
	offset  time.Duration
	started time.Time
}

// NewProcessAudio creates an audio track for path. Volume is 0-1.
func NewProcessAudio(path string, volume float64, player string, logger *slog.Logger) *ProcessAudio {
	if player == "" {
		player = DefaultPlayer
	}
	if logger == nil {
		logger = slog.Default()
	}
	if volume < 0 {
		volume = 0
	}
	if volume > 1 {
		volume = 1
	}
	return &ProcessAudio{
		path:   path,
		volume: volume,
		player: player,
		logger: logger.With("component", "media.audio", "path", path),
		now:    time.Now,
	}
}

// Resume starts the player at offset.
func (a *ProcessAudio) Resume(offset time.Duration) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.cmd != nil {
		return nil
	}

	cmd := exec.Command(a.player,
		"-nodisp", "-autoexit", "-loglevel", "quiet",
		"-ss", strconv.FormatFloat(offset.Seconds(), 'f', 3, 64),
		"-volume", strconv.Itoa(int(a.volume*100)),
		a.path,
	)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", a.player, err)
	}

	done := make(chan struct{})
	a.cmd = cmd
	a.done = done
	a.offset = offset
	a.started = a.now()

	go func() {
		err := cmd.Wait()
		close(done)

		a.mu.Lock()
		defer a.mu.Unlock()
		if a.cmd == cmd {
			// Track ran to the end; start over next time.
			a.cmd = nil
			a.offset = 0
			a.logger.Debug("audio finished", "error", err)
		}
	}()

	return nil
}

// Pause stops the player and returns the playback position.
func (a *ProcessAudio) Pause() time.Duration {
	a.mu.Lock()
	cmd, done := a.cmd, a.done
	if cmd == nil {
		offset := a.offset
		a.mu.Unlock()
		return offset
	}
	a.cmd = nil
	a.offset += a.now().Sub(a.started)
	offset := a.offset
	a.mu.Unlock()

	if cmd.Process != nil {
		cmd.Process.Kill()
	}
	<-done
	return offset
}

// Playing reports whether the player process is running.
func (a *ProcessAudio) Playing() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cmd != nil
}

// Close stops playback.
func (a *ProcessAudio) Close() error {
	a.Pause()
	return nil
}
