package media

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// Loader resolves media references relative to a base directory and caches
// decoded clips by path.
type Loader struct {
	baseDir string
	player  string
	logger  *slog.Logger

	mu    sync.Mutex
	clips map[string]*Clip
}

// NewLoader creates a Loader rooted at baseDir.
func NewLoader(baseDir, player string, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		baseDir: baseDir,
		player:  player,
		logger:  logger.With("component", "media.loader"),
		clips:   make(map[string]*Clip),
	}
}

// Resolve returns the absolute path of ref.
func (l *Loader) Resolve(ref string) string {
	if ref == "" || filepath.IsAbs(ref) || l.baseDir == "" {
		return ref
	}
	return filepath.Join(l.baseDir, ref)
}

// Audio returns a track for ref, or nil when ref is empty.
func (l *Loader) Audio(ref string, volume float64) (Audio, error) {
	if ref == "" {
		return nil, nil
	}
	path := l.Resolve(ref)
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("audio %s: %w", ref, err)
	}
	return NewProcessAudio(path, volume, l.player, l.logger), nil
}

// Animation returns a fresh clip for ref, or nil when ref is empty.
// Decoded frames are shared between clips of the same file; playback
// position is not.
func (l *Loader) Animation(ref string) (Animation, error) {
	if ref == "" {
		return nil, nil
	}
	path := l.Resolve(ref)

	l.mu.Lock()
	base, ok := l.clips[path]
	l.mu.Unlock()

	if !ok {
		var err error
		base, err = LoadClip(path)
		if err != nil {
			return nil, err
		}
		l.mu.Lock()
		l.clips[path] = base
		l.mu.Unlock()
		l.logger.Debug("clip loaded", "path", path, "frames", base.Len())
	}

	return &Clip{frames: base.frames, delays: base.delays, total: base.total}, nil
}

// Image returns the clip for ref as a concrete type, for backgrounds.
func (l *Loader) Image(ref string) (*Clip, error) {
	anim, err := l.Animation(ref)
	if err != nil || anim == nil {
		return nil, err
	}
	return anim.(*Clip), nil
}
