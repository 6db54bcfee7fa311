// Package media holds the playable content attached to zones: an audio track
// that resumes from where it was paused and a looping animation or still.
package media

import (
	"errors"
	"image"
	"time"
)

// ErrUnsupportedFormat is returned when a media file cannot be decoded.
var ErrUnsupportedFormat = errors.New("unsupported media format")

// Audio is a pausable audio track.
type Audio interface {
	// Resume starts playback at offset. Resuming a playing track is a no-op.
	Resume(offset time.Duration) error
	// Pause stops playback and returns the offset to resume from later.
	Pause() time.Duration
	Close() error
}

// Animation is a looping sequence of frames. A still image is an animation
// with a single frame.
type Animation interface {
	Resume(now time.Time)
	Pause(now time.Time)
	// Frame returns the frame to show at now. It never changes state.
	Frame(now time.Time) image.Image
}
