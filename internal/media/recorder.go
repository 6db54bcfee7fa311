package media

import (
	"image"
	"sync"
	"time"
)

// Recorder is a test implementation of Audio and Animation that counts
// transitions and simulates playback position.
type Recorder struct {
	mu       sync.Mutex
	playing  bool
	offset   time.Duration
	advance  time.Duration
	resumes  int
	pauses   int
	closed   bool
	lastSeek time.Duration
	frame    image.Image
}

// NewRecorder creates a Recorder. Each pause advances the stored offset
// by advance, standing in for elapsed playback.
func NewRecorder(advance time.Duration) *Recorder {
	return &Recorder{advance: advance}
}

// Resume implements Audio.
func (r *Recorder) Resume(offset time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.playing {
		return nil
	}
	r.playing = true
	r.resumes++
	r.lastSeek = offset
	r.offset = offset
	return nil
}

// Pause implements Audio.
func (r *Recorder) Pause() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.playing {
		r.playing = false
		r.pauses++
		r.offset += r.advance
	}
	return r.offset
}

// Close implements Audio.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.playing = false
	r.closed = true
	return nil
}

// RecorderAnimation adapts a Recorder to the Animation interface.
type RecorderAnimation struct {
	*Recorder
}

// Resume implements Animation.
func (r RecorderAnimation) Resume(now time.Time) {
	r.Recorder.Resume(0)
}

// Pause implements Animation.
func (r RecorderAnimation) Pause(now time.Time) {
	r.Recorder.Pause()
}

// Frame implements Animation.
func (r RecorderAnimation) Frame(now time.Time) image.Image {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frame
}

// SetFrame sets the image returned by Frame.
func (r *Recorder) SetFrame(img image.Image) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frame = img
}

// Playing reports whether the recorder is playing.
func (r *Recorder) Playing() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.playing
}

// Resumes returns how many times playback started.
func (r *Recorder) Resumes() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resumes
}

// Pauses returns how many times playback stopped.
func (r *Recorder) Pauses() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pauses
}

// LastSeek returns the offset passed to the latest Resume.
func (r *Recorder) LastSeek() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastSeek
}

// Closed reports whether Close was called.
func (r *Recorder) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}
