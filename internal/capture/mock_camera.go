package capture

import (
	"errors"
	"sync"

	"gocv.io/x/gocv"
)

// ErrNoFrames is returned by MockCamera once its playback list is used up.
var ErrNoFrames = errors.New("mock camera has no frames left")

var (
	_ Camera = (*Device)(nil)
	_ Camera = (*MockCamera)(nil)
)

// MockCamera replays a fixed list of frames. Open can be made to fail a
// number of times with SetOpenErrors.
type MockCamera struct {
	mu     sync.Mutex
	frames []*gocv.Mat
	next   int
	loop   bool
	open   bool
	fps    int

	pendingOpenErrs []error
	opens, closes   int
}

// NewMockCamera replays frames in order, wrapping around when loop is set.
func NewMockCamera(frames []*gocv.Mat, loop bool) *MockCamera {
	return &MockCamera{frames: frames, loop: loop, fps: DefaultFPS}
}

// SetOpenErrors makes the next len(errs) Open calls fail in order.
func (c *MockCamera) SetOpenErrors(errs ...error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pendingOpenErrs = append([]error(nil), errs...)
}

func (c *MockCamera) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.opens++
	if n := len(c.pendingOpenErrs); n > 0 {
		err := c.pendingOpenErrs[0]
		c.pendingOpenErrs = c.pendingOpenErrs[1:]
		return err
	}
	c.open, c.next = true, 0
	return nil
}

func (c *MockCamera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closes++
	c.open = false
	return nil
}

// Grab returns a clone of the next frame.
func (c *MockCamera) Grab() (*gocv.Mat, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case !c.open:
		return nil, ErrCameraNotOpen
	case len(c.frames) == 0:
		return nil, ErrNoFrames
	case c.next >= len(c.frames) && !c.loop:
		return nil, ErrNoFrames
	case c.next >= len(c.frames):
		c.next = 0
	}

	mat := c.frames[c.next].Clone()
	c.next++
	return &mat, nil
}

func (c *MockCamera) SetFPS(fps int) {
	if fps <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fps = fps
}

func (c *MockCamera) FPS() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fps
}

func (c *MockCamera) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

// OpenCalls counts Open calls, failed ones included.
func (c *MockCamera) OpenCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opens
}

func (c *MockCamera) CloseCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closes
}

// SetFrames swaps the playback list and rewinds.
func (c *MockCamera) SetFrames(frames []*gocv.Mat) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames, c.next = frames, 0
}
