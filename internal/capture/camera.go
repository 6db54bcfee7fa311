// Package capture provides camera acquisition using GoCV (OpenCV), with
// retry on busy devices and a background reader that keeps the latest frame.
package capture

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"gocv.io/x/gocv"
)

// Requested capture parameters when the caller gives none.
const (
	DefaultFPS    = 30
	DefaultWidth  = 1280
	DefaultHeight = 720
)

var (
	ErrCameraNotOpen    = errors.New("camera is not open")
	ErrDeviceBusy       = errors.New("camera device busy")
	ErrPermissionDenied = errors.New("camera permission denied")
	ErrGrabFailed       = errors.New("camera grab failed")
	ErrEmptyFrame       = errors.New("camera returned an empty frame")
)

// Camera is a frame producer the Source can drive.
type Camera interface {
	Open() error
	Close() error
	// Grab returns the next frame. The caller owns the Mat.
	Grab() (*gocv.Mat, error)
	SetFPS(fps int)
	FPS() int
	IsOpen() bool
}

// Device is a local webcam opened by index.
type Device struct {
	index int
	reqW  int
	reqH  int

	mu   sync.Mutex
	vc   *gocv.VideoCapture
	fps  int
	gotW int
	gotH int
}

// NewCamera returns a Device for the given index asking for width x height.
// Non-positive sizes fall back to DefaultWidth x DefaultHeight.
func NewCamera(index, width, height int) *Device {
	if width <= 0 || height <= 0 {
		width, height = DefaultWidth, DefaultHeight
	}
	return &Device{index: index, reqW: width, reqH: height, fps: DefaultFPS}
}

// Open starts the device. Driver failures are mapped onto ErrDeviceBusy or
// ErrPermissionDenied when the message says so.
func (d *Device) Open() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.vc != nil {
		return nil
	}

	vc, err := gocv.OpenVideoCapture(d.index)
	if err != nil {
		return classifyOpenError(d.index, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return fmt.Errorf("open camera %d: %w", d.index, ErrDeviceBusy)
	}

	vc.Set(gocv.VideoCaptureFrameWidth, float64(d.reqW))
	vc.Set(gocv.VideoCaptureFrameHeight, float64(d.reqH))
	vc.Set(gocv.VideoCaptureFPS, float64(d.fps))

	// Drivers pick the closest mode they support.
	d.gotW = int(vc.Get(gocv.VideoCaptureFrameWidth))
	d.gotH = int(vc.Get(gocv.VideoCaptureFrameHeight))
	d.vc = vc
	return nil
}

func classifyOpenError(index int, err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "permission"), strings.Contains(msg, "not authorized"), strings.Contains(msg, "denied"):
		return fmt.Errorf("open camera %d: %w: %v", index, ErrPermissionDenied, err)
	case strings.Contains(msg, "busy"), strings.Contains(msg, "in use"), strings.Contains(msg, "can't open"):
		return fmt.Errorf("open camera %d: %w: %v", index, ErrDeviceBusy, err)
	}
	return fmt.Errorf("open camera %d: %w", index, err)
}

// Close releases the device. Closing a closed Device is a no-op.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.vc == nil {
		return nil
	}
	err := d.vc.Close()
	d.vc = nil
	d.gotW, d.gotH = 0, 0
	return err
}

func (d *Device) Grab() (*gocv.Mat, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.vc == nil {
		return nil, ErrCameraNotOpen
	}

	mat := gocv.NewMat()
	if !d.vc.Read(&mat) {
		mat.Close()
		return nil, fmt.Errorf("camera %d: %w", d.index, ErrGrabFailed)
	}
	if mat.Empty() {
		mat.Close()
		return nil, fmt.Errorf("camera %d: %w", d.index, ErrEmptyFrame)
	}
	return &mat, nil
}

// SetFPS changes the requested rate. Non-positive values are ignored.
func (d *Device) SetFPS(fps int) {
	if fps <= 0 {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	d.fps = fps
	if d.vc != nil {
		d.vc.Set(gocv.VideoCaptureFPS, float64(fps))
	}
}

func (d *Device) FPS() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.fps
}

func (d *Device) IsOpen() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.vc != nil
}

// Resolution reports the frame size the driver settled on, or the requested
// size while the device is closed.
func (d *Device) Resolution() (width, height int) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.vc == nil || d.gotW <= 0 || d.gotH <= 0 {
		return d.reqW, d.reqH
	}
	return d.gotW, d.gotH
}
