package detector

import (
	"context"
	"image"
	"sync"
)

// MockEstimator is a test implementation of the Estimator interface.
// By default Send delivers the configured hands through the result callback
// before returning. With SetManual(true) results are held until Complete.
type MockEstimator struct {
	mu       sync.Mutex
	hands    []Hand
	err      error
	sendErr  error
	initErr  error
	manual   bool
	pending  int
	sent     []image.Image
	onResult ResultFunc
	closed   bool
}

// NewMockEstimator creates a new MockEstimator instance.
func NewMockEstimator() *MockEstimator {
	return &MockEstimator{}
}

// SetHands sets the hands that will be delivered for each frame.
func (m *MockEstimator) SetHands(hands []Hand) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hands = hands
}

// SetError sets the error delivered with each result.
func (m *MockEstimator) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// SetSendError makes Send fail without delivering a result.
func (m *MockEstimator) SetSendError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sendErr = err
}

// SetInitError makes Init fail.
func (m *MockEstimator) SetInitError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.initErr = err
}

// SetManual switches between immediate and manual result delivery.
func (m *MockEstimator) SetManual(manual bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.manual = manual
}

// Init returns the configured init error.
func (m *MockEstimator) Init(ctx context.Context, opts Options) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.initErr
}

// OnResult registers the result callback.
func (m *MockEstimator) OnResult(fn ResultFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onResult = fn
}

// Send records the frame and delivers (or queues) a result.
func (m *MockEstimator) Send(frame image.Image) error {
	m.mu.Lock()
	if m.sendErr != nil {
		err := m.sendErr
		m.mu.Unlock()
		return err
	}
	m.sent = append(m.sent, frame)
	if m.manual {
		m.pending++
		m.mu.Unlock()
		return nil
	}
	fn, hands, err := m.onResult, m.hands, m.err
	m.mu.Unlock()

	if fn != nil {
		fn(hands, err)
	}
	return nil
}

// Complete delivers one queued result. It returns false if nothing is pending.
func (m *MockEstimator) Complete() bool {
	m.mu.Lock()
	if m.pending == 0 {
		m.mu.Unlock()
		return false
	}
	m.pending--
	fn, hands, err := m.onResult, m.hands, m.err
	m.mu.Unlock()

	if fn != nil {
		fn(hands, err)
	}
	return true
}

// Sent returns the number of frames submitted so far.
func (m *MockEstimator) Sent() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

// LastFrame returns the most recently submitted frame.
func (m *MockEstimator) LastFrame() image.Image {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return nil
	}
	return m.sent[len(m.sent)-1]
}

// Close marks the estimator closed.
func (m *MockEstimator) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Closed reports whether Close was called.
func (m *MockEstimator) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// PointingHand returns a right hand with the index finger extended and its
// tip at (x, y) in normalized tracking space.
func PointingHand(x, y float64) Hand {
	hand := Hand{
		Landmarks:  make([]Point3D, NumLandmarks),
		Handedness: "Right",
		Score:      0.95,
	}

	// Offsets relative to the index tip, index finger pointing up.
	offsets := [NumLandmarks][2]float64{
		Wrist:     {0.02, 0.30},
		ThumbCMC:  {0.06, 0.26},
		ThumbMCP:  {0.09, 0.21},
		ThumbIP:   {0.08, 0.17},
		ThumbTip:  {0.05, 0.16},
		IndexMCP:  {0.00, 0.18},
		IndexPIP:  {0.00, 0.11},
		IndexDIP:  {0.00, 0.05},
		IndexTip:  {0.00, 0.00},
		MiddleMCP: {-0.03, 0.18},
		MiddlePIP: {-0.03, 0.21},
		MiddleDIP: {-0.02, 0.23},
		MiddleTip: {-0.01, 0.22},
		RingMCP:   {-0.06, 0.19},
		RingPIP:   {-0.06, 0.22},
		RingDIP:   {-0.05, 0.24},
		RingTip:   {-0.04, 0.23},
		PinkyMCP:  {-0.08, 0.21},
		PinkyPIP:  {-0.08, 0.24},
		PinkyDIP:  {-0.07, 0.25},
		PinkyTip:  {-0.06, 0.25},
	}

	for i, o := range offsets {
		hand.Landmarks[i] = Point3D{X: x + o[0], Y: y + o[1]}
	}
	return hand
}

// WithDepth returns a copy of h with every landmark reporting depthMM.
func WithDepth(h Hand, depthMM float64) Hand {
	out := h
	out.Landmarks = make([]Point3D, len(h.Landmarks))
	for i, l := range h.Landmarks {
		l.DepthMM = depthMM
		out.Landmarks[i] = l
	}
	return out
}
