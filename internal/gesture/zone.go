// Package gesture implements the per-zone interaction state machine: it
// decides when a pointer is inside a zone, accumulates clockwise rotation
// around the zone centre and activates the zone's media once a sustained
// quarter-turn has been made.
package gesture

import (
	"time"

	"github.com/ayusman/gyre/internal/geom"
	"github.com/ayusman/gyre/internal/media"
)

// ZoneConfig describes a circular zone. It is owned by the configuration
// layer and read-only to the engine.
type ZoneConfig struct {
	ID       string     `json:"id"`
	Center   geom.Point `json:"center"` // canvas pixels
	Radius   float64    `json:"radius"`
	Stroke   float64    `json:"stroke"`
	Color    string     `json:"color"`
	ImageRef string     `json:"image,omitempty"`
	AudioRef string     `json:"audio,omitempty"`
	Volume   float64    `json:"volume"`
}

// Mode selects which tracking source the state machine is tuned for.
type Mode int

const (
	// ModeLocal enables grace frames to ride out local detector dropouts.
	ModeLocal Mode = iota
	// ModeRemote relies on the bridge's own hold frames and skips grace.
	ModeRemote
)

// String returns the mode name.
func (m Mode) String() string {
	if m == ModeRemote {
		return "remote"
	}
	return "local"
}

// Params tunes the state machine.
type Params struct {
	Mode             Mode
	DepthGate        bool
	DepthThresholdMM float64

	GraceFrames   int
	MinStepDeg    float64
	ActivationDeg float64
	Freshness     time.Duration
	CounterDecay  float64
	SpinPerTick   float64
	MarginMin     float64
	MarginRatio   float64
}

// DefaultParams returns the standard tuning.
func DefaultParams() Params {
	return Params{
		Mode:             ModeLocal,
		DepthThresholdMM: 1200,
		GraceFrames:      10,
		MinStepDeg:       2,
		ActivationDeg:    90,
		Freshness:        2000 * time.Millisecond,
		CounterDecay:     0.5,
		SpinPerTick:      6,
		MarginMin:        8,
		MarginRatio:      0.18,
	}
}

// Margin returns the hysteresis band width for a zone of the given radius.
func (p Params) Margin(radius float64) float64 {
	m := radius * p.MarginRatio
	if m < p.MarginMin {
		return p.MarginMin
	}
	return m
}

// Runtime is the engine-owned state of one zone.
type Runtime struct {
	Config ZoneConfig

	Inside     bool
	wasInside  bool
	Grace      int
	lastAngle  float64
	hasAngle   bool
	Accum      float64
	LastCW     time.Time
	Active     bool
	wasActive  bool
	Spin       float64
	DepthBlock bool

	Audio     media.Audio
	Animation media.Animation
	resumeAt  time.Duration
	mediaErr  error
}

// Progress returns the charge toward activation in [0, 1].
func (r *Runtime) Progress(activationDeg float64) float64 {
	if activationDeg <= 0 {
		return 0
	}
	p := r.Accum / activationDeg
	if p > 1 {
		return 1
	}
	return p
}

// ResumeOffset returns where the zone's audio will resume from.
func (r *Runtime) ResumeOffset() time.Duration {
	return r.resumeAt
}

// View is a read-only copy of a runtime for rendering and reporting.
type View struct {
	Config     ZoneConfig `json:"config"`
	Inside     bool       `json:"inside"`
	Active     bool       `json:"active"`
	Accum      float64    `json:"accum"`
	Progress   float64    `json:"progress"`
	Spin       float64    `json:"spin"`
	Grace      int        `json:"grace"`
	DepthBlock bool       `json:"depth_block"`

	Animation media.Animation `json:"-"`
}
