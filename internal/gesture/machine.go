package gesture

import (
	"math"
	"time"

	"github.com/ayusman/gyre/internal/geom"
)

// EventKind names a zone transition.
type EventKind string

const (
	EventActivate   EventKind = "activate"
	EventDeactivate EventKind = "deactivate"
)

// Event reports a zone activation edge.
type Event struct {
	Kind   EventKind `json:"kind"`
	ZoneID string    `json:"zone_id"`
	At     time.Time `json:"at"`
}

// Step advances one zone by one tick. pointer is the fingertip in canvas
// pixels, or nil when nothing is tracked. It returns the activation edge
// produced by this tick, if any.
func Step(r *Runtime, pointer *geom.Point, now time.Time, p Params) (Event, bool) {
	if pointer == nil {
		stepLost(r, now, p)
	} else {
		stepTracked(r, *pointer, now, p)
	}

	if r.Active {
		r.Spin = math.Mod(r.Spin+p.SpinPerTick, 360)
	}
	r.wasInside = r.Inside

	return edge(r, now)
}

func stepLost(r *Runtime, now time.Time, p Params) {
	if fresh(r, now, p) {
		r.Active = r.Accum >= p.ActivationDeg
		return
	}
	reset(r)
}

func stepTracked(r *Runtime, pt geom.Point, now time.Time, p Params) {
	c := r.Config
	dist := geom.Distance(pt, c.Center)

	visual := dist <= c.Radius || (r.Inside && dist <= c.Radius+p.Margin(c.Radius))

	r.DepthBlock = false
	if visual && p.DepthGate && pt.HasDepth() && pt.Depth >= p.DepthThresholdMM {
		visual = false
		r.DepthBlock = true
	}

	inside := visual
	if visual {
		r.Grace = p.GraceFrames
	} else if p.Mode == ModeLocal && r.Inside && r.Grace > 0 {
		r.Grace--
		inside = true
	}

	if !inside {
		reset(r)
		r.Grace = 0
		return
	}

	if !r.wasInside {
		r.hasAngle = false
	}
	r.Inside = true

	angle := geom.AngleDeg(c.Center, pt)
	if !r.hasAngle {
		r.lastAngle = angle
		r.hasAngle = true
	} else if diff := geom.AngleDiff(r.lastAngle, angle); math.Abs(diff) >= p.MinStepDeg {
		if diff > 0 {
			r.Accum += diff
			r.LastCW = now
		} else {
			r.Accum = math.Max(0, r.Accum-math.Abs(diff)*p.CounterDecay)
		}
		r.lastAngle = angle
	}

	// Progress does not survive a stalled gesture.
	if r.Accum > 0 && !fresh(r, now, p) {
		r.Accum = 0
	}

	r.Active = r.Accum >= p.ActivationDeg && fresh(r, now, p)
}

// fresh reports whether the last clockwise increment is within the
// freshness window.
func fresh(r *Runtime, now time.Time, p Params) bool {
	return !r.LastCW.IsZero() && now.Sub(r.LastCW) <= p.Freshness
}

func reset(r *Runtime) {
	r.Inside = false
	r.Active = false
	r.Accum = 0
	r.hasAngle = false
}

// edge fires media and reports an event when the activation flag changed.
func edge(r *Runtime, now time.Time) (Event, bool) {
	if r.Active == r.wasActive {
		return Event{}, false
	}
	r.wasActive = r.Active

	if r.Active {
		if r.Audio != nil {
			r.mediaErr = r.Audio.Resume(r.resumeAt)
		}
		if r.Animation != nil {
			r.Animation.Resume(now)
		}
		return Event{Kind: EventActivate, ZoneID: r.Config.ID, At: now}, true
	}

	pauseMedia(r, now)
	return Event{Kind: EventDeactivate, ZoneID: r.Config.ID, At: now}, true
}

func pauseMedia(r *Runtime, now time.Time) {
	if r.Audio != nil {
		r.resumeAt = r.Audio.Pause()
	}
	if r.Animation != nil {
		r.Animation.Pause(now)
	}
}
