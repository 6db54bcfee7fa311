// Package tracking turns raw hand detections from the local estimator or the
// remote bridge into a smoothed pointer in display space.
package tracking

import "github.com/ayusman/gyre/internal/geom"

// Default smoothing factors.
const (
	// LandmarkAlpha smooths the full landmark set.
	LandmarkAlpha = 0.35
	// PointerAlpha smooths the fingertip on top of the landmark smoothing.
	PointerAlpha = 0.5
)

// Smoother is an exponential moving average over point samples:
// smoothed = prev*(1-Alpha) + curr*Alpha. Depth is never smoothed.
type Smoother struct {
	Alpha float64
}

// NewSmoother creates a Smoother with the given factor, clamped to (0, 1].
func NewSmoother(alpha float64) Smoother {
	if alpha <= 0 || alpha > 1 {
		alpha = 1
	}
	return Smoother{Alpha: alpha}
}

// Smooth blends curr into prev element-wise. When prev is empty or its
// length differs from curr, curr is returned unchanged.
func (s Smoother) Smooth(prev, curr []geom.Point) []geom.Point {
	if len(prev) == 0 || len(prev) != len(curr) {
		return curr
	}
	out := make([]geom.Point, len(curr))
	for i := range curr {
		out[i] = s.blend(prev[i], curr[i])
	}
	return out
}

// SmoothPoint blends a single sample. A nil prev passes curr through.
func (s Smoother) SmoothPoint(prev *geom.Point, curr geom.Point) geom.Point {
	if prev == nil {
		return curr
	}
	return s.blend(*prev, curr)
}

func (s Smoother) blend(prev, curr geom.Point) geom.Point {
	return geom.Point{
		X:     prev.X*(1-s.Alpha) + curr.X*s.Alpha,
		Y:     prev.Y*(1-s.Alpha) + curr.Y*s.Alpha,
		Depth: curr.Depth,
	}
}
