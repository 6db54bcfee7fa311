// Package geom provides the coordinate math shared by tracking, gesture
// recognition and rendering: points, angles and the display transform.
package geom

import "math"

// Point is a position in some coordinate space (normalized 0-1 or pixels).
// Depth is the measured distance to the camera in millimetres; 0 means unknown.
type Point struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Depth float64 `json:"depth,omitempty"`
}

// HasDepth reports whether the point carries a depth measurement.
func (p Point) HasDepth() bool {
	return p.Depth > 0
}

// Scale returns the point with X and Y multiplied by sx and sy.
// Depth is carried over unchanged.
func (p Point) Scale(sx, sy float64) Point {
	return Point{X: p.X * sx, Y: p.Y * sy, Depth: p.Depth}
}

// Distance returns the Euclidean distance between a and b in the XY plane.
func Distance(a, b Point) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

// AngleDeg returns the angle of p around center in degrees, in (-180, 180].
// With Y growing downwards, increasing angles are clockwise on screen.
func AngleDeg(center, p Point) float64 {
	return math.Atan2(p.Y-center.Y, p.X-center.X) * 180 / math.Pi
}

// AngleDiff returns the signed shortest rotation from a to b in degrees.
// The result is always in (-180, 180].
func AngleDiff(a, b float64) float64 {
	d := math.Mod(b-a, 360)
	if d <= -180 {
		d += 360
	} else if d > 180 {
		d -= 360
	}
	return d
}
