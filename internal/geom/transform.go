package geom

import (
	"math"

	"golang.org/x/image/math/f64"
)

// Transform maps the camera's native frame onto the rendered canvas.
//
// The composition order is fixed: cover-scale placement (with zoom), then
// rotation around the canvas centre, then horizontal mirror. Tracking points
// and the camera feed are both mapped through SourceToCanvas, so the overlay
// and the video cannot drift apart under any rotation/mirror combination.
type Transform struct {
	SourceW     int     // camera frame width in pixels
	SourceH     int     // camera frame height in pixels
	CanvasW     int     // canvas width in pixels
	CanvasH     int     // canvas height in pixels
	Zoom        float64 // extra zoom on top of cover scale; <= 0 means 1
	RotationDeg int     // 0, 90, 180 or 270
	Mirror      bool
}

// Valid reports whether both source and canvas sizes are known.
func (t Transform) Valid() bool {
	return t.SourceW > 0 && t.SourceH > 0 && t.CanvasW > 0 && t.CanvasH > 0
}

// CoverScale returns max(canvasW/sourceW, canvasH/sourceH) * zoom.
func (t Transform) CoverScale() float64 {
	if !t.Valid() {
		return 1
	}
	zoom := t.Zoom
	if zoom <= 0 {
		zoom = 1
	}
	sx := float64(t.CanvasW) / float64(t.SourceW)
	sy := float64(t.CanvasH) / float64(t.SourceH)
	return math.Max(sx, sy) * zoom
}

// SourceToCanvas returns the affine matrix taking source pixel coordinates
// to canvas pixel coordinates.
func (t Transform) SourceToCanvas() f64.Aff3 {
	if !t.Valid() {
		return identity
	}

	w := float64(t.CanvasW)
	h := float64(t.CanvasH)
	scale := t.CoverScale()
	drawW := float64(t.SourceW) * scale
	drawH := float64(t.SourceH) * scale

	cover := f64.Aff3{
		scale, 0, (w - drawW) / 2,
		0, scale, (h - drawH) / 2,
	}

	rad := float64(t.RotationDeg) * math.Pi / 180
	cos, sin := math.Cos(rad), math.Sin(rad)
	cx, cy := w/2, h/2
	rotate := f64.Aff3{
		cos, -sin, cx - cos*cx + sin*cy,
		sin, cos, cy - sin*cx - cos*cy,
	}

	m := compose(rotate, cover)
	if t.Mirror {
		mirror := f64.Aff3{
			-1, 0, w,
			0, 1, 0,
		}
		m = compose(mirror, m)
	}
	return m
}

// ToDisplay maps a normalized tracking-space point to normalized display space.
// Depth passes through unchanged.
func (t Transform) ToDisplay(p Point) Point {
	if !t.Valid() {
		return p
	}
	x, y := apply(t.SourceToCanvas(), p.X*float64(t.SourceW), p.Y*float64(t.SourceH))
	return Point{X: x / float64(t.CanvasW), Y: y / float64(t.CanvasH), Depth: p.Depth}
}

// ToTracking is the inverse of ToDisplay.
func (t Transform) ToTracking(p Point) Point {
	if !t.Valid() {
		return p
	}
	inv, ok := invert(t.SourceToCanvas())
	if !ok {
		return p
	}
	x, y := apply(inv, p.X*float64(t.CanvasW), p.Y*float64(t.CanvasH))
	return Point{X: x / float64(t.SourceW), Y: y / float64(t.SourceH), Depth: p.Depth}
}

// Visible reports whether a tracking-space point lands on the canvas once
// transformed. Points in the raw frame but cropped away by the cover/zoom
// placement are rejected.
func (t Transform) Visible(p Point) bool {
	d := t.ToDisplay(p)
	return InUnit(d)
}

// InUnit reports whether p lies within [0,1]x[0,1].
func InUnit(p Point) bool {
	return p.X >= 0 && p.X <= 1 && p.Y >= 0 && p.Y <= 1
}

// Rect is an axis-aligned rectangle in normalized coordinates.
type Rect struct {
	X, Y, W, H float64
}

// Full is the whole normalized frame.
var Full = Rect{X: 0, Y: 0, W: 1, H: 1}

// Unmap converts a point relative to r back to the enclosing frame.
func (r Rect) Unmap(p Point) Point {
	return Point{X: r.X + p.X*r.W, Y: r.Y + p.Y*r.H, Depth: p.Depth}
}

// VisibleSourceRect returns the part of the source frame that ends up on
// the canvas, in normalized source coordinates, clamped to the frame.
func (t Transform) VisibleSourceRect() Rect {
	if !t.Valid() {
		return Full
	}

	corners := []Point{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 0, Y: 1}, {X: 1, Y: 1}}
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, c := range corners {
		s := t.ToTracking(c)
		minX = math.Min(minX, s.X)
		minY = math.Min(minY, s.Y)
		maxX = math.Max(maxX, s.X)
		maxY = math.Max(maxY, s.Y)
	}

	minX, minY = clamp01(minX), clamp01(minY)
	maxX, maxY = clamp01(maxX), clamp01(maxY)
	if maxX <= minX || maxY <= minY {
		return Full
	}
	return Rect{X: minX, Y: minY, W: maxX - minX, H: maxY - minY}
}

var identity = f64.Aff3{1, 0, 0, 0, 1, 0}

// compose returns the matrix applying b first, then a.
func compose(a, b f64.Aff3) f64.Aff3 {
	return f64.Aff3{
		a[0]*b[0] + a[1]*b[3], a[0]*b[1] + a[1]*b[4], a[0]*b[2] + a[1]*b[5] + a[2],
		a[3]*b[0] + a[4]*b[3], a[3]*b[1] + a[4]*b[4], a[3]*b[2] + a[4]*b[5] + a[5],
	}
}

func apply(m f64.Aff3, x, y float64) (float64, float64) {
	return m[0]*x + m[1]*y + m[2], m[3]*x + m[4]*y + m[5]
}

func invert(m f64.Aff3) (f64.Aff3, bool) {
	det := m[0]*m[4] - m[1]*m[3]
	if math.Abs(det) < 1e-12 {
		return identity, false
	}
	return f64.Aff3{
		m[4] / det, -m[1] / det, (m[1]*m[5] - m[2]*m[4]) / det,
		-m[3] / det, m[0] / det, (m[2]*m[3] - m[0]*m[5]) / det,
	}, true
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
