package render

import (
	"image"
	"image/color"
	"math"

	"golang.org/x/image/draw"
	"golang.org/x/image/vector"
)

// circleSegments is the polygon resolution used for circles and arcs.
const circleSegments = 96

type pt struct{ x, y float64 }

type path []pt

// pen rasterises filled polygons into a scratch mask sized to each shape's
// bounding box and composites them onto the destination.
type pen struct {
	z    *vector.Rasterizer
	mask *image.Alpha
}

func newPen() *pen {
	return &pen{z: vector.NewRasterizer(1, 1)}
}

// fill paints the union of paths with c. Inner contours must wind opposite
// to their outer contour to cut holes.
func (p *pen) fill(dst draw.Image, c color.Color, paths ...path) {
	mask, bb, ok := p.rasterize(dst.Bounds(), paths)
	if !ok {
		return
	}
	draw.DrawMask(dst, bb, image.NewUniform(c), image.Point{}, mask, bb.Min, draw.Over)
}

// fillImage paints src (already in canvas coordinates) through the shape.
func (p *pen) fillImage(dst draw.Image, src image.Image, paths ...path) {
	mask, bb, ok := p.rasterize(dst.Bounds(), paths)
	if !ok {
		return
	}
	draw.DrawMask(dst, bb, src, bb.Min, mask, bb.Min, draw.Over)
}

func (p *pen) rasterize(clip image.Rectangle, paths []path) (*image.Alpha, image.Rectangle, bool) {
	bb, ok := boundsOf(paths)
	if !ok || !bb.Overlaps(clip) {
		return nil, image.Rectangle{}, false
	}

	if p.mask == nil || cap(p.mask.Pix) < bb.Dx()*bb.Dy() {
		p.mask = image.NewAlpha(bb)
	} else {
		p.mask.Pix = p.mask.Pix[:bb.Dx()*bb.Dy()]
		clear(p.mask.Pix)
		p.mask.Stride = bb.Dx()
		p.mask.Rect = bb
	}

	ox, oy := float64(bb.Min.X), float64(bb.Min.Y)
	p.z.Reset(bb.Dx(), bb.Dy())
	for _, sub := range paths {
		if len(sub) < 3 {
			continue
		}
		p.z.MoveTo(float32(sub[0].x-ox), float32(sub[0].y-oy))
		for _, q := range sub[1:] {
			p.z.LineTo(float32(q.x-ox), float32(q.y-oy))
		}
		p.z.ClosePath()
	}
	p.z.Draw(p.mask, bb, image.Opaque, image.Point{})
	return p.mask, bb, true
}

func boundsOf(paths []path) (image.Rectangle, bool) {
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	n := 0
	for _, sub := range paths {
		for _, q := range sub {
			minX, minY = math.Min(minX, q.x), math.Min(minY, q.y)
			maxX, maxY = math.Max(maxX, q.x), math.Max(maxY, q.y)
			n++
		}
	}
	if n < 3 {
		return image.Rectangle{}, false
	}
	bb := image.Rect(int(math.Floor(minX)), int(math.Floor(minY)), int(math.Ceil(maxX)), int(math.Ceil(maxY)))
	if bb.Empty() {
		return image.Rectangle{}, false
	}
	return bb, true
}

// circle returns a clockwise polygon around (cx, cy).
func circle(cx, cy, r float64) path {
	return arc(cx, cy, r, 0, 360)
}

// arc returns points along a circle from startDeg sweeping sweepDeg.
// Angles grow clockwise on screen.
func arc(cx, cy, r, startDeg, sweepDeg float64) path {
	n := int(math.Ceil(math.Abs(sweepDeg) / 360 * circleSegments))
	if n < 2 {
		n = 2
	}
	full := math.Abs(sweepDeg) >= 360
	count := n + 1
	if full {
		count = n
	}

	out := make(path, 0, count)
	for i := 0; i < count; i++ {
		a := (startDeg + sweepDeg*float64(i)/float64(n)) * math.Pi / 180
		out = append(out, pt{cx + r*math.Cos(a), cy + r*math.Sin(a)})
	}
	return out
}

func reversed(p path) path {
	out := make(path, len(p))
	for i, q := range p {
		out[len(p)-1-i] = q
	}
	return out
}

// ring is an annulus between r-width/2 and r+width/2.
func ring(cx, cy, r, width float64) []path {
	inner := r - width/2
	if inner <= 0 {
		return []path{circle(cx, cy, r+width/2)}
	}
	return []path{circle(cx, cy, r+width/2), reversed(circle(cx, cy, inner))}
}

// arcBand is a thick arc segment.
func arcBand(cx, cy, r, width, startDeg, sweepDeg float64) path {
	outer := arc(cx, cy, r+width/2, startDeg, sweepDeg)
	inner := arc(cx, cy, math.Max(0, r-width/2), startDeg, sweepDeg)
	return append(outer, reversed(inner)...)
}

// segment is a line of the given width from a to b.
func segment(a, b pt, width float64) path {
	dx, dy := b.x-a.x, b.y-a.y
	l := math.Hypot(dx, dy)
	if l == 0 {
		return nil
	}
	nx, ny := -dy/l*width/2, dx/l*width/2
	return path{
		{a.x + nx, a.y + ny},
		{b.x + nx, b.y + ny},
		{b.x - nx, b.y - ny},
		{a.x - nx, a.y - ny},
	}
}
