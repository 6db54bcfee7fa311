package render

import (
	"image"
	"image/color"
	"math"
	"time"

	"github.com/tanema/gween/ease"
	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"

	"github.com/ayusman/gyre/internal/detector"
	"github.com/ayusman/gyre/internal/geom"
	"github.com/ayusman/gyre/internal/gesture"
)

// Pointer indicator colours.
var (
	PointerColor        = color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
	PointerNearColor    = color.RGBA{R: 0x2e, G: 0xe5, B: 0x6b, A: 0xff} // depth below threshold
	PointerFarColor     = color.RGBA{R: 0xff, G: 0x3b, B: 0x3b, A: 0xff} // depth at or beyond threshold
	PointerNoDepthColor = color.RGBA{R: 0xff, G: 0xc1, B: 0x07, A: 0xff} // gate on, no depth sample
	SelectionColor      = color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
	SkeletonColor       = color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xb4}
	MeshColor           = color.RGBA{R: 0xff, G: 0x00, B: 0xc8, A: 0xff}
)

// Compositor draws scenes. It keeps scratch buffers between frames, so a
// Compositor must not be shared between goroutines.
type Compositor struct {
	PulsePeriod   time.Duration
	Pulse         ease.TweenFunc
	GlowWidth     float64
	PointerRadius float64

	pen *pen
}

// NewCompositor returns a compositor with the standard look.
func NewCompositor() *Compositor {
	return &Compositor{
		PulsePeriod:   1200 * time.Millisecond,
		Pulse:         ease.InOutSine,
		GlowWidth:     18,
		PointerRadius: 10,
		pen:           newPen(),
	}
}

// Draw renders s into dst. Layers are painted back to front: background,
// camera feed, zones, skeleton, pointer, mesh overlay.
func (c *Compositor) Draw(dst *image.RGBA, s Scene) {
	c.drawBackground(dst, s)
	c.drawFeed(dst, s)

	for i := range s.Zones {
		c.drawZone(dst, &s.Zones[i], s)
	}

	if s.Tracking != nil {
		if s.ShowSkeleton {
			c.drawSkeleton(dst, s)
		}
		c.drawPointer(dst, s)
	}

	if s.Mesh.valid() {
		c.drawMesh(dst, s.Mesh)
	}
}

func (c *Compositor) drawBackground(dst *image.RGBA, s Scene) {
	bg := s.Background
	if bg == nil {
		bg = color.Black
	}
	draw.Draw(dst, dst.Bounds(), image.NewUniform(bg), image.Point{}, draw.Src)

	if s.BackgroundImage != nil {
		draw.ApproxBiLinear.Scale(dst, dst.Bounds(), s.BackgroundImage, s.BackgroundImage.Bounds(), draw.Over, nil)
	}
}

// drawFeed maps the camera frame through the same matrix used for the
// tracking points, so overlay and video stay aligned.
func (c *Compositor) drawFeed(dst *image.RGBA, s Scene) {
	if s.Frame == nil {
		return
	}
	fb := s.Frame.Bounds()
	if fb.Empty() {
		return
	}

	t := s.Transform
	t.SourceW, t.SourceH = fb.Dx(), fb.Dy()
	t.CanvasW, t.CanvasH = dst.Bounds().Dx(), dst.Bounds().Dy()

	m := t.SourceToCanvas()
	// Shift so the frame's Min maps like source pixel (0, 0).
	minX, minY := float64(fb.Min.X), float64(fb.Min.Y)
	m[2] -= m[0]*minX + m[1]*minY
	m[5] -= m[3]*minX + m[4]*minY
	m[2] += float64(dst.Bounds().Min.X)
	m[5] += float64(dst.Bounds().Min.Y)

	draw.ApproxBiLinear.Transform(dst, m, s.Frame, fb, draw.Over, nil)
}

func (c *Compositor) drawZone(dst *image.RGBA, z *gesture.View, s Scene) {
	cfg := z.Config
	if cfg.Radius <= 0 {
		return
	}
	cx, cy, r := cfg.Center.X, cfg.Center.Y, cfg.Radius
	col := zoneColor(cfg.Color)
	stroke := cfg.Stroke
	if stroke <= 0 {
		stroke = 3
	}

	switch {
	case z.Active:
		amt := c.pulse(s.Now)
		c.pen.fill(dst, withAlpha(col, 0.2+0.3*amt), circle(cx, cy, r*(1+0.04*amt)))
	case z.Inside:
		c.drawGlow(dst, cx, cy, r, col)
	}

	if z.Animation != nil {
		if frame := z.Animation.Frame(s.Now); frame != nil {
			c.drawMedia(dst, frame, cx, cy, r-stroke/2, z.Spin)
		}
	}

	c.pen.fill(dst, col, ring(cx, cy, r, stroke)...)

	if !z.Active && z.Progress > 0 {
		p := math.Min(z.Progress, 1)
		c.pen.fill(dst, withAlpha(lighten(col), 0.9), arcBand(cx, cy, r+stroke+3, stroke+2, -90, 360*p))
	}

	if s.Selected != "" && s.Selected == cfg.ID {
		c.pen.fill(dst, SelectionColor, ring(cx, cy, r+stroke+10, 2)...)
	}
}

// pulse returns the active-zone pulse amount in [0, 1] at now.
func (c *Compositor) pulse(now time.Time) float64 {
	period := c.PulsePeriod
	if period <= 0 || c.Pulse == nil {
		return 0
	}
	half := float32(period) / 2
	t := float32(now.UnixNano() % int64(period))
	if t > half {
		t = float32(period) - t
	}
	v := float64(c.Pulse(t, 0, 1, half))
	return math.Max(0, math.Min(1, v))
}

func (c *Compositor) drawGlow(dst *image.RGBA, cx, cy, r float64, col color.RGBA) {
	const steps = 4
	w := c.GlowWidth / steps
	for i := 0; i < steps; i++ {
		a := 0.35 * float64(steps-i) / steps
		c.pen.fill(dst, withAlpha(col, a), ring(cx, cy, r+w*(float64(i)+0.5), w)...)
	}
}

// drawMedia covers the circle with frame, rotated by spinDeg around the
// centre, and clips it to the circle.
func (c *Compositor) drawMedia(dst *image.RGBA, frame image.Image, cx, cy, r, spinDeg float64) {
	fb := frame.Bounds()
	if fb.Empty() || r <= 0 {
		return
	}

	clipPath := circle(cx, cy, r)
	bb, ok := boundsOf([]path{clipPath})
	if !ok || !bb.Overlaps(dst.Bounds()) {
		return
	}

	scale := 2 * r / math.Min(float64(fb.Dx()), float64(fb.Dy()))
	rad := spinDeg * math.Pi / 180
	cos, sin := math.Cos(rad)*scale, math.Sin(rad)*scale
	fx := float64(fb.Min.X) + float64(fb.Dx())/2
	fy := float64(fb.Min.Y) + float64(fb.Dy())/2

	s2d := f64.Aff3{
		cos, -sin, cx - cos*fx + sin*fy,
		sin, cos, cy - sin*fx - cos*fy,
	}

	tmp := image.NewRGBA(bb)
	draw.ApproxBiLinear.Transform(tmp, s2d, frame, fb, draw.Src, nil)
	c.pen.fillImage(dst, tmp, clipPath)
}

func (c *Compositor) drawSkeleton(dst *image.RGBA, s Scene) {
	lm := s.Tracking.Landmarks
	if len(lm) == 0 {
		return
	}
	w, h := float64(dst.Bounds().Dx()), float64(dst.Bounds().Dy())
	at := func(i int) pt {
		return pt{lm[i].X*w + float64(dst.Bounds().Min.X), lm[i].Y*h + float64(dst.Bounds().Min.Y)}
	}

	for _, conn := range detector.Connections {
		if conn[0] >= len(lm) || conn[1] >= len(lm) {
			continue
		}
		c.pen.fill(dst, SkeletonColor, segment(at(conn[0]), at(conn[1]), 2))
	}
	for i := range lm {
		p := at(i)
		c.pen.fill(dst, SkeletonColor, circle(p.x, p.y, 3))
	}
}

func (c *Compositor) drawPointer(dst *image.RGBA, s Scene) {
	b := dst.Bounds()
	p := s.Tracking.PointerOn(b.Dx(), b.Dy())
	x, y := p.X+float64(b.Min.X), p.Y+float64(b.Min.Y)

	col := pointerColor(p, s.DepthGate, s.DepthThresholdMM)
	c.pen.fill(dst, withAlpha(col, 0.35), circle(x, y, c.PointerRadius*1.8))
	c.pen.fill(dst, col, circle(x, y, c.PointerRadius))
}

// pointerColor codes the depth gate: near enough, too far, or no sample.
func pointerColor(p geom.Point, gate bool, thresholdMM float64) color.RGBA {
	if !gate {
		return PointerColor
	}
	switch {
	case !p.HasDepth():
		return PointerNoDepthColor
	case p.Depth >= thresholdMM:
		return PointerFarColor
	default:
		return PointerNearColor
	}
}

func (c *Compositor) drawMesh(dst *image.RGBA, m *Mesh) {
	b := dst.Bounds()
	w, h := float64(b.Dx()), float64(b.Dy())
	at := func(col, row int) pt {
		q := m.At(col, row)
		return pt{q.X*w + float64(b.Min.X), q.Y*h + float64(b.Min.Y)}
	}

	line := withAlpha(MeshColor, 0.7)
	for row := 0; row < m.Rows; row++ {
		for col := 0; col < m.Cols; col++ {
			if col+1 < m.Cols {
				c.pen.fill(dst, line, segment(at(col, row), at(col+1, row), 1.5))
			}
			if row+1 < m.Rows {
				c.pen.fill(dst, line, segment(at(col, row), at(col, row+1), 1.5))
			}
		}
	}

	for i := range m.Points {
		p := at(i%m.Cols, i/m.Cols)
		r := 5.0
		if i == m.Active {
			r = 9
		}
		c.pen.fill(dst, MeshColor, circle(p.x, p.y, r))
	}
}

func lighten(c color.RGBA) color.RGBA {
	mix := func(v uint8) uint8 { return v + (255-v)/2 }
	return color.RGBA{R: mix(c.R), G: mix(c.G), B: mix(c.B), A: c.A}
}
