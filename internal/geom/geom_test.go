package geom

import (
	"math"
	"testing"
)

const epsilon = 1e-9

func near(a, b float64) bool {
	return math.Abs(a-b) < 1e-6
}

func TestAngleDiff(t *testing.T) {
	tests := []struct {
		name string
		a, b float64
		want float64
	}{
		{"wraps forward across zero", 350, 10, 20},
		{"wraps backward across zero", 10, 350, -20},
		{"plain positive", 10, 40, 30},
		{"plain negative", 40, 10, -30},
		{"half turn is positive", 0, 180, 180},
		{"negative half turn folds to positive", 180, 0, 180},
		{"multiple turns", 0, 725, 5},
		{"atan2 range", -170, 170, -20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AngleDiff(tt.a, tt.b)
			if math.Abs(got-tt.want) > epsilon {
				t.Errorf("AngleDiff(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}

	t.Run("always in (-180, 180]", func(t *testing.T) {
		for a := -720.0; a <= 720; a += 7.5 {
			for b := -720.0; b <= 720; b += 11.25 {
				d := AngleDiff(a, b)
				if d <= -180 || d > 180 {
					t.Fatalf("AngleDiff(%v, %v) = %v out of range", a, b, d)
				}
			}
		}
	})
}

func TestAngleDeg_ClockwiseOnScreen(t *testing.T) {
	c := Point{X: 100, Y: 100}

	right := AngleDeg(c, Point{X: 150, Y: 100})
	below := AngleDeg(c, Point{X: 100, Y: 150})

	// Moving from the right of the centre to below it is clockwise on a
	// y-down canvas and must yield a positive difference.
	if d := AngleDiff(right, below); d <= 0 {
		t.Errorf("expected positive diff for clockwise move, got %v", d)
	}
}

func TestDistance(t *testing.T) {
	if d := Distance(Point{X: 0, Y: 0}, Point{X: 3, Y: 4}); math.Abs(d-5) > epsilon {
		t.Errorf("Distance = %v, want 5", d)
	}
}

func TestTransform_IdentityWhenSameAspect(t *testing.T) {
	tr := Transform{SourceW: 640, SourceH: 480, CanvasW: 1280, CanvasH: 960}

	p := tr.ToDisplay(Point{X: 0.25, Y: 0.75, Depth: 900})
	if !near(p.X, 0.25) || !near(p.Y, 0.75) {
		t.Errorf("ToDisplay = %+v, want (0.25, 0.75)", p)
	}
	if p.Depth != 900 {
		t.Errorf("depth should pass through, got %v", p.Depth)
	}
}

func TestTransform_CoverCropsSides(t *testing.T) {
	// 4:3 source on a 16:9 canvas: width fills, top and bottom are cropped.
	tr := Transform{SourceW: 640, SourceH: 480, CanvasW: 1600, CanvasH: 900}

	if s := tr.CoverScale(); !near(s, 2.5) {
		t.Fatalf("CoverScale = %v, want 2.5", s)
	}

	center := tr.ToDisplay(Point{X: 0.5, Y: 0.5})
	if !near(center.X, 0.5) || !near(center.Y, 0.5) {
		t.Errorf("centre should stay centred, got %+v", center)
	}

	if tr.Visible(Point{X: 0.5, Y: 0.02}) {
		t.Error("point near the top edge of the source should be cropped out")
	}
	if !tr.Visible(Point{X: 0.5, Y: 0.5}) {
		t.Error("centre should be visible")
	}
}

func TestTransform_Mirror(t *testing.T) {
	tr := Transform{SourceW: 100, SourceH: 100, CanvasW: 100, CanvasH: 100, Mirror: true}

	p := tr.ToDisplay(Point{X: 0.2, Y: 0.3})
	if !near(p.X, 0.8) || !near(p.Y, 0.3) {
		t.Errorf("mirror: got %+v, want (0.8, 0.3)", p)
	}
}

func TestTransform_Rotation(t *testing.T) {
	tests := []struct {
		deg    int
		in     Point
		wantX  float64
		wantY  float64
		mirror bool
	}{
		{deg: 90, in: Point{X: 1, Y: 0.5}, wantX: 0.5, wantY: 1},
		{deg: 180, in: Point{X: 0.2, Y: 0.3}, wantX: 0.8, wantY: 0.7},
		{deg: 270, in: Point{X: 1, Y: 0.5}, wantX: 0.5, wantY: 0},
		// rotate first, then mirror
		{deg: 90, in: Point{X: 1, Y: 0.5}, wantX: 0.5, wantY: 1, mirror: true},
		{deg: 90, in: Point{X: 0.5, Y: 0}, wantX: 0, wantY: 0.5, mirror: true},
	}

	for _, tt := range tests {
		tr := Transform{SourceW: 100, SourceH: 100, CanvasW: 100, CanvasH: 100, RotationDeg: tt.deg, Mirror: tt.mirror}
		p := tr.ToDisplay(tt.in)
		if !near(p.X, tt.wantX) || !near(p.Y, tt.wantY) {
			t.Errorf("rot=%d mirror=%v: ToDisplay(%+v) = %+v, want (%v, %v)",
				tt.deg, tt.mirror, tt.in, p, tt.wantX, tt.wantY)
		}
	}
}

func TestTransform_InverseRoundTrip(t *testing.T) {
	for _, deg := range []int{0, 90, 180, 270} {
		for _, mirror := range []bool{false, true} {
			tr := Transform{
				SourceW: 640, SourceH: 480,
				CanvasW: 1920, CanvasH: 1080,
				Zoom: 1.3, RotationDeg: deg, Mirror: mirror,
			}
			in := Point{X: 0.42, Y: 0.61}
			back := tr.ToTracking(tr.ToDisplay(in))
			if !near(back.X, in.X) || !near(back.Y, in.Y) {
				t.Errorf("rot=%d mirror=%v: round trip %+v -> %+v", deg, mirror, in, back)
			}
		}
	}
}

func TestTransform_VisibleSourceRect(t *testing.T) {
	t.Run("zoom crops to the centre", func(t *testing.T) {
		tr := Transform{SourceW: 100, SourceH: 100, CanvasW: 100, CanvasH: 100, Zoom: 2}
		r := tr.VisibleSourceRect()
		if !near(r.X, 0.25) || !near(r.Y, 0.25) || !near(r.W, 0.5) || !near(r.H, 0.5) {
			t.Errorf("VisibleSourceRect = %+v, want {0.25 0.25 0.5 0.5}", r)
		}

		inner := r.Unmap(Point{X: 0.5, Y: 0.5})
		if !near(inner.X, 0.5) || !near(inner.Y, 0.5) {
			t.Errorf("Unmap centre = %+v", inner)
		}
	})

	t.Run("invalid transform is the full frame", func(t *testing.T) {
		if r := (Transform{}).VisibleSourceRect(); r != Full {
			t.Errorf("expected Full, got %+v", r)
		}
	})
}

func TestTransform_InvalidPassesThrough(t *testing.T) {
	in := Point{X: 0.3, Y: 0.4}
	if got := (Transform{}).ToDisplay(in); got != in {
		t.Errorf("ToDisplay on invalid transform = %+v, want %+v", got, in)
	}
}
