package testdata

import (
	"encoding/base64"
	"image/color"
	"math"
	"testing"

	"gocv.io/x/gocv"

	"github.com/ayusman/gyre/internal/detector"
)

func TestOrbit(t *testing.T) {
	hands := Orbit(0.5, 0.5, 0.1, 0.2, 90, 4)
	want := [][2]float64{{0.6, 0.5}, {0.5, 0.7}, {0.4, 0.5}, {0.5, 0.3}}

	for i, h := range hands {
		tip := h.Landmarks[detector.IndexTip]
		if math.Abs(tip.X-want[i][0]) > 1e-9 || math.Abs(tip.Y-want[i][1]) > 1e-9 {
			t.Errorf("hand %d tip = (%v, %v), want %v", i, tip.X, tip.Y, want[i])
		}
	}
}

func TestFrame(t *testing.T) {
	mat := Frame(32, 18, color.RGBA{R: 200, G: 10, B: 20, A: 255})
	defer mat.Close()

	if mat.Cols() != 32 || mat.Rows() != 18 {
		t.Fatalf("size = %dx%d, want 32x18", mat.Cols(), mat.Rows())
	}
	// BGR order.
	if b, r := mat.GetUCharAt(0, 0), mat.GetUCharAt(0, 2); b != 20 || r != 200 {
		t.Errorf("pixel = b%d r%d, want b20 r200", b, r)
	}

	b64, err := EncodeFrame(mat)
	if err != nil {
		t.Fatalf("EncodeFrame() error = %v", err)
	}
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := gocv.IMDecode(raw, gocv.IMReadColor)
	if err != nil {
		t.Fatal(err)
	}
	defer decoded.Close()
	if decoded.Cols() != 32 || decoded.Rows() != 18 {
		t.Errorf("decoded size = %dx%d", decoded.Cols(), decoded.Rows())
	}
}
