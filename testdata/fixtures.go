// Package testdata builds synthetic camera frames and hand sequences for
// end-to-end tests.
package testdata

import (
	"encoding/base64"
	"fmt"
	"image/color"
	"math"

	"gocv.io/x/gocv"

	"github.com/ayusman/gyre/internal/detector"
)

// Frame returns a solid BGR camera frame. The caller must Close it.
func Frame(width, height int, c color.RGBA) gocv.Mat {
	return gocv.NewMatWithSizeFromScalar(
		gocv.NewScalar(float64(c.B), float64(c.G), float64(c.R), 0),
		height, width, gocv.MatTypeCV8UC3,
	)
}

// EncodeFrame returns mat as a base64 JPEG, the way the bridge sends images.
func EncodeFrame(mat gocv.Mat) (string, error) {
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, mat)
	if err != nil {
		return "", fmt.Errorf("encode frame: %w", err)
	}
	defer buf.Close()
	return base64.StdEncoding.EncodeToString(buf.GetBytes()), nil
}

// Orbit returns n pointing hands whose fingertips circle (cx, cy) in
// normalized tracking space, advancing stepDeg per hand. Positive steps turn
// clockwise on screen.
func Orbit(cx, cy, rx, ry, stepDeg float64, n int) []detector.Hand {
	hands := make([]detector.Hand, n)
	for i := range hands {
		rad := float64(i) * stepDeg * math.Pi / 180
		hands[i] = detector.PointingHand(cx+rx*math.Cos(rad), cy+ry*math.Sin(rad))
	}
	return hands
}
