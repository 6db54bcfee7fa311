// Package render composites the projected scene: background, camera feed,
// zones with their activation feedback, the tracked hand and editing overlays.
package render

import (
	"fmt"
	"image"
	"image/color"
	"strconv"
	"strings"
	"time"

	"github.com/ayusman/gyre/internal/geom"
	"github.com/ayusman/gyre/internal/gesture"
	"github.com/ayusman/gyre/internal/tracking"
)

// Scene is everything needed to draw one frame. All fields are copies or
// read-only references; drawing never writes back into engine state.
type Scene struct {
	Background      color.Color
	BackgroundImage image.Image

	Frame     image.Image // camera frame in source pixels, may be nil
	Transform geom.Transform

	Zones    []gesture.View
	Selected string // zone being edited, empty for none

	Tracking     *tracking.Snapshot
	ShowSkeleton bool

	DepthGate        bool
	DepthThresholdMM float64

	Mesh *Mesh // projection mesh editing overlay, nil when hidden

	Now time.Time
}

// Mesh is a grid of warp control points in normalized canvas coordinates,
// stored row by row.
type Mesh struct {
	Cols   int
	Rows   int
	Points []geom.Point
	Active int // highlighted handle, -1 for none
}

// NewMesh returns an evenly spaced cols x rows grid covering the canvas.
func NewMesh(cols, rows int) (*Mesh, error) {
	if cols < 2 || rows < 2 {
		return nil, fmt.Errorf("mesh needs at least 2x2 points, got %dx%d", cols, rows)
	}
	m := &Mesh{Cols: cols, Rows: rows, Active: -1}
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			m.Points = append(m.Points, geom.Point{
				X: float64(c) / float64(cols-1),
				Y: float64(r) / float64(rows-1),
			})
		}
	}
	return m, nil
}

// At returns the control point at column c, row r.
func (m *Mesh) At(c, r int) geom.Point {
	return m.Points[r*m.Cols+c]
}

func (m *Mesh) valid() bool {
	return m != nil && m.Cols >= 2 && m.Rows >= 2 && len(m.Points) == m.Cols*m.Rows
}

// DefaultZoneColor is used when a zone's colour cannot be parsed.
var DefaultZoneColor = color.RGBA{R: 0x00, G: 0xd1, B: 0xff, A: 0xff}

// ParseHexColor parses #rgb, #rrggbb and #rrggbbaa colours.
func ParseHexColor(s string) (color.RGBA, error) {
	hex := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) == 6 {
		hex += "ff"
	}
	if len(hex) != 8 {
		return color.RGBA{}, fmt.Errorf("invalid colour %q", s)
	}

	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("invalid colour %q: %w", s, err)
	}
	return color.RGBA{R: uint8(v >> 24), G: uint8(v >> 16), B: uint8(v >> 8), A: uint8(v)}, nil
}

func zoneColor(s string) color.RGBA {
	c, err := ParseHexColor(s)
	if err != nil {
		return DefaultZoneColor
	}
	return c
}

// withAlpha returns c with its alpha replaced, premultiplied for color.RGBA.
func withAlpha(c color.RGBA, a float64) color.RGBA {
	if a < 0 {
		a = 0
	} else if a > 1 {
		a = 1
	}
	return color.RGBA{
		R: uint8(float64(c.R) * a),
		G: uint8(float64(c.G) * a),
		B: uint8(float64(c.B) * a),
		A: uint8(255 * a),
	}
}
