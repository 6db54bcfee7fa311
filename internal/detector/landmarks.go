// Package detector defines the hand-landmark types exchanged with pose
// estimators and the Estimator capability the engine consumes.
package detector

import "github.com/ayusman/gyre/internal/geom"

// Hand landmark indices following MediaPipe convention.
// See: https://developers.google.com/mediapipe/solutions/vision/hand_landmarker
const (
	Wrist        = 0
	ThumbCMC     = 1
	ThumbMCP     = 2
	ThumbIP      = 3
	ThumbTip     = 4
	IndexMCP     = 5
	IndexPIP     = 6
	IndexDIP     = 7
	IndexTip     = 8
	MiddleMCP    = 9
	MiddlePIP    = 10
	MiddleDIP    = 11
	MiddleTip    = 12
	RingMCP      = 13
	RingPIP      = 14
	RingDIP      = 15
	RingTip      = 16
	PinkyMCP     = 17
	PinkyPIP     = 18
	PinkyDIP     = 19
	PinkyTip     = 20
	NumLandmarks = 21
)

// PointerLandmark is the landmark used as the interaction pointer.
const PointerLandmark = IndexTip

// Connections lists landmark pairs forming the hand skeleton.
var Connections = [][2]int{
	{Wrist, ThumbCMC}, {ThumbCMC, ThumbMCP}, {ThumbMCP, ThumbIP}, {ThumbIP, ThumbTip},
	{Wrist, IndexMCP}, {IndexMCP, IndexPIP}, {IndexPIP, IndexDIP}, {IndexDIP, IndexTip},
	{IndexMCP, MiddleMCP}, {MiddleMCP, MiddlePIP}, {MiddlePIP, MiddleDIP}, {MiddleDIP, MiddleTip},
	{MiddleMCP, RingMCP}, {RingMCP, RingPIP}, {RingPIP, RingDIP}, {RingDIP, RingTip},
	{RingMCP, PinkyMCP}, {Wrist, PinkyMCP}, {PinkyMCP, PinkyPIP}, {PinkyPIP, PinkyDIP}, {PinkyDIP, PinkyTip},
}

// Point3D is a normalized landmark position (0-1 of the camera frame) with
// optional depth in millimetres reported by depth cameras.
type Point3D struct {
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Z       float64 `json:"z"`
	DepthMM float64 `json:"depth_mm,omitempty"`
}

// Hand is one detected hand.
type Hand struct {
	Landmarks  []Point3D `json:"landmarks"`
	Gesture    string    `json:"gesture,omitempty"`
	Score      float64   `json:"score,omitempty"`
	Handedness string    `json:"handedness,omitempty"` // "Left" or "Right"
}

// Pointer returns the interaction fingertip in tracking space.
// ok is false when the hand does not carry enough landmarks.
func (h *Hand) Pointer() (p geom.Point, ok bool) {
	if h == nil || len(h.Landmarks) <= PointerLandmark {
		return geom.Point{}, false
	}
	return h.Landmarks[PointerLandmark].Point(), true
}

// Points converts all landmarks to geom points.
func (h *Hand) Points() []geom.Point {
	if h == nil {
		return nil
	}
	pts := make([]geom.Point, len(h.Landmarks))
	for i, l := range h.Landmarks {
		pts[i] = l.Point()
	}
	return pts
}

// Point drops Z and keeps depth.
func (p Point3D) Point() geom.Point {
	return geom.Point{X: p.X, Y: p.Y, Depth: p.DepthMM}
}
