package tracking

import "github.com/ayusman/gyre/internal/geom"

// Snapshot is the latest tracked hand in normalized display space.
// Snapshots are never modified after creation; each update builds a new one.
type Snapshot struct {
	Landmarks []geom.Point // smoothed landmark set
	Pointer   geom.Point   // smoothed interaction fingertip
	Hold      int          // frames the pointer survives without a fresh detection
	Gesture   string       // label reported by the source, if any
	Source    SourceKind
}

// held returns a copy of s with one hold frame consumed.
func (s *Snapshot) held() *Snapshot {
	next := *s
	next.Hold--
	return &next
}

// PointerOn returns the pointer scaled to a canvas of the given size.
func (s *Snapshot) PointerOn(width, height int) geom.Point {
	return s.Pointer.Scale(float64(width), float64(height))
}
