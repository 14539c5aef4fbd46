package frames

import (
	"fmt"
	"strconv"
	"strings"
)

// Point is a sub-pixel coordinate in full-frame pixel space.
type Point struct {
	X, Y float64
}

// PointSet is an ordered point list. Index i in one frame refers to the
// same physical feature as index i in the next frame.
type PointSet []Point

// Clone returns an independent copy.
func (ps PointSet) Clone() PointSet {
	if ps == nil {
		return nil
	}
	out := make(PointSet, len(ps))
	copy(out, ps)
	return out
}

// ValidityMask flags, per index of a PointSet, whether tracking succeeded.
type ValidityMask []bool

// Count returns the number of valid entries.
func (m ValidityMask) Count() int {
	n := 0
	for _, v := range m {
		if v {
			n++
		}
	}
	return n
}

// Rect is an axis-aligned region in full-frame pixel space.
type Rect struct {
	X, Y          int
	Width, Height int
}

// Empty reports whether the rectangle covers no pixels.
func (r Rect) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// Within reports whether r lies entirely inside a frame of the given size.
func (r Rect) Within(width, height int) bool {
	return !r.Empty() && r.X >= 0 && r.Y >= 0 && r.X+r.Width <= width && r.Y+r.Height <= height
}

func (r Rect) String() string {
	return fmt.Sprintf("%d,%d,%d,%d", r.X, r.Y, r.Width, r.Height)
}

// ParseRect parses "x,y,w,h" as produced by Rect.String.
func ParseRect(s string) (Rect, error) {
	parts := strings.Split(strings.TrimSpace(s), ",")
	if len(parts) != 4 {
		return Rect{}, fmt.Errorf("invalid rect %q: expected x,y,w,h", s)
	}
	var vals [4]int
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return Rect{}, fmt.Errorf("invalid rect %q: %w", s, err)
		}
		vals[i] = v
	}
	r := Rect{X: vals[0], Y: vals[1], Width: vals[2], Height: vals[3]}
	if r.Empty() {
		return Rect{}, fmt.Errorf("invalid rect %q: width and height must be positive", s)
	}
	return r, nil
}
