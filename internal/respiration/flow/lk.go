package flow

import (
	"errors"
	"fmt"
	"math"

	"github.com/banshee-data/breath.report/internal/config"
	"github.com/banshee-data/breath.report/internal/respiration/frames"
	"gonum.org/v1/gonum/mat"
)

var (
	// ErrFrameMismatch is returned when consecutive frames differ in size.
	ErrFrameMismatch = errors.New("consecutive frames differ in size")
	// ErrEmptyFrame is returned when either frame has no pixels.
	ErrEmptyFrame = frames.ErrEmptyFrame
)

// PointTracker moves a point set from one frame to the next.
type PointTracker interface {
	Track(prev, curr frames.Frame, prevPoints frames.PointSet) (frames.PointSet, frames.ValidityMask, error)
}

// Config holds the Lucas-Kanade parameters.
type Config struct {
	WindowSize      int     // Patch side in pixels (odd)
	PyramidLevels   int     // Levels above the base image; 0 disables the pyramid
	MaxIterations   int     // Iteration cap per level
	Epsilon         float64 // Stop when the update norm falls below this (pixels)
	MinEigThreshold float64 // Minimum eigenvalue of the normalised gradient matrix
	MaxError        float64 // Maximum mean absolute patch residual (intensity units)
}

// DefaultConfig returns the built-in tracker parameters.
func DefaultConfig() Config {
	return ConfigFromTuning(config.EmptyTuningConfig())
}

// ConfigFromTuning builds a Config from a loaded TuningConfig.
func ConfigFromTuning(cfg *config.TuningConfig) Config {
	return Config{
		WindowSize:      cfg.GetWindowSize(),
		PyramidLevels:   cfg.GetPyramidLevels(),
		MaxIterations:   cfg.GetMaxIterations(),
		Epsilon:         cfg.GetEpsilon(),
		MinEigThreshold: cfg.GetMinEigThreshold(),
		MaxError:        cfg.GetMaxError(),
	}
}

// Tracker is the pure Go pyramidal Lucas-Kanade tracker. It is
// stateless and safe for concurrent use.
type Tracker struct {
	cfg Config
}

// NewTracker creates a tracker, replacing out-of-range fields with defaults.
func NewTracker(cfg Config) *Tracker {
	def := DefaultConfig()
	if cfg.WindowSize < 3 {
		cfg.WindowSize = def.WindowSize
	}
	if cfg.WindowSize%2 == 0 {
		cfg.WindowSize++
	}
	if cfg.PyramidLevels < 0 {
		cfg.PyramidLevels = 0
	}
	if cfg.MaxIterations < 1 {
		cfg.MaxIterations = def.MaxIterations
	}
	if cfg.Epsilon <= 0 {
		cfg.Epsilon = def.Epsilon
	}
	if cfg.MaxError <= 0 {
		cfg.MaxError = def.MaxError
	}
	return &Tracker{cfg: cfg}
}

// Config returns the effective configuration.
func (t *Tracker) Config() Config { return t.cfg }

// PointStatus describes how a single point fared.
type PointStatus struct {
	Valid      bool
	Error      float64 // mean absolute residual over the final patch
	Iterations int     // iterations spent at the finest level
	Reason     string  // why the point was rejected, empty when valid
}

// Track implements PointTracker.
func (t *Tracker) Track(prev, curr frames.Frame, prevPoints frames.PointSet) (frames.PointSet, frames.ValidityMask, error) {
	next, status, err := t.TrackWithStatus(prev, curr, prevPoints)
	if err != nil {
		return nil, nil, err
	}
	valid := make(frames.ValidityMask, len(status))
	for i, s := range status {
		valid[i] = s.Valid
	}
	return next, valid, nil
}

// TrackWithStatus is Track plus per-point residuals and rejection reasons.
func (t *Tracker) TrackWithStatus(prev, curr frames.Frame, prevPoints frames.PointSet) (frames.PointSet, []PointStatus, error) {
	if prev.Empty() || curr.Empty() {
		return nil, nil, fmt.Errorf("track: %w", ErrEmptyFrame)
	}
	if !prev.SameSize(curr) {
		return nil, nil, fmt.Errorf("track: %w: %dx%d vs %dx%d", ErrFrameMismatch, prev.Width, prev.Height, curr.Width, curr.Height)
	}

	next := make(frames.PointSet, len(prevPoints))
	status := make([]PointStatus, len(prevPoints))
	if len(prevPoints) == 0 {
		return next, status, nil
	}

	prevPyr := newLevels(prev, t.cfg.PyramidLevels, t.cfg.WindowSize, true)
	currPyr := newLevels(curr, len(prevPyr)-1, t.cfg.WindowSize, false)

	for i, p := range prevPoints {
		np, st := t.trackPoint(prevPyr, currPyr, p)
		if !st.Valid {
			np = p
		}
		next[i] = np
		status[i] = st
	}
	return next, status, nil
}

// level is one pyramid layer with cached derivatives of the previous frame.
type level struct {
	img    frames.Plane
	gx, gy frames.Plane
}

func newLevels(f frames.Frame, levels, window int, withGradients bool) []level {
	planes := frames.Pyramid(f, levels, window)
	out := make([]level, len(planes))
	for i, p := range planes {
		out[i].img = p
		if withGradients {
			out[i].gx, out[i].gy = p.Gradients()
		}
	}
	return out
}

func (t *Tracker) trackPoint(prevPyr, currPyr []level, pt frames.Point) (frames.Point, PointStatus) {
	win := t.cfg.WindowSize
	half := float64(win-1) / 2
	area := float64(win * win)
	eps2 := t.cfg.Epsilon * t.cfg.Epsilon

	n := win * win
	iPatch := make([]float64, n)
	ixPatch := make([]float64, n)
	iyPatch := make([]float64, n)

	var next frames.Point
	st := PointStatus{Valid: true}
	top := len(prevPyr) - 1

	for lvl := top; lvl >= 0; lvl-- {
		scale := 1 / math.Pow(2, float64(lvl))
		pl := prevPyr[lvl]
		cl := currPyr[lvl]
		prevPt := frames.Point{X: pt.X * scale, Y: pt.Y * scale}
		if lvl == top {
			next = prevPt
		} else {
			next = frames.Point{X: next.X * 2, Y: next.Y * 2}
		}

		if !insideWithMargin(prevPt, pl.img, half) {
			if lvl == 0 {
				return pt, PointStatus{Reason: "outside frame"}
			}
			continue
		}

		// Sample the template patch and its gradients once per level.
		var a11, a12, a22 float64
		k := 0
		for dy := -half; dy <= half; dy++ {
			for dx := -half; dx <= half; dx++ {
				x, y := prevPt.X+dx, prevPt.Y+dy
				iPatch[k] = pl.img.Bilinear(x, y)
				ix := pl.gx.Bilinear(x, y)
				iy := pl.gy.Bilinear(x, y)
				ixPatch[k], iyPatch[k] = ix, iy
				a11 += ix * ix
				a12 += ix * iy
				a22 += iy * iy
				k++
			}
		}

		g := mat.NewSymDense(2, []float64{a11, a12, a12, a22})
		if minEigen(g)/area < t.cfg.MinEigThreshold {
			if lvl == 0 {
				return pt, PointStatus{Reason: "low texture"}
			}
			continue
		}
		var chol mat.Cholesky
		if !chol.Factorize(g) {
			if lvl == 0 {
				return pt, PointStatus{Reason: "singular gradient matrix"}
			}
			continue
		}

		var prevDelta frames.Point
		b := mat.NewVecDense(2, nil)
		var delta mat.VecDense
		iters := 0
		for j := 0; j < t.cfg.MaxIterations; j++ {
			if !insideWithMargin(next, cl.img, half) {
				if lvl == 0 {
					return pt, PointStatus{Reason: "left frame during search", Iterations: iters}
				}
				break
			}
			var b1, b2 float64
			k = 0
			for dy := -half; dy <= half; dy++ {
				for dx := -half; dx <= half; dx++ {
					diff := cl.img.Bilinear(next.X+dx, next.Y+dy) - iPatch[k]
					b1 += diff * ixPatch[k]
					b2 += diff * iyPatch[k]
					k++
				}
			}
			b.SetVec(0, -b1)
			b.SetVec(1, -b2)
			if err := chol.SolveVecTo(&delta, b); err != nil {
				break
			}
			d := frames.Point{X: delta.AtVec(0), Y: delta.AtVec(1)}
			next.X += d.X
			next.Y += d.Y
			iters++

			if d.X*d.X+d.Y*d.Y <= eps2 {
				break
			}
			// Damp oscillation between two positions.
			if j > 0 && math.Abs(d.X+prevDelta.X) < 0.01 && math.Abs(d.Y+prevDelta.Y) < 0.01 {
				next.X -= d.X * 0.5
				next.Y -= d.Y * 0.5
				break
			}
			prevDelta = d
		}
		if lvl == 0 {
			st.Iterations = iters
		}
	}

	base := currPyr[0].img
	if next.X < 0 || next.Y < 0 || next.X > float64(base.Width-1) || next.Y > float64(base.Height-1) ||
		math.IsNaN(next.X) || math.IsNaN(next.Y) {
		return pt, PointStatus{Reason: "outside frame", Iterations: st.Iterations}
	}

	// Residual over the final patch at full resolution.
	var errSum float64
	k := 0
	pl := prevPyr[0].img
	for dy := -half; dy <= half; dy++ {
		for dx := -half; dx <= half; dx++ {
			errSum += math.Abs(base.Bilinear(next.X+dx, next.Y+dy) - pl.Bilinear(pt.X+dx, pt.Y+dy))
			k++
		}
	}
	st.Error = errSum / float64(k)
	if st.Error > t.cfg.MaxError {
		st.Valid = false
		st.Reason = "residual above threshold"
		return pt, st
	}
	return next, st
}

// insideWithMargin reports whether a patch centred on p can be sampled
// without falling entirely off the plane.
func insideWithMargin(p frames.Point, img frames.Plane, half float64) bool {
	return p.X >= -half && p.Y >= -half &&
		p.X <= float64(img.Width-1)+half && p.Y <= float64(img.Height-1)+half
}

func minEigen(g *mat.SymDense) float64 {
	var es mat.EigenSym
	if !es.Factorize(g, false) {
		return 0
	}
	vals := es.Values(nil)
	return vals[0]
}
