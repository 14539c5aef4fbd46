// Package features selects trackable corner points inside a region of
// interest using the Shi-Tomasi minimum-eigenvalue criterion.
package features

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/banshee-data/breath.report/internal/config"
	"github.com/banshee-data/breath.report/internal/respiration/frames"
	"gonum.org/v1/gonum/floats"
)

var (
	// ErrInvalidROI is returned when the region is degenerate or not
	// fully inside the frame.
	ErrInvalidROI = errors.New("region of interest is empty or outside the frame")
	// ErrNoFeatures is returned when no corner passes the quality test.
	ErrNoFeatures = errors.New("no trackable features found in region")
)

// PointSelector produces seed points inside a region of interest.
type PointSelector interface {
	Select(frame frames.Frame, roi frames.Rect) (frames.PointSet, error)
}

// Config holds the corner selection parameters.
type Config struct {
	MaxPoints    int     // Upper bound on returned points
	QualityLevel float64 // Fraction of the strongest response a corner must reach
	MinDistance  float64 // Minimum pixel separation between accepted corners
	BlockSize    int     // Side of the gradient covariance window
}

// DefaultConfig returns the built-in selection parameters.
func DefaultConfig() Config {
	return ConfigFromTuning(config.EmptyTuningConfig())
}

// ConfigFromTuning builds a Config from a loaded TuningConfig.
func ConfigFromTuning(cfg *config.TuningConfig) Config {
	return Config{
		MaxPoints:    cfg.GetMaxPoints(),
		QualityLevel: cfg.GetQualityLevel(),
		MinDistance:  cfg.GetMinDistance(),
		BlockSize:    cfg.GetBlockSize(),
	}
}

// Selector picks seed points for the tracker. It holds no state between
// calls.
type Selector struct {
	cfg Config
}

// NewSelector creates a selector. Non-positive fields fall back to defaults.
func NewSelector(cfg Config) *Selector {
	def := DefaultConfig()
	if cfg.MaxPoints <= 0 {
		cfg.MaxPoints = def.MaxPoints
	}
	if cfg.QualityLevel <= 0 {
		cfg.QualityLevel = def.QualityLevel
	}
	if cfg.BlockSize <= 0 {
		cfg.BlockSize = def.BlockSize
	}
	if cfg.MinDistance < 0 {
		cfg.MinDistance = 0
	}
	return &Selector{cfg: cfg}
}

// Config returns the effective configuration.
func (s *Selector) Config() Config { return s.cfg }

type candidate struct {
	x, y     int
	response float32
}

// Select returns up to MaxPoints corners found inside roi, strongest
// first, in full-frame coordinates.
func (s *Selector) Select(frame frames.Frame, roi frames.Rect) (frames.PointSet, error) {
	if frame.Empty() || !roi.Within(frame.Width, frame.Height) {
		return nil, fmt.Errorf("%w: roi=%s frame=%dx%d", ErrInvalidROI, roi, frame.Width, frame.Height)
	}

	crop := frames.PlaneFromFrame(frame).Crop(roi)
	resp := MinEigenResponse(crop, s.cfg.BlockSize)

	maxResp := float64(0)
	if len(resp.Data) > 0 {
		maxResp = floats.Max(float32sToFloat64s(resp.Data))
	}
	if maxResp <= 0 {
		return nil, ErrNoFeatures
	}
	threshold := float32(maxResp * s.cfg.QualityLevel)

	// Local maxima over a 3x3 neighbourhood, skipping the crop border.
	var cands []candidate
	for y := 1; y < resp.Height-1; y++ {
		for x := 1; x < resp.Width-1; x++ {
			v := resp.Data[y*resp.Width+x]
			if v <= 0 || v < threshold {
				continue
			}
			if isLocalMax(resp, x, y, v) {
				cands = append(cands, candidate{x: x, y: y, response: v})
			}
		}
	}
	sort.SliceStable(cands, func(i, j int) bool { return cands[i].response > cands[j].response })

	minDist2 := s.cfg.MinDistance * s.cfg.MinDistance
	accepted := make(frames.PointSet, 0, s.cfg.MaxPoints)
	for _, c := range cands {
		if len(accepted) >= s.cfg.MaxPoints {
			break
		}
		px := float64(c.x + roi.X)
		py := float64(c.y + roi.Y)
		if tooClose(accepted, px, py, minDist2) {
			continue
		}
		accepted = append(accepted, frames.Point{X: px, Y: py})
	}

	if len(accepted) == 0 {
		return nil, ErrNoFeatures
	}
	return accepted, nil
}

func isLocalMax(p frames.Plane, x, y int, v float32) bool {
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			if p.Data[(y+dy)*p.Width+(x+dx)] > v {
				return false
			}
		}
	}
	return true
}

func tooClose(accepted frames.PointSet, x, y, minDist2 float64) bool {
	if minDist2 == 0 {
		return false
	}
	for _, a := range accepted {
		dx, dy := a.X-x, a.Y-y
		if dx*dx+dy*dy < minDist2 {
			return true
		}
	}
	return false
}

// MinEigenResponse computes, per pixel, the smaller eigenvalue of the
// gradient covariance matrix summed over a blockSize x blockSize window.
func MinEigenResponse(p frames.Plane, blockSize int) frames.Plane {
	gx, gy := p.Gradients()
	w, h := p.Width, p.Height

	// Integral images of Ixx, Ixy, Iyy with a zero first row/column.
	iw := w + 1
	sxx := make([]float64, iw*(h+1))
	sxy := make([]float64, iw*(h+1))
	syy := make([]float64, iw*(h+1))
	for y := 0; y < h; y++ {
		var rxx, rxy, ryy float64
		for x := 0; x < w; x++ {
			ix := float64(gx.Data[y*w+x])
			iy := float64(gy.Data[y*w+x])
			rxx += ix * ix
			rxy += ix * iy
			ryy += iy * iy
			i := (y+1)*iw + x + 1
			sxx[i] = sxx[i-iw] + rxx
			sxy[i] = sxy[i-iw] + rxy
			syy[i] = syy[i-iw] + ryy
		}
	}
	boxSum := func(s []float64, x0, y0, x1, y1 int) float64 {
		return s[y1*iw+x1] - s[y0*iw+x1] - s[y1*iw+x0] + s[y0*iw+x0]
	}

	half := blockSize / 2
	out := frames.NewPlane(w, h)
	for y := 0; y < h; y++ {
		y0 := max(y-half, 0)
		y1 := min(y-half+blockSize, h)
		for x := 0; x < w; x++ {
			x0 := max(x-half, 0)
			x1 := min(x-half+blockSize, w)
			a := boxSum(sxx, x0, y0, x1, y1)
			b := boxSum(sxy, x0, y0, x1, y1)
			c := boxSum(syy, x0, y0, x1, y1)
			l := (a+c)/2 - math.Sqrt((a-c)*(a-c)/4+b*b)
			if l < 0 {
				l = 0
			}
			out.Data[y*w+x] = float32(l)
		}
	}
	return out
}

func float32sToFloat64s(in []float32) []float64 {
	out := make([]float64, len(in))
	for i, v := range in {
		out[i] = float64(v)
	}
	return out
}
