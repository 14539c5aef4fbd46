package features

import (
	"math"
	"testing"

	"github.com/banshee-data/breath.report/internal/respiration/frames"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// squareFrame draws a bright size x size square with its top-left pixel
// at (x0, y0) on a dark background.
func squareFrame(w, h, x0, y0, size int) frames.Frame {
	f := frames.Frame{Width: w, Height: h, Pix: make([]uint8, w*h)}
	for y := y0; y < y0+size; y++ {
		for x := x0; x < x0+size; x++ {
			f.Pix[y*w+x] = 220
		}
	}
	return f
}

func checkerFrame(w, h, cell int) frames.Frame {
	f := frames.Frame{Width: w, Height: h, Pix: make([]uint8, w*h)}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if ((x/cell)+(y/cell))%2 == 0 {
				f.Pix[y*w+x] = 200
			} else {
				f.Pix[y*w+x] = 30
			}
		}
	}
	return f
}

func nearest(p frames.Point, refs []frames.Point) float64 {
	best := math.Inf(1)
	for _, r := range refs {
		best = math.Min(best, math.Hypot(p.X-r.X, p.Y-r.Y))
	}
	return best
}

func TestSelect_FindsSquareCorners(t *testing.T) {
	t.Parallel()

	// The square is much wider than BlockSize+MinDistance so that each
	// vertex gets its own response peak.
	f := squareFrame(80, 80, 20, 20, 30)
	corners := []frames.Point{{X: 19.5, Y: 19.5}, {X: 49.5, Y: 19.5}, {X: 19.5, Y: 49.5}, {X: 49.5, Y: 49.5}}

	cfg := DefaultConfig()
	s := NewSelector(cfg)
	pts, err := s.Select(f, frames.Rect{X: 5, Y: 5, Width: 70, Height: 70})
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(pts), 4, "pts=%v", pts)

	// The response peaks inside the square, within about half a block of
	// the vertex on each axis.
	tol := math.Hypot(float64(cfg.BlockSize)/2, float64(cfg.BlockSize)/2)
	for _, p := range pts {
		assert.Less(t, nearest(p, corners), tol, "point %+v is not near a corner", p)
	}
	for _, c := range corners {
		assert.Less(t, nearest(c, pts), tol, "corner %+v has no nearby feature", c)
	}
}

func TestSelect_TranslatesByROIOrigin(t *testing.T) {
	t.Parallel()

	f := squareFrame(80, 80, 40, 40, 12)
	s := NewSelector(DefaultConfig())

	full, err := s.Select(f, frames.Rect{X: 0, Y: 0, Width: 80, Height: 80})
	require.NoError(t, err)
	shifted, err := s.Select(f, frames.Rect{X: 30, Y: 30, Width: 30, Height: 30})
	require.NoError(t, err)

	// Corners near the ROI edges may differ, but every ROI point must be a
	// full-frame coordinate inside the ROI and near a full-frame feature.
	for _, p := range shifted {
		assert.GreaterOrEqual(t, p.X, 30.0)
		assert.GreaterOrEqual(t, p.Y, 30.0)
		assert.Less(t, nearest(p, full), 2.0)
	}
}

func TestSelect_RespectsLimits(t *testing.T) {
	t.Parallel()

	f := checkerFrame(200, 200, 8)
	roi := frames.Rect{X: 0, Y: 0, Width: 200, Height: 200}

	t.Run("max points", func(t *testing.T) {
		t.Parallel()
		pts, err := NewSelector(DefaultConfig()).Select(f, roi)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(pts), 100)
		assert.Greater(t, len(pts), 50, "checkerboard has hundreds of corners")

		cfg := DefaultConfig()
		cfg.MaxPoints = 2
		pts, err = NewSelector(cfg).Select(f, roi)
		require.NoError(t, err)
		assert.Len(t, pts, 2)
	})

	t.Run("min distance", func(t *testing.T) {
		t.Parallel()
		cfg := DefaultConfig()
		cfg.MinDistance = 12
		pts, err := NewSelector(cfg).Select(f, roi)
		require.NoError(t, err)
		for i := range pts {
			for j := i + 1; j < len(pts); j++ {
				d := math.Hypot(pts[i].X-pts[j].X, pts[i].Y-pts[j].Y)
				assert.GreaterOrEqual(t, d, 12.0)
			}
		}
	})
}

func TestSelect_Failures(t *testing.T) {
	t.Parallel()

	f := squareFrame(40, 40, 10, 10, 10)
	s := NewSelector(DefaultConfig())

	tests := []struct {
		name string
		roi  frames.Rect
	}{
		{"degenerate", frames.Rect{X: 0, Y: 0, Width: 0, Height: 10}},
		{"negative origin", frames.Rect{X: -1, Y: 0, Width: 10, Height: 10}},
		{"overflows frame", frames.Rect{X: 35, Y: 35, Width: 10, Height: 10}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Select(f, tt.roi)
			assert.ErrorIs(t, err, ErrInvalidROI)
		})
	}

	t.Run("flat image", func(t *testing.T) {
		flat := frames.Frame{Width: 30, Height: 30, Pix: make([]uint8, 900)}
		pts, err := s.Select(flat, flat.Bounds())
		assert.ErrorIs(t, err, ErrNoFeatures)
		assert.Empty(t, pts)
	})

	t.Run("empty frame", func(t *testing.T) {
		_, err := s.Select(frames.Frame{}, frames.Rect{Width: 1, Height: 1})
		assert.ErrorIs(t, err, ErrInvalidROI)
	})
}

func TestSelect_DoesNotMutateFrame(t *testing.T) {
	t.Parallel()

	f := checkerFrame(32, 32, 4)
	before := append([]uint8(nil), f.Pix...)
	_, err := NewSelector(DefaultConfig()).Select(f, f.Bounds())
	require.NoError(t, err)
	assert.Equal(t, before, f.Pix)
}

func TestMinEigenResponse_EdgeVersusCorner(t *testing.T) {
	t.Parallel()

	f := squareFrame(40, 40, 10, 10, 20)
	resp := MinEigenResponse(frames.PlaneFromFrame(f), 7)

	corner := resp.At(10, 10)
	edge := resp.At(20, 10) // middle of the top edge
	flat := resp.At(20, 20) // interior
	assert.Greater(t, corner, float32(0))
	assert.InDelta(t, 0, edge, 1e-3)
	assert.InDelta(t, 0, flat, 1e-3)
}

func TestNewSelectorDefaults(t *testing.T) {
	t.Parallel()
	s := NewSelector(Config{})
	assert.Equal(t, DefaultConfig().MaxPoints, s.Config().MaxPoints)
	assert.Equal(t, 0.3, s.Config().QualityLevel)
	assert.Equal(t, 7, s.Config().BlockSize)
}

func TestSelectorSatisfiesInterface(t *testing.T) {
	var _ PointSelector = NewSelector(DefaultConfig())
}
