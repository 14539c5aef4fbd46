//go:build gocv
// +build gocv

package flow

import (
	"fmt"
	"image"

	"github.com/banshee-data/breath.report/internal/respiration/frames"
	"gocv.io/x/gocv"
)

// OpenCVTracker delegates to cv::calcOpticalFlowPyrLK through gocv.
// This type is only available when building with the 'gocv' build tag.
type OpenCVTracker struct {
	cfg Config
}

// NewOpenCVTracker creates an OpenCV-backed tracker.
func NewOpenCVTracker(cfg Config) (PointTracker, error) {
	return &OpenCVTracker{cfg: NewTracker(cfg).Config()}, nil
}

// Track implements PointTracker.
func (t *OpenCVTracker) Track(prev, curr frames.Frame, prevPoints frames.PointSet) (frames.PointSet, frames.ValidityMask, error) {
	if prev.Empty() || curr.Empty() {
		return nil, nil, fmt.Errorf("track: %w", ErrEmptyFrame)
	}
	if !prev.SameSize(curr) {
		return nil, nil, fmt.Errorf("track: %w: %dx%d vs %dx%d", ErrFrameMismatch, prev.Width, prev.Height, curr.Width, curr.Height)
	}
	next := make(frames.PointSet, len(prevPoints))
	valid := make(frames.ValidityMask, len(prevPoints))
	if len(prevPoints) == 0 {
		return next, valid, nil
	}

	prevMat, err := gocv.NewMatFromBytes(prev.Height, prev.Width, gocv.MatTypeCV8U, prev.Pixels())
	if err != nil {
		return nil, nil, fmt.Errorf("track: wrap previous frame: %w", err)
	}
	defer prevMat.Close()
	currMat, err := gocv.NewMatFromBytes(curr.Height, curr.Width, gocv.MatTypeCV8U, curr.Pixels())
	if err != nil {
		return nil, nil, fmt.Errorf("track: wrap current frame: %w", err)
	}
	defer currMat.Close()

	prevPts := gocv.NewMatWithSize(len(prevPoints), 2, gocv.MatTypeCV32F)
	defer prevPts.Close()
	for i, p := range prevPoints {
		prevPts.SetFloatAt(i, 0, float32(p.X))
		prevPts.SetFloatAt(i, 1, float32(p.Y))
	}

	nextPts := gocv.NewMat()
	defer nextPts.Close()
	status := gocv.NewMat()
	defer status.Close()
	errMat := gocv.NewMat()
	defer errMat.Close()

	criteria := gocv.NewTermCriteria(gocv.Count|gocv.EPS, t.cfg.MaxIterations, t.cfg.Epsilon)
	gocv.CalcOpticalFlowPyrLKWithParams(prevMat, currMat, prevPts, nextPts, &status, &errMat,
		image.Pt(t.cfg.WindowSize, t.cfg.WindowSize), t.cfg.PyramidLevels, criteria, 0, t.cfg.MinEigThreshold)

	if nextPts.Empty() || status.Rows() != len(prevPoints) {
		return nil, nil, fmt.Errorf("track: optical flow returned %d statuses for %d points", status.Rows(), len(prevPoints))
	}

	for i, p := range prevPoints {
		var x, y float32
		if nextPts.Channels() == 2 {
			v := nextPts.GetVecfAt(i, 0)
			x, y = v[0], v[1]
		} else {
			x, y = nextPts.GetFloatAt(i, 0), nextPts.GetFloatAt(i, 1)
		}
		ok := status.GetUCharAt(i, 0) == 1 && float64(errMat.GetFloatAt(i, 0)) <= t.cfg.MaxError
		ok = ok && x >= 0 && y >= 0 && int(x) < curr.Width && int(y) < curr.Height
		if ok {
			next[i] = frames.Point{X: float64(x), Y: float64(y)}
		} else {
			next[i] = p
		}
		valid[i] = ok
	}
	return next, valid, nil
}
