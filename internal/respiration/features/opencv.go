//go:build gocv
// +build gocv

package features

import (
	"fmt"
	"image"

	"github.com/banshee-data/breath.report/internal/respiration/frames"
	"gocv.io/x/gocv"
)

// OpenCVSelector uses cv::goodFeaturesToTrack through gocv. gocv does
// not expose the block size, so OpenCV's default of 3 applies.
// This type is only available when building with the 'gocv' build tag.
type OpenCVSelector struct {
	cfg Config
}

// NewOpenCVSelector creates an OpenCV-backed selector.
func NewOpenCVSelector(cfg Config) (PointSelector, error) {
	return &OpenCVSelector{cfg: NewSelector(cfg).Config()}, nil
}

// Select implements PointSelector.
func (s *OpenCVSelector) Select(frame frames.Frame, roi frames.Rect) (frames.PointSet, error) {
	if frame.Empty() || !roi.Within(frame.Width, frame.Height) {
		return nil, fmt.Errorf("%w: roi=%s frame=%dx%d", ErrInvalidROI, roi, frame.Width, frame.Height)
	}

	img, err := gocv.NewMatFromBytes(frame.Height, frame.Width, gocv.MatTypeCV8U, frame.Pixels())
	if err != nil {
		return nil, fmt.Errorf("select: wrap frame: %w", err)
	}
	defer img.Close()

	region := img.Region(image.Rect(roi.X, roi.Y, roi.X+roi.Width, roi.Y+roi.Height))
	defer region.Close()

	corners := gocv.NewMat()
	defer corners.Close()
	gocv.GoodFeaturesToTrack(region, &corners, s.cfg.MaxPoints, s.cfg.QualityLevel, s.cfg.MinDistance)
	if corners.Empty() || corners.Rows() == 0 {
		return nil, ErrNoFeatures
	}

	pts := make(frames.PointSet, corners.Rows())
	for i := range pts {
		v := corners.GetVecfAt(i, 0)
		pts[i] = frames.Point{X: float64(v[0]) + float64(roi.X), Y: float64(v[1]) + float64(roi.Y)}
	}
	return pts, nil
}
