//go:build gocv
// +build gocv

package capture

import (
	"context"
	"fmt"
	"io"

	"github.com/banshee-data/breath.report/internal/respiration/frames"
	"gocv.io/x/gocv"
)

// VideoSource reads frames from a camera or video file through OpenCV.
// This type is only available when building with the 'gocv' build tag.
type VideoSource struct {
	name  string
	cap   *gocv.VideoCapture
	frame gocv.Mat
	gray  gocv.Mat
}

// NewDeviceSource opens camera id.
func NewDeviceSource(id int) (Source, error) {
	c, err := gocv.VideoCaptureDevice(id)
	if err != nil {
		return nil, fmt.Errorf("open camera %d: %w", id, err)
	}
	if !c.IsOpened() {
		c.Close()
		return nil, fmt.Errorf("cannot open camera %d", id)
	}
	logf("camera %d opened", id)
	return newVideoSource(fmt.Sprintf("device:%d", id), c), nil
}

// NewVideoFileSource opens a video file.
func NewVideoFileSource(path string) (Source, error) {
	c, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, fmt.Errorf("open video %s: %w", path, err)
	}
	logf("video %s opened", path)
	return newVideoSource("file:"+path, c), nil
}

func newVideoSource(name string, c *gocv.VideoCapture) *VideoSource {
	return &VideoSource{name: name, cap: c, frame: gocv.NewMat(), gray: gocv.NewMat()}
}

// Next reads one frame and converts it to grayscale. A failed read is
// end of stream.
func (s *VideoSource) Next(ctx context.Context) (frames.Frame, error) {
	if err := ctx.Err(); err != nil {
		return frames.Frame{}, err
	}
	if ok := s.cap.Read(&s.frame); !ok || s.frame.Empty() {
		return frames.Frame{}, io.EOF
	}
	if s.frame.Channels() == 1 {
		s.frame.CopyTo(&s.gray)
	} else {
		gocv.CvtColor(s.frame, &s.gray, gocv.ColorBGRToGray)
	}
	return frames.NewFrame(s.gray.Cols(), s.gray.Rows(), s.gray.ToBytes())
}

// Close releases the capture device and buffers.
func (s *VideoSource) Close() error {
	s.frame.Close()
	s.gray.Close()
	return s.cap.Close()
}
