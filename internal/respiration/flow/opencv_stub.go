//go:build !gocv
// +build !gocv

package flow

import "fmt"

// NewOpenCVTracker is a stub implementation when OpenCV support is disabled.
// Build with -tags=gocv to enable it.
func NewOpenCVTracker(cfg Config) (PointTracker, error) {
	return nil, fmt.Errorf("OpenCV support not enabled: rebuild with -tags=gocv to use the OpenCV tracker")
}
