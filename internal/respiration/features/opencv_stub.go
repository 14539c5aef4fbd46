//go:build !gocv
// +build !gocv

package features

import "fmt"

// NewOpenCVSelector is a stub implementation when OpenCV support is disabled.
// Build with -tags=gocv to enable it.
func NewOpenCVSelector(cfg Config) (PointSelector, error) {
	return nil, fmt.Errorf("OpenCV support not enabled: rebuild with -tags=gocv to use the OpenCV selector")
}
