//go:build !gocv
// +build !gocv

package capture

import "fmt"

// NewDeviceSource is a stub implementation when OpenCV support is disabled.
// Build with -tags=gocv to enable it.
func NewDeviceSource(id int) (Source, error) {
	return nil, fmt.Errorf("camera capture not enabled: rebuild with -tags=gocv to open device %d", id)
}

// NewVideoFileSource is a stub implementation when OpenCV support is disabled.
// Build with -tags=gocv to enable it.
func NewVideoFileSource(path string) (Source, error) {
	return nil, fmt.Errorf("video capture not enabled: rebuild with -tags=gocv to open %s", path)
}
