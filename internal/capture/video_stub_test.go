//go:build !gocv
// +build !gocv

package capture

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVideoSourcesNeedGocv(t *testing.T) {
	_, err := NewDeviceSource(0)
	assert.ErrorContains(t, err, "-tags=gocv")

	_, err = Open("file:/tmp/clip.mp4", SyntheticConfig{})
	assert.ErrorContains(t, err, "-tags=gocv")
}
