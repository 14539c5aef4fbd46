// Package capture provides frame sources for respiration sessions:
// synthetic scenes, image sequences on disk and, with the gocv build tag,
// cameras and video files.
package capture

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/banshee-data/breath.report/internal/monitoring"
	"github.com/banshee-data/breath.report/internal/respiration/frames"
)

var logf = monitoring.Component("capture")

// Source yields grayscale frames in capture order. Next returns io.EOF at
// end of stream. Close releases any device or file handles.
type Source interface {
	Next(ctx context.Context) (frames.Frame, error)
	Close() error
}

// Open parses a source description and opens it:
//
//	synthetic      generated scene, see SyntheticConfig
//	dir:<path>     PNG/JPEG/GIF files in lexical order
//	device:<id>    camera index (gocv build only)
//	file:<path>    video file (gocv build only)
func Open(desc string, synth SyntheticConfig) (Source, error) {
	kind, arg, _ := strings.Cut(desc, ":")
	switch kind {
	case "", "synthetic":
		return NewSyntheticSource(synth), nil
	case "dir":
		src, err := NewImageDirSource(arg)
		if err != nil {
			return nil, err
		}
		return src, nil
	case "device":
		id, err := strconv.Atoi(arg)
		if err != nil {
			return nil, fmt.Errorf("invalid device id %q: %w", arg, err)
		}
		return NewDeviceSource(id)
	case "file":
		if arg == "" {
			return nil, fmt.Errorf("file source needs a path")
		}
		return NewVideoFileSource(arg)
	default:
		return nil, fmt.Errorf("unknown source %q (want synthetic, dir:<path>, device:<id> or file:<path>)", desc)
	}
}
