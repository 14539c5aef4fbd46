package capture

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/banshee-data/breath.report/internal/respiration/frames"
	"github.com/banshee-data/breath.report/internal/security"
)

var imageExts = map[string]bool{".png": true, ".jpg": true, ".jpeg": true, ".gif": true}

// ImageDirSource replays an image sequence from a directory. Files are
// read lazily, one per Next call.
type ImageDirSource struct {
	dir   string
	files []string
	next  int
}

// NewImageDirSource lists the images in dir. Subdirectories and files
// with other extensions are ignored.
func NewImageDirSource(dir string) (*ImageDirSource, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read frame directory: %w", err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !imageExts[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		files = append(files, e.Name())
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no images found in %s", dir)
	}
	sort.Strings(files)
	logf("image sequence %s: %d frames", dir, len(files))
	return &ImageDirSource{dir: dir, files: files}, nil
}

// Len returns the number of frames in the sequence.
func (s *ImageDirSource) Len() int { return len(s.files) }

// Next decodes the next image and converts it to grayscale.
func (s *ImageDirSource) Next(ctx context.Context) (frames.Frame, error) {
	if err := ctx.Err(); err != nil {
		return frames.Frame{}, err
	}
	if s.next >= len(s.files) {
		return frames.Frame{}, io.EOF
	}
	path := filepath.Join(s.dir, s.files[s.next])
	s.next++

	if err := security.ValidatePathWithinDirectory(path, s.dir); err != nil {
		return frames.Frame{}, err
	}
	f, err := os.Open(path)
	if err != nil {
		return frames.Frame{}, fmt.Errorf("open frame: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return frames.Frame{}, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return frames.FromImage(img), nil
}

// Close is a no-op.
func (s *ImageDirSource) Close() error { return nil }
