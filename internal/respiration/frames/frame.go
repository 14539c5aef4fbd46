package frames

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"
)

// ErrEmptyFrame is returned when a frame has no pixels.
var ErrEmptyFrame = errors.New("frame is empty")

// Frame is a single-channel 8-bit intensity image stored row-major.
// A Frame is treated as immutable once constructed; helpers that
// adjust pixels return a new Frame.
type Frame struct {
	Width  int
	Height int
	Pix    []uint8
}

// NewFrame builds a Frame from a row-major pixel buffer. The buffer is
// copied so the caller may reuse it.
func NewFrame(width, height int, pix []uint8) (Frame, error) {
	if width <= 0 || height <= 0 {
		return Frame{}, fmt.Errorf("invalid frame size %dx%d: %w", width, height, ErrEmptyFrame)
	}
	if len(pix) != width*height {
		return Frame{}, fmt.Errorf("pixel buffer has %d bytes, want %d for %dx%d", len(pix), width*height, width, height)
	}
	buf := make([]uint8, len(pix))
	copy(buf, pix)
	return Frame{Width: width, Height: height, Pix: buf}, nil
}

// FromImage converts any image to a grayscale Frame using the standard
// luma weights of color.GrayModel. The frame origin is the image's
// Bounds().Min.
func FromImage(img image.Image) Frame {
	b := img.Bounds()
	f := Frame{Width: b.Dx(), Height: b.Dy(), Pix: make([]uint8, b.Dx()*b.Dy())}
	if g, ok := img.(*image.Gray); ok {
		for y := 0; y < f.Height; y++ {
			row := g.Pix[g.PixOffset(b.Min.X, b.Min.Y+y):]
			copy(f.Pix[y*f.Width:(y+1)*f.Width], row[:f.Width])
		}
		return f
	}
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			c := color.GrayModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.Gray)
			f.Pix[y*f.Width+x] = c.Y
		}
	}
	return f
}

// Empty reports whether the frame has no pixels.
func (f Frame) Empty() bool {
	return f.Width <= 0 || f.Height <= 0 || len(f.Pix) < f.Width*f.Height
}

// Pixels returns the first Width*Height bytes of Pix. Buffers handed to
// code that infers the size from the slice length must go through it.
func (f Frame) Pixels() []uint8 {
	return f.Pix[:f.Width*f.Height]
}

// At returns the intensity at (x, y). Callers must stay in bounds.
func (f Frame) At(x, y int) uint8 {
	return f.Pix[y*f.Width+x]
}

// SameSize reports whether two frames share dimensions.
func (f Frame) SameSize(o Frame) bool {
	return f.Width == o.Width && f.Height == o.Height
}

// Bounds returns the frame rectangle anchored at the origin.
func (f Frame) Bounds() Rect {
	return Rect{X: 0, Y: 0, Width: f.Width, Height: f.Height}
}

// Image returns an *image.Gray view of the frame for encoders and
// renderers. The pixel buffer is shared, not copied.
func (f Frame) Image() *image.Gray {
	return &image.Gray{Pix: f.Pix, Stride: f.Width, Rect: image.Rect(0, 0, f.Width, f.Height)}
}

// ScaleAbs returns a copy with every pixel mapped to |alpha*p + beta|,
// rounded and saturated to [0, 255]. With alpha 1.5 and beta 60 this
// brightens a dim seed frame before corner detection.
func (f Frame) ScaleAbs(alpha, beta float64) Frame {
	out := Frame{Width: f.Width, Height: f.Height, Pix: make([]uint8, len(f.Pix))}
	for i, p := range f.Pix {
		v := math.Abs(alpha*float64(p) + beta)
		v = math.Round(v)
		if v > 255 {
			v = 255
		}
		out.Pix[i] = uint8(v)
	}
	return out
}
