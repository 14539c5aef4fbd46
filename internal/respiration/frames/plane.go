package frames

import "math"

// Plane is a float32 intensity image used for gradient and pyramid
// computations. Reads outside the plane replicate the nearest border
// pixel.
type Plane struct {
	Width  int
	Height int
	Data   []float32
}

// NewPlane allocates a zeroed plane.
func NewPlane(width, height int) Plane {
	return Plane{Width: width, Height: height, Data: make([]float32, width*height)}
}

// PlaneFromFrame converts an 8-bit frame to a float plane.
func PlaneFromFrame(f Frame) Plane {
	p := NewPlane(f.Width, f.Height)
	for i, v := range f.Pixels() {
		p.Data[i] = float32(v)
	}
	return p
}

// Crop copies the rectangle r out of the plane. r must lie within it.
func (p Plane) Crop(r Rect) Plane {
	out := NewPlane(r.Width, r.Height)
	for y := 0; y < r.Height; y++ {
		src := p.Data[(r.Y+y)*p.Width+r.X:]
		copy(out.Data[y*r.Width:(y+1)*r.Width], src[:r.Width])
	}
	return out
}

// At returns the value at (x, y) with border replication.
func (p Plane) At(x, y int) float32 {
	if x < 0 {
		x = 0
	} else if x >= p.Width {
		x = p.Width - 1
	}
	if y < 0 {
		y = 0
	} else if y >= p.Height {
		y = p.Height - 1
	}
	return p.Data[y*p.Width+x]
}

// Bilinear samples the plane at a sub-pixel location.
func (p Plane) Bilinear(x, y float64) float64 {
	x0 := math.Floor(x)
	y0 := math.Floor(y)
	ax := x - x0
	ay := y - y0
	ix, iy := int(x0), int(y0)
	v00 := float64(p.At(ix, iy))
	v10 := float64(p.At(ix+1, iy))
	v01 := float64(p.At(ix, iy+1))
	v11 := float64(p.At(ix+1, iy+1))
	return (1-ay)*((1-ax)*v00+ax*v10) + ay*((1-ax)*v01+ax*v11)
}

// Gradients returns the horizontal and vertical derivatives of the
// plane using 3x3 Sobel kernels normalised to intensity units per pixel.
func (p Plane) Gradients() (gx, gy Plane) {
	gx = NewPlane(p.Width, p.Height)
	gy = NewPlane(p.Width, p.Height)
	for y := 0; y < p.Height; y++ {
		for x := 0; x < p.Width; x++ {
			tl, tc, tr := p.At(x-1, y-1), p.At(x, y-1), p.At(x+1, y-1)
			ml, mr := p.At(x-1, y), p.At(x+1, y)
			bl, bc, br := p.At(x-1, y+1), p.At(x, y+1), p.At(x+1, y+1)
			i := y*p.Width + x
			gx.Data[i] = ((tr + 2*mr + br) - (tl + 2*ml + bl)) / 8
			gy.Data[i] = ((bl + 2*bc + br) - (tl + 2*tc + tr)) / 8
		}
	}
	return gx, gy
}

var pyrKernel = [5]float32{1.0 / 16, 4.0 / 16, 6.0 / 16, 4.0 / 16, 1.0 / 16}

// PyrDown blurs with a 5-tap binomial kernel and drops every other row
// and column. The result is ceil(w/2) x ceil(h/2).
func (p Plane) PyrDown() Plane {
	tmp := NewPlane(p.Width, p.Height)
	for y := 0; y < p.Height; y++ {
		for x := 0; x < p.Width; x++ {
			var s float32
			for k := -2; k <= 2; k++ {
				s += pyrKernel[k+2] * p.At(x+k, y)
			}
			tmp.Data[y*p.Width+x] = s
		}
	}
	w, h := (p.Width+1)/2, (p.Height+1)/2
	out := NewPlane(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var s float32
			for k := -2; k <= 2; k++ {
				s += pyrKernel[k+2] * tmp.At(2*x, 2*y+k)
			}
			out.Data[y*w+x] = s
		}
	}
	return out
}

// Pyramid returns levels+1 planes, finest first. Levels stop early once
// a plane would shrink below minSide pixels on either axis.
func Pyramid(f Frame, levels, minSide int) []Plane {
	base := PlaneFromFrame(f)
	out := []Plane{base}
	for l := 0; l < levels; l++ {
		prev := out[len(out)-1]
		if (prev.Width+1)/2 < minSide || (prev.Height+1)/2 < minSide {
			break
		}
		out = append(out, prev.PyrDown())
	}
	return out
}
