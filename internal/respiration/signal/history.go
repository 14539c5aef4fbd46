package signal

import (
	"time"
)

// DefaultCapacity holds ten seconds of samples at 30 fps.
const DefaultCapacity = 300

// Sample is one per-frame vertical displacement measurement.
type Sample struct {
	Value float64   // mean vertical displacement in pixels (positive is down)
	Frame int       // index of the frame that produced the sample
	At    time.Time // capture time of that frame
}

// History is a bounded FIFO of samples. When full, Append overwrites
// the oldest sample.
type History struct {
	samples  []Sample
	capacity int
	head     int // Points to next write position
	size     int // Current number of samples stored
}

// NewHistory creates a history buffer with the specified capacity.
func NewHistory(capacity int) *History {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &History{
		samples:  make([]Sample, capacity),
		capacity: capacity,
	}
}

// Append stores a sample, evicting the oldest if at capacity.
func (h *History) Append(s Sample) {
	h.samples[h.head] = s
	h.head = (h.head + 1) % h.capacity
	if h.size < h.capacity {
		h.size++
	}
}

// At returns the i-th sample counting from the oldest.
// Returns false if the index is out of range.
func (h *History) At(i int) (Sample, bool) {
	if i < 0 || i >= h.size {
		return Sample{}, false
	}
	idx := (h.head - h.size + i + h.capacity) % h.capacity
	return h.samples[idx], true
}

// Len returns the current number of samples in history.
func (h *History) Len() int {
	return h.size
}

// Capacity returns the maximum number of samples that can be stored.
func (h *History) Capacity() int {
	return h.capacity
}

// Full reports whether the next Append will evict a sample.
func (h *History) Full() bool {
	return h.size == h.capacity
}

// Clear removes all samples from history.
func (h *History) Clear() {
	for i := range h.samples {
		h.samples[i] = Sample{}
	}
	h.head = 0
	h.size = 0
}

// Samples returns a copy of all samples, oldest first.
func (h *History) Samples() []Sample {
	if h.size == 0 {
		return nil
	}
	out := make([]Sample, h.size)
	for i := range out {
		out[i], _ = h.At(i)
	}
	return out
}

// Values returns a copy of the sample values, oldest first. This is the
// sequence handed to the spectral estimator.
func (h *History) Values() []float64 {
	if h.size == 0 {
		return nil
	}
	out := make([]float64, h.size)
	for i := range out {
		s, _ := h.At(i)
		out[i] = s.Value
	}
	return out
}

// Span returns the time between the oldest and newest sample.
// Returns 0 if fewer than 2 samples are available.
func (h *History) Span() time.Duration {
	if h.size < 2 {
		return 0
	}
	first, _ := h.At(0)
	last, _ := h.At(h.size - 1)
	return last.At.Sub(first.At)
}

// EffectiveRateHz estimates the sample rate actually achieved over the
// buffered window, including gaps left by skipped frames. It returns 0
// when fewer than 2 timestamped samples are available.
func (h *History) EffectiveRateHz() float64 {
	span := h.Span()
	if span <= 0 {
		return 0
	}
	return float64(h.size-1) / span.Seconds()
}
