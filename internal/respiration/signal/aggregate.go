// Package signal turns matched point pairs into a per-frame vertical
// displacement value and buffers those values for spectral analysis.
package signal

import (
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/breath.report/internal/respiration/frames"
)

// ErrMisaligned is returned when the point sets and validity mask do not
// share a length.
var ErrMisaligned = errors.New("point sets and validity mask are not index-aligned")

// Aggregate returns the mean of next[i].Y - prev[i].Y over indices where
// valid[i] is true. It returns false when no index is valid or the
// inputs are not the same length.
func Aggregate(prev, next frames.PointSet, valid frames.ValidityMask) (float64, bool) {
	if len(prev) != len(next) || len(prev) != len(valid) {
		return 0, false
	}
	var sum float64
	n := 0
	for i, ok := range valid {
		if !ok {
			continue
		}
		sum += next[i].Y - prev[i].Y
		n++
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

// Aggregator owns the displacement history for one session and is its
// only writer.
type Aggregator struct {
	history *History
	skipped int
	total   int
}

// NewAggregator creates an aggregator with an empty history.
func NewAggregator(capacity int) *Aggregator {
	return &Aggregator{history: NewHistory(capacity)}
}

// Observe aggregates one tracking step. When at least one point is valid
// the sample is appended and returned. A step with no valid points is a
// frame skip: nothing is appended and ok is false. Misaligned inputs
// return ErrMisaligned and are not counted.
func (a *Aggregator) Observe(prev, next frames.PointSet, valid frames.ValidityMask, frame int, at time.Time) (s Sample, ok bool, err error) {
	if len(prev) != len(next) || len(prev) != len(valid) {
		return Sample{}, false, fmt.Errorf("%w: prev=%d next=%d valid=%d", ErrMisaligned, len(prev), len(next), len(valid))
	}
	a.total++
	v, ok := Aggregate(prev, next, valid)
	if !ok {
		a.skipped++
		return Sample{}, false, nil
	}
	s = Sample{Value: v, Frame: frame, At: at}
	a.history.Append(s)
	return s, true, nil
}

// History returns the live history. Callers must not append to it.
func (a *Aggregator) History() *History { return a.history }

// Skipped returns the number of frames that produced no sample.
func (a *Aggregator) Skipped() int { return a.skipped }

// Observed returns the number of steps seen, skipped or not.
func (a *Aggregator) Observed() int { return a.total }
