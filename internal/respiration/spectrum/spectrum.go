// Package spectrum estimates the dominant periodic component of a
// displacement signal inside a frequency band.
//
// The estimate is computed once per session over the whole history:
// subtract the mean, take the one-sided magnitude spectrum, keep the bins
// strictly inside (BandLowHz, BandHighHz) and report the first bin with the
// largest magnitude. Nothing is windowed or interpolated, so the frequency
// is quantized to Resolution(n, rate).
package spectrum

import (
	"math"
	"math/cmplx"

	"github.com/banshee-data/breath.report/internal/config"
	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Result is a single respiratory-rate estimate.
type Result struct {
	FrequencyHz float64 `json:"frequency_hz"`
	Magnitude   float64 `json:"magnitude"`
	RateBPM     float64 `json:"rate_bpm"`
}

// Spectrum is the band-restricted one-sided magnitude spectrum.
// Frequencies are strictly increasing.
type Spectrum struct {
	Frequencies []float64 `json:"frequencies"`
	Magnitudes  []float64 `json:"magnitudes"`
	Resolution  float64   `json:"resolution_hz"`
}

// Len returns the number of in-band bins.
func (s Spectrum) Len() int { return len(s.Frequencies) }

// Analysis is everything the estimator knows after one pass.
type Analysis struct {
	Result   Result
	OK       bool // false when no in-band component exists
	Samples  int
	RateHz   float64
	Spectrum Spectrum
	Peak     int // index into Spectrum, -1 when !OK
}

// Config holds the estimator parameters.
type Config struct {
	SampleRateHz float64
	BandLowHz    float64
	BandHighHz   float64
}

// DefaultConfig returns 30 Hz sampling and the 0.1-1.0 Hz band.
func DefaultConfig() Config {
	return ConfigFromTuning(config.EmptyTuningConfig())
}

// ConfigFromTuning builds a Config from a loaded TuningConfig.
func ConfigFromTuning(cfg *config.TuningConfig) Config {
	return Config{
		SampleRateHz: cfg.GetSampleRateHz(),
		BandLowHz:    cfg.GetBandLowHz(),
		BandHighHz:   cfg.GetBandHighHz(),
	}
}

// Estimator runs the spectral analysis with a fixed configuration.
// It holds no state between calls and is safe for concurrent use.
type Estimator struct {
	cfg Config
}

// NewEstimator creates an estimator.
func NewEstimator(cfg Config) *Estimator {
	return &Estimator{cfg: cfg}
}

// Config returns the estimator configuration.
func (e *Estimator) Config() Config { return e.cfg }

// Estimate runs the analysis with the default band at the given rate.
func Estimate(samples []float64, sampleRateHz float64) (Result, bool) {
	cfg := DefaultConfig()
	cfg.SampleRateHz = sampleRateHz
	a := NewEstimator(cfg).Analyze(samples)
	return a.Result, a.OK
}

// Resolution returns the bin spacing in Hz for n samples at rate Hz.
func Resolution(n int, sampleRateHz float64) float64 {
	if n <= 0 || sampleRateHz <= 0 {
		return 0
	}
	return sampleRateHz / float64(n)
}

// Estimate returns the dominant in-band component of samples.
func (e *Estimator) Estimate(samples []float64) (Result, bool) {
	a := e.Analyze(samples)
	return a.Result, a.OK
}

// Analyze computes the band spectrum and its peak. samples is not
// modified. Fewer than two samples, a non-positive rate, non-finite input
// or an empty band all yield OK == false.
func (e *Estimator) Analyze(samples []float64) Analysis {
	n := len(samples)
	rate := e.cfg.SampleRateHz
	out := Analysis{Samples: n, RateHz: rate, Peak: -1}
	if n < 2 || rate <= 0 || !finite(samples) {
		return out
	}
	out.Spectrum.Resolution = Resolution(n, rate)

	mean := stat.Mean(samples, nil)
	detrended := make([]float64, n)
	for i, v := range samples {
		detrended[i] = v - mean
	}

	coeffs := fourier.NewFFT(n).Coefficients(nil, detrended)
	for k, c := range coeffs {
		// k*rate/n rather than fft.Freq(k)*rate keeps band edges exact.
		f := float64(k) * rate / float64(n)
		if f <= e.cfg.BandLowHz || f >= e.cfg.BandHighHz {
			continue
		}
		out.Spectrum.Frequencies = append(out.Spectrum.Frequencies, f)
		out.Spectrum.Magnitudes = append(out.Spectrum.Magnitudes, cmplx.Abs(c))
	}
	if out.Spectrum.Len() == 0 {
		return out
	}

	// MaxIdx returns the first index on ties, i.e. the lowest frequency.
	peak := floats.MaxIdx(out.Spectrum.Magnitudes)
	f := out.Spectrum.Frequencies[peak]
	out.Peak = peak
	out.OK = true
	out.Result = Result{
		FrequencyHz: f,
		Magnitude:   out.Spectrum.Magnitudes[peak],
		RateBPM:     f * 60,
	}
	return out
}

func finite(s []float64) bool {
	for _, v := range s {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
