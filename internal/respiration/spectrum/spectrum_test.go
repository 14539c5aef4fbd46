package spectrum

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sinusoid(n int, rate, freq, amp float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = amp * math.Sin(2*math.Pi*freq*float64(i)/rate)
	}
	return out
}

func TestEstimate_Sinusoid(t *testing.T) {
	t.Parallel()

	samples := sinusoid(300, 30, 0.3, 2)
	res, ok := Estimate(samples, 30)
	require.True(t, ok)
	bin := Resolution(300, 30)
	assert.InDelta(t, 18.0, res.RateBPM, bin*60)
	assert.InDelta(t, 0.3, res.FrequencyHz, 1e-9)
	assert.InDelta(t, res.FrequencyHz*60, res.RateBPM, 1e-12)
	assert.Greater(t, res.Magnitude, 0.0)
}

func TestEstimate_OffsetAndDrift(t *testing.T) {
	t.Parallel()

	// A large DC offset is removed by detrending and must not leak into
	// the band.
	samples := sinusoid(300, 30, 0.5, 0.8)
	for i := range samples {
		samples[i] += 250
	}
	res, ok := Estimate(samples, 30)
	require.True(t, ok)
	assert.InDelta(t, 30.0, res.RateBPM, 1e-9)
}

func TestEstimate_Idempotent(t *testing.T) {
	t.Parallel()

	samples := sinusoid(257, 30, 0.27, 1)
	for i := range samples {
		samples[i] += 0.1 * math.Cos(float64(i))
	}
	e := NewEstimator(DefaultConfig())
	first := e.Analyze(samples)
	second := e.Analyze(samples)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("Analyze not repeatable (-first +second):\n%s", diff)
	}
}

func TestEstimate_DoesNotMutateInput(t *testing.T) {
	t.Parallel()

	samples := sinusoid(64, 30, 0.5, 3)
	before := append([]float64(nil), samples...)
	_, _ = Estimate(samples, 30)
	assert.Equal(t, before, samples)
}

func TestEstimate_Insufficient(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		samples []float64
		rate    float64
	}{
		{"nil", nil, 30},
		{"empty", []float64{}, 30},
		{"single", []float64{1.5}, 30},
		{"zero rate", sinusoid(300, 30, 0.3, 1), 0},
		{"negative rate", sinusoid(300, 30, 0.3, 1), -30},
		{"nan", []float64{0, math.NaN(), 1, 2}, 30},
		{"empty band", []float64{1, -1}, 30},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, ok := Estimate(tt.samples, tt.rate)
			assert.False(t, ok)
			assert.Equal(t, Result{}, res)
		})
	}
}

func TestAnalyze_BandBins(t *testing.T) {
	t.Parallel()

	// 300 samples at 30 Hz put bins exactly on 0.1 and 1.0 Hz; both edges
	// are excluded.
	a := NewEstimator(DefaultConfig()).Analyze(sinusoid(300, 30, 0.3, 1))
	require.True(t, a.OK)
	assert.Equal(t, 0.1, a.Spectrum.Resolution)
	require.Equal(t, 8, a.Spectrum.Len())
	assert.Len(t, a.Spectrum.Magnitudes, a.Spectrum.Len())

	for i, f := range a.Spectrum.Frequencies {
		assert.Greater(t, f, 0.1)
		assert.Less(t, f, 1.0)
		if i > 0 {
			assert.Greater(t, f, a.Spectrum.Frequencies[i-1])
		}
	}
	assert.Equal(t, a.Result.FrequencyHz, a.Spectrum.Frequencies[a.Peak])
	assert.Equal(t, a.Result.Magnitude, a.Spectrum.Magnitudes[a.Peak])
}

func TestAnalyze_OutOfBandComponentIgnored(t *testing.T) {
	t.Parallel()

	// 0.05 Hz is below the band and much stronger than the 0.4 Hz tone.
	slow := sinusoid(600, 30, 0.05, 10)
	fast := sinusoid(600, 30, 0.4, 1)
	for i := range slow {
		slow[i] += fast[i]
	}
	res, ok := Estimate(slow, 30)
	require.True(t, ok)
	assert.InDelta(t, 0.4, res.FrequencyHz, 1e-9)
	assert.InDelta(t, 24.0, res.RateBPM, 1e-9)
}

func TestAnalyze_CustomBand(t *testing.T) {
	t.Parallel()

	samples := sinusoid(300, 30, 0.3, 1)
	fast := sinusoid(300, 30, 1.5, 0.5)
	for i := range samples {
		samples[i] += fast[i]
	}
	e := NewEstimator(Config{SampleRateHz: 30, BandLowHz: 1.0, BandHighHz: 2.0})
	res, ok := e.Estimate(samples)
	require.True(t, ok)
	assert.InDelta(t, 1.5, res.FrequencyHz, 1e-9)
}

func TestAnalyze_ConstantSignal(t *testing.T) {
	t.Parallel()

	samples := make([]float64, 120)
	for i := range samples {
		samples[i] = 4
	}
	a := NewEstimator(DefaultConfig()).Analyze(samples)
	require.True(t, a.OK, "a non-empty band always has a first maximum")
	assert.InDelta(t, 0, a.Result.Magnitude, 1e-9)
}

func TestResolution(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 0.1, Resolution(300, 30))
	assert.Equal(t, 0.05, Resolution(600, 30))
	assert.Zero(t, Resolution(0, 30))
	assert.Zero(t, Resolution(10, 0))
}

func TestDefaultConfig(t *testing.T) {
	t.Parallel()
	assert.Equal(t, Config{SampleRateHz: 30, BandLowHz: 0.1, BandHighHz: 1.0}, DefaultConfig())
}
