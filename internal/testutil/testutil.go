// Package testutil provides shared fixtures for packages that consume
// session reports and serve them over HTTP.
package testutil

import (
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/banshee-data/breath.report/internal/respiration/pipeline"
	"github.com/banshee-data/breath.report/internal/respiration/signal"
	"github.com/banshee-data/breath.report/internal/respiration/spectrum"
)

// Epoch is the start time used by fixtures.
var Epoch = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

// SineHistory returns n samples of amp*sin(2*pi*hz*t) taken at rateHz,
// numbered from frame 1.
func SineHistory(n int, rateHz, hz, amp float64) []signal.Sample {
	out := make([]signal.Sample, n)
	for i := range out {
		ts := float64(i) / rateHz
		out[i] = signal.Sample{
			Value: amp * math.Sin(2*math.Pi*hz*ts),
			Frame: i + 1,
			At:    Epoch.Add(time.Duration(ts * float64(time.Second))),
		}
	}
	return out
}

// SineReport builds an estimated report for a 0.3 Hz breath sampled 300
// times at 30 Hz, analysed with the default band.
func SineReport(t testing.TB, sessionID string) pipeline.Report {
	t.Helper()
	hist := SineHistory(300, 30, 0.3, 0.1)
	values := make([]float64, len(hist))
	for i, s := range hist {
		values[i] = s.Value
	}
	a := spectrum.NewEstimator(spectrum.DefaultConfig()).Analyze(values)
	if !a.OK {
		t.Fatalf("fixture spectrum has no estimate")
	}
	return pipeline.Report{
		SessionID:       sessionID,
		StartedAt:       Epoch,
		EndedAt:         Epoch.Add(10 * time.Second),
		Status:          pipeline.StatusEstimated,
		Result:          a.Result,
		OK:              true,
		Spectrum:        a.Spectrum,
		Peak:            a.Peak,
		SampleRateHz:    30,
		EffectiveRateHz: 30,
		History:         hist,
		Stats:           pipeline.Stats{Frames: 300, Samples: 300, SeedPoints: 42},
	}
}

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t testing.TB, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// Serve runs a request through h and returns the recorder.
func Serve(h http.Handler, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

// DecodeJSON decodes the recorder body into v, failing the test on error.
func DecodeJSON(t testing.TB, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}
