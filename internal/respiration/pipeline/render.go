package pipeline

import (
	"fmt"
	"time"

	"github.com/banshee-data/breath.report/internal/respiration/frames"
	"github.com/banshee-data/breath.report/internal/respiration/signal"
	"github.com/banshee-data/breath.report/internal/respiration/spectrum"
)

// Motion is the displacement of one valid point between two frames.
type Motion struct {
	From frames.Point `json:"from"`
	To   frames.Point `json:"to"`
}

// Dy returns the vertical component of the motion.
func (m Motion) Dy() float64 { return m.To.Y - m.From.Y }

// FrameUpdate is handed to renderers once per processed frame. History is
// a copy owned by the receiver.
type FrameUpdate struct {
	SessionID string          `json:"session_id"`
	Frame     int             `json:"frame"`
	At        time.Time       `json:"at"`
	Sample    signal.Sample   `json:"sample"`
	Sampled   bool            `json:"sampled"` // false on a skipped frame
	Tracked   int             `json:"tracked"`
	Valid     int             `json:"valid"`
	Motion    []Motion        `json:"motion,omitempty"`
	History   []signal.Sample `json:"history"`
}

// Status is the final state of a session.
type Status string

const (
	StatusEstimated   Status = "estimated"
	StatusUnavailable Status = "unavailable"
	StatusFailed      Status = "failed"
)

// Stats counts what a session processed.
type Stats struct {
	Frames     int `json:"frames"` // frames stepped, excluding the seed frame
	Samples    int `json:"samples"`
	Skipped    int `json:"skipped_frames"`
	SeedPoints int `json:"seed_points"`
	Evicted    int `json:"evicted"` // samples dropped from the front of the history
}

// Report is handed to renderers once, when the session finalizes.
type Report struct {
	SessionID       string            `json:"session_id"`
	StartedAt       time.Time         `json:"started_at"`
	EndedAt         time.Time         `json:"ended_at"`
	Status          Status            `json:"status"`
	Result          spectrum.Result   `json:"result"`
	OK              bool              `json:"ok"`
	Spectrum        spectrum.Spectrum `json:"spectrum"`
	Peak            int               `json:"peak"`
	SampleRateHz    float64           `json:"sample_rate_hz"`
	EffectiveRateHz float64           `json:"effective_rate_hz"`
	History         []signal.Sample   `json:"history"`
	Stats           Stats             `json:"stats"`
	Err             error             `json:"-"`
}

// Failure returns the failure reason, or "" when the session did not fail.
func (r Report) Failure() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// Summary is the one-line operator message for the outcome.
func (r Report) Summary() string {
	switch {
	case r.OK:
		return fmt.Sprintf("Estimated respiratory rate: %.1f breaths per minute", r.Result.RateBPM)
	case r.Status == StatusFailed:
		return fmt.Sprintf("Session failed: %s", r.Failure())
	default:
		return "Could not estimate respiratory rate."
	}
}

// Renderer receives per-frame snapshots and the final report. OnFrame is
// called synchronously from Step and must return quickly.
type Renderer interface {
	OnFrame(FrameUpdate)
	OnResult(Report)
}

// MultiRenderer fans updates out to several renderers in order.
type MultiRenderer []Renderer

// OnFrame forwards the update to every renderer.
func (m MultiRenderer) OnFrame(u FrameUpdate) {
	for _, r := range m {
		if !isNilRenderer(r) {
			r.OnFrame(u)
		}
	}
}

// OnResult forwards the report to every renderer.
func (m MultiRenderer) OnResult(rep Report) {
	for _, r := range m {
		if !isNilRenderer(r) {
			r.OnResult(rep)
		}
	}
}

type nopRenderer struct{}

func (nopRenderer) OnFrame(FrameUpdate) {}
func (nopRenderer) OnResult(Report)     {}
