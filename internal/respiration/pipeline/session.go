package pipeline

import (
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/banshee-data/breath.report/internal/config"
	"github.com/banshee-data/breath.report/internal/monitoring"
	"github.com/banshee-data/breath.report/internal/respiration/features"
	"github.com/banshee-data/breath.report/internal/respiration/flow"
	"github.com/banshee-data/breath.report/internal/respiration/frames"
	"github.com/banshee-data/breath.report/internal/respiration/signal"
	"github.com/banshee-data/breath.report/internal/respiration/spectrum"
	"github.com/banshee-data/breath.report/internal/timeutil"
	"github.com/google/uuid"
)

var logf = monitoring.Component("pipeline")

var (
	// ErrPrecondition classifies failures that stop a session before any
	// tracking happens: bad ROI, no features, no seed frame.
	ErrPrecondition = errors.New("precondition failed")
	// ErrTracking classifies failures while stepping frames.
	ErrTracking = errors.New("tracking failed")
	// ErrNotStarted is returned by Step before Start has succeeded.
	ErrNotStarted = errors.New("session not started")
	// ErrFinalized is returned by Step and Start after Finalize.
	ErrFinalized = errors.New("session already finalized")
	// ErrNoFrames is returned by Run when the source ends before a seed
	// frame is read.
	ErrNoFrames = errors.New("source produced no frames")
)

// Config holds the per-component settings for a session.
type Config struct {
	Features        features.Config
	Flow            flow.Config
	Spectrum        spectrum.Config
	HistoryCapacity int

	// Seed contrast is applied to the seed frame for feature selection
	// only. Alpha 1 and beta 0 disable it.
	SeedContrastAlpha float64
	SeedContrastBeta  float64

	// MaxFrames stops Run after this many stepped frames. Zero means no limit.
	MaxFrames int
}

// DefaultConfig returns the built-in session configuration.
func DefaultConfig() Config {
	return ConfigFromTuning(config.EmptyTuningConfig())
}

// ConfigFromTuning builds a session Config from a loaded TuningConfig.
func ConfigFromTuning(cfg *config.TuningConfig) Config {
	return Config{
		Features:          features.ConfigFromTuning(cfg),
		Flow:              flow.ConfigFromTuning(cfg),
		Spectrum:          spectrum.ConfigFromTuning(cfg),
		HistoryCapacity:   cfg.GetHistoryCapacity(),
		SeedContrastAlpha: cfg.GetSeedContrastAlpha(),
		SeedContrastBeta:  cfg.GetSeedContrastBeta(),
	}
}

// Deps are the optional collaborators of a session. Nil fields get the
// pure Go defaults built from Config.
type Deps struct {
	Selector features.PointSelector
	Tracker  flow.PointTracker
	Renderer Renderer
	Clock    timeutil.Clock
	ID       string
}

// OutcomeKind says whether a session can keep stepping.
type OutcomeKind int

const (
	Continue OutcomeKind = iota
	Fatal
)

func (k OutcomeKind) String() string {
	if k == Fatal {
		return "fatal"
	}
	return "continue"
}

// StepOutcome is the result of one Step.
type StepOutcome struct {
	Kind    OutcomeKind
	Reason  error // set when Kind is Fatal
	Sample  signal.Sample
	Sampled bool
}

// Fatal reports whether the session stopped.
func (o StepOutcome) Fatal() bool { return o.Kind == Fatal }

func fatal(err error) StepOutcome { return StepOutcome{Kind: Fatal, Reason: err} }

type state int

const (
	stateIdle state = iota
	stateRunning
	stateFailed
	stateFinalized
)

// Session is one measurement from seed frame to estimate. It owns the
// displacement history. A Session is not safe for concurrent use: Step,
// Finalize and Run must be called from one goroutine.
type Session struct {
	id        string
	cfg       Config
	selector  features.PointSelector
	tracker   flow.PointTracker
	estimator *spectrum.Estimator
	renderer  Renderer
	clock     timeutil.Clock

	agg    *signal.Aggregator
	prev   frames.Frame
	points frames.PointSet
	roi    frames.Rect

	state     state
	err       error
	stats     Stats
	startedAt time.Time
	report    *Report
}

// NewSession creates an idle session.
func NewSession(cfg Config, deps Deps) *Session {
	s := &Session{
		id:        deps.ID,
		cfg:       cfg,
		selector:  deps.Selector,
		tracker:   deps.Tracker,
		renderer:  deps.Renderer,
		clock:     deps.Clock,
		estimator: spectrum.NewEstimator(cfg.Spectrum),
		agg:       signal.NewAggregator(cfg.HistoryCapacity),
	}
	if s.id == "" {
		s.id = uuid.NewString()
	}
	if s.selector == nil {
		s.selector = features.NewSelector(cfg.Features)
	}
	if s.tracker == nil {
		s.tracker = flow.NewTracker(cfg.Flow)
	}
	if isNilRenderer(s.renderer) {
		s.renderer = nopRenderer{}
	}
	if s.clock == nil {
		s.clock = timeutil.RealClock{}
	}
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Stats returns the counters so far.
func (s *Session) Stats() Stats {
	st := s.stats
	st.Samples = s.agg.History().Len() + st.Evicted
	st.Skipped = s.agg.Skipped()
	return st
}

// History returns the live displacement history. Callers must not modify it.
func (s *Session) History() *signal.History { return s.agg.History() }

// Points returns a copy of the current tracking points.
func (s *Session) Points() frames.PointSet { return s.points.Clone() }

// Err returns the failure that stopped the session, if any.
func (s *Session) Err() error { return s.err }

// Start selects the seed points inside roi on the seed frame. The selector
// sees a contrast-adjusted copy; tracking starts from the original frame.
func (s *Session) Start(seed frames.Frame, roi frames.Rect) error {
	switch s.state {
	case stateFinalized:
		return ErrFinalized
	case stateFailed:
		return s.err
	case stateRunning:
		return fmt.Errorf("%w: session %s already started", ErrPrecondition, s.id)
	}
	s.startedAt = s.clock.Now()

	sel := seed
	if a, b := s.cfg.SeedContrastAlpha, s.cfg.SeedContrastBeta; a > 0 && (a != 1 || b != 0) {
		sel = seed.ScaleAbs(a, b)
	}
	pts, err := s.selector.Select(sel, roi)
	if err != nil {
		return s.fail(fmt.Errorf("%w: select features: %w", ErrPrecondition, err))
	}

	s.prev = seed
	s.points = pts
	s.roi = roi
	s.stats.SeedPoints = len(pts)
	s.state = stateRunning
	logf("session %s started: roi=%s frame=%dx%d seed_points=%d", s.id, roi, seed.Width, seed.Height, len(pts))
	return nil
}

// Step tracks the current points into frame and aggregates their vertical
// motion. A frame with no valid point is skipped, not fatal.
func (s *Session) Step(frame frames.Frame) StepOutcome {
	switch s.state {
	case stateIdle:
		return fatal(fmt.Errorf("%w: %w", ErrPrecondition, ErrNotStarted))
	case stateFailed:
		return fatal(s.err)
	case stateFinalized:
		return fatal(ErrFinalized)
	}

	at := s.clock.Now()
	idx := s.stats.Frames + 1

	next, valid, err := s.tracker.Track(s.prev, frame, s.points)
	if err != nil {
		return fatal(s.fail(fmt.Errorf("%w: frame %d: %w", ErrTracking, idx, err)))
	}
	full := s.agg.History().Full()
	sample, ok, err := s.agg.Observe(s.points, next, valid, idx, at)
	if err != nil {
		return fatal(s.fail(fmt.Errorf("%w: frame %d: %w", ErrTracking, idx, err)))
	}
	if ok && full {
		s.stats.Evicted++
	}
	s.stats.Frames = idx

	update := FrameUpdate{
		SessionID: s.id,
		Frame:     idx,
		At:        at,
		Sample:    sample,
		Sampled:   ok,
		Tracked:   len(next),
		Valid:     valid.Count(),
		Motion:    motion(s.points, next, valid),
		History:   s.agg.History().Samples(),
	}

	s.prev = frame
	s.points = next
	s.renderer.OnFrame(update)
	return StepOutcome{Kind: Continue, Sample: sample, Sampled: ok}
}

// Finalize runs the estimator over the whole history, hands the report to
// the renderer and returns the estimate. Only the first call does any
// work; later calls return the same answer. A failed session finalizes
// with no estimate.
func (s *Session) Finalize() (spectrum.Result, bool) {
	if s.report != nil {
		return s.report.Result, s.report.OK
	}
	rep := Report{
		SessionID:    s.id,
		StartedAt:    s.startedAt,
		EndedAt:      s.clock.Now(),
		SampleRateHz: s.cfg.Spectrum.SampleRateHz,
		History:      s.agg.History().Samples(),
		Stats:        s.Stats(),
		Peak:         -1,
		Err:          s.err,
	}
	if rep.StartedAt.IsZero() {
		rep.StartedAt = rep.EndedAt
	}
	rep.EffectiveRateHz = s.agg.History().EffectiveRateHz()

	if s.state == stateFailed {
		rep.Status = StatusFailed
	} else {
		a := s.estimator.Analyze(s.agg.History().Values())
		rep.Result = a.Result
		rep.OK = a.OK
		rep.Spectrum = a.Spectrum
		rep.Peak = a.Peak
		rep.Status = StatusUnavailable
		if a.OK {
			rep.Status = StatusEstimated
		}
	}

	s.state = stateFinalized
	s.report = &rep
	logf("session %s finalized: status=%s frames=%d samples=%d skipped=%d", s.id, rep.Status, rep.Stats.Frames, len(rep.History), rep.Stats.Skipped)
	s.renderer.OnResult(rep)
	return rep.Result, rep.OK
}

// Report returns the final report. It is false until Finalize has run.
func (s *Session) Report() (Report, bool) {
	if s.report == nil {
		return Report{}, false
	}
	return *s.report, true
}

func (s *Session) fail(err error) error {
	s.err = err
	s.state = stateFailed
	logf("session %s failed: %v", s.id, err)
	return err
}

func motion(prev, next frames.PointSet, valid frames.ValidityMask) []Motion {
	out := make([]Motion, 0, valid.Count())
	for i, ok := range valid {
		if ok && i < len(prev) && i < len(next) {
			out = append(out, Motion{From: prev[i], To: next[i]})
		}
	}
	return out
}

// isNilRenderer also catches an interface holding a nil pointer.
func isNilRenderer(r Renderer) bool {
	if r == nil {
		return true
	}
	v := reflect.ValueOf(r)
	switch v.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func, reflect.Interface:
		return v.IsNil()
	}
	return false
}
