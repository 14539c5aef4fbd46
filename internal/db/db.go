// Package db persists respiration session summaries in sqlite and exposes
// the database on the debug admin routes.
package db

import (
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/banshee-data/breath.report/internal/monitoring"
	"github.com/banshee-data/breath.report/internal/respiration/pipeline"
	_ "modernc.org/sqlite"
)

var logf = monitoring.Component("db")

// ErrNotFound is returned when a session id has no row.
var ErrNotFound = errors.New("session not found")

type DB struct {
	*sql.DB
	path string
}

// OpenDB opens the database at path without touching the schema.
func OpenDB(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := sqlDB.Exec(pragma); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}
	return &DB{DB: sqlDB, path: path}, nil
}

// NewDB opens the database at path and applies all pending migrations.
func NewDB(path string) (*DB, error) {
	db, err := OpenDB(path)
	if err != nil {
		return nil, err
	}
	if err := db.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Path returns the file the database was opened from.
func (db *DB) Path() string { return db.path }

// SessionRecord is the stored summary of one finished session. Estimate
// fields are nil when no estimate was produced.
type SessionRecord struct {
	SessionID       string    `json:"session_id"`
	StartedAt       time.Time `json:"started_at"`
	EndedAt         time.Time `json:"ended_at"`
	Status          string    `json:"status"`
	Frames          int       `json:"frames"`
	Samples         int       `json:"samples"`
	SkippedFrames   int       `json:"skipped_frames"`
	SeedPoints      int       `json:"seed_points"`
	SampleRateHz    float64   `json:"sample_rate_hz"`
	EffectiveRateHz float64   `json:"effective_rate_hz"`
	FrequencyHz     *float64  `json:"frequency_hz,omitempty"`
	Magnitude       *float64  `json:"magnitude,omitempty"`
	RateBPM         *float64  `json:"rate_bpm,omitempty"`
	Failure         string    `json:"failure,omitempty"`
}

// Duration returns the wall time the session covered.
func (r *SessionRecord) Duration() time.Duration {
	return r.EndedAt.Sub(r.StartedAt)
}

// String is used in log lines.
func (r *SessionRecord) String() string {
	if r.RateBPM != nil {
		return fmt.Sprintf("%s %s %.1f bpm (%d frames)", r.SessionID, r.Status, *r.RateBPM, r.Frames)
	}
	return fmt.Sprintf("%s %s (%d frames)", r.SessionID, r.Status, r.Frames)
}

// RecordFromReport flattens a final report into a row.
func RecordFromReport(rep pipeline.Report) SessionRecord {
	rec := SessionRecord{
		SessionID:       rep.SessionID,
		StartedAt:       rep.StartedAt,
		EndedAt:         rep.EndedAt,
		Status:          string(rep.Status),
		Frames:          rep.Stats.Frames,
		Samples:         rep.Stats.Samples,
		SkippedFrames:   rep.Stats.Skipped,
		SeedPoints:      rep.Stats.SeedPoints,
		SampleRateHz:    rep.SampleRateHz,
		EffectiveRateHz: rep.EffectiveRateHz,
		Failure:         rep.Failure(),
	}
	if rep.OK {
		f, m, bpm := rep.Result.FrequencyHz, rep.Result.Magnitude, rep.Result.RateBPM
		rec.FrequencyHz, rec.Magnitude, rec.RateBPM = &f, &m, &bpm
	}
	return rec
}

// RecordSession stores the summary of a finished session. Recording the
// same session id twice replaces the earlier row.
func (db *DB) RecordSession(rep pipeline.Report) error {
	if rep.SessionID == "" {
		return fmt.Errorf("session id is required")
	}
	rec := RecordFromReport(rep)
	_, err := db.Exec(`
		INSERT OR REPLACE INTO sessions (
			session_id, started_at, ended_at, status,
			frames, samples, skipped_frames, seed_points,
			sample_rate_hz, effective_rate_hz,
			frequency_hz, magnitude, rate_bpm, failure
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.SessionID, unixSeconds(rec.StartedAt), unixSeconds(rec.EndedAt), rec.Status,
		rec.Frames, rec.Samples, rec.SkippedFrames, rec.SeedPoints,
		rec.SampleRateHz, finiteOrNull(rec.EffectiveRateHz),
		rec.FrequencyHz, rec.Magnitude, rec.RateBPM, nullString(rec.Failure),
	)
	if err != nil {
		return fmt.Errorf("failed to record session %s: %w", rec.SessionID, err)
	}
	logf("recorded session %s", rec.String())
	return nil
}

const sessionColumns = `session_id, started_at, ended_at, status,
	frames, samples, skipped_frames, seed_points,
	sample_rate_hz, effective_rate_hz,
	frequency_hz, magnitude, rate_bpm, failure`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*SessionRecord, error) {
	var (
		rec            SessionRecord
		started, ended float64
		effective      sql.NullFloat64
		freq, mag, bpm sql.NullFloat64
		failure        sql.NullString
	)
	if err := row.Scan(
		&rec.SessionID, &started, &ended, &rec.Status,
		&rec.Frames, &rec.Samples, &rec.SkippedFrames, &rec.SeedPoints,
		&rec.SampleRateHz, &effective,
		&freq, &mag, &bpm, &failure,
	); err != nil {
		return nil, err
	}
	rec.StartedAt = fromUnixSeconds(started)
	rec.EndedAt = fromUnixSeconds(ended)
	rec.EffectiveRateHz = effective.Float64
	if freq.Valid {
		rec.FrequencyHz = &freq.Float64
	}
	if mag.Valid {
		rec.Magnitude = &mag.Float64
	}
	if bpm.Valid {
		rec.RateBPM = &bpm.Float64
	}
	rec.Failure = failure.String
	return &rec, nil
}

// GetSession returns the stored summary for id, or ErrNotFound.
func (db *DB) GetSession(id string) (*SessionRecord, error) {
	row := db.QueryRow(`SELECT `+sessionColumns+` FROM sessions WHERE session_id = ?`, id)
	rec, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session %s: %w", id, err)
	}
	return rec, nil
}

// ListSessions returns the most recent sessions first. A limit <= 0
// returns every row.
func (db *DB) ListSessions(limit int) ([]SessionRecord, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions ORDER BY started_at DESC, session_id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionRecord
	for rows.Next() {
		rec, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// Recorder adapts the database to pipeline.Renderer so a session's
// summary is stored when it finalizes.
type Recorder struct {
	db  *DB
	err error
}

// Recorder returns a renderer that stores each final report.
func (db *DB) Recorder() *Recorder { return &Recorder{db: db} }

func (r *Recorder) OnFrame(pipeline.FrameUpdate) {}

func (r *Recorder) OnResult(rep pipeline.Report) {
	if err := r.db.RecordSession(rep); err != nil {
		r.err = err
		logf("%v", err)
	}
}

// Err returns the last recording error.
func (r *Recorder) Err() error { return r.err }

func unixSeconds(t time.Time) float64 {
	if t.IsZero() {
		return 0
	}
	return float64(t.UnixNano()) / 1e9
}

func fromUnixSeconds(s float64) time.Time {
	if s == 0 {
		return time.Time{}
	}
	sec, frac := math.Modf(s)
	return time.Unix(int64(sec), int64(math.Round(frac*1e9))).UTC()
}

func finiteOrNull(v float64) any {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return v
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
