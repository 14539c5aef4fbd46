package db

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/banshee-data/breath.report/internal/monitoring"
	"github.com/banshee-data/breath.report/internal/respiration/pipeline"
	"github.com/banshee-data/breath.report/internal/respiration/spectrum"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	monitoring.SetLogger(nil)
	os.Exit(m.Run())
}

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

var t0 = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func estimatedReport(id string, start time.Time) pipeline.Report {
	return pipeline.Report{
		SessionID:       id,
		StartedAt:       start,
		EndedAt:         start.Add(10 * time.Second),
		Status:          pipeline.StatusEstimated,
		Result:          spectrum.Result{FrequencyHz: 0.3, Magnitude: 12.5, RateBPM: 18},
		OK:              true,
		Peak:            2,
		SampleRateHz:    30,
		EffectiveRateHz: 29.9,
		Stats:           pipeline.Stats{Frames: 300, Samples: 299, Skipped: 1, SeedPoints: 57},
	}
}

func TestMigrations_Applied(t *testing.T) {
	db := newTestDB(t)

	version, dirty, err := db.MigrateVersion()
	require.NoError(t, err)
	assert.False(t, dirty)

	latest, err := LatestMigrationVersion()
	require.NoError(t, err)
	assert.Equal(t, latest, version)
	assert.Equal(t, uint(1), latest)

	// Applying again is a no-op.
	require.NoError(t, db.MigrateUp())
}

func TestMigrations_DownAndUp(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.MigrateDown())

	version, _, err := db.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(0), version)

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='sessions'`).Scan(&n))
	assert.Equal(t, 0, n)

	require.NoError(t, db.MigrateUp())
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='sessions'`).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestRecordSession_Estimated(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.RecordSession(estimatedReport("a1", t0)))

	rec, err := db.GetSession("a1")
	require.NoError(t, err)
	assert.Equal(t, "a1", rec.SessionID)
	assert.Equal(t, "estimated", rec.Status)
	assert.WithinDuration(t, t0, rec.StartedAt, time.Millisecond)
	assert.InDelta(t, 10*time.Second, rec.Duration(), float64(time.Millisecond))
	assert.Equal(t, 300, rec.Frames)
	assert.Equal(t, 299, rec.Samples)
	assert.Equal(t, 1, rec.SkippedFrames)
	assert.Equal(t, 57, rec.SeedPoints)
	assert.Equal(t, 30.0, rec.SampleRateHz)
	assert.InDelta(t, 29.9, rec.EffectiveRateHz, 1e-9)
	require.NotNil(t, rec.RateBPM)
	assert.Equal(t, 18.0, *rec.RateBPM)
	require.NotNil(t, rec.FrequencyHz)
	assert.InDelta(t, 0.3, *rec.FrequencyHz, 1e-12)
	require.NotNil(t, rec.Magnitude)
	assert.Equal(t, 12.5, *rec.Magnitude)
	assert.Empty(t, rec.Failure)
	assert.Equal(t, "a1 estimated 18.0 bpm (300 frames)", rec.String())
}

func TestRecordSession_FailedHasNoEstimate(t *testing.T) {
	db := newTestDB(t)
	rep := pipeline.Report{
		SessionID:    "f1",
		StartedAt:    t0,
		EndedAt:      t0.Add(time.Second),
		Status:       pipeline.StatusFailed,
		Peak:         -1,
		SampleRateHz: 30,
		Err:          fmt.Errorf("%w: frame size changed", pipeline.ErrTracking),
	}
	require.NoError(t, db.RecordSession(rep))

	rec, err := db.GetSession("f1")
	require.NoError(t, err)
	assert.Equal(t, "failed", rec.Status)
	assert.Nil(t, rec.RateBPM)
	assert.Nil(t, rec.FrequencyHz)
	assert.Nil(t, rec.Magnitude)
	assert.Contains(t, rec.Failure, "frame size changed")
	assert.Equal(t, "f1 failed (0 frames)", rec.String())
}

func TestRecordSession_ReplacesSameID(t *testing.T) {
	db := newTestDB(t)
	rep := estimatedReport("dup", t0)
	require.NoError(t, db.RecordSession(rep))
	rep.Result.RateBPM = 12
	require.NoError(t, db.RecordSession(rep))

	all, err := db.ListSessions(0)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, 12.0, *all[0].RateBPM)
}

func TestRecordSession_RequiresID(t *testing.T) {
	db := newTestDB(t)
	assert.Error(t, db.RecordSession(pipeline.Report{}))
}

func TestGetSession_NotFound(t *testing.T) {
	db := newTestDB(t)
	_, err := db.GetSession("missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestListSessions_NewestFirst(t *testing.T) {
	db := newTestDB(t)
	for i, id := range []string{"old", "mid", "new"} {
		require.NoError(t, db.RecordSession(estimatedReport(id, t0.Add(time.Duration(i)*time.Minute))))
	}

	all, err := db.ListSessions(0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"new", "mid", "old"}, []string{all[0].SessionID, all[1].SessionID, all[2].SessionID})

	two, err := db.ListSessions(2)
	require.NoError(t, err)
	require.Len(t, two, 2)
	assert.Equal(t, "new", two[0].SessionID)
}

func TestListSessions_Empty(t *testing.T) {
	db := newTestDB(t)
	all, err := db.ListSessions(10)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestRecorder_StoresOnResult(t *testing.T) {
	db := newTestDB(t)
	var r pipeline.Renderer = db.Recorder()
	r.OnFrame(pipeline.FrameUpdate{Frame: 1})
	r.OnResult(estimatedReport("via-recorder", t0))

	rec, err := db.GetSession("via-recorder")
	require.NoError(t, err)
	assert.Equal(t, "estimated", rec.Status)

	bad := db.Recorder()
	bad.OnResult(pipeline.Report{})
	assert.Error(t, bad.Err())
}

func TestStats(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.RecordSession(estimatedReport("a", t0)))
	b := estimatedReport("b", t0.Add(time.Minute))
	b.Result.RateBPM = 12
	require.NoError(t, db.RecordSession(b))
	require.NoError(t, db.RecordSession(pipeline.Report{SessionID: "c", StartedAt: t0, EndedAt: t0, Status: pipeline.StatusFailed, SampleRateHz: 30}))

	st, err := db.Stats()
	require.NoError(t, err)
	assert.Equal(t, 3, st.Sessions)
	assert.Equal(t, 2, st.Estimated)
	assert.Equal(t, 1, st.Failed)
	assert.InDelta(t, 15.0, st.MeanRateBPM, 1e-9)
	assert.Equal(t, uint(1), st.Version)
}

func TestAttachAdminRoutes(t *testing.T) {
	db := newTestDB(t)
	mux := http.NewServeMux()
	require.NoError(t, db.AttachAdminRoutes(mux))

	// tsweb may refuse non-local callers with 403; only registration is
	// checked here.
	for _, path := range []string{"/debug/tailsql/", "/debug/db-stats", "/debug/backup"} {
		t.Run(path, func(t *testing.T) {
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
			assert.NotEqual(t, http.StatusNotFound, w.Code)
		})
	}
}

func TestRunMigrateCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cli.db")

	var out bytes.Buffer
	require.NoError(t, RunMigrateCommand([]string{"status"}, path, &out))
	assert.Contains(t, out.String(), "Current version: 0")
	assert.Contains(t, out.String(), "1 version(s) behind")

	out.Reset()
	require.NoError(t, RunMigrateCommand([]string{"up"}, path, &out))
	assert.Contains(t, out.String(), "Current version: 1")
	assert.Contains(t, out.String(), "up to date")

	out.Reset()
	require.NoError(t, RunMigrateCommand([]string{"down"}, path, &out))
	assert.Contains(t, out.String(), "Current version: 0")

	out.Reset()
	require.NoError(t, RunMigrateCommand([]string{"help"}, path, &out))
	assert.Contains(t, out.String(), "Actions:")

	assert.Error(t, RunMigrateCommand(nil, path, &out))
	assert.Error(t, RunMigrateCommand([]string{"sideways"}, path, &out))
}
