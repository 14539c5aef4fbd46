package db

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/tailscale/tailsql/server/tailsql"
	"tailscale.com/tsweb"
)

// DatabaseStats is served on /debug/db-stats.
type DatabaseStats struct {
	Path        string  `json:"path"`
	SizeBytes   int64   `json:"size_bytes"`
	Sessions    int     `json:"sessions"`
	Estimated   int     `json:"estimated"`
	Failed      int     `json:"failed"`
	MeanRateBPM float64 `json:"mean_rate_bpm"`
	Version     uint    `json:"schema_version"`
}

// Stats summarises the sessions table.
func (db *DB) Stats() (DatabaseStats, error) {
	st := DatabaseStats{Path: db.path}
	var mean *float64
	err := db.QueryRow(`
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN status = 'estimated' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0),
			AVG(rate_bpm)
		FROM sessions`).Scan(&st.Sessions, &st.Estimated, &st.Failed, &mean)
	if err != nil {
		return st, fmt.Errorf("failed to read session stats: %w", err)
	}
	if mean != nil {
		st.MeanRateBPM = *mean
	}
	if fi, err := os.Stat(db.path); err == nil {
		st.SizeBytes = fi.Size()
	}
	st.Version, _, err = db.MigrateVersion()
	return st, err
}

// AttachAdminRoutes mounts tailsql, a stats endpoint and a backup
// download under /debug/ on mux.
func (db *DB) AttachAdminRoutes(mux *http.ServeMux) error {
	debug := tsweb.Debugger(mux)

	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		return fmt.Errorf("failed to create tailsql server: %w", err)
	}
	tsql.SetDB("sqlite://"+filepath.Base(db.path), db.DB, &tailsql.DBOptions{
		Label: "Breath sessions",
	})
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.Handle("db-stats", "Session table statistics (JSON)", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		st, err := db.Stats()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(st)
	}))

	debug.Handle("backup", "Create and download a backup of the database now", http.HandlerFunc(db.serveBackup))
	return nil
}

func (db *DB) serveBackup(w http.ResponseWriter, r *http.Request) {
	backupPath := filepath.Join(os.TempDir(), fmt.Sprintf("breath-backup-%d.db", time.Now().UnixNano()))
	if _, err := db.Exec("VACUUM INTO ?", backupPath); err != nil {
		http.Error(w, fmt.Sprintf("Failed to create backup: %v", err), http.StatusInternalServerError)
		return
	}
	defer func() {
		if err := os.Remove(backupPath); err != nil {
			logf("failed to remove backup file: %v", err)
		}
	}()

	backupFile, err := os.Open(backupPath)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to open backup file: %v", err), http.StatusInternalServerError)
		return
	}
	defer backupFile.Close()

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.gz", filepath.Base(backupPath)))
	w.Header().Set("Content-Type", "application/octet-stream")
	gz := gzip.NewWriter(w)
	defer gz.Close()
	if _, err := io.Copy(gz, backupFile); err != nil {
		logf("backup copy failed: %v", err)
	}
}
