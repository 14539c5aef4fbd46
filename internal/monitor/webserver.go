// Package monitor serves a live view of a running respiration session:
// JSON status, echarts pages for the displacement trace and spectrum, a
// server-sent event stream and the tsweb debug pages.
package monitor

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/banshee-data/breath.report/internal/db"
	"github.com/banshee-data/breath.report/internal/httputil"
	"github.com/banshee-data/breath.report/internal/monitoring"
	"github.com/banshee-data/breath.report/internal/respiration/pipeline"
	"github.com/banshee-data/breath.report/internal/respiration/signal"
	"github.com/banshee-data/breath.report/internal/respiration/spectrum"
	"github.com/banshee-data/breath.report/internal/timeutil"
	"github.com/banshee-data/breath.report/internal/version"
	"tailscale.com/tsweb"
)

var logf = monitoring.Component("monitor")

//go:embed status.html
var statusHTML embed.FS

var statusTemplate = template.Must(template.ParseFS(statusHTML, "status.html"))

// Session states reported on /api/status.
const (
	StateWaiting  = "waiting"
	StateRunning  = "running"
	StateFinished = "finished"
)

// Status is the live snapshot served on /api/status.
type Status struct {
	SessionID   string           `json:"session_id,omitempty"`
	State       string           `json:"state"`
	Frame       int              `json:"frame"`
	Tracked     int              `json:"tracked"`
	Valid       int              `json:"valid"`
	Samples     int              `json:"samples"`
	LastValue   float64          `json:"last_value"`
	UpdatedAt   time.Time        `json:"updated_at"`
	Uptime      string           `json:"uptime"`
	Outcome     pipeline.Status  `json:"outcome,omitempty"`
	Summary     string           `json:"summary,omitempty"`
	Result      *spectrum.Result `json:"result,omitempty"`
	Version     string           `json:"version"`
	Persistence bool             `json:"persistence"`
}

// WebServerConfig contains configuration options for the web server.
type WebServerConfig struct {
	Address string
	// DB enables /api/sessions and the database admin routes. Optional.
	DB *db.DB
	// Clock defaults to the wall clock.
	Clock timeutil.Clock
}

// WebServer implements pipeline.Renderer and serves what it has seen.
type WebServer struct {
	address string
	server  *http.Server
	db      *db.DB
	clock   timeutil.Clock
	started time.Time
	hub     *hub

	mu      sync.RWMutex
	status  Status
	history []signal.Sample
	report  *pipeline.Report
}

// NewWebServer creates a new web server with the provided configuration.
func NewWebServer(config WebServerConfig) *WebServer {
	clock := config.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	ws := &WebServer{
		address: config.Address,
		db:      config.DB,
		clock:   clock,
		started: clock.Now(),
		hub:     newHub(),
		status:  Status{State: StateWaiting},
	}
	ws.server = &http.Server{
		Addr:              ws.address,
		Handler:           ws.setupRoutes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return ws
}

// Handler returns the route mux, for tests and for embedding.
func (ws *WebServer) Handler() http.Handler { return ws.server.Handler }

// OnFrame records the latest per-frame snapshot and fans it out to
// stream subscribers.
func (ws *WebServer) OnFrame(u pipeline.FrameUpdate) {
	ws.mu.Lock()
	ws.status.SessionID = u.SessionID
	ws.status.State = StateRunning
	ws.status.Frame = u.Frame
	ws.status.Tracked = u.Tracked
	ws.status.Valid = u.Valid
	ws.status.Samples = len(u.History)
	if u.Sampled {
		ws.status.LastValue = u.Sample.Value
	}
	ws.status.UpdatedAt = ws.clock.Now()
	ws.history = u.History
	ws.mu.Unlock()

	ws.hub.publish(event{Name: "frame", Data: frameEvent{
		Frame:   u.Frame,
		Sampled: u.Sampled,
		Value:   u.Sample.Value,
		Valid:   u.Valid,
		Tracked: u.Tracked,
		Motion:  u.Motion,
	}})
}

// OnResult stores the final report.
func (ws *WebServer) OnResult(rep pipeline.Report) {
	ws.mu.Lock()
	ws.status.SessionID = rep.SessionID
	ws.status.State = StateFinished
	ws.status.Outcome = rep.Status
	ws.status.Summary = rep.Summary()
	ws.status.Samples = len(rep.History)
	ws.status.UpdatedAt = ws.clock.Now()
	if rep.OK {
		res := rep.Result
		ws.status.Result = &res
	}
	ws.history = rep.History
	ws.report = &rep
	ws.mu.Unlock()

	ws.hub.publish(event{Name: "result", Data: ws.Status()})
	logf("session %s: %s", rep.SessionID, rep.Summary())
}

// Status returns a copy of the live status.
func (ws *WebServer) Status() Status {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	st := ws.status
	st.Uptime = ws.clock.Since(ws.started).Round(time.Second).String()
	st.Version = version.Version
	st.Persistence = ws.db != nil
	return st
}

func (ws *WebServer) snapshot() ([]signal.Sample, *pipeline.Report) {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	return ws.history, ws.report
}

// setupRoutes configures the HTTP routes and handlers.
func (ws *WebServer) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", ws.handleHealth)
	mux.HandleFunc("/", ws.handleIndex)
	mux.HandleFunc("/api/status", ws.handleStatus)
	mux.HandleFunc("/api/history", ws.handleHistory)
	mux.HandleFunc("/api/report", ws.handleReport)
	mux.HandleFunc("/api/stream", ws.handleStream)
	mux.HandleFunc("/chart/displacement", ws.handleDisplacementChart)
	mux.HandleFunc("/chart/spectrum", ws.handleSpectrumChart)

	debug := tsweb.Debugger(mux)
	debug.KVFunc("Session", func() any {
		st := ws.Status()
		return fmt.Sprintf("%s %s frame=%d samples=%d", st.SessionID, st.State, st.Frame, st.Samples)
	})
	debug.KVFunc("Stream subscribers", func() any { return ws.hub.count() })

	if ws.db != nil {
		mux.HandleFunc("/api/sessions", ws.handleSessions)
		if err := ws.db.AttachAdminRoutes(mux); err != nil {
			logf("database admin routes disabled: %v", err)
		}
	}
	return mux
}

// Start serves until ctx is cancelled, then shuts down gracefully. It
// returns an error if the listener cannot be opened.
func (ws *WebServer) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", ws.address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", ws.address, err)
	}
	return ws.Serve(ctx, ln)
}

// Serve is Start on an existing listener.
func (ws *WebServer) Serve(ctx context.Context, ln net.Listener) error {
	errc := make(chan error, 1)
	go func() {
		logf("starting HTTP server on %s", ln.Addr())
		if err := ws.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err, ok := <-errc:
		if ok {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	logf("shutting down HTTP server...")
	ws.hub.closeAll()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()
	if err := ws.server.Shutdown(shutdownCtx); err != nil {
		logf("HTTP server shutdown error: %v", err)
		if err := ws.server.Close(); err != nil {
			logf("HTTP server force close error: %v", err)
		}
	}
	logf("HTTP server routine stopped")
	return nil
}

// Close stops the server immediately.
func (ws *WebServer) Close() error {
	ws.hub.closeAll()
	return ws.server.Close()
}

func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, map[string]string{
		"status":    "ok",
		"service":   "breathrate",
		"timestamp": ws.clock.Now().UTC().Format(time.RFC3339),
	})
}

func (ws *WebServer) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := statusTemplate.Execute(w, ws.Status()); err != nil {
		http.Error(w, "Error executing template: "+err.Error(), http.StatusInternalServerError)
	}
}

func (ws *WebServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireGet(w, r) {
		return
	}
	httputil.WriteJSONOK(w, ws.Status())
}

// handleHistory returns the displacement history, oldest first.
// Query params:
//
//	last (optional) limits the response to the newest N samples
func (ws *WebServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireGet(w, r) {
		return
	}
	hist, _ := ws.snapshot()
	if s := r.URL.Query().Get("last"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			httputil.WriteJSONError(w, http.StatusBadRequest, "invalid 'last' parameter")
			return
		}
		if n < len(hist) {
			hist = hist[len(hist)-n:]
		}
	}
	if hist == nil {
		hist = []signal.Sample{}
	}
	httputil.WriteJSONOK(w, hist)
}

func (ws *WebServer) handleReport(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireGet(w, r) {
		return
	}
	_, rep := ws.snapshot()
	if rep == nil {
		httputil.NotFound(w, "session has not finished")
		return
	}
	httputil.WriteJSONOK(w, rep)
}

// handleSessions lists stored sessions, newest first.
// Query params:
//
//	limit (optional, default 20, max 500)
func (ws *WebServer) handleSessions(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireGet(w, r) {
		return
	}
	limit := 20
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 || n > 500 {
			httputil.WriteJSONError(w, http.StatusBadRequest, "invalid 'limit' parameter")
			return
		}
		limit = n
	}
	recs, err := ws.db.ListSessions(limit)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	if recs == nil {
		recs = []db.SessionRecord{}
	}
	httputil.WriteJSONOK(w, recs)
}
