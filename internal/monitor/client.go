package monitor

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/banshee-data/breath.report/internal/db"
	"github.com/banshee-data/breath.report/internal/httputil"
	"github.com/banshee-data/breath.report/internal/respiration/pipeline"
	"github.com/banshee-data/breath.report/internal/respiration/signal"
)

// Client reads a running monitor's JSON endpoints.
type Client struct {
	HTTPClient httputil.HTTPClient
	BaseURL    string
}

// NewClient creates a client for baseURL. A nil httpClient gets a 10 s
// timeout.
func NewClient(httpClient httputil.HTTPClient, baseURL string) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if !strings.Contains(baseURL, "://") {
		baseURL = "http://" + baseURL
	}
	return &Client{HTTPClient: httpClient, BaseURL: strings.TrimRight(baseURL, "/")}
}

// Status fetches /api/status.
func (c *Client) Status(ctx context.Context) (Status, error) {
	var st Status
	err := httputil.GetJSON(ctx, c.HTTPClient, c.BaseURL+"/api/status", &st)
	return st, err
}

// History fetches the newest last samples, or all of them when last <= 0.
func (c *Client) History(ctx context.Context, last int) ([]signal.Sample, error) {
	url := c.BaseURL + "/api/history"
	if last > 0 {
		url = fmt.Sprintf("%s?last=%d", url, last)
	}
	var hist []signal.Sample
	err := httputil.GetJSON(ctx, c.HTTPClient, url, &hist)
	return hist, err
}

// Report fetches the final report. It fails with a 404 *httputil.StatusError
// while the session is still running.
func (c *Client) Report(ctx context.Context) (pipeline.Report, error) {
	var rep pipeline.Report
	err := httputil.GetJSON(ctx, c.HTTPClient, c.BaseURL+"/api/report", &rep)
	return rep, err
}

// Sessions lists stored sessions, newest first. limit <= 0 uses the
// server default.
func (c *Client) Sessions(ctx context.Context, limit int) ([]db.SessionRecord, error) {
	url := c.BaseURL + "/api/sessions"
	if limit > 0 {
		url = fmt.Sprintf("%s?limit=%d", url, limit)
	}
	var recs []db.SessionRecord
	err := httputil.GetJSON(ctx, c.HTTPClient, url, &recs)
	return recs, err
}
