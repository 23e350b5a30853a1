// Package opensky fetches aircraft state snapshots from the OpenSky REST API.
package opensky

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"skymind/internal/flights"
	"skymind/internal/metrics"
)

const (
	// DefaultBaseURL is the public OpenSky API root.
	DefaultBaseURL = "https://opensky-network.org/api"

	defaultTimeout      = 30 * time.Second
	maxIdleConns        = 10
	idleConnTimeout     = 90 * time.Second
	tlsHandshakeTimeout = 10 * time.Second
)

// ErrFetchFailed is wrapped by every error FetchAll returns.
var ErrFetchFailed = errors.New("failed to fetch live flight data")

// StatusError reports a non-200 upstream response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status: %d", e.Code)
	}
	return fmt.Sprintf("unexpected status: %d: %s", e.Code, e.Body)
}

// Unwrap lets errors.Is match ErrFetchFailed.
func (e *StatusError) Unwrap() error { return ErrFetchFailed }

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// WithBaseURL overrides the API root (useful for testing).
func WithBaseURL(url string) ClientOption {
	return func(c *Client) { c.baseURL = strings.TrimRight(url, "/") }
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithMetrics records fetch outcomes on m.
func WithMetrics(m *metrics.Metrics) ClientOption {
	return func(c *Client) { c.metrics = m }
}

// WithLogger sets the logger used for fetch diagnostics.
func WithLogger(l *slog.Logger) ClientOption {
	return func(c *Client) { c.log = l }
}

// WithClock overrides the clock stamping PolledAt.
func WithClock(now func() time.Time) ClientOption {
	return func(c *Client) { c.now = now }
}

// Client fetches state vectors from OpenSky.
type Client struct {
	baseURL    string
	httpClient *http.Client
	metrics    *metrics.Metrics
	log        *slog.Logger
	now        func() time.Time
}

// NewClient creates an OpenSky API client.
func NewClient(opts ...ClientOption) *Client {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        maxIdleConns,
		IdleConnTimeout:     idleConnTimeout,
		TLSHandshakeTimeout: tlsHandshakeTimeout,
	}
	c := &Client{
		baseURL: DefaultBaseURL,
		httpClient: &http.Client{
			Timeout:   defaultTimeout,
			Transport: transport,
		},
		log: slog.Default(),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// statesResponse mirrors the JSON shape returned by /states/all.
type statesResponse struct {
	Time   int64   `json:"time"`
	States [][]any `json:"states"`
}

// FetchAll issues one GET for all current state vectors. A 200 response with
// no states yields an empty snapshot and a nil error. There are no retries;
// callers decide whether to call again.
func (c *Client) FetchAll(ctx context.Context) (flights.Snapshot, error) {
	start := c.now()
	snap, err := c.fetch(ctx)
	c.observe(start, snap, err)
	return snap, err
}

func (c *Client) fetch(ctx context.Context) (flights.Snapshot, error) {
	url := c.baseURL + "/states/all"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return flights.Snapshot{}, fmt.Errorf("%w: creating request: %v", ErrFetchFailed, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return flights.Snapshot{}, fmt.Errorf("%w: executing request: %v", ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return flights.Snapshot{}, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var raw statesResponse
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return flights.Snapshot{}, fmt.Errorf("%w: parsing response: %v", ErrFetchFailed, err)
	}

	snap := flights.Snapshot{
		Time:     raw.Time,
		PolledAt: c.now().UTC(),
		Rows:     ParseStates(raw.States),
	}
	return snap, nil
}

func (c *Client) observe(start time.Time, snap flights.Snapshot, err error) {
	elapsed := c.now().Sub(start)
	switch {
	case err != nil:
		c.log.Warn("opensky fetch failed", "err", err, "elapsed", elapsed)
	case snap.Empty():
		c.log.Info("opensky returned no states", "elapsed", elapsed)
	default:
		c.log.Debug("opensky fetch", "rows", snap.Len(), "elapsed", elapsed)
	}
	if c.metrics == nil {
		return
	}
	c.metrics.FetchDuration.Observe(elapsed.Seconds())
	switch {
	case err != nil:
		c.metrics.FetchRequests.WithLabelValues(metrics.OutcomeFailed).Inc()
	case snap.Empty():
		c.metrics.FetchRequests.WithLabelValues(metrics.OutcomeEmpty).Inc()
	default:
		c.metrics.FetchRequests.WithLabelValues(metrics.OutcomeOK).Inc()
		c.metrics.FetchedRows.Add(float64(snap.Len()))
	}
}
