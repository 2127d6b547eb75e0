// Package watch is an HTTP client for a running ipdsim process.
// It observes state through the public API and issues lifecycle commands
// through the admin endpoints.
package watch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Status mirrors GET /api/v1/status.
type Status struct {
	Name          string  `json:"name"`
	State         string  `json:"state"`
	RunID         string  `json:"run_id"`
	Cycle         uint64  `json:"cycle"`
	Population    int     `json:"population"`
	Games         uint64  `json:"games"`
	Births        uint64  `json:"births"`
	Deaths        uint64  `json:"deaths"`
	LastCycleMS   float64 `json:"last_cycle_ms"`
	AverageEnergy float64 `json:"average_energy"`
}

// StrategyShare mirrors items from GET /api/v1/strategies.
type StrategyShare struct {
	Label         string  `json:"strategy"`
	Count         int     `json:"count"`
	Share         float64 `json:"share"`
	AverageEnergy float64 `json:"average_energy"`
}

// HistoryRow mirrors items from GET /api/v1/stats/history.
type HistoryRow struct {
	Cycle      uint64  `json:"cycle"`
	Population int     `json:"population"`
	Births     uint64  `json:"births"`
	Deaths     uint64  `json:"deaths"`
	CycleMS    float64 `json:"cycle_ms"`
	AvgEnergy  float64 `json:"avg_energy"`
}

// Observation holds everything collected in one poll.
type Observation struct {
	Status     Status
	Strategies []StrategyShare
	History    []HistoryRow // empty when the server keeps no run log
}

// Leader returns the most populous strategy, or "" when nobody is alive.
func (o *Observation) Leader() (StrategyShare, bool) {
	if len(o.Strategies) == 0 {
		return StrategyShare{}, false
	}
	return o.Strategies[0], true
}

// StatusError is a non-200 answer from the API.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s returned %d: %s", e.Method, e.Path, e.Code, e.Body)
}

// Observer fetches simulation state from the API.
type Observer struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewObserver creates an Observer targeting the given API base URL.
func NewObserver(baseURL string) *Observer {
	return &Observer{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Observe fetches status, strategy shares and recent history.
func (o *Observer) Observe(ctx context.Context) (*Observation, error) {
	obs := &Observation{}

	if err := o.fetchJSON(ctx, "/api/v1/status", &obs.Status); err != nil {
		return nil, fmt.Errorf("fetch status: %w", err)
	}
	if err := o.fetchJSON(ctx, "/api/v1/strategies", &obs.Strategies); err != nil {
		return nil, fmt.Errorf("fetch strategies: %w", err)
	}
	err := o.fetchJSON(ctx, "/api/v1/stats/history?limit=10", &obs.History)
	var se *StatusError
	switch {
	case err == nil:
	case errors.As(err, &se) && se.Code == http.StatusServiceUnavailable:
		obs.History = nil
	default:
		return nil, fmt.Errorf("fetch stats history: %w", err)
	}

	return obs, nil
}

// Ping reports whether the status endpoint answers 200.
func (o *Observer) Ping(ctx context.Context) error {
	var st Status
	return o.fetchJSON(ctx, "/api/v1/status", &st)
}

// fetchJSON GETs a path and decodes the JSON response into target.
func (o *Observer) fetchJSON(ctx context.Context, path string, target any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.BaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := o.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return &StatusError{Method: http.MethodGet, Path: path, Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// WaitReady polls the status endpoint with exponential backoff until it
// answers or ctx ends.
func WaitReady(ctx context.Context, o *Observer, initial, maxBackoff time.Duration) error {
	backoff := initial
	for {
		err := o.Ping(ctx)
		if err == nil {
			return nil
		}
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("api not ready: %w (last error: %v)", ctx.Err(), err)
		case <-timer.C:
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}
