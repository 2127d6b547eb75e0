// Package api provides the HTTP API for observing a running simulation.
// GET endpoints are public and read only published snapshots.
// POST endpoints drive the run lifecycle and require a bearer token.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/talgya/dilemma/internal/agents"
	"github.com/talgya/dilemma/internal/engine"
	"github.com/talgya/dilemma/internal/persistence"
	"github.com/talgya/dilemma/internal/report"
)

// Server serves simulation state over HTTP.
type Server struct {
	Ctl      *engine.Controller
	DB       *persistence.DB // optional run log
	Port     int
	AdminKey string // Bearer token for POST endpoints. Empty = POST disabled.

	// StartRun starts the configured population. Wired by the entry point so
	// run-log bookkeeping happens alongside the controller start.
	StartRun func() error
	// RunID reports the current run's log ID, "" if none.
	RunID func() string

	httpServer *http.Server
}

// Handler builds the request router.
func (s *Server) Handler() http.Handler {
	agentsLimiter := NewRateLimiter(120, time.Minute)

	mux := http.NewServeMux()

	// Public endpoints (GET, read-only).
	mux.HandleFunc("/api/v1/status", s.handleStatus)
	mux.HandleFunc("/api/v1/agents", RateLimitMiddleware(agentsLimiter, s.handleAgents))
	mux.HandleFunc("/api/v1/agent/", s.handleAgentDetail)
	mux.HandleFunc("/api/v1/strategies", s.handleStrategies)
	mux.HandleFunc("/api/v1/events", s.handleEvents)
	mux.HandleFunc("/api/v1/report", s.handleReport)
	mux.HandleFunc("/api/v1/stats/history", s.handleStatsHistory)
	mux.HandleFunc("/api/v1/runs", s.handleRuns)

	// Lifecycle endpoints (POST, require bearer token).
	mux.HandleFunc("/api/v1/start", s.adminOnly(s.handleStart))
	mux.HandleFunc("/api/v1/pause", s.adminOnly(s.handlePause))
	mux.HandleFunc("/api/v1/resume", s.adminOnly(s.handleResume))

	return corsMiddleware(mux)
}

// Start begins serving the HTTP API in a goroutine.
func (s *Server) Start() {
	addr := fmt.Sprintf(":%d", s.Port)
	slog.Info("HTTP API starting", "addr", addr, "admin_auth", s.AdminKey != "")

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
		}
	}()
}

// Close stops the HTTP server.
func (s *Server) Close() error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Close()
}

// corsMiddleware adds CORS headers for allowed frontend origins.
// Set CORS_ORIGINS env var to a comma-separated list of allowed origins.
// Localhost dev servers are always allowed.
func corsMiddleware(next http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:3000": true,
	}
	if env := os.Getenv("CORS_ORIGINS"); env != "" {
		for _, origin := range strings.Split(env, ",") {
			origin = strings.TrimSpace(origin)
			if origin != "" {
				allowedOrigins[origin] = true
			}
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// checkBearerToken returns true if the request has a valid admin bearer token.
func (s *Server) checkBearerToken(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	return strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.AdminKey
}

// adminOnly wraps a lifecycle handler: POST only, bearer token required.
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if s.AdminKey == "" {
			http.Error(w, "admin endpoints disabled (no IPDSIM_ADMIN_KEY set)", http.StatusForbidden)
			return
		}
		if !s.checkBearerToken(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"name":  "dilemma",
		"state": s.Ctl.State(),
	}
	if s.RunID != nil {
		status["run_id"] = s.RunID()
	}
	if snap := s.Ctl.Snapshot(); snap != nil {
		status["cycle"] = snap.Cycle
		status["population"] = snap.Population
		status["games"] = snap.Stats.Games
		status["births"] = snap.Stats.Births
		status["deaths"] = snap.Stats.Deaths
		status["last_cycle_ms"] = float64(snap.Stats.LastCycleTime.Microseconds()) / 1000
		status["average_energy"] = snap.AverageEnergy()
		status["snapshot_at"] = snap.TakenAt
	}
	writeJSON(w, status)
}

func (s *Server) handleAgents(w http.ResponseWriter, r *http.Request) {
	snap := s.Ctl.Snapshot()
	if snap == nil {
		writeJSON(w, []engine.AgentView{})
		return
	}

	strategy := r.URL.Query().Get("strategy")
	limit := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			limit = n
		}
	}

	result := make([]engine.AgentView, 0, len(snap.Agents))
	for _, a := range snap.Agents {
		if strategy != "" && a.Label != strategy {
			continue
		}
		result = append(result, a)
		if limit > 0 && len(result) == limit {
			break
		}
	}
	writeJSON(w, result)
}

// handleAgentDetail serves GET /api/v1/agent/:id.
func (s *Server) handleAgentDetail(w http.ResponseWriter, r *http.Request) {
	idStr := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/agent/"), "/")
	if idStr == "" {
		http.Error(w, "missing agent id", http.StatusBadRequest)
		return
	}
	id, err := strconv.ParseUint(idStr, 10, 64)
	if err != nil {
		http.Error(w, "invalid agent id", http.StatusBadRequest)
		return
	}

	snap := s.Ctl.Snapshot()
	if snap == nil {
		http.Error(w, "agent not found", http.StatusNotFound)
		return
	}
	agent, ok := snap.Agent(agents.AgentID(id))
	if !ok {
		http.Error(w, "agent not found", http.StatusNotFound)
		return
	}
	writeJSON(w, agent)
}

func (s *Server) handleStrategies(w http.ResponseWriter, r *http.Request) {
	snap := s.Ctl.Snapshot()
	if snap == nil {
		writeJSON(w, []engine.StrategySummary{})
		return
	}
	writeJSON(w, snap.ByStrategy())
}

// handleEvents returns recent births and deaths from the run log, or from
// the snapshot's recent-events log when no run log is configured.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	kind := r.URL.Query().Get("kind")
	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	if s.DB != nil && s.RunID != nil && s.RunID() != "" {
		rows, err := s.DB.RecentEvents(s.RunID(), kind, limit)
		if err != nil {
			slog.Error("events query failed", "error", err)
			http.Error(w, "events query failed", http.StatusInternalServerError)
			return
		}
		if rows == nil {
			rows = []persistence.EventRow{}
		}
		writeJSON(w, rows)
		return
	}

	result := []engine.Event{}
	if snap := s.Ctl.Snapshot(); snap != nil {
		for _, e := range snap.Recent {
			if kind == "" || e.Kind == kind {
				result = append(result, e)
			}
		}
	}
	if len(result) > limit {
		result = result[len(result)-limit:]
	}
	writeJSON(w, result)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, "State: %s\n", s.Ctl.State())
	fmt.Fprint(w, report.Statistics(s.Ctl.Snapshot()))
}

func (s *Server) handleStatsHistory(w http.ResponseWriter, r *http.Request) {
	if s.DB == nil {
		http.Error(w, "database not available", http.StatusServiceUnavailable)
		return
	}

	runID := r.URL.Query().Get("run")
	if runID == "" && s.RunID != nil {
		runID = s.RunID()
	}
	fromCycle := uint64(0)
	toCycle := uint64(1<<63 - 1) // max int64; SQLite integers are signed
	limit := 100

	if f := r.URL.Query().Get("from"); f != "" {
		if v, err := strconv.ParseUint(f, 10, 64); err == nil {
			fromCycle = v
		}
	}
	if t := r.URL.Query().Get("to"); t != "" {
		if v, err := strconv.ParseUint(t, 10, 64); err == nil && v < toCycle {
			toCycle = v
		}
	}
	if l := r.URL.Query().Get("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 && v <= 5000 {
			limit = v
		}
	}

	rows, err := s.DB.LoadStatsHistory(runID, fromCycle, toCycle, limit)
	if err != nil {
		slog.Error("stats history query failed", "error", err)
		writeJSON(w, []persistence.StatsRow{})
		return
	}
	if rows == nil {
		rows = []persistence.StatsRow{}
	}
	writeJSON(w, rows)
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.DB == nil {
		http.Error(w, "database not available", http.StatusServiceUnavailable)
		return
	}
	runs, err := s.DB.Runs()
	if err != nil {
		slog.Error("runs query failed", "error", err)
		http.Error(w, "runs query failed", http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []persistence.Run{}
	}
	writeJSON(w, runs)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if s.StartRun == nil {
		http.Error(w, "start not configured", http.StatusServiceUnavailable)
		return
	}
	s.lifecycle(w, "start", s.StartRun)
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	s.lifecycle(w, "pause", s.Ctl.Pause)
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	s.lifecycle(w, "resume", s.Ctl.Resume)
}

// lifecycle runs op and maps invalid transitions to 409 Conflict.
func (s *Server) lifecycle(w http.ResponseWriter, name string, op func() error) {
	if err := op(); err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, engine.ErrAlreadyStarted),
			errors.Is(err, engine.ErrNotRunning),
			errors.Is(err, engine.ErrNotPaused):
			status = http.StatusConflict
		case errors.Is(err, engine.ErrInvalidParams),
			errors.Is(err, engine.ErrInvalidCount),
			errors.Is(err, agents.ErrInvalidRate):
			status = http.StatusBadRequest
		}
		slog.Warn("lifecycle request rejected", "op", name, "error", err)
		http.Error(w, err.Error(), status)
		return
	}
	slog.Info("lifecycle request", "op", name)
	writeJSON(w, map[string]any{"state": s.Ctl.State()})
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}
