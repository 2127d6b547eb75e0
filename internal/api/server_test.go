package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/talgya/dilemma/internal/agents"
	"github.com/talgya/dilemma/internal/engine"
)

const testKey = "secret"

// newTestServer builds a server around a controller that pauses after two
// cycles, so snapshots stay stable while requests run.
func newTestServer(t *testing.T) (*Server, http.Handler) {
	t.Helper()
	ctl := engine.NewController(engine.ControllerConfig{Seed: 3, MaxCycles: 2})
	t.Cleanup(ctl.Close)
	seeds := []engine.Seed{
		{Strategy: agents.Naive{}, Count: 2},
		{Strategy: agents.Cynic{}, Count: 3},
	}
	s := &Server{
		Ctl:      ctl,
		AdminKey: testKey,
		StartRun: func() error { return ctl.Start(seeds) },
	}
	return s, s.Handler()
}

func do(h http.Handler, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func startAndSettle(t *testing.T, s *Server, h http.Handler) {
	t.Helper()
	rec := do(h, http.MethodPost, "/api/v1/start", testKey)
	if rec.Code != http.StatusOK {
		t.Fatalf("start: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	s.Ctl.Wait()
}

func TestStatusBeforeStart(t *testing.T) {
	_, h := newTestServer(t)
	rec := do(h, http.MethodGet, "/api/v1/status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["state"] != "NOT_STARTED" {
		t.Fatalf("expected NOT_STARTED, got %v", body["state"])
	}
	if _, ok := body["cycle"]; ok {
		t.Fatal("cycle reported before start")
	}
}

func TestLifecycleAuth(t *testing.T) {
	s, h := newTestServer(t)

	if rec := do(h, http.MethodGet, "/api/v1/start", testKey); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET start: expected 405, got %d", rec.Code)
	}
	if rec := do(h, http.MethodPost, "/api/v1/start", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token: expected 401, got %d", rec.Code)
	}
	if rec := do(h, http.MethodPost, "/api/v1/start", "wrong"); rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad token: expected 401, got %d", rec.Code)
	}

	s.AdminKey = ""
	if rec := do(s.Handler(), http.MethodPost, "/api/v1/start", testKey); rec.Code != http.StatusForbidden {
		t.Fatalf("no admin key: expected 403, got %d", rec.Code)
	}
	if s.Ctl.State() != engine.StateNotStarted {
		t.Fatalf("rejected requests changed state to %s", s.Ctl.State())
	}
}

func TestLifecycleTransitions(t *testing.T) {
	s, h := newTestServer(t)

	if rec := do(h, http.MethodPost, "/api/v1/pause", testKey); rec.Code != http.StatusConflict {
		t.Fatalf("pause before start: expected 409, got %d", rec.Code)
	}
	startAndSettle(t, s, h)

	if s.Ctl.State() != engine.StatePaused {
		t.Fatalf("expected PAUSED at cycle cap, got %s", s.Ctl.State())
	}
	if rec := do(h, http.MethodPost, "/api/v1/start", testKey); rec.Code != http.StatusConflict {
		t.Fatalf("second start: expected 409, got %d", rec.Code)
	}
	if rec := do(h, http.MethodPost, "/api/v1/pause", testKey); rec.Code != http.StatusConflict {
		t.Fatalf("pause while paused: expected 409, got %d", rec.Code)
	}

	rec := do(h, http.MethodPost, "/api/v1/resume", testKey)
	if rec.Code != http.StatusOK {
		t.Fatalf("resume: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	s.Ctl.Wait()
	if s.Ctl.State() != engine.StatePaused {
		t.Fatalf("expected PAUSED again at cap, got %s", s.Ctl.State())
	}
}

func TestStartMissingRunner(t *testing.T) {
	s, _ := newTestServer(t)
	s.StartRun = nil
	if rec := do(s.Handler(), http.MethodPost, "/api/v1/start", testKey); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestAgentsAndDetail(t *testing.T) {
	s, h := newTestServer(t)
	startAndSettle(t, s, h)
	snap := s.Ctl.Snapshot()

	rec := do(h, http.MethodGet, "/api/v1/agents", "")
	var all []engine.AgentView
	if err := json.Unmarshal(rec.Body.Bytes(), &all); err != nil {
		t.Fatalf("decode agents: %v", err)
	}
	if len(all) != snap.Population {
		t.Fatalf("expected %d agents, got %d", snap.Population, len(all))
	}

	rec = do(h, http.MethodGet, "/api/v1/agents?strategy=Cynic&limit=1", "")
	var filtered []engine.AgentView
	if err := json.Unmarshal(rec.Body.Bytes(), &filtered); err != nil {
		t.Fatalf("decode filtered: %v", err)
	}
	if len(filtered) != 1 || filtered[0].Label != "Cynic" {
		t.Fatalf("expected one Cynic, got %+v", filtered)
	}

	id := all[0].ID
	rec = do(h, http.MethodGet, "/api/v1/agent/"+strconv.FormatUint(uint64(id), 10), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("agent detail: expected 200, got %d", rec.Code)
	}
	var one engine.AgentView
	if err := json.Unmarshal(rec.Body.Bytes(), &one); err != nil {
		t.Fatalf("decode agent: %v", err)
	}
	if one.ID != id {
		t.Fatalf("expected agent %d, got %d", id, one.ID)
	}

	if rec := do(h, http.MethodGet, "/api/v1/agent/999999", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown agent: expected 404, got %d", rec.Code)
	}
	if rec := do(h, http.MethodGet, "/api/v1/agent/abc", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad id: expected 400, got %d", rec.Code)
	}
}

func TestStrategiesAndReport(t *testing.T) {
	s, h := newTestServer(t)

	rec := do(h, http.MethodGet, "/api/v1/strategies", "")
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Fatalf("expected empty list before start, got %s", rec.Body.String())
	}

	startAndSettle(t, s, h)

	rec = do(h, http.MethodGet, "/api/v1/strategies", "")
	var groups []engine.StrategySummary
	if err := json.Unmarshal(rec.Body.Bytes(), &groups); err != nil {
		t.Fatalf("decode strategies: %v", err)
	}
	total := 0
	for _, g := range groups {
		total += g.Count
	}
	if total != s.Ctl.Snapshot().Population {
		t.Fatalf("strategy counts sum to %d, population is %d", total, s.Ctl.Snapshot().Population)
	}

	rec = do(h, http.MethodGet, "/api/v1/report", "")
	body := rec.Body.String()
	for _, want := range []string{"State: PAUSED", "Rounds: 2", "Total population:"} {
		if !strings.Contains(body, want) {
			t.Fatalf("report missing %q:\n%s", want, body)
		}
	}
}

func TestHistoryWithoutDB(t *testing.T) {
	_, h := newTestServer(t)
	if rec := do(h, http.MethodGet, "/api/v1/stats/history", ""); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	if rec := do(h, http.MethodGet, "/api/v1/runs", ""); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	now := time.Unix(1000, 0)
	rl.now = func() time.Time { return now }

	if !rl.Allow("a") || !rl.Allow("a") {
		t.Fatal("first two requests should pass")
	}
	if rl.Allow("a") {
		t.Fatal("third request should be limited")
	}
	if !rl.Allow("b") {
		t.Fatal("other clients are counted separately")
	}
	if got := rl.RetryAfter("a"); got != 61 {
		t.Fatalf("expected retry after 61s, got %d", got)
	}

	now = now.Add(time.Minute)
	if !rl.Allow("a") {
		t.Fatal("window reset should allow again")
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	if got := clientIP(req); got != "10.0.0.1" {
		t.Fatalf("expected 10.0.0.1, got %s", got)
	}
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	if got := clientIP(req); got != "203.0.113.7" {
		t.Fatalf("expected forwarded address, got %s", got)
	}
}

func TestEventsWithoutDBSpanCycles(t *testing.T) {
	p := engine.DefaultParams()
	p.InitialAreaSize = 1
	p.MaxMoveDistance = 0
	p.MinEnergyToBreed = 11
	p.BreedingCost = 5
	ctl := engine.NewController(engine.ControllerConfig{Params: p, Seed: 2, MaxCycles: 3})
	t.Cleanup(ctl.Close)
	if err := ctl.Start([]engine.Seed{{Strategy: agents.Naive{}, Count: 2}}); err != nil {
		t.Fatalf("start: %v", err)
	}
	ctl.Wait()
	h := (&Server{Ctl: ctl}).Handler()

	rec := do(h, http.MethodGet, "/api/v1/events?kind=birth", "")
	var births []engine.Event
	if err := json.Unmarshal(rec.Body.Bytes(), &births); err != nil {
		t.Fatalf("decode events: %v", err)
	}
	cycles := map[uint64]bool{}
	for _, ev := range births {
		if ev.Kind != engine.EventBirth {
			t.Fatalf("kind filter leaked %q", ev.Kind)
		}
		cycles[ev.Cycle] = true
	}
	if len(cycles) < 2 {
		t.Fatalf("expected births from several cycles, got %+v", births)
	}

	rec = do(h, http.MethodGet, "/api/v1/events?limit=1", "")
	var one []engine.Event
	if err := json.Unmarshal(rec.Body.Bytes(), &one); err != nil {
		t.Fatalf("decode limited events: %v", err)
	}
	if len(one) != 1 || one[0] != births[len(births)-1] {
		t.Fatalf("expected the newest event only, got %+v", one)
	}
}
