package engine

import (
	"errors"
	"sync"
	"testing"

	"github.com/talgya/dilemma/internal/agents"
)

type stateLog struct {
	mu     sync.Mutex
	states []State
}

func (l *stateLog) record(s State) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.states = append(l.states, s)
}

func (l *stateLog) last() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.states) == 0 {
		return StateNotStarted
	}
	return l.states[len(l.states)-1]
}

func (l *stateLog) all() []State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]State(nil), l.states...)
}

func sameStates(a, b []State) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestControllerRunsToExtinction(t *testing.T) {
	p := DefaultParams()
	p.InitialEnergy = 1
	p.LifeCost = 0.3
	log := &stateLog{}
	c := NewController(ControllerConfig{Params: p, Seed: 5, OnStateChange: log.record})

	if c.State() != StateNotStarted {
		t.Fatalf("expected NOT_STARTED, got %s", c.State())
	}
	if err := c.Pause(); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("pause before start: expected ErrNotRunning, got %v", err)
	}
	if err := c.Resume(); !errors.Is(err, ErrNotPaused) {
		t.Fatalf("resume before start: expected ErrNotPaused, got %v", err)
	}

	if err := c.Start([]Seed{{Strategy: agents.Naive{}, Count: 1}}); err != nil {
		t.Fatalf("start: %v", err)
	}
	c.Wait()

	if c.State() != StateFinished {
		t.Fatalf("expected FINISHED, got %s", c.State())
	}
	if log.last() != StateFinished {
		t.Fatalf("expected last notification FINISHED, got %s", log.last())
	}
	snap := c.Snapshot()
	if snap == nil || snap.Population != 0 || snap.Cycle != 4 {
		t.Fatalf("unexpected final snapshot: %+v", snap)
	}
	if err := c.Resume(); !errors.Is(err, ErrNotPaused) {
		t.Fatalf("resume after finish: expected ErrNotPaused, got %v", err)
	}
	if err := c.Start([]Seed{{Strategy: agents.Naive{}, Count: 1}}); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("second start: expected ErrAlreadyStarted, got %v", err)
	}
	if c.State() != StateFinished {
		t.Fatalf("finished state must be terminal, got %s", c.State())
	}
}

func TestControllerPauseAndResume(t *testing.T) {
	p := DefaultParams()
	p.InitialAreaSize = 1
	p.MaxMoveDistance = 0

	var c *Controller
	var mu sync.Mutex
	var cycles []uint64
	c = NewController(ControllerConfig{
		Params:    p,
		Seed:      3,
		MaxCycles: 6,
		Observer: func(s Snapshot) {
			mu.Lock()
			cycles = append(cycles, s.Cycle)
			mu.Unlock()
			if s.Cycle == 2 {
				if err := c.Pause(); err != nil {
					t.Errorf("pause from observer: %v", err)
				}
			}
		},
	})

	if err := c.Start([]Seed{{Strategy: agents.Naive{}, Count: 4}}); err != nil {
		t.Fatalf("start: %v", err)
	}
	c.Wait()
	if c.State() != StatePaused {
		t.Fatalf("expected PAUSED, got %s", c.State())
	}
	if got := c.Snapshot().Cycle; got != 2 {
		t.Fatalf("expected pause after cycle 2, got %d", got)
	}
	if err := c.Pause(); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("pause while paused: expected ErrNotRunning, got %v", err)
	}

	if err := c.Resume(); err != nil {
		t.Fatalf("resume: %v", err)
	}
	c.Wait()
	if c.State() != StatePaused {
		t.Fatalf("expected PAUSED at cycle limit, got %s", c.State())
	}
	if got := c.Snapshot().Cycle; got != 6 {
		t.Fatalf("expected cycle limit 6, got %d", got)
	}

	mu.Lock()
	defer mu.Unlock()
	for i, cyc := range cycles {
		if cyc != uint64(i+1) {
			t.Fatalf("observer saw cycles %v; expected each cycle exactly once in order", cycles)
		}
	}
}

func TestControllerRejectsInvalidStart(t *testing.T) {
	c := NewController(ControllerConfig{Seed: 1})
	err := c.Start([]Seed{{Strategy: agents.Cynic{}, Count: -1}})
	if !errors.Is(err, ErrInvalidCount) {
		t.Fatalf("expected ErrInvalidCount, got %v", err)
	}
	if c.State() != StateNotStarted {
		t.Fatalf("failed start must leave controller NOT_STARTED, got %s", c.State())
	}
}

func TestControllerEmptyPopulationFinishes(t *testing.T) {
	c := NewController(ControllerConfig{Seed: 1})
	if err := c.Start(nil); err != nil {
		t.Fatalf("start: %v", err)
	}
	c.Wait()
	if c.State() != StateFinished {
		t.Fatalf("expected FINISHED for empty population, got %s", c.State())
	}
}

func TestControllerClose(t *testing.T) {
	p := DefaultParams()
	c := NewController(ControllerConfig{Params: p, Seed: 8})
	if err := c.Start([]Seed{{Strategy: agents.TitForTat{}, Count: 10}}); err != nil {
		t.Fatalf("start: %v", err)
	}
	c.Close()
	if s := c.State(); s != StatePaused && s != StateFinished {
		t.Fatalf("expected PAUSED or FINISHED after close, got %s", s)
	}
}

func TestControllerNotificationOrder(t *testing.T) {
	for i := 0; i < 300; i++ {
		log := &stateLog{}
		c := NewController(ControllerConfig{Seed: int64(i), OnStateChange: log.record})
		if err := c.Start(nil); err != nil {
			t.Fatalf("run %d: start: %v", i, err)
		}
		c.Wait()
		want := []State{StateRunning, StateFinished}
		if got := log.all(); !sameStates(got, want) {
			t.Fatalf("run %d: expected notifications %v, got %v", i, want, got)
		}
		if c.State() != log.last() {
			t.Fatalf("run %d: state %s but last notification %s", i, c.State(), log.last())
		}
	}
}

func TestControllerPausingState(t *testing.T) {
	reached := make(chan struct{})
	release := make(chan struct{})
	log := &stateLog{}

	p := DefaultParams()
	p.InitialAreaSize = 1
	p.MaxMoveDistance = 0
	c := NewController(ControllerConfig{
		Params:        p,
		Seed:          4,
		OnStateChange: log.record,
		Observer: func(s Snapshot) {
			if s.Cycle == 1 {
				close(reached)
				<-release
			}
		},
	})
	if err := c.Start([]Seed{{Strategy: agents.Naive{}, Count: 3}}); err != nil {
		t.Fatalf("start: %v", err)
	}

	<-reached
	if c.State() != StateRunning {
		t.Fatalf("expected RUNNING mid-cycle, got %s", c.State())
	}
	if err := c.Pause(); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if c.State() != StatePausing {
		t.Fatalf("expected PAUSING while the cycle is in flight, got %s", c.State())
	}
	if err := c.Pause(); err != nil {
		t.Fatalf("second pause while pausing: %v", err)
	}
	close(release)
	c.Wait()

	if c.State() != StatePaused {
		t.Fatalf("expected PAUSED, got %s", c.State())
	}
	if got := c.Snapshot().Cycle; got != 1 {
		t.Fatalf("expected pause after cycle 1, got %d", got)
	}
	want := []State{StateRunning, StatePausing, StatePaused}
	if got := log.all(); !sameStates(got, want) {
		t.Fatalf("expected notifications %v, got %v", want, got)
	}
}
