package engine

import (
	"errors"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/talgya/dilemma/internal/agents"
)

// Lifecycle errors.
var (
	ErrAlreadyStarted = errors.New("simulation already started")
	ErrNotRunning     = errors.New("simulation is not running")
	ErrNotPaused      = errors.New("simulation is not paused")
)

// State is the run state of a Controller.
type State uint8

const (
	StateNotStarted State = iota
	StateRunning
	StatePausing // pause requested, cycle in flight
	StatePaused
	StateFinished // population reached zero; terminal
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "NOT_STARTED"
	case StateRunning:
		return "RUNNING"
	case StatePausing:
		return "PAUSING"
	case StatePaused:
		return "PAUSED"
	case StateFinished:
		return "FINISHED"
	default:
		return "UNKNOWN"
	}
}

// MarshalText lets states appear by name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ControllerConfig configures a Controller.
type ControllerConfig struct {
	Params Params
	Seed   int64         // seeds the shared random stream when Rand is nil
	Rand   agents.Source // optional; overrides Seed

	CycleDelay time.Duration // pause between cycles; 0 runs flat out
	MaxCycles  uint64        // pause automatically after this many cycles; 0 = unlimited
	LogEvery   uint64        // log a summary every N cycles; 0 = never

	// Observer receives a snapshot after every cycle, on the cycle goroutine.
	// It may call Pause but must not block for long.
	Observer func(Snapshot)
	// OnStateChange receives every state transition exactly once, in the
	// order the transitions happened. Calls are serialized and never made
	// with the controller lock held.
	OnStateChange func(State)
}

// Controller drives an Environment on a background goroutine and exposes
// start, pause and resume.
type Controller struct {
	cfg ControllerConfig

	mu         sync.Mutex
	env        *Environment
	running    bool          // cycle goroutine active
	done       chan struct{} // closed when the current goroutine exits
	population int           // population when the goroutine last exited
	pending    []State       // transitions awaiting OnStateChange, oldest first

	notifyMu sync.Mutex // held by the goroutine delivering pending transitions

	stop     atomic.Bool
	snapshot atomic.Pointer[Snapshot]
}

// NewController creates a controller in the NOT_STARTED state.
func NewController(cfg ControllerConfig) *Controller {
	if cfg.Params == (Params{}) {
		cfg.Params = DefaultParams()
	}
	return &Controller{cfg: cfg}
}

// State returns the current run state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

func (c *Controller) stateLocked() State {
	switch {
	case c.env == nil:
		return StateNotStarted
	case c.running && c.stop.Load():
		return StatePausing
	case c.running:
		return StateRunning
	case c.population == 0:
		return StateFinished
	default:
		return StatePaused
	}
}

// Snapshot returns the most recently published snapshot, or nil before Start.
func (c *Controller) Snapshot() *Snapshot {
	return c.snapshot.Load()
}

// Start builds the environment from population and begins running cycles.
func (c *Controller) Start(population []Seed) error {
	c.mu.Lock()
	if c.env != nil {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}

	rng := c.cfg.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(c.cfg.Seed))
	}
	env, err := NewEnvironment(c.cfg.Params, population, rng)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	c.env = env
	c.publish(env)
	started := env.Population()
	c.launchLocked()
	c.transitionLocked(StateRunning)
	c.mu.Unlock()

	slog.Info("simulation started", "population", started, "seeds", len(population))
	c.deliver()
	return nil
}

// Pause asks the cycle goroutine to stop after the cycle in flight.
func (c *Controller) Pause() error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return ErrNotRunning
	}
	already := c.stop.Swap(true)
	if !already {
		c.transitionLocked(StatePausing)
	}
	c.mu.Unlock()

	if !already {
		slog.Info("simulation pausing")
		c.deliver()
	}
	return nil
}

// Resume restarts a paused simulation.
func (c *Controller) Resume() error {
	c.mu.Lock()
	if c.stateLocked() != StatePaused {
		c.mu.Unlock()
		return ErrNotPaused
	}
	cycle := c.env.Cycle()
	c.stop.Store(false)
	c.launchLocked()
	c.transitionLocked(StateRunning)
	c.mu.Unlock()

	slog.Info("simulation resumed", "cycle", cycle)
	c.deliver()
	return nil
}

// Wait blocks until the cycle goroutine, if any, has exited.
func (c *Controller) Wait() {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Close pauses the simulation and waits for the cycle in flight to finish.
func (c *Controller) Close() {
	_ = c.Pause()
	c.Wait()
}

func (c *Controller) launchLocked() {
	c.running = true
	c.done = make(chan struct{})
	go c.run(c.env, c.done)
}

// run is the cycle loop. It is the only code touching env while running.
func (c *Controller) run(env *Environment, done chan struct{}) {
	defer close(done)

	for !c.stop.Load() && env.Population() > 0 {
		if c.cfg.MaxCycles > 0 && env.Cycle() >= c.cfg.MaxCycles {
			slog.Info("cycle limit reached", "cycle", env.Cycle())
			break
		}

		env.RunOneCycle()
		snap := c.publish(env)

		if c.cfg.LogEvery > 0 && env.Cycle()%c.cfg.LogEvery == 0 {
			slog.Info("cycle summary",
				"cycle", env.Cycle(),
				"population", snap.Population,
				"games", snap.Stats.Games,
				"births", snap.Stats.Births,
				"deaths", snap.Stats.Deaths,
				"cycle_time", snap.Stats.LastCycleTime,
			)
		}
		if c.cfg.Observer != nil {
			c.cfg.Observer(*snap)
		}
		if c.cfg.CycleDelay > 0 {
			time.Sleep(c.cfg.CycleDelay)
		}
	}

	cycle, population := env.Cycle(), env.Population()

	c.mu.Lock()
	c.population = population
	c.running = false
	state := c.stateLocked()
	c.transitionLocked(state)
	c.mu.Unlock()

	if state == StateFinished {
		slog.Info("simulation finished: population extinct", "cycle", cycle)
	} else {
		slog.Info("simulation paused", "cycle", cycle, "population", population)
	}
	c.deliver()
}

func (c *Controller) publish(env *Environment) *Snapshot {
	snap := env.Snapshot()
	c.snapshot.Store(&snap)
	return &snap
}

// transitionLocked queues s for OnStateChange. Queue order is lock order,
// which is the order transitions happened.
func (c *Controller) transitionLocked(s State) {
	if c.cfg.OnStateChange != nil {
		c.pending = append(c.pending, s)
	}
}

// deliver drains the transition queue. Only one goroutine drains at a time;
// a caller that finds another one draining leaves its transitions to it.
// The recheck after unlocking picks up anything queued while the drainer
// was finishing.
func (c *Controller) deliver() {
	for {
		if !c.notifyMu.TryLock() {
			return
		}
		for {
			c.mu.Lock()
			if len(c.pending) == 0 {
				c.mu.Unlock()
				break
			}
			s := c.pending[0]
			c.pending = c.pending[1:]
			c.mu.Unlock()
			c.cfg.OnStateChange(s)
		}
		c.notifyMu.Unlock()

		c.mu.Lock()
		empty := len(c.pending) == 0
		c.mu.Unlock()
		if empty {
			return
		}
	}
}
