// Package engine runs the population: the per-cycle game loop and the
// controller that drives it in the background.
package engine

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/talgya/dilemma/internal/agents"
	"github.com/talgya/dilemma/internal/world"
)

// maxEvents caps the recent-events log.
const maxEvents = 1000

// ErrInvalidCount is returned for a population seed with a non-positive count.
var ErrInvalidCount = errors.New("seed count must be positive")

// Seed describes part of the initial population: Count agents playing Strategy.
type Seed struct {
	Strategy agents.Strategy
	Count    int
}

// Stats holds the running totals of a run.
type Stats struct {
	Cycles        uint64        `json:"cycles"`
	Games         uint64        `json:"games"`
	Births        uint64        `json:"births"`
	Deaths        uint64        `json:"deaths"`
	LastCycleTime time.Duration `json:"last_cycle_ns"`
}

// Environment owns the live population and the spatial index over it.
// It is not safe for concurrent use; the Controller gives one goroutine
// exclusive ownership.
type Environment struct {
	params  Params
	rng     agents.Source
	spawner *agents.Spawner

	// Live set: members in insertion order, index maps ID → position in members.
	members []*agents.Agent
	index   map[agents.AgentID]int
	grid    *world.Grid[*agents.Agent]

	stats Stats

	events      []Event // recent births and deaths, oldest first, at most maxEvents
	cycleEvents []Event // produced by the cycle in progress or last completed
}

// NewEnvironment validates params and places the initial population.
func NewEnvironment(params Params, population []Seed, rng agents.Source) (*Environment, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if rng == nil {
		return nil, errors.New("random source is required")
	}
	for i, seed := range population {
		if seed.Strategy == nil {
			return nil, fmt.Errorf("seed %d: strategy is required", i)
		}
		if seed.Count <= 0 {
			return nil, fmt.Errorf("seed %d (%s): %w", i, seed.Strategy.Label(), ErrInvalidCount)
		}
	}

	e := &Environment{
		params:  params,
		rng:     rng,
		spawner: agents.NewSpawner(rng),
		index:   make(map[agents.AgentID]int),
		grid:    world.NewGrid(params.CellSize(), agents.LocationOf),
	}
	for _, seed := range population {
		for _, a := range e.spawner.SpawnPopulation(seed.Strategy, seed.Count, params.InitialAreaSize, params.InitialEnergy) {
			e.addAgent(a)
		}
	}
	return e, nil
}

// Params returns the parameters the environment was built with.
func (e *Environment) Params() Params {
	return e.params
}

// Population returns the number of live agents.
func (e *Environment) Population() int {
	return len(e.members)
}

// Cycle returns the number of completed cycles.
func (e *Environment) Cycle() uint64 {
	return e.stats.Cycles
}

// Stats returns the running totals.
func (e *Environment) Stats() Stats {
	return e.stats
}

// Alive reports whether id belongs to a live agent.
func (e *Environment) Alive(id agents.AgentID) bool {
	_, ok := e.index[id]
	return ok
}

// Agent returns the live agent with the given id. Callers outside the
// owning goroutine must use Snapshot instead.
func (e *Environment) Agent(id agents.AgentID) (*agents.Agent, bool) {
	i, ok := e.index[id]
	if !ok {
		return nil, false
	}
	return e.members[i], true
}

// Events returns up to limit of the most recent events, oldest first.
// A non-positive limit returns everything kept.
func (e *Environment) Events(limit int) []Event {
	start := 0
	if limit > 0 && len(e.events) > limit {
		start = len(e.events) - limit
	}
	out := make([]Event, len(e.events)-start)
	copy(out, e.events[start:])
	return out
}

// RunOneCycle advances the world by one cycle. Every agent alive at the start
// of the cycle acts once unless it dies first; agents born during the cycle
// wait for the next one.
func (e *Environment) RunOneCycle() {
	start := time.Now()
	cycle := e.stats.Cycles
	e.cycleEvents = e.cycleEvents[:0]

	snapshot := make([]*agents.Agent, len(e.members))
	copy(snapshot, e.members)

	for _, a := range snapshot {
		if !e.Alive(a.ID) {
			continue // died earlier this cycle
		}

		// Step 1: find a partner and play.
		if partner := e.pickPartner(a); partner != nil {
			e.playGame(a, partner, cycle)
			e.stats.Games++
			if !e.Alive(a.ID) {
				continue
			}
		}

		// Step 2: breed.
		if a.Energy >= e.params.MinEnergyToBreed {
			e.breed(a, cycle)
		}

		// Step 3: move.
		e.move(a)

		// Step 4: pay upkeep, die if too weak.
		a.Energy -= e.params.LifeCost
		e.dieIfWeak(a, cycle, "upkeep")
	}

	e.stats.Cycles++
	e.stats.LastCycleTime = time.Since(start)
}

// pickPartner selects a uniformly random live agent within meeting range.
// Candidates are sorted by ID before the draw so a fixed seed replays the
// same run.
func (e *Environment) pickPartner(a *agents.Agent) *agents.Agent {
	near := e.grid.WithinRadius(a.Location, e.params.MeetingRadius)
	candidates := near[:0]
	for _, other := range near {
		if other != a {
			candidates = append(candidates, other)
		}
	}
	if len(candidates) == 0 {
		return nil
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].ID < candidates[j].ID })
	return candidates[e.rng.Intn(len(candidates))]
}

// playGame resolves one game. Both decisions are made before either history
// is touched.
func (e *Environment) playGame(a, b *agents.Agent, cycle uint64) {
	da := a.Strategy.Decide(b.ID, a.History, e.rng)
	db := b.Strategy.Decide(a.ID, b.History, e.rng)

	a.History.Record(b.ID, cycle, da, db)
	b.History.Record(a.ID, cycle, db, da)

	a.Energy += e.params.Payoffs.Payoff(da, db)
	b.Energy += e.params.Payoffs.Payoff(db, da)

	e.dieIfWeak(a, cycle, "game")
	e.dieIfWeak(b, cycle, "game")
}

// move displaces a in a uniformly random direction by a uniformly random
// distance up to MaxMoveDistance.
func (e *Environment) move(a *agents.Agent) {
	distance := e.rng.Float64() * e.params.MaxMoveDistance
	direction := e.rng.Float64() * 2 * math.Pi
	e.moveAgent(a, a.Location.Displace(direction, distance))
}

func (e *Environment) recordEvent(ev Event) {
	e.cycleEvents = append(e.cycleEvents, ev)
	e.events = append(e.events, ev)
	if len(e.events) > maxEvents {
		e.events = e.events[len(e.events)-maxEvents:]
	}
}
