// Population bookkeeping: births, deaths, and moves. These are the only paths
// that change the live set or the grid, and each updates both.
package engine

import (
	"fmt"
	"log/slog"

	"github.com/talgya/dilemma/internal/agents"
	"github.com/talgya/dilemma/internal/world"
)

// Event is a notable occurrence in the population.
type Event struct {
	Cycle    uint64         `json:"cycle"`
	Kind     string         `json:"kind"` // "birth" or "death"
	AgentID  agents.AgentID `json:"agent_id"`
	Label    string         `json:"label"`
	ParentID agents.AgentID `json:"parent_id,omitempty"`
	Cause    string         `json:"cause,omitempty"` // deaths: "game" or "upkeep"
}

// Event kinds.
const (
	EventBirth = "birth"
	EventDeath = "death"
)

// breed creates one offspring next to a and charges a the breeding cost.
func (e *Environment) breed(a *agents.Agent, cycle uint64) {
	child := e.spawner.SpawnChild(a, cycle, e.params.InitialEnergy)
	e.addAgent(child)
	a.Energy -= e.params.BreedingCost
	e.stats.Births++
	e.recordEvent(Event{
		Cycle:    cycle,
		Kind:     EventBirth,
		AgentID:  child.ID,
		Label:    child.Strategy.Label(),
		ParentID: a.ID,
	})
	slog.Debug("agent born", "cycle", cycle, "id", child.ID, "parent", a.ID, "strategy", child.Strategy.Label())
}

// dieIfWeak removes a if its energy fell below the survival threshold.
func (e *Environment) dieIfWeak(a *agents.Agent, cycle uint64, cause string) {
	if a.Energy >= e.params.MinEnergyToLive || !e.Alive(a.ID) {
		return
	}
	e.removeAgent(a)
	e.stats.Deaths++
	e.recordEvent(Event{
		Cycle:   cycle,
		Kind:    EventDeath,
		AgentID: a.ID,
		Label:   a.Strategy.Label(),
		Cause:   cause,
	})
	slog.Debug("agent died", "cycle", cycle, "id", a.ID, "strategy", a.Strategy.Label(), "cause", cause)
}

// addAgent registers a in the live set and the grid.
func (e *Environment) addAgent(a *agents.Agent) {
	if _, dup := e.index[a.ID]; dup {
		panic(fmt.Sprintf("engine: agent %d added twice", a.ID))
	}
	if err := e.grid.Insert(a); err != nil {
		panic(fmt.Sprintf("engine: index agent %d: %v", a.ID, err))
	}
	e.index[a.ID] = len(e.members)
	e.members = append(e.members, a)
}

// removeAgent drops a from the live set and the grid. The last member takes
// the vacated slot, so member order is insertion order only until the first
// death; nothing depends on it beyond replaying a seeded run.
func (e *Environment) removeAgent(a *agents.Agent) {
	i, ok := e.index[a.ID]
	if !ok {
		panic(fmt.Sprintf("engine: agent %d removed but not alive", a.ID))
	}
	if err := e.grid.Remove(a); err != nil {
		panic(fmt.Sprintf("engine: unindex agent %d at %v: %v", a.ID, a.Location, err))
	}
	last := len(e.members) - 1
	if i != last {
		moved := e.members[last]
		e.members[i] = moved
		e.index[moved.ID] = i
	}
	e.members[last] = nil
	e.members = e.members[:last]
	delete(e.index, a.ID)
}

// moveAgent changes a's location and keeps the grid in step.
func (e *Environment) moveAgent(a *agents.Agent, to world.Location) {
	from := a.Location
	a.Location = to
	if err := e.grid.Relocate(a, from); err != nil {
		panic(fmt.Sprintf("engine: relocate agent %d from %v to %v: %v", a.ID, from, to, err))
	}
}
