// Agent spawning: ID assignment, initial placement, and offspring.
package agents

import "github.com/talgya/dilemma/internal/world"

// Spawner creates agents and owns the ID counter for a run.
type Spawner struct {
	rng    Source
	nextID AgentID
}

// NewSpawner creates a spawner drawing placements from rng.
func NewSpawner(rng Source) *Spawner {
	return &Spawner{
		rng:    rng,
		nextID: 1,
	}
}

// NextID returns the ID the next spawned agent will receive.
func (s *Spawner) NextID() AgentID {
	return s.nextID
}

func (s *Spawner) newID() AgentID {
	id := s.nextID
	s.nextID++
	return id
}

// SpawnPopulation places count agents uniformly at random inside the square
// [0, area) × [0, area). The first agent uses strategy itself, the rest use
// clones of it.
func (s *Spawner) SpawnPopulation(strategy Strategy, count int, area, energy float64) []*Agent {
	agents := make([]*Agent, 0, count)
	for i := 0; i < count; i++ {
		st := strategy
		if i > 0 {
			st = CloneStrategy(strategy)
		}
		loc := world.Location{X: s.rng.Float64() * area, Y: s.rng.Float64() * area}
		agents = append(agents, s.spawnOne(st, loc, energy))
	}
	return agents
}

// SpawnChild creates an offspring of parent at the parent's location with a
// cloned strategy and an empty history.
func (s *Spawner) SpawnChild(parent *Agent, cycle uint64, energy float64) *Agent {
	child := s.spawnOne(CloneStrategy(parent.Strategy), parent.Location, energy)
	child.BornCycle = cycle
	child.ParentID = parent.ID
	child.HasParent = true
	return child
}

func (s *Spawner) spawnOne(strategy Strategy, loc world.Location, energy float64) *Agent {
	return &Agent{
		ID:       s.newID(),
		Strategy: strategy,
		Energy:   energy,
		Location: loc,
		History:  NewHistory(),
	}
}
