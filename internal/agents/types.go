// Package agents provides the agent data model, interaction history, and the
// decision strategies agents play the dilemma with.
package agents

import (
	"github.com/talgya/dilemma/internal/world"
)

// AgentID is a unique identifier for an agent. IDs are never reused.
type AgentID uint64

// Decision is a move in one round of the dilemma.
type Decision uint8

const (
	Cooperate Decision = iota
	Defect
)

// String returns the decision name.
func (d Decision) String() string {
	switch d {
	case Cooperate:
		return "COOPERATE"
	case Defect:
		return "DEFECT"
	default:
		return "UNKNOWN"
	}
}

// MarshalText lets decisions appear by name in JSON.
func (d Decision) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Source is the shared randomness stream threaded through every random draw
// in a run. *math/rand.Rand satisfies it.
type Source interface {
	Float64() float64
	Intn(n int) int
}

// Agent is a single simulated individual.
type Agent struct {
	ID       AgentID
	Strategy Strategy
	Energy   float64
	Location world.Location
	History  *History

	// Lineage
	BornCycle uint64
	ParentID  AgentID
	HasParent bool
}

// LocationOf returns the agent's current location. Used as the grid locator.
func LocationOf(a *Agent) world.Location {
	return a.Location
}
