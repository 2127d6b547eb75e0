package engine

import (
	"sort"
	"time"

	"github.com/talgya/dilemma/internal/agents"
)

// AgentView is a read-only copy of one agent's observable state.
type AgentView struct {
	ID        agents.AgentID `json:"id"`
	X         float64        `json:"x"`
	Y         float64        `json:"y"`
	Label     string         `json:"strategy"`
	Color     string         `json:"color"`
	Energy    float64        `json:"energy"`
	Games     int            `json:"games"`
	BornCycle uint64         `json:"born_cycle"`
	ParentID  agents.AgentID `json:"parent_id,omitempty"`
}

// Snapshot is an immutable copy of the world taken between cycles.
type Snapshot struct {
	Cycle      uint64      `json:"cycle"`
	Population int         `json:"population"`
	Stats      Stats       `json:"stats"`
	Agents     []AgentView `json:"agents"`
	Events     []Event     `json:"events"`        // produced by the last cycle
	Recent     []Event     `json:"recent_events"` // up to maxEvents, oldest first
	TakenAt    time.Time   `json:"taken_at"`
}

// StrategySummary aggregates the live agents sharing one strategy label.
type StrategySummary struct {
	Label         string  `json:"strategy"`
	Color         string  `json:"color"`
	Count         int     `json:"count"`
	Share         float64 `json:"share"` // 0.0–1.0 of population
	AverageEnergy float64 `json:"average_energy"`
}

// Snapshot copies the observable state of the environment.
func (e *Environment) Snapshot() Snapshot {
	views := make([]AgentView, 0, len(e.members))
	for _, a := range e.members {
		views = append(views, AgentView{
			ID:        a.ID,
			X:         a.Location.X,
			Y:         a.Location.Y,
			Label:     a.Strategy.Label(),
			Color:     agents.HexColor(a.Strategy.Color()),
			Energy:    a.Energy,
			Games:     a.History.Len(),
			BornCycle: a.BornCycle,
			ParentID:  a.ParentID,
		})
	}
	sort.Slice(views, func(i, j int) bool { return views[i].ID < views[j].ID })

	events := make([]Event, len(e.cycleEvents))
	copy(events, e.cycleEvents)

	return Snapshot{
		Cycle:      e.stats.Cycles,
		Population: len(e.members),
		Stats:      e.stats,
		Agents:     views,
		Events:     events,
		Recent:     e.Events(0),
		TakenAt:    time.Now(),
	}
}

// Agent looks up one agent by ID.
func (s *Snapshot) Agent(id agents.AgentID) (AgentView, bool) {
	i := sort.Search(len(s.Agents), func(i int) bool { return s.Agents[i].ID >= id })
	if i < len(s.Agents) && s.Agents[i].ID == id {
		return s.Agents[i], true
	}
	return AgentView{}, false
}

// ByStrategy groups agents by strategy label, largest group first.
func (s *Snapshot) ByStrategy() []StrategySummary {
	groups := make(map[string]*StrategySummary)
	for _, a := range s.Agents {
		g, ok := groups[a.Label]
		if !ok {
			g = &StrategySummary{Label: a.Label, Color: a.Color}
			groups[a.Label] = g
		}
		g.Count++
		g.AverageEnergy += a.Energy
	}

	out := make([]StrategySummary, 0, len(groups))
	for _, g := range groups {
		g.AverageEnergy /= float64(g.Count)
		if s.Population > 0 {
			g.Share = float64(g.Count) / float64(s.Population)
		}
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Label < out[j].Label
	})
	return out
}

// AverageEnergy returns the mean energy across live agents.
func (s *Snapshot) AverageEnergy() float64 {
	if len(s.Agents) == 0 {
		return 0
	}
	total := 0.0
	for _, a := range s.Agents {
		total += a.Energy
	}
	return total / float64(len(s.Agents))
}
