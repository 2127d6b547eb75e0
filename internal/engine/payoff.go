package engine

import (
	"fmt"

	"github.com/talgya/dilemma/internal/agents"
)

// PayoffTable holds the energy each side gains from one game.
// Temptation > Cooperation > Default = 0 > Sucker must hold.
type PayoffTable struct {
	Cooperation float64 `json:"cooperation" yaml:"cooperation"` // both cooperate
	Sucker      float64 `json:"sucker" yaml:"sucker"`           // cooperated against a defector
	Temptation  float64 `json:"temptation" yaml:"temptation"`   // defected against a cooperator
	Default     float64 `json:"default" yaml:"default"`         // both defect
}

// DefaultPayoffs returns the standard table.
func DefaultPayoffs() PayoffTable {
	return PayoffTable{
		Cooperation: 1.0,
		Sucker:      -1.0,
		Temptation:  1.5,
		Default:     0.0,
	}
}

// Payoff returns what the player choosing mine receives when the other
// player chooses theirs.
func (p PayoffTable) Payoff(mine, theirs agents.Decision) float64 {
	switch {
	case mine == agents.Cooperate && theirs == agents.Cooperate:
		return p.Cooperation
	case mine == agents.Cooperate && theirs == agents.Defect:
		return p.Sucker
	case mine == agents.Defect && theirs == agents.Cooperate:
		return p.Temptation
	default:
		return p.Default
	}
}

// Validate checks the dilemma ordering. Mutual defection is always worth
// zero, so only the other three entries are tunable.
func (p PayoffTable) Validate() error {
	if p.Default != 0 {
		return fmt.Errorf("%w: default payoff must be 0, got %v", ErrInvalidParams, p.Default)
	}
	if !(p.Temptation > p.Cooperation && p.Cooperation > 0 && 0 > p.Sucker) {
		return fmt.Errorf("%w: payoffs must satisfy temptation > cooperation > 0 > sucker, got %+v",
			ErrInvalidParams, p)
	}
	return nil
}

// Payoff scores one game with the default table.
func Payoff(mine, theirs agents.Decision) float64 {
	return DefaultPayoffs().Payoff(mine, theirs)
}
