package engine

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidParams is wrapped by every parameter validation failure.
var ErrInvalidParams = errors.New("invalid simulation parameters")

// Params holds the tunable constants of the world.
type Params struct {
	Payoffs PayoffTable `json:"payoffs" yaml:"payoffs"`

	LifeCost         float64 `json:"life_cost" yaml:"life_cost"` // per cycle
	InitialEnergy    float64 `json:"initial_energy" yaml:"initial_energy"`
	BreedingCost     float64 `json:"breeding_cost" yaml:"breeding_cost"`
	MinEnergyToBreed float64 `json:"min_energy_to_breed" yaml:"min_energy_to_breed"`
	MinEnergyToLive  float64 `json:"min_energy_to_live" yaml:"min_energy_to_live"`

	InitialAreaSize float64 `json:"initial_area_size" yaml:"initial_area_size"`
	MeetingRadius   float64 `json:"meeting_radius" yaml:"meeting_radius"`
	MaxMoveDistance float64 `json:"max_move_distance" yaml:"max_move_distance"`
}

// DefaultParams returns the standard world constants.
func DefaultParams() Params {
	return Params{
		Payoffs:          DefaultPayoffs(),
		LifeCost:         0.2,
		InitialEnergy:    10.0,
		BreedingCost:     15.0,
		MinEnergyToBreed: 30.0,
		MinEnergyToLive:  0.0,
		InitialAreaSize:  5.0,
		MeetingRadius:    5.0,
		MaxMoveDistance:  2.0,
	}
}

// CellSize is the spatial grid cell side: twice the meeting radius.
func (p Params) CellSize() float64 {
	return 2 * p.MeetingRadius
}

// Validate rejects parameter sets the engine cannot run.
func (p Params) Validate() error {
	if err := p.Payoffs.Validate(); err != nil {
		return err
	}
	for name, v := range map[string]float64{
		"life_cost":           p.LifeCost,
		"initial_energy":      p.InitialEnergy,
		"breeding_cost":       p.BreedingCost,
		"min_energy_to_breed": p.MinEnergyToBreed,
		"min_energy_to_live":  p.MinEnergyToLive,
		"initial_area_size":   p.InitialAreaSize,
		"meeting_radius":      p.MeetingRadius,
		"max_move_distance":   p.MaxMoveDistance,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s must be finite", ErrInvalidParams, name)
		}
	}
	switch {
	case p.MeetingRadius <= 0:
		return fmt.Errorf("%w: meeting_radius must be positive", ErrInvalidParams)
	case p.InitialAreaSize <= 0:
		return fmt.Errorf("%w: initial_area_size must be positive", ErrInvalidParams)
	case p.MaxMoveDistance < 0:
		return fmt.Errorf("%w: max_move_distance must not be negative", ErrInvalidParams)
	case p.LifeCost < 0:
		return fmt.Errorf("%w: life_cost must not be negative", ErrInvalidParams)
	case p.BreedingCost <= 0:
		return fmt.Errorf("%w: breeding_cost must be positive", ErrInvalidParams)
	case p.InitialEnergy < p.MinEnergyToLive:
		return fmt.Errorf("%w: initial_energy below min_energy_to_live", ErrInvalidParams)
	case p.MinEnergyToBreed <= p.MinEnergyToLive:
		return fmt.Errorf("%w: min_energy_to_breed must exceed min_energy_to_live", ErrInvalidParams)
	}
	return nil
}
