// Decision strategies. A strategy holds only its configuration; whatever it
// needs to remember about opponents comes from the deciding agent's History.
package agents

import (
	"errors"
	"fmt"
	"image/color"
	"reflect"
	"strconv"
	"strings"
)

// ErrInvalidRate is returned for probabilities outside the open interval (0, 1).
var ErrInvalidRate = errors.New("rate must be in the open interval (0, 1)")

// Strategy decides how an agent plays against an opponent.
type Strategy interface {
	// Label is the human-readable name, unique per configuration.
	Label() string
	// Color is the display tag used by renderers.
	Color() color.RGBA
	// Decide must not modify history.
	Decide(opponent AgentID, history *History, rng Source) Decision
	// Clone returns an independent strategy of the same variant and configuration.
	Clone() Strategy
}

// Naive always cooperates.
type Naive struct{}

func (Naive) Label() string     { return "Naive" }
func (Naive) Color() color.RGBA { return color.RGBA{R: 255, G: 175, B: 175, A: 255} }
func (Naive) Clone() Strategy   { return Naive{} }

func (Naive) Decide(AgentID, *History, Source) Decision { return Cooperate }

// Cynic always defects.
type Cynic struct{}

func (Cynic) Label() string     { return "Cynic" }
func (Cynic) Color() color.RGBA { return color.RGBA{A: 255} }
func (Cynic) Clone() Strategy   { return Cynic{} }

func (Cynic) Decide(AgentID, *History, Source) Decision { return Defect }

// Random defects with a fixed probability, ignoring history.
type Random struct {
	defectRate float64
}

// NewRandom returns a Random strategy defecting with probability defectRate.
func NewRandom(defectRate float64) (Random, error) {
	if err := checkRate(defectRate); err != nil {
		return Random{}, fmt.Errorf("random strategy: %w", err)
	}
	return Random{defectRate: defectRate}, nil
}

// MustRandom is NewRandom for known-good literals.
func MustRandom(defectRate float64) Random {
	s, err := NewRandom(defectRate)
	if err != nil {
		panic(err)
	}
	return s
}

// DefectRate returns the configured probability of defecting.
func (s Random) DefectRate() float64 { return s.defectRate }

func (s Random) Label() string {
	return "Random (defectRate = " + formatRate(s.defectRate) + ")"
}

// Color is a gray level: darker for lower defect rates.
func (s Random) Color() color.RGBA {
	v := uint8(s.defectRate * 255)
	return color.RGBA{R: v, G: v, B: v, A: 255}
}

func (s Random) Clone() Strategy { return Random{defectRate: s.defectRate} }

func (s Random) Decide(_ AgentID, _ *History, rng Source) Decision {
	if rng.Float64() > s.defectRate {
		return Cooperate
	}
	return Defect
}

// TitForTat cooperates on first contact, then repeats the opponent's last move.
type TitForTat struct{}

func (TitForTat) Label() string     { return "Tit for Tat" }
func (TitForTat) Color() color.RGBA { return color.RGBA{G: 255, A: 255} }
func (TitForTat) Clone() Strategy   { return TitForTat{} }

func (TitForTat) Decide(opponent AgentID, history *History, _ Source) Decision {
	if last, ok := history.MostRecentWith(opponent); ok {
		return last.PartnerDecision
	}
	return Cooperate
}

// NaiveProber plays tit for tat but defects unprovoked with probability probeRate.
type NaiveProber struct {
	probeRate float64
}

// NewNaiveProber returns a prober defecting unprovoked with probability probeRate.
func NewNaiveProber(probeRate float64) (NaiveProber, error) {
	if err := checkRate(probeRate); err != nil {
		return NaiveProber{}, fmt.Errorf("naive prober strategy: %w", err)
	}
	return NaiveProber{probeRate: probeRate}, nil
}

// MustNaiveProber is NewNaiveProber for known-good literals.
func MustNaiveProber(probeRate float64) NaiveProber {
	s, err := NewNaiveProber(probeRate)
	if err != nil {
		panic(err)
	}
	return s
}

// ProbeRate returns the configured probability of probing.
func (s NaiveProber) ProbeRate() float64 { return s.probeRate }

func (s NaiveProber) Label() string {
	return "Naive Prober (probeRate = " + formatRate(s.probeRate) + ")"
}

func (NaiveProber) Color() color.RGBA { return color.RGBA{R: 255, A: 255} }

func (s NaiveProber) Clone() Strategy { return NaiveProber{probeRate: s.probeRate} }

func (s NaiveProber) Decide(opponent AgentID, history *History, rng Source) Decision {
	if rng.Float64() > s.probeRate {
		return TitForTat{}.Decide(opponent, history, rng)
	}
	return Defect
}

// Strategy kind names accepted by ParseStrategy.
const (
	KindNaive       = "naive"
	KindCynic       = "cynic"
	KindRandom      = "random"
	KindTitForTat   = "tit-for-tat"
	KindNaiveProber = "naive-prober"
)

// ParseStrategy builds a strategy from its kind name. rate is used by the
// variants that take a probability and ignored otherwise.
func ParseStrategy(kind string, rate float64) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case KindNaive:
		return Naive{}, nil
	case KindCynic:
		return Cynic{}, nil
	case KindRandom:
		s, err := NewRandom(rate)
		if err != nil {
			return nil, err
		}
		return s, nil
	case KindTitForTat, "titfortat", "tft":
		return TitForTat{}, nil
	case KindNaiveProber, "prober":
		s, err := NewNaiveProber(rate)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown strategy %q", kind)
	}
}

// CloneStrategy clones s and panics if the clone changed variant, which would
// mean a Strategy implementation is broken.
func CloneStrategy(s Strategy) Strategy {
	c := s.Clone()
	if reflect.TypeOf(c) != reflect.TypeOf(s) {
		panic(fmt.Sprintf("agents: strategy %T cloned into %T", s, c))
	}
	return c
}

// HexColor formats a display color as #rrggbb.
func HexColor(c color.RGBA) string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

func checkRate(p float64) error {
	if !(p > 0 && p < 1) {
		return fmt.Errorf("%w: got %v", ErrInvalidRate, p)
	}
	return nil
}

func formatRate(p float64) string {
	return strconv.FormatFloat(p, 'g', -1, 64)
}
