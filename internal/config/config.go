// Package config loads run configuration: world parameters, the initial
// population list, and process settings.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/talgya/dilemma/internal/agents"
	"github.com/talgya/dilemma/internal/engine"
)

// PopulationSpec is one entry of the initial population list.
type PopulationSpec struct {
	Strategy string  `yaml:"strategy"`
	Rate     float64 `yaml:"rate,omitempty"` // defect or probe rate for random / naive-prober
	Count    int     `yaml:"count"`
}

// Config is the full run configuration.
type Config struct {
	Seed        int64         `yaml:"seed"` // 0 = draw a fresh seed
	CycleDelay  time.Duration `yaml:"cycle_delay"`
	MaxCycles   uint64        `yaml:"max_cycles"`
	LogEvery    uint64        `yaml:"log_every"`
	RecordEvery uint64        `yaml:"record_every"`

	APIPort  int    `yaml:"api_port"`
	DBPath   string `yaml:"db_path"` // empty disables the run log
	AdminKey string `yaml:"-"`       // env only

	Params     engine.Params    `yaml:"params"`
	Population []PopulationSpec `yaml:"population"`
}

// Default returns the standard configuration and population mix.
func Default() Config {
	return Config{
		LogEvery:    100,
		RecordEvery: 10,
		APIPort:     8080,
		DBPath:      "data/dilemma.db",
		Params:      engine.DefaultParams(),
		Population: []PopulationSpec{
			{Strategy: agents.KindNaive, Count: 1},
			{Strategy: agents.KindCynic, Count: 5},
			{Strategy: agents.KindRandom, Rate: 0.5, Count: 1},
			{Strategy: agents.KindRandom, Rate: 0.25, Count: 1},
			{Strategy: agents.KindRandom, Rate: 0.75, Count: 1},
			{Strategy: agents.KindTitForTat, Count: 5},
			{Strategy: agents.KindNaiveProber, Rate: 0.1, Count: 1},
			{Strategy: agents.KindNaiveProber, Rate: 0.2, Count: 1},
			{Strategy: agents.KindNaiveProber, Rate: 0.3, Count: 1},
		},
	}
}

// Load reads a YAML file over the defaults. A population list in the file
// replaces the default list entirely.
func Load(path string) (Config, error) {
	cfg := Default()
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := Parse(b, &cfg); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML into cfg. Fields the document leaves out keep their
// current values; a population list replaces the current one.
func Parse(b []byte, cfg *Config) error {
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return err
	}
	return cfg.Validate()
}

// ApplyEnv overrides settings from IPDSIM_* environment variables.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv("IPDSIM_SEED"); v != "" {
		seed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("IPDSIM_SEED: %w", err)
		}
		c.Seed = seed
	}
	if v := os.Getenv("IPDSIM_API_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("IPDSIM_API_PORT: %w", err)
		}
		c.APIPort = port
	}
	if v, ok := os.LookupEnv("IPDSIM_DB_PATH"); ok {
		c.DBPath = v
	}
	c.AdminKey = os.Getenv("IPDSIM_ADMIN_KEY")
	return nil
}

// Validate checks world parameters and the population list.
func (c *Config) Validate() error {
	if err := c.Params.Validate(); err != nil {
		return err
	}
	if len(c.Population) == 0 {
		return errors.New("population list is empty")
	}
	_, err := c.Seeds()
	return err
}

// Seeds builds the engine population from the configured list.
func (c *Config) Seeds() ([]engine.Seed, error) {
	seeds := make([]engine.Seed, 0, len(c.Population))
	for i, p := range c.Population {
		st, err := agents.ParseStrategy(p.Strategy, p.Rate)
		if err != nil {
			return nil, fmt.Errorf("population[%d]: %w", i, err)
		}
		if p.Count <= 0 {
			return nil, fmt.Errorf("population[%d] (%s): %w", i, st.Label(), engine.ErrInvalidCount)
		}
		seeds = append(seeds, engine.Seed{Strategy: st, Count: p.Count})
	}
	return seeds, nil
}
