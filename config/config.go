// Package config loads the service configuration from a YAML or JSON file
// with optional environment variable overrides (prefix BESS_, "__" as the
// nesting separator, e.g. BESS_EMS__MAX_GRID_POWER_KW=15).
package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/enerflow/bess/core/bms"
	"github.com/enerflow/bess/core/ems"
	"github.com/enerflow/bess/core/metrics"
	"github.com/enerflow/bess/infra/mqtt"
)

type Config struct {
	Pack    PackConfig     `json:"pack"`
	BMS     bms.Config     `json:"bms"`
	EMS     ems.Config     `json:"ems"`
	Sim     SimConfig      `json:"sim"`
	Metrics metrics.Config `json:"metrics"`
	MQTT    mqtt.Config    `json:"mqtt"`
}

// PackConfig describes the battery pack topology.
type PackConfig struct {
	NumCells       int     `json:"num_cells"`
	CellCapacityAh float64 `json:"cell_capacity_ah"`
	InitialVoltage float64 `json:"initial_voltage"`
	InitialSoC     float64 `json:"initial_soc"`
}

// SetDefaults applies the reference four-cell pack.
func (c *PackConfig) SetDefaults() {
	if c.NumCells == 0 {
		c.NumCells = 4
	}
	if c.CellCapacityAh == 0 {
		c.CellCapacityAh = 5
	}
	if c.InitialVoltage == 0 {
		c.InitialVoltage = 3.7
	}
	if c.InitialSoC == 0 {
		c.InitialSoC = 80
	}
}

func (c PackConfig) Validate() error {
	if c.NumCells <= 0 {
		return fmt.Errorf("pack: num_cells must be positive, got %d", c.NumCells)
	}
	if c.CellCapacityAh <= 0 {
		return fmt.Errorf("pack: cell_capacity_ah must be positive, got %g", c.CellCapacityAh)
	}
	if c.InitialSoC < 0 || c.InitialSoC > 100 {
		return fmt.Errorf("pack: initial_soc must be within [0,100], got %g", c.InitialSoC)
	}
	return nil
}

// SimConfig drives the simulation loop.
type SimConfig struct {
	TimeStepHours float64 `json:"time_step_hours"`
	DurationHours float64 `json:"duration_hours"`
	StartHour     float64 `json:"start_hour"`
	// TickInterval is the wall-clock pause between ticks, e.g. "100ms".
	// Empty means run as fast as possible.
	TickInterval string `json:"tick_interval"`
}

func (c *SimConfig) SetDefaults() {
	if c.TimeStepHours == 0 {
		c.TimeStepHours = 1
	}
	if c.DurationHours == 0 {
		c.DurationHours = 24
	}
}

func (c SimConfig) Validate() error {
	if c.TimeStepHours <= 0 {
		return fmt.Errorf("sim: time_step_hours must be positive, got %g", c.TimeStepHours)
	}
	if c.DurationHours <= 0 {
		return fmt.Errorf("sim: duration_hours must be positive, got %g", c.DurationHours)
	}
	if c.StartHour < 0 || c.StartHour >= 24 {
		return fmt.Errorf("sim: start_hour must be within [0,24), got %g", c.StartHour)
	}
	return nil
}

func Load(path string) (*Config, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	// Optional environment overrides
	if err := k.Load(env.Provider("BESS_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "bess_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults fills in defaults for every section.
func (c *Config) ApplyDefaults() {
	c.Pack.SetDefaults()
	c.BMS.SetDefaults()
	c.EMS.SetDefaults()
	c.Sim.SetDefaults()
	c.Metrics.SetDefaults()
	c.MQTT.SetDefaults()
}

// Validate checks every section.
func (c Config) Validate() error {
	if err := c.Pack.Validate(); err != nil {
		return err
	}
	if err := c.BMS.Validate(); err != nil {
		return err
	}
	if err := c.EMS.Validate(); err != nil {
		return err
	}
	if err := c.Sim.Validate(); err != nil {
		return err
	}
	if err := c.Metrics.Validate(); err != nil {
		return err
	}
	return c.MQTT.Validate()
}
