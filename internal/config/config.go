// Package config provides simulation tuning knobs loaded from YAML.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	// TicksToAdjust controls price inertia: each tick the price
	// closes 1/TicksToAdjust of the gap to its target.
	TicksToAdjust int `yaml:"ticks_to_adjust"`

	// EvaluationOrder is "catalog" or "topological".
	EvaluationOrder string `yaml:"evaluation_order"`

	// ClearingWorkers bounds the number of products cleared in
	// parallel within one tick.
	ClearingWorkers int `yaml:"clearing_workers"`

	PriceCollar CollarConfig `yaml:"price_collar"`
}

type CollarConfig struct {
	Enabled bool    `yaml:"enabled"`
	Low     float64 `yaml:"low"`
	High    float64 `yaml:"high"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		TicksToAdjust:   7,
		EvaluationOrder: "catalog",
		ClearingWorkers: 4,
	}
}

// Load reads a YAML config file over the defaults and validates the
// result.
func Load(path string) (Config, error) {
	c := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c Config) Validate() error {
	if c.TicksToAdjust < 1 {
		return fmt.Errorf("ticks_to_adjust must be at least 1, got %d", c.TicksToAdjust)
	}
	switch c.EvaluationOrder {
	case "catalog", "topological":
	default:
		return fmt.Errorf("evaluation_order must be catalog or topological, got %q", c.EvaluationOrder)
	}
	if c.ClearingWorkers < 1 {
		return fmt.Errorf("clearing_workers must be at least 1, got %d", c.ClearingWorkers)
	}
	if c.PriceCollar.Enabled {
		if c.PriceCollar.Low < 0 || c.PriceCollar.High < c.PriceCollar.Low {
			return fmt.Errorf("price_collar bounds invalid: [%f, %f]", c.PriceCollar.Low, c.PriceCollar.High)
		}
	}
	return nil
}
