package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	c := Default()
	assert.NoError(t, c.Validate())
	assert.Equal(t, 7, c.TicksToAdjust)
	assert.Equal(t, "catalog", c.EvaluationOrder)
	assert.False(t, c.PriceCollar.Enabled)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agora.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
ticks_to_adjust: 3
evaluation_order: topological
price_collar:
  enabled: true
  low: 1.0
  high: 100.0
`), 0o644))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3, c.TicksToAdjust)
	assert.Equal(t, "topological", c.EvaluationOrder)
	// Unset keys keep their defaults.
	assert.Equal(t, Default().ClearingWorkers, c.ClearingWorkers)
	assert.True(t, c.PriceCollar.Enabled)
	assert.Equal(t, 100.0, c.PriceCollar.High)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agora.yaml")
	require.NoError(t, os.WriteFile(path, []byte("ticks_to_adjust: [oops"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"zero ticks", func(c *Config) { c.TicksToAdjust = 0 }},
		{"bad order", func(c *Config) { c.EvaluationOrder = "alphabetical" }},
		{"zero workers", func(c *Config) { c.ClearingWorkers = 0 }},
		{"inverted collar", func(c *Config) {
			c.PriceCollar = CollarConfig{Enabled: true, Low: 10.0, High: 1.0}
		}},
		{"negative collar", func(c *Config) {
			c.PriceCollar = CollarConfig{Enabled: true, Low: -1.0, High: 1.0}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}
