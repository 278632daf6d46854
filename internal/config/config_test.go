package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultIsUsable(t *testing.T) {
	cfg := Default()
	assert.Equal(t, ModeAutomatic, cfg.Mode)
	assert.Equal(t, 100, cfg.Parser.BatchSize)
	assert.Greater(t, cfg.Filtering.ScoreThresholds.Optimal, cfg.Filtering.ScoreThresholds.Minimum)
}

func TestApplyModePresets(t *testing.T) {
	cfg := Default()
	ApplyMode(&cfg, ModeManual)
	assert.False(t, cfg.CodeGeneration.ErrorHandling)
	assert.Equal(t, 0.0, cfg.Filtering.ScoreThresholds.Minimum)

	ApplyMode(&cfg, ModeAssisted)
	assert.Equal(t, ScopeComprehensiveScan, cfg.TokenDetection.Scope)

	ApplyMode(&cfg, ModeCustom)
	assert.Equal(t, ModeCustom, cfg.Mode)
}

func TestLoadWithoutConfigFileUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	assert.NoError(t, err)
	assert.Equal(t, 100, cfg.Parser.BatchSize)
}
