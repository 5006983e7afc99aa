package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"ENVIRONMENT", "PORT", "SAMPLE_RATE", "SEED", "LOOKAHEAD_MS", "TICK_MS", "MAX_NODES", "MAX_EVENT_RATE", "MAX_PATCH_BYTES", "AUDIO_OUTPUT"} {
		t.Setenv(k, "")
	}
	cfg := Load()
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 48000, cfg.SampleRate)
	assert.Equal(t, uint64(0), cfg.Seed)
	assert.True(t, cfg.AudioOutput)
	assert.Equal(t, 200*time.Millisecond, cfg.Lookahead)
	assert.Equal(t, 25*time.Millisecond, cfg.TickInterval)
	assert.Equal(t, 128, cfg.MaxNodes)
	assert.Equal(t, 400.0, cfg.MaxEventRate)
	assert.Equal(t, 256<<10, cfg.MaxPatchBytes)
	assert.False(t, cfg.IsProduction())
	assert.Equal(t, 128, cfg.Limits().MaxNodes)
	assert.Equal(t, 256<<10, cfg.Limits().MaxPatchBytes)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("SAMPLE_RATE", "44100")
	t.Setenv("SEED", "42")
	t.Setenv("LOOKAHEAD_MS", "150")
	t.Setenv("MAX_EVENT_RATE", "120.5")
	t.Setenv("AUDIO_OUTPUT", "false")
	t.Setenv("MAX_NODES", "not-a-number")

	cfg := Load()
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, 44100, cfg.SampleRate)
	assert.Equal(t, uint64(42), cfg.Seed)
	assert.Equal(t, 150*time.Millisecond, cfg.Lookahead)
	assert.Equal(t, 120.5, cfg.MaxEventRate)
	assert.False(t, cfg.AudioOutput)
	assert.Equal(t, 128, cfg.MaxNodes)
}
