package config

import (
	"os"
	"strconv"
	"time"

	"github.com/cbegin/soundscape-go/internal/patch"
)

// Config holds host configuration for the soundscape daemon and CLI.
type Config struct {
	Environment string
	Port        string
	SentryDSN   string

	SampleRate  int
	PatchFile   string
	Seed        uint64 // 0 picks a random seed
	AudioOutput bool

	Lookahead    time.Duration
	TickInterval time.Duration

	MaxNodes      int
	MaxEventRate  float64
	MaxPatchBytes int
}

func Load() *Config {
	return &Config{
		Environment:   getEnv("ENVIRONMENT", "development"),
		Port:          getEnv("PORT", "8080"),
		SentryDSN:     getEnv("SENTRY_DSN", ""),
		SampleRate:    getInt("SAMPLE_RATE", 48000),
		PatchFile:     getEnv("PATCH_FILE", ""),
		Seed:          uint64(getInt("SEED", 0)),
		AudioOutput:   getEnv("AUDIO_OUTPUT", "true") == "true",
		Lookahead:     time.Duration(getInt("LOOKAHEAD_MS", 200)) * time.Millisecond,
		TickInterval:  time.Duration(getInt("TICK_MS", 25)) * time.Millisecond,
		MaxNodes:      getInt("MAX_NODES", 128),
		MaxEventRate:  getFloat("MAX_EVENT_RATE", 400),
		MaxPatchBytes: getInt("MAX_PATCH_BYTES", 256<<10),
	}
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	v, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return v
}

func getFloat(key string, defaultValue float64) float64 {
	v, err := strconv.ParseFloat(getEnv(key, ""), 64)
	if err != nil {
		return defaultValue
	}
	return v
}

// IsProduction reports whether the host runs in production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// Limits returns the patch resource ceilings.
func (c *Config) Limits() patch.Limits {
	return patch.Limits{MaxNodes: c.MaxNodes, MaxEventRate: c.MaxEventRate, MaxPatchBytes: c.MaxPatchBytes}
}
