package reconciler

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config controls sweep cadence and batch sizes.
type Config struct {
	// RunInterval is the pause between sweep passes.
	RunInterval time.Duration
	// StaleThreshold is how long a Reserved record may sit unresolved
	// before the sweep refunds it.
	StaleThreshold time.Duration
	// BatchSize caps records claimed per pass.
	BatchSize int
}

func DefaultConfig() Config {
	return Config{
		RunInterval:    time.Minute,
		StaleThreshold: 5 * time.Minute,
		BatchSize:      100,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.StaleThreshold <= 0 {
		c.StaleThreshold = defaults.StaleThreshold
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	return c
}

// ProvideConfig builds the sweep config from environment variables.
func ProvideConfig() Config {
	cfg := DefaultConfig()
	if v := getenvDuration("SWEEP_INTERVAL"); v > 0 {
		cfg.RunInterval = v
	}
	if v := getenvDuration("SWEEP_STALE_THRESHOLD"); v > 0 {
		cfg.StaleThreshold = v
	}
	if v := getenvInt("SWEEP_BATCH_SIZE"); v > 0 {
		cfg.BatchSize = v
	}
	return cfg
}

func getenvDuration(key string) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return 0
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return parsed
}

func getenvInt(key string) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return 0
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0
	}
	return parsed
}
