package scheduler

import (
	"time"
)

// Config controls scheduler intervals and job selection.
type Config struct {
	RunInterval     time.Duration
	RebuildInterval time.Duration
	EnabledJobs     []string
}

func DefaultConfig() Config {
	return Config{
		RunInterval:     time.Minute,
		RebuildInterval: time.Hour,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.RebuildInterval <= 0 {
		c.RebuildInterval = defaults.RebuildInterval
	}
	return c
}
