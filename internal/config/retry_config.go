package config

import (
	"time"
)

// AIRetryConfig is the retry schedule applied to rate-limited provider calls.
type AIRetryConfig struct {
	// MaxAttempts counts the first call. Every failed attempt is followed by a wait,
	// including the last one.
	MaxAttempts     int
	InitialInterval time.Duration
	Multiplier      float64
}

// Wait returns the delay after failed attempt n, with n starting at 1.
func (r AIRetryConfig) Wait(n int) time.Duration {
	d := float64(r.InitialInterval)
	for i := 1; i < n; i++ {
		d *= r.Multiplier
	}
	return time.Duration(d)
}

// GetAIRetryConfig returns the retry configuration appropriate for the current environment.
// In test environments the intervals are much shorter for faster test execution.
func (c Config) GetAIRetryConfig() AIRetryConfig {
	if c.IsTest() {
		return AIRetryConfig{MaxAttempts: c.AIMaxAttempts, InitialInterval: 10 * time.Millisecond, Multiplier: 2.0}
	}
	return AIRetryConfig{
		MaxAttempts:     c.AIMaxAttempts,
		InitialInterval: c.AIBackoffInitialInterval,
		Multiplier:      c.AIBackoffMultiplier,
	}
}
