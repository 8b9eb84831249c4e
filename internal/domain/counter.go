package domain

import (
	"context"
	"time"
)

// Counter provides windowed counting for rate limiting. All methods require
// teamID for strict multi-tenancy isolation.
type Counter interface {
	// Increment atomically increments a counter and returns the new value.
	// The window starts at the first increment and the counter resets when
	// it elapses.
	Increment(ctx context.Context, teamID string, key string, window time.Duration) (int64, error)

	// Ping checks counter backend health.
	Ping(ctx context.Context) error

	// Close releases the counter backend.
	Close() error
}

// CounterConfig holds configuration for counter initialization.
type CounterConfig struct {
	// Type is the counter backend: "memory" or "redis"
	Type string

	// Redis settings (Pro tier)
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}
