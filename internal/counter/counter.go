// Package counter provides windowed counter implementations for rate limiting.
package counter

import (
	"fmt"

	"github.com/opensource-finance/ledgerbus/internal/domain"
)

// New creates a new counter based on configuration.
// For Community tier: returns the in-memory counter.
// For Pro tier: returns the Redis counter.
func New(cfg domain.CounterConfig) (domain.Counter, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryCounter(), nil

	case "redis":
		return NewRedisCounter(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)

	default:
		return nil, fmt.Errorf("unsupported counter type: %s", cfg.Type)
	}
}
