package counter

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/opensource-finance/ledgerbus/internal/domain"
)

// MemoryCounter is a thread-safe windowed counter.
// Used as the Community tier counter backend. The window is anchored at the
// first increment and the counter resets once it elapses, matching the
// Redis backend's INCR+PEXPIRE semantics.
type MemoryCounter struct {
	mu       sync.Mutex
	counters map[string]*windowEntry
	closed   bool
}

type windowEntry struct {
	count     int64
	expiresAt time.Time
}

// NewMemoryCounter creates a new in-memory counter.
func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{
		counters: make(map[string]*windowEntry),
	}
}

// Increment atomically increments a counter within its window.
func (c *MemoryCounter) Increment(ctx context.Context, teamID string, key string, window time.Duration) (int64, error) {
	if teamID == "" {
		return 0, fmt.Errorf("teamID is required")
	}
	if window <= 0 {
		window = time.Minute
	}

	fullKey := c.makeKey(teamID, key)
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return 0, fmt.Errorf("counter is closed")
	}

	entry, ok := c.counters[fullKey]
	if !ok || now.After(entry.expiresAt) {
		entry = &windowEntry{expiresAt: now.Add(window)}
		c.counters[fullKey] = entry
	}
	entry.count++

	// Opportunistic cleanup keeps the map from growing unbounded.
	if len(c.counters) > 10000 {
		c.evictExpired(now)
	}

	return entry.count, nil
}

func (c *MemoryCounter) evictExpired(now time.Time) {
	for key, entry := range c.counters {
		if now.After(entry.expiresAt) {
			delete(c.counters, key)
		}
	}
}

// Ping checks counter health.
func (c *MemoryCounter) Ping(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("counter is closed")
	}
	return nil
}

// Close clears all counters.
func (c *MemoryCounter) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.counters = make(map[string]*windowEntry)
	return nil
}

func (c *MemoryCounter) makeKey(teamID, key string) string {
	return teamID + ":" + key
}

var _ domain.Counter = (*MemoryCounter)(nil)
