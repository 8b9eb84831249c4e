package counter

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCounter implements windowed counting using Redis.
// Used as the Pro tier counter backend; safe across processes.
type RedisCounter struct {
	client *redis.Client
}

// NewRedisCounter creates a new Redis counter.
func NewRedisCounter(addr, password string, db int) (*RedisCounter, error) {
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisCounter{client: client}, nil
}

// incrScript increments atomically and sets the window TTL on first use.
var incrScript = redis.NewScript(`
	local current = redis.call('INCR', KEYS[1])
	if current == 1 then
		redis.call('PEXPIRE', KEYS[1], ARGV[1])
	end
	return current
`)

// Increment atomically increments a counter using Redis INCR with EXPIRE.
func (c *RedisCounter) Increment(ctx context.Context, teamID string, key string, window time.Duration) (int64, error) {
	if teamID == "" {
		return 0, fmt.Errorf("teamID is required")
	}
	if window <= 0 {
		window = time.Minute
	}

	fullKey := c.makeKey(teamID, key)

	result, err := incrScript.Run(ctx, c.client, []string{fullKey}, window.Milliseconds()).Int64()
	if err != nil {
		return 0, err
	}

	return result, nil
}

// Ping checks Redis connectivity.
func (c *RedisCounter) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *RedisCounter) Close() error {
	return c.client.Close()
}

func (c *RedisCounter) makeKey(teamID, key string) string {
	return "ledgerbus:" + teamID + ":" + key
}
