package domain

import "time"

// Config holds the complete ledgerbus configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server"`

	// Tier determines backend selection
	Tier Tier `json:"tier"`

	// Component configurations
	Store   StoreConfig   `json:"store"`
	Counter CounterConfig `json:"counter"`

	// RateLimits holds per-type emission ceilings
	RateLimits RateLimitConfig `json:"rateLimits"`

	// Observability
	Logging LoggingConfig `json:"logging"`
	Tracing TracingConfig `json:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ReadTimeout  int    `json:"readTimeout"`  // seconds
	WriteTimeout int    `json:"writeTimeout"` // seconds
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool   `json:"enabled"`
	ServiceName string `json:"serviceName"`
	Endpoint    string `json:"endpoint"`
}

// RateLimitConfig holds per-type emission ceilings over a rolling window,
// counted per team per type.
type RateLimitConfig struct {
	// Default applies to event types without an override.
	Default int `json:"default"`

	// Overrides maps exact event types to their ceiling.
	Overrides map[string]int `json:"overrides"`

	// Window is the counting window. Defaults to one minute.
	Window time.Duration `json:"window"`
}

// Limit returns the ceiling for an event type.
func (c RateLimitConfig) Limit(eventType string) int {
	if limit, ok := c.Overrides[eventType]; ok {
		return limit
	}
	return c.Default
}

// DefaultRateLimits returns the fixed per-type defaults.
func DefaultRateLimits() RateLimitConfig {
	return RateLimitConfig{
		Default: 300,
		Overrides: map[string]int{
			"contract.created":       100,
			"receivable.created":     200,
			"expense.created":        200,
			"bulk.operation_started": 10,
			"document.uploaded":      50,
		},
		Window: time.Minute,
	}
}

// Tier represents the product tier.
type Tier string

const (
	// TierCommunity is the free tier with SQLite + in-memory counters
	TierCommunity Tier = "community"

	// TierPro is the paid tier with PostgreSQL + Redis
	TierPro Tier = "pro"
)

// DefaultConfig returns a default configuration for Community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Tier: TierCommunity,
		Store: StoreConfig{
			Driver:     "sqlite",
			SQLitePath: "./ledgerbus.db",
		},
		Counter: CounterConfig{
			Type: "memory",
		},
		RateLimits: DefaultRateLimits(),
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "ledgerbus",
		},
	}
}

// ProConfig returns a configuration for Pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Store = StoreConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "ledgerbus",
	}
	cfg.Counter = CounterConfig{
		Type:      "redis",
		RedisAddr: "localhost:6379",
	}
	cfg.Tracing.Enabled = true
	return cfg
}
