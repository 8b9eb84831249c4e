package domain

import (
	"context"
	"time"
)

// EventStore defines durable append/query of event records and the derived
// audit trail. All methods require teamID for strict multi-tenancy isolation
// where a team scope applies.
type EventStore interface {
	// AppendEvent durably stores one event record.
	AppendEvent(ctx context.Context, evt *Event) error

	// QueryEvents returns a team's events ordered by timestamp descending,
	// filtered by optional type and since bound, limited by q.Limit.
	QueryEvents(ctx context.Context, teamID string, q HistoryQuery) ([]*Event, error)

	// CountEvents counts a team's events matching the optional type and
	// since filters.
	CountEvents(ctx context.Context, teamID string, eventType string, since time.Time) (int64, error)

	// CountEventsByType groups a team's event counts by type.
	CountEventsByType(ctx context.Context, teamID string, since time.Time) (map[string]int64, error)

	// AppendAuditLog stores one derived audit record.
	AppendAuditLog(ctx context.Context, entry *AuditLogEntry) error

	// GetUserEmail resolves a user's email address by ID.
	GetUserEmail(ctx context.Context, userID string) (string, error)

	// GetEntityTeam resolves the owning team of a referenced entity
	// (contract, receivable, expense). Returns ErrNotFound when the
	// entity does not exist.
	GetEntityTeam(ctx context.Context, entityType string, entityID string) (string, error)

	// Ping checks store connectivity.
	Ping(ctx context.Context) error

	// Close releases the store.
	Close() error
}

// AuditLogEntry is a derived, append-only record created by audit handlers
// in reaction to events. Never mutated after creation.
type AuditLogEntry struct {
	ID         string         `json:"id"`
	TeamID     string         `json:"teamId"`
	UserID     string         `json:"userId,omitempty"`
	UserEmail  string         `json:"userEmail"`
	EntityType string         `json:"entityType"`
	EntityID   string         `json:"entityId"`
	Action     string         `json:"action"`
	Severity   string         `json:"severity,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
	Changes    map[string]any `json:"changes,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// StoreConfig holds configuration for event store initialization.
type StoreConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
