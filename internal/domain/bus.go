package domain

import (
	"context"
	"time"
)

// Handler processes a dispatched event. A handler error is isolated by the
// bus: it is logged and never blocks sibling handlers or the emit call.
type Handler func(ctx context.Context, evt *Event) error

// Subscription represents an active registration of a handler against a
// pattern. Go functions are not comparable, so removal of a single handler
// goes through its subscription handle rather than an off(pattern, handler)
// call.
type Subscription interface {
	// Unsubscribe removes the handler from the registry.
	Unsubscribe()

	// Pattern returns the pattern the handler was registered on.
	Pattern() string
}

// HistoryQuery filters event history reads.
type HistoryQuery struct {
	// EventType filters to an exact type when non-empty.
	EventType string

	// Limit bounds the result. Defaults to 100.
	Limit int

	// Since filters to events at or after this time when non-zero.
	Since time.Time
}

// EventStats aggregates per-team event counts.
type EventStats struct {
	TotalEvents int64 `json:"totalEvents"`

	EventsByType map[string]int64 `json:"eventsByType"`

	// RecentActivity is the event count over the trailing 24 hours,
	// regardless of the stats query's since bound.
	RecentActivity int64 `json:"recentActivity"`
}

// Bus is the in-process publish/subscribe engine. Patterns are an exact
// event type ("contract.created"), a category wildcard ("contract.*"), or
// the global wildcard ("*").
type Bus interface {
	// Emit validates, persists (best-effort) and dispatches an event.
	// Validation failures propagate; persistence and handler failures
	// are absorbed.
	Emit(ctx context.Context, evt *Event) error

	// On registers a handler for a pattern.
	On(pattern string, h Handler) Subscription

	// Once registers a handler that auto-unsubscribes after its first
	// delivery.
	Once(pattern string, h Handler) Subscription

	// RemoveAllListeners drops all handlers for the given patterns, or
	// every handler when called without arguments.
	RemoveAllListeners(patterns ...string)

	// EventHistory returns persisted events for a team, newest first.
	// Fail-soft: store errors are logged and yield an empty result.
	EventHistory(ctx context.Context, teamID string, q HistoryQuery) []*Event

	// EventStats returns aggregate counts for a team. Same fail-soft
	// contract as EventHistory.
	EventStats(ctx context.Context, teamID string, since time.Time) *EventStats

	// Ping checks bus health.
	Ping(ctx context.Context) error

	// Close shuts the bus down and drops all subscriptions.
	Close() error
}
