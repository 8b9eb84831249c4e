// Package bus provides the in-process publish/subscribe event engine.
package bus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/opensource-finance/ledgerbus/internal/domain"
)

// Bus is the in-memory event bus. Subscriptions are held in a pattern
// registry keyed by exact type, category wildcard ("contract.*") or the
// global wildcard ("*"). Dispatch fans out concurrently with per-handler
// fault isolation; persistence is best-effort.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string][]*subscription
	store  domain.EventStore
	closed bool
	nextID atomic.Int64
}

type subscription struct {
	id      int64
	pattern string
	handler domain.Handler
	once    bool
	fired   atomic.Bool
	bus     *Bus
}

// New creates a bus backed by the given event store. A nil store disables
// persistence and history; emission and dispatch still work.
func New(store domain.EventStore) *Bus {
	return &Bus{
		subs:  make(map[string][]*subscription),
		store: store,
	}
}

// Emit validates, persists and dispatches an event.
//
// Payload validation failures block: nothing is persisted or dispatched and
// the error propagates to the caller. Persistence failures are logged and
// swallowed so business reactions stay available when the audit copy cannot
// be written. Both failure classes produce a best-effort system-error event,
// guarded against recursion.
func (b *Bus) Emit(ctx context.Context, evt *domain.Event) error {
	if evt == nil {
		return fmt.Errorf("%w: event is required", domain.ErrInvalidInput)
	}
	if evt.Type == "" || evt.TeamID == "" {
		return fmt.Errorf("%w: event type and teamId are required", domain.ErrInvalidInput)
	}

	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return fmt.Errorf("bus is closed")
	}

	// 1. Schema validation. Invalid events are never persisted or dispatched.
	if err := evt.ValidatePayload(); err != nil {
		b.emitSystemError(ctx, evt, "VALIDATION_FAILURE", err)
		return err
	}

	// 2. Best-effort persistence.
	if b.store != nil {
		if err := b.store.AppendEvent(ctx, evt); err != nil {
			slog.Error("failed to persist event",
				"event_id", evt.ID,
				"event_type", evt.Type,
				"team_id", evt.TeamID,
				"error", err,
			)
			b.emitSystemError(ctx, evt, "PERSISTENCE_FAILURE", err)
		}
	}

	// 3. Parallel fan-out with per-handler isolation.
	b.dispatch(ctx, evt)

	return nil
}

// matchPatterns returns the three registry lookups for an event type:
// exact, category wildcard, global.
func matchPatterns(eventType string) [3]string {
	return [3]string{eventType, domain.Category(eventType) + ".*", "*"}
}

func (b *Bus) dispatch(ctx context.Context, evt *domain.Event) {
	b.mu.RLock()
	var matched []*subscription
	for _, pattern := range matchPatterns(evt.Type) {
		matched = append(matched, b.subs[pattern]...)
	}
	b.mu.RUnlock()

	if len(matched) == 0 {
		return
	}

	var wg sync.WaitGroup
	for i, sub := range matched {
		if sub.once && !sub.fired.CompareAndSwap(false, true) {
			continue
		}

		wg.Add(1)
		go func(index int, s *subscription) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					slog.Error("event handler panicked",
						"event_id", evt.ID,
						"event_type", evt.Type,
						"pattern", s.pattern,
						"handler_index", index,
						"panic", r,
					)
				}
			}()

			if s.once {
				defer s.Unsubscribe()
			}

			if err := s.handler(ctx, evt); err != nil {
				slog.Error("event handler failed",
					"event_id", evt.ID,
					"event_type", evt.Type,
					"pattern", s.pattern,
					"handler_index", index,
					"error", err,
				)
			}
		}(i, sub)
	}

	wg.Wait()
}

// emitSystemError emits a best-effort service.error event describing a
// blocking failure. Events already in the service category never re-trigger
// it, which bounds the recursion to a single attempt.
func (b *Bus) emitSystemError(ctx context.Context, failed *domain.Event, code string, cause error) {
	if failed.Category() == "service" {
		return
	}

	errEvt := &domain.Event{
		ID:        uuid.New().String(),
		Type:      "service.error",
		TeamID:    failed.TeamID,
		Timestamp: time.Now().UTC(),
		Source:    domain.SourceSystem,
		Payload: &domain.SystemPayload{
			Message: cause.Error(),
			Code:    code,
			Data: map[string]any{
				"failedEventId":   failed.ID,
				"failedEventType": failed.Type,
			},
		},
	}

	if err := b.Emit(ctx, errEvt); err != nil {
		slog.Error("failed to emit system error event",
			"failed_event_id", failed.ID,
			"error", err,
		)
	}
}

// On registers a handler for a pattern.
func (b *Bus) On(pattern string, h domain.Handler) domain.Subscription {
	return b.subscribe(pattern, h, false)
}

// Once registers a handler that auto-unsubscribes after its first delivery.
// Delivery is what consumes the shot: a handler that errors or panics still
// counts and is never retried.
func (b *Bus) Once(pattern string, h domain.Handler) domain.Subscription {
	return b.subscribe(pattern, h, true)
}

func (b *Bus) subscribe(pattern string, h domain.Handler, once bool) domain.Subscription {
	sub := &subscription{
		id:      b.nextID.Add(1),
		pattern: pattern,
		handler: h,
		once:    once,
		bus:     b,
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[pattern] = append(b.subs[pattern], sub)
	return sub
}

// RemoveAllListeners drops all handlers for the given patterns, or every
// handler when called without arguments.
func (b *Bus) RemoveAllListeners(patterns ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(patterns) == 0 {
		b.subs = make(map[string][]*subscription)
		return
	}
	for _, pattern := range patterns {
		delete(b.subs, pattern)
	}
}

// SubscriptionCount returns the number of handlers registered for a pattern.
func (b *Bus) SubscriptionCount(pattern string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[pattern])
}

// EventHistory returns persisted events for a team, newest first, bounded by
// q.Limit (default 100). History is diagnostic, not transactional: store
// errors are logged and yield an empty result.
func (b *Bus) EventHistory(ctx context.Context, teamID string, q domain.HistoryQuery) []*domain.Event {
	if b.store == nil {
		return nil
	}

	events, err := b.store.QueryEvents(ctx, teamID, q)
	if err != nil {
		slog.Error("failed to query event history",
			"team_id", teamID,
			"error", err,
		)
		return nil
	}
	return events
}

// EventStats returns aggregate counts for a team. RecentActivity is always
// computed over the trailing 24 hours regardless of since. Same fail-soft
// contract as EventHistory.
func (b *Bus) EventStats(ctx context.Context, teamID string, since time.Time) *domain.EventStats {
	stats := &domain.EventStats{EventsByType: make(map[string]int64)}
	if b.store == nil {
		return stats
	}

	total, err := b.store.CountEvents(ctx, teamID, "", since)
	if err != nil {
		slog.Error("failed to count events", "team_id", teamID, "error", err)
		return stats
	}
	stats.TotalEvents = total

	byType, err := b.store.CountEventsByType(ctx, teamID, since)
	if err != nil {
		slog.Error("failed to count events by type", "team_id", teamID, "error", err)
	} else {
		stats.EventsByType = byType
	}

	recent, err := b.store.CountEvents(ctx, teamID, "", time.Now().Add(-24*time.Hour))
	if err != nil {
		slog.Error("failed to count recent events", "team_id", teamID, "error", err)
	} else {
		stats.RecentActivity = recent
	}

	return stats
}

// Ping checks bus health.
func (b *Bus) Ping(ctx context.Context) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return fmt.Errorf("bus is closed")
	}
	return nil
}

// Close shuts the bus down and drops all subscriptions.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	b.subs = make(map[string][]*subscription)
	return nil
}

// Unsubscribe removes the handler from the registry.
func (s *subscription) Unsubscribe() {
	b := s.bus
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subs[s.pattern]
	for i, sub := range subs {
		if sub.id == s.id {
			b.subs[s.pattern] = append(subs[:i:i], subs[i+1:]...)
			return
		}
	}
}

// Pattern returns the pattern the handler was registered on.
func (s *subscription) Pattern() string {
	return s.pattern
}

var _ domain.Bus = (*Bus)(nil)
