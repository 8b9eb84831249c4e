package bus

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/opensource-finance/ledgerbus/internal/domain"
	"github.com/opensource-finance/ledgerbus/internal/pipeline"
)

// TeamBus is a team-scoped facade over the shared bus. Emissions pass through
// the middleware chain with the team's identity bound, and history and stats
// reads are pre-scoped to the team. The nested chain is composed once at
// construction, not per emit.
type TeamBus struct {
	bus    domain.Bus
	teamID string
	userID string
	emit   pipeline.Next
}

// NewTeamBus scopes the given bus to a team. userID may be empty for
// non-interactive producers.
func NewTeamBus(b domain.Bus, chain *pipeline.Chain, teamID, userID string) *TeamBus {
	tb := &TeamBus{
		bus:    b,
		teamID: teamID,
		userID: userID,
	}

	terminal := func(ctx context.Context, evt *domain.Event, _ *pipeline.EmitContext) error {
		return b.Emit(ctx, evt)
	}
	if chain != nil {
		tb.emit = chain.Then(terminal)
	} else {
		tb.emit = terminal
	}

	return tb
}

// TeamID returns the team this facade is bound to.
func (t *TeamBus) TeamID() string {
	return t.teamID
}

// Emit stamps caller identity onto the event and runs it through the chain.
// Fields already set by the caller are preserved, so an event carrying a
// foreign teamId reaches the team-context stage intact and is rejected there
// rather than silently rewritten.
func (t *TeamBus) Emit(ctx context.Context, evt *domain.Event) error {
	if evt == nil {
		return fmt.Errorf("%w: event is required", domain.ErrInvalidInput)
	}

	if evt.ID == "" {
		evt.ID = uuid.New().String()
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	if evt.TeamID == "" {
		evt.TeamID = t.teamID
	}
	if evt.UserID == "" {
		evt.UserID = t.userID
	}

	return t.emit(ctx, evt, &pipeline.EmitContext{TeamID: t.teamID, UserID: t.userID})
}

// On registers a handler on the underlying bus.
func (t *TeamBus) On(pattern string, h domain.Handler) domain.Subscription {
	return t.bus.On(pattern, h)
}

// Once registers a one-shot handler on the underlying bus.
func (t *TeamBus) Once(pattern string, h domain.Handler) domain.Subscription {
	return t.bus.Once(pattern, h)
}

// RemoveAllListeners drops handlers on the underlying bus.
func (t *TeamBus) RemoveAllListeners(patterns ...string) {
	t.bus.RemoveAllListeners(patterns...)
}

// EventHistory returns this team's persisted events, newest first.
func (t *TeamBus) EventHistory(ctx context.Context, q domain.HistoryQuery) []*domain.Event {
	return t.bus.EventHistory(ctx, t.teamID, q)
}

// EventStats returns this team's aggregate counts.
func (t *TeamBus) EventStats(ctx context.Context, since time.Time) *domain.EventStats {
	return t.bus.EventStats(ctx, t.teamID, since)
}

// Ping checks the underlying bus.
func (t *TeamBus) Ping(ctx context.Context) error {
	return t.bus.Ping(ctx)
}
