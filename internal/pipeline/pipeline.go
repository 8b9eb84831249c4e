// Package pipeline provides the composable middleware chain wrapped around
// event emission and handler invocation.
package pipeline

import (
	"context"

	"github.com/opensource-finance/ledgerbus/internal/domain"
)

// EmitContext carries the identity of the emitting caller through the chain.
type EmitContext struct {
	TeamID string
	UserID string
}

// Next continues the chain with the (possibly mutated) event.
type Next func(ctx context.Context, evt *domain.Event, ec *EmitContext) error

// Stage is one interceptor in the chain. It may inspect or mutate the event
// before calling next, and may return an error to abort the chain.
type Stage func(ctx context.Context, evt *domain.Event, ec *EmitContext, next Next) error

// Chain is an ordered sequence of stages. The nested call chain is built
// once per terminal, not per event.
type Chain struct {
	stages []Stage
}

// NewChain creates a chain from stages in execution order.
func NewChain(stages ...Stage) *Chain {
	return &Chain{stages: stages}
}

// Append returns a new chain with extra stages added at the end.
func (c *Chain) Append(stages ...Stage) *Chain {
	combined := make([]Stage, 0, len(c.stages)+len(stages))
	combined = append(combined, c.stages...)
	combined = append(combined, stages...)
	return &Chain{stages: combined}
}

// Then composes the chain around a terminal and returns the entry point.
func (c *Chain) Then(terminal Next) Next {
	next := terminal
	for i := len(c.stages) - 1; i >= 0; i-- {
		stage := c.stages[i]
		inner := next
		next = func(ctx context.Context, evt *domain.Event, ec *EmitContext) error {
			return stage(ctx, evt, ec, inner)
		}
	}
	return next
}

// Wrap adapts a bus handler so that events pass through the chain before the
// handler's business logic runs.
func (c *Chain) Wrap(teamID, userID string, h domain.Handler) domain.Handler {
	entry := c.Then(func(ctx context.Context, evt *domain.Event, _ *EmitContext) error {
		return h(ctx, evt)
	})
	return func(ctx context.Context, evt *domain.Event) error {
		return entry(ctx, evt, &EmitContext{TeamID: teamID, UserID: userID})
	}
}

// Config holds the dependencies for the built-in chains.
type Config struct {
	Store      domain.EventStore
	Counter    domain.Counter
	RateLimits domain.RateLimitConfig
	Access     AccessPolicy
}

// Default builds the standard emission chain: structural validation,
// team-context enforcement, rate limiting.
func Default(cfg Config) *Chain {
	return NewChain(
		StructuralValidation(),
		TeamContext(cfg.Store),
		RateLimit(cfg.Counter, cfg.RateLimits),
	)
}

// Secure builds the hardened chain for untrusted producers: sanitization,
// access control and audit trail logging added around the default stages.
func Secure(cfg Config) *Chain {
	return NewChain(
		StructuralValidation(),
		AuditTrail(),
		Sanitize(),
		TeamContext(cfg.Store),
		AccessControl(cfg.Access),
		RateLimit(cfg.Counter, cfg.RateLimits),
	)
}
