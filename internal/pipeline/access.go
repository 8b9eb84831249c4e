package pipeline

import (
	"context"

	"github.com/opensource-finance/ledgerbus/internal/domain"
	"github.com/opensource-finance/ledgerbus/internal/policy"
)

// AccessPolicy evaluates deny rules against an event activation. Implemented
// by *policy.Engine; rules that match reject the emission.
type AccessPolicy interface {
	Evaluate(activation map[string]any) []policy.Match
}

// AccessControl rejects events matched by any configured deny rule. A nil
// policy is permissive.
func AccessControl(deny AccessPolicy) Stage {
	return func(ctx context.Context, evt *domain.Event, ec *EmitContext, next Next) error {
		if deny == nil {
			return next(ctx, evt, ec)
		}

		matches := deny.Evaluate(policy.Activation(evt))
		if len(matches) > 0 {
			return &domain.AccessDeniedError{
				RuleID:    matches[0].RuleID,
				EventType: evt.Type,
			}
		}

		return next(ctx, evt, ec)
	}
}
