package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/opensource-finance/ledgerbus/internal/domain"
)

// teamOwnedEntities are the payload reference types subject to ownership
// verification.
var teamOwnedEntities = map[string]bool{
	"contract":   true,
	"receivable": true,
	"expense":    true,
}

// TeamContext enforces the team isolation invariant. Unlike structural
// validation this stage is strict: a mismatched teamId or a payload
// reference to another team's entity aborts the chain.
func TeamContext(store domain.EventStore) Stage {
	return func(ctx context.Context, evt *domain.Event, ec *EmitContext, next Next) error {
		if ec == nil || ec.TeamID == "" {
			return fmt.Errorf("%w: emit context team is required", domain.ErrInvalidInput)
		}

		if evt.TeamID != ec.TeamID {
			return &domain.TeamIsolationError{
				Code:          domain.IsolationTeamMismatch,
				EventTeamID:   evt.TeamID,
				ContextTeamID: ec.TeamID,
			}
		}

		if evt.Payload != nil && store != nil {
			for _, ref := range evt.Payload.EntityRefs() {
				if !teamOwnedEntities[ref.Type] || ref.ID == "" {
					continue
				}

				owner, err := store.GetEntityTeam(ctx, ref.Type, ref.ID)
				if errors.Is(err, domain.ErrNotFound) {
					// Creation events reference entities whose rows may not
					// be visible yet; only a resolved foreign owner rejects.
					continue
				}
				if err != nil {
					return fmt.Errorf("failed to verify %s ownership: %w", ref.Type, err)
				}
				if owner != ec.TeamID {
					return &domain.TeamIsolationError{
						Code:          domain.IsolationEntityTeamMismatch,
						EventTeamID:   evt.TeamID,
						ContextTeamID: ec.TeamID,
						EntityType:    ref.Type,
						EntityID:      ref.ID,
					}
				}
			}
		}

		return next(ctx, evt, ec)
	}
}
