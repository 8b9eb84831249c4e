package pipeline

import (
	"context"
	"log/slog"

	"github.com/opensource-finance/ledgerbus/internal/domain"
)

// AuditTrail logs every event passing through the secure chain, including
// rejections, so operators can reconstruct emission attempts.
func AuditTrail() Stage {
	return func(ctx context.Context, evt *domain.Event, ec *EmitContext, next Next) error {
		err := next(ctx, evt, ec)
		if err != nil {
			slog.Warn("event emission rejected",
				"event_id", evt.ID,
				"event_type", evt.Type,
				"team_id", evt.TeamID,
				"user_id", evt.UserID,
				"source", evt.Source,
				"error", err,
			)
			return err
		}

		slog.Info("event emitted",
			"event_id", evt.ID,
			"event_type", evt.Type,
			"team_id", evt.TeamID,
			"user_id", evt.UserID,
			"source", evt.Source,
		)
		return nil
	}
}
