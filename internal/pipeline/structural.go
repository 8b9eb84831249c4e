package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/opensource-finance/ledgerbus/internal/domain"
)

// StructuralValidation auto-fills missing id/timestamp/teamId and checks the
// payload shape. Events are internal, best-effort signals, so this stage is
// deliberately flexible: a malformed payload logs a warning and the chain
// continues. Downstream handlers are written to tolerate partial events.
// The team-context stage, a security boundary, is the strict one.
func StructuralValidation() Stage {
	return func(ctx context.Context, evt *domain.Event, ec *EmitContext, next Next) error {
		if evt.ID == "" {
			evt.ID = uuid.New().String()
		}
		if evt.Timestamp.IsZero() {
			evt.Timestamp = time.Now().UTC()
		}
		if evt.TeamID == "" && ec != nil {
			evt.TeamID = ec.TeamID
		}
		if evt.Source == "" {
			evt.Source = domain.SourceService
		}

		if evt.Type == "" {
			slog.Warn("event missing type, passing through",
				"event_id", evt.ID,
				"team_id", evt.TeamID,
			)
		} else if err := evt.ValidatePayload(); err != nil {
			slog.Warn("event payload failed structural validation, passing through",
				"event_id", evt.ID,
				"event_type", evt.Type,
				"error", err,
			)
		}

		return next(ctx, evt, ec)
	}
}
