package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/opensource-finance/ledgerbus/internal/domain"
)

// RateLimit counts events of the same type for the team within the rolling
// window against the configured ceiling and aborts the chain when exceeded.
// A counting-infrastructure error fails open: legitimate traffic is not
// blocked on an observability outage.
func RateLimit(counter domain.Counter, cfg domain.RateLimitConfig) Stage {
	window := cfg.Window
	if window <= 0 {
		window = time.Minute
	}

	return func(ctx context.Context, evt *domain.Event, ec *EmitContext, next Next) error {
		if counter == nil {
			return next(ctx, evt, ec)
		}

		limit := cfg.Limit(evt.Type)
		if limit <= 0 {
			return next(ctx, evt, ec)
		}

		count, err := counter.Increment(ctx, evt.TeamID, "ratelimit:"+evt.Type, window)
		if err != nil {
			slog.Warn("rate limit counter unavailable, failing open",
				"event_type", evt.Type,
				"team_id", evt.TeamID,
				"error", err,
			)
			return next(ctx, evt, ec)
		}

		if count > int64(limit) {
			return &domain.RateLimitError{
				EventType: evt.Type,
				Limit:     limit,
				Window:    window,
			}
		}

		return next(ctx, evt, ec)
	}
}
