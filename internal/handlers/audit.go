package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/opensource-finance/ledgerbus/internal/domain"
	"github.com/opensource-finance/ledgerbus/internal/policy"
)

const (
	systemUserEmail  = "system@ledgerbus.local"
	unknownUserEmail = "unknown@ledgerbus.local"

	// slowAuditThreshold flags events whose audit handling lags their
	// timestamp, whatever the cause: slow dispatch, a backed-up bus or a
	// stalling store.
	slowAuditThreshold = 5 * time.Second
)

// Audit derives the append-only audit trail from financial events and runs
// the CEL security monitor over all traffic.
type Audit struct {
	store  domain.EventStore
	alerts *policy.Engine
	subs   subscriptions
}

// NewAudit creates the audit registry with the default security alert rules
// loaded.
func NewAudit(store domain.EventStore) (*Audit, error) {
	engine, err := policy.NewEngine()
	if err != nil {
		return nil, fmt.Errorf("failed to create alert engine: %w", err)
	}

	defaults := []struct {
		id, severity, expression string
	}{
		{"bulk_operation_volume", "medium", "item_count > 100"},
		{"high_value_transaction", "high", "amount > 50000.0 || total_value > 50000.0"},
	}
	for _, rule := range defaults {
		if err := engine.AddRule(rule.id, rule.severity, rule.expression); err != nil {
			return nil, fmt.Errorf("failed to load alert rule: %w", err)
		}
	}

	return &Audit{store: store, alerts: engine}, nil
}

// AddAlertRule loads an additional security alert rule.
func (r *Audit) AddAlertRule(id, severity, expression string) error {
	return r.alerts.AddRule(id, severity, expression)
}

func (r *Audit) Name() string { return "audit" }

// RegisterAll subscribes the audit trail handlers on financial categories and
// the security monitor on all traffic.
func (r *Audit) RegisterAll(b domain.Bus) {
	for _, pattern := range []string{"contract.*", "receivable.*", "expense.*", "recurring.*"} {
		r.subs.add(b.On(pattern, r.recordAuditLog))
	}
	r.subs.add(b.On("*", r.monitorSecurity))
}

// Stop unsubscribes all audit handlers.
func (r *Audit) Stop() {
	r.subs.stop()
}

// HealthCheck verifies the audit store is reachable.
func (r *Audit) HealthCheck(ctx context.Context) error {
	return r.store.Ping(ctx)
}

// recordAuditLog writes one audit row per financial event. The row ID is
// derived from the event ID so redelivery stays idempotent.
func (r *Audit) recordAuditLog(ctx context.Context, evt *domain.Event) error {
	// Lag is measured from the event's own timestamp, not the write, so a
	// late-dispatched event is flagged even when the row lands quickly.
	if lag := time.Since(evt.Timestamp); lag > slowAuditThreshold {
		slog.Warn("slow audit handling",
			"event_id", evt.ID,
			"event_type", evt.Type,
			"team_id", evt.TeamID,
			"lag", lag,
		)
	}

	entry := &domain.AuditLogEntry{
		ID:        "audit_" + evt.ID,
		TeamID:    evt.TeamID,
		UserID:    evt.UserID,
		UserEmail: r.resolveUserEmail(ctx, evt.UserID),
		Action:    evt.Action(),
		Timestamp: evt.Timestamp,
		Metadata:  evt.Metadata,
	}

	entry.EntityType = evt.Category()
	entry.EntityID = evt.ID
	if evt.Payload != nil {
		if refs := evt.Payload.EntityRefs(); len(refs) > 0 {
			entry.EntityType = refs[0].Type
			entry.EntityID = refs[0].ID
		}
	}
	if p, ok := evt.Payload.(*domain.ContractPayload); ok {
		entry.Changes = p.Changes
	}

	if err := r.store.AppendAuditLog(ctx, entry); err != nil {
		// The event itself is already persisted; losing the derived row
		// degrades the trail but must not fail the handler chain.
		slog.Error("failed to write audit log, trail degraded",
			"event_id", evt.ID,
			"event_type", evt.Type,
			"team_id", evt.TeamID,
			"error", err,
		)
	}
	return nil
}

// monitorSecurity evaluates the alert rules against every event and records
// an audit row per match.
func (r *Audit) monitorSecurity(ctx context.Context, evt *domain.Event) error {
	matches := r.alerts.Evaluate(policy.Activation(evt))
	if len(matches) == 0 {
		return nil
	}

	for _, match := range matches {
		entry := &domain.AuditLogEntry{
			ID:         "audit_" + evt.ID + "_alert_" + match.RuleID,
			TeamID:     evt.TeamID,
			UserID:     evt.UserID,
			UserEmail:  r.resolveUserEmail(ctx, evt.UserID),
			EntityType: evt.Category(),
			EntityID:   evt.ID,
			Action:     "security_alert",
			Severity:   match.Severity,
			Timestamp:  evt.Timestamp,
			Metadata: map[string]any{
				"rule":      match.RuleID,
				"eventType": evt.Type,
			},
		}

		if err := r.store.AppendAuditLog(ctx, entry); err != nil {
			slog.Error("failed to write security alert",
				"event_id", evt.ID,
				"rule", match.RuleID,
				"error", err,
			)
			continue
		}

		slog.Warn("security alert raised",
			"event_id", evt.ID,
			"event_type", evt.Type,
			"team_id", evt.TeamID,
			"rule", match.RuleID,
			"severity", match.Severity,
		)
	}
	return nil
}

// resolveUserEmail maps the acting user to an email for the audit row.
// System-initiated events and failed lookups get fixed placeholder addresses
// so the row is always written.
func (r *Audit) resolveUserEmail(ctx context.Context, userID string) string {
	if userID == "" {
		return systemUserEmail
	}
	email, err := r.store.GetUserEmail(ctx, userID)
	if err != nil {
		return unknownUserEmail
	}
	return email
}

var _ Registry = (*Audit)(nil)
