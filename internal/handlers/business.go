package handlers

import (
	"context"
	"log/slog"
	"sync"

	"github.com/opensource-finance/ledgerbus/internal/domain"
)

// highRiskExpenseThreshold marks approved expenses that warrant a cash-flow
// review.
const highRiskExpenseThreshold = 10000.0

// FinancialMetrics is a rolling in-memory summary of financial activity,
// rebuilt from scratch on restart.
type FinancialMetrics struct {
	ContractEvents   int64   `json:"contractEvents"`
	ReceivableEvents int64   `json:"receivableEvents"`
	ExpenseEvents    int64   `json:"expenseEvents"`
	PaymentsReceived int64   `json:"paymentsReceived"`
	PaymentVolume    float64 `json:"paymentVolume"`
	OverdueFlagged   int64   `json:"overdueFlagged"`
}

// Business reacts to financial lifecycle events: payment reconciliation,
// cash-flow risk flagging and rolling health metrics.
type Business struct {
	subs subscriptions

	mu      sync.Mutex
	metrics FinancialMetrics
	healthy bool
}

// NewBusiness creates the business reaction registry.
func NewBusiness() *Business {
	return &Business{healthy: true}
}

func (r *Business) Name() string { return "business" }

// RegisterAll subscribes the business handlers.
func (r *Business) RegisterAll(b domain.Bus) {
	r.subs.add(b.On("receivable.payment_received", r.handlePaymentReceived))
	r.subs.add(b.On("receivable.overdue", r.handleOverdue))
	r.subs.add(b.On("expense.approved", r.handleExpenseApproved))
	r.subs.add(b.On("contract.*", r.trackCategory))
	r.subs.add(b.On("receivable.*", r.trackCategory))
	r.subs.add(b.On("expense.*", r.trackCategory))
}

// Stop unsubscribes all business handlers.
func (r *Business) Stop() {
	r.subs.stop()
}

// HealthCheck reports whether the registry is accepting events.
func (r *Business) HealthCheck(ctx context.Context) error {
	return nil
}

// Metrics returns a snapshot of the rolling financial metrics.
func (r *Business) Metrics() FinancialMetrics {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.metrics
}

// handlePaymentReceived reconciles a received payment against its receivable.
func (r *Business) handlePaymentReceived(ctx context.Context, evt *domain.Event) error {
	p, ok := evt.Payload.(*domain.ReceivablePayload)
	if !ok {
		slog.Warn("payment event without receivable payload, skipping reconciliation",
			"event_id", evt.ID,
			"team_id", evt.TeamID,
		)
		return nil
	}

	r.mu.Lock()
	r.metrics.PaymentsReceived++
	r.metrics.PaymentVolume += p.PaymentAmount
	r.mu.Unlock()

	remaining := p.Amount - p.PaymentAmount
	status := "partially_paid"
	if remaining <= 0 {
		status = "paid"
	}

	slog.Info("payment reconciled",
		"team_id", evt.TeamID,
		"receivable_id", p.ReceivableID,
		"payment_amount", p.PaymentAmount,
		"remaining", remaining,
		"status", status,
	)
	return nil
}

// handleOverdue flags an overdue receivable for collection follow-up.
func (r *Business) handleOverdue(ctx context.Context, evt *domain.Event) error {
	p, ok := evt.Payload.(*domain.ReceivablePayload)
	if !ok {
		return nil
	}

	r.mu.Lock()
	r.metrics.OverdueFlagged++
	r.mu.Unlock()

	slog.Warn("receivable overdue, flagged for follow-up",
		"team_id", evt.TeamID,
		"receivable_id", p.ReceivableID,
		"amount", p.Amount,
		"due_date", p.DueDate,
	)
	return nil
}

// handleExpenseApproved surfaces large approved expenses as cash-flow risks.
func (r *Business) handleExpenseApproved(ctx context.Context, evt *domain.Event) error {
	p, ok := evt.Payload.(*domain.ExpensePayload)
	if !ok {
		return nil
	}

	if p.Amount >= highRiskExpenseThreshold {
		slog.Warn("high-value expense approved, cash-flow review suggested",
			"team_id", evt.TeamID,
			"expense_id", p.ExpenseID,
			"amount", p.Amount,
			"approved_by", p.ApprovedBy,
		)
	}
	return nil
}

// trackCategory maintains the per-category rolling counters.
func (r *Business) trackCategory(ctx context.Context, evt *domain.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch evt.Category() {
	case "contract":
		r.metrics.ContractEvents++
	case "receivable":
		r.metrics.ReceivableEvents++
	case "expense":
		r.metrics.ExpenseEvents++
	}
	return nil
}

var _ Registry = (*Business)(nil)
