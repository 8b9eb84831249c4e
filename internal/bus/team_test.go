package bus

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/opensource-finance/ledgerbus/internal/counter"
	"github.com/opensource-finance/ledgerbus/internal/domain"
	"github.com/opensource-finance/ledgerbus/internal/pipeline"
	"github.com/opensource-finance/ledgerbus/internal/store"
)

func newTeamBus(t *testing.T, mem *store.Memory, teamID, userID string) (*TeamBus, *Bus) {
	t.Helper()

	b := New(mem)
	t.Cleanup(func() { b.Close() })

	chain := pipeline.Default(pipeline.Config{
		Store:      mem,
		Counter:    counter.NewMemoryCounter(),
		RateLimits: domain.DefaultRateLimits(),
	})
	return NewTeamBus(b, chain, teamID, userID), b
}

func TestTeamBus(t *testing.T) {
	ctx := context.Background()

	t.Run("StampsIdentity", func(t *testing.T) {
		mem := store.NewMemory()
		tb, b := newTeamBus(t, mem, "team-001", "user-1")

		var received *domain.Event
		done := make(chan struct{})
		b.On("contract.created", func(ctx context.Context, evt *domain.Event) error {
			received = evt
			close(done)
			return nil
		})

		evt := &domain.Event{
			Type:    "contract.created",
			Payload: &domain.ContractPayload{ContractID: "c-1"},
		}
		if err := tb.Emit(ctx, evt); err != nil {
			t.Fatalf("emit failed: %v", err)
		}

		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for delivery")
		}

		if received.TeamID != "team-001" {
			t.Errorf("expected stamped teamId, got %q", received.TeamID)
		}
		if received.UserID != "user-1" {
			t.Errorf("expected stamped userId, got %q", received.UserID)
		}
		if received.ID == "" || received.Timestamp.IsZero() {
			t.Error("expected generated id and timestamp")
		}
	})

	t.Run("ForeignTeamIDRejected", func(t *testing.T) {
		mem := store.NewMemory()
		tb, _ := newTeamBus(t, mem, "team-001", "user-1")

		// The facade must not rewrite an explicit foreign teamId; the
		// isolation stage rejects it instead.
		evt := &domain.Event{
			Type:    "contract.created",
			TeamID:  "team-other",
			Payload: &domain.ContractPayload{ContractID: "c-1"},
		}

		err := tb.Emit(ctx, evt)
		var isoErr *domain.TeamIsolationError
		if !errors.As(err, &isoErr) {
			t.Fatalf("expected TeamIsolationError, got %v", err)
		}
		if isoErr.Code != domain.IsolationTeamMismatch {
			t.Errorf("expected TEAM_MISMATCH, got %q", isoErr.Code)
		}
	})

	t.Run("ForeignEntityRejected", func(t *testing.T) {
		mem := store.NewMemory()
		mem.AddEntity("receivable", "recv-foreign", "team-other")
		tb, _ := newTeamBus(t, mem, "team-001", "user-1")

		evt := &domain.Event{
			Type:    "receivable.payment_received",
			Payload: &domain.ReceivablePayload{ReceivableID: "recv-foreign", PaymentAmount: 100},
		}

		err := tb.Emit(ctx, evt)
		var isoErr *domain.TeamIsolationError
		if !errors.As(err, &isoErr) {
			t.Fatalf("expected TeamIsolationError, got %v", err)
		}
		if isoErr.Code != domain.IsolationEntityTeamMismatch {
			t.Errorf("expected ENTITY_TEAM_MISMATCH, got %q", isoErr.Code)
		}
	})

	t.Run("RateLimitEnforced", func(t *testing.T) {
		mem := store.NewMemory()
		b := New(mem)
		t.Cleanup(func() { b.Close() })

		chain := pipeline.Default(pipeline.Config{
			Store:   mem,
			Counter: counter.NewMemoryCounter(),
			RateLimits: domain.RateLimitConfig{
				Overrides: map[string]int{"bulk.operation_started": 1},
				Window:    time.Minute,
			},
		})
		tb := NewTeamBus(b, chain, "team-001", "")

		emit := func() error {
			return tb.Emit(ctx, &domain.Event{
				Type:    "bulk.operation_started",
				Payload: &domain.BulkPayload{Operation: "import", ItemCount: 5},
			})
		}

		if err := emit(); err != nil {
			t.Fatalf("first emission should pass: %v", err)
		}

		err := emit()
		var rateErr *domain.RateLimitError
		if !errors.As(err, &rateErr) {
			t.Fatalf("expected RateLimitError, got %v", err)
		}
	})

	t.Run("ScopedHistoryAndStats", func(t *testing.T) {
		mem := store.NewMemory()
		tb, b := newTeamBus(t, mem, "team-001", "")

		// A second team's traffic lands in the same store.
		other := NewTeamBus(b, pipeline.Default(pipeline.Config{Store: mem}), "team-002", "")

		tb.Emit(ctx, &domain.Event{
			Type:    "contract.created",
			Payload: &domain.ContractPayload{ContractID: "c-1"},
		})
		other.Emit(ctx, &domain.Event{
			Type:    "contract.created",
			Payload: &domain.ContractPayload{ContractID: "c-2"},
		})

		history := tb.EventHistory(ctx, domain.HistoryQuery{})
		if len(history) != 1 {
			t.Fatalf("expected 1 event for team-001, got %d", len(history))
		}
		if history[0].TeamID != "team-001" {
			t.Errorf("foreign team event leaked into history: %+v", history[0])
		}

		stats := tb.EventStats(ctx, time.Time{})
		if stats.TotalEvents != 1 {
			t.Errorf("expected 1 event in stats, got %d", stats.TotalEvents)
		}
	})

	t.Run("SubscriptionsPassThrough", func(t *testing.T) {
		mem := store.NewMemory()
		tb, _ := newTeamBus(t, mem, "team-001", "")

		var fired atomic.Int32
		tb.On("contract.*", func(ctx context.Context, evt *domain.Event) error {
			fired.Add(1)
			return nil
		})

		tb.Emit(ctx, &domain.Event{
			Type:    "contract.created",
			Payload: &domain.ContractPayload{ContractID: "c-1"},
		})

		if fired.Load() != 1 {
			t.Errorf("expected 1 delivery, got %d", fired.Load())
		}

		tb.RemoveAllListeners("contract.*")
		tb.Emit(ctx, &domain.Event{
			Type:    "contract.updated",
			Payload: &domain.ContractPayload{ContractID: "c-1"},
		})
		if fired.Load() != 1 {
			t.Error("handler fired after removal")
		}
	})

	t.Run("NilEventRejected", func(t *testing.T) {
		mem := store.NewMemory()
		tb, _ := newTeamBus(t, mem, "team-001", "")

		if err := tb.Emit(ctx, nil); !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})
}
