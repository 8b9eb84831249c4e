package bus

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/opensource-finance/ledgerbus/internal/domain"
	"github.com/opensource-finance/ledgerbus/internal/store"
)

// failingStore wraps the memory store and fails every append.
type failingStore struct {
	*store.Memory
}

func (f *failingStore) AppendEvent(ctx context.Context, evt *domain.Event) error {
	return fmt.Errorf("disk full")
}

func validEvent(id, teamID string) *domain.Event {
	return &domain.Event{
		ID:        id,
		Type:      "contract.created",
		TeamID:    teamID,
		Timestamp: time.Now().UTC(),
		Source:    domain.SourceService,
		Payload:   &domain.ContractPayload{ContractID: "contract-1", TotalValue: 1000},
	}
}

func TestBus(t *testing.T) {
	ctx := context.Background()

	t.Run("ExactAndWildcardMatching", func(t *testing.T) {
		b := New(store.NewMemory())
		defer b.Close()

		var exact, category, global, unrelated atomic.Int32

		b.On("contract.created", func(ctx context.Context, evt *domain.Event) error {
			exact.Add(1)
			return nil
		})
		b.On("contract.*", func(ctx context.Context, evt *domain.Event) error {
			category.Add(1)
			return nil
		})
		b.On("*", func(ctx context.Context, evt *domain.Event) error {
			global.Add(1)
			return nil
		})
		b.On("expense.created", func(ctx context.Context, evt *domain.Event) error {
			unrelated.Add(1)
			return nil
		})

		if err := b.Emit(ctx, validEvent("evt-1", "team-001")); err != nil {
			t.Fatalf("emit failed: %v", err)
		}

		if exact.Load() != 1 || category.Load() != 1 || global.Load() != 1 {
			t.Errorf("expected exact/category/global each once, got %d/%d/%d",
				exact.Load(), category.Load(), global.Load())
		}
		if unrelated.Load() != 0 {
			t.Errorf("unrelated handler fired %d times", unrelated.Load())
		}
	})

	t.Run("HandlerFaultIsolation", func(t *testing.T) {
		b := New(store.NewMemory())
		defer b.Close()

		var first, third atomic.Int32

		b.On("contract.created", func(ctx context.Context, evt *domain.Event) error {
			first.Add(1)
			return nil
		})
		b.On("contract.created", func(ctx context.Context, evt *domain.Event) error {
			panic("handler bug")
		})
		b.On("contract.created", func(ctx context.Context, evt *domain.Event) error {
			third.Add(1)
			return nil
		})

		if err := b.Emit(ctx, validEvent("evt-1", "team-001")); err != nil {
			t.Fatalf("a failing handler must not fail the emit: %v", err)
		}

		if first.Load() != 1 || third.Load() != 1 {
			t.Errorf("sibling handlers must still run, got %d/%d", first.Load(), third.Load())
		}
	})

	t.Run("ValidationFailureBlocks", func(t *testing.T) {
		mem := store.NewMemory()
		b := New(mem)
		defer b.Close()

		var delivered atomic.Int32
		b.On("contract.created", func(ctx context.Context, evt *domain.Event) error {
			delivered.Add(1)
			return nil
		})

		var systemErrors atomic.Int32
		b.On("service.error", func(ctx context.Context, evt *domain.Event) error {
			systemErrors.Add(1)
			return nil
		})

		invalid := &domain.Event{
			ID:        "evt-bad",
			Type:      "contract.created",
			TeamID:    "team-001",
			Timestamp: time.Now().UTC(),
			Payload:   &domain.ContractPayload{}, // missing contractId
		}

		err := b.Emit(ctx, invalid)
		var validationErr *domain.ValidationError
		if !errors.As(err, &validationErr) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
		if delivered.Load() != 0 {
			t.Error("invalid events must not be dispatched")
		}

		events, _ := mem.QueryEvents(ctx, "team-001", domain.HistoryQuery{EventType: "contract.created"})
		if len(events) != 0 {
			t.Error("invalid events must not be persisted")
		}

		if systemErrors.Load() != 1 {
			t.Errorf("expected one service.error event, got %d", systemErrors.Load())
		}
	})

	t.Run("PersistenceFailureIsBestEffort", func(t *testing.T) {
		b := New(&failingStore{store.NewMemory()})
		defer b.Close()

		var delivered atomic.Int32
		b.On("contract.created", func(ctx context.Context, evt *domain.Event) error {
			delivered.Add(1)
			return nil
		})

		if err := b.Emit(ctx, validEvent("evt-1", "team-001")); err != nil {
			t.Fatalf("persistence failure must not fail the emit: %v", err)
		}
		if delivered.Load() != 1 {
			t.Errorf("dispatch must continue after persistence failure, got %d", delivered.Load())
		}
	})

	t.Run("SystemErrorRecursionGuard", func(t *testing.T) {
		// Every persist fails, including the service.error event's own.
		// The guard must stop after one generation.
		b := New(&failingStore{store.NewMemory()})
		defer b.Close()

		var systemErrors atomic.Int32
		b.On("service.error", func(ctx context.Context, evt *domain.Event) error {
			systemErrors.Add(1)
			return nil
		})

		if err := b.Emit(ctx, validEvent("evt-1", "team-001")); err != nil {
			t.Fatalf("emit failed: %v", err)
		}

		if systemErrors.Load() != 1 {
			t.Errorf("expected exactly one service.error event, got %d", systemErrors.Load())
		}
	})

	t.Run("RequiredFields", func(t *testing.T) {
		b := New(store.NewMemory())
		defer b.Close()

		cases := []*domain.Event{
			nil,
			{TeamID: "team-001"},
			{Type: "contract.created"},
		}
		for _, evt := range cases {
			if err := b.Emit(ctx, evt); !errors.Is(err, domain.ErrInvalidInput) {
				t.Errorf("expected ErrInvalidInput for %+v, got %v", evt, err)
			}
		}
	})

	t.Run("Once", func(t *testing.T) {
		b := New(store.NewMemory())
		defer b.Close()

		var fired atomic.Int32
		b.Once("contract.created", func(ctx context.Context, evt *domain.Event) error {
			fired.Add(1)
			return nil
		})

		b.Emit(ctx, validEvent("evt-1", "team-001"))
		b.Emit(ctx, validEvent("evt-2", "team-001"))

		if fired.Load() != 1 {
			t.Errorf("once handler fired %d times", fired.Load())
		}
		if b.SubscriptionCount("contract.created") != 0 {
			t.Error("once handler should have unsubscribed")
		}
	})

	t.Run("OncePanicStillConsumes", func(t *testing.T) {
		b := New(store.NewMemory())
		defer b.Close()

		var fired atomic.Int32
		b.Once("contract.created", func(ctx context.Context, evt *domain.Event) error {
			fired.Add(1)
			panic("handler bug")
		})

		b.Emit(ctx, validEvent("evt-1", "team-001"))
		b.Emit(ctx, validEvent("evt-2", "team-001"))

		if fired.Load() != 1 {
			t.Errorf("once handler fired %d times", fired.Load())
		}
		if b.SubscriptionCount("contract.created") != 0 {
			t.Error("panicking once handler should still unsubscribe")
		}
	})

	t.Run("Unsubscribe", func(t *testing.T) {
		b := New(store.NewMemory())
		defer b.Close()

		var fired atomic.Int32
		sub := b.On("contract.created", func(ctx context.Context, evt *domain.Event) error {
			fired.Add(1)
			return nil
		})

		b.Emit(ctx, validEvent("evt-1", "team-001"))
		sub.Unsubscribe()
		b.Emit(ctx, validEvent("evt-2", "team-001"))

		if fired.Load() != 1 {
			t.Errorf("handler fired %d times after unsubscribe", fired.Load())
		}
		if sub.Pattern() != "contract.created" {
			t.Errorf("unexpected pattern %q", sub.Pattern())
		}
	})

	t.Run("RemoveAllListeners", func(t *testing.T) {
		b := New(store.NewMemory())
		defer b.Close()

		var contract, expense atomic.Int32
		b.On("contract.created", func(ctx context.Context, evt *domain.Event) error {
			contract.Add(1)
			return nil
		})
		b.On("expense.*", func(ctx context.Context, evt *domain.Event) error {
			expense.Add(1)
			return nil
		})

		b.RemoveAllListeners("contract.created")

		b.Emit(ctx, validEvent("evt-1", "team-001"))
		b.Emit(ctx, &domain.Event{
			ID: "evt-2", Type: "expense.created", TeamID: "team-001",
			Timestamp: time.Now().UTC(),
			Payload:   &domain.ExpensePayload{ExpenseID: "exp-1"},
		})

		if contract.Load() != 0 {
			t.Error("removed pattern still fired")
		}
		if expense.Load() != 1 {
			t.Errorf("unrelated pattern should survive, fired %d", expense.Load())
		}

		b.RemoveAllListeners()
		b.Emit(ctx, &domain.Event{
			ID: "evt-3", Type: "expense.updated", TeamID: "team-001",
			Timestamp: time.Now().UTC(),
			Payload:   &domain.ExpensePayload{ExpenseID: "exp-1"},
		})
		if expense.Load() != 1 {
			t.Error("RemoveAllListeners() should drop every handler")
		}
	})

	t.Run("ClosedBusRejectsEmit", func(t *testing.T) {
		b := New(store.NewMemory())
		b.Close()

		if err := b.Emit(ctx, validEvent("evt-1", "team-001")); err == nil {
			t.Error("expected error emitting on a closed bus")
		}
		if err := b.Ping(ctx); err == nil {
			t.Error("expected ping failure on a closed bus")
		}
	})
}

func TestEventHistory(t *testing.T) {
	ctx := context.Background()

	t.Run("NewestFirst", func(t *testing.T) {
		mem := store.NewMemory()
		b := New(mem)
		defer b.Close()

		base := time.Now().UTC()
		for i := 0; i < 3; i++ {
			evt := validEvent(fmt.Sprintf("evt-%d", i), "team-001")
			evt.Timestamp = base.Add(time.Duration(i) * time.Minute)
			if err := b.Emit(ctx, evt); err != nil {
				t.Fatalf("emit failed: %v", err)
			}
		}

		history := b.EventHistory(ctx, "team-001", domain.HistoryQuery{})
		if len(history) != 3 {
			t.Fatalf("expected 3 events, got %d", len(history))
		}
		if history[0].ID != "evt-2" {
			t.Errorf("expected newest first, got %s", history[0].ID)
		}
	})

	t.Run("FailSoft", func(t *testing.T) {
		b := New(store.NewMemory())
		defer b.Close()

		// Empty teamID makes the store error; history must swallow it.
		if got := b.EventHistory(ctx, "", domain.HistoryQuery{}); got != nil {
			t.Errorf("expected empty result on store error, got %d events", len(got))
		}
	})
}

func TestEventStats(t *testing.T) {
	ctx := context.Background()

	t.Run("Aggregates", func(t *testing.T) {
		b := New(store.NewMemory())
		defer b.Close()

		for i := 0; i < 2; i++ {
			b.Emit(ctx, validEvent(fmt.Sprintf("c-%d", i), "team-001"))
		}
		b.Emit(ctx, &domain.Event{
			ID: "e-1", Type: "expense.created", TeamID: "team-001",
			Timestamp: time.Now().UTC(),
			Payload:   &domain.ExpensePayload{ExpenseID: "exp-1"},
		})

		stats := b.EventStats(ctx, "team-001", time.Time{})
		if stats.TotalEvents != 3 {
			t.Errorf("expected 3 total events, got %d", stats.TotalEvents)
		}
		if stats.EventsByType["contract.created"] != 2 {
			t.Errorf("unexpected counts: %+v", stats.EventsByType)
		}
		if stats.RecentActivity != 3 {
			t.Errorf("expected 3 recent events, got %d", stats.RecentActivity)
		}
	})

	t.Run("FailSoft", func(t *testing.T) {
		b := New(store.NewMemory())
		defer b.Close()

		stats := b.EventStats(ctx, "", time.Time{})
		if stats == nil {
			t.Fatal("stats must never be nil")
		}
		if stats.TotalEvents != 0 || len(stats.EventsByType) != 0 {
			t.Errorf("expected zero stats on store error, got %+v", stats)
		}
	})
}
