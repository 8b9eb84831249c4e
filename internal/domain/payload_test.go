package domain

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestValidatePayload(t *testing.T) {
	t.Run("ValidContractEvent", func(t *testing.T) {
		evt := &Event{
			Type:    "contract.created",
			TeamID:  "team-001",
			Payload: &ContractPayload{ContractID: "contract-1", TotalValue: 5000},
		}
		if err := evt.ValidatePayload(); err != nil {
			t.Fatalf("expected valid event, got %v", err)
		}
	})

	t.Run("MissingRequiredField", func(t *testing.T) {
		evt := &Event{
			Type:    "contract.created",
			TeamID:  "team-001",
			Payload: &ContractPayload{TotalValue: 5000},
		}
		err := evt.ValidatePayload()
		if err == nil {
			t.Fatal("expected validation error for missing contractId")
		}
		var validationErr *ValidationError
		if !errors.As(err, &validationErr) {
			t.Fatalf("expected ValidationError, got %T", err)
		}
		if validationErr.Category != "contract" {
			t.Errorf("expected category 'contract', got %q", validationErr.Category)
		}
	})

	t.Run("MissingPayload", func(t *testing.T) {
		evt := &Event{Type: "receivable.created", TeamID: "team-001"}
		if err := evt.ValidatePayload(); err == nil {
			t.Fatal("expected validation error for missing payload")
		}
	})

	t.Run("KindMismatch", func(t *testing.T) {
		evt := &Event{
			Type:    "expense.created",
			TeamID:  "team-001",
			Payload: &ContractPayload{ContractID: "contract-1"},
		}
		if err := evt.ValidatePayload(); err == nil {
			t.Fatal("expected validation error for mismatched payload kind")
		}
	})

	t.Run("UnknownCategorySkipsValidation", func(t *testing.T) {
		evt := &Event{Type: "webhook.received", TeamID: "team-001"}
		if err := evt.ValidatePayload(); err != nil {
			t.Fatalf("unknown categories should skip validation, got %v", err)
		}
	})

	t.Run("SystemCategoryAcceptsEmptyPayload", func(t *testing.T) {
		evt := &Event{
			Type:    "service.error",
			TeamID:  "team-001",
			Payload: &SystemPayload{},
		}
		if err := evt.ValidatePayload(); err != nil {
			t.Fatalf("system payload has no required fields, got %v", err)
		}
	})

	t.Run("RecurringRoutesToExpenseSchema", func(t *testing.T) {
		evt := &Event{
			Type:    "recurring.generated",
			TeamID:  "team-001",
			Payload: &ExpensePayload{ExpenseID: "expense-1", Recurring: true},
		}
		if err := evt.ValidatePayload(); err != nil {
			t.Fatalf("recurring events use the expense schema, got %v", err)
		}
	})

	t.Run("NegativeAmountRejected", func(t *testing.T) {
		evt := &Event{
			Type:    "receivable.created",
			TeamID:  "team-001",
			Payload: &ReceivablePayload{ReceivableID: "recv-1", Amount: -10},
		}
		if err := evt.ValidatePayload(); err == nil {
			t.Fatal("expected validation error for negative amount")
		}
	})
}

func TestCategoryAndAction(t *testing.T) {
	evt := &Event{Type: "contract.status_changed"}
	if evt.Category() != "contract" {
		t.Errorf("expected category 'contract', got %q", evt.Category())
	}
	if evt.Action() != "status_changed" {
		t.Errorf("expected action 'status_changed', got %q", evt.Action())
	}

	bare := &Event{Type: "heartbeat"}
	if bare.Category() != "heartbeat" || bare.Action() != "heartbeat" {
		t.Errorf("dotless types use the full type for both parts, got %q/%q",
			bare.Category(), bare.Action())
	}
}

func TestEventUnmarshalJSON(t *testing.T) {
	t.Run("ResolvesPayloadVariant", func(t *testing.T) {
		raw := `{
			"id": "evt-1",
			"type": "receivable.payment_received",
			"teamId": "team-001",
			"payload": {"receivableId": "recv-1", "amount": 1000, "paymentAmount": 400}
		}`

		var evt Event
		if err := json.Unmarshal([]byte(raw), &evt); err != nil {
			t.Fatalf("unmarshal failed: %v", err)
		}

		p, ok := evt.Payload.(*ReceivablePayload)
		if !ok {
			t.Fatalf("expected *ReceivablePayload, got %T", evt.Payload)
		}
		if p.PaymentAmount != 400 {
			t.Errorf("expected paymentAmount 400, got %v", p.PaymentAmount)
		}
	})

	t.Run("UnknownCategoryDecodesGeneric", func(t *testing.T) {
		raw := `{"type": "webhook.received", "teamId": "team-001", "payload": {"url": "https://example.com", "contractId": "c-9"}}`

		var evt Event
		if err := json.Unmarshal([]byte(raw), &evt); err != nil {
			t.Fatalf("unmarshal failed: %v", err)
		}

		p, ok := evt.Payload.(GenericPayload)
		if !ok {
			t.Fatalf("expected GenericPayload, got %T", evt.Payload)
		}
		refs := p.EntityRefs()
		if len(refs) != 1 || refs[0].Type != "contract" || refs[0].ID != "c-9" {
			t.Errorf("expected contract ref from well-known key, got %+v", refs)
		}
	})

	t.Run("NullPayload", func(t *testing.T) {
		raw := `{"type": "user.login", "teamId": "team-001", "payload": null}`

		var evt Event
		if err := json.Unmarshal([]byte(raw), &evt); err != nil {
			t.Fatalf("unmarshal failed: %v", err)
		}
		if evt.Payload != nil {
			t.Errorf("expected nil payload, got %T", evt.Payload)
		}
	})
}

func TestEntityRefs(t *testing.T) {
	t.Run("ReceivableIncludesContract", func(t *testing.T) {
		p := &ReceivablePayload{ReceivableID: "recv-1", ContractID: "contract-1"}
		refs := p.EntityRefs()
		if len(refs) != 2 {
			t.Fatalf("expected 2 refs, got %d", len(refs))
		}
		if refs[0].Type != "receivable" {
			t.Errorf("primary entity should come first, got %q", refs[0].Type)
		}
	})

	t.Run("BulkWithoutOperationID", func(t *testing.T) {
		p := &BulkPayload{Operation: "import", ItemCount: 50}
		if refs := p.EntityRefs(); len(refs) != 0 {
			t.Errorf("expected no refs without operationId, got %+v", refs)
		}
	})
}

func TestDefaultRateLimits(t *testing.T) {
	limits := DefaultRateLimits()

	cases := map[string]int{
		"contract.created":       100,
		"receivable.created":     200,
		"expense.created":        200,
		"bulk.operation_started": 10,
		"document.uploaded":      50,
		"contract.updated":       300,
	}
	for eventType, want := range cases {
		if got := limits.Limit(eventType); got != want {
			t.Errorf("limit for %s: expected %d, got %d", eventType, want, got)
		}
	}
}
