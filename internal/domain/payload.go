package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// PayloadKind discriminates the payload variants.
type PayloadKind string

const (
	KindContract   PayloadKind = "contract"
	KindReceivable PayloadKind = "receivable"
	KindExpense    PayloadKind = "expense"
	KindAI         PayloadKind = "ai"
	KindBulk       PayloadKind = "bulk"
	KindSystem     PayloadKind = "system"
	KindGeneric    PayloadKind = "generic"
)

// EntityRef is a reference to a team-owned entity carried in a payload.
type EntityRef struct {
	Type string
	ID   string
}

// Payload is the category-specific event data. Each variant validates its
// own required fields and exposes the team-owned entities it references,
// primary entity first.
type Payload interface {
	Kind() PayloadKind
	Validate() error
	EntityRefs() []EntityRef
}

// ContractPayload carries contract lifecycle event data.
type ContractPayload struct {
	ContractID  string         `json:"contractId"`
	ClientName  string         `json:"clientName,omitempty"`
	TotalValue  float64        `json:"totalValue,omitempty"`
	Status      string         `json:"status,omitempty"`
	Description string         `json:"description,omitempty"`
	Changes     map[string]any `json:"changes,omitempty"`
}

func (p *ContractPayload) Kind() PayloadKind { return KindContract }

func (p *ContractPayload) Validate() error {
	if p.ContractID == "" {
		return &ValidationError{Category: "contract", Reason: "contractId is required"}
	}
	if p.TotalValue < 0 {
		return &ValidationError{Category: "contract", Reason: "totalValue must not be negative"}
	}
	return nil
}

func (p *ContractPayload) EntityRefs() []EntityRef {
	return []EntityRef{{Type: "contract", ID: p.ContractID}}
}

// ReceivablePayload carries receivable and payment event data.
type ReceivablePayload struct {
	ReceivableID  string    `json:"receivableId"`
	ContractID    string    `json:"contractId,omitempty"`
	Amount        float64   `json:"amount,omitempty"`
	PaymentAmount float64   `json:"paymentAmount,omitempty"`
	DueDate       time.Time `json:"dueDate,omitempty"`
	Status        string    `json:"status,omitempty"`
	Description   string    `json:"description,omitempty"`
}

func (p *ReceivablePayload) Kind() PayloadKind { return KindReceivable }

func (p *ReceivablePayload) Validate() error {
	if p.ReceivableID == "" {
		return &ValidationError{Category: "receivable", Reason: "receivableId is required"}
	}
	if p.Amount < 0 || p.PaymentAmount < 0 {
		return &ValidationError{Category: "receivable", Reason: "amounts must not be negative"}
	}
	return nil
}

func (p *ReceivablePayload) EntityRefs() []EntityRef {
	refs := []EntityRef{{Type: "receivable", ID: p.ReceivableID}}
	if p.ContractID != "" {
		refs = append(refs, EntityRef{Type: "contract", ID: p.ContractID})
	}
	return refs
}

// ExpensePayload carries expense and recurring-expense event data.
type ExpensePayload struct {
	ExpenseID   string    `json:"expenseId"`
	Amount      float64   `json:"amount,omitempty"`
	Vendor      string    `json:"vendor,omitempty"`
	DueDate     time.Time `json:"dueDate,omitempty"`
	Status      string    `json:"status,omitempty"`
	Description string    `json:"description,omitempty"`
	ApprovedBy  string    `json:"approvedBy,omitempty"`
	Recurring   bool      `json:"recurring,omitempty"`
}

func (p *ExpensePayload) Kind() PayloadKind { return KindExpense }

func (p *ExpensePayload) Validate() error {
	if p.ExpenseID == "" {
		return &ValidationError{Category: "expense", Reason: "expenseId is required"}
	}
	if p.Amount < 0 {
		return &ValidationError{Category: "expense", Reason: "amount must not be negative"}
	}
	return nil
}

func (p *ExpensePayload) EntityRefs() []EntityRef {
	return []EntityRef{{Type: "expense", ID: p.ExpenseID}}
}

// Suggestion is a follow-up action proposed by the AI document pipeline.
type Suggestion struct {
	Action      string  `json:"action"`
	EntityType  string  `json:"entityType"`
	Description string  `json:"description,omitempty"`
	Confidence  float64 `json:"confidence,omitempty"`
}

// AIPayload carries document-processing and AI workflow event data.
type AIPayload struct {
	DocumentID   string       `json:"documentId"`
	DocumentType string       `json:"documentType,omitempty"`
	FileName     string       `json:"fileName,omitempty"`
	Confidence   float64      `json:"confidence,omitempty"`
	Suggestions  []Suggestion `json:"suggestions,omitempty"`
}

func (p *AIPayload) Kind() PayloadKind { return KindAI }

func (p *AIPayload) Validate() error {
	if p.DocumentID == "" {
		return &ValidationError{Category: "ai", Reason: "documentId is required"}
	}
	return nil
}

func (p *AIPayload) EntityRefs() []EntityRef {
	return []EntityRef{{Type: "document", ID: p.DocumentID}}
}

// BulkPayload carries bulk-operation event data.
type BulkPayload struct {
	OperationID string `json:"operationId,omitempty"`
	Operation   string `json:"operation"`
	EntityType  string `json:"entityType,omitempty"`
	ItemCount   int    `json:"itemCount"`
	FailedCount int    `json:"failedCount,omitempty"`
}

func (p *BulkPayload) Kind() PayloadKind { return KindBulk }

func (p *BulkPayload) Validate() error {
	if p.Operation == "" {
		return &ValidationError{Category: "bulk", Reason: "operation is required"}
	}
	if p.ItemCount < 0 {
		return &ValidationError{Category: "bulk", Reason: "itemCount must not be negative"}
	}
	return nil
}

func (p *BulkPayload) EntityRefs() []EntityRef {
	if p.OperationID == "" {
		return nil
	}
	return []EntityRef{{Type: "bulk_operation", ID: p.OperationID}}
}

// SystemPayload is the generic schema for user/team/audit/validation/
// service/integration events. No fields are required.
type SystemPayload struct {
	Message  string         `json:"message,omitempty"`
	Code     string         `json:"code,omitempty"`
	EntityID string         `json:"entityId,omitempty"`
	Data     map[string]any `json:"data,omitempty"`
}

func (p *SystemPayload) Kind() PayloadKind { return KindSystem }

func (p *SystemPayload) Validate() error { return nil }

func (p *SystemPayload) EntityRefs() []EntityRef {
	if p.EntityID == "" {
		return nil
	}
	return []EntityRef{{Type: "entity", ID: p.EntityID}}
}

// GenericPayload holds payloads for categories without a registered schema.
// Never validated; entity references are extracted from well-known keys.
type GenericPayload map[string]any

func (p GenericPayload) Kind() PayloadKind { return KindGeneric }

func (p GenericPayload) Validate() error { return nil }

func (p GenericPayload) EntityRefs() []EntityRef {
	var refs []EntityRef
	for _, key := range []struct{ field, entity string }{
		{"contractId", "contract"},
		{"receivableId", "receivable"},
		{"expenseId", "expense"},
		{"documentId", "document"},
		{"entityId", "entity"},
	} {
		if id, ok := p[key.field].(string); ok && id != "" {
			refs = append(refs, EntityRef{Type: key.entity, ID: id})
		}
	}
	return refs
}

// categoryKinds is the fixed category-to-schema routing table. Categories
// absent from this table skip payload validation entirely.
var categoryKinds = map[string]PayloadKind{
	"contract":    KindContract,
	"receivable":  KindReceivable,
	"expense":     KindExpense,
	"recurring":   KindExpense,
	"document":    KindAI,
	"ai":          KindAI,
	"bulk":        KindBulk,
	"user":        KindSystem,
	"team":        KindSystem,
	"audit":       KindSystem,
	"validation":  KindSystem,
	"service":     KindSystem,
	"integration": KindSystem,
}

// KindForCategory returns the payload kind required for a category.
// The second return value is false when the category has no schema.
func KindForCategory(category string) (PayloadKind, bool) {
	kind, ok := categoryKinds[category]
	return kind, ok
}

// ValidatePayload checks the event's payload against the schema selected by
// its category. Categories without a schema are skipped.
func (e *Event) ValidatePayload() error {
	kind, ok := KindForCategory(e.Category())
	if !ok {
		return nil
	}
	if e.Payload == nil {
		return &ValidationError{Category: e.Category(), Reason: "payload is required"}
	}
	if e.Payload.Kind() != kind {
		return &ValidationError{
			Category: e.Category(),
			Reason:   fmt.Sprintf("payload kind %q does not match required kind %q", e.Payload.Kind(), kind),
		}
	}
	return e.Payload.Validate()
}

// UnmarshalPayload decodes raw payload JSON into the variant selected by the
// event category. Categories without a schema decode into GenericPayload.
func UnmarshalPayload(category string, data []byte) (Payload, error) {
	kind, ok := KindForCategory(category)
	if !ok {
		var p GenericPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("failed to parse payload: %w", err)
		}
		return p, nil
	}

	var payload Payload
	switch kind {
	case KindContract:
		payload = &ContractPayload{}
	case KindReceivable:
		payload = &ReceivablePayload{}
	case KindExpense:
		payload = &ExpensePayload{}
	case KindAI:
		payload = &AIPayload{}
	case KindBulk:
		payload = &BulkPayload{}
	default:
		payload = &SystemPayload{}
	}

	if err := json.Unmarshal(data, payload); err != nil {
		return nil, fmt.Errorf("failed to parse %s payload: %w", kind, err)
	}
	return payload, nil
}
