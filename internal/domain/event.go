// Package domain defines the core types and interfaces for ledgerbus.
package domain

import (
	"encoding/json"
	"strings"
	"time"
)

// Source identifies which layer of the application emitted an event.
type Source string

const (
	SourceService   Source = "service"
	SourceAPI       Source = "api"
	SourceAI        Source = "ai"
	SourceSystem    Source = "system"
	SourceScheduler Source = "scheduler"
)

// Event is the unit of the system: an immutable record describing something
// that happened, tagged with a dot-delimited type and an owning team.
type Event struct {
	// ID is a globally unique identifier, assigned at creation if absent.
	ID string `json:"id"`

	// Type is a dot-delimited event type, category first (e.g. "contract.created").
	// The category drives wildcard matching and payload schema selection.
	Type string `json:"type"`

	// TeamID is the owning tenant. Mandatory. Must equal the emitting
	// context's team for the event to be accepted.
	TeamID string `json:"teamId"`

	// UserID is the optional actor. Empty means a system-initiated event.
	UserID string `json:"userId,omitempty"`

	// Timestamp is the creation time, defaulted to now if absent.
	Timestamp time.Time `json:"timestamp"`

	// Source tags the emitting layer.
	Source Source `json:"source"`

	// Payload is the category-specific structured data.
	Payload Payload `json:"payload,omitempty"`

	// Metadata carries free-form side-channel data (request context,
	// correlation info). Never used for business logic; sanitized before
	// persistence.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Category returns the prefix before the first dot of the event type
// (e.g. "contract" for "contract.created").
func (e *Event) Category() string {
	return Category(e.Type)
}

// Action returns the suffix after the first dot of the event type
// (e.g. "created" for "contract.created").
func (e *Event) Action() string {
	if i := strings.IndexByte(e.Type, '.'); i >= 0 {
		return e.Type[i+1:]
	}
	return e.Type
}

// Category extracts the category prefix from a dot-delimited event type.
func Category(eventType string) string {
	if i := strings.IndexByte(eventType, '.'); i >= 0 {
		return eventType[:i]
	}
	return eventType
}

// UnmarshalJSON decodes an event, resolving the payload variant from the
// event type's category.
func (e *Event) UnmarshalJSON(data []byte) error {
	type alias Event
	aux := struct {
		*alias
		Payload json.RawMessage `json:"payload,omitempty"`
	}{alias: (*alias)(e)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	if len(aux.Payload) == 0 || string(aux.Payload) == "null" {
		e.Payload = nil
		return nil
	}

	payload, err := UnmarshalPayload(Category(e.Type), aux.Payload)
	if err != nil {
		return err
	}
	e.Payload = payload
	return nil
}
