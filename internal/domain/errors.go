package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// ValidationError indicates an event payload failed its category schema.
// Blocks emission.
type ValidationError struct {
	Category string
	Reason   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s payload: %s", e.Category, e.Reason)
}

// Team isolation error codes.
const (
	IsolationTeamMismatch       = "TEAM_MISMATCH"
	IsolationEntityTeamMismatch = "ENTITY_TEAM_MISMATCH"
)

// TeamIsolationError indicates an event violated the team isolation
// invariant: its teamId differs from the emitting context, or a referenced
// entity belongs to a different team. Blocks emission; security-relevant.
type TeamIsolationError struct {
	Code          string
	EventTeamID   string
	ContextTeamID string
	EntityType    string
	EntityID      string
}

func (e *TeamIsolationError) Error() string {
	if e.Code == IsolationEntityTeamMismatch {
		return fmt.Sprintf("team isolation violation [%s]: %s %q does not belong to team %q",
			e.Code, e.EntityType, e.EntityID, e.ContextTeamID)
	}
	return fmt.Sprintf("team isolation violation [%s]: event team %q does not match context team %q",
		e.Code, e.EventTeamID, e.ContextTeamID)
}

// RateLimitError indicates a team exceeded the per-type emission ceiling
// within the rolling window. Blocks emission for that producer.
type RateLimitError struct {
	EventType string
	Limit     int
	Window    time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s: %d events per %s", e.EventType, e.Limit, e.Window)
}

// AccessDeniedError indicates an access-control rule rejected the emission.
type AccessDeniedError struct {
	RuleID    string
	EventType string
}

func (e *AccessDeniedError) Error() string {
	return fmt.Sprintf("access denied for %s by rule %s", e.EventType, e.RuleID)
}
