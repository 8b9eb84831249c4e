package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/opensource-finance/ledgerbus/internal/domain"
)

// Memory is an in-memory event store for tests and ephemeral deployments.
type Memory struct {
	mu       sync.RWMutex
	events   []*domain.Event
	audits   map[string]*domain.AuditLogEntry
	users    map[string]string            // user id -> email
	entities map[string]map[string]string // entity type -> id -> team id
	closed   bool
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		audits:   make(map[string]*domain.AuditLogEntry),
		users:    make(map[string]string),
		entities: make(map[string]map[string]string),
	}
}

// AddUser registers a user email for lookup.
func (m *Memory) AddUser(userID, email string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[userID] = email
}

// AddEntity registers a team-owned entity for isolation checks.
func (m *Memory) AddEntity(entityType, entityID, teamID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.entities[entityType] == nil {
		m.entities[entityType] = make(map[string]string)
	}
	m.entities[entityType][entityID] = teamID
}

// AppendEvent stores one event record.
func (m *Memory) AppendEvent(ctx context.Context, evt *domain.Event) error {
	if evt == nil || evt.TeamID == "" {
		return domain.ErrInvalidInput
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	copied := *evt
	m.events = append(m.events, &copied)
	return nil
}

// QueryEvents returns a team's events newest first.
func (m *Memory) QueryEvents(ctx context.Context, teamID string, q domain.HistoryQuery) ([]*domain.Event, error) {
	if teamID == "" {
		return nil, domain.ErrInvalidInput
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var matched []*domain.Event
	for _, evt := range m.events {
		if evt.TeamID != teamID {
			continue
		}
		if q.EventType != "" && evt.Type != q.EventType {
			continue
		}
		if !q.Since.IsZero() && evt.Timestamp.Before(q.Since) {
			continue
		}
		matched = append(matched, evt)
	}

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Timestamp.After(matched[j].Timestamp)
	})

	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

// CountEvents counts a team's events matching the optional filters.
func (m *Memory) CountEvents(ctx context.Context, teamID string, eventType string, since time.Time) (int64, error) {
	if teamID == "" {
		return 0, domain.ErrInvalidInput
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var count int64
	for _, evt := range m.events {
		if evt.TeamID != teamID {
			continue
		}
		if eventType != "" && evt.Type != eventType {
			continue
		}
		if !since.IsZero() && evt.Timestamp.Before(since) {
			continue
		}
		count++
	}
	return count, nil
}

// CountEventsByType groups a team's event counts by type.
func (m *Memory) CountEventsByType(ctx context.Context, teamID string, since time.Time) (map[string]int64, error) {
	if teamID == "" {
		return nil, domain.ErrInvalidInput
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := make(map[string]int64)
	for _, evt := range m.events {
		if evt.TeamID != teamID {
			continue
		}
		if !since.IsZero() && evt.Timestamp.Before(since) {
			continue
		}
		counts[evt.Type]++
	}
	return counts, nil
}

// AppendAuditLog stores one audit record, deduplicating by ID.
func (m *Memory) AppendAuditLog(ctx context.Context, entry *domain.AuditLogEntry) error {
	if entry == nil || entry.TeamID == "" {
		return domain.ErrInvalidInput
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.audits[entry.ID]; exists {
		return nil
	}
	copied := *entry
	m.audits[entry.ID] = &copied
	return nil
}

// AuditLogs returns all audit records for a team, insertion order not
// guaranteed.
func (m *Memory) AuditLogs(teamID string) []*domain.AuditLogEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var entries []*domain.AuditLogEntry
	for _, entry := range m.audits {
		if entry.TeamID == teamID {
			entries = append(entries, entry)
		}
	}
	return entries
}

// GetUserEmail resolves a user's email address by ID.
func (m *Memory) GetUserEmail(ctx context.Context, userID string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	email, ok := m.users[userID]
	if !ok {
		return "", domain.ErrNotFound
	}
	return email, nil
}

// GetEntityTeam resolves the owning team of a referenced entity.
func (m *Memory) GetEntityTeam(ctx context.Context, entityType string, entityID string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	teamID, ok := m.entities[entityType][entityID]
	if !ok {
		return "", domain.ErrNotFound
	}
	return teamID, nil
}

// Ping checks store health.
func (m *Memory) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return fmt.Errorf("store is closed")
	}
	return nil
}

// Close marks the store closed.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
