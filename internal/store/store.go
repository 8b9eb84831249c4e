// Package store provides event store implementations.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-finance/ledgerbus/internal/domain"
)

// SQLStore implements domain.EventStore using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLStore struct {
	db     *sql.DB
	driver string
}

// New creates a new event store based on configuration.
func New(cfg domain.StoreConfig) (*SQLStore, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	s := &SQLStore{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return s, nil
}

func (s *SQLStore) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := s.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// AppendEvent stores an event record with tenant isolation.
func (s *SQLStore) AppendEvent(ctx context.Context, evt *domain.Event) error {
	if evt == nil || evt.TeamID == "" {
		return fmt.Errorf("%w: teamId is required", domain.ErrInvalidInput)
	}

	payload, err := json.Marshal(evt.Payload)
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}
	metadata, _ := json.Marshal(evt.Metadata)

	query := `
		INSERT INTO events (
			id, team_id, user_id, type, source, timestamp, payload, metadata
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = s.db.ExecContext(ctx, s.rebind(query),
		evt.ID, evt.TeamID, evt.UserID, evt.Type, string(evt.Source),
		evt.Timestamp, string(payload), string(metadata),
	)
	return err
}

// QueryEvents retrieves a team's events newest first.
func (s *SQLStore) QueryEvents(ctx context.Context, teamID string, q domain.HistoryQuery) ([]*domain.Event, error) {
	if teamID == "" {
		return nil, fmt.Errorf("%w: teamId is required", domain.ErrInvalidInput)
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, team_id, user_id, type, source, timestamp, payload, metadata
		FROM events
		WHERE team_id = ?
	`
	args := []any{teamID}

	if q.EventType != "" {
		query += " AND type = ?"
		args = append(args, q.EventType)
	}
	if !q.Since.IsZero() {
		query += " AND timestamp >= ?"
		args = append(args, q.Since)
	}

	query += " ORDER BY timestamp DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*domain.Event
	for rows.Next() {
		evt, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, evt)
	}

	return events, rows.Err()
}

func scanEvent(rows *sql.Rows) (*domain.Event, error) {
	var evt domain.Event
	var source, payload, metadata string

	if err := rows.Scan(
		&evt.ID, &evt.TeamID, &evt.UserID, &evt.Type, &source,
		&evt.Timestamp, &payload, &metadata,
	); err != nil {
		return nil, err
	}

	evt.Source = domain.Source(source)

	if payload != "" && payload != "null" {
		p, err := domain.UnmarshalPayload(domain.Category(evt.Type), []byte(payload))
		if err != nil {
			return nil, fmt.Errorf("failed to parse payload for event %s: %w", evt.ID, err)
		}
		evt.Payload = p
	}
	if metadata != "" && metadata != "null" {
		json.Unmarshal([]byte(metadata), &evt.Metadata)
	}

	return &evt, nil
}

// CountEvents counts a team's events matching the optional filters.
func (s *SQLStore) CountEvents(ctx context.Context, teamID string, eventType string, since time.Time) (int64, error) {
	if teamID == "" {
		return 0, fmt.Errorf("%w: teamId is required", domain.ErrInvalidInput)
	}

	query := `SELECT COUNT(*) FROM events WHERE team_id = ?`
	args := []any{teamID}

	if eventType != "" {
		query += " AND type = ?"
		args = append(args, eventType)
	}
	if !since.IsZero() {
		query += " AND timestamp >= ?"
		args = append(args, since)
	}

	var count int64
	err := s.db.QueryRowContext(ctx, s.rebind(query), args...).Scan(&count)
	return count, err
}

// CountEventsByType groups a team's event counts by type.
func (s *SQLStore) CountEventsByType(ctx context.Context, teamID string, since time.Time) (map[string]int64, error) {
	if teamID == "" {
		return nil, fmt.Errorf("%w: teamId is required", domain.ErrInvalidInput)
	}

	query := `SELECT type, COUNT(*) FROM events WHERE team_id = ?`
	args := []any{teamID}

	if !since.IsZero() {
		query += " AND timestamp >= ?"
		args = append(args, since)
	}
	query += " GROUP BY type"

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var eventType string
		var count int64
		if err := rows.Scan(&eventType, &count); err != nil {
			return nil, err
		}
		counts[eventType] = count
	}

	return counts, rows.Err()
}

// AppendAuditLog stores an audit record with tenant isolation.
func (s *SQLStore) AppendAuditLog(ctx context.Context, entry *domain.AuditLogEntry) error {
	if entry == nil || entry.TeamID == "" {
		return fmt.Errorf("%w: teamId is required", domain.ErrInvalidInput)
	}

	changes, _ := json.Marshal(entry.Changes)
	metadata, _ := json.Marshal(entry.Metadata)

	// Deterministic IDs let retried writes deduplicate instead of piling up.
	query := `
		INSERT INTO audit_logs (
			id, team_id, user_id, user_email, entity_type, entity_id,
			action, severity, timestamp, changes, metadata
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`

	_, err := s.db.ExecContext(ctx, s.rebind(query),
		entry.ID, entry.TeamID, entry.UserID, entry.UserEmail,
		entry.EntityType, entry.EntityID, entry.Action, entry.Severity,
		entry.Timestamp, string(changes), string(metadata),
	)
	return err
}

// QueryAuditLogs retrieves a team's audit records newest first.
func (s *SQLStore) QueryAuditLogs(ctx context.Context, teamID string, limit int) ([]*domain.AuditLogEntry, error) {
	if teamID == "" {
		return nil, fmt.Errorf("%w: teamId is required", domain.ErrInvalidInput)
	}
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, team_id, user_id, user_email, entity_type, entity_id,
			   action, severity, timestamp, changes, metadata
		FROM audit_logs
		WHERE team_id = ?
		ORDER BY timestamp DESC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, s.rebind(query), teamID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*domain.AuditLogEntry
	for rows.Next() {
		var entry domain.AuditLogEntry
		var changes, metadata string

		if err := rows.Scan(
			&entry.ID, &entry.TeamID, &entry.UserID, &entry.UserEmail,
			&entry.EntityType, &entry.EntityID, &entry.Action, &entry.Severity,
			&entry.Timestamp, &changes, &metadata,
		); err != nil {
			return nil, err
		}

		if changes != "" {
			json.Unmarshal([]byte(changes), &entry.Changes)
		}
		if metadata != "" {
			json.Unmarshal([]byte(metadata), &entry.Metadata)
		}
		entries = append(entries, &entry)
	}

	return entries, rows.Err()
}

// GetUserEmail resolves a user's email address by ID.
func (s *SQLStore) GetUserEmail(ctx context.Context, userID string) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("%w: userId is required", domain.ErrInvalidInput)
	}

	var email string
	err := s.db.QueryRowContext(ctx,
		s.rebind(`SELECT email FROM users WHERE id = ?`), userID,
	).Scan(&email)

	if errors.Is(err, sql.ErrNoRows) {
		return "", domain.ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return email, nil
}

// entityTables maps referenced entity types to their ownership tables.
// These mirror the primary application's tables; only the team ownership
// columns are read here.
var entityTables = map[string]string{
	"contract":   "contracts",
	"receivable": "receivables",
	"expense":    "expenses",
}

// GetEntityTeam resolves the owning team of a referenced entity.
func (s *SQLStore) GetEntityTeam(ctx context.Context, entityType string, entityID string) (string, error) {
	table, ok := entityTables[entityType]
	if !ok {
		return "", fmt.Errorf("%w: unknown entity type %q", domain.ErrInvalidInput, entityType)
	}
	if entityID == "" {
		return "", fmt.Errorf("%w: entity id is required", domain.ErrInvalidInput)
	}

	var teamID string
	query := fmt.Sprintf(`SELECT team_id FROM %s WHERE id = ?`, table)
	err := s.db.QueryRowContext(ctx, s.rebind(query), entityID).Scan(&teamID)

	if errors.Is(err, sql.ErrNoRows) {
		return "", domain.ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return teamID, nil
}

// Ping checks database connectivity.
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (s *SQLStore) rebind(query string) string {
	if s.driver != "postgres" {
		return query
	}

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
