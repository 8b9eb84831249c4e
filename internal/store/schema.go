package store

// Schema definitions for the ledgerbus database.
// Compatible with both SQLite and PostgreSQL.

const schemaEvents = `
CREATE TABLE IF NOT EXISTS events (
    id TEXT PRIMARY KEY,
    team_id TEXT NOT NULL,
    user_id TEXT,
    type TEXT NOT NULL,
    source TEXT NOT NULL,
    timestamp TIMESTAMP NOT NULL,
    payload TEXT,
    metadata TEXT
);

CREATE INDEX IF NOT EXISTS idx_events_team ON events(team_id);
CREATE INDEX IF NOT EXISTS idx_events_type ON events(team_id, type);
CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events(team_id, timestamp);
`

const schemaAuditLogs = `
CREATE TABLE IF NOT EXISTS audit_logs (
    id TEXT PRIMARY KEY,
    team_id TEXT NOT NULL,
    user_id TEXT,
    user_email TEXT NOT NULL,
    entity_type TEXT NOT NULL,
    entity_id TEXT NOT NULL,
    action TEXT NOT NULL,
    severity TEXT,
    timestamp TIMESTAMP NOT NULL,
    changes TEXT,
    metadata TEXT
);

CREATE INDEX IF NOT EXISTS idx_audit_logs_team ON audit_logs(team_id);
CREATE INDEX IF NOT EXISTS idx_audit_logs_entity ON audit_logs(team_id, entity_type, entity_id);
CREATE INDEX IF NOT EXISTS idx_audit_logs_timestamp ON audit_logs(team_id, timestamp);
`

const schemaUsers = `
CREATE TABLE IF NOT EXISTS users (
    id TEXT PRIMARY KEY,
    team_id TEXT NOT NULL,
    email TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_users_team ON users(team_id);
`

// Entity ownership tables. The primary application owns the full entity
// records; the event core only reads team ownership for isolation checks.
const schemaEntities = `
CREATE TABLE IF NOT EXISTS contracts (
    id TEXT PRIMARY KEY,
    team_id TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS receivables (
    id TEXT PRIMARY KEY,
    team_id TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS expenses (
    id TEXT PRIMARY KEY,
    team_id TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_contracts_team ON contracts(team_id);
CREATE INDEX IF NOT EXISTS idx_receivables_team ON receivables(team_id);
CREATE INDEX IF NOT EXISTS idx_expenses_team ON expenses(team_id);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaEvents,
		schemaAuditLogs,
		schemaUsers,
		schemaEntities,
	}
}
