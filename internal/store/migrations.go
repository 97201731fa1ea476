package store

import (
	"database/sql"
	"fmt"
)

// migration represents a versioned schema change. SQL is kept per driver
// because of auto-increment and type-name differences between SQLite and
// PostgreSQL.
type migration struct {
	version  int
	sqlite   string
	postgres string
}

// migrations is the ordered list of schema migrations.
// New migrations MUST be appended (never modify existing ones).
var migrations = []migration{
	{
		version: 1,
		sqlite: `
CREATE TABLE IF NOT EXISTS events (
    id TEXT PRIMARY KEY,
    connector_id TEXT NOT NULL,
    payload TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    expires_at INTEGER
);

CREATE INDEX IF NOT EXISTS idx_events_connector ON events(connector_id, created_at);

CREATE TABLE IF NOT EXISTS dedup_tokens (
    id TEXT PRIMARY KEY,
    connector_id TEXT NOT NULL,
    event_id TEXT NOT NULL REFERENCES events(id) ON DELETE CASCADE,
    fingerprint TEXT NOT NULL,
    created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_tokens_connector_created ON dedup_tokens(connector_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_tokens_created ON dedup_tokens(created_at);
`,
		postgres: `
CREATE TABLE IF NOT EXISTS events (
    id TEXT PRIMARY KEY,
    connector_id TEXT NOT NULL,
    payload TEXT NOT NULL,
    created_at BIGINT NOT NULL,
    expires_at BIGINT
);

CREATE INDEX IF NOT EXISTS idx_events_connector ON events(connector_id, created_at);

CREATE TABLE IF NOT EXISTS dedup_tokens (
    id TEXT PRIMARY KEY,
    connector_id TEXT NOT NULL,
    event_id TEXT NOT NULL REFERENCES events(id) ON DELETE CASCADE,
    fingerprint TEXT NOT NULL,
    created_at BIGINT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_tokens_connector_created ON dedup_tokens(connector_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_tokens_created ON dedup_tokens(created_at);
`,
	},
	{
		version: 2,
		sqlite: `
CREATE TABLE IF NOT EXISTS buffer_state (
    connector_id TEXT PRIMARY KEY,
    in_process INTEGER NOT NULL DEFAULT 0,
    missed_checks INTEGER NOT NULL DEFAULT 0,
    oldest_pending_at INTEGER
);

CREATE TABLE IF NOT EXISTS buffer_events (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    connector_id TEXT NOT NULL,
    event_id TEXT NOT NULL,
    enqueued_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_buffer_connector_seq ON buffer_events(connector_id, seq);
`,
		postgres: `
CREATE TABLE IF NOT EXISTS buffer_state (
    connector_id TEXT PRIMARY KEY,
    in_process INTEGER NOT NULL DEFAULT 0,
    missed_checks INTEGER NOT NULL DEFAULT 0,
    oldest_pending_at BIGINT
);

CREATE TABLE IF NOT EXISTS buffer_events (
    seq BIGSERIAL PRIMARY KEY,
    connector_id TEXT NOT NULL,
    event_id TEXT NOT NULL,
    enqueued_at BIGINT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_buffer_connector_seq ON buffer_events(connector_id, seq);
`,
	},
	{
		version: 3,
		sqlite: `
CREATE TABLE IF NOT EXISTS ingest_keys (
    id TEXT PRIMARY KEY,
    connector_id TEXT NOT NULL,
    key_hash TEXT NOT NULL UNIQUE,
    name TEXT NOT NULL DEFAULT '',
    revoked INTEGER NOT NULL DEFAULT 0,
    created_at INTEGER NOT NULL,
    revoked_at INTEGER
);

CREATE INDEX IF NOT EXISTS idx_ingest_keys_connector ON ingest_keys(connector_id, created_at DESC);
`,
		postgres: `
CREATE TABLE IF NOT EXISTS ingest_keys (
    id TEXT PRIMARY KEY,
    connector_id TEXT NOT NULL,
    key_hash TEXT NOT NULL UNIQUE,
    name TEXT NOT NULL DEFAULT '',
    revoked INTEGER NOT NULL DEFAULT 0,
    created_at BIGINT NOT NULL,
    revoked_at BIGINT
);

CREATE INDEX IF NOT EXISTS idx_ingest_keys_connector ON ingest_keys(connector_id, created_at DESC);
`,
	},
}

// runMigrations applies all pending migrations inside transactions.
func runMigrations(db *sql.DB, driver string) error {
	// Ensure the schema_version table exists (bootstrap).
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY
		)
	`); err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	current, err := getCurrentVersion(db)
	if err != nil {
		return fmt.Errorf("get current version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}

		stmt := m.sqlite
		if driver == DriverPostgres {
			stmt = m.postgres
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration v%d: %w", m.version, err)
		}

		if _, err := tx.Exec(stmt); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration v%d: %w", m.version, err)
		}

		record := "INSERT INTO schema_version (version) VALUES (?)"
		if driver == DriverPostgres {
			record = "INSERT INTO schema_version (version) VALUES ($1)"
		}
		if _, err := tx.Exec(record, m.version); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration v%d: %w", m.version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// getCurrentVersion returns the highest applied migration version, or 0 if none.
func getCurrentVersion(db *sql.DB) (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version)
	if err != nil {
		return 0, err
	}
	return version, nil
}
