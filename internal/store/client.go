// Package store provides the persistence layer shared by all connectors:
// normalized events, deduplication tokens, and per-connector batch buffers.
//
// The default backend is SQLite via modernc.org/sqlite (pure Go, no CGO),
// opened in WAL mode with a busy timeout. A PostgreSQL backend via lib/pq
// can be selected with STORE_DRIVER=postgres for multi-process deployments.
// Schema migrations run automatically on open.
package store

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	// Register the pure-Go SQLite driver. This does NOT require CGO.
	_ "modernc.org/sqlite"

	// Register the PostgreSQL driver.
	_ "github.com/lib/pq"
)

// Driver names accepted by Config.Driver.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds storage configuration.
type Config struct {
	// Driver selects the backend: "sqlite" or "postgres"
	Driver string `env:"STORE_DRIVER" envDefault:"sqlite"`

	// DSN is the database path (sqlite) or connection string (postgres)
	DSN string `env:"STORE_DSN" envDefault:"feedbridge.db"`
}

// DB wraps a *sql.DB and rewrites placeholders for the active driver.
// Repositories write queries with "?" placeholders; the wrapper rebinds
// them to "$n" when running against PostgreSQL.
type DB struct {
	inner  *sql.DB
	driver string
}

// Open opens (or creates) the database for the configured driver and
// applies pending schema migrations.
func Open(cfg Config) (*DB, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("store: DSN must not be empty")
	}

	var (
		sqlDB *sql.DB
		err   error
	)

	switch cfg.Driver {
	case "", DriverSQLite:
		cfg.Driver = DriverSQLite
		// WAL mode for concurrent access, 5s busy timeout for lock contention.
		dsn := cfg.DSN + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
		sqlDB, err = sql.Open("sqlite", dsn)
	case DriverPostgres:
		sqlDB, err = sql.Open("postgres", cfg.DSN)
	default:
		return nil, fmt.Errorf("store: unsupported driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	db := &DB{inner: sqlDB, driver: cfg.Driver}

	if err := runMigrations(sqlDB, cfg.Driver); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	if db.inner == nil {
		return nil
	}
	return db.inner.Close()
}

// Driver returns the active driver name.
func (db *DB) Driver() string {
	return db.driver
}

// Exec executes a query without returning rows.
func (db *DB) Exec(query string, args ...interface{}) (sql.Result, error) {
	return db.inner.Exec(db.rebind(query), args...)
}

// Query executes a query that returns rows.
func (db *DB) Query(query string, args ...interface{}) (*sql.Rows, error) {
	return db.inner.Query(db.rebind(query), args...)
}

// QueryRow executes a query that returns at most one row.
func (db *DB) QueryRow(query string, args ...interface{}) *sql.Row {
	return db.inner.QueryRow(db.rebind(query), args...)
}

// Begin starts a new transaction. Queries run against the returned Tx
// must already be rebound; use Rebind when composing them by hand.
func (db *DB) Begin() (*sql.Tx, error) {
	return db.inner.Begin()
}

// Rebind rewrites "?" placeholders to the active driver's syntax.
func (db *DB) Rebind(query string) string {
	return db.rebind(query)
}

func (db *DB) rebind(query string) string {
	if db.driver != DriverPostgres {
		return query
	}

	var sb strings.Builder
	sb.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
