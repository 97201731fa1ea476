package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Event is a normalized payload accepted from a connector's source.
type Event struct {
	// ID is the event UUID.
	ID string

	// ConnectorID identifies the owning connector.
	ConnectorID string

	// Payload is the serialized payload JSON.
	Payload string

	// CreatedAt is the Unix millisecond creation timestamp.
	CreatedAt int64

	// ExpiresAt is the Unix millisecond expiry timestamp, or 0 if the
	// event does not expire.
	ExpiresAt int64
}

// EventRepository persists events and, where deduplication demands it,
// their tokens in the same transaction.
type EventRepository struct {
	db *DB
}

// NewEventRepository creates an EventRepository on the given DB.
func NewEventRepository(db *DB) *EventRepository {
	return &EventRepository{db: db}
}

// Create inserts a new event and returns it.
func (r *EventRepository) Create(ctx context.Context, connectorID, payload string, expiresAt int64) (*Event, error) {
	ev := &Event{
		ID:          uuid.New().String(),
		ConnectorID: connectorID,
		Payload:     payload,
		CreatedAt:   time.Now().UnixMilli(),
		ExpiresAt:   expiresAt,
	}

	_, err := r.db.Exec(
		`INSERT INTO events (id, connector_id, payload, created_at, expires_at) VALUES (?, ?, ?, ?, ?)`,
		ev.ID, ev.ConnectorID, ev.Payload, ev.CreatedAt, nullableMillis(ev.ExpiresAt),
	)
	if err != nil {
		return nil, fmt.Errorf("insert event: %w", err)
	}

	return ev, nil
}

// CreateWithToken inserts an event and its deduplication token atomically.
// A partial write is never observed: if the token is invalid or either
// insert fails, neither row is kept.
func (r *EventRepository) CreateWithToken(ctx context.Context, connectorID, payload, fingerprint string, expiresAt int64) (*Event, *Token, error) {
	if connectorID == "" {
		return nil, nil, ErrConnectorIDRequired
	}
	if fingerprint == "" {
		return nil, nil, ErrFingerprintRequired
	}

	now := time.Now().UnixMilli()
	ev := &Event{
		ID:          uuid.New().String(),
		ConnectorID: connectorID,
		Payload:     payload,
		CreatedAt:   now,
		ExpiresAt:   expiresAt,
	}
	tok := &Token{
		ID:          uuid.New().String(),
		ConnectorID: connectorID,
		EventID:     ev.ID,
		Fingerprint: fingerprint,
		CreatedAt:   now,
	}

	tx, err := r.db.Begin()
	if err != nil {
		return nil, nil, fmt.Errorf("begin: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		r.db.Rebind(`INSERT INTO events (id, connector_id, payload, created_at, expires_at) VALUES (?, ?, ?, ?, ?)`),
		ev.ID, ev.ConnectorID, ev.Payload, ev.CreatedAt, nullableMillis(ev.ExpiresAt),
	); err != nil {
		tx.Rollback()
		return nil, nil, fmt.Errorf("insert event: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		r.db.Rebind(`INSERT INTO dedup_tokens (id, connector_id, event_id, fingerprint, created_at) VALUES (?, ?, ?, ?, ?)`),
		tok.ID, tok.ConnectorID, tok.EventID, tok.Fingerprint, tok.CreatedAt,
	); err != nil {
		tx.Rollback()
		return nil, nil, fmt.Errorf("insert token: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("commit: %w", err)
	}

	return ev, tok, nil
}

// Get fetches a single event by id.
func (r *EventRepository) Get(ctx context.Context, id string) (*Event, error) {
	var (
		ev      Event
		expires sql.NullInt64
	)
	err := r.db.QueryRow(
		`SELECT id, connector_id, payload, created_at, expires_at FROM events WHERE id = ?`,
		id,
	).Scan(&ev.ID, &ev.ConnectorID, &ev.Payload, &ev.CreatedAt, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query event: %w", err)
	}
	if expires.Valid {
		ev.ExpiresAt = expires.Int64
	}
	return &ev, nil
}

// ListByIDs loads the given events, preserving the order of ids. Missing
// ids are skipped; the caller decides whether that is an error.
func (r *EventRepository) ListByIDs(ctx context.Context, ids []string) ([]Event, error) {
	if len(ids) == 0 {
		return []Event{}, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}

	query := fmt.Sprintf(
		`SELECT id, connector_id, payload, created_at, expires_at FROM events WHERE id IN (%s)`,
		strings.Join(placeholders, ","),
	)

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]Event, len(ids))
	for rows.Next() {
		var (
			ev      Event
			expires sql.NullInt64
		)
		if err := rows.Scan(&ev.ID, &ev.ConnectorID, &ev.Payload, &ev.CreatedAt, &expires); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if expires.Valid {
			ev.ExpiresAt = expires.Int64
		}
		byID[ev.ID] = ev
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}

	out := make([]Event, 0, len(ids))
	for _, id := range ids {
		if ev, ok := byID[id]; ok {
			out = append(out, ev)
		}
	}
	return out, nil
}

// TouchExpiry moves an event's expiry forward. Used by the optional
// duplicate keep-alive behavior.
func (r *EventRepository) TouchExpiry(ctx context.Context, id string, expiresAt int64) error {
	res, err := r.db.Exec(`UPDATE events SET expires_at = ? WHERE id = ?`, expiresAt, id)
	if err != nil {
		return fmt.Errorf("touch expiry: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return ErrEventNotFound
	}
	return nil
}

func nullableMillis(ms int64) interface{} {
	if ms == 0 {
		return nil
	}
	return ms
}
