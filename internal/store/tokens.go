package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Token is a deduplication record: the fingerprint of a payload accepted
// for a connector, pointing at the event the payload became. Tokens are
// never mutated; they disappear through the retention sweep or when their
// event is deleted.
type Token struct {
	ID          string
	ConnectorID string
	EventID     string
	Fingerprint string
	CreatedAt   int64
}

// DefaultRetention is how long tokens stay eligible for duplicate
// matching before the sweep removes them.
const DefaultRetention = 3 * 30 * 24 * time.Hour

// TokenRepository persists deduplication tokens.
type TokenRepository struct {
	db *DB
}

// NewTokenRepository creates a TokenRepository on the given DB.
func NewTokenRepository(db *DB) *TokenRepository {
	return &TokenRepository{db: db}
}

// Record inserts a token. All three fields are required; token creation
// is normally wrapped in the same transaction as event creation via
// EventRepository.CreateWithToken, this standalone form exists for
// webhook-style connectors that receive pre-built events.
func (r *TokenRepository) Record(ctx context.Context, connectorID, eventID, fingerprint string) (*Token, error) {
	if connectorID == "" {
		return nil, ErrConnectorIDRequired
	}
	if eventID == "" {
		return nil, ErrEventIDRequired
	}
	if fingerprint == "" {
		return nil, ErrFingerprintRequired
	}

	tok := &Token{
		ID:          uuid.New().String(),
		ConnectorID: connectorID,
		EventID:     eventID,
		Fingerprint: fingerprint,
		CreatedAt:   time.Now().UnixMilli(),
	}

	_, err := r.db.Exec(
		`INSERT INTO dedup_tokens (id, connector_id, event_id, fingerprint, created_at) VALUES (?, ?, ?, ?, ?)`,
		tok.ID, tok.ConnectorID, tok.EventID, tok.Fingerprint, tok.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert token: %w", err)
	}

	return tok, nil
}

// Recent returns up to limit of the connector's most recently created
// tokens, newest first. The query is restartable: it carries no cursor
// state between calls.
func (r *TokenRepository) Recent(ctx context.Context, connectorID string, limit int) ([]Token, error) {
	if limit <= 0 {
		return []Token{}, nil
	}

	rows, err := r.db.Query(
		`SELECT id, connector_id, event_id, fingerprint, created_at
		 FROM dedup_tokens
		 WHERE connector_id = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		connectorID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query tokens: %w", err)
	}
	defer rows.Close()

	tokens := []Token{}
	for rows.Next() {
		var t Token
		if err := rows.Scan(&t.ID, &t.ConnectorID, &t.EventID, &t.Fingerprint, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan token: %w", err)
		}
		tokens = append(tokens, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tokens: %w", err)
	}

	return tokens, nil
}

// Expired returns tokens older than the retention window as of now.
func (r *TokenRepository) Expired(ctx context.Context, now time.Time, retention time.Duration) ([]Token, error) {
	cutoff := now.Add(-retention).UnixMilli()

	rows, err := r.db.Query(
		`SELECT id, connector_id, event_id, fingerprint, created_at
		 FROM dedup_tokens
		 WHERE created_at < ?
		 ORDER BY created_at ASC`,
		cutoff,
	)
	if err != nil {
		return nil, fmt.Errorf("query expired tokens: %w", err)
	}
	defer rows.Close()

	tokens := []Token{}
	for rows.Next() {
		var t Token
		if err := rows.Scan(&t.ID, &t.ConnectorID, &t.EventID, &t.Fingerprint, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan token: %w", err)
		}
		tokens = append(tokens, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tokens: %w", err)
	}

	return tokens, nil
}

// Cleanup deletes all tokens past the retention window and returns the
// number deleted. Intended to run as a periodic maintenance job,
// independent of per-connector invocations.
func (r *TokenRepository) Cleanup(ctx context.Context, now time.Time, retention time.Duration) (int64, error) {
	cutoff := now.Add(-retention).UnixMilli()

	res, err := r.db.Exec(`DELETE FROM dedup_tokens WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete expired tokens: %w", err)
	}

	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}

	return deleted, nil
}
