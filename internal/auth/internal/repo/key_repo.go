// Package repo provides the storage-backed implementation of the
// KeyStore port.
package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/feedbridge/feedbridge/internal/auth/internal/domain"
	"github.com/feedbridge/feedbridge/internal/store"
)

// KeyRepository implements the KeyStore interface on the shared store.
type KeyRepository struct {
	db *store.DB
}

// NewKeyRepository creates a new KeyRepository backed by the given database.
func NewKeyRepository(db *store.DB) *KeyRepository {
	return &KeyRepository{db: db}
}

// FindByHash retrieves an active (non-revoked) ingest key by its SHA256
// hash. Returns nil, nil if no matching key is found.
func (r *KeyRepository) FindByHash(ctx context.Context, keyHash string) (*domain.IngestKey, error) {
	row := r.db.QueryRow(
		`SELECT id, connector_id, key_hash, name, revoked, created_at, COALESCE(revoked_at, 0)
		 FROM ingest_keys
		 WHERE key_hash = ? AND revoked = 0`,
		keyHash,
	)

	var key domain.IngestKey
	err := row.Scan(
		&key.ID,
		&key.ConnectorID,
		&key.KeyHash,
		&key.Name,
		&key.Revoked,
		&key.CreatedAt,
		&key.RevokedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query ingest key by hash: %w", err)
	}

	return &key, nil
}

// Create inserts a new ingest key record.
func (r *KeyRepository) Create(ctx context.Context, key *domain.IngestKey) error {
	_, err := r.db.Exec(
		`INSERT INTO ingest_keys (id, connector_id, key_hash, name, revoked, created_at) VALUES (?, ?, ?, ?, 0, ?)`,
		key.ID, key.ConnectorID, key.KeyHash, key.Name, key.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert ingest key: %w", err)
	}

	return nil
}

// Revoke marks an ingest key as revoked.
func (r *KeyRepository) Revoke(ctx context.Context, id string) error {
	result, err := r.db.Exec(
		`UPDATE ingest_keys SET revoked = 1, revoked_at = ? WHERE id = ?`,
		time.Now().UnixMilli(), id,
	)
	if err != nil {
		return fmt.Errorf("revoke ingest key: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("ingest key not found: %s", id)
	}

	return nil
}

// ListByConnectorID returns all keys for the given connector, newest
// first.
func (r *KeyRepository) ListByConnectorID(ctx context.Context, connectorID string) ([]domain.IngestKey, error) {
	rows, err := r.db.Query(
		`SELECT id, connector_id, key_hash, name, revoked, created_at, COALESCE(revoked_at, 0)
		 FROM ingest_keys
		 WHERE connector_id = ?
		 ORDER BY created_at DESC, id DESC`,
		connectorID,
	)
	if err != nil {
		return nil, fmt.Errorf("query ingest keys by connector: %w", err)
	}
	defer rows.Close()

	var keys []domain.IngestKey
	for rows.Next() {
		var key domain.IngestKey
		if err := rows.Scan(
			&key.ID,
			&key.ConnectorID,
			&key.KeyHash,
			&key.Name,
			&key.Revoked,
			&key.CreatedAt,
			&key.RevokedAt,
		); err != nil {
			return nil, fmt.Errorf("scan ingest key: %w", err)
		}
		keys = append(keys, key)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ingest keys: %w", err)
	}

	return keys, nil
}
