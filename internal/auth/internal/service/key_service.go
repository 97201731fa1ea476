// Package service contains the business logic for ingest key operations.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/feedbridge/feedbridge/internal/auth/internal/domain"
)

// KeyStore defines the port for ingest key persistence. This mirrors the
// top-level auth.KeyStore interface to avoid import cycles.
type KeyStore interface {
	FindByHash(ctx context.Context, keyHash string) (*domain.IngestKey, error)
	Create(ctx context.Context, key *domain.IngestKey) error
	Revoke(ctx context.Context, id string) error
	ListByConnectorID(ctx context.Context, connectorID string) ([]domain.IngestKey, error)
}

// Common errors returned by KeyService methods.
var (
	ErrKeyNotFound      = errors.New("ingest key not found or revoked")
	ErrInvalidKey       = errors.New("invalid ingest key format")
	ErrEmptyConnectorID = errors.New("connector_id is required")
)

// KeyService provides business logic for ingest key management including
// creation, validation, revocation, and listing.
type KeyService struct {
	store  KeyStore
	logger *slog.Logger
}

// NewKeyService creates a new KeyService with the given store and logger.
func NewKeyService(store KeyStore, logger *slog.Logger) *KeyService {
	if logger == nil {
		logger = slog.Default()
	}
	return &KeyService{
		store:  store,
		logger: logger.With("component", "key-service"),
	}
}

// ValidateKey validates an ingest key by its SHA256 hash. It returns the
// associated IngestKey if found and not revoked, or nil if invalid.
func (s *KeyService) ValidateKey(ctx context.Context, keyHash string) (*domain.IngestKey, error) {
	key, err := s.store.FindByHash(ctx, keyHash)
	if err != nil {
		return nil, fmt.Errorf("failed to find key: %w", err)
	}

	if key == nil {
		return nil, nil
	}

	if key.Revoked {
		s.logger.Warn("attempt to use revoked key",
			"key_id", key.ID,
			"connector_id", key.ConnectorID,
		)
		return nil, nil
	}

	return key, nil
}

// CreateKey generates a new ingest key for the given connector. It
// returns the plaintext key (to be shown once to the operator) and the
// persisted IngestKey record.
func (s *KeyService) CreateKey(ctx context.Context, connectorID, name string) (plaintext string, key *domain.IngestKey, err error) {
	if connectorID == "" {
		return "", nil, ErrEmptyConnectorID
	}

	plaintext, hash, err := domain.GenerateKey()
	if err != nil {
		return "", nil, fmt.Errorf("failed to generate key: %w", err)
	}

	key = &domain.IngestKey{
		ID:          uuid.Must(uuid.NewV7()).String(),
		ConnectorID: connectorID,
		KeyHash:     hash,
		Name:        name,
		CreatedAt:   time.Now().UnixMilli(),
	}

	if err := s.store.Create(ctx, key); err != nil {
		return "", nil, fmt.Errorf("failed to store key: %w", err)
	}

	s.logger.Info("ingest key created",
		"key_id", key.ID,
		"connector_id", connectorID,
		"name", name,
	)

	return plaintext, key, nil
}

// RevokeKey revokes an ingest key by its ID.
func (s *KeyService) RevokeKey(ctx context.Context, id string) error {
	if err := s.store.Revoke(ctx, id); err != nil {
		return fmt.Errorf("failed to revoke key: %w", err)
	}

	s.logger.Info("ingest key revoked", "key_id", id)
	return nil
}

// ListKeys returns all ingest keys for the given connector ID.
func (s *KeyService) ListKeys(ctx context.Context, connectorID string) ([]domain.IngestKey, error) {
	if connectorID == "" {
		return nil, ErrEmptyConnectorID
	}

	keys, err := s.store.ListByConnectorID(ctx, connectorID)
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}

	return keys, nil
}
