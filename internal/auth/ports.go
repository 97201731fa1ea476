// Package auth provides ingest key authentication for the webhook
// gateway. It follows the hexagonal architecture pattern with ports
// (interfaces) and adapters (HTTP middleware, SQL repository).
package auth

import (
	"context"

	"github.com/feedbridge/feedbridge/internal/auth/internal/domain"
)

// KeyStore defines the port for ingest key persistence operations.
type KeyStore interface {
	// FindByHash retrieves an active (non-revoked) ingest key by its SHA256 hash.
	FindByHash(ctx context.Context, keyHash string) (*domain.IngestKey, error)

	// Create persists a new ingest key.
	Create(ctx context.Context, key *domain.IngestKey) error

	// Revoke marks an ingest key as revoked.
	Revoke(ctx context.Context, id string) error

	// ListByConnectorID returns all keys for a connector, newest first.
	ListByConnectorID(ctx context.Context, connectorID string) ([]domain.IngestKey, error)
}

// contextKey is an unexported type for context keys to avoid collisions.
type contextKey string

// ConnectorIDContextKey is the context key used to inject the
// authenticated connector id into the request context after successful
// ingest key validation.
const ConnectorIDContextKey contextKey = "connector_id"
