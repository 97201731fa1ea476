package auth

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/feedbridge/feedbridge/internal/auth/internal/domain"
	"github.com/feedbridge/feedbridge/internal/auth/internal/handler"
	"github.com/feedbridge/feedbridge/internal/auth/internal/repo"
	"github.com/feedbridge/feedbridge/internal/auth/internal/service"
	"github.com/feedbridge/feedbridge/internal/store"
)

// Module is the auth module facade. It wires together the domain,
// service, repository, and handler layers, and exposes the public API
// for key management and HTTP middleware.
type Module struct {
	service *service.KeyService
	repo    *repo.KeyRepository
	handler *handler.KeyHandler
	logger  *slog.Logger
}

// New creates a new auth Module on the shared store.
func New(db *store.DB, logger *slog.Logger) *Module {
	if logger == nil {
		logger = slog.Default()
	}

	keyRepo := repo.NewKeyRepository(db)
	keySvc := service.NewKeyService(keyRepo, logger)
	keyHandler := handler.NewKeyHandler(keySvc, logger)

	return &Module{
		service: keySvc,
		repo:    keyRepo,
		handler: keyHandler,
		logger:  logger.With("component", "auth-module"),
	}
}

// CreateKey generates a new ingest key for the given connector. The
// returned plaintext key must be shown to the operator once and cannot
// be retrieved again.
func (m *Module) CreateKey(ctx context.Context, connectorID, name string) (string, error) {
	plaintext, _, err := m.service.CreateKey(ctx, connectorID, name)
	if err != nil {
		return "", err
	}
	return plaintext, nil
}

// RevokeKey revokes an ingest key by its ID.
func (m *Module) RevokeKey(ctx context.Context, id string) error {
	return m.service.RevokeKey(ctx, id)
}

// ListKeys returns all ingest keys for the given connector ID.
func (m *Module) ListKeys(ctx context.Context, connectorID string) ([]domain.IngestKey, error) {
	return m.service.ListKeys(ctx, connectorID)
}

// Middleware returns HTTP middleware that validates ingest keys from the
// X-API-Key header and injects the authenticated connector id into the
// request context. Health and metrics endpoints are excluded from auth.
func (m *Module) Middleware() func(http.Handler) http.Handler {
	return m.authMiddleware()
}

// RegisterAdminRoutes mounts the admin key management endpoints onto the
// given ServeMux.
func (m *Module) RegisterAdminRoutes(mux *http.ServeMux) {
	m.handler.RegisterRoutes(mux)
}
