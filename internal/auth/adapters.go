package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/goccy/go-json"

	"github.com/feedbridge/feedbridge/internal/auth/internal/domain"
)

// skipAuthPaths lists URL path prefixes that bypass ingest key
// authentication. These are infrastructure endpoints that must remain
// accessible without auth.
var skipAuthPaths = []string{
	"/healthz",
	"/metrics",
	"/api/admin/",
}

// authMiddleware returns HTTP middleware that validates the X-API-Key
// header. On success it injects the authenticated connector id into the
// request context. On failure it returns 401 Unauthorized with a JSON
// error body.
func (m *Module) authMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, prefix := range skipAuthPaths {
				if strings.HasPrefix(r.URL.Path, prefix) {
					next.ServeHTTP(w, r)
					return
				}
			}

			apiKey := r.Header.Get("X-API-Key")
			if apiKey == "" {
				writeAuthError(w, "missing ingest key")
				return
			}

			// Validate key format before hashing
			if !domain.ValidateKeyFormat(apiKey) {
				writeAuthError(w, "invalid ingest key")
				return
			}

			keyHash := domain.HashKey(apiKey)

			key, err := m.service.ValidateKey(r.Context(), keyHash)
			if err != nil {
				m.logger.Error("failed to validate ingest key",
					"error", err,
					"path", r.URL.Path,
				)
				writeAuthError(w, "invalid ingest key")
				return
			}

			if key == nil {
				writeAuthError(w, "invalid ingest key")
				return
			}

			ctx := context.WithValue(r.Context(), ConnectorIDContextKey, key.ConnectorID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetConnectorID retrieves the authenticated connector id from the
// request context. Returns an empty string if no connector id is present
// (e.g., unauthenticated request).
func GetConnectorID(ctx context.Context) string {
	if connectorID, ok := ctx.Value(ConnectorIDContextKey).(string); ok {
		return connectorID
	}
	return ""
}

// writeAuthError writes a 401 Unauthorized JSON response.
func writeAuthError(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}
