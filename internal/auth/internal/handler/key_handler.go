// Package handler provides HTTP handlers for admin ingest key management.
package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/feedbridge/feedbridge/internal/auth/internal/service"
)

// KeyHandler handles HTTP requests for ingest key management (create,
// revoke, list).
type KeyHandler struct {
	service *service.KeyService
	logger  *slog.Logger
}

// NewKeyHandler creates a new KeyHandler with the given service and logger.
func NewKeyHandler(svc *service.KeyService, logger *slog.Logger) *KeyHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &KeyHandler{
		service: svc,
		logger:  logger.With("component", "key-handler"),
	}
}

// RegisterRoutes mounts admin key management endpoints on the given ServeMux.
//
// Endpoints:
//   - POST   /api/admin/keys      - Create a new ingest key
//   - DELETE /api/admin/keys/{id} - Revoke an ingest key
//   - GET    /api/admin/keys      - List ingest keys for a connector
//
// TODO(ops): protect these endpoints with operator auth once a control
// plane exists; today they should only be exposed on an internal listener.
func (h *KeyHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/admin/keys", h.handleCreate)
	mux.HandleFunc("DELETE /api/admin/keys/{id}", h.handleRevoke)
	mux.HandleFunc("GET /api/admin/keys", h.handleList)
}

// createKeyRequest is the JSON request body for creating a new ingest key.
type createKeyRequest struct {
	ConnectorID string `json:"connector_id"`
	Name        string `json:"name"`
}

// createKeyResponse is the JSON response for a newly created ingest key.
// The plaintext key is only returned once at creation time.
type createKeyResponse struct {
	ID          string `json:"id"`
	ConnectorID string `json:"connector_id"`
	Name        string `json:"name"`
	Key         string `json:"key"`
	Message     string `json:"message"`
}

func (h *KeyHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid request body",
		})
		return
	}

	if req.ConnectorID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "connector_id is required",
		})
		return
	}

	plaintext, key, err := h.service.CreateKey(r.Context(), req.ConnectorID, req.Name)
	if err != nil {
		h.logger.Error("failed to create ingest key",
			"connector_id", req.ConnectorID,
			"error", err,
		)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to create ingest key",
		})
		return
	}

	writeJSON(w, http.StatusCreated, createKeyResponse{
		ID:          key.ID,
		ConnectorID: key.ConnectorID,
		Name:        key.Name,
		Key:         plaintext,
		Message:     "Store this key securely. It will not be shown again.",
	})
}

func (h *KeyHandler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "key id is required",
		})
		return
	}

	if err := h.service.RevokeKey(r.Context(), id); err != nil {
		h.logger.Error("failed to revoke ingest key",
			"key_id", id,
			"error", err,
		)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to revoke ingest key",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "revoked",
		"id":     id,
	})
}

func (h *KeyHandler) handleList(w http.ResponseWriter, r *http.Request) {
	connectorID := r.URL.Query().Get("connector_id")
	if connectorID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "connector_id query parameter is required",
		})
		return
	}

	keys, err := h.service.ListKeys(r.Context(), connectorID)
	if err != nil {
		h.logger.Error("failed to list ingest keys",
			"connector_id", connectorID,
			"error", err,
		)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list ingest keys",
		})
		return
	}

	// Build response that never exposes key hashes
	type keyItem struct {
		ID          string `json:"id"`
		ConnectorID string `json:"connector_id"`
		Name        string `json:"name"`
		Revoked     bool   `json:"revoked"`
		CreatedAt   string `json:"created_at"`
		RevokedAt   string `json:"revoked_at,omitempty"`
	}

	items := make([]keyItem, len(keys))
	for i, k := range keys {
		item := keyItem{
			ID:          k.ID,
			ConnectorID: k.ConnectorID,
			Name:        k.Name,
			Revoked:     k.Revoked,
			CreatedAt:   time.UnixMilli(k.CreatedAt).UTC().Format(time.RFC3339),
		}
		if k.RevokedAt > 0 {
			item.RevokedAt = time.UnixMilli(k.RevokedAt).UTC().Format(time.RFC3339)
		}
		items[i] = item
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"keys":  items,
		"count": len(items),
	})
}

// writeJSON writes a JSON response with the given status code and body.
func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
