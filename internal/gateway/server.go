package gateway

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/feedbridge/feedbridge/internal/auth"
	"github.com/feedbridge/feedbridge/internal/observability"
)

// HealthChecker reports whether a dependency is reachable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Server is the daemon's HTTP server: payload ingestion, admin key
// management, metrics, and health.
type Server struct {
	cfg    Config
	server *http.Server
	logger *slog.Logger
}

// ingestRequest is the JSON body for payload ingestion.
type ingestRequest struct {
	Payloads []map[string]interface{} `json:"payloads"`
}

// NewServer builds the server and its middleware chain. The auth module
// guards ingest routes; metricsHandler serves the Prometheus scrape
// endpoint; health is consulted by /healthz.
func NewServer(
	cfg Config,
	svc *IngestService,
	authModule *auth.Module,
	health HealthChecker,
	metricsHandler http.Handler,
	metrics *observability.Metrics,
	logger *slog.Logger,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "gateway")

	s := &Server{cfg: cfg, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/connectors/{id}/payloads", s.handleIngest(svc))
	mux.Handle("GET /metrics", metricsHandler)
	mux.HandleFunc("GET /healthz", s.handleHealth(health))
	authModule.RegisterAdminRoutes(mux)

	var handler http.Handler = mux
	handler = PerKeyRateLimit(cfg.RateLimit)(handler)
	handler = authModule.Middleware()(handler)
	handler = MaxBodyBytes(cfg.MaxBodyBytes)(handler)
	if metrics != nil {
		handler = HTTPMetrics(metrics)(handler)
	}

	s.server = &http.Server{
		Addr:           cfg.Addr,
		Handler:        handler,
		ReadTimeout:    cfg.ReadTimeout,
		WriteTimeout:   cfg.WriteTimeout,
		IdleTimeout:    cfg.IdleTimeout,
		MaxHeaderBytes: cfg.MaxHeaderBytes,
	}

	return s
}

// Start listens and serves until Shutdown. It returns
// http.ErrServerClosed after a clean shutdown.
func (s *Server) Start() error {
	s.logger.Info("gateway listening", "addr", s.cfg.Addr)
	return s.server.ListenAndServe()
}

// Shutdown drains in-flight requests within the configured timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// handleIngest accepts a batch of payloads for one connector. The
// authenticated ingest key must belong to the connector in the path.
func (s *Server) handleIngest(svc *IngestService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		connectorID := r.PathValue("id")
		if connectorID == "" {
			writeError(w, http.StatusBadRequest, ErrConnectorIDRequired.Error())
			return
		}
		if authConnector := auth.GetConnectorID(r.Context()); authConnector != connectorID {
			writeError(w, http.StatusForbidden, ErrConnectorKeyMismatch.Error())
			return
		}

		var req ingestRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		result, err := svc.Ingest(r.Context(), connectorID, req.Payloads)
		if err != nil {
			switch err {
			case ErrAtLeastOnePayload, ErrBatchTooLarge:
				writeError(w, http.StatusBadRequest, err.Error())
			default:
				s.logger.Error("ingest failed",
					"connector_id", connectorID,
					"error", err,
				)
				writeError(w, http.StatusInternalServerError, "ingest failed")
			}
			return
		}

		status := http.StatusAccepted
		if result.AcceptedCount == 0 {
			status = http.StatusBadGateway
		}
		writeJSON(w, status, result)
	}
}

// handleHealth reports liveness of the relay connection.
func (s *Server) handleHealth(health HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if health != nil {
			if err := health.HealthCheck(r.Context()); err != nil {
				writeError(w, http.StatusServiceUnavailable, err.Error())
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
