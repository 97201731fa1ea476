package gateway

import (
	"context"
	"log/slog"
)

// PayloadPublisher is the slice of the relay publisher the gateway uses.
type PayloadPublisher interface {
	PublishPayload(ctx context.Context, connectorID string, payload map[string]interface{}) error
}

// PayloadResult reports the fate of one payload within an ingest call.
type PayloadResult struct {
	Index  int    `json:"index"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// IngestResult summarizes one ingest call.
type IngestResult struct {
	AcceptedCount int             `json:"accepted_count"`
	RejectedCount int             `json:"rejected_count"`
	Results       []PayloadResult `json:"results"`
}

// IngestService accepts raw payloads over HTTP and hands them to the
// relay, where the connector's consumer picks them up. Ingestion never
// touches the dedup engine or the buffer directly; that keeps all
// per-connector state changes on the connector's own goroutine.
type IngestService struct {
	publisher   PayloadPublisher
	maxPayloads int
	logger      *slog.Logger
}

// NewIngestService creates an ingest service.
func NewIngestService(publisher PayloadPublisher, maxPayloads int, logger *slog.Logger) *IngestService {
	if logger == nil {
		logger = slog.Default()
	}
	return &IngestService{
		publisher:   publisher,
		maxPayloads: maxPayloads,
		logger:      logger.With("component", "ingest-service"),
	}
}

// Ingest publishes each payload to the connector's inbound subject and
// reports a per-payload result. A publish failure rejects that payload
// only; the rest of the batch proceeds.
func (s *IngestService) Ingest(ctx context.Context, connectorID string, payloads []map[string]interface{}) (*IngestResult, error) {
	if connectorID == "" {
		return nil, ErrConnectorIDRequired
	}
	if len(payloads) == 0 {
		return nil, ErrAtLeastOnePayload
	}
	if s.maxPayloads > 0 && len(payloads) > s.maxPayloads {
		return nil, ErrBatchTooLarge
	}

	result := &IngestResult{
		Results: make([]PayloadResult, len(payloads)),
	}

	for i, payload := range payloads {
		pr := PayloadResult{Index: i}

		if payload == nil {
			pr.Status = "rejected"
			pr.Error = "payload is null"
			result.RejectedCount++
			result.Results[i] = pr
			continue
		}

		if err := s.publisher.PublishPayload(ctx, connectorID, payload); err != nil {
			pr.Status = "rejected"
			pr.Error = err.Error()
			result.RejectedCount++
			s.logger.Warn("failed to publish payload",
				"connector_id", connectorID,
				"index", i,
				"error", err,
			)
		} else {
			pr.Status = "accepted"
			result.AcceptedCount++
		}

		result.Results[i] = pr
	}

	s.logger.Debug("ingest complete",
		"connector_id", connectorID,
		"total", len(payloads),
		"accepted", result.AcceptedCount,
		"rejected", result.RejectedCount,
	)

	return result, nil
}
