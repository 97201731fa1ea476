package connector

import (
	"context"

	"github.com/feedbridge/feedbridge/internal/delivery"
)

// Source produces one invocation's worth of raw payloads from wherever
// the connector pulls its data. Implementations are vendor-specific and
// live outside this package; push-only connectors have none.
type Source interface {
	Fetch(ctx context.Context) ([]map[string]interface{}, error)
}

// Templater shapes a stored payload into the destination record. The
// default passes the payload through unchanged; mapping languages are a
// deployment concern.
type Templater interface {
	BuildRecord(payload map[string]interface{}) (map[string]interface{}, error)
}

// IdentityTemplater passes payloads through as records.
type IdentityTemplater struct{}

// BuildRecord returns the payload unchanged.
func (IdentityTemplater) BuildRecord(payload map[string]interface{}) (map[string]interface{}, error) {
	return payload, nil
}

// ResultPublisher emits per-event delivery outcomes for downstream
// consumers.
type ResultPublisher interface {
	PublishResult(ctx context.Context, connectorID, eventID string, status int, body string) error
}

// FailureSink records non-delivered outcomes somewhere durable for
// later inspection. Optional.
type FailureSink interface {
	ArchiveFailures(ctx context.Context, connectorID string, outcomes []delivery.Outcome) error
}
