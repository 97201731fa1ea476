package relay

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/feedbridge/feedbridge/internal/observability"
)

// InboundMessage is the wire envelope for a payload entering the fleet
// over NATS instead of a direct poll.
type InboundMessage struct {
	ID          string                 `json:"id"`
	ConnectorID string                 `json:"connector_id"`
	Payload     map[string]interface{} `json:"payload"`
	SentAt      int64                  `json:"sent_at"`
}

// ResultMessage is the wire envelope for a per-event delivery outcome.
type ResultMessage struct {
	ID          string `json:"id"`
	ConnectorID string `json:"connector_id"`
	EventID     string `json:"event_id"`
	Status      int    `json:"status"`
	Body        string `json:"body,omitempty"`
	SentAt      int64  `json:"sent_at"`
}

// InboundSubject returns the subject carrying a connector's incoming
// payloads.
func InboundSubject(connectorID string) string {
	return "inbound." + sanitizeToken(connectorID)
}

// ResultSubject returns the subject carrying a connector's delivery
// outcomes.
func ResultSubject(connectorID string) string {
	return "results." + sanitizeToken(connectorID)
}

// sanitizeToken makes a connector id safe for use as a subject token.
func sanitizeToken(id string) string {
	return strings.NewReplacer(".", "_", " ", "_", "*", "_", ">", "_").Replace(id)
}

// Publisher publishes envelopes to the relay stream. Every publish
// carries a message id so the stream's duplicate window absorbs retries.
type Publisher struct {
	js      jetstream.JetStream
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewPublisher creates a Publisher. metrics may be nil.
func NewPublisher(js jetstream.JetStream, metrics *observability.Metrics, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		js:      js,
		metrics: metrics,
		logger:  logger.With("component", "publisher"),
	}
}

// PublishPayload publishes one inbound payload for a connector.
func (p *Publisher) PublishPayload(ctx context.Context, connectorID string, payload map[string]interface{}) error {
	msg := InboundMessage{
		ID:          uuid.NewString(),
		ConnectorID: connectorID,
		Payload:     payload,
		SentAt:      time.Now().UnixMilli(),
	}
	return p.publish(ctx, InboundSubject(connectorID), msg.ID, msg)
}

// PublishResult publishes one delivery outcome.
func (p *Publisher) PublishResult(ctx context.Context, connectorID, eventID string, status int, body string) error {
	msg := ResultMessage{
		ID:          uuid.NewString(),
		ConnectorID: connectorID,
		EventID:     eventID,
		Status:      status,
		Body:        body,
		SentAt:      time.Now().UnixMilli(),
	}
	return p.publish(ctx, ResultSubject(connectorID), msg.ID, msg)
}

// PublishPayloadBatch publishes a batch of inbound payloads, continuing
// past individual failures. Returns the number published and
// ErrPartialPublish when any failed.
func (p *Publisher) PublishPayloadBatch(ctx context.Context, connectorID string, payloads []map[string]interface{}) (int, error) {
	published := 0
	for _, payload := range payloads {
		if err := p.PublishPayload(ctx, connectorID, payload); err != nil {
			p.logger.Error("failed to publish payload in batch",
				"connector_id", connectorID,
				"error", err,
			)
			continue
		}
		published++
	}

	if published < len(payloads) {
		return published, fmt.Errorf("%w: %d of %d failed", ErrPartialPublish, len(payloads)-published, len(payloads))
	}
	return published, nil
}

func (p *Publisher) publish(ctx context.Context, subject, msgID string, msg interface{}) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	ack, err := p.js.Publish(ctx, subject, data, jetstream.WithMsgID(msgID))
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}

	if p.metrics != nil {
		p.metrics.RelayPublished.Add(ctx, 1)
	}
	p.logger.Debug("message published",
		"subject", subject,
		"msg_id", msgID,
		"stream", ack.Stream,
		"sequence", ack.Sequence,
	)
	return nil
}
