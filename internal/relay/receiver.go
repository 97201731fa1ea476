package relay

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/goccy/go-json"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/feedbridge/feedbridge/internal/observability"
)

// InboundHandler processes one inbound payload message. A returned error
// NAKs the message for redelivery.
type InboundHandler func(ctx context.Context, msg InboundMessage) error

// Receiver consumes a connector's inbound subject through its durable
// consumer. A bloom guard drops ids the consumer has already handled,
// since JetStream redelivers on slow acks as well as real failures.
type Receiver struct {
	consumer jetstream.Consumer
	guard    *RedeliveryGuard
	metrics  *observability.Metrics
	logger   *slog.Logger
}

// NewReceiver creates a Receiver. guard may be nil to accept
// redeliveries; metrics may be nil.
func NewReceiver(consumer jetstream.Consumer, guard *RedeliveryGuard, metrics *observability.Metrics, logger *slog.Logger) *Receiver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Receiver{
		consumer: consumer,
		guard:    guard,
		metrics:  metrics,
		logger:   logger.With("component", "receiver"),
	}
}

// Start begins consuming and dispatching to the handler. It returns the
// consume context for shutdown; the caller stops it by calling Stop on
// the returned context or cancelling ctx. Guard rotation runs until ctx
// is cancelled.
func (r *Receiver) Start(ctx context.Context, handler InboundHandler) (jetstream.ConsumeContext, error) {
	cc, err := r.consumer.Consume(func(m jetstream.Msg) {
		var msg InboundMessage
		if err := json.Unmarshal(m.Data(), &msg); err != nil {
			r.logger.Error("unparseable inbound message", "subject", m.Subject(), "error", err)
			// A malformed message never gets better on redelivery.
			_ = m.Term()
			return
		}

		if r.guard != nil && r.guard.Seen(msg.ID) {
			if r.metrics != nil {
				r.metrics.RelayRedeliveriesDropped.Add(ctx, 1)
			}
			r.logger.Debug("redelivery dropped", "msg_id", msg.ID)
			_ = m.Ack()
			return
		}

		if err := handler(ctx, msg); err != nil {
			r.logger.Warn("inbound handler failed",
				"msg_id", msg.ID,
				"connector_id", msg.ConnectorID,
				"error", err,
			)
			_ = m.Nak()
			return
		}

		_ = m.Ack()
	})
	if err != nil {
		return nil, fmt.Errorf("start consume: %w", err)
	}

	if r.guard != nil {
		go r.rotateGuard(ctx)
	}

	return cc, nil
}

// rotateGuard rotates the bloom guard every half window so ids stay
// visible for at least one full window.
func (r *Receiver) rotateGuard(ctx context.Context) {
	interval := r.guard.Window() / 2
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.guard.Rotate()
		}
	}
}
