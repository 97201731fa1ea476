package delivery

import (
	"context"
	"log/slog"
	"time"

	"github.com/goccy/go-json"

	"github.com/feedbridge/feedbridge/internal/notify"
	"github.com/feedbridge/feedbridge/internal/observability"
)

// timeoutBody is the synthetic body attached to indeterminate outcomes.
const timeoutBody = "Request timeout"

// Record pairs an event id with the destination-shaped fields built from
// its payload.
type Record struct {
	EventID string
	Fields  map[string]interface{}
}

// Sender is the transport the reconciler submits batches through.
type Sender interface {
	SendBulk(ctx context.Context, records []map[string]interface{}) (int, []byte, error)
	Send(ctx context.Context, record map[string]interface{}) (int, []byte, error)
}

// bulkItem is one element of a bulk response array, positionally aligned
// with the submitted records.
type bulkItem struct {
	Status int             `json:"status"`
	Body   json.RawMessage `json:"body"`
}

// Reconciler turns batch submissions into per-event outcomes. Every
// record handed in gets exactly one outcome; records that fail
// pre-submission validation are excluded and logged instead.
type Reconciler struct {
	connectorID   string
	connectorName string
	sender        Sender
	notifier      notify.Notifier
	metrics       *observability.Metrics
	logger        *slog.Logger
}

// NewReconciler creates a Reconciler. notifier may be nil to disable
// failure notifications; metrics may be nil.
func NewReconciler(connectorID, connectorName string, sender Sender, notifier notify.Notifier, metrics *observability.Metrics, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		connectorID:   connectorID,
		connectorName: connectorName,
		sender:        sender,
		notifier:      notifier,
		metrics:       metrics,
		logger: logger.With(
			"component", "delivery",
			"connector_id", connectorID,
		),
	}
}

// DeliverBatch validates, submits, and reconciles one claimed batch.
// Invalid records are dropped before submission. The returned outcomes
// cover exactly the submitted records, in order. An empty return means
// nothing was sendable.
//
// Outcome mapping follows the destination contract: an accepted batch
// (200 or 201) carries a JSON array of per-record results zipped
// positionally; any other status applies uniformly to the whole batch.
// A transport failure or an uninterpretable response is indeterminate
// and maps every record to the synthetic timeout status.
func (r *Reconciler) DeliverBatch(ctx context.Context, records []Record) []Outcome {
	sendable := make([]Record, 0, len(records))
	payload := make([]map[string]interface{}, 0, len(records))
	for _, rec := range records {
		if err := ValidateRecord(rec.Fields); err != nil {
			r.logger.Warn("record excluded from batch",
				"event_id", rec.EventID,
				"error", err,
			)
			continue
		}
		sendable = append(sendable, rec)
		payload = append(payload, rec.Fields)
	}
	if len(sendable) == 0 {
		return nil
	}

	start := time.Now()
	status, body, err := r.sender.SendBulk(ctx, payload)
	if r.metrics != nil {
		r.metrics.FlushLatency.Record(ctx, float64(time.Since(start).Milliseconds()))
	}
	if err != nil {
		r.logger.Warn("bulk submission failed", "error", err, "batch_size", len(sendable))
		return r.uniform(ctx, sendable, StatusTimeout, timeoutBody)
	}

	if status != 200 && status != 201 {
		return r.uniform(ctx, sendable, status, string(body))
	}

	var items []bulkItem
	if err := json.Unmarshal(body, &items); err != nil || len(items) != len(sendable) {
		// The batch was accepted but the per-record results are
		// unusable. Indeterminate is the only honest answer.
		r.logger.Warn("bulk response unintelligible",
			"error", err,
			"items", len(items),
			"batch_size", len(sendable),
		)
		return r.uniform(ctx, sendable, StatusTimeout, timeoutBody)
	}

	outcomes := make([]Outcome, len(sendable))
	for i, rec := range sendable {
		outcomes[i] = r.finish(ctx, rec, items[i].Status, string(items[i].Body))
	}
	return outcomes
}

// DeliverOne validates and submits a single record, for connectors
// running without batching.
func (r *Reconciler) DeliverOne(ctx context.Context, rec Record) (Outcome, bool) {
	if err := ValidateRecord(rec.Fields); err != nil {
		r.logger.Warn("record excluded",
			"event_id", rec.EventID,
			"error", err,
		)
		return Outcome{}, false
	}

	status, body, err := r.sender.Send(ctx, rec.Fields)
	if err != nil {
		r.logger.Warn("submission failed", "event_id", rec.EventID, "error", err)
		return r.finish(ctx, rec, StatusTimeout, timeoutBody), true
	}
	return r.finish(ctx, rec, status, string(body)), true
}

// uniform applies one status and body to every record in the batch.
func (r *Reconciler) uniform(ctx context.Context, records []Record, status int, body string) []Outcome {
	outcomes := make([]Outcome, len(records))
	for i, rec := range records {
		outcomes[i] = r.finish(ctx, rec, status, body)
	}
	return outcomes
}

// finish classifies one record's result, counts it, and notifies on
// anything other than acceptance. Notification failures are logged and
// swallowed; they must not disturb reconciliation.
func (r *Reconciler) finish(ctx context.Context, rec Record, status int, body string) Outcome {
	out := Outcome{
		EventID: rec.EventID,
		Status:  status,
		Body:    body,
		Class:   Classify(status),
	}

	if r.metrics != nil {
		switch out.Class {
		case ClassDelivered:
			r.metrics.DeliverySuccess.Add(ctx, 1)
		case ClassUnknown:
			r.metrics.DeliveryTimeouts.Add(ctx, 1)
		default:
			r.metrics.DeliveryFailure.Add(ctx, 1)
		}
	}

	if out.Class != ClassDelivered && r.notifier != nil {
		err := r.notifier.NotifyFailure(ctx, notify.Failure{
			ConnectorID:   r.connectorID,
			ConnectorName: r.connectorName,
			EventID:       rec.EventID,
			Status:        status,
			Body:          body,
		})
		if err != nil {
			r.logger.Warn("failure notification not sent",
				"event_id", rec.EventID,
				"error", err,
			)
		} else if r.metrics != nil {
			r.metrics.NotificationsSent.Add(ctx, 1)
		}
	}

	return out
}
