// Package notify reports per-event delivery failures to an operator
// channel. Notifications are best effort: errors are surfaced to the
// caller for logging and never interrupt reconciliation.
package notify

import (
	"context"
	"log/slog"
)

// Failure describes one event the destination rejected or timed out on.
type Failure struct {
	ConnectorID   string `json:"connector_id"`
	ConnectorName string `json:"connector_name,omitempty"`
	EventID       string `json:"event_id"`
	Status        int    `json:"status"`
	Body          string `json:"body,omitempty"`
}

// Notifier delivers failure notifications.
type Notifier interface {
	NotifyFailure(ctx context.Context, f Failure) error
}

// LogNotifier writes failures to the structured log. It is the default
// when no webhook is configured.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger.With("component", "notify")}
}

// NotifyFailure logs the failure. It never returns an error.
func (n *LogNotifier) NotifyFailure(_ context.Context, f Failure) error {
	n.logger.Warn("event delivery failed",
		"connector_id", f.ConnectorID,
		"connector_name", f.ConnectorName,
		"event_id", f.EventID,
		"status", f.Status,
		"body", f.Body,
	)
	return nil
}
