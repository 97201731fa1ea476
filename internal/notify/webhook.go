package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/goccy/go-json"
)

// WebhookConfig configures the failure webhook.
type WebhookConfig struct {
	// URL receives a JSON Failure per notification.
	URL string `env:"NOTIFY_WEBHOOK_URL"`

	// Secret, when set, signs the request body with HMAC-SHA256.
	Secret string `env:"NOTIFY_WEBHOOK_SECRET"`

	// SignatureHeader carries the signature. Defaults to X-Signature.
	SignatureHeader string `env:"NOTIFY_WEBHOOK_SIGNATURE_HEADER" envDefault:"X-Signature"`

	// Timeout bounds each notification request.
	Timeout time.Duration `env:"NOTIFY_WEBHOOK_TIMEOUT" envDefault:"10s"`
}

// WebhookNotifier posts failures to an operator webhook, one request per
// failing event.
type WebhookNotifier struct {
	cfg    WebhookConfig
	client *http.Client
	logger *slog.Logger
}

// NewWebhookNotifier creates a WebhookNotifier.
func NewWebhookNotifier(cfg WebhookConfig, logger *slog.Logger) (*WebhookNotifier, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("notify webhook: url is required")
	}
	if cfg.SignatureHeader == "" {
		cfg.SignatureHeader = "X-Signature"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookNotifier{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger.With("component", "notify"),
	}, nil
}

// NotifyFailure posts the failure as JSON. Non-2xx responses are errors;
// the caller decides whether to log or retry.
func (n *WebhookNotifier) NotifyFailure(ctx context.Context, f Failure) error {
	payload, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshal failure: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.cfg.URL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if n.cfg.Secret != "" {
		req.Header.Set(n.cfg.SignatureHeader, computeHMAC(payload, n.cfg.Secret))
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("post notification: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notification rejected: status %d", resp.StatusCode)
	}

	n.logger.Debug("failure notification sent",
		"connector_id", f.ConnectorID,
		"event_id", f.EventID,
		"status", f.Status,
	)
	return nil
}

// computeHMAC computes the HMAC-SHA256 signature of the payload.
func computeHMAC(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
