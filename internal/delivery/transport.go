package delivery

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"
)

// maxResponseBytes bounds how much of a bulk response is read. Bulk
// responses are per-record result arrays; anything past this is garbage.
const maxResponseBytes = 4 << 20

// TransportConfig configures the destination HTTP client.
type TransportConfig struct {
	// Endpoint is the destination base URL. Bulk submissions POST to
	// Endpoint + "/bulk".
	Endpoint string `env:"DELIVERY_ENDPOINT"`

	// AuthToken is sent as a bearer token.
	AuthToken string `env:"DELIVERY_AUTH_TOKEN"`

	// Organization is the destination tenant header.
	Organization string `env:"DELIVERY_ORGANIZATION"`

	// Timeout bounds the whole request round trip. A timed-out batch
	// gets the uniform indeterminate outcome.
	Timeout time.Duration `env:"DELIVERY_TIMEOUT" envDefault:"30s"`

	// RequestsPerSecond throttles outbound requests. Zero disables
	// throttling.
	RequestsPerSecond float64 `env:"DELIVERY_REQUESTS_PER_SECOND"`

	// Burst is the throttle burst size. Defaults to 1 when throttling
	// is on.
	Burst int `env:"DELIVERY_BURST"`
}

// bulkEnvelope is the bulk submission wire format.
type bulkEnvelope struct {
	Records []map[string]interface{} `json:"records"`
}

// Client submits records to the destination API.
type Client struct {
	cfg     TransportConfig
	http    *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewClient creates a Client.
func NewClient(cfg TransportConfig, logger *slog.Logger) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, ErrEndpointRequired
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: limiter,
		logger:  logger.With("component", "delivery"),
	}, nil
}

// SendBulk posts a batch of records and returns the raw status and body.
// Transport failures, including timeouts, come back as errors; the
// reconciler maps them to the uniform indeterminate outcome.
func (c *Client) SendBulk(ctx context.Context, records []map[string]interface{}) (int, []byte, error) {
	body, err := json.Marshal(bulkEnvelope{Records: records})
	if err != nil {
		return 0, nil, fmt.Errorf("marshal bulk request: %w", err)
	}
	return c.post(ctx, c.cfg.Endpoint+"/bulk", body)
}

// Send posts a single record, for connectors running without batching.
func (c *Client) Send(ctx context.Context, record map[string]interface{}) (int, []byte, error) {
	body, err := json.Marshal(record)
	if err != nil {
		return 0, nil, fmt.Errorf("marshal record: %w", err)
	}
	return c.post(ctx, c.cfg.Endpoint, body)
}

func (c *Client) post(ctx context.Context, url string, body []byte) (int, []byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return 0, nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	if c.cfg.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.AuthToken)
	}
	if c.cfg.Organization != "" {
		req.Header.Set("Organization", c.cfg.Organization)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("post: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}

	return resp.StatusCode, respBody, nil
}
