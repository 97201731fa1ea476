package relay

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Client owns the relay's NATS connection and JetStream handle. One
// client serves the whole fleet: the payload publisher and every
// per-connector consumer share the connection.
type Client struct {
	conn    *nats.Conn
	js      jetstream.JetStream
	stream  string
	timeout time.Duration
	logger  *slog.Logger

	closeOnce sync.Once
	closed    chan struct{}
}

// NewClient connects to the relay's NATS server and opens a JetStream
// handle on it. Reconnects are left to the connection; the handlers log
// transitions so operators can correlate gaps in connector traffic.
func NewClient(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	c := &Client{
		stream:  cfg.Stream.Name,
		timeout: timeout,
		logger:  logger.With("component", "relay", "stream", cfg.Stream.Name),
		closed:  make(chan struct{}),
	}

	conn, err := nats.Connect(cfg.URL,
		nats.Name(cfg.Name),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				c.logger.Warn("relay connection lost", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			c.logger.Info("relay reconnected, consumers resume", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			c.logger.Info("relay connection closed")
			c.closeOnce.Do(func() { close(c.closed) })
		}),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			c.logger.Error("relay async error", "error", err)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to relay at %s: %w", cfg.URL, err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open JetStream handle: %w", err)
	}

	c.conn = conn
	c.js = js
	c.logger.Info("relay connected",
		"url", conn.ConnectedUrl(),
		"server_id", conn.ConnectedServerId(),
	)

	return c, nil
}

// JetStream returns the JetStream handle for stream and consumer setup.
func (c *Client) JetStream() jetstream.JetStream {
	return c.js
}

// HealthCheck reports whether the relay can carry traffic: the
// connection must be up and the event stream reachable through it.
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.conn.IsConnected() {
		return fmt.Errorf("%w: status %s", ErrNotConnected, c.conn.Status())
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if _, err := c.js.Stream(ctx, c.stream); err != nil {
		return fmt.Errorf("event stream %s unreachable: %w", c.stream, err)
	}
	return nil
}

// Shutdown drains the connection so in-flight consumer messages finish
// processing, then waits for it to close or the context to expire. An
// expired context force-closes the connection.
func (c *Client) Shutdown(ctx context.Context) error {
	if err := c.conn.Drain(); err != nil {
		c.conn.Close()
		return fmt.Errorf("drain relay connection: %w", err)
	}

	select {
	case <-c.closed:
		return nil
	case <-ctx.Done():
		c.conn.Close()
		return fmt.Errorf("relay drain interrupted: %w", ctx.Err())
	}
}

// Close force-closes the connection without draining. Shutdown is the
// normal path; Close backstops error exits.
func (c *Client) Close() {
	c.conn.Close()
}
