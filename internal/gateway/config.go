// Package gateway provides the HTTP surface of the daemon: authenticated
// webhook payload ingestion per connector, admin ingest key management,
// metrics, and health.
package gateway

import (
	"time"
)

// Config holds HTTP gateway configuration.
type Config struct {
	// Addr is the address to listen on (e.g., ":8080")
	Addr string `env:"HTTP_ADDR" envDefault:":8080"`

	// ReadTimeout is the maximum duration for reading the entire request
	ReadTimeout time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"10s"`

	// WriteTimeout is the maximum duration before timing out writes of the response
	WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`

	// IdleTimeout is the maximum amount of time to wait for the next request
	IdleTimeout time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"60s"`

	// MaxHeaderBytes is the maximum size of request headers
	MaxHeaderBytes int `env:"HTTP_MAX_HEADER_BYTES" envDefault:"1048576"` // 1MB

	// MaxBodyBytes is the maximum size of a request body
	MaxBodyBytes int64 `env:"HTTP_MAX_BODY_BYTES" envDefault:"1048576"` // 1MB

	// MaxPayloadsPerRequest caps the payload count in one ingest call
	MaxPayloadsPerRequest int `env:"HTTP_MAX_PAYLOADS_PER_REQUEST" envDefault:"1000"`

	// Rate limiting configuration
	RateLimit RateLimitConfig `envPrefix:"RATE_LIMIT_"`

	// Shutdown timeout for graceful shutdown
	ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"30s"`
}

// RateLimitConfig holds per-connector rate limiting configuration.
type RateLimitConfig struct {
	// Enabled indicates whether rate limiting is enabled
	Enabled bool `env:"ENABLED" envDefault:"true"`

	// PerKeyRPS is the number of requests allowed per second per connector
	PerKeyRPS float64 `env:"PER_KEY_RPS" envDefault:"100"`

	// PerKeyBurst is the maximum burst size per connector
	PerKeyBurst int `env:"PER_KEY_BURST" envDefault:"200"`
}
