package dedup

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/feedbridge/feedbridge/internal/dedup/internal/domain"
	"github.com/feedbridge/feedbridge/internal/dedup/internal/service"
	"github.com/feedbridge/feedbridge/internal/observability"
)

// Config holds the per-connector dedup configuration. Values come from
// the connector definition, not the environment: every connector carries
// its own mode and look-back parameters.
type Config struct {
	// Mode is the emission policy: "all", "on_change", or "merge".
	// Empty defaults to "all".
	Mode string

	// LookBack is the optional explicit look-back override. When set it
	// wins over the factor/floor sizing. Must be positive if set.
	LookBack int

	// Factor scales the look-back window by the invocation's candidate
	// count. Zero means the default (1).
	Factor int

	// Floor is the minimum look-back window. Zero means the default (500).
	Floor int

	// KeepAlive enables the deprecated duplicate keep-alive side effect:
	// re-seeing a duplicate extends the matched event's expiry. Off by
	// default; new connectors should leave it off.
	KeepAlive bool
}

// Validate checks the configuration eagerly. Violations are configuration
// errors: the connector must not be activated.
func (c Config) Validate() error {
	if _, err := domain.ParseMode(c.Mode); err != nil {
		return err
	}
	if c.LookBack < 0 {
		return fmt.Errorf("uniqueness_look_back must be positive, got %d", c.LookBack)
	}
	if c.Factor < 0 {
		return fmt.Errorf("look-back factor must be positive, got %d", c.Factor)
	}
	if c.Floor < 0 {
		return fmt.Errorf("look-back floor must be positive, got %d", c.Floor)
	}
	return nil
}

// Module is the dedup module facade. It wraps the engine and provides a
// clean API for the connector runtime.
type Module struct {
	svc *service.Engine
}

// New creates a dedup Module for one connector. The config must already
// pass Validate; keepAliver may be nil unless cfg.KeepAlive is set, and
// metrics may be nil to disable instrumentation.
func New(cfg Config, tokens TokenSource, keepAliver KeepAlive, metrics *observability.Metrics, logger *slog.Logger) (*Module, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	mode, err := domain.ParseMode(cfg.Mode)
	if err != nil {
		return nil, err
	}

	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("module", "dedup")

	return &Module{
		svc: service.NewEngine(
			mode,
			cfg.LookBack, cfg.Factor, cfg.Floor,
			cfg.KeepAlive,
			tokens, keepAliver, metrics, logger,
		),
	}, nil
}

// ShouldStore reports whether the candidate payload should be stored as a
// new event, along with the payload's fingerprint.
func (m *Module) ShouldStore(ctx context.Context, connectorID string, payload map[string]interface{}, candidateCount int) (bool, string, error) {
	return m.svc.ShouldStore(ctx, connectorID, payload, candidateCount)
}

// Mode returns the configured emission mode.
func (m *Module) Mode() Mode {
	return m.svc.Mode()
}
