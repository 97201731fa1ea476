// Package service implements the deduplication engine that decides, per
// candidate payload, whether the payload represents new information or a
// repeat within the connector's look-back window.
package service

import (
	"context"
	"log/slog"

	"github.com/feedbridge/feedbridge/internal/dedup/internal/domain"
	"github.com/feedbridge/feedbridge/internal/observability"
)

// Token is the engine's view of a stored deduplication token.
type Token struct {
	EventID     string
	Fingerprint string
}

// TokenSource supplies a connector's most recent tokens, newest first,
// bounded by limit.
type TokenSource interface {
	Recent(ctx context.Context, connectorID string, limit int) ([]Token, error)
}

// KeepAlive extends the visible expiry of an event whose payload was
// re-seen as a duplicate. This is the deprecated display-ordering side
// effect of early designs; the engine only invokes it when explicitly
// enabled.
type KeepAlive interface {
	ExtendExpiry(ctx context.Context, eventID string) error
}

// Engine applies the configured emission mode to candidate payloads.
type Engine struct {
	mode      domain.Mode
	override  int
	factor    int
	floor     int
	keepAlive bool

	tokens     TokenSource
	keepAliver KeepAlive
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewEngine creates an Engine. The mode and look-back parameters must
// already be validated; keepAliver may be nil when the keep-alive flag is
// off. metrics may be nil to disable instrumentation.
func NewEngine(
	mode domain.Mode,
	override, factor, floor int,
	keepAlive bool,
	tokens TokenSource,
	keepAliver KeepAlive,
	metrics *observability.Metrics,
	logger *slog.Logger,
) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		mode:       mode,
		override:   override,
		factor:     factor,
		floor:      floor,
		keepAlive:  keepAlive,
		tokens:     tokens,
		keepAliver: keepAliver,
		metrics:    metrics,
		logger:     logger,
	}
}

// ShouldStore decides whether the candidate payload should be stored as a
// new event. It always returns the payload's fingerprint so the caller can
// record a token atomically with the event.
//
// Modes all and merge always store. Mode on_change loads the look-back
// window of recent tokens and reports a duplicate when any fingerprint
// matches. candidateCount is the number of payloads fetched in the current
// invocation and feeds the window sizing.
func (e *Engine) ShouldStore(ctx context.Context, connectorID string, payload map[string]interface{}, candidateCount int) (bool, string, error) {
	fp, err := domain.Fingerprint(payload)
	if err != nil {
		return false, "", err
	}

	switch e.mode {
	case domain.ModeAll, domain.ModeMerge:
		return true, fp, nil

	case domain.ModeOnChange:
		window := domain.Window(e.override, candidateCount, e.factor, e.floor)

		recent, err := e.tokens.Recent(ctx, connectorID, window)
		if err != nil {
			// Storage errors propagate: stale dedup state is worse
			// than a visible failure.
			return false, fp, err
		}

		for _, tok := range recent {
			if tok.Fingerprint != fp {
				continue
			}

			if e.metrics != nil {
				e.metrics.DedupDropped.Add(ctx, 1)
			}
			e.logger.Debug("duplicate payload dropped",
				"connector_id", connectorID,
				"fingerprint", fp,
			)

			if e.keepAlive && e.keepAliver != nil {
				if err := e.keepAliver.ExtendExpiry(ctx, tok.EventID); err != nil {
					e.logger.Warn("keep-alive failed",
						"connector_id", connectorID,
						"event_id", tok.EventID,
						"error", err,
					)
				} else if e.metrics != nil {
					e.metrics.DedupKeepAlive.Add(ctx, 1)
				}
			}

			return false, fp, nil
		}

		return true, fp, nil

	default:
		// Unreachable when the mode came through ParseMode.
		return false, fp, domain.ErrIllegalMode
	}
}

// Mode returns the engine's emission mode.
func (e *Engine) Mode() domain.Mode {
	return e.mode
}
