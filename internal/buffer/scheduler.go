// Package buffer schedules batch flushes for a connector's pending event
// queue. Events accumulate until the batch size is reached, the buffer
// sits through too many scheduled checks, or the oldest pending event
// exceeds the configured age. The actual queue lives in storage; the
// scheduler only decides and delegates.
package buffer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/feedbridge/feedbridge/internal/observability"
)

// DefaultStalenessChecks is how many consecutive scheduled checks may see
// a partial batch before the next check flushes it anyway.
const DefaultStalenessChecks = 3

// State is the scheduler's view of a connector's buffer.
type State struct {
	Pending         int
	InProcess       bool
	MissedChecks    int
	OldestPendingAt int64
}

// Store persists per-connector buffers. BeginFlush must atomically
// acquire the connector's flush lock and claim a FIFO prefix, failing
// when the lock is already held.
type Store interface {
	Append(ctx context.Context, connectorID string, eventIDs []string) error
	State(ctx context.Context, connectorID string) (State, error)
	IncrementMissedChecks(ctx context.Context, connectorID string) error
	BeginFlush(ctx context.Context, connectorID string, max int) ([]string, error)
	EndFlush(ctx context.Context, connectorID string, flushed []string) error
}

// Decision is the outcome of a scheduled buffer evaluation.
type Decision int

const (
	// DecisionNone leaves the buffer accumulating.
	DecisionNone Decision = iota

	// DecisionFlushSize flushes because a full batch is pending.
	DecisionFlushSize

	// DecisionFlushStale flushes a partial batch that sat through the
	// staleness threshold of checks.
	DecisionFlushStale

	// DecisionFlushAge flushes because the oldest pending event exceeded
	// the configured maximum age.
	DecisionFlushAge
)

// String returns the trigger name for logging.
func (d Decision) String() string {
	switch d {
	case DecisionNone:
		return "none"
	case DecisionFlushSize:
		return "size"
	case DecisionFlushStale:
		return "stale"
	case DecisionFlushAge:
		return "age"
	default:
		return fmt.Sprintf("decision(%d)", int(d))
	}
}

// Flush reports whether the decision triggers a flush.
func (d Decision) Flush() bool {
	return d != DecisionNone
}

// Config holds the per-connector batching parameters.
type Config struct {
	// MaxEvents is the batch size. A full batch flushes immediately on
	// the next check. Must be positive.
	MaxEvents int

	// StalenessChecks is the number of checks a partial batch may sit
	// through before it is flushed regardless of size. Zero means the
	// default (3).
	StalenessChecks int

	// MaxAge flushes a partial batch once its oldest event has waited
	// this long, independent of the check counter. Zero disables the
	// age trigger.
	MaxAge time.Duration
}

// Validate checks the batching parameters eagerly.
func (c Config) Validate() error {
	if c.MaxEvents <= 0 {
		return fmt.Errorf("max_events_per_batch must be positive, got %d", c.MaxEvents)
	}
	if c.StalenessChecks < 0 {
		return fmt.Errorf("staleness_checks must be positive, got %d", c.StalenessChecks)
	}
	if c.MaxAge < 0 {
		return fmt.Errorf("max_staleness must be positive, got %s", c.MaxAge)
	}
	return nil
}

// Scheduler evaluates one connector's buffer on each scheduled check and
// brackets flush attempts with the storage-level lock.
type Scheduler struct {
	cfg     Config
	store   Store
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewScheduler creates a Scheduler. metrics may be nil to disable
// instrumentation.
func NewScheduler(cfg Config, store Store, metrics *observability.Metrics, logger *slog.Logger) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.StalenessChecks == 0 {
		cfg.StalenessChecks = DefaultStalenessChecks
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cfg:     cfg,
		store:   store,
		metrics: metrics,
		logger:  logger.With("component", "buffer"),
	}, nil
}

// Receive appends freshly created event ids to the pending queue.
func (s *Scheduler) Receive(ctx context.Context, connectorID string, eventIDs []string) error {
	return s.store.Append(ctx, connectorID, eventIDs)
}

// Evaluate inspects the buffer on a scheduled check and decides whether
// to flush. A partial batch increments the staleness counter; the check
// that finds the counter already at the threshold flushes instead, so a
// threshold of 3 flushes on the fourth consecutive partial check. An
// in-flight flush always yields DecisionNone and leaves the counter
// untouched.
func (s *Scheduler) Evaluate(ctx context.Context, connectorID string, now time.Time) (Decision, error) {
	st, err := s.store.State(ctx, connectorID)
	if err != nil {
		return DecisionNone, fmt.Errorf("buffer state: %w", err)
	}

	if st.Pending == 0 || st.InProcess {
		return DecisionNone, nil
	}

	if st.Pending >= s.cfg.MaxEvents {
		return DecisionFlushSize, nil
	}

	if st.MissedChecks >= s.cfg.StalenessChecks {
		if s.metrics != nil {
			s.metrics.StaleFlushes.Add(ctx, 1)
		}
		return DecisionFlushStale, nil
	}

	if s.cfg.MaxAge > 0 && st.OldestPendingAt > 0 {
		age := now.Sub(time.UnixMilli(st.OldestPendingAt))
		if age >= s.cfg.MaxAge {
			if s.metrics != nil {
				s.metrics.StaleFlushes.Add(ctx, 1)
			}
			return DecisionFlushAge, nil
		}
	}

	if err := s.store.IncrementMissedChecks(ctx, connectorID); err != nil {
		return DecisionNone, fmt.Errorf("increment missed checks: %w", err)
	}

	s.logger.Debug("batch accumulating",
		"connector_id", connectorID,
		"pending", st.Pending,
		"missed_checks", st.MissedChecks+1,
	)

	return DecisionNone, nil
}

// Begin acquires the connector's flush lock and claims up to one batch of
// pending event ids. Claimed ids stay queued behind the lock until End
// dequeues them; the caller owns their delivery in the meantime.
func (s *Scheduler) Begin(ctx context.Context, connectorID string) ([]string, error) {
	ids, err := s.store.BeginFlush(ctx, connectorID, s.cfg.MaxEvents)
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.BatchSize.Record(ctx, int64(len(ids)))
	}
	return ids, nil
}

// End dequeues the claimed ids, releases the flush lock, and resets the
// staleness counter. It must run on every path out of a flush, success
// or failure.
func (s *Scheduler) End(ctx context.Context, connectorID string, flushed []string) error {
	return s.store.EndFlush(ctx, connectorID, flushed)
}
