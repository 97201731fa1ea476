// Package connector runs the per-connector pipeline: fetch or receive
// payloads, deduplicate, persist, and deliver immediately or through the
// batch buffer. All operations for one connector flow through a single
// owning goroutine, so a connector never races itself; the storage-level
// flush lock guards against other processes.
package connector

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/goccy/go-json"

	"github.com/feedbridge/feedbridge/internal/buffer"
	"github.com/feedbridge/feedbridge/internal/dedup"
	"github.com/feedbridge/feedbridge/internal/delivery"
	"github.com/feedbridge/feedbridge/internal/observability"
	"github.com/feedbridge/feedbridge/internal/store"
)

// ErrStopped is returned by Receive after the connector shut down.
var ErrStopped = errors.New("connector stopped")

// EventStore is the slice of event persistence the connector uses.
type EventStore interface {
	CreateWithToken(ctx context.Context, connectorID, payload, fingerprint string, expiresAt int64) (*store.Event, *store.Token, error)
	ListByIDs(ctx context.Context, ids []string) ([]store.Event, error)
}

// Deps carries the connector's collaborators. Dedup and Delivery are
// required; Buffer is required when batching is on; Source, Templater,
// Results, and Failures are optional.
type Deps struct {
	Dedup     *dedup.Module
	Buffer    *buffer.Scheduler
	Delivery  *delivery.Reconciler
	Events    EventStore
	Source    Source
	Templater Templater
	Results   ResultPublisher
	Failures  FailureSink
	Metrics   *observability.Metrics
	Logger    *slog.Logger
}

// Connector is the actor owning one connector's pipeline.
type Connector struct {
	cfg  Config
	deps Deps

	logger *slog.Logger

	ops    chan func()
	stopCh chan struct{}
	doneCh chan struct{}
}

// New creates a Connector. The configuration must pass Validate.
func New(cfg Config, deps Deps) (*Connector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.SendBatchEvents && deps.Buffer == nil {
		return nil, errors.New("batching connector needs a buffer scheduler")
	}
	if deps.Templater == nil {
		deps.Templater = IdentityTemplater{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Connector{
		cfg:    cfg,
		deps:   deps,
		logger: logger.With("module", "connector", "connector_id", cfg.ID),
		ops:    make(chan func(), 16),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}, nil
}

// ID returns the connector id.
func (c *Connector) ID() string {
	return c.cfg.ID
}

// Start launches the owning goroutine. Scheduled checks run on
// CheckInterval when it is positive; a purely push-driven connector only
// serves Receive calls.
func (c *Connector) Start(ctx context.Context) {
	go c.run(ctx)
	c.logger.Info("connector started",
		"mode", c.cfg.Mode,
		"batching", c.cfg.SendBatchEvents,
		"check_interval", c.cfg.CheckInterval,
	)
}

// Stop shuts the connector down and waits for the owning goroutine.
func (c *Connector) Stop() {
	close(c.stopCh)
	<-c.doneCh
	c.logger.Info("connector stopped")
}

func (c *Connector) run(ctx context.Context) {
	defer close(c.doneCh)

	var tick <-chan time.Time
	if c.cfg.CheckInterval > 0 {
		ticker := time.NewTicker(c.cfg.CheckInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-tick:
			c.check(ctx)
		case op := <-c.ops:
			op()
		}
	}
}

// Receive hands externally sourced payloads to the connector. It blocks
// until the owning goroutine has processed them and returns the ingest
// result.
func (c *Connector) Receive(ctx context.Context, payloads []map[string]interface{}) error {
	errCh := make(chan error, 1)
	select {
	case c.ops <- func() { errCh <- c.ingest(ctx, payloads) }:
	case <-ctx.Done():
		return ctx.Err()
	case <-c.stopCh:
		return ErrStopped
	}

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-c.stopCh:
		return ErrStopped
	}
}

// Check runs one scheduled invocation synchronously on the owning
// goroutine. Exposed for the fleet manager and tests; the ticker calls
// the same path.
func (c *Connector) Check(ctx context.Context) {
	done := make(chan struct{})
	select {
	case c.ops <- func() { c.check(ctx); close(done) }:
	case <-c.stopCh:
		return
	case <-ctx.Done():
		return
	}
	select {
	case <-done:
	case <-c.stopCh:
	case <-ctx.Done():
	}
}

// check is one scheduled invocation: poll the source if there is one,
// then evaluate the buffer.
func (c *Connector) check(ctx context.Context) {
	if c.deps.Metrics != nil {
		c.deps.Metrics.ConnectorChecks.Add(ctx, 1)
	}

	if c.deps.Source != nil {
		payloads, err := c.deps.Source.Fetch(ctx)
		if err != nil {
			c.logger.Error("source fetch failed", "error", err)
		} else if err := c.ingest(ctx, payloads); err != nil {
			c.logger.Error("ingest failed", "error", err)
		}
	}

	if !c.cfg.SendBatchEvents {
		return
	}

	decision, err := c.deps.Buffer.Evaluate(ctx, c.cfg.ID, time.Now())
	if err != nil {
		c.logger.Error("buffer evaluation failed", "error", err)
		return
	}
	if decision.Flush() {
		c.flush(ctx, decision)
	}
}

// ingest runs payloads through dedup, persists survivors with their
// tokens, and either buffers or delivers them.
func (c *Connector) ingest(ctx context.Context, payloads []map[string]interface{}) error {
	if len(payloads) == 0 {
		return nil
	}
	if c.deps.Metrics != nil {
		c.deps.Metrics.PayloadsFetched.Add(ctx, int64(len(payloads)))
	}

	kept, err := c.deps.Dedup.FilterPayloads(ctx, c.cfg.ID, payloads)
	if err != nil {
		return err
	}
	if len(kept) == 0 {
		return nil
	}

	var expiresAt int64
	if c.cfg.EventTTL > 0 {
		expiresAt = time.Now().Add(c.cfg.EventTTL).UnixMilli()
	}

	eventIDs := make([]string, 0, len(kept))
	created := make([]*store.Event, 0, len(kept))
	for _, cand := range kept {
		payload, err := json.Marshal(cand.Payload)
		if err != nil {
			return err
		}
		ev, _, err := c.deps.Events.CreateWithToken(ctx, c.cfg.ID, string(payload), cand.Fingerprint, expiresAt)
		if err != nil {
			return err
		}
		eventIDs = append(eventIDs, ev.ID)
		created = append(created, ev)
	}
	if c.deps.Metrics != nil {
		c.deps.Metrics.EventsCreated.Add(ctx, int64(len(eventIDs)))
	}

	if c.cfg.SendBatchEvents {
		return c.deps.Buffer.Receive(ctx, c.cfg.ID, eventIDs)
	}

	outcomes := make([]delivery.Outcome, 0, len(created))
	for _, ev := range created {
		rec, err := c.record(*ev)
		if err != nil {
			c.logger.Error("record build failed", "event_id", ev.ID, "error", err)
			continue
		}
		outcome, sent := c.deps.Delivery.DeliverOne(ctx, rec)
		if sent {
			c.emit(ctx, outcome)
			outcomes = append(outcomes, outcome)
		}
	}
	c.archive(ctx, outcomes)
	return nil
}

// flush claims one batch, delivers it, and emits the outcomes. The lock
// is always released, whatever the delivery did.
func (c *Connector) flush(ctx context.Context, decision buffer.Decision) {
	ids, err := c.deps.Buffer.Begin(ctx, c.cfg.ID)
	if err != nil {
		if errors.Is(err, store.ErrFlushInProgress) {
			c.logger.Debug("flush already in progress")
			return
		}
		c.logger.Error("flush begin failed", "error", err)
		return
	}
	defer func() {
		if err := c.deps.Buffer.End(ctx, c.cfg.ID, ids); err != nil {
			c.logger.Error("flush end failed", "error", err)
		}
	}()

	if len(ids) == 0 {
		return
	}

	events, err := c.deps.Events.ListByIDs(ctx, ids)
	if err != nil {
		c.logger.Error("batch load failed", "error", err)
		return
	}

	records := make([]delivery.Record, 0, len(events))
	for _, ev := range events {
		rec, err := c.record(ev)
		if err != nil {
			c.logger.Error("record build failed", "event_id", ev.ID, "error", err)
			continue
		}
		records = append(records, rec)
	}

	c.logger.Info("flushing batch",
		"trigger", decision.String(),
		"claimed", len(ids),
		"records", len(records),
	)

	outcomes := c.deps.Delivery.DeliverBatch(ctx, records)
	for _, out := range outcomes {
		c.emit(ctx, out)
	}
	c.archive(ctx, outcomes)
}

// record unmarshals a stored event and shapes it for the destination.
func (c *Connector) record(ev store.Event) (delivery.Record, error) {
	var payload map[string]interface{}
	if err := json.Unmarshal([]byte(ev.Payload), &payload); err != nil {
		return delivery.Record{}, err
	}
	fields, err := c.deps.Templater.BuildRecord(payload)
	if err != nil {
		return delivery.Record{}, err
	}
	return delivery.Record{EventID: ev.ID, Fields: fields}, nil
}

// archive hands the batch's outcomes to the failure sink, which keeps
// only the non-delivered ones. Archive failures never fail the flush.
func (c *Connector) archive(ctx context.Context, outcomes []delivery.Outcome) {
	if c.deps.Failures == nil || len(outcomes) == 0 {
		return
	}
	if err := c.deps.Failures.ArchiveFailures(ctx, c.cfg.ID, outcomes); err != nil {
		c.logger.Warn("failure archive failed", "error", err)
	}
}

// emit publishes the outcome when result emission is on. Publish
// failures are logged; the outcome itself is already settled.
func (c *Connector) emit(ctx context.Context, out delivery.Outcome) {
	if !c.cfg.EmitEvents || c.deps.Results == nil {
		return
	}
	if err := c.deps.Results.PublishResult(ctx, c.cfg.ID, out.EventID, out.Status, out.Body); err != nil {
		c.logger.Warn("result publish failed",
			"event_id", out.EventID,
			"status", out.Status,
			"error", err,
		)
	}
}
