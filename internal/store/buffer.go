package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// BufferState is the per-connector batch buffer snapshot. State is only
// ever mutated through the owning connector's invocations; no
// cross-connector sharing exists.
type BufferState struct {
	ConnectorID string

	// Pending is the number of buffered, not-yet-submitted event ids.
	Pending int

	// InProcess reports whether a flush holds the connector's lock.
	InProcess bool

	// MissedChecks counts scheduled invocations that saw pending events
	// but did not flush.
	MissedChecks int

	// OldestPendingAt is the Unix millisecond enqueue time of the oldest
	// pending event, or 0 when the buffer is empty.
	OldestPendingAt int64
}

// BufferRepository persists per-connector batch buffers. Event ids are
// kept FIFO: appended on receive, claimed as a prefix when a flush
// begins, and dequeued when the flush ends. A claimed id stays in the
// table behind the held lock, so a crash mid-flush retains the batch
// instead of losing it.
type BufferRepository struct {
	db *DB
}

// NewBufferRepository creates a BufferRepository on the given DB.
func NewBufferRepository(db *DB) *BufferRepository {
	return &BufferRepository{db: db}
}

// Append adds event ids to the connector's pending queue.
func (r *BufferRepository) Append(ctx context.Context, connectorID string, eventIDs []string) error {
	if len(eventIDs) == 0 {
		return nil
	}

	now := time.Now().UnixMilli()

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		r.db.Rebind(`INSERT INTO buffer_state (connector_id) VALUES (?) ON CONFLICT (connector_id) DO NOTHING`),
		connectorID,
	); err != nil {
		tx.Rollback()
		return fmt.Errorf("ensure buffer state: %w", err)
	}

	insert := r.db.Rebind(`INSERT INTO buffer_events (connector_id, event_id, enqueued_at) VALUES (?, ?, ?)`)
	for _, id := range eventIDs {
		if _, err := tx.ExecContext(ctx, insert, connectorID, id, now); err != nil {
			tx.Rollback()
			return fmt.Errorf("append event %s: %w", id, err)
		}
	}

	// Track the oldest pending enqueue time for age-based staleness.
	if _, err := tx.ExecContext(ctx,
		r.db.Rebind(`UPDATE buffer_state
		 SET oldest_pending_at = COALESCE(oldest_pending_at, ?)
		 WHERE connector_id = ?`),
		now, connectorID,
	); err != nil {
		tx.Rollback()
		return fmt.Errorf("update oldest pending: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	return nil
}

// State returns the connector's buffer snapshot. A connector that has
// never buffered anything gets a zero-value state.
func (r *BufferRepository) State(ctx context.Context, connectorID string) (BufferState, error) {
	st := BufferState{ConnectorID: connectorID}

	var (
		inProcess int
		oldest    sql.NullInt64
	)
	err := r.db.QueryRow(
		`SELECT in_process, missed_checks, oldest_pending_at FROM buffer_state WHERE connector_id = ?`,
		connectorID,
	).Scan(&inProcess, &st.MissedChecks, &oldest)
	if errors.Is(err, sql.ErrNoRows) {
		return st, nil
	}
	if err != nil {
		return st, fmt.Errorf("query buffer state: %w", err)
	}
	st.InProcess = inProcess != 0
	if oldest.Valid {
		st.OldestPendingAt = oldest.Int64
	}

	if err := r.db.QueryRow(
		`SELECT COUNT(*) FROM buffer_events WHERE connector_id = ?`,
		connectorID,
	).Scan(&st.Pending); err != nil {
		return st, fmt.Errorf("count pending: %w", err)
	}

	return st, nil
}

// PendingIDs returns the pending event ids in FIFO order.
func (r *BufferRepository) PendingIDs(ctx context.Context, connectorID string) ([]string, error) {
	rows, err := r.db.Query(
		`SELECT event_id FROM buffer_events WHERE connector_id = ? ORDER BY seq ASC`,
		connectorID,
	)
	if err != nil {
		return nil, fmt.Errorf("query pending: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan pending: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending: %w", err)
	}
	return ids, nil
}

// IncrementMissedChecks bumps the staleness counter. Called on scheduled
// invocations that found pending events but no reason to flush.
func (r *BufferRepository) IncrementMissedChecks(ctx context.Context, connectorID string) error {
	_, err := r.db.Exec(
		`UPDATE buffer_state SET missed_checks = missed_checks + 1 WHERE connector_id = ?`,
		connectorID,
	)
	if err != nil {
		return fmt.Errorf("increment missed checks: %w", err)
	}
	return nil
}

// BeginFlush atomically acquires the connector's flush lock and claims up
// to max pending event ids (FIFO prefix) in one transaction. The lock
// acquisition is a compare-and-set: concurrent workers racing on the same
// connector see ErrFlushInProgress rather than double-flushing. Claimed
// ids remain queued until EndFlush dequeues them, so a crash mid-flush
// leaves the lock visibly held with the batch still recoverable.
func (r *BufferRepository) BeginFlush(ctx context.Context, connectorID string, max int) ([]string, error) {
	if max <= 0 {
		return nil, fmt.Errorf("begin flush: max must be positive, got %d", max)
	}

	tx, err := r.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		r.db.Rebind(`UPDATE buffer_state SET in_process = 1 WHERE connector_id = ? AND in_process = 0`),
		connectorID,
	)
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		tx.Rollback()
		return nil, ErrFlushInProgress
	}

	rows, err := tx.QueryContext(ctx,
		r.db.Rebind(`SELECT event_id FROM buffer_events WHERE connector_id = ? ORDER BY seq ASC LIMIT ?`),
		connectorID, max,
	)
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("claim batch: %w", err)
	}

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			tx.Rollback()
			return nil, fmt.Errorf("scan batch: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		tx.Rollback()
		return nil, fmt.Errorf("iterate batch: %w", err)
	}
	rows.Close()

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	return ids, nil
}

// EndFlush dequeues the flushed ids, releases the flush lock, resets the
// staleness counter, and recomputes the oldest pending enqueue time from
// whatever arrived during the round-trip. The batch leaves the queue here
// whether it delivered or not; failed records are settled, not retried.
// Callers must invoke it on every flush path, including failures, or the
// connector wedges.
func (r *BufferRepository) EndFlush(ctx context.Context, connectorID string, flushed []string) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}

	if len(flushed) > 0 {
		placeholders := make([]string, len(flushed))
		args := make([]interface{}, 0, len(flushed)+1)
		args = append(args, connectorID)
		for i, id := range flushed {
			placeholders[i] = "?"
			args = append(args, id)
		}
		del := fmt.Sprintf(`DELETE FROM buffer_events WHERE connector_id = ? AND event_id IN (%s)`, strings.Join(placeholders, ","))
		if _, err := tx.ExecContext(ctx, r.db.Rebind(del), args...); err != nil {
			tx.Rollback()
			return fmt.Errorf("dequeue batch: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		r.db.Rebind(`UPDATE buffer_state
		 SET in_process = 0,
		     missed_checks = 0,
		     oldest_pending_at = (SELECT MIN(enqueued_at) FROM buffer_events WHERE connector_id = ?)
		 WHERE connector_id = ?`),
		connectorID, connectorID,
	); err != nil {
		tx.Rollback()
		return fmt.Errorf("end flush: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
