package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

// newTestDB opens a temporary SQLite database for testing.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	dir := t.TempDir()
	db, err := Open(Config{Driver: DriverSQLite, DSN: filepath.Join(dir, "test.db")})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRebind_Postgres(t *testing.T) {
	db := &DB{driver: DriverPostgres}
	got := db.Rebind("SELECT * FROM t WHERE a = ? AND b = ?")
	want := "SELECT * FROM t WHERE a = $1 AND b = $2"
	if got != want {
		t.Errorf("Rebind = %q, want %q", got, want)
	}
}

func TestRebind_SQLitePassThrough(t *testing.T) {
	db := &DB{driver: DriverSQLite}
	q := "SELECT * FROM t WHERE a = ?"
	if got := db.Rebind(q); got != q {
		t.Errorf("Rebind = %q, want unchanged", got)
	}
}

func TestTokenRecord_Validation(t *testing.T) {
	db := newTestDB(t)
	repo := NewTokenRepository(db)
	ctx := context.Background()

	tests := []struct {
		name                     string
		connectorID, eventID, fp string
		wantErr                  error
	}{
		{"missing connector", "", "ev-1", "abc", ErrConnectorIDRequired},
		{"missing event", "conn-1", "", "abc", ErrEventIDRequired},
		{"missing fingerprint", "conn-1", "ev-1", "", ErrFingerprintRequired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := repo.Record(ctx, tt.connectorID, tt.eventID, tt.fp)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Record() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestTokenRecent_OrderAndLimit(t *testing.T) {
	db := newTestDB(t)
	repo := NewTokenRepository(db)
	events := NewEventRepository(db)
	ctx := context.Background()

	var lastFP string
	for i := 0; i < 5; i++ {
		ev, err := events.Create(ctx, "conn-1", `{"n":1}`, 0)
		if err != nil {
			t.Fatalf("Create event: %v", err)
		}
		tok, err := repo.Record(ctx, "conn-1", ev.ID, "fp-"+ev.ID)
		if err != nil {
			t.Fatalf("Record: %v", err)
		}
		lastFP = tok.Fingerprint
		// Millisecond timestamps tie easily; the secondary id sort keeps
		// order deterministic but give the clock a chance to move.
		time.Sleep(2 * time.Millisecond)
	}

	recent, err := repo.Recent(ctx, "conn-1", 3)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recent) != 3 {
		t.Fatalf("expected 3 tokens, got %d", len(recent))
	}
	if recent[0].Fingerprint != lastFP {
		t.Errorf("expected most recent token first, got %s", recent[0].Fingerprint)
	}

	// Zero or negative limits short-circuit.
	none, err := repo.Recent(ctx, "conn-1", 0)
	if err != nil {
		t.Fatalf("Recent(0): %v", err)
	}
	if len(none) != 0 {
		t.Errorf("expected no tokens for limit 0, got %d", len(none))
	}
}

func TestTokenRecent_ScopedToConnector(t *testing.T) {
	db := newTestDB(t)
	repo := NewTokenRepository(db)
	events := NewEventRepository(db)
	ctx := context.Background()

	ev, _ := events.Create(ctx, "conn-a", `{}`, 0)
	if _, err := repo.Record(ctx, "conn-a", ev.ID, "fp-a"); err != nil {
		t.Fatalf("Record: %v", err)
	}

	recent, err := repo.Recent(ctx, "conn-b", 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recent) != 0 {
		t.Errorf("expected no tokens for other connector, got %d", len(recent))
	}
}

func TestTokenCleanup_DeletesOnlyExpired(t *testing.T) {
	db := newTestDB(t)
	repo := NewTokenRepository(db)
	events := NewEventRepository(db)
	ctx := context.Background()

	ev, _ := events.Create(ctx, "conn-1", `{}`, 0)
	old, err := repo.Record(ctx, "conn-1", ev.ID, "fp-old")
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	// Backdate the first token past the retention window.
	fourMonthsAgo := time.Now().Add(-4 * 30 * 24 * time.Hour).UnixMilli()
	if _, err := db.Exec(`UPDATE dedup_tokens SET created_at = ? WHERE id = ?`, fourMonthsAgo, old.ID); err != nil {
		t.Fatalf("backdate: %v", err)
	}

	ev2, _ := events.Create(ctx, "conn-1", `{}`, 0)
	if _, err := repo.Record(ctx, "conn-1", ev2.ID, "fp-new"); err != nil {
		t.Fatalf("Record: %v", err)
	}

	expired, err := repo.Expired(ctx, time.Now(), DefaultRetention)
	if err != nil {
		t.Fatalf("Expired: %v", err)
	}
	if len(expired) != 1 || expired[0].Fingerprint != "fp-old" {
		t.Fatalf("expected exactly the backdated token expired, got %+v", expired)
	}

	deleted, err := repo.Cleanup(ctx, time.Now(), DefaultRetention)
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if deleted != 1 {
		t.Errorf("Cleanup deleted %d tokens, want 1", deleted)
	}

	remaining, err := repo.Recent(ctx, "conn-1", 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(remaining) != 1 || remaining[0].Fingerprint != "fp-new" {
		t.Errorf("expected only fp-new to remain, got %+v", remaining)
	}
}

func TestCreateWithToken_Atomic(t *testing.T) {
	db := newTestDB(t)
	events := NewEventRepository(db)
	tokens := NewTokenRepository(db)
	ctx := context.Background()

	ev, tok, err := events.CreateWithToken(ctx, "conn-1", `{"a":1}`, "fp-1", 0)
	if err != nil {
		t.Fatalf("CreateWithToken: %v", err)
	}
	if tok.EventID != ev.ID {
		t.Errorf("token event id = %s, want %s", tok.EventID, ev.ID)
	}

	recent, err := tokens.Recent(ctx, "conn-1", 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recent) != 1 {
		t.Fatalf("expected 1 token, got %d", len(recent))
	}

	// Missing fingerprint leaves no partial event behind.
	if _, _, err := events.CreateWithToken(ctx, "conn-1", `{"a":2}`, "", 0); !errors.Is(err, ErrFingerprintRequired) {
		t.Fatalf("CreateWithToken error = %v, want ErrFingerprintRequired", err)
	}
	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM events`).Scan(&count); err != nil {
		t.Fatalf("count events: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 event after failed create, got %d", count)
	}
}

func TestListByIDs_PreservesOrder(t *testing.T) {
	db := newTestDB(t)
	events := NewEventRepository(db)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		ev, err := events.Create(ctx, "conn-1", `{}`, 0)
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		ids = append(ids, ev.ID)
	}

	// Request in reverse order; results must follow the request order.
	req := []string{ids[2], ids[0], ids[1]}
	got, err := events.ListByIDs(ctx, req)
	if err != nil {
		t.Fatalf("ListByIDs: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 events, got %d", len(got))
	}
	for i, ev := range got {
		if ev.ID != req[i] {
			t.Errorf("position %d: got %s, want %s", i, ev.ID, req[i])
		}
	}
}

func TestBuffer_AppendAndState(t *testing.T) {
	db := newTestDB(t)
	buf := NewBufferRepository(db)
	ctx := context.Background()

	st, err := buf.State(ctx, "conn-1")
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if st.Pending != 0 || st.InProcess || st.MissedChecks != 0 {
		t.Fatalf("expected zero state, got %+v", st)
	}

	if err := buf.Append(ctx, "conn-1", []string{"ev-1", "ev-2"}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	st, err = buf.State(ctx, "conn-1")
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if st.Pending != 2 {
		t.Errorf("Pending = %d, want 2", st.Pending)
	}
	if st.OldestPendingAt == 0 {
		t.Error("expected oldest pending timestamp to be set")
	}
}

func TestBuffer_BeginFlushClaimsPrefix(t *testing.T) {
	db := newTestDB(t)
	buf := NewBufferRepository(db)
	ctx := context.Background()

	if err := buf.Append(ctx, "conn-1", []string{"ev-1", "ev-2", "ev-3"}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	batch, err := buf.BeginFlush(ctx, "conn-1", 2)
	if err != nil {
		t.Fatalf("BeginFlush: %v", err)
	}
	if len(batch) != 2 || batch[0] != "ev-1" || batch[1] != "ev-2" {
		t.Fatalf("batch = %v, want [ev-1 ev-2]", batch)
	}

	// The claimed ids stay queued behind the lock until EndFlush dequeues
	// them, so a crash mid-flush keeps the batch.
	pending, err := buf.PendingIDs(ctx, "conn-1")
	if err != nil {
		t.Fatalf("PendingIDs: %v", err)
	}
	if len(pending) != 3 {
		t.Fatalf("pending = %v, want claimed batch still queued", pending)
	}

	if err := buf.EndFlush(ctx, "conn-1", batch); err != nil {
		t.Fatalf("EndFlush: %v", err)
	}
	pending, err = buf.PendingIDs(ctx, "conn-1")
	if err != nil {
		t.Fatalf("PendingIDs: %v", err)
	}
	if len(pending) != 1 || pending[0] != "ev-3" {
		t.Fatalf("pending = %v after EndFlush, want [ev-3]", pending)
	}
}

func TestBuffer_InterruptedFlushKeepsClaimedBatch(t *testing.T) {
	db := newTestDB(t)
	buf := NewBufferRepository(db)
	ctx := context.Background()

	if err := buf.Append(ctx, "conn-1", []string{"ev-1", "ev-2"}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if _, err := buf.BeginFlush(ctx, "conn-1", 10); err != nil {
		t.Fatalf("BeginFlush: %v", err)
	}

	// A flush that never reaches EndFlush leaves the lock visibly held
	// and the batch intact.
	st, err := buf.State(ctx, "conn-1")
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if !st.InProcess {
		t.Error("expected lock held during interrupted flush")
	}
	if st.Pending != 2 {
		t.Errorf("Pending = %d, want 2 (claimed batch retained)", st.Pending)
	}
}

func TestBuffer_BeginFlushIsExclusive(t *testing.T) {
	db := newTestDB(t)
	buf := NewBufferRepository(db)
	ctx := context.Background()

	if err := buf.Append(ctx, "conn-1", []string{"ev-1"}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	claimed, err := buf.BeginFlush(ctx, "conn-1", 10)
	if err != nil {
		t.Fatalf("first BeginFlush: %v", err)
	}

	if _, err := buf.BeginFlush(ctx, "conn-1", 10); !errors.Is(err, ErrFlushInProgress) {
		t.Fatalf("second BeginFlush error = %v, want ErrFlushInProgress", err)
	}

	if err := buf.EndFlush(ctx, "conn-1", claimed); err != nil {
		t.Fatalf("EndFlush: %v", err)
	}

	// Lock released: a new flush may begin.
	if err := buf.Append(ctx, "conn-1", []string{"ev-2"}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if _, err := buf.BeginFlush(ctx, "conn-1", 10); err != nil {
		t.Fatalf("BeginFlush after EndFlush: %v", err)
	}
}

func TestBuffer_EndFlushKeepsLateArrivals(t *testing.T) {
	db := newTestDB(t)
	buf := NewBufferRepository(db)
	ctx := context.Background()

	if err := buf.Append(ctx, "conn-1", []string{"ev-1"}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	claimed, err := buf.BeginFlush(ctx, "conn-1", 10)
	if err != nil {
		t.Fatalf("BeginFlush: %v", err)
	}

	// An event arrives while the flush is in flight.
	if err := buf.Append(ctx, "conn-1", []string{"ev-late"}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := buf.IncrementMissedChecks(ctx, "conn-1"); err != nil {
		t.Fatalf("IncrementMissedChecks: %v", err)
	}

	if err := buf.EndFlush(ctx, "conn-1", claimed); err != nil {
		t.Fatalf("EndFlush: %v", err)
	}

	st, err := buf.State(ctx, "conn-1")
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if st.Pending != 1 {
		t.Errorf("Pending = %d, want 1 (late arrival kept)", st.Pending)
	}
	if st.MissedChecks != 0 {
		t.Errorf("MissedChecks = %d, want 0 after EndFlush", st.MissedChecks)
	}
	if st.InProcess {
		t.Error("expected lock released after EndFlush")
	}
	if st.OldestPendingAt == 0 {
		t.Error("expected oldest pending recomputed for late arrival")
	}
}
