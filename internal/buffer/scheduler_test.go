package buffer

import (
	"context"
	"errors"
	"testing"
	"time"
)

// fakeStore is an in-memory Store tracking the same state the SQL
// repository would.
type fakeStore struct {
	pending    []string
	inProcess  bool
	missed     int
	oldest     int64
	stateErr   error
	lockErr    error
	increments int
}

func (f *fakeStore) Append(_ context.Context, _ string, eventIDs []string) error {
	if len(f.pending) == 0 && len(eventIDs) > 0 && f.oldest == 0 {
		f.oldest = time.Now().UnixMilli()
	}
	f.pending = append(f.pending, eventIDs...)
	return nil
}

func (f *fakeStore) State(_ context.Context, connectorID string) (State, error) {
	if f.stateErr != nil {
		return State{}, f.stateErr
	}
	return State{
		Pending:         len(f.pending),
		InProcess:       f.inProcess,
		MissedChecks:    f.missed,
		OldestPendingAt: f.oldest,
	}, nil
}

func (f *fakeStore) IncrementMissedChecks(_ context.Context, _ string) error {
	f.missed++
	f.increments++
	return nil
}

func (f *fakeStore) BeginFlush(_ context.Context, _ string, max int) ([]string, error) {
	if f.lockErr != nil {
		return nil, f.lockErr
	}
	if f.inProcess {
		return nil, errors.New("flush already in progress")
	}
	f.inProcess = true
	n := max
	if n > len(f.pending) {
		n = len(f.pending)
	}
	return f.pending[:n], nil
}

func (f *fakeStore) EndFlush(_ context.Context, _ string, flushed []string) error {
	remaining := make([]string, 0, len(f.pending))
	for _, id := range f.pending {
		keep := true
		for _, done := range flushed {
			if id == done {
				keep = false
				break
			}
		}
		if keep {
			remaining = append(remaining, id)
		}
	}
	f.pending = remaining
	f.inProcess = false
	f.missed = 0
	if len(f.pending) == 0 {
		f.oldest = 0
	}
	return nil
}

func newTestScheduler(t *testing.T, cfg Config, st Store) *Scheduler {
	t.Helper()
	s, err := NewScheduler(cfg, st, nil, nil)
	if err != nil {
		t.Fatalf("NewScheduler() error = %v", err)
	}
	return s
}

func TestConfig_Validate(t *testing.T) {
	if err := (Config{MaxEvents: 0}).Validate(); err == nil {
		t.Error("Validate() = nil for zero batch size, want error")
	}
	if err := (Config{MaxEvents: 50, StalenessChecks: -1}).Validate(); err == nil {
		t.Error("Validate() = nil for negative staleness, want error")
	}
	if err := (Config{MaxEvents: 50}).Validate(); err != nil {
		t.Errorf("Validate() = %v for valid config, want nil", err)
	}
}

func TestEvaluate_EmptyBufferDoesNothing(t *testing.T) {
	st := &fakeStore{}
	s := newTestScheduler(t, Config{MaxEvents: 10}, st)

	d, err := s.Evaluate(context.Background(), "conn-1", time.Now())
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if d != DecisionNone {
		t.Errorf("Evaluate() = %v on empty buffer, want none", d)
	}
	if st.increments != 0 {
		t.Errorf("missed checks incremented %d times on empty buffer, want 0", st.increments)
	}
}

func TestEvaluate_FullBatchFlushes(t *testing.T) {
	st := &fakeStore{pending: []string{"a", "b", "c"}}
	s := newTestScheduler(t, Config{MaxEvents: 3}, st)

	d, err := s.Evaluate(context.Background(), "conn-1", time.Now())
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if d != DecisionFlushSize {
		t.Errorf("Evaluate() = %v with a full batch, want size flush", d)
	}
}

func TestEvaluate_StalenessFlushesOnFourthCheck(t *testing.T) {
	// Threshold 3: three consecutive partial checks bump the counter,
	// the fourth flushes.
	st := &fakeStore{pending: []string{"a"}}
	s := newTestScheduler(t, Config{MaxEvents: 10, StalenessChecks: 3}, st)
	ctx := context.Background()

	for check := 1; check <= 3; check++ {
		d, err := s.Evaluate(ctx, "conn-1", time.Now())
		if err != nil {
			t.Fatalf("check %d: Evaluate() error = %v", check, err)
		}
		if d != DecisionNone {
			t.Fatalf("check %d: Evaluate() = %v, want none while counter below threshold", check, d)
		}
	}
	if st.missed != 3 {
		t.Fatalf("missed checks = %d after three partial checks, want 3", st.missed)
	}

	d, err := s.Evaluate(ctx, "conn-1", time.Now())
	if err != nil {
		t.Fatalf("fourth check: Evaluate() error = %v", err)
	}
	if d != DecisionFlushStale {
		t.Errorf("fourth check: Evaluate() = %v, want stale flush", d)
	}
	if st.missed != 3 {
		t.Errorf("missed checks = %d on the flushing check, want counter left for EndFlush to reset", st.missed)
	}
}

func TestEvaluate_InFlightFlushLeavesCounterAlone(t *testing.T) {
	st := &fakeStore{pending: []string{"a"}, inProcess: true, missed: 2}
	s := newTestScheduler(t, Config{MaxEvents: 10}, st)

	d, err := s.Evaluate(context.Background(), "conn-1", time.Now())
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if d != DecisionNone {
		t.Errorf("Evaluate() = %v with flush in flight, want none", d)
	}
	if st.missed != 2 {
		t.Errorf("missed checks = %d, want unchanged while flush in flight", st.missed)
	}
}

func TestEvaluate_AgeTrigger(t *testing.T) {
	now := time.Now()
	st := &fakeStore{
		pending: []string{"a"},
		oldest:  now.Add(-2 * time.Hour).UnixMilli(),
	}
	s := newTestScheduler(t, Config{MaxEvents: 10, MaxAge: time.Hour}, st)

	d, err := s.Evaluate(context.Background(), "conn-1", now)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if d != DecisionFlushAge {
		t.Errorf("Evaluate() = %v for an over-age buffer, want age flush", d)
	}
}

func TestEvaluate_AgeDisabledByDefault(t *testing.T) {
	now := time.Now()
	st := &fakeStore{
		pending: []string{"a"},
		oldest:  now.Add(-240 * time.Hour).UnixMilli(),
	}
	s := newTestScheduler(t, Config{MaxEvents: 10}, st)

	d, err := s.Evaluate(context.Background(), "conn-1", now)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if d != DecisionNone {
		t.Errorf("Evaluate() = %v with age trigger disabled, want none", d)
	}
	if st.missed != 1 {
		t.Errorf("missed checks = %d, want 1", st.missed)
	}
}

func TestBeginEnd_ClaimsBatchAndResets(t *testing.T) {
	st := &fakeStore{pending: []string{"a", "b", "c", "d"}, missed: 3}
	s := newTestScheduler(t, Config{MaxEvents: 3}, st)
	ctx := context.Background()

	ids, err := s.Begin(ctx, "conn-1")
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	if len(ids) != 3 || ids[0] != "a" || ids[2] != "c" {
		t.Errorf("Begin() = %v, want FIFO prefix [a b c]", ids)
	}
	if !st.inProcess {
		t.Error("flush lock not held after Begin")
	}
	if len(st.pending) != 4 {
		t.Errorf("pending = %v after Begin, want claimed ids still queued", st.pending)
	}

	if err := s.End(ctx, "conn-1", ids); err != nil {
		t.Fatalf("End() error = %v", err)
	}
	if st.inProcess {
		t.Error("flush lock still held after End")
	}
	if st.missed != 0 {
		t.Errorf("missed checks = %d after End, want 0", st.missed)
	}
	if len(st.pending) != 1 || st.pending[0] != "d" {
		t.Errorf("pending = %v after flush, want [d]", st.pending)
	}
}

func TestBegin_PropagatesLockContention(t *testing.T) {
	wantErr := errors.New("flush in progress")
	st := &fakeStore{pending: []string{"a"}, lockErr: wantErr}
	s := newTestScheduler(t, Config{MaxEvents: 3}, st)

	if _, err := s.Begin(context.Background(), "conn-1"); !errors.Is(err, wantErr) {
		t.Errorf("Begin() error = %v, want lock contention to propagate", err)
	}
}
