package gateway

import (
	"context"
	"errors"
	"testing"
)

// mockPublisher records published payloads and can fail selectively.
type mockPublisher struct {
	published []map[string]interface{}
	failIndex int // publish call index to fail, -1 for never
	calls     int
}

func newMockPublisher() *mockPublisher {
	return &mockPublisher{failIndex: -1}
}

func (m *mockPublisher) PublishPayload(_ context.Context, _ string, payload map[string]interface{}) error {
	idx := m.calls
	m.calls++
	if idx == m.failIndex {
		return errors.New("relay unavailable")
	}
	m.published = append(m.published, payload)
	return nil
}

func TestIngestAllAccepted(t *testing.T) {
	pub := newMockPublisher()
	svc := NewIngestService(pub, 100, nil)

	result, err := svc.Ingest(context.Background(), "survey-1", []map[string]interface{}{
		{"comment": "great"},
		{"comment": "meh"},
	})
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	if result.AcceptedCount != 2 || result.RejectedCount != 0 {
		t.Errorf("counts = %d/%d, want 2/0", result.AcceptedCount, result.RejectedCount)
	}
	if len(pub.published) != 2 {
		t.Errorf("published %d payloads, want 2", len(pub.published))
	}
	for i, pr := range result.Results {
		if pr.Status != "accepted" {
			t.Errorf("result[%d].Status = %q, want accepted", i, pr.Status)
		}
		if pr.Index != i {
			t.Errorf("result[%d].Index = %d", i, pr.Index)
		}
	}
}

func TestIngestPartialFailure(t *testing.T) {
	pub := newMockPublisher()
	pub.failIndex = 1
	svc := NewIngestService(pub, 100, nil)

	result, err := svc.Ingest(context.Background(), "survey-1", []map[string]interface{}{
		{"a": 1}, {"b": 2}, {"c": 3},
	})
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	if result.AcceptedCount != 2 || result.RejectedCount != 1 {
		t.Errorf("counts = %d/%d, want 2/1", result.AcceptedCount, result.RejectedCount)
	}
	if result.Results[1].Status != "rejected" || result.Results[1].Error == "" {
		t.Errorf("result[1] = %+v, want rejected with error", result.Results[1])
	}
	if result.Results[0].Status != "accepted" || result.Results[2].Status != "accepted" {
		t.Error("failure at index 1 should not affect the rest of the batch")
	}
}

func TestIngestNilPayloadRejected(t *testing.T) {
	pub := newMockPublisher()
	svc := NewIngestService(pub, 100, nil)

	result, err := svc.Ingest(context.Background(), "survey-1", []map[string]interface{}{
		nil,
		{"ok": true},
	})
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	if result.Results[0].Status != "rejected" {
		t.Errorf("nil payload status = %q, want rejected", result.Results[0].Status)
	}
	if result.AcceptedCount != 1 {
		t.Errorf("AcceptedCount = %d, want 1", result.AcceptedCount)
	}
	if len(pub.published) != 1 {
		t.Errorf("published %d payloads, want 1", len(pub.published))
	}
}

func TestIngestValidation(t *testing.T) {
	svc := NewIngestService(newMockPublisher(), 2, nil)
	ctx := context.Background()

	if _, err := svc.Ingest(ctx, "", []map[string]interface{}{{"a": 1}}); !errors.Is(err, ErrConnectorIDRequired) {
		t.Errorf("empty connector id: error = %v, want ErrConnectorIDRequired", err)
	}
	if _, err := svc.Ingest(ctx, "survey-1", nil); !errors.Is(err, ErrAtLeastOnePayload) {
		t.Errorf("empty batch: error = %v, want ErrAtLeastOnePayload", err)
	}
	if _, err := svc.Ingest(ctx, "survey-1", []map[string]interface{}{{}, {}, {}}); !errors.Is(err, ErrBatchTooLarge) {
		t.Errorf("oversized batch: error = %v, want ErrBatchTooLarge", err)
	}
}
