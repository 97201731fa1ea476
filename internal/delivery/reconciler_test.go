package delivery

import (
	"context"
	"errors"
	"testing"

	"github.com/feedbridge/feedbridge/internal/notify"
)

// fakeSender returns a canned bulk response and records what it was
// asked to send.
type fakeSender struct {
	status  int
	body    []byte
	err     error
	sent    []map[string]interface{}
	oneSent map[string]interface{}
}

func (f *fakeSender) SendBulk(_ context.Context, records []map[string]interface{}) (int, []byte, error) {
	f.sent = records
	return f.status, f.body, f.err
}

func (f *fakeSender) Send(_ context.Context, record map[string]interface{}) (int, []byte, error) {
	f.oneSent = record
	return f.status, f.body, f.err
}

// fakeNotifier records every failure it is handed.
type fakeNotifier struct {
	failures []notify.Failure
	err      error
}

func (f *fakeNotifier) NotifyFailure(_ context.Context, failure notify.Failure) error {
	f.failures = append(f.failures, failure)
	return f.err
}

func testRecords() []Record {
	return []Record{
		{EventID: "ev-1", Fields: map[string]interface{}{"data_type": "nps", "score": 9.0}},
		{EventID: "ev-2", Fields: map[string]interface{}{"data_type": "nps", "score": 3.0}},
		{EventID: "ev-3", Fields: map[string]interface{}{"data_type": "csat", "score": "5"}},
	}
}

func TestDeliverBatch_PartialFailureNotifiesOnce(t *testing.T) {
	sender := &fakeSender{
		status: 200,
		body: []byte(`[
			{"status": 201, "body": {"id": "r-1"}},
			{"status": 422, "body": {"errors": ["dataset not found"]}},
			{"status": 201, "body": {"id": "r-3"}}
		]`),
	}
	notifier := &fakeNotifier{}
	r := NewReconciler("conn-1", "NPS survey", sender, notifier, nil, nil)

	outcomes := r.DeliverBatch(context.Background(), testRecords())

	if len(outcomes) != 3 {
		t.Fatalf("DeliverBatch() returned %d outcomes, want 3", len(outcomes))
	}
	wantClasses := []Class{ClassDelivered, ClassFailed, ClassDelivered}
	for i, want := range wantClasses {
		if outcomes[i].Class != want {
			t.Errorf("outcome[%d].Class = %v, want %v", i, outcomes[i].Class, want)
		}
	}
	if outcomes[1].Status != 422 {
		t.Errorf("outcome[1].Status = %d, want the per-record 422", outcomes[1].Status)
	}

	if len(notifier.failures) != 1 {
		t.Fatalf("notified %d failures, want exactly 1", len(notifier.failures))
	}
	if notifier.failures[0].EventID != "ev-2" {
		t.Errorf("notified event = %s, want ev-2", notifier.failures[0].EventID)
	}
	if notifier.failures[0].Status != 422 {
		t.Errorf("notified status = %d, want 422", notifier.failures[0].Status)
	}
}

func TestDeliverBatch_TransportErrorIsUniformTimeout(t *testing.T) {
	sender := &fakeSender{err: errors.New("context deadline exceeded")}
	notifier := &fakeNotifier{}
	r := NewReconciler("conn-1", "", sender, notifier, nil, nil)

	outcomes := r.DeliverBatch(context.Background(), testRecords())

	if len(outcomes) != 3 {
		t.Fatalf("DeliverBatch() returned %d outcomes, want 3", len(outcomes))
	}
	for i, out := range outcomes {
		if out.Status != StatusTimeout {
			t.Errorf("outcome[%d].Status = %d, want uniform %d", i, out.Status, StatusTimeout)
		}
		if out.Class != ClassUnknown {
			t.Errorf("outcome[%d].Class = %v, want unknown", i, out.Class)
		}
	}
	if len(notifier.failures) != 3 {
		t.Errorf("notified %d failures, want one per event", len(notifier.failures))
	}
}

func TestDeliverBatch_RejectedBatchIsUniform(t *testing.T) {
	sender := &fakeSender{status: 503, body: []byte("upstream unavailable")}
	r := NewReconciler("conn-1", "", sender, nil, nil, nil)

	outcomes := r.DeliverBatch(context.Background(), testRecords())

	for i, out := range outcomes {
		if out.Status != 503 || out.Class != ClassFailed {
			t.Errorf("outcome[%d] = %+v, want uniform 503 failure", i, out)
		}
		if out.Body != "upstream unavailable" {
			t.Errorf("outcome[%d].Body = %q, want the response body", i, out.Body)
		}
	}
}

func TestDeliverBatch_MalformedAcceptanceIsIndeterminate(t *testing.T) {
	tests := []struct {
		name string
		body []byte
	}{
		{"not json", []byte("<html>gateway error</html>")},
		{"wrong length", []byte(`[{"status": 201}]`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender := &fakeSender{status: 200, body: tt.body}
			r := NewReconciler("conn-1", "", sender, nil, nil, nil)

			outcomes := r.DeliverBatch(context.Background(), testRecords())
			for i, out := range outcomes {
				if out.Status != StatusTimeout || out.Class != ClassUnknown {
					t.Errorf("outcome[%d] = %+v, want uniform indeterminate", i, out)
				}
			}
		})
	}
}

func TestDeliverBatch_InvalidRecordsExcluded(t *testing.T) {
	sender := &fakeSender{status: 200, body: []byte(`[{"status": 201}]`)}
	r := NewReconciler("conn-1", "", sender, nil, nil, nil)

	records := []Record{
		{EventID: "ev-bad", Fields: map[string]interface{}{"data_type": "nps"}},
		{EventID: "ev-good", Fields: map[string]interface{}{"data_type": "nps", "score": 7.0}},
	}
	outcomes := r.DeliverBatch(context.Background(), records)

	if len(sender.sent) != 1 {
		t.Fatalf("submitted %d records, want 1 after exclusion", len(sender.sent))
	}
	if len(outcomes) != 1 || outcomes[0].EventID != "ev-good" {
		t.Fatalf("outcomes = %+v, want one outcome for ev-good", outcomes)
	}
}

func TestDeliverBatch_AllExcludedSendsNothing(t *testing.T) {
	sender := &fakeSender{status: 200}
	r := NewReconciler("conn-1", "", sender, nil, nil, nil)

	records := []Record{
		{EventID: "ev-bad", Fields: map[string]interface{}{"data_type": "csat", "score": "terrible"}},
	}
	outcomes := r.DeliverBatch(context.Background(), records)

	if outcomes != nil {
		t.Errorf("outcomes = %+v, want nil when nothing was sendable", outcomes)
	}
	if sender.sent != nil {
		t.Error("a fully excluded batch still reached the transport")
	}
}

func TestDeliverBatch_NotifierErrorDoesNotDisturbOutcomes(t *testing.T) {
	sender := &fakeSender{status: 500, body: []byte("boom")}
	notifier := &fakeNotifier{err: errors.New("webhook down")}
	r := NewReconciler("conn-1", "", sender, notifier, nil, nil)

	outcomes := r.DeliverBatch(context.Background(), testRecords())
	if len(outcomes) != 3 {
		t.Fatalf("DeliverBatch() returned %d outcomes, want 3 despite notifier errors", len(outcomes))
	}
}

func TestDeliverOne(t *testing.T) {
	t.Run("accepted", func(t *testing.T) {
		sender := &fakeSender{status: 201, body: []byte(`{"id": "r-1"}`)}
		r := NewReconciler("conn-1", "", sender, nil, nil, nil)

		out, sent := r.DeliverOne(context.Background(), Record{
			EventID: "ev-1",
			Fields:  map[string]interface{}{"data_type": "nps", "score": 10.0},
		})
		if !sent {
			t.Fatal("DeliverOne() sent = false, want true")
		}
		if out.Class != ClassDelivered || out.Status != 201 {
			t.Errorf("outcome = %+v, want delivered 201", out)
		}
	})

	t.Run("invalid record not sent", func(t *testing.T) {
		sender := &fakeSender{}
		r := NewReconciler("conn-1", "", sender, nil, nil, nil)

		_, sent := r.DeliverOne(context.Background(), Record{
			EventID: "ev-1",
			Fields:  map[string]interface{}{"data_type": "review"},
		})
		if sent {
			t.Error("DeliverOne() sent = true for an invalid record, want false")
		}
		if sender.oneSent != nil {
			t.Error("invalid record reached the transport")
		}
	})

	t.Run("transport error is indeterminate", func(t *testing.T) {
		sender := &fakeSender{err: errors.New("timeout")}
		r := NewReconciler("conn-1", "", sender, nil, nil, nil)

		out, sent := r.DeliverOne(context.Background(), Record{
			EventID: "ev-1",
			Fields:  map[string]interface{}{"comment": "hello"},
		})
		if !sent {
			t.Fatal("DeliverOne() sent = false, want true")
		}
		if out.Status != StatusTimeout || out.Class != ClassUnknown {
			t.Errorf("outcome = %+v, want indeterminate timeout", out)
		}
	})
}

func TestClassify(t *testing.T) {
	tests := []struct {
		status int
		want   Class
	}{
		{200, ClassDelivered},
		{201, ClassDelivered},
		{202, ClassFailed},
		{408, ClassUnknown},
		{422, ClassFailed},
		{500, ClassFailed},
	}
	for _, tt := range tests {
		if got := Classify(tt.status); got != tt.want {
			t.Errorf("Classify(%d) = %v, want %v", tt.status, got, tt.want)
		}
	}
}
