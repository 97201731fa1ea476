package archive

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/feedbridge/feedbridge/internal/delivery"
	"github.com/feedbridge/feedbridge/internal/observability"
)

func createTestMetrics(t *testing.T) *observability.Metrics {
	t.Helper()
	meter := noop.NewMeterProvider().Meter("test")
	metrics, err := observability.NewMetrics(meter)
	if err != nil {
		t.Fatalf("failed to create test metrics: %v", err)
	}
	return metrics
}

type fakeUploader struct {
	keys    []string
	objects [][]byte
	err     error
}

func (f *fakeUploader) Upload(_ context.Context, key string, data []byte) error {
	if f.err != nil {
		return f.err
	}
	f.keys = append(f.keys, key)
	f.objects = append(f.objects, data)
	return nil
}

func (f *fakeUploader) GenerateKey(connectorID string, at time.Time) string {
	return "failures/connector_id=" + connectorID + "/" + at.Format("2006/01/02") + "/failures_test.parquet"
}

func TestFailureRowFromOutcome(t *testing.T) {
	at := time.Date(2025, 3, 7, 9, 30, 0, 0, time.UTC)

	out := delivery.Outcome{
		EventID: "ev-42",
		Status:  422,
		Body:    `{"errors":["score is invalid"]}`,
		Class:   delivery.ClassFailed,
	}

	row := FailureRowFromOutcome("conn-1", out, at)

	if row.EventID != "ev-42" {
		t.Errorf("EventID = %q, want %q", row.EventID, "ev-42")
	}
	if row.ConnectorID != "conn-1" {
		t.Errorf("ConnectorID = %q, want %q", row.ConnectorID, "conn-1")
	}
	if row.Status != 422 {
		t.Errorf("Status = %d, want 422", row.Status)
	}
	if row.Class != "failed" {
		t.Errorf("Class = %q, want %q", row.Class, "failed")
	}
	if row.OccurredMS != at.UnixMilli() {
		t.Errorf("OccurredMS = %d, want %d", row.OccurredMS, at.UnixMilli())
	}
	if row.Year != 2025 || row.Month != 3 || row.Day != 7 {
		t.Errorf("partition = %d/%d/%d, want 2025/3/7", row.Year, row.Month, row.Day)
	}
}

func TestParquetWriterRoundTrip(t *testing.T) {
	at := time.Date(2025, 3, 7, 9, 30, 0, 0, time.UTC)

	rows := []FailureRow{
		FailureRowFromOutcome("conn-1", delivery.Outcome{EventID: "ev-1", Status: 422, Body: "bad", Class: delivery.ClassFailed}, at),
		FailureRowFromOutcome("conn-1", delivery.Outcome{EventID: "ev-2", Status: 408, Body: "Request timeout", Class: delivery.ClassUnknown}, at),
	}

	writer := NewParquetWriter("snappy")
	data, err := writer.Write(rows)
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if len(data) == 0 {
		t.Fatal("Write() returned empty data")
	}

	got, err := parquet.Read[FailureRow](bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("parquet.Read() error = %v", err)
	}
	if len(got) != len(rows) {
		t.Fatalf("read %d rows, want %d", len(got), len(rows))
	}
	for i := range rows {
		if got[i] != rows[i] {
			t.Errorf("row %d = %+v, want %+v", i, got[i], rows[i])
		}
	}
}

func TestParquetWriterEmptyBatch(t *testing.T) {
	writer := NewParquetWriter("snappy")
	if _, err := writer.Write(nil); err == nil {
		t.Error("expected error for empty batch")
	}
}

func TestParquetWriterUnknownCodecDefaults(t *testing.T) {
	rows := []FailureRow{
		FailureRowFromOutcome("conn-1", delivery.Outcome{EventID: "ev-1", Status: 500, Class: delivery.ClassFailed}, time.Now().UTC()),
	}

	writer := NewParquetWriter("bogus")
	data, err := writer.Write(rows)
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	got, err := parquet.Read[FailureRow](bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("parquet.Read() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("read %d rows, want 1", len(got))
	}
}

func TestArchiverSkipsDelivered(t *testing.T) {
	uploader := &fakeUploader{}
	archiver, err := NewArchiver(Config{Compression: "snappy"}, uploader, createTestMetrics(t), nil)
	if err != nil {
		t.Fatalf("NewArchiver() error = %v", err)
	}

	outcomes := []delivery.Outcome{
		{EventID: "ev-1", Status: 201, Class: delivery.ClassDelivered},
		{EventID: "ev-2", Status: 422, Body: "bad", Class: delivery.ClassFailed},
		{EventID: "ev-3", Status: 201, Class: delivery.ClassDelivered},
	}

	if err := archiver.ArchiveFailures(context.Background(), "conn-1", outcomes); err != nil {
		t.Fatalf("ArchiveFailures() error = %v", err)
	}

	if len(uploader.objects) != 1 {
		t.Fatalf("uploaded %d objects, want 1", len(uploader.objects))
	}
	if !strings.Contains(uploader.keys[0], "connector_id=conn-1") {
		t.Errorf("key = %q, want connector partition", uploader.keys[0])
	}

	data := uploader.objects[0]
	got, err := parquet.Read[FailureRow](bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("parquet.Read() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("archived %d rows, want 1", len(got))
	}
	if got[0].EventID != "ev-2" {
		t.Errorf("archived EventID = %q, want %q", got[0].EventID, "ev-2")
	}
}

func TestArchiverNoFailuresNoObject(t *testing.T) {
	uploader := &fakeUploader{}
	archiver, err := NewArchiver(Config{Compression: "snappy"}, uploader, createTestMetrics(t), nil)
	if err != nil {
		t.Fatalf("NewArchiver() error = %v", err)
	}

	outcomes := []delivery.Outcome{
		{EventID: "ev-1", Status: 200, Class: delivery.ClassDelivered},
	}

	if err := archiver.ArchiveFailures(context.Background(), "conn-1", outcomes); err != nil {
		t.Fatalf("ArchiveFailures() error = %v", err)
	}
	if len(uploader.objects) != 0 {
		t.Errorf("uploaded %d objects, want 0", len(uploader.objects))
	}
}

func TestNewArchiverRequiresUploader(t *testing.T) {
	if _, err := NewArchiver(Config{}, nil, nil, nil); err == nil {
		t.Error("expected error for nil uploader")
	}
}
