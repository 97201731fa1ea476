package archive

import (
	"bytes"
	"fmt"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress"

	"github.com/feedbridge/feedbridge/internal/delivery"
)

// FailureRow is the flattened Parquet record for one failed delivery.
// Partition columns follow the Hive convention so the objects query
// cleanly from Athena or Trino.
type FailureRow struct {
	EventID     string `parquet:"event_id,snappy"`
	ConnectorID string `parquet:"connector_id,snappy,dict"`
	Status      int32  `parquet:"status,dict"`
	Class       string `parquet:"class,snappy,dict"`
	Body        string `parquet:"body,snappy,optional"`
	OccurredMS  int64  `parquet:"occurred_ms"`

	// Partition columns (for Hive partitioning)
	Year  int `parquet:"year,dict"`
	Month int `parquet:"month,dict"`
	Day   int `parquet:"day,dict"`
}

// FailureRowFromOutcome flattens one outcome at the given time.
func FailureRowFromOutcome(connectorID string, out delivery.Outcome, at time.Time) FailureRow {
	return FailureRow{
		EventID:     out.EventID,
		ConnectorID: connectorID,
		Status:      int32(out.Status),
		Class:       out.Class.String(),
		Body:        out.Body,
		OccurredMS:  at.UnixMilli(),
		Year:        at.Year(),
		Month:       int(at.Month()),
		Day:         at.Day(),
	}
}

// ParquetWriter serializes failure rows to Parquet bytes.
type ParquetWriter struct {
	compression string
}

// NewParquetWriter creates a ParquetWriter with the given compression
// codec name.
func NewParquetWriter(compression string) *ParquetWriter {
	return &ParquetWriter{compression: compression}
}

// Write writes a batch of failure rows to Parquet format and returns the bytes.
func (w *ParquetWriter) Write(rows []FailureRow) ([]byte, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("no rows to write")
	}

	var buf bytes.Buffer

	writer := parquet.NewGenericWriter[FailureRow](&buf,
		parquet.Compression(w.codec()),
		parquet.CreatedBy("feedbridge", "1.0.0", ""),
	)

	if _, err := writer.Write(rows); err != nil {
		return nil, fmt.Errorf("failed to write rows: %w", err)
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close writer: %w", err)
	}

	return buf.Bytes(), nil
}

// codec returns the compression codec based on config.
func (w *ParquetWriter) codec() compress.Codec {
	switch w.compression {
	case "snappy":
		return &parquet.Snappy
	case "gzip":
		return &parquet.Gzip
	case "zstd":
		return &parquet.Zstd
	case "none":
		return &parquet.Uncompressed
	default:
		return &parquet.Snappy
	}
}
