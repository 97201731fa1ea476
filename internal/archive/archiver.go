package archive

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/feedbridge/feedbridge/internal/delivery"
	"github.com/feedbridge/feedbridge/internal/observability"
)

// Uploader stores encoded Parquet objects.
type Uploader interface {
	Upload(ctx context.Context, key string, data []byte) error
	GenerateKey(connectorID string, at time.Time) string
}

// Archiver converts non-delivered outcomes into Parquet objects and
// uploads them.
type Archiver struct {
	writer   *ParquetWriter
	uploader Uploader
	metrics  *observability.Metrics
	logger   *slog.Logger
}

// NewArchiver creates an archiver using the given uploader.
func NewArchiver(cfg Config, uploader Uploader, metrics *observability.Metrics, logger *slog.Logger) (*Archiver, error) {
	if uploader == nil {
		return nil, fmt.Errorf("uploader is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Archiver{
		writer:   NewParquetWriter(cfg.Compression),
		uploader: uploader,
		metrics:  metrics,
		logger:   logger.With("component", "archiver"),
	}, nil
}

// ArchiveFailures writes one Parquet object holding every non-delivered
// outcome in the batch. Delivered outcomes are skipped. A batch with no
// failures produces no object.
func (a *Archiver) ArchiveFailures(ctx context.Context, connectorID string, outcomes []delivery.Outcome) error {
	now := time.Now().UTC()

	rows := make([]FailureRow, 0, len(outcomes))
	for _, out := range outcomes {
		if out.Class == delivery.ClassDelivered {
			continue
		}
		rows = append(rows, FailureRowFromOutcome(connectorID, out, now))
	}
	if len(rows) == 0 {
		return nil
	}

	data, err := a.writer.Write(rows)
	if err != nil {
		return fmt.Errorf("failed to encode failures: %w", err)
	}

	key := a.uploader.GenerateKey(connectorID, now)
	if err := a.uploader.Upload(ctx, key, data); err != nil {
		return fmt.Errorf("failed to archive failures: %w", err)
	}

	if a.metrics != nil {
		a.metrics.ArchiveObjects.Add(ctx, 1)
		a.metrics.ArchiveBytes.Record(ctx, int64(len(data)))
	}

	a.logger.Info("archived delivery failures",
		"connector_id", connectorID,
		"rows", len(rows),
		"key", key,
		"size_bytes", len(data),
	)

	return nil
}
