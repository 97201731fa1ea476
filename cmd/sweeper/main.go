// Command sweeper periodically removes deduplication tokens older than
// the retention window. It can run alongside feedbridged or as a
// scheduled one-shot job with SWEEP_ONCE=true.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v10"

	"github.com/feedbridge/feedbridge/internal/observability"
	"github.com/feedbridge/feedbridge/internal/store"
)

// Config holds sweeper configuration.
type Config struct {
	// LogLevel is the log level (debug, info, warn, error)
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// LogFormat is the log format (json, text)
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Interval between sweeps
	Interval time.Duration `env:"SWEEP_INTERVAL" envDefault:"1h"`

	// Retention is how long tokens stay eligible for matching
	Retention time.Duration `env:"SWEEP_RETENTION" envDefault:"2160h"`

	// Once runs a single sweep and exits
	Once bool `env:"SWEEP_ONCE" envDefault:"false"`

	// Storage configuration
	Store store.Config `envPrefix:""`
}

func main() {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		slog.Error("failed to parse config", "error", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	if cfg.Retention <= 0 {
		cfg.Retention = store.DefaultRetention
	}

	logger.Info("starting sweeper",
		"interval", cfg.Interval,
		"retention", cfg.Retention,
		"once", cfg.Once,
		"store_driver", cfg.Store.Driver,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	obs, err := observability.New("feedbridge-sweeper")
	if err != nil {
		logger.Error("failed to setup observability", "error", err)
		os.Exit(1)
	}
	metrics, err := observability.NewMetrics(obs.Meter())
	if err != nil {
		logger.Error("failed to create metrics", "error", err)
		os.Exit(1)
	}

	db, err := store.Open(cfg.Store)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	tokens := store.NewTokenRepository(db)

	sweep := func() {
		deleted, err := tokens.Cleanup(ctx, time.Now(), cfg.Retention)
		if err != nil {
			logger.Error("sweep failed", "error", err)
			return
		}
		metrics.TokensSwept.Add(ctx, deleted)
		logger.Info("sweep complete", "tokens_deleted", deleted)
	}

	sweep()
	if cfg.Once {
		logger.Info("sweeper done")
		return
	}

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case sig := <-sigCh:
			logger.Info("received shutdown signal", "signal", sig)
			return
		case <-ticker.C:
			sweep()
		}
	}
}

// setupLogger creates a logger based on configuration.
func setupLogger(level, format string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: logLevel,
	}

	var handler slog.Handler
	if format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
