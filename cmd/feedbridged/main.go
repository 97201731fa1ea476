// Command feedbridged runs the connector fleet daemon: it loads the
// fleet configuration, wires each connector's dedup, buffer, and
// delivery pipeline, and serves the HTTP gateway (payload ingestion,
// admin keys, metrics, health).
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/feedbridge/feedbridge/internal/archive"
	"github.com/feedbridge/feedbridge/internal/auth"
	"github.com/feedbridge/feedbridge/internal/buffer"
	"github.com/feedbridge/feedbridge/internal/config"
	"github.com/feedbridge/feedbridge/internal/connector"
	"github.com/feedbridge/feedbridge/internal/dedup"
	"github.com/feedbridge/feedbridge/internal/delivery"
	"github.com/feedbridge/feedbridge/internal/gateway"
	"github.com/feedbridge/feedbridge/internal/notify"
	"github.com/feedbridge/feedbridge/internal/observability"
	"github.com/feedbridge/feedbridge/internal/relay"
	"github.com/feedbridge/feedbridge/internal/store"
)

// redeliveryGuardCapacity sizes each bloom filter in the consume-side
// redelivery guard.
const redeliveryGuardCapacity = 100_000

// Config holds all daemon configuration.
type Config struct {
	// LogLevel is the log level (debug, info, warn, error)
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// LogFormat is the log format (json, text)
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// FleetConfig is the path to the connector fleet YAML
	FleetConfig string `env:"FLEET_CONFIG" envDefault:"connectors.yaml"`

	// HTTP gateway configuration
	Gateway gateway.Config `envPrefix:""`

	// Storage configuration
	Store store.Config `envPrefix:""`

	// NATS configuration
	NATS relay.Config `envPrefix:""`

	// Destination transport configuration
	Transport delivery.TransportConfig `envPrefix:""`

	// Failure notification webhook configuration
	Webhook notify.WebhookConfig `envPrefix:""`

	// Failure archive configuration
	Archive archive.Config `envPrefix:""`
}

func main() {
	// Load configuration from environment
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		slog.Error("failed to parse config", "error", err)
		os.Exit(1)
	}

	// Setup logger
	logger := setupLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	logger.Info("starting feedbridged",
		"log_level", cfg.LogLevel,
		"http_addr", cfg.Gateway.Addr,
		"fleet_config", cfg.FleetConfig,
		"store_driver", cfg.Store.Driver,
		"nats_url", cfg.NATS.URL,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup signal handling
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Setup observability
	obs, err := observability.New("feedbridge")
	if err != nil {
		logger.Error("failed to setup observability", "error", err)
		os.Exit(1)
	}
	metrics, err := observability.NewMetrics(obs.Meter())
	if err != nil {
		logger.Error("failed to create metrics", "error", err)
		os.Exit(1)
	}

	// Open storage and build repositories
	db, err := store.Open(cfg.Store)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	events := store.NewEventRepository(db)
	tokens := store.NewTokenRepository(db)
	buffers := store.NewBufferRepository(db)

	// Connect to NATS and ensure the event stream
	natsClient, err := relay.NewClient(ctx, cfg.NATS, logger)
	if err != nil {
		logger.Error("failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer natsClient.Close()

	streamMgr := relay.NewStreamManager(natsClient.JetStream(), cfg.NATS.Stream, logger)
	stream, err := streamMgr.EnsureStream(ctx)
	if err != nil {
		logger.Error("failed to ensure stream", "error", err)
		os.Exit(1)
	}

	publisher := relay.NewPublisher(natsClient.JetStream(), metrics, logger)

	// Failure notifier: webhook when configured, log otherwise
	var notifier notify.Notifier
	if cfg.Webhook.URL != "" {
		notifier, err = notify.NewWebhookNotifier(cfg.Webhook, logger)
		if err != nil {
			logger.Error("failed to create webhook notifier", "error", err)
			os.Exit(1)
		}
	} else {
		notifier = notify.NewLogNotifier(logger)
	}

	// Failure archive (optional)
	var failureSink connector.FailureSink
	if cfg.Archive.Enabled {
		s3Client, err := archive.NewS3Client(ctx, cfg.Archive.S3, logger)
		if err != nil {
			logger.Error("failed to create archive S3 client", "error", err)
			os.Exit(1)
		}
		if err := s3Client.EnsureBucket(ctx); err != nil {
			logger.Error("failed to ensure archive bucket", "error", err)
			os.Exit(1)
		}
		failureSink, err = archive.NewArchiver(cfg.Archive, s3Client, metrics, logger)
		if err != nil {
			logger.Error("failed to create archiver", "error", err)
			os.Exit(1)
		}
	}

	// Load the fleet configuration and build each connector
	connectorCfgs, err := config.LoadFleet(cfg.FleetConfig)
	if err != nil {
		logger.Error("failed to load fleet config", "error", err)
		os.Exit(1)
	}

	fleet := connector.NewFleet(logger)
	var consumers []jetstream.ConsumeContext

	for _, cc := range connectorCfgs {
		conn, err := buildConnector(cc, cfg, events, tokens, buffers, publisher, notifier, failureSink, metrics, logger)
		if err != nil {
			logger.Error("failed to build connector", "connector_id", cc.ID, "error", err)
			os.Exit(1)
		}
		if err := fleet.Add(conn); err != nil {
			logger.Error("failed to register connector", "connector_id", cc.ID, "error", err)
			os.Exit(1)
		}

		// Feed the connector from its inbound relay subject
		consumer, err := streamMgr.EnsureConsumer(ctx, stream, relay.ConsumerForConnector(cc.ID))
		if err != nil {
			logger.Error("failed to ensure consumer", "connector_id", cc.ID, "error", err)
			os.Exit(1)
		}
		guard := relay.NewRedeliveryGuard(cfg.NATS.Stream.DedupeWindow, redeliveryGuardCapacity, 0.01)
		receiver := relay.NewReceiver(consumer, guard, metrics, logger)
		consumeCtx, err := receiver.Start(ctx, func(ctx context.Context, msg relay.InboundMessage) error {
			return conn.Receive(ctx, []map[string]interface{}{msg.Payload})
		})
		if err != nil {
			logger.Error("failed to start receiver", "connector_id", cc.ID, "error", err)
			os.Exit(1)
		}
		consumers = append(consumers, consumeCtx)
	}

	fleet.Start(ctx)
	logger.Info("fleet started", "connectors", len(fleet.IDs()))

	// HTTP gateway: payload ingestion, admin keys, metrics, health
	authModule := auth.New(db, logger)
	ingestSvc := gateway.NewIngestService(publisher, cfg.Gateway.MaxPayloadsPerRequest, logger)
	server := gateway.NewServer(cfg.Gateway, ingestSvc, authModule, natsClient, obs.MetricsHandler(), metrics, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	// Wait for shutdown signal or error
	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "error", err)
		}
	}

	// Graceful shutdown
	logger.Info("initiating graceful shutdown")

	for _, consumeCtx := range consumers {
		consumeCtx.Stop()
	}
	fleet.Stop()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if err := natsClient.Shutdown(shutdownCtx); err != nil {
		logger.Error("relay shutdown error", "error", err)
	}
	if err := obs.Shutdown(shutdownCtx); err != nil {
		logger.Error("observability shutdown error", "error", err)
	}

	logger.Info("feedbridged stopped")
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

// buildConnector wires one connector's pipeline from its fleet entry.
func buildConnector(
	cc connector.Config,
	cfg Config,
	events *store.EventRepository,
	tokens *store.TokenRepository,
	buffers *store.BufferRepository,
	publisher *relay.Publisher,
	notifier notify.Notifier,
	failureSink connector.FailureSink,
	metrics *observability.Metrics,
	logger *slog.Logger,
) (*connector.Connector, error) {
	connLogger := logger.With("connector_id", cc.ID)

	var keepAlive dedup.KeepAlive
	if cc.KeepAliveOnDuplicate {
		keepAlive = dedup.NewEventKeepAlive(events, cc.EventTTL)
	}

	deduper, err := dedup.New(cc.DedupConfig(), dedup.NewStoreTokenSource(tokens), keepAlive, metrics, connLogger)
	if err != nil {
		return nil, err
	}

	var scheduler *buffer.Scheduler
	if cc.SendBatchEvents {
		scheduler, err = buffer.NewScheduler(buffer.Config{
			MaxEvents:       cc.MaxEventsPerBatch,
			StalenessChecks: cc.StalenessChecks,
			MaxAge:          cc.MaxStaleness,
		}, buffer.NewRepositoryStore(buffers), metrics, connLogger)
		if err != nil {
			return nil, err
		}
	}

	sender, err := delivery.NewClient(cfg.Transport, connLogger)
	if err != nil {
		return nil, err
	}
	reconciler := delivery.NewReconciler(cc.ID, cc.Name, sender, notifier, metrics, connLogger)

	return connector.New(cc, connector.Deps{
		Dedup:    deduper,
		Buffer:   scheduler,
		Delivery: reconciler,
		Events:   events,
		Results:  publisher,
		Failures: failureSink,
		Metrics:  metrics,
		Logger:   logger,
	})
}
