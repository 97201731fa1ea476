package observability

import (
	otelmetric "go.opentelemetry.io/otel/metric"
)

// Metrics holds all metric instruments used across feedbridge components.
// Instruments are created once at startup and shared with the connector
// runtime, the dedup engine, the delivery reconciler, and the sweeper.
type Metrics struct {
	// HTTP metrics (metrics/health server)
	HTTPRequestDuration otelmetric.Float64Histogram
	HTTPRequestTotal    otelmetric.Int64Counter
	HTTPRequestErrors   otelmetric.Int64Counter

	// Connector runtime metrics
	ConnectorChecks otelmetric.Int64Counter
	PayloadsFetched otelmetric.Int64Counter
	EventsCreated   otelmetric.Int64Counter

	// Deduplication metrics
	DedupDropped   otelmetric.Int64Counter
	DedupKeepAlive otelmetric.Int64Counter

	// Buffer and delivery metrics
	BatchSize        otelmetric.Int64Histogram
	FlushLatency     otelmetric.Float64Histogram
	StaleFlushes     otelmetric.Int64Counter
	DeliverySuccess  otelmetric.Int64Counter
	DeliveryFailure  otelmetric.Int64Counter
	DeliveryTimeouts otelmetric.Int64Counter

	// Notification metrics
	NotificationsSent otelmetric.Int64Counter

	// Relay metrics
	RelayPublished           otelmetric.Int64Counter
	RelayRedeliveriesDropped otelmetric.Int64Counter

	// Maintenance metrics
	TokensSwept    otelmetric.Int64Counter
	ArchiveObjects otelmetric.Int64Counter
	ArchiveBytes   otelmetric.Int64Histogram
}

// NewMetrics creates all metric instruments from the given Meter.
// Each instrument is created with a descriptive name, unit, and description
// following OpenTelemetry semantic conventions.
func NewMetrics(meter otelmetric.Meter) (*Metrics, error) {
	var m Metrics
	var err error

	// HTTP metrics
	m.HTTPRequestDuration, err = meter.Float64Histogram(
		"http.request.duration",
		otelmetric.WithUnit("ms"),
		otelmetric.WithDescription("HTTP request duration in milliseconds"),
	)
	if err != nil {
		return nil, err
	}

	m.HTTPRequestTotal, err = meter.Int64Counter(
		"http.request.total",
		otelmetric.WithDescription("Total HTTP requests"),
	)
	if err != nil {
		return nil, err
	}

	m.HTTPRequestErrors, err = meter.Int64Counter(
		"http.request.errors",
		otelmetric.WithDescription("HTTP request errors (4xx and 5xx)"),
	)
	if err != nil {
		return nil, err
	}

	// Connector runtime metrics
	m.ConnectorChecks, err = meter.Int64Counter(
		"connector.checks",
		otelmetric.WithDescription("Scheduled connector check invocations"),
	)
	if err != nil {
		return nil, err
	}

	m.PayloadsFetched, err = meter.Int64Counter(
		"connector.payloads.fetched",
		otelmetric.WithDescription("Candidate payloads fetched from sources"),
	)
	if err != nil {
		return nil, err
	}

	m.EventsCreated, err = meter.Int64Counter(
		"connector.events.created",
		otelmetric.WithDescription("Events stored after deduplication"),
	)
	if err != nil {
		return nil, err
	}

	// Deduplication metrics
	m.DedupDropped, err = meter.Int64Counter(
		"dedup.dropped",
		otelmetric.WithDescription("Duplicate payloads dropped"),
	)
	if err != nil {
		return nil, err
	}

	m.DedupKeepAlive, err = meter.Int64Counter(
		"dedup.keepalive",
		otelmetric.WithDescription("Duplicate keep-alive expiry extensions"),
	)
	if err != nil {
		return nil, err
	}

	// Buffer and delivery metrics
	m.BatchSize, err = meter.Int64Histogram(
		"buffer.batch.size",
		otelmetric.WithDescription("Events per flushed batch"),
	)
	if err != nil {
		return nil, err
	}

	m.FlushLatency, err = meter.Float64Histogram(
		"buffer.flush.latency",
		otelmetric.WithUnit("ms"),
		otelmetric.WithDescription("Batch flush latency in milliseconds"),
	)
	if err != nil {
		return nil, err
	}

	m.StaleFlushes, err = meter.Int64Counter(
		"buffer.flush.stale",
		otelmetric.WithDescription("Flushes triggered by staleness rather than batch size"),
	)
	if err != nil {
		return nil, err
	}

	m.DeliverySuccess, err = meter.Int64Counter(
		"delivery.success",
		otelmetric.WithDescription("Events delivered successfully"),
	)
	if err != nil {
		return nil, err
	}

	m.DeliveryFailure, err = meter.Int64Counter(
		"delivery.failure",
		otelmetric.WithDescription("Events rejected by the destination"),
	)
	if err != nil {
		return nil, err
	}

	m.DeliveryTimeouts, err = meter.Int64Counter(
		"delivery.timeouts",
		otelmetric.WithDescription("Bulk deliveries that timed out"),
	)
	if err != nil {
		return nil, err
	}

	// Notification metrics
	m.NotificationsSent, err = meter.Int64Counter(
		"notify.sent",
		otelmetric.WithDescription("Failure notifications dispatched"),
	)
	if err != nil {
		return nil, err
	}

	// Relay metrics
	m.RelayPublished, err = meter.Int64Counter(
		"relay.published",
		otelmetric.WithDescription("Messages published to the relay stream"),
	)
	if err != nil {
		return nil, err
	}

	m.RelayRedeliveriesDropped, err = meter.Int64Counter(
		"relay.redeliveries.dropped",
		otelmetric.WithDescription("Relay messages dropped as likely redeliveries"),
	)
	if err != nil {
		return nil, err
	}

	// Maintenance metrics
	m.TokensSwept, err = meter.Int64Counter(
		"tokens.swept",
		otelmetric.WithDescription("Expired dedup tokens removed"),
	)
	if err != nil {
		return nil, err
	}

	m.ArchiveObjects, err = meter.Int64Counter(
		"archive.objects",
		otelmetric.WithDescription("Failure archive objects written"),
	)
	if err != nil {
		return nil, err
	}

	m.ArchiveBytes, err = meter.Int64Histogram(
		"archive.bytes",
		otelmetric.WithUnit("By"),
		otelmetric.WithDescription("Failure archive object sizes in bytes"),
	)
	if err != nil {
		return nil, err
	}

	return &m, nil
}
