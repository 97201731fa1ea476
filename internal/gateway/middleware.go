package gateway

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
	"golang.org/x/time/rate"

	"github.com/feedbridge/feedbridge/internal/auth"
	"github.com/feedbridge/feedbridge/internal/observability"
)

// PerKeyRateLimit returns middleware that rate-limits requests per
// authenticated connector. Requests without an authenticated connector
// (health, metrics, admin) pass through untouched.
func PerKeyRateLimit(cfg RateLimitConfig) func(http.Handler) http.Handler {
	var limiters sync.Map

	return func(next http.Handler) http.Handler {
		if !cfg.Enabled {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := auth.GetConnectorID(r.Context())
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			v, _ := limiters.LoadOrStore(key, rate.NewLimiter(rate.Limit(cfg.PerKeyRPS), cfg.PerKeyBurst))
			if !v.(*rate.Limiter).Allow() {
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// statusRecorder captures the response status for the metrics middleware.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// metricRoute collapses per-entity path segments to the registered route
// shape so connector and key ids do not blow up metric cardinality.
func metricRoute(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	switch {
	case len(parts) == 4 && parts[0] == "v1" && parts[1] == "connectors" && parts[3] == "payloads":
		return "/v1/connectors/{id}/payloads"
	case len(parts) == 4 && parts[0] == "api" && parts[1] == "admin" && parts[2] == "keys":
		return "/api/admin/keys/{id}"
	}
	return path
}

// HTTPMetrics returns middleware that records duration, volume, and error
// counts per route. Routes are labeled by shape, not raw path.
func HTTPMetrics(metrics *observability.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			attrs := otelmetric.WithAttributes(
				attribute.String("method", r.Method),
				attribute.String("route", metricRoute(r.URL.Path)),
				attribute.String("status", strconv.Itoa(rec.status)),
			)

			elapsed := float64(time.Since(start).Milliseconds())
			metrics.HTTPRequestDuration.Record(r.Context(), elapsed, attrs)
			metrics.HTTPRequestTotal.Add(r.Context(), 1, attrs)
			if rec.status >= 400 {
				metrics.HTTPRequestErrors.Add(r.Context(), 1, attrs)
			}
		})
	}
}

// MaxBodyBytes returns middleware that caps request body size. Reads past
// the limit fail, which surfaces as a 400 from the JSON decoder.
func MaxBodyBytes(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limit <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, limit)
			next.ServeHTTP(w, r)
		})
	}
}
