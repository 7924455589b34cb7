// Package metrics exposes launchpad instruments through OpenTelemetry with a
// Prometheus exporter.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

type Metrics struct {
	Executions        metric.Int64Counter
	ExecutionDuration metric.Float64Histogram
	Launches          metric.Int64Counter
	HTTPRequests      metric.Int64Counter
	HTTPDuration      metric.Float64Histogram
	CacheHits         metric.Int64Counter
	CacheMisses       metric.Int64Counter
	ArchivedEvents    metric.Int64Counter
	ActiveConnections metric.Int64UpDownCounter
}

// Setup installs a global meter provider backed by the Prometheus exporter
// and returns the instruments plus the scrape handler.
func Setup(serviceName string) (*Metrics, http.Handler, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, nil, err
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	m, err := New(provider.Meter(serviceName))
	if err != nil {
		return nil, nil, err
	}
	return m, promhttp.Handler(), nil
}

// New creates the instruments on meter.
func New(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.Executions, err = meter.Int64Counter(
		"launchpad_executions_total",
		metric.WithDescription("Relayed intent executions by action and outcome"),
	)
	if err != nil {
		return nil, err
	}

	m.ExecutionDuration, err = meter.Float64Histogram(
		"launchpad_execution_duration_seconds",
		metric.WithDescription("Relayed intent execution latency in seconds"),
	)
	if err != nil {
		return nil, err
	}

	m.Launches, err = meter.Int64Counter(
		"launchpad_launches_total",
		metric.WithDescription("Markets migrated to the liquidity venue"),
	)
	if err != nil {
		return nil, err
	}

	m.HTTPRequests, err = meter.Int64Counter(
		"launchpad_http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
	)
	if err != nil {
		return nil, err
	}

	m.HTTPDuration, err = meter.Float64Histogram(
		"launchpad_http_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
	)
	if err != nil {
		return nil, err
	}

	m.CacheHits, err = meter.Int64Counter(
		"launchpad_cache_hits_total",
		metric.WithDescription("Total number of market cache hits"),
	)
	if err != nil {
		return nil, err
	}

	m.CacheMisses, err = meter.Int64Counter(
		"launchpad_cache_misses_total",
		metric.WithDescription("Total number of market cache misses"),
	)
	if err != nil {
		return nil, err
	}

	m.ArchivedEvents, err = meter.Int64Counter(
		"launchpad_archived_events_total",
		metric.WithDescription("Events exported to blob storage"),
	)
	if err != nil {
		return nil, err
	}

	m.ActiveConnections, err = meter.Int64UpDownCounter(
		"launchpad_websocket_connections",
		metric.WithDescription("Number of active WebSocket connections"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

// RecordExecution counts one relayed execution. outcome is "ok" or the
// failure kind of the rejection.
func (m *Metrics) RecordExecution(ctx context.Context, action, outcome string, duration time.Duration) {
	labels := metric.WithAttributes(
		attribute.String("action", action),
		attribute.String("outcome", outcome),
	)
	m.Executions.Add(ctx, 1, labels)
	m.ExecutionDuration.Record(ctx, duration.Seconds(), labels)
}

func (m *Metrics) RecordLaunch(ctx context.Context) {
	m.Launches.Add(ctx, 1)
}

func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, status int, duration time.Duration) {
	labels := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("path", path),
		attribute.Int("status", status),
	)

	m.HTTPRequests.Add(ctx, 1, labels)
	m.HTTPDuration.Record(ctx, duration.Seconds(), labels)
}

func (m *Metrics) RecordCacheHit(ctx context.Context, key string) {
	m.CacheHits.Add(ctx, 1, metric.WithAttributes(attribute.String("key", key)))
}

func (m *Metrics) RecordCacheMiss(ctx context.Context, key string) {
	m.CacheMisses.Add(ctx, 1, metric.WithAttributes(attribute.String("key", key)))
}

func (m *Metrics) RecordArchived(ctx context.Context, count int64) {
	m.ArchivedEvents.Add(ctx, count)
}

func (m *Metrics) IncrementConnections(ctx context.Context) {
	m.ActiveConnections.Add(ctx, 1)
}

func (m *Metrics) DecrementConnections(ctx context.Context) {
	m.ActiveConnections.Add(ctx, -1)
}
