package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// MetricsCollector records upload metrics and exposes them for Prometheus.
// A disabled collector is safe to use; every method becomes a no-op.
type MetricsCollector struct {
	provider *sdkmetric.MeterProvider
	handler  http.Handler

	uploads        metric.Int64Counter
	uploadDuration metric.Float64Histogram
	stageDuration  metric.Float64Histogram
	uploadBytes    metric.Int64Counter
	inFlight       metric.Int64UpDownCounter
	interceptions  metric.Int64Counter
}

// MetricsConfig configures the metrics collector
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	// SetGlobal installs the meter provider as the process-wide otel provider.
	SetGlobal bool `yaml:"-"`
}

// NewMetricsCollector creates a new metrics collector backed by its own
// Prometheus registry.
func NewMetricsCollector(config MetricsConfig) (*MetricsCollector, error) {
	if !config.Enabled {
		return &MetricsCollector{}, nil
	}

	registry := promclient.NewRegistry()
	exporter, err := prometheus.New(prometheus.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	if config.SetGlobal {
		otel.SetMeterProvider(provider)
	}
	meter := provider.Meter("pasteup")

	uploads, err := meter.Int64Counter(
		"pasteup.uploads",
		metric.WithDescription("Upload orchestrations by final status"),
		metric.WithUnit("{upload}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create uploads counter: %w", err)
	}

	uploadDuration, err := meter.Float64Histogram(
		"pasteup.upload.duration",
		metric.WithDescription("End-to-end upload orchestration duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create upload_duration histogram: %w", err)
	}

	stageDuration, err := meter.Float64Histogram(
		"pasteup.stage.duration",
		metric.WithDescription("Duration of the remote and local upload attempts in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create stage_duration histogram: %w", err)
	}

	uploadBytes, err := meter.Int64Counter(
		"pasteup.upload.bytes",
		metric.WithDescription("Image bytes handed to the orchestrator"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create upload_bytes counter: %w", err)
	}

	inFlight, err := meter.Int64UpDownCounter(
		"pasteup.uploads.in_flight",
		metric.WithDescription("Uploads currently holding the gate"),
		metric.WithUnit("{upload}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create in_flight gauge: %w", err)
	}

	interceptions, err := meter.Int64Counter(
		"pasteup.interceptions",
		metric.WithDescription("Editor events whose default handling was prevented"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create interceptions counter: %w", err)
	}

	return &MetricsCollector{
		provider:       provider,
		handler:        promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		uploads:        uploads,
		uploadDuration: uploadDuration,
		stageDuration:  stageDuration,
		uploadBytes:    uploadBytes,
		inFlight:       inFlight,
		interceptions:  interceptions,
	}, nil
}

// Enabled reports whether the collector records anything.
func (m *MetricsCollector) Enabled() bool {
	return m != nil && m.uploads != nil
}

// Handler returns the Prometheus scrape handler, or a 404 handler when disabled.
func (m *MetricsCollector) Handler() http.Handler {
	if m == nil || m.handler == nil {
		return http.NotFoundHandler()
	}
	return m.handler
}

// Shutdown flushes and stops the meter provider.
func (m *MetricsCollector) Shutdown(ctx context.Context) error {
	if m == nil || m.provider == nil {
		return nil
	}
	return m.provider.Shutdown(ctx)
}

// RecordUpload records one finished orchestration.
func (m *MetricsCollector) RecordUpload(ctx context.Context, status, errorType string, size int, duration time.Duration) {
	if !m.Enabled() {
		return
	}
	attrs := []attribute.KeyValue{attribute.String("status", status)}
	if errorType != "" {
		attrs = append(attrs, attribute.String("error_type", errorType))
	}
	m.uploads.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.uploadDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.String("status", status)))
	if size > 0 {
		m.uploadBytes.Add(ctx, int64(size))
	}
}

// RecordStage records one remote or local attempt.
func (m *MetricsCollector) RecordStage(ctx context.Context, stage string, ok bool, duration time.Duration) {
	if !m.Enabled() {
		return
	}
	m.stageDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("stage", stage),
		attribute.Bool("ok", ok),
	))
}

// IncrementInFlight marks an upload as holding the gate.
func (m *MetricsCollector) IncrementInFlight(ctx context.Context) {
	if !m.Enabled() {
		return
	}
	m.inFlight.Add(ctx, 1)
}

// DecrementInFlight marks an upload as finished.
func (m *MetricsCollector) DecrementInFlight(ctx context.Context) {
	if !m.Enabled() {
		return
	}
	m.inFlight.Add(ctx, -1)
}

// RecordInterception records an intercepted editor event (paste, drop, dragover).
func (m *MetricsCollector) RecordInterception(ctx context.Context, kind string) {
	if !m.Enabled() {
		return
	}
	m.interceptions.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}
