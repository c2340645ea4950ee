package observability

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/zipkin"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	id "pasteup/internal/utils/id"
)

const (
	instrumentationName   = "pasteup"
	defaultOTLPEndpoint   = "localhost:4318"
	defaultZipkinEndpoint = "http://localhost:9411/api/v2/spans"
)

// Span names.
const (
	SpanUpload       = "pasteup.upload"
	SpanRemoteUpload = "pasteup.upload.remote"
	SpanLocalSave    = "pasteup.upload.local"
	SpanHTTPServer   = "pasteup.http.request"
)

// Attribute keys.
const (
	AttrUploadID  = "pasteup.upload_id"
	AttrFilename  = "pasteup.filename"
	AttrMediaType = "pasteup.media_type"
	AttrBytes     = "pasteup.bytes"
	AttrStatus    = "pasteup.status"
	AttrReason    = "pasteup.reason"
)

// TracingConfig selects a span exporter. Tracing is off unless Enabled.
type TracingConfig struct {
	Enabled        bool    `yaml:"enabled"`
	Exporter       string  `yaml:"exporter"` // otlp, zipkin
	OTLPEndpoint   string  `yaml:"otlp_endpoint"`
	ZipkinEndpoint string  `yaml:"zipkin_endpoint"`
	SampleRate     float64 `yaml:"sample_rate"`
	ServiceName    string  `yaml:"service_name"`
	ServiceVersion string  `yaml:"service_version"`
}

// TracerProvider starts upload spans. A nil provider starts no-op spans.
type TracerProvider struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// NoopTracer discards every span.
func NoopTracer() *TracerProvider {
	return &TracerProvider{tracer: noop.NewTracerProvider().Tracer(instrumentationName)}
}

// NewTracerProvider builds a batching provider for cfg and installs it as the
// global otel provider.
func NewTracerProvider(cfg TracingConfig) (*TracerProvider, error) {
	if !cfg.Enabled {
		return NoopTracer(), nil
	}

	exporter, err := newSpanExporter(cfg)
	if err != nil {
		return nil, err
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = instrumentationName
	}
	res, err := resource.New(context.Background(), resource.WithAttributes(
		semconv.ServiceName(serviceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
	))
	if err != nil {
		return nil, fmt.Errorf("tracing resource: %w", err)
	}

	rate := cfg.SampleRate
	if rate <= 0 || rate > 1 {
		rate = 1
	}
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(rate))),
	)
	otel.SetTracerProvider(provider)

	return &TracerProvider{provider: provider, tracer: provider.Tracer(instrumentationName)}, nil
}

func newSpanExporter(cfg TracingConfig) (sdktrace.SpanExporter, error) {
	switch strings.ToLower(cfg.Exporter) {
	case "", "otlp":
		endpoint := cfg.OTLPEndpoint
		if endpoint == "" {
			endpoint = defaultOTLPEndpoint
		}
		exporter, err := otlptracehttp.New(context.Background(),
			otlptracehttp.WithEndpoint(endpoint),
			otlptracehttp.WithInsecure(),
		)
		if err != nil {
			return nil, fmt.Errorf("otlp exporter: %w", err)
		}
		return exporter, nil
	case "zipkin":
		endpoint := cfg.ZipkinEndpoint
		if endpoint == "" {
			endpoint = defaultZipkinEndpoint
		}
		exporter, err := zipkin.New(endpoint)
		if err != nil {
			return nil, fmt.Errorf("zipkin exporter: %w", err)
		}
		return exporter, nil
	default:
		return nil, fmt.Errorf("unsupported exporter: %s", cfg.Exporter)
	}
}

// Shutdown flushes pending spans.
func (tp *TracerProvider) Shutdown(ctx context.Context) error {
	if tp == nil || tp.provider == nil {
		return nil
	}
	return tp.provider.Shutdown(ctx)
}

// StartSpan starts name as a child of ctx, tagged with the upload id on ctx.
func (tp *TracerProvider) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := trace.Tracer(noop.NewTracerProvider().Tracer(instrumentationName))
	if tp != nil && tp.tracer != nil {
		tracer = tp.tracer
	}
	if uploadID := id.UploadIDFromContext(ctx); uploadID != "" {
		attrs = append(attrs, attribute.String(AttrUploadID, uploadID))
	}
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// PayloadAttrs describes the image being uploaded.
func PayloadAttrs(filename, mediaType string, size int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrFilename, filename),
		attribute.String(AttrMediaType, mediaType),
		attribute.Int(AttrBytes, size),
	}
}

// EndSpan records status and, for a non-empty reason, marks the span failed
// before ending it.
func EndSpan(span trace.Span, status, reason string) {
	if status != "" {
		span.SetAttributes(attribute.String(AttrStatus, status))
	}
	if reason != "" {
		span.SetAttributes(attribute.String(AttrReason, reason))
		span.SetStatus(codes.Error, reason)
	}
	span.End()
}
