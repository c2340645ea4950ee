package observability

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// Config represents the complete observability configuration
type Config struct {
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
}

// LoggingConfig configures logging
type LoggingConfig struct {
	Level  string    `yaml:"level"`  // debug, info, warn, error
	Format string    `yaml:"format"` // json, text
	Output io.Writer `yaml:"-"`
}

// DefaultConfig returns the default observability configuration
func DefaultConfig() Config {
	return Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		Tracing: TracingConfig{
			Enabled:        false,
			Exporter:       "otlp",
			OTLPEndpoint:   "localhost:4318",
			SampleRate:     1.0,
			ServiceName:    "pasteup",
			ServiceVersion: "dev",
		},
	}
}

// Observability bundles the logger, metrics collector and tracer of a process.
type Observability struct {
	Logger  *Logger
	Metrics *MetricsCollector
	Tracer  *TracerProvider
}

// New builds every observability component described by config.
func New(config Config) (*Observability, error) {
	logger := NewLogger(LogConfig{
		Level:  config.Logging.Level,
		Format: config.Logging.Format,
		Output: config.Logging.Output,
	})

	metrics, err := NewMetricsCollector(config.Metrics)
	if err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	tracer, err := NewTracerProvider(config.Tracing)
	if err != nil {
		_ = metrics.Shutdown(context.Background())
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	return &Observability{Logger: logger, Metrics: metrics, Tracer: tracer}, nil
}

// Shutdown flushes metrics and spans.
func (o *Observability) Shutdown(ctx context.Context) error {
	if o == nil {
		return nil
	}
	return errors.Join(o.Metrics.Shutdown(ctx), o.Tracer.Shutdown(ctx))
}
