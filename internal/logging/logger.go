// Package logging gives components a printf-style logger backed by the
// process-wide structured logger.
package logging

import (
	"fmt"
	"reflect"
	"sync"

	"pasteup/internal/observability"
)

// Logger is the printf-style contract components log through.
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// Nop discards everything.
func Nop() Logger { return nopLogger{} }

// IsNil reports whether logger is nil or a typed nil pointer.
func IsNil(logger Logger) bool {
	if logger == nil {
		return true
	}
	v := reflect.ValueOf(logger)
	return v.Kind() == reflect.Ptr && v.IsNil()
}

// OrNop returns logger, or Nop when it is nil.
func OrNop(logger Logger) Logger {
	if IsNil(logger) {
		return Nop()
	}
	return logger
}

var (
	baseMu sync.RWMutex
	base   *observability.Logger
)

// SetBase routes every component logger created afterwards to logger.
func SetBase(logger *observability.Logger) {
	baseMu.Lock()
	defer baseMu.Unlock()
	base = logger
}

// NewComponentLogger returns a logger tagged component=name. Before SetBase
// it writes text at info level to stderr.
func NewComponentLogger(name string) Logger {
	baseMu.RLock()
	current := base
	baseMu.RUnlock()
	if current == nil {
		current = observability.NewLogger(observability.LogConfig{Level: "info", Format: "text"})
	}
	return FromObservability(current, name)
}

// FromObservability adapts a structured logger. An empty component adds no
// attribute.
func FromObservability(logger *observability.Logger, component string) Logger {
	if logger == nil {
		return Nop()
	}
	if component != "" {
		logger = logger.With("component", component)
	}
	return &structuredLogger{logger: logger}
}

// structuredLogger formats the message and keeps fields as slog attributes.
type structuredLogger struct {
	logger *observability.Logger
}

func (l *structuredLogger) Debug(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *structuredLogger) Info(format string, args ...any) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *structuredLogger) Warn(format string, args ...any) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *structuredLogger) Error(format string, args ...any) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *structuredLogger) with(key, value string) Logger {
	return &structuredLogger{logger: l.logger.With(key, value)}
}
