package logging

import (
	"context"

	"pasteup/internal/utils/id"
)

type fieldCapable interface {
	with(key, value string) Logger
}

// With attaches key=value to every line. Structured loggers keep it as an
// attribute; other loggers get it as a message prefix.
func With(logger Logger, key, value string) Logger {
	logger = OrNop(logger)
	if value == "" {
		return logger
	}
	if _, ok := logger.(nopLogger); ok {
		return logger
	}
	if capable, ok := logger.(fieldCapable); ok {
		return capable.with(key, value)
	}
	return &prefixLogger{next: logger, prefix: key + "=" + value + " "}
}

// FromContext tags logger with the upload id carried by ctx.
func FromContext(ctx context.Context, logger Logger) Logger {
	return With(logger, "upload_id", id.UploadIDFromContext(ctx))
}

type prefixLogger struct {
	next   Logger
	prefix string
}

func (l *prefixLogger) Debug(format string, args ...any) { l.next.Debug(l.prefix+format, args...) }
func (l *prefixLogger) Info(format string, args ...any)  { l.next.Info(l.prefix+format, args...) }
func (l *prefixLogger) Warn(format string, args ...any)  { l.next.Warn(l.prefix+format, args...) }
func (l *prefixLogger) Error(format string, args ...any) { l.next.Error(l.prefix+format, args...) }

func (l *prefixLogger) with(key, value string) Logger {
	return &prefixLogger{next: l.next, prefix: l.prefix + key + "=" + value + " "}
}
