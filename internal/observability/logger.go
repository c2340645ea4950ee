package observability

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	id "pasteup/internal/utils/id"
)

// Logger is the process-wide structured logger.
type Logger struct {
	logger *slog.Logger
}

// LogConfig selects level, format and destination.
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // text, json
	Output io.Writer
}

// NewLogger builds a slog logger. Output defaults to stderr so command output
// on stdout stays parseable.
func NewLogger(cfg LogConfig) *Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	var handler slog.Handler = slog.NewTextHandler(out, opts)
	if strings.EqualFold(cfg.Format, "json") {
		handler = slog.NewJSONHandler(out, opts)
	}
	return &Logger{logger: slog.New(handler)}
}

func parseLevel(level string) slog.Level {
	var parsed slog.Level
	if err := parsed.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		return slog.LevelInfo
	}
	return parsed
}

// With returns a logger that adds args to every record.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{logger: l.logger.With(args...)}
}

// WithContext adds the upload id carried by ctx.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	if uploadID := id.UploadIDFromContext(ctx); uploadID != "" {
		return l.With("upload_id", uploadID)
	}
	return l
}

func (l *Logger) Debug(msg string, args ...any) { l.logger.Debug(msg, args...) }
func (l *Logger) Info(msg string, args ...any)  { l.logger.Info(msg, args...) }
func (l *Logger) Warn(msg string, args ...any)  { l.logger.Warn(msg, args...) }
func (l *Logger) Error(msg string, args ...any) { l.logger.Error(msg, args...) }

// InfoContext logs msg with the upload id from ctx.
func (l *Logger) InfoContext(ctx context.Context, msg string, args ...any) {
	l.WithContext(ctx).Info(msg, args...)
}

// SanitizeAPIKey masks a credential for logging.
func SanitizeAPIKey(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 12 {
		return "***"
	}
	return key[:8] + "..." + key[len(key)-4:]
}
