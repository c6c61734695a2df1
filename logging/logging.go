// logging/logging.go
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/gewnthar/registers/config"
)

// Setup builds the process logger from cfg and installs it as the default.
// The returned closer releases the log file, if any.
func Setup(cfg config.LogConfig) (io.Closer, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	var writer io.Writer
	var closer io.Closer = nopCloser{}
	switch cfg.Output {
	case "", "stdout":
		writer = os.Stdout
	case "stderr":
		writer = os.Stderr
	case "file":
		if cfg.File == "" {
			return nil, fmt.Errorf("log file path is required when output is 'file'")
		}
		file, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		writer, closer = file, file
	default:
		return nil, fmt.Errorf("invalid log output: %s", cfg.Output)
	}

	handler, err := NewHandler(writer, cfg.Format, level)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(slog.New(handler))
	slog.Debug("logger initialized", "level", level.String(), "format", cfg.Format, "output", cfg.Output)
	return closer, nil
}

// NewHandler returns a text or json handler writing to w.
func NewHandler(w io.Writer, format string, level slog.Level) (slog.Handler, error) {
	opts := &slog.HandlerOptions{Level: level}
	switch format {
	case "", "text":
		return slog.NewTextHandler(w, opts), nil
	case "json":
		return slog.NewJSONHandler(w, opts), nil
	default:
		return nil, fmt.Errorf("invalid log format: %s", format)
	}
}

// ParseLevel maps a config level name to a slog level.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level: %s", level)
	}
}

type contextKey struct{}

// FromContext returns the request logger, or the default logger.
func FromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(contextKey{}).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}

// WithContext attaches logger to ctx.
func WithContext(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, logger)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
