// Package logger wraps log/slog with the service's output formats,
// credential redaction, and production sampling.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger is the structured logger used across the service.
type Logger struct {
	*slog.Logger
}

// Config holds logger construction options.
type Config struct {
	Level    string
	Format   string
	Output   io.Writer
	Sampling SamplingConfig
}

// New creates a Logger. The debug level also enables source locations.
func New(cfg Config) *Logger {
	level := parseLevel(cfg.Level)

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	opts := &slog.HandlerOptions{
		Level:       level,
		AddSource:   level == slog.LevelDebug,
		ReplaceAttr: redactAttr,
	}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		handler = slog.NewTextHandler(output, opts)
	} else {
		handler = slog.NewJSONHandler(output, opts)
	}

	return &Logger{Logger: slog.New(NewSamplingHandler(handler, cfg.Sampling))}
}

// NewDefault creates a JSON logger at info level.
func NewDefault() *Logger {
	return New(Config{Level: "info", Format: "json"})
}

// NewDevelopment creates a human-readable debug logger.
func NewDevelopment() *Logger {
	return New(Config{Level: "debug", Format: "text"})
}

// NewProductionWithConfig creates a JSON logger with the given sampling
// behavior.
func NewProductionWithConfig(sampling SamplingConfig) *Logger {
	return New(Config{Level: "info", Format: "json", Sampling: sampling})
}

// NewNop creates a logger that discards everything. For tests.
func NewNop() *Logger {
	return New(Config{Level: "error", Format: "json", Output: io.Discard})
}

// With returns a Logger carrying the given attributes.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// SetDefault installs this logger as the slog default, so library code
// logging through slog lands in the same stream.
func (l *Logger) SetDefault() {
	slog.SetDefault(l.Logger)
}

// ContextKey types the request-scoped values the middleware stores.
type ContextKey string

const (
	ContextKeyRequestID ContextKey = "request_id"
	ContextKeyUserID    ContextKey = "user_id"
)

// redactedMarkers are substrings of attribute keys whose values must never
// reach the log stream: the gateway token secret, connection strings, and
// anything credential-shaped.
var redactedMarkers = []string{
	"password", "passwd", "secret", "token", "authorization", "bearer",
	"api_key", "apikey", "jwt", "cookie", "credential", "dsn",
	"connection_string", "database_url", "redis_url",
}

// redactAttr replaces sensitive attribute values with a marker.
func redactAttr(_ []string, a slog.Attr) slog.Attr {
	key := strings.ToLower(a.Key)
	for _, marker := range redactedMarkers {
		if strings.Contains(key, marker) {
			return slog.String(a.Key, "[REDACTED]")
		}
	}
	return a
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
