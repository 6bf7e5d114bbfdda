package middleware

import (
	"context"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vulntrack/api/internal/config"
	"github.com/vulntrack/api/pkg/apierror"
	"github.com/vulntrack/api/pkg/logger"
)

// RequestIDKey is the context key carrying the request correlation ID.
const RequestIDKey = logger.ContextKeyRequestID

// RequestID attaches a correlation ID to the request context and echoes it
// in the X-Request-ID response header. An inbound header wins so IDs survive
// gateway hops.
func RequestID() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := strings.TrimSpace(r.Header.Get("X-Request-ID"))
			if id == "" || len(id) > 128 {
				id = uuid.New().String()
			}

			w.Header().Set("X-Request-ID", id)
			ctx := context.WithValue(r.Context(), RequestIDKey, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetRequestID extracts the correlation ID from context.
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}

// statusRecorder captures the response status and body size for the logging
// and metrics middleware.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += n
	return n, err
}

// LoggerConfig configures request logging.
type LoggerConfig struct {
	// SkipPaths are exact paths never logged, typically probes.
	SkipPaths []string

	// SkipSuccessful drops 2xx entries. For high-traffic deployments where
	// only failures matter.
	SkipSuccessful bool

	// SlowRequestThreshold promotes slower requests to a warning.
	// Zero disables the check.
	SlowRequestThreshold time.Duration
}

// DefaultLoggerConfig returns the logging defaults: probes and the metrics
// scrape are skipped, everything else is logged, 5s counts as slow.
func DefaultLoggerConfig() LoggerConfig {
	return LoggerConfig{
		SkipPaths: []string{
			"/health",
			"/healthz",
			"/ready",
			"/readyz",
			"/live",
			"/livez",
			"/metrics",
			"/api/v1/health",
		},
		SlowRequestThreshold: 5 * time.Second,
	}
}

// LoggerWithConfig logs one line per request with method, path, status,
// duration and the caller identity when present.
func LoggerWithConfig(log *logger.Logger, cfg LoggerConfig) func(http.Handler) http.Handler {
	skip := make(map[string]struct{}, len(cfg.SkipPaths))
	for _, p := range cfg.SkipPaths {
		skip[p] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := skip[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			elapsed := time.Since(start)

			if cfg.SkipSuccessful && rec.status >= 200 && rec.status < 300 {
				return
			}

			attrs := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.status,
				"bytes", rec.bytes,
				"duration", elapsed,
				"request_id", GetRequestID(r.Context()),
				"remote_addr", r.RemoteAddr,
			}
			if userID := GetUserID(r.Context()); userID != "" {
				attrs = append(attrs, "user_id", userID)
			}

			switch {
			case rec.status >= 500:
				log.Error("http request", attrs...)
			case rec.status >= 400:
				log.Warn("http request", attrs...)
			case cfg.SlowRequestThreshold > 0 && elapsed > cfg.SlowRequestThreshold:
				log.Warn("slow http request", attrs...)
			default:
				log.Info("http request", attrs...)
			}
		})
	}
}

// RecoveryWithConfig turns handler panics into a 500 response. Stack traces
// are logged only outside production; http.ErrAbortHandler keeps its
// stdlib meaning and is re-raised untouched.
func RecoveryWithConfig(log *logger.Logger, isProduction bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				p := recover()
				if p == nil {
					return
				}
				if err, ok := p.(error); ok && err == http.ErrAbortHandler {
					panic(p)
				}

				attrs := []any{
					"error", p,
					"method", r.Method,
					"path", r.URL.Path,
					"request_id", GetRequestID(r.Context()),
				}
				if !isProduction {
					attrs = append(attrs, "stack", string(debug.Stack()))
				}
				log.Error("panic recovered", attrs...)

				apierror.InternalServerError("Internal server error").WriteJSON(w)
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// CORS answers cross-origin requests per the configured allowlist. A
// wildcard origin disables credentials, per the CORS spec.
func CORS(cfg *config.CORSConfig) func(http.Handler) http.Handler {
	allowAll := false
	allowed := make(map[string]struct{}, len(cfg.AllowedOrigins))
	for _, origin := range cfg.AllowedOrigins {
		if origin == "*" {
			allowAll = true
			continue
		}
		allowed[origin] = struct{}{}
	}

	methods := strings.Join(cfg.AllowedMethods, ", ")
	headers := strings.Join(cfg.AllowedHeaders, ", ")
	maxAge := strconv.Itoa(cfg.MaxAge)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			switch {
			case allowAll:
				w.Header().Set("Access-Control-Allow-Origin", "*")
			case origin != "":
				w.Header().Add("Vary", "Origin")
				if _, ok := allowed[origin]; ok {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					w.Header().Set("Access-Control-Allow-Credentials", "true")
				}
			}

			if r.Method == http.MethodOptions {
				w.Header().Set("Access-Control-Allow-Methods", methods)
				w.Header().Set("Access-Control-Allow-Headers", headers)
				w.Header().Set("Access-Control-Max-Age", maxAge)
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
