package middleware

import (
	"net/http"
	"strings"
)

// DefaultMaxBodySize is the default maximum request body size (1MB).
const DefaultMaxBodySize = 1 << 20 // 1 MB

// BodyLimitConfig configures the body limit middleware.
type BodyLimitConfig struct {
	// MaxBytes is the request body size limit. Zero means DefaultMaxBodySize.
	MaxBytes int64

	// SkipPaths lists path prefixes exempted from the global limit.
	// Routes under these prefixes must apply their own limit.
	SkipPaths []string
}

// BodyLimit limits the maximum size of request bodies.
// If maxBytes is 0, DefaultMaxBodySize is used.
func BodyLimit(maxBytes int64) func(http.Handler) http.Handler {
	return BodyLimitWithConfig(BodyLimitConfig{MaxBytes: maxBytes})
}

// BodyLimitWithConfig limits request body sizes with custom configuration.
func BodyLimitWithConfig(cfg BodyLimitConfig) func(http.Handler) http.Handler {
	maxBytes := cfg.MaxBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBodySize
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Skip for methods without body
			if r.Method == http.MethodGet || r.Method == http.MethodHead ||
				r.Method == http.MethodOptions || r.Method == http.MethodTrace {
				next.ServeHTTP(w, r)
				return
			}

			for _, prefix := range cfg.SkipPaths {
				if strings.HasPrefix(r.URL.Path, prefix) {
					next.ServeHTTP(w, r)
					return
				}
			}

			// Handlers decoding the body surface the tripped limit as
			// http.MaxBytesError and answer 413.
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

			next.ServeHTTP(w, r)
		})
	}
}
