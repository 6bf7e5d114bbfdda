package middleware

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/vulntrack/api/internal/config"
	"github.com/vulntrack/api/pkg/apierror"
	"github.com/vulntrack/api/pkg/logger"
)

// RateLimiter implements a per-IP rate limiter.
type RateLimiter struct {
	visitors map[string]*visitor
	mu       sync.RWMutex
	rate     rate.Limit
	burst    int
	cleanup  time.Duration
	log      *logger.Logger
	done     chan struct{}
	stopped  chan struct{} // signals goroutine has exited
	stopOnce sync.Once     // prevents double-close panic
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a new rate limiter.
func NewRateLimiter(cfg *config.RateLimitConfig, log *logger.Logger) *RateLimiter {
	rl := &RateLimiter{
		visitors: make(map[string]*visitor),
		rate:     rate.Limit(cfg.RequestsPerSec),
		burst:    cfg.Burst,
		cleanup:  cfg.CleanupInterval,
		log:      log,
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}

	// Start cleanup goroutine
	go rl.cleanupVisitors()

	return rl
}

// Stop stops the cleanup goroutine and waits for it to exit.
// Safe to call multiple times.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() {
		close(rl.done)
	})
	<-rl.stopped // Wait for goroutine to exit
}

// getVisitor retrieves or creates a rate limiter for a key.
func (rl *RateLimiter) getVisitor(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	v, exists := rl.visitors[key]
	if !exists {
		limiter := rate.NewLimiter(rl.rate, rl.burst)
		rl.visitors[key] = &visitor{limiter: limiter, lastSeen: time.Now()}
		return limiter
	}

	v.lastSeen = time.Now()
	return v.limiter
}

// cleanupVisitors removes old visitor entries.
func (rl *RateLimiter) cleanupVisitors() {
	ticker := time.NewTicker(rl.cleanup)
	defer ticker.Stop()
	defer close(rl.stopped) // Signal that goroutine has exited

	for {
		select {
		case <-rl.done:
			return
		case <-ticker.C:
			rl.mu.Lock()
			for key, v := range rl.visitors {
				if time.Since(v.lastSeen) > 3*time.Minute {
					delete(rl.visitors, key)
				}
			}
			rl.mu.Unlock()
		}
	}
}

// Middleware returns the rate limiting middleware.
func (rl *RateLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rl.serveLimited(w, r, getClientIP(r), next)
		})
	}
}

// serveLimited applies the token bucket for key and either forwards the
// request or writes a 429 with standard rate limit headers.
func (rl *RateLimiter) serveLimited(w http.ResponseWriter, r *http.Request, key string, next http.Handler) {
	limiter := rl.getVisitor(key)

	// Get current tokens before Allow() consumes one
	tokens := limiter.Tokens()
	remaining := int(math.Max(0, math.Floor(tokens)-1)) // -1 because Allow() will consume one

	// Calculate reset time (time until bucket is full)
	tokensToRefill := float64(rl.burst) - tokens
	var resetTime time.Time
	if tokensToRefill > 0 && rl.rate > 0 {
		secondsToRefill := tokensToRefill / float64(rl.rate)
		resetTime = time.Now().Add(time.Duration(secondsToRefill * float64(time.Second)))
	} else {
		resetTime = time.Now()
	}

	// Set rate limit headers on all responses
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.burst))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetTime.Unix(), 10))

	if !limiter.Allow() {
		rl.log.Warn("rate limit exceeded",
			"key", key,
			"path", r.URL.Path,
			"request_id", GetRequestID(r.Context()),
		)

		// Update remaining to 0 since we're rate limited
		w.Header().Set("X-RateLimit-Remaining", "0")
		w.Header().Set("Retry-After", "1")
		apierror.TooManyRequests("Rate limit exceeded").WriteJSON(w)
		return
	}

	next.ServeHTTP(w, r)
}

// RateLimitWithStop creates a rate limiting middleware and returns a stop function.
// The stop function should be called during graceful shutdown.
func RateLimitWithStop(cfg *config.RateLimitConfig, log *logger.Logger) (func(http.Handler) http.Handler, func()) {
	if !cfg.Enabled {
		return func(next http.Handler) http.Handler {
			return next
		}, func() {} // No-op stop function
	}

	rl := NewRateLimiter(cfg, log)
	return rl.Middleware(), rl.Stop
}

// getClientIP extracts the real client IP from the request.
// Note: In production behind a trusted proxy, configure your proxy
// to set X-Real-IP or the rightmost X-Forwarded-For IP.
func getClientIP(r *http.Request) string {
	// Check X-Real-IP header (typically set by nginx)
	if xrip := r.Header.Get("X-Real-IP"); xrip != "" {
		return strings.TrimSpace(xrip)
	}

	// Check X-Forwarded-For header
	// Warning: This can be spoofed if not behind a trusted proxy
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// Take the first IP in the list (client IP)
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}

	// Fall back to RemoteAddr
	// Remove port if present
	ip := r.RemoteAddr
	if idx := strings.LastIndex(ip, ":"); idx != -1 {
		return ip[:idx]
	}
	return ip
}

// UserKeyFunc returns a rate limit key based on the authenticated caller.
// Falls back to IP address for unauthenticated requests.
func UserKeyFunc(r *http.Request) string {
	if userID := GetUserID(r.Context()); userID != "" {
		return "user:" + userID
	}
	return "ip:" + getClientIP(r)
}

// =============================================================================
// Import Rate Limiting
// =============================================================================

// ImportRateLimiter provides stricter rate limiting for the scan feed import
// endpoint. Imports replace vulnerability sets wholesale and hold transactions
// open, so per-caller throttling keeps one noisy scanner from starving others.
type ImportRateLimiter struct {
	limiter *RateLimiter
	log     *logger.Logger
}

// ImportRateLimitConfig configures import rate limits.
type ImportRateLimitConfig struct {
	// ImportsPerMin is the max import submissions per minute per caller.
	// Default: 6
	ImportsPerMin int
	// CleanupInterval for visitor entries.
	// Default: 1 minute
	CleanupInterval time.Duration
}

// DefaultImportRateLimitConfig returns defaults for import rate limiting.
func DefaultImportRateLimitConfig() ImportRateLimitConfig {
	return ImportRateLimitConfig{
		ImportsPerMin:   6,
		CleanupInterval: time.Minute,
	}
}

// NewImportRateLimiter creates a rate limiter for the import endpoint.
func NewImportRateLimiter(cfg ImportRateLimitConfig, log *logger.Logger) *ImportRateLimiter {
	if cfg.ImportsPerMin == 0 {
		cfg.ImportsPerMin = 6
	}
	if cfg.CleanupInterval == 0 {
		cfg.CleanupInterval = time.Minute
	}

	// Convert per-minute rate to per-second for rate.Limit
	importRate := float64(cfg.ImportsPerMin) / 60.0

	return &ImportRateLimiter{
		limiter: NewRateLimiter(&config.RateLimitConfig{
			Enabled:         true,
			RequestsPerSec:  importRate,
			Burst:           cfg.ImportsPerMin,
			CleanupInterval: cfg.CleanupInterval,
		}, log),
		log: log,
	}
}

// Stop gracefully shuts down the rate limiter.
func (i *ImportRateLimiter) Stop() {
	i.limiter.Stop()
}

// Middleware returns middleware for the import endpoint.
// Uses the authenticated caller (or IP) as the rate limit key.
func (i *ImportRateLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			i.limiter.serveLimited(w, r, "import:"+UserKeyFunc(r), next)
		})
	}
}
