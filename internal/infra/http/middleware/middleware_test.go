package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/vulntrack/api/internal/config"
	"github.com/vulntrack/api/pkg/logger"
)

func TestRequestID_GeneratesWhenAbsent(t *testing.T) {
	var ctxID string
	wrapped := RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctxID = GetRequestID(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/assets", nil)
	rec := httptest.NewRecorder()
	wrapped.ServeHTTP(rec, req)

	assert.NotEmpty(t, ctxID)
	assert.Equal(t, ctxID, rec.Header().Get("X-Request-ID"))
}

func TestRequestID_PreservesInbound(t *testing.T) {
	var ctxID string
	wrapped := RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctxID = GetRequestID(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/assets", nil)
	req.Header.Set("X-Request-ID", "gw-abc-123")
	rec := httptest.NewRecorder()
	wrapped.ServeHTTP(rec, req)

	assert.Equal(t, "gw-abc-123", ctxID)
	assert.Equal(t, "gw-abc-123", rec.Header().Get("X-Request-ID"))
}

func TestRequestID_ReplacesOversizedInbound(t *testing.T) {
	wrapped := RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/assets", nil)
	req.Header.Set("X-Request-ID", strings.Repeat("x", 300))
	rec := httptest.NewRecorder()
	wrapped.ServeHTTP(rec, req)

	got := rec.Header().Get("X-Request-ID")
	assert.NotEmpty(t, got)
	assert.LessOrEqual(t, len(got), 128)
}

func TestRecoveryWithConfig_TurnsPanicInto500(t *testing.T) {
	wrapped := RecoveryWithConfig(logger.NewNop(), true)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/assets", nil)
	rec := httptest.NewRecorder()

	assert.NotPanics(t, func() { wrapped.ServeHTTP(rec, req) })
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "INTERNAL_ERROR")
}

func TestRecoveryWithConfig_PassesAbortHandlerThrough(t *testing.T) {
	wrapped := RecoveryWithConfig(logger.NewNop(), true)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/assets", nil)
	rec := httptest.NewRecorder()

	assert.Panics(t, func() { wrapped.ServeHTTP(rec, req) })
}

func TestTimeout_FastHandlerUnaffected(t *testing.T) {
	wrapped := Timeout(time.Second)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("done"))
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/assets", nil)
	rec := httptest.NewRecorder()
	wrapped.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "done", rec.Body.String())
}

func TestTimeout_SlowHandlerGets504(t *testing.T) {
	release := make(chan struct{})
	wrapped := Timeout(20 * time.Millisecond)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
		close(release)
		// Late writes must be discarded, not mixed into the 504 body.
		_, _ = w.Write([]byte("too late"))
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/assets", nil)
	rec := httptest.NewRecorder()
	wrapped.ServeHTTP(rec, req)
	<-release

	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
	assert.Contains(t, rec.Body.String(), "TIMEOUT")
	assert.NotContains(t, rec.Body.String(), "too late")
}

func TestTimeout_PropagatesHandlerPanic(t *testing.T) {
	wrapped := Timeout(time.Second)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/assets", nil)
	rec := httptest.NewRecorder()

	assert.Panics(t, func() { wrapped.ServeHTTP(rec, req) })
}

func TestCORS(t *testing.T) {
	cfg := &config.CORSConfig{
		AllowedOrigins: []string{"https://portal.example.com"},
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:         600,
	}

	wrapped := CORS(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("allowed origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/assets", nil)
		req.Header.Set("Origin", "https://portal.example.com")
		rec := httptest.NewRecorder()
		wrapped.ServeHTTP(rec, req)

		assert.Equal(t, "https://portal.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
	})

	t.Run("disallowed origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/assets", nil)
		req.Header.Set("Origin", "https://evil.example.com")
		rec := httptest.NewRecorder()
		wrapped.ServeHTTP(rec, req)

		assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("preflight", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/api/v1/assets", nil)
		req.Header.Set("Origin", "https://portal.example.com")
		rec := httptest.NewRecorder()
		wrapped.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "PATCH")
		assert.Equal(t, "600", rec.Header().Get("Access-Control-Max-Age"))
	})

	t.Run("wildcard disables credentials", func(t *testing.T) {
		wildcard := CORS(&config.CORSConfig{AllowedOrigins: []string{"*"}})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest(http.MethodGet, "/api/v1/assets", nil)
		req.Header.Set("Origin", "https://anywhere.example.com")
		rec := httptest.NewRecorder()
		wildcard.ServeHTTP(rec, req)

		assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Empty(t, rec.Header().Get("Access-Control-Allow-Credentials"))
	})
}

func TestLoggerWithConfig_SkipsConfiguredPaths(t *testing.T) {
	var buf bytes.Buffer
	log := logger.New(logger.Config{Level: "info", Format: "json", Output: &buf})

	wrapped := LoggerWithConfig(log, LoggerConfig{SkipPaths: []string{"/health"}})(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	wrapped.ServeHTTP(httptest.NewRecorder(), req)
	assert.Empty(t, buf.String(), "skipped path must not be logged")

	req = httptest.NewRequest(http.MethodGet, "/api/v1/assets", nil)
	wrapped.ServeHTTP(httptest.NewRecorder(), req)
	assert.Contains(t, buf.String(), "http request")
	assert.Contains(t, buf.String(), "/api/v1/assets")
}

func TestLoggerWithConfig_SkipSuccessful(t *testing.T) {
	var buf bytes.Buffer
	log := logger.New(logger.Config{Level: "info", Format: "json", Output: &buf})

	wrapped := LoggerWithConfig(log, LoggerConfig{SkipSuccessful: true})(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/missing" {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			w.WriteHeader(http.StatusOK)
		}))

	wrapped.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/assets", nil))
	assert.Empty(t, buf.String(), "2xx must be skipped")

	wrapped.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/missing", nil))
	assert.Contains(t, buf.String(), "404")
}

func TestRouteLabel(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/api/v1/assets", "/api/v1/assets"},
		{"/api/v1/assets/2f0c8e9a-3b1d-4f6e-9a7c-1d2e3f4a5b6c", "/api/v1/assets/{id}"},
		{"/api/v1/assets/2f0c8e9a-3b1d-4f6e-9a7c-1d2e3f4a5b6c/vulnerabilities", "/api/v1/assets/{id}/vulnerabilities"},
		{"/api/v1/exception-requests/42", "/api/v1/exception-requests/{id}"},
		{"/api/v1/exception-requests/pending", "/api/v1/exception-requests/pending"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, routeLabel(tt.path), tt.path)
	}
}
