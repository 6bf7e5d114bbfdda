package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// Pinger is the probe surface a dependency must expose to be health-checked.
type Pinger interface {
	Ping(ctx context.Context) error
}

// healthCheck pairs a dependency with its name in the readiness report.
type healthCheck struct {
	name   string
	pinger Pinger
}

// HealthHandler serves the liveness and readiness probes.
type HealthHandler struct {
	checks []healthCheck
}

// HealthHandlerOption configures the health handler.
type HealthHandlerOption func(*HealthHandler)

// WithDatabase registers the database in the readiness probe.
func WithDatabase(db Pinger) HealthHandlerOption {
	return func(h *HealthHandler) {
		h.checks = append(h.checks, healthCheck{name: "database", pinger: db})
	}
}

// WithRedis registers redis in the readiness probe.
func WithRedis(redis Pinger) HealthHandlerOption {
	return func(h *HealthHandler) {
		h.checks = append(h.checks, healthCheck{name: "redis", pinger: redis})
	}
}

// NewHealthHandler creates a health handler probing the given dependencies.
func NewHealthHandler(opts ...HealthHandlerOption) *HealthHandler {
	h := &HealthHandler{}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HealthResponse is the liveness probe body.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// Health handles the /health endpoint. Liveness never touches
// dependencies; a wedged database must not get the pod restarted.
// @Summary      Liveness probe
// @Description  Reports that the process is running; does not probe dependencies
// @Tags         Health
// @Produce      json
// @Success      200  {object}  HealthResponse
// @Router       /health [get]
func (h *HealthHandler) Health(w http.ResponseWriter, _ *http.Request) {
	writeHealthJSON(w, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
	})
}

// CheckResult is one dependency's probe outcome.
type CheckResult struct {
	Status   string `json:"status"`
	Duration string `json:"duration,omitempty"`
	Error    string `json:"error,omitempty"`
}

// ReadyResponse is the readiness probe body.
type ReadyResponse struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// Ready handles the /ready endpoint. All dependencies are probed in
// parallel under a shared deadline; any failure flips the response to 503.
// @Summary      Readiness probe
// @Description  Probes the database and redis; returns 503 when any dependency is down
// @Tags         Health
// @Produce      json
// @Success      200  {object}  ReadyResponse
// @Failure      503  {object}  ReadyResponse
// @Router       /ready [get]
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	results := make(map[string]CheckResult, len(h.checks))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, check := range h.checks {
		wg.Add(1)
		go func(c healthCheck) {
			defer wg.Done()
			result := probe(ctx, c.pinger)
			mu.Lock()
			results[c.name] = result
			mu.Unlock()
		}(check)
	}
	wg.Wait()

	status, code := "ready", http.StatusOK
	for _, result := range results {
		if result.Status != "ok" {
			status, code = "not_ready", http.StatusServiceUnavailable
			break
		}
	}

	writeHealthJSON(w, code, ReadyResponse{
		Status:    status,
		Timestamp: time.Now().UTC(),
		Checks:    results,
	})
}

func probe(ctx context.Context, pinger Pinger) CheckResult {
	start := time.Now()
	err := pinger.Ping(ctx)
	elapsed := time.Since(start)

	if err != nil {
		return CheckResult{Status: "error", Duration: elapsed.String(), Error: err.Error()}
	}
	return CheckResult{Status: "ok", Duration: elapsed.String()}
}

func writeHealthJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
