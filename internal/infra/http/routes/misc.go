package routes

import (
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vulntrack/api/internal/infra/http/handler"
)

// registerHealthRoutes registers health check endpoints.
func registerHealthRoutes(router Router, h *handler.HealthHandler) {
	router.GET("/health", h.Health)
	router.GET("/ready", h.Ready)
	router.GET("/metrics", promhttp.Handler().ServeHTTP)
}
