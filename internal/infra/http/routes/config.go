package routes

import (
	"github.com/vulntrack/api/internal/infra/http/handler"
	"github.com/vulntrack/api/internal/infra/http/middleware"
	"github.com/vulntrack/api/pkg/domain/shared"
)

// registerConfigRoutes registers the service configuration endpoints.
// Everyone can read the effective thresholds; replacing them is admin-only.
func registerConfigRoutes(
	router Router,
	h *handler.ConfigHandler,
	identity Middleware,
) {
	router.Group("/api/v1/config", func(r Router) {
		r.GET("/", h.Get)
		r.PUT("/", h.Update, middleware.RequireRole(shared.RoleAdmin))
	}, identity)
}
