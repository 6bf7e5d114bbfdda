package routes

import (
	"github.com/vulntrack/api/internal/infra/http/handler"
	"github.com/vulntrack/api/internal/infra/http/middleware"
	"github.com/vulntrack/api/pkg/domain/shared"
)

// registerExceptionRoutes registers the exception workflow endpoints.
// Any authenticated user can raise, list, and cancel their own requests;
// the pending queue and decisions require an elevated role.
func registerExceptionRoutes(
	router Router,
	h *handler.ExceptionHandler,
	identity Middleware,
) {
	elevated := middleware.RequireElevated()
	admin := middleware.RequireRole(shared.RoleAdmin)

	router.Group("/api/v1/exception-requests", func(r Router) {
		// Static segments must be registered before /{id} to avoid matching
		r.GET("/pending", h.ListPending, elevated)
		r.GET("/mine", h.ListMine)
		r.POST("/sweep", h.Sweep, admin)

		r.POST("/", h.CreateRequest)
		r.GET("/", h.ListRequests)
		r.GET("/{id}", h.GetRequest)

		// Decisions
		r.POST("/{id}/approve", h.Approve, elevated)
		r.POST("/{id}/reject", h.Reject, elevated)

		// Withdrawal by the requester
		r.POST("/{id}/cancel", h.Cancel)
	}, identity)

	// Materialized exceptions are read-only; their lifecycle is driven
	// entirely by the request workflow.
	router.Group("/api/v1/exceptions", func(r Router) {
		r.GET("/", h.ListActive)
	}, identity)
}
