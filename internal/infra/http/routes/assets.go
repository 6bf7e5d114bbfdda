package routes

import (
	"github.com/vulntrack/api/internal/config"
	"github.com/vulntrack/api/internal/infra/http/handler"
	"github.com/vulntrack/api/internal/infra/http/middleware"
	"github.com/vulntrack/api/pkg/domain/shared"
)

// registerAssetRoutes registers asset management endpoints.
// Assets are created by the importer; the API exposes reads plus the
// manually maintained fields (owner) and deletion.
func registerAssetRoutes(
	router Router,
	h *handler.AssetHandler,
	identity Middleware,
) {
	admin := middleware.RequireRole(shared.RoleAdmin)

	router.Group("/api/v1/assets", func(r Router) {
		// Read operations
		r.GET("/", h.List)
		r.GET("/{id}", h.Get)
		r.GET("/{id}/vulnerabilities", h.ListVulnerabilities)

		// Manual annotations
		r.PATCH("/{id}", h.Update)

		// Deletion removes the asset's vulnerability rows first; there is
		// no cascade at the schema level.
		r.DELETE("/{id}", h.Delete, admin)
	}, identity)
}

// registerVulnerabilityRoutes registers vulnerability read endpoints.
// All writes go through the import route.
func registerVulnerabilityRoutes(
	router Router,
	h *handler.VulnerabilityHandler,
	identity Middleware,
) {
	router.Group("/api/v1/vulnerabilities", func(r Router) {
		r.GET("/", h.List)
		r.GET("/{id}", h.Get)
	}, identity)
}

// registerImportRoutes registers the scanner feed import endpoint.
// The route carries its own body limit (the global limit skips this
// prefix) and accepts gzip and zstd compressed payloads.
func registerImportRoutes(
	router Router,
	h *handler.ImportHandler,
	cfg *config.Config,
	identity Middleware,
	limiter *middleware.ImportRateLimiter,
) {
	middlewares := []Middleware{identity}
	if limiter != nil {
		middlewares = append(middlewares, limiter.Middleware())
	}
	middlewares = append(middlewares,
		middleware.DecompressForImport(),
		middleware.BodyLimit(cfg.Import.MaxBodySize),
	)

	router.Group("/api/v1/import", func(r Router) {
		r.POST("/", h.Import)
	}, middlewares...)
}
