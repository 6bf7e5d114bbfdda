// Package routes registers all HTTP routes for the API.
// Routes are organized by domain for maintainability.
package routes

import (
	"github.com/vulntrack/api/internal/config"
	infrahttp "github.com/vulntrack/api/internal/infra/http"
	"github.com/vulntrack/api/internal/infra/http/handler"
	"github.com/vulntrack/api/internal/infra/http/middleware"
	"github.com/vulntrack/api/pkg/logger"
)

// Middleware is an alias to the http package's Middleware type.
type Middleware = infrahttp.Middleware

// Router is an alias to the http package's Router interface.
type Router = infrahttp.Router

// Handlers holds all HTTP handlers for route registration.
type Handlers struct {
	Health        *handler.HealthHandler
	Asset         *handler.AssetHandler         // nil if not initialized (no database)
	Vulnerability *handler.VulnerabilityHandler // nil if not initialized (no database)
	Import        *handler.ImportHandler        // nil if not initialized (no database)
	Exception     *handler.ExceptionHandler     // nil if not initialized (no database)
	Config        *handler.ConfigHandler        // nil if not initialized (no database)
}

// Register registers all application routes.
// This keeps route definitions in the infrastructure layer, not in main.
//
// Routes are organized across multiple files by domain:
//   - misc.go: Health and metrics
//   - assets.go: Assets, vulnerabilities, feed import
//   - exceptions.go: Exception requests and active exceptions
//   - config.go: Service configuration
//
// The returned cleanup stops background middleware state (the import rate
// limiter) and must be called on shutdown.
func Register(
	router Router,
	h Handlers,
	cfg *config.Config,
	log *logger.Logger,
) (cleanup func()) {
	cleanup = func() {}

	identity := middleware.Identity(middleware.IdentityConfig{
		Secret:     cfg.Auth.JWTSecret,
		Issuer:     cfg.Auth.JWTIssuer,
		DevHeaders: cfg.Auth.DevIdentityHeaders,
		Logger:     log,
	})

	// Health routes (public)
	registerHealthRoutes(router, h.Health)

	// Asset routes (identity required)
	if h.Asset != nil {
		registerAssetRoutes(router, h.Asset, identity)
	}

	// Vulnerability routes (identity required)
	if h.Vulnerability != nil {
		registerVulnerabilityRoutes(router, h.Vulnerability, identity)
	}

	// Import route. Imports replace vulnerability sets wholesale, so the
	// route gets its own per-user rate limit on top of the global one.
	if h.Import != nil {
		var importLimiter *middleware.ImportRateLimiter
		if cfg.RateLimit.Enabled {
			importLimiter = middleware.NewImportRateLimiter(middleware.DefaultImportRateLimitConfig(), log)
			cleanup = importLimiter.Stop
		}
		registerImportRoutes(router, h.Import, cfg, identity, importLimiter)
	}

	// Exception routes (identity required, decisions elevated-only)
	if h.Exception != nil {
		registerExceptionRoutes(router, h.Exception, identity)
	}

	// Config routes (identity required, writes admin-only)
	if h.Config != nil {
		registerConfigRoutes(router, h.Config, identity)
	}

	return cleanup
}
