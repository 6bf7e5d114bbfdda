package main

import (
	"github.com/vulntrack/api/internal/config"
	"github.com/vulntrack/api/internal/infra/http/handler"
	"github.com/vulntrack/api/internal/infra/http/routes"
	"github.com/vulntrack/api/internal/infra/postgres"
	"github.com/vulntrack/api/internal/infra/redis"
	"github.com/vulntrack/api/pkg/logger"
	"github.com/vulntrack/api/pkg/validator"
)

// HandlerDeps contains dependencies needed to create handlers.
type HandlerDeps struct {
	Config      *config.Config
	Log         *logger.Logger
	Validator   *validator.Validator
	DB          *postgres.DB
	RedisClient *redis.Client
	Services    *Services
}

// NewHandlers creates all HTTP handlers.
func NewHandlers(deps *HandlerDeps) routes.Handlers {
	log := deps.Log
	v := deps.Validator
	svc := deps.Services

	healthOpts := []handler.HealthHandlerOption{
		handler.WithDatabase(deps.DB),
	}
	if deps.RedisClient != nil {
		healthOpts = append(healthOpts, handler.WithRedis(deps.RedisClient))
	}

	return routes.Handlers{
		Health: handler.NewHealthHandler(healthOpts...),

		Asset:         handler.NewAssetHandler(svc.Asset, svc.Vulnerability, v, log),
		Vulnerability: handler.NewVulnerabilityHandler(svc.Vulnerability, v, log),
		Import:        handler.NewImportHandler(svc.Ingest, log),
		Exception:     handler.NewExceptionHandler(svc.Exception, v, log),
		Config:        handler.NewConfigHandler(svc.Config, v, log),
	}
}
