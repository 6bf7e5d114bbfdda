package main

import (
	"context"
	"fmt"
	"time"

	"github.com/vulntrack/api/internal/app/ingest"
	"github.com/vulntrack/api/internal/config"
	"github.com/vulntrack/api/internal/infra/redis"
	"github.com/vulntrack/api/pkg/domain/asset"
	"github.com/vulntrack/api/pkg/domain/exception"
	"github.com/vulntrack/api/pkg/domain/shared"
	"github.com/vulntrack/api/pkg/domain/vulnconfig"
	"github.com/vulntrack/api/pkg/domain/vulnerability"
	"github.com/vulntrack/api/pkg/logger"
)

// thresholdSource adapts the config provider to the evaluator's
// vulnerability.ThresholdSource interface.
type thresholdSource struct {
	provider vulnconfig.Provider
}

func (t *thresholdSource) Thresholds(ctx context.Context) (vulnerability.Thresholds, error) {
	cfg, err := t.provider.Get(ctx)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// exceptionSource adapts the exception service to the evaluator's
// vulnerability.ExceptionSource interface.
type exceptionSource struct {
	svc *exception.Service
}

func (e *exceptionSource) ActiveForAssets(ctx context.Context, assetIDs []shared.ID, now time.Time) ([]vulnerability.ExceptionCheck, error) {
	active, err := e.svc.ActiveForAssets(ctx, assetIDs, now)
	if err != nil {
		return nil, err
	}
	checks := make([]vulnerability.ExceptionCheck, 0, len(active))
	for _, ex := range active {
		checks = append(checks, ex)
	}
	return checks, nil
}

// Services holds all service instances.
type Services struct {
	Asset         *asset.Service
	Vulnerability *vulnerability.Service
	Exception     *exception.Service
	Config        *vulnconfig.Service
	Ingest        *ingest.Service

	// ConfigProvider is the cached read path shared by the importer and the
	// status evaluator.
	ConfigProvider vulnconfig.Provider
}

// ServiceDeps contains dependencies needed to create services.
type ServiceDeps struct {
	Config      *config.Config
	Log         *logger.Logger
	Repos       *Repositories
	RedisClient *redis.Client
}

// NewServices initializes all services.
func NewServices(deps *ServiceDeps) (*Services, error) {
	cfg := deps.Config
	log := deps.Log
	repos := deps.Repos

	s := &Services{}

	// Configuration provider: in-memory over the shared redis cache over the
	// database. Without redis each replica still caches locally.
	var cache vulnconfig.CacheStore
	if deps.RedisClient != nil {
		configCache, err := redis.NewConfigCache(deps.RedisClient)
		if err != nil {
			return nil, fmt.Errorf("failed to create config cache: %w", err)
		}
		cache = configCache
	}
	provider := vulnconfig.NewCachedProvider(repos.Config, cache, vulnconfig.DefaultCacheTTL, log)
	s.ConfigProvider = provider

	s.Config = vulnconfig.NewService(repos.Config, provider, log)

	// Exception workflow resolves single-vulnerability scopes against the
	// vulnerability store.
	s.Exception = exception.NewService(repos.Exception, repos.Vulnerability, log)

	// Status evaluation reads thresholds from the config provider and active
	// exceptions from the workflow.
	s.Vulnerability = vulnerability.NewService(
		repos.Vulnerability,
		&thresholdSource{provider: provider},
		&exceptionSource{svc: s.Exception},
		log,
	)

	// Asset deletion purges vulnerability rows through the importer-owned
	// delete operation before removing the asset row.
	s.Asset = asset.NewService(repos.Asset, repos.Vulnerability, log)

	// Importer. Remediation events go to redis when available; a nil
	// publisher only disables the events, never the import.
	var publisher ingest.Publisher
	if deps.RedisClient != nil {
		publisher = redis.NewRemediationPublisher(deps.RedisClient, log)
	}
	s.Ingest = ingest.NewService(repos.Reconcile, repos.Asset, provider, publisher, cfg.Import.Parallelism, log)

	return s, nil
}
