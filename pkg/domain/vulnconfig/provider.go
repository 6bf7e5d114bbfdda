package vulnconfig

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/vulntrack/api/pkg/domain/shared"
	"github.com/vulntrack/api/pkg/logger"
)

// DefaultCacheTTL bounds how long a replica may serve configuration without
// consulting the shared cache or the database.
const DefaultCacheTTL = 30 * time.Second

const cacheKey = "vulntrack:config:v1"

// Provider supplies the current configuration to the importer and to status
// evaluation without a storage round trip per call.
type Provider interface {
	Get(ctx context.Context) (*Config, error)
	// Invalidate drops cached copies so the next Get observes a fresh read.
	Invalidate(ctx context.Context)
}

// CacheStore is a shared cache for config distribution across replicas.
// Get returns (nil, nil) on a miss.
type CacheStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// CachedProvider layers an in-memory copy over an optional shared cache over
// the repository. A missing row resolves to DefaultConfig without writing.
// When the backends fail after at least one successful load, the last known
// configuration is served so evaluation keeps working through blips.
type CachedProvider struct {
	repo  Repository
	cache CacheStore // may be nil
	ttl   time.Duration
	log   *logger.Logger

	mu        sync.RWMutex
	cached    *Config
	fetchedAt time.Time
}

// NewCachedProvider creates a provider. A nil cache disables the shared
// layer; ttl <= 0 uses DefaultCacheTTL.
func NewCachedProvider(repo Repository, cache CacheStore, ttl time.Duration, log *logger.Logger) *CachedProvider {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CachedProvider{repo: repo, cache: cache, ttl: ttl, log: log}
}

type cachePayload struct {
	CriticalDays int        `json:"critical_days"`
	HighDays     int        `json:"high_days"`
	MediumDays   int        `json:"medium_days"`
	LowDays      int        `json:"low_days"`
	ImportMode   ImportMode `json:"import_mode"`
	UpdatedBy    string     `json:"updated_by"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Get returns the current configuration.
func (p *CachedProvider) Get(ctx context.Context) (*Config, error) {
	p.mu.RLock()
	if p.cached != nil && time.Since(p.fetchedAt) < p.ttl {
		cfg := p.cached
		p.mu.RUnlock()
		return cfg, nil
	}
	p.mu.RUnlock()

	if cfg := p.fromSharedCache(ctx); cfg != nil {
		p.store(cfg)
		return cfg, nil
	}

	cfg, err := p.repo.Get(ctx)
	switch {
	case err == nil:
	case shared.IsNotFound(err):
		cfg = DefaultConfig()
	default:
		p.mu.RLock()
		stale := p.cached
		p.mu.RUnlock()
		if stale != nil {
			p.log.Warn("config read failed, serving last known configuration", "error", err)
			return stale, nil
		}
		return nil, err
	}

	p.store(cfg)
	p.toSharedCache(ctx, cfg)
	return cfg, nil
}

// Invalidate drops the in-memory copy and the shared cache entry.
func (p *CachedProvider) Invalidate(ctx context.Context) {
	p.mu.Lock()
	p.cached = nil
	p.fetchedAt = time.Time{}
	p.mu.Unlock()

	if p.cache != nil {
		if err := p.cache.Delete(ctx, cacheKey); err != nil {
			p.log.Warn("config cache invalidation failed", "error", err)
		}
	}
}

func (p *CachedProvider) store(cfg *Config) {
	p.mu.Lock()
	p.cached = cfg
	p.fetchedAt = time.Now()
	p.mu.Unlock()
}

func (p *CachedProvider) fromSharedCache(ctx context.Context) *Config {
	if p.cache == nil {
		return nil
	}
	raw, err := p.cache.Get(ctx, cacheKey)
	if err != nil {
		p.log.Warn("config cache read failed", "error", err)
		return nil
	}
	if raw == nil {
		return nil
	}
	var payload cachePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		p.log.Warn("config cache entry malformed", "error", err)
		return nil
	}
	return Reconstitute(Data{
		CriticalDays: payload.CriticalDays,
		HighDays:     payload.HighDays,
		MediumDays:   payload.MediumDays,
		LowDays:      payload.LowDays,
		ImportMode:   payload.ImportMode,
		UpdatedBy:    payload.UpdatedBy,
		UpdatedAt:    payload.UpdatedAt,
	})
}

func (p *CachedProvider) toSharedCache(ctx context.Context, cfg *Config) {
	if p.cache == nil {
		return
	}
	raw, err := json.Marshal(cachePayload{
		CriticalDays: cfg.CriticalDays(),
		HighDays:     cfg.HighDays(),
		MediumDays:   cfg.MediumDays(),
		LowDays:      cfg.LowDays(),
		ImportMode:   cfg.ImportMode(),
		UpdatedBy:    cfg.UpdatedBy(),
		UpdatedAt:    cfg.UpdatedAt(),
	})
	if err != nil {
		return
	}
	if err := p.cache.Set(ctx, cacheKey, raw, p.ttl*4); err != nil {
		p.log.Warn("config cache write failed", "error", err)
	}
}
