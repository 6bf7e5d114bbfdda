package vulnconfig

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vulntrack/api/pkg/domain/shared"
	"github.com/vulntrack/api/pkg/logger"
)

type mockRepo struct {
	cfg      *Config
	err      error
	getCalls int
}

func (m *mockRepo) Get(_ context.Context) (*Config, error) {
	m.getCalls++
	if m.err != nil {
		return nil, m.err
	}
	if m.cfg == nil {
		return nil, shared.ErrNotFound
	}
	return m.cfg, nil
}

func (m *mockRepo) Save(_ context.Context, cfg *Config) error {
	m.cfg = cfg
	return nil
}

func (m *mockRepo) RecordAudit(_ context.Context, _ string, _ map[string]any) error {
	return nil
}

type mockCache struct {
	entries map[string][]byte
	err     error
}

func newMockCache() *mockCache {
	return &mockCache{entries: make(map[string][]byte)}
}

func (m *mockCache) Get(_ context.Context, key string) ([]byte, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.entries[key], nil
}

func (m *mockCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	if m.err != nil {
		return m.err
	}
	m.entries[key] = value
	return nil
}

func (m *mockCache) Delete(_ context.Context, key string) error {
	delete(m.entries, key)
	return nil
}

func TestCachedProvider_Get(t *testing.T) {
	ctx := context.Background()

	t.Run("missing row falls back to defaults", func(t *testing.T) {
		repo := &mockRepo{}
		p := NewCachedProvider(repo, nil, time.Minute, logger.NewNop())

		cfg, err := p.Get(ctx)
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if cfg.CriticalDays() != DefaultConfig().CriticalDays() {
			t.Errorf("CriticalDays = %d, want default", cfg.CriticalDays())
		}
	})

	t.Run("second read within ttl served from memory", func(t *testing.T) {
		stored, _ := NewConfig(7, 14, 30, 90, ImportModeDaysOpen, "admin")
		repo := &mockRepo{cfg: stored}
		p := NewCachedProvider(repo, nil, time.Minute, logger.NewNop())

		if _, err := p.Get(ctx); err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if _, err := p.Get(ctx); err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if repo.getCalls != 1 {
			t.Errorf("repo reads = %d, want 1", repo.getCalls)
		}
	})

	t.Run("invalidate forces a fresh read", func(t *testing.T) {
		stored, _ := NewConfig(7, 14, 30, 90, ImportModeDaysOpen, "admin")
		repo := &mockRepo{cfg: stored}
		p := NewCachedProvider(repo, nil, time.Minute, logger.NewNop())

		_, _ = p.Get(ctx)
		p.Invalidate(ctx)
		_, _ = p.Get(ctx)

		if repo.getCalls != 2 {
			t.Errorf("repo reads = %d, want 2", repo.getCalls)
		}
	})

	t.Run("shared cache hit skips the repository", func(t *testing.T) {
		stored, _ := NewConfig(7, 14, 30, 90, ImportModePatchPublished, "admin")
		repo := &mockRepo{cfg: stored}
		cache := newMockCache()

		// First provider populates the shared cache.
		p1 := NewCachedProvider(repo, cache, time.Minute, logger.NewNop())
		if _, err := p1.Get(ctx); err != nil {
			t.Fatalf("Get() error = %v", err)
		}

		// A second replica reads through the shared cache only.
		p2 := NewCachedProvider(repo, cache, time.Minute, logger.NewNop())
		cfg, err := p2.Get(ctx)
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if repo.getCalls != 1 {
			t.Errorf("repo reads = %d, want 1", repo.getCalls)
		}
		if cfg.ImportMode() != ImportModePatchPublished {
			t.Errorf("ImportMode = %v, want %v", cfg.ImportMode(), ImportModePatchPublished)
		}
	})

	t.Run("backend failure serves last known config", func(t *testing.T) {
		stored, _ := NewConfig(7, 14, 30, 90, ImportModeDaysOpen, "admin")
		repo := &mockRepo{cfg: stored}
		p := NewCachedProvider(repo, nil, time.Nanosecond, logger.NewNop())

		if _, err := p.Get(ctx); err != nil {
			t.Fatalf("Get() error = %v", err)
		}

		repo.err = errors.New("connection refused")
		time.Sleep(time.Millisecond)

		cfg, err := p.Get(ctx)
		if err != nil {
			t.Fatalf("Get() after failure error = %v", err)
		}
		if cfg.CriticalDays() != 7 {
			t.Errorf("CriticalDays = %d, want 7", cfg.CriticalDays())
		}
	})

	t.Run("failure with no prior load propagates", func(t *testing.T) {
		repo := &mockRepo{err: errors.New("connection refused")}
		p := NewCachedProvider(repo, nil, time.Minute, logger.NewNop())

		if _, err := p.Get(ctx); err == nil {
			t.Error("Get() should propagate the first failure")
		}
	})
}

func TestService_UpdateConfig(t *testing.T) {
	ctx := context.Background()

	t.Run("update persists and invalidates", func(t *testing.T) {
		repo := &mockRepo{}
		p := NewCachedProvider(repo, nil, time.Minute, logger.NewNop())
		svc := NewService(repo, p, logger.NewNop())

		// Warm the cache with defaults.
		if _, err := svc.GetConfig(ctx); err != nil {
			t.Fatalf("GetConfig() error = %v", err)
		}

		cfg, err := svc.UpdateConfig(ctx, UpdateConfigInput{
			CriticalDays: 7,
			HighDays:     14,
			MediumDays:   30,
			LowDays:      90,
			ImportMode:   "patch-publication-date",
			UpdatedBy:    "admin",
		})
		if err != nil {
			t.Fatalf("UpdateConfig() error = %v", err)
		}
		if cfg.ImportMode() != ImportModePatchPublished {
			t.Errorf("ImportMode = %v", cfg.ImportMode())
		}

		got, err := svc.GetConfig(ctx)
		if err != nil {
			t.Fatalf("GetConfig() error = %v", err)
		}
		if got.CriticalDays() != 7 {
			t.Errorf("CriticalDays after update = %d, want 7", got.CriticalDays())
		}
	})

	t.Run("invalid mode rejected", func(t *testing.T) {
		repo := &mockRepo{}
		p := NewCachedProvider(repo, nil, time.Minute, logger.NewNop())
		svc := NewService(repo, p, logger.NewNop())

		_, err := svc.UpdateConfig(ctx, UpdateConfigInput{
			CriticalDays: 7, HighDays: 14, MediumDays: 30, LowDays: 90,
			ImportMode: "lunar",
			UpdatedBy:  "admin",
		})
		if !errors.Is(err, shared.ErrValidation) {
			t.Errorf("error = %v, want validation", err)
		}
	})
}
