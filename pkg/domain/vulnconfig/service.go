package vulnconfig

import (
	"context"
	"fmt"

	"github.com/vulntrack/api/pkg/domain/shared"
	"github.com/vulntrack/api/pkg/logger"
)

// Service provides read and admin-write access to the configuration.
type Service struct {
	repo     Repository
	provider Provider
	log      *logger.Logger
}

// NewService creates a new config service.
func NewService(repo Repository, provider Provider, log *logger.Logger) *Service {
	return &Service{repo: repo, provider: provider, log: log}
}

// GetConfig returns the effective configuration.
func (s *Service) GetConfig(ctx context.Context) (*Config, error) {
	return s.provider.Get(ctx)
}

// UpdateConfigInput contains input for replacing the configuration.
type UpdateConfigInput struct {
	CriticalDays int
	HighDays     int
	MediumDays   int
	LowDays      int
	ImportMode   string
	UpdatedBy    string
}

// UpdateConfig replaces the configuration record and invalidates caches so
// every replica observes the change on its next read.
func (s *Service) UpdateConfig(ctx context.Context, input UpdateConfigInput) (*Config, error) {
	mode, ok := ParseImportMode(input.ImportMode)
	if !ok {
		return nil, fmt.Errorf("%w: invalid import mode %q", shared.ErrValidation, input.ImportMode)
	}

	cfg, err := NewConfig(input.CriticalDays, input.HighDays, input.MediumDays, input.LowDays, mode, input.UpdatedBy)
	if err != nil {
		return nil, err
	}

	if err := s.repo.Save(ctx, cfg); err != nil {
		return nil, err
	}
	s.provider.Invalidate(ctx)

	_ = s.repo.RecordAudit(ctx, input.UpdatedBy, map[string]any{
		"critical_days": cfg.CriticalDays(),
		"high_days":     cfg.HighDays(),
		"medium_days":   cfg.MediumDays(),
		"low_days":      cfg.LowDays(),
		"import_mode":   cfg.ImportMode().String(),
	})

	s.log.Info("configuration updated",
		"updated_by", input.UpdatedBy,
		"import_mode", cfg.ImportMode().String(),
	)

	return cfg, nil
}
