package asset

import (
	"context"

	"github.com/vulntrack/api/pkg/domain/shared"
	"github.com/vulntrack/api/pkg/logger"
	"github.com/vulntrack/api/pkg/pagination"
)

// VulnerabilityPurger removes an asset's vulnerability rows through the
// importer-owned delete operation. Asset deletion must go through it instead
// of a relational cascade.
type VulnerabilityPurger interface {
	DeleteByAsset(ctx context.Context, assetID shared.ID) (int64, error)
}

// Service provides business logic for assets.
type Service struct {
	repo   Repository
	purger VulnerabilityPurger
	log    *logger.Logger
}

// NewService creates a new asset service.
func NewService(repo Repository, purger VulnerabilityPurger, log *logger.Logger) *Service {
	return &Service{repo: repo, purger: purger, log: log}
}

// Get retrieves an asset by ID.
func (s *Service) Get(ctx context.Context, id shared.ID) (*Asset, error) {
	return s.repo.GetByID(ctx, id)
}

// GetByHostname retrieves an asset by its normalized hostname.
func (s *Service) GetByHostname(ctx context.Context, hostname string) (*Asset, error) {
	return s.repo.GetByHostname(ctx, NormalizeHostname(hostname))
}

// ListInput contains input for listing assets.
type ListInput struct {
	Hostname  *string
	Owner     *string
	HostGroup *string
	ADDomain  *string
	Page      int
	PerPage   int
	Sort      string
}

// List returns assets matching the input with the total count.
func (s *Service) List(ctx context.Context, input ListInput) ([]*Asset, int64, error) {
	filter := Filter{
		Hostname:  input.Hostname,
		Owner:     input.Owner,
		HostGroup: input.HostGroup,
		ADDomain:  input.ADDomain,
	}

	var sortOpt *pagination.SortOption
	if input.Sort != "" {
		sortOpt = pagination.NewSortOption(AllowedSortFields()).Parse(input.Sort)
	}

	return s.repo.List(ctx, filter, pagination.New(input.Page, input.PerPage), sortOpt)
}

// UpdateInput contains the manually maintained fields of an asset. Imports
// never touch these, and imports' fields cannot be edited here.
type UpdateInput struct {
	Owner *string
}

// Update applies manual annotations to an asset.
func (s *Service) Update(ctx context.Context, id shared.ID, input UpdateInput) (*Asset, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if input.Owner != nil {
		a.SetOwner(*input.Owner)
	}

	if err := s.repo.Update(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// Delete removes an asset and its vulnerabilities. The vulnerability rows
// are deleted first through the importer-owned operation; a failure there
// leaves the asset untouched. A failure between the two steps leaves an
// asset with zero vulnerabilities, which the next import repairs.
func (s *Service) Delete(ctx context.Context, id shared.ID) error {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	purged, err := s.purger.DeleteByAsset(ctx, id)
	if err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}

	s.log.Info("asset deleted",
		"asset_id", id.String(),
		"hostname", a.Hostname(),
		"vulnerabilities_removed", purged,
	)
	return nil
}
