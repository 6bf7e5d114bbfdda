package vulnerability

import (
	"context"
	"fmt"
	"time"

	"github.com/vulntrack/api/pkg/domain/shared"
	"github.com/vulntrack/api/pkg/logger"
	"github.com/vulntrack/api/pkg/pagination"
)

// ThresholdSource supplies the effective reminder thresholds. Implemented by
// an adapter over the config provider at wiring time.
type ThresholdSource interface {
	Thresholds(ctx context.Context) (Thresholds, error)
}

// ExceptionSource supplies the active exceptions that can cover
// vulnerabilities on the given assets.
type ExceptionSource interface {
	ActiveForAssets(ctx context.Context, assetIDs []shared.ID, now time.Time) ([]ExceptionCheck, error)
}

// Evaluated pairs a vulnerability with its status as of one evaluation
// instant.
type Evaluated struct {
	Vulnerability *Vulnerability
	Status        Status
}

// Service provides read access to vulnerabilities with their computed
// status. All writes happen through the importer.
type Service struct {
	repo       Repository
	thresholds ThresholdSource
	exceptions ExceptionSource
	log        *logger.Logger
}

// NewService creates a new vulnerability read service.
func NewService(repo Repository, thresholds ThresholdSource, exceptions ExceptionSource, log *logger.Logger) *Service {
	return &Service{repo: repo, thresholds: thresholds, exceptions: exceptions, log: log}
}

// Get returns one vulnerability with its evaluated status.
func (s *Service) Get(ctx context.Context, id shared.ID) (*Evaluated, error) {
	v, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	cfg, err := s.thresholds.Thresholds(ctx)
	if err != nil {
		return nil, err
	}
	exs, err := s.exceptions.ActiveForAssets(ctx, []shared.ID{v.AssetID()}, now)
	if err != nil {
		return nil, err
	}

	return &Evaluated{Vulnerability: v, Status: EvaluateStatus(v, cfg, exs, now)}, nil
}

// ListInput contains input for listing vulnerabilities.
type ListInput struct {
	AssetID     *shared.ID
	CVEID       *string
	Severity    *string
	MinSeverity *string
	Status      *string
	Page        int
	PerPage     int
	Sort        string
}

// List returns vulnerabilities matching the input with their evaluated
// statuses and the total count. A status filter is pushed down to storage
// using the same thresholds the evaluator applies, so pagination totals stay
// exact.
func (s *Service) List(ctx context.Context, input ListInput) ([]*Evaluated, int64, error) {
	now := time.Now().UTC()
	cfg, err := s.thresholds.Thresholds(ctx)
	if err != nil {
		return nil, 0, err
	}

	filter := Filter{AssetID: input.AssetID}
	if input.CVEID != nil && *input.CVEID != "" {
		cve := NormalizeCVEID(*input.CVEID)
		if !IsValidCVEID(cve) {
			return nil, 0, fmt.Errorf("%w: invalid CVE ID format", shared.ErrValidation)
		}
		filter.CVEID = &cve
	}
	if input.Severity != nil && *input.Severity != "" {
		sev, err := ParseSeverity(*input.Severity)
		if err != nil {
			return nil, 0, err
		}
		filter.Severity = &sev
	}
	if input.MinSeverity != nil && *input.MinSeverity != "" {
		sev, err := ParseSeverity(*input.MinSeverity)
		if err != nil {
			return nil, 0, err
		}
		filter.MinSeverity = &sev
	}
	if input.Status != nil && *input.Status != "" {
		status, ok := parseStatus(*input.Status)
		if !ok {
			return nil, 0, fmt.Errorf("%w: invalid status %q", shared.ErrValidation, *input.Status)
		}
		filter.Status = NewStatusFilter(status, cfg, now)
	}

	var sortOpt *pagination.SortOption
	if input.Sort != "" {
		sortOpt = pagination.NewSortOption(AllowedSortFields()).Parse(input.Sort)
	}

	vulns, total, err := s.repo.List(ctx, filter, pagination.New(input.Page, input.PerPage), sortOpt)
	if err != nil {
		return nil, 0, err
	}

	evaluated, err := s.evaluate(ctx, vulns, cfg, now)
	if err != nil {
		return nil, 0, err
	}
	return evaluated, total, nil
}

// ListByAsset returns the full evaluated vulnerability set of one asset.
func (s *Service) ListByAsset(ctx context.Context, assetID shared.ID) ([]*Evaluated, error) {
	vulns, err := s.repo.ListByAsset(ctx, assetID)
	if err != nil {
		return nil, err
	}

	cfg, err := s.thresholds.Thresholds(ctx)
	if err != nil {
		return nil, err
	}
	return s.evaluate(ctx, vulns, cfg, time.Now().UTC())
}

func (s *Service) evaluate(ctx context.Context, vulns []*Vulnerability, cfg Thresholds, now time.Time) ([]*Evaluated, error) {
	if len(vulns) == 0 {
		return []*Evaluated{}, nil
	}

	seen := make(map[shared.ID]bool)
	assetIDs := make([]shared.ID, 0, len(vulns))
	for _, v := range vulns {
		if !seen[v.AssetID()] {
			seen[v.AssetID()] = true
			assetIDs = append(assetIDs, v.AssetID())
		}
	}

	exs, err := s.exceptions.ActiveForAssets(ctx, assetIDs, now)
	if err != nil {
		return nil, err
	}

	result := make([]*Evaluated, 0, len(vulns))
	for _, v := range vulns {
		result = append(result, &Evaluated{
			Vulnerability: v,
			Status:        EvaluateStatus(v, cfg, exs, now),
		})
	}
	return result, nil
}

func parseStatus(s string) (Status, bool) {
	switch Status(s) {
	case StatusOK, StatusOverdue, StatusExcepted:
		return Status(s), true
	}
	// Accept lowercase query values.
	switch s {
	case "ok":
		return StatusOK, true
	case "overdue":
		return StatusOverdue, true
	case "excepted":
		return StatusExcepted, true
	}
	return "", false
}
