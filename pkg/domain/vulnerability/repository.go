package vulnerability

import (
	"context"
	"time"

	"github.com/vulntrack/api/pkg/domain/shared"
	"github.com/vulntrack/api/pkg/pagination"
)

// Repository defines the interface for vulnerability persistence.
//
// The importer owns the lifecycle of every row: sets are replaced wholesale
// per asset and never patched incrementally. DeleteByAsset is the single
// entry point for removing an asset's vulnerabilities; asset deletion
// elsewhere must call it explicitly rather than relying on a storage-level
// cascade.
type Repository interface {
	GetByID(ctx context.Context, id shared.ID) (*Vulnerability, error)

	// ListByAsset returns the full vulnerability set of one asset.
	ListByAsset(ctx context.Context, assetID shared.ID) ([]*Vulnerability, error)

	// List returns vulnerabilities matching the filter with the total count.
	List(ctx context.Context, filter Filter, page pagination.Pagination, sort *pagination.SortOption) ([]*Vulnerability, int64, error)

	// DeleteByAsset removes all vulnerability rows for an asset and returns
	// the number of rows removed.
	DeleteByAsset(ctx context.Context, assetID shared.ID) (int64, error)
}

// Filter provides filtering options for vulnerability queries.
type Filter struct {
	AssetID     *shared.ID
	CVEID       *string
	Severity    *Severity
	MinSeverity *Severity
	Status      *StatusFilter
}

// StatusFilter restricts a listing to rows whose evaluated status matches.
// The threshold days are carried along so the storage layer applies exactly
// the rule EvaluateStatus applies; the rendered status still comes from the
// evaluator.
type StatusFilter struct {
	Status       Status
	CriticalDays int
	HighDays     int
	MediumDays   int
	LowDays      int
	Now          time.Time
}

// NewStatusFilter builds a StatusFilter from the effective thresholds.
func NewStatusFilter(status Status, cfg Thresholds, now time.Time) *StatusFilter {
	f := &StatusFilter{
		Status:       status,
		CriticalDays: DefaultReminderDays,
		HighDays:     DefaultReminderDays,
		MediumDays:   DefaultReminderDays,
		LowDays:      DefaultReminderDays,
		Now:          now,
	}
	if cfg != nil {
		f.CriticalDays = cfg.DaysForSeverity(SeverityCritical)
		f.HighDays = cfg.DaysForSeverity(SeverityHigh)
		f.MediumDays = cfg.DaysForSeverity(SeverityMedium)
		f.LowDays = cfg.DaysForSeverity(SeverityLow)
	}
	return f
}

// AllowedSortFields returns the allowed sort fields for vulnerabilities.
// Severity sorts by rank rather than alphabetically.
func AllowedSortFields() map[string]string {
	return map[string]string{
		"discovered_at": "discovered_at",
		"created_at":    "created_at",
		"cve_id":        "cve_id",
		"severity":      "CASE severity WHEN 'critical' THEN 4 WHEN 'high' THEN 3 WHEN 'medium' THEN 2 ELSE 1 END",
	}
}
