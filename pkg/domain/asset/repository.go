package asset

import (
	"context"

	"github.com/vulntrack/api/pkg/domain/shared"
	"github.com/vulntrack/api/pkg/pagination"
)

// Repository defines the interface for asset persistence. Creation is not
// part of it: new assets only ever come into existence through the import
// reconciler's transaction.
type Repository interface {
	Update(ctx context.Context, a *Asset) error
	GetByID(ctx context.Context, id shared.ID) (*Asset, error)

	// GetByHostname looks up an asset case-insensitively by hostname.
	GetByHostname(ctx context.Context, hostname string) (*Asset, error)

	// List returns assets matching the filter with the total count.
	List(ctx context.Context, filter Filter, page pagination.Pagination, sort *pagination.SortOption) ([]*Asset, int64, error)

	// Delete removes the asset row only. Dependent vulnerability rows must
	// already have been removed through the importer's delete-by-asset
	// operation; there is no relational cascade.
	Delete(ctx context.Context, id shared.ID) error
}

// Filter provides filtering options for asset queries.
type Filter struct {
	Hostname  *string
	Owner     *string
	HostGroup *string
	ADDomain  *string
}

// AllowedSortFields returns the allowed sort fields for assets.
func AllowedSortFields() map[string]string {
	return map[string]string{
		"hostname":     "hostname",
		"owner":        "owner",
		"created_at":   "created_at",
		"updated_at":   "updated_at",
		"last_seen_at": "last_seen_at",
	}
}
