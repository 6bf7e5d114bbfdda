package exception

import (
	"context"
	"time"

	"github.com/vulntrack/api/pkg/domain/shared"
	"github.com/vulntrack/api/pkg/pagination"
)

// RequestFilter defines filter criteria for listing requests.
type RequestFilter struct {
	Status      *RequestStatus
	Scope       *Scope
	RequestedBy *string
	CVEID       *string
	AssetID     *shared.ID
}

// Repository defines the persistence interface for exception requests and
// the exceptions materialized from their approvals.
type Repository interface {
	// Save inserts a new pending request.
	Save(ctx context.Context, req *Request) error

	// SaveWithException inserts a request together with its exception in a
	// single transaction. Used for elevated-role auto-approval so the
	// request never exists in an approved state without its grant.
	SaveWithException(ctx context.Context, req *Request, ex *Exception) error

	// FindByID returns the request or nil when it does not exist.
	FindByID(ctx context.Context, id shared.ID) (*Request, error)

	// List returns requests matching the filter. Sort may be nil.
	List(ctx context.Context, filter RequestFilter, page pagination.Pagination, sort *pagination.SortOption) ([]*Request, int64, error)

	// SaveDecision persists a pending-to-decided transition. The update is
	// guarded on the stored status still being pending; a lost race returns
	// shared.ErrConflict without touching the row. A non-nil exception is
	// inserted in the same transaction.
	SaveDecision(ctx context.Context, req *Request, ex *Exception) error

	// FindActiveForAssets returns exceptions that can cover vulnerabilities
	// on the given assets as of now: single-scope grants pinned to one of
	// the assets plus every pattern-scope grant.
	FindActiveForAssets(ctx context.Context, assetIDs []shared.ID, now time.Time) ([]*Exception, error)

	// ListActiveExceptions returns exceptions still applying as of now.
	ListActiveExceptions(ctx context.Context, now time.Time, page pagination.Pagination) ([]*Exception, int64, error)

	// ExpireDue flips approved requests past their expiration to expired
	// and returns how many rows changed. Exceptions themselves are never
	// updated; their expiry is a time comparison at read time.
	ExpireDue(ctx context.Context, now time.Time) (int64, error)

	// RecordAudit records an audit trail entry for a request.
	RecordAudit(ctx context.Context, requestID shared.ID, action, actor string, details map[string]any) error
}

// AllowedSortFields returns the allowed sort fields for requests.
func AllowedSortFields() map[string]string {
	return map[string]string{
		"requested_at": "requested_at",
		"updated_at":   "updated_at",
		"expires_at":   "expires_at",
		"status":       "status",
		"cve_id":       "cve_id",
	}
}
