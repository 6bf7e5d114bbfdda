package exception

import (
	"fmt"
	"time"

	"github.com/vulntrack/api/pkg/domain/shared"
)

// Exception is the materialized effect of an approved request. It is
// immutable after creation; expiration is a time comparison, not a stored
// flag, so a grant never needs a write to stop applying.
type Exception struct {
	id        shared.ID
	requestID shared.ID
	scope     Scope
	assetID   *shared.ID
	cveID     string
	grantedBy string
	expiresAt time.Time
	createdAt time.Time
}

// NewExceptionFromRequest materializes the grant for an approved request.
func NewExceptionFromRequest(req *Request) (*Exception, error) {
	if req.Status() != RequestStatusApproved {
		return nil, fmt.Errorf("%w: exception requires an approved request", shared.ErrConflict)
	}
	grantedBy := req.RequestedBy()
	if req.DecidedBy() != nil {
		grantedBy = *req.DecidedBy()
	}

	var assetID *shared.ID
	if req.AssetID() != nil {
		id := *req.AssetID()
		assetID = &id
	}

	return &Exception{
		id:        shared.NewID(),
		requestID: req.ID(),
		scope:     req.Scope(),
		assetID:   assetID,
		cveID:     req.CVEID(),
		grantedBy: grantedBy,
		expiresAt: req.ExpiresAt(),
		createdAt: time.Now().UTC(),
	}, nil
}

// ExceptionData is used to reconstitute an Exception from storage.
type ExceptionData struct {
	ID        shared.ID
	RequestID shared.ID
	Scope     Scope
	AssetID   *shared.ID
	CVEID     string
	GrantedBy string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// ReconstituteException recreates an Exception from stored data.
func ReconstituteException(data ExceptionData) *Exception {
	return &Exception{
		id:        data.ID,
		requestID: data.RequestID,
		scope:     data.Scope,
		assetID:   data.AssetID,
		cveID:     data.CVEID,
		grantedBy: data.GrantedBy,
		expiresAt: data.ExpiresAt,
		createdAt: data.CreatedAt,
	}
}

// ID returns the exception ID.
func (e *Exception) ID() shared.ID { return e.id }

// RequestID returns the originating request.
func (e *Exception) RequestID() shared.ID { return e.requestID }

// Scope returns the exception scope.
func (e *Exception) Scope() Scope { return e.scope }

// AssetID returns the covered asset for single-vulnerability scope, nil otherwise.
func (e *Exception) AssetID() *shared.ID { return e.assetID }

// CVEID returns the covered CVE identifier.
func (e *Exception) CVEID() string { return e.cveID }

// GrantedBy returns who approved the underlying request.
func (e *Exception) GrantedBy() string { return e.grantedBy }

// ExpiresAt returns when the exception stops applying.
func (e *Exception) ExpiresAt() time.Time { return e.expiresAt }

// CreatedAt returns when the exception was materialized.
func (e *Exception) CreatedAt() time.Time { return e.createdAt }

// IsActive reports whether the exception still applies at the given time.
func (e *Exception) IsActive(now time.Time) bool {
	return e.expiresAt.After(now)
}

// Covers reports whether this exception applies to the given occurrence.
// Pattern scope matches the CVE on any asset; single scope additionally
// pins the asset captured at request time.
func (e *Exception) Covers(assetID shared.ID, cveID string) bool {
	if e.cveID != cveID {
		return false
	}
	if e.scope == ScopeCVEPattern {
		return true
	}
	return e.assetID != nil && e.assetID.Equals(assetID)
}
