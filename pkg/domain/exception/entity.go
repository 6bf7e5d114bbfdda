// Package exception implements the risk-acceptance workflow. A request is
// raised against a single vulnerability occurrence or a CVE pattern, moves
// through an approval state machine, and when approved materializes an
// exception that suppresses overdue reporting until it expires.
package exception

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/vulntrack/api/pkg/domain/shared"
	"github.com/vulntrack/api/pkg/domain/vulnerability"
)

const (
	// MinJustificationLength is the minimum rune count after normalization.
	MinJustificationLength = 10
	// MaxJustificationLength is the maximum rune count after normalization.
	MaxJustificationLength = 1000
	// MaxCommentLength bounds decision comments.
	MaxCommentLength = 1000
)

// Scope defines what an exception applies to.
type Scope string

const (
	// ScopeSingleVulnerability covers one CVE on one asset. The pair is
	// captured at request time so the grant survives re-imports that
	// replace the underlying vulnerability rows.
	ScopeSingleVulnerability Scope = "single_vulnerability"
	// ScopeCVEPattern covers a CVE on every asset, current and future.
	ScopeCVEPattern Scope = "cve_pattern"
)

// IsValid checks if the scope is valid.
func (s Scope) IsValid() bool {
	switch s {
	case ScopeSingleVulnerability, ScopeCVEPattern:
		return true
	default:
		return false
	}
}

// String returns the string representation.
func (s Scope) String() string {
	return string(s)
}

// RequestStatus represents the state of an exception request.
type RequestStatus string

const (
	RequestStatusPending   RequestStatus = "pending"
	RequestStatusApproved  RequestStatus = "approved"
	RequestStatusRejected  RequestStatus = "rejected"
	RequestStatusExpired   RequestStatus = "expired"
	RequestStatusCancelled RequestStatus = "cancelled"
)

// IsValid checks if the status is valid.
func (s RequestStatus) IsValid() bool {
	switch s {
	case RequestStatusPending, RequestStatusApproved, RequestStatusRejected,
		RequestStatusExpired, RequestStatusCancelled:
		return true
	default:
		return false
	}
}

// String returns the string representation.
func (s RequestStatus) String() string {
	return string(s)
}

// IsTerminal reports whether no further transition is possible.
func (s RequestStatus) IsTerminal() bool {
	return s == RequestStatusRejected || s == RequestStatusExpired || s == RequestStatusCancelled
}

// Request is an exception request moving through the approval workflow.
type Request struct {
	id            shared.ID
	scope         Scope
	assetID       *shared.ID
	cveID         string
	justification string
	expiresAt     time.Time
	status        RequestStatus
	requestedBy   string
	requestedAt   time.Time
	decidedBy     *string
	decidedAt     *time.Time
	decisionNote  string
	createdAt     time.Time
	updatedAt     time.Time
}

// NewSingleVulnerabilityRequest creates a request covering one CVE on one
// asset. The asset and CVE identity is captured here, not a row reference,
// because imports replace vulnerability rows wholesale.
func NewSingleVulnerabilityRequest(assetID shared.ID, cveID, justification, requestedBy string, expiresAt time.Time) (*Request, error) {
	if assetID.IsZero() {
		return nil, fmt.Errorf("%w: asset ID is required", shared.ErrValidation)
	}
	return newRequest(ScopeSingleVulnerability, &assetID, cveID, justification, requestedBy, expiresAt)
}

// NewCVEPatternRequest creates a request covering a CVE on all assets.
func NewCVEPatternRequest(cveID, justification, requestedBy string, expiresAt time.Time) (*Request, error) {
	return newRequest(ScopeCVEPattern, nil, cveID, justification, requestedBy, expiresAt)
}

func newRequest(scope Scope, assetID *shared.ID, cveID, justification, requestedBy string, expiresAt time.Time) (*Request, error) {
	cveID = vulnerability.NormalizeCVEID(cveID)
	if !vulnerability.IsValidCVEID(cveID) {
		return nil, fmt.Errorf("%w: invalid CVE ID format", shared.ErrValidation)
	}

	justification = strings.TrimSpace(justification)
	if n := utf8.RuneCountInString(justification); n < MinJustificationLength {
		return nil, fmt.Errorf("%w: justification must be at least %d characters", shared.ErrValidation, MinJustificationLength)
	} else if n > MaxJustificationLength {
		return nil, fmt.Errorf("%w: justification exceeds %d characters", shared.ErrValidation, MaxJustificationLength)
	}

	requestedBy = strings.TrimSpace(requestedBy)
	if requestedBy == "" {
		return nil, fmt.Errorf("%w: requester is required", shared.ErrValidation)
	}

	now := time.Now().UTC()
	if !expiresAt.After(now) {
		return nil, fmt.Errorf("%w: expiration must be in the future", shared.ErrValidation)
	}

	return &Request{
		id:            shared.NewID(),
		scope:         scope,
		assetID:       assetID,
		cveID:         cveID,
		justification: justification,
		expiresAt:     expiresAt.UTC(),
		status:        RequestStatusPending,
		requestedBy:   requestedBy,
		requestedAt:   now,
		createdAt:     now,
		updatedAt:     now,
	}, nil
}

// RequestData is used to reconstitute a Request from storage.
type RequestData struct {
	ID            shared.ID
	Scope         Scope
	AssetID       *shared.ID
	CVEID         string
	Justification string
	ExpiresAt     time.Time
	Status        RequestStatus
	RequestedBy   string
	RequestedAt   time.Time
	DecidedBy     *string
	DecidedAt     *time.Time
	DecisionNote  string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ReconstituteRequest recreates a Request from stored data.
func ReconstituteRequest(data RequestData) *Request {
	return &Request{
		id:            data.ID,
		scope:         data.Scope,
		assetID:       data.AssetID,
		cveID:         data.CVEID,
		justification: data.Justification,
		expiresAt:     data.ExpiresAt,
		status:        data.Status,
		requestedBy:   data.RequestedBy,
		requestedAt:   data.RequestedAt,
		decidedBy:     data.DecidedBy,
		decidedAt:     data.DecidedAt,
		decisionNote:  data.DecisionNote,
		createdAt:     data.CreatedAt,
		updatedAt:     data.UpdatedAt,
	}
}

// ID returns the request ID.
func (r *Request) ID() shared.ID { return r.id }

// Scope returns the request scope.
func (r *Request) Scope() Scope { return r.scope }

// AssetID returns the covered asset for single-vulnerability scope, nil otherwise.
func (r *Request) AssetID() *shared.ID { return r.assetID }

// CVEID returns the covered CVE identifier.
func (r *Request) CVEID() string { return r.cveID }

// Justification returns the business justification.
func (r *Request) Justification() string { return r.justification }

// ExpiresAt returns when an approval would stop suppressing.
func (r *Request) ExpiresAt() time.Time { return r.expiresAt }

// Status returns the stored workflow status.
func (r *Request) Status() RequestStatus { return r.status }

// RequestedBy returns the requester identity.
func (r *Request) RequestedBy() string { return r.requestedBy }

// RequestedAt returns when the request was raised.
func (r *Request) RequestedAt() time.Time { return r.requestedAt }

// DecidedBy returns who decided the request, nil while pending.
func (r *Request) DecidedBy() *string { return r.decidedBy }

// DecidedAt returns when the request was decided, nil while pending.
func (r *Request) DecidedAt() *time.Time { return r.decidedAt }

// DecisionNote returns the approver or rejecter comment.
func (r *Request) DecisionNote() string { return r.decisionNote }

// CreatedAt returns the creation timestamp.
func (r *Request) CreatedAt() time.Time { return r.createdAt }

// UpdatedAt returns the last update timestamp.
func (r *Request) UpdatedAt() time.Time { return r.updatedAt }

// EffectiveStatus returns the status as of now. An approved request past its
// expiration reads as expired even before the sweep materializes the flip.
func (r *Request) EffectiveStatus(now time.Time) RequestStatus {
	if r.status == RequestStatusApproved && !r.expiresAt.After(now) {
		return RequestStatusExpired
	}
	return r.status
}

// Approve transitions the request to approved.
func (r *Request) Approve(decidedBy, note string) error {
	if r.status != RequestStatusPending {
		return fmt.Errorf("%w: can only approve pending requests", shared.ErrConflict)
	}
	decidedBy = strings.TrimSpace(decidedBy)
	if decidedBy == "" {
		return fmt.Errorf("%w: approver is required", shared.ErrValidation)
	}
	note = strings.TrimSpace(note)
	if utf8.RuneCountInString(note) > MaxCommentLength {
		return fmt.Errorf("%w: comment exceeds %d characters", shared.ErrValidation, MaxCommentLength)
	}

	now := time.Now().UTC()
	r.status = RequestStatusApproved
	r.decidedBy = &decidedBy
	r.decidedAt = &now
	r.decisionNote = note
	r.updatedAt = now
	return nil
}

// Reject transitions the request to rejected. A comment is mandatory so the
// requester learns why.
func (r *Request) Reject(decidedBy, note string) error {
	if r.status != RequestStatusPending {
		return fmt.Errorf("%w: can only reject pending requests", shared.ErrConflict)
	}
	decidedBy = strings.TrimSpace(decidedBy)
	if decidedBy == "" {
		return fmt.Errorf("%w: rejecter is required", shared.ErrValidation)
	}
	note = strings.TrimSpace(note)
	if note == "" {
		return fmt.Errorf("%w: rejection requires a comment", shared.ErrValidation)
	}
	if utf8.RuneCountInString(note) > MaxCommentLength {
		return fmt.Errorf("%w: comment exceeds %d characters", shared.ErrValidation, MaxCommentLength)
	}

	now := time.Now().UTC()
	r.status = RequestStatusRejected
	r.decidedBy = &decidedBy
	r.decidedAt = &now
	r.decisionNote = note
	r.updatedAt = now
	return nil
}

// Cancel withdraws a pending request. Only the requester may cancel.
func (r *Request) Cancel(caller string) error {
	if r.status != RequestStatusPending {
		return fmt.Errorf("%w: can only cancel pending requests", shared.ErrConflict)
	}
	if strings.TrimSpace(caller) != r.requestedBy {
		return fmt.Errorf("%w: only the requester can cancel a request", shared.ErrForbidden)
	}

	now := time.Now().UTC()
	r.status = RequestStatusCancelled
	r.decidedBy = &r.requestedBy
	r.decidedAt = &now
	r.updatedAt = now
	return nil
}

// Expire materializes the time-based flip for an approved request whose
// expiration has passed. Used by the sweep, never by request handlers.
func (r *Request) Expire(now time.Time) error {
	if r.status != RequestStatusApproved {
		return fmt.Errorf("%w: can only expire approved requests", shared.ErrConflict)
	}
	if r.expiresAt.After(now) {
		return fmt.Errorf("%w: request has not expired yet", shared.ErrConflict)
	}
	r.status = RequestStatusExpired
	r.updatedAt = now.UTC()
	return nil
}

// IsPending reports whether the request awaits a decision.
func (r *Request) IsPending() bool {
	return r.status == RequestStatusPending
}
