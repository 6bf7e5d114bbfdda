package exception

import (
	"context"
	"fmt"
	"time"

	"github.com/vulntrack/api/pkg/domain/shared"
	"github.com/vulntrack/api/pkg/domain/vulnerability"
	"github.com/vulntrack/api/pkg/logger"
	"github.com/vulntrack/api/pkg/pagination"
)

// VulnerabilityReader resolves the vulnerability occurrence a
// single-vulnerability request points at.
type VulnerabilityReader interface {
	GetByID(ctx context.Context, id shared.ID) (*vulnerability.Vulnerability, error)
}

// Service provides business logic for the exception workflow.
type Service struct {
	repo  Repository
	vulns VulnerabilityReader
	log   *logger.Logger
}

// NewService creates a new exception service.
func NewService(repo Repository, vulns VulnerabilityReader, log *logger.Logger) *Service {
	return &Service{repo: repo, vulns: vulns, log: log}
}

// CreateRequestInput contains input for raising an exception request.
type CreateRequestInput struct {
	Scope           Scope
	VulnerabilityID *shared.ID // required for single_vulnerability scope
	CVEID           string     // required for cve_pattern scope
	Justification   string
	ExpiresAt       string // RFC3339
	Requester       string
	RequesterRole   shared.Role
}

// CreateRequest raises an exception request. Elevated requesters get their
// request approved in the same transaction, so the grant is visible
// immediately.
func (s *Service) CreateRequest(ctx context.Context, input CreateRequestInput) (*Request, error) {
	if !input.Scope.IsValid() {
		return nil, fmt.Errorf("%w: invalid scope %q", shared.ErrValidation, input.Scope)
	}

	expiresAt, err := time.Parse(time.RFC3339, input.ExpiresAt)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid expires_at format (expected RFC3339)", shared.ErrValidation)
	}

	justification := NormalizeText(input.Justification)

	var req *Request
	switch input.Scope {
	case ScopeSingleVulnerability:
		if input.VulnerabilityID == nil || input.VulnerabilityID.IsZero() {
			return nil, fmt.Errorf("%w: vulnerability_id is required for single_vulnerability scope", shared.ErrValidation)
		}
		vuln, err := s.vulns.GetByID(ctx, *input.VulnerabilityID)
		if err != nil {
			return nil, err
		}
		req, err = NewSingleVulnerabilityRequest(vuln.AssetID(), vuln.CVEID(), justification, input.Requester, expiresAt)
		if err != nil {
			return nil, err
		}
	case ScopeCVEPattern:
		req, err = NewCVEPatternRequest(input.CVEID, justification, input.Requester, expiresAt)
		if err != nil {
			return nil, err
		}
	}

	if input.RequesterRole.IsElevated() {
		return s.createAutoApproved(ctx, req, input.Requester)
	}

	if err := s.repo.Save(ctx, req); err != nil {
		return nil, err
	}

	_ = s.repo.RecordAudit(ctx, req.ID(), "created", input.Requester, map[string]any{
		"scope":      string(req.Scope()),
		"cve_id":     req.CVEID(),
		"expires_at": req.ExpiresAt().Format(time.RFC3339),
	})

	return req, nil
}

func (s *Service) createAutoApproved(ctx context.Context, req *Request, requester string) (*Request, error) {
	if err := req.Approve(requester, "auto-approved for elevated role"); err != nil {
		return nil, err
	}
	ex, err := NewExceptionFromRequest(req)
	if err != nil {
		return nil, err
	}
	if err := s.repo.SaveWithException(ctx, req, ex); err != nil {
		return nil, err
	}

	_ = s.repo.RecordAudit(ctx, req.ID(), "auto_approved", requester, map[string]any{
		"scope":        string(req.Scope()),
		"cve_id":       req.CVEID(),
		"exception_id": ex.ID().String(),
	})

	s.log.Info("exception request auto-approved",
		"request_id", req.ID().String(),
		"cve_id", req.CVEID(),
		"requester", requester,
	)
	return req, nil
}

// DecideInput contains input for approving or rejecting a request.
type DecideInput struct {
	RequestID shared.ID
	Decider   string
	Role      shared.Role
	Note      string
}

// Approve approves a pending request and materializes its exception. The
// repository guards the transition on the stored status, so two racing
// approvers cannot both win; the loser gets shared.ErrConflict.
func (s *Service) Approve(ctx context.Context, input DecideInput) (*Request, error) {
	if !input.Role.IsElevated() {
		return nil, fmt.Errorf("%w: deciding exception requests requires an elevated role", shared.ErrForbidden)
	}

	req, err := s.repo.FindByID(ctx, input.RequestID)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, ErrRequestNotFound
	}

	if !req.ExpiresAt().After(time.Now().UTC()) {
		return nil, fmt.Errorf("%w: requested expiration has already passed", shared.ErrValidation)
	}

	if err := req.Approve(input.Decider, input.Note); err != nil {
		return nil, err
	}
	ex, err := NewExceptionFromRequest(req)
	if err != nil {
		return nil, err
	}

	if err := s.repo.SaveDecision(ctx, req, ex); err != nil {
		return nil, err
	}

	_ = s.repo.RecordAudit(ctx, req.ID(), "approved", input.Decider, map[string]any{
		"exception_id": ex.ID().String(),
		"note":         input.Note,
	})

	return req, nil
}

// Reject rejects a pending request. The note is mandatory.
func (s *Service) Reject(ctx context.Context, input DecideInput) (*Request, error) {
	if !input.Role.IsElevated() {
		return nil, fmt.Errorf("%w: deciding exception requests requires an elevated role", shared.ErrForbidden)
	}

	req, err := s.repo.FindByID(ctx, input.RequestID)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, ErrRequestNotFound
	}

	if err := req.Reject(input.Decider, NormalizeText(input.Note)); err != nil {
		return nil, err
	}

	if err := s.repo.SaveDecision(ctx, req, nil); err != nil {
		return nil, err
	}

	_ = s.repo.RecordAudit(ctx, req.ID(), "rejected", input.Decider, map[string]any{
		"note": req.DecisionNote(),
	})

	return req, nil
}

// Cancel withdraws a pending request. Only its requester may cancel.
func (s *Service) Cancel(ctx context.Context, requestID shared.ID, caller string) (*Request, error) {
	req, err := s.repo.FindByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, ErrRequestNotFound
	}

	if err := req.Cancel(caller); err != nil {
		return nil, err
	}

	if err := s.repo.SaveDecision(ctx, req, nil); err != nil {
		return nil, err
	}

	_ = s.repo.RecordAudit(ctx, req.ID(), "cancelled", caller, nil)

	return req, nil
}

// GetRequest retrieves a request. Non-elevated callers only see their own;
// anything else reads as not found so request existence does not leak.
func (s *Service) GetRequest(ctx context.Context, requestID shared.ID, caller string, role shared.Role) (*Request, error) {
	req, err := s.repo.FindByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, ErrRequestNotFound
	}
	if !role.IsElevated() && req.RequestedBy() != caller {
		return nil, ErrRequestNotFound
	}
	return req, nil
}

// ListRequestsInput contains input for listing requests.
type ListRequestsInput struct {
	Query   RequestFilter
	Page    int
	PerPage int
	Sort    string
	Caller  string
	Role    shared.Role
}

// ListRequests lists requests. Non-elevated callers are pinned to their own
// requests regardless of the filter they pass.
func (s *Service) ListRequests(ctx context.Context, input ListRequestsInput) ([]*Request, int64, error) {
	query := input.Query
	if !input.Role.IsElevated() {
		caller := input.Caller
		query.RequestedBy = &caller
	}

	var sortOpt *pagination.SortOption
	if input.Sort != "" {
		sortOpt = pagination.NewSortOption(AllowedSortFields()).Parse(input.Sort)
	}

	return s.repo.List(ctx, query, pagination.New(input.Page, input.PerPage), sortOpt)
}

// ListPending lists requests awaiting a decision, oldest first.
func (s *Service) ListPending(ctx context.Context, page, perPage int) ([]*Request, int64, error) {
	status := RequestStatusPending
	sort := pagination.NewSortOption(AllowedSortFields()).Parse("requested_at")
	return s.repo.List(ctx, RequestFilter{Status: &status}, pagination.New(page, perPage), sort)
}

// ActiveForAssets returns the exceptions that can cover vulnerabilities on
// the given assets as of now. Used by status evaluation.
func (s *Service) ActiveForAssets(ctx context.Context, assetIDs []shared.ID, now time.Time) ([]*Exception, error) {
	if len(assetIDs) == 0 {
		return nil, nil
	}
	return s.repo.FindActiveForAssets(ctx, assetIDs, now)
}

// ListActiveExceptions lists exceptions still applying right now.
func (s *Service) ListActiveExceptions(ctx context.Context, page, perPage int) ([]*Exception, int64, error) {
	return s.repo.ListActiveExceptions(ctx, time.Now().UTC(), pagination.New(page, perPage))
}

// SweepExpired flips approved requests past their expiration to expired.
// Suppression already stopped at the expiry instant regardless of when the
// sweep runs; this only materializes the status for reporting.
func (s *Service) SweepExpired(ctx context.Context) (int64, error) {
	n, err := s.repo.ExpireDue(ctx, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.log.Info("expired exception requests swept", "count", n)
	}
	return n, nil
}
