package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/vulntrack/api/internal/infra/http/middleware"
	"github.com/vulntrack/api/internal/metrics"
	"github.com/vulntrack/api/pkg/apierror"
	"github.com/vulntrack/api/pkg/domain/exception"
	"github.com/vulntrack/api/pkg/domain/shared"
	"github.com/vulntrack/api/pkg/logger"
	"github.com/vulntrack/api/pkg/validator"
)

// ExceptionHandler handles exception request and exception HTTP requests.
type ExceptionHandler struct {
	service   *exception.Service
	validator *validator.Validator
	logger    *logger.Logger
}

// NewExceptionHandler creates a new exception handler.
func NewExceptionHandler(svc *exception.Service, v *validator.Validator, log *logger.Logger) *ExceptionHandler {
	return &ExceptionHandler{
		service:   svc,
		validator: v,
		logger:    log,
	}
}

// ExceptionRequestResponse represents an exception request in API responses.
// Status reflects the effective state: an approved request past its
// expiration reads as expired even before the sweep runs.
type ExceptionRequestResponse struct {
	ID            string  `json:"id"`
	Scope         string  `json:"scope"`
	AssetID       *string `json:"asset_id,omitempty"`
	CVEID         string  `json:"cve_id"`
	Justification string  `json:"justification"`
	ExpiresAt     string  `json:"expires_at"`
	Status        string  `json:"status"`
	RequestedBy   string  `json:"requested_by"`
	RequestedAt   string  `json:"requested_at"`
	DecidedBy     *string `json:"decided_by,omitempty"`
	DecidedAt     *string `json:"decided_at,omitempty"`
	DecisionNote  string  `json:"decision_note,omitempty"`
	CreatedAt     string  `json:"created_at"`
	UpdatedAt     string  `json:"updated_at"`
}

// toExceptionRequestResponse converts a domain request to API response.
func toExceptionRequestResponse(req *exception.Request) ExceptionRequestResponse {
	resp := ExceptionRequestResponse{
		ID:            req.ID().String(),
		Scope:         string(req.Scope()),
		CVEID:         req.CVEID(),
		Justification: req.Justification(),
		ExpiresAt:     req.ExpiresAt().Format(time.RFC3339),
		Status:        string(req.EffectiveStatus(time.Now().UTC())),
		RequestedBy:   req.RequestedBy(),
		RequestedAt:   req.RequestedAt().Format(time.RFC3339),
		DecisionNote:  req.DecisionNote(),
		CreatedAt:     req.CreatedAt().Format(time.RFC3339),
		UpdatedAt:     req.UpdatedAt().Format(time.RFC3339),
	}

	if req.AssetID() != nil {
		s := req.AssetID().String()
		resp.AssetID = &s
	}
	if req.DecidedBy() != nil {
		s := *req.DecidedBy()
		resp.DecidedBy = &s
	}
	if req.DecidedAt() != nil {
		s := req.DecidedAt().Format(time.RFC3339)
		resp.DecidedAt = &s
	}

	return resp
}

// ExceptionResponse represents a materialized exception in API responses.
type ExceptionResponse struct {
	ID        string  `json:"id"`
	RequestID string  `json:"request_id"`
	Scope     string  `json:"scope"`
	AssetID   *string `json:"asset_id,omitempty"`
	CVEID     string  `json:"cve_id"`
	GrantedBy string  `json:"granted_by"`
	ExpiresAt string  `json:"expires_at"`
	CreatedAt string  `json:"created_at"`
}

// toExceptionResponse converts a domain exception to API response.
func toExceptionResponse(ex *exception.Exception) ExceptionResponse {
	resp := ExceptionResponse{
		ID:        ex.ID().String(),
		RequestID: ex.RequestID().String(),
		Scope:     string(ex.Scope()),
		CVEID:     ex.CVEID(),
		GrantedBy: ex.GrantedBy(),
		ExpiresAt: ex.ExpiresAt().Format(time.RFC3339),
		CreatedAt: ex.CreatedAt().Format(time.RFC3339),
	}
	if ex.AssetID() != nil {
		s := ex.AssetID().String()
		resp.AssetID = &s
	}
	return resp
}

// handleValidationError converts validation errors to API errors and writes response.
func (h *ExceptionHandler) handleValidationError(w http.ResponseWriter, err error) {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		apiErrors := make([]apierror.ValidationError, len(validationErrors))
		for i, ve := range validationErrors {
			apiErrors[i] = apierror.ValidationError{
				Field:   ve.Field,
				Message: ve.Message,
			}
		}
		apierror.ValidationFailed("Validation failed", apiErrors).WriteJSON(w)
		return
	}
	apierror.BadRequest("Validation error").WriteJSON(w)
}

// handleServiceError converts service errors to API errors and writes response.
func (h *ExceptionHandler) handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, exception.ErrRequestNotFound):
		apierror.NotFound("Exception request").WriteJSON(w)
	case shared.IsNotFound(err):
		apierror.NotFound("Resource").WriteJSON(w)
	case shared.IsConflict(err):
		apierror.Conflict(err.Error()).WriteJSON(w)
	case shared.IsForbidden(err):
		apierror.Forbidden(err.Error()).WriteJSON(w)
	case shared.IsValidation(err):
		apierror.BadRequest(err.Error()).WriteJSON(w)
	case shared.IsTransient(err):
		h.logger.Error("exception storage unavailable", "error", err)
		apierror.ServiceUnavailable("Storage temporarily unavailable").WriteJSON(w)
	default:
		h.logger.Error("exception service error", "error", err)
		apierror.InternalServerError("Internal server error").WriteJSON(w)
	}
}

// CreateExceptionRequestRequest represents a request to raise an exception request.
type CreateExceptionRequestRequest struct {
	Scope           string  `json:"scope" validate:"required,exception_scope"`
	VulnerabilityID *string `json:"vulnerability_id,omitempty"`
	CVEID           string  `json:"cve_id,omitempty" validate:"omitempty,cve_id"`
	Justification   string  `json:"justification" validate:"required,min=10,max=1000"`
	ExpiresAt       string  `json:"expires_at" validate:"required"`
}

// CreateRequest handles POST /api/v1/exception-requests
// @Summary      Raise an exception request
// @Description  Raises a risk-acceptance request for a single vulnerability or a CVE pattern. Requests from security champions and admins are approved immediately.
// @Tags         Exceptions
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request  body      CreateExceptionRequestRequest  true  "Exception request"
// @Success      201  {object}  ExceptionRequestResponse
// @Failure      400  {object}  map[string]string
// @Failure      422  {object}  map[string]string
// @Router       /exception-requests [post]
func (h *ExceptionHandler) CreateRequest(w http.ResponseWriter, r *http.Request) {
	var req CreateExceptionRequestRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.validator.Validate(req); err != nil {
		h.handleValidationError(w, err)
		return
	}

	userID := middleware.GetUserID(r.Context())
	role := middleware.GetRole(r.Context())

	input := exception.CreateRequestInput{
		Scope:         exception.Scope(req.Scope),
		CVEID:         req.CVEID,
		Justification: req.Justification,
		ExpiresAt:     req.ExpiresAt,
		Requester:     userID,
		RequesterRole: role,
	}
	if req.VulnerabilityID != nil && *req.VulnerabilityID != "" {
		id, err := shared.IDFromString(*req.VulnerabilityID)
		if err != nil {
			apierror.BadRequest("Invalid vulnerability ID").WriteJSON(w)
			return
		}
		input.VulnerabilityID = &id
	}

	created, err := h.service.CreateRequest(r.Context(), input)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	action := "created"
	if created.Status() == exception.RequestStatusApproved {
		action = "auto_approved"
	}
	metrics.ExceptionTransitionsTotal.WithLabelValues(action).Inc()

	h.logger.Info("exception request created",
		"request_id", created.ID().String(),
		"scope", string(created.Scope()),
		"cve_id", created.CVEID(),
		"status", string(created.Status()),
		"user_id", userID,
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(toExceptionRequestResponse(created))
}

// ListRequestsRequest represents the query parameters for listing requests.
type ListRequestsRequest struct {
	Status  string `validate:"omitempty,request_status"`
	Scope   string `validate:"omitempty,exception_scope"`
	Page    int    `validate:"omitempty,min=1"`
	PerPage int    `validate:"omitempty,min=1,max=100"`
}

// ListRequests handles GET /api/v1/exception-requests
// @Summary      List exception requests
// @Description  Lists exception requests. Regular users only see their own requests; security champions and admins see all of them.
// @Tags         Exceptions
// @Produce      json
// @Security     BearerAuth
// @Param        status        query  string  false  "Filter by status (pending, approved, rejected, expired, cancelled)"
// @Param        scope         query  string  false  "Filter by scope (single_vulnerability, cve_pattern)"
// @Param        cve           query  string  false  "Filter by CVE identifier"
// @Param        requested_by  query  string  false  "Filter by requester (elevated roles only)"
// @Param        sort          query  string  false  "Sort field (e.g., -requested_at, expires_at)"
// @Param        page          query  int     false  "Page number"  default(1)
// @Param        per_page      query  int     false  "Items per page"  default(20)  maximum(100)
// @Success      200  {object}  map[string]interface{}
// @Failure      400  {object}  map[string]string
// @Router       /exception-requests [get]
func (h *ExceptionHandler) ListRequests(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	page := parseQueryInt(query.Get("page"), 1)
	perPage := parseQueryInt(query.Get("per_page"), 20)

	req := ListRequestsRequest{
		Status:  query.Get("status"),
		Scope:   query.Get("scope"),
		Page:    page,
		PerPage: perPage,
	}
	if err := h.validator.Validate(req); err != nil {
		h.handleValidationError(w, err)
		return
	}

	filter := exception.RequestFilter{}
	if req.Status != "" {
		status := exception.RequestStatus(req.Status)
		filter.Status = &status
	}
	if req.Scope != "" {
		scope := exception.Scope(req.Scope)
		filter.Scope = &scope
	}
	if cve := query.Get("cve"); cve != "" {
		filter.CVEID = &cve
	}
	if requestedBy := query.Get("requested_by"); requestedBy != "" {
		filter.RequestedBy = &requestedBy
	}

	input := exception.ListRequestsInput{
		Query:   filter,
		Page:    page,
		PerPage: perPage,
		Sort:    query.Get("sort"),
		Caller:  middleware.GetUserID(r.Context()),
		Role:    middleware.GetRole(r.Context()),
	}

	requests, total, err := h.service.ListRequests(r.Context(), input)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.writeRequestPage(w, r, requests, total, page, perPage)
}

// ListMine handles GET /api/v1/exception-requests/mine
// @Summary      List own exception requests
// @Description  Lists the caller's exception requests regardless of role.
// @Tags         Exceptions
// @Produce      json
// @Security     BearerAuth
// @Param        status    query  string  false  "Filter by status (pending, approved, rejected, expired, cancelled)"
// @Param        sort      query  string  false  "Sort field (e.g., -requested_at, expires_at)"
// @Param        page      query  int     false  "Page number"  default(1)
// @Param        per_page  query  int     false  "Items per page"  default(20)  maximum(100)
// @Success      200  {object}  map[string]interface{}
// @Router       /exception-requests/mine [get]
func (h *ExceptionHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	page := parseQueryInt(query.Get("page"), 1)
	perPage := parseQueryInt(query.Get("per_page"), 20)

	req := ListRequestsRequest{
		Status:  query.Get("status"),
		Page:    page,
		PerPage: perPage,
	}
	if err := h.validator.Validate(req); err != nil {
		h.handleValidationError(w, err)
		return
	}

	// Pin the filter to the caller so elevated roles also get only their
	// own requests here.
	caller := middleware.GetUserID(r.Context())
	filter := exception.RequestFilter{RequestedBy: &caller}
	if req.Status != "" {
		status := exception.RequestStatus(req.Status)
		filter.Status = &status
	}

	requests, total, err := h.service.ListRequests(r.Context(), exception.ListRequestsInput{
		Query:   filter,
		Page:    page,
		PerPage: perPage,
		Sort:    query.Get("sort"),
		Caller:  caller,
		Role:    middleware.GetRole(r.Context()),
	})
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.writeRequestPage(w, r, requests, total, page, perPage)
}

// ListPending handles GET /api/v1/exception-requests/pending
// @Summary      List pending exception requests
// @Description  Lists requests awaiting a decision, oldest first. Restricted to security champions and admins.
// @Tags         Exceptions
// @Produce      json
// @Security     BearerAuth
// @Param        page      query  int  false  "Page number"  default(1)
// @Param        per_page  query  int  false  "Items per page"  default(20)  maximum(100)
// @Success      200  {object}  map[string]interface{}
// @Failure      403  {object}  map[string]string
// @Router       /exception-requests/pending [get]
func (h *ExceptionHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	page := parseQueryInt(query.Get("page"), 1)
	perPage := parseQueryInt(query.Get("per_page"), 20)

	requests, total, err := h.service.ListPending(r.Context(), page, perPage)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.writeRequestPage(w, r, requests, total, page, perPage)
}

// GetRequest handles GET /api/v1/exception-requests/{id}
// @Summary      Get exception request
// @Description  Retrieves a single exception request. Regular users can only read their own requests.
// @Tags         Exceptions
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Request ID"
// @Success      200  {object}  ExceptionRequestResponse
// @Failure      404  {object}  map[string]string
// @Router       /exception-requests/{id} [get]
func (h *ExceptionHandler) GetRequest(w http.ResponseWriter, r *http.Request) {
	id, ok := h.requestID(w, r)
	if !ok {
		return
	}

	req, err := h.service.GetRequest(r.Context(), id,
		middleware.GetUserID(r.Context()), middleware.GetRole(r.Context()))
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(toExceptionRequestResponse(req))
}

// DecideRequestRequest represents an approval or rejection body.
type DecideRequestRequest struct {
	Note string `json:"note,omitempty" validate:"omitempty,max=1000"`
}

// Approve handles POST /api/v1/exception-requests/{id}/approve
// @Summary      Approve an exception request
// @Description  Approves a pending request and materializes its exception. Restricted to security champions and admins.
// @Tags         Exceptions
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                true  "Request ID"
// @Param        request  body      DecideRequestRequest  false "Optional approval note"
// @Success      200  {object}  ExceptionRequestResponse
// @Failure      404  {object}  map[string]string
// @Failure      409  {object}  map[string]string
// @Router       /exception-requests/{id}/approve [post]
func (h *ExceptionHandler) Approve(w http.ResponseWriter, r *http.Request) {
	id, ok := h.requestID(w, r)
	if !ok {
		return
	}

	req, ok := h.decodeDecision(w, r)
	if !ok {
		return
	}

	userID := middleware.GetUserID(r.Context())
	approved, err := h.service.Approve(r.Context(), exception.DecideInput{
		RequestID: id,
		Decider:   userID,
		Role:      middleware.GetRole(r.Context()),
		Note:      req.Note,
	})
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	metrics.ExceptionTransitionsTotal.WithLabelValues("approved").Inc()
	h.logger.Info("exception request approved",
		"request_id", id.String(),
		"cve_id", approved.CVEID(),
		"approved_by", userID,
	)

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(toExceptionRequestResponse(approved))
}

// Reject handles POST /api/v1/exception-requests/{id}/reject
// @Summary      Reject an exception request
// @Description  Rejects a pending request. A note explaining the rejection is mandatory. Restricted to security champions and admins.
// @Tags         Exceptions
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                true  "Request ID"
// @Param        request  body      DecideRequestRequest  true  "Rejection note"
// @Success      200  {object}  ExceptionRequestResponse
// @Failure      400  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Failure      409  {object}  map[string]string
// @Router       /exception-requests/{id}/reject [post]
func (h *ExceptionHandler) Reject(w http.ResponseWriter, r *http.Request) {
	id, ok := h.requestID(w, r)
	if !ok {
		return
	}

	req, ok := h.decodeDecision(w, r)
	if !ok {
		return
	}

	userID := middleware.GetUserID(r.Context())
	rejected, err := h.service.Reject(r.Context(), exception.DecideInput{
		RequestID: id,
		Decider:   userID,
		Role:      middleware.GetRole(r.Context()),
		Note:      req.Note,
	})
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	metrics.ExceptionTransitionsTotal.WithLabelValues("rejected").Inc()
	h.logger.Info("exception request rejected",
		"request_id", id.String(),
		"cve_id", rejected.CVEID(),
		"rejected_by", userID,
	)

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(toExceptionRequestResponse(rejected))
}

// Cancel handles POST /api/v1/exception-requests/{id}/cancel
// @Summary      Cancel an exception request
// @Description  Withdraws a pending request. Only the requester can cancel their own request.
// @Tags         Exceptions
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Request ID"
// @Success      200  {object}  ExceptionRequestResponse
// @Failure      403  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Failure      409  {object}  map[string]string
// @Router       /exception-requests/{id}/cancel [post]
func (h *ExceptionHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := h.requestID(w, r)
	if !ok {
		return
	}

	userID := middleware.GetUserID(r.Context())
	cancelled, err := h.service.Cancel(r.Context(), id, userID)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	metrics.ExceptionTransitionsTotal.WithLabelValues("cancelled").Inc()
	h.logger.Info("exception request cancelled",
		"request_id", id.String(),
		"user_id", userID,
	)

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(toExceptionRequestResponse(cancelled))
}

// ListActive handles GET /api/v1/exceptions
// @Summary      List active exceptions
// @Description  Lists the exceptions still suppressing overdue reporting right now
// @Tags         Exceptions
// @Produce      json
// @Security     BearerAuth
// @Param        page      query  int  false  "Page number"  default(1)
// @Param        per_page  query  int  false  "Items per page"  default(20)  maximum(100)
// @Success      200  {object}  map[string]interface{}
// @Router       /exceptions [get]
func (h *ExceptionHandler) ListActive(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	page := parseQueryInt(query.Get("page"), 1)
	perPage := parseQueryInt(query.Get("per_page"), 20)

	exceptions, total, err := h.service.ListActiveExceptions(r.Context(), page, perPage)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	data := make([]ExceptionResponse, len(exceptions))
	for i, ex := range exceptions {
		data[i] = toExceptionResponse(ex)
	}

	pages := totalPages(total, perPage)
	response := ListResponse[ExceptionResponse]{
		Data:       data,
		Total:      total,
		Page:       page,
		PerPage:    perPage,
		TotalPages: pages,
		Links:      NewPaginationLinks(r, page, perPage, pages),
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(response)
}

// Sweep handles POST /api/v1/exception-requests/sweep
// @Summary      Sweep expired exception requests
// @Description  Flips approved requests past their expiration to expired. Suppression already ended at the expiry instant; the sweep only materializes the status. Restricted to admins.
// @Tags         Exceptions
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  map[string]int64
// @Failure      403  {object}  map[string]string
// @Router       /exception-requests/sweep [post]
func (h *ExceptionHandler) Sweep(w http.ResponseWriter, r *http.Request) {
	expired, err := h.service.SweepExpired(r.Context())
	if err != nil {
		metrics.ExceptionSweepRunsTotal.WithLabelValues("error").Inc()
		h.handleServiceError(w, err)
		return
	}
	metrics.ExceptionSweepRunsTotal.WithLabelValues("success").Inc()
	metrics.ExceptionSweepExpiredTotal.Add(float64(expired))

	h.logger.Info("expiration sweep requested",
		"expired", expired,
		"user_id", middleware.GetUserID(r.Context()),
	)

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]int64{"expired": expired})
}

// writeRequestPage writes a paginated request list response.
func (h *ExceptionHandler) writeRequestPage(w http.ResponseWriter, r *http.Request, requests []*exception.Request, total int64, page, perPage int) {
	data := make([]ExceptionRequestResponse, len(requests))
	for i, req := range requests {
		data[i] = toExceptionRequestResponse(req)
	}

	pages := totalPages(total, perPage)
	response := ListResponse[ExceptionRequestResponse]{
		Data:       data,
		Total:      total,
		Page:       page,
		PerPage:    perPage,
		TotalPages: pages,
		Links:      NewPaginationLinks(r, page, perPage, pages),
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(response)
}

// decodeDecision parses an optional decision body. An empty body is fine;
// the service decides whether a note is required.
func (h *ExceptionHandler) decodeDecision(w http.ResponseWriter, r *http.Request) (DecideRequestRequest, bool) {
	var req DecideRequestRequest
	if r.Body != nil && r.ContentLength != 0 {
		if !decodeJSON(w, r, &req) {
			return req, false
		}
	}
	if err := h.validator.Validate(req); err != nil {
		h.handleValidationError(w, err)
		return req, false
	}
	return req, true
}

// requestID extracts and parses the request ID path parameter.
func (h *ExceptionHandler) requestID(w http.ResponseWriter, r *http.Request) (shared.ID, bool) {
	raw := r.PathValue("id")
	if raw == "" {
		apierror.BadRequest("Request ID is required").WriteJSON(w)
		return shared.ID{}, false
	}
	id, err := shared.IDFromString(raw)
	if err != nil {
		apierror.BadRequest("Invalid request ID").WriteJSON(w)
		return shared.ID{}, false
	}
	return id, true
}
