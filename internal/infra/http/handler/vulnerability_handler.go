package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/vulntrack/api/pkg/apierror"
	"github.com/vulntrack/api/pkg/domain/shared"
	"github.com/vulntrack/api/pkg/domain/vulnerability"
	"github.com/vulntrack/api/pkg/logger"
	"github.com/vulntrack/api/pkg/validator"
)

// VulnerabilityHandler handles vulnerability HTTP requests. All endpoints
// are read-only; vulnerability rows are written exclusively by the importer.
type VulnerabilityHandler struct {
	service   *vulnerability.Service
	validator *validator.Validator
	logger    *logger.Logger
}

// NewVulnerabilityHandler creates a new vulnerability handler.
func NewVulnerabilityHandler(svc *vulnerability.Service, v *validator.Validator, log *logger.Logger) *VulnerabilityHandler {
	return &VulnerabilityHandler{
		service:   svc,
		validator: v,
		logger:    log,
	}
}

// VulnerabilityResponse represents a vulnerability in API responses.
// Status is computed at response time, never stored.
type VulnerabilityResponse struct {
	ID               string  `json:"id"`
	AssetID          string  `json:"asset_id"`
	CVEID            string  `json:"cve_id"`
	Severity         string  `json:"severity"`
	CVSSScore        float64 `json:"cvss_score,omitempty"`
	RawSeverity      string  `json:"raw_severity,omitempty"`
	ProductVersions  string  `json:"product_versions,omitempty"`
	Status           string  `json:"status"`
	AgeDays          int     `json:"age_days"`
	DiscoveredAt     string  `json:"discovered_at"`
	PatchPublishedAt *string `json:"patch_published_at,omitempty"`
	CreatedAt        string  `json:"created_at"`
}

// toVulnerabilityResponse converts an evaluated vulnerability to API response.
func toVulnerabilityResponse(ev *vulnerability.Evaluated) VulnerabilityResponse {
	v := ev.Vulnerability
	resp := VulnerabilityResponse{
		ID:              v.ID().String(),
		AssetID:         v.AssetID().String(),
		CVEID:           v.CVEID(),
		Severity:        v.Severity().String(),
		CVSSScore:       v.CVSSScore(),
		RawSeverity:     v.RawSeverity(),
		ProductVersions: v.ProductVersions(),
		Status:          string(ev.Status),
		AgeDays:         v.AgeDays(time.Now().UTC()),
		DiscoveredAt:    v.DiscoveredAt().Format(time.RFC3339),
		CreatedAt:       v.CreatedAt().Format(time.RFC3339),
	}
	if v.PatchPublishedAt() != nil {
		s := v.PatchPublishedAt().Format(time.RFC3339)
		resp.PatchPublishedAt = &s
	}
	return resp
}

// handleValidationError converts validation errors to API errors and writes response.
func (h *VulnerabilityHandler) handleValidationError(w http.ResponseWriter, err error) {
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
func (h *VulnerabilityHandler) handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, vulnerability.ErrVulnerabilityNotFound):
		apierror.NotFound("Vulnerability").WriteJSON(w)
	case shared.IsNotFound(err):
		apierror.NotFound("Vulnerability").WriteJSON(w)
	case shared.IsValidation(err):
		apierror.BadRequest(err.Error()).WriteJSON(w)
	case shared.IsTransient(err):
		h.logger.Error("vulnerability storage unavailable", "error", err)
		apierror.ServiceUnavailable("Storage temporarily unavailable").WriteJSON(w)
	default:
		h.logger.Error("vulnerability service error", "error", err)
		apierror.InternalServerError("Internal server error").WriteJSON(w)
	}
}

// ListVulnerabilitiesRequest represents the query parameters for listing
// vulnerabilities.
type ListVulnerabilitiesRequest struct {
	Severity    string `validate:"omitempty,severity"`
	MinSeverity string `validate:"omitempty,severity"`
	Status      string `validate:"omitempty,vuln_status"`
	Page        int    `validate:"omitempty,min=1"`
	PerPage     int    `validate:"omitempty,min=1,max=100"`
}

// List handles GET /api/v1/vulnerabilities
// @Summary      List vulnerabilities
// @Description  Retrieves a paginated list of vulnerabilities with computed statuses
// @Tags         Vulnerabilities
// @Produce      json
// @Security     BearerAuth
// @Param        asset_id  query  string  false  "Filter by asset ID"
// @Param        cve       query  string  false  "Filter by CVE identifier"
// @Param        severity      query  string  false  "Filter by severity (low, medium, high, critical)"
// @Param        min_severity  query  string  false  "Filter by minimum severity (inclusive)"
// @Param        status        query  string  false  "Filter by computed status (OK, OVERDUE, EXCEPTED)"
// @Param        sort      query  string  false  "Sort field (e.g., -discovered_at, severity)"
// @Param        page      query  int     false  "Page number"  default(1)
// @Param        per_page  query  int     false  "Items per page"  default(20)  maximum(100)
// @Success      200  {object}  map[string]interface{}
// @Failure      400  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /vulnerabilities [get]
func (h *VulnerabilityHandler) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	page := parseQueryInt(query.Get("page"), 1)
	perPage := parseQueryInt(query.Get("per_page"), 20)

	req := ListVulnerabilitiesRequest{
		Severity:    query.Get("severity"),
		MinSeverity: query.Get("min_severity"),
		Status:      query.Get("status"),
		Page:        page,
		PerPage:     perPage,
	}
	if err := h.validator.Validate(req); err != nil {
		h.handleValidationError(w, err)
		return
	}

	input := vulnerability.ListInput{
		Page:    page,
		PerPage: perPage,
		Sort:    query.Get("sort"),
	}
	if raw := query.Get("asset_id"); raw != "" {
		id, err := shared.IDFromString(raw)
		if err != nil {
			apierror.BadRequest("Invalid asset ID").WriteJSON(w)
			return
		}
		input.AssetID = &id
	}
	if cve := query.Get("cve"); cve != "" {
		input.CVEID = &cve
	}
	if req.Severity != "" {
		input.Severity = &req.Severity
	}
	if req.MinSeverity != "" {
		input.MinSeverity = &req.MinSeverity
	}
	if req.Status != "" {
		input.Status = &req.Status
	}

	evaluated, total, err := h.service.List(r.Context(), input)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	data := make([]VulnerabilityResponse, len(evaluated))
	for i, ev := range evaluated {
		data[i] = toVulnerabilityResponse(ev)
	}

	pages := totalPages(total, perPage)
	response := ListResponse[VulnerabilityResponse]{
		Data:       data,
		Total:      total,
		Page:       page,
		PerPage:    perPage,
		TotalPages: pages,
		Links:      NewPaginationLinks(r, page, perPage, pages),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(response)
}

// Get handles GET /api/v1/vulnerabilities/{id}
// @Summary      Get vulnerability
// @Description  Retrieves a single vulnerability with its computed status
// @Tags         Vulnerabilities
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Vulnerability ID"
// @Success      200  {object}  VulnerabilityResponse
// @Failure      404  {object}  map[string]string
// @Router       /vulnerabilities/{id} [get]
func (h *VulnerabilityHandler) Get(w http.ResponseWriter, r *http.Request) {
	raw := r.PathValue("id")
	if raw == "" {
		apierror.BadRequest("Vulnerability ID is required").WriteJSON(w)
		return
	}
	id, err := shared.IDFromString(raw)
	if err != nil {
		apierror.BadRequest("Invalid vulnerability ID").WriteJSON(w)
		return
	}

	ev, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(toVulnerabilityResponse(ev))
}
