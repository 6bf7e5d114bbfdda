package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/vulntrack/api/pkg/apierror"
	"github.com/vulntrack/api/pkg/domain/asset"
	"github.com/vulntrack/api/pkg/domain/shared"
	"github.com/vulntrack/api/pkg/domain/vulnerability"
	"github.com/vulntrack/api/pkg/logger"
	"github.com/vulntrack/api/pkg/validator"
)

// AssetHandler handles asset HTTP requests.
type AssetHandler struct {
	service   *asset.Service
	vulns     *vulnerability.Service
	validator *validator.Validator
	logger    *logger.Logger
}

// NewAssetHandler creates a new asset handler.
func NewAssetHandler(svc *asset.Service, vulns *vulnerability.Service, v *validator.Validator, log *logger.Logger) *AssetHandler {
	return &AssetHandler{
		service:   svc,
		vulns:     vulns,
		validator: v,
		logger:    log,
	}
}

// AssetResponse represents an asset in API responses.
type AssetResponse struct {
	ID              string   `json:"id"`
	Hostname        string   `json:"hostname"`
	RootDomain      string   `json:"root_domain,omitempty"`
	LocalIP         string   `json:"local_ip,omitempty"`
	Owner           string   `json:"owner,omitempty"`
	HostGroups      []string `json:"host_groups"`
	CloudAccountID  string   `json:"cloud_account_id,omitempty"`
	CloudInstanceID string   `json:"cloud_instance_id,omitempty"`
	OSVersion       string   `json:"os_version,omitempty"`
	ADDomain        string   `json:"ad_domain,omitempty"`
	CreatedAt       string   `json:"created_at"`
	UpdatedAt       string   `json:"updated_at"`
	LastSeenAt      string   `json:"last_seen_at"`
}

// toAssetResponse converts a domain asset to API response.
func toAssetResponse(a *asset.Asset) AssetResponse {
	return AssetResponse{
		ID:              a.ID().String(),
		Hostname:        a.Hostname(),
		RootDomain:      a.RootDomain(),
		LocalIP:         a.LocalIP(),
		Owner:           a.Owner(),
		HostGroups:      a.HostGroups(),
		CloudAccountID:  a.CloudAccountID(),
		CloudInstanceID: a.CloudInstanceID(),
		OSVersion:       a.OSVersion(),
		ADDomain:        a.ADDomain(),
		CreatedAt:       a.CreatedAt().Format(time.RFC3339),
		UpdatedAt:       a.UpdatedAt().Format(time.RFC3339),
		LastSeenAt:      a.LastSeenAt().Format(time.RFC3339),
	}
}

// handleValidationError converts validation errors to API errors and writes response.
func (h *AssetHandler) handleValidationError(w http.ResponseWriter, err error) {
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
func (h *AssetHandler) handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, asset.ErrAssetNotFound):
		apierror.NotFound("Asset").WriteJSON(w)
	case shared.IsNotFound(err):
		apierror.NotFound("Asset").WriteJSON(w)
	case shared.IsConflict(err):
		apierror.Conflict(err.Error()).WriteJSON(w)
	case shared.IsValidation(err):
		apierror.BadRequest(err.Error()).WriteJSON(w)
	case shared.IsTransient(err):
		h.logger.Error("asset storage unavailable", "error", err)
		apierror.ServiceUnavailable("Storage temporarily unavailable").WriteJSON(w)
	default:
		h.logger.Error("asset service error", "error", err)
		apierror.InternalServerError("Internal server error").WriteJSON(w)
	}
}

// ListAssetsRequest represents the query parameters for listing assets.
type ListAssetsRequest struct {
	Page    int `validate:"omitempty,min=1"`
	PerPage int `validate:"omitempty,min=1,max=100"`
}

// List handles GET /api/v1/assets
// @Summary      List assets
// @Description  Retrieves a paginated list of assets
// @Tags         Assets
// @Produce      json
// @Security     BearerAuth
// @Param        hostname    query  string  false  "Filter by hostname (case-insensitive)"
// @Param        owner       query  string  false  "Filter by owner"
// @Param        host_group  query  string  false  "Filter by host group membership"
// @Param        ad_domain   query  string  false  "Filter by Active Directory domain"
// @Param        sort        query  string  false  "Sort field (e.g., -last_seen_at, hostname)"
// @Param        page        query  int     false  "Page number"  default(1)
// @Param        per_page    query  int     false  "Items per page"  default(20)  maximum(100)
// @Success      200  {object}  map[string]interface{}
// @Failure      400  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /assets [get]
func (h *AssetHandler) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	page := parseQueryInt(query.Get("page"), 1)
	perPage := parseQueryInt(query.Get("per_page"), 20)
	if err := h.validator.Validate(ListAssetsRequest{Page: page, PerPage: perPage}); err != nil {
		h.handleValidationError(w, err)
		return
	}

	input := asset.ListInput{
		Page:    page,
		PerPage: perPage,
		Sort:    query.Get("sort"),
	}
	if hostname := query.Get("hostname"); hostname != "" {
		input.Hostname = &hostname
	}
	if owner := query.Get("owner"); owner != "" {
		input.Owner = &owner
	}
	if group := query.Get("host_group"); group != "" {
		input.HostGroup = &group
	}
	if domain := query.Get("ad_domain"); domain != "" {
		input.ADDomain = &domain
	}

	assets, total, err := h.service.List(r.Context(), input)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	data := make([]AssetResponse, len(assets))
	for i, a := range assets {
		data[i] = toAssetResponse(a)
	}

	pages := totalPages(total, perPage)
	response := ListResponse[AssetResponse]{
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

// Get handles GET /api/v1/assets/{id}
// @Summary      Get asset
// @Description  Retrieves a single asset by ID
// @Tags         Assets
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Asset ID"
// @Success      200  {object}  AssetResponse
// @Failure      404  {object}  map[string]string
// @Router       /assets/{id} [get]
func (h *AssetHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.assetID(w, r)
	if !ok {
		return
	}

	a, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(toAssetResponse(a))
}

// ListVulnerabilities handles GET /api/v1/assets/{id}/vulnerabilities
// @Summary      List asset vulnerabilities
// @Description  Returns the full evaluated vulnerability set of one asset
// @Tags         Assets
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Asset ID"
// @Success      200  {object}  map[string]interface{}
// @Failure      404  {object}  map[string]string
// @Router       /assets/{id}/vulnerabilities [get]
func (h *AssetHandler) ListVulnerabilities(w http.ResponseWriter, r *http.Request) {
	id, ok := h.assetID(w, r)
	if !ok {
		return
	}

	// A missing asset must read as 404, not as an empty set.
	if _, err := h.service.Get(r.Context(), id); err != nil {
		h.handleServiceError(w, err)
		return
	}

	evaluated, err := h.vulns.ListByAsset(r.Context(), id)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	data := make([]VulnerabilityResponse, len(evaluated))
	for i, ev := range evaluated {
		data[i] = toVulnerabilityResponse(ev)
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"data":  data,
		"total": len(data),
	})
}

// UpdateAssetRequest represents a request to update an asset's manual fields.
type UpdateAssetRequest struct {
	Owner *string `json:"owner,omitempty" validate:"omitempty,max=255"`
}

// Update handles PATCH /api/v1/assets/{id}
// @Summary      Update asset
// @Description  Updates the manually maintained fields of an asset. Imports never touch these fields.
// @Tags         Assets
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string              true  "Asset ID"
// @Param        request  body      UpdateAssetRequest  true  "Fields to update"
// @Success      200  {object}  AssetResponse
// @Failure      400  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /assets/{id} [patch]
func (h *AssetHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := h.assetID(w, r)
	if !ok {
		return
	}

	var req UpdateAssetRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.validator.Validate(req); err != nil {
		h.handleValidationError(w, err)
		return
	}

	a, err := h.service.Update(r.Context(), id, asset.UpdateInput{Owner: req.Owner})
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.logger.Info("asset updated",
		"asset_id", id.String(),
		"hostname", a.Hostname(),
	)

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(toAssetResponse(a))
}

// Delete handles DELETE /api/v1/assets/{id}
// @Summary      Delete asset
// @Description  Removes an asset together with its vulnerability rows
// @Tags         Assets
// @Security     BearerAuth
// @Param        id  path  string  true  "Asset ID"
// @Success      204  "No Content"
// @Failure      404  {object}  map[string]string
// @Router       /assets/{id} [delete]
func (h *AssetHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.assetID(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), id); err != nil {
		h.handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// assetID extracts and parses the asset ID path parameter. Writes the error
// response itself and reports success through the bool.
func (h *AssetHandler) assetID(w http.ResponseWriter, r *http.Request) (shared.ID, bool) {
	raw := r.PathValue("id")
	if raw == "" {
		apierror.BadRequest("Asset ID is required").WriteJSON(w)
		return shared.ID{}, false
	}
	id, err := shared.IDFromString(raw)
	if err != nil {
		apierror.BadRequest("Invalid asset ID").WriteJSON(w)
		return shared.ID{}, false
	}
	return id, true
}
