package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/vulntrack/api/internal/infra/http/middleware"
	"github.com/vulntrack/api/internal/metrics"
	"github.com/vulntrack/api/pkg/apierror"
	"github.com/vulntrack/api/pkg/domain/shared"
	"github.com/vulntrack/api/pkg/domain/vulnconfig"
	"github.com/vulntrack/api/pkg/logger"
	"github.com/vulntrack/api/pkg/validator"
)

// ConfigHandler handles service configuration HTTP requests.
type ConfigHandler struct {
	service   *vulnconfig.Service
	validator *validator.Validator
	logger    *logger.Logger
}

// NewConfigHandler creates a new config handler.
func NewConfigHandler(svc *vulnconfig.Service, v *validator.Validator, log *logger.Logger) *ConfigHandler {
	return &ConfigHandler{
		service:   svc,
		validator: v,
		logger:    log,
	}
}

// ConfigResponse represents the service configuration in API responses.
type ConfigResponse struct {
	CriticalDays int    `json:"critical_days"`
	HighDays     int    `json:"high_days"`
	MediumDays   int    `json:"medium_days"`
	LowDays      int    `json:"low_days"`
	ImportMode   string `json:"import_mode"`
	UpdatedBy    string `json:"updated_by,omitempty"`
	UpdatedAt    string `json:"updated_at,omitempty"`
}

// toConfigResponse converts a domain config to API response.
func toConfigResponse(cfg *vulnconfig.Config) ConfigResponse {
	resp := ConfigResponse{
		CriticalDays: cfg.CriticalDays(),
		HighDays:     cfg.HighDays(),
		MediumDays:   cfg.MediumDays(),
		LowDays:      cfg.LowDays(),
		ImportMode:   cfg.ImportMode().String(),
		UpdatedBy:    cfg.UpdatedBy(),
	}
	if !cfg.UpdatedAt().IsZero() {
		resp.UpdatedAt = cfg.UpdatedAt().Format(time.RFC3339)
	}
	return resp
}

// Get handles GET /api/v1/config
// @Summary      Get configuration
// @Description  Returns the effective per-severity reminder thresholds and import mode
// @Tags         Config
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  ConfigResponse
// @Failure      500  {object}  map[string]string
// @Router       /config [get]
func (h *ConfigHandler) Get(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.service.GetConfig(r.Context())
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(toConfigResponse(cfg))
}

// UpdateConfigRequest represents a request to replace the configuration.
// Every field is required: the configuration is a single record replaced
// wholesale, never patched.
type UpdateConfigRequest struct {
	CriticalDays int    `json:"critical_days" validate:"required,min=1,max=3650"`
	HighDays     int    `json:"high_days" validate:"required,min=1,max=3650"`
	MediumDays   int    `json:"medium_days" validate:"required,min=1,max=3650"`
	LowDays      int    `json:"low_days" validate:"required,min=1,max=3650"`
	ImportMode   string `json:"import_mode" validate:"required,import_mode"`
}

// Update handles PUT /api/v1/config
// @Summary      Update configuration
// @Description  Replaces the reminder thresholds and import mode. Admin only. The change takes effect on the next status evaluation; no stored vulnerability data is modified.
// @Tags         Config
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request  body      UpdateConfigRequest  true  "New configuration"
// @Success      200  {object}  ConfigResponse
// @Failure      400  {object}  map[string]string
// @Failure      403  {object}  map[string]string
// @Failure      422  {object}  map[string]string
// @Router       /config [put]
func (h *ConfigHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req UpdateConfigRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.validator.Validate(req); err != nil {
		h.handleValidationError(w, err)
		return
	}

	userID := middleware.GetUserID(r.Context())
	cfg, err := h.service.UpdateConfig(r.Context(), vulnconfig.UpdateConfigInput{
		CriticalDays: req.CriticalDays,
		HighDays:     req.HighDays,
		MediumDays:   req.MediumDays,
		LowDays:      req.LowDays,
		ImportMode:   req.ImportMode,
		UpdatedBy:    userID,
	})
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	metrics.ConfigUpdatesTotal.Inc()
	h.logger.Info("configuration updated",
		"updated_by", userID,
		"import_mode", cfg.ImportMode().String(),
	)

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(toConfigResponse(cfg))
}

// handleValidationError converts validation errors to API errors and writes response.
func (h *ConfigHandler) handleValidationError(w http.ResponseWriter, err error) {
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
func (h *ConfigHandler) handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case shared.IsValidation(err):
		apierror.BadRequest(err.Error()).WriteJSON(w)
	case shared.IsTransient(err):
		h.logger.Error("config storage unavailable", "error", err)
		apierror.ServiceUnavailable("Storage temporarily unavailable").WriteJSON(w)
	default:
		h.logger.Error("config service error", "error", err)
		apierror.InternalServerError("Internal server error").WriteJSON(w)
	}
}
