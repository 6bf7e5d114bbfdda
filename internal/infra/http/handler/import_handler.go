package handler

import (
	"encoding/json"
	"net/http"

	"github.com/vulntrack/api/internal/app/ingest"
	"github.com/vulntrack/api/internal/infra/http/middleware"
	"github.com/vulntrack/api/pkg/apierror"
	"github.com/vulntrack/api/pkg/domain/shared"
	"github.com/vulntrack/api/pkg/logger"
)

// ImportHandler handles scanner feed import requests.
type ImportHandler struct {
	service *ingest.Service
	logger  *logger.Logger
}

// NewImportHandler creates a new import handler.
func NewImportHandler(svc *ingest.Service, log *logger.Logger) *ImportHandler {
	return &ImportHandler{
		service: svc,
		logger:  log,
	}
}

// ImportResponse reports the outcome of one import batch.
type ImportResponse struct {
	AssetsCreated int                 `json:"assets_created"`
	AssetsUpdated int                 `json:"assets_updated"`
	Imported      int                 `json:"imported"`
	Skipped       int                 `json:"skipped"`
	Remediated    int                 `json:"remediated"`
	Errors        []ImportErrorDetail `json:"errors,omitempty"`
	Warnings      []string            `json:"warnings,omitempty"`
}

// ImportErrorDetail reports one failed asset within a batch.
type ImportErrorDetail struct {
	Hostname string `json:"hostname"`
	Error    string `json:"error"`
}

func toImportResponse(result *ingest.Result) ImportResponse {
	resp := ImportResponse{
		AssetsCreated: result.AssetsCreated,
		AssetsUpdated: result.AssetsUpdated,
		Imported:      result.Imported,
		Skipped:       result.Skipped,
		Remediated:    result.Remediated,
		Warnings:      result.Warnings,
	}
	for _, e := range result.Errors {
		resp.Errors = append(resp.Errors, ImportErrorDetail{Hostname: e.Hostname, Error: e.Error})
	}
	return resp
}

// Import handles POST /api/v1/import
// @Summary      Import a scanner feed batch
// @Description  Reconciles a scanner export against stored state. Each asset entry replaces that asset's full vulnerability set; a failed asset never blocks the rest of the batch. Accepts gzip and zstd compressed bodies.
// @Tags         Import
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        batch  body      ingest.Batch  true  "Scanner feed batch"
// @Success      200  {object}  ImportResponse
// @Failure      400  {object}  map[string]string
// @Failure      422  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /import [post]
func (h *ImportHandler) Import(w http.ResponseWriter, r *http.Request) {
	var batch ingest.Batch
	if !decodeJSON(w, r, &batch) {
		return
	}

	if len(batch.Assets) == 0 {
		apierror.BadRequest("Batch contains no asset entries").WriteJSON(w)
		return
	}

	userID := middleware.GetUserID(r.Context())
	h.logger.Info("import batch received",
		"source", batch.Source,
		"assets", len(batch.Assets),
		"user_id", userID,
	)

	result, err := h.service.ImportBatch(r.Context(), batch)
	if err != nil {
		switch {
		case shared.IsValidation(err):
			apierror.BadRequest(err.Error()).WriteJSON(w)
		case shared.IsTransient(err):
			h.logger.Error("import storage unavailable", "source", batch.Source, "error", err)
			apierror.ServiceUnavailable("Storage temporarily unavailable").WriteJSON(w)
		default:
			h.logger.Error("import batch failed", "source", batch.Source, "error", err)
			apierror.InternalServerError("Internal server error").WriteJSON(w)
		}
		return
	}

	// Per-asset failures are reported inside the 200 body. The batch-level
	// contract is that accepted assets commit regardless of failed ones.
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(toImportResponse(result))
}
