package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-seed/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-seed/pkg/config"
	"github.com/ekaya-inc/ekaya-seed/pkg/llm"
	"github.com/ekaya-inc/ekaya-seed/pkg/logging"
	"github.com/ekaya-inc/ekaya-seed/pkg/models"
	"github.com/ekaya-inc/ekaya-seed/pkg/seedfile"
	"github.com/ekaya-inc/ekaya-seed/pkg/services"
)

const maxSeedBodyBytes = 1 << 20

// ============================================================================
// Request/Response Types
// ============================================================================

// SeedPromptResponse for POST /api/seeds/prompt
type SeedPromptResponse struct {
	System            string              `json:"system"`
	User              string              `json:"user"`
	PromptFingerprint string              `json:"prompt_fingerprint"`
	Model             string              `json:"model"`
	IDs               map[string][]string `json:"ids"`
}

// ValidateSeedRequest for POST /api/seeds/validate
type ValidateSeedRequest struct {
	Seed json.RawMessage     `json:"seed"`
	IDs  map[string][]string `json:"ids"`
	SQL  string              `json:"sql"`
}

// ============================================================================
// Handler
// ============================================================================

// SeedHandler serves seed generation over HTTP.
type SeedHandler struct {
	seedService services.SeedGenerationService
	cfg         *config.Config
	logger      *zap.Logger
}

// NewSeedHandler creates a new seed handler.
func NewSeedHandler(
	seedService services.SeedGenerationService,
	cfg *config.Config,
	logger *zap.Logger,
) *SeedHandler {
	return &SeedHandler{
		seedService: seedService,
		cfg:         cfg,
		logger:      logger,
	}
}

// RegisterRoutes registers the seed handler's routes on the given mux.
func (h *SeedHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/seeds", h.Generate)
	mux.HandleFunc("POST /api/seeds/prompt", h.Prompt)
	mux.HandleFunc("POST /api/seeds/validate", h.Validate)
}

// Generate handles POST /api/seeds
// The body is a seed document in JSON. The provider key comes from the
// Authorization bearer token or X-API-Key header, falling back to the
// server's environment.
func (h *SeedHandler) Generate(w http.ResponseWriter, r *http.Request) {
	file, ok := h.readSeedFile(w, r)
	if !ok {
		return
	}
	req, err := h.buildRequest(file)
	if err != nil {
		h.writeError(w, err)
		return
	}

	req.APIKey = apiKeyFromRequest(r)
	if req.APIKey == "" {
		req.APIKey = h.cfg.APIKeyFor(req.Model)
	}
	if req.APIKey == "" {
		h.writeError(w, apperrors.ErrMissingCredential)
		return
	}

	result, err := h.seedService.Generate(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeResult(w, result)
}

// Prompt handles POST /api/seeds/prompt
// Builds the prompt and identifiers without calling a model.
func (h *SeedHandler) Prompt(w http.ResponseWriter, r *http.Request) {
	file, ok := h.readSeedFile(w, r)
	if !ok {
		return
	}
	req, err := h.buildRequest(file)
	if err != nil {
		h.writeError(w, err)
		return
	}

	run, err := h.seedService.Prepare(req)
	if err != nil {
		h.writeError(w, err)
		return
	}

	response := SeedPromptResponse{
		System:            run.Prompt.System,
		User:              run.Prompt.User,
		PromptFingerprint: run.Prompt.Fingerprint(),
		Model:             run.Model,
		IDs:               exportIDs(run.Assignment.Export()),
	}
	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: response}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Validate handles POST /api/seeds/validate
// Checks a saved model response against a seed document and the
// identifiers returned by Prompt. Without ids, an autoincrement run is
// reassigned from the configured base.
func (h *SeedHandler) Validate(w http.ResponseWriter, r *http.Request) {
	var body ValidateSeedRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSeedBodyBytes))
	if err := dec.Decode(&body); err != nil {
		h.writeErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}
	if len(body.Seed) == 0 || strings.TrimSpace(body.SQL) == "" {
		h.writeErrorResponse(w, http.StatusBadRequest, "invalid_request", "seed and sql are required")
		return
	}

	file, err := seedfile.Parse(body.Seed, seedfile.FormatJSON)
	if err != nil {
		h.writeErrorResponse(w, http.StatusBadRequest, "invalid_seed_file", err.Error())
		return
	}
	req, err := h.buildRequest(file)
	if err != nil {
		h.writeError(w, err)
		return
	}

	// Autoincrement identifiers can be reassigned from the base; UUIDs cannot.
	var run *services.PreparedRun
	if len(body.IDs) == 0 {
		if req.IDMode == models.IDModeUUID {
			h.writeErrorResponse(w, http.StatusBadRequest, "invalid_request", "ids required in uuid mode")
			return
		}
		run, err = h.seedService.Prepare(req)
	} else {
		run, err = services.RestorePreparedRun(req, importIDs(body.IDs))
	}
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeResult(w, h.seedService.ValidateResponse(run, body.SQL))
}

func (h *SeedHandler) readSeedFile(w http.ResponseWriter, r *http.Request) (*seedfile.File, bool) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxSeedBodyBytes))
	if err != nil {
		h.writeErrorResponse(w, http.StatusRequestEntityTooLarge, "request_too_large", "Request body too large")
		return nil, false
	}
	file, err := seedfile.Parse(data, seedfile.FormatJSON)
	if err != nil {
		h.writeErrorResponse(w, http.StatusBadRequest, "invalid_seed_file", err.Error())
		return nil, false
	}
	return file, true
}

func (h *SeedHandler) buildRequest(file *seedfile.File) (*models.GenerationRequest, error) {
	defaults, err := seedfile.DefaultsFromConfig(h.cfg)
	if err != nil {
		return nil, err
	}
	return file.Request(defaults, "")
}

func (h *SeedHandler) writeResult(w http.ResponseWriter, result *models.GenerationResult) {
	if result.OK() {
		if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: result}); err != nil {
			h.logger.Error("Failed to write response", zap.Error(err))
		}
		return
	}
	response := ApiResponse{
		Success: false,
		Error:   "invalid_script",
		Message: "generated script failed validation",
		Data:    result,
	}
	if err := WriteJSON(w, http.StatusUnprocessableEntity, response); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// writeError maps pipeline errors to HTTP status codes. Messages are
// sanitized so provider errors cannot echo credentials back.
func (h *SeedHandler) writeError(w http.ResponseWriter, err error) {
	status, code := statusForError(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("Seed request failed",
			zap.Int("status", status),
			zap.String("error", logging.SanitizeError(err)))
	}
	h.writeErrorResponse(w, status, code, logging.SanitizeError(err))
}

func (h *SeedHandler) writeErrorResponse(w http.ResponseWriter, status int, code, message string) {
	if err := ErrorResponse(w, status, code, message); err != nil {
		h.logger.Error("Failed to write error response", zap.Error(err))
	}
}

func statusForError(err error) (int, string) {
	var invalid *seedfile.InvalidFileError
	switch {
	case errors.Is(err, apperrors.ErrConflict):
		return http.StatusConflict, "generation_in_progress"
	case errors.Is(err, apperrors.ErrMissingCredential):
		return http.StatusUnauthorized, "missing_api_key"
	case errors.As(err, &invalid):
		return http.StatusBadRequest, "invalid_seed_file"
	case models.IsValidationError(err), errors.Is(err, apperrors.ErrInvalidInput):
		return http.StatusBadRequest, "invalid_request"
	}

	switch llm.GetErrorType(err) {
	case llm.ErrorTypeAuth:
		return http.StatusUnauthorized, "provider_auth_failed"
	case llm.ErrorTypeRateLimited:
		return http.StatusTooManyRequests, "provider_rate_limited"
	case llm.ErrorTypeUnavailable, llm.ErrorTypeCanceled:
		return http.StatusServiceUnavailable, "provider_unavailable"
	}
	return http.StatusBadGateway, "generation_failed"
}

func apiKeyFromRequest(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	return strings.TrimSpace(r.Header.Get("X-API-Key"))
}

func exportIDs(ids map[models.EntityType][]string) map[string][]string {
	out := make(map[string][]string, len(ids))
	for t, v := range ids {
		out[string(t)] = v
	}
	return out
}

func importIDs(ids map[string][]string) map[models.EntityType][]string {
	out := make(map[models.EntityType][]string, len(ids))
	for t, v := range ids {
		out[models.EntityType(t)] = v
	}
	return out
}
