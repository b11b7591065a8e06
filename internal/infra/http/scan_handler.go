package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/adscanio/api/internal/app/scan"
	"github.com/adscanio/api/pkg/domain/scanjob"
	"github.com/adscanio/api/pkg/domain/shared"
	"github.com/adscanio/api/pkg/logger"
	"github.com/adscanio/api/pkg/validator"
)

// ScanHandler serves the scan endpoints.
type ScanHandler struct {
	orchestrator *scan.Orchestrator
	jobRepo      scanjob.Repository
	runRepo      scanjob.RunRepository
	validator    *validator.Validator
	logger       *logger.Logger
}

// NewScanHandler creates a scan handler.
func NewScanHandler(orchestrator *scan.Orchestrator, jobRepo scanjob.Repository, runRepo scanjob.RunRepository, v *validator.Validator, log *logger.Logger) *ScanHandler {
	return &ScanHandler{
		orchestrator: orchestrator,
		jobRepo:      jobRepo,
		runRepo:      runRepo,
		validator:    v,
		logger:       log.With("component", "scan_handler"),
	}
}

type createScanRequest struct {
	PublisherIDs []string `json:"publisher_ids" validate:"required,min=1,dive,uuid"`
	Platforms    []string `json:"platforms" validate:"omitempty,dive,min=1"`
	ProductIDs   []string `json:"product_ids" validate:"omitempty,dive,uuid"`
	Source       string   `json:"source" validate:"omitempty,max=64"`
	CreatedBy    string   `json:"created_by" validate:"omitempty,uuid"`
	BypassAI     bool     `json:"bypass_ai"`
}

type scanJobResponse struct {
	ID           string     `json:"id"`
	Status       string     `json:"status"`
	StatusDetail string     `json:"status_detail,omitempty"`
	AdvertiserID string     `json:"advertiser_id"`
	PublisherIDs []string   `json:"publisher_ids"`
	ProductIDs   []string   `json:"product_ids"`
	Source       string     `json:"source,omitempty"`
	BypassAI     bool       `json:"bypass_ai"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

type runResponse struct {
	ID             string     `json:"id"`
	ChannelID      string     `json:"channel_id"`
	Platform       string     `json:"platform"`
	Status         string     `json:"status"`
	StatusDetail   string     `json:"status_detail,omitempty"`
	ItemsProcessed int        `json:"items_processed"`
	ItemErrors     int        `json:"item_errors"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`
}

// Create initiates a scan.
func (h *ScanHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validator.Validate(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"errors": verrs})
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	input := scan.InitiateInput{
		Platforms: req.Platforms,
		Source:    req.Source,
		BypassAI:  req.BypassAI,
	}
	for _, raw := range req.PublisherIDs {
		id, err := shared.IDFromString(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid publisher id")
			return
		}
		input.PublisherIDs = append(input.PublisherIDs, id)
	}
	for _, raw := range req.ProductIDs {
		id, err := shared.IDFromString(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid product id")
			return
		}
		input.ProductIDs = append(input.ProductIDs, id)
	}
	if req.CreatedBy != "" {
		id, err := shared.IDFromString(req.CreatedBy)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid creator id")
			return
		}
		input.CreatedBy = &id
	}

	job, err := h.orchestrator.Initiate(r.Context(), input)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toScanJobResponse(job))
}

// Get returns one scan job.
func (h *ScanHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := shared.IDFromString(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid scan job id")
		return
	}

	job, err := h.jobRepo.GetByID(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toScanJobResponse(job))
}

// ListRuns returns the runs of one scan job.
func (h *ScanHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	id, err := shared.IDFromString(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid scan job id")
		return
	}

	runs, err := h.runRepo.ListByJobID(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	out := make([]runResponse, 0, len(runs))
	for _, run := range runs {
		out = append(out, runResponse{
			ID:             run.ID.String(),
			ChannelID:      run.ChannelID.String(),
			Platform:       run.Platform,
			Status:         run.Status.String(),
			StatusDetail:   run.StatusDetail,
			ItemsProcessed: run.ItemsProcessed,
			ItemErrors:     run.ItemErrors,
			StartedAt:      run.StartedAt,
			FinishedAt:     run.FinishedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": out})
}

func (h *ScanHandler) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case shared.IsNotFound(err):
		writeError(w, http.StatusNotFound, "not found")
	case shared.IsValidation(err):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case shared.IsConflict(err):
		writeError(w, http.StatusConflict, err.Error())
	default:
		h.logger.WithError(err).Error("request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func toScanJobResponse(job *scanjob.ScanJob) scanJobResponse {
	resp := scanJobResponse{
		ID:           job.ID.String(),
		Status:       job.Status.String(),
		StatusDetail: job.StatusDetail,
		AdvertiserID: job.AdvertiserID.String(),
		Source:       job.Source,
		BypassAI:     job.BypassAI,
		StartedAt:    job.StartedAt,
		CompletedAt:  job.CompletedAt,
		CreatedAt:    job.CreatedAt,
	}
	for _, id := range job.PublisherIDs {
		resp.PublisherIDs = append(resp.PublisherIDs, id.String())
	}
	for _, id := range job.ProductIDs {
		resp.ProductIDs = append(resp.ProductIDs, id.String())
	}
	return resp
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
