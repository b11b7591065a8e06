package http

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/adscanio/api/internal/app/analysis"
	"github.com/adscanio/api/pkg/domain/shared"
	"github.com/adscanio/api/pkg/logger"
)

// DispositionHandler serves the disposition maintenance endpoints.
type DispositionHandler struct {
	processor *analysis.DispositionProcessor
	logger    *logger.Logger
}

// NewDispositionHandler creates a disposition handler.
func NewDispositionHandler(processor *analysis.DispositionProcessor, log *logger.Logger) *DispositionHandler {
	return &DispositionHandler{
		processor: processor,
		logger:    log.With("component", "disposition_handler"),
	}
}

type revertRequest struct {
	ActorID string `json:"actor_id"`
}

// Revert reopens every flag auto-resolved under one trigger audit
// entry.
func (h *DispositionHandler) Revert(w http.ResponseWriter, r *http.Request) {
	entryID, err := shared.IDFromString(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid audit entry id")
		return
	}

	var req revertRequest
	if r.Body != nil && r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	var actorID *shared.ID
	if req.ActorID != "" {
		id, err := shared.IDFromString(req.ActorID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid actor id")
			return
		}
		actorID = &id
	}

	reopened, err := h.processor.RevertBatch(r.Context(), entryID, actorID)
	if err != nil {
		switch {
		case shared.IsNotFound(err):
			writeError(w, http.StatusNotFound, "not found")
		default:
			h.logger.WithError(err).Error("revert failed")
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]int{"reopened": reopened})
}
