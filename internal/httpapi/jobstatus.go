package httpapi

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/filmatlas/filmatlas/internal/jobs"
)

// JobStatusHandler serves generation job status lookups so clients can
// poll a queued job.
type JobStatusHandler struct {
	status *jobs.StatusStore
	logger *zap.Logger
}

// NewJobStatusHandler creates the handler.
func NewJobStatusHandler(status *jobs.StatusStore, logger *zap.Logger) *JobStatusHandler {
	return &JobStatusHandler{status: status, logger: logger}
}

// RegisterRoutes registers job status routes on the provided mux.
func (h *JobStatusHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/jobs/{id}", h.handleGet)
}

func (h *JobStatusHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")

	rec, err := h.status.Get(r.Context(), jobID)
	if err != nil {
		h.logger.Error("Job status lookup failed", zap.String("job_id", jobID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "job not found or expired")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}
