package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	appErrors "janus/internal/errors"
)

// ListJobs returns every known job, most recently created last.
func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Scheduler.Jobs())
}

// GetJob returns one job, including its full log tail.
func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["id"]
	j, ok := h.Scheduler.Job(jobID)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "job not found"})
		return
	}
	writeJSON(w, http.StatusOK, j)
}

// CancelJob signals one job's cancel token.
func (h *Handlers) CancelJob(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["id"]
	if err := h.Scheduler.CancelJob(jobID); err != nil {
		appErrors.HandleHTTPError(w, h.Logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RetryJob creates a fresh job from a FAILED or CANCELLED job.
func (h *Handlers) RetryJob(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["id"]
	j, err := h.Scheduler.RetryJob(jobID)
	if err != nil {
		appErrors.HandleHTTPError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, j)
}
