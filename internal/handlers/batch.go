package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	appErrors "janus/internal/errors"
	"janus/internal/job"
	"janus/internal/scheduler"
	"janus/internal/validation"
)

// allowedOptionKeys is the enumerated set of recognised batch option flags;
// any other key in the request's "options" object is rejected.
var allowedOptionKeys = map[string]bool{
	"verify":            true,
	"expand_partition":  true,
	"resize_filesystem": true,
	"eject_after_done":  true,
}

// batchStartRequest is the wire shape of POST /api/batch/start.
type batchStartRequest struct {
	ImageName   string          `json:"image_name"`
	CellIDs     []string        `json:"cell_ids"`
	Concurrency int             `json:"concurrency"`
	Options     json.RawMessage `json:"options"`
}

// decodeOptions parses the enumerated option bag, rejecting any key outside
// the recognised set.
func decodeOptions(raw json.RawMessage) (job.Options, error) {
	if len(raw) == 0 {
		return job.Options{}, nil
	}

	var fields map[string]bool
	if err := json.Unmarshal(raw, &fields); err != nil {
		return job.Options{}, fmt.Errorf("invalid options object: %w", err)
	}
	for key := range fields {
		if !allowedOptionKeys[key] {
			return job.Options{}, fmt.Errorf("unrecognised option %q", key)
		}
	}

	return job.Options{
		Verify:           fields["verify"],
		ExpandPartition:  fields["expand_partition"],
		ResizeFilesystem: fields["resize_filesystem"],
		EjectAfterDone:   fields["eject_after_done"],
	}, nil
}

// StartBatch resolves each requested cell to its currently occupied device
// and admits one job per resolvable cell.
func (h *Handlers) StartBatch(w http.ResponseWriter, r *http.Request) {
	var req batchStartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		appErrors.HandleHTTPError(w, h.Logger, appErrors.New(appErrors.Internal, "handlers.StartBatch", fmt.Errorf("invalid request body: %w", err)))
		return
	}

	if err := validation.ValidateRequired("image_name", req.ImageName); err != nil {
		appErrors.HandleHTTPError(w, h.Logger, appErrors.NewPreflightRejected("handlers.StartBatch", err.Error()))
		return
	}
	if req.Concurrency != 0 {
		if err := validation.ValidateConcurrency(req.Concurrency); err != nil {
			appErrors.HandleHTTPError(w, h.Logger, appErrors.NewPreflightRejected("handlers.StartBatch", err.Error()))
			return
		}
	}

	opts, err := decodeOptions(req.Options)
	if err != nil {
		appErrors.HandleHTTPError(w, h.Logger, appErrors.NewPreflightRejected("handlers.StartBatch", err.Error()))
		return
	}

	targets := make([]scheduler.CellTarget, 0, len(req.CellIDs))
	for _, cellID := range req.CellIDs {
		if err := validation.ValidateCellID(cellID); err != nil {
			h.Logger.Warn("handlers.StartBatch: skipping invalid cell id", "cell_id", cellID, "error", err)
			continue
		}
		devicePath, ok, err := h.resolveCellDevicePath(r.Context(), cellID)
		if err != nil {
			appErrors.HandleHTTPError(w, h.Logger, err)
			return
		}
		if !ok {
			h.Logger.Warn("handlers.StartBatch: skipping cell with no occupied port", "cell_id", cellID)
			continue
		}
		targets = append(targets, scheduler.CellTarget{CellID: cellID, DevicePath: devicePath})
	}

	jobs, err := h.Scheduler.StartBatch(r.Context(), req.ImageName, targets, req.Concurrency, opts)
	if err != nil {
		appErrors.HandleHTTPError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

// CancelBatch signals every non-terminal job's cancel token.
func (h *Handlers) CancelBatch(w http.ResponseWriter, r *http.Request) {
	h.Scheduler.CancelAll()
	w.WriteHeader(http.StatusNoContent)
}

// RetryBatch creates a fresh job for every FAILED job.
func (h *Handlers) RetryBatch(w http.ResponseWriter, r *http.Request) {
	retried := h.Scheduler.RetryFailed()
	writeJSON(w, http.StatusOK, retried)
}
