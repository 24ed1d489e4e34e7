package handlers

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	appErrors "janus/internal/errors"
)

// EjectCell ejects the device currently bound to one cell, independent of
// any job.
func (h *Handlers) EjectCell(w http.ResponseWriter, r *http.Request) {
	cellID := mux.Vars(r)["id"]

	devicePath, ok, err := h.resolveCellDevicePath(r.Context(), cellID)
	if err != nil {
		appErrors.HandleHTTPError(w, h.Logger, err)
		return
	}
	if !ok {
		appErrors.HandleHTTPError(w, h.Logger, appErrors.NewDeviceStateChanged("handlers.EjectCell", fmt.Sprintf("cell %s has no occupied port", cellID)))
		return
	}

	if err := h.Scheduler.EjectCell(r.Context(), cellID, devicePath); err != nil {
		appErrors.HandleHTTPError(w, h.Logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
