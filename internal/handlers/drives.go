package handlers

import (
	"net/http"

	appErrors "janus/internal/errors"
	"janus/internal/inventory"
)

// GetDrives lists currently attached block devices, optionally restricted
// to removable ones via ?removable=1.
func (h *Handlers) GetDrives(w http.ResponseWriter, r *http.Request) {
	onlyRemovable := r.URL.Query().Get("removable") == "1"

	drives, err := inventory.ListDrives(r.Context(), onlyRemovable)
	if err != nil {
		appErrors.HandleHTTPError(w, h.Logger, appErrors.NewInternalError("handlers.GetDrives", err))
		return
	}
	writeJSON(w, http.StatusOK, drives)
}

// GetPorts lists the flat USB by-path port enumeration.
func (h *Handlers) GetPorts(w http.ResponseWriter, r *http.Request) {
	ports, err := inventory.ListPorts(r.Context())
	if err != nil {
		appErrors.HandleHTTPError(w, h.Logger, appErrors.NewInternalError("handlers.GetPorts", err))
		return
	}
	writeJSON(w, http.StatusOK, ports)
}

// GetPhysicalPorts lists every USB port, enriched with whatever drive
// currently occupies it.
func (h *Handlers) GetPhysicalPorts(w http.ResponseWriter, r *http.Request) {
	ports, err := inventory.ListPhysicalPorts(r.Context())
	if err != nil {
		appErrors.HandleHTTPError(w, h.Logger, appErrors.NewInternalError("handlers.GetPhysicalPorts", err))
		return
	}
	writeJSON(w, http.StatusOK, ports)
}
