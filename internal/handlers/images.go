package handlers

import (
	"net/http"

	appErrors "janus/internal/errors"
	"janus/internal/images"
)

// GetImages lists flashable images under the configured images directory.
func (h *Handlers) GetImages(w http.ResponseWriter, r *http.Request) {
	list, err := images.List(h.Config.Images.Dir)
	if err != nil {
		appErrors.HandleHTTPError(w, h.Logger, appErrors.NewInternalError("handlers.GetImages", err))
		return
	}
	writeJSON(w, http.StatusOK, list)
}
