package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	appErrors "janus/internal/errors"
	"janus/internal/layout"
)

// GetLayout returns the current port-grid layout document.
func (h *Handlers) GetLayout(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.Layout.Get()
	if err != nil {
		appErrors.HandleHTTPError(w, h.Logger, appErrors.NewInternalError("handlers.GetLayout", err))
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// PutLayout replaces the layout document with the one in the request body.
func (h *Handlers) PutLayout(w http.ResponseWriter, r *http.Request) {
	var cfg layout.Config
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		appErrors.HandleHTTPError(w, h.Logger, appErrors.New(appErrors.Internal, "handlers.PutLayout", fmt.Errorf("invalid layout document: %w", err)))
		return
	}
	if err := h.Layout.Save(cfg); err != nil {
		appErrors.HandleHTTPError(w, h.Logger, appErrors.NewInternalError("handlers.PutLayout", err))
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// ExportLayout streams the layout document as a file download.
func (h *Handlers) ExportLayout(w http.ResponseWriter, r *http.Request) {
	data, err := h.Layout.Export()
	if err != nil {
		appErrors.HandleHTTPError(w, h.Logger, appErrors.NewInternalError("handlers.ExportLayout", err))
		return
	}
	w.Header().Set("Content-Disposition", `attachment; filename="layout.json"`)
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(data)
}

// ImportLayout reads a layout document from an uploaded multipart file and
// persists it, per the same upload idiom used elsewhere for file uploads.
func (h *Handlers) ImportLayout(w http.ResponseWriter, r *http.Request) {
	file, _, err := r.FormFile("file")
	if err != nil {
		appErrors.HandleHTTPError(w, h.Logger, appErrors.New(appErrors.Internal, "handlers.ImportLayout", fmt.Errorf("missing upload: %w", err)))
		return
	}
	defer file.Close()

	raw, err := io.ReadAll(file)
	if err != nil {
		appErrors.HandleHTTPError(w, h.Logger, appErrors.New(appErrors.Internal, "handlers.ImportLayout", fmt.Errorf("read upload: %w", err)))
		return
	}

	cfg, err := h.Layout.Import(raw)
	if err != nil {
		appErrors.HandleHTTPError(w, h.Logger, appErrors.New(appErrors.Internal, "handlers.ImportLayout", err))
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}
