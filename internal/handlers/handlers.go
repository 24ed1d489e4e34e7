// Package handlers implements the JSON HTTP surface the UI collaborator
// drives: layout, drives/ports, images, batch control, job control, cell
// ejection, and the server-sent event stream.
package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"janus/config"
	appErrors "janus/internal/errors"
	"janus/internal/eventbus"
	"janus/internal/inventory"
	"janus/internal/layout"
	"janus/internal/scheduler"
)

// Handlers holds every collaborator an HTTP handler needs. It carries no
// state of its own beyond these references.
type Handlers struct {
	Scheduler *scheduler.Scheduler
	Layout    *layout.Store
	Bus       *eventbus.Bus
	Config    *config.Config
	Logger    *slog.Logger
}

// NewHandlers builds a Handlers instance with its dependencies.
func NewHandlers(sched *scheduler.Scheduler, layoutStore *layout.Store, bus *eventbus.Bus, cfg *config.Config, logger *slog.Logger) *Handlers {
	return &Handlers{
		Scheduler: sched,
		Layout:    layoutStore,
		Bus:       bus,
		Config:    cfg,
		Logger:    logger,
	}
}

// writeJSON writes status and encodes v as the JSON response body; a nil v
// sends the status with an empty body.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// resolveCellDevicePath maps a layout cell to the device path currently
// occupying its USB port, or false if the cell is unknown, disabled, or its
// port is currently vacant.
func (h *Handlers) resolveCellDevicePath(ctx context.Context, cellID string) (string, bool, error) {
	cfg, err := h.Layout.Get()
	if err != nil {
		return "", false, appErrors.NewInternalError("handlers.resolveCellDevicePath", err)
	}

	var cell *layout.Cell
	for i := range cfg.Cells {
		if cfg.Cells[i].CellID == cellID {
			cell = &cfg.Cells[i]
			break
		}
	}
	if cell == nil || !cell.Enabled || cell.PortID == "" {
		return "", false, nil
	}

	drives, err := inventory.ListDrives(ctx, false)
	if err != nil {
		return "", false, appErrors.NewInternalError("handlers.resolveCellDevicePath", err)
	}
	for _, d := range drives {
		if d.ByPath == cell.PortID {
			return d.DevicePath, true, nil
		}
	}
	return "", false, nil
}
