package routes

import (
	"github.com/gorilla/mux"

	"janus/internal/handlers"
	"janus/internal/metrics"
)

// Setup configures and returns a new router with all defined routes for the application.
func Setup(h *handlers.Handlers) *mux.Router {
	router := mux.NewRouter().StrictSlash(true)

	api := router.PathPrefix("/api").Subrouter()
	setupLayoutRoutes(api, h)
	setupInventoryRoutes(api, h)
	setupImageRoutes(api, h)
	setupBatchRoutes(api, h)
	setupJobRoutes(api, h)
	setupCellRoutes(api, h)
	setupEventRoutes(api, h)

	router.Handle("/metrics", metrics.Handler()).Methods("GET").Name("Metrics")

	return router
}

func setupLayoutRoutes(api *mux.Router, h *handlers.Handlers) {
	api.HandleFunc("/layout", h.GetLayout).Methods("GET").Name("GetLayout")
	api.HandleFunc("/layout", h.PutLayout).Methods("PUT").Name("PutLayout")
	api.HandleFunc("/layout/export", h.ExportLayout).Methods("GET").Name("ExportLayout")
	api.HandleFunc("/layout/import", h.ImportLayout).Methods("POST").Name("ImportLayout")
}

func setupInventoryRoutes(api *mux.Router, h *handlers.Handlers) {
	api.HandleFunc("/drives", h.GetDrives).Methods("GET").Name("GetDrives")
	api.HandleFunc("/ports", h.GetPorts).Methods("GET").Name("GetPorts")
	api.HandleFunc("/ports/physical", h.GetPhysicalPorts).Methods("GET").Name("GetPhysicalPorts")
}

func setupImageRoutes(api *mux.Router, h *handlers.Handlers) {
	api.HandleFunc("/images", h.GetImages).Methods("GET").Name("GetImages")
}

func setupBatchRoutes(api *mux.Router, h *handlers.Handlers) {
	api.HandleFunc("/batch/start", h.StartBatch).Methods("POST").Name("StartBatch")
	api.HandleFunc("/batch/cancel", h.CancelBatch).Methods("POST").Name("CancelBatch")
	api.HandleFunc("/batch/retry", h.RetryBatch).Methods("POST").Name("RetryBatch")
}

func setupJobRoutes(api *mux.Router, h *handlers.Handlers) {
	api.HandleFunc("/jobs", h.ListJobs).Methods("GET").Name("ListJobs")
	api.HandleFunc("/jobs/{id}", h.GetJob).Methods("GET").Name("GetJob")
	api.HandleFunc("/jobs/{id}/cancel", h.CancelJob).Methods("POST").Name("CancelJob")
	api.HandleFunc("/jobs/{id}/retry", h.RetryJob).Methods("POST").Name("RetryJob")
}

func setupCellRoutes(api *mux.Router, h *handlers.Handlers) {
	api.HandleFunc("/cells/{id}/eject", h.EjectCell).Methods("POST").Name("EjectCell")
}

func setupEventRoutes(api *mux.Router, h *handlers.Handlers) {
	api.HandleFunc("/events", h.Events).Methods("GET").Name("Events")
}
