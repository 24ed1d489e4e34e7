package handlers

import (
	"net/http"

	"janus/internal/eventbus"
)

// Events streams job_update, job_log, drive_change, resync, and heartbeat
// events to the UI collaborator as a text/event-stream response, until the
// client disconnects.
func (h *Handlers) Events(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	_, events, unsubscribe := h.Bus.Subscribe()
	defer unsubscribe()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, open := <-events:
			if !open {
				return
			}
			if err := eventbus.WriteSSE(w, ev); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
