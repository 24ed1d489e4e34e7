package eventbus

import (
	"encoding/json"
	"fmt"
	"io"
)

// WriteSSE encodes ev in the text/event-stream wire format: an id line, an
// event line naming its Kind, and a JSON data line, terminated by a blank
// line per the SSE spec. Heartbeat is the one exception: it's written as a
// bare comment line, invisible to EventSource's named-event listeners, so
// it only keeps the connection alive without showing up as a job_update/
// job_log/drive_change subscriber would otherwise have to filter out.
func WriteSSE(w io.Writer, ev Event) error {
	if ev.Kind == Heartbeat {
		_, err := fmt.Fprint(w, ": heartbeat\n\n")
		return err
	}

	payload, err := json.Marshal(ev.Data)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", ev.ID, ev.Kind, payload)
	return err
}
