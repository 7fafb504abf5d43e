package rest

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// eventWriter writes server-sent events, flushing after each one.
type eventWriter struct {
	w  http.ResponseWriter
	rc *http.ResponseController
}

func newEventWriter(w http.ResponseWriter) *eventWriter {
	return &eventWriter{w: w, rc: http.NewResponseController(w)}
}

// Open sends the stream headers.
func (e *eventWriter) Open() error {
	h := e.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")

	e.w.WriteHeader(http.StatusOK)

	return e.rc.Flush()
}

// Send writes v as a single `data:` event.
func (e *eventWriter) Send(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	if _, err := fmt.Fprintf(e.w, "data: %s\n\n", payload); err != nil {
		return err
	}

	return e.rc.Flush()
}
