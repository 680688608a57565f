package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
)

var sseDone = []byte("data: [DONE]\n\n")

type contentChunk struct {
	Content string `json:"content"`
}

// setupSSEHeaders sets Server-Sent Events response headers
func setupSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

// sendSSEChunk writes one `data: <json>` frame and flushes it
func sendSSEChunk(w http.ResponseWriter, flusher http.Flusher, payload interface{}) error {
	var buf bytes.Buffer
	buf.WriteString("data: ")
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(payload); err != nil {
		return fmt.Errorf("failed to marshal sse payload: %w", err)
	}
	// Encode terminates with a single newline, frames end with a blank line
	buf.WriteByte('\n')

	if _, err := w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("failed to write sse frame: %w", err)
	}
	flusher.Flush()
	return nil
}

// sendSSEDone writes the end-of-stream marker
func sendSSEDone(w http.ResponseWriter, flusher http.Flusher) {
	w.Write(sseDone)
	flusher.Flush()
}
