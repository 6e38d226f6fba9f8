package sse

import (
	"fmt"
	"net/http"
)

// SSEKeepAliveWriter implements KeepAliveWriter for SSE connections.
// Writes SSE comment lines (: keepalive) to maintain the connection.
type SSEKeepAliveWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewSSEKeepAliveWriter creates a new SSE keep-alive writer
func NewSSEKeepAliveWriter(w http.ResponseWriter, flusher http.Flusher) *SSEKeepAliveWriter {
	return &SSEKeepAliveWriter{
		w:       w,
		flusher: flusher,
	}
}

// WriteKeepAlive writes an SSE comment (: keepalive\n\n) and flushes.
// Returns error if connection is closed or write fails.
func (s *SSEKeepAliveWriter) WriteKeepAlive() error {
	// SSE spec: lines starting with : are comments, ignored by the client.
	if _, err := fmt.Fprintf(s.w, ": keepalive\n\n"); err != nil {
		return fmt.Errorf("write keepalive failed: %w", err)
	}

	s.flusher.Flush()

	// Zero-byte write to detect a closed connection.
	if _, err := s.w.Write([]byte{}); err != nil {
		return fmt.Errorf("connection closed: %w", err)
	}

	return nil
}
