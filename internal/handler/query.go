package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	model "askdb/internal/domain/models/agent"
	"askdb/internal/handler/sse"
	"askdb/internal/httputil"
	"askdb/internal/service/query"
)

// QueryHandler streams agent turns over Server-Sent Events.
type QueryHandler struct {
	service   *query.Service
	sseConfig *sse.Config
	logger    *slog.Logger
}

// NewQueryHandler creates a new query handler
func NewQueryHandler(service *query.Service, sseConfig *sse.Config, logger *slog.Logger) *QueryHandler {
	return &QueryHandler{
		service:   service,
		sseConfig: sseConfig,
		logger:    logger,
	}
}

// lockedKeepAlive serializes keep-alive pings against event writes; both go
// to the same response writer from different goroutines.
type lockedKeepAlive struct {
	mu    *sync.Mutex
	inner *sse.SSEKeepAliveWriter
}

func (l *lockedKeepAlive) WriteKeepAlive() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inner.WriteKeepAlive()
}

// Ask handles POST /api/query.
// The response is an SSE stream: zero or more status events followed by one
// terminal result, clarification, or error event.
func (h *QueryHandler) Ask(w http.ResponseWriter, r *http.Request) {
	var req query.Request
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Validate before committing to the SSE response; after the first flush
	// only in-stream error events can reach the client.
	if err := req.Validate(); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		httputil.RespondError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // disable nginx buffering
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	var mu sync.Mutex

	keepAlive := sse.NewTickerKeepAlive(h.sseConfig.KeepAliveInterval)
	stopped := keepAlive.Start(&lockedKeepAlive{
		mu:    &mu,
		inner: sse.NewSSEKeepAliveWriter(w, flusher),
	}, h.logger)
	defer keepAlive.Stop()

	emit := func(event model.Event) {
		mu.Lock()
		defer mu.Unlock()

		select {
		case <-stopped:
			// Connection already dropped; nothing to write to.
			return
		default:
		}

		payload, err := json.Marshal(event)
		if err != nil {
			h.logger.Error("encode event failed", "error", err)
			return
		}
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, payload)
		flusher.Flush()
	}

	if err := h.service.Ask(r.Context(), &req, emit); err != nil {
		// The terminal error event already went out in-stream; this is for
		// the server log only.
		h.logger.Warn("query turn ended with error", "error", err)
	}
}
