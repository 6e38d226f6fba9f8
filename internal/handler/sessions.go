package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"askdb/internal/httputil"
	"askdb/internal/service/query"
)

// SessionHandler serves the conversation sidebar: listing sessions, reading
// their messages, and deleting them.
type SessionHandler struct {
	service *query.Service
	logger  *slog.Logger
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(service *query.Service, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{
		service: service,
		logger:  logger,
	}
}

// ListSessions handles GET /api/sessions
func (h *SessionHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.service.ListSessions(r.Context())
	if err != nil {
		HandleError(w, h.logger, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, sessions)
}

// GetMessages handles GET /api/sessions/{id}/messages
func (h *SessionHandler) GetMessages(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		httputil.RespondError(w, http.StatusBadRequest, "session ID is required")
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 500 {
			httputil.RespondError(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		limit = n
	}

	messages, err := h.service.GetMessages(r.Context(), id, limit)
	if err != nil {
		HandleError(w, h.logger, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, messages)
}

// DeleteSession handles DELETE /api/sessions/{id}
func (h *SessionHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		httputil.RespondError(w, http.StatusBadRequest, "session ID is required")
		return
	}

	if err := h.service.DeleteSession(r.Context(), id); err != nil {
		HandleError(w, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
