package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"askdb/internal/domain"
	"askdb/internal/httputil"
)

// HandleError maps service errors to problem-detail responses. Anything not
// carrying an HTTP status is a 500 and gets logged with its real cause.
func HandleError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var httpErr domain.HTTPError
	if errors.As(err, &httpErr) {
		httputil.RespondError(w, httpErr.StatusCode(), httpErr.Error())
		return
	}

	switch {
	case errors.Is(err, domain.ErrNotFound):
		httputil.RespondError(w, http.StatusNotFound, "resource not found")
	case errors.Is(err, domain.ErrValidation):
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
	default:
		logger.Error("unhandled service error", "error", err)
		httputil.RespondError(w, http.StatusInternalServerError, "internal server error")
	}
}
