package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"askdb/internal/httputil"
)

// HealthHandler reports service liveness and database reachability.
type HealthHandler struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(pool *pgxpool.Pool, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{pool: pool, logger: logger}
}

// Check handles GET /health
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := "ok"
	code := http.StatusOK
	if err := h.pool.Ping(ctx); err != nil {
		h.logger.Error("health check database ping failed", "error", err)
		status = "database unreachable"
		code = http.StatusServiceUnavailable
	}

	httputil.RespondJSON(w, code, map[string]string{"status": status})
}
