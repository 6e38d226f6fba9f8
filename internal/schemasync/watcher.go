package schemasync

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Channel is the NOTIFY channel DDL event triggers fire on.
const Channel = "schema_changed"

// reconnectDelay is how long the watcher waits before re-acquiring a
// connection after a listen failure.
const reconnectDelay = 5 * time.Second

// Watcher holds a dedicated LISTEN connection and re-runs the syncer when
// the database announces a schema change.
type Watcher struct {
	pool   *pgxpool.Pool
	syncer *Syncer
	logger *slog.Logger
}

// NewWatcher creates a Watcher.
func NewWatcher(pool *pgxpool.Pool, syncer *Syncer, logger *slog.Logger) *Watcher {
	return &Watcher{
		pool:   pool,
		syncer: syncer,
		logger: logger,
	}
}

// Run blocks listening for schema-change notifications until ctx is
// cancelled. Connection failures reconnect with a fixed delay; a missed
// notification is recovered by the next one, so no replay is attempted.
func (w *Watcher) Run(ctx context.Context) {
	for {
		if err := w.listen(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Warn("schema watcher disconnected, retrying",
				"error", err,
				"delay", reconnectDelay,
			)
			select {
			case <-time.After(reconnectDelay):
			case <-ctx.Done():
				return
			}
		}
	}
}

func (w *Watcher) listen(ctx context.Context) error {
	conn, err := w.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+Channel); err != nil {
		return err
	}
	w.logger.Info("schema watcher listening", "channel", Channel)

	for {
		notification, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}

		w.logger.Info("schema change notification", "payload", notification.Payload)
		if err := w.syncer.Sync(ctx); err != nil {
			// The schema is stale until the next notification; keep
			// listening rather than tearing down the connection.
			w.logger.Error("schema sync after notification failed", "error", err)
		}
	}
}
