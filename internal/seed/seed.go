package seed

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/jackc/pgx/v5/pgxpool"

	"askdb/internal/repository/postgres"
)

// embeddingDim matches text-embedding-3-small. Changing the embedding model
// requires recreating the schema_embeddings table.
const embeddingDim = 1536

// Seeder creates the service's own tables and, optionally, a small demo
// dataset the agent can be pointed at.
type Seeder struct {
	pool   *pgxpool.Pool
	tables *postgres.TableNames
	logger *slog.Logger
}

// NewSeeder creates a new seeder
func NewSeeder(pool *pgxpool.Pool, tables *postgres.TableNames, logger *slog.Logger) *Seeder {
	return &Seeder{
		pool:   pool,
		tables: tables,
		logger: logger,
	}
}

// Schema creates the infrastructure tables if they don't exist: sessions,
// messages, the schema embedding index, and the DDL notification trigger.
func (s *Seeder) Schema(ctx context.Context) error {
	for _, ext := range []string{
		`CREATE EXTENSION IF NOT EXISTS "uuid-ossp"`,
		`CREATE EXTENSION IF NOT EXISTS vector`,
	} {
		if _, err := s.pool.Exec(ctx, ext); err != nil {
			return err
		}
	}

	createSessions := `
		CREATE TABLE IF NOT EXISTS ` + s.tables.Sessions + ` (
			id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
			title TEXT NOT NULL,
			created_at TIMESTAMPTZ DEFAULT NOW(),
			updated_at TIMESTAMPTZ DEFAULT NOW()
		)
	`
	if _, err := s.pool.Exec(ctx, createSessions); err != nil {
		return err
	}

	createMessages := `
		CREATE TABLE IF NOT EXISTS ` + s.tables.Messages + ` (
			id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
			session_id UUID NOT NULL REFERENCES ` + s.tables.Sessions + `(id) ON DELETE CASCADE,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			parsed JSONB,
			created_at TIMESTAMPTZ DEFAULT NOW()
		)
	`
	if _, err := s.pool.Exec(ctx, createMessages); err != nil {
		return err
	}

	createEmbeddings := `
		CREATE TABLE IF NOT EXISTS ` + s.tables.SchemaEmbeddings + ` (
			table_name TEXT PRIMARY KEY,
			description TEXT NOT NULL DEFAULT '',
			columns JSONB NOT NULL DEFAULT '[]',
			join_keys JSONB NOT NULL DEFAULT '[]',
			primary_time_col TEXT NOT NULL DEFAULT '',
			doc_hash TEXT NOT NULL,
			embedding vector(` + strconv.Itoa(embeddingDim) + `),
			updated_at TIMESTAMPTZ DEFAULT NOW()
		)
	`
	if _, err := s.pool.Exec(ctx, createEmbeddings); err != nil {
		return err
	}

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_` + s.tables.Messages + `_session_created ON ` + s.tables.Messages + `(session_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_` + s.tables.Sessions + `_updated ON ` + s.tables.Sessions + `(updated_at DESC)`,
	}
	for _, indexSQL := range indexes {
		if _, err := s.pool.Exec(ctx, indexSQL); err != nil {
			return err
		}
	}

	s.installDDLTrigger(ctx)
	return nil
}

// installDDLTrigger wires CREATE/ALTER/DROP TABLE events to the NOTIFY
// channel the schema watcher listens on. Event triggers need elevated
// privileges on managed Postgres, so failure is logged and skipped; the
// schema still syncs at every server start.
func (s *Seeder) installDDLTrigger(ctx context.Context) {
	fn := `
		CREATE OR REPLACE FUNCTION notify_schema_changed() RETURNS event_trigger AS $$
		BEGIN
			PERFORM pg_notify('schema_changed', tg_tag);
		END;
		$$ LANGUAGE plpgsql
	`
	if _, err := s.pool.Exec(ctx, fn); err != nil {
		s.logger.Warn("could not create schema notification function", "error", err)
		return
	}

	trigger := `
		DO $$
		BEGIN
			IF NOT EXISTS (SELECT 1 FROM pg_event_trigger WHERE evtname = 'schema_changed_trigger') THEN
				CREATE EVENT TRIGGER schema_changed_trigger
					ON ddl_command_end
					WHEN TAG IN ('CREATE TABLE', 'ALTER TABLE', 'DROP TABLE', 'COMMENT')
					EXECUTE FUNCTION notify_schema_changed();
			END IF;
		END;
		$$
	`
	if _, err := s.pool.Exec(ctx, trigger); err != nil {
		s.logger.Warn("could not create schema event trigger", "error", err)
		return
	}
	s.logger.Info("schema change trigger installed")
}

// Drop removes the infrastructure tables in dependency order. Demo data
// tables are dropped separately by DropDemoData.
func (s *Seeder) Drop(ctx context.Context) error {
	tableNames := []string{
		s.tables.Messages,
		s.tables.Sessions,
		s.tables.SchemaEmbeddings,
	}
	for _, table := range tableNames {
		if _, err := s.pool.Exec(ctx, "DROP TABLE IF EXISTS "+table+" CASCADE"); err != nil {
			return err
		}
		s.logger.Info("dropped table", "table", table)
	}
	return nil
}
