package pgvector

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	pgvec "github.com/pgvector/pgvector-go"

	"askdb/internal/domain/models/agent"
	"askdb/internal/repository/postgres"
)

// Embedder turns a query string into the vector compared against the stored
// schema embeddings.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Searcher implements the agent's table search port over the
// schema_embeddings table using pgvector cosine distance.
type Searcher struct {
	pool     *pgxpool.Pool
	tables   *postgres.TableNames
	embedder Embedder
	logger   *slog.Logger
}

// NewSearcher creates a Searcher.
func NewSearcher(pool *pgxpool.Pool, tables *postgres.TableNames, embedder Embedder, logger *slog.Logger) *Searcher {
	return &Searcher{
		pool:     pool,
		tables:   tables,
		embedder: embedder,
		logger:   logger,
	}
}

// Search returns up to topK candidate tables ranked by similarity to the
// query. Scores are cosine similarity in [0,1].
func (s *Searcher) Search(ctx context.Context, query string, topK int) ([]agent.TableCandidate, error) {
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	sql := fmt.Sprintf(`
		SELECT table_name, description, columns, join_keys, primary_time_col,
		       1 - (embedding <=> $1) AS score
		FROM %s
		ORDER BY embedding <=> $1
		LIMIT $2
	`, s.tables.SchemaEmbeddings)

	rows, err := s.pool.Query(ctx, sql, pgvec.NewVector(vec), topK)
	if err != nil {
		return nil, fmt.Errorf("schema search: %w", err)
	}
	defer rows.Close()

	var candidates []agent.TableCandidate
	for rows.Next() {
		var (
			c        agent.TableCandidate
			colsJSON []byte
			keysJSON []byte
		)
		if err := rows.Scan(&c.TableName, &c.Description, &colsJSON, &keysJSON, &c.PrimaryTimeCol, &c.Score); err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		if len(colsJSON) > 0 {
			if err := json.Unmarshal(colsJSON, &c.Columns); err != nil {
				s.logger.Warn("bad column metadata, skipping columns", "table", c.TableName, "error", err)
			}
		}
		if len(keysJSON) > 0 {
			if err := json.Unmarshal(keysJSON, &c.JoinKeys); err != nil {
				s.logger.Warn("bad join-key metadata", "table", c.TableName, "error", err)
			}
		}
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("schema search rows: %w", err)
	}

	s.logger.Debug("schema search", "query_len", len(query), "candidates", len(candidates))
	return candidates, nil
}
