package schemasync

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	pgvec "github.com/pgvector/pgvector-go"

	"askdb/internal/domain/models/agent"
	"askdb/internal/repository/postgres"
)

// Embedder batches schema documents into vectors.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Syncer mirrors the database schema into the schema_embeddings table the
// table search queries. Each base table becomes one document (name, comment,
// columns) with a content hash; only changed documents are re-embedded.
type Syncer struct {
	pool     *pgxpool.Pool
	tables   *postgres.TableNames
	embedder Embedder
	logger   *slog.Logger
}

// NewSyncer creates a Syncer.
func NewSyncer(pool *pgxpool.Pool, tables *postgres.TableNames, embedder Embedder, logger *slog.Logger) *Syncer {
	return &Syncer{
		pool:     pool,
		tables:   tables,
		embedder: embedder,
		logger:   logger,
	}
}

type tableDoc struct {
	Name           string
	Description    string
	Columns        []agent.ColumnInfo
	JoinKeys       []string
	PrimaryTimeCol string
	Doc            string
	Hash           string
}

// Sync snapshots the public schema, embeds new or changed table documents,
// and removes embeddings for tables that no longer exist. Safe to run
// concurrently with queries; upserts are per-table.
func (s *Syncer) Sync(ctx context.Context) error {
	docs, err := s.snapshot(ctx)
	if err != nil {
		return fmt.Errorf("snapshot schema: %w", err)
	}

	stored, err := s.storedHashes(ctx)
	if err != nil {
		return fmt.Errorf("load stored hashes: %w", err)
	}

	var changed []tableDoc
	current := make(map[string]struct{}, len(docs))
	for _, d := range docs {
		current[d.Name] = struct{}{}
		if stored[d.Name] != d.Hash {
			changed = append(changed, d)
		}
	}

	if len(changed) > 0 {
		texts := make([]string, len(changed))
		for i, d := range changed {
			texts[i] = d.Doc
		}
		vectors, err := s.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return fmt.Errorf("embed schema documents: %w", err)
		}
		for i, d := range changed {
			if err := s.upsert(ctx, d, vectors[i]); err != nil {
				return fmt.Errorf("upsert %s: %w", d.Name, err)
			}
		}
	}

	removed := 0
	for name := range stored {
		if _, ok := current[name]; !ok {
			if err := s.remove(ctx, name); err != nil {
				return fmt.Errorf("remove %s: %w", name, err)
			}
			removed++
		}
	}

	s.logger.Info("schema sync complete",
		"tables", len(docs),
		"updated", len(changed),
		"removed", removed,
	)
	return nil
}

// snapshot reads the public schema from information_schema plus table and
// column comments.
func (s *Syncer) snapshot(ctx context.Context) ([]tableDoc, error) {
	query := `
		SELECT c.table_name,
		       c.column_name,
		       c.data_type,
		       COALESCE(col_description(cls.oid, c.ordinal_position), ''),
		       COALESCE(obj_description(cls.oid, 'pg_class'), '')
		FROM information_schema.columns c
		JOIN pg_class cls ON cls.relname = c.table_name
		JOIN pg_namespace ns ON ns.oid = cls.relnamespace AND ns.nspname = c.table_schema
		WHERE c.table_schema = 'public' AND cls.relkind = 'r'
		ORDER BY c.table_name, c.ordinal_position
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byTable := make(map[string]*tableDoc)
	var order []string
	for rows.Next() {
		var table, column, dataType, colDesc, tableDesc string
		if err := rows.Scan(&table, &column, &dataType, &colDesc, &tableDesc); err != nil {
			return nil, err
		}
		d, ok := byTable[table]
		if !ok {
			d = &tableDoc{Name: table, Description: tableDesc}
			byTable[table] = d
			order = append(order, table)
		}
		d.Columns = append(d.Columns, agent.ColumnInfo{
			Name:        column,
			Type:        dataType,
			Description: colDesc,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	docs := make([]tableDoc, 0, len(order))
	for _, name := range order {
		d := byTable[name]
		// Own-infrastructure tables do not belong in the search index.
		if s.isInternalTable(name) {
			continue
		}
		d.PrimaryTimeCol = detectTimeColumn(d.Columns)
		d.JoinKeys = detectJoinKeys(d.Columns)
		d.Doc = renderDoc(d)
		d.Hash = hashDoc(d.Doc)
		docs = append(docs, *d)
	}
	return docs, nil
}

func (s *Syncer) isInternalTable(name string) bool {
	return name == s.tables.Sessions ||
		name == s.tables.Messages ||
		name == s.tables.SchemaEmbeddings
}

func (s *Syncer) storedHashes(ctx context.Context) (map[string]string, error) {
	query := fmt.Sprintf(`SELECT table_name, doc_hash FROM %s`, s.tables.SchemaEmbeddings)

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	hashes := make(map[string]string)
	for rows.Next() {
		var name, hash string
		if err := rows.Scan(&name, &hash); err != nil {
			return nil, err
		}
		hashes[name] = hash
	}
	return hashes, rows.Err()
}

func (s *Syncer) upsert(ctx context.Context, d tableDoc, vec []float32) error {
	colsJSON, err := json.Marshal(d.Columns)
	if err != nil {
		return err
	}
	keysJSON, err := json.Marshal(d.JoinKeys)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (table_name, description, columns, join_keys, primary_time_col, doc_hash, embedding, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		ON CONFLICT (table_name) DO UPDATE SET
			description = EXCLUDED.description,
			columns = EXCLUDED.columns,
			join_keys = EXCLUDED.join_keys,
			primary_time_col = EXCLUDED.primary_time_col,
			doc_hash = EXCLUDED.doc_hash,
			embedding = EXCLUDED.embedding,
			updated_at = now()
	`, s.tables.SchemaEmbeddings)

	_, err = s.pool.Exec(ctx, query,
		d.Name, d.Description, colsJSON, keysJSON, d.PrimaryTimeCol, d.Hash, pgvec.NewVector(vec),
	)
	return err
}

func (s *Syncer) remove(ctx context.Context, name string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE table_name = $1`, s.tables.SchemaEmbeddings)
	_, err := s.pool.Exec(ctx, query, name)
	return err
}

// detectTimeColumn prefers a column literally named ts, then the first
// timestamp-typed column.
func detectTimeColumn(cols []agent.ColumnInfo) string {
	for _, c := range cols {
		if c.Name == "ts" {
			return c.Name
		}
	}
	for _, c := range cols {
		if strings.HasPrefix(c.Type, "timestamp") {
			return c.Name
		}
	}
	return ""
}

// detectJoinKeys picks id-shaped columns as likely join keys.
func detectJoinKeys(cols []agent.ColumnInfo) []string {
	var keys []string
	for _, c := range cols {
		if c.Name == "id" || strings.HasSuffix(c.Name, "_id") {
			keys = append(keys, c.Name)
		}
	}
	sort.Strings(keys)
	return keys
}

// renderDoc builds the text that gets embedded for one table.
func renderDoc(d *tableDoc) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Table: %s\n", d.Name)
	if d.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", d.Description)
	}
	b.WriteString("Columns:\n")
	for _, c := range d.Columns {
		fmt.Fprintf(&b, "- %s (%s)", c.Name, c.Type)
		if c.Description != "" {
			fmt.Fprintf(&b, ": %s", c.Description)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func hashDoc(doc string) string {
	sum := sha256.Sum256([]byte(doc))
	return hex.EncodeToString(sum[:])
}
