package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"askdb/internal/domain"
	"askdb/internal/domain/models/agent"
	"askdb/internal/domain/repositories/chat"
)

// SessionRepository implements chat.SessionRepository using PostgreSQL
type SessionRepository struct {
	pool   *pgxpool.Pool
	tables *TableNames
	logger *slog.Logger
}

// NewSessionRepository creates a new SessionRepository
func NewSessionRepository(config *RepositoryConfig) chat.SessionRepository {
	return &SessionRepository{
		pool:   config.Pool,
		tables: config.Tables,
		logger: config.Logger,
	}
}

// GetOrCreate returns the session with the given ID, creating it if needed.
// An empty ID always creates a fresh session.
func (r *SessionRepository) GetOrCreate(ctx context.Context, id, title string) (*chat.Session, error) {
	if id == "" {
		id = uuid.New().String()
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, title, created_at, updated_at)
		VALUES ($1, $2, now(), now())
		ON CONFLICT (id) DO UPDATE SET updated_at = now()
		RETURNING id, title, created_at, updated_at
	`, r.tables.Sessions)

	var s chat.Session
	err := r.pool.QueryRow(ctx, query, id, title).Scan(
		&s.ID, &s.Title, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("get or create session: %w", err)
	}

	return &s, nil
}

// Get retrieves a session by ID
func (r *SessionRepository) Get(ctx context.Context, id string) (*chat.Session, error) {
	query := fmt.Sprintf(`
		SELECT id, title, created_at, updated_at
		FROM %s
		WHERE id = $1
	`, r.tables.Sessions)

	var s chat.Session
	err := r.pool.QueryRow(ctx, query, id).Scan(&s.ID, &s.Title, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if IsPgNoRowsError(err) {
			return nil, fmt.Errorf("session %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get session: %w", err)
	}

	return &s, nil
}

// List retrieves sessions ordered by most recent activity
func (r *SessionRepository) List(ctx context.Context, limit int) ([]chat.Session, error) {
	query := fmt.Sprintf(`
		SELECT id, title, created_at, updated_at
		FROM %s
		ORDER BY updated_at DESC
		LIMIT $1
	`, r.tables.Sessions)

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []chat.Session
	for rows.Next() {
		var s chat.Session
		if err := rows.Scan(&s.ID, &s.Title, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, s)
	}

	return sessions, rows.Err()
}

// Delete removes a session; its messages go with it via ON DELETE CASCADE.
func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, r.tables.Sessions)

	tag, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("session %s: %w", id, domain.ErrNotFound)
	}

	return nil
}

// Touch bumps the session's updated_at
func (r *SessionRepository) Touch(ctx context.Context, id string) error {
	query := fmt.Sprintf(`UPDATE %s SET updated_at = now() WHERE id = $1`, r.tables.Sessions)

	if _, err := r.pool.Exec(ctx, query, id); err != nil {
		return fmt.Errorf("touch session: %w", err)
	}

	return nil
}

// MessageRepository implements chat.MessageRepository using PostgreSQL
type MessageRepository struct {
	pool   *pgxpool.Pool
	tables *TableNames
	logger *slog.Logger
}

// NewMessageRepository creates a new MessageRepository
func NewMessageRepository(config *RepositoryConfig) chat.MessageRepository {
	return &MessageRepository{
		pool:   config.Pool,
		tables: config.Tables,
		logger: config.Logger,
	}
}

// Append stores a message at the end of the session
func (r *MessageRepository) Append(ctx context.Context, msg *chat.Message) error {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}

	var parsed []byte
	if msg.Parsed != nil {
		var err error
		parsed, err = json.Marshal(msg.Parsed)
		if err != nil {
			return fmt.Errorf("encode parsed request: %w", err)
		}
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, session_id, role, content, parsed, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, r.tables.Messages)

	_, err := r.pool.Exec(ctx, query,
		msg.ID, msg.SessionID, msg.Role, msg.Content, parsed, msg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}

	return nil
}

// ListRecent returns up to limit messages, oldest first
func (r *MessageRepository) ListRecent(ctx context.Context, sessionID string, limit int) ([]chat.Message, error) {
	// Newest N selected inside, then flipped back to chronological order.
	query := fmt.Sprintf(`
		SELECT id, session_id, role, content, parsed, created_at FROM (
			SELECT id, session_id, role, content, parsed, created_at
			FROM %s
			WHERE session_id = $1
			ORDER BY created_at DESC
			LIMIT $2
		) recent
		ORDER BY created_at ASC
	`, r.tables.Messages)

	rows, err := r.pool.Query(ctx, query, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var messages []chat.Message
	for rows.Next() {
		msg, err := scanMessage(rows.Scan)
		if err != nil {
			return nil, err
		}
		messages = append(messages, *msg)
	}

	return messages, rows.Err()
}

// LastAssistant returns the most recent assistant message, or nil when the
// session has none.
func (r *MessageRepository) LastAssistant(ctx context.Context, sessionID string) (*chat.Message, error) {
	query := fmt.Sprintf(`
		SELECT id, session_id, role, content, parsed, created_at
		FROM %s
		WHERE session_id = $1 AND role = 'assistant'
		ORDER BY created_at DESC
		LIMIT 1
	`, r.tables.Messages)

	msg, err := scanMessage(r.pool.QueryRow(ctx, query, sessionID).Scan)
	if err != nil {
		if IsPgNoRowsError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("last assistant message: %w", err)
	}

	return msg, nil
}

func scanMessage(scan func(dest ...any) error) (*chat.Message, error) {
	var msg chat.Message
	var parsed []byte
	if err := scan(&msg.ID, &msg.SessionID, &msg.Role, &msg.Content, &parsed, &msg.CreatedAt); err != nil {
		return nil, err
	}
	if len(parsed) > 0 {
		var p agent.ParsedRequest
		if err := json.Unmarshal(parsed, &p); err == nil {
			msg.Parsed = &p
		}
	}
	return &msg, nil
}
