package chat

import (
	"context"
	"time"

	"askdb/internal/domain/models/agent"
)

// Session is one conversation keyed by the session ID the client presents.
type Session struct {
	ID        string
	Title     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Message is one persisted conversation message. Assistant messages embed the
// turn's final SQL in a fenced block so follow-up turns can extract it.
type Message struct {
	ID        string
	SessionID string
	Role      string // "user" or "assistant"
	Content   string
	// Parsed is the structured request of the turn that produced an
	// assistant message. Follow-up turns inherit time range and metric from
	// it. Nil for user messages and failed turns.
	Parsed    *agent.ParsedRequest
	CreatedAt time.Time
}

// SessionRepository persists chat sessions.
type SessionRepository interface {
	// GetOrCreate returns the session with the given ID, creating it if it
	// does not exist yet.
	GetOrCreate(ctx context.Context, id, title string) (*Session, error)

	// Get retrieves a session by ID.
	Get(ctx context.Context, id string) (*Session, error)

	// List retrieves sessions ordered by most recent activity.
	List(ctx context.Context, limit int) ([]Session, error)

	// Delete removes a session and its messages.
	Delete(ctx context.Context, id string) error

	// Touch bumps the session's updated_at.
	Touch(ctx context.Context, id string) error
}

// MessageRepository persists conversation messages.
type MessageRepository interface {
	// Append stores a message at the end of the session.
	Append(ctx context.Context, msg *Message) error

	// ListRecent returns up to limit messages, oldest first.
	ListRecent(ctx context.Context, sessionID string, limit int) ([]Message, error)

	// LastAssistant returns the most recent assistant message, or nil when
	// the session has none.
	LastAssistant(ctx context.Context, sessionID string) (*Message, error)
}
