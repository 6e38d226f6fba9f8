package query

import (
	"context"

	"askdb/internal/domain/repositories/chat"
)

const defaultSessionListLimit = 50

// ListSessions returns recent sessions, newest activity first.
func (s *Service) ListSessions(ctx context.Context) ([]chat.Session, error) {
	return s.sessions.List(ctx, defaultSessionListLimit)
}

// GetMessages returns up to limit messages of a session, oldest first.
func (s *Service) GetMessages(ctx context.Context, sessionID string, limit int) ([]chat.Message, error) {
	if _, err := s.sessions.Get(ctx, sessionID); err != nil {
		return nil, err
	}
	return s.messages.ListRecent(ctx, sessionID, limit)
}

// DeleteSession removes a session and its messages.
func (s *Service) DeleteSession(ctx context.Context, sessionID string) error {
	return s.sessions.Delete(ctx, sessionID)
}
