package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"unicode"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	workflow "askdb/internal/agent"
	"askdb/internal/config"
	"askdb/internal/domain"
	model "askdb/internal/domain/models/agent"
	"askdb/internal/domain/repositories/chat"
)

// TurnRunner runs one workflow turn. Satisfied by the agent engine; an
// interface so the service is testable without models or a database.
type TurnRunner interface {
	Run(ctx context.Context, question, constraints string, prior *model.PriorTurn, obs workflow.Observer) (*model.TurnState, error)
}

// Emitter receives the turn's output events in order. It is called from the
// turn's goroutine; implementations handle their own synchronization.
type Emitter func(event model.Event)

// Request is one incoming question.
type Request struct {
	SessionID   string `json:"session_id"`
	Question    string `json:"question"`
	Constraints string `json:"constraints"`
}

// Validate checks the request before any model or database work happens.
func (r *Request) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Question,
			validation.Required.Error("question is required"),
			validation.RuneLength(1, config.MaxQuestionLength),
			validation.By(noControlChars),
		),
		validation.Field(&r.Constraints,
			validation.RuneLength(0, config.MaxConstraintsLength),
			validation.By(noControlChars),
		),
		validation.Field(&r.SessionID,
			validation.When(r.SessionID != "", is.UUID.Error("session_id must be a UUID")),
		),
	)
}

// noControlChars rejects control characters other than ordinary whitespace;
// they end up verbatim in prompts and logs.
func noControlChars(value any) error {
	s, _ := value.(string)
	for _, r := range s {
		if unicode.IsControl(r) && r != '\n' && r != '\r' && r != '\t' {
			return errors.New("must not contain control characters")
		}
	}
	return nil
}

// Service runs question turns: session bookkeeping around the workflow
// engine, plus the event stream the handler forwards to the client.
type Service struct {
	runner   TurnRunner
	sessions chat.SessionRepository
	messages chat.MessageRepository
	logger   *slog.Logger
}

// NewService creates a query service.
func NewService(runner TurnRunner, sessions chat.SessionRepository, messages chat.MessageRepository, logger *slog.Logger) *Service {
	return &Service{
		runner:   runner,
		sessions: sessions,
		messages: messages,
		logger:   logger,
	}
}

// statusMessages maps workflow steps to the progress notice streamed to the
// client. Steps without an entry emit nothing.
var statusMessages = map[workflow.Step]string{
	workflow.StepClassifyIntent:     "Analyzing your question",
	workflow.StepGeneralChat:        "Writing a reply",
	workflow.StepParseRequest:       "Breaking down the request",
	workflow.StepValidateRequest:    "Checking the request",
	workflow.StepCheckClarification: "Checking whether anything is unclear",
	workflow.StepRetrieveTables:     "Searching for relevant tables",
	workflow.StepSelectTables:       "Selecting the best tables",
	workflow.StepGenerateSQL:        "Writing the query",
	workflow.StepGuardSQL:           "Validating the query",
	workflow.StepExecuteSQL:         "Running the query",
	workflow.StepNormalizeResult:    "Processing the result",
	workflow.StepValidateLLM:        "Verifying the result",
	workflow.StepExpandTables:       "Looking at more tables",
	workflow.StepGenerateReport:     "Writing the answer",
}

// Ask runs one turn and streams its events through emit. The terminal event
// is always emitted here, including on error.
func (s *Service) Ask(ctx context.Context, req *Request, emit Emitter) error {
	if err := req.Validate(); err != nil {
		return &domain.ValidationError{Message: err.Error()}
	}

	session, err := s.sessions.GetOrCreate(ctx, req.SessionID, sessionTitle(req.Question))
	if err != nil {
		emit(model.Event{Type: model.EventError, Message: "failed to open session"})
		return fmt.Errorf("open session: %w", err)
	}

	prior, err := s.loadPrior(ctx, session.ID)
	if err != nil {
		// A missing prior turn degrades the answer, not the turn.
		s.logger.Warn("loading prior turn failed", "session_id", session.ID, "error", err)
		prior = nil
	}

	if err := s.messages.Append(ctx, &chat.Message{
		SessionID: session.ID,
		Role:      "user",
		Content:   req.Question,
	}); err != nil {
		emit(model.Event{Type: model.EventError, Message: "failed to record question"})
		return fmt.Errorf("append user message: %w", err)
	}

	lastStatus := ""
	obs := func(step workflow.Step, _ *model.TurnState) {
		msg, ok := statusMessages[step]
		if !ok || msg == lastStatus {
			return
		}
		lastStatus = msg
		emit(model.Event{
			Type:      model.EventStatus,
			Message:   msg,
			Node:      string(step),
			SessionID: session.ID,
		})
	}

	st, err := s.runner.Run(ctx, req.Question, req.Constraints, prior, obs)
	if err != nil {
		s.logger.Error("turn failed", "session_id", session.ID, "error", err)
		emit(model.Event{
			Type:      model.EventError,
			Message:   err.Error(),
			SessionID: session.ID,
		})
		return err
	}

	if st.NeedsClarification {
		emit(model.Event{
			Type:      model.EventClarification,
			Message:   st.ClarificationQuestion,
			SessionID: session.ID,
		})
		return s.persistAssistant(ctx, session.ID, st.ClarificationQuestion, "", nil)
	}

	emit(model.Event{
		Type:             model.EventResult,
		Message:          string(st.Status),
		Report:           st.Report,
		SQL:              finalSQL(st),
		SuggestedActions: st.SuggestedActions,
		SessionID:        session.ID,
	})

	// Only successful turns carry their parsed request forward; a failed
	// parse or query must not feed inheritance.
	var parsed *model.ParsedRequest
	if st.Status == model.StatusSuccess {
		parsed = st.Parsed
	}
	return s.persistAssistant(ctx, session.ID, st.Report, finalSQL(st), parsed)
}

// loadPrior builds the immutable previous-turn snapshot for the engine.
func (s *Service) loadPrior(ctx context.Context, sessionID string) (*model.PriorTurn, error) {
	last, err := s.messages.LastAssistant(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	recent, err := s.messages.ListRecent(ctx, sessionID, config.HistoryWindow)
	if err != nil {
		return nil, err
	}

	if last == nil && len(recent) == 0 {
		return nil, nil
	}

	prior := &model.PriorTurn{}
	if last != nil {
		prior.SQL = workflow.ExtractSQLFromText(last.Content)
		prior.Parsed = last.Parsed
	}
	for _, m := range recent {
		prior.History = append(prior.History, model.HistoryMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}
	return prior, nil
}

// persistAssistant stores the assistant's reply. The SQL rides inside the
// content as a fenced block so the next turn can extract it from the
// message alone.
func (s *Service) persistAssistant(ctx context.Context, sessionID, report, sql string, parsed *model.ParsedRequest) error {
	content := report
	if sql != "" {
		content = fmt.Sprintf("%s\n\n```sql\n%s\n```", report, sql)
	}

	if err := s.messages.Append(ctx, &chat.Message{
		SessionID: sessionID,
		Role:      "assistant",
		Content:   content,
		Parsed:    parsed,
	}); err != nil {
		return fmt.Errorf("append assistant message: %w", err)
	}

	if err := s.sessions.Touch(ctx, sessionID); err != nil {
		s.logger.Warn("touch session failed", "session_id", sessionID, "error", err)
	}
	return nil
}

// finalSQL returns the SQL worth exposing: only a query that actually
// produced the answer.
func finalSQL(st *model.TurnState) string {
	if st.Status == model.StatusSuccess || st.Status == model.StatusFail {
		return st.GeneratedSQL
	}
	return ""
}

// sessionTitle derives a title for a fresh session from its first question.
func sessionTitle(question string) string {
	const maxTitle = 80
	runes := []rune(question)
	if len(runes) <= maxTitle {
		return question
	}
	return string(runes[:maxTitle]) + "..."
}
