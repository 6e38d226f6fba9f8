package agent

import (
	"context"
	"fmt"

	"askdb/internal/domain/models/agent"
)

// ModelTier selects which configured model a generation request runs on.
// Cheap classification and report prose run on the fast tier; reranking,
// SQL generation, and result validation run on the smart tier.
type ModelTier string

const (
	TierFast  ModelTier = "fast"
	TierSmart ModelTier = "smart"
)

// GenerateRequest is one text generation call.
type GenerateRequest struct {
	// System is the system prompt.
	System string
	// User is the user prompt. Ignored when Messages is set.
	User string
	// Messages optionally carries multi-turn context (general chat branch).
	Messages []agent.HistoryMessage
	// JSONMode asks the provider to return a single JSON object.
	JSONMode bool
	// Tier selects the model.
	Tier ModelTier
}

// TextGenerator is the text generation port. Implementations must treat a
// malformed model response as a normal string return; interpreting the
// content is the caller's concern.
type TextGenerator interface {
	Generate(ctx context.Context, req *GenerateRequest) (string, error)
}

// TableSearcher is the table search port. Results are ranked candidates with
// column metadata; no ordering guarantee beyond higher score = more relevant.
type TableSearcher interface {
	Search(ctx context.Context, query string, topK int) ([]agent.TableCandidate, error)
}

// SQLExecutor is the SQL execution port. It must only ever be invoked with
// statements that passed the safety guard, and runs exactly the given SQL
// once. Database-reported failures come back as *ExecError so the engine can
// classify them; any other error is a transport failure.
type SQLExecutor interface {
	Execute(ctx context.Context, sql string) ([]agent.Row, error)
}

// ExecError is a database-reported execution failure. The message text is
// what the error classifier inspects.
type ExecError struct {
	Message string
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("sql execution failed: %s", e.Message)
}
