package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"askdb/internal/domain/models/agent"
	svc "askdb/internal/domain/services/agent"
)

// validationSampleRows caps how many result rows the validator sees.
const validationSampleRows = 10

// stepValidateLLM checks whether the executed result actually answers the
// question. Skipped when execution already failed (the verdict is set by the
// classifier). Malformed validator output must never crash the turn: it
// defaults to OK when rows came back, DATA_MISSING otherwise.
func (e *Engine) stepValidateLLM(ctx context.Context, st *agent.TurnState) (*agent.StepPatch, error) {
	if st.SQLError != "" {
		return &agent.StepPatch{}, nil
	}

	sample := st.SQLResult
	if len(sample) > validationSampleRows {
		sample = sample[:validationSampleRows]
	}
	sampleJSON, _ := json.Marshal(sample)

	text, err := e.llm.Generate(ctx, &svc.GenerateRequest{
		System: validateResultSystem,
		User: fmt.Sprintf(validateResultUser,
			e.now().Format("2006-01-02T15:04:05Z07:00"),
			st.UserQuestion,
			e.timeRangeDescription(st),
			st.Constraints,
			st.GeneratedSQL,
			st.TableContext,
			string(sampleJSON),
			joinLines(st.FailedQueries),
			st.ValidationReason,
		),
		JSONMode: true,
		Tier:     svc.TierSmart,
	})
	if err != nil {
		return nil, fmt.Errorf("result validation: %w", err)
	}

	var payload struct {
		Verdict           string   `json:"verdict"`
		FeedbackToSQL     string   `json:"feedback_to_sql"`
		CorrectionHint    string   `json:"correction_hint"`
		UnnecessaryTables []string `json:"unnecessary_tables"`
	}
	if derr := decodeLLMJSON(text, &payload); derr != nil {
		e.logger.Warn("validate_llm returned malformed JSON", "error", derr)
		if len(st.SQLResult) > 0 {
			return &agent.StepPatch{
				Verdict:          agent.VerdictOf(agent.VerdictOK),
				ValidationReason: agent.String("validator response unparseable; result accepted"),
			}, nil
		}
		return &agent.StepPatch{
			Verdict:          agent.VerdictOf(agent.VerdictDataMissing),
			ValidationReason: agent.String("validator response unparseable and no rows returned"),
		}, nil
	}

	verdict := agent.ParseVerdict(payload.Verdict)
	if verdict == agent.VerdictOK {
		// A non-empty unnecessary_tables list still triggers a pruning retry
		// even on an OK verdict.
		if prune := e.pruneUnnecessaryTables(st, payload.UnnecessaryTables); prune != nil {
			return prune, nil
		}
		return &agent.StepPatch{
			Verdict:          agent.VerdictOf(agent.VerdictOK),
			ValidationReason: agent.String(payload.FeedbackToSQL),
		}, nil
	}

	if prune := e.pruneUnnecessaryTables(st, payload.UnnecessaryTables); prune != nil {
		return prune, nil
	}

	e.logger.Info("validate_llm rejected result", "verdict", verdict)
	return &agent.StepPatch{
		Verdict:              agent.VerdictOf(verdict),
		ValidationReason:     agent.String(formatValidationFeedback(payload.FeedbackToSQL, payload.CorrectionHint)),
		CorrectionHint:       agent.String(payload.CorrectionHint),
		SQLRetryCount:        agent.Int(st.SQLRetryCount + 1),
		ValidationRetryCount: agent.Int(st.ValidationRetryCount + 1),
		TotalLoops:           agent.Int(st.TotalLoops + 1),
		FailedQueries:        agent.Strings(agent.AppendFailedQuery(st.FailedQueries, st.GeneratedSQL)),
	}, nil
}

// pruneUnnecessaryTables builds the table-pruning retry patch, or nil when
// pruning does not apply (empty list, nothing actually removed, or it would
// empty the selection).
func (e *Engine) pruneUnnecessaryTables(st *agent.TurnState, unnecessary []string) *agent.StepPatch {
	if len(unnecessary) == 0 {
		return nil
	}
	drop := make(map[string]struct{}, len(unnecessary))
	for _, t := range unnecessary {
		drop[t] = struct{}{}
	}
	filtered := make([]string, 0, len(st.SelectedTables))
	for _, t := range st.SelectedTables {
		if _, ok := drop[t]; !ok {
			filtered = append(filtered, t)
		}
	}
	if len(filtered) == 0 || len(filtered) == len(st.SelectedTables) {
		return nil
	}

	_, newContext := rebuildContextFromCandidates(st.TableCandidates, filtered)
	e.logger.Info("validate_llm pruning unnecessary tables", "removed", unnecessary)

	return &agent.StepPatch{
		SelectedTables:       agent.Strings(filtered),
		TableContext:         agent.String(newContext),
		Verdict:              agent.VerdictOf(agent.VerdictRetrySQL),
		ValidationReason:     agent.String("retrying after removing unnecessary tables"),
		ValidationRetryCount: agent.Int(st.ValidationRetryCount + 1),
		TotalLoops:           agent.Int(st.TotalLoops + 1),
	}
}

func formatValidationFeedback(feedback, hint string) string {
	out := "### Why the previous attempt failed\n" + feedback
	if hint != "" {
		out += "\n### Hint for a correct query\n" + hint
	}
	return out
}

func joinLines(lines []string) string {
	out := ""
	for i, l := range lines {
		if i > 0 {
			out += "\n"
		}
		out += l
	}
	return out
}
