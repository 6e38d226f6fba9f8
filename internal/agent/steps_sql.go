package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"askdb/internal/domain/models/agent"
	svc "askdb/internal/domain/services/agent"
)

// generateSQLInnerLoops bounds the in-step regeneration that handles
// needs_more_tables responses.
const generateSQLInnerLoops = 2

// stepGenerateSQL asks the model for a query over the current schema context.
// When the model reports the context is insufficient, the step expands the
// table selection in place (bounded) and retries with the enlarged context.
func (e *Engine) stepGenerateSQL(ctx context.Context, st *agent.TurnState) (*agent.StepPatch, error) {
	// Working copies: the in-step expansion must not leak into state unless
	// the step completes.
	selected := st.SelectedTables
	tableContext := st.TableContext
	offset := st.CandidateOffset
	expandCount := st.TableExpandCount
	totalLoops := st.TotalLoops
	expandFailed := st.ExpandFailed
	expandAttempted := st.ExpandAttempted
	expandReason := st.ExpandReason
	feedback := e.sqlFeedback(st)

	patch := &agent.StepPatch{}
	var outcome GenerationOutcome

	for loop := 0; loop < generateSQLInnerLoops; loop++ {
		text, err := e.llm.Generate(ctx, &svc.GenerateRequest{
			System: generateSQLSystem,
			User:   e.generateSQLUserPrompt(st, selected, tableContext, feedback),
			Tier:   svc.TierSmart,
		})
		if err != nil {
			return nil, fmt.Errorf("sql generation: %w", err)
		}

		outcome = parseGenerationResponse(text)
		if outcome.Kind == GenerationRawFallback {
			e.logger.Warn("generate_sql JSON parse failed, using raw text as SQL")
			break
		}

		if !outcome.NeedsMoreTables {
			break
		}
		if expandFailed {
			// Expansion already failed this turn; take whatever SQL exists.
			break
		}

		expandCount++
		totalLoops++
		expandAttempted = true

		newSelected, newContext, newOffset := expandTables(
			selected, st.TableCandidates, offset, e.limits.ExpandStep)
		if newOffset > offset {
			added := newSelected[len(selected):]
			expandReason = fmt.Sprintf("expanded table context with %s", strings.Join(added, ", "))
			e.logger.Info("generate_sql expanded tables in-loop", "added", added)
			selected, tableContext, offset = newSelected, newContext, newOffset
			continue
		}

		expandFailed = true
		expandReason = "table expansion attempted but no candidates remain"
		feedback += "\n(system notice: no additional tables are available; proceed with the current schema context)"
		e.logger.Info("generate_sql expansion found no more candidates")
	}

	patch.GeneratedSQL = agent.String(outcome.SQL)
	patch.SQLGuardError = agent.String("")
	patch.SelectedTables = agent.Strings(selected)
	patch.TableContext = agent.String(tableContext)
	patch.CandidateOffset = agent.Int(offset)
	patch.TableExpandCount = agent.Int(expandCount)
	patch.TotalLoops = agent.Int(totalLoops)
	patch.ExpandAttempted = agent.Bool(expandAttempted)
	patch.ExpandFailed = agent.Bool(expandFailed)
	patch.ExpandReason = agent.String(expandReason)
	return patch, nil
}

// sqlFeedback renders the validation feedback block for the generation
// prompt.
func (e *Engine) sqlFeedback(st *agent.TurnState) string {
	if st.ValidationReason == "" {
		return ""
	}
	var b strings.Builder
	b.WriteString("### Why the previous attempt failed\n")
	b.WriteString(st.ValidationReason)
	if st.CorrectionHint != "" {
		b.WriteString("\n### Hint for a correct query\n")
		b.WriteString(st.CorrectionHint)
	}
	return b.String()
}

// timeRangeDescription renders the resolved time window for prompts. An
// inherited range is resolved from the previous turn's SQL, not from mutable
// state.
func (e *Engine) timeRangeDescription(st *agent.TurnState) string {
	tr := st.Parsed.TimeRange
	switch {
	case tr == nil:
		return "unspecified"
	case tr.AllTime:
		return "all time"
	case tr.Inherit:
		if st.Prior != nil && st.Prior.SQL != "" {
			if start, end := ExtractTimeRangeFromSQL(st.Prior.SQL); start != "" {
				return fmt.Sprintf("%s ~ %s (inherited from the previous query)", start, end)
			}
		}
		return "inherited from the previous query"
	default:
		return fmt.Sprintf("%s ~ %s (%s)", tr.Start, tr.End, tr.Timezone)
	}
}

func (e *Engine) generateSQLUserPrompt(st *agent.TurnState, selected []string, tableContext, feedback string) string {
	previousSQL := "none"
	if st.Prior != nil && st.Prior.SQL != "" {
		previousSQL = st.Prior.SQL
	}
	return fmt.Sprintf(generateSQLUser,
		st.Parsed.Intent,
		e.timeRangeDescription(st),
		st.Parsed.Metric,
		st.Parsed.Condition,
		st.Constraints,
		strings.Join(selected, ", "),
		tableContext,
		previousSQL,
		strings.Join(st.FailedQueries, "\n"),
		feedback,
	)
}

// stepGuardSQL validates and normalizes the generated SQL. A rejection is a
// retry-causing event: it charges the SQL retry counter and the global loop
// counter, and routes back to generation.
func (e *Engine) stepGuardSQL(st *agent.TurnState) (*agent.StepPatch, error) {
	normalized, err := GuardSQL(st.GeneratedSQL)
	if err != nil {
		e.logger.Warn("guard_sql blocked statement", "error", err)
		return &agent.StepPatch{
			SQLGuardError:    agent.String(err.Error()),
			Verdict:          agent.VerdictOf(agent.VerdictSQLBad),
			ValidationReason: agent.String(err.Error()),
			SQLRetryCount:    agent.Int(st.SQLRetryCount + 1),
			TotalLoops:       agent.Int(st.TotalLoops + 1),
			FailedQueries:    agent.Strings(agent.AppendFailedQuery(st.FailedQueries, st.GeneratedSQL)),
		}, nil
	}

	return &agent.StepPatch{
		GeneratedSQL:  agent.String(normalized),
		SQLGuardError: agent.String(""),
	}, nil
}

// stepExecuteSQL runs the guarded statement through the execution port.
// Database-reported failures land in SQLError for classification; anything
// else is a transport failure and aborts the turn.
func (e *Engine) stepExecuteSQL(ctx context.Context, st *agent.TurnState) (*agent.StepPatch, error) {
	e.logger.Info("execute_sql running query", "sql", truncate(st.GeneratedSQL, 120))

	rows, err := e.db.Execute(ctx, st.GeneratedSQL)
	if err != nil {
		var execErr *svc.ExecError
		if errors.As(err, &execErr) {
			return &agent.StepPatch{
				SQLResult: agent.Rows(nil),
				SQLError:  agent.String(execErr.Message),
			}, nil
		}
		return nil, fmt.Errorf("sql execution: %w", err)
	}

	return &agent.StepPatch{
		SQLResult: agent.Rows(rows),
		SQLError:  agent.String(""),
	}, nil
}

// stepNormalizeResult classifies an execution error into a verdict and
// records the failed query. Success resets the verdict to OK for validation.
func (e *Engine) stepNormalizeResult(st *agent.TurnState) (*agent.StepPatch, error) {
	if st.SQLError == "" {
		return &agent.StepPatch{
			Verdict:          agent.VerdictOf(agent.VerdictOK),
			ValidationReason: agent.String(""),
		}, nil
	}

	verdict, reason := ClassifySQLError(st.SQLError)
	e.logger.Warn("execute_sql failed",
		"verdict", verdict,
		"error", st.SQLError,
	)

	return &agent.StepPatch{
		Verdict:          agent.VerdictOf(verdict),
		ValidationReason: agent.String(fmt.Sprintf("%s: %s", reason, st.SQLError)),
		SQLRetryCount:    agent.Int(st.SQLRetryCount + 1),
		TotalLoops:       agent.Int(st.TotalLoops + 1),
		FailedQueries:    agent.Strings(agent.AppendFailedQuery(st.FailedQueries, st.GeneratedSQL)),
	}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
