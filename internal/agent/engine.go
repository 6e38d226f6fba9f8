package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"askdb/internal/domain/models/agent"
	svc "askdb/internal/domain/services/agent"
)

// Step names one node of the workflow graph.
type Step string

const (
	StepClassifyIntent     Step = "classify_intent"
	StepGeneralChat        Step = "general_chat"
	StepParseRequest       Step = "parse_request"
	StepValidateRequest    Step = "validate_request"
	StepCheckClarification Step = "check_clarification"
	StepRetrieveTables     Step = "retrieve_tables"
	StepSelectTables       Step = "select_tables"
	StepGenerateSQL        Step = "generate_sql"
	StepGuardSQL           Step = "guard_sql"
	StepExecuteSQL         Step = "execute_sql"
	StepNormalizeResult    Step = "normalize_result"
	StepValidateLLM        Step = "validate_llm"
	StepExpandTables       Step = "expand_tables"
	StepGenerateReport     Step = "generate_report"
	StepEnd                Step = "end"
)

// Observer is notified before each step runs. Used to stream progress
// notices to the client.
type Observer func(step Step, st *agent.TurnState)

// Engine runs one turn through the workflow graph: an explicit, cyclic state
// machine over a single mutable TurnState. Steps are executed strictly
// sequentially; every external call is awaited before the next transition is
// computed.
type Engine struct {
	llm    svc.TextGenerator
	search svc.TableSearcher
	db     svc.SQLExecutor
	limits Limits
	logger *slog.Logger
	now    func() time.Time
}

// NewEngine creates a workflow engine.
func NewEngine(llm svc.TextGenerator, search svc.TableSearcher, db svc.SQLExecutor, limits Limits, logger *slog.Logger) *Engine {
	e := &Engine{
		llm:    llm,
		search: search,
		db:     db,
		limits: limits,
		logger: logger,
	}
	loc, err := time.LoadLocation(limits.Timezone)
	if err != nil {
		loc = time.UTC
	}
	e.now = func() time.Time { return time.Now().In(loc) }
	return e
}

// Run processes one turn from intake to a terminal state. The returned state
// is terminal: it carries a report, a clarification question, or (on a
// returned error) whatever partial state existed when a collaborator became
// unreachable. Partial state must not be persisted as final.
func (e *Engine) Run(ctx context.Context, question, constraints string, prior *agent.PriorTurn, obs Observer) (*agent.TurnState, error) {
	st := agent.NewTurnState(question, constraints, prior)

	// Hard ceiling on transitions. MaxTotalLoops bounds retry events, and
	// every retry costs at most a handful of steps, so this can only trip on
	// a routing bug.
	maxSteps := (e.limits.MaxTotalLoops + 2) * 6

	step := StepClassifyIntent
	for i := 0; step != StepEnd; i++ {
		if i >= maxSteps {
			return st, fmt.Errorf("workflow exceeded %d steps without terminating", maxSteps)
		}
		if err := ctx.Err(); err != nil {
			return st, err
		}

		if obs != nil {
			obs(step, st)
		}
		e.logger.Debug("workflow step",
			"step", step,
			"total_loops", st.TotalLoops,
			"sql_retry", st.SQLRetryCount,
			"expand", st.TableExpandCount,
		)

		patch, err := e.runStep(ctx, step, st)
		if err != nil {
			return st, fmt.Errorf("step %s: %w", step, err)
		}
		patch.Apply(st)

		next, routePatch := e.nextStep(step, st)
		routePatch.Apply(st)
		step = next
	}

	return st, nil
}

func (e *Engine) runStep(ctx context.Context, step Step, st *agent.TurnState) (*agent.StepPatch, error) {
	switch step {
	case StepClassifyIntent:
		return e.stepClassifyIntent(ctx, st)
	case StepGeneralChat:
		return e.stepGeneralChat(ctx, st)
	case StepParseRequest:
		return e.stepParseRequest(ctx, st)
	case StepValidateRequest:
		return e.stepValidateRequest(st)
	case StepCheckClarification:
		return e.stepCheckClarification(ctx, st)
	case StepRetrieveTables:
		return e.stepRetrieveTables(ctx, st)
	case StepSelectTables:
		return e.stepSelectTables(ctx, st)
	case StepGenerateSQL:
		return e.stepGenerateSQL(ctx, st)
	case StepGuardSQL:
		return e.stepGuardSQL(st)
	case StepExecuteSQL:
		return e.stepExecuteSQL(ctx, st)
	case StepNormalizeResult:
		return e.stepNormalizeResult(st)
	case StepValidateLLM:
		return e.stepValidateLLM(ctx, st)
	case StepExpandTables:
		return e.stepExpandTables(st)
	case StepGenerateReport:
		return e.stepGenerateReport(ctx, st)
	default:
		return nil, fmt.Errorf("unknown step %q", step)
	}
}

// nextStep is the transition function: a pure decision over the state record,
// except for the verdict degradation patch returned when the table-expansion
// budget is exhausted.
func (e *Engine) nextStep(step Step, st *agent.TurnState) (Step, *agent.StepPatch) {
	none := &agent.StepPatch{}

	switch step {
	case StepClassifyIntent:
		if st.ClassifiedIntent == agent.IntentGeneral {
			return StepGeneralChat, none
		}
		return StepParseRequest, none

	case StepGeneralChat:
		return StepEnd, none

	case StepParseRequest:
		return StepValidateRequest, none

	case StepValidateRequest:
		if st.RequestValid {
			return StepCheckClarification, none
		}
		return StepGenerateReport, none

	case StepCheckClarification:
		if st.NeedsClarification {
			// Terminal: the turn ends with a question, not a report.
			return StepEnd, none
		}
		return StepRetrieveTables, none

	case StepRetrieveTables:
		return StepSelectTables, none

	case StepSelectTables:
		if st.TableContext != "" {
			return StepGenerateSQL, none
		}
		return StepGenerateReport, none

	case StepGenerateSQL:
		return StepGuardSQL, none

	case StepGuardSQL:
		if st.SQLGuardError == "" {
			return StepExecuteSQL, none
		}
		if st.SQLRetryCount <= e.limits.MaxSQLRetry && st.TotalLoops < e.limits.MaxTotalLoops {
			return StepGenerateSQL, none
		}
		return StepGenerateReport, none

	case StepExecuteSQL:
		return StepNormalizeResult, none

	case StepNormalizeResult:
		// Execution errors are still validated/classified, never
		// short-circuited.
		return StepValidateLLM, none

	case StepValidateLLM:
		return e.routeVerdict(st)

	case StepExpandTables:
		return StepGenerateSQL, none

	case StepGenerateReport:
		return StepEnd, none

	default:
		return StepEnd, none
	}
}

// routeVerdict chooses the recovery path after validation. The per-kind
// counters pick the path; TotalLoops alone decides whether any retry is still
// allowed.
func (e *Engine) routeVerdict(st *agent.TurnState) (Step, *agent.StepPatch) {
	none := &agent.StepPatch{}

	if st.Verdict == agent.VerdictOK {
		return StepGenerateReport, none
	}

	if st.TotalLoops >= e.limits.MaxTotalLoops {
		return StepGenerateReport, none
	}

	switch {
	case st.Verdict == agent.VerdictRetrySQL:
		if st.ValidationRetryCount <= e.limits.MaxValidationRetry {
			return StepGenerateSQL, none
		}
		return StepGenerateReport, none

	case st.Verdict.SQLRepairable():
		if st.SQLRetryCount < e.limits.MaxSQLRetry {
			return StepGenerateSQL, none
		}
		return StepGenerateReport, none

	case st.Verdict == agent.VerdictTableMissing:
		if st.TableExpandCount < e.limits.MaxTableExpand {
			return StepExpandTables, none
		}
		// Expansion budget exhausted: the table genuinely is not reachable,
		// which the user experiences as missing data.
		return StepGenerateReport, &agent.StepPatch{
			Verdict:          agent.VerdictOf(agent.VerdictDataMissing),
			ValidationReason: agent.String(st.ValidationReason + " (table expansion budget exhausted)"),
		}

	default:
		// Terminal verdicts: DATA_MISSING, AMBIGUOUS, PERMISSION, TIMEOUT,
		// DB_CONN_ERROR.
		return StepGenerateReport, none
	}
}
