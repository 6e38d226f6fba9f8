package agent

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"askdb/internal/domain/models/agent"
	svc "askdb/internal/domain/services/agent"
)

type fakeLLM struct {
	calls map[string]int
	fn    func(system string, call int, req *svc.GenerateRequest) (string, error)
}

func (f *fakeLLM) Generate(_ context.Context, req *svc.GenerateRequest) (string, error) {
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[req.System]++
	return f.fn(req.System, f.calls[req.System], req)
}

type fakeSearch struct {
	results []agent.TableCandidate
	err     error
}

func (f *fakeSearch) Search(context.Context, string, int) ([]agent.TableCandidate, error) {
	return f.results, f.err
}

type fakeDB struct {
	calls int
	fn    func(call int, sql string) ([]agent.Row, error)
}

func (f *fakeDB) Execute(_ context.Context, sql string) ([]agent.Row, error) {
	f.calls++
	return f.fn(f.calls, sql)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// happyResponse supplies the default scripted answer per prompt; tests
// override individual prompts on top of it.
func happyResponse(system string) (string, bool) {
	switch system {
	case classifyIntentSystem:
		return `{"intent":"sql","reason":"asks about data"}`, true
	case parseRequestSystem:
		return `{"intent":"cpu_usage","time_range":{"start":"2025-01-10T00:00:00Z","end":"2025-01-12T00:00:00Z","timezone":"UTC"},"metric":"cpu"}`, true
	case clarificationCheckSystem:
		return `{"needs_clarification":false,"question":""}`, true
	case rerankTableSystem:
		return `[{"index":1,"score":0.9},{"index":2,"score":0.85}]`, true
	case generateSQLSystem:
		return `{"sql":"SELECT host, ts FROM cpu_metrics","needs_more_tables":false}`, true
	case validateResultSystem:
		return `{"verdict":"OK","feedback_to_sql":"answers the question","correction_hint":"","unnecessary_tables":[]}`, true
	case generateReportSystem:
		return "CPU usage peaked at 93% on host a.\n{\"suggested_actions\": [\"Show a per-host breakdown\"]}", true
	case generalChatSystem:
		return "Hello! Ask me about your monitoring data.", true
	}
	return "", false
}

func happyLLM(overrides func(system string, call int, req *svc.GenerateRequest) (string, bool)) *fakeLLM {
	return &fakeLLM{fn: func(system string, call int, req *svc.GenerateRequest) (string, error) {
		if overrides != nil {
			if resp, ok := overrides(system, call, req); ok {
				return resp, nil
			}
		}
		if resp, ok := happyResponse(system); ok {
			return resp, nil
		}
		return "", nil
	}}
}

func testCandidates() []agent.TableCandidate {
	return candidateFixture("cpu_metrics", "hosts", "disk_metrics", "net_metrics")
}

func newTestEngine(llm *fakeLLM, search *fakeSearch, db *fakeDB) *Engine {
	return NewEngine(llm, search, db, DefaultLimits(), testLogger())
}

func okRows() []agent.Row {
	return []agent.Row{{"host": "a", "cpu": 93.0}}
}

func TestRunHappyPath(t *testing.T) {
	llm := happyLLM(nil)
	db := &fakeDB{fn: func(int, string) ([]agent.Row, error) { return okRows(), nil }}
	e := newTestEngine(llm, &fakeSearch{results: testCandidates()}, db)

	var visited []Step
	st, err := e.Run(context.Background(), "how high did cpu get last week?", "", nil,
		func(step Step, _ *agent.TurnState) { visited = append(visited, step) })
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if st.Status != agent.StatusSuccess {
		t.Errorf("status = %s, want success", st.Status)
	}
	if !strings.HasSuffix(st.GeneratedSQL, "LIMIT 100") {
		t.Errorf("generated SQL missing appended limit: %q", st.GeneratedSQL)
	}
	if st.Report != "CPU usage peaked at 93% on host a." {
		t.Errorf("report = %q", st.Report)
	}
	if len(st.SuggestedActions) != 1 || st.SuggestedActions[0] != "Show a per-host breakdown" {
		t.Errorf("suggested actions = %v", st.SuggestedActions)
	}
	if len(st.SelectedTables) != 2 || st.SelectedTables[0] != "cpu_metrics" {
		t.Errorf("selected tables = %v", st.SelectedTables)
	}
	if st.TotalLoops != 0 {
		t.Errorf("total loops = %d, want 0", st.TotalLoops)
	}
	if visited[0] != StepClassifyIntent {
		t.Errorf("first observed step = %s", visited[0])
	}
	if visited[len(visited)-1] != StepGenerateReport {
		t.Errorf("last observed step = %s", visited[len(visited)-1])
	}
}

func TestRunGeneralChat(t *testing.T) {
	llm := happyLLM(func(system string, _ int, _ *svc.GenerateRequest) (string, bool) {
		if system == classifyIntentSystem {
			return `{"intent":"general","reason":"greeting"}`, true
		}
		return "", false
	})
	e := newTestEngine(llm, &fakeSearch{}, &fakeDB{fn: func(int, string) ([]agent.Row, error) {
		t.Fatal("general chat must not touch the database")
		return nil, nil
	}})

	st, err := e.Run(context.Background(), "hi there", "", nil, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if st.Status != agent.StatusGeneral {
		t.Errorf("status = %s, want general", st.Status)
	}
	if st.Report == "" {
		t.Error("expected a chat answer in the report")
	}
	if st.GeneratedSQL != "" {
		t.Errorf("unexpected SQL %q", st.GeneratedSQL)
	}
}

func TestRunClarificationIsTerminal(t *testing.T) {
	llm := happyLLM(func(system string, _ int, _ *svc.GenerateRequest) (string, bool) {
		if system == clarificationCheckSystem {
			return `{"needs_clarification":true,"question":"Which host do you mean?"}`, true
		}
		return "", false
	})
	e := newTestEngine(llm, &fakeSearch{results: testCandidates()}, &fakeDB{fn: func(int, string) ([]agent.Row, error) {
		t.Fatal("clarification turn must not execute SQL")
		return nil, nil
	}})

	st, err := e.Run(context.Background(), "show me the spike", "", nil, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !st.NeedsClarification {
		t.Fatal("expected clarification")
	}
	if st.ClarificationQuestion != "Which host do you mean?" {
		t.Errorf("question = %q", st.ClarificationQuestion)
	}
	if st.Report != "" {
		t.Errorf("clarification turn produced a report: %q", st.Report)
	}
}

func TestRunGuardRetriesThenFails(t *testing.T) {
	llm := happyLLM(func(system string, _ int, _ *svc.GenerateRequest) (string, bool) {
		if system == generateSQLSystem {
			return `{"sql":"DROP TABLE cpu_metrics","needs_more_tables":false}`, true
		}
		return "", false
	})
	e := newTestEngine(llm, &fakeSearch{results: testCandidates()}, &fakeDB{fn: func(int, string) ([]agent.Row, error) {
		t.Fatal("blocked SQL must never reach the database")
		return nil, nil
	}})

	st, err := e.Run(context.Background(), "drop everything", "", nil, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if st.Status != agent.StatusFail {
		t.Errorf("status = %s, want fail", st.Status)
	}
	// Initial attempt plus MaxSQLRetry retries.
	if got := llm.calls[generateSQLSystem]; got != e.limits.MaxSQLRetry+1 {
		t.Errorf("generation attempts = %d, want %d", got, e.limits.MaxSQLRetry+1)
	}
	if st.SQLRetryCount != e.limits.MaxSQLRetry+1 {
		t.Errorf("sql retry count = %d", st.SQLRetryCount)
	}
	if len(st.FailedQueries) == 0 {
		t.Error("expected failed queries to be recorded")
	}
	if st.Report == "" {
		t.Error("failed turn still needs a report")
	}
}

func TestRunTableMissingTriggersExpansion(t *testing.T) {
	llm := happyLLM(nil)
	db := &fakeDB{fn: func(call int, _ string) ([]agent.Row, error) {
		if call == 1 {
			return nil, &svc.ExecError{Message: `relation "disk_metrics" does not exist`}
		}
		return okRows(), nil
	}}
	e := newTestEngine(llm, &fakeSearch{results: testCandidates()}, db)

	st, err := e.Run(context.Background(), "compare cpu and disk", "", nil, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if st.Status != agent.StatusSuccess {
		t.Errorf("status = %s, want success after expansion", st.Status)
	}
	if st.TableExpandCount != 1 {
		t.Errorf("expand count = %d, want 1", st.TableExpandCount)
	}
	if st.SQLRetryCount != 1 {
		t.Errorf("sql retry count = %d, want 1", st.SQLRetryCount)
	}
	if len(st.FailedQueries) != 1 {
		t.Errorf("failed queries = %v, want one entry", st.FailedQueries)
	}
	// Expansion pulled candidates past the initial selection.
	if len(st.SelectedTables) <= 2 {
		t.Errorf("selected tables = %v, want expanded beyond the initial 2", st.SelectedTables)
	}
	if db.calls != 2 {
		t.Errorf("db calls = %d, want 2", db.calls)
	}
}

func TestRunValidationRetry(t *testing.T) {
	llm := happyLLM(func(system string, call int, _ *svc.GenerateRequest) (string, bool) {
		if system == validateResultSystem && call == 1 {
			return `{"verdict":"RETRY_SQL","feedback_to_sql":"aggregate per host","correction_hint":"use GROUP BY host","unnecessary_tables":[]}`, true
		}
		return "", false
	})
	db := &fakeDB{fn: func(int, string) ([]agent.Row, error) { return okRows(), nil }}
	e := newTestEngine(llm, &fakeSearch{results: testCandidates()}, db)

	st, err := e.Run(context.Background(), "cpu per host", "", nil, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if st.Status != agent.StatusSuccess {
		t.Errorf("status = %s, want success on second validation", st.Status)
	}
	if st.ValidationRetryCount != 1 {
		t.Errorf("validation retry count = %d, want 1", st.ValidationRetryCount)
	}
	if db.calls != 2 {
		t.Errorf("db calls = %d, want 2", db.calls)
	}
	// The retry feedback must reach the second generation prompt.
	if llm.calls[generateSQLSystem] != 2 {
		t.Errorf("generation attempts = %d, want 2", llm.calls[generateSQLSystem])
	}
}

func TestRunNoTablesFound(t *testing.T) {
	llm := happyLLM(nil)
	e := newTestEngine(llm, &fakeSearch{results: nil}, &fakeDB{fn: func(int, string) ([]agent.Row, error) {
		t.Fatal("no-candidate turn must not execute SQL")
		return nil, nil
	}})

	st, err := e.Run(context.Background(), "anything about llamas", "", nil, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if st.Status != agent.StatusError {
		t.Errorf("status = %s, want error", st.Status)
	}
	if st.Report == "" {
		t.Error("expected an explanatory report")
	}
}

func TestRunInvalidRequestReports(t *testing.T) {
	llm := happyLLM(func(system string, _ int, _ *svc.GenerateRequest) (string, bool) {
		if system == parseRequestSystem {
			return `{"intent":"cpu_usage","time_range":{"start":"2099-01-01T00:00:00Z","end":"2099-01-02T00:00:00Z","timezone":"UTC"}}`, true
		}
		return "", false
	})
	e := newTestEngine(llm, &fakeSearch{results: testCandidates()}, &fakeDB{fn: func(int, string) ([]agent.Row, error) {
		t.Fatal("invalid request must not execute SQL")
		return nil, nil
	}})

	st, err := e.Run(context.Background(), "cpu in 2099", "", nil, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if st.Status != agent.StatusError {
		t.Errorf("status = %s, want error", st.Status)
	}
	if !strings.Contains(st.RequestError, "future") {
		t.Errorf("request error = %q", st.RequestError)
	}
	if st.Report == "" {
		t.Error("expected an explanatory report")
	}
}

func TestRunFollowupReusesPriorTables(t *testing.T) {
	llm := happyLLM(func(system string, _ int, _ *svc.GenerateRequest) (string, bool) {
		if system == parseRequestSystem {
			return `{"intent":"cpu_usage","metric":"cpu","is_followup":true}`, true
		}
		return "", false
	})
	db := &fakeDB{fn: func(int, string) ([]agent.Row, error) { return okRows(), nil }}
	search := &fakeSearch{err: context.DeadlineExceeded}
	e := newTestEngine(llm, search, db)

	prior := &agent.PriorTurn{
		SQL: "SELECT host, cpu FROM cpu_metrics WHERE ts BETWEEN '2025-01-01T00:00:00Z' AND '2025-01-02T00:00:00Z'",
		Parsed: &agent.ParsedRequest{
			Intent:    "cpu_usage",
			TimeRange: &agent.TimeRange{Start: "2025-01-01T00:00:00Z", End: "2025-01-02T00:00:00Z", Timezone: "UTC"},
		},
	}
	st, err := e.Run(context.Background(), "and per host?", "", prior, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if st.Status != agent.StatusSuccess {
		t.Errorf("status = %s, want success", st.Status)
	}
	if len(st.SelectedTables) != 1 || st.SelectedTables[0] != "cpu_metrics" {
		t.Errorf("selected tables = %v, want reuse of cpu_metrics", st.SelectedTables)
	}
	// Reuse path must not consult the (failing) search port.
	if llm.calls[rerankTableSystem] != 0 {
		t.Error("follow-up reuse should skip reranking")
	}
}

func TestRunFirstTurnDoesNotInherit(t *testing.T) {
	llm := happyLLM(func(system string, _ int, _ *svc.GenerateRequest) (string, bool) {
		if system == parseRequestSystem {
			return `{"intent":"cpu_usage"}`, true
		}
		return "", false
	})
	db := &fakeDB{fn: func(int, string) ([]agent.Row, error) { return okRows(), nil }}
	e := newTestEngine(llm, &fakeSearch{results: testCandidates()}, db)

	st, err := e.Run(context.Background(), "how is cpu doing?", "", nil, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if st.Parsed.TimeRange == nil || !st.Parsed.TimeRange.AllTime {
		t.Errorf("first turn without a range should default to all time, got %+v", st.Parsed.TimeRange)
	}
}

func TestRouteVerdict(t *testing.T) {
	e := newTestEngine(nil, nil, nil)

	tests := []struct {
		name     string
		state    agent.TurnState
		wantStep Step
		// wantVerdict checks degradation patches; empty means verdict
		// unchanged.
		wantVerdict agent.Verdict
	}{
		{
			name:     "ok goes to report",
			state:    agent.TurnState{Verdict: agent.VerdictOK},
			wantStep: StepGenerateReport,
		},
		{
			name:     "total loop ceiling overrides everything",
			state:    agent.TurnState{Verdict: agent.VerdictSQLBad, TotalLoops: 10},
			wantStep: StepGenerateReport,
		},
		{
			name:     "table missing expands while budget remains",
			state:    agent.TurnState{Verdict: agent.VerdictTableMissing, TableExpandCount: 1},
			wantStep: StepExpandTables,
		},
		{
			name:        "table missing degrades when budget exhausted",
			state:       agent.TurnState{Verdict: agent.VerdictTableMissing, TableExpandCount: 2},
			wantStep:    StepGenerateReport,
			wantVerdict: agent.VerdictDataMissing,
		},
		{
			name:     "retry sql within budget regenerates",
			state:    agent.TurnState{Verdict: agent.VerdictRetrySQL, ValidationRetryCount: 1},
			wantStep: StepGenerateSQL,
		},
		{
			name:     "retry sql past budget reports",
			state:    agent.TurnState{Verdict: agent.VerdictRetrySQL, ValidationRetryCount: 2},
			wantStep: StepGenerateReport,
		},
		{
			name:     "sql bad within budget regenerates",
			state:    agent.TurnState{Verdict: agent.VerdictSQLBad, SQLRetryCount: 1},
			wantStep: StepGenerateSQL,
		},
		{
			name:     "sql bad at budget reports",
			state:    agent.TurnState{Verdict: agent.VerdictSQLBad, SQLRetryCount: 2},
			wantStep: StepGenerateReport,
		},
		{
			name:     "column missing is sql-repairable",
			state:    agent.TurnState{Verdict: agent.VerdictColumnMissing},
			wantStep: StepGenerateSQL,
		},
		{
			name:     "data missing is terminal",
			state:    agent.TurnState{Verdict: agent.VerdictDataMissing},
			wantStep: StepGenerateReport,
		},
		{
			name:     "permission is terminal",
			state:    agent.TurnState{Verdict: agent.VerdictPermission},
			wantStep: StepGenerateReport,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := tt.state
			step, patch := e.routeVerdict(&st)
			if step != tt.wantStep {
				t.Fatalf("routeVerdict step = %s, want %s", step, tt.wantStep)
			}
			patch.Apply(&st)
			if tt.wantVerdict != "" && st.Verdict != tt.wantVerdict {
				t.Errorf("verdict after patch = %s, want %s", st.Verdict, tt.wantVerdict)
			}
		})
	}
}

func TestSplitSuggestedActions(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantBody string
		wantLen  int
	}{
		{
			name:     "trailer present",
			input:    "All good.\n{\"suggested_actions\": [\"a\", \"b\"]}",
			wantBody: "All good.",
			wantLen:  2,
		},
		{
			name:     "no trailer",
			input:    "All good.",
			wantBody: "All good.",
			wantLen:  0,
		},
		{
			name:     "malformed trailer kept as body",
			input:    "All good.\n{\"suggested_actions\": [",
			wantBody: "All good.\n{\"suggested_actions\": [",
			wantLen:  0,
		},
		{
			name:     "unrelated json last line kept",
			input:    "Counts:\n{\"total\": 3}",
			wantBody: "Counts:\n{\"total\": 3}",
			wantLen:  0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, actions := splitSuggestedActions(tt.input)
			if body != tt.wantBody {
				t.Errorf("body = %q, want %q", body, tt.wantBody)
			}
			if len(actions) != tt.wantLen {
				t.Errorf("actions = %v, want %d entries", actions, tt.wantLen)
			}
		})
	}
}
