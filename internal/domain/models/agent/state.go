package agent

// Intent routes a turn either through the SQL workflow or the general chat
// branch.
type Intent string

const (
	IntentSQL     Intent = "sql"
	IntentGeneral Intent = "general"
)

// ResultStatus summarizes how a turn ended.
type ResultStatus string

const (
	StatusUnknown ResultStatus = "unknown"
	StatusSuccess ResultStatus = "success"
	StatusFail    ResultStatus = "fail"
	StatusError   ResultStatus = "error"
	StatusGeneral ResultStatus = "general"
)

// TimeRange is the resolved time window of a request. Exactly one of AllTime,
// Inherit, or an explicit Start/End pair is meaningful.
type TimeRange struct {
	AllTime  bool   `json:"all_time,omitempty"`
	Inherit  bool   `json:"inherit,omitempty"`
	Start    string `json:"start,omitempty"` // ISO-8601
	End      string `json:"end,omitempty"`   // ISO-8601
	Timezone string `json:"timezone,omitempty"`
}

// Explicit reports whether the range carries concrete start/end values.
func (t *TimeRange) Explicit() bool {
	return t != nil && !t.AllTime && !t.Inherit && (t.Start != "" || t.End != "")
}

// ParsedRequest is the structured form of the user's question, produced by
// the parse step and repaired by the validator.
type ParsedRequest struct {
	Intent     string     `json:"intent"`
	TimeRange  *TimeRange `json:"time_range,omitempty"`
	Metric     string     `json:"metric,omitempty"`
	Condition  string     `json:"condition,omitempty"`
	Output     string     `json:"output,omitempty"`
	IsFollowup bool       `json:"is_followup,omitempty"`
}

// ColumnInfo describes one column of a candidate table.
type ColumnInfo struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

// TableCandidate is one ranked result from the table search port.
type TableCandidate struct {
	TableName      string       `json:"table_name"`
	Description    string       `json:"description,omitempty"`
	Columns        []ColumnInfo `json:"columns,omitempty"`
	Score          float64      `json:"score"`
	JoinKeys       []string     `json:"join_keys,omitempty"`
	PrimaryTimeCol string       `json:"primary_time_col,omitempty"`
}

// Row is one result row from SQL execution.
type Row = map[string]any

// HistoryMessage is one prior conversation message, passed into the turn as
// read-only context for the general chat branch.
type HistoryMessage struct {
	Role    string // "user" or "assistant"
	Content string
}

// PriorTurn is an immutable snapshot of the previous turn in the session,
// loaded once before the engine starts. The engine never reads conversation
// state from anywhere else.
type PriorTurn struct {
	// SQL is the final SQL of the most recent assistant turn, empty if none.
	SQL string
	// Parsed is the previous turn's parsed request, used for time-range and
	// metric inheritance on follow-up questions.
	Parsed *ParsedRequest
	// History holds recent messages for the general chat branch.
	History []HistoryMessage
}

// TurnState is the single mutable record threaded through the workflow.
// It is created at turn start with all counters at zero and VerdictOK, and
// mutated only by applying step patches.
type TurnState struct {
	// Inputs, immutable for the turn.
	UserQuestion string
	Constraints  string
	Prior        *PriorTurn

	// Intent classification.
	ClassifiedIntent Intent

	// Parsed request and its validation outcome.
	Parsed       *ParsedRequest
	RequestValid bool
	RequestError string

	// Clarification outcome.
	NeedsClarification    bool
	ClarificationQuestion string

	// Table candidates are fetched once per turn and never re-fetched.
	// CandidateOffset is the expansion watermark into TableCandidates.
	TableCandidates []TableCandidate
	CandidateOffset int
	SelectedTables  []string
	TableContext    string
	ExpandAttempted bool
	ExpandFailed    bool
	ExpandReason    string

	// SQL pipeline.
	GeneratedSQL  string
	SQLGuardError string
	SQLResult     []Row
	SQLError      string

	// Validation outcome.
	Verdict          Verdict
	ValidationReason string
	CorrectionHint   string

	// Loop counters. Monotonically non-decreasing; TotalLoops is the global
	// circuit breaker.
	SQLRetryCount        int
	TableExpandCount     int
	ValidationRetryCount int
	TotalLoops           int

	// Most recent rejected SQL strings, FIFO-trimmed to MaxFailedQueries.
	FailedQueries []string

	// Terminal outputs.
	Report           string
	SuggestedActions []string
	Status           ResultStatus
}

// MaxFailedQueries bounds the failed-query feedback list.
const MaxFailedQueries = 3

// NewTurnState creates the state record for one turn.
func NewTurnState(question, constraints string, prior *PriorTurn) *TurnState {
	return &TurnState{
		UserQuestion: question,
		Constraints:  constraints,
		Prior:        prior,
		RequestValid: true,
		Verdict:      VerdictOK,
		Status:       StatusUnknown,
	}
}

// AppendFailedQuery returns the failed-query list with sql appended and the
// oldest entries dropped beyond MaxFailedQueries. Empty SQL is ignored.
func AppendFailedQuery(failed []string, sql string) []string {
	if sql == "" {
		return failed
	}
	failed = append(failed, sql)
	if len(failed) > MaxFailedQueries {
		failed = failed[len(failed)-MaxFailedQueries:]
	}
	return failed
}
