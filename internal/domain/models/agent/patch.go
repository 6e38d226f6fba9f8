package agent

// StepPatch is the partial update a workflow step returns. Nil fields leave
// the state untouched; non-nil fields overwrite (last-writer-wins). Counters
// are absolute values computed by the step, never deltas, so applying a patch
// twice is harmless.
type StepPatch struct {
	ClassifiedIntent *Intent

	Parsed       *ParsedRequest
	RequestValid *bool
	RequestError *string

	NeedsClarification    *bool
	ClarificationQuestion *string

	TableCandidates *[]TableCandidate
	CandidateOffset *int
	SelectedTables  *[]string
	TableContext    *string
	ExpandAttempted *bool
	ExpandFailed    *bool
	ExpandReason    *string

	GeneratedSQL  *string
	SQLGuardError *string
	SQLResult     *[]Row
	SQLError      *string

	Verdict          *Verdict
	ValidationReason *string
	CorrectionHint   *string

	SQLRetryCount        *int
	TableExpandCount     *int
	ValidationRetryCount *int
	TotalLoops           *int

	FailedQueries *[]string

	Report           *string
	SuggestedActions *[]string
	Status           *ResultStatus
}

// Apply merges the patch into the state. No step may decrement a counter;
// counter fields below a current value are ignored.
func (p *StepPatch) Apply(st *TurnState) {
	if p == nil {
		return
	}
	if p.ClassifiedIntent != nil {
		st.ClassifiedIntent = *p.ClassifiedIntent
	}
	if p.Parsed != nil {
		st.Parsed = p.Parsed
	}
	if p.RequestValid != nil {
		st.RequestValid = *p.RequestValid
	}
	if p.RequestError != nil {
		st.RequestError = *p.RequestError
	}
	if p.NeedsClarification != nil {
		st.NeedsClarification = *p.NeedsClarification
	}
	if p.ClarificationQuestion != nil {
		st.ClarificationQuestion = *p.ClarificationQuestion
	}
	if p.TableCandidates != nil {
		st.TableCandidates = *p.TableCandidates
	}
	if p.CandidateOffset != nil && *p.CandidateOffset > st.CandidateOffset {
		st.CandidateOffset = *p.CandidateOffset
	}
	if p.SelectedTables != nil {
		st.SelectedTables = *p.SelectedTables
	}
	if p.TableContext != nil {
		st.TableContext = *p.TableContext
	}
	if p.ExpandAttempted != nil {
		st.ExpandAttempted = *p.ExpandAttempted
	}
	if p.ExpandFailed != nil {
		st.ExpandFailed = *p.ExpandFailed
	}
	if p.ExpandReason != nil {
		st.ExpandReason = *p.ExpandReason
	}
	if p.GeneratedSQL != nil {
		st.GeneratedSQL = *p.GeneratedSQL
	}
	if p.SQLGuardError != nil {
		st.SQLGuardError = *p.SQLGuardError
	}
	if p.SQLResult != nil {
		st.SQLResult = *p.SQLResult
	}
	if p.SQLError != nil {
		st.SQLError = *p.SQLError
	}
	if p.Verdict != nil {
		st.Verdict = *p.Verdict
	}
	if p.ValidationReason != nil {
		st.ValidationReason = *p.ValidationReason
	}
	if p.CorrectionHint != nil {
		st.CorrectionHint = *p.CorrectionHint
	}
	if p.SQLRetryCount != nil && *p.SQLRetryCount > st.SQLRetryCount {
		st.SQLRetryCount = *p.SQLRetryCount
	}
	if p.TableExpandCount != nil && *p.TableExpandCount > st.TableExpandCount {
		st.TableExpandCount = *p.TableExpandCount
	}
	if p.ValidationRetryCount != nil && *p.ValidationRetryCount > st.ValidationRetryCount {
		st.ValidationRetryCount = *p.ValidationRetryCount
	}
	if p.TotalLoops != nil && *p.TotalLoops > st.TotalLoops {
		st.TotalLoops = *p.TotalLoops
	}
	if p.FailedQueries != nil {
		st.FailedQueries = *p.FailedQueries
	}
	if p.Report != nil {
		st.Report = *p.Report
	}
	if p.SuggestedActions != nil {
		st.SuggestedActions = *p.SuggestedActions
	}
	if p.Status != nil {
		st.Status = *p.Status
	}
}

// Helpers for building patches without intermediate variables.

func String(s string) *string                  { return &s }
func Bool(b bool) *bool                        { return &b }
func Int(i int) *int                           { return &i }
func IntentOf(i Intent) *Intent                { return &i }
func VerdictOf(v Verdict) *Verdict             { return &v }
func StatusOf(s ResultStatus) *ResultStatus    { return &s }
func Tables(t []TableCandidate) *[]TableCandidate { return &t }
func Strings(s []string) *[]string             { return &s }
func Rows(r []Row) *[]Row                      { return &r }
