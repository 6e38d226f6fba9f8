package agent

import (
	"reflect"
	"testing"
)

func TestStepPatchApply(t *testing.T) {
	t.Run("nil fields leave state untouched", func(t *testing.T) {
		st := NewTurnState("q", "", nil)
		st.GeneratedSQL = "SELECT 1"
		st.Verdict = VerdictSQLBad

		(&StepPatch{Report: String("done")}).Apply(st)

		if st.GeneratedSQL != "SELECT 1" || st.Verdict != VerdictSQLBad {
			t.Errorf("unrelated fields changed: %+v", st)
		}
		if st.Report != "done" {
			t.Errorf("report = %q", st.Report)
		}
	})

	t.Run("counters never decrease", func(t *testing.T) {
		st := NewTurnState("q", "", nil)
		st.SQLRetryCount = 2
		st.TotalLoops = 5
		st.CandidateOffset = 10

		(&StepPatch{
			SQLRetryCount:   Int(1),
			TotalLoops:      Int(3),
			CandidateOffset: Int(4),
		}).Apply(st)

		if st.SQLRetryCount != 2 || st.TotalLoops != 5 || st.CandidateOffset != 10 {
			t.Errorf("counters decreased: retry=%d loops=%d offset=%d",
				st.SQLRetryCount, st.TotalLoops, st.CandidateOffset)
		}

		(&StepPatch{SQLRetryCount: Int(3)}).Apply(st)
		if st.SQLRetryCount != 3 {
			t.Errorf("higher counter value not applied: %d", st.SQLRetryCount)
		}
	})

	t.Run("applying twice is harmless", func(t *testing.T) {
		st := NewTurnState("q", "", nil)
		p := &StepPatch{
			GeneratedSQL: String("SELECT 1"),
			TotalLoops:   Int(1),
			Verdict:      VerdictOf(VerdictOK),
		}
		p.Apply(st)
		p.Apply(st)
		if st.TotalLoops != 1 {
			t.Errorf("total loops = %d, want 1", st.TotalLoops)
		}
	})

	t.Run("empty string pointer clears a field", func(t *testing.T) {
		st := NewTurnState("q", "", nil)
		st.SQLError = "boom"
		(&StepPatch{SQLError: String("")}).Apply(st)
		if st.SQLError != "" {
			t.Errorf("sql error = %q, want cleared", st.SQLError)
		}
	})
}

func TestNewTurnState(t *testing.T) {
	st := NewTurnState("question", "constraints", &PriorTurn{SQL: "SELECT 1"})
	if !st.RequestValid {
		t.Error("fresh state must start valid")
	}
	if st.Verdict != VerdictOK {
		t.Errorf("verdict = %s, want OK", st.Verdict)
	}
	if st.Status != StatusUnknown {
		t.Errorf("status = %s, want unknown", st.Status)
	}
	if st.TotalLoops != 0 || st.SQLRetryCount != 0 {
		t.Error("counters must start at zero")
	}
}

func TestAppendFailedQuery(t *testing.T) {
	var failed []string
	for _, q := range []string{"q1", "q2", "q3", "q4"} {
		failed = AppendFailedQuery(failed, q)
	}
	if want := []string{"q2", "q3", "q4"}; !reflect.DeepEqual(failed, want) {
		t.Errorf("failed = %v, want %v", failed, want)
	}

	if got := AppendFailedQuery(failed, ""); !reflect.DeepEqual(got, failed) {
		t.Errorf("empty sql must be ignored, got %v", got)
	}
}

func TestVerdictClassification(t *testing.T) {
	for _, v := range []Verdict{VerdictSQLBad, VerdictColumnMissing, VerdictTypeError, VerdictRetrySQL} {
		if !v.SQLRepairable() {
			t.Errorf("%s should be SQL-repairable", v)
		}
		if v.Terminal() {
			t.Errorf("%s should not be terminal", v)
		}
	}
	for _, v := range []Verdict{VerdictDataMissing, VerdictAmbiguous, VerdictPermission, VerdictTimeout, VerdictDBConnError} {
		if !v.Terminal() {
			t.Errorf("%s should be terminal", v)
		}
	}
	if VerdictTableMissing.SQLRepairable() || VerdictTableMissing.Terminal() {
		t.Error("TABLE_MISSING routes through expansion, not repair or termination")
	}
	if got := ParseVerdict("NOT_A_VERDICT"); got != VerdictSQLBad {
		t.Errorf("unknown verdict parsed to %s, want SQL_BAD", got)
	}
}
