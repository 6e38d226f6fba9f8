package agent

// Verdict classifies the outcome of SQL execution or LLM result validation.
// It drives the retry routing in the workflow engine: some verdicts are
// repairable by regenerating SQL, one triggers table expansion, and the rest
// terminate the turn.
type Verdict string

const (
	VerdictOK            Verdict = "OK"
	VerdictSQLBad        Verdict = "SQL_BAD"
	VerdictRetrySQL      Verdict = "RETRY_SQL"
	VerdictTableMissing  Verdict = "TABLE_MISSING"
	VerdictDataMissing   Verdict = "DATA_MISSING"
	VerdictColumnMissing Verdict = "COLUMN_MISSING"
	VerdictPermission    Verdict = "PERMISSION"
	VerdictTypeError     Verdict = "TYPE_ERROR"
	VerdictTimeout       Verdict = "TIMEOUT"
	VerdictDBConnError   Verdict = "DB_CONN_ERROR"
	VerdictAmbiguous     Verdict = "AMBIGUOUS"
)

// ParseVerdict maps a raw string (typically from an LLM response) to a known
// verdict. Unknown strings map to VerdictSQLBad so a misbehaving validator can
// never invent an unroutable verdict.
func ParseVerdict(s string) Verdict {
	switch Verdict(s) {
	case VerdictOK, VerdictSQLBad, VerdictRetrySQL, VerdictTableMissing,
		VerdictDataMissing, VerdictColumnMissing, VerdictPermission,
		VerdictTypeError, VerdictTimeout, VerdictDBConnError, VerdictAmbiguous:
		return Verdict(s)
	default:
		return VerdictSQLBad
	}
}

// SQLRepairable reports whether the verdict can be recovered by regenerating
// the SQL with feedback.
func (v Verdict) SQLRepairable() bool {
	switch v {
	case VerdictSQLBad, VerdictColumnMissing, VerdictTypeError, VerdictRetrySQL:
		return true
	default:
		return false
	}
}

// Terminal reports whether the verdict cannot be recovered by any retry path.
func (v Verdict) Terminal() bool {
	switch v {
	case VerdictDataMissing, VerdictAmbiguous, VerdictPermission,
		VerdictTimeout, VerdictDBConnError:
		return true
	default:
		return false
	}
}
