package agent

import (
	"testing"

	"askdb/internal/domain/models/agent"
)

func TestClassifySQLError(t *testing.T) {
	tests := []struct {
		name    string
		message string
		want    agent.Verdict
	}{
		{
			name:    "missing relation",
			message: `ERROR: relation "public.cpu_metrics" does not exist`,
			want:    agent.VerdictTableMissing,
		},
		{
			name:    "missing column",
			message: `ERROR: column "cpu_pct" does not exist`,
			want:    agent.VerdictColumnMissing,
		},
		{
			name:    "syntax error",
			message: `ERROR: syntax error at or near "FORM"`,
			want:    agent.VerdictSQLBad,
		},
		{
			name:    "permission denied",
			message: `ERROR: permission denied for table audit_log`,
			want:    agent.VerdictPermission,
		},
		{
			name:    "bad cast",
			message: `ERROR: invalid input syntax for type timestamp: "yesterday"`,
			want:    agent.VerdictTypeError,
		},
		{
			name:    "division by zero",
			message: `ERROR: division by zero`,
			want:    agent.VerdictSQLBad,
		},
		{
			name:    "statement timeout",
			message: `ERROR: canceling statement due to statement timeout`,
			want:    agent.VerdictTimeout,
		},
		{
			name:    "connection refused",
			message: `could not connect to server: Connection refused`,
			want:    agent.VerdictDBConnError,
		},
		{
			name:    "unknown error falls back to sql bad",
			message: `ERROR: something nobody anticipated`,
			want:    agent.VerdictSQLBad,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, reason := ClassifySQLError(tt.message)
			if got != tt.want {
				t.Errorf("ClassifySQLError(%q) = %s, want %s", tt.message, got, tt.want)
			}
			if reason == "" {
				t.Error("expected a non-empty reason")
			}
		})
	}
}

func TestClassifySQLErrorAlwaysRoutable(t *testing.T) {
	// Every classification must either be SQL-repairable or terminal so the
	// verdict router never dead-ends.
	messages := []string{
		`relation "x" does not exist`,
		`column "y" does not exist`,
		"syntax error",
		"permission denied",
		"cannot cast",
		"timeout",
		"connection reset",
		"garbage",
	}
	for _, msg := range messages {
		v, _ := ClassifySQLError(msg)
		if !v.SQLRepairable() && !v.Terminal() && v != agent.VerdictTableMissing {
			t.Errorf("verdict %s for %q is neither repairable, terminal, nor table-missing", v, msg)
		}
	}
}
