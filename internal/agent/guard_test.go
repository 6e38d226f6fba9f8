package agent

import (
	"strings"
	"testing"
)

func TestGuardSQL(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr string
	}{
		{
			name:  "plain select gets limit appended",
			input: "SELECT * FROM metrics",
			want:  "SELECT * FROM metrics LIMIT 100",
		},
		{
			name:  "existing limit preserved",
			input: "SELECT * FROM metrics LIMIT 10",
			want:  "SELECT * FROM metrics LIMIT 10",
		},
		{
			name:  "with statement allowed",
			input: "WITH recent AS (SELECT * FROM metrics LIMIT 5) SELECT * FROM recent",
			want:  "WITH recent AS (SELECT * FROM metrics LIMIT 5) SELECT * FROM recent",
		},
		{
			name:  "trailing semicolon stripped",
			input: "SELECT host FROM metrics;",
			want:  "SELECT host FROM metrics LIMIT 100",
		},
		{
			name:  "markdown fence stripped",
			input: "```sql\nSELECT host FROM metrics\n```",
			want:  "SELECT host FROM metrics LIMIT 100",
		},
		{
			name:  "lowercase select allowed",
			input: "select host from metrics limit 3",
			want:  "select host from metrics limit 3",
		},
		{
			name:    "empty statement rejected",
			input:   "   ",
			wantErr: "empty",
		},
		{
			name:    "non-select rejected",
			input:   "EXPLAIN SELECT * FROM metrics",
			wantErr: "only SELECT or WITH",
		},
		{
			name:    "drop rejected",
			input:   "SELECT * FROM metrics; DROP TABLE metrics",
			wantErr: "DROP",
		},
		{
			name:    "delete rejected case-insensitively",
			input:   "select 1; Delete from metrics",
			wantErr: "DELETE",
		},
		{
			name:  "keyword inside identifier allowed",
			input: "SELECT created_at, updated_at FROM metrics",
			want:  "SELECT created_at, updated_at FROM metrics LIMIT 100",
		},
		{
			name:    "chained statements rejected",
			input:   "SELECT 1; SELECT 2",
			wantErr: "multiple statements",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := GuardSQL(tt.input)
			if tt.wantErr != "" {
				if err == nil {
					t.Fatalf("expected error containing %q, got %q", tt.wantErr, got)
				}
				if !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("error = %q, want it to contain %q", err.Error(), tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("GuardSQL(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestGuardSQLIdempotent(t *testing.T) {
	inputs := []string{
		"SELECT * FROM metrics",
		"SELECT host FROM metrics;",
		"```sql\nSELECT host FROM metrics\n```",
		"WITH r AS (SELECT 1) SELECT * FROM r",
	}
	for _, input := range inputs {
		once, err := GuardSQL(input)
		if err != nil {
			t.Fatalf("first pass on %q: %v", input, err)
		}
		twice, err := GuardSQL(once)
		if err != nil {
			t.Fatalf("second pass on %q: %v", once, err)
		}
		if once != twice {
			t.Errorf("guard not idempotent: %q -> %q -> %q", input, once, twice)
		}
	}
}
