package agent

import (
	"reflect"
	"testing"
)

func TestExtractSQLFromText(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "fenced sql block",
			input: "Here is the result.\n\n```sql\nSELECT host FROM metrics\n```\n\nDone.",
			want:  "SELECT host FROM metrics",
		},
		{
			name:  "multiline statement",
			input: "```sql\nSELECT host\nFROM metrics\nWHERE ts > now()\n```",
			want:  "SELECT host\nFROM metrics\nWHERE ts > now()",
		},
		{
			name:  "no block",
			input: "No query was needed for this answer.",
			want:  "",
		},
		{
			name:  "plain fence is not a sql block",
			input: "```\nSELECT 1\n```",
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractSQLFromText(tt.input); got != tt.want {
				t.Errorf("ExtractSQLFromText = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtractTablesFromSQL(t *testing.T) {
	tests := []struct {
		name string
		sql  string
		want []string
	}{
		{
			name: "single from",
			sql:  "SELECT * FROM cpu_metrics WHERE ts > now()",
			want: []string{"cpu_metrics"},
		},
		{
			name: "joins and schema qualification",
			sql:  "SELECT * FROM public.cpu_metrics m JOIN hosts h ON m.host_id = h.id LEFT JOIN disks d ON d.host_id = h.id",
			want: []string{"public.cpu_metrics", "hosts", "disks"},
		},
		{
			name: "duplicates collapsed in first-seen order",
			sql:  "SELECT * FROM a JOIN b ON 1=1 JOIN a ON 1=1",
			want: []string{"a", "b"},
		},
		{
			name: "no tables",
			sql:  "SELECT 1",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractTablesFromSQL(tt.sql)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ExtractTablesFromSQL = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestExtractTimeRangeFromSQL(t *testing.T) {
	start, end := ExtractTimeRangeFromSQL(
		"SELECT * FROM m WHERE ts BETWEEN '2025-01-01T00:00:00Z' AND '2025-01-02T00:00:00Z'")
	if start != "2025-01-01T00:00:00Z" || end != "2025-01-02T00:00:00Z" {
		t.Errorf("got (%q, %q)", start, end)
	}

	start, end = ExtractTimeRangeFromSQL("SELECT * FROM m WHERE ts > now()")
	if start != "" || end != "" {
		t.Errorf("expected empty bounds, got (%q, %q)", start, end)
	}
}
