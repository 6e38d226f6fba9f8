package agent

import (
	"strings"
	"testing"
	"time"

	"askdb/internal/domain/models/agent"
)

var testNow = time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)

func TestValidateParsedRequest(t *testing.T) {
	tests := []struct {
		name           string
		parsed         *agent.ParsedRequest
		wantErr        string
		wantAdjustment bool
		check          func(t *testing.T, p *agent.ParsedRequest)
	}{
		{
			name:    "nil request rejected",
			parsed:  nil,
			wantErr: "missing",
		},
		{
			name:    "missing intent rejected",
			parsed:  &agent.ParsedRequest{},
			wantErr: "intent",
		},
		{
			name:           "no time range defaults to all time",
			parsed:         &agent.ParsedRequest{Intent: "cpu_usage"},
			wantAdjustment: true,
			check: func(t *testing.T, p *agent.ParsedRequest) {
				if p.TimeRange == nil || !p.TimeRange.AllTime {
					t.Errorf("expected all-time default, got %+v", p.TimeRange)
				}
			},
		},
		{
			name:           "follow-up without range inherits",
			parsed:         &agent.ParsedRequest{Intent: "cpu_usage", IsFollowup: true},
			wantAdjustment: true,
			check: func(t *testing.T, p *agent.ParsedRequest) {
				if p.TimeRange == nil || !p.TimeRange.Inherit {
					t.Errorf("expected inherit default, got %+v", p.TimeRange)
				}
			},
		},
		{
			name: "range missing end rejected",
			parsed: &agent.ParsedRequest{
				Intent:    "cpu_usage",
				TimeRange: &agent.TimeRange{Start: "2025-01-01T00:00:00Z"},
			},
			wantErr: "start' and 'end",
		},
		{
			name: "future start rejected",
			parsed: &agent.ParsedRequest{
				Intent: "cpu_usage",
				TimeRange: &agent.TimeRange{
					Start: "2099-01-01T00:00:00Z",
					End:   "2099-01-02T00:00:00Z",
				},
			},
			wantErr: "in the future",
		},
		{
			name: "future end clipped to now",
			parsed: &agent.ParsedRequest{
				Intent: "cpu_usage",
				TimeRange: &agent.TimeRange{
					Start: "2025-01-14T00:00:00Z",
					End:   "2025-01-16T00:00:00Z",
				},
			},
			wantAdjustment: true,
			check: func(t *testing.T, p *agent.ParsedRequest) {
				if p.TimeRange.End != testNow.Format(time.RFC3339) {
					t.Errorf("end = %q, want clipped to %q", p.TimeRange.End, testNow.Format(time.RFC3339))
				}
			},
		},
		{
			name: "end within tolerance untouched",
			parsed: &agent.ParsedRequest{
				Intent: "cpu_usage",
				TimeRange: &agent.TimeRange{
					Start: "2025-01-15T11:00:00Z",
					End:   "2025-01-15T12:03:00Z",
				},
			},
			check: func(t *testing.T, p *agent.ParsedRequest) {
				if p.TimeRange.End != "2025-01-15T12:03:00Z" {
					t.Errorf("end = %q, want untouched", p.TimeRange.End)
				}
			},
		},
		{
			name: "inverted range rejected",
			parsed: &agent.ParsedRequest{
				Intent: "cpu_usage",
				TimeRange: &agent.TimeRange{
					Start: "2025-01-10T00:00:00Z",
					End:   "2025-01-05T00:00:00Z",
				},
			},
			wantErr: "later than end",
		},
		{
			name: "date-only values accepted",
			parsed: &agent.ParsedRequest{
				Intent:    "cpu_usage",
				TimeRange: &agent.TimeRange{Start: "2025-01-01", End: "2025-01-10"},
			},
		},
		{
			name: "unparseable timestamp rejected",
			parsed: &agent.ParsedRequest{
				Intent:    "cpu_usage",
				TimeRange: &agent.TimeRange{Start: "yesterday", End: "today"},
			},
			wantErr: "invalid time format",
		},
		{
			name: "missing timezone defaulted",
			parsed: &agent.ParsedRequest{
				Intent:    "cpu_usage",
				TimeRange: &agent.TimeRange{Start: "2025-01-01", End: "2025-01-10"},
			},
			check: func(t *testing.T, p *agent.ParsedRequest) {
				if p.TimeRange.Timezone != "UTC" {
					t.Errorf("timezone = %q, want UTC", p.TimeRange.Timezone)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adj, err := ValidateParsedRequest(tt.parsed, testNow, "UTC")
			if tt.wantErr != "" {
				if err == nil {
					t.Fatalf("expected error containing %q, got nil", tt.wantErr)
				}
				if !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("error = %q, want it to contain %q", err.Error(), tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.wantAdjustment && adj == "" {
				t.Error("expected a non-empty adjustment message")
			}
			if !tt.wantAdjustment && adj != "" {
				t.Errorf("unexpected adjustment %q", adj)
			}
			if tt.check != nil {
				tt.check(t, tt.parsed)
			}
		})
	}
}
