package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"askdb/internal/domain/models/agent"
	svc "askdb/internal/domain/services/agent"
)

// reportSampleRows caps how many result rows the report writer sees.
const reportSampleRows = 50

// stepGenerateReport writes the final natural-language answer. It is the
// single terminal producer for the SQL path: success, verdict failures, and
// structural errors all flow through here so the user always gets prose, not
// a raw error string.
func (e *Engine) stepGenerateReport(ctx context.Context, st *agent.TurnState) (*agent.StepPatch, error) {
	status := e.finalStatus(st)

	sample := st.SQLResult
	if len(sample) > reportSampleRows {
		sample = sample[:reportSampleRows]
	}
	sampleJSON, _ := json.Marshal(sample)

	reason := st.ValidationReason
	if reason == "" && st.RequestError != "" {
		reason = st.RequestError
	}

	text, err := e.llm.Generate(ctx, &svc.GenerateRequest{
		System: generateReportSystem,
		User: fmt.Sprintf(generateReportUser,
			st.UserQuestion,
			string(status),
			st.Constraints,
			st.GeneratedSQL,
			string(sampleJSON),
			reason,
		),
		Tier: svc.TierFast,
	})
	if err != nil {
		return nil, fmt.Errorf("report generation: %w", err)
	}

	report, actions := splitSuggestedActions(text)

	if st.ExpandFailed && st.ExpandReason != "" {
		report += fmt.Sprintf(
			"\n\nNote: the answer may be incomplete. %s.", st.ExpandReason)
	}

	e.logger.Info("generate_report finished turn",
		"status", status,
		"verdict", st.Verdict,
		"total_loops", st.TotalLoops,
	)

	return &agent.StepPatch{
		Report:           agent.String(report),
		SuggestedActions: agent.Strings(actions),
		Status:           agent.StatusOf(status),
	}, nil
}

// finalStatus maps the terminal state to the outcome the client sees.
// Structural failures are errors; verdict failures are fails; everything else
// succeeded.
func (e *Engine) finalStatus(st *agent.TurnState) agent.ResultStatus {
	switch {
	case st.RequestError != "" || st.Status == agent.StatusError:
		return agent.StatusError
	case st.Verdict != agent.VerdictOK:
		return agent.StatusFail
	default:
		return agent.StatusSuccess
	}
}

// splitSuggestedActions separates the report body from the JSON trailer the
// report prompt asks for. A missing or malformed trailer just means no
// suggestions.
func splitSuggestedActions(text string) (string, []string) {
	body := strings.TrimSpace(text)
	idx := strings.LastIndex(body, "\n")
	last := body
	if idx >= 0 {
		last = body[idx+1:]
	}

	last = strings.TrimSpace(last)
	if !strings.HasPrefix(last, "{") {
		return body, nil
	}

	var trailer struct {
		SuggestedActions []string `json:"suggested_actions"`
	}
	if err := json.Unmarshal([]byte(last), &trailer); err != nil || trailer.SuggestedActions == nil {
		return body, nil
	}

	if idx >= 0 {
		body = strings.TrimSpace(body[:idx])
	} else {
		body = ""
	}
	return body, trailer.SuggestedActions
}
