package agent

import (
	"fmt"
	"strings"
	"time"

	"askdb/internal/domain/models/agent"
)

// FutureTolerance is how far into the future a timestamp may reach before it
// counts as "in the future". Clock skew between the client, the LLM's notion
// of "now", and this server makes an exact comparison too strict.
const FutureTolerance = 5 * time.Minute

// ValidateParsedRequest checks and repairs a parsed request in place. It is a
// pure function of the request and the supplied clock; no LLM call.
//
// Repairs:
//   - a missing time range defaults to all-time for a fresh question, or to
//     inherit for an explicit follow-up (resolved later from the previous SQL)
//   - an end time beyond tolerance in the future is clipped to now
//
// Rejections: missing intent, a range missing start or end, a start beyond
// tolerance in the future, or start after end once clipping is applied.
// The returned adjustment string is non-empty when a repair was applied and
// is surfaced to the generation step.
func ValidateParsedRequest(parsed *agent.ParsedRequest, now time.Time, tz string) (adjustment string, err error) {
	if parsed == nil {
		return "", fmt.Errorf("parsed request is missing")
	}
	if strings.TrimSpace(parsed.Intent) == "" {
		return "", fmt.Errorf("missing 'intent' field")
	}

	tr := parsed.TimeRange
	if tr == nil || (!tr.AllTime && !tr.Inherit && tr.Start == "" && tr.End == "") {
		if parsed.IsFollowup {
			parsed.TimeRange = &agent.TimeRange{Inherit: true, Timezone: tz}
			return "follow-up question: inheriting the previous query's time range", nil
		}
		parsed.TimeRange = &agent.TimeRange{AllTime: true, Timezone: tz}
		return "no time range given: querying all time", nil
	}

	if tr.AllTime || tr.Inherit {
		if tr.Timezone == "" {
			tr.Timezone = tz
		}
		return "", nil
	}

	if tr.Start == "" || tr.End == "" {
		return "", fmt.Errorf("time_range must have both 'start' and 'end'")
	}
	if tr.Timezone == "" {
		tr.Timezone = tz
	}

	start, perr := parseISOTime(tr.Start, now.Location())
	if perr != nil {
		return "", fmt.Errorf("invalid time format: %w", perr)
	}
	end, perr := parseISOTime(tr.End, now.Location())
	if perr != nil {
		return "", fmt.Errorf("invalid time format: %w", perr)
	}

	futureLimit := now.Add(FutureTolerance)

	// A query that starts in the future can never match data; reject it
	// instead of clipping.
	if start.After(futureLimit) {
		return "", fmt.Errorf("start time (%s) is in the future", tr.Start)
	}

	if end.After(futureLimit) {
		adjustment = fmt.Sprintf("end time (%s) was in the future and was clipped to now", tr.End)
		end = now
		tr.End = now.Format(time.RFC3339)
	}

	if start.After(end) {
		return "", fmt.Errorf("start time is later than end time")
	}

	return adjustment, nil
}

// parseISOTime parses an ISO-8601 timestamp, tolerating a trailing Z, a
// missing offset (interpreted in loc), and date-only values.
func parseISOTime(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	layouts := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006-01-02",
	}
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", s)
}
