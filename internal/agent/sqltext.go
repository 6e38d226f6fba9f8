package agent

import (
	"regexp"
	"strings"
)

var (
	fencedSQLRe  = regexp.MustCompile("(?s)```sql\\n(.*?)\\n```")
	fromJoinRe   = regexp.MustCompile(`(?i)(?:FROM|JOIN)\s+([a-zA-Z_][a-zA-Z0-9_]*(?:\.[a-zA-Z_][a-zA-Z0-9_]*)?)`)
	tsBetweenRe  = regexp.MustCompile(`(?i)ts\s+BETWEEN\s+'([^']+)'\s+AND\s+'([^']+)'`)
	sqlKeywordSet = map[string]struct{}{
		"SELECT": {}, "WHERE": {}, "AND": {}, "OR": {}, "ON": {}, "AS": {},
	}
)

// ExtractSQLFromText pulls the SQL out of a fenced ```sql block, returning
// the empty string when no block is present. Used to recover the previous
// turn's query from persisted assistant messages.
func ExtractSQLFromText(text string) string {
	if m := fencedSQLRe.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

// ExtractTablesFromSQL returns the distinct table names referenced in FROM
// and JOIN clauses, in order of first appearance.
func ExtractTablesFromSQL(sql string) []string {
	seen := make(map[string]struct{})
	var tables []string
	for _, m := range fromJoinRe.FindAllStringSubmatch(sql, -1) {
		name := m[1]
		if _, kw := sqlKeywordSet[strings.ToUpper(name)]; kw {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		tables = append(tables, name)
	}
	return tables
}

// ExtractTimeRangeFromSQL finds a `ts BETWEEN 'a' AND 'b'` clause and returns
// its bounds, or empty strings when absent. Follow-up turns use this to
// resolve an inherited time range from the previous SQL instead of from
// mutable state.
func ExtractTimeRangeFromSQL(sql string) (start, end string) {
	if m := tsBetweenRe.FindStringSubmatch(sql); m != nil {
		return m[1], m[2]
	}
	return "", ""
}
