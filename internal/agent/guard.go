package agent

import (
	"fmt"
	"regexp"
	"strings"
)

// forbiddenKeywords are rejected anywhere in a statement, as whole words.
// REPLACE is included because Postgres accepts CREATE OR REPLACE; the rest are
// plain DML/DDL.
var forbiddenKeywords = []string{
	"DROP", "DELETE", "UPDATE", "INSERT", "ALTER", "TRUNCATE",
	"GRANT", "REVOKE", "CREATE", "REPLACE",
}

var (
	codeFenceRe         = regexp.MustCompile("(?is)```(?:sql)?\\s*(.*?)```")
	limitClauseRe       = regexp.MustCompile(`(?i)\bLIMIT\b`)
	forbiddenKeywordRes = compileKeywordPatterns(forbiddenKeywords)
)

func compileKeywordPatterns(keywords []string) map[string]*regexp.Regexp {
	res := make(map[string]*regexp.Regexp, len(keywords))
	for _, kw := range keywords {
		res[kw] = regexp.MustCompile(`(?i)\b` + kw + `\b`)
	}
	return res
}

// GuardSQL validates and normalizes a candidate SQL statement without any
// I/O. On success it returns the normalized statement; the normalization is
// a fixed point, so guarding the output again returns it unchanged.
//
// Accepted statements start with SELECT or WITH, contain no forbidden keyword
// as a whole word, contain a single statement, and end with a LIMIT clause
// (appended when absent).
func GuardSQL(sql string) (string, error) {
	if strings.TrimSpace(sql) == "" {
		return "", fmt.Errorf("SQL is empty")
	}

	// Strip surrounding markdown code fences if the model wrapped the query.
	if m := codeFenceRe.FindStringSubmatch(sql); m != nil {
		sql = m[1]
	}

	normalized := strings.TrimSpace(sql)
	normalized = strings.TrimRight(normalized, ";")
	normalized = strings.TrimSpace(normalized)

	upper := strings.ToUpper(normalized)
	if !strings.HasPrefix(upper, "SELECT") && !strings.HasPrefix(upper, "WITH") {
		return "", fmt.Errorf("only SELECT or WITH statements are allowed")
	}

	for _, kw := range forbiddenKeywords {
		if forbiddenKeywordRes[kw].MatchString(normalized) {
			return "", fmt.Errorf("statement contains forbidden keyword: %s", kw)
		}
	}

	// A semicolon left after trimming the trailing one means multiple
	// statements were chained.
	if strings.Contains(normalized, ";") {
		return "", fmt.Errorf("multiple statements are not allowed")
	}

	if !limitClauseRe.MatchString(normalized) {
		normalized += " LIMIT 100"
	}

	return normalized, nil
}
