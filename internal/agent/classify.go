package agent

import (
	"strings"

	"askdb/internal/domain/models/agent"
)

// ClassifySQLError maps a raw database error message to a verdict and a short
// human-readable reason using substring heuristics. Unmatched messages fall
// back to VerdictSQLBad so every failure stays routable.
func ClassifySQLError(sqlError string) (agent.Verdict, string) {
	err := strings.ToLower(sqlError)

	switch {
	case strings.Contains(err, "relation") && strings.Contains(err, "does not exist"):
		return agent.VerdictTableMissing, "table does not exist"
	case strings.Contains(err, "column") && strings.Contains(err, "does not exist"):
		return agent.VerdictColumnMissing, "column does not exist"
	case strings.Contains(err, "syntax error") || strings.Contains(err, "at or near"):
		return agent.VerdictSQLBad, "SQL syntax error"
	case strings.Contains(err, "permission denied"):
		return agent.VerdictPermission, "permission denied"
	case strings.Contains(err, "invalid input syntax") || strings.Contains(err, "cannot cast"):
		return agent.VerdictTypeError, "type conversion error"
	case strings.Contains(err, "division by zero"):
		return agent.VerdictSQLBad, "division by zero"
	case strings.Contains(err, "timeout"):
		return agent.VerdictTimeout, "query timed out"
	case strings.Contains(err, "could not connect") || strings.Contains(err, "connection"):
		return agent.VerdictDBConnError, "database connection error"
	default:
		return agent.VerdictSQLBad, "unrecognized SQL error"
	}
}
