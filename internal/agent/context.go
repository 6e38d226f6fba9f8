package agent

import (
	"fmt"
	"strings"

	"askdb/internal/domain/models/agent"
)

// buildTableContext renders the selected candidates as the schema text the
// SQL generation prompt sees.
func buildTableContext(selected []agent.TableCandidate) string {
	blocks := make([]string, 0, len(selected))
	for _, t := range selected {
		var cols strings.Builder
		for _, c := range t.Columns {
			desc := c.Description
			if desc == "" {
				desc = "N/A"
			}
			fmt.Fprintf(&cols, "- %s (%s): %s\n", c.Name, c.Type, desc)
		}
		blocks = append(blocks, fmt.Sprintf(
			"Table: %s\nDescription: %s\nTime column: %s\nJoin keys: %s\n\nColumns:\n%s",
			t.TableName,
			t.Description,
			t.PrimaryTimeCol,
			strings.Join(t.JoinKeys, ", "),
			cols.String(),
		))
	}
	return strings.Join(blocks, "\n---\n\n")
}

// rebuildContextFromCandidates re-renders the context for a name subset of
// the cached candidates, preserving candidate order.
func rebuildContextFromCandidates(candidates []agent.TableCandidate, names []string) ([]agent.TableCandidate, string) {
	nameSet := make(map[string]struct{}, len(names))
	for _, n := range names {
		nameSet[n] = struct{}{}
	}
	var selected []agent.TableCandidate
	for _, c := range candidates {
		if _, ok := nameSet[c.TableName]; ok {
			selected = append(selected, c)
		}
	}
	return selected, buildTableContext(selected)
}

// formatCandidatesForRerank renders the candidate list for the rerank prompt.
// Only the first few columns are shown per table to keep the prompt small.
const rerankColumnLimit = 5

func formatCandidatesForRerank(candidates []agent.TableCandidate) string {
	var b strings.Builder
	for i, c := range candidates {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%d] %s\n", i+1, c.TableName)
		fmt.Fprintf(&b, "  - description: %s\n", c.Description)
		fmt.Fprintf(&b, "  - primary_time_col: %s\n", orNone(c.PrimaryTimeCol))
		fmt.Fprintf(&b, "  - join_keys: %s\n", orNone(strings.Join(c.JoinKeys, ", ")))
		fmt.Fprintf(&b, "  - score: %.3f\n", c.Score)
		b.WriteString("  - columns:\n")
		for j, col := range c.Columns {
			if j >= rerankColumnLimit {
				break
			}
			desc := col.Description
			if len(desc) > 100 {
				desc = desc[:100] + "..."
			}
			fmt.Fprintf(&b, "  - %s (%s): %s\n", col.Name, col.Type, desc)
		}
	}
	return b.String()
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}
