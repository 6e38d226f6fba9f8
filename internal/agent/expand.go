package agent

import (
	"askdb/internal/domain/models/agent"
)

// expandTables pulls the next batch of candidates from the cached list
// starting at offset, merges them into the current selection (de-duplicated,
// order-preserving), and rebuilds the schema context. The returned offset is
// unchanged when no candidates remain, which callers treat as expansion
// failure for the rest of the turn.
func expandTables(selected []string, candidates []agent.TableCandidate, offset, batchSize int) (newSelected []string, newContext string, newOffset int) {
	if offset >= len(candidates) {
		return selected, "", offset
	}

	next := offset + batchSize
	if next > len(candidates) {
		next = len(candidates)
	}

	seen := make(map[string]struct{}, len(selected))
	merged := make([]string, 0, len(selected)+(next-offset))
	for _, name := range selected {
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		merged = append(merged, name)
	}
	for _, c := range candidates[offset:next] {
		if _, dup := seen[c.TableName]; dup {
			continue
		}
		seen[c.TableName] = struct{}{}
		merged = append(merged, c.TableName)
	}

	_, context := rebuildContextFromCandidates(candidates, merged)
	return merged, context, next
}
