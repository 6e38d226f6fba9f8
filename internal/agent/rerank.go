package agent

import (
	"encoding/json"
	"sort"
)

// scoredIndex is one reranked candidate: a 1-based index into the candidate
// list and a relevance score in [0,1].
type scoredIndex struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

// applyElbowCut keeps the top-scored items up to the first adjacent score
// drop of at least threshold. The kept list is padded back to minKeep when
// the cut was too aggressive and capped at maxKeep.
func applyElbowCut(scored []scoredIndex, threshold float64, minKeep, maxKeep int) []scoredIndex {
	if len(scored) == 0 {
		return nil
	}
	sorted := make([]scoredIndex, len(scored))
	copy(sorted, scored)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Score > sorted[j].Score
	})

	cut := len(sorted)
	for i := 0; i < len(sorted)-1; i++ {
		if sorted[i].Score-sorted[i+1].Score >= threshold {
			cut = i + 1
			break
		}
	}

	kept := sorted[:cut]
	if len(kept) < minKeep {
		n := minKeep
		if n > len(sorted) {
			n = len(sorted)
		}
		kept = sorted[:n]
	}
	if len(kept) > maxKeep {
		kept = kept[:maxKeep]
	}
	return kept
}

// parseRerankResponse parses the reranker's JSON array, drops malformed or
// out-of-range entries, and applies the elbow cut. A nil return means the
// response was unusable and the caller should fall back to original order.
func parseRerankResponse(text string, candidateCount int, threshold float64, minKeep, maxKeep int) []int {
	var raw []json.RawMessage
	if err := decodeLLMJSON(text, &raw); err != nil {
		return nil
	}

	var scored []scoredIndex
	for _, item := range raw {
		var si scoredIndex
		if err := json.Unmarshal(item, &si); err != nil {
			continue
		}
		if si.Index < 1 || si.Index > candidateCount {
			continue
		}
		scored = append(scored, si)
	}

	kept := applyElbowCut(scored, threshold, minKeep, maxKeep)
	if len(kept) == 0 {
		return nil
	}

	indices := make([]int, 0, len(kept))
	seen := make(map[int]struct{}, len(kept))
	for _, si := range kept {
		if _, dup := seen[si.Index]; dup {
			continue
		}
		seen[si.Index] = struct{}{}
		indices = append(indices, si.Index)
	}
	return indices
}
