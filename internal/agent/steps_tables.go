package agent

import (
	"context"
	"fmt"
	"strings"

	"askdb/internal/domain/models/agent"
	svc "askdb/internal/domain/services/agent"
)

// viewPrefix marks database views in the search index; the workflow only
// queries base tables.
const viewPrefix = "v_"

// stepRetrieveTables fetches the candidate tables for the turn. Follow-up
// questions whose previous SQL is extractable reuse exactly its tables and
// skip the search. Candidates are cached for the rest of the turn and never
// re-fetched.
func (e *Engine) stepRetrieveTables(ctx context.Context, st *agent.TurnState) (*agent.StepPatch, error) {
	if st.Parsed != nil && st.Parsed.IsFollowup && st.Prior != nil && st.Prior.SQL != "" {
		if tables := ExtractTablesFromSQL(st.Prior.SQL); len(tables) > 0 {
			e.logger.Info("retrieve_tables reusing previous query's tables", "tables", tables)
			candidates := make([]agent.TableCandidate, 0, len(tables))
			for _, t := range tables {
				candidates = append(candidates, agent.TableCandidate{TableName: t, Score: 1.0})
			}
			return &agent.StepPatch{
				TableCandidates: agent.Tables(candidates),
				SelectedTables:  agent.Strings(tables),
				CandidateOffset: agent.Int(len(tables)),
			}, nil
		}
	}

	results, err := e.search.Search(ctx, st.UserQuestion, e.limits.RetrieveK)
	if err != nil {
		e.logger.Error("table search failed", "error", err)
		results = nil
	}

	filtered := results[:0:0]
	for _, c := range results {
		base := c.TableName
		if i := strings.LastIndex(base, "."); i >= 0 {
			base = base[i+1:]
		}
		if strings.HasPrefix(base, viewPrefix) {
			continue
		}
		filtered = append(filtered, c)
	}

	if len(filtered) == 0 {
		err := "no relevant tables found"
		return &agent.StepPatch{
			TableCandidates:  agent.Tables(nil),
			SelectedTables:   agent.Strings(nil),
			TableContext:     agent.String(""),
			RequestError:     agent.String(err),
			ValidationReason: agent.String(err),
		}, nil
	}

	e.logger.Info("retrieve_tables fetched candidates", "count", len(filtered))
	return &agent.StepPatch{
		TableCandidates: agent.Tables(filtered),
		CandidateOffset: agent.Int(0),
	}, nil
}

// stepSelectTables reranks the cached candidates with the LLM and keeps the
// cluster before the first large score drop. Rerank failures degrade to the
// top candidates by original order, never block the turn.
func (e *Engine) stepSelectTables(ctx context.Context, st *agent.TurnState) (*agent.StepPatch, error) {
	candidates := st.TableCandidates
	if len(candidates) == 0 {
		// Follow-up reuse already selected tables without search scores.
		if len(st.SelectedTables) > 0 && st.TableContext != "" {
			return &agent.StepPatch{}, nil
		}
		err := "no candidate tables available"
		return &agent.StepPatch{
			SelectedTables:   agent.Strings(nil),
			TableContext:     agent.String(""),
			RequestError:     agent.String(err),
			ValidationReason: agent.String(err),
		}, nil
	}

	// Follow-up turns that reused the previous SQL's tables have no column
	// metadata to rerank; keep the selection and render what we know.
	if st.Parsed != nil && st.Parsed.IsFollowup && len(st.SelectedTables) > 0 {
		_, context := rebuildContextFromCandidates(candidates, st.SelectedTables)
		if context == "" {
			context = "Tables: " + strings.Join(st.SelectedTables, ", ")
		}
		return &agent.StepPatch{TableContext: agent.String(context)}, nil
	}

	var indices []int
	text, err := e.llm.Generate(ctx, &svc.GenerateRequest{
		System: rerankTableSystem,
		User: fmt.Sprintf(rerankTableUser,
			st.Parsed.Intent, st.Parsed.Metric, st.Parsed.Condition,
			formatCandidatesForRerank(candidates)),
		JSONMode: true,
		Tier:     svc.TierSmart,
	})
	if err != nil {
		e.logger.Warn("rerank call failed, falling back to top candidates", "error", err)
	} else {
		indices = parseRerankResponse(text, len(candidates),
			e.limits.ElbowThreshold, e.limits.MinKeep, e.limits.MaxKeep)
	}

	if len(indices) == 0 {
		n := e.limits.TopK
		if n > len(candidates) {
			n = len(candidates)
		}
		indices = make([]int, n)
		for i := range indices {
			indices[i] = i + 1
		}
		e.logger.Info("select_tables fallback to original order", "kept", n)
	}

	selected := make([]agent.TableCandidate, 0, len(indices))
	names := make([]string, 0, len(indices))
	for _, idx := range indices {
		c := candidates[idx-1]
		selected = append(selected, c)
		names = append(names, c.TableName)
	}

	e.logger.Info("select_tables selected", "tables", names)
	return &agent.StepPatch{
		SelectedTables:  agent.Strings(names),
		TableContext:    agent.String(buildTableContext(selected)),
		CandidateOffset: agent.Int(len(selected)),
	}, nil
}

// stepExpandTables advances the candidate watermark by one batch and rebuilds
// the schema context. Runs when validation reported a missing table and the
// expansion budget still has room. Expansion is a retry-causing event, so it
// charges TotalLoops.
func (e *Engine) stepExpandTables(st *agent.TurnState) (*agent.StepPatch, error) {
	newSelected, newContext, newOffset := expandTables(
		st.SelectedTables, st.TableCandidates, st.CandidateOffset, e.limits.ExpandStep)

	patch := &agent.StepPatch{
		TableExpandCount: agent.Int(st.TableExpandCount + 1),
		TotalLoops:       agent.Int(st.TotalLoops + 1),
		ExpandAttempted:  agent.Bool(true),
	}

	if newOffset == st.CandidateOffset {
		reason := "table expansion attempted but no candidates remain"
		e.logger.Info(reason)
		patch.ExpandFailed = agent.Bool(true)
		patch.ExpandReason = agent.String(reason)
		return patch, nil
	}

	added := newSelected[len(st.SelectedTables):]
	e.logger.Info("expand_tables added candidates",
		"added", added, "offset", newOffset)

	patch.SelectedTables = agent.Strings(newSelected)
	patch.TableContext = agent.String(newContext)
	patch.CandidateOffset = agent.Int(newOffset)
	patch.ExpandReason = agent.String(fmt.Sprintf("expanded table context with %s", strings.Join(added, ", ")))
	return patch, nil
}
