package agent

import (
	"context"
	"fmt"
	"strings"

	"askdb/internal/domain/models/agent"
	svc "askdb/internal/domain/services/agent"
)

// stepClassifyIntent routes the turn to the SQL workflow or general chat.
// Any failure defaults to the SQL path so a flaky classifier never blocks a
// data question.
func (e *Engine) stepClassifyIntent(ctx context.Context, st *agent.TurnState) (*agent.StepPatch, error) {
	text, err := e.llm.Generate(ctx, &svc.GenerateRequest{
		System:   classifyIntentSystem,
		User:     fmt.Sprintf(classifyIntentUser, st.UserQuestion),
		JSONMode: true,
		Tier:     svc.TierFast,
	})

	intent := agent.IntentSQL
	if err != nil {
		e.logger.Warn("classify_intent call failed, defaulting to sql", "error", err)
	} else {
		var payload struct {
			Intent string `json:"intent"`
			Reason string `json:"reason"`
		}
		if derr := decodeLLMJSON(text, &payload); derr != nil {
			e.logger.Warn("classify_intent parse failed, defaulting to sql", "error", derr)
		} else {
			switch strings.ToLower(strings.TrimSpace(payload.Intent)) {
			case "general":
				intent = agent.IntentGeneral
			case "sql":
				intent = agent.IntentSQL
			default:
				e.logger.Warn("classify_intent returned unknown intent, defaulting to sql",
					"intent", payload.Intent)
			}
		}
	}

	return &agent.StepPatch{ClassifiedIntent: agent.IntentOf(intent)}, nil
}

// stepGeneralChat answers a non-SQL turn conversationally using recent
// session history.
func (e *Engine) stepGeneralChat(ctx context.Context, st *agent.TurnState) (*agent.StepPatch, error) {
	var history []agent.HistoryMessage
	if st.Prior != nil {
		history = st.Prior.History
	}

	// Avoid sending the question twice when the caller already appended it
	// to the history snapshot.
	duplicate := len(history) > 0 && strings.Contains(history[len(history)-1].Content, st.UserQuestion)
	if !duplicate {
		history = append(append([]agent.HistoryMessage{}, history...), agent.HistoryMessage{
			Role:    "user",
			Content: st.UserQuestion,
		})
	}

	answer, err := e.llm.Generate(ctx, &svc.GenerateRequest{
		System:   generalChatSystem,
		Messages: history,
		Tier:     svc.TierFast,
	})
	if err != nil {
		return nil, fmt.Errorf("general chat generation: %w", err)
	}

	return &agent.StepPatch{
		Report: agent.String(answer),
		Status: agent.StatusOf(agent.StatusGeneral),
	}, nil
}

// stepParseRequest turns the raw question into a structured request. A
// malformed model response is a structural failure: the turn terminates with
// an error report, no retry inside this step.
func (e *Engine) stepParseRequest(ctx context.Context, st *agent.TurnState) (*agent.StepPatch, error) {
	text, err := e.llm.Generate(ctx, &svc.GenerateRequest{
		System:   parseRequestSystem,
		User:     fmt.Sprintf(parseRequestUser, e.now().Format("2006-01-02T15:04:05Z07:00"), st.UserQuestion),
		JSONMode: true,
		Tier:     svc.TierFast,
	})
	if err != nil {
		return structuralFailure(fmt.Sprintf("request parsing call failed: %v", err)), nil
	}

	var parsed agent.ParsedRequest
	if derr := decodeLLMJSON(text, &parsed); derr != nil {
		e.logger.Error("parse_request returned malformed JSON", "error", derr)
		return structuralFailure(fmt.Sprintf("request parsing failed: %v", derr)), nil
	}

	if parsed.Intent == "" {
		parsed.Intent = "unknown"
	}

	// Context inheritance: a follow-up that omits the time range (and does
	// not explicitly ask for all time) keeps the previous turn's range; same
	// for the metric.
	var prev *agent.ParsedRequest
	if st.Prior != nil {
		prev = st.Prior.Parsed
	}
	if prev != nil {
		allTime := parsed.TimeRange != nil && parsed.TimeRange.AllTime
		empty := parsed.TimeRange == nil ||
			(parsed.TimeRange.Start == "" && parsed.TimeRange.End == "" && !parsed.TimeRange.Inherit)
		if !allTime && empty && prev.TimeRange != nil {
			parsed.TimeRange = prev.TimeRange
			e.logger.Info("parse_request inherited time_range from previous turn")
		}
		if parsed.Metric == "" && prev.Metric != "" {
			parsed.Metric = prev.Metric
			e.logger.Info("parse_request inherited metric from previous turn")
		}
	}

	return &agent.StepPatch{
		Parsed:           &parsed,
		RequestValid:     agent.Bool(true),
		RequestError:     agent.String(""),
		ValidationReason: agent.String(""),
	}, nil
}

func structuralFailure(reason string) *agent.StepPatch {
	return &agent.StepPatch{
		Parsed:           &agent.ParsedRequest{},
		RequestValid:     agent.Bool(false),
		RequestError:     agent.String(reason),
		ValidationReason: agent.String(reason),
		Status:           agent.StatusOf(agent.StatusError),
	}
}

// stepValidateRequest checks and repairs the parsed request. Pure, no LLM.
func (e *Engine) stepValidateRequest(st *agent.TurnState) (*agent.StepPatch, error) {
	if !st.RequestValid {
		reason := st.RequestError
		if reason == "" {
			reason = "unknown parsing error"
		}
		return &agent.StepPatch{
			RequestValid:     agent.Bool(false),
			RequestError:     agent.String(reason),
			ValidationReason: agent.String(reason),
			Status:           agent.StatusOf(agent.StatusError),
		}, nil
	}

	adjustment, err := ValidateParsedRequest(st.Parsed, e.now(), e.limits.Timezone)
	if err != nil {
		return &agent.StepPatch{
			RequestValid:     agent.Bool(false),
			RequestError:     agent.String(err.Error()),
			ValidationReason: agent.String(err.Error()),
			Status:           agent.StatusOf(agent.StatusError),
		}, nil
	}

	patch := &agent.StepPatch{
		Parsed:       st.Parsed,
		RequestValid: agent.Bool(true),
		RequestError: agent.String(""),
	}
	if adjustment != "" {
		e.logger.Info("validate_request adjusted request", "adjustment", adjustment)
	}
	return patch, nil
}

// stepCheckClarification asks the model whether the request is specific
// enough to proceed. Failures proceed rather than block.
func (e *Engine) stepCheckClarification(ctx context.Context, st *agent.TurnState) (*agent.StepPatch, error) {
	text, err := e.llm.Generate(ctx, &svc.GenerateRequest{
		System: clarificationCheckSystem,
		User: fmt.Sprintf(clarificationCheckUser,
			st.Parsed.Intent, st.Parsed.Metric, st.Parsed.Condition, st.UserQuestion),
		JSONMode: true,
		Tier:     svc.TierFast,
	})

	needs := false
	question := ""
	if err != nil {
		e.logger.Warn("check_clarification call failed, proceeding", "error", err)
	} else {
		var payload struct {
			NeedsClarification bool   `json:"needs_clarification"`
			Question           string `json:"question"`
		}
		if derr := decodeLLMJSON(text, &payload); derr != nil {
			e.logger.Warn("check_clarification parse failed, proceeding", "error", derr)
		} else {
			needs = payload.NeedsClarification
			question = payload.Question
		}
	}

	return &agent.StepPatch{
		NeedsClarification:    agent.Bool(needs),
		ClarificationQuestion: agent.String(question),
	}, nil
}
