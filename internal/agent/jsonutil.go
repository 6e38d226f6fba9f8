package agent

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var jsonFenceRe = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")

// decodeLLMJSON extracts a JSON value from an LLM response, tolerating a
// surrounding markdown fence, and unmarshals it into dest.
func decodeLLMJSON(text string, dest any) error {
	if m := jsonFenceRe.FindStringSubmatch(text); m != nil {
		text = m[1]
	}
	text = strings.TrimSpace(text)
	if err := json.Unmarshal([]byte(text), dest); err != nil {
		snippet := text
		if len(snippet) > 100 {
			snippet = snippet[:100] + "..."
		}
		return fmt.Errorf("parse LLM JSON: %w (got: %s)", err, snippet)
	}
	return nil
}

// GenerationKind tells which branch the SQL generation response parser took.
type GenerationKind int

const (
	// GenerationStructured means the model returned the expected JSON object.
	GenerationStructured GenerationKind = iota
	// GenerationRawFallback means the JSON was malformed and the raw text is
	// treated as a best-effort SQL string.
	GenerationRawFallback
)

// GenerationOutcome is the parsed result of one SQL generation response.
// Keeping the fallback explicit (instead of silently swallowing the parse
// error) lets tests assert which branch fired.
type GenerationOutcome struct {
	Kind            GenerationKind
	SQL             string
	NeedsMoreTables bool
}

// parseGenerationResponse interprets the model output of the generate step.
func parseGenerationResponse(text string) GenerationOutcome {
	var payload struct {
		SQL             string `json:"sql"`
		NeedsMoreTables bool   `json:"needs_more_tables"`
	}
	if err := decodeLLMJSON(text, &payload); err != nil {
		return GenerationOutcome{
			Kind: GenerationRawFallback,
			SQL:  strings.TrimSpace(text),
		}
	}
	return GenerationOutcome{
		Kind:            GenerationStructured,
		SQL:             strings.TrimSpace(payload.SQL),
		NeedsMoreTables: payload.NeedsMoreTables,
	}
}
