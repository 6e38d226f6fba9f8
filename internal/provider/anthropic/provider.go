package anthropic

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	svc "askdb/internal/domain/services/agent"
)

const defaultMaxTokens = 4096

// jsonModeInstruction is appended to the system prompt when the caller asked
// for JSON; the Messages API has no structured-output switch.
const jsonModeInstruction = "Respond with a single JSON value and nothing else. No prose, no markdown fences."

// Provider implements the provider interface for Anthropic (Claude) models.
type Provider struct {
	client *anthropic.Client
}

// NewProvider creates a new Anthropic provider with the given API key.
func NewProvider(apiKey string) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}

	client := anthropic.NewClient(option.WithAPIKey(apiKey))

	return &Provider{
		client: &client,
	}, nil
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "anthropic"
}

// Generate runs one text generation call against the Messages API.
func (p *Provider) Generate(ctx context.Context, model string, req *svc.GenerateRequest) (string, error) {
	system := req.System
	if req.JSONMode {
		system = strings.TrimSpace(system + "\n\n" + jsonModeInstruction)
	}

	var messages []anthropic.MessageParam
	if len(req.Messages) > 0 {
		for _, m := range req.Messages {
			block := anthropic.NewTextBlock(m.Content)
			if m.Role == "assistant" {
				messages = append(messages, anthropic.NewAssistantMessage(block))
			} else {
				messages = append(messages, anthropic.NewUserMessage(block))
			}
		}
	} else {
		messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(req.User)))
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		Messages:  messages,
		MaxTokens: defaultMaxTokens,
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{
			{Type: "text", Text: system},
		}
	}

	message, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic API call failed: %w", err)
	}

	var b strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}

	return b.String(), nil
}
