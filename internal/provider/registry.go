package provider

import (
	"context"
	"fmt"
	"log/slog"

	svc "askdb/internal/domain/services/agent"
)

// Provider is one model vendor. Implementations are stateless beyond their
// API client and safe for concurrent use.
type Provider interface {
	Name() string
	Generate(ctx context.Context, model string, req *svc.GenerateRequest) (string, error)
}

// ModelRef names a concrete model at a concrete provider.
type ModelRef struct {
	Provider string
	Model    string
}

// Registry routes generation requests to the provider configured for the
// requested tier. It implements the agent's TextGenerator port.
type Registry struct {
	providers map[string]Provider
	fast      ModelRef
	smart     ModelRef
	logger    *slog.Logger
}

// NewRegistry creates a registry with the given tier routing.
func NewRegistry(fast, smart ModelRef, logger *slog.Logger) *Registry {
	return &Registry{
		providers: make(map[string]Provider),
		fast:      fast,
		smart:     smart,
		logger:    logger,
	}
}

// Register adds a provider. Later registrations with the same name win.
func (r *Registry) Register(p Provider) {
	r.providers[p.Name()] = p
}

// Validate checks that both configured tiers resolve to a registered
// provider. Called at startup to fail fast on misconfiguration.
func (r *Registry) Validate() error {
	for _, ref := range []ModelRef{r.fast, r.smart} {
		if ref.Model == "" {
			return fmt.Errorf("no model configured for provider %q", ref.Provider)
		}
		if _, ok := r.providers[ref.Provider]; !ok {
			return fmt.Errorf("provider %q is not registered (is its API key set?)", ref.Provider)
		}
	}
	return nil
}

// Generate implements the TextGenerator port.
func (r *Registry) Generate(ctx context.Context, req *svc.GenerateRequest) (string, error) {
	ref := r.fast
	if req.Tier == svc.TierSmart {
		ref = r.smart
	}

	p, ok := r.providers[ref.Provider]
	if !ok {
		return "", fmt.Errorf("provider %q is not registered", ref.Provider)
	}

	r.logger.Debug("llm call",
		"provider", ref.Provider,
		"model", ref.Model,
		"tier", req.Tier,
		"json_mode", req.JSONMode,
	)

	text, err := p.Generate(ctx, ref.Model, req)
	if err != nil {
		return "", fmt.Errorf("%s generate: %w", ref.Provider, err)
	}
	return text, nil
}
