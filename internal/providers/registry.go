package providers

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/hicap-oss/claude-code-router/internal/config"
	"github.com/hicap-oss/claude-code-router/internal/llm"
	"github.com/hicap-oss/claude-code-router/internal/transformer"
)

// Entry is one configured upstream together with its transformer chain.
type Entry struct {
	Provider *llm.Provider
	Chain    transformer.Chain
}

// Registry holds the configured providers. It is read-only once built.
type Registry struct {
	entries map[string]*Entry
}

func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]*Entry),
	}
}

// NewFromConfig builds an entry for every configured provider.
func NewFromConfig(cfg *config.Config, transformers *transformer.Registry) (*Registry, error) {
	r := NewRegistry()

	for _, pc := range cfg.Providers {
		entry, err := buildEntry(pc, transformers)
		if err != nil {
			return nil, fmt.Errorf("provider %q: %w", pc.Name, err)
		}
		r.Register(entry)
	}

	return r, nil
}

func buildEntry(pc config.Provider, transformers *transformer.Registry) (*Entry, error) {
	stages, err := transformers.Build(toSpecs(pc.Transformers))
	if err != nil {
		return nil, err
	}

	auth, err := authStage(pc, stages, transformers)
	if err != nil {
		return nil, err
	}

	order := transformer.OrderReverse
	if pc.ResponseOrder == string(transformer.OrderForward) {
		order = transformer.OrderForward
	}

	models := make([]string, len(pc.Models))
	copy(models, pc.Models)

	return &Entry{
		Provider: &llm.Provider{
			Name:         pc.Name,
			BaseURL:      pc.APIBase,
			APIKey:       pc.APIKey,
			Models:       models,
			DefaultModel: pc.DefaultModel,
		},
		Chain: transformer.Chain{
			Stages:        stages,
			Auth:          []transformer.Transformer{auth},
			ResponseOrder: order,
		},
	}, nil
}

// authStage picks the one auth strategy of a provider: the configured auth
// transformer, else the last configured stage with an auth capability, else
// the default for the base URL domain.
func authStage(pc config.Provider, stages []transformer.Transformer, transformers *transformer.Registry) (transformer.Transformer, error) {
	if pc.Auth != nil {
		return transformers.Get(transformer.Spec{Name: pc.Auth.Name, Options: pc.Auth.Options})
	}

	for i := len(stages) - 1; i >= 0; i-- {
		if _, ok := stages[i].(transformer.AuthTransformer); ok {
			return stages[i], nil
		}
	}

	name, err := DefaultAuthForURL(pc.APIBase)
	if err != nil {
		return nil, err
	}

	return transformers.Get(transformer.Spec{Name: name})
}

func toSpecs(in []config.TransformerSpec) []transformer.Spec {
	specs := make([]transformer.Spec, len(in))
	for i, s := range in {
		specs[i] = transformer.Spec{Name: s.Name, Options: s.Options}
	}
	return specs
}

// Register adds an entry keyed by its provider name
func (r *Registry) Register(entry *Entry) {
	r.entries[entry.Provider.Name] = entry
}

// Get retrieves an entry by provider name
func (r *Registry) Get(name string) (*Entry, bool) {
	entry, exists := r.entries[name]
	return entry, exists
}

// Resolve maps a route of the form "provider,model" or "model" to an entry
// and the bare model name. A bare model picks the first provider, by name,
// that lists it.
func (r *Registry) Resolve(route string) (*Entry, string, error) {
	parts := strings.SplitN(route, ",", 2)

	if len(parts) == 2 {
		name, model := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])

		entry, ok := r.Get(name)
		if !ok {
			return nil, "", fmt.Errorf("provider '%s' not found in configuration", name)
		}
		if model == "" {
			model = entry.Provider.DefaultModel
		}
		return entry, model, nil
	}

	model := strings.TrimSpace(route)
	for _, name := range r.List() {
		entry := r.entries[name]
		if len(entry.Provider.Models) > 0 && entry.Provider.HasModel(model) {
			return entry, model, nil
		}
	}

	return nil, "", fmt.Errorf("no provider configured for model '%s'", model)
}

// List returns all registered provider names
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultAuthForURL picks the auth transformer for providers that do not
// configure one, based on the API base URL domain.
func DefaultAuthForURL(apiBase string) (string, error) {
	u, err := url.Parse(apiBase)
	if err != nil {
		return "", fmt.Errorf("invalid API base URL: %w", err)
	}

	domain := strings.ToLower(u.Hostname())

	domainAuthMap := map[string]string{
		"api.anthropic.com":                 transformer.XAPIKeyName,
		"anthropic.com":                     transformer.XAPIKeyName,
		"openrouter.ai":                     transformer.BearerName,
		"api.openrouter.ai":                 transformer.BearerName,
		"api.openai.com":                    transformer.BearerName,
		"integrate.api.nvidia.com":          transformer.BearerName,
		"api.deepseek.com":                  transformer.BearerName,
		"generativelanguage.googleapis.com": transformer.BearerName,
	}

	if name, exists := domainAuthMap[domain]; exists {
		return name, nil
	}

	return transformer.BearerName, nil
}
