package transformer

import (
	"fmt"
	"sort"
	"sync"
)

// Factory builds a transformer from its configured options.
type Factory func(opts map[string]any) (Transformer, error)

// Spec names a transformer and its options, as written in the configuration.
type Spec struct {
	Name    string
	Options map[string]any
}

// Registry maps transformer names to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// DefaultRegistry returns a registry holding every built-in transformer.
func DefaultRegistry() *Registry {
	r := NewRegistry()

	r.Register(HicapName, func(map[string]any) (Transformer, error) {
		return NewHicap(), nil
	})
	r.Register(BearerName, func(map[string]any) (Transformer, error) {
		return NewBearer(), nil
	})
	r.Register(XAPIKeyName, func(opts map[string]any) (Transformer, error) {
		version, err := stringOption(opts, "version")
		if err != nil {
			return nil, err
		}
		return NewXAPIKey(version), nil
	})
	r.Register(CleanCacheName, func(map[string]any) (Transformer, error) {
		return NewCleanCache(), nil
	})
	r.Register(MaxTokenName, func(opts map[string]any) (Transformer, error) {
		limit, err := intOption(opts, "max_tokens")
		if err != nil {
			return nil, err
		}
		return NewMaxToken(limit)
	})
	r.Register(UsageName, func(opts map[string]any) (Transformer, error) {
		strict, err := boolOption(opts, "strict")
		if err != nil {
			return nil, err
		}
		return NewUsage(strict), nil
	})

	return r
}

// Register adds a factory. Registering a name twice panics.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[name]; exists {
		panic(fmt.Sprintf("transformer %q already registered", name))
	}
	r.factories[name] = f
}

// Get builds the named transformer.
func (r *Registry) Get(spec Spec) (Transformer, error) {
	r.mu.RLock()
	f, exists := r.factories[spec.Name]
	r.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("unknown transformer %q", spec.Name)
	}

	t, err := f(spec.Options)
	if err != nil {
		return nil, fmt.Errorf("transformer %q: %w", spec.Name, err)
	}

	return t, nil
}

// Build resolves a configured list of transformers in order.
func (r *Registry) Build(specs []Spec) ([]Transformer, error) {
	out := make([]Transformer, 0, len(specs))
	for _, spec := range specs {
		t, err := r.Get(spec)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// List returns the registered names in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

func stringOption(opts map[string]any, key string) (string, error) {
	v, ok := opts[key]
	if !ok || v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("option %s: want string, got %T", key, v)
	}
	return s, nil
}

func intOption(opts map[string]any, key string) (int, error) {
	switch v := opts[key].(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	case nil:
		return 0, fmt.Errorf("option %s is required", key)
	default:
		return 0, fmt.Errorf("option %s: want number, got %T", key, v)
	}
}

func boolOption(opts map[string]any, key string) (bool, error) {
	switch v := opts[key].(type) {
	case bool:
		return v, nil
	case nil:
		return false, nil
	default:
		return false, fmt.Errorf("option %s: want bool, got %T", key, v)
	}
}
