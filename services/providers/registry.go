package providers

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

var (
	// ErrProviderNotFound is returned when a provider is not registered
	ErrProviderNotFound = errors.New("provider not found")

	// ErrProviderAlreadyRegistered is returned when trying to register a duplicate provider
	ErrProviderAlreadyRegistered = errors.New("provider already registered")
)

// Route names the provider variant and model a request is sent to
type Route struct {
	Provider string
	Model    string
}

// PrefixRule maps model names starting with Prefix to Provider
type PrefixRule struct {
	Prefix   string
	Provider string
}

// DefaultRules is the built-in model-name convention
func DefaultRules() []PrefixRule {
	return []PrefixRule{
		{Prefix: "gpt", Provider: "openai"},
		{Prefix: "claude", Provider: "anthropic"},
		{Prefix: "gemini", Provider: "gemini"},
	}
}

// Select maps a model name to a route. The longest matching prefix wins;
// names no rule matches go to fallback, model included.
func Select(model string, rules []PrefixRule, fallback Route) Route {
	best := -1
	for i, r := range rules {
		if r.Prefix == "" || !strings.HasPrefix(model, r.Prefix) {
			continue
		}
		if best < 0 || len(r.Prefix) > len(rules[best].Prefix) {
			best = i
		}
	}
	if best < 0 {
		return fallback
	}
	return Route{Provider: rules[best].Provider, Model: model}
}

// Registry manages provider instances and model-name routing
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
	rules     []PrefixRule
	fallback  Route
}

// NewRegistry creates a registry that routes unknown models to fallback
func NewRegistry(rules []PrefixRule, fallback Route) *Registry {
	if rules == nil {
		rules = DefaultRules()
	}
	return &Registry{
		providers: make(map[string]Provider),
		rules:     rules,
		fallback:  fallback,
	}
}

// RegisterProvider registers a provider instance
func (r *Registry) RegisterProvider(provider Provider) error {
	if provider == nil {
		return errors.New("provider cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	name := provider.Name()
	if name == "" {
		return errors.New("provider name cannot be empty")
	}
	if _, exists := r.providers[name]; exists {
		return ErrProviderAlreadyRegistered
	}

	r.providers[name] = provider
	return nil
}

// GetProvider retrieves a provider by name
func (r *Registry) GetProvider(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	provider, exists := r.providers[name]
	if !exists {
		return nil, ErrProviderNotFound
	}
	return provider, nil
}

// Resolve selects the route for model and returns the registered provider
// serving it
func (r *Registry) Resolve(model string) (Provider, Route, error) {
	route := Select(model, r.rules, r.fallback)

	provider, err := r.GetProvider(route.Provider)
	if err != nil {
		return nil, route, fmt.Errorf("model %q routes to %q: %w", model, route.Provider, err)
	}
	return provider, route, nil
}

// Fallback returns the route used for unrecognized model names
func (r *Registry) Fallback() Route {
	return r.fallback
}

// ListProviders returns all registered provider names, sorted
func (r *Registry) ListProviders() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ListModels returns all models across registered providers, sorted
func (r *Registry) ListModels() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var models []string
	for _, p := range r.providers {
		models = append(models, p.ListModels()...)
	}
	sort.Strings(models)
	return models
}
