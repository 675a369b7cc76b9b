package provider

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Registry maps model-name prefixes to constructed providers. Built once
// in the kernel from config and secrets; reads are concurrent-safe.
type Registry struct {
	mu       sync.RWMutex
	prefixes map[string]Provider
	fallback Provider
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{prefixes: make(map[string]Provider)}
}

// Register binds a model-name prefix (e.g. "claude-", "gpt-", "ollama:")
// to a provider. Later registrations of the same prefix replace earlier
// ones.
func (r *Registry) Register(prefix string, p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prefixes[prefix] = p
}

// SetFallback sets the provider used when no prefix matches.
func (r *Registry) SetFallback(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = p
}

// Get resolves the provider for a model name. The longest matching prefix
// wins, so "claude-code" can shadow "claude-".
func (r *Registry) Get(model string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var best string
	for prefix := range r.prefixes {
		if strings.HasPrefix(model, prefix) && len(prefix) > len(best) {
			best = prefix
		}
	}
	if best != "" {
		return r.prefixes[best], nil
	}
	if r.fallback != nil {
		return r.fallback, nil
	}
	return nil, fmt.Errorf("no provider registered for model %q", model)
}

// Names returns the registered prefixes, sorted, for status reporting.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.prefixes))
	for prefix := range r.prefixes {
		names = append(names, prefix)
	}
	sort.Strings(names)
	return names
}
