package adapters

import (
	"net/http"
	"strings"
	"sync"
)

// Registry maps providers to their adapters.
type Registry struct {
	mu       sync.RWMutex
	adapters map[Provider]Adapter
}

// NewRegistry creates a registry with the built-in adapters registered.
func NewRegistry() *Registry {
	r := &Registry{adapters: make(map[Provider]Adapter)}
	r.Register(NewAnthropicAdapter())
	r.Register(NewOpenAIAdapter())
	// Bedrock speaks the Anthropic Messages shape for Claude models.
	r.RegisterAs(ProviderBedrock, NewAnthropicAdapter())
	return r
}

// Register adds an adapter under its own provider key.
func (r *Registry) Register(a Adapter) {
	r.RegisterAs(a.Provider(), a)
}

// RegisterAs adds an adapter under an explicit provider key.
func (r *Registry) RegisterAs(p Provider, a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[p] = a
}

// Get returns the adapter for a provider, nil if unregistered.
func (r *Registry) Get(p Provider) Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.adapters[p]
}

// IdentifyAndGetAdapter determines the provider from the request and returns
// its adapter - SINGLE entry point for provider detection. An explicit
// X-Target-Provider header wins; otherwise the request path and the
// anthropic-version header decide.
func IdentifyAndGetAdapter(r *Registry, path string, header http.Header) (Provider, Adapter) {
	if h := header.Get("X-Target-Provider"); h != "" {
		p := ProviderFromString(h)
		return p, r.Get(p)
	}

	if header.Get("anthropic-version") != "" {
		return ProviderAnthropic, r.Get(ProviderAnthropic)
	}

	switch {
	case strings.HasPrefix(path, "/v1/messages"):
		return ProviderAnthropic, r.Get(ProviderAnthropic)
	case strings.HasPrefix(path, "/v1/chat/completions"),
		strings.HasPrefix(path, "/chat/completions"),
		strings.HasPrefix(path, "/v1/completions"),
		strings.HasPrefix(path, "/completions"):
		return ProviderOpenAI, r.Get(ProviderOpenAI)
	case strings.HasPrefix(path, "/model/"):
		// Bedrock runtime paths: /model/<id>/invoke or /model/<id>/converse
		return ProviderBedrock, r.Get(ProviderBedrock)
	}

	return ProviderUnknown, nil
}
