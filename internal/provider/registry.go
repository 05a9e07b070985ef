package provider

import (
	"fmt"
	"sort"
	"sync"

	"github.com/spf13/viper"
)

// ---------------------------------------------------------------------------
// Provider factory
// ---------------------------------------------------------------------------

// Factory builds an AIProvider from the provider's configuration block,
// for example the subtree below providers.openai:
//
//	providers:
//	  openai:
//	    api_key: sk-...
//	    model: gpt-4o
//
// Factories must not perform network calls; Validate does that.
type Factory func(v *viper.Viper) (AIProvider, error)

// ---------------------------------------------------------------------------
// Registry
// ---------------------------------------------------------------------------

// Registry maps provider names to factories. Backends register themselves
// from init() and the CLI resolves them by name.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

var globalRegistry = NewRegistry()

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory under name. Registering a name twice panics.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[name]; exists {
		panic(fmt.Sprintf("provider: factory already registered for %q", name))
	}
	r.factories[name] = f
}

// Get builds the provider registered under name.
func (r *Registry) Get(name string, v *viper.Viper) (AIProvider, error) {
	r.mu.RLock()
	f, exists := r.factories[name]
	r.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("provider: unknown provider %q (registered: %v)", name, r.Names())
	}
	if v == nil {
		v = viper.New()
	}
	return f(v)
}

// Names returns the registered names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for n := range r.factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ---------------------------------------------------------------------------
// Package-level helpers on the global registry
// ---------------------------------------------------------------------------

// Register adds a factory to the global registry.
func Register(name string, f Factory) {
	globalRegistry.Register(name, f)
}

// Get resolves a provider from the global registry.
func Get(name string, v *viper.Viper) (AIProvider, error) {
	return globalRegistry.Get(name, v)
}

// Names lists the providers of the global registry.
func Names() []string {
	return globalRegistry.Names()
}

// New resolves pc against the global registry.
func New(pc ProviderConfig) (AIProvider, error) {
	return Get(pc.Name, pc.Viper)
}
