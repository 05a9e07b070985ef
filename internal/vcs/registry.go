package vcs

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// DefaultPlatform is the hosting platform used when none is configured.
const DefaultPlatform = "github"

// ErrUnknownPlatform is returned by Open for a platform nobody registered.
var ErrUnknownPlatform = errors.New("vcs: unknown platform")

// Connection carries what a platform client needs to reach its API.
type Connection struct {
	Platform string
	Token    string
	// BaseURL is the REST root; empty selects the public endpoint.
	BaseURL string
	Timeout time.Duration
}

func (c Connection) platform() string {
	if p := strings.ToLower(strings.TrimSpace(c.Platform)); p != "" {
		return p
	}
	return DefaultPlatform
}

// Factory builds a Provider for one platform.
type Factory func(conn Connection) (Provider, error)

// Registry maps platform names to factories. Safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

var platforms = NewRegistry()

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{factories: map[string]Factory{}}
}

// Register binds a factory to a platform name. Registering the same name
// twice is a programming error and panics.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name = strings.ToLower(name)
	if _, dup := r.factories[name]; dup {
		panic(fmt.Sprintf("vcs: platform %q registered twice", name))
	}
	r.factories[name] = f
}

// Open builds the client for conn.Platform.
func (r *Registry) Open(conn Connection) (Provider, error) {
	name := conn.platform()

	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w %q (known: %s)", ErrUnknownPlatform, name, strings.Join(r.Names(), ", "))
	}

	p, err := f(conn)
	if err != nil {
		return nil, fmt.Errorf("vcs: open %s: %w", name, err)
	}
	return p, nil
}

// Names lists the registered platforms, sorted.
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

// Register adds a platform to the process-wide registry.
func Register(name string, f Factory) { platforms.Register(name, f) }

// Open builds a client from the process-wide registry.
func Open(conn Connection) (Provider, error) { return platforms.Open(conn) }

// Names lists the platforms of the process-wide registry.
func Names() []string { return platforms.Names() }
