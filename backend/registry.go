package backend

import (
	"context"
	"net/http"
	"sort"
	"sync"

	"golang.org/x/oauth2"

	"vibetodo/internal/credentials"
)

// InteractiveLogin obtains a fresh token by involving the user, for example
// through a browser redirect or a device-code prompt.
type InteractiveLogin func(ctx context.Context, cfg *oauth2.Config) (*oauth2.Token, error)

// Deps carries the collaborators a backend constructor may need. Any field
// may be nil; constructors fall back to sensible defaults.
type Deps struct {
	Settings    SettingsWriter
	Credentials *credentials.Manager
	Login       InteractiveLogin
	HTTPClient  *http.Client
}

// Constructor builds a backend from its settings bag.
// It must return a *ConfigurationError before touching the network when a
// required setting is missing.
type Constructor func(ctx context.Context, settings Settings, deps Deps) (Backend, error)

type registration struct {
	constructor Constructor
	description string
	priority    int
}

// Global registry of backend constructors
var (
	registryMu    sync.RWMutex
	registrations = make(map[string]registration)
)

// Register registers a backend constructor under name.
// Backends should call this in their init() function.
func Register(name, description string, constructor Constructor) {
	RegisterWithPriority(name, description, constructor, 100)
}

// RegisterWithPriority registers a backend constructor with a listing priority.
// Lower numbers are listed first.
func RegisterWithPriority(name, description string, constructor Constructor, priority int) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registrations[name] = registration{
		constructor: constructor,
		description: description,
		priority:    priority,
	}
}

// Lookup returns the constructor registered under name.
func Lookup(name string) (Constructor, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	reg, ok := registrations[name]
	return reg.constructor, ok
}

// Registered describes one registered backend
type Registered struct {
	Name        string
	Description string
}

// RegisteredBackends returns all registered backends ordered by priority, then name.
func RegisteredBackends() []Registered {
	registryMu.RLock()
	type entry struct {
		Registered
		priority int
	}
	entries := make([]entry, 0, len(registrations))
	for name, reg := range registrations {
		entries = append(entries, entry{Registered{name, reg.description}, reg.priority})
	}
	registryMu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].priority != entries[j].priority {
			return entries[i].priority < entries[j].priority
		}
		return entries[i].Name < entries[j].Name
	})

	result := make([]Registered, len(entries))
	for i, e := range entries {
		result[i] = e.Registered
	}
	return result
}

// ClearRegistry removes all registered constructors.
// This is primarily used for testing.
func ClearRegistry() {
	registryMu.Lock()
	defer registryMu.Unlock()
	registrations = make(map[string]registration)
}
