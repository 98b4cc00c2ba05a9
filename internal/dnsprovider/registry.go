package dnsprovider

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Factory builds a Backend for one set of credentials.
type Factory func(logger *zap.Logger, creds Credentials) (Backend, error)

var (
	mu        sync.Mutex
	factories = make(map[string]Factory)
)

// Register is called by backend packages in their init() to self-register.
func Register(name string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	if _, exists := factories[name]; exists {
		panic(fmt.Sprintf("dnsprovider: backend %q already registered", name))
	}
	factories[name] = f
}

// Registered reports whether a backend is registered under name.
func Registered(name string) bool {
	mu.Lock()
	defer mu.Unlock()
	_, ok := factories[name]
	return ok
}

// Names returns the registered backend names, sorted.
func Names() []string {
	mu.Lock()
	defer mu.Unlock()
	names := make([]string, 0, len(factories))
	for n := range factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// New builds the backend named by creds.Provider.
func New(logger *zap.Logger, creds Credentials) (Backend, error) {
	mu.Lock()
	f, ok := factories[creds.Provider]
	mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%q (registered: %v): %w", creds.Provider, Names(), ErrUnknownProvider)
	}
	return f(logger, creds)
}
