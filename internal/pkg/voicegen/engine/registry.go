package engine

import (
	"fmt"
	"sort"
	"sync"
)

type LoaderFactory func(cfg Config) (Loader, error)

type TagAwareFactory func(cfg Config) (TagAwareProvider, error)

var (
	registryMu       sync.RWMutex
	loaders          = make(map[string]LoaderFactory)
	tagAwareRegistry = make(map[string]TagAwareFactory)
)

// Register makes a loader backend available by name. It panics if called
// twice for the same name or with a nil factory.
func Register(name string, factory LoaderFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if factory == nil {
		panic("engine: Register factory is nil")
	}
	if _, dup := loaders[name]; dup {
		panic("engine: Register called twice for " + name)
	}
	loaders[name] = factory
}

func RegisterTagAware(name string, factory TagAwareFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if factory == nil {
		panic("engine: RegisterTagAware factory is nil")
	}
	if _, dup := tagAwareRegistry[name]; dup {
		panic("engine: RegisterTagAware called twice for " + name)
	}
	tagAwareRegistry[name] = factory
}

func New(name string, cfg Config) (Loader, error) {
	registryMu.RLock()
	factory, ok := loaders[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("engine: unknown backend %q (registered: %v)", name, ListBackends())
	}
	return factory(cfg)
}

func NewTagAware(name string, cfg Config) (TagAwareProvider, error) {
	registryMu.RLock()
	factory, ok := tagAwareRegistry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("engine: unknown tag-aware backend %q", name)
	}
	return factory(cfg)
}

func ListBackends() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(loaders))
	for name := range loaders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func IsRegistered(name string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := loaders[name]
	return ok
}
