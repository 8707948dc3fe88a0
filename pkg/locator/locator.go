// Package locator provides a named service container.
//
// Services are registered either as ready instances or as factories. The
// first Get of a factory builds the instance and later calls return the same
// value. Aliases point one name at another.
package locator

import (
	"fmt"
	"sort"
	"sync"
)

// Locator resolves services by name.
type Locator interface {
	Has(name string) bool
	Get(name string) (any, error)
}

// Factory builds a service. It receives the locator so it can pull its own
// dependencies.
type Factory func(l Locator) (any, error)

const maxAliasDepth = 32

// ServiceManager is the default Locator. It is safe for concurrent use.
type ServiceManager struct {
	mu        sync.RWMutex
	services  map[string]any
	factories map[string]Factory
	aliases   map[string]string
}

var _ Locator = (*ServiceManager)(nil)

// NewServiceManager creates an empty ServiceManager.
func NewServiceManager() *ServiceManager {
	return &ServiceManager{
		services:  make(map[string]any),
		factories: make(map[string]Factory),
		aliases:   make(map[string]string),
	}
}

// SetService registers a ready instance under name, replacing any previous
// registration.
func (m *ServiceManager) SetService(name string, service any) error {
	if name == "" {
		return ErrEmptyName
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.factories, name)
	delete(m.aliases, name)
	m.services[name] = service
	return nil
}

// SetFactory registers a factory under name. Any cached instance for name is
// discarded.
func (m *ServiceManager) SetFactory(name string, factory Factory) error {
	if name == "" {
		return ErrEmptyName
	}
	if factory == nil {
		return ErrNilFactory
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.services, name)
	delete(m.aliases, name)
	m.factories[name] = factory
	return nil
}

// SetAlias makes alias resolve to target.
func (m *ServiceManager) SetAlias(alias, target string) error {
	if alias == "" || target == "" {
		return ErrEmptyName
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.aliases[alias] = target
	return nil
}

// Has reports whether name can be resolved. It never builds the service.
func (m *ServiceManager) Has(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	resolved, err := m.resolveAlias(name)
	if err != nil {
		return false
	}
	if _, ok := m.services[resolved]; ok {
		return true
	}
	_, ok := m.factories[resolved]
	return ok
}

// Get returns the service registered under name, building it through its
// factory when needed. Factory errors are wrapped with the service name.
func (m *ServiceManager) Get(name string) (any, error) {
	m.mu.RLock()
	resolved, err := m.resolveAlias(name)
	if err != nil {
		m.mu.RUnlock()
		return nil, err
	}
	if svc, ok := m.services[resolved]; ok {
		m.mu.RUnlock()
		return svc, nil
	}
	factory, ok := m.factories[resolved]
	m.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	// The factory runs unlocked so it may call back into the manager.
	svc, err := factory(m)
	if err != nil {
		return nil, fmt.Errorf("creating service %q: %w", resolved, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.services[resolved]; ok {
		return existing, nil
	}
	m.services[resolved] = svc
	return svc, nil
}

// Names returns every registered name, aliases included, in sorted order.
func (m *ServiceManager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[string]struct{}, len(m.services)+len(m.factories)+len(m.aliases))
	for name := range m.services {
		seen[name] = struct{}{}
	}
	for name := range m.factories {
		seen[name] = struct{}{}
	}
	for name := range m.aliases {
		seen[name] = struct{}{}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Instances returns the instances built so far, keyed by name. Pending
// factories are not invoked.
func (m *ServiceManager) Instances() map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]any, len(m.services))
	for name, svc := range m.services {
		out[name] = svc
	}
	return out
}

// resolveAlias follows the alias chain. Caller must hold m.mu.
func (m *ServiceManager) resolveAlias(name string) (string, error) {
	current := name
	for range maxAliasDepth {
		target, ok := m.aliases[current]
		if !ok {
			return current, nil
		}
		if target == name {
			return "", fmt.Errorf("%w: %s", ErrAliasCycle, name)
		}
		current = target
	}
	return "", fmt.Errorf("%w: %s", ErrAliasCycle, name)
}
