// Package registry holds named component factories grouped by kind.
//
// A Kind carries the component's interface type, so registering a factory
// that does not produce that interface fails to compile:
//
//	var Hydrators = registry.NewKind[hydrator.Hydrator]("hydrator")
//
//	registry.Register(r, Hydrators, "widget", func() (hydrator.Hydrator, error) {
//		return hydrator.NewFieldHydrator(nil, nil), nil
//	})
//	h, err := registry.Get(r, Hydrators, "widget")
package registry

import (
	"fmt"
	"sort"
	"sync"
)

// Kind identifies a component family whose members implement T.
type Kind[T any] struct {
	name string
}

// NewKind declares a component kind.
func NewKind[T any](name string) Kind[T] {
	return Kind[T]{name: name}
}

// Name returns the kind's name, e.g. "query_provider".
func (k Kind[T]) Name() string { return k.name }

// Factory builds a fresh component.
type Factory[T any] func() (T, error)

type key struct {
	kind string
	name string
}

// Registry maps (kind, name) to a factory. It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[key]func() (any, error)
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		factories: make(map[key]func() (any, error)),
	}
}

// Register adds or replaces the factory for name under kind.
func Register[T any](r *Registry, kind Kind[T], name string, factory Factory[T]) error {
	if name == "" {
		return fmt.Errorf("registering %s: name cannot be empty", kind.name)
	}
	if factory == nil {
		return fmt.Errorf("registering %s %q: factory cannot be nil", kind.name, name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.factories[key{kind.name, name}] = func() (any, error) {
		return factory()
	}
	return nil
}

// Get builds the component registered as name under kind.
// A missing registration yields *NotFoundError.
func Get[T any](r *Registry, kind Kind[T], name string) (T, error) {
	var zero T

	r.mu.RLock()
	factory, ok := r.factories[key{kind.name, name}]
	r.mu.RUnlock()

	if !ok {
		return zero, &NotFoundError{Kind: kind.name, Name: name}
	}

	v, err := factory()
	if err != nil {
		return zero, fmt.Errorf("building %s %q: %w", kind.name, name, err)
	}
	out, _ := v.(T)
	return out, nil
}

// Has reports whether name is registered under kind.
func Has[T any](r *Registry, kind Kind[T], name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[key{kind.name, name}]
	return ok
}

// Names returns the registered names of kind in sorted order.
func Names[T any](r *Registry, kind Kind[T]) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var names []string
	for k := range r.factories {
		if k.kind == kind.name {
			names = append(names, k.name)
		}
	}
	sort.Strings(names)
	return names
}

// NotFoundError is returned when no factory is registered for a name.
type NotFoundError struct {
	Kind string
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no %s registered as %q", e.Kind, e.Name)
}

// Hint returns a user-friendly suggestion for resolving this error.
func (e *NotFoundError) Hint() string {
	return fmt.Sprintf("Declare %q in the %ss configuration section or register it before assembling.", e.Name, e.Kind)
}
