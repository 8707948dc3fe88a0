// Package event carries resource operations through attached listeners.
//
// Every resource operation triggers "<op>.pre" before touching the object
// manager and "<op>.post" afterwards. Listeners run in attach order and the
// first error aborts the operation.
package event

import (
	"context"
	"fmt"
	"sync"
)

// Operation names.
const (
	OpFetch    = "fetch"
	OpFetchAll = "fetch_all"
	OpCreate   = "create"
	OpDelete   = "delete"
)

// Pre returns the name of the event fired before op.
func Pre(op string) string { return op + ".pre" }

// Post returns the name of the event fired after op.
func Post(op string) string { return op + ".post" }

// Event describes one resource operation.
type Event struct {
	Name        string
	Operation   string
	Resource    string
	EntityClass string
	// ID is the identifier for single-entity operations.
	ID string
	// Params are the collection query parameters.
	Params map[string]string
	// Data is the incoming payload for create, or the result after a read.
	Data map[string]any
	// Token is the caller's bearer token, if any.
	Token string
	// Identity holds the validated token claims, set by the first component
	// that validates Token.
	Identity map[string]any
}

// WithName returns a shallow copy of e renamed to name.
func (e *Event) WithName(name string) *Event {
	c := *e
	c.Name = name
	return &c
}

// Param returns the named query parameter.
func (e *Event) Param(name string) string {
	if e == nil || e.Params == nil {
		return ""
	}
	return e.Params[name]
}

// Listener reacts to events.
type Listener interface {
	Handle(ctx context.Context, e *Event) error
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(ctx context.Context, e *Event) error

// Handle calls f.
func (f ListenerFunc) Handle(ctx context.Context, e *Event) error { return f(ctx, e) }

// Manager holds listeners in attach order. It is safe for concurrent use.
type Manager struct {
	mu        sync.RWMutex
	listeners []Listener
}

// NewManager creates an empty Manager.
func NewManager() *Manager {
	return &Manager{}
}

// Attach appends l.
func (m *Manager) Attach(l Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, l)
}

// Listeners returns the attached listeners in order.
func (m *Manager) Listeners() []Listener {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Listener, len(m.listeners))
	copy(out, m.listeners)
	return out
}

// Trigger runs every listener in order and stops at the first error.
func (m *Manager) Trigger(ctx context.Context, e *Event) error {
	for i, l := range m.Listeners() {
		if err := l.Handle(ctx, e); err != nil {
			return &ListenerError{Event: e.Name, Index: i, Err: err}
		}
	}
	return nil
}

// ListenerError wraps the error returned by a listener.
type ListenerError struct {
	Event string
	Index int
	Err   error
}

func (e *ListenerError) Error() string {
	return fmt.Sprintf("listener %d rejected %s: %v", e.Index, e.Event, e.Err)
}

func (e *ListenerError) Unwrap() error { return e.Err }
