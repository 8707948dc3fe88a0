// Package resource implements the connected REST resource: a resource whose
// reads go through query providers and whose writes go through a create
// filter, an optional hydrator and the object manager.
package resource

import (
	"context"

	"github.com/getmockd/restwire/pkg/event"
	"github.com/getmockd/restwire/pkg/hydrator"
	"github.com/getmockd/restwire/pkg/persistence"
	"github.com/getmockd/restwire/pkg/query"
)

// DefaultIdentifierName is used by operations when no identifier field was
// configured.
const DefaultIdentifierName = "id"

// Resource is the capability every registered resource type must provide so
// the assembler can inject its collaborators.
type Resource interface {
	SetName(name string)
	SetEntityClass(entityClass string)
	SetObjectManager(om persistence.ObjectManager)
	SetHydrator(h hydrator.Hydrator)
	SetQueryProviders(providers map[string]query.Provider)
	SetQueryCreateFilter(f query.CreateFilter)
	SetEntityIdentifierName(name string)
	Events() *event.Manager

	Name() string
	EntityClass() string
	ObjectManager() persistence.ObjectManager
	Hydrator() hydrator.Hydrator
	QueryProviders() map[string]query.Provider
	QueryCreateFilter() query.CreateFilter
	EntityIdentifierName() string
}

type tokenKey struct{}

// WithToken attaches the caller's bearer token to ctx.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

// TokenFrom returns the bearer token attached with WithToken.
func TokenFrom(ctx context.Context) string {
	token, _ := ctx.Value(tokenKey{}).(string)
	return token
}
