// Package query holds the query providers and create filters a connected
// resource consults.
//
// A provider builds the base query for an operation; a create filter vets
// and reshapes payloads before they are persisted. Both receive the
// resource's object manager and, when an authorization server is available,
// its Authorizer.
package query

import (
	"context"
	"errors"
	"fmt"

	"github.com/getmockd/restwire/pkg/auth"
	"github.com/getmockd/restwire/pkg/event"
	"github.com/getmockd/restwire/pkg/persistence"
)

// Builtin provider aliases.
const (
	AliasDefaultORM  = "default_orm"
	AliasDefaultODM  = "default_odm"
	AliasOwnerScoped = "owner_scoped"
)

// Provider map keys. KeyDefault is always present on an assembled resource.
const (
	KeyDefault  = "default"
	KeyFetch    = event.OpFetch
	KeyFetchAll = event.OpFetchAll
	KeyDelete   = event.OpDelete
)

// ErrUnauthorized is returned when a query needs an identity that cannot be
// established.
var ErrUnauthorized = errors.New("unauthorized")

// Collaborators is implemented by every provider and filter.
type Collaborators interface {
	SetObjectManager(om persistence.ObjectManager)
	SetAuthorizer(a auth.Authorizer)
	ObjectManager() persistence.ObjectManager
	Authorizer() auth.Authorizer
}

// Provider builds the base query for an operation.
type Provider interface {
	Collaborators
	CreateQuery(ctx context.Context, e *event.Event, entityClass string, params map[string]string) (persistence.QueryBuilder, error)
}

// Base stores the injected collaborators. Embed it to satisfy Collaborators.
type Base struct {
	om         persistence.ObjectManager
	authorizer auth.Authorizer
}

// SetObjectManager injects the object manager.
func (b *Base) SetObjectManager(om persistence.ObjectManager) { b.om = om }

// SetAuthorizer injects the authorization collaborator.
func (b *Base) SetAuthorizer(a auth.Authorizer) { b.authorizer = a }

// ObjectManager returns the injected object manager, or nil.
func (b *Base) ObjectManager() persistence.ObjectManager { return b.om }

// Authorizer returns the injected authorizer, or nil.
func (b *Base) Authorizer() auth.Authorizer { return b.authorizer }

// DefaultORM selects every row of the entity from an EntityManager.
type DefaultORM struct{ Base }

// CreateQuery returns "select row from <entityClass> row".
func (p *DefaultORM) CreateQuery(_ context.Context, _ *event.Event, entityClass string, _ map[string]string) (persistence.QueryBuilder, error) {
	em, ok := p.om.(*persistence.EntityManager)
	if !ok {
		return nil, fmt.Errorf("%s requires an entity manager, got %T", AliasDefaultORM, p.om)
	}
	return em.CreateQueryBuilder().Select("row").From(entityClass, "row"), nil
}

// DefaultODM selects the whole collection from a DocumentManager.
type DefaultODM struct{ Base }

// CreateQuery returns a query over the entity's collection.
func (p *DefaultODM) CreateQuery(_ context.Context, _ *event.Event, entityClass string, _ map[string]string) (persistence.QueryBuilder, error) {
	dm, ok := p.om.(*persistence.DocumentManager)
	if !ok {
		return nil, fmt.Errorf("%s requires a document manager, got %T", AliasDefaultODM, p.om)
	}
	return dm.CreateQueryBuilder(entityClass), nil
}

// OwnerScoped restricts results to records owned by the caller. The owner is
// read from a token claim, so the provider fails closed without an
// authorizer or a valid token.
type OwnerScoped struct {
	Base
	// Field is the record field holding the owner. Defaults to "owner".
	Field string
	// Claim is the token claim compared to Field. Defaults to "sub".
	Claim string
}

// CreateQuery returns the object manager's base query narrowed to the caller.
func (p *OwnerScoped) CreateQuery(_ context.Context, e *event.Event, entityClass string, _ map[string]string) (persistence.QueryBuilder, error) {
	field, claim := p.Field, p.Claim
	if field == "" {
		field = "owner"
	}
	if claim == "" {
		claim = "sub"
	}

	claims, err := Identity(e, p.authorizer)
	if err != nil {
		return nil, err
	}
	owner, ok := claims[claim]
	if !ok || owner == nil || owner == "" {
		return nil, fmt.Errorf("%w: token has no %q claim", ErrUnauthorized, claim)
	}

	var qb persistence.QueryBuilder
	switch om := p.om.(type) {
	case *persistence.EntityManager:
		qb = om.CreateQueryBuilder().Select("row").From(entityClass, "row")
	case *persistence.DocumentManager:
		qb = om.CreateQueryBuilder(entityClass)
	default:
		return nil, fmt.Errorf("%s: unsupported object manager %T", AliasOwnerScoped, p.om)
	}
	return qb.Where(field, owner), nil
}

// Identity returns the caller's validated claims, validating e.Token with a
// on first use and caching the result on the event.
func Identity(e *event.Event, a auth.Authorizer) (map[string]any, error) {
	if e == nil {
		return nil, fmt.Errorf("%w: no event", ErrUnauthorized)
	}
	if e.Identity != nil {
		return e.Identity, nil
	}
	if a == nil {
		return nil, fmt.Errorf("%w: no authorization server configured", ErrUnauthorized)
	}
	if e.Token == "" {
		return nil, fmt.Errorf("%w: bearer token required", ErrUnauthorized)
	}
	claims, err := a.ValidateToken(e.Token)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}
	e.Identity = claims
	return claims, nil
}
