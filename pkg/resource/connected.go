package resource

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/getmockd/restwire/pkg/auth"
	"github.com/getmockd/restwire/pkg/event"
	"github.com/getmockd/restwire/pkg/hydrator"
	"github.com/getmockd/restwire/pkg/persistence"
	"github.com/getmockd/restwire/pkg/query"
)

// Collection query parameters.
const (
	ParamLimit  = "limit"
	ParamOffset = "offset"
	ParamSort   = "sort"
	ParamOrder  = "order"
)

// DefaultLimit is the page size when the limit parameter is absent.
const DefaultLimit = 100

// Pagination describes one page of a collection.
type Pagination struct {
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
	Count  int `json:"count"`
}

// Collection is the result of FetchAll.
type Collection struct {
	Data []map[string]any `json:"data"`
	Meta Pagination       `json:"meta"`
}

// ConnectedResource is the default Resource implementation.
type ConnectedResource struct {
	name        string
	entityClass string
	idField     string
	om          persistence.ObjectManager
	hydrator    hydrator.Hydrator
	providers   map[string]query.Provider
	filter      query.CreateFilter
	events      *event.Manager
}

var _ Resource = (*ConnectedResource)(nil)

// NewConnectedResource creates an unwired resource.
func NewConnectedResource() *ConnectedResource {
	return &ConnectedResource{
		providers: make(map[string]query.Provider),
		events:    event.NewManager(),
	}
}

func (r *ConnectedResource) SetName(name string)                           { r.name = name }
func (r *ConnectedResource) SetEntityClass(entityClass string)             { r.entityClass = entityClass }
func (r *ConnectedResource) SetObjectManager(om persistence.ObjectManager) { r.om = om }
func (r *ConnectedResource) SetHydrator(h hydrator.Hydrator)               { r.hydrator = h }
func (r *ConnectedResource) SetQueryCreateFilter(f query.CreateFilter)     { r.filter = f }
func (r *ConnectedResource) SetEntityIdentifierName(name string)           { r.idField = name }

// SetQueryProviders replaces the provider map with a copy of providers.
func (r *ConnectedResource) SetQueryProviders(providers map[string]query.Provider) {
	r.providers = make(map[string]query.Provider, len(providers))
	for k, p := range providers {
		r.providers[k] = p
	}
}

func (r *ConnectedResource) Events() *event.Manager                   { return r.events }
func (r *ConnectedResource) Name() string                             { return r.name }
func (r *ConnectedResource) EntityClass() string                      { return r.entityClass }
func (r *ConnectedResource) ObjectManager() persistence.ObjectManager { return r.om }
func (r *ConnectedResource) Hydrator() hydrator.Hydrator              { return r.hydrator }
func (r *ConnectedResource) QueryCreateFilter() query.CreateFilter    { return r.filter }
func (r *ConnectedResource) EntityIdentifierName() string             { return r.idField }

// QueryProviders returns a copy of the provider map.
func (r *ConnectedResource) QueryProviders() map[string]query.Provider {
	out := make(map[string]query.Provider, len(r.providers))
	for k, p := range r.providers {
		out[k] = p
	}
	return out
}

// Provider returns the provider for op, falling back to the default one.
func (r *ConnectedResource) Provider(op string) (query.Provider, error) {
	if p, ok := r.providers[op]; ok {
		return p, nil
	}
	if p, ok := r.providers[query.KeyDefault]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("resource %q has no query provider for %s", r.name, op)
}

func (r *ConnectedResource) identifier() string {
	if r.idField == "" {
		return DefaultIdentifierName
	}
	return r.idField
}

// newEvent builds the pre event for op. When the caller presented a token and
// an authorizer is injected, the token is validated here so pre listeners see
// the caller's claims; an invalid token fails the operation.
func (r *ConnectedResource) newEvent(ctx context.Context, op string) (*event.Event, error) {
	e := &event.Event{
		Name:        event.Pre(op),
		Operation:   op,
		Resource:    r.name,
		EntityClass: r.entityClass,
		Token:       TokenFrom(ctx),
	}
	if e.Token == "" {
		return e, nil
	}
	if a := r.authorizer(op); a != nil {
		if _, err := query.Identity(e, a); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// authorizer returns the authorization collaborator injected for op. Every
// provider and the create filter share one instance, so the first found wins.
func (r *ConnectedResource) authorizer(op string) auth.Authorizer {
	for _, key := range []string{op, query.KeyDefault} {
		if p, ok := r.providers[key]; ok && p.Authorizer() != nil {
			return p.Authorizer()
		}
	}
	if r.filter != nil {
		return r.filter.Authorizer()
	}
	return nil
}

// Fetch returns one entity through the fetch provider.
func (r *ConnectedResource) Fetch(ctx context.Context, id string) (map[string]any, error) {
	e, err := r.newEvent(ctx, event.OpFetch)
	if err != nil {
		return nil, err
	}
	e.ID = id
	if err := r.events.Trigger(ctx, e); err != nil {
		return nil, err
	}

	record, err := r.find(ctx, query.KeyFetch, e, id)
	if err != nil {
		return nil, err
	}
	out, err := r.extract(record)
	if err != nil {
		return nil, err
	}

	post := e.WithName(event.Post(event.OpFetch))
	post.Data = out
	if err := r.events.Trigger(ctx, post); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *ConnectedResource) find(ctx context.Context, key string, e *event.Event, id string) (map[string]any, error) {
	provider, err := r.Provider(key)
	if err != nil {
		return nil, err
	}
	qb, err := provider.CreateQuery(ctx, e, r.entityClass, nil)
	if err != nil {
		return nil, err
	}
	records, err := qb.Where(r.identifier(), id).Limit(1).Fetch(ctx)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, &NotFoundError{Resource: r.name, ID: id}
	}
	return records[0], nil
}

// FetchAll returns one page of the collection. Recognised params are limit,
// offset, sort and order; the rest are passed to the provider.
func (r *ConnectedResource) FetchAll(ctx context.Context, params map[string]string) (*Collection, error) {
	limit, err := intParam(params, ParamLimit, DefaultLimit)
	if err != nil {
		return nil, err
	}
	offset, err := intParam(params, ParamOffset, 0)
	if err != nil {
		return nil, err
	}
	order := params[ParamOrder]
	if order != "" && order != "asc" && order != "desc" {
		return nil, &ValidationError{Field: ParamOrder, Message: `must be "asc" or "desc"`}
	}

	e, err := r.newEvent(ctx, event.OpFetchAll)
	if err != nil {
		return nil, err
	}
	e.Params = params
	if err := r.events.Trigger(ctx, e); err != nil {
		return nil, err
	}

	provider, err := r.Provider(query.KeyFetchAll)
	if err != nil {
		return nil, err
	}
	qb, err := provider.CreateQuery(ctx, e, r.entityClass, params)
	if err != nil {
		return nil, err
	}
	if sort := params[ParamSort]; sort != "" {
		qb = qb.OrderBy(sort, order)
	}

	total, err := qb.Count(ctx)
	if err != nil {
		return nil, err
	}
	records, err := qb.Limit(limit).Offset(offset).Fetch(ctx)
	if err != nil {
		return nil, err
	}

	data := make([]map[string]any, 0, len(records))
	for _, rec := range records {
		out, err := r.extract(rec)
		if err != nil {
			return nil, err
		}
		data = append(data, out)
	}

	result := &Collection{
		Data: data,
		Meta: Pagination{Total: total, Limit: limit, Offset: offset, Count: len(data)},
	}

	post := e.WithName(event.Post(event.OpFetchAll))
	if err := r.events.Trigger(ctx, post); err != nil {
		return nil, err
	}
	return result, nil
}

// Create filters, hydrates and persists data, then returns the stored entity.
func (r *ConnectedResource) Create(ctx context.Context, data map[string]any) (map[string]any, error) {
	if data == nil {
		return nil, &ValidationError{Message: "request body is required"}
	}
	if r.om == nil {
		return nil, fmt.Errorf("resource %q has no object manager", r.name)
	}

	e, err := r.newEvent(ctx, event.OpCreate)
	if err != nil {
		return nil, err
	}
	e.Data = data
	if err := r.events.Trigger(ctx, e); err != nil {
		return nil, err
	}

	filtered := e.Data
	if r.filter != nil {
		var err error
		filtered, err = r.filter.Filter(ctx, e, r.entityClass, e.Data)
		if err != nil {
			return nil, err
		}
	}

	record := filtered
	if r.hydrator != nil {
		var err error
		record, err = r.hydrator.Hydrate(filtered)
		if err != nil {
			return nil, &ValidationError{Message: err.Error()}
		}
	}

	id, err := r.om.Persist(ctx, r.entityClass, r.identifier(), record)
	if err != nil {
		return nil, err
	}
	stored, err := r.om.Find(ctx, r.entityClass, r.identifier(), id)
	if err != nil {
		return nil, err
	}
	out, err := r.extract(stored)
	if err != nil {
		return nil, err
	}

	post := e.WithName(event.Post(event.OpCreate))
	post.ID = id
	post.Data = out
	if err := r.events.Trigger(ctx, post); err != nil {
		return nil, err
	}
	return out, nil
}

// Delete removes an entity the caller can see through the delete provider.
func (r *ConnectedResource) Delete(ctx context.Context, id string) error {
	if r.om == nil {
		return fmt.Errorf("resource %q has no object manager", r.name)
	}

	e, err := r.newEvent(ctx, event.OpDelete)
	if err != nil {
		return err
	}
	e.ID = id
	if err := r.events.Trigger(ctx, e); err != nil {
		return err
	}

	if _, err := r.find(ctx, query.KeyDelete, e, id); err != nil {
		return err
	}
	if err := r.om.Remove(ctx, r.entityClass, r.identifier(), id); err != nil {
		var nf *persistence.NotFoundError
		if errors.As(err, &nf) {
			return &NotFoundError{Resource: r.name, ID: id}
		}
		return err
	}

	return r.events.Trigger(ctx, e.WithName(event.Post(event.OpDelete)))
}

func (r *ConnectedResource) extract(record map[string]any) (map[string]any, error) {
	if r.hydrator == nil {
		return record, nil
	}
	return r.hydrator.Extract(record)
}

func intParam(params map[string]string, name string, def int) (int, error) {
	raw, ok := params[name]
	if !ok || raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, &ValidationError{Field: name, Message: "must be a non-negative integer"}
	}
	return n, nil
}
