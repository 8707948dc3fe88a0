// Package assembler turns a logical resource name into a fully wired
// resource.
//
// The declaration under api-tools.doctrine-connected.<name> names an object
// manager, an optional hydrator, query provider overrides, a query create
// filter and listeners. The assembler resolves each through the locator or the
// component registry, injects the optional authorization server when one is
// registered, and hands back the resource.
//
//	a := assembler.New(store, services, components)
//	r, err := a.Assemble(ctx, "widgets")
//	switch {
//	case errors.Is(err, assembler.ErrNotConfigured):
//	case err != nil:
//	}
package assembler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/getmockd/restwire/pkg/auth"
	"github.com/getmockd/restwire/pkg/config"
	"github.com/getmockd/restwire/pkg/event"
	"github.com/getmockd/restwire/pkg/hydrator"
	"github.com/getmockd/restwire/pkg/locator"
	"github.com/getmockd/restwire/pkg/logging"
	"github.com/getmockd/restwire/pkg/persistence"
	"github.com/getmockd/restwire/pkg/query"
	"github.com/getmockd/restwire/pkg/registry"
	"github.com/getmockd/restwire/pkg/resource"
)

// Assembler builds resources from configuration. It is safe for concurrent
// use; the only mutable state is its ResolutionCache.
type Assembler struct {
	store    *config.Store
	locator  locator.Locator
	registry *registry.Registry
	probe    *CapabilityProbe
	cache    *ResolutionCache
	log      *slog.Logger
	observer Observer
	tracer   trace.Tracer
}

// New creates an Assembler.
func New(store *config.Store, l locator.Locator, r *registry.Registry, opts ...Option) *Assembler {
	a := &Assembler{
		store:    store,
		locator:  l,
		registry: r,
		log:      logging.Nop(),
		observer: NoopObserver{},
		tracer:   noop.NewTracerProvider().Tracer("noop"),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.probe = NewCapabilityProbe(l, a.log)
	a.cache = NewResolutionCache(a.validate)
	return a
}

// Cache returns the assembler's resolution cache.
func (a *Assembler) Cache() *ResolutionCache { return a.cache }

// CanAssemble reports whether name is declared and its declaration is sound.
// A broken declaration yields a *ConfigError and is checked again next time.
func (a *Assembler) CanAssemble(name string) (bool, error) {
	ok, hit, err := a.cache.lookup(name)
	if err == nil {
		a.observer.OnResolve(name, ok, hit)
	}
	return ok, err
}

// validate checks the declaration of name without building anything.
func (a *Assembler) validate(name string) (bool, error) {
	rc, declared, err := a.store.Resource(name)
	if !declared {
		a.log.Debug("resource not declared", "resource", name)
		return false, nil
	}
	if err != nil {
		return false, &ConfigError{Name: name, Key: connectedKey(name), Message: "malformed declaration", Err: err}
	}

	class := a.resourceClass(name, rc)
	if !registry.Has(a.registry, Resources, class) {
		return false, &ConfigError{
			Name:    name,
			Key:     connectedKey(name, "class"),
			Message: fmt.Sprintf("%q is not a registered resource type", class),
		}
	}
	if rc.ObjectManager == "" {
		return false, &ConfigError{
			Name:    name,
			Key:     connectedKey(name, "object_manager"),
			Message: "object manager reference is required",
		}
	}

	a.log.Debug("resource resolvable", "resource", name, "class", class)
	return true, nil
}

// resourceClass picks the declared class, then a type registered under the
// logical name, then DefaultResourceClass.
func (a *Assembler) resourceClass(name string, rc config.ResourceConfig) string {
	if rc.Class != "" {
		return rc.Class
	}
	if registry.Has(a.registry, Resources, name) {
		return name
	}
	return DefaultResourceClass
}

// Assemble builds the resource declared as name.
func (a *Assembler) Assemble(ctx context.Context, name string) (resource.Resource, error) {
	ctx, span := a.tracer.Start(ctx, "assembler.Assemble",
		trace.WithAttributes(attribute.String("restwire.resource", name)))
	defer span.End()

	start := time.Now()
	r, err := a.assemble(ctx, span, name)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		a.observer.OnError(name, err)
		if !errors.Is(err, ErrNotConfigured) {
			a.log.Warn("resource assembly failed", "resource", name, "error", err)
		}
		return nil, err
	}

	span.SetStatus(codes.Ok, "")
	a.observer.OnAssemble(name, time.Since(start))
	return r, nil
}

func (a *Assembler) assemble(_ context.Context, span trace.Span, name string) (resource.Resource, error) {
	ok, err := a.CanAssemble(name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &NotConfiguredError{Name: name}
	}

	rc, _, err := a.store.Resource(name)
	if err != nil {
		return nil, &ConfigError{Name: name, Key: connectedKey(name), Message: "malformed declaration", Err: err}
	}

	om, err := a.objectManager(name, rc.ObjectManager)
	if err != nil {
		return nil, err
	}

	h, err := a.hydrator(name, rc.Hydrator)
	if err != nil {
		return nil, err
	}

	providers, err := a.queryProviders(name, om, rc.QueryProviders)
	if err != nil {
		return nil, err
	}

	filterAlias := rc.QueryCreateFilter
	if filterAlias == "" {
		filterAlias = query.AliasDefaultFilter
	}
	filter, err := registry.Get(a.registry, QueryCreateFilters, filterAlias)
	if err != nil {
		return nil, fmt.Errorf("resource %q query create filter: %w", name, err)
	}

	authorizer, authorized := Probe[auth.Authorizer](a.probe, auth.ServiceName)
	for _, p := range providers {
		if authorized {
			p.SetAuthorizer(authorizer)
		}
		p.SetObjectManager(om)
	}
	if authorized {
		filter.SetAuthorizer(authorizer)
	}
	filter.SetObjectManager(om)

	listeners := make([]event.Listener, 0, len(rc.Listeners))
	for _, ln := range rc.Listeners {
		l, err := registry.Get(a.registry, Listeners, ln)
		if err != nil {
			return nil, fmt.Errorf("resource %q listener: %w", name, err)
		}
		listeners = append(listeners, l)
	}

	descriptor, _, err := a.store.RestDescriptorFor(name)
	if err != nil {
		return nil, &ConfigError{Name: name, Key: config.SectionRest, Message: "malformed REST descriptors", Err: err}
	}

	entityClass := rc.EntityClass
	if entityClass == "" {
		entityClass = descriptor.EntityClass
	}
	if entityClass == "" {
		entityClass = name
	}

	class := a.resourceClass(name, rc)
	r, err := registry.Get(a.registry, Resources, class)
	if err != nil {
		return nil, fmt.Errorf("resource %q: %w", name, err)
	}
	r.SetName(name)
	r.SetEntityClass(entityClass)
	r.SetObjectManager(om)
	if h != nil {
		r.SetHydrator(h)
	}
	r.SetQueryProviders(providers)
	r.SetQueryCreateFilter(filter)
	r.SetEntityIdentifierName(descriptor.EntityIdentifierName)
	for _, l := range listeners {
		r.Events().Attach(l)
	}

	span.SetAttributes(
		attribute.String("restwire.class", class),
		attribute.String("restwire.object_manager", rc.ObjectManager),
		attribute.Bool("restwire.authorized", authorized),
		attribute.Int("restwire.listeners", len(listeners)),
	)
	a.log.Debug("resource assembled",
		"resource", name,
		"class", class,
		"entity", entityClass,
		"object_manager", rc.ObjectManager,
		"authorized", authorized,
	)
	return r, nil
}

func (a *Assembler) objectManager(name, ref string) (persistence.ObjectManager, error) {
	key := connectedKey(name, "object_manager")
	if a.locator == nil || !a.locator.Has(ref) {
		return nil, &ConfigError{Name: name, Key: key, Message: fmt.Sprintf("object manager %q is not registered", ref)}
	}
	svc, err := a.locator.Get(ref)
	if err != nil {
		return nil, &ConfigError{Name: name, Key: key, Message: fmt.Sprintf("object manager %q could not be created", ref), Err: err}
	}
	om, ok := svc.(persistence.ObjectManager)
	if !ok {
		return nil, &ConfigError{Name: name, Key: key, Message: fmt.Sprintf("service %q is a %T, not an object manager", ref, svc)}
	}
	return om, nil
}

// hydrator returns nil when none is declared or the declared one is not
// registered; the latter is logged.
func (a *Assembler) hydrator(name, ref string) (hydrator.Hydrator, error) {
	if ref == "" {
		return nil, nil
	}
	h, err := registry.Get(a.registry, Hydrators, ref)
	if err != nil {
		var nf *registry.NotFoundError
		if errors.As(err, &nf) {
			a.log.Warn("hydrator not registered; continuing without one", "resource", name, "hydrator", ref)
			return nil, nil
		}
		return nil, fmt.Errorf("resource %q hydrator: %w", name, err)
	}
	return h, nil
}

// DefaultProviderAlias returns the builtin provider alias for om's variant.
func DefaultProviderAlias(om persistence.ObjectManager) (string, bool) {
	switch om.(type) {
	case *persistence.EntityManager:
		return query.AliasDefaultORM, true
	case *persistence.DocumentManager:
		return query.AliasDefaultODM, true
	default:
		return "", false
	}
}

func (a *Assembler) queryProviders(name string, om persistence.ObjectManager, overrides map[string]string) (map[string]query.Provider, error) {
	alias, ok := DefaultProviderAlias(om)
	if !ok {
		return nil, &ConfigError{
			Name:    name,
			Key:     connectedKey(name, "object_manager"),
			Message: fmt.Sprintf("unsupported persistence manager %T", om),
		}
	}

	def, err := registry.Get(a.registry, QueryProviders, alias)
	if err != nil {
		return nil, fmt.Errorf("resource %q default query provider: %w", name, err)
	}
	providers := map[string]query.Provider{query.KeyDefault: def}

	ops := make([]string, 0, len(overrides))
	for op := range overrides {
		ops = append(ops, op)
	}
	sort.Strings(ops)
	for _, op := range ops {
		p, err := registry.Get(a.registry, QueryProviders, overrides[op])
		if err != nil {
			return nil, fmt.Errorf("resource %q query provider for %s: %w", name, op, err)
		}
		providers[op] = p
	}
	return providers, nil
}
