// Package services builds the runtime container from configuration: the
// service locator holding object managers and the authorization server, the
// component registry holding hydrators, query providers, filters, listeners
// and resource types, and the assembler over both.
package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"github.com/getmockd/restwire/pkg/assembler"
	"github.com/getmockd/restwire/pkg/audit"
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

// Container holds everything Build wires together.
type Container struct {
	Store     *config.Store
	Services  *locator.ServiceManager
	Registry  *registry.Registry
	Assembler *assembler.Assembler
	// Auth is nil unless oauth2.enabled is set.
	Auth *auth.Provider

	log     *slog.Logger
	closers []io.Closer
}

type buildOptions struct {
	log       *slog.Logger
	observer  assembler.Observer
	tracer    trace.Tracer
	hydrators map[string]registry.Factory[hydrator.Hydrator]
}

// Option configures Build.
type Option func(*buildOptions)

// WithLogger sets the logger handed to every built component.
func WithLogger(log *slog.Logger) Option {
	return func(o *buildOptions) { o.log = log }
}

// WithObserver sets the assembler observer.
func WithObserver(obs assembler.Observer) Option {
	return func(o *buildOptions) { o.observer = obs }
}

// WithHydrator registers a hydrator built in code, typically a
// hydrator.StructHydrator over an application type. A hydrators section
// entry of the same name replaces it.
func WithHydrator(name string, factory registry.Factory[hydrator.Hydrator]) Option {
	return func(o *buildOptions) {
		if o.hydrators == nil {
			o.hydrators = make(map[string]registry.Factory[hydrator.Hydrator])
		}
		o.hydrators[name] = factory
	}
}

// WithTracer sets the assembler tracer.
func WithTracer(t trace.Tracer) Option {
	return func(o *buildOptions) { o.tracer = t }
}

// Build registers every configured component and returns the container.
// Object managers are registered as factories and connect on first use;
// hydrators, filters and listeners are checked eagerly so that a bad entry
// fails here and not at assembly time.
func Build(store *config.Store, opts ...Option) (*Container, error) {
	o := &buildOptions{}
	for _, opt := range opts {
		opt(o)
	}
	log := logging.OrNop(o.log)

	c := &Container{
		Store:    store,
		Services: locator.NewServiceManager(),
		Registry: registry.New(),
		log:      log,
	}

	steps := []func() error{
		c.registerObjectManagers,
		c.registerBuiltins,
		func() error { return c.registerCodeHydrators(o.hydrators) },
		c.registerHydrators,
		c.registerQueryProviders,
		c.registerFilters,
		c.registerListeners,
		c.registerAuth,
	}
	for _, step := range steps {
		if err := step(); err != nil {
			_ = c.Close()
			return nil, err
		}
	}

	c.Assembler = assembler.New(store, c.Services, c.Registry,
		assembler.WithLogger(log),
		assembler.WithObserver(o.observer),
		assembler.WithTracer(o.tracer),
	)
	log.Debug("container built",
		"services", len(c.Services.Names()),
		"resources", len(store.ConnectedNames()),
		"auth", c.Auth != nil,
	)
	return c, nil
}

// Close closes every object manager that has been opened and every audit
// log.
func (c *Container) Close() error {
	var errs []error
	for _, cl := range c.closers {
		if err := cl.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	for name, svc := range c.Services.Instances() {
		om, ok := svc.(persistence.ObjectManager)
		if !ok {
			continue
		}
		if err := om.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// decodeSection decodes every entry of section into a T, in sorted order.
func decodeSection[T any](store *config.Store, section string, fn func(name string, cfg T) error) error {
	for _, name := range store.Keys(section) {
		raw, _ := store.Get(section, name)
		var cfg T
		if err := config.Decode(raw, &cfg); err != nil {
			return &ComponentError{Section: section, Name: name, Message: "malformed entry", Err: err}
		}
		if err := fn(name, cfg); err != nil {
			return err
		}
	}
	return nil
}

func (c *Container) registerObjectManagers() error {
	return decodeSection(c.Store, config.SectionObjectManagers, func(name string, cfg ObjectManagerConfig) error {
		var factory locator.Factory
		switch cfg.Type {
		case TypeORM:
			opts := persistence.EntityOptions{
				Driver:     cfg.Driver,
				DSN:        cfg.DSN,
				Entities:   cfg.Entities,
				Migrations: cfg.Migrations,
				Logger:     c.log,
			}
			factory = func(locator.Locator) (any, error) {
				return persistence.OpenEntityManager(context.Background(), opts)
			}
		case TypeODM:
			collections := cfg.Collections
			factory = func(locator.Locator) (any, error) {
				return persistence.NewDocumentManager(collections, c.log)
			}
		case TypeAlias:
			if cfg.Target == "" || cfg.Target == name {
				return &ComponentError{Section: config.SectionObjectManagers, Name: name, Message: "alias needs a target naming another object manager"}
			}
			c.log.Debug("registered object manager alias", "name", name, "target", cfg.Target)
			return c.Services.SetAlias(name, cfg.Target)
		default:
			return &ComponentError{
				Section: config.SectionObjectManagers,
				Name:    name,
				Message: fmt.Sprintf("unknown type %q (want %s, %s or %s)", cfg.Type, TypeORM, TypeODM, TypeAlias),
			}
		}
		c.log.Debug("registered object manager", "name", name, "type", cfg.Type)
		return c.Services.SetFactory(name, factory)
	})
}

func (c *Container) registerBuiltins() error {
	return errors.Join(
		registry.Register(c.Registry, assembler.Resources, assembler.DefaultResourceClass, func() (resource.Resource, error) {
			return resource.NewConnectedResource(), nil
		}),
		registry.Register(c.Registry, assembler.QueryProviders, query.AliasDefaultORM, func() (query.Provider, error) {
			return &query.DefaultORM{}, nil
		}),
		registry.Register(c.Registry, assembler.QueryProviders, query.AliasDefaultODM, func() (query.Provider, error) {
			return &query.DefaultODM{}, nil
		}),
		registry.Register(c.Registry, assembler.QueryProviders, query.AliasOwnerScoped, func() (query.Provider, error) {
			return &query.OwnerScoped{}, nil
		}),
		registry.Register(c.Registry, assembler.QueryCreateFilters, query.AliasDefaultFilter, func() (query.CreateFilter, error) {
			return &query.DefaultCreateFilter{}, nil
		}),
	)
}

func (c *Container) registerCodeHydrators(factories map[string]registry.Factory[hydrator.Hydrator]) error {
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := registry.Register(c.Registry, assembler.Hydrators, name, factories[name]); err != nil {
			return &ComponentError{Section: config.SectionHydrators, Name: name, Message: "cannot register hydrator", Err: err}
		}
	}
	return nil
}

func (c *Container) registerHydrators() error {
	return decodeSection(c.Store, config.SectionHydrators, func(name string, cfg HydratorConfig) error {
		if cfg.Type != TypeField {
			return &ComponentError{Section: config.SectionHydrators, Name: name, Message: fmt.Sprintf("unknown type %q", cfg.Type)}
		}
		build := func() (hydrator.Hydrator, error) {
			return hydrator.NewFieldHydrator(cfg.Rename, cfg.Exclude)
		}
		if _, err := build(); err != nil {
			return &ComponentError{Section: config.SectionHydrators, Name: name, Message: "invalid field mapping", Err: err}
		}
		return registry.Register(c.Registry, assembler.Hydrators, name, build)
	})
}

func (c *Container) registerQueryProviders() error {
	return decodeSection(c.Store, config.SectionQueryProviders, func(name string, cfg QueryProviderConfig) error {
		if cfg.Type != TypeOwner {
			return &ComponentError{Section: config.SectionQueryProviders, Name: name, Message: fmt.Sprintf("unknown type %q", cfg.Type)}
		}
		return registry.Register(c.Registry, assembler.QueryProviders, name, func() (query.Provider, error) {
			return &query.OwnerScoped{Field: cfg.Field, Claim: cfg.Claim}, nil
		})
	})
}

func (c *Container) registerFilters() error {
	return decodeSection(c.Store, config.SectionQueryCreateFilters, func(name string, cfg FilterConfig) error {
		if cfg.Type != TypeExpression {
			return &ComponentError{Section: config.SectionQueryCreateFilters, Name: name, Message: fmt.Sprintf("unknown type %q", cfg.Type)}
		}
		build := func() (query.CreateFilter, error) {
			return query.NewExpressionCreateFilter(cfg.Condition, cfg.Assign)
		}
		if _, err := build(); err != nil {
			return &ComponentError{Section: config.SectionQueryCreateFilters, Name: name, Message: "invalid expression", Err: err}
		}
		return registry.Register(c.Registry, assembler.QueryCreateFilters, name, build)
	})
}

func (c *Container) registerListeners() error {
	return decodeSection(c.Store, config.SectionListeners, func(name string, cfg ListenerConfig) error {
		var build registry.Factory[event.Listener]
		switch cfg.Type {
		case TypeLog:
			level := logging.ParseLevel(cfg.Level)
			build = func() (event.Listener, error) {
				return event.NewLogListener(c.log, level), nil
			}
		case TypeGuard:
			build = func() (event.Listener, error) {
				return event.NewGuardListener(cfg.Condition, cfg.Message, cfg.Events)
			}
			if _, err := build(); err != nil {
				return &ComponentError{Section: config.SectionListeners, Name: name, Message: "invalid guard", Err: err}
			}
		case TypeAudit:
			logger, err := audit.NewLogger(cfg.Output)
			if err != nil {
				return &ComponentError{Section: config.SectionListeners, Name: name, Message: "cannot open audit log", Err: err}
			}
			c.closers = append(c.closers, logger)
			build = func() (event.Listener, error) {
				l := audit.NewListener(logger, cfg.Events...)
				l.Strict = cfg.Strict
				return l, nil
			}
		default:
			return &ComponentError{Section: config.SectionListeners, Name: name, Message: fmt.Sprintf("unknown type %q", cfg.Type)}
		}
		return registry.Register(c.Registry, assembler.Listeners, name, build)
	})
}

func (c *Container) registerAuth() error {
	raw, ok := c.Store.Get(config.SectionOAuth2)
	if !ok {
		return nil
	}
	var cfg OAuth2Config
	if err := config.Decode(raw, &cfg); err != nil {
		return &ComponentError{Section: config.SectionOAuth2, Name: auth.ServiceName, Message: "malformed section", Err: err}
	}
	if !cfg.Enabled {
		return nil
	}

	provider, err := auth.NewProvider(cfg.Config)
	if err != nil {
		return &ComponentError{Section: config.SectionOAuth2, Name: auth.ServiceName, Message: "cannot start authorization server", Err: err}
	}
	for _, token := range cfg.RevokedTokens {
		provider.Revoke(strings.TrimPrefix(token, "Bearer "))
	}
	c.Auth = provider
	c.log.Debug("registered authorization server",
		"algorithm", provider.Algorithm(),
		"revoked", len(cfg.RevokedTokens),
	)
	return c.Services.SetService(auth.ServiceName, provider)
}
