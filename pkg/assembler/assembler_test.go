package assembler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"pgregory.net/rapid"

	"github.com/getmockd/restwire/pkg/auth"
	"github.com/getmockd/restwire/pkg/config"
	"github.com/getmockd/restwire/pkg/event"
	"github.com/getmockd/restwire/pkg/hydrator"
	"github.com/getmockd/restwire/pkg/locator"
	"github.com/getmockd/restwire/pkg/persistence"
	"github.com/getmockd/restwire/pkg/query"
	"github.com/getmockd/restwire/pkg/registry"
	"github.com/getmockd/restwire/pkg/resource"
	"github.com/getmockd/restwire/pkg/tracing"
)

// foreignManager is an ObjectManager of neither supported variant.
type foreignManager struct{}

func (foreignManager) Persist(context.Context, string, string, persistence.Record) (string, error) {
	return "", nil
}
func (foreignManager) Find(context.Context, string, string, any) (persistence.Record, error) {
	return nil, nil
}
func (foreignManager) Remove(context.Context, string, string, any) error { return nil }
func (foreignManager) Close() error                                      { return nil }

// namedListener records its name into a shared log.
type namedListener struct {
	name string
	log  *[]string
}

func (l *namedListener) Handle(_ context.Context, e *event.Event) error {
	*l.log = append(*l.log, l.name+":"+e.Name)
	return nil
}

type stubAuthorizer struct{}

func (*stubAuthorizer) ValidateToken(string) (map[string]any, error) { return map[string]any{}, nil }
func (*stubAuthorizer) Introspect(string) *auth.Introspection      { return &auth.Introspection{} }

type fixture struct {
	services   *locator.ServiceManager
	components *registry.Registry
	calls      *[]string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	em, err := persistence.OpenEntityManager(context.Background(), persistence.EntityOptions{
		DSN:        ":memory:",
		Migrations: []string{`CREATE TABLE widgets (id TEXT PRIMARY KEY, name TEXT)`},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = em.Close() })
	dm, err := persistence.NewDocumentManager(nil, nil)
	require.NoError(t, err)

	services := locator.NewServiceManager()
	require.NoError(t, services.SetService("orm.default", em))
	require.NoError(t, services.SetService("odm.default", dm))
	require.NoError(t, services.SetService("foreign.default", foreignManager{}))
	require.NoError(t, services.SetService("not.a.manager", "just a string"))

	components := registry.New()
	calls := &[]string{}
	must := func(err error) { require.NoError(t, err) }

	must(registry.Register(components, Resources, DefaultResourceClass, func() (resource.Resource, error) {
		return resource.NewConnectedResource(), nil
	}))
	must(registry.Register(components, QueryProviders, query.AliasDefaultORM, func() (query.Provider, error) {
		return &query.DefaultORM{}, nil
	}))
	must(registry.Register(components, QueryProviders, query.AliasDefaultODM, func() (query.Provider, error) {
		return &query.DefaultODM{}, nil
	}))
	must(registry.Register(components, QueryProviders, query.AliasOwnerScoped, func() (query.Provider, error) {
		return &query.OwnerScoped{}, nil
	}))
	must(registry.Register(components, QueryCreateFilters, query.AliasDefaultFilter, func() (query.CreateFilter, error) {
		return &query.DefaultCreateFilter{}, nil
	}))
	must(registry.Register(components, Hydrators, "widget_hydrator", func() (hydrator.Hydrator, error) {
		return hydrator.NewFieldHydrator(nil, nil)
	}))
	for _, name := range []string{"audit", "log", "notify"} {
		must(registry.Register(components, Listeners, name, func() (event.Listener, error) {
			return &namedListener{name: name, log: calls}, nil
		}))
	}

	return &fixture{services: services, components: components, calls: calls}
}

func connected(resources map[string]any, extra ...map[string]any) *config.Store {
	tree := map[string]any{
		"api-tools": map[string]any{"doctrine-connected": resources},
	}
	for _, e := range extra {
		for k, v := range e {
			tree[k] = v
		}
	}
	return config.New(tree)
}

func (f *fixture) assembler(store *config.Store, opts ...Option) *Assembler {
	return New(store, f.services, f.components, opts...)
}

func TestAssemble_WidgetsExample(t *testing.T) {
	f := newFixture(t)
	a := f.assembler(connected(map[string]any{
		"widgets": map[string]any{"object_manager": "orm.default"},
	}))

	r, err := a.Assemble(context.Background(), "widgets")
	require.NoError(t, err)

	providers := r.QueryProviders()
	require.Len(t, providers, 1)
	assert.IsType(t, &query.DefaultORM{}, providers[query.KeyDefault])
	assert.Nil(t, r.Hydrator())
	assert.IsType(t, &query.DefaultCreateFilter{}, r.QueryCreateFilter())
	assert.Equal(t, "widgets", r.Name())
	assert.Equal(t, "widgets", r.EntityClass())

	em, _ := f.services.Get("orm.default")
	assert.Same(t, em, r.ObjectManager())
	assert.Same(t, em, providers[query.KeyDefault].ObjectManager())
	assert.Same(t, em, r.QueryCreateFilter().ObjectManager())
}

func TestIsResolvable_UndeclaredIsFalseAndCached(t *testing.T) {
	f := newFixture(t)
	a := f.assembler(connected(map[string]any{}))

	for range 3 {
		ok, err := a.CanAssemble("ghost")
		require.NoError(t, err)
		assert.False(t, ok)
	}
	assert.Equal(t, 1, a.Cache().Len(), "the negative answer is cached")

	_, err := a.Assemble(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrNotConfigured)
	var nc *NotConfiguredError
	require.ErrorAs(t, err, &nc)
	assert.Equal(t, "ghost", nc.Name)
}

func TestIsResolvable_NullDeclarationIsNotConfigured(t *testing.T) {
	f := newFixture(t)
	a := f.assembler(connected(map[string]any{"widgets": nil}))

	ok, err := a.CanAssemble("widgets")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1, a.Cache().Len())

	_, err = a.Assemble(context.Background(), "widgets")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestAssemble_MissingObjectManagerIsNotCached(t *testing.T) {
	f := newFixture(t)
	metrics := NewMetricsObserver()
	a := f.assembler(connected(map[string]any{
		"broken": map[string]any{"hydrator": "widget_hydrator"},
	}), WithObserver(metrics))

	for range 2 {
		_, err := a.Assemble(context.Background(), "broken")
		var ce *ConfigError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, "broken", ce.Name)
		assert.Contains(t, ce.Key, "object_manager")
		assert.NotEmpty(t, ce.Hint())
	}
	assert.Zero(t, a.Cache().Len())
	assert.Equal(t, int64(2), metrics.Snapshot().ErrorCount)
}

func TestResolutionCache_ConfigErrorsRevalidate(t *testing.T) {
	var calls atomic.Int32
	c := NewResolutionCache(func(name string) (bool, error) {
		calls.Add(1)
		if name == "bad" {
			return false, &ConfigError{Name: name, Key: "k", Message: "broken"}
		}
		return name == "good", nil
	})

	for range 3 {
		_, err := c.IsResolvable("bad")
		assert.Error(t, err)
		ok, err := c.IsResolvable("good")
		require.NoError(t, err)
		assert.True(t, ok)
	}
	assert.Equal(t, int32(4), calls.Load(), "bad validates every time, good once")
}

func TestResolutionCache_ConcurrentFirstLookup(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	c := NewResolutionCache(func(string) (bool, error) {
		calls.Add(1)
		<-release
		return true, nil
	})

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := c.IsResolvable("widgets")
			assert.NoError(t, err)
			assert.True(t, ok)
		}()
	}
	close(release)
	wg.Wait()

	assert.LessOrEqual(t, calls.Load(), int32(16))
	ok, _ := c.IsResolvable("widgets")
	assert.True(t, ok)
	assert.Equal(t, 1, c.Len())
}

func TestAssemble_DefaultProviderByVariant(t *testing.T) {
	f := newFixture(t)
	a := f.assembler(connected(map[string]any{
		"relational": map[string]any{"object_manager": "orm.default"},
		"documents":  map[string]any{"object_manager": "odm.default"},
		"foreign":    map[string]any{"object_manager": "foreign.default"},
	}))
	ctx := context.Background()

	r, err := a.Assemble(ctx, "relational")
	require.NoError(t, err)
	assert.IsType(t, &query.DefaultORM{}, r.QueryProviders()[query.KeyDefault])

	r, err = a.Assemble(ctx, "documents")
	require.NoError(t, err)
	assert.IsType(t, &query.DefaultODM{}, r.QueryProviders()[query.KeyDefault])

	_, err = a.Assemble(ctx, "foreign")
	var ce *ConfigError
	require.ErrorAs(t, err, &ce)
	assert.Contains(t, ce.Message, "unsupported persistence manager")
}

func TestAssemble_ObjectManagerFailures(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.services.SetFactory("flaky", func(locator.Locator) (any, error) {
		return nil, errors.New("connection refused")
	}))
	a := f.assembler(connected(map[string]any{
		"missing":  map[string]any{"object_manager": "nowhere"},
		"flaky":    map[string]any{"object_manager": "flaky"},
		"mistyped": map[string]any{"object_manager": "not.a.manager"},
	}))

	for _, name := range []string{"missing", "flaky", "mistyped"} {
		t.Run(name, func(t *testing.T) {
			ok, err := a.CanAssemble(name)
			require.NoError(t, err)
			assert.True(t, ok, "declaration itself is sound")

			_, err = a.Assemble(context.Background(), name)
			var ce *ConfigError
			require.ErrorAs(t, err, &ce)
			assert.Contains(t, ce.Key, "object_manager")
		})
	}
}

func TestAssemble_OverridesTakePrecedence(t *testing.T) {
	f := newFixture(t)
	a := f.assembler(connected(map[string]any{
		"widgets": map[string]any{
			"object_manager": "orm.default",
			"query_providers": map[string]any{
				"default":   "owner_scoped",
				"fetch_all": "owner_scoped",
			},
		},
	}))

	r, err := a.Assemble(context.Background(), "widgets")
	require.NoError(t, err)
	providers := r.QueryProviders()
	assert.IsType(t, &query.OwnerScoped{}, providers[query.KeyDefault])
	assert.IsType(t, &query.OwnerScoped{}, providers[query.KeyFetchAll])
	assert.NotSame(t, providers[query.KeyDefault], providers[query.KeyFetchAll])
}

func TestAssemble_OverridePrecedenceProperty(t *testing.T) {
	f := newFixture(t)
	ops := []string{"default", "fetch", "fetch_all", "delete", "update"}
	aliases := map[string]string{
		query.AliasOwnerScoped: "*query.OwnerScoped",
		query.AliasDefaultORM:  "*query.DefaultORM",
	}

	rapid.Check(t, func(t *rapid.T) {
		overrides := map[string]any{}
		want := map[string]string{"default": "*query.DefaultORM"}
		for _, op := range ops {
			if !rapid.Bool().Draw(t, "override "+op) {
				continue
			}
			alias := rapid.SampledFrom([]string{query.AliasOwnerScoped, query.AliasDefaultORM}).Draw(t, "alias "+op)
			overrides[op] = alias
			want[op] = aliases[alias]
		}

		a := f.assembler(connected(map[string]any{
			"widgets": map[string]any{"object_manager": "orm.default", "query_providers": overrides},
		}))
		r, err := a.Assemble(context.Background(), "widgets")
		if err != nil {
			t.Fatalf("assemble: %v", err)
		}

		got := map[string]string{}
		for op, p := range r.QueryProviders() {
			got[op] = fmt.Sprintf("%T", p)
		}
		if fmt.Sprint(got) != fmt.Sprint(want) {
			t.Fatalf("providers = %v, want %v", got, want)
		}
	})
}

func TestIsResolvable_IdempotentProperty(t *testing.T) {
	f := newFixture(t)

	rapid.Check(t, func(t *rapid.T) {
		names := rapid.SliceOfNDistinct(rapid.StringMatching(`[a-z_]{1,8}`), 1, 6, rapid.ID[string]).Draw(t, "names")
		declared := map[string]any{}
		for _, n := range names {
			if rapid.Bool().Draw(t, "declare "+n) {
				declared[n] = map[string]any{"object_manager": "orm.default"}
			}
		}
		a := f.assembler(connected(declared))

		for round := range 3 {
			for _, n := range names {
				ok, err := a.CanAssemble(n)
				if err != nil {
					t.Fatalf("round %d %q: %v", round, n, err)
				}
				_, want := declared[n]
				if ok != want {
					t.Fatalf("round %d %q: resolvable=%v, want %v", round, n, ok, want)
				}
			}
		}
		if a.Cache().Len() != len(names) {
			t.Fatalf("cache holds %d entries, want %d", a.Cache().Len(), len(names))
		}
	})
}

func TestAssemble_NoAuthorizer(t *testing.T) {
	f := newFixture(t)
	a := f.assembler(connected(map[string]any{
		"widgets": map[string]any{
			"object_manager":  "orm.default",
			"query_providers": map[string]any{"fetch_all": "owner_scoped"},
		},
	}))

	r, err := a.Assemble(context.Background(), "widgets")
	require.NoError(t, err)
	for op, p := range r.QueryProviders() {
		assert.Nil(t, p.Authorizer(), op)
	}
	assert.Nil(t, r.QueryCreateFilter().Authorizer())
}

func TestAssemble_SharedAuthorizer(t *testing.T) {
	f := newFixture(t)
	authz := &stubAuthorizer{}
	require.NoError(t, f.services.SetService(auth.ServiceName, authz))
	a := f.assembler(connected(map[string]any{
		"widgets": map[string]any{
			"object_manager":  "orm.default",
			"query_providers": map[string]any{"fetch_all": "owner_scoped", "delete": "owner_scoped"},
		},
	}))

	r, err := a.Assemble(context.Background(), "widgets")
	require.NoError(t, err)
	require.Len(t, r.QueryProviders(), 3)
	for op, p := range r.QueryProviders() {
		assert.Same(t, authz, p.Authorizer(), op)
	}
	assert.Same(t, authz, r.QueryCreateFilter().Authorizer())
	assert.True(t, resource.Describe(r).Authorized)
}

func TestAssemble_BrokenAuthorizerIsAbsent(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.services.SetFactory(auth.ServiceName, func(locator.Locator) (any, error) {
		panic("oauth2 storage unavailable")
	}))
	a := f.assembler(connected(map[string]any{
		"widgets": map[string]any{"object_manager": "orm.default"},
	}))

	r, err := a.Assemble(context.Background(), "widgets")
	require.NoError(t, err)
	assert.Nil(t, r.QueryProviders()[query.KeyDefault].Authorizer())
}

func TestAssemble_ListenerOrder(t *testing.T) {
	f := newFixture(t)
	a := f.assembler(connected(map[string]any{
		"widgets": map[string]any{
			"object_manager": "orm.default",
			"listeners":      []any{"notify", "audit", "log"},
		},
	}))

	r, err := a.Assemble(context.Background(), "widgets")
	require.NoError(t, err)
	require.Len(t, r.Events().Listeners(), 3)

	require.NoError(t, r.Events().Trigger(context.Background(), &event.Event{Name: "fetch.pre"}))
	assert.Equal(t, []string{"notify:fetch.pre", "audit:fetch.pre", "log:fetch.pre"}, *f.calls)
}

func TestAssemble_UnregisteredComponents(t *testing.T) {
	f := newFixture(t)
	a := f.assembler(connected(map[string]any{
		"bad_provider": map[string]any{
			"object_manager":  "orm.default",
			"query_providers": map[string]any{"fetch": "nope"},
		},
		"bad_filter": map[string]any{"object_manager": "orm.default", "query_create_filter": "nope"},
		"bad_listener": map[string]any{
			"object_manager": "orm.default",
			"listeners":      []any{"audit", "nope"},
		},
	}))

	for _, name := range []string{"bad_provider", "bad_filter", "bad_listener"} {
		t.Run(name, func(t *testing.T) {
			_, err := a.Assemble(context.Background(), name)
			var nf *registry.NotFoundError
			require.ErrorAs(t, err, &nf)
			assert.Equal(t, "nope", nf.Name)
		})
	}
}

func TestAssemble_UnregisteredClass(t *testing.T) {
	f := newFixture(t)
	a := f.assembler(connected(map[string]any{
		"widgets": map[string]any{"object_manager": "orm.default", "class": "Custom\\Resource"},
	}))

	ok, err := a.CanAssemble("widgets")
	assert.False(t, ok)
	var ce *ConfigError
	require.ErrorAs(t, err, &ce)
	assert.Contains(t, ce.Key, "class")
	assert.Zero(t, a.Cache().Len())
}

func TestAssemble_ClassDefaultsToLogicalName(t *testing.T) {
	f := newFixture(t)
	var built atomic.Bool
	require.NoError(t, registry.Register(f.components, Resources, "special", func() (resource.Resource, error) {
		built.Store(true)
		return resource.NewConnectedResource(), nil
	}))
	a := f.assembler(connected(map[string]any{
		"special": map[string]any{"object_manager": "orm.default"},
	}))

	_, err := a.Assemble(context.Background(), "special")
	require.NoError(t, err)
	assert.True(t, built.Load())
}

func TestAssemble_MissingHydratorIsIgnored(t *testing.T) {
	f := newFixture(t)
	a := f.assembler(connected(map[string]any{
		"declared": map[string]any{"object_manager": "orm.default", "hydrator": "widget_hydrator"},
		"missing":  map[string]any{"object_manager": "orm.default", "hydrator": "ghost_hydrator"},
	}))

	r, err := a.Assemble(context.Background(), "declared")
	require.NoError(t, err)
	assert.IsType(t, &hydrator.FieldHydrator{}, r.Hydrator())

	r, err = a.Assemble(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, r.Hydrator())
}

func TestAssemble_IdentifierAndEntityClass(t *testing.T) {
	f := newFixture(t)
	store := connected(map[string]any{
		"widgets":  map[string]any{"object_manager": "orm.default"},
		"gadgets":  map[string]any{"object_manager": "odm.default", "entity_class": "gadget_docs"},
		"unlisted": map[string]any{"object_manager": "orm.default"},
	}, map[string]any{
		"api-tools-rest": map[string]any{
			"Widgets\\V1\\Rest\\Widget\\Controller": map[string]any{
				"listener":               "widgets",
				"entity_identifier_name": "widget_id",
				"entity_class":           "widget_rows",
			},
			"Gadgets\\V1\\Rest\\Gadget\\Controller": map[string]any{
				"listener":               "gadgets",
				"entity_identifier_name": "gadget_id",
				"entity_class":           "ignored",
			},
		},
	})
	a := f.assembler(store)
	ctx := context.Background()

	r, err := a.Assemble(ctx, "widgets")
	require.NoError(t, err)
	assert.Equal(t, "widget_id", r.EntityIdentifierName())
	assert.Equal(t, "widget_rows", r.EntityClass())

	r, err = a.Assemble(ctx, "gadgets")
	require.NoError(t, err)
	assert.Equal(t, "gadget_id", r.EntityIdentifierName())
	assert.Equal(t, "gadget_docs", r.EntityClass())

	r, err = a.Assemble(ctx, "unlisted")
	require.NoError(t, err)
	assert.Empty(t, r.EntityIdentifierName())
}

func TestAssemble_ReturnsFreshResources(t *testing.T) {
	f := newFixture(t)
	a := f.assembler(connected(map[string]any{
		"widgets": map[string]any{"object_manager": "orm.default", "listeners": []any{"audit"}},
	}))

	first, err := a.Assemble(context.Background(), "widgets")
	require.NoError(t, err)
	second, err := a.Assemble(context.Background(), "widgets")
	require.NoError(t, err)

	assert.NotSame(t, first, second)
	assert.Len(t, second.Events().Listeners(), 1)
}

func TestAssemble_TracingAndMetrics(t *testing.T) {
	f := newFixture(t)
	exporter := tracetest.NewInMemoryExporter()
	provider := tracing.NewWithExporter(tracing.Config{}, exporter)
	metrics := NewMetricsObserver()
	a := f.assembler(connected(map[string]any{
		"widgets": map[string]any{"object_manager": "orm.default"},
	}), WithTracer(provider.Tracer()), WithObserver(metrics), WithLogger(nil))
	ctx := context.Background()

	_, err := a.Assemble(ctx, "widgets")
	require.NoError(t, err)
	_, err = a.Assemble(ctx, "widgets")
	require.NoError(t, err)
	_, err = a.Assemble(ctx, "ghost")
	require.Error(t, err)

	snap := metrics.Snapshot()
	assert.Equal(t, int64(3), snap.ResolveCount)
	assert.Equal(t, int64(1), snap.CacheHits)
	assert.Equal(t, int64(1), snap.Unresolvable)
	assert.Equal(t, int64(2), snap.AssembleCount)
	assert.Equal(t, int64(1), snap.ErrorCount)

	spans := exporter.GetSpans()
	require.Len(t, spans, 3)
	assert.Equal(t, "assembler.Assemble", spans[0].Name)
	assert.Len(t, spans[2].Events, 1, "the failure is recorded on the span")
}
