package resource

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getmockd/restwire/pkg/auth"
	"github.com/getmockd/restwire/pkg/event"
	"github.com/getmockd/restwire/pkg/hydrator"
	"github.com/getmockd/restwire/pkg/persistence"
	"github.com/getmockd/restwire/pkg/query"
)

func newDocumentResource(t *testing.T) (*ConnectedResource, *persistence.DocumentManager) {
	t.Helper()
	dm, err := persistence.NewDocumentManager(map[string]persistence.CollectionConfig{
		"gadgets": {IDField: "gadget_id", Seed: []persistence.Record{
			{"gadget_id": "g1", "name": "sprocket", "owner": "alice", "rank": 2},
			{"gadget_id": "g2", "name": "widget", "owner": "bob", "rank": 1},
			{"gadget_id": "g3", "name": "cog", "owner": "alice", "rank": 3},
		}},
	}, nil)
	require.NoError(t, err)

	provider := &query.DefaultODM{}
	provider.SetObjectManager(dm)
	filter := &query.DefaultCreateFilter{}
	filter.SetObjectManager(dm)

	r := NewConnectedResource()
	r.SetName("gadgets.v1")
	r.SetEntityClass("gadgets")
	r.SetEntityIdentifierName("gadget_id")
	r.SetObjectManager(dm)
	r.SetQueryProviders(map[string]query.Provider{query.KeyDefault: provider})
	r.SetQueryCreateFilter(filter)
	return r, dm
}

func TestConnectedResource_Fetch(t *testing.T) {
	r, _ := newDocumentResource(t)

	got, err := r.Fetch(context.Background(), "g1")
	require.NoError(t, err)
	assert.Equal(t, "sprocket", got["name"])

	_, err = r.Fetch(context.Background(), "nope")
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "gadgets.v1", nf.Resource)
}

func TestConnectedResource_FetchAll(t *testing.T) {
	r, _ := newDocumentResource(t)

	page, err := r.FetchAll(context.Background(), map[string]string{
		ParamSort:  "rank",
		ParamOrder: "desc",
		ParamLimit: "2",
	})
	require.NoError(t, err)
	assert.Equal(t, Pagination{Total: 3, Limit: 2, Offset: 0, Count: 2}, page.Meta)
	assert.Equal(t, "cog", page.Data[0]["name"])
	assert.Equal(t, "sprocket", page.Data[1]["name"])

	page, err = r.FetchAll(context.Background(), map[string]string{ParamOffset: "2", ParamSort: "rank"})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Meta.Count)
	assert.Equal(t, "cog", page.Data[0]["name"])
}

func TestConnectedResource_FetchAllValidation(t *testing.T) {
	r, _ := newDocumentResource(t)

	tests := []struct {
		params map[string]string
		field  string
	}{
		{map[string]string{ParamLimit: "-1"}, ParamLimit},
		{map[string]string{ParamOffset: "ten"}, ParamOffset},
		{map[string]string{ParamOrder: "sideways"}, ParamOrder},
	}
	for _, tt := range tests {
		_, err := r.FetchAll(context.Background(), tt.params)
		var ve *ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Equal(t, tt.field, ve.Field)
	}
}

func TestConnectedResource_CreateAndDelete(t *testing.T) {
	r, dm := newDocumentResource(t)
	ctx := context.Background()

	created, err := r.Create(ctx, map[string]any{"name": "flange"})
	require.NoError(t, err)
	id, _ := created["gadget_id"].(string)
	require.NotEmpty(t, id)
	assert.Equal(t, 4, dm.Count("gadgets"))

	require.NoError(t, r.Delete(ctx, id))
	assert.Equal(t, 3, dm.Count("gadgets"))

	var nf *NotFoundError
	assert.ErrorAs(t, r.Delete(ctx, id), &nf)

	_, err = r.Create(ctx, nil)
	var ve *ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestConnectedResource_EventsFireInOrder(t *testing.T) {
	r, _ := newDocumentResource(t)
	ctx := context.Background()

	var names []string
	r.Events().Attach(event.ListenerFunc(func(_ context.Context, e *event.Event) error {
		names = append(names, e.Name)
		return nil
	}))

	_, err := r.Fetch(ctx, "g1")
	require.NoError(t, err)
	_, err = r.FetchAll(ctx, nil)
	require.NoError(t, err)
	created, err := r.Create(ctx, map[string]any{"name": "x"})
	require.NoError(t, err)
	require.NoError(t, r.Delete(ctx, created["gadget_id"].(string)))

	assert.Equal(t, []string{
		"fetch.pre", "fetch.post",
		"fetch_all.pre", "fetch_all.post",
		"create.pre", "create.post",
		"delete.pre", "delete.post",
	}, names)
}

func TestConnectedResource_ListenerVeto(t *testing.T) {
	r, dm := newDocumentResource(t)
	guard, err := event.NewGuardListener(`event.Operation != "delete"`, "deletes disabled", nil)
	require.NoError(t, err)
	r.Events().Attach(guard)

	err = r.Delete(context.Background(), "g1")
	assert.ErrorIs(t, err, event.ErrRejected)
	assert.Equal(t, 3, dm.Count("gadgets"))
	assert.Equal(t, http.StatusForbidden, ToErrorResponse(err).StatusCode)
}

func TestConnectedResource_Hydrator(t *testing.T) {
	r, dm := newDocumentResource(t)
	h, err := hydrator.NewFieldHydrator(map[string]string{"name": "title"}, []string{"owner"})
	require.NoError(t, err)
	r.SetHydrator(h)
	ctx := context.Background()

	got, err := r.Fetch(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, "sprocket", got["title"])
	assert.NotContains(t, got, "owner")

	created, err := r.Create(ctx, map[string]any{"title": "flange", "owner": "mallory"})
	require.NoError(t, err)
	stored, err := dm.Find(ctx, "gadgets", "gadget_id", created["gadget_id"])
	require.NoError(t, err)
	assert.Equal(t, "flange", stored["name"])
	assert.NotContains(t, stored, "owner")
}

type stubAuthorizer map[string]map[string]any

func (s stubAuthorizer) ValidateToken(token string) (map[string]any, error) {
	if c, ok := s[token]; ok {
		return c, nil
	}
	return nil, auth.ErrInvalidToken
}

func (s stubAuthorizer) Introspect(string) *auth.Introspection { return &auth.Introspection{} }

func TestConnectedResource_OwnerScopedWithEntityManager(t *testing.T) {
	ctx := context.Background()
	em, err := persistence.OpenEntityManager(ctx, persistence.EntityOptions{
		DSN: ":memory:",
		Migrations: []string{
			`CREATE TABLE widgets (id TEXT PRIMARY KEY, name TEXT, owner TEXT)`,
			`INSERT INTO widgets VALUES ('w1', 'alpha', 'alice'), ('w2', 'bravo', 'bob')`,
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = em.Close() })

	authz := stubAuthorizer{"alice-token": {"sub": "alice"}}
	scoped := &query.OwnerScoped{}
	scoped.SetObjectManager(em)
	scoped.SetAuthorizer(authz)
	base := &query.DefaultORM{}
	base.SetObjectManager(em)
	filter, err := query.NewExpressionCreateFilter("", map[string]string{"owner": "claims.sub"})
	require.NoError(t, err)
	filter.SetObjectManager(em)
	filter.SetAuthorizer(authz)

	r := NewConnectedResource()
	r.SetName("widgets")
	r.SetEntityClass("widgets")
	r.SetObjectManager(em)
	r.SetQueryProviders(map[string]query.Provider{
		query.KeyDefault:  base,
		query.KeyFetchAll: scoped,
		query.KeyDelete:   scoped,
	})
	r.SetQueryCreateFilter(filter)

	aliceCtx := WithToken(ctx, "alice-token")

	page, err := r.FetchAll(aliceCtx, nil)
	require.NoError(t, err)
	require.Equal(t, 1, page.Meta.Total)
	assert.Equal(t, "alpha", page.Data[0]["name"])

	_, err = r.FetchAll(ctx, nil)
	assert.ErrorIs(t, err, query.ErrUnauthorized)
	assert.Equal(t, http.StatusUnauthorized, ToErrorResponse(err).StatusCode)

	created, err := r.Create(aliceCtx, map[string]any{"name": "charlie"})
	require.NoError(t, err)
	assert.Equal(t, "alice", created["owner"])

	var nf *NotFoundError
	assert.ErrorAs(t, r.Delete(aliceCtx, "w2"), &nf, "bob's widget is invisible to alice")
	require.NoError(t, r.Delete(aliceCtx, "w1"))

	got, err := r.Fetch(ctx, "w2")
	require.NoError(t, err, "fetch falls back to the default provider")
	assert.Equal(t, "bravo", got["name"])
}

func TestConnectedResource_PreGuardSeesClaims(t *testing.T) {
	r, dm := newDocumentResource(t)
	provider, err := auth.NewProvider(auth.Config{Issuer: "restwire-test", Secret: "s3cret"})
	require.NoError(t, err)
	for _, p := range r.QueryProviders() {
		p.SetAuthorizer(provider)
	}
	r.QueryCreateFilter().SetAuthorizer(provider)

	guard, err := event.NewGuardListener(`claims.role == "admin"`, "admins only", []string{event.Pre(event.OpDelete)})
	require.NoError(t, err)
	r.Events().Attach(guard)

	adminToken, err := provider.Issue(map[string]any{"sub": "alice", "role": "admin"})
	require.NoError(t, err)
	userToken, err := provider.Issue(map[string]any{"sub": "bob", "role": "user"})
	require.NoError(t, err)
	ctx := context.Background()

	err = r.Delete(WithToken(ctx, userToken), "g2")
	assert.ErrorIs(t, err, event.ErrRejected)
	assert.ErrorIs(t, r.Delete(ctx, "g2"), event.ErrRejected, "anonymous callers have no claims")

	require.NoError(t, r.Delete(WithToken(ctx, adminToken), "g1"))
	_, err = dm.Find(ctx, "gadgets", "gadget_id", "g1")
	var nf *persistence.NotFoundError
	assert.ErrorAs(t, err, &nf)

	_, err = r.Fetch(WithToken(ctx, "not-a-jwt"), "g2")
	assert.ErrorIs(t, err, query.ErrUnauthorized)

	got, err := r.Fetch(ctx, "g2")
	require.NoError(t, err, "reads without a token stay open")
	assert.Equal(t, "widget", got["name"])
}

func TestConnectedResource_IdentifierDiffersFromCollection(t *testing.T) {
	dm, err := persistence.NewDocumentManager(map[string]persistence.CollectionConfig{
		"widgets": {},
	}, nil)
	require.NoError(t, err)
	provider := &query.DefaultODM{}
	provider.SetObjectManager(dm)

	r := NewConnectedResource()
	r.SetName("widgets")
	r.SetEntityClass("widgets")
	r.SetEntityIdentifierName("widget_id")
	r.SetObjectManager(dm)
	r.SetQueryProviders(map[string]query.Provider{query.KeyDefault: provider})
	ctx := context.Background()

	created, err := r.Create(ctx, map[string]any{"name": "bolt"})
	require.NoError(t, err)
	id, _ := created["widget_id"].(string)
	require.NotEmpty(t, id)

	got, err := r.Fetch(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "bolt", got["name"])
	assert.Equal(t, id, got["widget_id"])

	require.NoError(t, r.Delete(ctx, id))
	_, err = r.Fetch(ctx, id)
	var nf *NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestConnectedResource_NoProvider(t *testing.T) {
	r := NewConnectedResource()
	r.SetName("empty")
	_, err := r.Fetch(context.Background(), "x")
	assert.ErrorContains(t, err, "no query provider")
}

func TestDescribe(t *testing.T) {
	r, _ := newDocumentResource(t)
	r.Events().Attach(event.NewLogListener(nil, 0))

	d := Describe(r)
	assert.Equal(t, "gadgets.v1", d.Name)
	assert.Equal(t, "gadgets", d.EntityClass)
	assert.Equal(t, "gadget_id", d.EntityIdentifierName)
	assert.Equal(t, "*persistence.DocumentManager", d.ObjectManager)
	assert.Empty(t, d.Hydrator)
	assert.Equal(t, map[string]string{"default": "*query.DefaultODM"}, d.QueryProviders)
	assert.Equal(t, "*query.DefaultCreateFilter", d.QueryCreateFilter)
	assert.False(t, d.Authorized)
	assert.Equal(t, 1, d.Listeners)
}

func TestToErrorResponse(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		label  string
	}{
		{"not found", &NotFoundError{Resource: "r", ID: "1"}, http.StatusNotFound, "resource not found"},
		{"validation", &ValidationError{Field: "limit", Message: "bad"}, http.StatusBadRequest, "invalid request"},
		{"conflict", &persistence.ConflictError{Entity: "e", ID: "1"}, http.StatusConflict, "resource already exists"},
		{"missing record", &persistence.NotFoundError{Entity: "e", ID: "1"}, http.StatusNotFound, "resource not found"},
		{"unauthorized", query.ErrUnauthorized, http.StatusUnauthorized, "unauthorized"},
		{"rejected", query.ErrRejected, http.StatusForbidden, "forbidden"},
		{"other", errors.New("boom"), http.StatusInternalServerError, "internal error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := ToErrorResponse(tt.err)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, tt.label, resp.Error)
		})
	}
}
