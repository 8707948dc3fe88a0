package persistence

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// startPostgres boots a throwaway PostgreSQL server and returns its DSN.
func startPostgres(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres container in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	req := testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "restwire",
				"POSTGRES_PASSWORD": "restwire",
				"POSTGRES_DB":       "restwire",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	}

	pg, err := testcontainers.GenericContainer(ctx, req)
	testcontainers.CleanupContainer(t, pg)
	require.NoError(t, err)

	host, err := pg.Host(ctx)
	require.NoError(t, err)
	port, err := pg.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	return fmt.Sprintf("postgres://restwire:restwire@%s:%s/restwire?sslmode=disable", host, port.Port())
}

func TestEntityManager_Postgres(t *testing.T) {
	dsn := startPostgres(t)
	ctx := context.Background()

	em, err := OpenEntityManager(ctx, EntityOptions{
		Driver:     DriverPostgres,
		DSN:        dsn,
		Entities:   map[string]string{`Widgets\Entity\Widget`: "widgets"},
		Migrations: []string{widgetSchema},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = em.Close() })

	seedWidgets(t, em)

	rec, err := em.Find(ctx, `Widgets\Entity\Widget`, "id", "w2")
	require.NoError(t, err)
	assert.Equal(t, "bravo", rec["name"])

	records, err := em.CreateQueryBuilder().Select("row").From("widgets", "row").
		Where("owner", "alice").OrderBy("name", "asc").Fetch(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "alpha", records[0]["name"])
	assert.Equal(t, "charlie", records[1]["name"])

	require.NoError(t, em.Remove(ctx, "widgets", "id", "w1"))
	_, err = em.Find(ctx, "widgets", "id", "w1")
	var nf *NotFoundError
	assert.ErrorAs(t, err, &nf)
}
