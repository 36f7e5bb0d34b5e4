//go:build integration
// +build integration

package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/tailscale-portfolio/role-gateway/internal/identity"
	"github.com/tailscale-portfolio/role-gateway/internal/roles"
	"github.com/tailscale-portfolio/role-gateway/internal/rolestore/postgres"
)

func setupStore(t *testing.T) *postgres.Store {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("roles"),
		tcpostgres.WithUsername("roles"),
		tcpostgres.WithPassword("roles"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("terminate container: %s", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	store, err := postgres.Open(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.EnsureSchema(ctx))
	// second call is a no-op
	require.NoError(t, store.EnsureSchema(ctx))
	return store
}

func TestStoreRoundTrip(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.PutSupplier(ctx, roles.SupplierRecord{RecordID: "k2", Email: "b@x.com"}))
	require.NoError(t, store.PutSupplier(ctx, roles.SupplierRecord{RecordID: "k1", Email: "s@x.com", Name: "Acme"}))
	require.NoError(t, store.PutAdmin(ctx, roles.AdminRecord{RecordID: "a1", Email: "admin@x.com"}))

	sup, err := store.Suppliers(ctx)
	require.NoError(t, err)
	require.Len(t, sup, 2)
	assert.Equal(t, "k1", sup[0].RecordID)
	assert.Equal(t, "Acme", sup[0].Name)

	admins, err := store.AdminsByEmail(ctx, "admin@x.com")
	require.NoError(t, err)
	require.Len(t, admins, 1)

	admins, err = store.AdminsByEmail(ctx, "ADMIN@x.com")
	require.NoError(t, err)
	assert.Empty(t, admins)

	// upsert replaces the document
	require.NoError(t, store.PutAdmin(ctx, roles.AdminRecord{RecordID: "a1", Email: "moved@x.com"}))
	admins, err = store.AdminsByEmail(ctx, "admin@x.com")
	require.NoError(t, err)
	assert.Empty(t, admins)

	assert.NoError(t, store.Ping(ctx))
}

func TestResolverOverPostgres(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	require.NoError(t, store.PutSupplier(ctx, roles.SupplierRecord{RecordID: "k1", Email: "s@x.com"}))

	r, err := roles.NewResolver(store, nil).ResolveRoles(ctx, identity.Identity{Email: "s@x.com"})
	require.NoError(t, err)
	assert.True(t, r.IsSupplier)
	assert.False(t, r.IsAdmin)
}
