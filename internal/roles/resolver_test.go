package roles

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tailscale-portfolio/role-gateway/internal/apperr"
	"github.com/tailscale-portfolio/role-gateway/internal/identity"
)

type fakeStore struct {
	suppliers    []SupplierRecord
	admins       []AdminRecord
	supplierErr  error
	adminErr     error
	supplierHits int
	adminHits    int
}

func (f *fakeStore) Suppliers(context.Context) ([]SupplierRecord, error) {
	f.supplierHits++
	return f.suppliers, f.supplierErr
}

func (f *fakeStore) AdminsByEmail(_ context.Context, email string) ([]AdminRecord, error) {
	f.adminHits++
	if f.adminErr != nil {
		return nil, f.adminErr
	}
	var out []AdminRecord
	for _, a := range f.admins {
		if a.Email == email {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeStore) Ping(context.Context) error { return nil }
func (f *fakeStore) Name() string               { return "fake" }

func TestResolveSupplierExample(t *testing.T) {
	store := &fakeStore{suppliers: []SupplierRecord{{RecordID: "k1", Email: "s@x.com", Name: "Acme"}}}
	r := NewResolver(store, nil)

	ok, rec, err := r.ResolveSupplier(context.Background(), identity.Identity{Email: "s@x.com", UID: "u1"})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, &SupplierRecord{RecordID: "k1", Email: "s@x.com", Name: "Acme"}, rec)
}

func TestResolveSupplierByID(t *testing.T) {
	store := &fakeStore{suppliers: []SupplierRecord{
		{RecordID: "k1", Email: "other@x.com"},
		{RecordID: "k2", ID: "u1", Email: "legacy@x.com"},
	}}
	ok, rec, err := NewResolver(store, nil).ResolveSupplier(context.Background(), identity.Identity{Email: "s@x.com", UID: "u1"})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "k2", rec.RecordID)
}

func TestResolveSupplierFirstMatchWins(t *testing.T) {
	store := &fakeStore{suppliers: []SupplierRecord{
		{RecordID: "a", Email: "s@x.com", Name: "First"},
		{RecordID: "b", Email: "s@x.com", Name: "Second"},
	}}
	_, rec, err := NewResolver(store, nil).ResolveSupplier(context.Background(), identity.Identity{Email: "s@x.com"})
	require.NoError(t, err)
	assert.Equal(t, "First", rec.Name)
}

// Matching is case-sensitive and unnormalised. This documents current behavior.
func TestResolveRolesCaseSensitive(t *testing.T) {
	store := &fakeStore{
		suppliers: []SupplierRecord{{RecordID: "k1", Email: "a@x.com"}},
		admins:    []AdminRecord{{RecordID: "a1", Email: "a@x.com"}},
	}
	roles, err := NewResolver(store, nil).ResolveRoles(context.Background(), identity.Identity{Email: "A@x.com", UID: "u9"})
	require.NoError(t, err)
	assert.False(t, roles.IsSupplier)
	assert.False(t, roles.IsAdmin)

	roles, err = NewResolver(store, nil).ResolveRoles(context.Background(), identity.Identity{Email: " a@x.com", UID: "u9"})
	require.NoError(t, err)
	assert.False(t, roles.IsSupplier, "whitespace is not trimmed")
}

func TestResolveRolesNoMatch(t *testing.T) {
	store := &fakeStore{
		suppliers: []SupplierRecord{{RecordID: "k1", Email: "s@x.com"}},
		admins:    []AdminRecord{{RecordID: "a1", Email: "admin@x.com"}},
	}
	roles, err := NewResolver(store, nil).ResolveRoles(context.Background(), identity.Identity{Email: "nobody@x.com", UID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, Roles{}, roles)
}

func TestResolveRolesEvaluatesBoth(t *testing.T) {
	store := &fakeStore{
		suppliers: []SupplierRecord{{RecordID: "k1", Email: "both@x.com"}},
		admins:    []AdminRecord{{RecordID: "a1", Email: "both@x.com"}},
	}
	roles, err := NewResolver(store, nil).ResolveRoles(context.Background(), identity.Identity{Email: "both@x.com"})
	require.NoError(t, err)
	assert.True(t, roles.IsSupplier)
	assert.True(t, roles.IsAdmin)
	assert.Equal(t, "a1", roles.Admin.RecordID)
	assert.Equal(t, 1, store.supplierHits)
	assert.Equal(t, 1, store.adminHits)
}

func TestResolveRolesEmptyCollection(t *testing.T) {
	roles, err := NewResolver(&fakeStore{}, nil).ResolveRoles(context.Background(), identity.Identity{Email: "s@x.com"})
	require.NoError(t, err)
	assert.False(t, roles.IsSupplier)
	assert.Nil(t, roles.Supplier)
}

func TestEmptyEmailNeverMatches(t *testing.T) {
	store := &fakeStore{
		suppliers: []SupplierRecord{{RecordID: "k1"}},
		admins:    []AdminRecord{{RecordID: "a1"}},
	}
	roles, err := NewResolver(store, nil).ResolveRoles(context.Background(), identity.Identity{UID: "phone-only"})
	require.NoError(t, err)
	assert.False(t, roles.IsSupplier)
	assert.False(t, roles.IsAdmin)
	assert.Equal(t, 0, store.adminHits)
}

func TestResolveRolesStoreErrorAborts(t *testing.T) {
	cause := errors.New("connection reset")

	store := &fakeStore{supplierErr: cause}
	_, err := NewResolver(store, nil).ResolveRoles(context.Background(), identity.Identity{Email: "s@x.com"})
	var se *StoreError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "suppliers", se.Op)
	assert.ErrorIs(t, err, cause)

	store = &fakeStore{suppliers: []SupplierRecord{{RecordID: "k1", Email: "s@x.com"}}, adminErr: cause}
	roles, err := NewResolver(store, nil).ResolveRoles(context.Background(), identity.Identity{Email: "s@x.com"})
	require.ErrorAs(t, err, &se)
	assert.Equal(t, Roles{}, roles, "no partial result")
}

func TestGate(t *testing.T) {
	store := &fakeStore{
		suppliers: []SupplierRecord{{RecordID: "k1", Email: "s@x.com"}},
		admins:    []AdminRecord{{RecordID: "a1", Email: "admin@x.com"}},
	}
	gate := Gate{Resolver: NewResolver(store, nil)}
	ctx := context.Background()

	_, err := gate.RequireAdmin(ctx, nil)
	assert.Equal(t, apperr.KindAuth, apperr.KindOf(err))

	_, err = gate.RequireAdmin(ctx, &identity.Identity{Email: "s@x.com"})
	ae, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusForbidden, ae.Status())

	rec, err := gate.RequireAdmin(ctx, &identity.Identity{Email: "admin@x.com"})
	require.NoError(t, err)
	assert.Equal(t, "a1", rec.RecordID)

	sup, err := gate.RequireSupplier(ctx, &identity.Identity{Email: "s@x.com"})
	require.NoError(t, err)
	assert.Equal(t, "k1", sup.RecordID)

	_, err = gate.RequireSupplier(ctx, &identity.Identity{Email: "admin@x.com"})
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))

	_, err = gate.RequireSupplier(ctx, nil)
	assert.Equal(t, apperr.KindAuth, apperr.KindOf(err))
}

func TestGateStoreFailureIsNotForbidden(t *testing.T) {
	gate := Gate{Resolver: NewResolver(&fakeStore{adminErr: errors.New("timeout")}, nil)}
	_, err := gate.RequireAdmin(context.Background(), &identity.Identity{Email: "admin@x.com"})
	assert.Equal(t, apperr.KindStore, apperr.KindOf(err))
	var se *StoreError
	assert.ErrorAs(t, err, &se)
}
