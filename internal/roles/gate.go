package roles

import (
	"context"

	"github.com/tailscale-portfolio/role-gateway/internal/apperr"
	"github.com/tailscale-portfolio/role-gateway/internal/identity"
)

// Gate turns resolver answers into authorization decisions.
type Gate struct {
	Resolver *Resolver
}

// RequireAdmin fails with an auth error when id is nil, a forbidden error when the identity is
// not an admin, and a store error when the answer is indeterminate.
func (g Gate) RequireAdmin(ctx context.Context, id *identity.Identity) (*AdminRecord, error) {
	if id == nil {
		return nil, apperr.Unauthenticated("unauthenticated", "authentication required", nil)
	}
	ok, rec, err := g.Resolver.ResolveAdmin(ctx, *id)
	if err != nil {
		return nil, apperr.Store(err)
	}
	if !ok {
		return nil, apperr.Forbidden("admin_required", "admin access required")
	}
	return rec, nil
}

// RequireSupplier is RequireAdmin for the supplier registry; it returns the matched record.
func (g Gate) RequireSupplier(ctx context.Context, id *identity.Identity) (*SupplierRecord, error) {
	if id == nil {
		return nil, apperr.Unauthenticated("unauthenticated", "authentication required", nil)
	}
	ok, rec, err := g.Resolver.ResolveSupplier(ctx, *id)
	if err != nil {
		return nil, apperr.Store(err)
	}
	if !ok {
		return nil, apperr.Forbidden("supplier_required", "supplier access required")
	}
	return rec, nil
}
