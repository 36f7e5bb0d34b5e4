// Package roles maps a verified identity to its supplier and admin memberships.
//
// Membership is decided by exact, case-sensitive string equality on email (and, for
// suppliers, on the record's id field against the identity uid). Records are not normalised,
// so "A@x.com" does not match "a@x.com". When several supplier records match, the first one
// in store order wins.
package roles

import (
	"context"
	"io"
	"log/slog"

	"github.com/tailscale-portfolio/role-gateway/internal/identity"
)

// Resolver answers role questions against a Store.
type Resolver struct {
	store  Store
	logger *slog.Logger
}

// NewResolver returns a Resolver over store. A nil logger discards output.
func NewResolver(store Store, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Resolver{store: store, logger: logger}
}

// ResolveSupplier scans the supplier collection and returns the first record whose email
// equals the identity's email or whose id equals the identity's uid.
func (r *Resolver) ResolveSupplier(ctx context.Context, id identity.Identity) (bool, *SupplierRecord, error) {
	records, err := r.store.Suppliers(ctx)
	if err != nil {
		return false, nil, &StoreError{Op: "suppliers", Err: err}
	}
	for i := range records {
		if supplierMatches(records[i], id) {
			rec := records[i]
			r.logger.Debug("supplier matched", "uid", id.UID, "record_id", rec.RecordID)
			return true, &rec, nil
		}
	}
	return false, nil, nil
}

// ResolveAdmin looks up admin records by the identity's email.
func (r *Resolver) ResolveAdmin(ctx context.Context, id identity.Identity) (bool, *AdminRecord, error) {
	if id.Email == "" {
		return false, nil, nil
	}
	records, err := r.store.AdminsByEmail(ctx, id.Email)
	if err != nil {
		return false, nil, &StoreError{Op: "admins_by_email", Err: err}
	}
	for i := range records {
		if records[i].Email == id.Email {
			rec := records[i]
			r.logger.Debug("admin matched", "uid", id.UID, "record_id", rec.RecordID)
			return true, &rec, nil
		}
	}
	return false, nil, nil
}

// ResolveRoles evaluates both memberships, one after the other. A failure in either aborts
// the whole resolution.
func (r *Resolver) ResolveRoles(ctx context.Context, id identity.Identity) (Roles, error) {
	isSupplier, supplier, err := r.ResolveSupplier(ctx, id)
	if err != nil {
		return Roles{}, err
	}
	isAdmin, admin, err := r.ResolveAdmin(ctx, id)
	if err != nil {
		return Roles{}, err
	}
	return Roles{
		IsSupplier: isSupplier,
		IsAdmin:    isAdmin,
		Supplier:   supplier,
		Admin:      admin,
	}, nil
}

func supplierMatches(rec SupplierRecord, id identity.Identity) bool {
	if id.Email != "" && rec.Email == id.Email {
		return true
	}
	return rec.ID != "" && rec.ID == id.UID
}
