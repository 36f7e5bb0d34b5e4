package roles

import (
	"context"
	"fmt"
)

// Store is the role registry: a supplier collection and an admin collection.
type Store interface {
	// Suppliers returns the whole supplier collection in store order. An empty or absent
	// collection yields an empty slice and a nil error.
	Suppliers(ctx context.Context) ([]SupplierRecord, error)
	// AdminsByEmail returns admin records whose email equals email exactly.
	AdminsByEmail(ctx context.Context, email string) ([]AdminRecord, error)
	// Ping checks connectivity.
	Ping(ctx context.Context) error
	// Name identifies the backend in health reports.
	Name() string
}

// Writer is implemented by stores that can be seeded.
type Writer interface {
	PutSupplier(ctx context.Context, rec SupplierRecord) error
	PutAdmin(ctx context.Context, rec AdminRecord) error
}

// StoreError reports a failed store access. Role resolution that hits one is indeterminate,
// not denied.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("roles: store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }
