package identity

import (
	"context"
	"errors"
)

// Directory abstracts the identity provider's user management API. Implementations can call
// the Auth0 Management API or serve static fixtures when offline.
type Directory interface {
	GetUser(ctx context.Context, uid string) (*User, error)
	UpdateUser(ctx context.Context, uid string, update ProfileUpdate) (*User, error)
	ListUsers(ctx context.Context, offset, limit int) (UserPage, error)
}

var (
	// ErrNotFound is returned when a user cannot be located.
	ErrNotFound = errors.New("identity: user not found")
)
