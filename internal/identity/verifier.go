package identity

import (
	"context"
	"errors"
	"strings"
)

// Verifier turns a raw bearer credential into a verified Identity.
type Verifier interface {
	Verify(ctx context.Context, rawToken string) (*Identity, error)
}

// VerifierFunc adapts a function to the Verifier interface.
type VerifierFunc func(ctx context.Context, rawToken string) (*Identity, error)

func (f VerifierFunc) Verify(ctx context.Context, rawToken string) (*Identity, error) {
	return f(ctx, rawToken)
}

var (
	ErrTokenMissing = errors.New("identity: missing bearer token")
	ErrTokenInvalid = errors.New("identity: invalid token")
	ErrTokenExpired = errors.New("identity: token expired")
	ErrTokenRevoked = errors.New("identity: token revoked")
)

// ParseBearer extracts the token from the standard Authorization header value.
func ParseBearer(header string) (string, error) {
	if header == "" {
		return "", ErrTokenMissing
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", ErrTokenInvalid
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", ErrTokenMissing
	}
	return token, nil
}
