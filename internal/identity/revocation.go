package identity

import (
	"context"
	"errors"
	"fmt"
)

// RevocationCheck wraps a Verifier and rejects tokens whose account is disabled or whose
// sessions were revoked after the token was issued.
type RevocationCheck struct {
	Next      Verifier
	Directory Directory
}

func (c RevocationCheck) Verify(ctx context.Context, rawToken string) (*Identity, error) {
	id, err := c.Next.Verify(ctx, rawToken)
	if err != nil {
		return nil, err
	}
	user, err := c.Directory.GetUser(ctx, id.UID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w: account no longer exists", ErrTokenRevoked)
		}
		return nil, fmt.Errorf("identity: revocation lookup: %w", err)
	}
	if user.Disabled {
		return nil, fmt.Errorf("%w: account disabled", ErrTokenRevoked)
	}
	if user.TokensValidAfter != nil && !id.IssuedAt.IsZero() && id.IssuedAt.Before(*user.TokensValidAfter) {
		return nil, fmt.Errorf("%w: issued before revocation", ErrTokenRevoked)
	}
	return id, nil
}
