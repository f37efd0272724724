package jwt

import (
	"context"
	"errors"
	"fmt"

	"dmchat/internal/app/user"
)

// ErrInvalidToken is wrapped by Verify when the token itself is unusable: malformed,
// forged or expired.
var ErrInvalidToken = errors.New("jwt: invalid token")

// Verifier resolves a session token to a directory identity. A token for a user that no
// longer exists does not verify.
type Verifier struct {
	secretKey string
	directory user.Directory
}

// NewVerifier returns a Verifier signing with secretKey and resolving through directory.
func NewVerifier(secretKey string, directory user.Directory) *Verifier {
	return &Verifier{secretKey: secretKey, directory: directory}
}

// Verify checks token and loads the identity it names. Rejected credentials wrap
// ErrInvalidToken or user.ErrNotFound; any other error is a directory failure.
func (v *Verifier) Verify(ctx context.Context, token string) (user.Identity, error) {
	payload, err := ParseToken(token, v.secretKey)
	if err != nil {
		return user.Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	identity, err := v.directory.GetByID(ctx, payload.ID)
	if err != nil {
		return user.Identity{}, fmt.Errorf("resolve user %s: %w", payload.ID, err)
	}

	return identity, nil
}
