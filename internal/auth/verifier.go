package auth

import "context"

// Verifier resolves a bearer token to the id of the signed-in user.
type Verifier interface {
	Verify(ctx context.Context, token string) (string, error)
}
