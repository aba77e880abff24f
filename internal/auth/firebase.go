package auth

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	fbauth "firebase.google.com/go/v4/auth"

	domainerrors "github.com/tellmeastory/zine-server/internal/errors"
)

// FirebaseVerifier accepts Firebase ID tokens minted by the mobile app's sign-in flow.
type FirebaseVerifier struct {
	client *fbauth.Client
}

var _ Verifier = (*FirebaseVerifier)(nil)

// NewFirebaseVerifier creates a verifier from a Firebase app.
func NewFirebaseVerifier(ctx context.Context, app *firebase.App) (*FirebaseVerifier, error) {
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("create auth client: %w", err)
	}
	return &FirebaseVerifier{client: client}, nil
}

// Verify checks the ID token signature and expiry and returns its uid.
func (v *FirebaseVerifier) Verify(ctx context.Context, token string) (string, error) {
	t, err := v.client.VerifyIDToken(ctx, token)
	if err != nil {
		return "", domainerrors.Unauthorized("invalid or expired token").WithCause(err)
	}
	return t.UID, nil
}

// DeleteUser removes the Firebase Auth user. A user that is already gone is not an error.
func (v *FirebaseVerifier) DeleteUser(ctx context.Context, uid string) error {
	err := v.client.DeleteUser(ctx, uid)
	if err != nil && !fbauth.IsUserNotFound(err) {
		return fmt.Errorf("delete auth user %s: %w", uid, err)
	}
	return nil
}
