package providers

import (
	"context"

	firebase "firebase.google.com/go/v4"
	"github.com/samber/do/v2"

	"github.com/tellmeastory/zine-server/internal/auth"
	"github.com/tellmeastory/zine-server/internal/config"
	"github.com/tellmeastory/zine-server/internal/logger"
	"github.com/tellmeastory/zine-server/internal/service"
)

// AuthKey wraps the authentication key bytes.
type AuthKey []byte

// ProvideAuthKey loads or generates the PASETO key under the data path.
func ProvideAuthKey(i do.Injector) (AuthKey, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	key, err := auth.LoadOrGenerateKey(cfg.Storage.DataPath)
	if err != nil {
		return nil, err
	}
	cfg.Auth.AccessTokenKey = key

	log.Info("Authentication key loaded", "access_token_duration", cfg.Auth.AccessTokenDuration)

	return AuthKey(key), nil
}

// Authenticator is the configured token verifier. Tokens is set in local mode,
// Identities when accounts live in Firebase Auth.
type Authenticator struct {
	Verifier   auth.Verifier
	Tokens     *auth.TokenService
	Identities service.UserDeleter
}

// ProvideAuthenticator provides the token verifier for cfg.Auth.Mode.
func ProvideAuthenticator(i do.Injector) (*Authenticator, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	if cfg.Auth.Mode == "firebase" {
		app := do.MustInvoke[*firebase.App](i)
		verifier, err := auth.NewFirebaseVerifier(context.Background(), app)
		if err != nil {
			return nil, err
		}
		log.Info("Authentication via Firebase ID tokens")
		return &Authenticator{Verifier: verifier, Identities: verifier}, nil
	}

	key := do.MustInvoke[AuthKey](i)
	tokens, err := auth.NewTokenService([]byte(key), cfg.Auth.AccessTokenDuration)
	if err != nil {
		return nil, err
	}
	log.Info("Authentication via local accounts")
	return &Authenticator{Verifier: tokens, Tokens: tokens}, nil
}
