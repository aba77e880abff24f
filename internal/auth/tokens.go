package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"aidanwoods.dev/go-paseto"

	domainerrors "github.com/tellmeastory/zine-server/internal/errors"
	"github.com/tellmeastory/zine-server/internal/id"
)

const (
	tokenIssuer   = "zine-server"
	tokenAudience = "zine-app"
	tokenIDPrefix = "tok"
)

// TokenService issues and verifies PASETO v4.local access tokens for local accounts.
type TokenService struct {
	now      func() time.Time
	revoked  map[string]time.Time // jti -> expiry
	key      paseto.V4SymmetricKey
	duration time.Duration
	mu       sync.Mutex
}

var _ Verifier = (*TokenService)(nil)

// NewTokenService creates a token service from a 32-byte key.
func NewTokenService(key []byte, duration time.Duration) (*TokenService, error) {
	if len(key) != keyLength {
		return nil, fmt.Errorf("token key must be %d bytes, got %d", keyLength, len(key))
	}
	k, err := paseto.V4SymmetricKeyFromBytes(key)
	if err != nil {
		return nil, fmt.Errorf("create symmetric key: %w", err)
	}
	return &TokenService{
		now:      time.Now,
		revoked:  make(map[string]time.Time),
		key:      k,
		duration: duration,
	}, nil
}

// Generate issues an access token for an account and returns it with its expiry.
func (s *TokenService) Generate(accountID, email string) (string, time.Time, error) {
	now := s.now()
	exp := now.Add(s.duration)

	tokenID, err := id.Generate(tokenIDPrefix)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("generate token id: %w", err)
	}

	token := paseto.NewToken()
	token.SetIssuer(tokenIssuer)
	token.SetAudience(tokenAudience)
	token.SetSubject(accountID)
	token.SetIssuedAt(now)
	token.SetNotBefore(now)
	token.SetExpiration(exp)
	token.SetJti(tokenID)
	//nolint:errcheck // Set only fails for values that cannot be marshaled
	_ = token.Set("account_id", accountID)
	//nolint:errcheck
	_ = token.Set("email", email)

	return token.V4Encrypt(s.key, nil), exp, nil
}

// Parse decrypts and validates a token.
func (s *TokenService) Parse(tokenString string) (*AccessClaims, error) {
	parser := paseto.NewParser()
	parser.AddRule(paseto.ForAudience(tokenAudience))
	parser.AddRule(paseto.IssuedBy(tokenIssuer))
	parser.AddRule(paseto.ValidAt(s.now()))

	token, err := parser.ParseV4Local(s.key, tokenString, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	var claims AccessClaims
	if err := json.Unmarshal(token.ClaimsJSON(), &claims); err != nil {
		return nil, fmt.Errorf("parse claims: %w", err)
	}

	s.mu.Lock()
	_, revoked := s.revoked[claims.TokenID]
	s.mu.Unlock()
	if revoked {
		return nil, fmt.Errorf("token %s has been revoked", claims.TokenID)
	}
	return &claims, nil
}

// Verify returns the account id of a valid token.
func (s *TokenService) Verify(_ context.Context, tokenString string) (string, error) {
	claims, err := s.Parse(tokenString)
	if err != nil {
		return "", domainerrors.Unauthorized("invalid or expired token").WithCause(err)
	}
	return claims.AccountID, nil
}

// Revoke rejects the token from now until it would have expired anyway.
func (s *TokenService) Revoke(claims *AccessClaims) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	for jti, exp := range s.revoked {
		if now.After(exp) {
			delete(s.revoked, jti)
		}
	}
	s.revoked[claims.TokenID] = claims.Expiration
}

// Duration returns the configured token lifetime.
func (s *TokenService) Duration() time.Duration {
	return s.duration
}
