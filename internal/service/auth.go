package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tellmeastory/zine-server/internal/auth"
	"github.com/tellmeastory/zine-server/internal/domain"
	domainerrors "github.com/tellmeastory/zine-server/internal/errors"
	"github.com/tellmeastory/zine-server/internal/id"
	"github.com/tellmeastory/zine-server/internal/store"
	"github.com/tellmeastory/zine-server/internal/validation"
)

// validate is the shared request validator.
var validate = validation.New()

// UserDeleter removes a user from an external identity provider.
// *auth.FirebaseVerifier implements it.
type UserDeleter interface {
	DeleteUser(ctx context.Context, uid string) error
}

// AccountService handles local accounts and account deletion.
type AccountService struct {
	docs          store.DocumentStore
	tokens        *auth.TokenService
	identities    UserDeleter
	sessions      *SessionRegistry
	notifications *NotificationService
	fanMail       *FanMailService
	logger        *slog.Logger
	now           func() time.Time
}

// NewAccountService creates the service. tokens is nil when an external provider
// issues tokens, which disables Register and Login. identities may be nil.
func NewAccountService(
	docs store.DocumentStore,
	tokens *auth.TokenService,
	identities UserDeleter,
	sessions *SessionRegistry,
	notifications *NotificationService,
	fanMail *FanMailService,
	logger *slog.Logger,
) *AccountService {
	return &AccountService{
		docs:          docs,
		tokens:        tokens,
		identities:    identities,
		sessions:      sessions,
		notifications: notifications,
		fanMail:       fanMail,
		logger:        logger,
		now:           time.Now,
	}
}

// RegisterRequest creates a local account.
type RegisterRequest struct {
	Email       string `json:"email" validate:"required,email,max=254"`
	Password    string `json:"password" validate:"required,min=8,max=1024"`
	DisplayName string `json:"display_name" validate:"omitempty,max=80"`
}

// LoginRequest holds local account credentials.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// AuthResult is returned by Register and Login.
type AuthResult struct {
	AccessToken string         `json:"access_token"`
	ExpiresAt   time.Time      `json:"expires_at"`
	Account     domain.Account `json:"account"`
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *AccountService) localOnly() error {
	if s.tokens == nil {
		return domainerrors.Forbidden("accounts are managed by the identity provider")
	}
	return nil
}

// Register creates an account and signs it in.
func (s *AccountService) Register(ctx context.Context, req RegisterRequest) (*AuthResult, error) {
	if err := s.localOnly(); err != nil {
		return nil, err
	}
	if err := validate.Validate(req); err != nil {
		return nil, err
	}

	email := normalizeEmail(req.Email)
	if _, err := s.docs.Get(ctx, store.CollectionAccountEmails, email); err == nil {
		return nil, domainerrors.Conflict("email already in use")
	} else if !domainerrors.Is(err, store.ErrNotFound) {
		return nil, persistence(err)
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	accountID, err := id.Generate(id.PrefixAccount)
	if err != nil {
		return nil, fmt.Errorf("generate account ID: %w", err)
	}

	acct := domain.Account{
		ID:           accountID,
		Email:        email,
		DisplayName:  strings.TrimSpace(req.DisplayName),
		PasswordHash: hash,
		CreatedAt:    s.now().UTC(),
	}
	b := store.NewBatch().
		Set(store.CollectionAccounts, acct.ID, map[string]any{
			"id":           acct.ID,
			"email":        acct.Email,
			"displayName":  acct.DisplayName,
			"passwordHash": acct.PasswordHash,
			"createdAt":    acct.CreatedAt,
		}, false).
		Set(store.CollectionAccountEmails, email, map[string]any{"accountId": acct.ID}, false)
	if err := b.Commit(ctx, s.docs); err != nil {
		return nil, persistence(err)
	}

	s.logger.Info("account registered", "user_id", acct.ID)
	return s.issue(acct)
}

// Login verifies credentials and issues a token.
func (s *AccountService) Login(ctx context.Context, req LoginRequest) (*AuthResult, error) {
	if err := s.localOnly(); err != nil {
		return nil, err
	}
	if err := validate.Validate(req); err != nil {
		return nil, err
	}

	acct, err := s.accountByEmail(ctx, normalizeEmail(req.Email))
	if err != nil {
		if domainerrors.Is(err, domainerrors.ErrNotFound) {
			// Same answer as a wrong password.
			return nil, domainerrors.InvalidCredentials("invalid email or password")
		}
		return nil, err
	}
	if !auth.VerifyPassword(acct.PasswordHash, req.Password) {
		return nil, domainerrors.InvalidCredentials("invalid email or password")
	}

	s.logger.Info("account signed in", "user_id", acct.ID)
	return s.issue(*acct)
}

func (s *AccountService) issue(acct domain.Account) (*AuthResult, error) {
	token, exp, err := s.tokens.Generate(acct.ID, acct.Email)
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}
	acct.PasswordHash = ""
	return &AuthResult{AccessToken: token, ExpiresAt: exp, Account: acct}, nil
}

func (s *AccountService) accountByEmail(ctx context.Context, email string) (*domain.Account, error) {
	doc, err := s.docs.Get(ctx, store.CollectionAccountEmails, email)
	if err != nil {
		if domainerrors.Is(err, store.ErrNotFound) {
			return nil, domainerrors.NotFound("account not found")
		}
		return nil, persistence(err)
	}
	var ref struct {
		AccountID string `json:"accountId"`
	}
	if err := store.Decode(doc, &ref); err != nil {
		return nil, persistence(err)
	}
	return s.account(ctx, ref.AccountID)
}

func (s *AccountService) account(ctx context.Context, accountID string) (*domain.Account, error) {
	doc, err := s.docs.Get(ctx, store.CollectionAccounts, accountID)
	if err != nil {
		if domainerrors.Is(err, store.ErrNotFound) {
			return nil, domainerrors.NotFound("account not found")
		}
		return nil, persistence(err)
	}
	var acct domain.Account
	if err := store.Decode(doc, &acct); err != nil {
		return nil, persistence(err)
	}
	return &acct, nil
}

// Logout closes the user's session and, for local tokens, revokes the token.
func (s *AccountService) Logout(_ context.Context, userID, token string) error {
	if s.tokens != nil && token != "" {
		if claims, err := s.tokens.Parse(token); err == nil {
			s.tokens.Revoke(claims)
		}
	}
	s.sessions.Close(userID)
	s.logger.Info("signed out", "user_id", userID)
	return nil
}

// Delete removes everything stored for the user: device topic subscriptions,
// live votes (taken back out of message tallies), the per-user collections and
// the account itself. Fan mail the user posted stays, as messages are anonymous.
func (s *AccountService) Delete(ctx context.Context, userID string) error {
	if userID == "" {
		return domainerrors.NotAuthenticated()
	}
	s.sessions.Close(userID)

	follows, err := s.docs.Query(ctx, store.FollowedZines(userID), store.OrderBy{})
	if err != nil {
		return persistence(err)
	}
	topics := make([]string, 0, len(follows))
	for _, f := range follows {
		topics = append(topics, domain.ZineTopic(f.ID))
	}
	if err := s.notifications.RemoveDevices(ctx, userID, topics); err != nil {
		return err
	}

	if err := s.fanMail.RetractVotes(ctx, userID); err != nil {
		return err
	}

	deleted := 0
	for _, coll := range store.UserSubCollections(userID) {
		n, err := store.DeleteCollection(ctx, s.docs, coll)
		if err != nil {
			return persistence(err)
		}
		deleted += n
	}

	if err := s.deleteIdentity(ctx, userID); err != nil {
		return err
	}

	s.logger.Info("account deleted", "user_id", userID, "documents", deleted, "topics", len(topics))
	return nil
}

func (s *AccountService) deleteIdentity(ctx context.Context, userID string) error {
	if s.identities != nil {
		if err := s.identities.DeleteUser(ctx, userID); err != nil {
			return domainerrors.Unknown(err)
		}
	}

	acct, err := s.account(ctx, userID)
	if err != nil {
		if domainerrors.Is(err, domainerrors.ErrNotFound) {
			return nil
		}
		return err
	}
	b := store.NewBatch().
		Delete(store.CollectionAccounts, acct.ID).
		Delete(store.CollectionAccountEmails, acct.Email)
	return persistence(b.Commit(ctx, s.docs))
}
