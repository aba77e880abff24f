package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/tellmeastory/zine-server/internal/service"
)

func (s *Server) registerAuthRoutes() {
	limited := huma.Middlewares{s.rateLimitOperation(s.authRateLimiter)}

	huma.Register(s.api, huma.Operation{
		OperationID: "register",
		Method:      http.MethodPost,
		Path:        "/api/v1/auth/register",
		Summary:     "Register",
		Description: "Creates a local account and returns an access token. Unavailable when an external identity provider issues tokens.",
		Tags:        []string{"Authentication"},
		Middlewares: limited,
	}, s.handleRegister)

	huma.Register(s.api, huma.Operation{
		OperationID: "login",
		Method:      http.MethodPost,
		Path:        "/api/v1/auth/login",
		Summary:     "Login",
		Description: "Authenticates a local account and returns an access token",
		Tags:        []string{"Authentication"},
		Middlewares: limited,
	}, s.handleLogin)

	huma.Register(s.api, huma.Operation{
		OperationID: "logout",
		Method:      http.MethodPost,
		Path:        "/api/v1/auth/logout",
		Summary:     "Logout",
		Description: "Revokes the current token and closes the user's session",
		Tags:        []string{"Authentication"},
		Security:    bearerSecurity,
	}, s.handleLogout)

	huma.Register(s.api, huma.Operation{
		OperationID:   "deleteAccount",
		Method:        http.MethodDelete,
		Path:          "/api/v1/account",
		Summary:       "Delete account",
		Description:   "Deletes the account with its follows, bookmarks, reads, devices and votes",
		Tags:          []string{"Authentication"},
		Security:      bearerSecurity,
		DefaultStatus: http.StatusOK,
	}, s.handleDeleteAccount)
}

// === DTOs ===

// RegisterRequest is the request body for registration.
type RegisterRequest struct {
	Email       string `json:"email" doc:"Email address"`
	Password    string `json:"password" doc:"Password, at least 8 characters"`
	DisplayName string `json:"display_name,omitempty" doc:"Name shown to other readers"`
}

// RegisterInput wraps the register request for Huma.
type RegisterInput struct {
	Body RegisterRequest
}

// LoginRequest is the request body for login.
type LoginRequest struct {
	Email    string `json:"email" doc:"Email address"`
	Password string `json:"password" doc:"Password"`
}

// LoginInput wraps the login request for Huma.
type LoginInput struct {
	Body LoginRequest
}

// AuthOutput wraps an issued token for Huma.
type AuthOutput struct {
	Body *service.AuthResult
}

// MessageResponse is a plain acknowledgement.
type MessageResponse struct {
	Message string `json:"message" doc:"Result message"`
}

// MessageOutput wraps a MessageResponse for Huma.
type MessageOutput struct {
	Body MessageResponse
}

// === Handlers ===

func (s *Server) handleRegister(ctx context.Context, input *RegisterInput) (*AuthOutput, error) {
	res, err := s.services.Accounts.Register(ctx, service.RegisterRequest{
		Email:       input.Body.Email,
		Password:    input.Body.Password,
		DisplayName: input.Body.DisplayName,
	})
	if err != nil {
		return nil, err
	}
	return &AuthOutput{Body: res}, nil
}

func (s *Server) handleLogin(ctx context.Context, input *LoginInput) (*AuthOutput, error) {
	res, err := s.services.Accounts.Login(ctx, service.LoginRequest{
		Email:    input.Body.Email,
		Password: input.Body.Password,
	})
	if err != nil {
		return nil, err
	}
	return &AuthOutput{Body: res}, nil
}

func (s *Server) handleLogout(ctx context.Context, _ *struct{}) (*MessageOutput, error) {
	userID, err := GetUserID(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.services.Accounts.Logout(ctx, userID, bearerToken(ctx)); err != nil {
		return nil, err
	}
	return &MessageOutput{Body: MessageResponse{Message: "Logged out"}}, nil
}

func (s *Server) handleDeleteAccount(ctx context.Context, _ *struct{}) (*MessageOutput, error) {
	userID, err := GetUserID(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.services.Accounts.Delete(ctx, userID); err != nil {
		return nil, err
	}
	return &MessageOutput{Body: MessageResponse{Message: "Account deleted"}}, nil
}
