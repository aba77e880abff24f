package auth

import "time"

// AccessClaims are the claims sealed inside a v4.local access token.
type AccessClaims struct {
	AccountID string `json:"account_id"`
	Email     string `json:"email"`

	Issuer     string    `json:"iss"`
	Subject    string    `json:"sub"`
	Audience   string    `json:"aud"`
	Expiration time.Time `json:"exp"`
	NotBefore  time.Time `json:"nbf"`
	IssuedAt   time.Time `json:"iat"`
	TokenID    string    `json:"jti"`
}
