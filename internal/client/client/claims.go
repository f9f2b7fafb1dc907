package client

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenClaims are the standard claims read from an access token.
type TokenClaims struct {
	Subject   string
	Email     string
	ExpiresAt time.Time
}

type accessClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// ParseTokenClaims decodes the claims of token without verifying its
// signature; the provider stays the authority on validity.
func ParseTokenClaims(token string) (TokenClaims, error) {
	claims := &accessClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return TokenClaims{}, fmt.Errorf("failed to parse access token: %w", err)
	}

	tc := TokenClaims{Subject: claims.Subject, Email: claims.Email}
	if claims.ExpiresAt != nil {
		tc.ExpiresAt = claims.ExpiresAt.Time
	}
	return tc, nil
}
