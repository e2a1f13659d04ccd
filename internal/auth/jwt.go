// Package auth inspects the bearer token the client presents to the server.
//
// The client never verifies signatures; that is the server's job. It only
// reads the claims so it can skip requests that would certainly be rejected.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrMissingToken = errors.New("authorization token required")
	ErrTokenExpired = errors.New("token expired")
)

// Claims represents the custom JWT claims for a user session.
type Claims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// ParseUnverified decodes the claims of a token without checking its signature.
func ParseUnverified(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrMissingToken
	}

	parser := jwt.NewParser()
	claims := &Claims{}
	if _, _, err := parser.ParseUnverified(tokenString, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	return claims, nil
}

// Expired reports whether the token's exp claim is at or before now.
// Tokens without an exp claim never expire.
func (c *Claims) Expired(now time.Time) bool {
	if c == nil || c.ExpiresAt == nil {
		return false
	}
	return !now.Before(c.ExpiresAt.Time)
}

// CheckToken parses the token and fails with ErrTokenExpired when it is no
// longer usable at now.
func CheckToken(tokenString string, now time.Time) (*Claims, error) {
	claims, err := ParseUnverified(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.Expired(now) {
		return claims, fmt.Errorf("%w: expired at %s", ErrTokenExpired, claims.ExpiresAt.Time.Format(time.RFC3339))
	}
	return claims, nil
}
