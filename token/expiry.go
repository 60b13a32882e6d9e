// Package token reads the claims the portal needs from the utility API's
// access tokens. Signatures are not checked; the backend remains the
// authority on token validity.
package token

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DecodeExpiry returns the exp claim of a JWT. ok is false when the token is
// malformed or carries no exp, which callers treat as expired.
func DecodeExpiry(raw string) (expiry time.Time, ok bool) {
	if strings.TrimSpace(raw) == "" {
		return time.Time{}, false
	}
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

// Expired reports whether raw should be refreshed at now.
func Expired(raw string, now time.Time) bool {
	expiry, ok := DecodeExpiry(raw)
	return !ok || !now.Before(expiry)
}
