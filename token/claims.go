package token

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ExpiresAt reports the exp claim of a JWT access token without verifying
// its signature. It exists for diagnostics only (e.g. showing remaining
// lifetime); authorization decisions always belong to the server. ok is
// false when the token is not a parseable JWT or carries no exp claim.
func ExpiresAt(tok string) (time.Time, bool) {
	parser := jwt.NewParser()
	claims := jwt.RegisteredClaims{}
	if _, _, err := parser.ParseUnverified(tok, &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}
