package identity

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TTLForToken derives the session cache TTL from the token's exp claim
// without verifying its signature — the identity service, not authgate, is
// the authority on token validity (§1 non-goals, §4.3). If the token is not
// a JWT, or exp is absent or already past, DefaultTTL is used.
func TTLForToken(token string) time.Duration {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return DefaultTTL
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return DefaultTTL
	}

	ttl := time.Until(exp.Time)
	if ttl <= 0 {
		return DefaultTTL
	}
	return ttl
}
