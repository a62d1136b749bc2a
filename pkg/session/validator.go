package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/vango-dev/backoffice/pkg/token"
)

var (
	// ErrNoSession indicates the request carries no session cookie.
	ErrNoSession = errors.New("session: no session cookie")

	// ErrInvalidSession indicates the cookie holds a token that does not decode.
	ErrInvalidSession = errors.New("session: invalid token")

	// ErrSessionExpired indicates the token's exp is not in the future.
	ErrSessionExpired = errors.New("session: expired")

	// ErrNoExpiry indicates a token without exp while expiry is required.
	ErrNoExpiry = errors.New("session: token has no expiry")
)

// Validator decides whether a raw token is a usable session.
type Validator struct {
	// RequireExpiry rejects tokens without an exp claim.
	// When false, such tokens never expire.
	RequireExpiry bool

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// Check decodes raw and applies both validity checks: the token must decode,
// and it must not be expired.
func (v Validator) Check(raw string) (token.Claims, error) {
	if raw == "" {
		return token.Claims{}, ErrNoSession
	}
	claims, err := token.Decode(raw)
	if err != nil {
		return token.Claims{}, fmt.Errorf("%w: %w", ErrInvalidSession, err)
	}
	if !claims.HasExpiry() && v.RequireExpiry {
		return claims, ErrNoExpiry
	}
	if token.IsExpired(claims, v.Time()) {
		return claims, ErrSessionExpired
	}
	return claims, nil
}

// Time returns the validator's current time.
func (v Validator) Time() time.Time {
	if v.Now != nil {
		return v.Now()
	}
	return time.Now()
}
