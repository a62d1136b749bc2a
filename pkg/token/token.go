// Package token decodes the claims of the session bearer token.
//
// It is not a signature verifier. Decode only extracts the payload segment;
// the trust boundary is the HttpOnly session cookie, which only the login
// handler ever writes.
package token

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrMalformed is returned (wrapped) for every token that does not decode to
// a claims object.
var ErrMalformed = errors.New("token: malformed")

// Claims is the decoded payload segment of a token.
type Claims struct {
	// Subject is the sub claim. Empty when absent or not a string.
	Subject string

	// Role is the role claim. Empty when absent or not a string.
	Role string

	// ExpiresAt is the exp claim. Nil when absent.
	ExpiresAt *jwt.NumericDate

	// Raw holds every claim, including the opaque ones.
	Raw jwt.MapClaims
}

// Decode extracts the claims from a compact three-segment token.
//
// The payload segment is base64url-decoded with padding restored and parsed as
// a JSON object. A non-numeric exp is rejected. Failures never panic; they
// return an error wrapping ErrMalformed.
func Decode(raw string) (Claims, error) {
	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		return Claims{}, fmt.Errorf("%w: %d segments, want 3", ErrMalformed, len(parts))
	}

	payload, err := decodeSegment(parts[1])
	if err != nil {
		return Claims{}, fmt.Errorf("%w: payload: %v", ErrMalformed, err)
	}

	var claims jwt.MapClaims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return Claims{}, fmt.Errorf("%w: payload: %v", ErrMalformed, err)
	}
	if claims == nil {
		return Claims{}, fmt.Errorf("%w: payload is not an object", ErrMalformed)
	}

	exp, err := claims.GetExpirationTime()
	if err != nil {
		return Claims{}, fmt.Errorf("%w: exp: %v", ErrMalformed, err)
	}

	c := Claims{ExpiresAt: exp, Raw: claims}
	if sub, ok := claims["sub"].(string); ok {
		c.Subject = sub
	}
	if role, ok := claims["role"].(string); ok {
		c.Role = role
	}
	return c, nil
}

// decodeSegment decodes a base64url segment, restoring any stripped padding.
func decodeSegment(seg string) ([]byte, error) {
	seg = strings.NewReplacer("-", "+", "_", "/").Replace(seg)
	if rem := len(seg) % 4; rem != 0 {
		seg += strings.Repeat("=", 4-rem)
	}
	return base64.StdEncoding.DecodeString(seg)
}

// IsExpired reports whether the claims carry an exp that is not strictly in
// the future. Claims without exp never expire.
//
// Precondition: c came from a successful Decode. A decode failure is an
// invalid session on its own and must be checked before calling IsExpired.
func IsExpired(c Claims, now time.Time) bool {
	if c.ExpiresAt == nil {
		return false
	}
	return !c.ExpiresAt.Time.After(now)
}

// HasExpiry reports whether the exp claim is present.
func (c Claims) HasExpiry() bool {
	return c.ExpiresAt != nil
}

// ExpiresUnix returns exp in epoch seconds.
func (c Claims) ExpiresUnix() (int64, bool) {
	if c.ExpiresAt == nil {
		return 0, false
	}
	return c.ExpiresAt.Unix(), true
}

// TTL returns the time left until exp, or false when exp is absent.
func (c Claims) TTL(now time.Time) (time.Duration, bool) {
	if c.ExpiresAt == nil {
		return 0, false
	}
	return c.ExpiresAt.Time.Sub(now), true
}
