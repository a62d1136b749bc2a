package session

import (
	"net/http"
	"time"

	"github.com/vango-dev/backoffice/pkg/token"
)

// DefaultCookieName is used when Options.Name is empty.
const DefaultCookieName = "auth_token"

// Options configures a Store.
type Options struct {
	// Name is the cookie name.
	Name string

	// Domain is the optional cookie Domain attribute.
	Domain string

	// Secure marks the cookie Secure. Set only for production deployments.
	Secure bool
}

// Store reads and writes the session cookie.
// Every cookie it emits is HttpOnly, SameSite=Lax and Path=/.
type Store struct {
	name   string
	domain string
	secure bool
}

// NewStore creates a cookie store.
func NewStore(opts Options) *Store {
	name := opts.Name
	if name == "" {
		name = DefaultCookieName
	}
	return &Store{
		name:   name,
		domain: opts.Domain,
		secure: opts.Secure,
	}
}

// Name returns the cookie name.
func (s *Store) Name() string {
	return s.name
}

// WriteOption adjusts a cookie before it is written.
type WriteOption func(*http.Cookie)

// WithMaxAge sets Max-Age, rounded down to whole seconds with a floor of one
// second. Non-positive durations leave the cookie session-scoped.
func WithMaxAge(d time.Duration) WriteOption {
	return func(c *http.Cookie) {
		if d <= 0 {
			return
		}
		secs := int(d / time.Second)
		if secs < 1 {
			secs = 1
		}
		c.MaxAge = secs
	}
}

// WithExpiry sets Max-Age to the time left until the claims' exp.
// Claims without exp leave the cookie session-scoped.
func WithExpiry(claims token.Claims, now time.Time) WriteOption {
	ttl, ok := claims.TTL(now)
	if !ok {
		return func(*http.Cookie) {}
	}
	return WithMaxAge(ttl)
}

// Write sets the session cookie to tok.
// Without options no Max-Age or Expires is set (browser-session lifetime).
func (s *Store) Write(w http.ResponseWriter, tok string, opts ...WriteOption) {
	cookie := s.cookie(tok)
	for _, opt := range opts {
		opt(cookie)
	}
	http.SetCookie(w, cookie)
}

// Clear expires the session cookie. Safe to call when no cookie exists.
func (s *Store) Clear(w http.ResponseWriter) {
	cookie := s.cookie("")
	// Negative MaxAge is serialized as "Max-Age=0".
	cookie.MaxAge = -1
	http.SetCookie(w, cookie)
}

// Read returns the raw token from the request cookie jar.
func (s *Store) Read(r *http.Request) (string, bool) {
	if r == nil {
		return "", false
	}
	cookie, err := r.Cookie(s.name)
	if err != nil || cookie.Value == "" {
		return "", false
	}
	return cookie.Value, true
}

// Lookup reads the cookie and validates the token it holds.
// The raw token is returned even when validation fails.
func (s *Store) Lookup(r *http.Request, v Validator) (string, token.Claims, error) {
	raw, ok := s.Read(r)
	if !ok {
		return "", token.Claims{}, ErrNoSession
	}
	claims, err := v.Check(raw)
	return raw, claims, err
}

func (s *Store) cookie(value string) *http.Cookie {
	cookie := &http.Cookie{
		Name:     s.name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	}
	if s.domain != "" {
		cookie.Domain = s.domain
	}
	return cookie
}
