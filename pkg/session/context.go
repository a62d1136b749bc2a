package session

import (
	"context"

	"github.com/vango-dev/backoffice/pkg/token"
)

// Session is a validated session attached to a request context.
type Session struct {
	Token  string
	Claims token.Claims
}

type sessionContextKey struct{}

// NewContext returns a context carrying s.
func NewContext(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, s)
}

// FromContext returns the session stored by the edge guard, if any.
func FromContext(ctx context.Context) (Session, bool) {
	if ctx == nil {
		return Session{}, false
	}
	s, ok := ctx.Value(sessionContextKey{}).(Session)
	return s, ok
}
