// Package session manages the single HttpOnly cookie that carries the bearer
// token, and decides whether the token it holds is a usable session.
//
// A session is valid only when the cookie is present, its token decodes to a
// claims object, and the exp claim is absent or strictly in the future.
// Expiry is the only invalidation mechanism; there is no revocation list.
//
//	store := session.NewStore(session.Options{Name: "auth_token", Secure: cfg.IsProduction()})
//	validator := session.Validator{RequireExpiry: cfg.Session.RequireExpiry}
//
//	raw, claims, err := store.Lookup(r, validator)
//	switch {
//	case errors.Is(err, session.ErrNoSession):
//	case errors.Is(err, session.ErrSessionExpired):
//	case err != nil: // invalid
//	}
package session
