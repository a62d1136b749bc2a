// Package guard implements the edge guard: the per-request authentication
// and coarse role check that runs before any page handler.
//
// Every request is classified exactly once:
//
//	public             exempt prefix, passed through without reading the cookie
//	no_token           no session cookie, redirected to the login page
//	invalid, expired   unusable cookie, cleared and redirected to the login page
//	insufficient_role  valid session lacking the role of a protected prefix,
//	                   redirected to the home page
//	authorized         passed through with the session in the request context
package guard

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"sort"
	"strings"

	"github.com/vango-dev/backoffice/internal/config"
	"github.com/vango-dev/backoffice/pkg/middleware"
	"github.com/vango-dev/backoffice/pkg/session"
	"github.com/vango-dev/backoffice/pkg/token"
)

// State is the outcome of evaluating one request.
type State int

const (
	StatePublic State = iota
	StateNoToken
	StateInvalid
	StateExpired
	StateInsufficientRole
	StateAuthorized
)

// String returns the metrics label of the state.
func (s State) String() string {
	switch s {
	case StatePublic:
		return "public"
	case StateNoToken:
		return "no_token"
	case StateInvalid:
		return "invalid"
	case StateExpired:
		return "expired"
	case StateInsufficientRole:
		return "insufficient_role"
	case StateAuthorized:
		return "authorized"
	default:
		return "unknown"
	}
}

// Allowed reports whether the request may reach its handler.
func (s State) Allowed() bool {
	return s == StatePublic || s == StateAuthorized
}

// Decision is the result of Evaluate.
type Decision struct {
	State State

	// Location is the redirect target for denied requests.
	Location string

	// Token and Claims are set for StateAuthorized and StateInsufficientRole.
	Token  string
	Claims token.Claims
}

// Config configures a Guard.
type Config struct {
	// LoginPath receives unauthenticated requests (default: "/login").
	LoginPath string

	// HomePath receives authenticated requests lacking a role (default: "/").
	HomePath string

	// ReturnParam is the login query parameter holding the requested path
	// (default: "next").
	ReturnParam string

	// PublicPrefixes are exempt from the check.
	// Default: config.DefaultPublicPrefixes
	PublicPrefixes []string

	// RoleRules require an exact role below a prefix. The longest matching
	// prefix wins.
	RoleRules []config.RoleRule

	// Validator decides session validity.
	Validator session.Validator

	// Logger logs denied requests at debug level.
	Logger *slog.Logger

	// Metrics records every decision. Optional.
	Metrics *middleware.Metrics
}

// Guard evaluates requests against the session cookie.
type Guard struct {
	store       *session.Store
	loginPath   string
	homePath    string
	returnParam string
	public      []string
	rules       []config.RoleRule
	validator   session.Validator
	logger      *slog.Logger
	metrics     *middleware.Metrics
}

// New creates a Guard reading sessions from store.
func New(store *session.Store, cfg Config) *Guard {
	g := &Guard{
		store:       store,
		loginPath:   cfg.LoginPath,
		homePath:    cfg.HomePath,
		returnParam: cfg.ReturnParam,
		public:      cfg.PublicPrefixes,
		validator:   cfg.Validator,
		logger:      cfg.Logger,
		metrics:     cfg.Metrics,
	}
	if g.loginPath == "" {
		g.loginPath = "/login"
	}
	if g.homePath == "" {
		g.homePath = "/"
	}
	if g.returnParam == "" {
		g.returnParam = "next"
	}
	if g.public == nil {
		g.public = config.DefaultPublicPrefixes
	}
	if g.logger == nil {
		g.logger = slog.Default().With("component", "guard")
	}

	// Longest prefix first so the first match is the most specific.
	g.rules = append([]config.RoleRule(nil), cfg.RoleRules...)
	sort.SliceStable(g.rules, func(i, j int) bool {
		return len(g.rules[i].Prefix) > len(g.rules[j].Prefix)
	})
	return g
}

// Evaluate classifies r. It only reads the request; it never writes.
//
// When the request carries an escaped path, the router matches on that form
// while handlers may see the decoded one. Both are classified and the
// stricter result wins: the request is public only if both forms are, and
// every role rule matching either form applies.
func (g *Guard) Evaluate(r *http.Request) Decision {
	paths := candidatePaths(r.URL)
	p := paths[0]

	// Exempt paths are decided before the cookie is read so the login page
	// can never redirect to itself.
	if g.isPublic(paths) {
		return Decision{State: StatePublic}
	}

	raw, claims, err := g.store.Lookup(r, g.validator)
	switch {
	case errors.Is(err, session.ErrNoSession):
		return Decision{State: StateNoToken, Location: g.loginLocation(p)}
	case errors.Is(err, session.ErrSessionExpired):
		return Decision{State: StateExpired, Location: g.loginLocation(p)}
	case err != nil:
		return Decision{State: StateInvalid, Location: g.loginLocation(p)}
	}

	for _, cp := range paths {
		if rule, ok := g.ruleFor(cp); ok && claims.Role != rule.Role {
			return Decision{State: StateInsufficientRole, Location: g.homePath, Token: raw, Claims: claims}
		}
	}
	return Decision{State: StateAuthorized, Token: raw, Claims: claims}
}

// candidatePaths returns the cleaned decoded path, followed by the cleaned
// escaped path when it differs.
func candidatePaths(u *url.URL) []string {
	paths := []string{cleanPath(u.Path)}
	if u.RawPath != "" {
		if escaped := cleanPath(u.RawPath); escaped != paths[0] {
			paths = append(paths, escaped)
		}
	}
	return paths
}

// Middleware applies Evaluate to every request.
func (g *Guard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d := g.Evaluate(r)
		g.metrics.RecordGuard(d.State.String())

		switch d.State {
		case StatePublic:
			next.ServeHTTP(w, r)
			return
		case StateAuthorized:
			ctx := session.NewContext(r.Context(), session.Session{Token: d.Token, Claims: d.Claims})
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		case StateInvalid, StateExpired:
			g.store.Clear(w)
		}

		g.logger.Debug("request denied",
			"state", d.State.String(),
			"path", r.URL.Path,
			"location", d.Location,
			"request_id", middleware.RequestIDFromContext(r.Context()),
		)
		w.Header().Set("Cache-Control", "no-store")
		http.Redirect(w, r, d.Location, http.StatusTemporaryRedirect)
	})
}

func (g *Guard) isPublic(paths []string) bool {
	for _, p := range paths {
		if !g.matchesPublic(p) {
			return false
		}
	}
	return true
}

func (g *Guard) matchesPublic(p string) bool {
	for _, prefix := range g.public {
		if hasPathPrefix(p, prefix) {
			return true
		}
	}
	return false
}

func (g *Guard) ruleFor(p string) (config.RoleRule, bool) {
	for _, rule := range g.rules {
		if hasPathPrefix(p, rule.Prefix) {
			return rule, true
		}
	}
	return config.RoleRule{}, false
}

func (g *Guard) loginLocation(returnPath string) string {
	q := url.Values{}
	q.Set(g.returnParam, returnPath)
	return g.loginPath + "?" + q.Encode()
}

// hasPathPrefix matches whole segments: "/login" matches "/login" and
// "/login/x" but not "/loginx".
func hasPathPrefix(p, prefix string) bool {
	prefix = strings.TrimSuffix(prefix, "/")
	if prefix == "" {
		return true
	}
	return p == prefix || strings.HasPrefix(p, prefix+"/")
}

// cleanPath resolves dot segments and duplicate slashes.
func cleanPath(p string) string {
	if p == "" || p[0] != '/' {
		p = "/" + p
	}
	return path.Clean(p)
}
