package auth

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/vango-dev/backoffice/internal/config"
	"github.com/vango-dev/backoffice/internal/errors"
	"github.com/vango-dev/backoffice/pkg/middleware"
	"github.com/vango-dev/backoffice/pkg/session"
	"github.com/vango-dev/backoffice/pkg/upstream"
)

// maxReplyBytes caps how much of an upstream login reply is read.
const maxReplyBytes = 1 << 20

// Gateway performs login, logout and identity lookups.
// It holds no per-request state and is safe for concurrent use.
type Gateway struct {
	client     *upstream.Client
	http       *http.Client
	loginPath  string
	store      *session.Store
	validator  session.Validator
	syncExpiry bool
	logger     *slog.Logger
	metrics    *middleware.Metrics
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithLoginPath sets the upstream login path (default: "/auth/login").
func WithLoginPath(p string) Option {
	return func(g *Gateway) {
		if p != "" {
			g.loginPath = p
		}
	}
}

// WithValidator sets the session validator used for login tokens and WhoAmI.
func WithValidator(v session.Validator) Option {
	return func(g *Gateway) {
		g.validator = v
	}
}

// WithSyncExpiry sets the cookie Max-Age from the token exp on login.
func WithSyncExpiry(sync bool) Option {
	return func(g *Gateway) {
		g.syncExpiry = sync
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *middleware.Metrics) Option {
	return func(g *Gateway) {
		g.metrics = m
	}
}

// New creates a Gateway.
func New(client *upstream.Client, store *session.Store, opts ...Option) *Gateway {
	g := &Gateway{
		client:     client,
		loginPath:  config.DefaultUpstreamLoginPath,
		store:      store,
		syncExpiry: true,
		logger:     slog.Default().With("component", "auth"),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.http = client.HTTPClient(upstream.TargetLogin)
	return g
}

// Login exchanges creds for a token at the upstream identity endpoint and,
// only on success, writes the session cookie to w.
//
// Errors are *errors.GatewayError values: config (base URL unusable),
// upstream (non-2xx reply carrying status and body, or a network failure),
// or protocol (2xx reply without a usable token).
func (g *Gateway) Login(ctx context.Context, w http.ResponseWriter, creds Credentials) (result LoginResult, err error) {
	defer func() {
		g.metrics.RecordLogin(loginOutcome(err))
	}()

	endpoint, err := g.client.Endpoint(g.loginPath)
	if err != nil {
		return LoginResult{}, err
	}

	payload, err := json.Marshal(creds)
	if err != nil {
		return LoginResult{}, errors.New(errors.CodeInvalidRequestBody).Wrap(err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), bytes.NewReader(payload))
	if err != nil {
		return LoginResult{}, errors.New(errors.CodeUpstreamInvalidURL).Wrap(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := g.http.Do(req)
	if err != nil {
		return LoginResult{}, errors.New(errors.CodeUpstreamUnavailable).Wrap(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBytes))
	if err != nil {
		return LoginResult{}, errors.New(errors.CodeUpstreamUnavailable).Wrap(err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return LoginResult{}, errors.Upstream(resp.StatusCode, body, resp.Header.Get("Content-Type"))
	}

	var reply loginReply
	if err := json.Unmarshal(body, &reply); err != nil {
		return LoginResult{}, errors.New(errors.CodeInvalidLoginBody).Wrap(err)
	}
	if reply.Token == "" {
		return LoginResult{}, errors.New(errors.CodeNoToken)
	}

	claims, err := g.validator.Check(reply.Token)
	switch {
	case stderrors.Is(err, session.ErrSessionExpired):
		return LoginResult{}, errors.New(errors.CodeTokenExpired)
	case stderrors.Is(err, session.ErrNoExpiry):
		return LoginResult{}, errors.New(errors.CodeTokenNoExpiry)
	case err != nil:
		return LoginResult{}, errors.New(errors.CodeInvalidToken).Wrap(err)
	}
	if !claims.HasExpiry() {
		g.logger.Warn("login token has no exp claim; the session never expires", "subject", claims.Subject)
	}

	var writeOpts []session.WriteOption
	if g.syncExpiry {
		writeOpts = append(writeOpts, session.WithExpiry(claims, g.validator.Time()))
	}
	g.store.Write(w, reply.Token, writeOpts...)

	result = LoginResult{
		DisplayName: reply.Username,
		Role:        reply.Role,
		TokenType:   reply.TokenType,
	}
	if result.DisplayName == "" {
		result.DisplayName = claims.Subject
	}
	if result.Role == "" {
		result.Role = claims.Role
	}
	if result.TokenType == "" {
		result.TokenType = DefaultTokenType
	}
	return result, nil
}

// WhoAmI reports the identity of the request's session. It never refreshes
// or extends the session.
func (g *Gateway) WhoAmI(r *http.Request) Identity {
	_, claims, err := g.store.Lookup(r, g.validator)
	if err != nil {
		return Identity{}
	}
	id := Identity{
		Authenticated: true,
		Subject:       claims.Subject,
		Role:          claims.Role,
	}
	if exp, ok := claims.ExpiresUnix(); ok {
		id.Exp = &exp
	}
	return id
}

// Logout clears the session cookie. It always succeeds.
func (g *Gateway) Logout(w http.ResponseWriter) {
	g.store.Clear(w)
}

func loginOutcome(err error) string {
	switch {
	case err == nil:
		return middleware.LoginSuccess
	case errors.IsCategory(err, errors.CategoryConfig):
		return middleware.LoginConfigError
	case errors.IsCategory(err, errors.CategoryUpstream):
		return middleware.LoginUpstreamError
	case errors.IsCategory(err, errors.CategoryRequest):
		return middleware.LoginBadRequest
	default:
		return middleware.LoginProtocolError
	}
}
