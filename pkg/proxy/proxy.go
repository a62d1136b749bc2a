// Package proxy forwards /backend/* requests to the upstream API.
//
// The proxy authenticates to the upstream with the session token as a bearer
// credential; the browser's cookies never leave the edge. Status, headers and
// body are streamed back unmodified apart from hop-by-hop and framing headers.
// Redirects from the upstream are relayed, never followed.
package proxy

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	gwerrors "github.com/vango-dev/backoffice/internal/errors"
	"github.com/vango-dev/backoffice/pkg/middleware"
	"github.com/vango-dev/backoffice/pkg/session"
	"github.com/vango-dev/backoffice/pkg/upstream"
)

// hopHeaders are never relayed in either direction.
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Trailers",
	"Transfer-Encoding",
	"Upgrade",
	"Content-Length",
}

// Proxy is an http.Handler for the /backend/* surface.
type Proxy struct {
	client *upstream.Client
	store  *session.Store
	rp     *httputil.ReverseProxy
	logger *slog.Logger
}

// Option configures a Proxy.
type Option func(*Proxy)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Proxy) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithTransport replaces the upstream transport.
func WithTransport(rt http.RoundTripper) Option {
	return func(p *Proxy) {
		p.rp.Transport = rt
	}
}

// New creates a Proxy forwarding to client's base URL with the token read
// from store.
func New(client *upstream.Client, store *session.Store, opts ...Option) *Proxy {
	p := &Proxy{
		client: client,
		store:  store,
		logger: slog.Default().With("component", "proxy"),
	}
	p.rp = &httputil.ReverseProxy{
		Rewrite:        p.rewrite,
		ModifyResponse: modifyResponse,
		ErrorHandler:   p.handleError,
		Transport:      client.Transport(upstream.TargetBackend),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.rp.ErrorLog = slog.NewLogLogger(p.logger.Handler(), slog.LevelWarn)
	return p
}

// ServeHTTP forwards the request using the chi wildcard as the target path.
// Mount it on a "/backend/*" route.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	wildcard := chi.URLParam(r, "*")
	segments := strings.Split(wildcard, "/")
	// chi matches on RawPath when the request has one.
	if r.URL.RawPath != "" {
		for i, seg := range segments {
			unescaped, err := url.PathUnescape(seg)
			if err != nil {
				gwerrors.Render(w, gwerrors.New(gwerrors.CodeInvalidProxyPath).Wrap(err))
				return
			}
			segments[i] = unescaped
		}
	}
	p.Forward(w, r, segments)
}

type forwardKey struct{}

type forward struct {
	target *url.URL
	token  string
}

// Forward relays r to the upstream at base/segments?query.
//
// It renders 500 when the base URL is not configured, 400 when a segment is
// "." or "..", and 502 when the upstream cannot be reached.
func (p *Proxy) Forward(w http.ResponseWriter, r *http.Request, segments []string) {
	base, err := p.client.Base()
	if err != nil {
		p.logger.Error("backend proxy not configured", "error", err)
		gwerrors.Render(w, err)
		return
	}

	target, err := targetURL(base, segments, r.URL.RawQuery)
	if err != nil {
		gwerrors.Render(w, err)
		return
	}

	tok, _ := p.store.Read(r)
	ctx := context.WithValue(r.Context(), forwardKey{}, forward{target: target, token: tok})
	p.rp.ServeHTTP(w, r.WithContext(ctx))
}

// targetURL joins base and segments, escaping each segment, and appends the
// raw query verbatim.
func targetURL(base *url.URL, segments []string, rawQuery string) (*url.URL, error) {
	escaped := make([]string, len(segments))
	for i, seg := range segments {
		if seg == "." || seg == ".." {
			return nil, gwerrors.New(gwerrors.CodeInvalidProxyPath).
				WithDetail("dot segments are not forwarded")
		}
		escaped[i] = url.PathEscape(seg)
	}

	u := *base
	u.Path = strings.TrimSuffix(base.Path, "/") + "/" + strings.Join(segments, "/")
	u.RawPath = strings.TrimSuffix(base.EscapedPath(), "/") + "/" + strings.Join(escaped, "/")
	u.RawQuery = rawQuery
	u.Fragment = ""
	return &u, nil
}

func (p *Proxy) rewrite(pr *httputil.ProxyRequest) {
	fwd, _ := pr.In.Context().Value(forwardKey{}).(forward)

	pr.Out.URL = fwd.target
	pr.Out.Host = ""

	for _, h := range hopHeaders {
		pr.Out.Header.Del(h)
	}
	pr.Out.Header.Del("Host")
	pr.Out.Header.Del("Cookie")
	// A client-supplied Authorization is never trusted.
	pr.Out.Header.Del("Authorization")
	if fwd.token != "" {
		pr.Out.Header.Set("Authorization", "Bearer "+fwd.token)
	}

	if pr.In.Method == http.MethodGet || pr.In.Method == http.MethodHead {
		pr.Out.Body = nil
		pr.Out.GetBody = nil
		pr.Out.ContentLength = 0
	}
}

func modifyResponse(resp *http.Response) error {
	for _, h := range hopHeaders {
		resp.Header.Del(h)
	}
	resp.Trailer = nil
	return nil
}

func (p *Proxy) handleError(w http.ResponseWriter, r *http.Request, err error) {
	// Silent only when the client itself went away.
	if errors.Is(err, context.Canceled) && r.Context().Err() != nil {
		p.logger.Debug("client went away during backend call",
			"path", r.URL.Path,
			"request_id", middleware.RequestIDFromContext(r.Context()),
		)
		return
	}
	p.logger.Warn("backend call failed",
		"method", r.Method,
		"path", r.URL.Path,
		"error", err,
		"request_id", middleware.RequestIDFromContext(r.Context()),
	)
	gwerrors.Render(w, gwerrors.New(gwerrors.CodeUpstreamUnavailable).Wrap(err))
}
