// Package upstream holds the shared plumbing for calls to the upstream API:
// the base URL, one connection pool, and a RoundTripper that propagates the
// request ID and trace context and records metrics.
package upstream

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/vango-dev/backoffice/internal/config"
	"github.com/vango-dev/backoffice/pkg/middleware"
)

// Targets label upstream metrics and client spans.
const (
	TargetLogin   = "login"
	TargetBackend = "backend"
)

// Options configures a Client.
type Options struct {
	// BaseURL is the upstream base URL. Empty or invalid values are not fatal:
	// every Endpoint call then returns the config error.
	BaseURL string

	// Timeout bounds each upstream call until its response headers arrive.
	// Zero means no timeout.
	Timeout time.Duration

	// Metrics records upstream calls. Optional.
	Metrics *middleware.Metrics

	// Base is the underlying RoundTripper. Defaults to a clone of
	// http.DefaultTransport.
	Base http.RoundTripper
}

// Client resolves upstream URLs and hands out instrumented transports.
// It is safe for concurrent use; all fields are read-only after New.
type Client struct {
	base    *url.URL
	baseErr error
	timeout time.Duration
	pool    http.RoundTripper
	metrics *middleware.Metrics
}

// New creates a Client.
func New(opts Options) *Client {
	c := &Client{
		timeout: opts.Timeout,
		metrics: opts.Metrics,
		pool:    opts.Base,
	}
	c.base, c.baseErr = config.ParseUpstreamURL(opts.BaseURL)
	if c.pool == nil {
		t := http.DefaultTransport.(*http.Transport).Clone()
		t.ResponseHeaderTimeout = opts.Timeout
		c.pool = t
	}
	return c
}

// Configured reports whether the base URL is usable.
func (c *Client) Configured() bool {
	return c.baseErr == nil
}

// Base returns a copy of the base URL, or the config error.
func (c *Client) Base() (*url.URL, error) {
	if c.baseErr != nil {
		return nil, c.baseErr
	}
	u := *c.base
	return &u, nil
}

// Endpoint returns the base URL with p appended verbatim.
// "https://api/v1" + "/auth/login" yields "https://api/v1/auth/login".
func (c *Client) Endpoint(p string) (*url.URL, error) {
	u, err := c.Base()
	if err != nil {
		return nil, err
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/" + strings.TrimPrefix(p, "/")
	u.RawPath = ""
	return u, nil
}

// Transport returns the instrumented RoundTripper for target.
func (c *Client) Transport(target string) http.RoundTripper {
	return NewTransport(c.pool, WithTarget(target), WithMetrics(c.metrics))
}

// HTTPClient returns an http.Client for target that never follows redirects
// and applies the configured timeout to the whole call.
func (c *Client) HTTPClient(target string) *http.Client {
	return &http.Client{
		Transport: c.Transport(target),
		Timeout:   c.timeout,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}
