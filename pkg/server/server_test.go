package server

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/vango-dev/backoffice/internal/config"
)

func mint(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("upstream-key"))
	if err != nil {
		t.Fatalf("SignedString() error: %v", err)
	}
	return signed
}

// newBackend serves the identity endpoint and echoes the Authorization
// header on every other path.
func newBackend(t *testing.T, token string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == config.DefaultUpstreamLoginPath {
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, `{"token":"`+token+`","username":"Ana"}`)
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		_, _ = io.WriteString(w, r.Method+" "+r.URL.RequestURI()+" "+r.Header.Get("Authorization"))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newServer(baseURL string) *Server {
	cfg := config.New()
	cfg.Upstream.BaseURL = baseURL
	app := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "page "+r.URL.Path)
	})
	return New(cfg, WithLogger(discard), WithRegistry(prometheus.NewRegistry()), WithApp(app))
}

func do(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	rec := do(newServer("").Handler(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != `{"status":"ok"}` {
		t.Fatalf("body = %s", got)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatal("missing X-Request-ID")
	}
}

func TestGuardRedirectsAnonymousPages(t *testing.T) {
	h := newServer("").Handler()

	tests := []struct {
		path     string
		location string
	}{
		{"/", "/login?next=%2F"},
		{"/orders/7", "/login?next=%2Forders%2F7"},
		{"//orders/../admin", "/login?next=%2Fadmin"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := do(h, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if rec.Code != http.StatusTemporaryRedirect {
				t.Fatalf("status = %d, want 307", rec.Code)
			}
			if loc := rec.Header().Get("Location"); loc != tt.location {
				t.Fatalf("Location = %q, want %q", loc, tt.location)
			}
		})
	}

	rec := do(h, httptest.NewRequest(http.MethodGet, "/login", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "page /login" {
		t.Fatalf("GET /login = %d %q, want the page", rec.Code, rec.Body.String())
	}
}

func TestLoginFlow(t *testing.T) {
	tok := mint(t, jwt.MapClaims{"sub": "ana@example.com", "role": "ADMIN", "exp": time.Now().Add(time.Hour).Unix()})
	h := newServer(newBackend(t, tok).URL).Handler()

	rec := do(h, httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"username":"ana","password":"pw"}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d, body %s", rec.Code, rec.Body.String())
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Value != tok {
		t.Fatalf("login cookies = %v", cookies)
	}
	if !cookies[0].HttpOnly || cookies[0].Secure {
		t.Fatalf("cookie flags HttpOnly=%v Secure=%v, want true/false in development", cookies[0].HttpOnly, cookies[0].Secure)
	}

	withCookie := func(req *http.Request) *http.Request {
		req.AddCookie(cookies[0])
		return req
	}

	rec = do(h, withCookie(httptest.NewRequest(http.MethodGet, "/auth/me", nil)))
	var me struct {
		Authenticated bool   `json:"authenticated"`
		Subject       string `json:"subject"`
		Role          string `json:"role"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &me); err != nil {
		t.Fatalf("decode /auth/me: %v", err)
	}
	if !me.Authenticated || me.Subject != "ana@example.com" || me.Role != "ADMIN" {
		t.Fatalf("/auth/me = %+v", me)
	}

	rec = do(h, withCookie(httptest.NewRequest(http.MethodGet, "/admin/users", nil)))
	if rec.Code != http.StatusOK || rec.Body.String() != "page /admin/users" {
		t.Fatalf("GET /admin/users = %d %q", rec.Code, rec.Body.String())
	}

	rec = do(h, withCookie(httptest.NewRequest(http.MethodDelete, "/backend/orders/7?force=1", nil)))
	if want := "DELETE /orders/7?force=1 Bearer " + tok; rec.Body.String() != want {
		t.Fatalf("proxied response = %q, want %q", rec.Body.String(), want)
	}

	rec = do(h, withCookie(httptest.NewRequest(http.MethodPost, "/auth/logout", nil)))
	if rec.Code != http.StatusOK {
		t.Fatalf("logout status = %d", rec.Code)
	}
	cleared := rec.Result().Cookies()
	if len(cleared) != 1 || cleared[0].MaxAge >= 0 {
		t.Fatalf("logout cookies = %v, want cleared", cleared)
	}
}

func TestRoleRuleRedirectsHome(t *testing.T) {
	tok := mint(t, jwt.MapClaims{"sub": "op", "role": "OPERATOR", "exp": time.Now().Add(time.Hour).Unix()})
	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.AddCookie(&http.Cookie{Name: config.DefaultCookieName, Value: tok})

	rec := do(newServer("").Handler(), req)
	if rec.Code != http.StatusTemporaryRedirect || rec.Header().Get("Location") != "/" {
		t.Fatalf("GET /admin as OPERATOR = %d %q, want 307 /", rec.Code, rec.Header().Get("Location"))
	}
}

func TestEncodedSlashDoesNotBypassRoleRule(t *testing.T) {
	tok := mint(t, jwt.MapClaims{"sub": "op", "role": "OPERATOR", "exp": time.Now().Add(time.Hour).Unix()})
	req := httptest.NewRequest(http.MethodGet, "/admin/..%2Flogin", nil)
	req.AddCookie(&http.Cookie{Name: config.DefaultCookieName, Value: tok})

	rec := do(newServer("").Handler(), req)
	if rec.Code != http.StatusTemporaryRedirect || rec.Header().Get("Location") != "/" {
		t.Fatalf("GET /admin/..%%2Flogin as OPERATOR = %d %q, want 307 /", rec.Code, rec.Header().Get("Location"))
	}
}

func TestBackendUnconfigured(t *testing.T) {
	rec := do(newServer("").Handler(), httptest.NewRequest(http.MethodGet, "/backend/orders", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}

func TestMetricsHandler(t *testing.T) {
	s := newServer("")
	do(s.Handler(), httptest.NewRequest(http.MethodGet, "/healthz", nil))
	do(s.Handler(), httptest.NewRequest(http.MethodGet, "/orders", nil))

	rec := do(s.MetricsHandler(), httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	for _, want := range []string{
		`backoffice_http_requests_total{method="GET",route="/healthz",status="200"} 1`,
		`backoffice_guard_decisions_total{state="no_token"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestClientIPHonorsTrustedProxies(t *testing.T) {
	cfg := config.New()
	cfg.Server.TrustedProxies = []string{"10.0.0.0/8"}
	s := New(cfg, WithLogger(discard), WithRegistry(prometheus.NewRegistry()))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.5:4000"
	req.Header.Set("X-Forwarded-For", "192.0.2.44")
	if got := s.ClientIP(req); got != "192.0.2.44" {
		t.Fatalf("ClientIP() = %q, want 192.0.2.44", got)
	}

	req.RemoteAddr = "garbage"
	if got := s.ClientIP(req); got != "" {
		t.Fatalf("ClientIP() = %q, want empty", got)
	}
}

func TestServeDrainsInFlightRequestsOnCancel(t *testing.T) {
	received := make(chan struct{})
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(received)
		time.Sleep(500 * time.Millisecond)
		_, _ = io.WriteString(w, "slow-ok")
	}))
	t.Cleanup(backend.Close)

	cfg := config.New()
	cfg.Upstream.BaseURL = backend.URL
	cfg.Server.MetricsAddress = ""
	s := New(cfg, WithLogger(discard), WithRegistry(prometheus.NewRegistry()))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	served := make(chan error, 1)
	go func() { served <- s.Serve(ctx, ln) }()

	type result struct {
		status int
		body   string
		err    error
	}
	done := make(chan result, 1)
	go func() {
		resp, err := http.Get("http://" + ln.Addr().String() + "/backend/slow")
		if err != nil {
			done <- result{err: err}
			return
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		done <- result{status: resp.StatusCode, body: string(body), err: err}
	}()

	select {
	case <-received:
	case <-time.After(5 * time.Second):
		t.Fatal("backend never received the request")
	}
	cancel()

	got := <-done
	if got.err != nil || got.status != http.StatusOK || got.body != "slow-ok" {
		t.Fatalf("in-flight request during shutdown = %d %q (err %v), want 200 \"slow-ok\"", got.status, got.body, got.err)
	}
	if err := <-served; err != nil {
		t.Fatalf("Serve() error: %v", err)
	}
}
