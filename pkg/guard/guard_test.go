package guard

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/vango-dev/backoffice/internal/config"
	"github.com/vango-dev/backoffice/pkg/middleware"
	"github.com/vango-dev/backoffice/pkg/session"
)

var now = time.Unix(1_700_000_000, 0)

func tokenFor(role string, exp time.Time) string {
	payload := fmt.Sprintf(`{"sub":"ana","role":%q,"exp":%d}`, role, exp.Unix())
	return "eyJhbGciOiJIUzI1NiJ9." + base64.RawURLEncoding.EncodeToString([]byte(payload)) + ".sig"
}

func newGuard(metrics *middleware.Metrics) *Guard {
	return New(session.NewStore(session.Options{}), Config{
		RoleRules: []config.RoleRule{{Prefix: "/admin", Role: "ADMIN"}},
		Validator: session.Validator{Now: func() time.Time { return now }},
		Metrics:   metrics,
	})
}

func request(target, tok string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if tok != "" {
		req.AddCookie(&http.Cookie{Name: session.DefaultCookieName, Value: tok})
	}
	return req
}

func TestEvaluate(t *testing.T) {
	valid := tokenFor("USER", now.Add(time.Hour))
	admin := tokenFor("ADMIN", now.Add(time.Hour))
	expired := tokenFor("ADMIN", now.Add(-time.Second))

	tests := []struct {
		name         string
		target       string
		token        string
		wantState    State
		wantLocation string
	}{
		{name: "login page", target: "/login", wantState: StatePublic},
		{name: "login subpath", target: "/login/reset", wantState: StatePublic},
		{name: "auth endpoint", target: "/auth/me", wantState: StatePublic},
		{name: "backend proxy", target: "/backend/products", wantState: StatePublic},
		{name: "static asset", target: "/static/app.js", wantState: StatePublic},
		{name: "favicon", target: "/favicon.ico", wantState: StatePublic},
		{name: "public ignores garbage cookie", target: "/login", token: "garbage", wantState: StatePublic},
		{name: "prefix is segment aware", target: "/loginx", wantState: StateNoToken, wantLocation: "/login?next=%2Floginx"},
		{name: "no token", target: "/vehicles", wantState: StateNoToken, wantLocation: "/login?next=%2Fvehicles"},
		{name: "garbage token", target: "/vehicles", token: "garbage", wantState: StateInvalid, wantLocation: "/login?next=%2Fvehicles"},
		{name: "expired token", target: "/vehicles", token: expired, wantState: StateExpired, wantLocation: "/login?next=%2Fvehicles"},
		{name: "authorized", target: "/vehicles?page=2", token: valid, wantState: StateAuthorized},
		{name: "root", target: "/", token: valid, wantState: StateAuthorized},
		{name: "admin as user", target: "/admin/x", token: valid, wantState: StateInsufficientRole, wantLocation: "/"},
		{name: "admin root as user", target: "/admin", token: valid, wantState: StateInsufficientRole, wantLocation: "/"},
		{name: "admin as admin", target: "/admin/x", token: admin, wantState: StateAuthorized},
		{name: "adminx is not admin", target: "/administration", token: valid, wantState: StateAuthorized},
		{name: "dot segments cleaned", target: "/login/../admin/x", token: valid, wantState: StateInsufficientRole, wantLocation: "/"},
		{name: "double slash cleaned", target: "//admin/x", token: valid, wantState: StateInsufficientRole, wantLocation: "/"},
		{name: "encoded slash under admin", target: "/admin/..%2Flogin", wantState: StateNoToken, wantLocation: "/login?next=%2Flogin"},
		{name: "encoded slash under admin as user", target: "/admin/..%2Flogin", token: valid, wantState: StateInsufficientRole, wantLocation: "/"},
		{name: "encoded letters in admin as user", target: "/%61dmin/x", token: valid, wantState: StateInsufficientRole, wantLocation: "/"},
		{name: "escaped backend segments stay public", target: "/backend/files/a%20b/c%2Fd", wantState: StatePublic},
	}

	g := newGuard(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := g.Evaluate(request(tt.target, tt.token))
			if d.State != tt.wantState {
				t.Fatalf("State = %v, want %v", d.State, tt.wantState)
			}
			if d.Location != tt.wantLocation {
				t.Fatalf("Location = %q, want %q", d.Location, tt.wantLocation)
			}
		})
	}
}

func TestEvaluate_LongestRoleRuleWins(t *testing.T) {
	g := New(session.NewStore(session.Options{}), Config{
		RoleRules: []config.RoleRule{
			{Prefix: "/admin", Role: "ADMIN"},
			{Prefix: "/admin/billing", Role: "ACCOUNTANT"},
		},
		Validator: session.Validator{Now: func() time.Time { return now }},
	})

	accountant := tokenFor("ACCOUNTANT", now.Add(time.Hour))
	if d := g.Evaluate(request("/admin/billing/invoices", accountant)); d.State != StateAuthorized {
		t.Fatalf("accountant on /admin/billing: State = %v, want authorized", d.State)
	}
	if d := g.Evaluate(request("/admin/users", accountant)); d.State != StateInsufficientRole {
		t.Fatalf("accountant on /admin/users: State = %v, want insufficient_role", d.State)
	}
}

func TestEvaluate_RequireExpiry(t *testing.T) {
	g := New(session.NewStore(session.Options{}), Config{
		Validator: session.Validator{RequireExpiry: true, Now: func() time.Time { return now }},
	})
	noExp := "eyJhbGciOiJIUzI1NiJ9." + base64.RawURLEncoding.EncodeToString([]byte(`{"sub":"ana"}`)) + ".sig"

	if d := g.Evaluate(request("/vehicles", noExp)); d.State != StateInvalid {
		t.Fatalf("State = %v, want invalid", d.State)
	}
}

func TestMiddleware_AllowsAndAttachesSession(t *testing.T) {
	var gotSubject string
	h := newGuard(nil).Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, ok := session.FromContext(r.Context())
		if !ok {
			t.Error("session missing from context")
		}
		gotSubject = s.Claims.Subject
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, request("/customers", tokenFor("USER", now.Add(time.Hour))))

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if gotSubject != "ana" {
		t.Fatalf("subject = %q, want ana", gotSubject)
	}
	if len(rec.Result().Cookies()) != 0 {
		t.Fatal("authorized request must pass through unmodified")
	}
}

func TestMiddleware_Redirects(t *testing.T) {
	tests := []struct {
		name         string
		target       string
		token        string
		wantLocation string
		wantClear    bool
	}{
		{name: "no token", target: "/daily-logs", wantLocation: "/login?next=%2Fdaily-logs"},
		{name: "expired clears cookie", target: "/daily-logs", token: tokenFor("USER", now.Add(-time.Minute)), wantLocation: "/login?next=%2Fdaily-logs", wantClear: true},
		{name: "invalid clears cookie", target: "/daily-logs", token: "x.y", wantLocation: "/login?next=%2Fdaily-logs", wantClear: true},
		{name: "insufficient role goes home", target: "/admin/x", token: tokenFor("USER", now.Add(time.Hour)), wantLocation: "/"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reached := false
			h := newGuard(nil).Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				reached = true
			}))

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, request(tt.target, tt.token))

			if reached {
				t.Fatal("denied request reached the handler")
			}
			if rec.Code != http.StatusTemporaryRedirect {
				t.Fatalf("status = %d, want 307", rec.Code)
			}
			if got := rec.Header().Get("Location"); got != tt.wantLocation {
				t.Fatalf("Location = %q, want %q", got, tt.wantLocation)
			}
			cleared := strings.Contains(rec.Header().Get("Set-Cookie"), "Max-Age=0")
			if cleared != tt.wantClear {
				t.Fatalf("cookie cleared = %v, want %v", cleared, tt.wantClear)
			}
		})
	}
}

func TestMiddleware_LoginPageNeverLoops(t *testing.T) {
	h := newGuard(nil).Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, request("/vehicles", ""))
	loc := rec.Header().Get("Location")

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, request(loc, tokenFor("USER", now.Add(-time.Hour))))
	if rec.Code != http.StatusOK {
		t.Fatalf("following the login redirect: status = %d, want 200", rec.Code)
	}
}

func TestMiddleware_RecordsDecisions(t *testing.T) {
	reg := prometheus.NewRegistry()
	h := newGuard(middleware.NewMetrics(middleware.WithRegistry(reg))).Middleware(http.NotFoundHandler())

	h.ServeHTTP(httptest.NewRecorder(), request("/login", ""))
	h.ServeHTTP(httptest.NewRecorder(), request("/vehicles", ""))
	h.ServeHTTP(httptest.NewRecorder(), request("/vehicles", ""))

	expected := `
# HELP backoffice_guard_decisions_total Edge guard decisions by state
# TYPE backoffice_guard_decisions_total counter
backoffice_guard_decisions_total{state="no_token"} 2
backoffice_guard_decisions_total{state="public"} 1
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "backoffice_guard_decisions_total"); err != nil {
		t.Fatal(err)
	}
}

func TestStateString(t *testing.T) {
	if StateInsufficientRole.String() != "insufficient_role" {
		t.Fatalf("String() = %q", StateInsufficientRole.String())
	}
	if State(99).String() != "unknown" {
		t.Fatalf("String() = %q", State(99).String())
	}
	if !StatePublic.Allowed() || !StateAuthorized.Allowed() || StateNoToken.Allowed() {
		t.Fatal("Allowed() mismatch")
	}
}
