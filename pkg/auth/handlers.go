package auth

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vango-dev/backoffice/internal/errors"
	"github.com/vango-dev/backoffice/pkg/middleware"
)

// maxCredentialsBytes caps the login request body.
const maxCredentialsBytes = 64 << 10

// Routes returns the /auth sub-router.
func (g *Gateway) Routes() http.Handler {
	r := chi.NewRouter()
	r.Post("/login", g.HandleLogin)
	r.Post("/logout", g.HandleLogout)
	r.Get("/me", g.HandleMe)
	return r
}

// HandleLogin serves POST /auth/login.
func (g *Gateway) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var creds Credentials
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxCredentialsBytes)).Decode(&creds); err != nil {
		g.metrics.RecordLogin(middleware.LoginBadRequest)
		errors.Render(w, errors.New(errors.CodeInvalidRequestBody).Wrap(err))
		return
	}
	if creds.Username == "" || creds.Password == "" {
		g.metrics.RecordLogin(middleware.LoginBadRequest)
		errors.Render(w, errors.New(errors.CodeMissingCredentials))
		return
	}

	result, err := g.Login(r.Context(), w, creds)
	if err != nil {
		g.logLoginError(r, err)
		errors.Render(w, err)
		return
	}
	errors.WriteJSON(w, http.StatusOK, result)
}

// HandleLogout serves POST /auth/logout.
func (g *Gateway) HandleLogout(w http.ResponseWriter, r *http.Request) {
	g.Logout(w)
	errors.WriteJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// HandleMe serves GET /auth/me.
func (g *Gateway) HandleMe(w http.ResponseWriter, r *http.Request) {
	id := g.WhoAmI(r)
	status := http.StatusOK
	if !id.Authenticated {
		status = http.StatusUnauthorized
	}
	errors.WriteJSON(w, status, id)
}

func (g *Gateway) logLoginError(r *http.Request, err error) {
	ge, ok := errors.As(err)
	if !ok {
		g.logger.Error("login failed", "error", err)
		return
	}
	attrs := []any{
		"code", ge.Code,
		"category", string(ge.Category),
		"status", ge.Status,
		"request_id", middleware.RequestIDFromContext(r.Context()),
	}
	switch {
	case ge.Category == errors.CategoryUpstream && ge.Body != nil:
		g.logger.Info("login rejected by upstream", attrs...)
	case ge.Category == errors.CategoryUpstream:
		g.logger.Error("login upstream unavailable", append(attrs, "error", ge.Unwrap())...)
	default:
		g.logger.Warn("login failed", append(attrs, "error", err)...)
	}
}
