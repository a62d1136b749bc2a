// Package server assembles the gateway: the chi router with its middleware
// chain, the auth, guard and proxy components, and the listeners.
//
// Request flow:
//
//	CleanPath -> RequestID -> Tracing -> Metrics -> AccessLog -> Recoverer -> Guard -> route
//
// Routes:
//
//	GET  /healthz      liveness, exempt from the guard
//	     /auth/*       login, logout, identity
//	ANY  /backend/*    upstream API proxy
//	     /*            the page application (static files from STATIC_DIR)
//
// Metrics are served on a separate listener (METRICS_ADDR).
package server

import (
	"context"
	stderrors "errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vango-dev/backoffice/internal/config"
	"github.com/vango-dev/backoffice/internal/errors"
	"github.com/vango-dev/backoffice/pkg/auth"
	"github.com/vango-dev/backoffice/pkg/guard"
	"github.com/vango-dev/backoffice/pkg/middleware"
	"github.com/vango-dev/backoffice/pkg/proxy"
	"github.com/vango-dev/backoffice/pkg/session"
	"github.com/vango-dev/backoffice/pkg/upstream"
)

// Listener timeouts. Write and read timeouts stay unset so long upstream
// downloads are not cut off; UPSTREAM_TIMEOUT bounds upstream calls instead.
const (
	readHeaderTimeout = 10 * time.Second
	idleTimeout       = 120 * time.Second
)

// Server is the assembled gateway.
type Server struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *prometheus.Registry
	metrics  *middleware.Metrics
	trusted  *trustedProxies

	store   *session.Store
	gateway *auth.Gateway
	guard   *guard.Guard
	proxy   *proxy.Proxy
	app     http.Handler
	router  chi.Router

	httpServer    *http.Server
	metricsServer *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithRegistry sets the Prometheus registry. The default is a fresh registry
// with the Go and process collectors.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(s *Server) {
		s.registry = reg
	}
}

// WithApp sets the page application mounted behind the guard.
// It overrides STATIC_DIR.
func WithApp(h http.Handler) Option {
	return func(s *Server) {
		s.app = h
	}
}

// New assembles a Server from cfg. It never fails: configuration problems
// such as a missing BACKEND_URL surface as 500 responses on dependent routes.
func New(cfg *config.Config, opts ...Option) *Server {
	s := &Server{
		cfg:    cfg,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.registry == nil {
		s.registry = prometheus.NewRegistry()
		s.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	if s.app == nil {
		s.app = staticApp(cfg.Server.StaticDir)
	}

	s.metrics = middleware.NewMetrics(middleware.WithRegistry(s.registry))
	s.trusted = newTrustedProxies(cfg.Server.TrustedProxies, s.logger)

	client := upstream.New(upstream.Options{
		BaseURL: cfg.Upstream.BaseURL,
		Timeout: cfg.Upstream.Timeout,
		Metrics: s.metrics,
	})
	s.store = session.NewStore(session.Options{
		Name:   cfg.Cookie.Name,
		Domain: cfg.Cookie.Domain,
		Secure: cfg.IsProduction(),
	})
	validator := session.Validator{RequireExpiry: cfg.Session.RequireExpiry}

	s.gateway = auth.New(client, s.store,
		auth.WithLoginPath(cfg.Upstream.LoginPath),
		auth.WithValidator(validator),
		auth.WithSyncExpiry(cfg.Cookie.SyncExpiry),
		auth.WithLogger(s.logger.With("component", "auth")),
		auth.WithMetrics(s.metrics),
	)
	s.guard = guard.New(s.store, guard.Config{
		LoginPath:      cfg.Guard.LoginPath,
		HomePath:       cfg.Guard.HomePath,
		ReturnParam:    cfg.Guard.ReturnParam,
		PublicPrefixes: cfg.Guard.PublicPrefixes,
		RoleRules:      cfg.Guard.RoleRules,
		Validator:      validator,
		Logger:         s.logger.With("component", "guard"),
		Metrics:        s.metrics,
	})
	s.proxy = proxy.New(client, s.store, proxy.WithLogger(s.logger.With("component", "proxy")))

	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(
		chimw.CleanPath,
		middleware.RequestID,
		middleware.Tracing(middleware.WithRequestFilter(func(r *http.Request) bool {
			return r.URL.Path != "/healthz"
		})),
		s.metrics.Handler,
		middleware.AccessLog(s.logger.With("component", "access"), s.ClientIP),
		chimw.Recoverer,
		s.guard.Middleware,
	)

	r.Get("/healthz", s.handleHealth)
	r.Mount("/auth", s.gateway.Routes())
	r.Handle("/backend/*", s.proxy)
	r.Handle("/*", s.app)
	return r
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Handler returns the gateway handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// MetricsHandler returns the Prometheus scrape handler.
func (s *Server) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry})
}

// ClientIP returns the client address of r, honoring TRUSTED_PROXIES.
func (s *Server) ClientIP(r *http.Request) string {
	addr := clientAddr(r, s.trusted)
	if !addr.IsValid() {
		return ""
	}
	return addr.String()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	errors.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Run listens on the configured address and serves until ctx is done or a
// listener fails, then shuts down gracefully within ShutdownTimeout.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Server.Address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener. Request contexts are not derived from
// ctx: cancelling it starts Shutdown, which lets in-flight requests finish.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.httpServer = &http.Server{
		Handler:           s,
		ReadHeaderTimeout: readHeaderTimeout,
		IdleTimeout:       idleTimeout,
		ErrorLog:          slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn),
	}

	errCh := make(chan error, 2)
	go func() {
		s.logger.Info("server starting", "address", ln.Addr().String())
		errCh <- s.httpServer.Serve(ln)
	}()

	if addr := s.cfg.Server.MetricsAddress; addr != "" {
		s.metricsServer = &http.Server{
			Addr:              addr,
			Handler:           s.MetricsHandler(),
			ReadHeaderTimeout: readHeaderTimeout,
		}
		go func() {
			s.logger.Info("metrics listener starting", "address", addr)
			errCh <- s.metricsServer.ListenAndServe()
		}()
	}

	select {
	case err := <-errCh:
		if !stderrors.Is(err, http.ErrServerClosed) {
			_ = s.Shutdown(context.Background())
			return err
		}
		return nil
	case <-ctx.Done():
		s.logger.Info("shutting down...")
		return s.Shutdown(context.Background())
	}
}

// Shutdown gracefully stops both listeners.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Server.ShutdownTimeout)
	defer cancel()

	var errs []error
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.logger.Error("shutdown error", "error", err)
			errs = append(errs, err)
		}
	}
	if s.metricsServer != nil {
		if err := s.metricsServer.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return stderrors.Join(errs...)
	}

	s.logger.Info("server shutdown complete")
	return nil
}

func staticApp(dir string) http.Handler {
	if dir == "" {
		return http.NotFoundHandler()
	}
	return http.FileServer(http.Dir(dir))
}
