package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vango-dev/backoffice/internal/config"
	"github.com/vango-dev/backoffice/pkg/server"
)

func serveCmd() *cobra.Command {
	var (
		envFiles []string
		addr     string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the gateway",
		Long: `Start the gateway and the metrics listener.

Environment:
  BACKEND_URL            upstream API base URL (required for login and /backend)
  UPSTREAM_LOGIN_PATH    identity endpoint, relative to BACKEND_URL
  UPSTREAM_TIMEOUT       upstream call timeout (e.g. 10s)
  APP_ENV                "production" enables the Secure cookie flag
  LISTEN_ADDR            public listener (default :3000)
  METRICS_ADDR           Prometheus listener (default :9090, empty disables)
  STATIC_DIR             directory served as the page application
  TRUSTED_PROXIES        comma-separated IPs/CIDRs of reverse proxies
  COOKIE_NAME, COOKIE_DOMAIN, COOKIE_SYNC_EXPIRY, SESSION_REQUIRE_EXP
  LOGIN_PATH, HOME_PATH, RETURN_PARAM, GUARD_PUBLIC_PREFIXES, GUARD_ROLE_RULES
  LOG_LEVEL, LOG_FORMAT

Examples:
  backoffice serve
  backoffice serve --env-file=.env.staging --addr=:8080`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), envFiles, addr, cmd.ErrOrStderr())
		},
	}

	cmd.Flags().StringSliceVarP(&envFiles, "env-file", "e", nil, "Dotenv files to load (default .env)")
	cmd.Flags().StringVarP(&addr, "addr", "a", "", "Listen address (overrides LISTEN_ADDR)")

	return cmd
}

func runServe(ctx context.Context, envFiles []string, addr string, stderr io.Writer) error {
	cfg, err := config.Load(envFiles...)
	if err != nil {
		return err
	}
	if addr != "" {
		cfg.Server.Address = addr
	}

	logger, err := newLogger(cfg.Log, stderr)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	for _, w := range cfg.Warnings() {
		logger.Warn(w)
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("backoffice gateway",
		"version", version,
		"environment", cfg.Environment,
		"upstream", cfg.RedactedUpstreamURL(),
	)
	return server.New(cfg, server.WithLogger(logger)).Run(ctx)
}

// newLogger builds the process logger from LOG_LEVEL and LOG_FORMAT.
func newLogger(cfg config.LogConfig, w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", cfg.Level, err)
	}
	opts := &slog.HandlerOptions{Level: level}

	switch cfg.Format {
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "text", "":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("invalid LOG_FORMAT %q: want text or json", cfg.Format)
	}
}
