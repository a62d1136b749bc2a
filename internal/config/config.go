package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/vango-dev/backoffice/internal/errors"
)

const (
	// EnvFileName is the optional dotenv file loaded before reading the environment.
	EnvFileName = ".env"

	// DefaultCookieName is the session cookie name.
	DefaultCookieName = "auth_token"

	// DefaultListenAddr is the default public listener address.
	DefaultListenAddr = ":3000"

	// DefaultMetricsAddr is the default Prometheus listener address.
	DefaultMetricsAddr = ":9090"

	// DefaultUpstreamLoginPath is the identity endpoint relative to BACKEND_URL.
	DefaultUpstreamLoginPath = "/auth/login"

	// DefaultShutdownTimeout bounds graceful shutdown.
	DefaultShutdownTimeout = 15 * time.Second

	// EnvProduction is the APP_ENV value that enables Secure cookies.
	EnvProduction = "production"
)

// DefaultPublicPrefixes are exempt from the edge guard.
var DefaultPublicPrefixes = []string{
	"/login",
	"/auth",
	"/backend",
	"/static",
	"/assets",
	"/_internal",
	"/favicon.ico",
	"/healthz",
	"/metrics",
}

// Config is the complete gateway configuration.
type Config struct {
	// Environment is the deployment environment (APP_ENV).
	Environment string

	Upstream UpstreamConfig
	Server   ServerConfig
	Cookie   CookieConfig
	Session  SessionConfig
	Guard    GuardConfig
	Log      LogConfig
}

// UpstreamConfig describes the backend the gateway talks to.
type UpstreamConfig struct {
	// BaseURL is the upstream API base URL. Empty means unconfigured.
	BaseURL string

	// LoginPath is the identity endpoint path relative to BaseURL.
	LoginPath string

	// Timeout bounds each upstream call. Zero means no timeout.
	Timeout time.Duration
}

// ServerConfig contains listener settings.
type ServerConfig struct {
	Address         string
	MetricsAddress  string
	StaticDir       string
	TrustedProxies  []string
	ShutdownTimeout time.Duration
}

// CookieConfig contains session cookie settings.
type CookieConfig struct {
	Name   string
	Domain string

	// SyncExpiry sets the cookie Max-Age from the token exp claim on login.
	SyncExpiry bool
}

// SessionConfig contains session validity settings.
type SessionConfig struct {
	// RequireExpiry treats tokens without an exp claim as invalid.
	RequireExpiry bool
}

// GuardConfig contains edge guard settings.
type GuardConfig struct {
	LoginPath      string
	HomePath       string
	ReturnParam    string
	PublicPrefixes []string
	RoleRules      []RoleRule
}

// RoleRule requires an exact role for every path under Prefix.
type RoleRule struct {
	Prefix string
	Role   string
}

// LogConfig contains logger settings.
type LogConfig struct {
	Level  string
	Format string
}

// New creates a Config with default values.
func New() *Config {
	return &Config{
		Environment: "development",
		Upstream: UpstreamConfig{
			LoginPath: DefaultUpstreamLoginPath,
		},
		Server: ServerConfig{
			Address:         DefaultListenAddr,
			MetricsAddress:  DefaultMetricsAddr,
			ShutdownTimeout: DefaultShutdownTimeout,
		},
		Cookie: CookieConfig{
			Name:       DefaultCookieName,
			SyncExpiry: true,
		},
		Guard: GuardConfig{
			LoginPath:      "/login",
			HomePath:       "/",
			ReturnParam:    "next",
			PublicPrefixes: append([]string(nil), DefaultPublicPrefixes...),
			RoleRules:      []RoleRule{{Prefix: "/admin", Role: "ADMIN"}},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads the optional dotenv files (EnvFileName when none are given) and
// then builds the configuration from the process environment.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{EnvFileName}
	}
	for _, file := range envFiles {
		if _, err := os.Stat(file); err != nil {
			continue
		}
		if err := godotenv.Load(file); err != nil {
			return nil, errors.New(errors.CodeInvalidConfigValue).
				WithDetail("Failed to parse " + file).
				Wrap(err)
		}
	}
	return FromLookup(os.LookupEnv)
}

// FromLookup builds the configuration from a variable lookup function.
func FromLookup(lookup func(string) (string, bool)) (*Config, error) {
	cfg := New()
	get := func(key, fallback string) string {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
		return fallback
	}

	var err error
	cfg.Environment = strings.ToLower(get("APP_ENV", cfg.Environment))

	cfg.Upstream.BaseURL = get("BACKEND_URL", "")
	cfg.Upstream.LoginPath = get("UPSTREAM_LOGIN_PATH", cfg.Upstream.LoginPath)
	if cfg.Upstream.Timeout, err = parseDuration("UPSTREAM_TIMEOUT", get("UPSTREAM_TIMEOUT", ""), 0); err != nil {
		return nil, err
	}

	cfg.Server.Address = get("LISTEN_ADDR", cfg.Server.Address)
	if v, ok := lookup("METRICS_ADDR"); ok {
		// An explicitly empty METRICS_ADDR disables the metrics listener.
		cfg.Server.MetricsAddress = strings.TrimSpace(v)
	}
	cfg.Server.StaticDir = get("STATIC_DIR", "")
	cfg.Server.TrustedProxies = splitList(get("TRUSTED_PROXIES", ""))
	if cfg.Server.ShutdownTimeout, err = parseDuration("SHUTDOWN_TIMEOUT", get("SHUTDOWN_TIMEOUT", ""), cfg.Server.ShutdownTimeout); err != nil {
		return nil, err
	}

	cfg.Cookie.Name = get("COOKIE_NAME", cfg.Cookie.Name)
	cfg.Cookie.Domain = get("COOKIE_DOMAIN", "")
	if cfg.Cookie.SyncExpiry, err = parseBool("COOKIE_SYNC_EXPIRY", get("COOKIE_SYNC_EXPIRY", ""), cfg.Cookie.SyncExpiry); err != nil {
		return nil, err
	}
	if cfg.Session.RequireExpiry, err = parseBool("SESSION_REQUIRE_EXP", get("SESSION_REQUIRE_EXP", ""), false); err != nil {
		return nil, err
	}

	cfg.Guard.LoginPath = get("LOGIN_PATH", cfg.Guard.LoginPath)
	cfg.Guard.HomePath = get("HOME_PATH", cfg.Guard.HomePath)
	cfg.Guard.ReturnParam = get("RETURN_PARAM", cfg.Guard.ReturnParam)
	if prefixes := splitList(get("GUARD_PUBLIC_PREFIXES", "")); len(prefixes) > 0 {
		cfg.Guard.PublicPrefixes = prefixes
	}
	if raw := get("GUARD_ROLE_RULES", ""); raw != "" {
		if cfg.Guard.RoleRules, err = ParseRoleRules(raw); err != nil {
			return nil, err
		}
	}

	cfg.Log.Level = strings.ToLower(get("LOG_LEVEL", cfg.Log.Level))
	cfg.Log.Format = strings.ToLower(get("LOG_FORMAT", cfg.Log.Format))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports configuration that the gateway cannot run with.
// A missing or unusable BACKEND_URL is not one of them; see Warnings.
func (c *Config) Validate() error {
	invalid := func(detail string) error {
		return errors.New(errors.CodeInvalidConfigValue).WithDetail(detail)
	}

	for key, p := range map[string]string{"LOGIN_PATH": c.Guard.LoginPath, "HOME_PATH": c.Guard.HomePath} {
		if !strings.HasPrefix(p, "/") {
			return invalid(fmt.Sprintf("%s=%q must start with /", key, p))
		}
	}
	if c.Guard.ReturnParam == "" {
		return invalid("RETURN_PARAM must not be empty")
	}
	if c.Cookie.Name == "" || strings.ContainsAny(c.Cookie.Name, " \t;,=\"") {
		return invalid(fmt.Sprintf("COOKIE_NAME=%q is not a valid cookie name", c.Cookie.Name))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return invalid(fmt.Sprintf("LOG_FORMAT=%q must be text or json", c.Log.Format))
	}
	return nil
}

// IsProduction reports whether the gateway runs in a production deployment.
func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction
}

// UpstreamURL parses the configured upstream base URL.
// It returns a config-category error when the URL is missing or unusable.
func (c *Config) UpstreamURL() (*url.URL, error) {
	return ParseUpstreamURL(c.Upstream.BaseURL)
}

// ParseUpstreamURL validates an upstream base URL.
func ParseUpstreamURL(raw string) (*url.URL, error) {
	if raw == "" {
		return nil, errors.New(errors.CodeUpstreamNotConfigured)
	}
	u, err := url.Parse(raw)
	if err != nil {
		// *url.Error quotes the raw value, userinfo included.
		if ue, ok := err.(*url.Error); ok {
			err = ue.Err
		}
		return nil, errors.New(errors.CodeUpstreamInvalidURL).Wrap(err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, errors.New(errors.CodeUpstreamInvalidURL).
			WithDetail(fmt.Sprintf("BACKEND_URL %q must be an absolute http or https URL", u.Redacted()))
	}
	return u, nil
}

// RedactedUpstreamURL returns BACKEND_URL with any password masked, for logs.
// It is empty when the URL is missing or unusable.
func (c *Config) RedactedUpstreamURL() string {
	u, err := c.UpstreamURL()
	if err != nil {
		return ""
	}
	return u.Redacted()
}

// Warnings returns non-fatal configuration problems worth logging at startup.
func (c *Config) Warnings() []string {
	var warnings []string
	if _, err := c.UpstreamURL(); err != nil {
		warnings = append(warnings, err.Error()+"; login and /backend calls will fail with 500")
	}
	if !c.IsProduction() {
		warnings = append(warnings, "APP_ENV is not production; session cookie is sent without Secure")
	}
	if !c.Session.RequireExpiry {
		warnings = append(warnings, "SESSION_REQUIRE_EXP is off; tokens without exp never expire")
	}
	for _, prefix := range c.Guard.PublicPrefixes {
		if matchesPrefix(c.Guard.LoginPath, prefix) {
			return warnings
		}
	}
	return append(warnings, fmt.Sprintf("LOGIN_PATH %q is not a public prefix; the login page will redirect to itself", c.Guard.LoginPath))
}

// ParseRoleRules parses "prefix=ROLE,prefix=ROLE".
func ParseRoleRules(raw string) ([]RoleRule, error) {
	var rules []RoleRule
	for _, entry := range splitList(raw) {
		prefix, role, ok := strings.Cut(entry, "=")
		prefix = strings.TrimSpace(prefix)
		role = strings.TrimSpace(role)
		if !ok || !strings.HasPrefix(prefix, "/") || role == "" {
			return nil, errors.New(errors.CodeInvalidConfigValue).
				WithDetail(fmt.Sprintf("GUARD_ROLE_RULES entry %q must look like /prefix=ROLE", entry))
		}
		rules = append(rules, RoleRule{Prefix: prefix, Role: role})
	}
	return rules, nil
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseBool(key, raw string, fallback bool) (bool, error) {
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, errors.New(errors.CodeInvalidConfigValue).
			WithDetail(fmt.Sprintf("%s=%q is not a boolean", key, raw)).
			Wrap(err)
	}
	return v, nil
}

func parseDuration(key, raw string, fallback time.Duration) (time.Duration, error) {
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		return 0, errors.New(errors.CodeInvalidConfigValue).
			WithDetail(fmt.Sprintf("%s=%q is not a non-negative duration", key, raw)).
			Wrap(err)
	}
	return d, nil
}

// matchesPrefix mirrors the guard's segment-aware prefix match.
func matchesPrefix(path, prefix string) bool {
	prefix = strings.TrimSuffix(prefix, "/")
	if prefix == "" {
		return true
	}
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}
