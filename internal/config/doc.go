// Package config provides configuration loading for the backoffice gateway.
//
// Configuration comes from the process environment. A .env file in the
// working directory is loaded first when present; variables already set in
// the environment win over the file.
//
// # Variables
//
//	BACKEND_URL            upstream API base URL (required for login and proxy)
//	UPSTREAM_LOGIN_PATH    identity endpoint path          (default /auth/login)
//	UPSTREAM_TIMEOUT       upstream call timeout           (default 0, no timeout)
//	APP_ENV                development | production        (default development)
//	LISTEN_ADDR            public listener                 (default :3000)
//	METRICS_ADDR           Prometheus listener, "" disables (default :9090)
//	STATIC_DIR             directory served behind the guard
//	TRUSTED_PROXIES        comma-separated IPs/CIDRs for client IP resolution
//	SHUTDOWN_TIMEOUT       graceful shutdown bound         (default 15s)
//	COOKIE_NAME            session cookie name             (default auth_token)
//	COOKIE_DOMAIN          session cookie domain
//	COOKIE_SYNC_EXPIRY     set Max-Age from the token exp  (default true)
//	SESSION_REQUIRE_EXP    reject tokens without exp       (default false)
//	LOGIN_PATH             login page                      (default /login)
//	HOME_PATH              home page                       (default /)
//	RETURN_PARAM           return-target query parameter   (default next)
//	GUARD_PUBLIC_PREFIXES  comma-separated exempt prefixes (replaces defaults)
//	GUARD_ROLE_RULES       comma-separated prefix=ROLE     (default /admin=ADMIN)
//	LOG_LEVEL              debug | info | warn | error     (default info)
//	LOG_FORMAT             text | json                     (default text)
//
// A missing BACKEND_URL is not fatal. Load succeeds and every dependent call
// reports a configuration error (HTTP 500) until it is set.
//
// # Usage
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, w := range cfg.Warnings() {
//	    slog.Warn("config warning", "warning", w)
//	}
package config
