package errors

import "net/http"

// Registered error codes.
const (
	CodeUpstreamNotConfigured = "G001"
	CodeUpstreamInvalidURL    = "G002"
	CodeInvalidConfigValue    = "G003"

	CodeUpstreamStatus      = "G101"
	CodeUpstreamUnavailable = "G102"

	CodeNoToken          = "G201"
	CodeInvalidToken     = "G202"
	CodeTokenExpired     = "G203"
	CodeTokenNoExpiry    = "G204"
	CodeInvalidLoginBody = "G205"

	CodeUnauthenticated  = "G301"
	CodeInsufficientRole = "G302"

	CodeInvalidRequestBody = "G401"
	CodeMissingCredentials = "G402"
	CodeInvalidProxyPath   = "G403"
)

// ErrorTemplate defines a registered error type.
type ErrorTemplate struct {
	Category Category
	Message  string
	Detail   string
	Status   int
}

// registry maps error codes to their templates.
var registry = map[string]ErrorTemplate{
	// ============================================
	// Configuration Errors (G001-G099)
	// ============================================

	CodeUpstreamNotConfigured: {
		Category: CategoryConfig,
		Message:  "BACKEND_URL is not configured",
		Detail:   "Set BACKEND_URL to the upstream API base URL. Every login and proxied call fails until it is set.",
		Status:   http.StatusInternalServerError,
	},
	CodeUpstreamInvalidURL: {
		Category: CategoryConfig,
		Message:  "BACKEND_URL is invalid",
		Detail:   "BACKEND_URL must be an absolute http or https URL.",
		Status:   http.StatusInternalServerError,
	},
	CodeInvalidConfigValue: {
		Category: CategoryConfig,
		Message:  "Invalid configuration value",
		Status:   http.StatusInternalServerError,
	},

	// ============================================
	// Upstream Errors (G100-G199)
	// ============================================

	CodeUpstreamStatus: {
		Category: CategoryUpstream,
		Message:  "Upstream rejected the request",
		Detail:   "The upstream answered with a non-2xx status. Status and body are relayed verbatim.",
		Status:   http.StatusBadGateway,
	},
	CodeUpstreamUnavailable: {
		Category: CategoryUpstream,
		Message:  "Upstream unavailable",
		Detail:   "The upstream could not be reached or the connection failed mid-request.",
		Status:   http.StatusBadGateway,
	},

	// ============================================
	// Protocol Errors (G200-G299)
	// ============================================

	CodeNoToken: {
		Category: CategoryProtocol,
		Message:  "No token in login response",
		Detail:   "The identity upstream answered 2xx without a token field.",
		Status:   http.StatusInternalServerError,
	},
	CodeInvalidToken: {
		Category: CategoryProtocol,
		Message:  "Invalid token in login response",
		Detail:   "The token issued by the identity upstream does not decode to a claims object.",
		Status:   http.StatusInternalServerError,
	},
	CodeTokenExpired: {
		Category: CategoryProtocol,
		Message:  "Token already expired",
		Detail:   "The identity upstream issued a token whose exp is not in the future. Check clock skew between hosts.",
		Status:   http.StatusInternalServerError,
	},
	CodeTokenNoExpiry: {
		Category: CategoryProtocol,
		Message:  "Token has no expiry",
		Detail:   "SESSION_REQUIRE_EXP is enabled and the issued token carries no exp claim.",
		Status:   http.StatusInternalServerError,
	},
	CodeInvalidLoginBody: {
		Category: CategoryProtocol,
		Message:  "Invalid login response",
		Detail:   "The identity upstream answered 2xx with a body that is not a JSON object.",
		Status:   http.StatusInternalServerError,
	},

	// ============================================
	// Auth Errors (G300-G399)
	// ============================================

	CodeUnauthenticated: {
		Category: CategoryAuth,
		Message:  "Not authenticated",
		Status:   http.StatusUnauthorized,
	},
	CodeInsufficientRole: {
		Category: CategoryAuth,
		Message:  "Insufficient role",
		Status:   http.StatusForbidden,
	},

	// ============================================
	// Request Errors (G400-G499)
	// ============================================

	CodeInvalidRequestBody: {
		Category: CategoryRequest,
		Message:  "Invalid request body",
		Status:   http.StatusBadRequest,
	},
	CodeMissingCredentials: {
		Category: CategoryRequest,
		Message:  "Username and password are required",
		Status:   http.StatusBadRequest,
	},
	CodeInvalidProxyPath: {
		Category: CategoryRequest,
		Message:  "Invalid backend path",
		Detail:   "Dot segments are not allowed in proxied paths.",
		Status:   http.StatusBadRequest,
	},
}

// GetAllCodes returns all registered error codes.
func GetAllCodes() []string {
	codes := make([]string, 0, len(registry))
	for code := range registry {
		codes = append(codes, code)
	}
	return codes
}

// GetTemplate returns the template for an error code.
func GetTemplate(code string) (ErrorTemplate, bool) {
	t, ok := registry[code]
	return t, ok
}
