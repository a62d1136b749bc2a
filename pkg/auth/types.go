package auth

// Credentials is the login request body.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResult is returned to the browser after a successful login.
type LoginResult struct {
	DisplayName string `json:"displayName"`
	Role        string `json:"role"`
	TokenType   string `json:"tokenType"`
}

// Identity describes the session of the current request.
// An unauthenticated identity serializes as {"authenticated":false}.
type Identity struct {
	Authenticated bool   `json:"authenticated"`
	Subject       string `json:"subject,omitempty"`
	Role          string `json:"role,omitempty"`

	// Exp is the token expiry in epoch seconds. Nil when the token has none.
	Exp *int64 `json:"exp,omitempty"`
}

// loginReply is the upstream login response. Every field is optional on the
// wire; only token is required for a successful login.
type loginReply struct {
	Token     string `json:"token"`
	Username  string `json:"username"`
	Role      string `json:"role"`
	TokenType string `json:"tokenType"`
}

// DefaultTokenType is reported when the upstream does not name one.
const DefaultTokenType = "Bearer"
