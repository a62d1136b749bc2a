// Package errors defines the error taxonomy of the backoffice gateway.
//
// Every failure that reaches an HTTP boundary is a *GatewayError carrying a
// registered code, a category and the HTTP status it renders as:
//
//   - config: required configuration is absent or unusable (500)
//   - upstream: the identity or data upstream answered non-2xx or could not
//     be reached; status and body are relayed verbatim
//   - protocol: the upstream answered 2xx but broke the expected contract (500)
//   - auth: no usable session (401) or insufficient role (403)
//   - request: the inbound request itself is malformed (400)
//
// Callers branch on the category instead of catching generically:
//
//	var gerr *errors.GatewayError
//	if errors.As(err, &gerr) && gerr.Category == errors.CategoryUpstream {
//	    // relay gerr.Status and gerr.Body
//	}
//
// Nothing in this package retries. Retry, if any, belongs to the caller.
package errors
