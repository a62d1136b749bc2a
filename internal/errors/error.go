package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// Category represents the kind of failure.
type Category string

const (
	CategoryConfig   Category = "config"
	CategoryUpstream Category = "upstream"
	CategoryProtocol Category = "protocol"
	CategoryAuth     Category = "auth"
	CategoryRequest  Category = "request"
)

// GatewayError is a structured error with a stable code and HTTP rendering.
type GatewayError struct {
	// Code is a unique error identifier (e.g., "G001").
	Code string

	// Category is the error kind (config, upstream, ...).
	Category Category

	// Message is the client-facing description, rendered as {"error": Message}.
	Message string

	// Detail is a longer operator-facing explanation. Never sent to clients.
	Detail string

	// Status is the HTTP status the error renders as.
	Status int

	// Body is an upstream response body relayed verbatim.
	// Only set for upstream errors that carry a response.
	Body []byte

	// ContentType is the upstream Content-Type accompanying Body.
	ContentType string

	// Wrapped is the underlying error, if any.
	Wrapped error
}

// Error implements the error interface.
func (e *GatewayError) Error() string {
	msg := e.Message
	if e.Code != "" {
		msg = fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	if e.Category == CategoryUpstream && e.Status > 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.Status)
	}
	if e.Wrapped != nil {
		return fmt.Sprintf("%s: %v", msg, e.Wrapped)
	}
	return msg
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (e *GatewayError) Unwrap() error {
	return e.Wrapped
}

// WithDetail adds an operator-facing explanation.
func (e *GatewayError) WithDetail(d string) *GatewayError {
	e.Detail = d
	return e
}

// Wrap wraps another error.
func (e *GatewayError) Wrap(err error) *GatewayError {
	e.Wrapped = err
	return e
}

// New creates a GatewayError from a registered error code.
func New(code string) *GatewayError {
	template, ok := registry[code]
	if !ok {
		return &GatewayError{
			Code:    code,
			Message: "Unknown error",
			Status:  http.StatusInternalServerError,
		}
	}
	return &GatewayError{
		Code:     code,
		Category: template.Category,
		Message:  template.Message,
		Detail:   template.Detail,
		Status:   template.Status,
	}
}

// Upstream creates an upstream error relaying the given response verbatim.
func Upstream(status int, body []byte, contentType string) *GatewayError {
	err := New(CodeUpstreamStatus)
	err.Status = status
	err.Body = body
	err.ContentType = contentType
	return err
}

// FromError wraps a standard error in a GatewayError.
// Errors that already are (or wrap) a GatewayError are returned as is.
func FromError(err error, code string) *GatewayError {
	if err == nil {
		return nil
	}
	if ge, ok := As(err); ok {
		return ge
	}
	return New(code).Wrap(err)
}

// As reports whether err is or wraps a GatewayError.
func As(err error) (*GatewayError, bool) {
	var ge *GatewayError
	if stderrors.As(err, &ge) {
		return ge, true
	}
	return nil, false
}

// IsCategory reports whether err is a GatewayError of the given category.
func IsCategory(err error, category Category) bool {
	ge, ok := As(err)
	return ok && ge.Category == category
}
