package carrier

import (
	"errors"
	"fmt"
)

// Error represents a failure reported by a carrier-booking provider. Body
// carries the provider's raw error payload so callers can surface it intact.
type Error struct {
	Carrier    string
	Code       string
	Message    string
	Body       string
	StatusCode int
	Retryable  bool
	Cause      error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s error (%s): %s: %v", e.Carrier, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s error (%s): %s", e.Carrier, e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches two carrier errors by code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewError creates a new carrier error.
func NewError(carrier, code, message string) *Error {
	return &Error{
		Carrier: carrier,
		Code:    code,
		Message: message,
	}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(err error) *Error {
	e.Cause = err
	return e
}

// WithStatusCode adds the provider's HTTP status code.
func (e *Error) WithStatusCode(code int) *Error {
	e.StatusCode = code
	return e
}

// WithBody attaches the provider's raw error body.
func (e *Error) WithBody(body string) *Error {
	e.Body = body
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// Sentinel errors for common provider failure modes.
var (
	// ErrCarrierNotFound indicates the requested carrier is not registered.
	ErrCarrierNotFound = errors.New("carrier not found")

	// ErrServiceUnavailable indicates the provider is temporarily down.
	ErrServiceUnavailable = errors.New("carrier service unavailable")

	// ErrUpstreamTimeout indicates the provider did not answer within the
	// request deadline. Treated as retryable, never as success.
	ErrUpstreamTimeout = errors.New("carrier request timed out")

	// ErrInvalidAddress indicates the provider rejected the address.
	ErrInvalidAddress = errors.New("invalid address")

	// ErrAuthenticationFailed indicates provider credentials were rejected.
	ErrAuthenticationFailed = errors.New("carrier authentication failed")
)

// IsRetryable reports whether the dispatch that produced err can be safely
// re-attempted once the triggering webhook is redelivered.
func IsRetryable(err error) bool {
	var cerr *Error
	if errors.As(err, &cerr) {
		return cerr.Retryable
	}
	return errors.Is(err, ErrServiceUnavailable) || errors.Is(err, ErrUpstreamTimeout)
}

// Rejected reports whether err represents a provider-side rejection or outage,
// as opposed to a local precondition failure.
func Rejected(err error) bool {
	var cerr *Error
	return errors.As(err, &cerr)
}
