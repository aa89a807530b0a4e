package httpclient

import (
	"errors"
	"fmt"
	"time"
)

// ErrorType classifies client failures.
type ErrorType int

const (
	// NetworkError: the exchange could not complete (DNS, reset, TLS).
	NetworkError ErrorType = iota
	// TimeoutError: the exchange hit a deadline before a response arrived.
	TimeoutError
	// HTTPError: a response arrived with a non-2xx status.
	HTTPError
	// ValidationError: the request could not be built.
	ValidationError
	// InterceptorError: a request or response interceptor rejected the call.
	InterceptorError
)

func (t ErrorType) String() string {
	switch t {
	case NetworkError:
		return "network"
	case TimeoutError:
		return "timeout"
	case HTTPError:
		return "http"
	case ValidationError:
		return "validation"
	case InterceptorError:
		return "interceptor"
	default:
		return "unknown"
	}
}

// ClientError is implemented by every error the client creates itself.
type ClientError interface {
	error
	Type() ErrorType
}

type networkError struct {
	message string
	err     error
}

// NewNetworkError wraps a transport failure.
func NewNetworkError(message string, err error) ClientError {
	return &networkError{message: message, err: err}
}

func (e *networkError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("network error: %s: %v", e.message, e.err)
	}
	return fmt.Sprintf("network error: %s", e.message)
}

func (e *networkError) Type() ErrorType { return NetworkError }
func (e *networkError) Unwrap() error   { return e.err }

type timeoutError struct {
	message string
	timeout time.Duration
	err     error
}

// NewTimeoutError reports a deadline hit while waiting for a response.
func NewTimeoutError(message string, timeout time.Duration) ClientError {
	return &timeoutError{message: message, timeout: timeout}
}

func newTimeoutErrorWithCause(message string, timeout time.Duration, err error) ClientError {
	return &timeoutError{message: message, timeout: timeout, err: err}
}

// Error reports the configured timeout when one applied. A zero timeout
// means the caller's context deadline fired.
func (e *timeoutError) Error() string {
	msg := e.message
	if e.err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.err)
	}
	if e.timeout > 0 {
		return fmt.Sprintf("timeout error: %s (timeout %s)", msg, e.timeout)
	}
	return fmt.Sprintf("timeout error: %s (context deadline)", msg)
}

func (e *timeoutError) Type() ErrorType { return TimeoutError }
func (e *timeoutError) Unwrap() error   { return e.err }

type httpError struct {
	message    string
	statusCode int
	body       []byte
	url        string
}

// NewHTTPError creates the failure for a completed exchange with a non-2xx
// status. body is the best-effort captured response body.
func NewHTTPError(message string, statusCode int, body []byte) ClientError {
	return &httpError{message: message, statusCode: statusCode, body: body}
}

func (e *httpError) Error() string {
	return fmt.Sprintf("HTTP error: %s (status %d)", e.message, e.statusCode)
}

func (e *httpError) Type() ErrorType { return HTTPError }

// StatusCode returns the response status.
func (e *httpError) StatusCode() int { return e.statusCode }

// Body returns the captured response body, possibly empty.
func (e *httpError) Body() []byte { return e.body }

// URL returns the request URL, when known.
func (e *httpError) URL() string { return e.url }

type validationError struct {
	message string
	field   string
}

// NewValidationError reports a request that cannot be sent.
func NewValidationError(message, field string) ClientError {
	return &validationError{message: message, field: field}
}

func (e *validationError) Error() string {
	if e.field != "" {
		return fmt.Sprintf("validation error: %s (field %s)", e.message, e.field)
	}
	return fmt.Sprintf("validation error: %s", e.message)
}

func (e *validationError) Type() ErrorType { return ValidationError }

type interceptorError struct {
	message string
	stage   string
	err     error
}

// NewInterceptorError wraps an interceptor failure; stage is "request" or
// "response".
func NewInterceptorError(message, stage string, err error) ClientError {
	return &interceptorError{message: message, stage: stage, err: err}
}

func (e *interceptorError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("interceptor error: %s (%s stage): %v", e.message, e.stage, e.err)
	}
	return fmt.Sprintf("interceptor error: %s (%s stage)", e.message, e.stage)
}

func (e *interceptorError) Type() ErrorType { return InterceptorError }
func (e *interceptorError) Unwrap() error   { return e.err }

// IsErrorType reports whether err, or an error it wraps, is a ClientError
// of type t.
func IsErrorType(err error, t ErrorType) bool {
	var ce ClientError
	if errors.As(err, &ce) {
		return ce.Type() == t
	}
	return false
}

// IsHTTPStatusError reports whether err is an HTTP failure with the given status.
func IsHTTPStatusError(err error, statusCode int) bool {
	code, ok := StatusCodeOf(err)
	return ok && code == statusCode
}

// StatusCodeOf extracts the status of an HTTP failure.
func StatusCodeOf(err error) (int, bool) {
	var he *httpError
	if errors.As(err, &he) {
		return he.statusCode, true
	}
	return 0, false
}

// BodyOf extracts the captured body of an HTTP failure.
func BodyOf(err error) ([]byte, bool) {
	var he *httpError
	if errors.As(err, &he) {
		return he.body, true
	}
	return nil, false
}

// IsSuccessStatus reports whether statusCode is in [200, 300).
func IsSuccessStatus(statusCode int) bool {
	return statusCode >= 200 && statusCode < 300
}

// IsClientErrorStatus reports whether statusCode is in [400, 500). Such
// failures reproduce identically on resubmission and are never retried.
func IsClientErrorStatus(statusCode int) bool {
	return statusCode >= 400 && statusCode < 500
}

// IsRetryableStatus reports whether a response with statusCode may be
// resubmitted: anything outside 2xx and 4xx.
func IsRetryableStatus(statusCode int) bool {
	return !IsSuccessStatus(statusCode) && !IsClientErrorStatus(statusCode)
}
