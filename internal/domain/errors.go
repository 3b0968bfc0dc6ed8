package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies failures on the wire so clients can tell transient from terminal
type ErrorKind string

const (
	KindValidation ErrorKind = "validation"
	KindTransport  ErrorKind = "transport"
	KindUpstream   ErrorKind = "upstream"
	KindParse      ErrorKind = "parse"
	KindTimeout    ErrorKind = "timeout"
	KindNotFound   ErrorKind = "not_found"
	KindThrottled  ErrorKind = "throttled"
	KindInternal   ErrorKind = "internal"
)

var (
	// ErrTimeoutExceeded is returned when a job stays in progress past the polling ceiling
	ErrTimeoutExceeded = errors.New("timeout exceeded while job still processing")

	// ErrNotFound is wrapped by lookups that found nothing
	ErrNotFound = errors.New("not found")

	// ErrThrottled is wrapped when the service rejects a caller over its rate limit
	ErrThrottled = errors.New("rate limit exceeded")
)

// ValidationError is a missing or ill-typed request field. Never retried.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// NewValidationError creates a ValidationError for field
func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// TransportError is returned once every transport attempt has failed.
// Err holds the last underlying cause.
type TransportError struct {
	Attempts int
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport exhausted after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// UpstreamError is a well-formed error reported by the provider.
// StatusCode is the HTTP status to surface, Code the provider's own code.
type UpstreamError struct {
	StatusCode int
	Code       int
	Message    string
}

func (e *UpstreamError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("upstream error %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("upstream error (status %d): %s", e.StatusCode, e.Message)
}

// ParseError is a provider body that is not JSON or not of the expected shape
type ParseError struct {
	Snippet string
	Err     error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("unparsable upstream body: %v", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// KindOf classifies err
func KindOf(err error) ErrorKind {
	var (
		validationErr *ValidationError
		transportErr  *TransportError
		upstreamErr   *UpstreamError
		parseErr      *ParseError
	)

	switch {
	case err == nil:
		return ""
	case errors.As(err, &validationErr):
		return KindValidation
	case errors.As(err, &transportErr):
		return KindTransport
	case errors.As(err, &upstreamErr):
		return KindUpstream
	case errors.As(err, &parseErr):
		return KindParse
	case errors.Is(err, ErrTimeoutExceeded):
		return KindTimeout
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrThrottled):
		return KindThrottled
	default:
		return KindInternal
	}
}

// IsTransient reports whether a poll failing with err is worth repeating.
// Upstream errors count when the provider throttled or failed on its side.
func IsTransient(err error) bool {
	switch KindOf(err) {
	case KindTransport, KindParse, KindThrottled:
		return true
	case KindUpstream:
		var upstreamErr *UpstreamError
		errors.As(err, &upstreamErr)
		return upstreamErr.StatusCode == http.StatusTooManyRequests || upstreamErr.StatusCode >= http.StatusInternalServerError
	default:
		return false
	}
}

// HTTPStatus maps err onto the status code returned to API callers
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindTransport, KindParse:
		return http.StatusBadGateway
	case KindTimeout:
		return http.StatusGatewayTimeout
	case KindNotFound:
		return http.StatusNotFound
	case KindThrottled:
		return http.StatusTooManyRequests
	case KindUpstream:
		var upstreamErr *UpstreamError
		errors.As(err, &upstreamErr)
		if upstreamErr.StatusCode >= 400 && upstreamErr.StatusCode <= 599 {
			return upstreamErr.StatusCode
		}
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// ErrorFromKind rebuilds a typed error from its wire form so that
// IsTransient keeps working across a process boundary.
func ErrorFromKind(kind ErrorKind, message string, statusCode, code int) error {
	switch kind {
	case KindValidation:
		return &ValidationError{Message: message}
	case KindTransport:
		return &TransportError{Attempts: 1, Err: errors.New(message)}
	case KindUpstream:
		return &UpstreamError{StatusCode: statusCode, Code: code, Message: message}
	case KindParse:
		return &ParseError{Err: errors.New(message)}
	case KindTimeout:
		return fmt.Errorf("%w: %s", ErrTimeoutExceeded, message)
	case KindNotFound:
		return fmt.Errorf("%s: %w", message, ErrNotFound)
	case KindThrottled:
		return fmt.Errorf("%s: %w", message, ErrThrottled)
	default:
		return errors.New(message)
	}
}
