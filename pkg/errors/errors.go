package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind represents the different kinds of failure a Spotify API call can produce
type Kind string

const (
	KindNetwork   Kind = "network"
	KindRateLimit Kind = "rate_limit"
	KindAuth      Kind = "auth"
	KindParsing   Kind = "parsing"
	KindNotFound  Kind = "not_found"
	KindServer    Kind = "server_error"
	KindUnknown   Kind = "unknown"
)

// Error represents a Spotify API error with kind information.
//
// RetryAfter carries the raw Retry-After header value of a throttled
// response. It is kept as a string because the server may send anything.
type Error struct {
	Kind       Kind
	Message    string
	Code       int
	RetryAfter string
	Err        error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s error (code %d): %s", e.Kind, e.Code, e.Message)
}

// Unwrap returns the underlying transport error, if any
func (e *Error) Unwrap() error {
	return e.Err
}

// NewNetworkError wraps a transport failure
func NewNetworkError(err error) *Error {
	return &Error{
		Kind:    KindNetwork,
		Message: fmt.Sprintf("network error: %v", err),
		Err:     err,
	}
}

// NewRateLimitError builds a throttling error from a 429 response
func NewRateLimitError(retryAfter string) *Error {
	return &Error{
		Kind:       KindRateLimit,
		Message:    "rate limit exceeded",
		Code:       429,
		RetryAfter: retryAfter,
	}
}

// KindOf returns the kind of err, or KindUnknown if err is not an *Error
func KindOf(err error) Kind {
	var apiErr *Error
	if stderrors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return KindUnknown
}

// KindForStatus maps an HTTP status code to an error kind
func KindForStatus(statusCode int) Kind {
	switch {
	case statusCode == 0:
		return KindNetwork
	case statusCode == 429:
		return KindRateLimit
	case statusCode == 401, statusCode == 403:
		return KindAuth
	case statusCode == 404:
		return KindNotFound
	case statusCode >= 500:
		return KindServer
	default:
		return KindUnknown
	}
}

// ErrRetryExhausted matches any RetryExhaustedError via errors.Is
var ErrRetryExhausted = stderrors.New("retry budget exhausted")

// RetryExhaustedError reports that every attempt failed with a retryable
// error. It wraps the failure of the last attempt.
type RetryExhaustedError struct {
	Target   string
	Attempts int
	Last     error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("%s: giving up after %d attempts: %v", e.Target, e.Attempts, e.Last)
}

func (e *RetryExhaustedError) Unwrap() error {
	return e.Last
}

func (e *RetryExhaustedError) Is(target error) bool {
	return target == ErrRetryExhausted
}

// IsRetryExhausted reports whether err is or wraps a RetryExhaustedError
func IsRetryExhausted(err error) bool {
	return stderrors.Is(err, ErrRetryExhausted)
}
