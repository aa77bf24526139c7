package client

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

// Common errors returned by the client.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during retry.
	ErrContextCancelled = errors.New("context cancelled")

	// ErrTimeout is returned when an attempt exceeds the per-request timeout.
	ErrTimeout = errors.New("request timed out")

	// ErrBodyNotReplayable is returned when a request with a body must be
	// re-sent but has no GetBody func.
	ErrBodyNotReplayable = errors.New("request body cannot be replayed")
)

// APIError represents a non-success HTTP status returned by the remote API.
type APIError struct {
	StatusCode int
	ErrorClass ErrorClass
	Message    string

	// Body holds the start of the response body, for diagnostics.
	Body string

	// RetryAfter is the server-requested delay (Retry-After header), if any.
	RetryAfter time.Duration

	Err error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("SEFAZ %s error (status %d): %s: %v",
			e.ErrorClass, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("SEFAZ %s error (status %d): %s",
		e.ErrorClass, e.StatusCode, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *APIError) Unwrap() error {
	return e.Err
}

// Classify returns the error class of err, looking through wrapped errors.
// It returns an empty class for nil, cancellation and unknown errors.
func Classify(err error) ErrorClass {
	if err == nil {
		return ""
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorClass
	}
	if errors.Is(err, ErrTimeout) {
		return ErrorClassTimeout
	}
	if errors.Is(err, ErrContextCancelled) {
		return ""
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return ErrorClassNetwork
	}
	return ""
}

// IsTimeout reports whether err was caused by a request timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// IsRateLimited reports whether err was caused by a 429 response.
func IsRateLimited(err error) bool {
	return Classify(err) == ErrorClassRateLimit
}

// IsTransient reports whether err belongs to a class that retrying could
// have resolved (server, rate limit, timeout, network).
func IsTransient(err error) bool {
	switch Classify(err) {
	case ErrorClassServer, ErrorClassRateLimit, ErrorClassTimeout, ErrorClassNetwork:
		return true
	default:
		return false
	}
}
