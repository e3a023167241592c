package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// APIError is a non-2xx response that was not retried away. Body holds
// the server's error text, never the raw payload.
type APIError struct {
	StatusCode int
	Body       string
	RequestID  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Body)
}

// RateLimitError is returned once 429 retries are exhausted.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded, retry after %s", e.RetryAfter)
}

// AuthError is a missing, expired or revoked session detected before or
// instead of an HTTP response.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string { return "authentication error: " + e.Reason }

// CircuitBreakerError is returned without sending the request.
type CircuitBreakerError struct{}

func (e *CircuitBreakerError) Error() string {
	return "circuit breaker is open, too many recent failures"
}

func statusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

func IsRateLimitError(err error) bool {
	var e *RateLimitError
	return errors.As(err, &e) || statusOf(err) == http.StatusTooManyRequests
}

func IsAuthError(err error) bool {
	var e *AuthError
	return errors.As(err, &e) || statusOf(err) == http.StatusUnauthorized
}

func IsNotFoundError(err error) bool {
	return statusOf(err) == http.StatusNotFound
}
