package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode is a machine-readable error classification used in JSON output
// and for exit codes.
type ErrorCode string

const (
	ErrBadRequest   ErrorCode = "bad_request"
	ErrUnauthorized ErrorCode = "unauthorized"
	ErrForbidden    ErrorCode = "forbidden"
	ErrNotFound     ErrorCode = "not_found"
	ErrConflict     ErrorCode = "conflict"
	ErrValidation   ErrorCode = "validation_failed"
	ErrRateLimited  ErrorCode = "rate_limited"
	ErrServerError  ErrorCode = "server_error"
	ErrTimeout      ErrorCode = "timeout"
	ErrCircuitOpen  ErrorCode = "circuit_open"
	ErrUnknown      ErrorCode = "unknown"
)

var suggestions = map[ErrorCode]string{
	ErrUnauthorized: "Run 'inbox auth login' to sign in again",
	ErrForbidden:    "Check your role in the company",
	ErrNotFound:     "Verify the resource ID exists",
	ErrRateLimited:  "Wait a moment and retry",
	ErrValidation:   "Check the input values",
	ErrBadRequest:   "Check the request format and parameters",
	ErrConflict:     "The resource state may have changed; refresh and retry",
	ErrServerError:  "The server encountered an error; try again later",
	ErrTimeout:      "The request timed out; check network connectivity and retry",
	ErrCircuitOpen:  "Too many recent failures; wait before retrying",
}

// IsRetryable returns true if errors with this code may succeed on retry.
func (c ErrorCode) IsRetryable() bool {
	switch c {
	case ErrRateLimited, ErrServerError, ErrTimeout, ErrCircuitOpen:
		return true
	default:
		return false
	}
}

// Suggestion returns a human-readable hint for resolving this error.
func (c ErrorCode) Suggestion() string {
	return suggestions[c]
}

// ErrorCodeFromStatus maps an HTTP status code to an ErrorCode.
func ErrorCodeFromStatus(statusCode int) ErrorCode {
	switch statusCode {
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrConflict
	case http.StatusUnprocessableEntity:
		return ErrValidation
	case http.StatusTooManyRequests:
		return ErrRateLimited
	}
	if statusCode >= 500 && statusCode < 600 {
		return ErrServerError
	}
	return ErrUnknown
}

// StructuredError is the JSON error shape printed in --output json mode.
type StructuredError struct {
	Code       ErrorCode      `json:"code"`
	Message    string         `json:"message"`
	Retryable  bool           `json:"retryable"`
	Suggestion string         `json:"suggestion,omitempty"`
	Context    map[string]any `json:"context,omitempty"`
}

func (e *StructuredError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// NewStructuredError creates a StructuredError from an ErrorCode and message.
func NewStructuredError(code ErrorCode, message string) *StructuredError {
	return &StructuredError{
		Code:       code,
		Message:    message,
		Retryable:  code.IsRetryable(),
		Suggestion: code.Suggestion(),
	}
}

// StructuredErrorFromError classifies any error.
func StructuredErrorFromError(err error) *StructuredError {
	if err == nil {
		return nil
	}

	var se *StructuredError
	if errors.As(err, &se) {
		return se
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		out := NewStructuredError(ErrorCodeFromStatus(apiErr.StatusCode), apiErr.Body)
		out.Context = map[string]any{"status_code": apiErr.StatusCode}
		if apiErr.RequestID != "" {
			out.Context["request_id"] = apiErr.RequestID
		}
		return out
	}

	var rateLimitErr *RateLimitError
	if errors.As(err, &rateLimitErr) {
		out := NewStructuredError(ErrRateLimited, rateLimitErr.Error())
		out.Context = map[string]any{"retry_after": rateLimitErr.RetryAfter.String()}
		return out
	}

	var authErr *AuthError
	if errors.As(err, &authErr) {
		return NewStructuredError(ErrUnauthorized, authErr.Error())
	}

	var cbErr *CircuitBreakerError
	if errors.As(err, &cbErr) {
		return NewStructuredError(ErrCircuitOpen, cbErr.Error())
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return NewStructuredError(ErrTimeout, err.Error())
	}

	return NewStructuredError(ErrUnknown, err.Error())
}
