package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"
)

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&APIError{StatusCode: 404, Body: "missing"}, "API error (status 404): missing"},
		{&RateLimitError{RetryAfter: 2 * time.Second}, "rate limit exceeded, retry after 2s"},
		{&AuthError{Reason: "session expired"}, "authentication error: session expired"},
		{&CircuitBreakerError{}, "circuit breaker is open, too many recent failures"},
	}
	for _, tt := range tests {
		if got := tt.err.Error(); got != tt.want {
			t.Errorf("Error() = %q, want %q", got, tt.want)
		}
	}
}

func TestErrorPredicates(t *testing.T) {
	wrapped401 := fmt.Errorf("loading user: %w", &APIError{StatusCode: http.StatusUnauthorized})

	if !IsAuthError(wrapped401) {
		t.Error("wrapped 401 should be an auth error")
	}
	if !IsAuthError(&AuthError{Reason: "x"}) {
		t.Error("AuthError should be an auth error")
	}
	if IsAuthError(&APIError{StatusCode: http.StatusForbidden}) {
		t.Error("403 is not an auth error")
	}
	if !IsRateLimitError(fmt.Errorf("w: %w", &RateLimitError{})) {
		t.Error("wrapped RateLimitError not detected")
	}
	if !IsRateLimitError(&APIError{StatusCode: http.StatusTooManyRequests}) {
		t.Error("a 429 response should count as rate limited")
	}
	if IsNotFoundError(errors.New("plain")) {
		t.Error("plain error is not a not-found error")
	}
}

func TestErrorCodeFromStatus(t *testing.T) {
	tests := map[int]ErrorCode{
		400: ErrBadRequest,
		401: ErrUnauthorized,
		403: ErrForbidden,
		404: ErrNotFound,
		409: ErrConflict,
		422: ErrValidation,
		429: ErrRateLimited,
		500: ErrServerError,
		503: ErrServerError,
		418: ErrUnknown,
	}
	for status, want := range tests {
		if got := ErrorCodeFromStatus(status); got != want {
			t.Errorf("ErrorCodeFromStatus(%d) = %s, want %s", status, got, want)
		}
	}
}

func TestErrorCodeRetryableAndSuggestion(t *testing.T) {
	for _, code := range []ErrorCode{ErrRateLimited, ErrServerError, ErrTimeout, ErrCircuitOpen} {
		if !code.IsRetryable() {
			t.Errorf("%s should be retryable", code)
		}
	}
	for _, code := range []ErrorCode{ErrBadRequest, ErrUnauthorized, ErrNotFound, ErrUnknown} {
		if code.IsRetryable() {
			t.Errorf("%s should not be retryable", code)
		}
	}
	if ErrUnauthorized.Suggestion() == "" {
		t.Error("expected a suggestion for unauthorized")
	}
	if ErrUnknown.Suggestion() != "" {
		t.Error("unknown should carry no suggestion")
	}
}

func TestStructuredErrorFromError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantCode  ErrorCode
		wantRetry bool
		check     func(*testing.T, *StructuredError)
	}{
		{
			name:     "api error carries status and request id",
			err:      &APIError{StatusCode: 404, Body: "gone", RequestID: "r1"},
			wantCode: ErrNotFound,
			check: func(t *testing.T, se *StructuredError) {
				if se.Context["status_code"] != 404 || se.Context["request_id"] != "r1" {
					t.Errorf("context = %v", se.Context)
				}
			},
		},
		{
			name:      "rate limit",
			err:       &RateLimitError{RetryAfter: time.Second},
			wantCode:  ErrRateLimited,
			wantRetry: true,
		},
		{name: "auth", err: &AuthError{Reason: "x"}, wantCode: ErrUnauthorized},
		{name: "circuit", err: &CircuitBreakerError{}, wantCode: ErrCircuitOpen, wantRetry: true},
		{name: "deadline", err: fmt.Errorf("call: %w", context.DeadlineExceeded), wantCode: ErrTimeout, wantRetry: true},
		{name: "unknown", err: errors.New("boom"), wantCode: ErrUnknown},
		{
			name:     "passes through structured",
			err:      NewStructuredError(ErrConflict, "changed"),
			wantCode: ErrConflict,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			se := StructuredErrorFromError(tt.err)
			if se.Code != tt.wantCode {
				t.Errorf("Code = %s, want %s", se.Code, tt.wantCode)
			}
			if se.Retryable != tt.wantRetry {
				t.Errorf("Retryable = %v, want %v", se.Retryable, tt.wantRetry)
			}
			if tt.check != nil {
				tt.check(t, se)
			}
		})
	}

	if StructuredErrorFromError(nil) != nil {
		t.Error("nil error should map to nil")
	}
}
