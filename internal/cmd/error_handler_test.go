package cmd

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/socialinbox/inbox-cli/internal/api"
	"github.com/socialinbox/inbox-cli/internal/config"
	"github.com/socialinbox/inbox-cli/internal/fbconnect"
	"github.com/socialinbox/inbox-cli/internal/realtime"
)

func TestHandleError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want []string
	}{
		{"nil", nil, nil},
		{"not configured", config.ErrNotConfigured, []string{"inbox auth login", config.EnvToken}},
		{"reconnect exhausted", realtime.ErrReconnectExhausted, []string{"Live updates paused", "Re-run"}},
		{"realtime unauthorized", realtime.ErrUnauthorized, []string{"rejected the session"}},
		{
			"provider denied",
			&fbconnect.ProviderError{Code: "access_denied", Description: "User cancelled"},
			[]string{"Facebook connection was not completed", "User cancelled", "approve"},
		},
		{"invalid transition", fmt.Errorf("sync: %w", fbconnect.ErrInvalidTransition), []string{"inbox facebook status"}},
		{"rate limited", &api.RateLimitError{}, []string{"Rate limit exceeded"}},
		{"circuit open", &api.CircuitBreakerError{}, []string{"circuit breaker"}},
		{"auth", &api.AuthError{Reason: "token revoked"}, []string{"Authentication failed: token revoked"}},
		{
			"api 401",
			&api.APIError{StatusCode: 401, Body: "bad token", RequestID: "req-1"},
			[]string{"HTTP 401", "stored token was removed", "Request ID: req-1"},
		},
		{"api 403", &api.APIError{StatusCode: 403, Body: "no"}, []string{"permission"}},
		{"api 409", &api.APIError{StatusCode: 409}, []string{"refresh and retry"}},
		{"connection refused", errors.New("dial tcp 127.0.0.1:1: connection refused"), []string{"Connection refused."}},
		{"no such host", errors.New("lookup x: no such host"), []string{"DNS resolution failed."}},
		{"default", errors.New("something odd"), []string{"Error: something odd"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := HandleError(tt.err)
			if tt.err == nil {
				if got != "" {
					t.Errorf("HandleError(nil) = %q", got)
				}
				return
			}
			for _, want := range tt.want {
				if !strings.Contains(got, want) {
					t.Errorf("HandleError output missing %q:\n%s", want, got)
				}
			}
		})
	}
}
