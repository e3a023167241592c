package cmd

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/spf13/pflag"

	"github.com/socialinbox/inbox-cli/internal/api"
	"github.com/socialinbox/inbox-cli/internal/config"
	"github.com/socialinbox/inbox-cli/internal/fbconnect"
	"github.com/socialinbox/inbox-cli/internal/realtime"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, exitOK},
		{"help", pflag.ErrHelp, exitOK},
		{"generic", errors.New("boom"), exitGeneric},
		{"unknown flag", errors.New("unknown flag: --nope"), exitUsage},
		{"missing required", errors.New("--page is required"), exitUsage},
		{"not configured", fmt.Errorf("load: %w", config.ErrNotConfigured), exitAuth},
		{"session expired", config.ErrSessionExpired, exitAuth},
		{"realtime unauthorized", realtime.ErrUnauthorized, exitAuth},
		{"http 401", &api.APIError{StatusCode: 401}, exitAuth},
		{"http 403", &api.APIError{StatusCode: 403}, exitForbidden},
		{"http 404", &api.APIError{StatusCode: 404}, exitNotFound},
		{"http 409", &api.APIError{StatusCode: 409}, exitState},
		{"http 422", &api.APIError{StatusCode: 422}, exitUsage},
		{"http 503", &api.APIError{StatusCode: 503}, exitServer},
		{"rate limited", &api.RateLimitError{}, exitRateLimited},
		{"circuit open", &api.CircuitBreakerError{}, exitServer},
		{"deadline", context.DeadlineExceeded, exitNetwork},
		{"connection refused", errors.New("dial tcp: connection refused"), exitNetwork},
		{"reconnect exhausted", realtime.ErrReconnectExhausted, exitNetwork},
		{"invalid transition", fmt.Errorf("connect: %w", fbconnect.ErrInvalidTransition), exitState},
		{"transition in flight", fbconnect.ErrTransitionInFlight, exitState},
		{"state mismatch", fbconnect.ErrStateMismatch, exitState},
		{"handled keeps code", &handledError{err: errors.New("x"), exitCode: exitForbidden}, exitForbidden},
		{"handled maps inner", &handledError{err: config.ErrNotConfigured}, exitAuth},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Errorf("ExitCode(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}
