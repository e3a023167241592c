package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/socialinbox/inbox-cli/internal/api"
	"github.com/socialinbox/inbox-cli/internal/config"
	"github.com/socialinbox/inbox-cli/internal/fbconnect"
	"github.com/socialinbox/inbox-cli/internal/realtime"
)

// HandleError renders err with suggestions for the terminal.
func HandleError(err error) string {
	if err == nil {
		return ""
	}

	var msg strings.Builder

	var apiErr *api.APIError
	var rateLimitErr *api.RateLimitError
	var circuitBreakerErr *api.CircuitBreakerError
	var authErr *api.AuthError
	var providerErr *fbconnect.ProviderError

	switch {
	case errors.Is(err, config.ErrNotConfigured), errors.Is(err, config.ErrSessionExpired):
		fmt.Fprintf(&msg, "%s\n\n", err)
		msg.WriteString("Suggestions:\n")
		msg.WriteString("  - Run: inbox auth login --url <server> --token <token>\n")
		fmt.Fprintf(&msg, "  - Or set %s and %s\n", config.EnvBaseURL, config.EnvToken)

	case errors.Is(err, realtime.ErrReconnectExhausted):
		msg.WriteString("Live updates paused: the realtime connection could not be restored.\n\n")
		msg.WriteString("Suggestions:\n")
		msg.WriteString("  - Check your network connection\n")
		msg.WriteString("  - Re-run the command to reconnect\n")

	case errors.Is(err, realtime.ErrUnauthorized):
		msg.WriteString("The realtime server rejected the session.\n\n")
		msg.WriteString("Suggestions:\n")
		msg.WriteString("  - Run: inbox auth login\n")

	case errors.As(err, &providerErr):
		fmt.Fprintf(&msg, "Facebook connection was not completed: %s\n\n", providerErr.Error())
		msg.WriteString("Suggestions:\n")
		msg.WriteString("  - Run: inbox facebook connect, and approve the requested permissions\n")

	case errors.Is(err, fbconnect.ErrInvalidTransition), errors.Is(err, fbconnect.ErrTransitionInFlight):
		fmt.Fprintf(&msg, "Error: %s\n\n", err)
		msg.WriteString("Suggestions:\n")
		msg.WriteString("  - Check the current state: inbox facebook status\n")

	case errors.As(err, &rateLimitErr):
		msg.WriteString("Rate limit exceeded.\n\n")
		msg.WriteString("Suggestions:\n")
		msg.WriteString("  - Wait a few seconds and retry\n")
		msg.WriteString("  - Reduce request frequency\n")

	case errors.As(err, &circuitBreakerErr):
		msg.WriteString("Service temporarily unavailable (circuit breaker open).\n\n")
		msg.WriteString("Suggestions:\n")
		msg.WriteString("  - The server has had multiple failures recently\n")
		msg.WriteString("  - Wait 30 seconds and retry\n")

	case errors.As(err, &authErr):
		fmt.Fprintf(&msg, "Authentication failed: %s\n\n", authErr.Reason)
		msg.WriteString("Suggestions:\n")
		msg.WriteString("  - Run: inbox auth login\n")

	case errors.As(err, &apiErr):
		fmt.Fprintf(&msg, "API error (HTTP %d): %s\n\n", apiErr.StatusCode, apiErr.Body)
		msg.WriteString(suggestionsForStatusCode(apiErr.StatusCode))
		if apiErr.RequestID != "" {
			fmt.Fprintf(&msg, "\nRequest ID: %s\n", apiErr.RequestID)
		}

	case strings.Contains(err.Error(), "connection refused"):
		msg.WriteString("Connection refused.\n\n")
		msg.WriteString("Suggestions:\n")
		msg.WriteString("  - Check that the inbox server is running\n")
		msg.WriteString("  - Verify the URL: inbox auth status\n")

	case strings.Contains(err.Error(), "no such host"):
		msg.WriteString("DNS resolution failed.\n\n")
		msg.WriteString("Suggestions:\n")
		msg.WriteString("  - Check the server URL spelling\n")
		msg.WriteString("  - Verify your DNS settings\n")

	default:
		fmt.Fprintf(&msg, "Error: %s\n", err.Error())
	}

	return msg.String()
}

func suggestionsForStatusCode(code int) string {
	var s strings.Builder
	s.WriteString("Suggestions:\n")

	switch code {
	case 400, 422:
		s.WriteString("  - Check your input values\n")
		s.WriteString("  - Use --debug to see the request\n")
	case 401:
		s.WriteString("  - Your session is invalid or expired; the stored token was removed\n")
		s.WriteString("  - Run: inbox auth login\n")
	case 403:
		s.WriteString("  - You don't have permission for this action\n")
		s.WriteString("  - Ask a company admin to check your role\n")
	case 404:
		s.WriteString("  - The resource doesn't exist or belongs to another company\n")
		s.WriteString("  - Check the ID is correct\n")
	case 409:
		s.WriteString("  - The resource changed on the server; refresh and retry\n")
	case 429:
		s.WriteString("  - Too many requests; wait and retry\n")
	case 500, 502, 503, 504:
		s.WriteString("  - Server error - not your fault\n")
		s.WriteString("  - Wait and retry\n")
	default:
		s.WriteString("  - Use --debug for more details\n")
	}
	return s.String()
}
