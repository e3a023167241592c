package cmd

import (
	"context"
	"errors"
	"net"
	"net/url"
	"strings"

	"github.com/spf13/pflag"

	"github.com/socialinbox/inbox-cli/internal/api"
	"github.com/socialinbox/inbox-cli/internal/config"
	"github.com/socialinbox/inbox-cli/internal/fbconnect"
	"github.com/socialinbox/inbox-cli/internal/realtime"
)

// Process exit codes. Scripts rely on these; do not renumber.
const (
	exitOK          = 0
	exitGeneric     = 1
	exitUsage       = 2
	exitAuth        = 3
	exitNotFound    = 4
	exitForbidden   = 5
	exitRateLimited = 6
	exitServer      = 7
	exitNetwork     = 8
	exitState       = 9
)

// sentinelExits is checked in order before the API error classification.
var sentinelExits = []struct {
	target error
	code   int
}{
	{pflag.ErrHelp, exitOK},
	{config.ErrNotConfigured, exitAuth},
	{config.ErrSessionExpired, exitAuth},
	{realtime.ErrUnauthorized, exitAuth},
	{fbconnect.ErrInvalidTransition, exitState},
	{fbconnect.ErrTransitionInFlight, exitState},
	{fbconnect.ErrStateMismatch, exitState},
	{realtime.ErrReconnectExhausted, exitNetwork},
}

var apiExits = map[api.ErrorCode]int{
	api.ErrUnauthorized: exitAuth,
	api.ErrForbidden:    exitForbidden,
	api.ErrNotFound:     exitNotFound,
	api.ErrRateLimited:  exitRateLimited,
	api.ErrServerError:  exitServer,
	api.ErrCircuitOpen:  exitServer,
	api.ErrTimeout:      exitNetwork,
	api.ErrBadRequest:   exitUsage,
	api.ErrValidation:   exitUsage,
	api.ErrConflict:     exitState,
}

// cobra reports argument and flag problems as plain errors.
var usageIndicators = []string{
	"unknown command",
	"unknown flag",
	"unknown shorthand flag",
	"flag needs an argument",
	"requires at least",
	"requires exactly",
	"accepts ",
	"invalid argument",
	"invalid value",
	"must be",
	"is required",
}

var networkIndicators = []string{
	"connection refused",
	"connection reset",
	"no such host",
	"certificate",
	"i/o timeout",
}

// ExitCode maps an error to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return exitOK
	}

	var handled *handledError
	if errors.As(err, &handled) {
		if handled.exitCode != 0 {
			return handled.exitCode
		}
		err = handled.err
	}

	for _, s := range sentinelExits {
		if errors.Is(err, s.target) {
			return s.code
		}
	}
	if structured := api.StructuredErrorFromError(err); structured != nil {
		if code, ok := apiExits[structured.Code]; ok {
			return code
		}
	}

	switch {
	case containsAny(err.Error(), usageIndicators):
		return exitUsage
	case isNetworkError(err):
		return exitNetwork
	default:
		return exitGeneric
	}
}

func isNetworkError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var netErr net.Error
	var urlErr *url.Error
	if errors.As(err, &netErr) || errors.As(err, &urlErr) {
		return true
	}
	return containsAny(err.Error(), networkIndicators)
}

func containsAny(msg string, needles []string) bool {
	msg = strings.ToLower(msg)
	for _, n := range needles {
		if strings.Contains(msg, n) {
			return true
		}
	}
	return false
}
