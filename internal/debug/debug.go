// Package debug carries the --debug switch on the context and configures
// the process-wide slog logger.
package debug

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// EnvLogFormat selects "json" log lines instead of logfmt text.
const EnvLogFormat = "INBOX_LOG_FORMAT"

type enabledKey struct{}

func WithDebug(ctx context.Context, enabled bool) context.Context {
	return context.WithValue(ctx, enabledKey{}, enabled)
}

func IsEnabled(ctx context.Context) bool {
	on, _ := ctx.Value(enabledKey{}).(bool)
	return on
}

// SetupLogger points slog at stderr. Only warnings and errors are shown
// unless verbose is set.
func SetupLogger(verbose bool) {
	SetupLoggerTo(os.Stderr, verbose)
}

func SetupLoggerTo(w io.Writer, verbose bool) {
	opts := &slog.HandlerOptions{Level: slog.LevelWarn}
	if verbose {
		opts.Level = slog.LevelDebug
	}

	var h slog.Handler
	if strings.EqualFold(os.Getenv(EnvLogFormat), "json") {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	slog.SetDefault(slog.New(h))
}

// Component returns the default logger with a component attribute, so
// lines from the realtime channel and the tag synchronizer can be told
// apart in --debug output.
func Component(name string) *slog.Logger {
	return slog.Default().With("component", name)
}
