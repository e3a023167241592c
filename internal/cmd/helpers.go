package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/socialinbox/inbox-cli/internal/api"
	"github.com/socialinbox/inbox-cli/internal/dryrun"
	"github.com/socialinbox/inbox-cli/internal/iocontext"
	"github.com/socialinbox/inbox-cli/internal/outfmt"
)

// printJSON writes v as JSON, applying --query when set.
func printJSON(cmd *cobra.Command, v any) error {
	return outfmt.OptionsFrom(cmd.Context()).Write(out(cmd), v)
}

// isJSON checks if the command context wants JSON output
func isJSON(cmd *cobra.Command) bool {
	return outfmt.IsJSON(cmd.Context())
}

// printIfNotQuiet prints a status line to stdout in text mode.
func printIfNotQuiet(cmd *cobra.Command, format string, args ...any) {
	if flags.Quiet || isJSON(cmd) {
		return
	}
	_, _ = fmt.Fprintf(out(cmd), format, args...)
}

func isDryRun(cmd *cobra.Command) bool {
	return dryrun.IsEnabled(cmd.Context())
}

// printPreview reports a skipped mutation on stdout.
func printPreview(cmd *cobra.Command, p *dryrun.Preview) error {
	if isJSON(cmd) {
		return printJSON(cmd, p)
	}
	p.Write(out(cmd))
	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return formatTime(*t)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func isInteractive() bool {
	if flags.NoInput || flags.Yes {
		return false
	}
	info, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}

type confirmOptions struct {
	Prompt        string
	CancelMessage string
}

// confirmAction asks for a y/N answer on stdin. --yes answers for the user;
// --no-input without --yes declines.
func confirmAction(cmd *cobra.Command, opts confirmOptions) (bool, error) {
	if flags.Yes {
		return true, nil
	}
	if flags.NoInput {
		return false, fmt.Errorf("confirmation required: re-run with --yes")
	}

	ioStreams := iocontext.GetIO(cmd.Context())
	_, _ = fmt.Fprint(ioStreams.ErrOut, opts.Prompt)

	response, err := bufio.NewReader(ioStreams.In).ReadString('\n')
	if err != nil && response == "" {
		return false, nil
	}
	switch strings.ToLower(strings.TrimSpace(response)) {
	case "y", "yes":
		return true, nil
	}
	if opts.CancelMessage != "" {
		_, _ = fmt.Fprintln(ioStreams.ErrOut, opts.CancelMessage)
	}
	return false, nil
}

// errAlreadyHandled is a sentinel error indicating the error was already
// printed. RunE-wrapped commands return it so Cobra reports failure without
// printing the error a second time.
var errAlreadyHandled = errors.New("error already handled")

type handledError struct {
	err      error
	exitCode int
}

func (e *handledError) Error() string {
	return e.err.Error()
}

func (e *handledError) Unwrap() error {
	return errAlreadyHandled
}

func (e *handledError) ExitCode() int {
	return e.exitCode
}

// RunE wraps a command function with enhanced error handling
func RunE(fn func(cmd *cobra.Command, args []string) error) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		err := fn(cmd, args)
		if err == nil {
			return nil
		}
		if isJSON(cmd) {
			if structured := api.StructuredErrorFromError(err); structured != nil {
				_ = outfmt.WriteJSON(errOut(cmd), structured)
			}
		} else {
			_, _ = fmt.Fprint(errOut(cmd), HandleError(err))
		}
		return &handledError{err: err, exitCode: ExitCode(err)}
	}
}
