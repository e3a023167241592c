package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/socialinbox/inbox-cli/internal/api"
	"github.com/socialinbox/inbox-cli/internal/config"
	"github.com/socialinbox/inbox-cli/internal/debug"
	"github.com/socialinbox/inbox-cli/internal/dryrun"
	"github.com/socialinbox/inbox-cli/internal/iocontext"
	"github.com/socialinbox/inbox-cli/internal/outfmt"
	"github.com/socialinbox/inbox-cli/internal/validation"
)

const envOutput = "INBOX_OUTPUT"

// rootFlags holds global CLI flags
type rootFlags struct {
	Output       string
	JSON         bool
	Query        string
	JQ           string
	Compact      bool
	Debug        bool
	Quiet        bool
	NoInput      bool
	Yes          bool
	DryRun       bool
	AllowPrivate bool
	Timeout      time.Duration
}

// flags holds the global command flags. It is reset at the start of every
// Execute call; tests depend on that for clean state.
var flags = defaultFlags()

func defaultFlags() rootFlags {
	return rootFlags{
		Output:       defaultOutput(),
		AllowPrivate: parseBoolEnv("INBOX_ALLOW_PRIVATE"),
		Timeout:      api.DefaultTimeout,
	}
}

func defaultOutput() string {
	if value := strings.TrimSpace(os.Getenv(envOutput)); value != "" {
		return value
	}
	return "text"
}

func parseBoolEnv(key string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "y", "on":
		return true
	default:
		return false
	}
}

// loadDefaultEnv loads ~/.config/inbox/.env when present. Variables already
// in the environment win.
func loadDefaultEnv() {
	path := config.DefaultEnvFile()
	if path == "" {
		return
	}
	if _, err := os.Stat(path); err != nil {
		return
	}
	_ = godotenv.Load(path)
}

// Execute runs the root command
func Execute(ctx context.Context, args []string) error {
	loadDefaultEnv()
	flags = defaultFlags()

	root := &cobra.Command{
		Use:           "inbox",
		Short:         "Social inbox client: conversations, tags and Facebook pages from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			if flags.Yes {
				flags.NoInput = true
			}
			if flags.JSON {
				if cmd.Flags().Changed("output") && flags.Output != "json" {
					return fmt.Errorf("--json conflicts with --output %s", flags.Output)
				}
				flags.Output = "json"
			}
			query := flags.JQ
			if query == "" {
				query = flags.Query
			}
			if query != "" && flags.Output == "text" {
				if cmd.Flags().Changed("output") {
					return fmt.Errorf("--query/--jq require --output json or jsonl")
				}
				flags.Output = "json"
			}

			mode, err := outfmt.Parse(flags.Output)
			if err != nil {
				return err
			}
			ctx = outfmt.WithOptions(ctx, outfmt.Options{Mode: mode, Compact: flags.Compact, Query: query})

			ioStreams := iocontext.DefaultIO()
			if flags.Quiet {
				ioStreams = ioStreams.Quiet(false)
			}
			ctx = iocontext.WithIO(ctx, ioStreams)
			cmd.SetOut(ioStreams.Out)
			cmd.SetErr(ioStreams.ErrOut)

			if flags.Timeout < 0 {
				return fmt.Errorf("--timeout must be >= 0")
			}

			validation.SetAllowPrivate(flags.AllowPrivate)
			if flags.AllowPrivate && !flags.Quiet {
				_, _ = fmt.Fprintln(ioStreams.ErrOut, "Warning: allowing private/localhost URLs (use only with trusted servers).")
			}

			debug.SetupLogger(flags.Debug)
			ctx = debug.WithDebug(ctx, flags.Debug)
			ctx = dryrun.WithDryRun(ctx, flags.DryRun)

			cmd.SetContext(ctx)
			return nil
		},
	}
	root.SuggestionsMinimumDistance = 2

	root.SetContext(ctx)
	root.SetArgs(args)

	pf := root.PersistentFlags()
	pf.StringVarP(&flags.Output, "output", "o", flags.Output, "Output format: text|json|jsonl (env "+envOutput+")")
	pf.BoolVarP(&flags.JSON, "json", "j", false, "Shorthand for --output json")
	pf.StringVarP(&flags.Query, "query", "q", "", "jq expression to filter JSON output")
	pf.StringVar(&flags.JQ, "jq", "", "Alias for --query")
	pf.BoolVar(&flags.Compact, "compact-json", false, "Compact JSON output (no indentation)")
	pf.BoolVar(&flags.Debug, "debug", false, "Enable debug logging")
	pf.BoolVarP(&flags.Quiet, "quiet", "Q", false, "Suppress non-essential output")
	pf.BoolVar(&flags.NoInput, "no-input", false, "Disable interactive prompts")
	pf.BoolVarP(&flags.Yes, "yes", "y", false, "Skip confirmation prompts")
	pf.BoolVar(&flags.DryRun, "dry-run", false, "Show the requests a command would send without sending them")
	pf.BoolVar(&flags.AllowPrivate, "allow-private", flags.AllowPrivate, "Allow private/localhost server URLs (unsafe)")
	pf.DurationVar(&flags.Timeout, "timeout", flags.Timeout, "HTTP request timeout (e.g. 30s, 2m)")

	root.AddCommand(newAuthCmd())
	root.AddCommand(newTagsCmd())
	root.AddCommand(newConversationsCmd())
	root.AddCommand(newFacebookCmd())
	root.AddCommand(newPagesCmd())
	root.AddCommand(newCacheCmd())
	root.AddCommand(newVersionCmd())

	_, err := root.ExecuteC()
	if err != nil {
		if !errors.Is(err, errAlreadyHandled) {
			_, _ = fmt.Fprintln(root.ErrOrStderr(), err)
		}
		return err
	}
	return nil
}

// out returns the command's stdout stream.
func out(cmd *cobra.Command) io.Writer {
	return iocontext.GetIO(cmd.Context()).Out
}

// errOut returns the command's stderr stream.
func errOut(cmd *cobra.Command) io.Writer {
	return iocontext.GetIO(cmd.Context()).ErrOut
}
