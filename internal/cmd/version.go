package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/socialinbox/inbox-cli/internal/update"
)

// version is set at build time via ldflags
var version = "dev"

func newVersionCmd() *cobra.Command {
	var check bool

	cmd := &cobra.Command{
		Use:     "version",
		Aliases: []string{"v"},
		Short:   "Print version information",
		Args:    cobra.NoArgs,
		RunE: RunE(func(cmd *cobra.Command, _ []string) error {
			var result *update.Result
			if check && !update.Disabled() {
				res, err := update.NewChecker().Check(cmd.Context(), version)
				if err != nil {
					return err
				}
				result = res
			}

			if isJSON(cmd) {
				payload := map[string]any{"version": version}
				if result != nil {
					payload["update"] = result
				}
				return printJSON(cmd, payload)
			}

			_, _ = fmt.Fprintf(out(cmd), "inbox version %s\n", version)
			if result != nil && result.UpdateAvailable {
				_, _ = fmt.Fprintf(errOut(cmd), "\nUpdate available: %s -> %s\n", result.CurrentVersion, result.LatestVersion)
				_, _ = fmt.Fprintf(errOut(cmd), "Download: %s\n", result.UpdateURL)
			}
			return nil
		}),
	}

	cmd.Flags().BoolVar(&check, "check", false, "Check for a newer release")
	return cmd
}
