package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/socialinbox/inbox-cli/internal/api"
	"github.com/socialinbox/inbox-cli/internal/dryrun"
	"github.com/socialinbox/inbox-cli/internal/outfmt"
	"github.com/socialinbox/inbox-cli/internal/pagefilter"
	"github.com/socialinbox/inbox-cli/internal/resolve"
	"github.com/socialinbox/inbox-cli/internal/urlparse"
)

func newPagesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "pages",
		Aliases: []string{"page", "pg"},
		Short:   "List Facebook pages and manage your merged-pages filter",
	}

	cmd.AddCommand(newPagesListCmd())
	cmd.AddCommand(newPagesFilterCmd())

	return cmd
}

func newPagesListCmd() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List the pages in your inbox",
		Long:    "Without --all only the pages in your merged-pages filter are listed. An empty filter lists every page.",
		Args:    cobra.NoArgs,
		RunE: RunE(func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			client, err := getClient()
			if err != nil {
				return err
			}

			pages, err := client.Pages().List(ctx)
			if err != nil {
				return err
			}
			if !all {
				filter, err := pagefilter.Load(ctx, client.Users())
				if err != nil {
					return err
				}
				pages = pagefilter.Effective(pages, filter)
			}
			return printPages(cmd, pages)
		}),
	}

	cmd.Flags().BoolVar(&all, "all", false, "List every linked page, ignoring the filter")
	return cmd
}

func printPages(cmd *cobra.Command, pages []api.Page) error {
	f := outfmt.NewFormatter(cmd.Context(), out(cmd), errOut(cmd))
	if isJSON(cmd) {
		return f.Output(pages)
	}
	if len(pages) == 0 {
		f.Empty("No pages found.")
		return nil
	}
	f.StartTable("ID", "NAME", "USERNAME", "SYNCED", "SYNCED AT")
	for _, p := range pages {
		f.Row(string(p.ID), p.Name, p.Username, yesNo(p.IsSync), formatTimePtr(p.SyncedAt))
	}
	return f.EndTable()
}

func newPagesFilterCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "filter",
		Short: "Show or change which pages appear in your inbox",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the merged-pages filter",
		Args:  cobra.NoArgs,
		RunE: RunE(func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			client, err := getClient()
			if err != nil {
				return err
			}
			filter, err := pagefilter.Load(ctx, client.Users())
			if err != nil {
				return err
			}
			if isJSON(cmd) {
				return printJSON(cmd, map[string]any{"merged_pages_filter": filter})
			}
			if len(filter) == 0 {
				_, _ = fmt.Fprintln(out(cmd), "No filter set: all pages are shown.")
				return nil
			}
			for _, id := range filter {
				_, _ = fmt.Fprintln(out(cmd), id)
			}
			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set PAGE...",
		Short: "Replace the filter with the given pages",
		Long:  "Each PAGE is a page ID, name or @username. The whole filter is replaced.",
		Example: strings.TrimSpace(`
  inbox pages filter set 1234567890 "Acme Outlet"
`),
		Args: cobra.MinimumNArgs(1),
		RunE: RunE(func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client, err := getClient()
			if err != nil {
				return err
			}
			pages, err := client.Pages().List(ctx)
			if err != nil {
				return err
			}
			ids := make([]string, 0, len(args))
			for _, q := range args {
				p, err := resolve.Page(q, pages)
				if err != nil {
					return fmt.Errorf("page %q: %w", q, err)
				}
				ids = append(ids, string(p.ID))
			}
			if isDryRun(cmd) {
				return printPreview(cmd, previewFilter(pagefilter.Normalize(ids)))
			}
			saved, err := pagefilter.Save(ctx, client.Users(), ids)
			if err != nil {
				return err
			}
			if isJSON(cmd) {
				return printJSON(cmd, map[string]any{"merged_pages_filter": saved})
			}
			printIfNotQuiet(cmd, "Filter set to %d page(s).\n", len(saved))
			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Clear the filter so every page is shown",
		Args:  cobra.NoArgs,
		RunE: RunE(func(cmd *cobra.Command, _ []string) error {
			if isDryRun(cmd) {
				return printPreview(cmd, previewFilter(nil))
			}
			ctx := cmd.Context()
			client, err := getClient()
			if err != nil {
				return err
			}
			if _, err := pagefilter.Save(ctx, client.Users(), nil); err != nil {
				return err
			}
			if isJSON(cmd) {
				return printJSON(cmd, map[string]any{"merged_pages_filter": []string{}})
			}
			printIfNotQuiet(cmd, "Filter cleared.\n")
			return nil
		}),
	})

	return cmd
}

func previewFilter(ids []string) *dryrun.Preview {
	detail := "show all pages"
	if len(ids) > 0 {
		detail = strings.Join(ids, ", ")
	}
	return dryrun.New("replace", "the merged-pages filter").
		Add("PUT", "/api/users/me/merged-pages-filter", detail)
}

// resolvePageID accepts a numeric page id as is and resolves anything else
// against the linked pages.
func resolvePageID(ctx context.Context, client *api.Client, query string) (string, error) {
	query = strings.TrimSpace(query)
	if urlparse.IsURL(query) {
		return urlparse.ID(query, urlparse.Page)
	}
	if isNumeric(query) {
		return query, nil
	}
	pages, err := client.Pages().List(ctx)
	if err != nil {
		return "", err
	}
	p, err := resolve.Page(query, pages)
	if err != nil {
		return "", fmt.Errorf("page %q: %w", query, err)
	}
	return string(p.ID), nil
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
