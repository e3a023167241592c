package cmd

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/socialinbox/inbox-cli/internal/api"
	"github.com/socialinbox/inbox-cli/internal/dryrun"
	"github.com/socialinbox/inbox-cli/internal/outfmt"
	"github.com/socialinbox/inbox-cli/internal/pagefilter"
	"github.com/socialinbox/inbox-cli/internal/tags"
	"github.com/socialinbox/inbox-cli/internal/validation"
)

func newTagsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "tags",
		Aliases: []string{"tag", "t"},
		Short:   "List and toggle conversation tags",
		Long:    "Tag catalogues are per Facebook page and cached locally; see 'inbox cache'.",
	}

	cmd.AddCommand(newTagsListCmd())
	cmd.AddCommand(newTagsToggleCmd())
	cmd.AddCommand(newTagsPrefetchCmd())

	return cmd
}

func newTagsListCmd() *cobra.Command {
	var (
		page    string
		refresh bool
	)

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List the tag catalogue of a page",
		Example: strings.TrimSpace(`
  inbox tags list --page 1234567890
  inbox tags list --page "Acme Store" --refresh
`),
		Args: cobra.NoArgs,
		RunE: RunE(func(cmd *cobra.Command, _ []string) error {
			if page == "" {
				return fmt.Errorf("--page is required")
			}
			ctx := cmd.Context()
			sess, err := newTagSession(ctx)
			if err != nil {
				return err
			}
			defer sess.Close()

			pageID, err := resolvePageID(ctx, sess.client, page)
			if err != nil {
				return err
			}
			if refresh {
				if err := sess.sync.InvalidatePage(ctx, pageID); err != nil {
					return err
				}
			}
			catalogue, err := sess.sync.LoadTagsForPage(ctx, pageID)
			if err != nil {
				return err
			}

			f := outfmt.NewFormatter(ctx, out(cmd), errOut(cmd))
			if isJSON(cmd) {
				return f.Output(catalogue)
			}
			if len(catalogue) == 0 {
				f.Empty("No tags defined for this page.")
				return nil
			}
			f.StartTable("ID", "NAME", "COLOR")
			for _, t := range catalogue {
				f.Row(strconv.Itoa(t.ID.Int()), t.Name, t.Color)
			}
			return f.EndTable()
		}),
	}

	cmd.Flags().StringVarP(&page, "page", "p", "", "Facebook page ID, name or @username")
	cmd.Flags().BoolVar(&refresh, "refresh", false, "Ignore the cached catalogue")
	return cmd
}

func newTagsToggleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "toggle CONVERSATION TAG...",
		Short: "Toggle tags on a conversation",
		Long: strings.TrimSpace(`
Flip each tag on the conversation. TAG is a tag ID or name from the
conversation page's catalogue. The change is shown immediately and sent to
the server; a rejected write is reported and the command exits non-zero.
`),
		Example: strings.TrimSpace(`
  inbox tags toggle 42 vip
  inbox tags toggle 42 12 "follow up"
  inbox tags toggle https://inbox.example.com/conversations/42 vip --dry-run
`),
		Args: cobra.MinimumNArgs(2),
		RunE: RunE(func(cmd *cobra.Command, args []string) error {
			convID, err := conversationArg(args[0])
			if err != nil {
				return err
			}
			for _, q := range args[1:] {
				if err := validation.ValidateTagQuery(q); err != nil {
					return err
				}
			}

			ctx := cmd.Context()
			sess, err := newTagSession(ctx)
			if err != nil {
				return err
			}
			defer sess.Close()

			conv, err := sess.client.Conversations().Get(ctx, convID)
			if err != nil {
				return err
			}
			catalogue, err := sess.sync.LoadTagsForPage(ctx, string(conv.PageID))
			if err != nil {
				return err
			}

			selected := make([]api.Tag, 0, len(args)-1)
			for _, q := range args[1:] {
				t, err := tags.ResolveTag(catalogue, q)
				if err != nil {
					return fmt.Errorf("tag %q: %w", q, err)
				}
				selected = append(selected, t)
			}

			if isDryRun(cmd) {
				return printPreview(cmd, previewToggle(conv, selected))
			}

			var (
				mu       sync.Mutex
				failures []*tags.WriteError
			)
			sess.sync.OnError = func(werr *tags.WriteError) {
				mu.Lock()
				failures = append(failures, werr)
				mu.Unlock()
			}

			sess.sync.ReplaceTags(convID, conv.Tags)
			changes := make([]map[string]any, 0, len(selected))
			for _, t := range selected {
				active := sess.sync.ToggleTag(ctx, convID, t.ID.Int())
				changes = append(changes, map[string]any{
					"tag_id":   t.ID.Int(),
					"tag_name": t.Name,
					"active":   active,
				})
				if !isJSON(cmd) {
					printIfNotQuiet(cmd, "%s %s\n", map[bool]string{true: "+", false: "-"}[active], t.Name)
				}
			}
			sess.sync.Wait()

			if isJSON(cmd) {
				if err := printJSON(cmd, map[string]any{
					"conversation_id": convID,
					"changes":         changes,
					"tags":            sess.sync.View(convID, catalogue),
				}); err != nil {
					return err
				}
			}

			if len(failures) > 0 {
				sort.Slice(failures, func(i, j int) bool { return failures[i].TagID < failures[j].TagID })
				return failures[0]
			}
			return nil
		}),
	}

	return cmd
}

// previewToggle lists the writes a toggle would send, applying repeated
// tags in order.
func previewToggle(conv *api.Conversation, selected []api.Tag) *dryrun.Preview {
	convID := string(conv.ID)
	active := make(map[int]bool, len(conv.Tags))
	for _, id := range conv.Tags {
		active[id] = true
	}
	p := dryrun.New("toggle tags on", "conversation "+convID).Set("page", string(conv.PageID))
	base := "/api/conversations/" + convID + "/tags"
	for _, t := range selected {
		id := t.ID.Int()
		if active[id] {
			p.Add("DELETE", base+"/"+strconv.Itoa(id), "remove "+t.Name)
		} else {
			p.Add("POST", base, "add "+t.Name)
		}
		active[id] = !active[id]
	}
	return p
}

func newTagsPrefetchCmd() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "prefetch",
		Short: "Warm the tag cache for the pages in your inbox",
		Long:  "Load the tag catalogue of every page in your merged-pages filter (or every page with --all).",
		Args:  cobra.NoArgs,
		RunE: RunE(func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			sess, err := newTagSession(ctx)
			if err != nil {
				return err
			}
			defer sess.Close()

			pages, err := sess.client.Pages().List(ctx)
			if err != nil {
				return err
			}
			if !all {
				filter, err := pagefilter.Load(ctx, sess.client.Users())
				if err != nil {
					return err
				}
				pages = pagefilter.Effective(pages, filter)
			}

			catalogues, err := sess.sync.Prefetch(ctx, pagefilter.IDs(pages))
			if err != nil {
				return err
			}

			counts := make(map[string]int, len(catalogues))
			for id, c := range catalogues {
				counts[id] = len(c)
			}
			if isJSON(cmd) {
				return printJSON(cmd, map[string]any{"pages": counts})
			}
			printIfNotQuiet(cmd, "Cached tag catalogues for %d page(s).\n", len(counts))
			return nil
		}),
	}

	cmd.Flags().BoolVar(&all, "all", false, "Prefetch every linked page, ignoring the page filter")
	return cmd
}
