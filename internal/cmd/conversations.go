package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/socialinbox/inbox-cli/internal/api"
	"github.com/socialinbox/inbox-cli/internal/outfmt"
	"github.com/socialinbox/inbox-cli/internal/realtime"
	"github.com/socialinbox/inbox-cli/internal/reconcile"
	"github.com/socialinbox/inbox-cli/internal/timeexpr"
	"github.com/socialinbox/inbox-cli/internal/urlparse"
	"github.com/socialinbox/inbox-cli/internal/validation"
)

func newConversationsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "conversations",
		Aliases: []string{"conv", "c"},
		Short:   "List and read conversations",
	}

	cmd.AddCommand(newConversationsListCmd())
	cmd.AddCommand(newConversationsOpenCmd())

	return cmd
}

func newConversationsListCmd() *cobra.Command {
	var (
		page   string
		status string
		since  string
	)

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List conversations, most recent first",
		Example: strings.TrimSpace(`
  inbox conversations list
  inbox conversations list --page "Acme Store" --status open -o json
  inbox conversations list --since yesterday
`),
		Args: cobra.NoArgs,
		RunE: RunE(func(cmd *cobra.Command, _ []string) error {
			var cutoff time.Time
			if since != "" {
				t, err := timeexpr.ParseSince(since, time.Now())
				if err != nil {
					return fmt.Errorf("invalid --since: %w", err)
				}
				cutoff = t
			}

			ctx := cmd.Context()
			sess, err := newTagSession(ctx)
			if err != nil {
				return err
			}
			defer sess.Close()

			params := api.ListConversationsParams{Status: status}
			if page != "" {
				params.PageID, err = resolvePageID(ctx, sess.client, page)
				if err != nil {
					return err
				}
			}
			convs, err := sess.client.Conversations().List(ctx, params)
			if err != nil {
				return err
			}

			rec := reconcile.New(sess.client.Conversations(), sess.sync)
			rec.SetConversations(convs)
			summaries := rec.Summaries()
			if !cutoff.IsZero() {
				summaries = updatedSince(summaries, cutoff)
			}

			f := outfmt.NewFormatter(ctx, out(cmd), errOut(cmd))
			if isJSON(cmd) {
				return f.Output(summaries)
			}
			if len(summaries) == 0 {
				f.Empty("No conversations found.")
				return nil
			}
			f.StartTable("ID", "PAGE", "CUSTOMER", "UNREAD", "STATUS", "UPDATED", "LAST MESSAGE")
			for _, s := range summaries {
				unread := strconv.Itoa(s.Unread)
				if s.Escalated {
					unread += "!"
				}
				f.Row(s.ID, s.PageID, truncate(s.CustomerName, 24), unread, s.Status, formatTime(s.UpdatedAt), truncate(s.LastMessage, 48))
			}
			return f.EndTable()
		}),
	}

	cmd.Flags().StringVarP(&page, "page", "p", "", "Only this Facebook page (ID, name or @username)")
	cmd.Flags().StringVar(&status, "status", "", "Filter by status (e.g. open, resolved)")
	cmd.Flags().StringVar(&since, "since", "", "Only conversations updated since (e.g. 2h, yesterday, monday, 2026-01-02)")
	return cmd
}

func updatedSince(in []reconcile.Summary, cutoff time.Time) []reconcile.Summary {
	kept := in[:0]
	for _, s := range in {
		if !s.UpdatedAt.Before(cutoff) {
			kept = append(kept, s)
		}
	}
	return kept
}

// conversationArg accepts a conversation ID or a dashboard link to one.
func conversationArg(arg string) (string, error) {
	id, err := urlparse.ID(arg, urlparse.Conversation)
	if err != nil {
		return "", err
	}
	if err := validation.ValidateID(id, "conversation ID"); err != nil {
		return "", err
	}
	return id, nil
}

func newConversationsOpenCmd() *cobra.Command {
	var follow bool

	cmd := &cobra.Command{
		Use:   "open CONVERSATION",
		Short: "Show a conversation, optionally following live updates",
		Long: strings.TrimSpace(`
Load one conversation with its transcript and tags. With --follow the
command stays connected to the live channel and prints new messages,
typing and status changes until interrupted. In JSON modes every change is
written as one compact JSON line.
`),
		Example: strings.TrimSpace(`
  inbox conversations open 42
  inbox conversations open 42 --follow -o jsonl
  inbox conversations open https://inbox.example.com/conversations/42
`),
		Args: cobra.ExactArgs(1),
		RunE: RunE(func(cmd *cobra.Command, args []string) error {
			convID, err := conversationArg(args[0])
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			sess, err := newTagSession(ctx)
			if err != nil {
				return err
			}
			defer sess.Close()

			rec := reconcile.New(sess.client.Conversations(), sess.sync)
			if !follow {
				if err := rec.Open(ctx, convID); err != nil {
					return err
				}
				view := rec.Snapshot()
				if isJSON(cmd) {
					return printJSON(cmd, view)
				}
				newViewPrinter(out(cmd), false).print(view)
				return nil
			}
			return followConversation(cmd, sess, rec, convID)
		}),
	}

	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing live updates")
	return cmd
}

func followConversation(cmd *cobra.Command, sess *tagSession, rec *reconcile.Reconciler, convID string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	wsURL, err := realtime.URLFromBase(sess.cfg.BaseURL)
	if err != nil {
		return err
	}

	printer := newViewPrinter(out(cmd), isJSON(cmd))
	lineOpts := outfmt.OptionsFrom(cmd.Context())
	lineOpts.Mode = outfmt.JSONL
	rec.OnChange(func(v reconcile.View) {
		if printer.json {
			printer.mu.Lock()
			defer printer.mu.Unlock()
			_ = lineOpts.Write(printer.w, v)
			return
		}
		printer.print(v)
	})

	if err := rec.Open(ctx, convID); err != nil {
		return err
	}

	var handshakes atomic.Int32
	ch := realtime.New(realtime.Config{
		URL: wsURL,
		OnConnected: func() {
			// Events missed while reconnecting are recovered by reloading.
			if handshakes.Add(1) > 1 {
				go func() {
					if err := rec.Refresh(ctx); err != nil && !errors.Is(err, reconcile.ErrStale) {
						_, _ = fmt.Fprintf(errOut(cmd), "refresh after reconnect failed: %v\n", err)
					}
				}()
			}
		},
		OnPaused: func(err error) {
			_, _ = fmt.Fprintf(errOut(cmd), "%v\n", err)
		},
	})
	scope := rec.Bind(ch)
	defer scope.Close()

	if err := ch.Connect(ctx, sess.cfg.Token); err != nil {
		return err
	}
	defer ch.Disconnect()

	select {
	case <-ctx.Done():
		return nil
	case <-ch.Done():
		return ch.Err()
	}
}

// viewPrinter renders the open conversation as plain text. It prints the
// header once and afterwards only messages it has not shown yet.
type viewPrinter struct {
	w    io.Writer
	json bool

	mu         sync.Mutex
	header     bool
	shown      map[string]struct{}
	typing     bool
	escalated  bool
	lastStatus string
	lastErr    string
}

func newViewPrinter(w io.Writer, json bool) *viewPrinter {
	return &viewPrinter{w: w, json: json, shown: make(map[string]struct{})}
}

func (p *viewPrinter) print(v reconcile.View) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if v.Error != "" && v.Error != p.lastErr {
		_, _ = fmt.Fprintf(p.w, "error: %s\n", v.Error)
	}
	p.lastErr = v.Error

	c := v.Conversation
	if c == nil {
		return
	}
	if !p.header {
		p.header = true
		_, _ = fmt.Fprintf(p.w, "Conversation %s with %s (page %s)\n", c.ID, c.Customer.Name, c.PageID)
		if c.Status != "" {
			_, _ = fmt.Fprintf(p.w, "  Status: %s\n", c.Status)
		}
		_, _ = fmt.Fprintf(p.w, "  Tags: %s\n", formatTagIDs(v.Tags))
		_, _ = fmt.Fprintf(p.w, "  Bot: %s  Escalated: %s\n", yesNo(c.BotEnabled), yesNo(c.Escalated))
		_, _ = fmt.Fprintln(p.w)
		p.lastStatus = c.Status
		p.escalated = c.Escalated
	}

	for _, m := range c.Messages {
		if _, ok := p.shown[string(m.ID)]; ok {
			continue
		}
		p.shown[string(m.ID)] = struct{}{}
		_, _ = fmt.Fprintf(p.w, "[%s] %s: %s\n", formatTime(m.CreatedAt), author(c, m), m.Content)
	}

	if c.Status != p.lastStatus {
		_, _ = fmt.Fprintf(p.w, "-- status: %s\n", c.Status)
		p.lastStatus = c.Status
	}
	if c.Escalated && !p.escalated {
		_, _ = fmt.Fprintln(p.w, "-- escalated to a human agent")
	}
	p.escalated = c.Escalated
	if v.Typing && !p.typing {
		_, _ = fmt.Fprintf(p.w, "-- %s is typing...\n", c.Customer.Name)
	}
	p.typing = v.Typing
}

func author(c *api.Conversation, m api.Message) string {
	switch {
	case m.FromCustomer:
		if c.Customer.Name != "" {
			return c.Customer.Name
		}
		return "customer"
	case m.FromBot:
		return "bot"
	default:
		return "agent"
	}
}

func formatTagIDs(ids []int) string {
	if len(ids) == 0 {
		return "-"
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprintf("#%d", id)
	}
	return strings.Join(parts, " ")
}
