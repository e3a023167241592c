package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/socialinbox/inbox-cli/internal/api"
	"github.com/socialinbox/inbox-cli/internal/auth"
	"github.com/socialinbox/inbox-cli/internal/dryrun"
	"github.com/socialinbox/inbox-cli/internal/fbconnect"
)

const defaultConnectWait = 5 * time.Minute

func newFacebookCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "facebook",
		Aliases: []string{"fb"},
		Short:   "Connect, disconnect and sync the company's Facebook account",
	}

	cmd.AddCommand(newFacebookStatusCmd())
	cmd.AddCommand(newFacebookConnectCmd())
	cmd.AddCommand(newFacebookDisconnectCmd())
	cmd.AddCommand(newFacebookSyncCmd())

	return cmd
}

// newConnectionManager builds a manager and loads the server-side status.
func newConnectionManager(ctx context.Context) (*fbconnect.Manager, string, error) {
	client, cfg, err := newClientFactory().session()
	if err != nil {
		return nil, "", err
	}
	mgr := fbconnect.New(client.Facebook(), client.Pages())
	if _, err := mgr.Refresh(ctx); err != nil {
		return nil, "", err
	}
	return mgr, cfg.BaseURL, nil
}

func stateView(s fbconnect.State) map[string]any {
	view := map[string]any{"state": s.Name()}
	switch st := s.(type) {
	case fbconnect.Connected:
		view["account_name"] = st.Status.AccountName
		view["page_count"] = st.Status.PageCount
		if st.Status.ConnectedAt != nil {
			view["connected_at"] = st.Status.ConnectedAt
		}
		if st.Status.ExpiresAt != nil {
			view["expires_at"] = st.Status.ExpiresAt
		}
	case fbconnect.Connecting:
		view["auth_url"] = st.AuthURL
	}
	if err := fbconnect.ErrorOf(s); err != nil {
		view["error"] = err.Error()
	}
	return view
}

func printState(cmd *cobra.Command, s fbconnect.State) error {
	if isJSON(cmd) {
		return printJSON(cmd, stateView(s))
	}
	w := out(cmd)
	switch st := s.(type) {
	case fbconnect.Connected:
		_, _ = fmt.Fprintln(w, "Facebook: connected")
		if st.Status.AccountName != "" {
			_, _ = fmt.Fprintf(w, "  Account: %s\n", st.Status.AccountName)
		}
		_, _ = fmt.Fprintf(w, "  Pages: %d\n", st.Status.PageCount)
		_, _ = fmt.Fprintf(w, "  Connected at: %s\n", formatTimePtr(st.Status.ConnectedAt))
		if st.Status.ExpiresAt != nil {
			_, _ = fmt.Fprintf(w, "  Expires: %s\n", formatTimePtr(st.Status.ExpiresAt))
		}
	default:
		_, _ = fmt.Fprintf(w, "Facebook: %s\n", s.Name())
	}
	if err := fbconnect.ErrorOf(s); err != nil {
		_, _ = fmt.Fprintf(w, "  Last error: %v\n", err)
	}
	return nil
}

func newFacebookStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether a Facebook account is connected",
		Args:  cobra.NoArgs,
		RunE: RunE(func(cmd *cobra.Command, _ []string) error {
			mgr, _, err := newConnectionManager(cmd.Context())
			if err != nil {
				return err
			}
			return printState(cmd, mgr.State())
		}),
	}
}

func newFacebookConnectCmd() *cobra.Command {
	var (
		waitTimeout time.Duration
		syncAfter   bool
	)

	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Connect a Facebook account through the browser",
		Long: strings.TrimSpace(`
Open the Facebook authorization page in your browser and wait for it to
redirect back to a one-shot listener on 127.0.0.1. The server then exchanges
the code and links the account.
`),
		Example: strings.TrimSpace(`
  inbox facebook connect
  inbox facebook connect --sync --wait-timeout 10m
`),
		Args: cobra.NoArgs,
		RunE: RunE(func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			mgr, baseURL, err := newConnectionManager(ctx)
			if err != nil {
				return err
			}
			if _, ok := mgr.State().(fbconnect.Connected); ok {
				return fmt.Errorf("%w: a Facebook account is already connected; disconnect it first", fbconnect.ErrInvalidTransition)
			}

			server := auth.NewCallbackServer(baseURL)
			server.Out = errOut(cmd)
			redirectURI, err := server.Start()
			if err != nil {
				return err
			}
			defer func() { _ = server.Close() }()

			start, err := mgr.BeginConnect(ctx, redirectURI)
			if err != nil {
				return err
			}
			auth.OpenBrowser(errOut(cmd), start.URL)
			if !flags.Quiet {
				_, _ = fmt.Fprintln(errOut(cmd), "Waiting for Facebook to redirect back (press Ctrl+C to cancel)...")
			}

			waitCtx, cancel := context.WithTimeout(ctx, waitTimeout)
			defer cancel()
			cb, err := server.Wait(waitCtx)
			if err != nil {
				if errors.Is(err, context.DeadlineExceeded) {
					return fmt.Errorf("no callback received within %s", waitTimeout)
				}
				return err
			}

			state, err := mgr.CompleteConnect(ctx, cb)
			if err != nil {
				return err
			}

			var result *api.PageSyncResult
			if syncAfter {
				result, err = mgr.SyncPages(ctx)
				if err != nil {
					return err
				}
			}

			if isJSON(cmd) {
				view := stateView(state)
				if result != nil {
					view["sync"] = result
				}
				return printJSON(cmd, view)
			}
			if err := printState(cmd, state); err != nil {
				return err
			}
			if result != nil {
				return printSyncResult(cmd, result)
			}
			return nil
		}),
	}

	cmd.Flags().DurationVar(&waitTimeout, "wait-timeout", defaultConnectWait, "How long to wait for the browser callback")
	cmd.Flags().BoolVar(&syncAfter, "sync", false, "Import pages once connected")
	return cmd
}

func newFacebookDisconnectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "disconnect",
		Short: "Disconnect Facebook and remove every imported page",
		Long:  "Remove the Facebook link. All imported pages, their conversations and tags stop syncing. Asks for confirmation unless --yes is given.",
		Args:  cobra.NoArgs,
		RunE: RunE(func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			mgr, _, err := newConnectionManager(ctx)
			if err != nil {
				return err
			}

			if isDryRun(cmd) {
				if _, ok := mgr.State().(fbconnect.Connected); !ok {
					return fmt.Errorf("%w: no Facebook account is connected", fbconnect.ErrInvalidTransition)
				}
				return printPreview(cmd, dryrun.New("disconnect", "Facebook").
					Add("DELETE", "/api/facebook/connection", "").
					Warn("every imported page stops syncing"))
			}

			var promptErr error
			confirm := func() bool {
				ok, err := confirmAction(cmd, confirmOptions{
					Prompt:        "Disconnect Facebook and remove all imported pages? [y/N]: ",
					CancelMessage: "Cancelled.",
				})
				promptErr = err
				return ok
			}

			if err := mgr.Disconnect(ctx, confirm); err != nil {
				if errors.Is(err, fbconnect.ErrNotConfirmed) {
					if promptErr != nil {
						return promptErr
					}
					return nil
				}
				return err
			}

			if isJSON(cmd) {
				return printJSON(cmd, stateView(mgr.State()))
			}
			printIfNotQuiet(cmd, "Facebook disconnected.\n")
			return nil
		}),
	}
}

func newFacebookSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Import pages from the connected Facebook account",
		Args:  cobra.NoArgs,
		RunE: RunE(func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			mgr, _, err := newConnectionManager(ctx)
			if err != nil {
				return err
			}
			if isDryRun(cmd) {
				if _, ok := mgr.State().(fbconnect.Connected); !ok {
					return fmt.Errorf("%w: no Facebook account is connected", fbconnect.ErrInvalidTransition)
				}
				return printPreview(cmd, dryrun.New("sync", "Facebook pages").
					Add("POST", "/api/facebook/pages/sync", ""))
			}
			result, err := mgr.SyncPages(ctx)
			if err != nil {
				return err
			}
			if isJSON(cmd) {
				if err := printJSON(cmd, result); err != nil {
					return err
				}
			} else if err := printSyncResult(cmd, result); err != nil {
				return err
			}
			if result.SyncStatus == api.SyncError {
				return fmt.Errorf("page sync failed: %s", result.ErrorMessage)
			}
			return nil
		}),
	}
}

func printSyncResult(cmd *cobra.Command, r *api.PageSyncResult) error {
	w := out(cmd)
	switch r.SyncStatus {
	case api.SyncSuccess:
		_, _ = fmt.Fprintf(w, "Synced %d of %d page(s).\n", r.PagesSynced, r.PagesTotal)
	case api.SyncPartial:
		_, _ = fmt.Fprintf(w, "Partially synced: %d of %d page(s).\n", r.PagesSynced, r.PagesTotal)
	default:
		_, _ = fmt.Fprintf(w, "Sync failed: %d of %d page(s).\n", r.PagesSynced, r.PagesTotal)
	}
	if r.ErrorMessage != "" && r.SyncStatus != api.SyncError {
		_, _ = fmt.Fprintf(w, "  %s\n", r.ErrorMessage)
	}
	for _, p := range r.FailedPages {
		_, _ = fmt.Fprintf(w, "  failed: %s\n", p)
	}
	return nil
}
