package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/socialinbox/inbox-cli/internal/api"
	"github.com/socialinbox/inbox-cli/internal/config"
	"github.com/socialinbox/inbox-cli/internal/outfmt"
	"github.com/socialinbox/inbox-cli/internal/validation"
)

// newAuthCmd returns the auth command with subcommands
func newAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "auth",
		Aliases: []string{"au"},
		Short:   "Manage the signed-in session",
		Long:    "Store, inspect and remove the session token kept in your OS keychain.",
	}

	cmd.AddCommand(newAuthLoginCmd())
	cmd.AddCommand(newAuthStatusCmd())
	cmd.AddCommand(newAuthLogoutCmd())
	cmd.AddCommand(newAuthProfilesCmd())
	cmd.AddCommand(newAuthSwitchCmd())

	return cmd
}

func newAuthLoginCmd() *cobra.Command {
	var (
		url       string
		token     string
		companyID string
		profile   string
		envFile   string
		noVerify  bool
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Save a session token",
		Long: strings.TrimSpace(`
Save a session token securely to your OS keychain.

The token is the JWT issued by the dashboard sign-in. Its company_id and
email claims fill in the company and account when not given explicitly.
An expired token is rejected before anything is stored.
`),
		Example: strings.TrimSpace(`
  inbox auth login --url https://inbox.example.com --token "$INBOX_TOKEN"

  # Save to a named profile
  inbox auth login --url https://inbox.example.com --token TOKEN --profile staging

  # Load credentials from a .env file
  inbox auth login --env-file .env
`),
		Args: cobra.NoArgs,
		RunE: RunE(func(cmd *cobra.Command, _ []string) error {
			if envFile != "" {
				envVars, err := loadAuthEnvFile(envFile)
				if err != nil {
					return err
				}
				if url == "" {
					url = strings.TrimSpace(envVars[config.EnvBaseURL])
				}
				if token == "" {
					token = strings.TrimSpace(envVars[config.EnvToken])
				}
				if companyID == "" {
					companyID = strings.TrimSpace(envVars[config.EnvCompanyID])
				}
				if !cmd.Flags().Changed("profile") {
					if envProfile := strings.TrimSpace(envVars[config.EnvProfile]); envProfile != "" {
						profile = envProfile
					}
				}
			}

			if url == "" {
				return fmt.Errorf("--url is required")
			}
			if token == "" {
				return fmt.Errorf("--token is required")
			}

			url = strings.TrimSuffix(strings.TrimSpace(url), "/")
			if err := validation.ValidateServerURL(url); err != nil {
				return fmt.Errorf("invalid URL: %w", err)
			}

			factory := newClientFactory()
			if err := config.CheckSession(token, factory.now()); err != nil {
				return err
			}

			account := config.Account{
				BaseURL:   url,
				Token:     token,
				CompanyID: companyID,
			}
			if claims, err := config.InspectToken(token); err == nil {
				if account.CompanyID == "" {
					account.CompanyID = claims.CompanyID
				}
				account.Email = claims.Email
			}

			if !noVerify {
				client := factory.newClient(config.ClientConfig{
					BaseURL:   account.BaseURL,
					Token:     account.Token,
					CompanyID: account.CompanyID,
				})
				client.OnUnauthorized = nil
				me, err := client.Users().Me(cmd.Context())
				if err != nil {
					return fmt.Errorf("token verification failed: %w", err)
				}
				if me.Email != "" {
					account.Email = me.Email
				}
				if account.CompanyID == "" {
					account.CompanyID = string(me.CompanyID)
				}
			}

			if err := config.SaveProfile(profile, account); err != nil {
				return fmt.Errorf("failed to save credentials: %w", err)
			}

			if isJSON(cmd) {
				return printJSON(cmd, map[string]any{
					"authenticated": true,
					"profile":       profile,
					"base_url":      account.BaseURL,
					"company_id":    account.CompanyID,
					"email":         account.Email,
				})
			}

			w := out(cmd)
			_, _ = fmt.Fprintln(w, "Session saved.")
			_, _ = fmt.Fprintf(w, "  Base URL: %s\n", account.BaseURL)
			if account.CompanyID != "" {
				_, _ = fmt.Fprintf(w, "  Company: %s\n", account.CompanyID)
			}
			if account.Email != "" {
				_, _ = fmt.Fprintf(w, "  Email: %s\n", account.Email)
			}
			if profile != "" && profile != "default" {
				_, _ = fmt.Fprintf(w, "  Profile: %s\n", profile)
			}
			return nil
		}),
	}

	cmd.Flags().StringVar(&url, "url", "", "Server base URL (e.g. https://inbox.example.com)")
	cmd.Flags().StringVar(&token, "token", "", "Session token")
	cmd.Flags().StringVar(&companyID, "company-id", "", "Company ID (defaults to the token's company_id claim)")
	cmd.Flags().StringVar(&profile, "profile", "default", "Profile name to save credentials under")
	cmd.Flags().StringVar(&envFile, "env-file", "", "Load INBOX_* values from a .env file")
	cmd.Flags().BoolVar(&noVerify, "no-verify", false, "Save without checking the token against the server")

	return cmd
}

func loadAuthEnvFile(path string) (map[string]string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("--env-file requires a file path")
	}
	envVars, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read --env-file %q: %w", path, err)
	}
	return envVars, nil
}

func newAuthStatusCmd() *cobra.Command {
	var check bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the signed-in session",
		Long:  "Display the stored session (the token is masked). --check also asks the server.",
		Example: strings.TrimSpace(`
  inbox auth status
  inbox auth status --check --json
`),
		Args: cobra.NoArgs,
		RunE: RunE(func(cmd *cobra.Command, _ []string) error {
			usingEnv := config.UsingEnvCredentials()

			cfg, err := config.ResolveClientConfig()
			if err != nil {
				if errors.Is(err, config.ErrNotConfigured) {
					if isJSON(cmd) {
						return printJSON(cmd, map[string]any{
							"authenticated": false,
							"message":       "Not signed in. Run 'inbox auth login'.",
						})
					}
					_, _ = fmt.Fprintln(out(cmd), "Not signed in.")
					_, _ = fmt.Fprintln(out(cmd), "Run 'inbox auth login' to save a session.")
					return nil
				}
				return fmt.Errorf("failed to load credentials: %w", err)
			}

			var profile string
			if !usingEnv {
				if p, err := config.ActiveProfile(); err == nil {
					profile = p
				}
			}

			factory := newClientFactory()
			claims, _ := config.InspectToken(cfg.Token)
			expired := config.CheckSession(cfg.Token, factory.now()) != nil

			payload := map[string]any{
				"authenticated": !expired,
				"expired":       expired,
				"base_url":      cfg.BaseURL,
				"company_id":    cfg.CompanyID,
				"token":         maskToken(cfg.Token),
				"source":        map[bool]string{true: "env", false: "keychain"}[usingEnv],
			}
			if profile != "" {
				payload["profile"] = profile
			}
			if claims.Email != "" {
				payload["email"] = claims.Email
			}
			if !claims.ExpiresAt.IsZero() {
				payload["expires_at"] = claims.ExpiresAt.UTC()
			}

			if check && !expired {
				client := factory.newClient(cfg)
				healthy, herr := client.HealthCheck(cmd.Context())
				payload["server_healthy"] = herr == nil && healthy
				if me, err := client.Users().Me(cmd.Context()); err == nil {
					payload["user"] = me
				} else {
					payload["authenticated"] = false
					payload["error"] = err.Error()
				}
				if rl := client.LastRateLimit(); rl != nil {
					payload["rate_limit"] = rl
				}
			}

			if isJSON(cmd) {
				return printJSON(cmd, payload)
			}

			w := out(cmd)
			switch {
			case expired:
				_, _ = fmt.Fprintln(w, "Session expired")
			case payload["authenticated"] == false:
				_, _ = fmt.Fprintln(w, "Session rejected by server")
			default:
				_, _ = fmt.Fprintln(w, "Signed in")
			}
			_, _ = fmt.Fprintf(w, "  Base URL: %s\n", cfg.BaseURL)
			if cfg.CompanyID != "" {
				_, _ = fmt.Fprintf(w, "  Company: %s\n", cfg.CompanyID)
			}
			if claims.Email != "" {
				_, _ = fmt.Fprintf(w, "  Email: %s\n", claims.Email)
			}
			_, _ = fmt.Fprintf(w, "  Token: %s\n", maskToken(cfg.Token))
			if !claims.ExpiresAt.IsZero() {
				_, _ = fmt.Fprintf(w, "  Expires: %s\n", formatTime(claims.ExpiresAt))
			}
			if profile != "" {
				_, _ = fmt.Fprintf(w, "  Profile: %s\n", profile)
			}
			if usingEnv {
				_, _ = fmt.Fprintln(w, "  Source: env")
			}
			if healthy, ok := payload["server_healthy"].(bool); ok {
				_, _ = fmt.Fprintf(w, "  Server healthy: %s\n", yesNo(healthy))
			}
			if rl, ok := payload["rate_limit"].(*api.RateLimitInfo); ok && rl.Remaining != nil {
				_, _ = fmt.Fprintf(w, "  Rate limit remaining: %d\n", *rl.Remaining)
			}
			if msg, ok := payload["error"].(string); ok {
				_, _ = fmt.Fprintf(w, "  Error: %s\n", msg)
			}
			return nil
		}),
	}

	cmd.Flags().BoolVar(&check, "check", false, "Verify the session against the server")
	return cmd
}

func newAuthLogoutCmd() *cobra.Command {
	var profile string

	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Remove the stored session",
		Long:  "Delete the stored session token from your OS keychain.",
		Example: strings.TrimSpace(`
  inbox auth logout
  inbox auth logout --profile staging
`),
		Args: cobra.NoArgs,
		RunE: RunE(func(cmd *cobra.Command, _ []string) error {
			if profile == "" {
				current, err := config.ActiveProfile()
				if err != nil {
					return err
				}
				profile = current
			}
			if err := config.DeleteProfile(profile); err != nil {
				return fmt.Errorf("failed to remove credentials: %w", err)
			}
			if os.Getenv(config.EnvToken) != "" {
				_, _ = fmt.Fprintf(errOut(cmd), "Note: %s is still set in the environment.\n", config.EnvToken)
			}
			if isJSON(cmd) {
				return printJSON(cmd, map[string]any{"logged_out": true, "profile": profile})
			}
			printIfNotQuiet(cmd, "Signed out of profile %s.\n", profile)
			return nil
		}),
	}

	cmd.Flags().StringVar(&profile, "profile", "", "Profile to remove (default: active profile)")
	return cmd
}

func newAuthProfilesCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "profiles",
		Aliases: []string{"ls"},
		Short:   "List stored profiles",
		Args:    cobra.NoArgs,
		RunE: RunE(func(cmd *cobra.Command, _ []string) error {
			profiles, err := config.ListProfiles()
			if err != nil {
				return err
			}

			if isJSON(cmd) {
				items := make([]map[string]any, 0, len(profiles))
				for _, p := range profiles {
					items = append(items, map[string]any{
						"name":       p.Name,
						"current":    p.Current,
						"base_url":   p.Account.BaseURL,
						"company_id": p.Account.CompanyID,
						"email":      p.Account.Email,
					})
				}
				return printJSON(cmd, items)
			}

			f := outfmt.NewFormatter(cmd.Context(), out(cmd), errOut(cmd))
			if len(profiles) == 0 {
				f.Empty("No stored profiles. Run: inbox auth login")
				return nil
			}
			f.StartTable("", "PROFILE", "SERVER", "COMPANY", "EMAIL", "SAVED")
			for _, p := range profiles {
				marker := ""
				if p.Current {
					marker = "*"
				}
				f.Row(marker, p.Name, p.Account.BaseURL, p.Account.CompanyID, p.Account.Email, formatTime(p.Account.SavedAt))
			}
			return f.EndTable()
		}),
	}
}

func newAuthSwitchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "switch PROFILE",
		Short: "Make a stored profile current",
		Args:  cobra.ExactArgs(1),
		RunE: RunE(func(cmd *cobra.Command, args []string) error {
			name := strings.TrimSpace(args[0])
			if err := config.SetCurrentProfile(name); err != nil {
				return err
			}
			if os.Getenv(config.EnvProfile) != "" || config.UsingEnvCredentials() {
				_, _ = fmt.Fprintln(errOut(cmd), "Note: environment credentials or INBOX_PROFILE still take precedence.")
			}
			if isJSON(cmd) {
				return printJSON(cmd, map[string]any{"current": name})
			}
			printIfNotQuiet(cmd, "Switched to profile %s.\n", name)
			return nil
		}),
	}
}

// maskToken keeps the first and last four characters.
func maskToken(token string) string {
	if token == "" {
		return ""
	}
	if len(token) <= 8 {
		return strings.Repeat("*", len(token))
	}
	return token[:4] + strings.Repeat("*", 4) + token[len(token)-4:]
}
