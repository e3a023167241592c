package cmd

import (
	"fmt"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/socialinbox/inbox-cli/internal/config"
	"github.com/socialinbox/inbox-cli/internal/tagcache"
)

func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and clear the local tag cache",
		Long:  "Tag catalogues are cached per page for five minutes. Choose the backend with INBOX_TAG_CACHE (file, redis or memory).",
	}

	cmd.AddCommand(newCacheClearCmd())
	cmd.AddCommand(newCachePathCmd())

	return cmd
}

func newCacheClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every cached tag catalogue",
		Args:  cobra.NoArgs,
		RunE: RunE(func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			settings, err := config.ResolveCacheSettings()
			if err != nil {
				return err
			}
			backend, err := tagcache.Open(ctx, tagcache.OpenOptions{
				Kind:     settings.Backend,
				Dir:      settings.Dir,
				RedisURL: settings.RedisURL,
			})
			if err != nil {
				return err
			}
			cache := tagcache.New(backend)
			defer func() { _ = cache.Close() }()

			if err := cache.ClearAll(ctx); err != nil {
				return fmt.Errorf("failed to clear tag cache: %w", err)
			}

			if isJSON(cmd) {
				return printJSON(cmd, map[string]any{"cleared": true, "backend": settings.Backend})
			}
			printIfNotQuiet(cmd, "Tag cache cleared (%s).\n", settings.Backend)
			return nil
		}),
	}
}

func newCachePathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Show where tag catalogues are cached",
		Args:  cobra.NoArgs,
		RunE: RunE(func(cmd *cobra.Command, _ []string) error {
			settings, err := config.ResolveCacheSettings()
			if err != nil {
				return err
			}
			location := ""
			switch settings.Backend {
			case config.TagCacheFile:
				location = settings.Dir
				if location == "" {
					if location, err = tagcache.DefaultDir(); err != nil {
						return err
					}
				}
			case config.TagCacheRedis:
				location = redactRedisURL(settings.RedisURL)
			case config.TagCacheMemory:
				location = "(process memory)"
			}

			if isJSON(cmd) {
				return printJSON(cmd, map[string]any{"backend": settings.Backend, "location": location})
			}
			_, _ = fmt.Fprintf(out(cmd), "%s\t%s\n", settings.Backend, location)
			return nil
		}),
	}
}

// redactRedisURL hides the password in a redis URL.
func redactRedisURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "(invalid redis URL)"
	}
	return u.Redacted()
}
