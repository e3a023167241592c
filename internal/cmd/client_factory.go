package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/socialinbox/inbox-cli/internal/api"
	"github.com/socialinbox/inbox-cli/internal/config"
	"github.com/socialinbox/inbox-cli/internal/tagcache"
	"github.com/socialinbox/inbox-cli/internal/tags"
)

type clientFactory struct {
	timeout   time.Duration
	userAgent string
	now       func() time.Time
}

func newClientFactory() *clientFactory {
	return &clientFactory{
		timeout:   flags.Timeout,
		userAgent: fmt.Sprintf("inbox-cli/%s", version),
		now:       time.Now,
	}
}

// session resolves the signed-in account and builds a client for it. An
// expired session token is reported before any request is sent.
func (f *clientFactory) session() (*api.Client, config.ClientConfig, error) {
	cfg, err := config.ResolveClientConfig()
	if err != nil {
		return nil, cfg, err
	}
	if err := config.CheckSession(cfg.Token, f.now()); err != nil {
		return nil, cfg, err
	}
	return f.newClient(cfg), cfg, nil
}

func (f *clientFactory) newClient(cfg config.ClientConfig) *api.Client {
	client := api.New(cfg.BaseURL, cfg.Token)
	client.CompanyID = cfg.CompanyID
	if f.timeout > 0 {
		client.HTTP.Timeout = f.timeout
	}
	client.UserAgent = f.userAgent
	client.IdempotencyKeyFunc = newIdempotencyKey
	client.OnUnauthorized = forgetSession
	return client
}

// forgetSession removes the stored token after the server rejected it.
// Environment-provided credentials are left alone.
func forgetSession() {
	if config.UsingEnvCredentials() {
		return
	}
	profile, err := config.ActiveProfile()
	if err != nil {
		slog.Warn("could not resolve profile to sign out", "error", err)
		return
	}
	if err := config.DeleteProfile(profile); err != nil {
		slog.Warn("could not remove rejected session", "profile", profile, "error", err)
		return
	}
	slog.Info("session rejected by server; signed out", "profile", profile)
}

func newIdempotencyKey() string {
	return uuid.NewString()
}

// getClient creates an API client from stored credentials
func getClient() (*api.Client, error) {
	client, _, err := newClientFactory().session()
	return client, err
}

// openTagCache opens the configured tag cache backend for the session's
// server and company.
func openTagCache(ctx context.Context, cfg config.ClientConfig) (*tagcache.Cache, error) {
	settings, err := config.ResolveCacheSettings()
	if err != nil {
		return nil, err
	}
	backend, err := tagcache.Open(ctx, tagcache.OpenOptions{
		Kind:      settings.Backend,
		Dir:       settings.Dir,
		RedisURL:  settings.RedisURL,
		BaseURL:   cfg.BaseURL,
		CompanyID: cfg.CompanyID,
	})
	if err != nil {
		return nil, err
	}
	return tagcache.New(backend), nil
}

// tagSession bundles what tag-aware commands need.
type tagSession struct {
	client *api.Client
	cfg    config.ClientConfig
	cache  *tagcache.Cache
	sync   *tags.Synchronizer
}

func newTagSession(ctx context.Context) (*tagSession, error) {
	client, cfg, err := newClientFactory().session()
	if err != nil {
		return nil, err
	}
	cache, err := openTagCache(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &tagSession{
		client: client,
		cfg:    cfg,
		cache:  cache,
		sync:   tags.New(client.Tags(), cache),
	}, nil
}

// Close waits for background tag writes and releases the cache.
func (s *tagSession) Close() {
	s.sync.Wait()
	_ = s.cache.Close()
}
