package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Tag cache backends selectable with INBOX_TAG_CACHE.
const (
	EnvTagCache = "INBOX_TAG_CACHE"
	EnvRedisURL = "INBOX_REDIS_URL"
	EnvCacheDir = "INBOX_CACHE_DIR"

	TagCacheFile   = "file"
	TagCacheRedis  = "redis"
	TagCacheMemory = "memory"
)

// ClientConfig contains resolved API client settings.
type ClientConfig struct {
	BaseURL   string
	Token     string
	CompanyID string
}

// ResolveClientConfig resolves the signed-in session. The company id falls
// back to the token's company_id claim.
func ResolveClientConfig() (ClientConfig, error) {
	account, err := LoadAccount()
	if err != nil {
		return ClientConfig{}, err
	}
	cfg := ClientConfig{
		BaseURL:   account.BaseURL,
		Token:     account.Token,
		CompanyID: account.CompanyID,
	}
	if cfg.CompanyID == "" {
		if claims, err := InspectToken(cfg.Token); err == nil {
			cfg.CompanyID = claims.CompanyID
		}
	}
	return cfg, nil
}

// ResolveBaseURL resolves the server URL for calls that need no session.
func ResolveBaseURL(override string) (string, error) {
	var baseURL string
	if account, err := LoadAccount(); err == nil {
		baseURL = account.BaseURL
	}
	if envURL := strings.TrimSpace(os.Getenv(EnvBaseURL)); envURL != "" {
		baseURL = envURL
	}
	if override != "" {
		baseURL = override
	}
	baseURL = strings.TrimSuffix(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return "", fmt.Errorf("base URL not configured (set %s, run 'inbox auth login', or pass --base-url)", EnvBaseURL)
	}
	return baseURL, nil
}

// CacheSettings selects the tag cache backend.
type CacheSettings struct {
	Backend  string
	RedisURL string
	Dir      string
}

// ResolveCacheSettings reads the tag cache settings from the environment.
// Setting only INBOX_REDIS_URL selects the redis backend.
func ResolveCacheSettings() (CacheSettings, error) {
	s := CacheSettings{
		Backend:  strings.ToLower(strings.TrimSpace(os.Getenv(EnvTagCache))),
		RedisURL: strings.TrimSpace(os.Getenv(EnvRedisURL)),
		Dir:      strings.TrimSpace(os.Getenv(EnvCacheDir)),
	}
	if s.Backend == "" {
		s.Backend = TagCacheFile
		if s.RedisURL != "" {
			s.Backend = TagCacheRedis
		}
	}
	switch s.Backend {
	case TagCacheFile, TagCacheMemory:
	case TagCacheRedis:
		if s.RedisURL == "" {
			return CacheSettings{}, fmt.Errorf("%s=redis requires %s", EnvTagCache, EnvRedisURL)
		}
	default:
		return CacheSettings{}, fmt.Errorf("invalid %s %q: use file, redis or memory", EnvTagCache, s.Backend)
	}
	return s, nil
}

// DefaultEnvFile is the .env file loaded at startup when present.
func DefaultEnvFile() string {
	dir, err := userConfigDir()
	if err != nil || strings.TrimSpace(dir) == "" {
		return ""
	}
	return filepath.Join(dir, "inbox", ".env")
}
