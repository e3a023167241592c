package tagcache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Backend kinds accepted by Open.
const (
	KindFile   = "file"
	KindRedis  = "redis"
	KindMemory = "memory"
)

// OpenOptions selects and scopes a backend.
type OpenOptions struct {
	Kind      string
	Dir       string
	RedisURL  string
	BaseURL   string
	CompanyID string
}

// Open builds the configured backend. An empty Kind means KindFile.
func Open(ctx context.Context, opts OpenOptions) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Kind)) {
	case "", KindFile:
		dir := opts.Dir
		if dir == "" {
			var err error
			if dir, err = DefaultDir(); err != nil {
				return nil, fmt.Errorf("resolving cache dir: %w", err)
			}
		}
		return NewFileBackend(dir, opts.BaseURL, opts.CompanyID), nil
	case KindMemory:
		return NewMemoryBackend(), nil
	case KindRedis:
		if opts.RedisURL == "" {
			return nil, fmt.Errorf("redis tag cache requires INBOX_REDIS_URL")
		}
		redisOpts, err := redis.ParseURL(opts.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis URL: %w", err)
		}
		client := redis.NewClient(redisOpts)
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("connecting to redis: %w", err)
		}
		return NewRedisBackend(client, opts.BaseURL, opts.CompanyID), nil
	default:
		return nil, fmt.Errorf("unknown tag cache backend %q (want file, redis or memory)", opts.Kind)
	}
}
