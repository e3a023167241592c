package tagcache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix = "inbox:tags:"
	// Keys outlive the cache TTL so generations survive between reads.
	redisKeyExpiry = 24 * time.Hour
	maxTxRetries   = 8
)

// RedisBackend shares catalogues between every console of the same user.
// Update uses WATCH/MULTI so compare-and-set holds across processes.
type RedisBackend struct {
	client *redis.Client
	scope  string
}

// NewRedisBackend scopes keys to one server and company.
func NewRedisBackend(client *redis.Client, baseURL, companyID string) *RedisBackend {
	return &RedisBackend{client: client, scope: scopeHash(baseURL, companyID)}
}

func (b *RedisBackend) key(page string) string {
	return redisKeyPrefix + b.scope + ":" + page
}

func (b *RedisBackend) Load(ctx context.Context, key string) ([]byte, error) {
	data, err := b.client.Get(ctx, b.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	return data, err
}

func (b *RedisBackend) Store(ctx context.Context, key string, data []byte) error {
	return b.client.Set(ctx, b.key(key), data, redisKeyExpiry).Err()
}

func (b *RedisBackend) Delete(ctx context.Context, key string) error {
	return b.client.Del(ctx, b.key(key)).Err()
}

func (b *RedisBackend) Update(ctx context.Context, key string, fn UpdateFunc) error {
	k := b.key(key)
	txf := func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, k).Bytes()
		found := true
		if errors.Is(err, redis.Nil) {
			cur, found = nil, false
		} else if err != nil {
			return err
		}
		next, err := fn(cur, found)
		if err != nil || next == nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, k, next, redisKeyExpiry)
			return nil
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := b.client.Watch(ctx, txf, k)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return ErrConflict
}

// Clear deletes every tag cache key on the server, across scopes.
func (b *RedisBackend) Clear(ctx context.Context) error {
	iter := b.client.Scan(ctx, 0, redisKeyPrefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scanning cache keys: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	return b.client.Del(ctx, keys...).Err()
}

func (b *RedisBackend) Close() error {
	return b.client.Close()
}
