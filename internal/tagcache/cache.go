// Package tagcache keeps per-page tag catalogues on the workstation.
//
// Entries are JSON envelopes of {data, timestamp, generation} stored through a
// Backend. A read is a miss when there is no entry, when the entry is older
// than the TTL (5 minutes by default), when it was invalidated, or when it
// cannot be decoded. Every write bumps the page's generation so a fetch that
// started before an invalidation can be refused with PutIfGeneration.
//
// Disable with INBOX_NO_CACHE=1.
package tagcache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"time"

	"github.com/socialinbox/inbox-cli/internal/api"
	"github.com/socialinbox/inbox-cli/internal/debug"
)

const DefaultTTL = 5 * time.Minute

type envelope struct {
	Data       []api.Tag `json:"data"`
	Timestamp  int64     `json:"timestamp"`
	Generation uint64    `json:"generation"`
	Tombstone  bool      `json:"tombstone,omitempty"`
}

// Cache is safe for concurrent use when its Backend is.
type Cache struct {
	backend Backend
	ttl     time.Duration
	now     func() time.Time
	log     *slog.Logger
}

type Option func(*Cache)

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) { c.ttl = ttl }
}

// WithClock injects the time source used for stamping and expiry.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

func New(backend Backend, opts ...Option) *Cache {
	c := &Cache{
		backend: backend,
		ttl:     DefaultTTL,
		now:     time.Now,
		log:     debug.Component("tagcache"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Backend returns the underlying store.
func (c *Cache) Backend() Backend {
	return c.backend
}

// Get returns the cached catalogue for pageID. The second result is false
// on a miss. A stale entry is evicted by the read that finds it.
func (c *Cache) Get(ctx context.Context, pageID string) ([]api.Tag, bool) {
	if disabled() {
		return nil, false
	}
	env, ok := c.load(ctx, pageID)
	if !ok || env.Tombstone {
		return nil, false
	}
	if c.expired(env) {
		c.evict(ctx, pageID, env.Generation)
		return nil, false
	}
	if env.Data == nil {
		return []api.Tag{}, true
	}
	return env.Data, true
}

// Generation returns the current generation of pageID, zero when unknown.
func (c *Cache) Generation(ctx context.Context, pageID string) uint64 {
	if disabled() {
		return 0
	}
	env, ok := c.load(ctx, pageID)
	if !ok {
		return 0
	}
	return env.Generation
}

// Put overwrites the entry for pageID unconditionally.
func (c *Cache) Put(ctx context.Context, pageID string, tags []api.Tag) error {
	if disabled() {
		return nil
	}
	return c.backend.Update(ctx, pageID, func(cur []byte, found bool) ([]byte, error) {
		return c.encode(tags, c.currentGeneration(cur, found)+1, false)
	})
}

// PutIfGeneration writes tags only when the stored generation still equals
// gen. It reports whether the write happened.
func (c *Cache) PutIfGeneration(ctx context.Context, pageID string, tags []api.Tag, gen uint64) (bool, error) {
	if disabled() {
		return false, nil
	}
	wrote := false
	err := c.backend.Update(ctx, pageID, func(cur []byte, found bool) ([]byte, error) {
		current := c.currentGeneration(cur, found)
		if current != gen {
			return nil, nil
		}
		wrote = true
		return c.encode(tags, current+1, false)
	})
	if err != nil {
		return false, err
	}
	if !wrote {
		c.log.Debug("refused stale catalogue write", "page", pageID, "generation", gen)
	}
	return wrote, nil
}

// Invalidate tombstones pageID so the next Get misses and any fetch begun
// earlier cannot write its result back.
func (c *Cache) Invalidate(ctx context.Context, pageID string) error {
	if disabled() {
		return nil
	}
	return c.backend.Update(ctx, pageID, func(cur []byte, found bool) ([]byte, error) {
		return c.encode(nil, c.currentGeneration(cur, found)+1, true)
	})
}

// ClearAll drops every cached catalogue.
func (c *Cache) ClearAll(ctx context.Context) error {
	return c.backend.Clear(ctx)
}

// Close releases backend resources when the backend holds any.
func (c *Cache) Close() error {
	if closer, ok := c.backend.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}

func (c *Cache) load(ctx context.Context, pageID string) (envelope, bool) {
	data, err := c.backend.Load(ctx, pageID)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			c.log.Debug("cache read failed", "page", pageID, "error", err)
		}
		return envelope{}, false
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.log.Debug("discarding corrupt cache entry", "page", pageID, "error", err)
		_ = c.backend.Delete(ctx, pageID)
		return envelope{}, false
	}
	return env, true
}

func (c *Cache) expired(env envelope) bool {
	age := c.now().Sub(time.UnixMilli(env.Timestamp))
	return age >= c.ttl
}

// evict replaces a stale entry with a tombstone at the same generation, so
// generations stay monotonic across evictions.
func (c *Cache) evict(ctx context.Context, pageID string, gen uint64) {
	err := c.backend.Update(ctx, pageID, func(cur []byte, found bool) ([]byte, error) {
		if c.currentGeneration(cur, found) != gen {
			return nil, nil
		}
		return c.encode(nil, gen, true)
	})
	if err != nil {
		c.log.Debug("evicting stale entry failed", "page", pageID, "error", err)
	}
}

func (c *Cache) currentGeneration(cur []byte, found bool) uint64 {
	if !found {
		return 0
	}
	var env envelope
	if err := json.Unmarshal(cur, &env); err != nil {
		return 0
	}
	return env.Generation
}

func (c *Cache) encode(tags []api.Tag, gen uint64, tombstone bool) ([]byte, error) {
	return json.Marshal(envelope{
		Data:       tags,
		Timestamp:  c.now().UnixMilli(),
		Generation: gen,
		Tombstone:  tombstone,
	})
}

func disabled() bool {
	return os.Getenv("INBOX_NO_CACHE") != ""
}
