package tagcache

import (
	"context"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryBackend keeps entries for the life of the process. Entries older
// than an hour are purged in the background; the Cache TTL is far shorter.
type MemoryBackend struct {
	items *gocache.Cache
	mu    sync.Mutex
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{items: gocache.New(time.Hour, 10*time.Minute)}
}

func (b *MemoryBackend) Load(_ context.Context, key string) ([]byte, error) {
	v, found := b.items.Get(key)
	if !found {
		return nil, ErrNotFound
	}
	return clone(v.([]byte)), nil
}

func (b *MemoryBackend) Store(_ context.Context, key string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items.Set(key, clone(data), gocache.DefaultExpiration)
	return nil
}

func (b *MemoryBackend) Delete(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items.Delete(key)
	return nil
}

func (b *MemoryBackend) Update(_ context.Context, key string, fn UpdateFunc) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var cur []byte
	v, found := b.items.Get(key)
	if found {
		cur = clone(v.([]byte))
	}
	next, err := fn(cur, found)
	if err != nil || next == nil {
		return err
	}
	b.items.Set(key, clone(next), gocache.DefaultExpiration)
	return nil
}

func (b *MemoryBackend) Clear(_ context.Context) error {
	b.items.Flush()
	return nil
}

func clone(b []byte) []byte {
	return append([]byte(nil), b...)
}
