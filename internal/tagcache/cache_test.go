package tagcache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/socialinbox/inbox-cli/internal/api"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func sampleTags() []api.Tag {
	return []api.Tag{
		{ID: 1, Name: "VIP", Color: "#FFD700", PageID: "p1"},
		{ID: 2, Name: "Refund", PageID: "p1"},
	}
}

func TestCache_PutAndGet(t *testing.T) {
	ctx := context.Background()
	c := New(NewMemoryBackend())

	_, ok := c.Get(ctx, "p1")
	assert.False(t, ok, "empty cache should miss")

	require.NoError(t, c.Put(ctx, "p1", sampleTags()))
	got, ok := c.Get(ctx, "p1")
	require.True(t, ok)
	assert.Equal(t, sampleTags(), got)

	_, ok = c.Get(ctx, "p2")
	assert.False(t, ok, "pages are independent")
}

func TestCache_EmptyCatalogueIsAHit(t *testing.T) {
	ctx := context.Background()
	c := New(NewMemoryBackend())

	require.NoError(t, c.Put(ctx, "p1", nil))
	got, ok := c.Get(ctx, "p1")
	require.True(t, ok)
	assert.Empty(t, got)
	assert.NotNil(t, got)
}

func TestCache_TTLBoundary(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	backend := NewMemoryBackend()
	c := New(backend, WithClock(clock.Now))

	require.NoError(t, c.Put(ctx, "p1", sampleTags()))

	clock.Advance(DefaultTTL - time.Millisecond)
	_, ok := c.Get(ctx, "p1")
	assert.True(t, ok, "just under TTL is a hit")

	clock.Advance(time.Millisecond)
	_, ok = c.Get(ctx, "p1")
	assert.False(t, ok, "age equal to TTL is a miss")

	// Eviction keeps the generation so later compare-and-set stays monotonic.
	assert.Equal(t, uint64(1), c.Generation(ctx, "p1"))
	_, ok = c.Get(ctx, "p1")
	assert.False(t, ok, "evicted entry stays a miss")
}

func TestCache_PutOverwrites(t *testing.T) {
	ctx := context.Background()
	c := New(NewMemoryBackend())

	require.NoError(t, c.Put(ctx, "p1", sampleTags()))
	replacement := []api.Tag{{ID: 9, Name: "Spam", PageID: "p1"}}
	require.NoError(t, c.Put(ctx, "p1", replacement))

	got, ok := c.Get(ctx, "p1")
	require.True(t, ok)
	assert.Equal(t, replacement, got, "put replaces rather than merges")
	assert.Equal(t, uint64(2), c.Generation(ctx, "p1"))
}

func TestCache_CorruptEntryIsMiss(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	c := New(backend)

	require.NoError(t, backend.Store(ctx, "p1", []byte("{not json")))
	_, ok := c.Get(ctx, "p1")
	assert.False(t, ok)

	_, err := backend.Load(ctx, "p1")
	assert.ErrorIs(t, err, ErrNotFound, "corrupt entry should be dropped")
}

func TestCache_InvalidateBlocksStaleWrite(t *testing.T) {
	ctx := context.Background()
	c := New(NewMemoryBackend())

	require.NoError(t, c.Put(ctx, "p1", sampleTags()))
	gen := c.Generation(ctx, "p1")

	// A fetch starts, then the catalogue changes underneath it.
	require.NoError(t, c.Invalidate(ctx, "p1"))
	_, ok := c.Get(ctx, "p1")
	assert.False(t, ok, "invalidated page misses")

	wrote, err := c.PutIfGeneration(ctx, "p1", []api.Tag{{ID: 1, Name: "old"}}, gen)
	require.NoError(t, err)
	assert.False(t, wrote, "write from before the invalidation must be refused")

	wrote, err = c.PutIfGeneration(ctx, "p1", sampleTags(), c.Generation(ctx, "p1"))
	require.NoError(t, err)
	assert.True(t, wrote)
	_, ok = c.Get(ctx, "p1")
	assert.True(t, ok)
}

func TestCache_PutIfGenerationOnEmpty(t *testing.T) {
	ctx := context.Background()
	c := New(NewMemoryBackend())

	wrote, err := c.PutIfGeneration(ctx, "p1", sampleTags(), 0)
	require.NoError(t, err)
	assert.True(t, wrote)

	wrote, err = c.PutIfGeneration(ctx, "p1", sampleTags(), 0)
	require.NoError(t, err)
	assert.False(t, wrote, "second writer with the same base generation loses")
}

func TestCache_Disabled(t *testing.T) {
	t.Setenv("INBOX_NO_CACHE", "1")
	ctx := context.Background()
	backend := NewMemoryBackend()
	c := New(backend)

	require.NoError(t, c.Put(ctx, "p1", sampleTags()))
	_, err := backend.Load(ctx, "p1")
	assert.ErrorIs(t, err, ErrNotFound, "disabled cache must not write")

	_, ok := c.Get(ctx, "p1")
	assert.False(t, ok)
}

func TestCache_ClearAll(t *testing.T) {
	ctx := context.Background()
	c := New(NewMemoryBackend())

	require.NoError(t, c.Put(ctx, "p1", sampleTags()))
	require.NoError(t, c.Put(ctx, "p2", sampleTags()))
	require.NoError(t, c.ClearAll(ctx))

	for _, p := range []string{"p1", "p2"} {
		_, ok := c.Get(ctx, p)
		assert.False(t, ok, p)
	}
	assert.NoError(t, c.Close())
}

func TestCache_ConcurrentPutIfGeneration(t *testing.T) {
	ctx := context.Background()
	c := New(NewMemoryBackend())

	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			wrote, err := c.PutIfGeneration(ctx, "p1", sampleTags(), 0)
			assert.NoError(t, err)
			if wrote {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, winners)
}
