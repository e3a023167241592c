// Package tags keeps conversation tag membership in step with the server.
//
// Catalogues (the tags a page offers) come from the tag cache with the REST
// API as fallback. Membership (the tags a conversation carries) lives in
// memory; toggles apply locally first and are sent to the server in the
// background. A realtime update carrying a tag list replaces local
// membership, which is how optimistic drift converges.
package tags

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/socialinbox/inbox-cli/internal/api"
	"github.com/socialinbox/inbox-cli/internal/debug"
	"github.com/socialinbox/inbox-cli/internal/resolve"
	"github.com/socialinbox/inbox-cli/internal/tagcache"
)

// DefaultPrefetchConcurrency bounds parallel catalogue fetches in Prefetch.
const DefaultPrefetchConcurrency = 4

// writeTimeout bounds a background assign/remove call.
const writeTimeout = 30 * time.Second

// TagAPI is the slice of the REST client the synchronizer needs.
type TagAPI interface {
	ListByPage(ctx context.Context, pageID string) ([]api.Tag, error)
	Assign(ctx context.Context, conversationID string, tagID int) error
	Remove(ctx context.Context, conversationID string, tagID int) error
}

// TagView is one catalogue entry annotated with membership.
type TagView struct {
	api.Tag
	Active bool `json:"active"`
}

// WriteError describes a background tag write the server rejected. The
// local state is left as the user set it.
type WriteError struct {
	ConversationID string
	TagID          int
	Assign         bool
	Err            error
}

func (e *WriteError) Error() string {
	op := "remove"
	if e.Assign {
		op = "assign"
	}
	return fmt.Sprintf("%s tag %d on conversation %s: %v", op, e.TagID, e.ConversationID, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// Synchronizer is safe for concurrent use.
type Synchronizer struct {
	api   TagAPI
	cache *tagcache.Cache
	log   *slog.Logger

	// OnError, when set, receives every failed background write.
	OnError func(*WriteError)
	// Concurrency bounds Prefetch; zero means DefaultPrefetchConcurrency.
	Concurrency int

	mu         sync.Mutex
	membership map[string][]int
	inflight   sync.WaitGroup
}

func New(client TagAPI, cache *tagcache.Cache) *Synchronizer {
	return &Synchronizer{
		api:        client,
		cache:      cache,
		log:        debug.Component("tags"),
		membership: make(map[string][]int),
	}
}

// LoadTagsForPage returns the catalogue for pageID, cache first. A fetched
// catalogue is written back unless the page was invalidated while the fetch
// was in flight.
func (s *Synchronizer) LoadTagsForPage(ctx context.Context, pageID string) ([]api.Tag, error) {
	if tags, ok := s.cache.Get(ctx, pageID); ok {
		s.log.Debug("catalogue cache hit", "page", pageID, "count", len(tags))
		return tags, nil
	}

	gen := s.cache.Generation(ctx, pageID)
	tags, err := s.api.ListByPage(ctx, pageID)
	if err != nil {
		return nil, fmt.Errorf("loading tags for page %s: %w", pageID, err)
	}
	if _, err := s.cache.PutIfGeneration(ctx, pageID, tags, gen); err != nil {
		s.log.Warn("caching tag catalogue failed", "page", pageID, "error", err)
	}
	return tags, nil
}

// Prefetch warms the cache for several pages concurrently. It returns the
// first error; pages fetched before it stay cached.
func (s *Synchronizer) Prefetch(ctx context.Context, pageIDs []string) (map[string][]api.Tag, error) {
	limit := s.Concurrency
	if limit <= 0 {
		limit = DefaultPrefetchConcurrency
	}

	var mu sync.Mutex
	out := make(map[string][]api.Tag, len(pageIDs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, pageID := range pageIDs {
		g.Go(func() error {
			tags, err := s.LoadTagsForPage(gctx, pageID)
			if err != nil {
				return err
			}
			mu.Lock()
			out[pageID] = tags
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return out, err
	}
	return out, nil
}

// InvalidatePage drops the cached catalogue so the next load refetches.
func (s *Synchronizer) InvalidatePage(ctx context.Context, pageID string) error {
	return s.cache.Invalidate(ctx, pageID)
}

// Tags returns the tag ids currently held for a conversation.
func (s *Synchronizer) Tags(conversationID string) []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.membership[conversationID])
}

// ReplaceTags installs an authoritative membership list, discarding any
// local state for the conversation.
func (s *Synchronizer) ReplaceTags(conversationID string, tagIDs []int) {
	next := make([]int, 0, len(tagIDs))
	for _, id := range tagIDs {
		if !slices.Contains(next, id) {
			next = append(next, id)
		}
	}
	s.mu.Lock()
	s.membership[conversationID] = next
	s.mu.Unlock()
}

// Forget drops local membership for a conversation.
func (s *Synchronizer) Forget(conversationID string) {
	s.mu.Lock()
	delete(s.membership, conversationID)
	s.mu.Unlock()
}

// ToggleTag flips membership of tagID locally and sends the matching assign
// or remove in the background. It returns whether the tag is now active.
// A failed write is logged and passed to OnError; it is not rolled back.
func (s *Synchronizer) ToggleTag(ctx context.Context, conversationID string, tagID int) bool {
	s.mu.Lock()
	current := s.membership[conversationID]
	active := !slices.Contains(current, tagID)
	if active {
		s.membership[conversationID] = append(slices.Clone(current), tagID)
	} else {
		s.membership[conversationID] = slices.DeleteFunc(slices.Clone(current), func(id int) bool { return id == tagID })
	}
	s.mu.Unlock()

	s.log.Debug("tag toggled", "conversation", conversationID, "tag", tagID, "active", active)

	// The write outlives the caller's context; only its values carry over.
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		defer cancel()
		var err error
		if active {
			err = s.api.Assign(writeCtx, conversationID, tagID)
		} else {
			err = s.api.Remove(writeCtx, conversationID, tagID)
		}
		if err != nil {
			s.reportWriteError(&WriteError{ConversationID: conversationID, TagID: tagID, Assign: active, Err: err})
		}
	}()
	return active
}

func (s *Synchronizer) reportWriteError(werr *WriteError) {
	s.log.Warn("tag write failed; local state kept", "conversation", werr.ConversationID, "tag", werr.TagID, "assign", werr.Assign, "error", werr.Err)
	if s.OnError == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("tag error hook panicked", "panic", r)
		}
	}()
	s.OnError(werr)
}

// Wait blocks until every background write has finished.
func (s *Synchronizer) Wait() {
	s.inflight.Wait()
}

// View joins a catalogue with a conversation's membership. It is computed on
// every call; catalogue order is preserved.
func (s *Synchronizer) View(conversationID string, catalogue []api.Tag) []TagView {
	active := s.Tags(conversationID)
	views := make([]TagView, len(catalogue))
	for i, t := range catalogue {
		views[i] = TagView{Tag: t, Active: slices.Contains(active, int(t.ID))}
	}
	return views
}

// ResolveTag finds a tag in a catalogue by id or approximate name.
func ResolveTag(catalogue []api.Tag, query string) (api.Tag, error) {
	return resolve.Tag(query, catalogue)
}
