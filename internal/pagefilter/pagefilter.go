// Package pagefilter narrows the page list to the pages a user merged into
// their unified inbox.
package pagefilter

import (
	"context"
	"fmt"
	"strings"

	"github.com/socialinbox/inbox-cli/internal/api"
	"github.com/socialinbox/inbox-cli/internal/validation"
)

// Saver stores the complete filter in one request.
type Saver interface {
	UpdateMergedPagesFilter(ctx context.Context, pageIDs []string) (*api.User, error)
}

// Loader reads the signed-in user.
type Loader interface {
	Me(ctx context.Context) (*api.User, error)
}

// Effective returns the pages to show. An empty filter shows every page
// unchanged; otherwise the pages whose id is in filter are returned in
// allPages order.
func Effective(allPages []api.Page, filter []string) []api.Page {
	if len(filter) == 0 {
		return allPages
	}
	want := make(map[string]struct{}, len(filter))
	for _, id := range filter {
		want[id] = struct{}{}
	}
	out := make([]api.Page, 0, len(filter))
	for _, p := range allPages {
		if _, ok := want[string(p.ID)]; ok {
			out = append(out, p)
		}
	}
	return out
}

// IDs returns the ids of pages, in order.
func IDs(pages []api.Page) []string {
	out := make([]string, len(pages))
	for i, p := range pages {
		out[i] = string(p.ID)
	}
	return out
}

// Normalize trims and de-duplicates ids, keeping first occurrences.
func Normalize(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// Save replaces the stored filter with ids. The full set is always sent;
// an empty set clears the filter.
func Save(ctx context.Context, s Saver, ids []string) ([]string, error) {
	ids = Normalize(ids)
	if err := validation.ValidatePageIDs(ids); err != nil {
		return nil, err
	}
	user, err := s.UpdateMergedPagesFilter(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("save page filter: %w", err)
	}
	if user == nil || user.MergedPagesFilter == nil {
		return ids, nil
	}
	return user.MergedPagesFilter, nil
}

// Load returns the signed-in user's filter.
func Load(ctx context.Context, l Loader) ([]string, error) {
	user, err := l.Me(ctx)
	if err != nil {
		return nil, fmt.Errorf("load page filter: %w", err)
	}
	return Normalize(user.MergedPagesFilter), nil
}
