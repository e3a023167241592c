package api

import (
	"context"
	"net/http"
)

// Me retrieves the signed-in user.
func (s UsersService) Me(ctx context.Context) (*User, error) {
	var result User
	if err := s.do(ctx, http.MethodGet, s.apiPath("/users/me"), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// UpdateMergedPagesFilter replaces the stored merged-pages filter. An empty
// slice clears it.
func (s UsersService) UpdateMergedPagesFilter(ctx context.Context, pageIDs []string) (*User, error) {
	if pageIDs == nil {
		pageIDs = []string{}
	}
	body := map[string]any{"merged_pages_filter": pageIDs}
	var result User
	if err := s.do(ctx, http.MethodPut, s.apiPath("/users/me/merged-pages-filter"), body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
