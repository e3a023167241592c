package api

import (
	"context"
	"net/http"
)

// PageListResponse wraps the pages list response
type PageListResponse struct {
	Pages []Page `json:"pages"`
}

// List retrieves the Facebook pages linked to the company.
func (s PagesService) List(ctx context.Context) ([]Page, error) {
	var result PageListResponse
	if err := s.do(ctx, http.MethodGet, s.apiPath("/facebook/pages"), nil, &result); err != nil {
		return nil, err
	}
	return result.Pages, nil
}

// Sync asks the server to re-import pages from Facebook.
func (s PagesService) Sync(ctx context.Context) (*PageSyncResult, error) {
	var result PageSyncResult
	if err := s.do(ctx, http.MethodPost, s.apiPath("/facebook/pages/sync"), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
