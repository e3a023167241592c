package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// TagListResponse wraps the per-page tag catalogue.
type TagListResponse struct {
	Tags []Tag `json:"tags"`
}

// ListByPage retrieves the tag catalogue of one Facebook page.
func (s TagsService) ListByPage(ctx context.Context, pageID string) ([]Tag, error) {
	return listTagsByPage(ctx, s, pageID)
}

func listTagsByPage(ctx context.Context, r Requester, pageID string) ([]Tag, error) {
	if pageID == "" {
		return nil, fmt.Errorf("page ID is required")
	}
	q := url.Values{}
	q.Set("facebook_page_id", pageID)
	var result TagListResponse
	if err := r.do(ctx, http.MethodGet, r.apiPath("/tags")+"?"+q.Encode(), nil, &result); err != nil {
		return nil, err
	}
	if result.Tags == nil {
		return []Tag{}, nil
	}
	return result.Tags, nil
}

// Assign attaches a tag to a conversation.
func (s TagsService) Assign(ctx context.Context, conversationID string, tagID int) error {
	return assignTag(ctx, s, conversationID, tagID)
}

func assignTag(ctx context.Context, r Requester, conversationID string, tagID int) error {
	path := fmt.Sprintf("/conversations/%s/tags", url.PathEscape(conversationID))
	body := map[string]any{"tag_id": tagID}
	return r.do(ctx, http.MethodPost, r.apiPath(path), body, nil)
}

// Remove detaches a tag from a conversation.
func (s TagsService) Remove(ctx context.Context, conversationID string, tagID int) error {
	return removeTag(ctx, s, conversationID, tagID)
}

func removeTag(ctx context.Context, r Requester, conversationID string, tagID int) error {
	path := fmt.Sprintf("/conversations/%s/tags/%d", url.PathEscape(conversationID), tagID)
	return r.do(ctx, http.MethodDelete, r.apiPath(path), nil, nil)
}
