package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// ListConversationsParams filters a conversation listing.
type ListConversationsParams struct {
	PageID string
	Status string
}

// ConversationListResponse wraps the conversation list response
type ConversationListResponse struct {
	Conversations []Conversation `json:"conversations"`
}

// Get retrieves one conversation including its transcript.
func (s ConversationsService) Get(ctx context.Context, id string) (*Conversation, error) {
	return getConversation(ctx, s, id)
}

func getConversation(ctx context.Context, r Requester, id string) (*Conversation, error) {
	if id == "" {
		return nil, fmt.Errorf("conversation ID is required")
	}
	var result Conversation
	if err := r.do(ctx, http.MethodGet, r.apiPath("/conversations/"+url.PathEscape(id)), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// List retrieves conversation summaries.
func (s ConversationsService) List(ctx context.Context, params ListConversationsParams) ([]Conversation, error) {
	return listConversations(ctx, s, params)
}

func listConversations(ctx context.Context, r Requester, params ListConversationsParams) ([]Conversation, error) {
	q := url.Values{}
	if params.PageID != "" {
		q.Set("facebook_page_id", params.PageID)
	}
	if params.Status != "" {
		q.Set("status", params.Status)
	}
	path := r.apiPath("/conversations")
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var result ConversationListResponse
	if err := r.do(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return result.Conversations, nil
}
