package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// Status reports whether the company has a live Facebook link.
func (s FacebookService) Status(ctx context.Context) (*FacebookStatus, error) {
	var result FacebookStatus
	if err := s.do(ctx, http.MethodGet, s.apiPath("/facebook/status"), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// OAuthURL asks the server for a provider authorization URL bound to redirectURI.
func (s FacebookService) OAuthURL(ctx context.Context, redirectURI string) (*OAuthStart, error) {
	if redirectURI == "" {
		return nil, fmt.Errorf("redirect URI is required")
	}
	q := url.Values{}
	q.Set("redirect_uri", redirectURI)
	var result OAuthStart
	if err := s.do(ctx, http.MethodGet, s.apiPath("/facebook/oauth-url")+"?"+q.Encode(), nil, &result); err != nil {
		return nil, err
	}
	if result.URL == "" {
		return nil, fmt.Errorf("server returned an empty authorization URL")
	}
	return &result, nil
}

// CallbackRequest is the code exchange payload forwarded to the server.
type CallbackRequest struct {
	Code        string `json:"code"`
	State       string `json:"state"`
	RedirectURI string `json:"redirect_uri"`
}

// Callback completes the OAuth exchange server-side.
func (s FacebookService) Callback(ctx context.Context, req CallbackRequest) (*FacebookStatus, error) {
	var result FacebookStatus
	if err := s.do(ctx, http.MethodPost, s.apiPath("/facebook/callback"), req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Disconnect removes the Facebook link.
func (s FacebookService) Disconnect(ctx context.Context) error {
	return s.do(ctx, http.MethodDelete, s.apiPath("/facebook/connection"), nil, nil)
}
