// Package urlparse extracts resource IDs from inbox dashboard links, so a
// URL copied from the browser can stand in for a conversation or page ID.
package urlparse

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Resource kinds a dashboard link can point at.
const (
	Conversation = "conversation"
	Page         = "page"
)

// ParsedURL is a dashboard link split into its parts.
type ParsedURL struct {
	BaseURL  string
	Resource string
	ID       string
}

var resourceTypes = map[string]string{
	"conversations": Conversation,
	"pages":         Page,
}

// pathPattern matches /[app/]{resource}/{id}[/...].
var pathPattern = regexp.MustCompile(`^(?:/app)?/([a-z]+)/([A-Za-z0-9_-]+)(?:/.*)?$`)

// IsURL reports whether s looks like an http(s) link rather than a bare ID.
func IsURL(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// Parse extracts the resource from a dashboard link such as
// https://inbox.example.com/conversations/42. A "conversation" query
// parameter on any path is accepted as well.
func Parse(rawURL string) (*ParsedURL, error) {
	if strings.TrimSpace(rawURL) == "" {
		return nil, fmt.Errorf("URL cannot be empty")
	}
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("invalid URL scheme %q: expected http or https", parsed.Scheme)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("invalid URL: missing host")
	}
	base := parsed.Scheme + "://" + parsed.Host

	if id := parsed.Query().Get("conversation"); id != "" {
		return &ParsedURL{BaseURL: base, Resource: Conversation, ID: id}, nil
	}

	m := pathPattern.FindStringSubmatch(strings.TrimSuffix(parsed.Path, "/"))
	if m == nil {
		return nil, fmt.Errorf("unrecognized dashboard link %q: expected /conversations/{id} or /pages/{id}", parsed.Path)
	}
	kind, ok := resourceTypes[m[1]]
	if !ok {
		return nil, fmt.Errorf("unsupported resource %q: expected conversations or pages", m[1])
	}
	return &ParsedURL{BaseURL: base, Resource: kind, ID: m[2]}, nil
}

// ID returns arg unchanged unless it is a dashboard link, in which case
// the link must point at the wanted resource kind.
func ID(arg, want string) (string, error) {
	arg = strings.TrimSpace(arg)
	if !IsURL(arg) {
		return arg, nil
	}
	p, err := Parse(arg)
	if err != nil {
		return "", err
	}
	if p.Resource != want {
		return "", fmt.Errorf("link points at a %s, expected a %s", p.Resource, want)
	}
	return p.ID, nil
}
