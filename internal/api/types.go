package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// FlexInt handles JSON numbers that may come as strings or integers
type FlexInt int

func (fi *FlexInt) UnmarshalJSON(data []byte) error {
	var i int
	if err := json.Unmarshal(data, &i); err == nil {
		*fi = FlexInt(i)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s == "" {
			*fi = 0
			return nil
		}
		i, err := strconv.Atoi(s)
		if err != nil {
			return err
		}
		*fi = FlexInt(i)
		return nil
	}
	return fmt.Errorf("cannot unmarshal %s into FlexInt", data)
}

// Int returns the value as a plain int.
func (fi FlexInt) Int() int { return int(fi) }

// TagIDs decodes a tag list sent as ids, numeric strings or tag objects
// ({"tag_id": n} or {"id": n}). It encodes as a plain array of ints.
type TagIDs []int

func (t *TagIDs) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("tags: %w", err)
	}
	out := make(TagIDs, 0, len(raw))
	for _, item := range raw {
		item = bytes.TrimSpace(item)
		if len(item) > 0 && item[0] == '{' {
			var obj struct {
				TagID FlexInt `json:"tag_id"`
				ID    FlexInt `json:"id"`
			}
			if err := json.Unmarshal(item, &obj); err != nil {
				return fmt.Errorf("tags: %w", err)
			}
			if obj.TagID != 0 {
				out = append(out, obj.TagID.Int())
			} else if obj.ID != 0 {
				out = append(out, obj.ID.Int())
			}
			continue
		}
		var n FlexInt
		if err := n.UnmarshalJSON(item); err != nil {
			return fmt.Errorf("tags: %w", err)
		}
		out = append(out, n.Int())
	}
	*t = out
	return nil
}

// FlexString handles identifiers that arrive either as JSON strings or as
// numbers. Facebook page ids are numeric strings and some endpoints emit them
// unquoted.
type FlexString string

func (fs *FlexString) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*fs = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*fs = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		*fs = FlexString(n.String())
		return nil
	}
	return fmt.Errorf("cannot unmarshal %s into FlexString", data)
}

// Tag is a company-defined label attached to conversations of one page.
type Tag struct {
	ID     FlexInt    `json:"tag_id"`
	Name   string     `json:"tag_name"`
	Color  string     `json:"tag_color,omitempty"`
	PageID FlexString `json:"facebook_page_id"`
}

// Customer is the end user on the other side of a conversation.
type Customer struct {
	ID        FlexString `json:"id"`
	Name      string     `json:"name"`
	AvatarURL string     `json:"avatar_url,omitempty"`
}

// Message is one transcript entry.
type Message struct {
	ID             FlexString `json:"id"`
	ConversationID FlexString `json:"conversation_id"`
	Content        string     `json:"content"`
	FromCustomer   bool       `json:"from_customer"`
	FromBot        bool       `json:"from_bot,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// Conversation is the client's working copy of a conversation. The server is
// authoritative.
type Conversation struct {
	ID          FlexString `json:"id"`
	PageID      FlexString `json:"facebook_page_id"`
	Status      string     `json:"status,omitempty"`
	Tags        TagIDs     `json:"tags"`
	Unread      int        `json:"unread_count"`
	Read        bool       `json:"read"`
	BotEnabled  bool       `json:"bot_enabled"`
	Escalated   bool       `json:"escalated"`
	AssigneeID  FlexString `json:"assignee_id,omitempty"`
	Customer    Customer   `json:"customer"`
	LastMessage string     `json:"last_message,omitempty"`
	Messages    []Message  `json:"messages,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Page is a Facebook page linked to the company.
type Page struct {
	ID       FlexString `json:"facebook_page_id"`
	Name     string     `json:"page_name"`
	Username string     `json:"page_username,omitempty"`
	IsSync   bool       `json:"is_sync"`
	SyncedAt *time.Time `json:"synced_at,omitempty"`
}

// Sync status values carried by PageSyncResult.
const (
	SyncSuccess = "success"
	SyncPartial = "partial"
	SyncError   = "error"
)

// PageSyncResult is the outcome of one page synchronization run.
type PageSyncResult struct {
	PagesSynced  int      `json:"pages_synced"`
	PagesTotal   int      `json:"pages_total"`
	SyncStatus   string   `json:"sync_status"`
	ErrorMessage string   `json:"error_message,omitempty"`
	FailedPages  []string `json:"failed_pages,omitempty"`
}

// FacebookStatus is the server-side view of the Facebook link.
type FacebookStatus struct {
	Connected   bool       `json:"connected"`
	AccountName string     `json:"account_name,omitempty"`
	ConnectedAt *time.Time `json:"connected_at,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	PageCount   int        `json:"page_count"`
}

// OAuthStart is what the server hands back to begin a Facebook OAuth flow.
type OAuthStart struct {
	URL   string `json:"url"`
	State string `json:"state"`
}

// User is the signed-in staff member.
type User struct {
	ID                FlexString `json:"id"`
	Email             string     `json:"email"`
	Name              string     `json:"name"`
	CompanyID         FlexString `json:"company_id"`
	Role              string     `json:"role,omitempty"`
	MergedPagesFilter []string   `json:"merged_pages_filter"`
}
