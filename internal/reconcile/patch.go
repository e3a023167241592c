package reconcile

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/socialinbox/inbox-cli/internal/api"
)

// Patch is a partial conversation update. A nil field was absent from the
// payload and leaves the local value untouched; JSON null counts as absent.
type Patch struct {
	ID             api.FlexString  `json:"id"`
	ConversationID api.FlexString  `json:"conversation_id"`
	PageID         *api.FlexString `json:"facebook_page_id"`
	Status         *string         `json:"status"`
	Tags           *api.TagIDs     `json:"tags"`
	Unread         *int            `json:"unread_count"`
	Read           *bool           `json:"read"`
	BotEnabled     *bool           `json:"bot_enabled"`
	Escalated      *bool           `json:"escalated"`
	AssigneeID     *api.FlexString `json:"assignee_id"`
	LastMessage    *string         `json:"last_message"`
	Customer       *CustomerPatch  `json:"customer"`
	UpdatedAt      *time.Time      `json:"updated_at"`
}

// CustomerPatch is a partial customer update.
type CustomerPatch struct {
	ID             api.FlexString `json:"id"`
	ConversationID api.FlexString `json:"conversation_id"`
	Name           *string        `json:"name"`
	AvatarURL      *string        `json:"avatar_url"`
}

// DecodePatch parses a conversation_updated payload. Payloads wrapped as
// {"conversation": {...}} are unwrapped.
func DecodePatch(data json.RawMessage) (Patch, error) {
	var wrapped struct {
		Conversation json.RawMessage `json:"conversation"`
	}
	if err := json.Unmarshal(data, &wrapped); err == nil && len(wrapped.Conversation) > 0 && wrapped.Conversation[0] == '{' {
		data = wrapped.Conversation
	}
	var p Patch
	if err := json.Unmarshal(data, &p); err != nil {
		return Patch{}, err
	}
	return p, nil
}

// Target is the conversation the patch applies to.
func (p Patch) Target() string {
	if id := strings.TrimSpace(string(p.ConversationID)); id != "" {
		return id
	}
	return strings.TrimSpace(string(p.ID))
}

// Apply copies every present field onto c and reports whether c changed.
// Tags are not applied here; membership lives in the tag synchronizer.
func (p Patch) Apply(c *api.Conversation) bool {
	changed := false
	set := func(dst *string, src *string) {
		if src != nil && *dst != *src {
			*dst = *src
			changed = true
		}
	}
	setBool := func(dst *bool, src *bool) {
		if src != nil && *dst != *src {
			*dst = *src
			changed = true
		}
	}

	if p.PageID != nil && c.PageID != *p.PageID {
		c.PageID = *p.PageID
		changed = true
	}
	set(&c.Status, p.Status)
	if p.Unread != nil && c.Unread != *p.Unread {
		c.Unread = *p.Unread
		changed = true
	}
	setBool(&c.Read, p.Read)
	setBool(&c.BotEnabled, p.BotEnabled)
	setBool(&c.Escalated, p.Escalated)
	if p.AssigneeID != nil && c.AssigneeID != *p.AssigneeID {
		c.AssigneeID = *p.AssigneeID
		changed = true
	}
	set(&c.LastMessage, p.LastMessage)
	if p.Customer != nil && p.Customer.applyTo(&c.Customer) {
		changed = true
	}
	if p.UpdatedAt != nil && !c.UpdatedAt.Equal(*p.UpdatedAt) {
		c.UpdatedAt = *p.UpdatedAt
		changed = true
	}
	return changed
}

func (cp CustomerPatch) applyTo(c *api.Customer) bool {
	changed := false
	if cp.ID != "" && c.ID != cp.ID {
		c.ID = cp.ID
		changed = true
	}
	if cp.Name != nil && c.Name != *cp.Name {
		c.Name = *cp.Name
		changed = true
	}
	if cp.AvatarURL != nil && c.AvatarURL != *cp.AvatarURL {
		c.AvatarURL = *cp.AvatarURL
		changed = true
	}
	return changed
}

// conversationRef is the common {"conversation_id": ...} envelope.
type conversationRef struct {
	ConversationID api.FlexString `json:"conversation_id"`
	ID             api.FlexString `json:"id"`
	Conversation   *struct {
		ID api.FlexString `json:"id"`
	} `json:"conversation"`
}

func (r conversationRef) target() string {
	switch {
	case r.ConversationID != "":
		return string(r.ConversationID)
	case r.Conversation != nil && r.Conversation.ID != "":
		return string(r.Conversation.ID)
	default:
		return string(r.ID)
	}
}

type newMessagePayload struct {
	ConversationID api.FlexString `json:"conversation_id"`
	PageID         api.FlexString `json:"facebook_page_id"`
	Message        *api.Message   `json:"message"`
}

// decodeMessage accepts {"conversation_id", "message": {...}} or a bare message.
func decodeMessage(data json.RawMessage) (convID string, msg api.Message, err error) {
	var p newMessagePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return "", api.Message{}, err
	}
	if p.Message != nil {
		msg = *p.Message
	} else if err := json.Unmarshal(data, &msg); err != nil {
		return "", api.Message{}, err
	}
	convID = string(p.ConversationID)
	if convID == "" {
		convID = string(msg.ConversationID)
	}
	if msg.ConversationID == "" {
		msg.ConversationID = api.FlexString(convID)
	}
	return convID, msg, nil
}

type typingPayload struct {
	conversationRef
	Typing *bool `json:"typing"`
}

type tagChangedPayload struct {
	PageID api.FlexString `json:"facebook_page_id"`
}
