package realtime

import (
	"encoding/json"
	"time"
)

// Event names delivered by the server.
const (
	EventNewMessage            = "new_message"
	EventConversationUpdated   = "conversation_updated"
	EventNewConversation       = "new_conversation"
	EventCustomerUpdated       = "customer_updated"
	EventTypingIndicator       = "typing_indicator"
	EventMessagesRead          = "messages_read"
	EventConversationEscalated = "conversation_escalated"
	EventTagChanged            = "tag_changed"
)

// Events lists the full catalogue.
var Events = []string{
	EventNewMessage,
	EventConversationUpdated,
	EventNewConversation,
	EventCustomerUpdated,
	EventTypingIndicator,
	EventMessagesRead,
	EventConversationEscalated,
	EventTagChanged,
}

// Event is one server-pushed notification. Handlers may see the same event
// again after a reconnect.
type Event struct {
	Name       string
	Data       json.RawMessage
	ReceivedAt time.Time
}

// Decode unmarshals the payload into v.
func (e Event) Decode(v any) error {
	return json.Unmarshal(e.Data, v)
}

// Handler consumes events. Handlers run on the channel's dispatch goroutine
// and must not block for long.
type Handler func(Event)
