// Package reconcile keeps the open conversation and the conversation list
// consistent with REST responses and realtime events.
//
// The open view moves Idle -> Loading -> Ready and re-enters Ready on every
// accepted update. A failed fetch leaves it in Loading with a transient
// message. Events for the open conversation update the view; events for any
// other conversation only touch its list summary.
package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/socialinbox/inbox-cli/internal/api"
	"github.com/socialinbox/inbox-cli/internal/debug"
	"github.com/socialinbox/inbox-cli/internal/realtime"
)

// TypingTTL is how long a typing indicator stays visible without a refresh.
const TypingTTL = 6 * time.Second

// maxSeenPerConversation bounds the message-id memory used for redelivery
// de-duplication.
const maxSeenPerConversation = 1000

// ErrStale is returned when a fetch finished after the view moved on.
var ErrStale = errors.New("response discarded: conversation no longer open")

// Phase is the lifecycle of the open conversation view.
type Phase int

const (
	Idle Phase = iota
	Loading
	Ready
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	default:
		return "unknown"
	}
}

// ConversationLoader fetches authoritative conversation state.
type ConversationLoader interface {
	Get(ctx context.Context, id string) (*api.Conversation, error)
}

// TagState is where conversation tag membership lives.
type TagState interface {
	Tags(conversationID string) []int
	ReplaceTags(conversationID string, tagIDs []int)
	InvalidatePage(ctx context.Context, pageID string) error
}

// Summary is the list-level view of a conversation.
type Summary struct {
	ID           string    `json:"id"`
	PageID       string    `json:"facebook_page_id"`
	CustomerID   string    `json:"customer_id,omitempty"`
	CustomerName string    `json:"customer_name"`
	LastMessage  string    `json:"last_message,omitempty"`
	Unread       int       `json:"unread_count"`
	Read         bool      `json:"read"`
	Escalated    bool      `json:"escalated"`
	Status       string    `json:"status,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// View is a copy of the open conversation for rendering.
type View struct {
	Phase        Phase             `json:"-"`
	PhaseName    string            `json:"phase"`
	Generation   uint64            `json:"generation"`
	Conversation *api.Conversation `json:"conversation,omitempty"`
	Tags         []int             `json:"tags"`
	Typing       bool              `json:"typing"`
	Error        string            `json:"error,omitempty"`
}

// Reconciler is safe for concurrent use. Realtime handlers and REST results
// mutate state under one mutex so each update is applied atomically.
type Reconciler struct {
	loader ConversationLoader
	tags   TagState
	log    *slog.Logger
	now    func() time.Time

	mu        sync.Mutex
	phase     Phase
	gen       uint64
	openID    string
	conv      *api.Conversation
	typingAt  time.Time
	errMsg    string
	summaries map[string]*Summary
	seen      map[string][]string
	onChange  func(View)
}

func New(loader ConversationLoader, tags TagState) *Reconciler {
	return &Reconciler{
		loader:    loader,
		tags:      tags,
		log:       debug.Component("reconcile"),
		now:       time.Now,
		summaries: make(map[string]*Summary),
		seen:      make(map[string][]string),
	}
}

// OnChange registers fn to run after every accepted change of the open
// view. It runs on the goroutine that applied the change.
func (r *Reconciler) OnChange(fn func(View)) {
	r.mu.Lock()
	r.onChange = fn
	r.mu.Unlock()
}

// Open makes id the displayed conversation and loads it. Loads for earlier
// generations that complete later are discarded with ErrStale.
func (r *Reconciler) Open(ctx context.Context, id string) error {
	r.mu.Lock()
	r.gen++
	gen := r.gen
	r.openID = id
	r.phase = Loading
	r.conv = nil
	r.typingAt = time.Time{}
	r.errMsg = ""
	r.mu.Unlock()
	r.notify()

	return r.fetch(ctx, id, gen)
}

// Refresh reloads the open conversation without starting a new generation.
// It is how a failed load is retried.
func (r *Reconciler) Refresh(ctx context.Context) error {
	r.mu.Lock()
	id, gen := r.openID, r.gen
	r.mu.Unlock()
	if id == "" {
		return errors.New("no conversation open")
	}
	return r.fetch(ctx, id, gen)
}

// Close returns the view to Idle. In-flight loads become stale.
func (r *Reconciler) Close() {
	r.mu.Lock()
	r.gen++
	r.openID = ""
	r.phase = Idle
	r.conv = nil
	r.errMsg = ""
	r.mu.Unlock()
	r.notify()
}

func (r *Reconciler) fetch(ctx context.Context, id string, gen uint64) error {
	conv, err := r.loader.Get(ctx, id)

	r.mu.Lock()
	if gen != r.gen || id != r.openID {
		r.mu.Unlock()
		r.log.Debug("discarding stale load", "conversation", id, "generation", gen)
		return ErrStale
	}
	if err != nil {
		r.errMsg = err.Error()
		r.mu.Unlock()
		r.log.Warn("conversation load failed", "conversation", id, "error", err)
		r.notify()
		return err
	}
	c := cloneConversation(conv)
	r.conv = c
	r.phase = Ready
	r.errMsg = ""
	r.rememberMessages(id, c.Messages)
	r.upsertSummary(c)
	r.mu.Unlock()

	if conv.Tags != nil {
		r.tags.ReplaceTags(id, conv.Tags)
	}
	r.notify()
	return nil
}

// SetConversations seeds list summaries from a REST listing.
func (r *Reconciler) SetConversations(convs []api.Conversation) {
	r.mu.Lock()
	for i := range convs {
		r.upsertSummary(&convs[i])
	}
	r.mu.Unlock()
	for _, c := range convs {
		if c.Tags != nil {
			r.tags.ReplaceTags(string(c.ID), c.Tags)
		}
	}
}

// Summaries returns list summaries, most recently updated first.
func (r *Reconciler) Summaries() []Summary {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Summary, 0, len(r.summaries))
	for _, s := range r.summaries {
		out = append(out, *s)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Summary returns one list summary.
func (r *Reconciler) Summary(id string) (Summary, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.summaries[id]
	if !ok {
		return Summary{}, false
	}
	return *s, true
}

// Snapshot returns a copy of the open view.
func (r *Reconciler) Snapshot() View {
	r.mu.Lock()
	v := View{
		Phase:      r.phase,
		PhaseName:  r.phase.String(),
		Generation: r.gen,
		Error:      r.errMsg,
		Typing:     !r.typingAt.IsZero() && r.now().Sub(r.typingAt) < TypingTTL,
	}
	if r.conv != nil {
		v.Conversation = cloneConversation(r.conv)
	}
	id := r.openID
	r.mu.Unlock()

	if id != "" {
		v.Tags = r.tags.Tags(id)
	}
	if v.Tags == nil {
		v.Tags = []int{}
	}
	// The synchronizer owns membership; the loaded copy goes stale after
	// the first tag event.
	if v.Conversation != nil {
		v.Conversation.Tags = slices.Clone(v.Tags)
	}
	return v
}

// Bind subscribes the reconciler to every event it handles. Closing the
// returned scope detaches it.
func (r *Reconciler) Bind(ch *realtime.Channel) *realtime.Scope {
	scope := ch.NewScope()
	for _, name := range handledEvents {
		scope.On(name, r.HandleEvent)
	}
	return scope
}

var handledEvents = []string{
	realtime.EventNewMessage,
	realtime.EventConversationUpdated,
	realtime.EventNewConversation,
	realtime.EventCustomerUpdated,
	realtime.EventTypingIndicator,
	realtime.EventMessagesRead,
	realtime.EventConversationEscalated,
	realtime.EventTagChanged,
}

// HandleEvent applies one realtime event. Every handler is idempotent:
// applying the same payload again leaves state unchanged.
func (r *Reconciler) HandleEvent(ev realtime.Event) {
	var (
		openChanged bool
		err         error
	)
	switch ev.Name {
	case realtime.EventNewMessage:
		openChanged, err = r.applyNewMessage(ev.Data)
	case realtime.EventConversationUpdated:
		openChanged, err = r.applyConversationUpdated(ev.Data)
	case realtime.EventNewConversation:
		openChanged, err = r.applyNewConversation(ev.Data)
	case realtime.EventCustomerUpdated:
		openChanged, err = r.applyCustomerUpdated(ev.Data)
	case realtime.EventTypingIndicator:
		openChanged, err = r.applyTyping(ev)
	case realtime.EventMessagesRead:
		openChanged, err = r.applyMessagesRead(ev.Data)
	case realtime.EventConversationEscalated:
		openChanged, err = r.applyEscalated(ev.Data)
	case realtime.EventTagChanged:
		err = r.applyTagChanged(ev.Data)
	default:
		return
	}
	if err != nil {
		r.log.Warn("ignoring malformed event", "event", ev.Name, "error", err)
		return
	}
	if openChanged {
		r.notify()
	}
}

func (r *Reconciler) applyNewMessage(data json.RawMessage) (bool, error) {
	convID, msg, err := decodeMessage(data)
	if err != nil {
		return false, err
	}
	if convID == "" || msg.ID == "" {
		return false, errors.New("message without conversation or message id")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if slices.Contains(r.seen[convID], string(msg.ID)) {
		return false, nil
	}
	open := r.isOpen(convID)
	// While the open conversation loads the message is not appended, so a
	// redelivery must still get through if the load missed it.
	if !open || r.conv != nil {
		r.remember(convID, string(msg.ID))
	}

	s := r.summaryFor(convID)
	s.LastMessage = msg.Content
	if !msg.CreatedAt.IsZero() && msg.CreatedAt.After(s.UpdatedAt) {
		s.UpdatedAt = msg.CreatedAt
	}
	if msg.FromCustomer && !open {
		s.Unread++
		s.Read = false
	}

	if !open || r.conv == nil {
		return false, nil
	}
	r.conv.Messages = append(r.conv.Messages, msg)
	r.conv.LastMessage = msg.Content
	if msg.FromCustomer {
		r.typingAt = time.Time{}
	}
	r.phase = Ready
	return true, nil
}

func (r *Reconciler) applyConversationUpdated(data json.RawMessage) (bool, error) {
	p, err := DecodePatch(data)
	if err != nil {
		return false, err
	}
	id := p.Target()
	if id == "" {
		return false, errors.New("update without conversation id")
	}
	if p.Tags != nil {
		r.tags.ReplaceTags(id, *p.Tags)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.summaryFor(id)
	applySummaryPatch(s, p)

	if !r.isOpen(id) || r.conv == nil {
		return false, nil
	}
	changed := p.Apply(r.conv) || p.Tags != nil
	r.phase = Ready
	return changed, nil
}

func (r *Reconciler) applyNewConversation(data json.RawMessage) (bool, error) {
	var conv api.Conversation
	if err := json.Unmarshal(data, &conv); err != nil {
		return false, err
	}
	if conv.ID == "" {
		return false, errors.New("conversation without id")
	}
	r.mu.Lock()
	r.upsertSummary(&conv)
	r.rememberMessages(string(conv.ID), conv.Messages)
	r.mu.Unlock()
	if conv.Tags != nil {
		r.tags.ReplaceTags(string(conv.ID), conv.Tags)
	}
	return false, nil
}

func (r *Reconciler) applyCustomerUpdated(data json.RawMessage) (bool, error) {
	var cp CustomerPatch
	if err := json.Unmarshal(data, &cp); err != nil {
		return false, err
	}
	if cp.ID == "" && cp.ConversationID == "" {
		return false, errors.New("customer update without customer or conversation id")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.summaries {
		if !customerMatches(cp, s.ID, s.CustomerID) {
			continue
		}
		if cp.Name != nil {
			s.CustomerName = *cp.Name
		}
		if cp.ID != "" {
			s.CustomerID = string(cp.ID)
		}
	}
	if r.conv == nil || !customerMatches(cp, string(r.conv.ID), string(r.conv.Customer.ID)) {
		return false, nil
	}
	changed := cp.applyTo(&r.conv.Customer)
	r.phase = Ready
	return changed, nil
}

func customerMatches(cp CustomerPatch, convID, customerID string) bool {
	if cp.ConversationID != "" {
		return string(cp.ConversationID) == convID
	}
	return customerID != "" && string(cp.ID) == customerID
}

func (r *Reconciler) applyTyping(ev realtime.Event) (bool, error) {
	var p typingPayload
	if err := json.Unmarshal(ev.Data, &p); err != nil {
		return false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.isOpen(p.target()) {
		return false, nil
	}
	if p.Typing != nil && !*p.Typing {
		wasTyping := !r.typingAt.IsZero()
		r.typingAt = time.Time{}
		return wasTyping, nil
	}
	at := ev.ReceivedAt
	if at.IsZero() {
		at = r.now()
	}
	r.typingAt = at
	return true, nil
}

func (r *Reconciler) applyMessagesRead(data json.RawMessage) (bool, error) {
	var ref conversationRef
	if err := json.Unmarshal(data, &ref); err != nil {
		return false, err
	}
	id := ref.target()
	if id == "" {
		return false, errors.New("read receipt without conversation id")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.summaries[id]; ok {
		s.Read = true
		s.Unread = 0
	}
	if !r.isOpen(id) || r.conv == nil {
		return false, nil
	}
	changed := !r.conv.Read || r.conv.Unread != 0
	r.conv.Read = true
	r.conv.Unread = 0
	r.phase = Ready
	return changed, nil
}

func (r *Reconciler) applyEscalated(data json.RawMessage) (bool, error) {
	var ref conversationRef
	if err := json.Unmarshal(data, &ref); err != nil {
		return false, err
	}
	id := ref.target()
	if id == "" {
		return false, errors.New("escalation without conversation id")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.summaryFor(id).Escalated = true
	if !r.isOpen(id) || r.conv == nil {
		return false, nil
	}
	changed := !r.conv.Escalated || r.conv.BotEnabled
	r.conv.Escalated = true
	r.conv.BotEnabled = false
	r.phase = Ready
	return changed, nil
}

func (r *Reconciler) applyTagChanged(data json.RawMessage) error {
	var p tagChangedPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	if p.PageID == "" {
		return errors.New("tag change without page id")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.tags.InvalidatePage(ctx, string(p.PageID)); err != nil {
		r.log.Warn("tag catalogue invalidation failed", "page", p.PageID, "error", err)
	}
	return nil
}

func (r *Reconciler) isOpen(id string) bool {
	return id != "" && id == r.openID
}

// summaryFor returns the summary for id, creating a bare one when unknown.
func (r *Reconciler) summaryFor(id string) *Summary {
	s, ok := r.summaries[id]
	if !ok {
		s = &Summary{ID: id}
		r.summaries[id] = s
	}
	return s
}

func (r *Reconciler) upsertSummary(c *api.Conversation) {
	s := r.summaryFor(string(c.ID))
	s.PageID = string(c.PageID)
	s.CustomerID = string(c.Customer.ID)
	s.CustomerName = c.Customer.Name
	s.LastMessage = c.LastMessage
	s.Unread = c.Unread
	s.Read = c.Read
	s.Escalated = c.Escalated
	s.Status = c.Status
	s.UpdatedAt = c.UpdatedAt
}

func applySummaryPatch(s *Summary, p Patch) {
	if p.PageID != nil {
		s.PageID = string(*p.PageID)
	}
	if p.Status != nil {
		s.Status = *p.Status
	}
	if p.Unread != nil {
		s.Unread = *p.Unread
	}
	if p.Read != nil {
		s.Read = *p.Read
	}
	if p.Escalated != nil {
		s.Escalated = *p.Escalated
	}
	if p.LastMessage != nil {
		s.LastMessage = *p.LastMessage
	}
	if p.Customer != nil {
		if p.Customer.ID != "" {
			s.CustomerID = string(p.Customer.ID)
		}
		if p.Customer.Name != nil {
			s.CustomerName = *p.Customer.Name
		}
	}
	if p.UpdatedAt != nil {
		s.UpdatedAt = *p.UpdatedAt
	}
}

func (r *Reconciler) rememberMessages(convID string, msgs []api.Message) {
	for _, m := range msgs {
		if m.ID != "" && !slices.Contains(r.seen[convID], string(m.ID)) {
			r.remember(convID, string(m.ID))
		}
	}
}

func (r *Reconciler) remember(convID, msgID string) {
	ids := append(r.seen[convID], msgID)
	if len(ids) > maxSeenPerConversation {
		ids = ids[len(ids)-maxSeenPerConversation:]
	}
	r.seen[convID] = ids
}

func (r *Reconciler) notify() {
	r.mu.Lock()
	fn := r.onChange
	r.mu.Unlock()
	if fn == nil {
		return
	}
	v := r.Snapshot()
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("change hook panicked", "panic", rec)
		}
	}()
	fn(v)
}

func cloneConversation(c *api.Conversation) *api.Conversation {
	out := *c
	out.Tags = slices.Clone(c.Tags)
	out.Messages = slices.Clone(c.Messages)
	return &out
}
