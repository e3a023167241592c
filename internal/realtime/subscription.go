package realtime

import (
	"slices"
	"sync"
)

// Subscription is a registered handler. Close removes it; closing twice is
// harmless.
type Subscription struct {
	ch      *Channel
	event   string
	id      uint64
	handler Handler
	once    sync.Once
}

// Event returns the event name the subscription listens to.
func (s *Subscription) Event() string { return s.event }

func (s *Subscription) Close() {
	s.once.Do(func() { s.ch.remove(s) })
}

// On registers handler for event and returns its disposer.
func (c *Channel) On(event string, handler Handler) *Subscription {
	c.hmu.Lock()
	defer c.hmu.Unlock()
	c.nextID++
	sub := &Subscription{ch: c, event: event, id: c.nextID, handler: handler}
	c.handlers[event] = append(c.handlers[event], sub)
	return sub
}

// Off removes the given subscriptions from event, or every handler of event
// when none are given.
func (c *Channel) Off(event string, subs ...*Subscription) {
	if len(subs) == 0 {
		c.hmu.Lock()
		delete(c.handlers, event)
		c.hmu.Unlock()
		return
	}
	for _, s := range subs {
		if s != nil && s.event == event {
			s.Close()
		}
	}
}

// HandlerCount reports how many handlers listen to event.
func (c *Channel) HandlerCount(event string) int {
	c.hmu.RLock()
	defer c.hmu.RUnlock()
	return len(c.handlers[event])
}

func (c *Channel) remove(sub *Subscription) {
	c.hmu.Lock()
	defer c.hmu.Unlock()
	subs := slices.DeleteFunc(slices.Clone(c.handlers[sub.event]), func(s *Subscription) bool { return s.id == sub.id })
	if len(subs) == 0 {
		delete(c.handlers, sub.event)
		return
	}
	c.handlers[sub.event] = subs
}

// Scope groups subscriptions so a view can release all of them at teardown.
type Scope struct {
	ch     *Channel
	mu     sync.Mutex
	subs   []*Subscription
	closed bool
}

// NewScope creates an empty scope on the channel.
func (c *Channel) NewScope() *Scope {
	return &Scope{ch: c}
}

// On registers handler within the scope. Registering on a closed scope
// returns a subscription that is already closed.
func (s *Scope) On(event string, handler Handler) *Subscription {
	sub := s.ch.On(event, handler)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		sub.Close()
		return sub
	}
	s.subs = append(s.subs, sub)
	return sub
}

// Close disposes every subscription made through the scope.
func (s *Scope) Close() {
	s.mu.Lock()
	subs := s.subs
	s.subs = nil
	s.closed = true
	s.mu.Unlock()
	for _, sub := range subs {
		sub.Close()
	}
}
