// Package realtime maintains the single live connection a session uses to
// receive server-pushed events.
//
// A Channel dials once, reconnects with capped exponential backoff, and
// dispatches events to subscribers on one goroutine so events from one
// connection are seen in arrival order. It never writes application frames.
// When reconnect attempts run out the channel stops, calls OnPaused and
// reports ErrReconnectExhausted from Err.
package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/socialinbox/inbox-cli/internal/debug"
)

// Reconnect defaults.
const (
	DefaultMaxAttempts    = 10
	DefaultInitialBackoff = 1 * time.Second
	DefaultMaxBackoff     = 30 * time.Second
	DefaultStableAfter    = 60 * time.Second
)

const dispatchQueueSize = 256

// ErrReconnectExhausted means the channel gave up reconnecting.
var ErrReconnectExhausted = errors.New("live updates paused: reconnect attempts exhausted")

// Config tunes a Channel. Zero values take the defaults.
type Config struct {
	URL string
	// HTTPClient is the base client for the handshake; the bearer token is
	// layered on top of its transport. It must not set a Timeout.
	HTTPClient     *http.Client
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	StableAfter    time.Duration
	PingTimeout    time.Duration
	// OnPaused runs once when the channel stops for good.
	OnPaused func(error)
	// OnConnected runs after every successful handshake.
	OnConnected func()
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = DefaultInitialBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = DefaultMaxBackoff
	}
	if c.StableAfter <= 0 {
		c.StableAfter = DefaultStableAfter
	}
	if c.PingTimeout == 0 {
		c.PingTimeout = DefaultPingTimeout
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{}
	}
	return c
}

// Channel is safe for concurrent use.
type Channel struct {
	cfg Config
	log *slog.Logger

	hmu      sync.RWMutex
	handlers map[string][]*Subscription
	nextID   uint64

	mu        sync.Mutex
	running   bool
	connected bool
	cancel    context.CancelFunc
	done      chan struct{}
	ready     chan struct{}
	err       error
}

func New(cfg Config) *Channel {
	return &Channel{
		cfg:      cfg.withDefaults(),
		log:      debug.Component("realtime"),
		handlers: make(map[string][]*Subscription),
	}
}

// Connect starts the connection loop for token. It returns immediately;
// use WaitConnected to block for the first handshake. Calling Connect while
// the loop is running is a no-op.
func (c *Channel) Connect(ctx context.Context, token string) error {
	if token == "" {
		return fmt.Errorf("realtime: token is required")
	}
	if c.cfg.URL == "" {
		return fmt.Errorf("realtime: URL is required")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return nil
	}

	base := context.WithValue(context.WithoutCancel(ctx), oauth2.HTTPClient, c.cfg.HTTPClient)
	httpClient := oauth2.NewClient(base, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: token,
		TokenType:   "Bearer",
	}))

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.running = true
	c.connected = false
	c.err = nil
	c.cancel = cancel
	c.done = make(chan struct{})
	c.ready = make(chan struct{})

	queue := make(chan Event, dispatchQueueSize)
	drained := make(chan struct{})
	go c.dispatch(queue, drained)
	go c.run(runCtx, httpClient, queue, drained, c.done, c.ready)
	return nil
}

// Disconnect stops the loop and waits for queued events to be dispatched.
// It must not be called from a handler.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// WaitConnected blocks until the first handshake succeeds, the channel
// stops, or ctx ends.
func (c *Channel) WaitConnected(ctx context.Context) error {
	c.mu.Lock()
	ready, done := c.ready, c.done
	c.mu.Unlock()
	if ready == nil {
		return fmt.Errorf("realtime: not connected")
	}
	select {
	case <-ready:
		return nil
	case <-done:
		if err := c.Err(); err != nil {
			return err
		}
		return fmt.Errorf("realtime: channel stopped")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Connected reports whether a connection is currently live.
func (c *Channel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Err returns why the channel stopped, or nil while running or after a
// requested Disconnect.
func (c *Channel) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Done is closed when the connection loop exits.
func (c *Channel) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

func (c *Channel) setConnected(v bool) {
	c.mu.Lock()
	c.connected = v
	c.mu.Unlock()
}

func (c *Channel) run(ctx context.Context, httpClient *http.Client, queue chan Event, drained, done, ready chan struct{}) {
	var stopErr error
	defer func() {
		close(queue)
		<-drained
		c.mu.Lock()
		c.running = false
		c.connected = false
		c.err = stopErr
		c.cancel = nil
		c.mu.Unlock()
		if stopErr != nil && c.cfg.OnPaused != nil {
			c.safeCall("OnPaused", func() { c.cfg.OnPaused(stopErr) })
		}
		close(done)
	}()

	var readyOnce sync.Once
	backoff := c.cfg.InitialBackoff
	attempts := 0

	for {
		start := time.Now()
		connected, err := c.session(ctx, httpClient, queue, func() {
			readyOnce.Do(func() { close(ready) })
		})
		if ctx.Err() != nil {
			return
		}

		if connected && time.Since(start) >= c.cfg.StableAfter {
			attempts = 0
			backoff = c.cfg.InitialBackoff
		}

		var de *DisconnectError
		if errors.As(err, &de) && !de.Reconnect {
			c.log.Warn("server closed realtime channel", "reason", de.Reason)
			stopErr = err
			return
		}
		if errors.Is(err, ErrUnauthorized) {
			c.log.Warn("realtime credentials rejected", "error", err)
			stopErr = err
			return
		}

		attempts++
		if attempts > c.cfg.MaxAttempts {
			c.log.Warn("realtime reconnect attempts exhausted", "attempts", c.cfg.MaxAttempts, "error", err)
			stopErr = fmt.Errorf("%w: %v", ErrReconnectExhausted, err)
			return
		}
		c.log.Info("realtime disconnected, reconnecting", "error", err, "in", backoff, "attempt", attempts)

		timer := time.NewTimer(backoff)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return
		}
		backoff = min(backoff*2, c.cfg.MaxBackoff)
	}
}

// session runs one physical connection. connected reports whether the
// handshake completed.
func (c *Channel) session(ctx context.Context, httpClient *http.Client, queue chan<- Event, onReady func()) (bool, error) {
	cn, err := dial(ctx, c.cfg.URL, httpClient)
	if err != nil {
		return false, err
	}
	defer cn.close()

	c.setConnected(true)
	defer c.setConnected(false)
	c.log.Debug("realtime connected", "url", c.cfg.URL)
	onReady()
	if c.cfg.OnConnected != nil {
		c.safeCall("OnConnected", c.cfg.OnConnected)
	}

	err = cn.listen(ctx, c.cfg.PingTimeout, func(ev Event) {
		select {
		case queue <- ev:
		case <-ctx.Done():
		}
	})
	return true, err
}

// dispatch delivers queued events in order until the queue closes.
func (c *Channel) dispatch(queue <-chan Event, drained chan<- struct{}) {
	defer close(drained)
	for ev := range queue {
		for _, sub := range c.snapshot(ev.Name) {
			c.invoke(sub, ev)
		}
	}
}

func (c *Channel) invoke(sub *Subscription, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("realtime handler panicked", "event", ev.Name, "panic", r)
		}
	}()
	sub.handler(ev)
}

func (c *Channel) safeCall(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("realtime hook panicked", "hook", name, "panic", r)
		}
	}()
	fn()
}

func (c *Channel) snapshot(event string) []*Subscription {
	c.hmu.RLock()
	defer c.hmu.RUnlock()
	subs := c.handlers[event]
	out := make([]*Subscription, len(subs))
	copy(out, subs)
	return out
}
