// Package fbconnect manages the company's Facebook link.
//
//	Disconnected --BeginConnect--> Connecting --CompleteConnect--> Connected
//	Connected --Disconnect--> Disconnecting --> Disconnected
//
// A REST failure while Connecting returns to Disconnected, and while
// Disconnecting returns to Connected, with the error attached. Operations
// that are not valid in the current state fail before any request is sent.
package fbconnect

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/socialinbox/inbox-cli/internal/api"
	"github.com/socialinbox/inbox-cli/internal/debug"
)

// FacebookAPI is the slice of the REST client the manager needs.
type FacebookAPI interface {
	Status(ctx context.Context) (*api.FacebookStatus, error)
	OAuthURL(ctx context.Context, redirectURI string) (*api.OAuthStart, error)
	Callback(ctx context.Context, req api.CallbackRequest) (*api.FacebookStatus, error)
	Disconnect(ctx context.Context) error
}

// PageSyncer triggers a page import.
type PageSyncer interface {
	Sync(ctx context.Context) (*api.PageSyncResult, error)
}

// CallbackResult is what the provider sent to the redirect URI.
type CallbackResult struct {
	Code             string
	State            string
	Error            string
	ErrorDescription string
}

// ParseCallback reads a callback from redirect query parameters.
func ParseCallback(q url.Values) CallbackResult {
	return CallbackResult{
		Code:             strings.TrimSpace(q.Get("code")),
		State:            q.Get("state"),
		Error:            strings.TrimSpace(q.Get("error")),
		ErrorDescription: strings.TrimSpace(q.Get("error_description")),
	}
}

// Validate classifies a callback. The provider error and the missing code
// are distinct failures.
func (r CallbackResult) Validate(expectedState string) error {
	if r.Error != "" {
		return &ProviderError{Code: r.Error, Description: r.ErrorDescription}
	}
	if r.Code == "" {
		return ErrMissingCode
	}
	if expectedState != "" && r.State != expectedState {
		return ErrStateMismatch
	}
	return nil
}

// Manager is safe for concurrent use.
type Manager struct {
	fb    FacebookAPI
	pages PageSyncer
	log   *slog.Logger
	now   func() time.Time

	mu       sync.Mutex
	state    State
	onChange func(State)
}

func New(fb FacebookAPI, pages PageSyncer) *Manager {
	return &Manager{
		fb:    fb,
		pages: pages,
		log:   debug.Component("fbconnect"),
		now:   time.Now,
		state: Disconnected{},
	}
}

// OnChange registers fn to run after every state change.
func (m *Manager) OnChange(fn func(State)) {
	m.mu.Lock()
	m.onChange = fn
	m.mu.Unlock()
}

// State returns the current state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Refresh reads the server-side status and settles into the matching
// stable state. It is rejected while a transition is in flight.
func (m *Manager) Refresh(ctx context.Context) (State, error) {
	if err := m.guard("refresh", func(s State) error {
		if InFlight(s) {
			return ErrTransitionInFlight
		}
		return nil
	}); err != nil {
		return m.State(), err
	}

	status, err := m.fb.Status(ctx)
	if err != nil {
		return m.State(), fmt.Errorf("read facebook status: %w", err)
	}

	var next State = Disconnected{}
	if status.Connected {
		next = Connected{Status: *status}
	}
	m.mu.Lock()
	if InFlight(m.state) {
		// A transition started while the status was in flight; it owns the state.
		cur := m.state
		m.mu.Unlock()
		return cur, nil
	}
	prev, fn := m.state, m.onChange
	m.state = next
	m.mu.Unlock()
	m.changed(prev, next, fn)
	return next, nil
}

// BeginConnect asks the server for a provider authorization URL and enters
// Connecting. The caller sends the user to the returned URL.
func (m *Manager) BeginConnect(ctx context.Context, redirectURI string) (*api.OAuthStart, error) {
	if err := m.transition("connect", func(s State) (State, error) {
		switch s.(type) {
		case Disconnected:
			return Connecting{RedirectURI: redirectURI, StartedAt: m.now()}, nil
		case Connected:
			return nil, ErrInvalidTransition
		case Connecting, Disconnecting:
			return nil, ErrTransitionInFlight
		default:
			return nil, ErrInvalidTransition
		}
	}); err != nil {
		return nil, err
	}

	start, err := m.fb.OAuthURL(ctx, redirectURI)
	if err != nil {
		err = fmt.Errorf("start facebook connection: %w", err)
		m.set(Disconnected{Err: err})
		return nil, err
	}
	m.set(Connecting{
		OAuthState:  start.State,
		RedirectURI: redirectURI,
		AuthURL:     start.URL,
		StartedAt:   m.now(),
	})
	return start, nil
}

// CompleteConnect finishes a connection with the provider callback. Any
// failure lands in Disconnected with the error attached.
func (m *Manager) CompleteConnect(ctx context.Context, cb CallbackResult) (State, error) {
	pending, err := m.claimCallback()
	if err != nil {
		return m.State(), err
	}

	fail := func(err error) (State, error) {
		next := Disconnected{Err: err}
		m.set(next)
		m.log.Warn("facebook connection failed", "error", err)
		return next, err
	}

	if err := cb.Validate(pending.OAuthState); err != nil {
		return fail(err)
	}

	status, err := m.fb.Callback(ctx, api.CallbackRequest{
		Code:        cb.Code,
		State:       cb.State,
		RedirectURI: pending.RedirectURI,
	})
	if err != nil {
		return fail(fmt.Errorf("complete facebook connection: %w", err))
	}
	st := api.FacebookStatus{Connected: true}
	if status != nil {
		st = *status
		st.Connected = true
	}
	next := Connected{Status: st}
	m.set(next)
	return next, nil
}

// Disconnect removes the Facebook link and every imported page. confirm
// must return true before any request is sent.
func (m *Manager) Disconnect(ctx context.Context, confirm func() bool) error {
	var prior api.FacebookStatus
	if err := m.guard("disconnect", func(s State) error {
		switch st := s.(type) {
		case Connected:
			prior = st.Status
			return nil
		case Connecting, Disconnecting:
			return ErrTransitionInFlight
		case Disconnected:
			return ErrInvalidTransition
		default:
			return ErrInvalidTransition
		}
	}); err != nil {
		return err
	}

	if confirm == nil || !confirm() {
		return ErrNotConfirmed
	}

	if err := m.transition("disconnect", func(s State) (State, error) {
		if _, ok := s.(Connected); !ok {
			return nil, ErrTransitionInFlight
		}
		return Disconnecting{Previous: prior}, nil
	}); err != nil {
		return err
	}

	if err := m.fb.Disconnect(ctx); err != nil {
		err = fmt.Errorf("disconnect facebook: %w", err)
		m.set(Connected{Status: prior, Err: err})
		return err
	}
	m.set(Disconnected{})
	return nil
}

// SyncPages imports the connected account's pages. It does not change the
// connection state. The returned status is recomputed from the counts.
func (m *Manager) SyncPages(ctx context.Context) (*api.PageSyncResult, error) {
	if err := m.guard("sync pages", func(s State) error {
		switch s.(type) {
		case Connected:
			return nil
		case Connecting, Disconnecting:
			return ErrTransitionInFlight
		case Disconnected:
			return ErrInvalidTransition
		default:
			return ErrInvalidTransition
		}
	}); err != nil {
		return nil, err
	}

	res, err := m.pages.Sync(ctx)
	if err != nil {
		return nil, fmt.Errorf("sync pages: %w", err)
	}
	out := *res
	out.SyncStatus = ClassifySync(res.PagesSynced, res.PagesTotal)
	if res.SyncStatus != "" && res.SyncStatus != out.SyncStatus {
		m.log.Debug("server sync status disagrees with counts", "server", res.SyncStatus, "computed", out.SyncStatus)
	}
	if out.SyncStatus == api.SyncError && out.ErrorMessage == "" {
		out.ErrorMessage = "no pages were synced"
	}
	return &out, nil
}

// ClassifySync derives a sync status from counts. A run with nothing to
// sync is a success.
func ClassifySync(synced, total int) string {
	switch {
	case synced >= total:
		return api.SyncSuccess
	case synced <= 0:
		return api.SyncError
	default:
		return api.SyncPartial
	}
}

// claimCallback marks the pending connection as completing so only one
// caller posts the callback.
func (m *Manager) claimCallback() (Connecting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var err error
	switch st := m.state.(type) {
	case Connecting:
		if st.Completing || st.AuthURL == "" {
			err = ErrTransitionInFlight
			break
		}
		st.Completing = true
		m.state = st
		return st, nil
	case Disconnecting:
		err = ErrTransitionInFlight
	case Disconnected, Connected:
		err = ErrInvalidTransition
	default:
		err = ErrInvalidTransition
	}
	return Connecting{}, &TransitionError{Op: "complete connection", State: m.state.Name(), Err: err}
}

func (m *Manager) guard(op string, check func(State) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := check(m.state); err != nil {
		return &TransitionError{Op: op, State: m.state.Name(), Err: err}
	}
	return nil
}

func (m *Manager) transition(op string, next func(State) (State, error)) error {
	m.mu.Lock()
	s, err := next(m.state)
	if err != nil {
		cur := m.state.Name()
		m.mu.Unlock()
		return &TransitionError{Op: op, State: cur, Err: err}
	}
	prev, fn := m.state, m.onChange
	m.state = s
	m.mu.Unlock()
	m.changed(prev, s, fn)
	return nil
}

func (m *Manager) set(s State) {
	m.mu.Lock()
	prev, fn := m.state, m.onChange
	m.state = s
	m.mu.Unlock()
	m.changed(prev, s, fn)
}

func (m *Manager) changed(prev, next State, fn func(State)) {
	m.log.Debug("connection state", "from", prev.Name(), "to", next.Name())
	if fn == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("state hook panicked", "panic", r)
		}
	}()
	fn(next)
}
