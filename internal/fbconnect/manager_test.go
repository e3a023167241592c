package fbconnect

import (
	"context"
	"errors"
	"net/url"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/socialinbox/inbox-cli/internal/api"
)

type fakeFacebook struct {
	mu sync.Mutex

	status      *api.FacebookStatus
	statusErr   error
	oauthErr    error
	callbackErr error
	disconnErr  error
	syncResult  *api.PageSyncResult
	syncErr     error

	calls []string
	got   api.CallbackRequest

	// gate, when set, blocks Callback until closed.
	gate chan struct{}
}

func (f *fakeFacebook) record(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
}

func (f *fakeFacebook) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeFacebook) Status(context.Context) (*api.FacebookStatus, error) {
	f.record("status")
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	return f.status, nil
}

func (f *fakeFacebook) OAuthURL(_ context.Context, redirect string) (*api.OAuthStart, error) {
	f.record("oauth-url")
	if f.oauthErr != nil {
		return nil, f.oauthErr
	}
	return &api.OAuthStart{URL: "https://facebook.example/dialog?redirect_uri=" + url.QueryEscape(redirect), State: "st-1"}, nil
}

func (f *fakeFacebook) Callback(_ context.Context, req api.CallbackRequest) (*api.FacebookStatus, error) {
	f.record("callback")
	f.mu.Lock()
	f.got = req
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if f.callbackErr != nil {
		return nil, f.callbackErr
	}
	return &api.FacebookStatus{Connected: true, AccountName: "Shop", PageCount: 3}, nil
}

func (f *fakeFacebook) Disconnect(context.Context) error {
	f.record("disconnect")
	return f.disconnErr
}

func (f *fakeFacebook) Sync(context.Context) (*api.PageSyncResult, error) {
	f.record("sync")
	if f.syncErr != nil {
		return nil, f.syncErr
	}
	return f.syncResult, nil
}

func newManager(f *fakeFacebook) *Manager { return New(f, f) }

func connected(t *testing.T, f *fakeFacebook) *Manager {
	t.Helper()
	m := newManager(f)
	_, err := m.BeginConnect(context.Background(), "http://127.0.0.1:9999/callback")
	require.NoError(t, err)
	_, err = m.CompleteConnect(context.Background(), CallbackResult{Code: "c", State: "st-1"})
	require.NoError(t, err)
	return m
}

func yes() bool { return true }

func TestConnectHappyPath(t *testing.T) {
	f := &fakeFacebook{}
	m := newManager(f)
	var seen []string
	m.OnChange(func(s State) { seen = append(seen, s.Name()) })

	start, err := m.BeginConnect(context.Background(), "http://127.0.0.1:9999/callback")
	require.NoError(t, err)
	assert.Equal(t, "st-1", start.State)
	st, ok := m.State().(Connecting)
	require.True(t, ok)
	assert.Equal(t, "st-1", st.OAuthState)

	next, err := m.CompleteConnect(context.Background(), CallbackResult{Code: "abc", State: "st-1"})
	require.NoError(t, err)
	c, ok := next.(Connected)
	require.True(t, ok)
	assert.Equal(t, "Shop", c.Status.AccountName)
	assert.Equal(t, "abc", f.got.Code)
	assert.Equal(t, "http://127.0.0.1:9999/callback", f.got.RedirectURI)
	assert.Equal(t, []string{"connecting", "connecting", "connected"}, seen)
}

func TestConnectFailuresReturnToDisconnected(t *testing.T) {
	tests := []struct {
		name    string
		cb      CallbackResult
		cbErr   error
		wantErr error
	}{
		{"provider error", CallbackResult{Error: "access_denied", ErrorDescription: "User cancelled"}, nil, ErrProviderDenied},
		{"provider error with code", CallbackResult{Code: "x", Error: "server_error"}, nil, ErrProviderDenied},
		{"missing code", CallbackResult{State: "st-1"}, nil, ErrMissingCode},
		{"state mismatch", CallbackResult{Code: "x", State: "other"}, nil, ErrStateMismatch},
		{"rest failure", CallbackResult{Code: "x", State: "st-1"}, &api.APIError{StatusCode: 502, Body: "bad gateway"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeFacebook{callbackErr: tt.cbErr}
			m := newManager(f)
			_, err := m.BeginConnect(context.Background(), "http://127.0.0.1/cb")
			require.NoError(t, err)

			next, err := m.CompleteConnect(context.Background(), tt.cb)
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			d, ok := next.(Disconnected)
			require.True(t, ok, "state %T", next)
			require.Error(t, d.Err)
			assert.NotEmpty(t, d.Err.Error())
			assert.Equal(t, next, m.State())
			assert.False(t, InFlight(m.State()))
		})
	}
}

func TestCompleteConnectPostsCallbackOnce(t *testing.T) {
	f := &fakeFacebook{gate: make(chan struct{})}
	m := newManager(f)
	_, err := m.BeginConnect(context.Background(), "http://127.0.0.1/cb")
	require.NoError(t, err)

	type result struct {
		state State
		err   error
	}
	first := make(chan result, 1)
	go func() {
		s, err := m.CompleteConnect(context.Background(), CallbackResult{Code: "abc", State: "st-1"})
		first <- result{s, err}
	}()
	require.Eventually(t, func() bool {
		return slices.Contains(f.Calls(), "callback")
	}, time.Second, time.Millisecond)

	_, err = m.CompleteConnect(context.Background(), CallbackResult{Code: "abc", State: "st-1"})
	assert.ErrorIs(t, err, ErrTransitionInFlight)

	close(f.gate)
	res := <-first
	require.NoError(t, res.err)
	_, ok := res.state.(Connected)
	assert.True(t, ok, "state %T", res.state)
	assert.Equal(t, []string{"oauth-url", "callback"}, f.Calls())
}

func TestProviderErrorMessage(t *testing.T) {
	err := CallbackResult{Error: "access_denied", ErrorDescription: "User cancelled"}.Validate("")
	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Contains(t, err.Error(), "User cancelled")
	assert.Contains(t, err.Error(), "access_denied")
}

func TestBeginConnectFailure(t *testing.T) {
	f := &fakeFacebook{oauthErr: errors.New("timeout")}
	m := newManager(f)
	_, err := m.BeginConnect(context.Background(), "http://127.0.0.1/cb")
	require.Error(t, err)
	d, ok := m.State().(Disconnected)
	require.True(t, ok)
	assert.ErrorContains(t, d.Err, "timeout")
	assert.Equal(t, d.Err, ErrorOf(m.State()))
}

func TestInvalidTransitionsRejectedBeforeIO(t *testing.T) {
	f := &fakeFacebook{}
	m := newManager(f)

	err := m.Disconnect(context.Background(), yes)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = m.SyncPages(context.Background())
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = m.CompleteConnect(context.Background(), CallbackResult{Code: "x"})
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = m.BeginConnect(context.Background(), "http://127.0.0.1/cb")
	require.NoError(t, err)
	_, err = m.BeginConnect(context.Background(), "http://127.0.0.1/cb")
	assert.ErrorIs(t, err, ErrTransitionInFlight)
	_, err = m.SyncPages(context.Background())
	assert.ErrorIs(t, err, ErrTransitionInFlight)
	_, err = m.Refresh(context.Background())
	assert.ErrorIs(t, err, ErrTransitionInFlight)

	var te *TransitionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "connecting", te.State)

	assert.Equal(t, []string{"oauth-url"}, f.Calls())
}

func TestDisconnectRequiresConfirmation(t *testing.T) {
	f := &fakeFacebook{}
	m := connected(t, f)

	assert.ErrorIs(t, m.Disconnect(context.Background(), nil), ErrNotConfirmed)
	assert.ErrorIs(t, m.Disconnect(context.Background(), func() bool { return false }), ErrNotConfirmed)
	assert.NotContains(t, f.Calls(), "disconnect")
	assert.IsType(t, Connected{}, m.State())

	require.NoError(t, m.Disconnect(context.Background(), yes))
	assert.Equal(t, Disconnected{}, m.State())
}

func TestDisconnectFailureReturnsToConnected(t *testing.T) {
	f := &fakeFacebook{}
	m := connected(t, f)
	f.disconnErr = &api.APIError{StatusCode: 500, Body: "boom"}

	var during State
	err := m.Disconnect(context.Background(), func() bool {
		during = m.State()
		return true
	})
	require.Error(t, err)
	assert.IsType(t, Connected{}, during)

	c, ok := m.State().(Connected)
	require.True(t, ok)
	assert.Error(t, c.Err)
	assert.Equal(t, "Shop", c.Status.AccountName)
}

func TestDisconnectWhileDisconnecting(t *testing.T) {
	f := &fakeFacebook{}
	m := connected(t, f)

	entered := make(chan struct{})
	release := make(chan struct{})
	m.OnChange(func(s State) {
		if _, ok := s.(Disconnecting); ok {
			close(entered)
			<-release
		}
	})

	done := make(chan error, 1)
	go func() { done <- m.Disconnect(context.Background(), yes) }()
	<-entered
	assert.ErrorIs(t, m.Disconnect(context.Background(), yes), ErrTransitionInFlight)
	close(release)
	require.NoError(t, <-done)
}

func TestSyncPagesClassification(t *testing.T) {
	tests := []struct {
		synced, total int
		server        string
		want          string
	}{
		{3, 5, "success", api.SyncPartial},
		{0, 5, "", api.SyncError},
		{5, 5, "partial", api.SyncSuccess},
		{0, 0, "", api.SyncSuccess},
	}
	for _, tt := range tests {
		f := &fakeFacebook{}
		m := connected(t, f)
		f.syncResult = &api.PageSyncResult{PagesSynced: tt.synced, PagesTotal: tt.total, SyncStatus: tt.server}

		res, err := m.SyncPages(context.Background())
		require.NoError(t, err)
		assert.Equal(t, tt.want, res.SyncStatus, "%d/%d", tt.synced, tt.total)
		assert.IsType(t, Connected{}, m.State(), "sync never changes state")
		if tt.want == api.SyncError {
			assert.NotEmpty(t, res.ErrorMessage)
		}
	}
}

func TestSyncPagesError(t *testing.T) {
	f := &fakeFacebook{}
	m := connected(t, f)
	f.syncErr = errors.New("unreachable")
	_, err := m.SyncPages(context.Background())
	require.Error(t, err)
	assert.IsType(t, Connected{}, m.State())
}

func TestClassifySync(t *testing.T) {
	assert.Equal(t, api.SyncPartial, ClassifySync(3, 5))
	assert.Equal(t, api.SyncError, ClassifySync(0, 5))
	assert.Equal(t, api.SyncSuccess, ClassifySync(5, 5))
	assert.Equal(t, api.SyncPartial, ClassifySync(1, 2))
}

func TestRefresh(t *testing.T) {
	f := &fakeFacebook{status: &api.FacebookStatus{Connected: true, AccountName: "Shop"}}
	m := newManager(f)
	st, err := m.Refresh(context.Background())
	require.NoError(t, err)
	assert.IsType(t, Connected{}, st)

	f.status = &api.FacebookStatus{Connected: false}
	st, err = m.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Disconnected{}, st)

	f.statusErr = errors.New("offline")
	_, err = m.Refresh(context.Background())
	require.Error(t, err)
	assert.Equal(t, Disconnected{}, m.State())
}

func TestParseCallback(t *testing.T) {
	q, err := url.ParseQuery("code=+abc+&state=s&error_description=x")
	require.NoError(t, err)
	cb := ParseCallback(q)
	assert.Equal(t, CallbackResult{Code: "abc", State: "s", ErrorDescription: "x"}, cb)
}

func TestStateNames(t *testing.T) {
	for _, s := range []State{Disconnected{}, Connecting{}, Connected{}, Disconnecting{}} {
		assert.NotEmpty(t, s.Name())
	}
	assert.True(t, InFlight(Connecting{}))
	assert.True(t, InFlight(Disconnecting{}))
	assert.False(t, InFlight(Connected{}))
	assert.Nil(t, ErrorOf(Disconnecting{}))
}
