package fbconnect

import (
	"time"

	"github.com/socialinbox/inbox-cli/internal/api"
)

// State is the connection state. The set of implementations is closed:
// Disconnected, Connecting, Connected and Disconnecting.
type State interface {
	isState()
	// Name is the lower-case state name used in output.
	Name() string
}

// Disconnected is stable. Err holds the failure that led back here, if any.
type Disconnected struct {
	Err error
}

// Connecting waits for the OAuth callback.
type Connecting struct {
	// OAuthState is the anti-forgery value the callback must echo.
	OAuthState  string
	RedirectURI string
	AuthURL     string
	StartedAt   time.Time
	// Completing is set once a callback has been claimed for posting.
	Completing  bool
}

// Connected is stable. Err holds the failure of an aborted disconnect.
type Connected struct {
	Status api.FacebookStatus
	Err    error
}

// Disconnecting waits for the server to remove the link.
type Disconnecting struct {
	Previous api.FacebookStatus
}

func (Disconnected) isState()  {}
func (Connecting) isState()    {}
func (Connected) isState()     {}
func (Disconnecting) isState() {}

func (Disconnected) Name() string  { return "disconnected" }
func (Connecting) Name() string    { return "connecting" }
func (Connected) Name() string     { return "connected" }
func (Disconnecting) Name() string { return "disconnecting" }

// InFlight reports whether s is a transitional state.
func InFlight(s State) bool {
	switch s.(type) {
	case Connecting, Disconnecting:
		return true
	case Disconnected, Connected:
		return false
	default:
		return false
	}
}

// ErrorOf returns the error attached to a stable state.
func ErrorOf(s State) error {
	switch st := s.(type) {
	case Disconnected:
		return st.Err
	case Connected:
		return st.Err
	case Connecting, Disconnecting:
		return nil
	default:
		return nil
	}
}
