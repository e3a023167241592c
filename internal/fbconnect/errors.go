package fbconnect

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidTransition means the operation is not allowed from the
	// current state.
	ErrInvalidTransition = errors.New("operation not allowed in the current connection state")
	// ErrTransitionInFlight means a connect or disconnect is still running.
	ErrTransitionInFlight = errors.New("a connection change is already in progress")
	// ErrNotConfirmed means a disconnect was not confirmed.
	ErrNotConfirmed = errors.New("disconnect not confirmed")
	// ErrProviderDenied means the provider redirected back with an error.
	ErrProviderDenied = errors.New("facebook denied the connection")
	// ErrMissingCode means the callback carried neither a code nor an error.
	ErrMissingCode = errors.New("facebook callback did not include an authorization code")
	// ErrStateMismatch means the callback state does not match the one issued.
	ErrStateMismatch = errors.New("facebook callback state does not match; the link may be forged or stale")
)

// ProviderError carries the provider's error fields.
type ProviderError struct {
	Code        string
	Description string
}

func (e *ProviderError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("%s: %s (%s)", ErrProviderDenied, e.Description, e.Code)
	}
	return fmt.Sprintf("%s (%s)", ErrProviderDenied, e.Code)
}

func (e *ProviderError) Unwrap() error { return ErrProviderDenied }

// TransitionError reports an operation rejected before any I/O.
type TransitionError struct {
	Op    string
	State string
	Err   error
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s while %s: %v", e.Op, e.State, e.Err)
}

func (e *TransitionError) Unwrap() error { return e.Err }
