package tagcache

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Backend.Load when a key has no value.
var ErrNotFound = errors.New("tagcache: not found")

// ErrConflict is returned when a compare-and-set could not settle after
// repeated concurrent modification.
var ErrConflict = errors.New("tagcache: concurrent modification")

// UpdateFunc computes the next stored value from the current one. Returning
// a nil slice leaves the stored value untouched.
type UpdateFunc func(current []byte, found bool) ([]byte, error)

// Backend is the byte store behind a Cache. Keys are page ids; scoping by
// server and company is the backend's concern.
type Backend interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Store(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
	// Update applies fn atomically with respect to other Update calls on the
	// same key.
	Update(ctx context.Context, key string, fn UpdateFunc) error
	// Clear removes every entry this backend kind owns.
	Clear(ctx context.Context) error
}
