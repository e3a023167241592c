// Package iocontext provides injectable I/O streams via context for testability.
package iocontext

import (
	"context"
	"io"
	"os"
)

// IO holds the input/output streams for commands.
type IO struct {
	Out    io.Writer // stdout
	ErrOut io.Writer // stderr
	In     io.Reader // stdin
}

// DefaultIO returns the standard IO streams.
func DefaultIO() *IO {
	return &IO{
		Out:    os.Stdout,
		ErrOut: os.Stderr,
		In:     os.Stdin,
	}
}

// Quiet returns a copy with stderr discarded, and stdout too when
// discardOut is set. Used by --quiet and by streaming commands in JSON
// mode where status lines would corrupt the stream.
func (s *IO) Quiet(discardOut bool) *IO {
	cp := *s
	cp.ErrOut = io.Discard
	if discardOut {
		cp.Out = io.Discard
	}
	return &cp
}

type ioKey struct{}

// WithIO adds IO streams to a context.
func WithIO(ctx context.Context, streams *IO) context.Context {
	return context.WithValue(ctx, ioKey{}, streams)
}

// GetIO retrieves IO streams from context, defaulting to standard streams.
func GetIO(ctx context.Context) *IO {
	if streams, ok := ctx.Value(ioKey{}).(*IO); ok && streams != nil {
		return streams
	}
	return DefaultIO()
}
