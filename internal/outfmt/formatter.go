package outfmt

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
)

// Formatter renders a list result: a JSON document or an aligned table.
type Formatter struct {
	opts   Options
	out    io.Writer
	errOut io.Writer
	table  *tabwriter.Writer
}

func NewFormatter(ctx context.Context, out, errOut io.Writer) *Formatter {
	return &Formatter{opts: OptionsFrom(ctx), out: out, errOut: errOut}
}

// Output writes data in JSON modes and does nothing in text mode, where
// the caller renders its own table.
func (f *Formatter) Output(data any) error {
	if !f.opts.JSON() {
		return nil
	}
	return f.opts.Write(f.out, data)
}

// StartTable writes the header row. It returns false in JSON modes, where
// no table is drawn.
func (f *Formatter) StartTable(headers ...string) bool {
	if f.opts.JSON() {
		return false
	}
	f.table = tabwriter.NewWriter(f.out, 0, 4, 2, ' ', 0)
	f.Row(headers...)
	return true
}

func (f *Formatter) Row(columns ...string) {
	if f.table == nil {
		f.table = tabwriter.NewWriter(f.out, 0, 4, 2, ' ', 0)
	}
	_, _ = fmt.Fprintln(f.table, strings.Join(columns, "\t"))
}

func (f *Formatter) EndTable() error {
	if f.table == nil {
		return nil
	}
	return f.table.Flush()
}

// Empty reports an empty result on stderr so stdout stays parseable.
func (f *Formatter) Empty(message string) {
	_, _ = fmt.Fprintln(f.errOut, message)
}
