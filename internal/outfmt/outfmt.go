// Package outfmt renders command results as text tables, JSON or JSON lines.
package outfmt

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
)

// Mode is the rendition selected with --output.
type Mode int

const (
	Text Mode = iota
	JSON
	// JSONL writes one compact document per line. Streaming commands emit
	// one line per event.
	JSONL
)

var modeNames = map[string]Mode{
	"":       Text,
	"text":   Text,
	"json":   JSON,
	"jsonl":  JSONL,
	"ndjson": JSONL,
}

// Parse maps an --output value to a Mode. Names are case sensitive.
func Parse(s string) (Mode, error) {
	if m, ok := modeNames[s]; ok {
		return m, nil
	}
	return Text, fmt.Errorf("invalid output format: %q (use 'text', 'json', 'jsonl' or 'ndjson')", s)
}

func (m Mode) String() string {
	switch m {
	case JSON:
		return "json"
	case JSONL:
		return "jsonl"
	}
	return "text"
}

// Options is the output configuration a command runs with.
type Options struct {
	Mode    Mode
	Compact bool
	// Query is a jq program applied to JSON output.
	Query string
}

type optionsKey struct{}

// WithOptions stores o on the context.
func WithOptions(ctx context.Context, o Options) context.Context {
	return context.WithValue(ctx, optionsKey{}, o)
}

// OptionsFrom returns the options stored on ctx, or text output.
func OptionsFrom(ctx context.Context) Options {
	o, _ := ctx.Value(optionsKey{}).(Options)
	return o
}

// JSON reports whether any JSON rendition was selected.
func (o Options) JSON() bool { return o.Mode == JSON || o.Mode == JSONL }

// SingleLine reports whether documents are written without indentation.
func (o Options) SingleLine() bool { return o.Compact || o.Mode == JSONL }

// Write encodes v as JSON after wrapping lists and applying the query.
func (o Options) Write(w io.Writer, v any) error {
	res, err := ApplyQuery(v, o.Query)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	if !o.SingleLine() {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(res)
}

// IsJSON reports whether the context asks for any JSON rendition.
func IsJSON(ctx context.Context) bool { return OptionsFrom(ctx).JSON() }

// WriteJSON writes v as indented JSON without a query.
func WriteJSON(w io.Writer, v any) error {
	return Options{Mode: JSON}.Write(w, v)
}
