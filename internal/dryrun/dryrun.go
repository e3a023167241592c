// Package dryrun carries the --dry-run switch through a context and
// renders what a mutating command would have sent.
package dryrun

import (
	"context"
	"fmt"
	"io"
	"sort"
)

type contextKey struct{}

// WithDryRun returns a context with dry-run mode set.
func WithDryRun(ctx context.Context, enabled bool) context.Context {
	return context.WithValue(ctx, contextKey{}, enabled)
}

// IsEnabled reports whether dry-run mode is on.
func IsEnabled(ctx context.Context) bool {
	v, _ := ctx.Value(contextKey{}).(bool)
	return v
}

// Change is one request the command would send.
type Change struct {
	Method string `json:"method"`
	Path   string `json:"path"`
	Detail string `json:"detail,omitempty"`
}

// Preview describes a mutation that was not performed.
type Preview struct {
	Action   string            `json:"action"`
	Target   string            `json:"target"`
	Changes  []Change          `json:"changes"`
	Details  map[string]string `json:"details,omitempty"`
	Warnings []string          `json:"warnings,omitempty"`
	DryRun   bool              `json:"dry_run"`
}

// New starts a preview for action on target.
func New(action, target string) *Preview {
	return &Preview{Action: action, Target: target, Changes: []Change{}, DryRun: true}
}

// Add records one request.
func (p *Preview) Add(method, path, detail string) *Preview {
	p.Changes = append(p.Changes, Change{Method: method, Path: path, Detail: detail})
	return p
}

// Set records a key/value shown above the request list.
func (p *Preview) Set(key, value string) *Preview {
	if p.Details == nil {
		p.Details = make(map[string]string)
	}
	p.Details[key] = value
	return p
}

// Warn records a warning.
func (p *Preview) Warn(format string, args ...any) *Preview {
	p.Warnings = append(p.Warnings, fmt.Sprintf(format, args...))
	return p
}

// Write renders the preview as text.
func (p *Preview) Write(w io.Writer) {
	_, _ = fmt.Fprintf(w, "[dry-run] Would %s %s\n", p.Action, p.Target)

	keys := make([]string, 0, len(p.Details))
	for k := range p.Details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		_, _ = fmt.Fprintf(w, "  %s: %s\n", k, p.Details[k])
	}

	for _, c := range p.Changes {
		if c.Detail != "" {
			_, _ = fmt.Fprintf(w, "  %s %s  (%s)\n", c.Method, c.Path, c.Detail)
			continue
		}
		_, _ = fmt.Fprintf(w, "  %s %s\n", c.Method, c.Path)
	}
	for _, warning := range p.Warnings {
		_, _ = fmt.Fprintf(w, "  ! %s\n", warning)
	}
	_, _ = fmt.Fprintln(w, "No changes made.")
}
