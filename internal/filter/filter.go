// Package filter runs jq expressions over command output.
package filter

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/itchyny/gojq"
)

// NormalizeExpression undoes shell escaping of "!". Zsh rewrites ! as \!
// even inside single quotes, which breaks != in select().
func NormalizeExpression(expr string) string {
	return strings.ReplaceAll(expr, `\!`, `!`)
}

// Program is a parsed jq expression.
type Program struct {
	src   string
	query *gojq.Query
}

// Compile parses expr after normalizing shell escapes.
func Compile(expr string) (*Program, error) {
	src := NormalizeExpression(expr)
	q, err := gojq.Parse(src)
	if err != nil {
		return nil, fmt.Errorf("invalid filter expression: %w", err)
	}
	return &Program{src: src, query: q}, nil
}

// Run evaluates the program. A single result is returned as is, several
// as a slice.
//
// List output is wrapped as {"items": [...]}. A program written against a
// bare array (".[] | .name") that fails on the wrapper is run again on the
// items.
func (p *Program) Run(data any) (any, error) {
	results, err := p.collect(data)
	if err != nil {
		items, ok := wrappedItems(data)
		if !ok || !iteratesRoot(p.src) {
			return nil, err
		}
		retry, retryErr := p.collect(items)
		if retryErr != nil {
			return nil, err
		}
		results = retry
	}
	if len(results) == 1 {
		return results[0], nil
	}
	return results, nil
}

func (p *Program) collect(data any) ([]any, error) {
	var out []any
	iter := p.query.Run(data)
	for v, ok := iter.Next(); ok; v, ok = iter.Next() {
		if err, isErr := v.(error); isErr {
			return nil, fmt.Errorf("filter error: %w", err)
		}
		out = append(out, v)
	}
	return out, nil
}

func wrappedItems(data any) ([]any, bool) {
	m, ok := data.(map[string]any)
	if !ok {
		return nil, false
	}
	items, ok := m["items"].([]any)
	return items, ok
}

func iteratesRoot(src string) bool {
	src = strings.TrimLeft(strings.TrimSpace(src), "[(")
	return strings.HasPrefix(src, ".[]")
}

// Apply compiles and runs expression. An empty expression returns data.
func Apply(data any, expression string) (any, error) {
	if expression == "" {
		return data, nil
	}
	p, err := Compile(expression)
	if err != nil {
		return nil, err
	}
	return p.Run(data)
}

// ApplyFromJSON decodes jsonData and applies expression to it.
func ApplyFromJSON(jsonData []byte, expression string) (any, error) {
	var data any
	if err := json.Unmarshal(jsonData, &data); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	return Apply(data, expression)
}
