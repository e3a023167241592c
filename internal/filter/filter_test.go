package filter

import (
	"testing"
)

func TestApply_EmptyExpression(t *testing.T) {
	data := map[string]any{"tag_name": "vip"}
	result, err := Apply(data, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.(map[string]any)["tag_name"] != "vip" {
		t.Error("empty expression should return data unchanged")
	}
}

func TestApply_SelectField(t *testing.T) {
	data := map[string]any{"tag_name": "vip", "tag_id": 3}
	result, err := Apply(data, ".tag_name")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "vip" {
		t.Errorf("expected 'vip', got %v", result)
	}
}

func TestApply_FilterArray(t *testing.T) {
	data := []any{
		map[string]any{"status": "open"},
		map[string]any{"status": "closed"},
	}
	result, err := Apply(data, `.[] | select(.status == "open")`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m := result.(map[string]any)
	if m["status"] != "open" {
		t.Errorf("expected status 'open', got %v", m["status"])
	}
}

func TestApply_InvalidExpression(t *testing.T) {
	_, err := Apply(map[string]any{"x": 1}, "invalid[[[")
	if err == nil {
		t.Error("expected error for invalid expression")
	}
}

func TestApply_ShellEscapedNotEqual(t *testing.T) {
	data := []any{
		map[string]any{"assignee_id": nil},
		map[string]any{"assignee_id": "u1"},
	}
	// Expression as it arrives from zsh: select(.assignee_id \!= null)
	result, err := Apply(data, `.[] | select(.assignee_id \!= null)`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.(map[string]any)["assignee_id"] != "u1" {
		t.Errorf("unexpected result %v", result)
	}
}

func TestNormalizeExpression(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{`select(.x \!= null)`, `select(.x != null)`},
		{`select(.x != null)`, `select(.x != null)`},
		{`.[] | select(.a \!= .b)`, `.[] | select(.a != .b)`},
		{`.items[].tag_name`, `.items[].tag_name`},
	}
	for _, tt := range tests {
		if got := NormalizeExpression(tt.input); got != tt.expected {
			t.Errorf("NormalizeExpression(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestApplyFromJSON(t *testing.T) {
	result, err := ApplyFromJSON([]byte(`{"pages_synced": 2, "pages_total": 3}`), ".pages_total - .pages_synced")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != 1 {
		t.Errorf("expected 1, got %v (%T)", result, result)
	}

	if _, err := ApplyFromJSON([]byte(`{invalid}`), ".x"); err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestApply_MultipleResultsCollapseToSlice(t *testing.T) {
	data := map[string]any{"tags": []any{1, 2, 3}}
	result, err := Apply(data, ".tags[]")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	values, ok := result.([]any)
	if !ok || len(values) != 3 {
		t.Fatalf("expected three results, got %v", result)
	}
}

func TestApply_RootArrayQueryFallsBackToItems(t *testing.T) {
	data := map[string]any{
		"items": []any{
			map[string]any{"customer": map[string]any{"name": "Ana"}},
			map[string]any{"customer": map[string]any{"name": "Bo"}},
		},
		"meta": map[string]any{"total": 2},
	}

	result, err := Apply(data, `.[].customer.name`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	values, ok := result.([]any)
	if !ok || len(values) != 2 {
		t.Fatalf("expected 2 results, got %T (%v)", result, result)
	}
	if values[0] != "Ana" || values[1] != "Bo" {
		t.Fatalf("unexpected values: %v", values)
	}
}

func TestApply_RootArrayQueryWithoutItemsStillErrors(t *testing.T) {
	data := map[string]any{
		"payload": []any{map[string]any{"id": 1}},
	}
	if _, err := Apply(data, `.[].id`); err == nil {
		t.Fatal("expected error for root-array query on non-items object")
	}
}

func TestCompileReuse(t *testing.T) {
	p, err := Compile(`.unread_count \!= 0`)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	for in, want := range map[float64]bool{0: false, 4: true} {
		got, err := p.Run(map[string]any{"unread_count": in})
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		if got != want {
			t.Errorf("unread_count %v: got %v, want %v", in, got, want)
		}
	}
}

func TestIteratesRoot(t *testing.T) {
	for expr, want := range map[string]bool{
		".[] | .id":      true,
		"[.[].id]":       true,
		"(.[] | .id)":    true,
		" .[]":           true,
		".items[] | .id": false,
		".id":            false,
	} {
		if got := iteratesRoot(expr); got != want {
			t.Errorf("iteratesRoot(%q) = %v, want %v", expr, got, want)
		}
	}
}
