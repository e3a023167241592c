package resolve_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/socialinbox/inbox-cli/internal/api"
	"github.com/socialinbox/inbox-cli/internal/resolve"
)

func TestFuzzyMatch(t *testing.T) {
	items := []resolve.Named{
		{Key: "1", Name: "VIP"},
		{Key: "2", Name: "Refund request"},
		{Key: "3", Name: "Wholesale"},
	}

	tests := []struct {
		name    string
		query   string
		want    string
		wantErr bool
	}{
		{"exact key", "2", "2", false},
		{"exact name ignores case", "vip", "1", false},
		{"fuzzy", "refnd", "2", false},
		{"no match", "zzz", "", true},
		{"empty query", "  ", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolve.FuzzyMatch(tt.query, items)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFuzzyMatch_EmptyItems(t *testing.T) {
	if _, err := resolve.FuzzyMatch("x", nil); !errors.Is(err, resolve.ErrEmptyItems) {
		t.Fatalf("expected ErrEmptyItems, got %v", err)
	}
}

func TestFuzzyMatch_Ambiguous(t *testing.T) {
	items := []resolve.Named{
		{Key: "1", Name: "Support US"},
		{Key: "2", Name: "Support EU"},
	}
	_, err := resolve.FuzzyMatch("support", items)
	var amb *resolve.AmbiguousError
	if !errors.As(err, &amb) {
		t.Fatalf("expected AmbiguousError, got %v", err)
	}
	msg := amb.Error()
	if !strings.Contains(msg, `ambiguous match for "support"`) || !strings.Contains(msg, "1: Support US") {
		t.Errorf("unexpected message %q", msg)
	}
}

func TestFuzzyMatchAll(t *testing.T) {
	items := []resolve.Named{{Key: "a", Name: "alpha"}, {Key: "b", Name: "alps"}, {Key: "c", Name: "beta"}}
	got := resolve.FuzzyMatchAll("al", items, 1)
	if len(got) != 1 {
		t.Fatalf("expected limit to cap matches, got %d", len(got))
	}
	if resolve.FuzzyMatchAll("", items, 3) != nil {
		t.Error("empty query should yield nil")
	}
}

func TestTag(t *testing.T) {
	catalogue := []api.Tag{
		{ID: 4, Name: "VIP", PageID: "p1"},
		{ID: 12, Name: "Follow up", PageID: "p1"},
	}

	for _, q := range []string{"12", "#12", "follow up", "folup"} {
		tag, err := resolve.Tag(q, catalogue)
		if err != nil {
			t.Fatalf("Tag(%q): %v", q, err)
		}
		if tag.ID != 12 {
			t.Errorf("Tag(%q) = %d, want 12", q, tag.ID)
		}
	}
	if _, err := resolve.Tag("99", catalogue); err == nil {
		t.Error("unknown id should not resolve")
	}
}

func TestPage(t *testing.T) {
	pages := []api.Page{
		{ID: "1001", Name: "Coffee Shop", Username: "coffeeshop"},
		{ID: "1002", Name: "Tea House"},
	}

	tests := map[string]api.FlexString{
		"1002":        "1002",
		"@coffeeshop": "1001",
		"tea house":   "1002",
		"cofe":        "1001",
	}
	for q, want := range tests {
		p, err := resolve.Page(q, pages)
		if err != nil {
			t.Fatalf("Page(%q): %v", q, err)
		}
		if p.ID != want {
			t.Errorf("Page(%q) = %s, want %s", q, p.ID, want)
		}
	}
}
