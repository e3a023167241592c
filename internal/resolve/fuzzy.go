// Package resolve turns what a user typed (an id or a rough name) into a
// tag or page.
package resolve

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/sahilm/fuzzy"

	"github.com/socialinbox/inbox-cli/internal/api"
)

// Named is any resource with an identifier and display name.
type Named struct {
	Key  string
	Name string
}

// Match is a fuzzy match result with score.
type Match struct {
	Key   string
	Name  string
	Score int
}

var (
	ErrEmptyQuery = errors.New("empty search query")
	ErrEmptyItems = errors.New("no items to match against")
)

// AmbiguousError lists the best candidates when the top scores tie.
type AmbiguousError struct {
	Query   string
	Matches []Match
}

func (e *AmbiguousError) Error() string {
	var b strings.Builder
	_, _ = fmt.Fprintf(&b, "ambiguous match for %q", e.Query)
	if len(e.Matches) > 0 {
		b.WriteString(", candidates:")
		for _, m := range e.Matches {
			_, _ = fmt.Fprintf(&b, "\n  %s: %s", m.Key, m.Name)
		}
	}
	return b.String()
}

type lowerNames []Named

func (s lowerNames) String(i int) string { return strings.ToLower(s[i].Name) }
func (s lowerNames) Len() int            { return len(s) }

// FuzzyMatch returns the key of the item best matching query. An exact
// key or case-insensitive name wins outright; otherwise a unique best fuzzy
// score is required.
func FuzzyMatch(query string, items []Named) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", ErrEmptyQuery
	}
	if len(items) == 0 {
		return "", ErrEmptyItems
	}

	for _, item := range items {
		if item.Key == query {
			return item.Key, nil
		}
	}
	for _, item := range items {
		if strings.EqualFold(item.Name, query) {
			return item.Key, nil
		}
	}

	results := fuzzy.FindFrom(strings.ToLower(query), lowerNames(items))
	if len(results) == 0 {
		return "", fmt.Errorf("no match found for %q", query)
	}
	if len(results) > 1 && results[0].Score == results[1].Score {
		return "", &AmbiguousError{Query: query, Matches: buildMatches(items, results, 5)}
	}
	return items[results[0].Index].Key, nil
}

// FuzzyMatchAll returns up to limit matches, best first.
func FuzzyMatchAll(query string, items []Named, limit int) []Match {
	query = strings.TrimSpace(query)
	if query == "" || len(items) == 0 || limit <= 0 {
		return nil
	}
	return buildMatches(items, fuzzy.FindFrom(strings.ToLower(query), lowerNames(items)), limit)
}

func buildMatches(items []Named, results fuzzy.Matches, limit int) []Match {
	if len(results) == 0 || limit <= 0 {
		return nil
	}
	if len(results) > limit {
		results = results[:limit]
	}
	matches := make([]Match, len(results))
	for i, r := range results {
		matches[i] = Match{Key: items[r.Index].Key, Name: items[r.Index].Name, Score: r.Score}
	}
	return matches
}

// Tag resolves a tag from a page catalogue by id ("12", "#12") or name.
func Tag(query string, catalogue []api.Tag) (api.Tag, error) {
	items := make([]Named, len(catalogue))
	for i, t := range catalogue {
		items[i] = Named{Key: strconv.Itoa(int(t.ID)), Name: t.Name}
	}
	key, err := FuzzyMatch(strings.TrimPrefix(strings.TrimSpace(query), "#"), items)
	if err != nil {
		return api.Tag{}, err
	}
	for _, t := range catalogue {
		if strconv.Itoa(int(t.ID)) == key {
			return t, nil
		}
	}
	return api.Tag{}, fmt.Errorf("no match found for %q", query)
}

// Page resolves a linked page by id, name or username.
func Page(query string, pages []api.Page) (api.Page, error) {
	q := strings.TrimPrefix(strings.TrimSpace(query), "@")
	for _, p := range pages {
		if p.Username != "" && strings.EqualFold(p.Username, q) {
			return p, nil
		}
	}
	items := make([]Named, len(pages))
	for i, p := range pages {
		items[i] = Named{Key: string(p.ID), Name: p.Name}
	}
	key, err := FuzzyMatch(q, items)
	if err != nil {
		return api.Page{}, err
	}
	for _, p := range pages {
		if string(p.ID) == key {
			return p, nil
		}
	}
	return api.Page{}, fmt.Errorf("no match found for %q", query)
}
