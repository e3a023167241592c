package validation

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Input length limits
const (
	MaxIDLength      = 128
	MaxTagNameLength = 100
	MaxURLLength     = 2048
	MaxPagesInFilter = 500
)

// ParsePositiveInt parses a string as a positive integer ID.
// A leading '#' is tolerated so "#12" and "12" mean the same tag.
func ParsePositiveInt(s string, fieldName string) (int, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "#")
	id64, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", fieldName, err)
	}
	if id64 <= 0 {
		return 0, fmt.Errorf("invalid %s: must be a positive integer", fieldName)
	}
	return int(id64), nil
}

// ValidateID checks an opaque server identifier (conversation or page id).
// IDs are path segments, so whitespace and slashes are rejected.
func ValidateID(id, fieldName string) error {
	if id == "" {
		return fmt.Errorf("%s is required", fieldName)
	}
	if utf8.RuneCountInString(id) > MaxIDLength {
		return fmt.Errorf("%s exceeds maximum length of %d characters", fieldName, MaxIDLength)
	}
	for _, r := range id {
		if r == '/' || r == '\\' || unicode.IsSpace(r) || unicode.IsControl(r) {
			return fmt.Errorf("invalid %s %q: contains %q", fieldName, id, r)
		}
	}
	return nil
}

// ValidateTagQuery checks a tag name typed on the command line.
func ValidateTagQuery(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("tag name cannot be empty")
	}
	if n := utf8.RuneCountInString(name); n > MaxTagNameLength {
		return fmt.Errorf("tag name exceeds maximum length of %d characters (got %d)", MaxTagNameLength, n)
	}
	return nil
}

// ValidatePageIDs checks a merged-pages filter before it is sent.
func ValidatePageIDs(ids []string) error {
	if len(ids) > MaxPagesInFilter {
		return fmt.Errorf("filter lists %d pages, maximum is %d", len(ids), MaxPagesInFilter)
	}
	for _, id := range ids {
		if err := ValidateID(id, "page ID"); err != nil {
			return err
		}
	}
	return nil
}
