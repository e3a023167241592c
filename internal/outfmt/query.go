package outfmt

import (
	"encoding/json"

	"github.com/socialinbox/inbox-cli/internal/filter"
)

// ApplyQuery wraps slices as {"items": [...]} and runs the jq query over
// the result. An empty query returns the wrapped value.
func ApplyQuery(v any, query string) (any, error) {
	wrapped := wrapList(v)
	if query == "" {
		return wrapped, nil
	}
	data, err := json.Marshal(wrapped)
	if err != nil {
		return nil, err
	}
	return filter.ApplyFromJSON(data, query)
}
