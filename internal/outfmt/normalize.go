package outfmt

import (
	"encoding/json"
	"reflect"
)

// wrapList puts list results under an "items" key so every JSON document
// is an object and `jq .items[]` works for empty lists too.
func wrapList(v any) any {
	switch v.(type) {
	case nil, []byte, json.RawMessage:
		return v
	}

	rv := reflect.Indirect(reflect.ValueOf(v))
	if !rv.IsValid() {
		return v
	}
	if k := rv.Kind(); k != reflect.Slice && k != reflect.Array {
		return v
	}
	if rv.Type().Elem().Kind() == reflect.Uint8 {
		return v
	}
	if rv.Kind() == reflect.Slice && rv.IsNil() {
		return map[string]any{"items": []any{}}
	}
	return map[string]any{"items": rv.Interface()}
}
