package outfmt

import (
	"encoding/json"
	"testing"
)

func TestWrapList(t *testing.T) {
	var nilSlice []string
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"nil slice", nilSlice, `{"items":[]}`},
		{"empty slice", []string{}, `{"items":[]}`},
		{"populated", []int{1, 2}, `{"items":[1,2]}`},
		{"pointer to slice", &[]string{"a"}, `{"items":["a"]}`},
		{"map untouched", map[string]int{"a": 1}, `{"a":1}`},
		{"raw message untouched", json.RawMessage(`[1]`), `[1]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(wrapList(tt.in))
			if err != nil {
				t.Fatal(err)
			}
			if string(data) != tt.want {
				t.Errorf("got %s, want %s", data, tt.want)
			}
		})
	}

	if wrapList(nil) != nil {
		t.Error("nil input should stay nil")
	}
}
