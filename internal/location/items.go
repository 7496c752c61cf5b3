package location

import (
	"encoding/json"
	"sort"

	"github.com/rotisserie/eris"
)

// itemKeys are the envelope keys searched, in order, for the item list.
var itemKeys = []string{"data", "items", "results", "locations"}

// ExtractItems decodes a provider response body and returns its list of
// item objects. The list may be the top-level array, sit under one of the
// usual envelope keys, or be the only array inside that envelope. An empty
// list is not an error.
func ExtractItems(body []byte) ([]map[string]any, error) {
	var data any
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, eris.Wrap(err, "location: decode response")
	}
	list, ok := findList(data)
	if !ok {
		return nil, eris.New("location: response has no item list")
	}

	out := make([]map[string]any, 0, len(list))
	for _, it := range list {
		if m, ok := it.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out, nil
}

func findList(data any) ([]any, bool) {
	switch v := data.(type) {
	case []any:
		return v, true
	case map[string]any:
		for _, k := range itemKeys {
			inner, ok := v[k]
			if !ok || inner == nil {
				continue
			}
			if l, ok := inner.([]any); ok {
				return l, true
			}
			if m, ok := inner.(map[string]any); ok {
				if l, ok := firstList(m); ok {
					return l, true
				}
			}
		}
		return firstList(v)
	}
	return nil, false
}

// firstList returns the list under the alphabetically first key holding one.
func firstList(m map[string]any) ([]any, bool) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if l, ok := m[k].([]any); ok {
			return l, true
		}
	}
	return nil, false
}
