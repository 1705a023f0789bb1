package access

import (
	"encoding/json"
	"strings"
)

// NormalizePermissions decodes a loosely typed permission payload into a list of
// access keys. It accepts []string, []any, a JSON-encoded string array (as string
// or bytes) and nil. Entries that are not non-empty strings are dropped, and input
// that cannot be parsed yields an empty list.
func NormalizePermissions(v any) []string {
	switch val := v.(type) {
	case nil:
		return []string{}
	case []string:
		return clean(val)
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return clean(out)
	case string:
		return decodeJSON([]byte(val))
	case []byte:
		return decodeJSON(val)
	case json.RawMessage:
		return decodeJSON(val)
	default:
		return []string{}
	}
}

func decodeJSON(raw []byte) []string {
	if len(strings.TrimSpace(string(raw))) == 0 {
		return []string{}
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return []string{}
	}
	switch inner := decoded.(type) {
	case []any:
		return NormalizePermissions(inner)
	case string:
		// double-encoded payloads show up from older writers
		return decodeJSON([]byte(inner))
	default:
		return []string{}
	}
}

func clean(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		out = append(out, s)
	}
	return out
}
