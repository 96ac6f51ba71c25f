package core

import "encoding/json"

// CloneMap deep copies a loosely typed map. Nested maps and slices produced by
// encoding/json are copied; other values are shared (they are immutable
// scalars in practice). A nil input yields an empty map.
func CloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneAny(v)
	}
	return out
}

// CloneStrings copies a string slice. A nil input yields an empty slice.
func CloneStrings(s []string) []string {
	out := make([]string, len(s))
	copy(out, s)
	return out
}

func cloneAny(v any) any {
	switch x := v.(type) {
	case map[string]any:
		return CloneMap(x)
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = cloneAny(item)
		}
		return out
	case []string:
		return CloneStrings(x)
	case map[string]string:
		out := make(map[string]string, len(x))
		for k, s := range x {
			out[k] = s
		}
		return out
	case Value:
		return x.Clone()
	case Values:
		return x.Clone()
	default:
		return v
	}
}

// NormalizeMap returns m in the shape encoding/json decodes it to: numbers
// become float64, typed slices and maps become []any and map[string]any.
// Packages built in process and packages read from the wire then carry equal
// values. Values that cannot be encoded yield an error.
func NormalizeMap(m map[string]any) (map[string]any, error) {
	if len(m) == 0 {
		return map[string]any{}, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	out := make(map[string]any, len(m))
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
