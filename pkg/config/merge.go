package config

// Merge deep-merges src into dst and returns dst.
//
// Maps merge key by key, lists are appended and any other value in src
// replaces the value in dst. src is never modified; values taken from it are
// copied so later merges cannot alias the source tree.
func Merge(dst, src map[string]any) map[string]any {
	if dst == nil {
		dst = map[string]any{}
	}
	for k, sv := range src {
		dv, exists := dst[k]
		if !exists {
			dst[k] = deepCopy(sv)
			continue
		}

		switch s := sv.(type) {
		case map[string]any:
			if d, ok := dv.(map[string]any); ok {
				dst[k] = Merge(d, s)
				continue
			}
		case []any:
			if d, ok := dv.([]any); ok {
				merged := make([]any, 0, len(d)+len(s))
				merged = append(merged, d...)
				for _, item := range s {
					merged = append(merged, deepCopy(item))
				}
				dst[k] = merged
				continue
			}
		}
		dst[k] = deepCopy(sv)
	}
	return dst
}

func deepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = deepCopy(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = deepCopy(val)
		}
		return out
	default:
		return v
	}
}
