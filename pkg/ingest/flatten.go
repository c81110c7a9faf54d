package ingest

import "encoding/json"

// flatten recursively collapses nested objects into underscore-joined
// scalar keys, per spec.md §4.1 step 5. Once maxDepth is exceeded, the
// remaining subtree is serialized as a JSON string instead of being
// flattened further. Arrays are treated as scalars (JSON-encoded),
// since the schema model has no list type.
func flatten(value map[string]any, maxDepth int) map[string]any {
	out := make(map[string]any, len(value))
	for k, v := range value {
		flattenInto(out, k, v, 1, maxDepth)
	}
	return out
}

func flattenInto(out map[string]any, key string, value any, depth, maxDepth int) {
	if arr, isArray := value.([]any); isArray {
		out[key] = mustJSONString(arr)
		return
	}
	m, ok := value.(map[string]any)
	if !ok {
		out[key] = value
		return
	}
	if len(m) == 0 {
		return
	}
	if depth > maxDepth {
		out[key] = mustJSONString(m)
		return
	}
	for k, v := range m {
		flattenInto(out, key+"_"+k, v, depth+1, maxDepth)
	}
}

func mustJSONString(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
