package ingest

import (
	"sort"
	"strconv"
	"strings"
)

// ExtraFieldsColumn is the fixed catch-all column name spec.md §4.1
// step 7 describes for fields a User-Defined Schema doesn't recognize.
const ExtraFieldsColumn = "_extra"

// reservedColumns are never folded into the catch-all, and never count
// toward a UDS's recognized-field list either.
var reservedColumns = map[string]bool{
	"_timestamp":  true,
	"_id":         true,
	"_original":   true,
	"_all_values": true,
}

// projectUDS splits value into its UDS-recognized top-level fields plus
// a single catch-all column holding everything else as compact JSON,
// per spec.md §4.1 step 7. A nil/empty uds list is a no-op.
func projectUDS(value map[string]any, uds []string) map[string]any {
	if len(uds) == 0 {
		return value
	}

	recognized := make(map[string]bool, len(uds))
	for _, f := range uds {
		recognized[f] = true
	}

	out := make(map[string]any, len(uds)+2)
	extra := make(map[string]any)
	for k, v := range value {
		switch {
		case reservedColumns[k]:
			out[k] = v
		case recognized[k]:
			out[k] = v
		default:
			extra[k] = v
		}
	}
	if len(extra) > 0 {
		out[ExtraFieldsColumn] = mustCompactJSON(extra)
	}
	return out
}

func mustCompactJSON(m map[string]any) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Quote(k))
		b.WriteByte(':')
		b.WriteString(strconv.Quote(toStringValue(m[k])))
	}
	b.WriteByte('}')
	return b.String()
}

func toStringValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	default:
		return mustJSONString(t)
	}
}
