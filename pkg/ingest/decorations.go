package ingest

import (
	"sort"
	"strings"
)

// decorate applies the per-stream decorations of spec.md §4.1 step 8.
// _original and _record_id are gated together on storeOriginal; _all_values
// is gated independently on storeAllValues. recordID is pre-generated by
// the caller so every record in a batch gets a distinct id even when
// decorations run concurrently.
func decorate(value map[string]any, original string, storeOriginal, storeAllValues bool, recordID string, allValuesMaxLen int) map[string]any {
	if storeOriginal {
		value["_original"] = original
		value["_record_id"] = recordID
	}
	if storeAllValues {
		value["_all_values"] = allValues(value, allValuesMaxLen)
	}
	return value
}

// allValues space-joins every projected value excluding the four
// reserved columns, dropping values longer than maxLen unless maxLen is
// 0 (unlimited).
func allValues(value map[string]any, maxLen int) string {
	keys := make([]string, 0, len(value))
	for k := range value {
		if reservedColumns[k] {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var parts []string
	for _, k := range keys {
		s := toStringValue(value[k])
		if maxLen > 0 && len(s) > maxLen {
			continue
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, " ")
}
