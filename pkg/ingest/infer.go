package ingest

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/cuemby/ingestord/pkg/types"
)

// inferFields derives a schema field for each top-level key of a
// flattened, projected record, feeding the fast/slow path comparison
// check_for_schema performs (spec.md §4.2).
func inferFields(value map[string]any) []types.Field {
	fields := make([]types.Field, 0, len(value))
	for k, v := range value {
		fields = append(fields, types.Field{Name: k, Type: inferType(v), Nullable: v == nil})
	}
	return fields
}

func inferType(v any) types.FieldType {
	switch t := v.(type) {
	case nil:
		return types.FieldTypeUtf8
	case bool:
		return types.FieldTypeBoolean
	case string:
		return types.FieldTypeUtf8
	case json.Number:
		return numericFieldType(string(t))
	case float64:
		return types.FieldTypeFloat64
	case int, int64:
		return types.FieldTypeInt64
	default:
		return types.FieldTypeUtf8
	}
}

func numericFieldType(s string) types.FieldType {
	if strings.ContainsAny(s, ".eE") {
		return types.FieldTypeFloat64
	}
	return types.FieldTypeInt64
}

// unionFields merges the field sets inferred across every record in a
// batch destined for the same stream, widening duplicate names with
// Widens below (numeric pairs become Float64 if either is a float, else
// Int64); this is coarser than the schema evolver's own Merge rule.
func unionFields(batches [][]types.Field) []types.Field {
	byName := map[string]types.Field{}
	order := []string{}
	for _, fields := range batches {
		for _, f := range fields {
			existing, ok := byName[f.Name]
			if !ok {
				byName[f.Name] = f
				order = append(order, f.Name)
				continue
			}
			if widened, ok := Widens(existing.Type, f.Type); ok {
				existing.Type = widened
				byName[f.Name] = existing
			}
		}
	}
	out := make([]types.Field, 0, len(order))
	for _, name := range order {
		out = append(out, byName[name])
	}
	return out
}

// Widens reports the wider of a and b when one widens into the other,
// falling back to a when neither does (the evolver's Merge decides the
// real schema-version consequences; this is only used to pick a
// representative type for the batch-level inference pass).
func Widens(a, b types.FieldType) (types.FieldType, bool) {
	if a == b {
		return a, true
	}
	if isNumeric(a) && isNumeric(b) {
		if isFloat(a) || isFloat(b) {
			return types.FieldTypeFloat64, true
		}
		return types.FieldTypeInt64, true
	}
	return a, false
}

func isNumeric(t types.FieldType) bool {
	switch t {
	case types.FieldTypeInt8, types.FieldTypeInt16, types.FieldTypeInt32, types.FieldTypeInt64,
		types.FieldTypeUInt8, types.FieldTypeUInt16, types.FieldTypeUInt32, types.FieldTypeUInt64,
		types.FieldTypeFloat16, types.FieldTypeFloat32, types.FieldTypeFloat64:
		return true
	default:
		return false
	}
}

func isFloat(t types.FieldType) bool {
	switch t {
	case types.FieldTypeFloat16, types.FieldTypeFloat32, types.FieldTypeFloat64:
		return true
	default:
		return false
	}
}

// coerceZoCast rewrites value in place so any field the cached schema
// has marked ZoCast carries the cached type's JSON-compatible rendering
// instead of its observed one, per spec.md §4.2's "coerce at write time".
func coerceZoCast(value map[string]any, fields []types.Field) {
	for _, f := range fields {
		if !f.ZoCast {
			continue
		}
		v, ok := value[f.Name]
		if !ok {
			continue
		}
		value[f.Name] = coerceValue(v, f.Type)
	}
}

func coerceValue(v any, target types.FieldType) any {
	switch target {
	case types.FieldTypeUtf8, types.FieldTypeLargeUtf8, types.FieldTypeUtf8View:
		return toStringValue(v)
	case types.FieldTypeFloat16, types.FieldTypeFloat32, types.FieldTypeFloat64:
		switch t := v.(type) {
		case json.Number:
			f, err := t.Float64()
			if err == nil {
				return f
			}
		case string:
			if f, err := strconv.ParseFloat(t, 64); err == nil {
				return f
			}
		}
		return v
	default:
		return v
	}
}
