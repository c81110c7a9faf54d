package schema

import "github.com/cuemby/ingestord/pkg/types"

// widensTo maps a source type to every type it may widen into:
// Int8→Int16→Int32→Int64, UInt*→UInt64, Float16→Float32→Float64,
// Utf8→LargeUtf8/Utf8View, and integer→float as listed below. Every
// integer type widens to Float64, and Int8, Int16, UInt8 and UInt16 also
// widen to Float32; Int32, Int64, UInt32 and UInt64 do not widen to
// Float32, and no integer type widens to Float16.
var widensTo = map[types.FieldType][]types.FieldType{
	types.FieldTypeInt8:  {types.FieldTypeInt16, types.FieldTypeInt32, types.FieldTypeInt64, types.FieldTypeFloat32, types.FieldTypeFloat64},
	types.FieldTypeInt16: {types.FieldTypeInt32, types.FieldTypeInt64, types.FieldTypeFloat32, types.FieldTypeFloat64},
	types.FieldTypeInt32: {types.FieldTypeInt64, types.FieldTypeFloat64},
	types.FieldTypeInt64: {types.FieldTypeFloat64},

	types.FieldTypeUInt8:  {types.FieldTypeUInt16, types.FieldTypeUInt32, types.FieldTypeUInt64, types.FieldTypeFloat32, types.FieldTypeFloat64},
	types.FieldTypeUInt16: {types.FieldTypeUInt32, types.FieldTypeUInt64, types.FieldTypeFloat32, types.FieldTypeFloat64},
	types.FieldTypeUInt32: {types.FieldTypeUInt64, types.FieldTypeFloat64},
	types.FieldTypeUInt64: {types.FieldTypeFloat64},

	types.FieldTypeFloat16: {types.FieldTypeFloat32, types.FieldTypeFloat64},
	types.FieldTypeFloat32: {types.FieldTypeFloat64},

	types.FieldTypeUtf8: {types.FieldTypeLargeUtf8, types.FieldTypeUtf8View},
}

// Widens reports whether from can be widened to to (from == to counts as
// no-op widening, i.e. not a change).
func Widens(from, to types.FieldType) bool {
	if from == to {
		return true
	}
	for _, t := range widensTo[from] {
		if t == to {
			return true
		}
	}
	return false
}

// Merge returns the widened type of a and b, and whether the pair widens
// cleanly at all. When neither widens into the other, the merge is
// non-widening and the caller must fall back to a zo_cast marker instead
// of changing the schema.
func Merge(a, b types.FieldType) (types.FieldType, bool) {
	if a == b {
		return a, true
	}
	if Widens(a, b) {
		return b, true
	}
	if Widens(b, a) {
		return a, true
	}
	return a, false
}
