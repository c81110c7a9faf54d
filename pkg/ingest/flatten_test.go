package ingest

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFlattenNestedObject(t *testing.T) {
	out := flatten(map[string]any{
		"a": 1,
		"b": map[string]any{"c": 2, "d": map[string]any{"e": 3}},
	}, 3)

	require.Equal(t, 1, out["a"])
	require.Equal(t, 2, out["b_c"])
	require.Equal(t, 3, out["b_d_e"])
}

func TestFlattenRespectsDepthLimit(t *testing.T) {
	out := flatten(map[string]any{
		"a": map[string]any{"b": map[string]any{"c": 1}},
	}, 1)

	require.Contains(t, out, "a_b")
	require.IsType(t, "", out["a_b"])
}

func TestFlattenDropsEmptyNestedObject(t *testing.T) {
	out := flatten(map[string]any{"a": map[string]any{}}, 3)
	require.NotContains(t, out, "a")
}
