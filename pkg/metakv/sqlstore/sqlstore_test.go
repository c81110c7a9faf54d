package sqlstore

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplitKey(t *testing.T) {
	module, key1, key2, err := splitKey("/schema/default/logs/app")
	require.NoError(t, err)
	require.Equal(t, "schema", module)
	require.Equal(t, "default", key1)
	require.Equal(t, "logs/app", key2)
}

func TestSplitKeyTooShort(t *testing.T) {
	_, _, _, err := splitKey("/schema/default")
	require.Error(t, err)
}
