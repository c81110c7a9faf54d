package dynamo

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplitOrg(t *testing.T) {
	org, sk, err := splitOrg("/schema/default/logs/app")
	require.NoError(t, err)
	require.Equal(t, "default", org)
	require.Equal(t, "/schema/default/logs/app", sk)
}

func TestSplitOrgMissing(t *testing.T) {
	_, _, err := splitOrg("/schema")
	require.Error(t, err)
}
