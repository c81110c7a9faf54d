package filelist

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/ingestord/pkg/types"
)

func key(hour, name string) string {
	return "files/default/logs/app/2026/08/01/" + hour + "/" + name
}

func TestSetGetDelete(t *testing.T) {
	idx := New()
	require.NoError(t, idx.Set(key("12", "f1_0.json"), types.FileMeta{Records: 10}))

	m, ok := idx.Get(key("12", "f1_0.json"))
	require.True(t, ok)
	require.EqualValues(t, 10, m.Records)

	require.NoError(t, idx.Delete(key("12", "f1_0.json")))
	_, ok = idx.Get(key("12", "f1_0.json"))
	require.False(t, ok)
}

func TestSetInvalidKey(t *testing.T) {
	idx := New()
	err := idx.Set("files/default/logs", types.FileMeta{})
	require.ErrorIs(t, err, types.ErrInvalidFileKey)
}

func TestScanPrefix(t *testing.T) {
	idx := New()
	require.NoError(t, idx.Set(key("12", "f1_0.json"), types.FileMeta{}))
	require.NoError(t, idx.Set(key("13", "f2_0.json"), types.FileMeta{}))

	files := idx.ScanPrefix("default", "app", types.StreamTypeLogs, "2026/08/01/12")
	require.Equal(t, []string{key("12", "f1_0.json")}, files)

	all := idx.ScanPrefix("default", "app", types.StreamTypeLogs, "")
	require.Len(t, all, 2)
}

func TestDeleteMissingIsNoop(t *testing.T) {
	idx := New()
	require.NoError(t, idx.Delete(key("12", "missing.json")))
}

func TestGetFileListUnboundedReturnsAll(t *testing.T) {
	idx := New()
	require.NoError(t, idx.Set(key("12", "f1_0.json"), types.FileMeta{}))

	files := idx.GetFileList("default", "app", types.StreamTypeLogs, 0, 0, types.PartitionTimeLevelHourly)
	require.Len(t, files, 1)
}
