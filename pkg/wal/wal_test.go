package wal

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/ingestord/pkg/types"
)

func newManager(t *testing.T) *Manager {
	t.Helper()
	m, err := New(t.TempDir(), 2, 1<<20, time.Hour, 1)
	require.NoError(t, err)
	return m
}

func streamID() types.StreamIdentity {
	return types.StreamIdentity{OrgID: "default", StreamType: types.StreamTypeLogs, StreamName: "app"}
}

func TestGetOrCreateReturnsSameHandle(t *testing.T) {
	m := newManager(t)
	f1, err := m.GetOrCreate(0, streamID(), types.PartitionTimeLevelHourly, "2026/08/01/12", false)
	require.NoError(t, err)

	f2, err := m.GetOrCreate(0, streamID(), types.PartitionTimeLevelHourly, "2026/08/01/12", false)
	require.NoError(t, err)
	require.Same(t, f1, f2)
}

func TestWriteAppendsNewlineDelimited(t *testing.T) {
	m := newManager(t)
	f, err := m.GetOrCreate(0, streamID(), types.PartitionTimeLevelHourly, "2026/08/01/12", false)
	require.NoError(t, err)

	require.NoError(t, f.Write([]byte(`{"a":1}`)))
	require.NoError(t, f.Write([]byte(`{"a":2}`)))
	require.NoError(t, f.Sync())

	data, err := f.Read()
	require.NoError(t, err)
	require.Equal(t, "{\"a\":1}\n{\"a\":2}\n", string(data))
}

func TestEnrichmentTablesNeverCached(t *testing.T) {
	m := newManager(t)
	id := types.StreamIdentity{OrgID: "default", StreamType: types.StreamTypeEnrichmentTables, StreamName: "geoip"}

	f1, err := m.GetOrCreate(0, id, types.PartitionTimeLevelHourly, "2026/08/01/12", false)
	require.NoError(t, err)
	f2, err := m.GetOrCreate(0, id, types.PartitionTimeLevelHourly, "2026/08/01/12", false)
	require.NoError(t, err)
	require.NotSame(t, f1, f2)
}

func TestLockFilesPreventsDoubleRelease(t *testing.T) {
	m := newManager(t)
	m.LockFiles([]string{"a", "b"})
	require.True(t, m.IsLocked("a"))

	m.ReleaseFiles([]string{"a"})
	require.False(t, m.IsLocked("a"))
	require.True(t, m.IsLocked("b"))

	// a second release of "a" must not drive its count below zero
	m.ReleaseFiles([]string{"a"})
	m.LockFiles([]string{"a"})
	require.True(t, m.IsLocked("a"))
}

func TestLockRequestReleasesAllFiles(t *testing.T) {
	m := newManager(t)
	m.LockRequest("trace-1", []string{"x", "y"})
	require.True(t, m.IsLocked("x"))
	require.True(t, m.IsLocked("y"))

	m.ReleaseRequest("trace-1")
	require.False(t, m.IsLocked("x"))
	require.False(t, m.IsLocked("y"))
}

func TestNextIDIsMonotonicallyIncreasing(t *testing.T) {
	m := newManager(t)
	a := m.NextID()
	b := m.NextID()
	require.NotEqual(t, a, b)

	ai, err := strconv.ParseInt(a, 10, 64)
	require.NoError(t, err)
	bi, err := strconv.ParseInt(b, 10, 64)
	require.NoError(t, err)
	require.Greater(t, bi, ai)
}
