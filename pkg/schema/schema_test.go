package schema

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/ingestord/pkg/lock"
	"github.com/cuemby/ingestord/pkg/types"
)

type memStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemStore() *memStore { return &memStore{data: map[string][]byte{}} }

func (s *memStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	return v, ok, nil
}

func (s *memStore) Put(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return nil
}

type noopLocker struct{}

func (noopLocker) Unlock(context.Context) error { return nil }

type noopLocks struct{}

func (noopLocks) Lock(context.Context, string, time.Duration) (lock.Locker, error) {
	return noopLocker{}, nil
}

func streamID() types.StreamIdentity {
	return types.StreamIdentity{OrgID: "default", StreamType: types.StreamTypeLogs, StreamName: "app"}
}

func TestResolveSeedsEmptySchema(t *testing.T) {
	c := New(newMemStore(), noopLocks{})
	v, err := c.Resolve(context.Background(), streamID(), []types.Field{
		{Name: "message", Type: types.FieldTypeUtf8},
	}, time.Now().UnixMicro())
	require.NoError(t, err)
	require.Len(t, v.Fields, 1)
	require.Equal(t, "message", v.Fields[0].Name)
}

func TestResolveFastPathNoChange(t *testing.T) {
	c := New(newMemStore(), noopLocks{})
	ctx := context.Background()
	id := streamID()

	fields := []types.Field{{Name: "message", Type: types.FieldTypeUtf8}}
	first, err := c.Resolve(ctx, id, fields, time.Now().UnixMicro())
	require.NoError(t, err)

	second, err := c.Resolve(ctx, id, fields, time.Now().UnixMicro())
	require.NoError(t, err)
	require.Equal(t, first.CreatedAt, second.CreatedAt)
}

func TestResolveWidensIntToFloat(t *testing.T) {
	c := New(newMemStore(), noopLocks{})
	ctx := context.Background()
	id := streamID()

	_, err := c.Resolve(ctx, id, []types.Field{{Name: "count", Type: types.FieldTypeInt32}}, time.Now().UnixMicro())
	require.NoError(t, err)

	v, err := c.Resolve(ctx, id, []types.Field{{Name: "count", Type: types.FieldTypeFloat64}}, time.Now().UnixMicro())
	require.NoError(t, err)

	for _, f := range v.Fields {
		if f.Name == "count" {
			require.Equal(t, types.FieldTypeFloat64, f.Type)
			require.False(t, f.ZoCast)
		}
	}
}

func TestResolveNonWideningMarksZoCast(t *testing.T) {
	c := New(newMemStore(), noopLocks{})
	ctx := context.Background()
	id := streamID()

	_, err := c.Resolve(ctx, id, []types.Field{{Name: "code", Type: types.FieldTypeUtf8}}, time.Now().UnixMicro())
	require.NoError(t, err)

	v, err := c.Resolve(ctx, id, []types.Field{{Name: "code", Type: types.FieldTypeInt32}}, time.Now().UnixMicro())
	require.NoError(t, err)

	var found bool
	for _, f := range v.Fields {
		if f.Name == "code" {
			found = true
			require.True(t, f.ZoCast)
			require.Equal(t, types.FieldTypeUtf8, f.Type)
		}
	}
	require.True(t, found)
}

func TestResolveRejectsTooManyFields(t *testing.T) {
	c := New(newMemStore(), noopLocks{})
	fields := make([]types.Field, ReqColsPerRecordLimit+1)
	for i := range fields {
		fields[i] = types.Field{Name: "f", Type: types.FieldTypeUtf8}
	}
	_, err := c.Resolve(context.Background(), streamID(), fields, time.Now().UnixMicro())
	require.Error(t, err)
}

func TestResolveStartDTTracksRecordTimestamp(t *testing.T) {
	c := New(newMemStore(), noopLocks{})
	ctx := context.Background()
	id := streamID()

	recordTS := time.Now().Add(-2 * time.Hour).UnixMicro()
	v, err := c.Resolve(ctx, id, []types.Field{{Name: "count", Type: types.FieldTypeInt32}}, recordTS)
	require.NoError(t, err)
	require.Equal(t, recordTS, v.StartDT)
	require.NotEqual(t, v.StartDT, v.CreatedAt)
}

func TestResolveOutOfOrderInsertsCatchUpVersion(t *testing.T) {
	c := New(newMemStore(), noopLocks{})
	ctx := context.Background()
	id := streamID()

	first, err := c.Resolve(ctx, id, []types.Field{{Name: "count", Type: types.FieldTypeInt32}}, time.Now().UnixMicro())
	require.NoError(t, err)

	// A widening record whose own timestamp is at or before the version
	// it widens is out of order: resolving it should close that version
	// immediately and hand back a second, wall-clock-stamped version
	// rather than leaving the open version's start_dt behind its parent's.
	stale := first.StartDT
	v, err := c.Resolve(ctx, id, []types.Field{{Name: "count", Type: types.FieldTypeFloat64}}, stale)
	require.NoError(t, err)
	require.Greater(t, v.StartDT, first.StartDT)

	entry, ok := c.entry(id)
	require.True(t, ok)
	// seed, first widen (closed), out-of-order widen (closed by the
	// catch-up insert), catch-up (open).
	require.Len(t, entry.versions, 4)
	require.NotZero(t, entry.versions[2].EndDT)
	require.Zero(t, entry.versions[3].EndDT)
}

func TestMergeFields(t *testing.T) {
	cur := []types.Field{{Name: "a", Type: types.FieldTypeInt8}}
	merged, changed, _ := mergeFields(cur, []types.Field{{Name: "a", Type: types.FieldTypeInt16}})
	require.True(t, changed)
	require.Equal(t, types.FieldTypeInt16, merged[0].Type)
}

func TestWidens(t *testing.T) {
	require.True(t, Widens(types.FieldTypeInt8, types.FieldTypeInt64))
	require.True(t, Widens(types.FieldTypeUtf8, types.FieldTypeLargeUtf8))
	require.False(t, Widens(types.FieldTypeUtf8, types.FieldTypeInt32))
	require.False(t, Widens(types.FieldTypeInt64, types.FieldTypeInt8))
}
