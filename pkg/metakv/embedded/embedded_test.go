package embedded

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/ingestord/pkg/coordinator"
	"github.com/cuemby/ingestord/pkg/metakv"
)

func open(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPutGet(t *testing.T) {
	s := open(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "/schema/default/logs/app", []byte("v1"), false))
	v, err := s.Get(ctx, "/schema/default/logs/app")
	require.NoError(t, err)
	require.Equal(t, []byte("v1"), v)
}

func TestGetNotFound(t *testing.T) {
	s := open(t)
	_, err := s.Get(context.Background(), "/missing")
	require.ErrorIs(t, err, metakv.ErrNotFound)
}

func TestListKeysPrefix(t *testing.T) {
	s := open(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "/schema/default/logs/app", []byte("a"), false))
	require.NoError(t, s.Put(ctx, "/schema/default/logs/web", []byte("b"), false))
	require.NoError(t, s.Put(ctx, "/lock/default/logs/app", []byte("c"), false))

	keys, err := s.ListKeys(ctx, "/schema/default")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"/schema/default/logs/app", "/schema/default/logs/web"}, keys)

	n, err := s.Count(ctx, "/schema/default")
	require.NoError(t, err)
	require.EqualValues(t, 2, n)
}

func TestDeleteWithPrefix(t *testing.T) {
	s := open(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "/schema/default/logs/app", []byte("a"), false))
	require.NoError(t, s.Put(ctx, "/schema/default/logs/web", []byte("b"), false))

	require.NoError(t, s.Delete(ctx, "/schema/default", true, false))

	n, err := s.Count(ctx, "/schema/default")
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestWatchWithoutBusUnsupported(t *testing.T) {
	s := open(t)
	_, err := s.Watch(context.Background(), "/schema")
	require.ErrorIs(t, err, metakv.ErrWatchUnsupported)
}

func TestWatchDeliversPutEvent(t *testing.T) {
	bus := coordinator.NewBus()
	bus.Start()
	defer bus.Stop()

	s, err := Open(t.TempDir(), bus)
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	events, err := s.Watch(ctx, "/schema/default")
	require.NoError(t, err)

	require.NoError(t, s.Put(ctx, "/schema/default/logs/app", []byte("v1"), true))

	ev := <-events
	require.Equal(t, "/schema/default/logs/app", ev.Key)
	require.Equal(t, metakv.EventPut, ev.Type)
}

func TestTransactionBranchesOnCheckKey(t *testing.T) {
	s := open(t)
	ctx := context.Background()

	err := s.Transaction(ctx, "/missing", []metakv.Op{{Key: "/and", Value: []byte("x")}}, []metakv.Op{{Key: "/else", Value: []byte("y")}})
	require.NoError(t, err)

	_, err = s.Get(ctx, "/else")
	require.NoError(t, err)
	_, err = s.Get(ctx, "/and")
	require.ErrorIs(t, err, metakv.ErrNotFound)
}
