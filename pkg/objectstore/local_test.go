package objectstore

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLocalPutGetDelete(t *testing.T) {
	store, err := NewLocal(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	key := "files/default/logs/app/2026/08/01/12/f1_0.json"
	require.NoError(t, store.Put(ctx, key, []byte("payload")))

	data, err := store.Get(ctx, key)
	require.NoError(t, err)
	require.Equal(t, []byte("payload"), data)

	require.NoError(t, store.Delete(ctx, key))
	_, err = store.Get(ctx, key)
	require.Error(t, err)
}

func TestLocalGetMissing(t *testing.T) {
	store, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	_, err = store.Get(context.Background(), "missing/key")
	require.Error(t, err)
	require.True(t, errors.Is(err, os.ErrNotExist))
}
