package filecache

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetGetRoundTrip(t *testing.T) {
	c, err := New(1<<20, 1024)
	require.NoError(t, err)

	c.Set("files/default/logs/app/2026/08/01/12/f1_0.json", []byte("hello"))
	data, ok := c.Get("files/default/logs/app/2026/08/01/12/f1_0.json", 0, 0)
	require.True(t, ok)
	require.Equal(t, []byte("hello"), data)
}

func TestGetMissing(t *testing.T) {
	c, err := New(1<<20, 1024)
	require.NoError(t, err)

	_, ok := c.Get("missing", 0, 0)
	require.False(t, ok)
}

func TestSetIsIdempotent(t *testing.T) {
	c, err := New(1<<20, 1024)
	require.NoError(t, err)

	key := "files/default/logs/app/f1.json"
	c.Set(key, []byte("first"))
	c.Set(key, []byte("second"))

	data, ok := c.Get(key, 0, 0)
	require.True(t, ok)
	require.Equal(t, []byte("first"), data)
}

func TestSetEvictsUnderPressure(t *testing.T) {
	c, err := New(100, 10)
	require.NoError(t, err)

	c.Set("files/default/logs/app/a.json", make([]byte, 40))
	c.Set("files/default/logs/app/b.json", make([]byte, 40))
	// third insert should trigger eviction since cur_size+size >= max_size
	c.Set("files/default/logs/app/c.json", make([]byte, 40))

	require.False(t, c.Exist("files/default/logs/app/a.json"))
	require.True(t, c.Exist("files/default/logs/app/c.json"))
}

func TestGetRangeSlice(t *testing.T) {
	c, err := New(1<<20, 1024)
	require.NoError(t, err)

	c.Set("f", []byte("0123456789"))
	data, ok := c.Get("f", 2, 5)
	require.True(t, ok)
	require.Equal(t, []byte("234"), data)
}
