package lock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLocalBackendIsNoOp(t *testing.T) {
	mgr := New(Local{})
	locker, err := mgr.Lock(context.Background(), "stream/default/logs/app", 0)
	require.NoError(t, err)
	require.NoError(t, locker.Unlock(context.Background()))
}

type blockingBackend struct {
	release chan struct{}
}

func (b *blockingBackend) Lock(ctx context.Context, key string, waitTTL time.Duration) (Locker, error) {
	select {
	case <-b.release:
		return noopLocker{}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestLockTimesOut(t *testing.T) {
	mgr := New(&blockingBackend{release: make(chan struct{})})
	_, err := mgr.Lock(context.Background(), "k", 10*time.Millisecond)
	require.ErrorIs(t, err, ErrLockTimeout)
}

func TestLockSucceedsBeforeTimeout(t *testing.T) {
	backend := &blockingBackend{release: make(chan struct{})}
	close(backend.release)
	mgr := New(backend)

	locker, err := mgr.Lock(context.Background(), "k", time.Second)
	require.NoError(t, err)
	require.NoError(t, locker.Unlock(context.Background()))
}
