// Package lock implements component G: a named mutual-exclusion primitive
// layered over a cluster coordinator. In local (single-node) mode it is a
// no-op; clustered deployments back it with etcd or NATS KV.
package lock

import (
	"context"
	"errors"
	"time"
)

// Locker represents a held lock; release it with Unlock.
type Locker interface {
	Unlock(ctx context.Context) error
}

// Backend acquires and releases named locks against a coordinator. A
// Backend is free to block a second Lock call for a key its own caller
// already holds — that is the deadlock-not-reentrant behavior spec.md
// §4.7 calls out as the reference behavior; Manager does not paper over it.
type Backend interface {
	Lock(ctx context.Context, key string, waitTTL time.Duration) (Locker, error)
}

// ErrLockTimeout is returned when waitTTL elapses before the lock is won.
var ErrLockTimeout = errors.New("lock_timeout")

// Manager is the process-wide entry point for named locks.
type Manager struct {
	backend Backend
}

// New wraps backend as the process-wide lock manager.
func New(backend Backend) *Manager {
	return &Manager{backend: backend}
}

// Lock acquires the named lock. waitTTL == 0 waits indefinitely.
func (m *Manager) Lock(ctx context.Context, key string, waitTTL time.Duration) (Locker, error) {
	if waitTTL <= 0 {
		return m.backend.Lock(ctx, key, 0)
	}
	ctx, cancel := context.WithTimeout(ctx, waitTTL)
	defer cancel()
	locker, err := m.backend.Lock(ctx, key, waitTTL)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ErrLockTimeout
		}
		return nil, err
	}
	return locker, nil
}

// Local is the single-node Backend: Lock is always a no-op success.
type Local struct{}

// Lock implements Backend. It never blocks and never fails.
func (Local) Lock(ctx context.Context, key string, waitTTL time.Duration) (Locker, error) {
	return noopLocker{}, nil
}

type noopLocker struct{}

func (noopLocker) Unlock(ctx context.Context) error { return nil }
