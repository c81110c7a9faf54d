package lock

import (
	"context"
	"fmt"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"
)

// EtcdBackend backs named locks with an etcd lease + concurrency.Mutex,
// the clustered analog of the teacher's single-process BoltDB store:
// one session per key acquisition, released on Unlock.
type EtcdBackend struct {
	client   *clientv3.Client
	prefix   string
	leaseTTL int // seconds
}

// NewEtcdBackend builds a Backend over an existing etcd client. prefix is
// prepended to every lock key, mirroring the "/{module}/..." convention
// of spec.md §4.6's key encoding.
func NewEtcdBackend(client *clientv3.Client, prefix string, leaseTTLSeconds int) *EtcdBackend {
	if leaseTTLSeconds <= 0 {
		leaseTTLSeconds = 30
	}
	return &EtcdBackend{client: client, prefix: prefix, leaseTTL: leaseTTLSeconds}
}

func (b *EtcdBackend) Lock(ctx context.Context, key string, waitTTL time.Duration) (Locker, error) {
	session, err := concurrency.NewSession(b.client, concurrency.WithTTL(b.leaseTTL))
	if err != nil {
		return nil, fmt.Errorf("create etcd session: %w", err)
	}

	mu := concurrency.NewMutex(session, b.prefix+"/"+key)
	if err := mu.Lock(ctx); err != nil {
		_ = session.Close()
		return nil, fmt.Errorf("acquire etcd lock %q: %w", key, err)
	}

	return &etcdLocker{session: session, mutex: mu}, nil
}

type etcdLocker struct {
	session *concurrency.Session
	mutex   *concurrency.Mutex
}

func (l *etcdLocker) Unlock(ctx context.Context) error {
	if err := l.mutex.Unlock(ctx); err != nil {
		_ = l.session.Close()
		return fmt.Errorf("release etcd lock: %w", err)
	}
	return l.session.Close()
}
