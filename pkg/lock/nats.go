package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// NatsBackend backs named locks with a NATS KV bucket: Lock is a
// create-if-absent CAS loop against a lock-holder key, matching the
// revision-based optimistic-lock pattern NATS KV is built for.
type NatsBackend struct {
	kv     jetstream.KeyValue
	holder string
	poll   time.Duration
}

// NewNatsBackend builds a Backend over an already-bound KV bucket. holder
// identifies this process in the stored value, purely for observability.
func NewNatsBackend(kv jetstream.KeyValue, holder string) *NatsBackend {
	return &NatsBackend{kv: kv, holder: holder, poll: 100 * time.Millisecond}
}

func (b *NatsBackend) Lock(ctx context.Context, key string, waitTTL time.Duration) (Locker, error) {
	ticker := time.NewTicker(b.poll)
	defer ticker.Stop()

	for {
		rev, err := b.kv.Create(ctx, key, []byte(b.holder))
		if err == nil {
			return &natsLocker{kv: b.kv, key: key, rev: rev}, nil
		}
		if !isKeyExistsErr(err) {
			return nil, fmt.Errorf("acquire nats lock %q: %w", key, err)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func isKeyExistsErr(err error) bool {
	return errors.Is(err, jetstream.ErrKeyExists)
}

type natsLocker struct {
	kv  jetstream.KeyValue
	key string
	rev uint64
}

func (l *natsLocker) Unlock(ctx context.Context) error {
	if err := l.kv.Delete(ctx, l.key, jetstream.LastRevision(l.rev)); err != nil {
		return fmt.Errorf("release nats lock: %w", err)
	}
	return nil
}
