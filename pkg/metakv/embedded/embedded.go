// Package embedded implements component A's local (single-node) backend
// over BoltDB, for deployments with no separate metadata database.
package embedded

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"sync"

	bolt "go.etcd.io/bbolt"

	"github.com/cuemby/ingestord/pkg/coordinator"
	"github.com/cuemby/ingestord/pkg/metakv"
)

var bucketMeta = []byte("meta")

// Store is the BoltDB-backed metakv.Store. A single bucket holds every
// key verbatim (no module/key1/key2 decomposition, unlike the SQL
// backends), since BoltDB's own B+tree already gives cheap prefix scans
// via cursor Seek.
type Store struct {
	db   *bolt.DB
	bus  *coordinator.Bus
	mu   sync.Mutex
}

// Open opens (or creates) the BoltDB file at filepath.Join(dataDir,
// "ingestord-meta.db") and ensures the meta bucket exists. bus receives
// Put/Delete events for needWatch writes; pass nil to disable fan-out.
func Open(dataDir string, bus *coordinator.Bus) (*Store, error) {
	dbPath := filepath.Join(dataDir, "ingestord-meta.db")
	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("open embedded metakv: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketMeta)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create meta bucket: %w", err)
	}

	return &Store{db: db, bus: bus}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketMeta).Get([]byte(key))
		if v == nil {
			return metakv.ErrNotFound
		}
		out = append([]byte{}, v...)
		return nil
	})
	return out, err
}

func (s *Store) Put(ctx context.Context, key string, value []byte, needWatch bool) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketMeta).Put([]byte(key), value)
	})
	if err != nil {
		return fmt.Errorf("put %q: %w", key, err)
	}
	if needWatch && s.bus != nil {
		s.bus.Publish(coordinator.Event{Key: key, Value: value, Type: coordinator.EventPut})
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string, withPrefix, needWatch bool) error {
	if !withPrefix {
		err := s.db.Update(func(tx *bolt.Tx) error {
			return tx.Bucket(bucketMeta).Delete([]byte(key))
		})
		if err != nil {
			return fmt.Errorf("delete %q: %w", key, err)
		}
		if needWatch && s.bus != nil {
			s.bus.Publish(coordinator.Event{Key: key, Type: coordinator.EventDelete})
		}
		return nil
	}

	keys, err := s.ListKeys(ctx, key)
	if err != nil {
		return err
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketMeta)
		for _, k := range keys {
			if err := b.Delete([]byte(k)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete prefix %q: %w", key, err)
	}
	if needWatch && s.bus != nil {
		for _, k := range keys {
			s.bus.Publish(coordinator.Event{Key: k, Type: coordinator.EventDelete})
		}
	}
	return nil
}

func (s *Store) List(_ context.Context, prefix string) (map[string][]byte, error) {
	out := map[string][]byte{}
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketMeta).Cursor()
		p := []byte(prefix)
		for k, v := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, v = c.Next() {
			out[string(k)] = append([]byte{}, v...)
		}
		return nil
	})
	return out, err
}

func (s *Store) ListKeys(_ context.Context, prefix string) ([]string, error) {
	var out []string
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketMeta).Cursor()
		p := []byte(prefix)
		for k, _ := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, _ = c.Next() {
			out = append(out, string(k))
		}
		return nil
	})
	return out, err
}

func (s *Store) ListValues(_ context.Context, prefix string) ([][]byte, error) {
	var out [][]byte
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketMeta).Cursor()
		p := []byte(prefix)
		for k, v := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, v = c.Next() {
			out = append(out, append([]byte{}, v...))
		}
		return nil
	})
	return out, err
}

func (s *Store) Count(_ context.Context, prefix string) (int64, error) {
	var n int64
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketMeta).Cursor()
		p := []byte(prefix)
		for k, _ := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, _ = c.Next() {
			n++
		}
		return nil
	})
	return n, err
}

// Watch delegates to the process-internal coordinator bus (spec.md §4.6's
// "process-internal mpsc" for single-writer backends); it returns
// ErrWatchUnsupported if this Store was opened without a bus.
func (s *Store) Watch(ctx context.Context, prefix string) (<-chan metakv.Event, error) {
	if s.bus == nil {
		return nil, metakv.ErrWatchUnsupported
	}
	sub := s.bus.Subscribe(prefix)
	out := make(chan metakv.Event)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				sub.Close()
				return
			case ev, ok := <-sub.C:
				if !ok {
					return
				}
				out <- metakv.Event{Key: ev.Key, Value: ev.Value, Type: metakv.EventType(ev.Type)}
			}
		}
	}()
	return out, nil
}

// Transaction implements a simple check-then-branch using the bucket's
// own write lock for atomicity; BoltDB has no native CAS primitive but a
// single db.Update already serializes with every other writer.
func (s *Store) Transaction(_ context.Context, checkKey string, andOps, elseOps []metakv.Op) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketMeta)
		ops := elseOps
		if b.Get([]byte(checkKey)) != nil {
			ops = andOps
		}
		for _, op := range ops {
			if op.Delete {
				if err := b.Delete([]byte(op.Key)); err != nil {
					return err
				}
				continue
			}
			if err := b.Put([]byte(op.Key), op.Value); err != nil {
				return err
			}
		}
		return nil
	})
}
