// Package sqlstore implements the shared logic behind component A's
// sqlite, mysql, and postgres backends: all three drive the single
// meta(id, module, key1, key2, value) table of spec.md §6.4 over
// database/sql, differing only in driver import and placeholder syntax.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	"github.com/cuemby/ingestord/pkg/coordinator"
	"github.com/cuemby/ingestord/pkg/metakv"
)

// Dialect captures the syntax differences between the three database/sql
// drivers this package fronts.
type Dialect struct {
	// Placeholder returns the nth (1-based) bound-parameter placeholder.
	Placeholder func(n int) string
	// CreateTableDDL is run at every Open, so each statement must be safe
	// to repeat; mysql drops its unguarded CREATE INDEX statements once the
	// table exists.
	CreateTableDDL []string
	// No upsert syntax is needed: Put is a delete-then-insert inside one
	// transaction for every dialect.
}

// Store is the database/sql-backed metakv.Store shared by sqlite, mysql,
// and postgres.
type Store struct {
	db      *sql.DB
	dialect Dialect
	bus     *coordinator.Bus
	mu      sync.Mutex
}

// Open wraps an already-opened *sql.DB and runs the dialect's DDL.
func Open(db *sql.DB, dialect Dialect, bus *coordinator.Bus) (*Store, error) {
	for _, stmt := range dialect.CreateTableDDL {
		if _, err := db.Exec(stmt); err != nil {
			return nil, fmt.Errorf("apply metakv schema: %w", err)
		}
	}
	return &Store{db: db, dialect: dialect, bus: bus}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// splitKey decomposes spec.md §6.4's "/{module}/{key1}/{key2/...}" form
// into (module, key1, key2): key2 retains any further "/"-joined segments
// so a key like "/schema/default/logs/app" becomes module="schema",
// key1="default", key2="logs/app".
func splitKey(key string) (module, key1, key2 string, err error) {
	trimmed := strings.TrimPrefix(key, "/")
	parts := strings.SplitN(trimmed, "/", 3)
	if len(parts) < 3 {
		return "", "", "", fmt.Errorf("metakv key %q must have at least module/key1/key2", key)
	}
	return parts[0], parts[1], parts[2], nil
}

func (s *Store) ph(n int) string { return s.dialect.Placeholder(n) }

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	module, key1, key2, err := splitKey(key)
	if err != nil {
		return nil, err
	}
	q := fmt.Sprintf("SELECT value FROM meta WHERE module = %s AND key1 = %s AND key2 = %s", s.ph(1), s.ph(2), s.ph(3))
	var value string
	err = s.db.QueryRowContext(ctx, q, module, key1, key2).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, metakv.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %q: %w", key, err)
	}
	return []byte(value), nil
}

func (s *Store) Put(ctx context.Context, key string, value []byte, needWatch bool) error {
	module, key1, key2, err := splitKey(key)
	if err != nil {
		return err
	}

	del := fmt.Sprintf("DELETE FROM meta WHERE module = %s AND key1 = %s AND key2 = %s", s.ph(1), s.ph(2), s.ph(3))
	ins := fmt.Sprintf("INSERT INTO meta (module, key1, key2, value) VALUES (%s, %s, %s, %s)", s.ph(1), s.ph(2), s.ph(3), s.ph(4))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("put %q: %w", key, err)
	}
	if _, err := tx.ExecContext(ctx, del, module, key1, key2); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("put %q: %w", key, err)
	}
	if _, err := tx.ExecContext(ctx, ins, module, key1, key2, string(value)); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("put %q: %w", key, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("put %q: %w", key, err)
	}

	if needWatch && s.bus != nil {
		s.bus.Publish(coordinator.Event{Key: key, Value: value, Type: coordinator.EventPut})
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string, withPrefix, needWatch bool) error {
	if !withPrefix {
		module, key1, key2, err := splitKey(key)
		if err != nil {
			return err
		}
		q := fmt.Sprintf("DELETE FROM meta WHERE module = %s AND key1 = %s AND key2 = %s", s.ph(1), s.ph(2), s.ph(3))
		if _, err := s.db.ExecContext(ctx, q, module, key1, key2); err != nil {
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
	for _, k := range keys {
		if err := s.Delete(ctx, k, false, needWatch); err != nil {
			return err
		}
	}
	return nil
}

// prefixQuery builds the module/key1/key2-prefix LIKE clause spec.md
// §6.4 specifies for SQL backends: "prefix lists in SQL use LIKE
// key2 || '%'".
func (s *Store) prefixQuery(ctx context.Context, prefix string) (*sql.Rows, error) {
	trimmed := strings.TrimPrefix(prefix, "/")
	parts := strings.SplitN(trimmed, "/", 2)
	module := parts[0]

	if len(parts) == 1 {
		q := fmt.Sprintf("SELECT key1, key2, value FROM meta WHERE module = %s", s.ph(1))
		return s.db.QueryContext(ctx, q, module)
	}

	rest := strings.SplitN(parts[1], "/", 2)
	key1 := rest[0]
	if len(rest) == 1 {
		q := fmt.Sprintf("SELECT key1, key2, value FROM meta WHERE module = %s AND key1 = %s", s.ph(1), s.ph(2))
		return s.db.QueryContext(ctx, q, module, key1)
	}

	key2Prefix := rest[1]
	q := fmt.Sprintf("SELECT key1, key2, value FROM meta WHERE module = %s AND key1 = %s AND key2 LIKE %s", s.ph(1), s.ph(2), s.ph(3))
	return s.db.QueryContext(ctx, q, module, key1, key2Prefix+"%")
}

func (s *Store) List(ctx context.Context, prefix string) (map[string][]byte, error) {
	rows, err := s.prefixQuery(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("list %q: %w", prefix, err)
	}
	defer rows.Close()

	trimmed := strings.TrimPrefix(prefix, "/")
	module := strings.SplitN(trimmed, "/", 2)[0]

	out := map[string][]byte{}
	for rows.Next() {
		var key1, key2, value string
		if err := rows.Scan(&key1, &key2, &value); err != nil {
			return nil, err
		}
		out["/"+module+"/"+key1+"/"+key2] = []byte(value)
	}
	return out, rows.Err()
}

func (s *Store) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	m, err := s.List(ctx, prefix)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys, nil
}

func (s *Store) ListValues(ctx context.Context, prefix string) ([][]byte, error) {
	m, err := s.List(ctx, prefix)
	if err != nil {
		return nil, err
	}
	values := make([][]byte, 0, len(m))
	for _, v := range m {
		values = append(values, v)
	}
	return values, nil
}

func (s *Store) Count(ctx context.Context, prefix string) (int64, error) {
	m, err := s.List(ctx, prefix)
	if err != nil {
		return 0, err
	}
	return int64(len(m)), nil
}

// Watch delegates to the process-internal coordinator bus, matching
// spec.md §4.6's fan-out note for single-writer SQL backends.
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

// Transaction is serialized with a process-local mutex on top of a SQL
// transaction: database/sql gives no portable CAS primitive across
// sqlite/mysql/postgres, so correctness relies on this store being the
// sole writer-side entry point for conditional updates.
func (s *Store) Transaction(ctx context.Context, checkKey string, andOps, elseOps []metakv.Op) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.Get(ctx, checkKey)
	ops := elseOps
	if err == nil {
		ops = andOps
	} else if err != metakv.ErrNotFound {
		return err
	}

	for _, op := range ops {
		if op.Delete {
			if err := s.Delete(ctx, op.Key, false, false); err != nil {
				return err
			}
			continue
		}
		if err := s.Put(ctx, op.Key, op.Value, false); err != nil {
			return err
		}
	}
	return nil
}
