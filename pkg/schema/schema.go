// Package schema implements component F: the in-memory schema cache and
// the merge protocol that evolves a stream's schema as new records arrive.
package schema

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cuemby/ingestord/pkg/lock"
	"github.com/cuemby/ingestord/pkg/log"
	"github.com/cuemby/ingestord/pkg/metrics"
	"github.com/cuemby/ingestord/pkg/types"
)

// Store is the subset of the metadata store a schema Cache needs. It is
// declared locally rather than importing pkg/metakv so the two packages
// never cycle. A metakv.Store does not satisfy it directly (its Get and
// Put signatures differ); callers wrap one in a small adapter.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte) error
}

// Locker is the subset of *lock.Manager a Cache needs to coordinate merges
// across processes.
type Locker interface {
	Lock(ctx context.Context, key string, waitTTL time.Duration) (lock.Locker, error)
}

const (
	// ReqColsPerRecordLimit bounds the number of top-level fields a single
	// record may contribute, per spec.md §4.2.
	ReqColsPerRecordLimit = 2000

	// MetaTransactionRetries is the fixed retry count for a losing merge
	// race against the metadata store; spec.md §7 specifies a flat 1s
	// backoff rather than exponential.
	MetaTransactionRetries = 5
	retryBackoff           = time.Second
)

type streamEntry struct {
	mu       sync.Mutex
	versions []types.SchemaVersion
	settings types.StreamSettings
}

func (e *streamEntry) current() types.SchemaVersion {
	return e.versions[len(e.versions)-1]
}

// Cache holds one schema history per stream in memory, backed by a
// durable Store for cross-process visibility and a Locker so concurrent
// writers racing to evolve the same stream serialize on the merge.
type Cache struct {
	store Store
	locks Locker

	mu      sync.RWMutex
	streams map[string]*streamEntry
}

// New builds an empty Cache.
func New(store Store, locks Locker) *Cache {
	return &Cache{store: store, locks: locks, streams: map[string]*streamEntry{}}
}

func storeKey(id types.StreamIdentity) string {
	return "schema/" + id.Key()
}

// Load fetches persisted schema versions and settings for a stream into
// the cache, or seeds an empty entry if none exist yet.
func (c *Cache) Load(ctx context.Context, id types.StreamIdentity) error {
	raw, ok, err := c.store.Get(ctx, storeKey(id))
	if err != nil {
		return fmt.Errorf("load schema %s: %w", id.Key(), err)
	}

	entry := &streamEntry{}
	if ok {
		var rec persisted
		if err := json.Unmarshal(raw, &rec); err != nil {
			return fmt.Errorf("decode schema %s: %w", id.Key(), err)
		}
		entry.versions = rec.Versions
		entry.settings = rec.Settings
	} else {
		entry.versions = []types.SchemaVersion{{Fields: nil, StartDT: 0, EndDT: 0, CreatedAt: 0}}
	}

	c.mu.Lock()
	c.streams[id.Key()] = entry
	c.mu.Unlock()
	return nil
}

type persisted struct {
	Versions []types.SchemaVersion `json:"versions"`
	Settings types.StreamSettings  `json:"settings"`
}

func (c *Cache) entry(id types.StreamIdentity) (*streamEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.streams[id.Key()]
	return e, ok
}

// Current returns the stream's open schema version without triggering a
// merge, loading it from the durable store first if needed.
func (c *Cache) Current(ctx context.Context, id types.StreamIdentity) (types.SchemaVersion, error) {
	entry, ok := c.entry(id)
	if !ok {
		if err := c.Load(ctx, id); err != nil {
			return types.SchemaVersion{}, err
		}
		entry, _ = c.entry(id)
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.current(), nil
}

// Settings returns the persisted per-stream settings, loading them from
// the durable store first if the stream isn't cached yet.
func (c *Cache) Settings(ctx context.Context, id types.StreamIdentity) (types.StreamSettings, error) {
	entry, ok := c.entry(id)
	if !ok {
		if err := c.Load(ctx, id); err != nil {
			return types.StreamSettings{}, err
		}
		entry, _ = c.entry(id)
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.settings, nil
}

// SetSettings persists updated stream settings, used by the ingestion
// core's UDS auto-enable step (spec.md §4.2 step 4).
func (c *Cache) SetSettings(ctx context.Context, id types.StreamIdentity, settings types.StreamSettings) error {
	entry, ok := c.entry(id)
	if !ok {
		if err := c.Load(ctx, id); err != nil {
			return err
		}
		entry, _ = c.entry(id)
	}

	entry.mu.Lock()
	entry.settings = settings
	versions := append([]types.SchemaVersion{}, entry.versions...)
	entry.mu.Unlock()

	raw, err := json.Marshal(persisted{Versions: versions, Settings: settings})
	if err != nil {
		return fmt.Errorf("encode schema settings %s: %w", id.Key(), err)
	}
	if err := c.store.Put(ctx, storeKey(id), raw); err != nil {
		return fmt.Errorf("persist schema settings %s: %w", id.Key(), err)
	}
	return nil
}

// Resolve implements check_for_schema (spec.md §4.2): given the field set
// inferred from an incoming record and that record's own canonical
// timestamp, it returns the schema version the record should be written
// against, widening the stream's schema in place when the record
// introduces a genuinely new, widening-compatible field set, and never
// shrinking or narrowing an existing field. ts drives the new version's
// start_dt on the widening path (spec.md §4.2 step 3); it plays no role
// on the fast path since no version boundary is created there.
//
// The fast path compares the field sets by name, type, and nullability
// against the current version, holding only the per-stream mutex. Only a
// mismatch goes on to merge, which takes the distributed lock, so
// concurrent identical-schema writers never contend on it.
func (c *Cache) Resolve(ctx context.Context, id types.StreamIdentity, incoming []types.Field, ts int64) (types.SchemaVersion, error) {
	if len(incoming) > ReqColsPerRecordLimit {
		return types.SchemaVersion{}, fmt.Errorf("record contributes %d fields, exceeds limit %d", len(incoming), ReqColsPerRecordLimit)
	}

	entry, ok := c.entry(id)
	if !ok {
		if err := c.Load(ctx, id); err != nil {
			return types.SchemaVersion{}, err
		}
		entry, _ = c.entry(id)
	}

	entry.mu.Lock()
	cur := entry.current()
	if fieldsEqual(cur.Fields, incoming) {
		entry.mu.Unlock()
		return cur, nil
	}
	entry.mu.Unlock()

	return c.merge(ctx, id, entry, incoming, ts)
}

// merge acquires the distributed lock for the stream and retries the
// read-modify-write against the durable store up to MetaTransactionRetries
// times, each separated by a flat 1s backoff, matching spec.md §7's retry
// policy for losing a metadata-store race to another node.
func (c *Cache) merge(ctx context.Context, id types.StreamIdentity, entry *streamEntry, incoming []types.Field, ts int64) (types.SchemaVersion, error) {
	mergeStart := time.Now()
	defer func() { metrics.SchemaMergeDuration.Observe(time.Since(mergeStart).Seconds()) }()

	lockKey := "schema/" + id.Key()
	locker, err := c.locks.Lock(ctx, lockKey, 0)
	if err != nil {
		metrics.SchemaMergesTotal.WithLabelValues("lock_failed").Inc()
		return types.SchemaVersion{}, fmt.Errorf("acquire schema lock %s: %w", id.Key(), err)
	}
	defer func() {
		if uerr := locker.Unlock(context.Background()); uerr != nil {
			log.Errorf("release schema lock", uerr)
		}
	}()

	var lastErr error
	for attempt := 0; attempt < MetaTransactionRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(retryBackoff):
			case <-ctx.Done():
				return types.SchemaVersion{}, ctx.Err()
			}
		}

		// Re-read the durable history: another process may have advanced
		// it since this cache last loaded the stream.
		if raw, found, gerr := c.store.Get(ctx, storeKey(id)); gerr != nil {
			lastErr = gerr
			continue
		} else if found {
			var rec persisted
			if uerr := json.Unmarshal(raw, &rec); uerr == nil && len(rec.Versions) > 0 {
				entry.mu.Lock()
				entry.versions = rec.Versions
				entry.settings = rec.Settings
				entry.mu.Unlock()
			}
		}

		entry.mu.Lock()
		cur := entry.current()
		if fieldsEqual(cur.Fields, incoming) {
			entry.mu.Unlock()
			return cur, nil
		}

		merged, changed, castOnly := mergeFields(cur.Fields, incoming)
		wallClock := time.Now().UnixMicro()

		// start_dt tracks the record's own timestamp, not wall-clock time
		// (spec.md §4.2 step 3); created_at stays an audit timestamp of
		// when the merge actually ran. A record whose ts lands at or
		// before the version it is widening is out of order: inserting it
		// with start_dt = ts would leave the new open version's boundary
		// behind the one it just closed, so a second version is inserted
		// right behind it at wall-clock time to restore a monotonic
		// boundary for whatever writes next in real time.
		outOfOrder := changed && cur.StartDT != 0 && ts <= cur.StartDT

		var next types.SchemaVersion
		if !changed {
			// Non-widening delta: keep the current version, mark the
			// offending fields with ZoCast so the writer knows to coerce
			// rather than waiting on a schema bump that will never come.
			next = cur
			next.Fields = castOnly
		} else {
			cur.EndDT = wallClock
			next = types.SchemaVersion{Fields: merged, StartDT: ts, EndDT: 0, CreatedAt: wallClock}
		}

		versions := append(append([]types.SchemaVersion{}, entry.versions[:len(entry.versions)-1]...), cur)
		if changed {
			versions = append(versions, next)
		} else {
			versions[len(versions)-1] = next
		}

		raw, merr := json.Marshal(persisted{Versions: versions, Settings: entry.settings})
		if merr != nil {
			entry.mu.Unlock()
			return types.SchemaVersion{}, fmt.Errorf("encode schema %s: %w", id.Key(), merr)
		}

		if perr := c.store.Put(ctx, storeKey(id), raw); perr != nil {
			entry.mu.Unlock()
			lastErr = perr
			continue
		}

		entry.versions = versions
		entry.mu.Unlock()

		metrics.SchemaVersionsTotal.WithLabelValues(id.OrgID, string(id.StreamType), id.StreamName).Set(float64(len(versions)))
		if changed {
			metrics.SchemaMergesTotal.WithLabelValues("widened").Inc()
		} else {
			metrics.SchemaMergesTotal.WithLabelValues("zo_cast").Inc()
		}

		if outOfOrder {
			caught, cerr := c.insertCatchUpVersion(ctx, id, entry, merged)
			if cerr != nil {
				log.Errorf("ingest: insert out-of-order catch-up schema version", cerr)
				return next, nil
			}
			return caught, nil
		}
		return next, nil
	}

	metrics.SchemaMergesTotal.WithLabelValues("retries_exhausted").Inc()
	return types.SchemaVersion{}, fmt.Errorf("merge schema %s after %d attempts: %w", id.Key(), MetaTransactionRetries, lastErr)
}

// insertCatchUpVersion closes the just-inserted out-of-order version and
// opens a fresh one with the same fields stamped at wall-clock time. It
// runs under the same merge-wide distributed lock as its caller, so it
// only needs the per-stream mutex and a single store write, not its own
// retry loop.
func (c *Cache) insertCatchUpVersion(ctx context.Context, id types.StreamIdentity, entry *streamEntry, fields []types.Field) (types.SchemaVersion, error) {
	now := time.Now().UnixMicro()

	entry.mu.Lock()
	versions := append([]types.SchemaVersion{}, entry.versions...)
	versions[len(versions)-1].EndDT = now
	caught := types.SchemaVersion{Fields: fields, StartDT: now, EndDT: 0, CreatedAt: now}
	versions = append(versions, caught)

	raw, err := json.Marshal(persisted{Versions: versions, Settings: entry.settings})
	if err != nil {
		entry.mu.Unlock()
		return types.SchemaVersion{}, fmt.Errorf("encode schema %s: %w", id.Key(), err)
	}
	if err := c.store.Put(ctx, storeKey(id), raw); err != nil {
		entry.mu.Unlock()
		return types.SchemaVersion{}, fmt.Errorf("persist schema %s: %w", id.Key(), err)
	}

	entry.versions = versions
	entry.mu.Unlock()

	metrics.SchemaVersionsTotal.WithLabelValues(id.OrgID, string(id.StreamType), id.StreamName).Set(float64(len(versions)))
	metrics.SchemaMergesTotal.WithLabelValues("out_of_order_catch_up").Inc()
	return caught, nil
}

// fieldsEqual compares two field sets by name+type+nullable, order
// independent.
func fieldsEqual(a, b []types.Field) bool {
	if len(a) != len(b) {
		return false
	}
	am := fieldsByName(a)
	for _, f := range b {
		other, ok := am[f.Name]
		if !ok || other.Type != f.Type || other.Nullable != f.Nullable {
			return false
		}
	}
	return true
}

func fieldsByName(fs []types.Field) map[string]types.Field {
	m := make(map[string]types.Field, len(fs))
	for _, f := range fs {
		m[f.Name] = f
	}
	return m
}

// mergeFields widens cur with incoming. It returns the merged field set,
// whether the schema actually changed (new or widened fields), and — when
// a field conflicts without a widening path — a copy of cur with that
// field flagged ZoCast instead of widened.
func mergeFields(cur, incoming []types.Field) (merged []types.Field, changed bool, castOnly []types.Field) {
	curByName := fieldsByName(cur)
	result := append([]types.Field{}, cur...)
	castResult := append([]types.Field{}, cur...)
	resultByName := fieldsByName(result)

	for _, f := range incoming {
		existing, ok := curByName[f.Name]
		if !ok {
			result = append(result, f)
			resultByName[f.Name] = f
			changed = true
			continue
		}

		widened, ok := Merge(existing.Type, f.Type)
		if !ok {
			castResult = setCast(castResult, f.Name)
			continue
		}
		if widened != existing.Type {
			for i := range result {
				if result[i].Name == f.Name {
					result[i].Type = widened
					changed = true
				}
			}
		}
	}

	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, changed, castResult
}

func setCast(fields []types.Field, name string) []types.Field {
	for i := range fields {
		if fields[i].Name == name {
			fields[i].ZoCast = true
		}
	}
	return fields
}
