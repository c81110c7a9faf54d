// Package filecache implements component C: a process-wide byte cache
// for file contents read back off object storage, with spec.md §4.4's
// exact eviction and consistency rules.
package filecache

import (
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/cuemby/ingestord/pkg/log"
	"github.com/cuemby/ingestord/pkg/metrics"
)

// Cache holds two structures per spec.md §4.4: an LRU of key→byte-size
// (FILES) guarded by a write lock, and a concurrent key→bytes map (DATA)
// whose membership always mirrors the LRU's.
type Cache struct {
	maxSize     int64
	releaseSize int64

	mu      sync.RWMutex // guards files + curSize; set/evict take it write-locked
	files   *lru.Cache[string, int64]
	curSize int64

	dataMu sync.RWMutex
	data   map[string][]byte
}

// New builds a Cache bounded by maxSize total bytes; releaseSize is the
// minimum per-eviction reclaim target from disk_cache.release_size.
func New(maxSize, releaseSize int64) (*Cache, error) {
	// The LRU itself is unbounded by entry count — eviction is driven by
	// our own byte-size accounting, not the library's capacity limit —
	// so size is set generously large rather than meaningfully capped.
	files, err := lru.New[string, int64](1 << 20)
	if err != nil {
		return nil, err
	}
	return &Cache{
		maxSize:     maxSize,
		releaseSize: releaseSize,
		files:       files,
		data:        map[string][]byte{},
	}, nil
}

// Get returns a clone of the cached bytes for file, optionally sliced to
// [start,end). It does not affect LRU order: spec.md §4.4 documents no
// promotion-on-read as an intentional simplification.
func (c *Cache) Get(file string, start, end int64) ([]byte, bool) {
	c.dataMu.RLock()
	data, ok := c.data[file]
	c.dataMu.RUnlock()
	if !ok {
		metrics.FileCacheMissesTotal.Inc()
		return nil, false
	}
	metrics.FileCacheHitsTotal.Inc()

	if start == 0 && end == 0 {
		out := make([]byte, len(data))
		copy(out, data)
		return out, true
	}
	if start < 0 || end > int64(len(data)) || start > end {
		return nil, false
	}
	out := make([]byte, end-start)
	copy(out, data[start:end])
	return out, true
}

// Exist is a read-only presence check.
func (c *Cache) Exist(file string) bool {
	c.dataMu.RLock()
	defer c.dataMu.RUnlock()
	_, ok := c.data[file]
	return ok
}

// Set inserts file's bytes if absent; an existing key is a no-op — set
// is idempotent, first writer wins, per spec.md §4.4.
func (c *Cache) Set(file string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.files.Contains(file) {
		return
	}

	size := int64(len(data)) + int64(len(file))
	if c.curSize+size >= c.maxSize {
		c.evict(size)
	}

	c.files.Add(file, size)
	c.curSize += size
	metrics.FileCacheBytes.Set(float64(c.curSize))

	c.dataMu.Lock()
	c.data[file] = data
	c.dataMu.Unlock()
}

// evict pops LRU entries until accumulated freed bytes reach the
// eviction target computed from the incoming record's size, per
// spec.md §4.4's release_size formula. Must be called holding c.mu.
func (c *Cache) evict(incomingSize int64) {
	target := c.releaseSize
	if want := incomingSize * 100; want > target {
		target = want
	}
	if target > c.maxSize {
		target = c.maxSize
	}

	var freed int64
	for freed < target {
		key, size, ok := c.files.RemoveOldest()
		if !ok {
			log.Error("file cache emptied before reaching eviction target; possible accounting corruption")
			return
		}

		c.curSize -= size
		freed += size

		c.dataMu.Lock()
		delete(c.data, key)
		c.dataMu.Unlock()

		recordEvictionMetric(key)
	}
}

// recordEvictionMetric decomposes a files/{org}/{stream_type}/{stream}/...
// key into its label triple for the eviction counter, per spec.md §4.4.
func recordEvictionMetric(key string) {
	parts := strings.SplitN(strings.TrimPrefix(key, "files/"), "/", 4)
	if len(parts) < 3 {
		return
	}
	metrics.FileCacheEvictionsTotal.WithLabelValues(parts[0], parts[1], parts[2]).Inc()
}

// Size returns the current total tracked byte size.
func (c *Cache) Size() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.curSize
}
