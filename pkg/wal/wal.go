// Package wal implements component E: per-(thread, stream, partition)
// append-only write-ahead files, rotated by size/TTL, and the in-use
// refcount bookkeeping that keeps a file pinned while a search reads it.
package wal

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"

	"github.com/cuemby/ingestord/pkg/metrics"
	"github.com/cuemby/ingestord/pkg/types"
)

// RwFile is one append-only WAL file, newline-delimited JSON in append
// order per spec.md §6.1.
type RwFile struct {
	path    string
	org     string
	stream  string
	streamT types.StreamType

	mu      sync.Mutex
	f       *os.File
	size    int64
	expired time.Time
}

func (r *RwFile) Write(data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, err := r.f.Write(append(data, '\n'))
	if err != nil {
		return fmt.Errorf("write wal file %s: %w", r.path, err)
	}
	r.size += int64(n)

	metrics.IngestWALUsedBytes.WithLabelValues(r.org, string(r.streamT), r.stream).Add(float64(n))
	metrics.IngestWALWriteBytesTotal.WithLabelValues(r.org, string(r.streamT), r.stream).Add(float64(n))
	return nil
}

func (r *RwFile) Sync() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.f.Sync()
}

func (r *RwFile) Size() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}

func (r *RwFile) Expired(now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return now.After(r.expired)
}

func (r *RwFile) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.f.Close()
}

func (r *RwFile) Path() string { return r.path }

// Read reads the entire file from disk.
func (r *RwFile) Read() ([]byte, error) {
	return os.ReadFile(r.path)
}

type tableEntry struct {
	file *RwFile
}

// Manager holds one table per CPU partition, each mapping a
// "{org}/{stream_type}/{stream}/{partition_key}" full key to its open
// RwFile, per spec.md §4.3.
type Manager struct {
	dataDir    string
	cpuNum     int
	maxSize    int64
	defaultTTL time.Duration

	tables []*partitionTable
	node   *snowflake.Node

	searchMu       sync.Mutex
	searchingFiles map[string]int
	searchRequests map[string][]string
}

type partitionTable struct {
	mu      sync.RWMutex
	entries map[string]*tableEntry
}

// New builds a Manager with cpuNum partitions. nodeID seeds the
// Snowflake generator that names new WAL files and, per spec.md §4.1
// step 8, `_record_id` values.
func New(dataDir string, cpuNum int, maxFileSizeOnDisk int64, defaultTTL time.Duration, nodeID int64) (*Manager, error) {
	if cpuNum < 1 {
		cpuNum = 1
	}
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("create snowflake node: %w", err)
	}

	tables := make([]*partitionTable, cpuNum)
	for i := range tables {
		tables[i] = &partitionTable{entries: map[string]*tableEntry{}}
	}

	return &Manager{
		dataDir:        dataDir,
		cpuNum:         cpuNum,
		maxSize:        maxFileSizeOnDisk,
		defaultTTL:     defaultTTL,
		tables:         tables,
		node:           node,
		searchingFiles: map[string]int{},
		searchRequests: map[string][]string{},
	}, nil
}

// NextID returns a new Snowflake-style decimal id, used for both WAL
// file names and `_record_id` values.
func (m *Manager) NextID() string {
	return m.node.Generate().String()
}

func fullKey(id types.StreamIdentity, partitionKey string) string {
	return id.Key() + "/" + partitionKey
}

// GetOrCreate returns the live RwFile for (threadID, stream, partitionKey),
// reusing an existing handle unless it has outgrown maxFileSizeOnDisk or
// expired. Enrichment-table streams never reuse a cached handle.
func (m *Manager) GetOrCreate(threadID int, id types.StreamIdentity, partitioning types.PartitionTimeLevel, partitionKey string, ignoreRetention bool) (*RwFile, error) {
	table := m.tables[threadID%m.cpuNum]
	key := fullKey(id, partitionKey)

	if id.StreamType != types.StreamTypeEnrichmentTables {
		table.mu.RLock()
		entry, ok := table.entries[key]
		table.mu.RUnlock()
		if ok && entry.file.Size() < m.maxSize && !entry.file.Expired(time.Now()) {
			return entry.file, nil
		}
	}

	table.mu.Lock()
	defer table.mu.Unlock()

	if id.StreamType != types.StreamTypeEnrichmentTables {
		if entry, ok := table.entries[key]; ok {
			_ = entry.file.Sync()
			delete(table.entries, key)
		}
	}

	file, err := m.newRwFile(threadID, id, partitioning, partitionKey, ignoreRetention)
	if err != nil {
		return nil, err
	}

	if id.StreamType != types.StreamTypeEnrichmentTables {
		table.entries[key] = &tableEntry{file: file}
	}
	return file, nil
}

func (m *Manager) newRwFile(threadID int, id types.StreamIdentity, partitioning types.PartitionTimeLevel, partitionKey string, ignoreRetention bool) (*RwFile, error) {
	// An empty org or stream name addresses the internal file_list meta
	// stream; spec.md §4.3 describes this as "/files//file_list//"
	// collapsing to "/file_list/" rather than nesting empty segments.
	dir := filepath.Join(m.dataDir, "files", id.OrgID, string(id.StreamType), id.StreamName)
	if id.OrgID == "" || id.StreamName == "" {
		dir = filepath.Join(m.dataDir, "file_list")
	}

	fileID := m.NextID()
	path := filepath.Join(dir, strconv.Itoa(threadID), partitionKey, fileID+".json")

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create wal directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open wal file %s: %w", path, err)
	}

	metrics.WALFilesOpen.Inc()

	return &RwFile{
		path:    path,
		org:     id.OrgID,
		stream:  id.StreamName,
		streamT: id.StreamType,
		f:       f,
		expired: m.expiry(partitioning, ignoreRetention),
	}, nil
}

// expiry computes the TTL cutoff of spec.md §4.3: when retention isn't
// ignored and the partition level has a bounded duration, the expiry is
// the lesser of "now + duration" and "end of today + default TTL",
// which prevents a midnight rollover from silently outliving its own
// partition window.
func (m *Manager) expiry(partitioning types.PartitionTimeLevel, ignoreRetention bool) time.Time {
	now := time.Now()
	duration := partitioning.Duration()
	if ignoreRetention || duration <= 0 {
		return now.Add(m.defaultTTL)
	}

	endOfToday := time.Date(now.Year(), now.Month(), now.Day(), 23, 59, 59, 0, now.Location())
	byDuration := now.Add(duration)
	byRetention := endOfToday.Add(m.defaultTTL)
	if byDuration.Before(byRetention) {
		return byDuration
	}
	return byRetention
}

// LockFiles increments the in-use refcount for each path, pinning them
// against local deletion until ReleaseFiles drops the count to zero.
func (m *Manager) LockFiles(paths []string) {
	m.searchMu.Lock()
	defer m.searchMu.Unlock()
	for _, p := range paths {
		m.searchingFiles[p]++
	}
}

// ReleaseFiles decrements the refcount, removing the entry at zero.
func (m *Manager) ReleaseFiles(paths []string) {
	m.searchMu.Lock()
	defer m.searchMu.Unlock()
	for _, p := range paths {
		if n, ok := m.searchingFiles[p]; ok {
			if n <= 1 {
				delete(m.searchingFiles, p)
			} else {
				m.searchingFiles[p] = n - 1
			}
		}
	}
}

// IsLocked reports whether path has at least one outstanding search lock.
func (m *Manager) IsLocked(path string) bool {
	m.searchMu.Lock()
	defer m.searchMu.Unlock()
	return m.searchingFiles[path] > 0
}

// LockRequest associates traceID with the files it is reading, so a
// single ReleaseRequest call releases every file the request touched.
func (m *Manager) LockRequest(traceID string, paths []string) {
	m.LockFiles(paths)
	m.searchMu.Lock()
	m.searchRequests[traceID] = paths
	m.searchMu.Unlock()
}

// ReleaseRequest releases every file associated with traceID.
func (m *Manager) ReleaseRequest(traceID string) {
	m.searchMu.Lock()
	paths := m.searchRequests[traceID]
	delete(m.searchRequests, traceID)
	m.searchMu.Unlock()
	m.ReleaseFiles(paths)
}
