// Package rotation implements the background collaborator spec.md §4.3
// describes separately from the WAL manager: it watches the WAL
// directory for files the manager no longer holds open, uploads them to
// object storage, registers their FileMeta in the file-list index, and
// only then deletes the local copy.
package rotation

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/cuemby/ingestord/pkg/filelist"
	"github.com/cuemby/ingestord/pkg/log"
	"github.com/cuemby/ingestord/pkg/metrics"
	"github.com/cuemby/ingestord/pkg/objectstore"
	"github.com/cuemby/ingestord/pkg/types"
	"github.com/cuemby/ingestord/pkg/wal"
)

// Worker scans a WAL directory tree for sealed files — ones the manager
// no longer has open — and graduates them to object storage and the
// file-list index.
type Worker struct {
	dataDir string
	manager *wal.Manager
	store   objectstore.Store
	index   *filelist.Index

	watcher  *fsnotify.Watcher
	stopCh   chan struct{}
	interval time.Duration
}

// New builds a Worker rooted at dataDir. interval is the fallback poll
// period used alongside the fsnotify watch, since a watch alone can miss
// events under heavy directory churn.
func New(dataDir string, manager *wal.Manager, store objectstore.Store, index *filelist.Index, interval time.Duration) (*Worker, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create wal fsnotify watcher: %w", err)
	}
	if err := watcher.Add(filepath.Join(dataDir, "files")); err != nil {
		log.Error("wal rotation: watch root not yet present, polling only")
	}

	return &Worker{
		dataDir:  dataDir,
		manager:  manager,
		store:    store,
		index:    index,
		watcher:  watcher,
		stopCh:   make(chan struct{}),
		interval: interval,
	}, nil
}

// Start runs the scan loop in a background goroutine until Stop is called.
func (w *Worker) Start() { go w.run() }

func (w *Worker) Stop() {
	close(w.stopCh)
	_ = w.watcher.Close()
}

func (w *Worker) run() {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.scan()
		case event, ok := <-w.watcher.Events:
			if ok && event.Op&fsnotify.Write != 0 {
				w.scan()
			}
		case <-w.stopCh:
			return
		}
	}
}

// scan walks the WAL directory and graduates every sealed file it finds.
// A file is sealed when it is no longer pinned by a SEARCHING_FILES
// refcount and the manager's table no longer references it as a live
// write target (approximated here by age: files untouched for the
// rotation worker's own poll interval are assumed closed, since the
// manager always replaces a stale entry before a writer can reopen it).
func (w *Worker) scan() {
	root := filepath.Join(w.dataDir, "files")
	_ = filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil || info == nil || info.IsDir() {
			return nil
		}
		if !strings.HasSuffix(path, ".json") {
			return nil
		}
		if w.manager.IsLocked(path) {
			return nil
		}
		if time.Since(info.ModTime()) < w.interval {
			return nil
		}
		w.graduate(path)
		return nil
	})
}

func (w *Worker) graduate(path string) {
	fk, err := fileKeyFromPath(w.dataDir, path)
	if err != nil {
		log.Errorf("wal rotation: skip ungradeable path", err)
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		log.Errorf("wal rotation: read sealed file", err)
		return
	}

	meta, err := summarize(data)
	if err != nil {
		log.Errorf("wal rotation: summarize sealed file", err)
		return
	}

	ctx := context.Background()
	key := fk.String()
	if err := w.store.Put(ctx, key, data); err != nil {
		log.Errorf("wal rotation: upload sealed file", err)
		return
	}
	if err := w.index.Set(key, meta); err != nil {
		log.Errorf("wal rotation: index sealed file", err)
		return
	}

	if err := os.Remove(path); err != nil {
		log.Errorf("wal rotation: remove local sealed file after indexing", err)
		return
	}
	metrics.WALRotationsTotal.Inc()
	metrics.WALFilesOpen.Dec()
}

// fileKeyFromPath reconstructs the files/{org}/{stream_type}/{stream}/
// {Y}/{M}/{D}/{H}/{name} key from a WAL path laid out as
// {dataDir}/files/{org}/{stream_type}/{stream}/{thread}/{partition_key}/{id}.json.
// The thread segment is dropped; the partition key supplies the date
// components the sealed key needs.
func fileKeyFromPath(dataDir, path string) (types.FileKey, error) {
	rel, err := filepath.Rel(filepath.Join(dataDir, "files"), path)
	if err != nil {
		return types.FileKey{}, err
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	// org / stream_type / stream / thread / partition... / file.json
	if len(parts) < 6 {
		return types.FileKey{}, fmt.Errorf("wal path %q has too few segments for a sealed key", path)
	}

	org, streamType, stream := parts[0], parts[1], parts[2]
	dateParts := parts[4 : len(parts)-1]
	for len(dateParts) < 4 {
		dateParts = append(dateParts, "00")
	}

	return types.FileKey{
		Org:        org,
		StreamType: types.StreamType(streamType),
		Stream:     stream,
		Year:       dateParts[0],
		Month:      dateParts[1],
		Day:        dateParts[2],
		Hour:       dateParts[3],
		FileName:   filepath.Base(path),
	}, nil
}

// summarize derives a FileMeta by scanning the newline-delimited JSON
// records for their _timestamp field. A truncated final line is
// tolerated, per spec.md §6.1.
func summarize(data []byte) (types.FileMeta, error) {
	var meta types.FileMeta
	meta.OriginalSize = uint64(len(data))
	meta.CompressedSize = uint64(len(data))

	lines := strings.Split(string(data), "\n")
	first := true
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var rec map[string]any
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			continue // tolerate a truncated final line
		}
		ts, ok := tsOf(rec["_timestamp"])
		if !ok {
			continue
		}
		if first || ts < meta.MinTS {
			meta.MinTS = ts
		}
		if first || ts > meta.MaxTS {
			meta.MaxTS = ts
		}
		first = false
		meta.Records++
	}
	return meta, nil
}

func tsOf(v any) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		return i, err == nil
	default:
		return 0, false
	}
}
