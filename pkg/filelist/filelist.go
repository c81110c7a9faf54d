// Package filelist implements component D: the in-memory index of sealed
// files per stream, keyed by date partition, backing scan_prefix and
// get_file_list queries without a round-trip to the metadata store.
package filelist

import (
	"strings"
	"sync"
	"time"

	"github.com/cuemby/ingestord/pkg/types"
)

// Index holds the two concurrent maps of spec.md §4.5: FILES maps a
// stream key to its date-partition → file-name vectors, and DATA maps a
// full file key to its FileMeta.
type Index struct {
	filesMu sync.RWMutex
	files   map[string]map[string][]string // stream_key -> date_key -> file names

	dataMu sync.RWMutex
	data   map[string]types.FileMeta // full file key -> meta
}

// New builds an empty Index.
func New() *Index {
	return &Index{
		files: map[string]map[string][]string{},
		data:  map[string]types.FileMeta{},
	}
}

// Set parses key via the 9-way file-key grammar and records meta,
// appending the file name into its date partition's vector. Callers
// must not double-insert; this does not dedup, per spec.md §4.5.
func (idx *Index) Set(key string, meta types.FileMeta) error {
	fk, err := types.ParseFileKey(key)
	if err != nil {
		return err
	}

	streamKey := fk.StreamKey()
	dateKey := fk.DatePartition()

	idx.filesMu.Lock()
	dates, ok := idx.files[streamKey]
	if !ok {
		dates = map[string][]string{}
		idx.files[streamKey] = dates
	}
	dates[dateKey] = append(dates[dateKey], fk.FileName)
	idx.filesMu.Unlock()

	idx.dataMu.Lock()
	idx.data[key] = meta
	idx.dataMu.Unlock()
	return nil
}

// Delete removes meta and the file name from its date partition's
// vector. A missing entry is a no-op.
func (idx *Index) Delete(key string) error {
	fk, err := types.ParseFileKey(key)
	if err != nil {
		return err
	}

	streamKey := fk.StreamKey()
	dateKey := fk.DatePartition()

	idx.filesMu.Lock()
	if dates, ok := idx.files[streamKey]; ok {
		names := dates[dateKey]
		for i, n := range names {
			if n == fk.FileName {
				dates[dateKey] = append(names[:i], names[i+1:]...)
				break
			}
		}
	}
	idx.filesMu.Unlock()

	idx.dataMu.Lock()
	delete(idx.data, key)
	idx.dataMu.Unlock()
	return nil
}

// Get returns the FileMeta for key, or false if not indexed.
func (idx *Index) Get(key string) (types.FileMeta, bool) {
	idx.dataMu.RLock()
	defer idx.dataMu.RUnlock()
	m, ok := idx.data[key]
	return m, ok
}

// ScanPrefix yields every full file key under streamKey whose date
// partition starts with prefix (form "YYYY[/MM[/DD[/HH]]]", trailing
// slash tolerated). An empty prefix yields every file for the stream.
func (idx *Index) ScanPrefix(org string, streamName string, streamType types.StreamType, prefix string) []string {
	streamKey := types.StreamIdentity{OrgID: org, StreamType: streamType, StreamName: streamName}.Key()
	prefix = strings.TrimSuffix(prefix, "/")

	idx.filesMu.RLock()
	dates := idx.files[streamKey]
	var matches []struct{ dateKey, name string }
	for dateKey, names := range dates {
		if prefix == "" || strings.HasPrefix(dateKey, prefix) {
			for _, n := range names {
				matches = append(matches, struct{ dateKey, name string }{dateKey, n})
			}
		}
	}
	idx.filesMu.RUnlock()

	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, "files/"+streamKey+"/"+m.dateKey+"/"+m.name)
	}
	return out
}

const hour48 = 48 * 3600 * 1_000_000 // µs

// GetFileList resolves (time_min_us, time_max_us) into the date prefixes
// spec.md §4.5 specifies — hour-granular when the span is ≤48h (plus a
// day-00-hour key for Daily partitioning), else day-granular — and unions
// ScanPrefix across each.
func (idx *Index) GetFileList(org, streamName string, streamType types.StreamType, timeMinUs, timeMaxUs int64, partitioning types.PartitionTimeLevel) []string {
	if timeMinUs <= 0 || timeMaxUs <= 0 {
		return idx.ScanPrefix(org, streamName, streamType, "")
	}

	prefixes := datePrefixes(timeMinUs, timeMaxUs, partitioning)

	seen := map[string]struct{}{}
	var out []string
	for _, p := range prefixes {
		for _, f := range idx.ScanPrefix(org, streamName, streamType, p) {
			if _, ok := seen[f]; !ok {
				seen[f] = struct{}{}
				out = append(out, f)
			}
		}
	}
	return out
}

func datePrefixes(minUs, maxUs int64, partitioning types.PartitionTimeLevel) []string {
	const hourUs = int64(3600 * 1_000_000)
	const dayUs = 24 * hourUs

	var prefixes []string
	if maxUs-minUs <= hour48 {
		for t := minUs - (minUs % hourUs); t <= maxUs; t += hourUs {
			prefixes = append(prefixes, hourKey(t))
		}
		if partitioning == types.PartitionTimeLevelDaily {
			for t := minUs - (minUs % dayUs); t <= maxUs; t += dayUs {
				prefixes = append(prefixes, dayKey(t)+"/00")
			}
		}
		return prefixes
	}

	for t := minUs - (minUs % dayUs); t <= maxUs; t += dayUs {
		prefixes = append(prefixes, dayKey(t))
	}
	return prefixes
}

func secToTime(sec int64) time.Time { return time.Unix(sec, 0).UTC() }

func hourKey(us int64) string {
	return secToTime(us / 1_000_000).Format("2006/01/02/15")
}

func dayKey(us int64) string {
	return secToTime(us / 1_000_000).Format("2006/01/02")
}
