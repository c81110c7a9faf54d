// Package ingest implements component H: the ingestion core that turns
// a decoded batch of records into schema-validated, WAL-durable writes
// per stream, per spec.md §4.1.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cuemby/ingestord/pkg/log"
	"github.com/cuemby/ingestord/pkg/metrics"
	"github.com/cuemby/ingestord/pkg/schema"
	"github.com/cuemby/ingestord/pkg/types"
	"github.com/cuemby/ingestord/pkg/wal"
)

// Limits bundles the process-wide knobs spec.md §6.7's `limit.*`
// namespace exposes to the ingestion core.
type Limits struct {
	SkipFormattingStreamName  bool
	FlattenLevel              int
	ReqColsPerRecordLimit     int
	IngestAllowedUpto         time.Duration
	IngestAllowedInFuture     time.Duration
	AllValuesMaxLen           int
	AllowUserDefinedSchemas   bool
	SchemaMaxFieldsForUDS     int
}

// Core is the process-wide entry point for ingest().
type Core struct {
	schema *schema.Cache
	wal    *wal.Manager
	limits Limits

	blocked *blockedSet

	pipelinesMu sync.RWMutex
	pipelines   map[string]Pipeline
}

// New wires a Core over an already-constructed schema cache and WAL
// manager.
func New(schemaCache *schema.Cache, walManager *wal.Manager, limits Limits) *Core {
	return &Core{
		schema:    schemaCache,
		wal:       walManager,
		limits:    limits,
		blocked:   newBlockedSet(),
		pipelines: map[string]Pipeline{},
	}
}

// Blocklist exposes the admission blocklist for operators to manage.
func (c *Core) Blocklist() *blockedSet { return c.blocked }

// preparedRecord is a record that has cleared timestamp validation and
// is ready for UDS projection, decoration, and schema resolution.
type preparedRecord struct {
	inputIdx  int
	value     map[string]any
	timestamp int64
}

type streamBatch struct {
	identity types.StreamIdentity
	settings types.StreamSettings
	records  []preparedRecord
}

// Ingest implements spec.md §4.1's `ingest` operation. streamType names
// the endpoint's stream family (the operation's stream_name input is
// scoped to one family per call, matching how ingestord's transport
// layer routes /api/{org}/{stream_type}/{stream}/_* endpoints); Bulk
// requests may still redirect individual records to other stream names
// within that family via their per-record `_index` header.
func (c *Core) Ingest(ctx context.Context, threadID int, orgID string, streamType types.StreamType, streamName string, req Request, user string) (types.IngestionResponse, error) {
	start := time.Now()
	defer func() {
		metrics.IngestDuration.WithLabelValues(string(streamType)).Observe(time.Since(start).Seconds())
	}()

	normalized := normalizeStreamName(streamName, c.limits.SkipFormattingStreamName)
	if normalized == "" || normalized == "_" || normalized == "/" {
		return types.IngestionResponse{}, fmt.Errorf("invalid stream name %q", streamName)
	}
	if c.blocked.IsBlocked(orgID, streamType) {
		return types.IngestionResponse{}, &types.RequestError{
			Kind:   types.ErrKindStreamBlocked,
			Reason: fmt.Sprintf("stream %s/%s is blocked for ingestion", orgID, streamType),
		}
	}

	decoded, err := decode(req)
	if err != nil {
		return types.IngestionResponse{}, fmt.Errorf("decode request: %w", err)
	}

	items := make([]types.ResponseItem, len(decoded))
	batches := map[string]*streamBatch{}
	now := time.Now()

	// Buffer per-source-stream pipeline inputs separately so every
	// source stream with a registered pipeline is dispatched exactly
	// once, after every record has been parsed (spec.md §4.1 step 4).
	pipelineInputs := map[string][]PipelineInput{}
	pipelineOwner := map[string]types.StreamIdentity{}

	for idx, rec := range decoded {
		destName := normalized
		if rec.IndexOverride != "" {
			destName = normalizeStreamName(rec.IndexOverride, c.limits.SkipFormattingStreamName)
		}
		items[idx] = types.ResponseItem{Action: rec.Action, Stream: destName, ID: rec.ID, Status: 200}

		if rec.Err != "" {
			items[idx].Status = 400
			items[idx].Error = rec.Err
			metrics.RecordErrorsTotal.WithLabelValues(rec.Err).Inc()
			continue
		}

		source := types.StreamIdentity{OrgID: orgID, StreamType: streamType, StreamName: destName}
		settings, err := c.schema.Settings(ctx, source)
		if err != nil {
			failItem(items, idx, 500, types.ErrKindSchemaConformanceFailed)
			continue
		}

		_, hasPipeline := c.pipelineFor(source)

		// A pipeline can fan out to a destination stream whose own
		// StoreOriginalData differs from the source's, and that
		// destination isn't known until the pipeline runs. Capture
		// original whenever a pipeline exists so the destination's
		// setting can still be honored downstream in acceptFlattened;
		// gate only the no-pipeline path on the source's own setting.
		original := ""
		if settings.StoreOriginalData || hasPipeline {
			original = mustJSONString(rec.value())
		}

		if hasPipeline {
			ts, _, _ := parseTimestamp(rec.Value["_timestamp"])
			if ts == 0 {
				ts = now.UnixMicro()
			}
			key := source.Key()
			pipelineOwner[key] = source
			pipelineInputs[key] = append(pipelineInputs[key], PipelineInput{
				InputIdx: idx, Value: rec.Value, Original: original, Timestamp: ts,
			})
			continue
		}

		c.processNoPipeline(ctx, source, settings, original, idx, rec, items, batches)
	}

	for key, inputs := range pipelineInputs {
		source := pipelineOwner[key]
		p, _ := c.pipelineFor(source)
		outputs, err := p.Process(ctx, source, inputs)
		if err != nil {
			for _, in := range inputs {
				failItem(items, in.InputIdx, 500, types.ErrKindPipelineExecutionFailed)
			}
			continue
		}
		originalByIdx := map[int]string{}
		for _, in := range inputs {
			originalByIdx[in.InputIdx] = in.Original
		}
		for _, out := range outputs {
			settings, err := c.schema.Settings(ctx, out.Stream)
			if err != nil {
				failItem(items, out.InputIdx, 500, types.ErrKindSchemaConformanceFailed)
				continue
			}
			c.acceptFlattened(ctx, out.Stream, settings, originalByIdx[out.InputIdx], out.InputIdx, out.Value, items, batches)
		}
	}

	for _, batch := range batches {
		c.writeBatch(ctx, batch, items)
	}

	resp := types.IngestionResponse{Took: time.Since(start)}
	resp.Items = items
	for _, item := range items {
		if item.Status >= 400 {
			resp.Errors = true
		}
	}
	return resp, nil
}

// failItem tags a single response item as failed, keeping the error
// taxonomy of spec.md §7 wired through a typed types.RecordError instead
// of a bare string at each call site.
func failItem(items []types.ResponseItem, idx, status int, kind types.ErrorKind) {
	recErr := &types.RecordError{Kind: kind}
	items[idx].Status = status
	items[idx].Error = string(recErr.Kind)
	metrics.RecordErrorsTotal.WithLabelValues(string(recErr.Kind)).Inc()
}

func (r decodedRecord) value() map[string]any { return r.Value }

// processNoPipeline runs the non-pipeline path of spec.md §4.1: flatten
// straight from the decoded record, then hand off to acceptFlattened.
func (c *Core) processNoPipeline(ctx context.Context, source types.StreamIdentity, settings types.StreamSettings, original string, idx int, rec decodedRecord, items []types.ResponseItem, batches map[string]*streamBatch) {
	flat := flatten(rec.Value, c.limits.FlattenLevel)
	c.acceptFlattened(ctx, source, settings, original, idx, flat, items, batches)
}

// acceptFlattened runs timestamp validation, UDS projection, and
// decoration on an already-flattened record, then queues it for the
// destination stream's writer.
func (c *Core) acceptFlattened(ctx context.Context, dest types.StreamIdentity, settings types.StreamSettings, original string, idx int, value map[string]any, items []types.ResponseItem, batches map[string]*streamBatch) {
	now := time.Now()
	raw, present := value["_timestamp"]
	ts, _, err := parseTimestamp(raw)
	if present && err != nil {
		failItem(items, idx, 400, types.ErrKindTimestampParsingFailed)
		return
	}
	if !present {
		ts = now.UnixMicro()
	}
	if boundsErr := checkBounds(ts, now, c.limits.IngestAllowedUpto, c.limits.IngestAllowedInFuture); boundsErr != nil {
		failItem(items, idx, 400, types.ErrKindTimestampParsingFailed)
		log.Errorf("ingest: timestamp out of bounds", boundsErr)
		return
	}
	value["_timestamp"] = ts

	value = projectUDS(value, settings.UserDefinedSchema)

	recordID := c.wal.NextID()
	value = decorate(value, original, settings.StoreOriginalData, settings.StoreAllValues, recordID, c.limits.AllValuesMaxLen)

	key := dest.Key()
	batch, ok := batches[key]
	if !ok {
		batch = &streamBatch{identity: dest, settings: settings}
		batches[key] = batch
	}
	batch.records = append(batch.records, preparedRecord{
		inputIdx: idx, value: value, timestamp: ts,
	})
}

// writeBatch implements the per-stream writer spec.md §4.1 invokes once
// every record has been processed: resolve the schema against the
// batch's union of fields, coerce any zo_cast fields, then append each
// record to its WAL partition.
func (c *Core) writeBatch(ctx context.Context, batch *streamBatch, items []types.ResponseItem) {
	if len(batch.records) == 0 {
		return
	}

	fieldSets := make([][]types.Field, len(batch.records))
	for i, rec := range batch.records {
		fieldSets[i] = inferFields(rec.value)
	}
	union := unionFields(fieldSets)

	if c.limits.ReqColsPerRecordLimit > 0 && len(union) > c.limits.ReqColsPerRecordLimit {
		for _, rec := range batch.records {
			failItem(items, rec.inputIdx, 400, types.ErrKindTooManyColumns)
		}
		return
	}

	version, err := c.schema.Resolve(ctx, batch.identity, union, earliestTimestamp(batch.records))
	if err != nil {
		for _, rec := range batch.records {
			failItem(items, rec.inputIdx, 500, types.ErrKindSchemaConformanceFailed)
		}
		log.Errorf("ingest: resolve schema", err)
		return
	}
	c.maybeAutoEnableUDS(ctx, batch.identity, batch.settings, version)

	for _, rec := range batch.records {
		coerceZoCast(rec.value, version.Fields)

		line, err := json.Marshal(rec.value)
		if err != nil {
			failItem(items, rec.inputIdx, 500, types.ErrKindDocumentFailedTransform)
			continue
		}

		partitionKey := partitionKeyFor(rec.timestamp, batch.settings.PartitionTimeLevel)
		f, err := c.wal.GetOrCreate(threadIDFor(rec.inputIdx), batch.identity, batch.settings.PartitionTimeLevel, partitionKey, batch.settings.IgnoreFileRetention)
		if err != nil {
			failItem(items, rec.inputIdx, 500, types.ErrKindDocumentFailedTransform)
			log.Errorf("ingest: open wal file", err)
			continue
		}
		if err := f.Write(line); err != nil {
			failItem(items, rec.inputIdx, 500, types.ErrKindDocumentFailedTransform)
			log.Errorf("ingest: write wal record", err)
			continue
		}

		metrics.RecordsIngestedTotal.WithLabelValues(batch.identity.OrgID, string(batch.identity.StreamType), batch.identity.StreamName, "success").Inc()
	}
}

// earliestTimestamp picks the representative record timestamp a batch's
// single schema.Resolve call drives start_dt from. A batch can carry
// several distinct record timestamps; the earliest one is the most
// conservative choice for detecting an out-of-order widen.
func earliestTimestamp(records []preparedRecord) int64 {
	earliest := records[0].timestamp
	for _, rec := range records[1:] {
		if rec.timestamp < earliest {
			earliest = rec.timestamp
		}
	}
	return earliest
}

// threadIDFor keeps all records from one Ingest call's batch on the
// same WAL partition table; a real deployment hashes on the calling
// goroutine's worker slot instead of the record index.
func threadIDFor(_ int) int { return 0 }

// maybeAutoEnableUDS implements spec.md §4.2 step 4: once a Logs stream
// with no UDS yet crosses schema_max_fields_to_enable_uds fields, it
// synthesizes one from the full-text-search keys plus a deterministic
// walk of the remaining fields, and persists it as a stream setting.
func (c *Core) maybeAutoEnableUDS(ctx context.Context, id types.StreamIdentity, settings types.StreamSettings, version types.SchemaVersion) {
	if !c.limits.AllowUserDefinedSchemas ||
		id.StreamType != types.StreamTypeLogs ||
		len(settings.UserDefinedSchema) > 0 ||
		c.limits.SchemaMaxFieldsForUDS <= 0 ||
		len(version.Fields) <= c.limits.SchemaMaxFieldsForUDS {
		return
	}

	ftsSet := map[string]bool{}
	for _, k := range settings.FullTextSearchKeys {
		ftsSet[k] = true
	}

	var uds []string
	seen := map[string]bool{}
	add := func(name string) {
		if name == "_timestamp" || name == ExtraFieldsColumn || seen[name] {
			return
		}
		seen[name] = true
		uds = append(uds, name)
	}

	names := make([]string, 0, len(version.Fields))
	for _, f := range version.Fields {
		names = append(names, f.Name)
	}
	sort.Strings(names)

	for _, name := range names {
		if ftsSet[name] {
			add(name)
		}
	}
	for _, name := range names {
		if len(uds) >= c.limits.SchemaMaxFieldsForUDS {
			break
		}
		add(name)
	}

	settings.UserDefinedSchema = uds
	if err := c.schema.SetSettings(ctx, id, settings); err != nil {
		log.Errorf("ingest: persist auto-enabled uds", err)
	}
}

// normalizeStreamName applies the single process-wide formatting flag
// of spec.md §4.1: strip whitespace always, and lowercase unless the
// flag asks to preserve the caller's casing.
func normalizeStreamName(name string, skipFormatting bool) string {
	name = strings.TrimSpace(name)
	if !skipFormatting {
		name = strings.ToLower(name)
	}
	return name
}

// partitionKeyFor derives the "{YYYY}/{MM}/{DD}/{HH}"-shaped WAL
// partition key from a record's canonical timestamp, collapsing the
// hour segment to "00" for daily partitioning.
func partitionKeyFor(ts int64, level types.PartitionTimeLevel) string {
	t := time.UnixMicro(ts).UTC()
	hour := t.Format("15")
	if level == types.PartitionTimeLevelDaily {
		hour = "00"
	}
	return t.Format("2006/01/02") + "/" + hour
}
