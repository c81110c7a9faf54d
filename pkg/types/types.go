// Package types holds the data model shared across ingestord's components:
// stream identity, file metadata, schema versions, and the record shapes
// that move through the ingestion pipeline.
package types

import "time"

// StreamType identifies which kind of time-series collection a stream holds.
type StreamType string

const (
	StreamTypeLogs             StreamType = "logs"
	StreamTypeMetrics          StreamType = "metrics"
	StreamTypeTraces           StreamType = "traces"
	StreamTypeEnrichmentTables StreamType = "enrichment_tables"
	StreamTypeMetadata         StreamType = "metadata"
)

// StreamIdentity is the triple that addresses a stream.
type StreamIdentity struct {
	OrgID      string
	StreamType StreamType
	StreamName string
}

// Key returns the canonical "{org_id}/{stream_type}/{stream_name}" form.
func (s StreamIdentity) Key() string {
	return s.OrgID + "/" + string(s.StreamType) + "/" + s.StreamName
}

// FileMeta is the fixed 40-byte little-endian summary of a sealed file.
type FileMeta struct {
	MinTS           int64
	MaxTS           int64
	Records         uint64
	OriginalSize    uint64
	CompressedSize  uint64
}

// FieldType is the closed set of scalar types a schema field can hold.
// Names follow the widening lattice of spec.md §4.2 literally, since
// downstream comparisons key off these exact strings.
type FieldType string

const (
	FieldTypeInt8      FieldType = "Int8"
	FieldTypeInt16     FieldType = "Int16"
	FieldTypeInt32     FieldType = "Int32"
	FieldTypeInt64     FieldType = "Int64"
	FieldTypeUInt8     FieldType = "UInt8"
	FieldTypeUInt16    FieldType = "UInt16"
	FieldTypeUInt32    FieldType = "UInt32"
	FieldTypeUInt64    FieldType = "UInt64"
	FieldTypeFloat16   FieldType = "Float16"
	FieldTypeFloat32   FieldType = "Float32"
	FieldTypeFloat64   FieldType = "Float64"
	FieldTypeBoolean   FieldType = "Boolean"
	FieldTypeUtf8      FieldType = "Utf8"
	FieldTypeLargeUtf8 FieldType = "LargeUtf8"
	FieldTypeUtf8View  FieldType = "Utf8View"
)

// Field is one column of a stream schema.
type Field struct {
	Name     string
	Type     FieldType
	Nullable bool
	// ZoCast marks a field whose stored type differs from a non-widening
	// observed type; ingestion coerces to Type at write time instead of
	// bumping the schema version. Durable across (de)serialization.
	ZoCast bool
}

// SchemaVersion is one entry in a stream's ordered version history.
type SchemaVersion struct {
	Fields    []Field
	StartDT   int64 // µs
	EndDT     int64 // µs, 0 means open (unset)
	CreatedAt int64 // µs, wall-clock, independent of StartDT
}

// Open reports whether this is the stream's current (unsealed) version.
func (v SchemaVersion) Open() bool { return v.EndDT == 0 }

// StreamSettings carries the per-stream configuration that both the
// ingestion core and the schema evolver consult.
type StreamSettings struct {
	StoreOriginalData      bool
	StoreAllValues         bool
	ExtendedRetentionDays  int
	PartitionKeys          []string
	FullTextSearchKeys     []string
	UserDefinedSchema      []string // empty = UDS disabled
	PartitionTimeLevel     PartitionTimeLevel
	IgnoreFileRetention    bool
}

// PartitionTimeLevel controls how WAL files are time-sharded.
type PartitionTimeLevel string

const (
	PartitionTimeLevelHourly PartitionTimeLevel = "hourly"
	PartitionTimeLevelDaily  PartitionTimeLevel = "daily"
)

// Duration returns the partition window, or 0 for an unbounded level.
func (l PartitionTimeLevel) Duration() time.Duration {
	switch l {
	case PartitionTimeLevelHourly:
		return time.Hour
	case PartitionTimeLevelDaily:
		return 24 * time.Hour
	default:
		return 0
	}
}

// Record is a single decoded, not-yet-flattened ingestion record.
type Record struct {
	Value     map[string]any
	Original  string // pre-pipeline, pre-flatten JSON text, if captured
	Timestamp int64  // µs, filled in during timestamp validation
}

// RecordStatus is the per-record outcome reported back to the caller.
type RecordStatus string

const (
	RecordStatusSuccess RecordStatus = "success"
	RecordStatusFailed  RecordStatus = "failed"
)

// BulkAction is the recognized Elasticsearch-bulk-style verb.
type BulkAction string

const (
	BulkActionCreate BulkAction = "create"
	BulkActionIndex  BulkAction = "index"
	BulkActionUpdate BulkAction = "update"
)

// ResponseItem is one entry of a bulk response's "items" array.
type ResponseItem struct {
	Action BulkAction
	Stream string
	ID     string
	Status int
	Error  string
}

// IngestionResponse is the result of a call to ingest.Core.Ingest.
type IngestionResponse struct {
	Errors bool
	Took   time.Duration
	Items  []ResponseItem
}
