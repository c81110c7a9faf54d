package types

// ErrorKind is the closed set of wire-visible error tags spec.md §7 names.
// Record-level kinds accumulate in a response's per-item status; request-
// level kinds fail the whole batch.
type ErrorKind string

const (
	ErrKindTimestampParsingFailed  ErrorKind = "timestamp_parsing_failed"
	ErrKindSchemaConformanceFailed ErrorKind = "schema_conformance_failed"
	ErrKindDocumentFailedTransform ErrorKind = "document_failed_transform"
	ErrKindPipelineExecutionFailed ErrorKind = "pipeline_execution_failed"
	ErrKindTooManyColumns          ErrorKind = "too_many_columns"
	ErrKindStreamBlocked           ErrorKind = "stream_blocked"
	ErrKindNotAnIngester           ErrorKind = "not_an_ingester"
	ErrKindKeyNotExists            ErrorKind = "key_not_exists"
	ErrKindLockTimeout             ErrorKind = "lock_timeout"
)

// RecordError is a record-level failure; it never aborts the containing
// batch, only the one record.
type RecordError struct {
	Kind   ErrorKind
	Reason string
}

func (e *RecordError) Error() string {
	if e.Reason == "" {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Reason
}

// RequestError is a whole-batch failure: the caller gets nothing written.
type RequestError struct {
	Kind   ErrorKind
	Reason string
}

func (e *RequestError) Error() string {
	if e.Reason == "" {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Reason
}
