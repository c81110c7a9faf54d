// Package metakv defines component A: the metadata key-value abstraction
// every backend (embedded, sqlite, mysql, postgres, dynamo) implements.
// Keys follow the "/{module}/{key1}/{key2/...}" convention of spec.md
// §4.6; backends that decompose into relational columns split on the
// first two "/" after the module.
package metakv

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when the key has no value.
var ErrNotFound = errors.New("metakv: not found")

// ErrWatchUnsupported is returned by backends (DynamoDB) that cannot
// natively stream change events; callers needing Watch-driven behavior
// on such a backend must route change notification through
// pkg/coordinator instead.
var ErrWatchUnsupported = errors.New("metakv: watch unsupported by this backend")

// EventType distinguishes the three notification shapes a Watch can
// deliver, matching spec.md §6.3's envelope exactly.
type EventType int

const (
	EventPut EventType = iota
	EventDelete
	EventEmpty
)

// Event is one change notification delivered by Watch.
type Event struct {
	Key   string
	Value []byte
	Type  EventType
}

// Store is the backend-agnostic metadata KV interface.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)

	// Put writes key/value. When needWatch is true the backend publishes
	// a Put event to its watch fan-out only after the durable write
	// commits.
	Put(ctx context.Context, key string, value []byte, needWatch bool) error

	// Delete removes key. When withPrefix is true it enumerates every
	// key under the prefix first, deletes each individually, and (if
	// needWatch) publishes one Delete event per key.
	Delete(ctx context.Context, key string, withPrefix, needWatch bool) error

	List(ctx context.Context, prefix string) (map[string][]byte, error)
	ListKeys(ctx context.Context, prefix string) ([]string, error)
	ListValues(ctx context.Context, prefix string) ([][]byte, error)
	Count(ctx context.Context, prefix string) (int64, error)

	// Watch streams change events for keys under prefix until ctx is
	// canceled. Backends that cannot support this return
	// ErrWatchUnsupported.
	Watch(ctx context.Context, prefix string) (<-chan Event, error)

	// Transaction applies andOps if checkKey exists, elseOps otherwise.
	// Not every backend implements this; ErrTransactionUnsupported
	// signals callers to fall back to lock+read+write.
	Transaction(ctx context.Context, checkKey string, andOps, elseOps []Op) error

	Close() error
}

// ErrTransactionUnsupported is returned by backends without native
// conditional-transaction support.
var ErrTransactionUnsupported = errors.New("metakv: transaction unsupported by this backend")

// Op is one write step inside a Transaction.
type Op struct {
	Key    string
	Value  []byte // written when Delete is false
	Delete bool   // true removes Key; Value is ignored
}
