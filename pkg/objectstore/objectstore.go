// Package objectstore implements component B: the durable store sealed
// files graduate into once the WAL rotation worker closes them.
package objectstore

import "context"

// Store abstracts the destination for sealed files. Get returns the full
// object; Put writes it, creating any necessary path structure.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
}
