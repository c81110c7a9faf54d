package main

import (
	"context"
	"errors"

	"github.com/cuemby/ingestord/pkg/metakv"
)

// metaSchemaStore adapts a component A metakv.Store to the narrower
// schema.Store interface pkg/schema declares locally to avoid an
// import cycle between the two packages.
type metaSchemaStore struct {
	store metakv.Store
}

func (s metaSchemaStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := s.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, metakv.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return value, true, nil
}

func (s metaSchemaStore) Put(ctx context.Context, key string, value []byte) error {
	return s.store.Put(ctx, key, value, false)
}
