package health

import (
	"context"
	"errors"
	"time"

	"github.com/cuemby/ingestord/pkg/metakv"
	"github.com/cuemby/ingestord/pkg/objectstore"
)

// sentinelKey is a reserved, never-written key component A's checker
// probes with a plain Get; ErrNotFound on a reachable backend is success.
const sentinelKey = "/health/ping"

// MetaStoreChecker probes component A's backend with a Get against a
// key that never exists, so a healthy backend returns ErrNotFound
// rather than a connection error.
type MetaStoreChecker struct {
	Store metakv.Store
}

func (c *MetaStoreChecker) Type() CheckType { return CheckTypeMetaStore }

func (c *MetaStoreChecker) Check(ctx context.Context) Result {
	start := time.Now()
	_, err := c.Store.Get(ctx, sentinelKey)
	result := Result{CheckedAt: start, Duration: time.Since(start)}

	if err == nil || errors.Is(err, metakv.ErrNotFound) {
		result.Healthy = true
		return result
	}
	result.Healthy = false
	result.Message = err.Error()
	return result
}

// ObjectStoreChecker probes component B's backend with a Get against a
// key that never exists. Only an expired or canceled check context
// counts as unhealthy; every error the Get returns, including a
// connection error that arrives before the timeout, counts as a
// successful reachability check and is kept as the result's Message.
// The checker does not tell a missing-object error apart from any other.
type ObjectStoreChecker struct {
	Store objectstore.Store
}

func (c *ObjectStoreChecker) Type() CheckType { return CheckTypeObjectStore }

func (c *ObjectStoreChecker) Check(ctx context.Context) Result {
	start := time.Now()
	_, err := c.Store.Get(ctx, sentinelKey)
	result := Result{CheckedAt: start, Duration: time.Since(start)}

	if ctx.Err() != nil {
		result.Healthy = false
		result.Message = ctx.Err().Error()
		return result
	}

	// Any error here is almost certainly "object not found", which is
	// exactly what a reachable backend should say about a key that was
	// never written.
	result.Healthy = true
	if err != nil {
		result.Message = err.Error()
	}
	return result
}
