package ingest

import (
	"context"

	"github.com/cuemby/ingestord/pkg/types"
)

// PipelineInput is one buffered record awaiting pipeline dispatch,
// captured before flattening per spec.md §4.1 step 4.
type PipelineInput struct {
	InputIdx  int
	Value     map[string]any
	Original  string
	Timestamp int64
}

// PipelineOutput is one record a pipeline produced, addressed at a
// (possibly different) destination stream. Outputs re-enter the core at
// the post-flatten stage.
type PipelineOutput struct {
	Stream   types.StreamIdentity
	InputIdx int
	Value    map[string]any
}

// Pipeline transforms a batch of records bound for one source stream
// into zero or more records bound for one or more destination streams.
// Core invokes a registered pipeline at most once per Ingest call.
type Pipeline interface {
	Process(ctx context.Context, source types.StreamIdentity, batch []PipelineInput) ([]PipelineOutput, error)
}

// RegisterPipeline installs p as the transform for source. A nil p
// removes any existing registration.
func (c *Core) RegisterPipeline(source types.StreamIdentity, p Pipeline) {
	c.pipelinesMu.Lock()
	defer c.pipelinesMu.Unlock()
	if p == nil {
		delete(c.pipelines, source.Key())
		return
	}
	c.pipelines[source.Key()] = p
}

func (c *Core) pipelineFor(source types.StreamIdentity) (Pipeline, bool) {
	c.pipelinesMu.RLock()
	defer c.pipelinesMu.RUnlock()
	p, ok := c.pipelines[source.Key()]
	return p, ok
}
