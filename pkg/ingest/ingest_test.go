package ingest

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/ingestord/pkg/lock"
	"github.com/cuemby/ingestord/pkg/schema"
	"github.com/cuemby/ingestord/pkg/types"
	"github.com/cuemby/ingestord/pkg/wal"
)

type memStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemStore() *memStore { return &memStore{data: map[string][]byte{}} }

func (m *memStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memStore) Put(ctx context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func newCore(t *testing.T, limits Limits) *Core {
	t.Helper()
	store := newMemStore()
	locks := lock.New(lock.Local{})
	schemaCache := schema.New(store, locks)

	walMgr, err := wal.New(t.TempDir(), 1, 1<<20, time.Hour, 1)
	require.NoError(t, err)

	return New(schemaCache, walMgr, limits)
}

func baseLimits() Limits {
	return Limits{
		FlattenLevel:          3,
		ReqColsPerRecordLimit: 2000,
		IngestAllowedUpto:     5 * 24 * time.Hour,
		IngestAllowedInFuture: time.Hour,
	}
}

// nowTS renders the current time in µs, inside baseLimits' accepted window.
func nowTS() string { return strconv.FormatInt(time.Now().UnixMicro(), 10) }

func TestIngestSimpleJSONArray(t *testing.T) {
	core := newCore(t, baseLimits())

	resp, err := core.Ingest(context.Background(), 0, "default", types.StreamTypeLogs, "app",
		Request{Format: FormatJSONArray, Body: []byte(`[{"msg":"a","_timestamp":` + nowTS() + `}]`)}, "")
	require.NoError(t, err)
	require.False(t, resp.Errors)
	require.Len(t, resp.Items, 1)
	require.Equal(t, 200, resp.Items[0].Status)
}

func TestIngestRejectsBlockedStream(t *testing.T) {
	core := newCore(t, baseLimits())
	core.Blocklist().Block("default", types.StreamTypeLogs)

	_, err := core.Ingest(context.Background(), 0, "default", types.StreamTypeLogs, "app",
		Request{Format: FormatJSONArray, Body: []byte(`[{"msg":"a"}]`)}, "")
	require.Error(t, err)

	var reqErr *types.RequestError
	require.ErrorAs(t, err, &reqErr)
	require.Equal(t, types.ErrKindStreamBlocked, reqErr.Kind)
}

func TestIngestRejectsTooManyColumns(t *testing.T) {
	limits := baseLimits()
	limits.ReqColsPerRecordLimit = 1
	core := newCore(t, limits)

	resp, err := core.Ingest(context.Background(), 0, "default", types.StreamTypeLogs, "app",
		Request{Format: FormatJSONArray, Body: []byte(`[{"a":1,"b":2,"_timestamp":` + nowTS() + `}]`)}, "")
	require.NoError(t, err)
	require.True(t, resp.Errors)
	require.Equal(t, string(types.ErrKindTooManyColumns), resp.Items[0].Error)
}

func TestIngestRejectsTooOldTimestamp(t *testing.T) {
	core := newCore(t, baseLimits())
	oldTS := time.Now().Add(-30 * 24 * time.Hour).UnixMicro()

	body, _ := json.Marshal([]map[string]any{{"msg": "a", "_timestamp": oldTS}})
	resp, err := core.Ingest(context.Background(), 0, "default", types.StreamTypeLogs, "app",
		Request{Format: FormatJSONArray, Body: body}, "")
	require.NoError(t, err)
	require.True(t, resp.Errors)
	require.Equal(t, 400, resp.Items[0].Status)
}

func TestIngestWidensSchemaAcrossCalls(t *testing.T) {
	core := newCore(t, baseLimits())
	ctx := context.Background()

	_, err := core.Ingest(ctx, 0, "default", types.StreamTypeLogs, "app",
		Request{Format: FormatJSONArray, Body: []byte(`[{"count":1,"_timestamp":` + nowTS() + `}]`)}, "")
	require.NoError(t, err)

	_, err = core.Ingest(ctx, 0, "default", types.StreamTypeLogs, "app",
		Request{Format: FormatJSONArray, Body: []byte(`[{"count":1.5,"_timestamp":` + nowTS() + `}]`)}, "")
	require.NoError(t, err)

	version, err := core.schema.Current(ctx, types.StreamIdentity{OrgID: "default", StreamType: types.StreamTypeLogs, StreamName: "app"})
	require.NoError(t, err)

	var countType types.FieldType
	for _, f := range version.Fields {
		if f.Name == "count" {
			countType = f.Type
		}
	}
	require.Equal(t, types.FieldTypeFloat64, countType)
}

func TestIngestUDSProjectsUnrecognizedFieldsToCatchAll(t *testing.T) {
	out := projectUDS(map[string]any{
		"msg": "hi", "_timestamp": int64(1), "extra_field": "x",
	}, []string{"msg"})

	require.Equal(t, "hi", out["msg"])
	require.Contains(t, out, ExtraFieldsColumn)
	require.NotContains(t, out, "extra_field")
}

type testPipeline struct {
	dest        types.StreamIdentity
	gotOriginal *string
}

func (p *testPipeline) Process(ctx context.Context, source types.StreamIdentity, batch []PipelineInput) ([]PipelineOutput, error) {
	outputs := make([]PipelineOutput, len(batch))
	for i, in := range batch {
		*p.gotOriginal = in.Original
		outputs[i] = PipelineOutput{Stream: p.dest, InputIdx: in.InputIdx, Value: in.Value}
	}
	return outputs, nil
}

func TestIngestCapturesOriginalForPipelineDestinationRegardlessOfSourceSetting(t *testing.T) {
	core := newCore(t, baseLimits())
	ctx := context.Background()

	source := types.StreamIdentity{OrgID: "default", StreamType: types.StreamTypeLogs, StreamName: "raw"}
	dest := types.StreamIdentity{OrgID: "default", StreamType: types.StreamTypeLogs, StreamName: "processed"}

	// The source stream itself does not ask to store original data; only
	// its pipeline's destination does, and the destination isn't known
	// until the pipeline runs. Original capture must happen up front
	// regardless, or the destination's _original column comes back empty.
	require.NoError(t, core.schema.SetSettings(ctx, dest, types.StreamSettings{StoreOriginalData: true}))

	var captured string
	core.RegisterPipeline(source, &testPipeline{dest: dest, gotOriginal: &captured})

	_, err := core.Ingest(ctx, 0, "default", types.StreamTypeLogs, "raw",
		Request{Format: FormatJSONArray, Body: []byte(`[{"msg":"hi","_timestamp":1700000000000000}]`)}, "")
	require.NoError(t, err)
	require.NotEmpty(t, captured)
	require.Contains(t, captured, "hi")
}

func TestIngestBulkRoutesPerRecordIndex(t *testing.T) {
	core := newCore(t, baseLimits())
	body := []byte(`{"index":{"_index":"other"}}
{"msg":"hi","_timestamp":` + nowTS() + `}
`)
	resp, err := core.Ingest(context.Background(), 0, "default", types.StreamTypeLogs, "app",
		Request{Format: FormatBulk, Body: body}, "")
	require.NoError(t, err)
	require.False(t, resp.Errors)
	require.Equal(t, "other", resp.Items[0].Stream)
}
