package ingest

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/ingestord/pkg/types"
)

func TestDecodeJSONArray(t *testing.T) {
	recs, err := decode(Request{Format: FormatJSONArray, Body: []byte(`[{"a":1},{"a":2}]`)})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	require.Empty(t, recs[0].Err)
}

func TestDecodeNDJSONTolerantOfBlankLines(t *testing.T) {
	recs, err := decode(Request{Format: FormatNDJSON, Body: []byte("{\"a\":1}\n\n{\"a\":2}\n")})
	require.NoError(t, err)
	require.Len(t, recs, 2)
}

func TestDecodeBulkPairsHeaderAndPayload(t *testing.T) {
	body := []byte(`{"index":{"_index":"app","_id":"1"}}
{"msg":"hi"}
{"create":{"_index":"app"}}
{"msg":"bye"}
`)
	recs, err := decode(Request{Format: FormatBulk, Body: body})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	require.Equal(t, types.BulkActionIndex, recs[0].Action)
	require.Equal(t, "app", recs[0].IndexOverride)
	require.Equal(t, "1", recs[0].ID)
	require.Equal(t, types.BulkActionCreate, recs[1].Action)
}

func TestDecodeBulkMissingIndexIsPerRecordError(t *testing.T) {
	body := []byte(`{"index":{}}
{"msg":"hi"}
`)
	recs, err := decode(Request{Format: FormatBulk, Body: body})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, "document_failed_transform", recs[0].Err)
}

func TestDecodeGCPPubSub(t *testing.T) {
	// {"msg":"hi"} base64-encoded
	body := []byte(`{"message":{"data":"eyJtc2ciOiJoaSJ9"},"subscription":"projects/x/subscriptions/y"}`)
	recs, err := decode(Request{Format: FormatGCPPubSub, Body: body})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, "hi", recs[0].Value["msg"])
}
