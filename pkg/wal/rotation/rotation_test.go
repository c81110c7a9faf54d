package rotation

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSummarizeComputesMinMaxAndRecords(t *testing.T) {
	data := []byte(`{"_timestamp":100,"message":"a"}
{"_timestamp":300,"message":"b"}
{"_timestamp":200,"message":"c"}
`)
	meta, err := summarize(data)
	require.NoError(t, err)
	require.EqualValues(t, 100, meta.MinTS)
	require.EqualValues(t, 300, meta.MaxTS)
	require.EqualValues(t, 3, meta.Records)
}

func TestSummarizeTolerantOfTruncatedLine(t *testing.T) {
	data := []byte(`{"_timestamp":100,"message":"a"}
{"_timestamp":200,"message":"b"
`)
	meta, err := summarize(data)
	require.NoError(t, err)
	require.EqualValues(t, 1, meta.Records)
}

func TestFileKeyFromPath(t *testing.T) {
	fk, err := fileKeyFromPath("/data/wal", "/data/wal/files/default/logs/app/3/2026/08/01/12/99.json")
	require.NoError(t, err)
	require.Equal(t, "default", fk.Org)
	require.Equal(t, "app", fk.Stream)
	require.Equal(t, "2026", fk.Year)
	require.Equal(t, "08", fk.Month)
	require.Equal(t, "01", fk.Day)
	require.Equal(t, "12", fk.Hour)
	require.Equal(t, "99.json", fk.FileName)
}
