package types

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFileMetaRoundTrip(t *testing.T) {
	cases := []FileMeta{
		{MinTS: 0, MaxTS: 0, Records: 0, OriginalSize: 0, CompressedSize: 0},
		{MinTS: 1700000000000000, MaxTS: 1700000001000000, Records: 42, OriginalSize: 4096, CompressedSize: 1024},
		{MinTS: -1, MaxTS: -1, Records: 1, OriginalSize: 1, CompressedSize: 1},
	}
	for _, m := range cases {
		got, err := DecodeFileMeta(m.Encode())
		require.NoError(t, err)
		require.Equal(t, m, got)
	}
}

func TestDecodeFileMetaTooShort(t *testing.T) {
	_, err := DecodeFileMeta(make([]byte, FileMetaSize-1))
	require.Error(t, err)
}

func TestFileKeyRoundTrip(t *testing.T) {
	keys := []string{
		"files/org1/logs/app/2024/01/02/03/file123.parquet",
		"files//file_list//2024/01/02/03/file123.parquet",
	}
	for _, k := range keys {
		parsed, err := ParseFileKey(k)
		require.NoError(t, err)
		require.Equal(t, k, parsed.String())
	}
}

func TestParseFileKeyInvalid(t *testing.T) {
	_, err := ParseFileKey("files/org1/logs/app/2024/01/02/file.parquet")
	require.ErrorIs(t, err, ErrInvalidFileKey)
}
