package ingest

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseTimestampClassifiesByMagnitude(t *testing.T) {
	us, present, err := parseTimestamp(json.Number("1700000000000000"))
	require.NoError(t, err)
	require.True(t, present)
	require.EqualValues(t, 1700000000000000, us)

	us, _, err = parseTimestamp(json.Number("1700000000000"))
	require.NoError(t, err)
	require.EqualValues(t, 1700000000000000, us)

	us, _, err = parseTimestamp(json.Number("1700000000"))
	require.NoError(t, err)
	require.EqualValues(t, 1700000000000000, us)
}

func TestParseTimestampRFC3339String(t *testing.T) {
	us, _, err := parseTimestamp("2023-11-14T22:13:20Z")
	require.NoError(t, err)
	want, _ := time.Parse(time.RFC3339, "2023-11-14T22:13:20Z")
	require.Equal(t, want.UnixMicro(), us)
}

func TestParseTimestampMissingIsNotAnError(t *testing.T) {
	_, present, err := parseTimestamp(nil)
	require.NoError(t, err)
	require.False(t, present)
}

func TestParseTimestampInvalidString(t *testing.T) {
	_, _, err := parseTimestamp("not-a-timestamp")
	require.Error(t, err)
}

func TestCheckBoundsRejectsTooOldAndTooFuture(t *testing.T) {
	now := time.Now()
	err := checkBounds(now.Add(-48*time.Hour).UnixMicro(), now, time.Hour, time.Hour)
	require.ErrorContains(t, err, "too old")

	err = checkBounds(now.Add(48*time.Hour).UnixMicro(), now, time.Hour, time.Hour)
	require.ErrorContains(t, err, "too future")

	require.NoError(t, checkBounds(now.UnixMicro(), now, time.Hour, time.Hour))
}
