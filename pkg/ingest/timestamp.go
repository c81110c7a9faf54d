package ingest

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// timestampErr distinguishes the two boundary-violation reasons spec.md
// §4.1 step 6 calls out, so callers can report "too old" vs "too future"
// under the shared timestamp_parsing_failed error kind.
type timestampErr struct {
	reason string
}

func (e *timestampErr) Error() string { return e.reason }

// parseTimestamp extracts _timestamp from a flattened record. Integers
// are auto-classified as µs, ms, or s by magnitude; strings are tried as
// an integer first, then as RFC 3339. A missing field is not an error —
// the caller assigns now() in that case, per spec.md §4.1 step 6.
func parseTimestamp(v any) (int64, bool, error) {
	switch t := v.(type) {
	case nil:
		return 0, false, nil
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return normalizeMagnitude(i), true, nil
		}
		f, err := t.Float64()
		if err != nil {
			return 0, true, fmt.Errorf("timestamp_parsing_failed: %w", err)
		}
		return normalizeMagnitude(int64(f)), true, nil
	case float64:
		return normalizeMagnitude(int64(t)), true, nil
	case int64:
		return normalizeMagnitude(t), true, nil
	case int:
		return normalizeMagnitude(int64(t)), true, nil
	case string:
		if i, err := strconv.ParseInt(t, 10, 64); err == nil {
			return normalizeMagnitude(i), true, nil
		}
		ts, err := time.Parse(time.RFC3339, t)
		if err != nil {
			return 0, true, fmt.Errorf("timestamp_parsing_failed: %w", err)
		}
		return ts.UnixMicro(), true, nil
	default:
		return 0, true, fmt.Errorf("timestamp_parsing_failed: unsupported _timestamp type %T", v)
	}
}

// normalizeMagnitude classifies an integer as seconds, milliseconds, or
// microseconds by digit count and returns it as microseconds. The
// thresholds bracket "now" comfortably on either side of each unit's
// typical range through at least the year 2100.
func normalizeMagnitude(n int64) int64 {
	abs := n
	if abs < 0 {
		abs = -abs
	}
	switch {
	case abs >= 1e14: // already microseconds
		return n
	case abs >= 1e11: // milliseconds
		return n * 1_000
	default: // seconds
		return n * 1_000_000
	}
}

// checkBounds enforces min_ts <= ts <= max_ts from spec.md §4.1 step 6.
func checkBounds(ts int64, now time.Time, allowedUpto, allowedInFuture time.Duration) error {
	minTS := now.Add(-allowedUpto).UnixMicro()
	maxTS := now.Add(allowedInFuture).UnixMicro()
	if ts < minTS {
		return &timestampErr{reason: "too old"}
	}
	if ts > maxTS {
		return &timestampErr{reason: "too future"}
	}
	return nil
}
