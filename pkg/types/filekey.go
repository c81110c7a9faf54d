package types

import (
	"errors"
	"strings"
)

// ErrInvalidFileKey is returned by ParseFileKey when a key does not split
// into exactly 9 "/"-separated segments, per spec.md §3.2/§6.5.
var ErrInvalidFileKey = errors.New("invalid file path")

// FileKey is the parsed form of "files/{org}/{stream_type}/{stream}/
// {YYYY}/{MM}/{DD}/{HH}/{file_name}".
type FileKey struct {
	Org        string
	StreamType StreamType
	Stream     string
	Year       string
	Month      string
	Day        string
	Hour       string
	FileName   string
}

// DatePartition returns "{YYYY}/{MM}/{DD}/{HH}".
func (k FileKey) DatePartition() string {
	return k.Year + "/" + k.Month + "/" + k.Day + "/" + k.Hour
}

// StreamKey returns "{org}/{stream_type}/{stream}".
func (k FileKey) StreamKey() string {
	return StreamIdentity{OrgID: k.Org, StreamType: k.StreamType, StreamName: k.Stream}.Key()
}

// String reassembles the full "files/..." key.
func (k FileKey) String() string {
	return strings.Join([]string{
		"files", k.Org, string(k.StreamType), k.Stream,
		k.Year, k.Month, k.Day, k.Hour, k.FileName,
	}, "/")
}

// ParseFileKey splits a file key into exactly 9 segments. Fewer is invalid;
// nesting deeper than 9 segments is rejected too, per spec.md §9's Open
// Question decision (no deeper-path support).
func ParseFileKey(key string) (FileKey, error) {
	parts := strings.Split(key, "/")
	if len(parts) != 9 {
		return FileKey{}, ErrInvalidFileKey
	}
	return FileKey{
		Org:        parts[1],
		StreamType: StreamType(parts[2]),
		Stream:     parts[3],
		Year:       parts[4],
		Month:      parts[5],
		Day:        parts[6],
		Hour:       parts[7],
		FileName:   parts[8],
	}, nil
}
