package types

import (
	"encoding/binary"
	"fmt"
)

// FileMetaSize is the fixed on-disk/wire size of an encoded FileMeta.
const FileMetaSize = 40

// Encode serializes m into the 40-byte little-endian layout of spec.md §3.3.
func (m FileMeta) Encode() []byte {
	buf := make([]byte, FileMetaSize)
	binary.LittleEndian.PutUint64(buf[0:8], uint64(m.MinTS))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(m.MaxTS))
	binary.LittleEndian.PutUint64(buf[16:24], m.Records)
	binary.LittleEndian.PutUint64(buf[24:32], m.OriginalSize)
	binary.LittleEndian.PutUint64(buf[32:40], m.CompressedSize)
	return buf
}

// DecodeFileMeta parses the 40-byte little-endian layout of spec.md §3.3.
// It fails on len(b) < FileMetaSize, per spec.md §6.6.
func DecodeFileMeta(b []byte) (FileMeta, error) {
	if len(b) < FileMetaSize {
		return FileMeta{}, fmt.Errorf("decode file meta: need %d bytes, got %d", FileMetaSize, len(b))
	}
	return FileMeta{
		MinTS:          int64(binary.LittleEndian.Uint64(b[0:8])),
		MaxTS:          int64(binary.LittleEndian.Uint64(b[8:16])),
		Records:        binary.LittleEndian.Uint64(b[16:24]),
		OriginalSize:   binary.LittleEndian.Uint64(b[24:32]),
		CompressedSize: binary.LittleEndian.Uint64(b[32:40]),
	}, nil
}
