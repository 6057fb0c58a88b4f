package statuslog

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/cairndb/cairn/pkg/types"
	"github.com/golang/snappy"
	"github.com/spaolacci/murmur3"
)

// Status log file format:
// 24-byte header (magic + format version + murmur3-64 checksum of the
// compressed payload), followed by snappy(json array of entries).
const (
	logMagic      uint64 = 0x434149524e4c4f47 // "CAIRNLOG"
	formatVersion uint64 = 1
	headerSize           = 24
)

// Encode serializes entries into the on-disk status log format.
func Encode(entries []types.SegmentEntry) ([]byte, error) {
	if entries == nil {
		entries = []types.SegmentEntry{}
	}

	payload, err := json.Marshal(entries)
	if err != nil {
		return nil, fmt.Errorf("statuslog: failed to marshal entries: %w", err)
	}

	compressed := snappy.Encode(nil, payload)

	buf := make([]byte, headerSize+len(compressed))
	binary.LittleEndian.PutUint64(buf[0:8], logMagic)
	binary.LittleEndian.PutUint64(buf[8:16], formatVersion)
	binary.LittleEndian.PutUint64(buf[16:24], murmur3.Sum64(compressed))
	copy(buf[headerSize:], compressed)

	return buf, nil
}

// Decode parses the on-disk status log format back into entries.
// Any structural damage (short file, bad magic, checksum mismatch,
// malformed payload) is reported as an error; callers treat it as
// fatal corruption for the table, never as an empty log.
func Decode(data []byte) ([]types.SegmentEntry, error) {
	if len(data) < headerSize {
		return nil, fmt.Errorf("statuslog: file too short: %d bytes", len(data))
	}

	if magic := binary.LittleEndian.Uint64(data[0:8]); magic != logMagic {
		return nil, fmt.Errorf("statuslog: bad magic %#x", magic)
	}
	if version := binary.LittleEndian.Uint64(data[8:16]); version != formatVersion {
		return nil, fmt.Errorf("statuslog: unsupported format version %d", version)
	}

	compressed := data[headerSize:]
	if sum := murmur3.Sum64(compressed); sum != binary.LittleEndian.Uint64(data[16:24]) {
		return nil, fmt.Errorf("statuslog: checksum mismatch")
	}

	payload, err := snappy.Decode(nil, compressed)
	if err != nil {
		return nil, fmt.Errorf("statuslog: snappy decompress failed: %w", err)
	}

	var entries []types.SegmentEntry
	if err := json.Unmarshal(payload, &entries); err != nil {
		return nil, fmt.Errorf("statuslog: failed to unmarshal entries: %w", err)
	}

	return entries, nil
}
