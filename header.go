package slabkv

import (
	"encoding/binary"
	"fmt"
)

// headerSize is the fixed, 64-byte-aligned v2 file header. Its size is a
// multiple of 8 bytes, so the index region (slot 0) starts on an 8-byte
// boundary; later slots are aligned only when the slot stride is.
const headerSize = 64

// fileMagic identifies a v2 file. Any other leading 4 bytes that don't
// match fileMagicLegacy is an unrecognized format, not a legacy one.
const fileMagic = uint32(0xBEEBBEEB)

// fileMagicLegacy identifies the unsupported 17-byte v1 layout emitted by
// earlier tooling. It is recognized explicitly so callers get
// ErrLegacyFormatUnsupported instead of a generic ErrBadFormat.
const fileMagicLegacy = uint32(0xDEADBEEF)
const legacyHeaderSize = 17

const headerVersion = uint8(2)

const flagPayloadCRC = uint8(1 << 0)

// fileHeader mirrors the first headerSize bytes of the file.
type fileHeader struct {
	keyLength              uint32
	payloadCRCEnabled      bool
	numRecords             int32
	dataStartPtr           int64
	preferredBlockSize     int32
	preferredExpansionSize int32
}

func encodeFileHeader(h fileHeader) []byte {
	buf := make([]byte, headerSize)
	binary.BigEndian.PutUint32(buf[0:4], fileMagic)
	buf[4] = headerVersion
	if h.payloadCRCEnabled {
		buf[5] = flagPayloadCRC
	}
	binary.BigEndian.PutUint32(buf[8:12], h.keyLength)
	binary.BigEndian.PutUint32(buf[16:20], uint32(h.numRecords))
	binary.BigEndian.PutUint64(buf[24:32], uint64(h.dataStartPtr))
	binary.BigEndian.PutUint32(buf[32:36], uint32(h.preferredBlockSize))
	binary.BigEndian.PutUint32(buf[36:40], uint32(h.preferredExpansionSize))
	return buf
}

func decodeFileHeader(buf []byte) (fileHeader, error) {
	if len(buf) < 4 {
		return fileHeader{}, ErrBadFormat
	}
	magic := binary.BigEndian.Uint32(buf[0:4])
	if magic == fileMagicLegacy {
		return fileHeader{}, ErrLegacyFormatUnsupported
	}
	if magic != fileMagic {
		return fileHeader{}, ErrBadFormat
	}
	if len(buf) < headerSize {
		return fileHeader{}, fmt.Errorf("header truncated at %d bytes: %w", len(buf), ErrBadFormat)
	}
	if buf[4] != headerVersion {
		return fileHeader{}, fmt.Errorf("unsupported header version %d: %w", buf[4], ErrBadFormat)
	}
	h := fileHeader{
		payloadCRCEnabled:      buf[5]&flagPayloadCRC != 0,
		keyLength:              binary.BigEndian.Uint32(buf[8:12]),
		numRecords:             int32(binary.BigEndian.Uint32(buf[16:20])),
		dataStartPtr:           int64(binary.BigEndian.Uint64(buf[24:32])),
		preferredBlockSize:     int32(binary.BigEndian.Uint32(buf[32:36])),
		preferredExpansionSize: int32(binary.BigEndian.Uint32(buf[36:40])),
	}
	if h.numRecords < 0 || h.dataStartPtr < headerSize {
		return fileHeader{}, fmt.Errorf("header fields out of range: %w", ErrBadFormat)
	}
	return h, nil
}

// indexSlotStride is the fixed width of one index-region slot for a given
// key length: 2-byte key length prefix + keyLength raw bytes + 4-byte key
// CRC + the 20-byte record envelope.
func indexSlotStride(keyLength uint32) int64 {
	return int64(keyEntryOverhead) + int64(keyLength)
}

// indexSlotOffset returns the byte offset of slot i (0-based) in the
// index region.
func indexSlotOffset(keyLength uint32, i int32) int64 {
	return headerSize + int64(i)*indexSlotStride(keyLength)
}
