package slabkv

import (
	"encoding/binary"
	"hash/crc32"
)

// envelopeSize is the fixed 20-byte on-disk record envelope:
// dataPointer(8) || dataCapacity(4) || dataLength(4) || headerCrc(4).
const envelopeSize = 8 + 4 + 4 + 4

// keyEntryOverhead is the fixed per-entry overhead around the K raw key
// bytes: keyLen(2) + keyCrc(4) + envelope(20).
const keyEntryOverhead = 2 + 4 + envelopeSize

// payloadLenSize and payloadCrcSize make up the payload framing overhead:
// a 4-byte length prefix, plus a 4-byte trailing CRC32 when payload
// checksums are enabled.
const payloadLenSize = 4
const payloadCrcSize = 4

// Key is an opaque byte-string key, bounded by Config.KeyLength.
type Key []byte

// cloneKey optionally copies k so the engine never retains a reference
// into a buffer the caller might recycle after the call returns. Callers
// that don't reuse key buffers can disable this via Config.DisableDefensiveCopy
// to avoid the extra allocation; nothing downstream depends on the copy
// for correctness.
func cloneKey(k Key, defensive bool) Key {
	if !defensive {
		return k
	}
	out := make(Key, len(k))
	copy(out, k)
	return out
}

// RecordHeader is an immutable in-memory mirror of one on-disk envelope
// plus the key it belongs to. It is never mutated in place — every
// "update" is a new value built by one of the with* constructors, which
// removes the class of bugs where a header's CRC goes stale relative to
// its own fields.
type RecordHeader struct {
	key           string // string(Key), used as the map key and for dataPointer-independent identity
	dataPointer   int64
	dataLength    uint32
	dataCapacity  uint32
	indexPosition int32
	headerCRC     uint32
}

// DataPointer returns the file offset of this record's payload.
func (h RecordHeader) DataPointer() int64 { return h.dataPointer }

// DataLength returns the live payload length in bytes.
func (h RecordHeader) DataLength() uint32 { return h.dataLength }

// DataCapacity returns the total reserved bytes for the payload frame
// (length prefix + payload + optional CRC), including any slack.
func (h RecordHeader) DataCapacity() uint32 { return h.dataCapacity }

// IndexPosition returns this record's current slot in the index region.
func (h RecordHeader) IndexPosition() int32 { return h.indexPosition }

// frameSize returns the bytes actually used by the live frame (length
// prefix + payload + optional CRC).
func (h RecordHeader) frameSize(payloadCRCEnabled bool) uint32 {
	n := payloadLenSize + h.dataLength
	if payloadCRCEnabled {
		n += payloadCrcSize
	}
	return n
}

// freeSpace returns the reclaimable slack in this record's data extent.
func (h RecordHeader) freeSpace(payloadCRCEnabled bool) uint32 {
	used := h.frameSize(payloadCRCEnabled)
	if h.dataCapacity <= used {
		return 0
	}
	return h.dataCapacity - used
}

// withPointer returns a copy relocated to a new data extent. The header
// CRC is not recomputed because it does not depend on position — see
// computeHeaderCRC — so this is purely a field copy. The CRC does cover
// capacity, so the copy's CRC stays valid only when capacity is unchanged.
func (h RecordHeader) withPointer(dp int64, capacity uint32) RecordHeader {
	h.dataPointer = dp
	h.dataCapacity = capacity
	return h
}

// withLength returns a copy with a new live length/capacity and a
// recomputed header CRC (the CRC domain includes length and capacity).
func (h RecordHeader) withLength(length, capacity uint32) RecordHeader {
	h.dataLength = length
	h.dataCapacity = capacity
	h.headerCRC = computeHeaderCRC(length, capacity)
	return h
}

// withIndexPosition returns a copy stamped at a new index slot. The
// header CRC is unaffected since file position is deliberately excluded
// from its domain.
func (h RecordHeader) withIndexPosition(pos int32) RecordHeader {
	h.indexPosition = pos
	return h
}

// newRecordHeader builds a header for a freshly allocated extent.
func newRecordHeader(key Key, dp int64, length, capacity uint32, indexPos int32) RecordHeader {
	return RecordHeader{
		key:           string(key),
		dataPointer:   dp,
		dataLength:    length,
		dataCapacity:  capacity,
		indexPosition: indexPos,
		headerCRC:     computeHeaderCRC(length, capacity),
	}
}

// computeHeaderCRC computes the envelope CRC32 over dataLength ||
// dataCapacity || 0x0000 (a 2-byte salt). File position is deliberately
// excluded so that moving a record never requires recomputing its CRC.
func computeHeaderCRC(dataLength, dataCapacity uint32) uint32 {
	var buf [10]byte
	binary.BigEndian.PutUint32(buf[0:4], dataLength)
	binary.BigEndian.PutUint32(buf[4:8], dataCapacity)
	// buf[8:10] is the 2-byte zero salt.
	return crc32.ChecksumIEEE(buf[:])
}

// encodeEnvelope serializes a 20-byte envelope in the fixed field order:
// dataPointer || dataCapacity || dataLength || headerCrc.
func encodeEnvelope(h RecordHeader) []byte {
	buf := make([]byte, envelopeSize)
	binary.BigEndian.PutUint64(buf[0:8], uint64(h.dataPointer))
	binary.BigEndian.PutUint32(buf[8:12], h.dataCapacity)
	binary.BigEndian.PutUint32(buf[12:16], h.dataLength)
	binary.BigEndian.PutUint32(buf[16:20], h.headerCRC)
	return buf
}

// decodeEnvelope parses a 20-byte envelope and validates its CRC. The
// returned header is stamped with expectedIndexPos (envelopes do not
// encode their own index position on disk — it's implied by slot stride).
func decodeEnvelope(buf []byte, expectedIndexPos int32) (RecordHeader, error) {
	dp := int64(binary.BigEndian.Uint64(buf[0:8]))
	cap_ := binary.BigEndian.Uint32(buf[8:12])
	length := binary.BigEndian.Uint32(buf[12:16])
	crc := binary.BigEndian.Uint32(buf[16:20])

	if computeHeaderCRC(length, cap_) != crc {
		return RecordHeader{}, ErrCorruptHeader
	}

	return RecordHeader{
		dataPointer:   dp,
		dataLength:    length,
		dataCapacity:  cap_,
		indexPosition: expectedIndexPos,
		headerCRC:     crc,
	}, nil
}

// encodeKeyEntry serializes keyLen || key || zero-pad || keyCrc into a
// buffer of exactly 2+keyLength+4 bytes, whatever the key's own length.
func encodeKeyEntry(key Key, keyLength uint16) ([]byte, error) {
	if len(key) > int(keyLength) {
		return nil, ErrKeyTooLong
	}
	buf := make([]byte, 2+int(keyLength)+4)
	binary.BigEndian.PutUint16(buf[0:2], uint16(len(key)))
	copy(buf[2:2+len(key)], key)
	// buf[2+len(key) : 2+keyLength] is zero padding, already zero.
	crc := computeKeyCRC(uint16(len(key)), key)
	binary.BigEndian.PutUint32(buf[2+int(keyLength):2+int(keyLength)+4], crc)
	return buf, nil
}

// decodeKeyEntry validates and extracts the key from a 2+keyLength+4 byte
// buffer.
func decodeKeyEntry(buf []byte, keyLength uint16) (Key, error) {
	kl := binary.BigEndian.Uint16(buf[0:2])
	if kl > keyLength {
		return nil, ErrCorruptKey
	}
	key := buf[2 : 2+kl]
	crc := binary.BigEndian.Uint32(buf[2+int(keyLength) : 2+int(keyLength)+4])
	if computeKeyCRC(kl, key) != crc {
		return nil, ErrCorruptKey
	}
	out := make(Key, kl)
	copy(out, key)
	return out, nil
}

// computeKeyCRC computes CRC32 over keyLen || keyBytes[0..keyLen]; the
// length acts as a salt so that a truncated key with coincidentally
// matching bytes still fails the check.
func computeKeyCRC(keyLen uint16, key []byte) uint32 {
	buf := make([]byte, 2+len(key))
	binary.BigEndian.PutUint16(buf[0:2], keyLen)
	copy(buf[2:], key)
	return crc32.ChecksumIEEE(buf)
}

// encodePayloadFrame serializes payloadLen || payload || [payloadCrc],
// padded with zeros out to capacity bytes.
func encodePayloadFrame(payload []byte, capacity uint32, payloadCRCEnabled bool) []byte {
	buf := make([]byte, capacity)
	binary.BigEndian.PutUint32(buf[0:4], uint32(len(payload)))
	copy(buf[4:4+len(payload)], payload)
	if payloadCRCEnabled {
		crc := crc32.ChecksumIEEE(payload)
		binary.BigEndian.PutUint32(buf[4+len(payload):4+len(payload)+4], crc)
	}
	return buf
}

// decodePayloadFrame extracts and validates the payload from a frame read
// at full capacity width.
func decodePayloadFrame(buf []byte, payloadCRCEnabled bool) ([]byte, error) {
	if len(buf) < 4 {
		return nil, ErrCorruptPayload
	}
	n := binary.BigEndian.Uint32(buf[0:4])
	if int(n) > len(buf)-4 {
		return nil, ErrCorruptPayload
	}
	payload := buf[4 : 4+n]
	if payloadCRCEnabled {
		if len(buf) < int(4+n+4) {
			return nil, ErrCorruptPayload
		}
		crc := binary.BigEndian.Uint32(buf[4+n : 4+n+4])
		if crc32.ChecksumIEEE(payload) != crc {
			return nil, ErrCorruptPayload
		}
	}
	out := make([]byte, n)
	copy(out, payload)
	return out, nil
}

// frameCapacity returns the total bytes required to frame a payload of
// the given length.
func frameCapacity(payloadLen uint32, payloadCRCEnabled bool) uint32 {
	n := payloadLenSize + payloadLen
	if payloadCRCEnabled {
		n += payloadCrcSize
	}
	return n
}
