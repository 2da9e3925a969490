package slabkv

import (
	"bytes"
	"testing"
)

func TestRecordHeaderCRCExcludesPosition(t *testing.T) {
	h1 := newRecordHeader(Key("k"), 100, 10, 20, 0)
	h2 := h1.withPointer(9999, 20)

	if h1.headerCRC != h2.headerCRC {
		t.Fatalf("moving a record changed its header CRC: %d != %d", h1.headerCRC, h2.headerCRC)
	}
}

func TestRecordHeaderEnvelopeRoundTrip(t *testing.T) {
	h := newRecordHeader(Key("some-key"), 4096, 128, 256, 3)

	buf := encodeEnvelope(h)
	if len(buf) != envelopeSize {
		t.Fatalf("encodeEnvelope: got %d bytes, want %d", len(buf), envelopeSize)
	}

	decoded, err := decodeEnvelope(buf, h.indexPosition)
	if err != nil {
		t.Fatalf("decodeEnvelope: %v", err)
	}
	if decoded.dataPointer != h.dataPointer || decoded.dataLength != h.dataLength || decoded.dataCapacity != h.dataCapacity {
		t.Fatalf("round-trip mismatch: got %+v, want %+v", decoded, h)
	}
}

func TestDecodeEnvelopeRejectsCorruptCRC(t *testing.T) {
	h := newRecordHeader(Key("k"), 0, 10, 10, 0)
	buf := encodeEnvelope(h)
	buf[12] ^= 0xFF // flip a byte inside dataLength

	if _, err := decodeEnvelope(buf, 0); err == nil {
		t.Fatal("expected corruption to be detected, got nil error")
	}
}

func TestKeyEntryRoundTrip(t *testing.T) {
	const keyLength = 16
	key := Key("hello")

	buf, err := encodeKeyEntry(key, keyLength)
	if err != nil {
		t.Fatalf("encodeKeyEntry: %v", err)
	}
	if len(buf) != 2+keyLength+4 {
		t.Fatalf("encodeKeyEntry: got %d bytes, want %d", len(buf), 2+keyLength+4)
	}

	decoded, err := decodeKeyEntry(buf, keyLength)
	if err != nil {
		t.Fatalf("decodeKeyEntry: %v", err)
	}
	if !bytes.Equal(decoded, key) {
		t.Fatalf("decodeKeyEntry: got %q, want %q", decoded, key)
	}
}

func TestEncodeKeyEntryRejectsOversizedKey(t *testing.T) {
	_, err := encodeKeyEntry(Key("this-key-is-too-long"), 4)
	if err != ErrKeyTooLong {
		t.Fatalf("got error %v, want ErrKeyTooLong", err)
	}
}

func TestPayloadFrameRoundTrip(t *testing.T) {
	payload := []byte("the quick brown fox")
	capacity := frameCapacity(uint32(len(payload)), true)

	frame := encodePayloadFrame(payload, capacity, true)
	decoded, err := decodePayloadFrame(frame, true)
	if err != nil {
		t.Fatalf("decodePayloadFrame: %v", err)
	}
	if !bytes.Equal(decoded, payload) {
		t.Fatalf("got %q, want %q", decoded, payload)
	}
}

func TestPayloadFrameDetectsCorruption(t *testing.T) {
	payload := []byte("the quick brown fox")
	capacity := frameCapacity(uint32(len(payload)), true)
	frame := encodePayloadFrame(payload, capacity, true)

	frame[10] ^= 0xFF

	if _, err := decodePayloadFrame(frame, true); err != ErrCorruptPayload {
		t.Fatalf("got error %v, want ErrCorruptPayload", err)
	}
}

func TestPayloadFrameWithoutCRC(t *testing.T) {
	payload := []byte("no checksum here")
	capacity := frameCapacity(uint32(len(payload)), false)
	frame := encodePayloadFrame(payload, capacity, false)

	decoded, err := decodePayloadFrame(frame, false)
	if err != nil {
		t.Fatalf("decodePayloadFrame: %v", err)
	}
	if !bytes.Equal(decoded, payload) {
		t.Fatalf("got %q, want %q", decoded, payload)
	}
}
