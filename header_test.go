package slabkv

import "testing"

func TestFileHeaderRoundTrip(t *testing.T) {
	h := fileHeader{
		keyLength:              32,
		payloadCRCEnabled:      true,
		numRecords:             7,
		dataStartPtr:           4096,
		preferredBlockSize:     4096,
		preferredExpansionSize: 65536,
	}

	buf := encodeFileHeader(h)
	if len(buf) != headerSize {
		t.Fatalf("encodeFileHeader: got %d bytes, want %d", len(buf), headerSize)
	}

	decoded, err := decodeFileHeader(buf)
	if err != nil {
		t.Fatalf("decodeFileHeader: %v", err)
	}
	if decoded != h {
		t.Fatalf("round-trip mismatch: got %+v, want %+v", decoded, h)
	}
}

func TestDecodeFileHeaderRejectsUnknownMagic(t *testing.T) {
	buf := make([]byte, headerSize)
	buf[0], buf[1], buf[2], buf[3] = 0, 0, 0, 0

	if _, err := decodeFileHeader(buf); err != ErrBadFormat {
		t.Fatalf("got error %v, want ErrBadFormat", err)
	}
}

func TestDecodeFileHeaderRejectsLegacyFormat(t *testing.T) {
	buf := make([]byte, legacyHeaderSize)
	buf[0], buf[1], buf[2], buf[3] = 0xDE, 0xAD, 0xBE, 0xEF

	if _, err := decodeFileHeader(buf); err != ErrLegacyFormatUnsupported {
		t.Fatalf("got error %v, want ErrLegacyFormatUnsupported", err)
	}
}

func TestDecodeFileHeaderRejectsTruncated(t *testing.T) {
	h := fileHeader{keyLength: 16, dataStartPtr: headerSize}
	buf := encodeFileHeader(h)[:10]

	if _, err := decodeFileHeader(buf); err == nil {
		t.Fatal("expected a truncated header to be rejected")
	}
}

func TestIndexSlotLayout(t *testing.T) {
	const keyLength = 16
	stride := indexSlotStride(keyLength)
	if stride != 2+keyLength+4+envelopeSize {
		t.Fatalf("indexSlotStride: got %d, want %d", stride, 2+keyLength+4+envelopeSize)
	}
	if off := indexSlotOffset(keyLength, 0); off != headerSize {
		t.Fatalf("indexSlotOffset(0): got %d, want %d", off, headerSize)
	}
	if off := indexSlotOffset(keyLength, 2); off != headerSize+2*stride {
		t.Fatalf("indexSlotOffset(2): got %d, want %d", off, headerSize+2*stride)
	}
}
