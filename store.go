package slabkv

import (
	"fmt"
	"os"
	"sync"

	"lukechampine.com/blake3"

	"github.com/coldpack/slabkv/logger"
)

// AccessMode selects whether Open grants mutating access to the file.
type AccessMode int

const (
	AccessModeReadWrite AccessMode = iota
	AccessModeReadOnly
)

// Config controls both the on-disk layout of a newly Created store and
// the runtime behavior of an Open instance. Every field has a documented
// zero-value behavior so a caller can pass a partially-filled Config.
type Config struct {
	// KeyLength is the fixed capacity, in bytes, reserved for every key.
	// Required on Create; on Open, a nonzero value is checked against the
	// file's own recorded key length and mismatches fail with
	// ErrKeyLengthMismatch.
	KeyLength uint32

	// PreallocatedRecords sizes the initial index region on Create.
	// Defaults to 16.
	PreallocatedRecords int32

	// DisablePayloadCrc omits the trailing CRC32 guarding each payload.
	// Headers and keys are always checksummed regardless of this flag.
	DisablePayloadCrc bool

	// UseMemoryMapping selects the chunked mmap backend over direct
	// positioned I/O.
	UseMemoryMapping bool

	// MmapChunkSize overrides the per-region mapping size when
	// UseMemoryMapping is set. Defaults to defaultChunkSize.
	MmapChunkSize int64

	// PreferredBlockSize aligns the index region boundary and the new
	// extents of records relocated when the index grows. Defaults to 4096.
	PreferredBlockSize int32

	// PreferredExpansionSize is the minimum amount the data region grows
	// by when allocation exhausts the head gap and free list. Defaults to
	// 64 KiB.
	PreferredExpansionSize int32

	// AllowInPlaceUpdates lets Update reuse a record's existing capacity
	// via the dual-write envelope pattern instead of always relocating.
	AllowInPlaceUpdates bool

	// AllowHeaderExpansion lets Insert grow the index region (relocating
	// records in its way) once PreallocatedRecords is exhausted. If
	// false, Insert past capacity fails with ErrHeaderExhausted.
	AllowHeaderExpansion bool

	// DisableDefensiveCopy skips cloning a caller's key byte slice on
	// ingress (Insert, Update, Delete, Exists). Defensive copying is on by
	// default — the zero Config is the safe choice — since the engine's
	// correctness never depends on it; disable it only if the caller never
	// recycles or mutates a key buffer after passing it in, to save the
	// allocation.
	DisableDefensiveCopy bool

	// AccessMode controls mutating access on Open. Create always opens
	// read-write.
	AccessMode AccessMode

	// Logger receives structured diagnostics. Defaults to a no-op logger.
	Logger logger.Logger
}

func normalizeConfig(cfg Config) Config {
	if cfg.PreallocatedRecords <= 0 {
		cfg.PreallocatedRecords = 16
	}
	if cfg.PreferredBlockSize <= 0 {
		cfg.PreferredBlockSize = 4096
	}
	if cfg.PreferredExpansionSize <= 0 {
		cfg.PreferredExpansionSize = 64 * 1024
	}
	if cfg.MmapChunkSize <= 0 {
		cfg.MmapChunkSize = defaultChunkSize
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNoOp()
	}
	return cfg
}

type lifecycleState int

const (
	lifecycleOpen lifecycleState = iota
	lifecycleClosed
	lifecycleUnknown // poisoned by an invariant violation; every call now fails closed
)

// Store is a single-file, crash-safe, embedded key-value store. All
// public mutating methods serialize on one instance-level mutex — the
// index's own RWMutex is an internal-hygiene layer beneath that, not a
// concurrency feature callers rely on.
type Store struct {
	mu sync.Mutex

	path      string
	ops       fileOps
	header    fileHeader
	state     *state
	freeSpace *freeSpaceMap
	cfg       Config
	log       logger.Logger

	lifecycle lifecycleState
	readOnly  bool
}

// Create initializes a brand-new store file at path. The file must not
// already exist.
func Create(path string, cfg Config) (*Store, error) {
	cfg = normalizeConfig(cfg)
	if cfg.KeyLength == 0 {
		return nil, fmt.Errorf("KeyLength must be > 0: %w", ErrBadConfig)
	}

	file, err := secureFileCreate(path)
	if err != nil {
		return nil, err
	}

	indexBytes := int64(cfg.PreallocatedRecords) * indexSlotStride(cfg.KeyLength)
	dataStart := alignUp(headerSize+indexBytes, int64(cfg.PreferredBlockSize))

	header := fileHeader{
		keyLength:              cfg.KeyLength,
		payloadCRCEnabled:      !cfg.DisablePayloadCrc,
		numRecords:             0,
		dataStartPtr:           dataStart,
		preferredBlockSize:     cfg.PreferredBlockSize,
		preferredExpansionSize: cfg.PreferredExpansionSize,
	}

	ops, err := newFileOps(file, cfg)
	if err != nil {
		_ = file.Close()
		return nil, err
	}
	if err := ops.SetLength(dataStart); err != nil {
		_ = ops.Close()
		return nil, err
	}

	s := &Store{
		path:      path,
		ops:       ops,
		header:    header,
		state:     newState(),
		freeSpace: newFreeSpaceMap(),
		cfg:       cfg,
		log:       cfg.Logger,
		lifecycle: lifecycleOpen,
	}
	if err := s.writeFileHeader(); err != nil {
		_ = ops.Close()
		return nil, err
	}
	return s, nil
}

// Open opens an existing store file. If cfg.KeyLength is nonzero it must
// match the file's recorded key length.
func Open(path string, cfg Config) (*Store, error) {
	cfg = normalizeConfig(cfg)
	readOnly := cfg.AccessMode == AccessModeReadOnly

	file, err := secureFileOpen(path, readOnly)
	if err != nil {
		return nil, err
	}

	ops, err := newFileOps(file, cfg)
	if err != nil {
		_ = file.Close()
		return nil, err
	}

	length, err := ops.Length()
	if err != nil {
		_ = ops.Close()
		return nil, err
	}
	if length > headerSize {
		length = headerSize
	}
	buf := make([]byte, length)
	if err := ops.Seek(0); err != nil {
		_ = ops.Close()
		return nil, err
	}
	if err := ops.ReadFull(buf); err != nil {
		_ = ops.Close()
		return nil, err
	}
	header, err := decodeFileHeader(buf)
	if err != nil {
		_ = ops.Close()
		return nil, err
	}
	if cfg.KeyLength != 0 && cfg.KeyLength != header.keyLength {
		_ = ops.Close()
		return nil, ErrKeyLengthMismatch
	}

	s := &Store{
		path:      path,
		ops:       ops,
		header:    header,
		state:     newState(),
		freeSpace: newFreeSpaceMap(),
		cfg:       cfg,
		log:       cfg.Logger,
		lifecycle: lifecycleOpen,
		readOnly:  readOnly,
	}
	if err := s.loadIndexFromDisk(); err != nil {
		_ = ops.Close()
		return nil, err
	}
	return s, nil
}

func newFileOps(file *os.File, cfg Config) (fileOps, error) {
	if cfg.UseMemoryMapping {
		return newMmapFileOps(file, cfg.MmapChunkSize, cfg.Logger)
	}
	return newDirectFileOps(file), nil
}

func (s *Store) checkWritable() error {
	switch s.lifecycle {
	case lifecycleClosed, lifecycleUnknown:
		return ErrInvalidState
	}
	if s.readOnly {
		return ErrReadOnly
	}
	return nil
}

func (s *Store) checkReadable() error {
	switch s.lifecycle {
	case lifecycleClosed, lifecycleUnknown:
		return ErrInvalidState
	}
	return nil
}

func (s *Store) poison(err error) error {
	s.lifecycle = lifecycleUnknown
	return err
}

// Insert adds a new key. It fails with ErrKeyExists if key is already
// present.
func (s *Store) Insert(key Key, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key = cloneKey(key, !s.cfg.DisableDefensiveCopy)

	if err := s.checkWritable(); err != nil {
		return err
	}
	if len(key) > int(s.header.keyLength) {
		return ErrKeyTooLong
	}
	if _, ok := s.state.getByKey(key); ok {
		return ErrKeyExists
	}

	if err := s.ensureFreeSlot(); err != nil {
		return err
	}

	dp, capacity, err := s.allocate(uint32(len(payload)))
	if err != nil {
		return err
	}

	pos := s.header.numRecords
	rh := newRecordHeader(key, dp, uint32(len(payload)), capacity, pos)

	frame := encodePayloadFrame(payload, capacity, s.header.payloadCRCEnabled)
	if err := s.writeFrame(dp, frame); err != nil {
		return err
	}
	if err := s.writeIndexSlot(pos, key, rh); err != nil {
		return err
	}

	s.header.numRecords++
	if err := s.writeFileHeader(); err != nil {
		return err
	}

	if err := s.state.update(key, nil, rh); err != nil {
		return s.poison(err)
	}
	return nil
}

// ensureFreeSlot grows the index region if the next Insert would exceed
// the currently reserved slot count.
func (s *Store) ensureFreeSlot() error {
	capacitySlots := (s.header.dataStartPtr - headerSize) / indexSlotStride(s.header.keyLength)
	if int64(s.header.numRecords) < capacitySlots {
		return nil
	}
	if !s.cfg.AllowHeaderExpansion {
		return ErrHeaderExhausted
	}
	growth := capacitySlots
	if growth < 1 {
		growth = 1
	}
	return s.ensureIndexSpace(int32(growth))
}

// Read returns a copy of the payload stored under key.
func (s *Store) Read(key Key) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkReadable(); err != nil {
		return nil, err
	}
	h, ok := s.state.getByKey(key)
	if !ok {
		return nil, ErrKeyNotFound
	}
	frame, err := s.readFrame(h.dataPointer, h.dataCapacity)
	if err != nil {
		return nil, err
	}
	return decodePayloadFrame(frame, s.header.payloadCRCEnabled)
}

// Update replaces the payload stored under key. If the new payload fits
// within the record's existing capacity and AllowInPlaceUpdates is set,
// the update is applied in place via a dual-write envelope sequence: the
// envelope is first rewritten unchanged, as a backup checkpoint of the
// pre-update length and capacity, then the payload frame is written,
// then the envelope is rewritten a second time with the true new length.
// A crash before the payload write leaves the record readable at its old
// length; a crash after leaves it readable at the new length; a crash
// mid payload-write — the frame's embedded length prefix and the
// envelope's declared length momentarily disagreeing with each other —
// is caught by payload CRC validation on the next read when payload
// checksums are enabled; with DisablePayloadCrc set, nothing detects it.
// Otherwise the payload is relocated to a freshly allocated extent and
// the old one is released.
func (s *Store) Update(key Key, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key = cloneKey(key, !s.cfg.DisableDefensiveCopy)

	if err := s.checkWritable(); err != nil {
		return err
	}
	h, ok := s.state.getByKey(key)
	if !ok {
		return ErrKeyNotFound
	}

	needed := frameCapacity(uint32(len(payload)), s.header.payloadCRCEnabled)

	if s.cfg.AllowInPlaceUpdates && needed <= h.dataCapacity {
		return s.updateInPlace(key, h, payload)
	}
	return s.updateByRelocation(key, h, payload)
}

func (s *Store) updateInPlace(key Key, h RecordHeader, payload []byte) error {
	if err := s.writeEnvelopeAtSlot(h); err != nil {
		return err
	}

	frame := encodePayloadFrame(payload, h.dataCapacity, s.header.payloadCRCEnabled)
	if err := s.writeFrame(h.dataPointer, frame); err != nil {
		return err
	}

	final := h.withLength(uint32(len(payload)), h.dataCapacity)
	if err := s.writeEnvelopeAtSlot(final); err != nil {
		return err
	}

	if err := s.state.update(key, &h, final); err != nil {
		return s.poison(err)
	}

	crcEnabled := s.header.payloadCRCEnabled
	if h.freeSpace(crcEnabled) > 0 {
		s.freeSpace.remove(h.dataPointer + int64(h.frameSize(crcEnabled)))
	}
	if slack := final.freeSpace(crcEnabled); slack > 0 {
		s.freeSpace.upsert(final.dataPointer+int64(final.frameSize(crcEnabled)), slack)
	}
	return nil
}

func (s *Store) updateByRelocation(key Key, h RecordHeader, payload []byte) error {
	dp, capacity, err := s.allocate(uint32(len(payload)))
	if err != nil {
		return err
	}

	frame := encodePayloadFrame(payload, capacity, s.header.payloadCRCEnabled)
	if err := s.writeFrame(dp, frame); err != nil {
		return err
	}

	newHeader := newRecordHeader(key, dp, uint32(len(payload)), capacity, h.indexPosition)
	if err := s.writeEnvelopeAtSlot(newHeader); err != nil {
		return err
	}

	if err := s.reclaimExtent(h); err != nil {
		return err
	}
	if err := s.state.update(key, &h, newHeader); err != nil {
		return s.poison(err)
	}
	return nil
}

// reclaimExtent returns h's data extent to the file once nothing in the
// index points at it any longer. If the extent ends at the current end
// of file, the file is truncated back to h's dataPointer. Otherwise, if
// a live predecessor record's capacity abuts it directly, the
// predecessor is grown to absorb it, with any resulting slack tracked in
// the free-space map. Otherwise, if h sat at the very start of the data
// region, dataStartPtr advances past it. Anything else — an interior
// extent with no abutting predecessor — falls back to the generic
// free-space map. h's own trailing-slack entry, if any, is dropped from
// the free-space map first.
func (s *Store) reclaimExtent(h RecordHeader) error {
	end := h.dataPointer + int64(h.dataCapacity)
	if h.freeSpace(s.header.payloadCRCEnabled) > 0 {
		s.freeSpace.remove(h.dataPointer + int64(h.frameSize(s.header.payloadCRCEnabled)))
	}

	fileLen, err := s.ops.Length()
	if err != nil {
		return err
	}
	if end == fileLen {
		return s.ops.SetLength(h.dataPointer)
	}

	if pred, ok := s.state.floorByPointer(h.dataPointer - 1); ok {
		predEnd := pred.dataPointer + int64(pred.dataCapacity)
		if predEnd == h.dataPointer {
			grown := pred.withLength(pred.dataLength, pred.dataCapacity+h.dataCapacity)
			if err := s.writeEnvelopeAtSlot(grown); err != nil {
				return err
			}
			if err := s.state.update(Key(pred.key), &pred, grown); err != nil {
				return s.poison(err)
			}
			crcEnabled := s.header.payloadCRCEnabled
			if slack := grown.freeSpace(crcEnabled); slack > 0 {
				s.freeSpace.upsert(grown.dataPointer+int64(grown.frameSize(crcEnabled)), slack)
			}
			return nil
		}
	}

	if h.dataPointer == s.header.dataStartPtr {
		s.header.dataStartPtr = end
		return s.writeFileHeader()
	}

	s.release(h.dataPointer, h.dataCapacity)
	return nil
}

// Delete removes key. The now-unused index slot is filled by the current
// last slot (compaction by swap). The freed data extent is reclaimed via
// reclaimExtent: truncated if it was at end of file, merged into an
// abutting predecessor, advanced past if it was the head of the data
// region, or else tracked in the free-space map.
func (s *Store) Delete(key Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key = cloneKey(key, !s.cfg.DisableDefensiveCopy)

	if err := s.checkWritable(); err != nil {
		return err
	}
	h, ok := s.state.getByKey(key)
	if !ok {
		return ErrKeyNotFound
	}
	if err := s.state.remove(key, h); err != nil {
		return s.poison(err)
	}

	lastPos := s.header.numRecords - 1
	if h.indexPosition != lastPos {
		lastHeader, ok := s.state.getByIndexPosition(lastPos)
		if !ok {
			return s.poison(fmt.Errorf("missing index slot %d: %w", lastPos, ErrInvariant))
		}
		moved := lastHeader.withIndexPosition(h.indexPosition)
		if err := s.writeIndexSlot(h.indexPosition, Key(moved.key), moved); err != nil {
			return err
		}
		if err := s.state.update(Key(moved.key), &lastHeader, moved); err != nil {
			return s.poison(err)
		}
	}

	s.header.numRecords--
	if err := s.writeFileHeader(); err != nil {
		return err
	}
	return s.reclaimExtent(h)
}

// Exists reports whether key is currently present.
func (s *Store) Exists(key Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	key = cloneKey(key, !s.cfg.DisableDefensiveCopy)
	if s.checkReadable() != nil {
		return false
	}
	_, ok := s.state.getByKey(key)
	return ok
}

// Size returns the number of live records.
func (s *Store) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.size()
}

// Keys returns a snapshot of every key currently stored. Order is
// unspecified.
func (s *Store) Keys() []Key {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.keys()
}

// SetAllowInPlaceUpdates toggles in-place dual-write updates at runtime.
func (s *Store) SetAllowInPlaceUpdates(allow bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.AllowInPlaceUpdates = allow
}

// SetAllowHeaderExpansion toggles index-region growth at runtime.
func (s *Store) SetAllowHeaderExpansion(allow bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.AllowHeaderExpansion = allow
}

// Sync forces the underlying file or mapping to stable storage.
func (s *Store) Sync() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkReadable(); err != nil {
		return err
	}
	return s.ops.Sync()
}

// Close releases the store's file handle. The Store must not be used
// afterward.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lifecycle == lifecycleClosed {
		return nil
	}
	s.lifecycle = lifecycleClosed
	return s.ops.Close()
}

// KeyLength returns the fixed key capacity the file was created with.
func (s *Store) KeyLength() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.header.keyLength
}

// DataStartPtr returns the current file offset at which the data region
// begins, just past the index region.
func (s *Store) DataStartPtr() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.header.dataStartPtr
}

// FreeBytes returns the total bytes currently tracked in the free-space
// map: records' trailing slack, extents released by deletes and
// relocations, and unused tails of file extensions. On Open the map is
// rebuilt from the index, so after a reopen only records' trailing slack
// is counted. The head gap itself isn't included — it's structural
// (implied by dataStartPtr), not a free-space map entry.
func (s *Store) FreeBytes() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total int64
	for _, e := range s.freeSpace.entries {
		total += int64(e.freeSpace)
	}
	return total
}

// Backend names the active I/O backend, "direct" or "mmap".
func (s *Store) Backend() string {
	if s.cfg.UseMemoryMapping {
		return "mmap"
	}
	return "direct"
}

// ValidateStructure re-reads every index slot directly from disk and
// re-validates its key and envelope CRCs, independent of the in-memory
// index built at Open. It catches corruption introduced after Open
// without requiring a full payload read.
func (s *Store) ValidateStructure() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkReadable(); err != nil {
		return err
	}

	seen := make(map[string]bool, s.header.numRecords)
	keyLen := s.header.keyLength
	stride := indexSlotStride(keyLen)
	keyEntryEnd := 2 + int(keyLen) + 4

	for i := int32(0); i < s.header.numRecords; i++ {
		buf := make([]byte, stride)
		if err := s.ops.Seek(indexSlotOffset(keyLen, i)); err != nil {
			return err
		}
		if err := s.ops.ReadFull(buf); err != nil {
			return err
		}
		key, err := decodeKeyEntry(buf[:keyEntryEnd], uint16(keyLen))
		if err != nil {
			return fmt.Errorf("slot %d: %w", i, err)
		}
		if seen[string(key)] {
			return fmt.Errorf("slot %d: duplicate key: %w", i, ErrInvariant)
		}
		seen[string(key)] = true

		h, err := decodeEnvelope(buf[keyEntryEnd:], i)
		if err != nil {
			return fmt.Errorf("slot %d: %w", i, err)
		}
		if h.dataPointer < s.header.dataStartPtr {
			return fmt.Errorf("slot %d: data pointer %d precedes data region start %d: %w", i, h.dataPointer, s.header.dataStartPtr, ErrInvariant)
		}
	}
	return nil
}

// ValidatePayloads reads and CRC-validates every stored payload. It
// implies everything ValidateStructure checks, plus the payload bytes
// themselves.
func (s *Store) ValidatePayloads() error {
	if err := s.ValidateStructure(); err != nil {
		return err
	}
	for _, k := range s.Keys() {
		if _, err := s.Read(k); err != nil {
			return fmt.Errorf("key %q: %w", k, err)
		}
	}
	return nil
}

// Digest returns a non-authoritative blake3 hash of the whole file's
// current bytes, useful for out-of-band corruption spot checks. It is
// never consulted by the engine itself — the per-record CRC32 checks are
// authoritative for correctness.
func (s *Store) Digest() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkReadable(); err != nil {
		return "", err
	}
	length, err := s.ops.Length()
	if err != nil {
		return "", err
	}
	h := blake3.New(32, nil)
	const chunk = 1 << 20
	buf := make([]byte, chunk)
	if err := s.ops.Seek(0); err != nil {
		return "", err
	}
	remaining := length
	for remaining > 0 {
		n := int64(len(buf))
		if remaining < n {
			n = remaining
		}
		if err := s.ops.ReadFull(buf[:n]); err != nil {
			return "", err
		}
		if _, err := h.Write(buf[:n]); err != nil {
			return "", fmt.Errorf("digest write: %w", err)
		}
		remaining -= n
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}

func (s *Store) writeFileHeader() error {
	if err := s.ops.Seek(0); err != nil {
		return err
	}
	return s.ops.Write(encodeFileHeader(s.header))
}

func (s *Store) writeIndexSlot(pos int32, key Key, h RecordHeader) error {
	keyBuf, err := encodeKeyEntry(key, uint16(s.header.keyLength))
	if err != nil {
		return err
	}
	off := indexSlotOffset(s.header.keyLength, pos)
	if err := s.ops.Seek(off); err != nil {
		return err
	}
	if err := s.ops.Write(keyBuf); err != nil {
		return err
	}
	return s.ops.Write(encodeEnvelope(h))
}

func (s *Store) writeEnvelopeAtSlot(h RecordHeader) error {
	off := indexSlotOffset(s.header.keyLength, h.indexPosition) + int64(2+s.header.keyLength+4)
	if err := s.ops.Seek(off); err != nil {
		return err
	}
	return s.ops.Write(encodeEnvelope(h))
}

func (s *Store) readFrame(dp int64, capacity uint32) ([]byte, error) {
	buf := make([]byte, capacity)
	if err := s.ops.Seek(dp); err != nil {
		return nil, err
	}
	if err := s.ops.ReadFull(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func (s *Store) writeFrame(dp int64, frame []byte) error {
	if err := s.ops.Seek(dp); err != nil {
		return err
	}
	return s.ops.Write(frame)
}

// loadIndexFromDisk rebuilds both the in-memory index and the free-space
// map from the on-disk index region. The free-space map is never
// persisted itself — every record's trailing slack is recomputed from
// its own length and capacity and reinserted, so a record's slack is
// never invisible to the allocator just because the file was reopened.
// Free extents that no record owns are not recovered.
func (s *Store) loadIndexFromDisk() error {
	keyLen := s.header.keyLength
	stride := indexSlotStride(keyLen)
	keyEntryEnd := 2 + int(keyLen) + 4
	crcEnabled := s.header.payloadCRCEnabled

	for i := int32(0); i < s.header.numRecords; i++ {
		buf := make([]byte, stride)
		if err := s.ops.Seek(indexSlotOffset(keyLen, i)); err != nil {
			return err
		}
		if err := s.ops.ReadFull(buf); err != nil {
			return err
		}
		key, err := decodeKeyEntry(buf[:keyEntryEnd], uint16(keyLen))
		if err != nil {
			return fmt.Errorf("index slot %d: %w", i, err)
		}
		h, err := decodeEnvelope(buf[keyEntryEnd:], i)
		if err != nil {
			return fmt.Errorf("index slot %d: %w", i, err)
		}
		if err := s.state.update(key, nil, h); err != nil {
			return err
		}
		if slack := h.freeSpace(crcEnabled); slack > 0 {
			s.freeSpace.upsert(h.dataPointer+int64(h.frameSize(crcEnabled)), slack)
		}
	}
	return nil
}
