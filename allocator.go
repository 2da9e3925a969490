package slabkv

import "fmt"

// alignUp rounds n up to the next multiple of block (block must be > 0).
func alignUp(n, block int64) int64 {
	if block <= 0 {
		return n
	}
	rem := n % block
	if rem == 0 {
		return n
	}
	return n + (block - rem)
}

// allocate reserves a data extent large enough for a payload of payloadLen
// bytes and returns its file offset and total reserved capacity. The
// cascade, in order, is: (1) the head gap — the structural slack between
// the end of the currently used index slots and dataStartPtr, carved by
// shrinking dataStartPtr directly rather than by consulting the
// free-space map; (2) the best-fit free slot anywhere in the free-space
// map, split if it's larger than needed; (3) extending the file by
// max(needed, PreferredExpansionSize), tracking any resulting slack as a
// new free slot.
func (s *Store) allocate(payloadLen uint32) (int64, uint32, error) {
	needed := frameCapacity(payloadLen, s.header.payloadCRCEnabled)

	if dp, ok, err := s.allocateHeadGap(needed); err != nil {
		return 0, 0, err
	} else if ok {
		return dp, needed, nil
	}

	if dp, ok := s.allocateFromFreeSlot(needed); ok {
		return dp, needed, nil
	}

	return s.allocateByExtension(needed)
}

// endOfIndex returns the offset just past the last currently used index
// slot — distinct from dataStartPtr, which marks the boundary of the
// full reserved (preallocated) index capacity.
func endOfIndex(keyLength uint32, numRecords int32) int64 {
	return indexSlotOffset(keyLength, numRecords)
}

// allocateHeadGap carves [dataStartPtr-needed, dataStartPtr) out of the
// head gap and shrinks dataStartPtr to match, persisting the header
// immediately. At least two slots' worth of headroom is always left
// between the carved region and the live index slots, so Insert still has
// room to grow the index without an immediate relocation pass.
func (s *Store) allocateHeadGap(needed uint32) (int64, bool, error) {
	stride := indexSlotStride(s.header.keyLength)
	reserve := 2 * stride
	gap := s.header.dataStartPtr - endOfIndex(s.header.keyLength, s.header.numRecords)
	if gap-reserve < int64(needed) {
		return 0, false, nil
	}

	newStart := s.header.dataStartPtr - int64(needed)
	s.header.dataStartPtr = newStart
	if err := s.writeFileHeader(); err != nil {
		return 0, false, err
	}
	return newStart, true, nil
}

func (s *Store) allocateFromFreeSlot(needed uint32) (int64, bool) {
	e, ok := s.freeSpace.bestFit(needed)
	if !ok {
		return 0, false
	}
	return s.consumeFreeSlot(e, needed), true
}

// consumeFreeSlot removes e from the free-space map and, if it was
// larger than needed, re-inserts the leftover tail as a new entry.
func (s *Store) consumeFreeSlot(e freeSpaceEntry, needed uint32) int64 {
	s.freeSpace.remove(e.dataPointer)
	leftover := e.freeSpace - needed
	if leftover > 0 {
		s.freeSpace.upsert(e.dataPointer+int64(needed), leftover)
	}
	return e.dataPointer
}

func (s *Store) allocateByExtension(needed uint32) (int64, uint32, error) {
	length, err := s.ops.Length()
	if err != nil {
		return 0, 0, err
	}
	ext := int64(needed)
	if s.header.preferredExpansionSize > 0 && int64(s.header.preferredExpansionSize) > ext {
		ext = int64(s.header.preferredExpansionSize)
	}
	if err := s.ops.SetLength(length + ext); err != nil {
		return 0, 0, fmt.Errorf("extend file by %d: %w", ext, err)
	}
	leftover := ext - int64(needed)
	if leftover > 0 {
		s.freeSpace.upsert(length+int64(needed), uint32(leftover))
	}
	return length, needed, nil
}

// release returns a record's extent to the free-space map once it is no
// longer referenced by the index (deletion, or relocation to a new
// extent).
func (s *Store) release(dataPointer int64, capacity uint32) {
	s.freeSpace.upsert(dataPointer, capacity)
}

// ensureIndexSpace grows the index region by additionalSlots entries,
// relocating every record whose data extent now falls inside the
// enlarged index region to a freshly allocated extent at end of file,
// aligned up to PreferredBlockSize. The new index boundary is aligned up
// to PreferredBlockSize as well.
func (s *Store) ensureIndexSpace(additionalSlots int32) error {
	if additionalSlots <= 0 {
		return nil
	}
	stride := indexSlotStride(s.header.keyLength)
	grow := int64(additionalSlots) * stride
	newDataStart := alignUp(s.header.dataStartPtr+grow, int64(s.header.preferredBlockSize))

	var toMove []RecordHeader
	s.state.forEachByPointer(func(h RecordHeader) bool {
		if h.dataPointer < newDataStart {
			toMove = append(toMove, h)
		}
		return true
	})

	for _, old := range toMove {
		if err := s.relocateRecord(old, newDataStart); err != nil {
			return fmt.Errorf("relocate record during index growth: %w", err)
		}
	}

	// Any free-space entry inside the newly absorbed range no longer names
	// reclaimable data space — those bytes are now index slots.
	s.freeSpace.purgeBelow(newDataStart)

	s.header.dataStartPtr = newDataStart
	return s.writeFileHeader()
}

// relocateRecord copies a live record's payload to a new extent at or
// beyond minPointer and repoints its index envelope at the new location.
// The payload is written to the new extent before the envelope is
// updated, so a crash mid-move leaves the old envelope pointing at
// still-intact old data.
func (s *Store) relocateRecord(old RecordHeader, minPointer int64) error {
	frame, err := s.readFrame(old.dataPointer, old.dataCapacity)
	if err != nil {
		return err
	}

	length, err := s.ops.Length()
	if err != nil {
		return err
	}
	newDP := alignUp(length, int64(s.header.preferredBlockSize))
	if newDP < minPointer {
		newDP = minPointer
	}
	if err := s.ops.SetLength(newDP + int64(old.dataCapacity)); err != nil {
		return err
	}
	if err := s.writeFrame(newDP, frame); err != nil {
		return err
	}

	newHeader := old.withPointer(newDP, old.dataCapacity)
	if err := s.writeEnvelopeAtSlot(newHeader); err != nil {
		return err
	}

	oldHeader := old
	if err := s.state.update(Key(old.key), &oldHeader, newHeader); err != nil {
		return err
	}
	return nil
}
