package slabkv

import "sort"

// freeSpaceEntry names one reclaimable extent: a live record's slack (the
// gap between its live frame and its reserved capacity), an extent
// released by a delete or relocation, or the unused tail of a file
// extension.
type freeSpaceEntry struct {
	dataPointer int64
	freeSpace   uint32
}

func less(a, b freeSpaceEntry) bool {
	if a.freeSpace != b.freeSpace {
		return a.freeSpace < b.freeSpace
	}
	return a.dataPointer < b.dataPointer
}

// freeSpaceMap tracks every reclaimable extent, ordered ascending
// by (freeSpace, dataPointer) so the allocator's best-fit search (C6) can
// binary-search for the smallest slot that still satisfies a request. The
// ordering technique mirrors state's dataPointer index (index.go): a
// sorted slice with sort.Search-driven insert/remove.
type freeSpaceMap struct {
	entries []freeSpaceEntry
}

func newFreeSpaceMap() *freeSpaceMap {
	return &freeSpaceMap{}
}

func (f *freeSpaceMap) searchIndex(e freeSpaceEntry) int {
	return sort.Search(len(f.entries), func(i int) bool { return !less(f.entries[i], e) })
}

// upsert records (or replaces) the free-space slack for dataPointer. A
// zero-slack entry is simply not stored — there is nothing to reclaim.
func (f *freeSpaceMap) upsert(dataPointer int64, freeSpace uint32) {
	f.remove(dataPointer)
	if freeSpace == 0 {
		return
	}
	e := freeSpaceEntry{dataPointer: dataPointer, freeSpace: freeSpace}
	i := f.searchIndex(e)
	f.entries = append(f.entries, freeSpaceEntry{})
	copy(f.entries[i+1:], f.entries[i:])
	f.entries[i] = e
}

// remove drops dataPointer's entry, if any. dataPointer's current
// freeSpace isn't known to the caller in general, so this does a linear
// scan; the free-space map is expected to stay small relative to the
// record count in practice (only records with slack appear in it at all).
func (f *freeSpaceMap) remove(dataPointer int64) {
	for i, e := range f.entries {
		if e.dataPointer == dataPointer {
			f.entries = append(f.entries[:i], f.entries[i+1:]...)
			return
		}
	}
}

// findByPointer returns the entry at exactly dataPointer, if tracked.
func (f *freeSpaceMap) findByPointer(dataPointer int64) (freeSpaceEntry, bool) {
	for _, e := range f.entries {
		if e.dataPointer == dataPointer {
			return e, true
		}
	}
	return freeSpaceEntry{}, false
}

// bestFit returns the smallest tracked free-space entry whose freeSpace is
// >= need, or false if none qualifies.
func (f *freeSpaceMap) bestFit(need uint32) (freeSpaceEntry, bool) {
	i := sort.Search(len(f.entries), func(i int) bool { return f.entries[i].freeSpace >= need })
	if i >= len(f.entries) {
		return freeSpaceEntry{}, false
	}
	return f.entries[i], true
}

func (f *freeSpaceMap) len() int { return len(f.entries) }

// purgeBelow discards every tracked extent below threshold, used when the
// index region grows and absorbs bytes that used to be free data space.
// An entry that straddles threshold is trimmed rather than dropped
// outright: the portion at or above threshold is still genuinely free.
func (f *freeSpaceMap) purgeBelow(threshold int64) {
	old := f.entries
	f.entries = nil
	for _, e := range old {
		end := e.dataPointer + int64(e.freeSpace)
		switch {
		case end <= threshold:
			continue
		case e.dataPointer >= threshold:
			f.upsert(e.dataPointer, e.freeSpace)
		default:
			f.upsert(threshold, uint32(end-threshold))
		}
	}
}
