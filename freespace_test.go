package slabkv

import "testing"

func TestFreeSpaceMapBestFit(t *testing.T) {
	f := newFreeSpaceMap()
	f.upsert(1000, 50)
	f.upsert(2000, 10)
	f.upsert(3000, 30)

	e, ok := f.bestFit(20)
	if !ok {
		t.Fatal("bestFit(20): expected a match")
	}
	if e.freeSpace != 30 || e.dataPointer != 3000 {
		t.Fatalf("bestFit(20): got %+v, want the 30-byte slot at 3000", e)
	}
}

func TestFreeSpaceMapExactFit(t *testing.T) {
	f := newFreeSpaceMap()
	f.upsert(1000, 50)

	e, ok := f.bestFit(50)
	if !ok || e.dataPointer != 1000 {
		t.Fatalf("bestFit(50): got %+v, ok=%v", e, ok)
	}
}

func TestFreeSpaceMapNoFit(t *testing.T) {
	f := newFreeSpaceMap()
	f.upsert(1000, 10)

	if _, ok := f.bestFit(20); ok {
		t.Fatal("bestFit(20): expected no match when every slot is too small")
	}
}

func TestFreeSpaceMapUpsertZeroRemoves(t *testing.T) {
	f := newFreeSpaceMap()
	f.upsert(1000, 50)
	f.upsert(1000, 0)

	if _, ok := f.findByPointer(1000); ok {
		t.Fatal("upsert with zero freeSpace should remove the entry")
	}
	if f.len() != 0 {
		t.Fatalf("len: got %d, want 0", f.len())
	}
}

func TestFreeSpaceMapFindByPointer(t *testing.T) {
	f := newFreeSpaceMap()
	f.upsert(42, 7)

	e, ok := f.findByPointer(42)
	if !ok || e.freeSpace != 7 {
		t.Fatalf("findByPointer(42): got %+v, ok=%v", e, ok)
	}
	if _, ok := f.findByPointer(99); ok {
		t.Fatal("findByPointer(99): expected no entry")
	}
}

func TestFreeSpaceMapRemove(t *testing.T) {
	f := newFreeSpaceMap()
	f.upsert(1, 5)
	f.upsert(2, 5)
	f.remove(1)

	if _, ok := f.findByPointer(1); ok {
		t.Fatal("entry should have been removed")
	}
	if f.len() != 1 {
		t.Fatalf("len: got %d, want 1", f.len())
	}
}
