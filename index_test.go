package slabkv

import "testing"

func TestStateUpdateAndLookup(t *testing.T) {
	s := newState()

	h := newRecordHeader(Key("a"), 100, 10, 10, 0)
	if err := s.update(Key("a"), nil, h); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, ok := s.getByKey(Key("a"))
	if !ok {
		t.Fatal("getByKey: not found")
	}
	if got.dataPointer != 100 {
		t.Fatalf("got dataPointer %d, want 100", got.dataPointer)
	}

	got, ok = s.getByPointer(100)
	if !ok || got.dataPointer != 100 {
		t.Fatalf("getByPointer(100): got %+v, ok=%v", got, ok)
	}

	got, ok = s.getByIndexPosition(0)
	if !ok || got.dataPointer != 100 {
		t.Fatalf("getByIndexPosition(0): got %+v, ok=%v", got, ok)
	}
}

func TestStateFloorCeiling(t *testing.T) {
	s := newState()
	for i, dp := range []int64{100, 300, 500} {
		h := newRecordHeader(Key(string(rune('a'+i))), dp, 1, 1, int32(i))
		if err := s.update(Key(string(rune('a'+i))), nil, h); err != nil {
			t.Fatalf("update: %v", err)
		}
	}

	if h, ok := s.floorByPointer(400); !ok || h.dataPointer != 300 {
		t.Fatalf("floorByPointer(400): got %+v, ok=%v, want 300", h, ok)
	}
	if h, ok := s.ceilingByPointer(400); !ok || h.dataPointer != 500 {
		t.Fatalf("ceilingByPointer(400): got %+v, ok=%v, want 500", h, ok)
	}
	if _, ok := s.floorByPointer(50); ok {
		t.Fatal("floorByPointer(50): expected no entry below the lowest pointer")
	}
	if _, ok := s.ceilingByPointer(600); ok {
		t.Fatal("ceilingByPointer(600): expected no entry above the highest pointer")
	}
}

func TestStateReplaceOnUpdate(t *testing.T) {
	s := newState()
	old := newRecordHeader(Key("a"), 100, 10, 10, 0)
	if err := s.update(Key("a"), nil, old); err != nil {
		t.Fatalf("initial update: %v", err)
	}

	moved := old.withPointer(500, 10)
	if err := s.update(Key("a"), &old, moved); err != nil {
		t.Fatalf("replace update: %v", err)
	}

	if _, ok := s.getByPointer(100); ok {
		t.Fatal("old dataPointer entry should have been removed")
	}
	if got, ok := s.getByPointer(500); !ok || got.dataPointer != 500 {
		t.Fatalf("getByPointer(500): got %+v, ok=%v", got, ok)
	}
	if s.size() != 1 {
		t.Fatalf("size: got %d, want 1", s.size())
	}
}

func TestStateRemove(t *testing.T) {
	s := newState()
	h := newRecordHeader(Key("a"), 100, 10, 10, 0)
	if err := s.update(Key("a"), nil, h); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := s.remove(Key("a"), h); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if s.size() != 0 {
		t.Fatalf("size: got %d, want 0", s.size())
	}
	if _, ok := s.getByKey(Key("a")); ok {
		t.Fatal("key should no longer be present")
	}
}
