package slabkv

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/coldpack/slabkv/logger"
)

func newDirectOpsForTest(t *testing.T) fileOps {
	t.Helper()
	path := filepath.Join(t.TempDir(), "direct.slab")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = f.Close() })
	return newDirectFileOps(f)
}

func newMmapOpsForTest(t *testing.T) fileOps {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mmap.slab")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	ops, err := newMmapFileOps(f, 64*1024, logger.NewNoOp())
	if err != nil {
		t.Fatalf("newMmapFileOps: %v", err)
	}
	t.Cleanup(func() { _ = ops.Close() })
	return ops
}

func TestFileOpsReadWrite(t *testing.T) {
	backends := map[string]func(*testing.T) fileOps{
		"direct": newDirectOpsForTest,
		"mmap":   newMmapOpsForTest,
	}

	for name, build := range backends {
		t.Run(name, func(t *testing.T) {
			ops := build(t)

			if err := ops.SetLength(64); err != nil {
				t.Fatalf("SetLength: %v", err)
			}

			if err := ops.Seek(10); err != nil {
				t.Fatalf("Seek: %v", err)
			}
			want := []byte("hello, slabkv")
			if err := ops.Write(want); err != nil {
				t.Fatalf("Write: %v", err)
			}

			if err := ops.Seek(10); err != nil {
				t.Fatalf("Seek: %v", err)
			}
			got := make([]byte, len(want))
			if err := ops.ReadFull(got); err != nil {
				t.Fatalf("ReadFull: %v", err)
			}
			if string(got) != string(want) {
				t.Fatalf("got %q, want %q", got, want)
			}
		})
	}
}

func TestFileOpsIntegerCodecs(t *testing.T) {
	backends := map[string]func(*testing.T) fileOps{
		"direct": newDirectOpsForTest,
		"mmap":   newMmapOpsForTest,
	}

	for name, build := range backends {
		t.Run(name, func(t *testing.T) {
			ops := build(t)
			if err := ops.SetLength(32); err != nil {
				t.Fatalf("SetLength: %v", err)
			}

			if err := ops.Seek(0); err != nil {
				t.Fatalf("Seek: %v", err)
			}
			if err := ops.WriteUint32(0xDEADBEEF); err != nil {
				t.Fatalf("WriteUint32: %v", err)
			}
			if err := ops.WriteInt64(-12345); err != nil {
				t.Fatalf("WriteInt64: %v", err)
			}

			if err := ops.Seek(0); err != nil {
				t.Fatalf("Seek: %v", err)
			}
			u32, err := ops.ReadUint32()
			if err != nil {
				t.Fatalf("ReadUint32: %v", err)
			}
			if u32 != 0xDEADBEEF {
				t.Fatalf("ReadUint32: got %#x, want %#x", u32, 0xDEADBEEF)
			}
			i64, err := ops.ReadInt64()
			if err != nil {
				t.Fatalf("ReadInt64: %v", err)
			}
			if i64 != -12345 {
				t.Fatalf("ReadInt64: got %d, want -12345", i64)
			}
		})
	}
}

func TestFileOpsSetLengthGrowsAndShrinks(t *testing.T) {
	backends := map[string]func(*testing.T) fileOps{
		"direct": newDirectOpsForTest,
		"mmap":   newMmapOpsForTest,
	}

	for name, build := range backends {
		t.Run(name, func(t *testing.T) {
			ops := build(t)

			if err := ops.SetLength(128); err != nil {
				t.Fatalf("grow: %v", err)
			}
			n, err := ops.Length()
			if err != nil || n != 128 {
				t.Fatalf("Length after grow: got (%d, %v), want 128", n, err)
			}

			if err := ops.SetLength(32); err != nil {
				t.Fatalf("shrink: %v", err)
			}
			n, err = ops.Length()
			if err != nil || n != 32 {
				t.Fatalf("Length after shrink: got (%d, %v), want 32", n, err)
			}
		})
	}
}

func TestMmapFileOpsSpansChunkBoundary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chunked.slab")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	const chunkSize = 4096
	ops, err := newMmapFileOps(f, chunkSize, logger.NewNoOp())
	if err != nil {
		t.Fatalf("newMmapFileOps: %v", err)
	}
	t.Cleanup(func() { _ = ops.Close() })

	total := int64(chunkSize * 3)
	if err := ops.SetLength(total); err != nil {
		t.Fatalf("SetLength: %v", err)
	}

	payload := make([]byte, 300)
	for i := range payload {
		payload[i] = byte(i)
	}
	writeAt := int64(chunkSize) - 100 // straddles the boundary between chunk 0 and chunk 1

	if err := ops.Seek(writeAt); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	if err := ops.Write(payload); err != nil {
		t.Fatalf("Write: %v", err)
	}

	if err := ops.Seek(writeAt); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	got := make([]byte, len(payload))
	if err := ops.ReadFull(got); err != nil {
		t.Fatalf("ReadFull: %v", err)
	}
	for i := range payload {
		if got[i] != payload[i] {
			t.Fatalf("byte %d: got %d, want %d", i, got[i], payload[i])
		}
	}
}
