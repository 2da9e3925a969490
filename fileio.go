package slabkv

import (
	"encoding/binary"
	"fmt"
	"os"
)

// fileOps is the uniform positioned-I/O surface the engine writes
// through. Two backends implement it: directFileOps (plain positioned
// reads/writes against *os.File) and mmapFileOps (chunked memory-mapped
// regions with epoch-swap remap, see mmapio.go).
type fileOps interface {
	Seek(pos int64) error
	ReadFull(buf []byte) error
	Write(buf []byte) error

	ReadUint16() (uint16, error)
	ReadUint32() (uint32, error)
	ReadInt32() (int32, error)
	ReadInt64() (int64, error)

	WriteUint16(v uint16) error
	WriteUint32(v uint32) error
	WriteInt32(v int32) error
	WriteInt64(v int64) error

	Length() (int64, error)
	SetLength(n int64) error
	Sync() error
	Close() error
}

// directFileOps is the direct-I/O backend: one positioned handle over
// the real file, no in-process caching of file contents.
type directFileOps struct {
	file *os.File
	pos  int64
}

func newDirectFileOps(f *os.File) *directFileOps {
	return &directFileOps{file: f}
}

func (d *directFileOps) Seek(pos int64) error {
	if pos < 0 {
		return fmt.Errorf("negative seek position %d: %w", pos, ErrIoError)
	}
	d.pos = pos
	return nil
}

func (d *directFileOps) ReadFull(buf []byte) error {
	n, err := d.file.ReadAt(buf, d.pos)
	d.pos += int64(n)
	if err != nil {
		return fmt.Errorf("read at %d: %w", d.pos-int64(n), ErrIoError)
	}
	return nil
}

func (d *directFileOps) Write(buf []byte) error {
	n, err := d.file.WriteAt(buf, d.pos)
	d.pos += int64(n)
	if err != nil {
		return fmt.Errorf("write at %d: %w", d.pos-int64(n), ErrIoError)
	}
	return nil
}

func (d *directFileOps) ReadUint16() (uint16, error) {
	var buf [2]byte
	if err := d.ReadFull(buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(buf[:]), nil
}

func (d *directFileOps) ReadUint32() (uint32, error) {
	var buf [4]byte
	if err := d.ReadFull(buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(buf[:]), nil
}

func (d *directFileOps) ReadInt32() (int32, error) {
	v, err := d.ReadUint32()
	return int32(v), err
}

func (d *directFileOps) ReadInt64() (int64, error) {
	var buf [8]byte
	if err := d.ReadFull(buf[:]); err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(buf[:])), nil
}

func (d *directFileOps) WriteUint16(v uint16) error {
	var buf [2]byte
	binary.BigEndian.PutUint16(buf[:], v)
	return d.Write(buf[:])
}

func (d *directFileOps) WriteUint32(v uint32) error {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	return d.Write(buf[:])
}

func (d *directFileOps) WriteInt32(v int32) error {
	return d.WriteUint32(uint32(v))
}

func (d *directFileOps) WriteInt64(v int64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(v))
	return d.Write(buf[:])
}

func (d *directFileOps) Length() (int64, error) {
	info, err := d.file.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat: %w", ErrIoError)
	}
	return info.Size(), nil
}

func (d *directFileOps) SetLength(n int64) error {
	if err := d.file.Truncate(n); err != nil {
		return fmt.Errorf("truncate to %d: %w", n, ErrIoError)
	}
	if d.pos > n {
		d.pos = n
	}
	return nil
}

// Sync forces dirty data to stable storage. Like os.File.Sync, this is
// not guaranteed to force metadata on every platform.
func (d *directFileOps) Sync() error {
	if err := d.file.Sync(); err != nil {
		return fmt.Errorf("sync: %w", ErrIoError)
	}
	return nil
}

func (d *directFileOps) Close() error {
	if err := d.file.Close(); err != nil {
		return fmt.Errorf("close: %w", ErrIoError)
	}
	return nil
}
