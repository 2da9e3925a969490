package slabkv

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync/atomic"

	"golang.org/x/sys/unix"

	"github.com/coldpack/slabkv/logger"
)

// defaultChunkSize is the size of each memory-mapped region. Large files
// are mapped as several chunks rather than one contiguous mapping, which
// bounds the size of any single mmap/munmap call. A resize still remaps
// every chunk (see mmapFileOps.SetLength).
const defaultChunkSize = 128 * 1024 * 1024

// epoch is a complete, immutable description of every chunk currently
// mapped for a file. Epochs are swapped atomically on resize — see
// mmapFileOps.SetLength.
type epoch struct {
	buffers      [][]byte
	regionStarts []int64
	mappedSize   int64
	readOnly     bool
}

// resolve finds the chunk buffer and local offset for a logical file
// position. pos must be in [0, mappedSize]; pos == mappedSize resolves to
// the end of the last chunk and is only valid as a bound, not for reads.
func (e *epoch) resolve(pos int64) ([]byte, int64, error) {
	if pos < 0 || pos > e.mappedSize {
		return nil, 0, fmt.Errorf("position %d out of bounds [0,%d]: %w", pos, e.mappedSize, ErrIoError)
	}
	if len(e.regionStarts) == 0 {
		return nil, 0, fmt.Errorf("position %d in unmapped file: %w", pos, ErrIoError)
	}
	// regionStarts is ascending; find the last start <= pos.
	i := sort.Search(len(e.regionStarts), func(i int) bool { return e.regionStarts[i] > pos }) - 1
	if i < 0 {
		i = 0
	}
	return e.buffers[i], pos - e.regionStarts[i], nil
}

// mapChunks maps [0, size) of file in chunkSize-sized regions. It first
// tries read/write mappings; if a chunk fails with EACCES (the file was
// not opened for writing), every chunk mapped so far is unmapped and the
// whole epoch is retried read-only. Any other mapping error fails.
func mapChunks(file *os.File, size int64, chunkSize int64) (*epoch, error) {
	if size == 0 {
		return &epoch{mappedSize: 0}, nil
	}

	build := func(prot int) (*epoch, error) {
		var buffers [][]byte
		var starts []int64
		for off := int64(0); off < size; off += chunkSize {
			length := chunkSize
			if off+length > size {
				length = size - off
			}
			buf, err := unix.Mmap(int(file.Fd()), off, int(length), prot, unix.MAP_SHARED)
			if err != nil {
				for _, b := range buffers {
					_ = unix.Munmap(b)
				}
				return nil, err
			}
			buffers = append(buffers, buf)
			starts = append(starts, off)
		}
		return &epoch{buffers: buffers, regionStarts: starts, mappedSize: size, readOnly: prot == unix.PROT_READ}, nil
	}

	ep, err := build(unix.PROT_READ | unix.PROT_WRITE)
	if errors.Is(err, unix.EACCES) {
		ep, err = build(unix.PROT_READ)
	}
	if err != nil {
		return nil, fmt.Errorf("mmap: %w", ErrIoError)
	}
	return ep, nil
}

func unmapEpoch(ep *epoch, log logger.Logger) {
	for _, b := range ep.buffers {
		if len(b) == 0 {
			continue
		}
		if err := unix.Munmap(b); err != nil {
			log.Warnf("munmap failed during epoch release: %v", err)
		}
	}
}

// mmapFileOps is the chunked memory-mapped backend. All readers snapshot
// the current epoch at the start of an access and operate against that
// snapshot for the duration of the access; a concurrent SetLength
// publishes a new epoch without mutating any snapshot already held.
type mmapFileOps struct {
	file      *os.File
	chunkSize int64
	current   atomic.Pointer[epoch]
	pos       int64
	logger    logger.Logger
}

func newMmapFileOps(f *os.File, chunkSize int64, log logger.Logger) (*mmapFileOps, error) {
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat: %w", ErrIoError)
	}
	ep, err := mapChunks(f, info.Size(), chunkSize)
	if err != nil {
		return nil, err
	}
	m := &mmapFileOps{file: f, chunkSize: chunkSize, logger: log}
	m.current.Store(ep)
	return m, nil
}

func (m *mmapFileOps) Seek(pos int64) error {
	if pos < 0 {
		return fmt.Errorf("negative seek position %d: %w", pos, ErrIoError)
	}
	m.pos = pos
	return nil
}

func (m *mmapFileOps) ReadFull(dst []byte) error {
	ep := m.current.Load()
	if m.pos+int64(len(dst)) > ep.mappedSize {
		return fmt.Errorf("read past end of file at %d+%d > %d: %w", m.pos, len(dst), ep.mappedSize, ErrIoError)
	}
	pos := m.pos
	remaining := dst
	for len(remaining) > 0 {
		buf, local, err := ep.resolve(pos)
		if err != nil {
			return err
		}
		n := copy(remaining, buf[local:])
		remaining = remaining[n:]
		pos += int64(n)
	}
	m.pos = pos
	return nil
}

func (m *mmapFileOps) Write(src []byte) error {
	ep := m.current.Load()
	if ep.readOnly {
		return fmt.Errorf("write to read-only mapping: %w", ErrReadOnly)
	}
	need := m.pos + int64(len(src))
	if need > ep.mappedSize {
		if err := m.SetLength(need); err != nil {
			return err
		}
		ep = m.current.Load()
	}
	pos := m.pos
	remaining := src
	for len(remaining) > 0 {
		buf, local, err := ep.resolve(pos)
		if err != nil {
			return err
		}
		n := copy(buf[local:], remaining)
		remaining = remaining[n:]
		pos += int64(n)
	}
	m.pos = pos
	return nil
}

func (m *mmapFileOps) ReadUint16() (uint16, error) {
	var buf [2]byte
	if err := m.ReadFull(buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(buf[:]), nil
}

func (m *mmapFileOps) ReadUint32() (uint32, error) {
	var buf [4]byte
	if err := m.ReadFull(buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(buf[:]), nil
}

func (m *mmapFileOps) ReadInt32() (int32, error) {
	v, err := m.ReadUint32()
	return int32(v), err
}

func (m *mmapFileOps) ReadInt64() (int64, error) {
	var buf [8]byte
	if err := m.ReadFull(buf[:]); err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(buf[:])), nil
}

func (m *mmapFileOps) WriteUint16(v uint16) error {
	var buf [2]byte
	binary.BigEndian.PutUint16(buf[:], v)
	return m.Write(buf[:])
}

func (m *mmapFileOps) WriteUint32(v uint32) error {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	return m.Write(buf[:])
}

func (m *mmapFileOps) WriteInt32(v int32) error {
	return m.WriteUint32(uint32(v))
}

func (m *mmapFileOps) WriteInt64(v int64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(v))
	return m.Write(buf[:])
}

func (m *mmapFileOps) Length() (int64, error) {
	return m.current.Load().mappedSize, nil
}

// SetLength implements the epoch-swap remap protocol: sync the current
// epoch, resize the file, build a new epoch, clamp position, publish the
// new epoch atomically, then explicitly unmap the superseded one. Any
// failure before publish leaves the old epoch current and the call fails
// closed; a failure unmapping the old epoch after publish is logged, not
// propagated, since the publish already succeeded.
func (m *mmapFileOps) SetLength(newSize int64) error {
	cur := m.current.Load()
	if newSize == cur.mappedSize {
		return nil
	}

	if err := m.syncEpoch(cur); err != nil {
		return err
	}

	if err := m.file.Truncate(newSize); err != nil {
		return fmt.Errorf("truncate to %d: %w", newSize, ErrIoError)
	}

	newEp, err := mapChunks(m.file, newSize, m.chunkSize)
	if err != nil {
		return fmt.Errorf("remap after resize: %w", err)
	}

	if m.pos > newSize {
		m.pos = newSize
	}

	m.current.Store(newEp)

	unmapEpoch(cur, m.logger)

	return nil
}

func (m *mmapFileOps) syncEpoch(ep *epoch) error {
	for _, buf := range ep.buffers {
		if len(buf) == 0 {
			continue
		}
		if err := unix.Msync(buf, unix.MS_SYNC); err != nil {
			return fmt.Errorf("msync: %w", ErrIoError)
		}
	}
	return nil
}

func (m *mmapFileOps) Sync() error {
	return m.syncEpoch(m.current.Load())
}

func (m *mmapFileOps) Close() error {
	ep := m.current.Load()
	if err := m.syncEpoch(ep); err != nil {
		_ = m.file.Close()
		return err
	}
	unmapEpoch(ep, m.logger)
	if err := m.file.Close(); err != nil {
		return fmt.Errorf("close: %w", ErrIoError)
	}
	return nil
}
