//go:build unix

package pagesource

import (
	"os"

	"golang.org/x/sys/unix"

	serrors "github.com/revred/sharc/core/errors"
)

// mmapCap bounds a mapping at 2 GiB (1<<31 bytes), the span of a signed
// 32-bit byte offset.
const mmapCap = 1 << 31

// MemoryMappedPageSource maps a file read-only and returns true zero-copy
// slices for the source's lifetime.
type MemoryMappedPageSource struct {
	f        *os.File
	data     []byte
	pageSize uint32
	count    uint32
}

// OpenMemoryMappedPageSource mmaps path read-only.
func OpenMemoryMappedPageSource(path string, pageSize uint32) (*MemoryMappedPageSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, serrors.NewUnreachable("open", path, err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, serrors.NewIO("stat", path, err)
	}
	size := fi.Size()
	if size > mmapCap {
		f.Close()
		return nil, serrors.NewRange("file size", size)
	}
	if size == 0 {
		f.Close()
		return &MemoryMappedPageSource{pageSize: pageSize}, nil
	}
	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, serrors.NewIO("mmap", path, err)
	}
	var count uint32
	if pageSize != 0 {
		count = uint32(size) / pageSize
	}
	return &MemoryMappedPageSource{f: f, data: data, pageSize: pageSize, count: count}, nil
}

func (m *MemoryMappedPageSource) PageSize() uint32  { return m.pageSize }
func (m *MemoryMappedPageSource) PageCount() uint32 { return m.count }

func (m *MemoryMappedPageSource) offset(n uint32) (int, int, error) {
	if err := checkPageNumber(n, m.count); err != nil {
		return 0, 0, err
	}
	start := int(n-1) * int(m.pageSize)
	return start, start + int(m.pageSize), nil
}

func (m *MemoryMappedPageSource) GetPage(n uint32) ([]byte, error) {
	start, end, err := m.offset(n)
	if err != nil {
		return nil, err
	}
	return m.data[start:end], nil
}

func (m *MemoryMappedPageSource) GetPageMemory(n uint32) ([]byte, error) {
	return m.GetPage(n)
}

func (m *MemoryMappedPageSource) ReadPage(n uint32, dst []byte) error {
	if err := checkBufLen(dst, m.pageSize); err != nil {
		return err
	}
	src, err := m.GetPage(n)
	if err != nil {
		return err
	}
	copy(dst, src)
	return nil
}

func (m *MemoryMappedPageSource) Invalidate(n uint32) error {
	_, _, err := m.offset(n)
	return err
}

func (m *MemoryMappedPageSource) DataVersion() uint64 { return 0 }

func (m *MemoryMappedPageSource) Dispose() error {
	if m.data != nil {
		if err := unix.Munmap(m.data); err != nil {
			return serrors.NewIO("munmap", m.f.Name(), err)
		}
		m.data = nil
	}
	if m.f != nil {
		return m.f.Close()
	}
	return nil
}
