package pagesource

import "sync/atomic"

// MemoryPageSource wraps an immutable byte buffer. GetPage returns a
// zero-copy subslice valid for the source's lifetime.
type MemoryPageSource struct {
	buf      []byte
	pageSize uint32
	version  uint64
	disposed bool
}

// NewMemoryPageSource wraps buf, whose length must be a multiple of pageSize.
func NewMemoryPageSource(buf []byte, pageSize uint32) *MemoryPageSource {
	return &MemoryPageSource{buf: buf, pageSize: pageSize}
}

func (m *MemoryPageSource) PageSize() uint32 { return m.pageSize }

func (m *MemoryPageSource) PageCount() uint32 {
	if m.pageSize == 0 {
		return 0
	}
	return uint32(len(m.buf)) / m.pageSize
}

func (m *MemoryPageSource) offset(n uint32) (int, int, error) {
	if err := checkPageNumber(n, m.PageCount()); err != nil {
		return 0, 0, err
	}
	start := int(n-1) * int(m.pageSize)
	return start, start + int(m.pageSize), nil
}

func (m *MemoryPageSource) GetPage(n uint32) ([]byte, error) {
	start, end, err := m.offset(n)
	if err != nil {
		return nil, err
	}
	return m.buf[start:end], nil
}

func (m *MemoryPageSource) GetPageMemory(n uint32) ([]byte, error) {
	return m.GetPage(n)
}

func (m *MemoryPageSource) ReadPage(n uint32, dst []byte) error {
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

func (m *MemoryPageSource) Invalidate(n uint32) error {
	_, _, err := m.offset(n)
	return err
}

func (m *MemoryPageSource) DataVersion() uint64 { return atomic.LoadUint64(&m.version) }

func (m *MemoryPageSource) Dispose() error {
	m.disposed = true
	m.buf = nil
	return nil
}

// Bytes exposes the whole backing buffer, e.g. to persist an in-memory
// database or to seed a ShadowPageSource's base.
func (m *MemoryPageSource) Bytes() []byte { return m.buf }
