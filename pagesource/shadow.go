package pagesource

import (
	"sync/atomic"

	serrors "github.com/revred/sharc/core/errors"
)

// ShadowPageSource overlays a base source with dirty pages held in a
// side dictionary keyed by page number. Reads consult the shadow first;
// writes always hit the shadow. Base-source readers opened before commit
// observe none of the shadow's writes.
type ShadowPageSource struct {
	base     PageSource
	dirty    map[uint32][]byte
	pageSize uint32
	count    uint32
	version  uint64
}

// NewShadowPageSource overlays base.
func NewShadowPageSource(base PageSource) *ShadowPageSource {
	return &ShadowPageSource{
		base:     base,
		dirty:    make(map[uint32][]byte),
		pageSize: base.PageSize(),
		count:    base.PageCount(),
	}
}

func (s *ShadowPageSource) PageSize() uint32  { return s.pageSize }
func (s *ShadowPageSource) PageCount() uint32 { return s.count }

func (s *ShadowPageSource) GetPage(n uint32) ([]byte, error) {
	if err := checkPageNumber(n, s.count); err != nil {
		return nil, err
	}
	if buf, ok := s.dirty[n]; ok {
		return buf, nil
	}
	return s.base.GetPage(n)
}

func (s *ShadowPageSource) GetPageMemory(n uint32) ([]byte, error) {
	buf, err := s.GetPage(n)
	if err != nil {
		return nil, err
	}
	owned := make([]byte, len(buf))
	copy(owned, buf)
	return owned, nil
}

func (s *ShadowPageSource) ReadPage(n uint32, dst []byte) error {
	if err := checkBufLen(dst, s.pageSize); err != nil {
		return err
	}
	src, err := s.GetPage(n)
	if err != nil {
		return err
	}
	copy(dst, src)
	return nil
}

func (s *ShadowPageSource) Invalidate(n uint32) error {
	delete(s.dirty, n)
	return s.base.Invalidate(n)
}

func (s *ShadowPageSource) DataVersion() uint64 { return atomic.LoadUint64(&s.version) }

func (s *ShadowPageSource) Dispose() error {
	s.dirty = nil
	return nil
}

// WritePage stores src into the dirty arena, growing PageCount when n is a
// newly allocated page.
func (s *ShadowPageSource) WritePage(n uint32, src []byte) error {
	if n == 0 {
		return serrors.NewRange("page number", 0)
	}
	if err := checkBufLen(src, s.pageSize); err != nil {
		return err
	}
	owned := make([]byte, s.pageSize)
	copy(owned, src)
	s.dirty[n] = owned
	if n > s.count {
		s.count = n
	}
	atomic.AddUint64(&s.version, 1)
	return nil
}

// Flush is a no-op: the shadow's writes only reach durable storage on Commit.
func (s *ShadowPageSource) Flush() error { return nil }

// Reset clears dirty state but retains the arena's allocation for reuse in
// the next transaction.
func (s *ShadowPageSource) Reset() {
	for k := range s.dirty {
		delete(s.dirty, k)
	}
	s.count = s.base.PageCount()
}

// DirtyPages returns the current set of dirty page numbers, in increasing
// order, for the page manager's journal/WAL writer to consume.
func (s *ShadowPageSource) DirtyPages() []uint32 {
	pages := make([]uint32, 0, len(s.dirty))
	for pgno := range s.dirty {
		pages = append(pages, pgno)
	}
	for i := 1; i < len(pages); i++ {
		for j := i; j > 0 && pages[j-1] > pages[j]; j-- {
			pages[j-1], pages[j] = pages[j], pages[j-1]
		}
	}
	return pages
}

// DirtyPage returns the dirty buffer for pgno, or nil if it was never
// written in this transaction.
func (s *ShadowPageSource) DirtyPage(pgno uint32) []byte { return s.dirty[pgno] }

// Commit walks dirty pages in page-number order and delegates them to sink,
// then clears the shadow. Callers are responsible for the journal/WAL
// durability steps before calling Commit.
func (s *ShadowPageSource) Commit(sink WritablePageSource) error {
	for _, pgno := range s.DirtyPages() {
		if err := sink.WritePage(pgno, s.dirty[pgno]); err != nil {
			return err
		}
	}
	if err := sink.Flush(); err != nil {
		return err
	}
	s.Reset()
	return nil
}

// ClearShadow discards all dirty pages without applying them — the rollback
// path.
func (s *ShadowPageSource) ClearShadow() { s.Reset() }

// Base returns the underlying source, e.g. so the database façade can hand
// out read-only readers that never see uncommitted writes.
func (s *ShadowPageSource) Base() PageSource { return s.base }
