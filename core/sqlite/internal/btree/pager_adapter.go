package btree

import (
	"fmt"

	"github.com/revred/sharc/pagesource"
)

// PageSourceProvider adapts a pagesource.WritablePageSource to the
// PageProvider interface the B-tree layer reads and allocates pages through,
// so the B-tree sits directly on the shared page-source stack (cached,
// shadowed, WAL-overlaid, mmap'd, ...) rather than any file-specific pager.
type PageSourceProvider struct {
	source pagesource.WritablePageSource
	dirty  map[uint32]bool
}

// NewPageSourceProvider wraps source for use as a btree.PageProvider.
func NewPageSourceProvider(source pagesource.WritablePageSource) *PageSourceProvider {
	return &PageSourceProvider{
		source: source,
		dirty:  make(map[uint32]bool),
	}
}

// GetPageData returns an owned copy of page pgno. The B-tree retains and
// mutates the buffers it is handed, so borrowed cache or scratch slices must
// never cross this boundary.
func (p *PageSourceProvider) GetPageData(pgno uint32) ([]byte, error) {
	return p.source.GetPageMemory(pgno)
}

// AllocatePageData appends a new, zeroed page past the source's current
// page count. The caller must WritePage it through Flush (or an equivalent
// commit path) before the page is durable.
func (p *PageSourceProvider) AllocatePageData() (uint32, []byte, error) {
	pgno := p.source.PageCount() + 1
	data := make([]byte, p.source.PageSize())
	if err := p.source.WritePage(pgno, data); err != nil {
		return 0, nil, fmt.Errorf("btree: allocate page %d: %w", pgno, err)
	}
	p.dirty[pgno] = true
	return pgno, data, nil
}

// MarkDirty records that pgno has been modified in memory and must be
// written back through the page source before the transaction commits.
func (p *PageSourceProvider) MarkDirty(pgno uint32) error {
	p.dirty[pgno] = true
	return nil
}

// Flush writes every page recorded dirty since the provider was created (or
// last flushed) back to the underlying source, then clears the dirty set.
func (p *PageSourceProvider) Flush(pages map[uint32][]byte) error {
	for pgno := range p.dirty {
		data, ok := pages[pgno]
		if !ok {
			continue
		}
		if err := p.source.WritePage(pgno, data); err != nil {
			return fmt.Errorf("btree: flush page %d: %w", pgno, err)
		}
	}
	p.dirty = make(map[uint32]bool)
	return p.source.Flush()
}

// DirtyPages returns the page numbers marked dirty since creation or the
// last Flush.
func (p *PageSourceProvider) DirtyPages() []uint32 {
	out := make([]uint32, 0, len(p.dirty))
	for pgno := range p.dirty {
		out = append(out, pgno)
	}
	return out
}
