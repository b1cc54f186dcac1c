package pager

import (
	"sync"

	serrors "github.com/revred/sharc/core/errors"
	"github.com/revred/sharc/pagesource"
)

// pagePool is the process-wide pool of page-sized scratch buffers. Buffers
// of any page size share the pool; getBuf checks capacity and reallocates
// when a pooled buffer is too small for the requesting manager's page size.
var pagePool = sync.Pool{
	New: func() any { return []byte(nil) },
}

func getBuf(size uint32) []byte {
	b := pagePool.Get().([]byte)
	if uint32(cap(b)) < size {
		return make([]byte, size)
	}
	b = b[:size]
	for i := range b {
		b[i] = 0
	}
	return b
}

func putBuf(b []byte) {
	if b != nil {
		pagePool.Put(b) //nolint:staticcheck // slice, not pointer: pool of variable-size buffers
	}
}

// Manager holds a transaction's dirty pages as copy-on-write buffers in a
// shadow overlay above a read-only base source. The first mutation of a
// page copies the base's bytes into the shadow; subsequent mutations return
// the same buffer. Pages past the base's pre-transaction count start
// zeroed. Reads through the manager see the writer's own prior writes.
type Manager struct {
	base      pagesource.PageSource
	shadow    *pagesource.ShadowPageSource
	pageSize  uint32
	origCount uint32
}

// NewManager starts a manager over base, recording base's current page count
// as the transaction's original size.
func NewManager(base pagesource.PageSource) *Manager {
	return &Manager{
		base:      base,
		shadow:    pagesource.NewShadowPageSource(base),
		pageSize:  base.PageSize(),
		origCount: base.PageCount(),
	}
}

// PageSize returns the fixed page size.
func (m *Manager) PageSize() uint32 { return m.pageSize }

// OrigPageCount returns the base's page count at transaction start.
func (m *Manager) OrigPageCount() uint32 { return m.origCount }

// PageCount returns the page count as this transaction sees it, including
// pages it allocated.
func (m *Manager) PageCount() uint32 { return m.shadow.PageCount() }

// GetPage returns the transaction's view of page n: the shadow's dirty
// buffer when n has been written, otherwise the base's bytes.
func (m *Manager) GetPage(n uint32) ([]byte, error) {
	return m.shadow.GetPage(n)
}

// GetPageForWrite returns an owned, mutable buffer for page n, copying the
// base's bytes into the shadow on first touch when n existed
// pre-transaction. The buffer stays valid until Discard/Restore.
func (m *Manager) GetPageForWrite(n uint32) ([]byte, error) {
	if n == 0 {
		return nil, serrors.NewRange("page number", 0)
	}
	if buf := m.shadow.DirtyPage(n); buf != nil {
		return buf, nil
	}
	scratch := getBuf(m.pageSize)
	if n <= m.base.PageCount() {
		if err := m.base.ReadPage(n, scratch); err != nil {
			putBuf(scratch)
			return nil, err
		}
	}
	err := m.shadow.WritePage(n, scratch)
	putBuf(scratch)
	if err != nil {
		return nil, err
	}
	return m.shadow.DirtyPage(n), nil
}

// AllocatePage returns the next unused page number and its zeroed dirty
// buffer.
func (m *Manager) AllocatePage() (uint32, []byte, error) {
	n := m.shadow.PageCount() + 1
	buf, err := m.GetPageForWrite(n)
	if err != nil {
		return 0, nil, err
	}
	return n, buf, nil
}

// ReadPage copies the transaction's view of page n into dst.
func (m *Manager) ReadPage(n uint32, dst []byte) error {
	return m.shadow.ReadPage(n, dst)
}

// GetPageMemory returns an owned copy of the transaction's view of page n.
func (m *Manager) GetPageMemory(n uint32) ([]byte, error) {
	return m.shadow.GetPageMemory(n)
}

// Invalidate is a no-op: the shadow's dirty buffers are authoritative for
// the transaction's lifetime.
func (m *Manager) Invalidate(n uint32) error { return nil }

// DataVersion counts this transaction's writes. Outside observers never see
// the manager, so the counter is only meaningful to the owning transaction.
func (m *Manager) DataVersion() uint64 { return m.shadow.DataVersion() }

// Dispose discards all dirty state, same as Discard.
func (m *Manager) Dispose() error {
	m.Discard()
	return nil
}

// WritePage copies src into page n's copy-on-write buffer, making the
// manager usable as a pagesource.WritablePageSource by the B-tree layer.
func (m *Manager) WritePage(n uint32, src []byte) error {
	return m.shadow.WritePage(n, src)
}

// Flush is a no-op: durability happens at commit, through the journal or WAL.
func (m *Manager) Flush() error { return nil }

// DirtyPages returns the dirty page numbers in increasing order.
func (m *Manager) DirtyPages() []uint32 { return m.shadow.DirtyPages() }

// DirtyPage returns the dirty buffer for pgno, or nil when this transaction
// never wrote it.
func (m *Manager) DirtyPage(pgno uint32) []byte { return m.shadow.DirtyPage(pgno) }

// Snapshot copies every current dirty buffer, keyed by page number.
// Savepoints use it to capture state they may roll back to.
func (m *Manager) Snapshot() map[uint32][]byte {
	pages := m.shadow.DirtyPages()
	snap := make(map[uint32][]byte, len(pages))
	for _, pgno := range pages {
		cp := getBuf(m.pageSize)
		copy(cp, m.shadow.DirtyPage(pgno))
		snap[pgno] = cp
	}
	return snap
}

// Restore rewinds the dirty set to a Snapshot: pages dirtied since the
// snapshot are dropped, pages present in the snapshot are restored. The
// snapshot's buffers are consumed (returned to the pool).
func (m *Manager) Restore(snap map[uint32][]byte) {
	m.shadow.ClearShadow()
	for pgno, saved := range snap {
		m.shadow.WritePage(pgno, saved)
		putBuf(saved)
	}
}

// Discard drops all dirty state — the rollback path.
func (m *Manager) Discard() {
	m.shadow.ClearShadow()
}
