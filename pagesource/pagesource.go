// Package pagesource defines the abstract byte store of fixed-size pages
// that the B-tree cursors are built on, and its concrete variants: file,
// memory, memory-mapped, cached (CLOCK second-chance), shadow (copy-on-write),
// WAL-overlay, and proxy.
package pagesource

import (
	serrors "github.com/revred/sharc/core/errors"
)

// PageSource is the read contract shared by every variant. Pages are
// 1-indexed; page 0 is always invalid.
type PageSource interface {
	// PageSize returns the fixed size of every page in bytes.
	PageSize() uint32

	// PageCount returns the current number of pages in the source.
	PageCount() uint32

	// GetPage returns a borrowed slice of page n. The slice's validity
	// window is documented per implementation: callers must copy before
	// outliving it.
	GetPage(n uint32) ([]byte, error)

	// ReadPage copies page n into dst, which must be at least PageSize() long.
	ReadPage(n uint32, dst []byte) error

	// GetPageMemory returns a slice of page n that survives across calls.
	// Implementations that cannot guarantee this allocate a private copy.
	GetPageMemory(n uint32) ([]byte, error)

	// Invalidate drops any cached copy of page n, if one exists.
	Invalidate(n uint32) error

	// DataVersion is a monotonically non-decreasing counter that changes
	// iff a write has occurred through this source. Read-only sources
	// return 0.
	DataVersion() uint64

	// Dispose releases all resources held by the source.
	Dispose() error
}

// WritablePageSource extends PageSource with mutation.
type WritablePageSource interface {
	PageSource

	// WritePage stores src (exactly PageSize() bytes) as page n.
	WritePage(n uint32, src []byte) error

	// Flush forces any buffered writes to their backing medium.
	Flush() error
}

func checkPageNumber(n uint32, count uint32) error {
	if n == 0 {
		return serrors.NewRange("page number", 0)
	}
	if count != 0 && n > count {
		return serrors.NewRange("page number", int64(n))
	}
	return nil
}

func checkBufLen(buf []byte, pageSize uint32) error {
	if uint32(len(buf)) < pageSize {
		return serrors.NewRange("buffer length", int64(len(buf)))
	}
	return nil
}
