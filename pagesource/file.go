package pagesource

import (
	"os"
	"sync/atomic"

	serrors "github.com/revred/sharc/core/errors"
)

// FilePageSource reads pages on demand via positional I/O. GetPage returns a
// borrowed buffer valid only until the next GetPage call on the same
// goroutine (per-handle scratch, matching the single-threaded-per-handle
// concurrency model).
type FilePageSource struct {
	f        *os.File
	pageSize uint32
	count    uint32
	scratch  []byte
	version  uint64
	readOnly bool
}

// OpenFilePageSource opens path for reading (and writing, unless readOnly)
// and reports pageCount pages of pageSize bytes each.
func OpenFilePageSource(path string, pageSize uint32, readOnly bool) (*FilePageSource, error) {
	flag := os.O_RDWR
	if readOnly {
		flag = os.O_RDONLY
	}
	f, err := os.OpenFile(path, flag, 0o644)
	if err != nil {
		return nil, serrors.NewUnreachable("open", path, err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, serrors.NewIO("stat", path, err)
	}
	var count uint32
	if pageSize != 0 {
		count = uint32(fi.Size() / int64(pageSize))
	}
	return &FilePageSource{
		f:        f,
		pageSize: pageSize,
		count:    count,
		scratch:  make([]byte, pageSize),
		readOnly: readOnly,
	}, nil
}

func (s *FilePageSource) PageSize() uint32  { return s.pageSize }
func (s *FilePageSource) PageCount() uint32 { return s.count }

func (s *FilePageSource) GetPage(n uint32) ([]byte, error) {
	if err := checkPageNumber(n, s.count); err != nil {
		return nil, err
	}
	off := int64(n-1) * int64(s.pageSize)
	if _, err := s.f.ReadAt(s.scratch, off); err != nil {
		return nil, serrors.NewIO("read", s.f.Name(), err)
	}
	return s.scratch, nil
}

func (s *FilePageSource) GetPageMemory(n uint32) ([]byte, error) {
	buf, err := s.GetPage(n)
	if err != nil {
		return nil, err
	}
	owned := make([]byte, len(buf))
	copy(owned, buf)
	return owned, nil
}

func (s *FilePageSource) ReadPage(n uint32, dst []byte) error {
	if err := checkBufLen(dst, s.pageSize); err != nil {
		return err
	}
	if err := checkPageNumber(n, s.count); err != nil {
		return err
	}
	off := int64(n-1) * int64(s.pageSize)
	if _, err := s.f.ReadAt(dst[:s.pageSize], off); err != nil {
		return serrors.NewIO("read", s.f.Name(), err)
	}
	return nil
}

func (s *FilePageSource) Invalidate(n uint32) error {
	return checkPageNumber(n, s.count)
}

func (s *FilePageSource) DataVersion() uint64 { return atomic.LoadUint64(&s.version) }

func (s *FilePageSource) Dispose() error {
	return s.f.Close()
}

// WritePage implements WritablePageSource: it grows the file when n is the
// next allocated page.
func (s *FilePageSource) WritePage(n uint32, src []byte) error {
	if s.readOnly {
		return serrors.NewNotSupported("write on read-only file source")
	}
	if n == 0 {
		return serrors.NewRange("page number", 0)
	}
	if err := checkBufLen(src, s.pageSize); err != nil {
		return err
	}
	off := int64(n-1) * int64(s.pageSize)
	if _, err := s.f.WriteAt(src[:s.pageSize], off); err != nil {
		return serrors.NewIO("write", s.f.Name(), err)
	}
	if n > s.count {
		s.count = n
	}
	atomic.AddUint64(&s.version, 1)
	return nil
}

func (s *FilePageSource) Flush() error {
	if s.readOnly {
		return nil
	}
	if err := s.f.Sync(); err != nil {
		return serrors.NewIO("fsync", s.f.Name(), err)
	}
	return nil
}

// Truncate shrinks the file to pageCount pages, used by rollback journal
// recovery to restore the pre-transaction file length.
func (s *FilePageSource) Truncate(pageCount uint32) error {
	if err := s.f.Truncate(int64(pageCount) * int64(s.pageSize)); err != nil {
		return serrors.NewIO("truncate", s.f.Name(), err)
	}
	s.count = pageCount
	atomic.AddUint64(&s.version, 1)
	return nil
}

// File exposes the underlying *os.File, e.g. for the page manager's journal
// and WAL machinery which need their own positional I/O against the same path.
func (s *FilePageSource) File() *os.File { return s.f }
