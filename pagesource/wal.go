package pagesource

// WalPageSource overlays an inner source with a frame map built by the WAL
// reader (page number -> byte offset of that page's most recent committed
// frame inside walData). Reads prefer the WAL where a page is present.
// Instances are immutable snapshots: a new checkpoint means building a new
// WalPageSource, not mutating this one.
type WalPageSource struct {
	inner    PageSource
	walData  []byte
	frameMap map[uint32]int
	pageSize uint32
	count    uint32
}

// NewWalPageSource overlays inner with walData using frameMap, a page
// number to byte-offset-within-walData map built by reading WAL frames in
// order and keeping the latest offset per page (see pager.ReadWal).
func NewWalPageSource(inner PageSource, walData []byte, frameMap map[uint32]int, dbSize uint32) *WalPageSource {
	count := inner.PageCount()
	if dbSize > count {
		count = dbSize
	}
	return &WalPageSource{
		inner:    inner,
		walData:  walData,
		frameMap: frameMap,
		pageSize: inner.PageSize(),
		count:    count,
	}
}

func (w *WalPageSource) PageSize() uint32  { return w.pageSize }
func (w *WalPageSource) PageCount() uint32 { return w.count }

func (w *WalPageSource) GetPage(n uint32) ([]byte, error) {
	if err := checkPageNumber(n, w.count); err != nil {
		return nil, err
	}
	if off, ok := w.frameMap[n]; ok {
		return w.walData[off : off+int(w.pageSize)], nil
	}
	return w.inner.GetPage(n)
}

func (w *WalPageSource) GetPageMemory(n uint32) ([]byte, error) {
	buf, err := w.GetPage(n)
	if err != nil {
		return nil, err
	}
	owned := make([]byte, len(buf))
	copy(owned, buf)
	return owned, nil
}

func (w *WalPageSource) ReadPage(n uint32, dst []byte) error {
	if err := checkBufLen(dst, w.pageSize); err != nil {
		return err
	}
	src, err := w.GetPage(n)
	if err != nil {
		return err
	}
	copy(dst, src)
	return nil
}

func (w *WalPageSource) Invalidate(n uint32) error {
	return checkPageNumber(n, w.count)
}

func (w *WalPageSource) DataVersion() uint64 { return w.inner.DataVersion() }

func (w *WalPageSource) Dispose() error {
	w.walData = nil
	w.frameMap = nil
	return nil
}
