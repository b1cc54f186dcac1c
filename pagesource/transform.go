package pagesource

// PageTransform mutates a page's bytes in place as it crosses the source
// boundary — the hook the database façade hangs page decryption on. The
// transform receives an owned buffer and may rewrite all of it.
type PageTransform interface {
	Apply(pgno uint32, page []byte) error
}

// TransformPageSource wraps an inner source, applying a PageTransform to
// every page read through it. GetPage returns a per-source scratch buffer
// valid only until the next GetPage call, like FilePageSource.
type TransformPageSource struct {
	inner     PageSource
	transform PageTransform
	scratch   []byte
}

// NewTransformPageSource wraps inner with transform.
func NewTransformPageSource(inner PageSource, transform PageTransform) *TransformPageSource {
	return &TransformPageSource{
		inner:     inner,
		transform: transform,
		scratch:   make([]byte, inner.PageSize()),
	}
}

func (t *TransformPageSource) PageSize() uint32  { return t.inner.PageSize() }
func (t *TransformPageSource) PageCount() uint32 { return t.inner.PageCount() }

func (t *TransformPageSource) GetPage(n uint32) ([]byte, error) {
	if err := t.inner.ReadPage(n, t.scratch); err != nil {
		return nil, err
	}
	if err := t.transform.Apply(n, t.scratch); err != nil {
		return nil, err
	}
	return t.scratch, nil
}

func (t *TransformPageSource) GetPageMemory(n uint32) ([]byte, error) {
	owned := make([]byte, t.PageSize())
	if err := t.inner.ReadPage(n, owned); err != nil {
		return nil, err
	}
	if err := t.transform.Apply(n, owned); err != nil {
		return nil, err
	}
	return owned, nil
}

func (t *TransformPageSource) ReadPage(n uint32, dst []byte) error {
	if err := checkBufLen(dst, t.PageSize()); err != nil {
		return err
	}
	if err := t.inner.ReadPage(n, dst[:t.PageSize()]); err != nil {
		return err
	}
	return t.transform.Apply(n, dst[:t.PageSize()])
}

func (t *TransformPageSource) Invalidate(n uint32) error { return t.inner.Invalidate(n) }

func (t *TransformPageSource) DataVersion() uint64 { return t.inner.DataVersion() }

func (t *TransformPageSource) Dispose() error {
	t.scratch = nil
	return t.inner.Dispose()
}
