package pagesource

import (
	"sync"

	serrors "github.com/revred/sharc/core/errors"
)

// ProxyPageSource forwards every call to a swappable target, letting the
// database façade atomically re-base existing readers onto a post-commit
// source without those readers needing to know. The proxy never owns the
// target; Dispose on the proxy does not dispose the target.
type ProxyPageSource struct {
	mu     sync.RWMutex
	target PageSource
}

// NewProxyPageSource creates a proxy forwarding to target.
func NewProxyPageSource(target PageSource) *ProxyPageSource {
	return &ProxyPageSource{target: target}
}

// Rebase atomically swaps the forwarding target.
func (p *ProxyPageSource) Rebase(target PageSource) {
	p.mu.Lock()
	p.target = target
	p.mu.Unlock()
}

func (p *ProxyPageSource) get() PageSource {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.target
}

func (p *ProxyPageSource) PageSize() uint32  { return p.get().PageSize() }
func (p *ProxyPageSource) PageCount() uint32 { return p.get().PageCount() }

func (p *ProxyPageSource) GetPage(n uint32) ([]byte, error) { return p.get().GetPage(n) }

func (p *ProxyPageSource) GetPageMemory(n uint32) ([]byte, error) {
	return p.get().GetPageMemory(n)
}

func (p *ProxyPageSource) ReadPage(n uint32, dst []byte) error {
	return p.get().ReadPage(n, dst)
}

func (p *ProxyPageSource) Invalidate(n uint32) error { return p.get().Invalidate(n) }

func (p *ProxyPageSource) DataVersion() uint64 { return p.get().DataVersion() }

func (p *ProxyPageSource) Dispose() error { return nil }

func (p *ProxyPageSource) WritePage(n uint32, src []byte) error {
	w, ok := p.get().(WritablePageSource)
	if !ok {
		return serrors.NewNotSupported("write through read-only proxy target")
	}
	return w.WritePage(n, src)
}

func (p *ProxyPageSource) Flush() error {
	w, ok := p.get().(WritablePageSource)
	if !ok {
		return serrors.NewNotSupported("flush read-only proxy target")
	}
	return w.Flush()
}
