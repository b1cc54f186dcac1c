package pagesource

import (
	"sync"
	"sync/atomic"

	serrors "github.com/revred/sharc/core/errors"
)

type clockSlot struct {
	pgno   uint32
	data   []byte
	refBit bool
	valid  bool
}

// CachedPageSource wraps another PageSource with a CLOCK (second-chance)
// cache of up to capacity slots. Hits take the shared lock; misses,
// invalidation, write-through, and disposal take the exclusive lock, which
// cannot be acquired until all readers release it — this prevents a reader
// observing a half-evicted buffer.
type CachedPageSource struct {
	mu       sync.RWMutex
	inner    PageSource
	capacity int
	slots    []clockSlot
	index    map[uint32]int // pgno -> slot index
	hand     int
	version  uint64

	// sequential prefetch tracking; disabled until EnablePrefetch
	lastAccessed  []uint32
	seqThreshold  int
	prefetchDepth int
}

// NewCachedPageSource wraps inner with a CLOCK cache of the given capacity.
// Prefetch is off by default; see EnablePrefetch.
func NewCachedPageSource(inner PageSource, capacity int) *CachedPageSource {
	return &CachedPageSource{
		inner:    inner,
		capacity: capacity,
		slots:    make([]clockSlot, capacity),
		index:    make(map[uint32]int, capacity),
	}
}

// EnablePrefetch turns on sequential read-ahead: when the last threshold
// accessed pages form a strictly increasing run, up to depth following pages
// are loaded speculatively with their reference bits clear.
func (c *CachedPageSource) EnablePrefetch(threshold, depth int) {
	c.mu.Lock()
	c.seqThreshold = threshold
	c.prefetchDepth = depth
	c.lastAccessed = nil
	c.mu.Unlock()
}

func (c *CachedPageSource) PageSize() uint32  { return c.inner.PageSize() }
func (c *CachedPageSource) PageCount() uint32 { return c.inner.PageCount() }

// GetPage serves n from the cache under a shared read lock when present
// (setting its reference bit), otherwise escalates to an exclusive miss-load.
func (c *CachedPageSource) GetPage(n uint32) ([]byte, error) {
	c.mu.RLock()
	prefetchOn := c.seqThreshold > 0
	if idx, ok := c.index[n]; ok {
		c.slots[idx].refBit = true
		data := c.slots[idx].data
		c.mu.RUnlock()
		if prefetchOn {
			c.trackSequential(n)
		}
		return data, nil
	}
	c.mu.RUnlock()
	return c.loadMiss(n, false)
}

func (c *CachedPageSource) GetPageMemory(n uint32) ([]byte, error) {
	buf, err := c.GetPage(n)
	if err != nil {
		return nil, err
	}
	owned := make([]byte, len(buf))
	copy(owned, buf)
	return owned, nil
}

func (c *CachedPageSource) ReadPage(n uint32, dst []byte) error {
	if err := checkBufLen(dst, c.PageSize()); err != nil {
		return err
	}
	src, err := c.GetPage(n)
	if err != nil {
		return err
	}
	copy(dst, src)
	return nil
}

// loadMiss acquires the exclusive lock, loads page n from the inner source,
// and stores it with ref-bit=0 (newly-loaded pages must be re-accessed to
// earn protection from eviction). speculative marks a prefetch load, which
// never displaces a page whose reference bit is set.
func (c *CachedPageSource) loadMiss(n uint32, speculative bool) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if idx, ok := c.index[n]; ok {
		// Raced with another miss-loader; serve the now-present slot.
		return c.slots[idx].data, nil
	}

	data, err := c.inner.GetPage(n)
	if err != nil {
		return nil, err
	}
	owned := make([]byte, len(data))
	copy(owned, data)

	idx := c.evictLocked()
	c.slots[idx] = clockSlot{pgno: n, data: owned, refBit: false, valid: true}
	c.index[n] = idx
	if !speculative {
		c.trackSequentialLocked(n)
	}
	return owned, nil
}

// evictLocked sweeps the clock hand, clearing reference bits until it finds
// an unset one, and returns that slot index. Caller holds the write lock.
func (c *CachedPageSource) evictLocked() int {
	for i := 0; i < len(c.slots); i++ {
		if !c.slots[c.hand].valid {
			idx := c.hand
			c.hand = (c.hand + 1) % c.capacity
			return idx
		}
		if c.slots[c.hand].refBit {
			c.slots[c.hand].refBit = false
			c.hand = (c.hand + 1) % c.capacity
			continue
		}
		idx := c.hand
		delete(c.index, c.slots[idx].pgno)
		c.hand = (c.hand + 1) % c.capacity
		return idx
	}
	// Full sweep without an unset bit: evict the hand's current slot anyway.
	idx := c.hand
	delete(c.index, c.slots[idx].pgno)
	c.hand = (c.hand + 1) % c.capacity
	return idx
}

// trackSequential records n as most-recently accessed and, if the last
// seqThreshold accesses form a strictly increasing run, speculatively loads
// up to prefetchDepth following pages with ref-bit=0.
func (c *CachedPageSource) trackSequential(n uint32) {
	c.mu.Lock()
	c.trackSequentialLocked(n)
	c.mu.Unlock()
}

func (c *CachedPageSource) trackSequentialLocked(n uint32) {
	if c.seqThreshold <= 0 {
		return
	}
	c.lastAccessed = append(c.lastAccessed, n)
	if len(c.lastAccessed) > c.seqThreshold {
		c.lastAccessed = c.lastAccessed[len(c.lastAccessed)-c.seqThreshold:]
	}
	if len(c.lastAccessed) < c.seqThreshold {
		return
	}
	for i := 1; i < len(c.lastAccessed); i++ {
		if c.lastAccessed[i] != c.lastAccessed[i-1]+1 {
			return
		}
	}
	base := c.lastAccessed[len(c.lastAccessed)-1]
	for i := 1; i <= c.prefetchDepth; i++ {
		pn := base + uint32(i)
		if pn > c.inner.PageCount() {
			break
		}
		if _, ok := c.index[pn]; ok {
			continue
		}
		data, err := c.inner.GetPage(pn)
		if err != nil {
			break
		}
		owned := make([]byte, len(data))
		copy(owned, data)
		idx := c.evictLocked()
		c.slots[idx] = clockSlot{pgno: pn, data: owned, refBit: false, valid: true}
		c.index[pn] = idx
	}
}

func (c *CachedPageSource) Invalidate(n uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if idx, ok := c.index[n]; ok {
		c.slots[idx] = clockSlot{}
		delete(c.index, n)
	}
	return c.inner.Invalidate(n)
}

func (c *CachedPageSource) DataVersion() uint64 {
	if v := c.inner.DataVersion(); v != 0 {
		return v
	}
	return atomic.LoadUint64(&c.version)
}

func (c *CachedPageSource) Dispose() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.slots = nil
	c.index = nil
	return c.inner.Dispose()
}

// WritePage forwards to the inner source if writable, then invalidates the
// stale cached copy so the next read re-fetches it.
func (c *CachedPageSource) WritePage(n uint32, src []byte) error {
	w, ok := c.inner.(WritablePageSource)
	if !ok {
		return serrors.NewNotSupported("write through read-only cached source")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := w.WritePage(n, src); err != nil {
		return err
	}
	if idx, ok := c.index[n]; ok {
		c.slots[idx] = clockSlot{}
		delete(c.index, n)
	}
	atomic.AddUint64(&c.version, 1)
	return nil
}

func (c *CachedPageSource) Flush() error {
	w, ok := c.inner.(WritablePageSource)
	if !ok {
		return serrors.NewNotSupported("flush read-only cached source")
	}
	return w.Flush()
}
