// Package sqlite is the database façade over the storage engine: it opens
// SQLite-format files (or in-memory images), assembles the page-source chain
// (file or mmap, optional page decryption, CLOCK cache, WAL overlay, proxy),
// exposes schema and cursor services, and drives write transactions through
// the page manager's journal/WAL commit machinery.
//
// A Database handle and everything derived from it (cursors, readers,
// transactions) belong to one goroutine; cross-goroutine use is undefined.
package sqlite

import (
	"encoding/binary"
	"os"

	serrors "github.com/revred/sharc/core/errors"
	"github.com/revred/sharc/core/sqlite/internal/btree"
	"github.com/revred/sharc/core/sqlite/internal/format"
	"github.com/revred/sharc/core/sqlite/internal/pager"
	"github.com/revred/sharc/core/sqlite/internal/record"
	"github.com/revred/sharc/core/sqlite/internal/schema"
	"github.com/revred/sharc/pagesource"
)

// Re-exported names so callers outside this subtree can work with schema and
// record values without reaching into internal packages.
type (
	// Schema is the loaded database schema: tables, indexes, and views.
	Schema = schema.Schema
	// Table is one table's definition.
	Table = schema.Table
	// Index is one index's definition.
	Index = schema.Index
	// Value is an in-memory column value used when encoding records and
	// seeking index cursors.
	Value = record.Value
)

// Value constructors, mirroring the record codec's.
var (
	Null  = record.NullValue
	Int   = record.IntValue
	Float = record.FloatValue
	Text  = record.TextValue
	Blob  = record.BlobValue
)

// PageCipher is the encryption hook: pages are decrypted as they are read
// from the file and encrypted as a transaction's dirty pages are applied.
// Implementations must leave page 1's first 100 bytes readable — the
// database header is parsed before the cipher layer is assembled. Zeroize is
// called on Close to null key material.
type PageCipher interface {
	Decrypt(pgno uint32, page []byte) error
	Encrypt(pgno uint32, page []byte) error
	Zeroize()
}

const defaultCachePages = 256

type config struct {
	readOnly   bool
	useMmap    bool
	walMode    bool
	cachePages int
	cipher     PageCipher
	pageSize   uint32 // Create only
}

// Option configures Open, OpenMemory, and Create.
type Option func(*config)

// ReadOnly opens the database without write support.
func ReadOnly() Option { return func(c *config) { c.readOnly = true } }

// WithMmap maps the file read-only instead of using positional I/O. Implies
// ReadOnly.
func WithMmap() Option { return func(c *config) { c.useMmap = true; c.readOnly = true } }

// WithWalMode commits through the write-ahead log instead of the rollback
// journal.
func WithWalMode() Option { return func(c *config) { c.walMode = true } }

// WithCacheSize sets the CLOCK cache capacity in pages.
func WithCacheSize(pages int) Option { return func(c *config) { c.cachePages = pages } }

// WithPageCipher installs the page encryption hook.
func WithPageCipher(cipher PageCipher) Option { return func(c *config) { c.cipher = cipher } }

// WithPageSize sets the page size for Create (ignored on Open).
func WithPageSize(size uint32) Option { return func(c *config) { c.pageSize = size } }

// Database is an open handle onto one SQLite-format database. It exclusively
// owns its page-source chain; cursors and readers borrow from it and must be
// released before Close.
type Database struct {
	path     string
	cfg      config
	pageSize uint32
	header   format.Header

	file  *pagesource.FilePageSource // nil for memory and mmap databases
	mem   *pagesource.MemoryPageSource
	cache *pagesource.CachedPageSource
	proxy *pagesource.ProxyPageSource

	bt *btree.Btree

	schemaCache  *schema.Schema
	schemaCookie uint32

	wal         *pager.WalWriter
	dataVersion uint64
	txn         *Txn
	closed      bool
}

// cipherTransform adapts a PageCipher's decrypt side to the page-source
// transform hook.
type cipherTransform struct{ cipher PageCipher }

func (t cipherTransform) Apply(pgno uint32, page []byte) error {
	return t.cipher.Decrypt(pgno, page)
}

// readProvider adapts a read page source to the B-tree's provider interface.
// Pages are handed out as owned copies because the B-tree retains them across
// calls, longer than a cache slot's borrow window.
type readProvider struct{ src pagesource.PageSource }

func (p readProvider) GetPageData(pgno uint32) ([]byte, error) {
	return p.src.GetPageMemory(pgno)
}

func (p readProvider) AllocatePageData() (uint32, []byte, error) {
	return 0, nil, serrors.NewNotSupported("allocate page outside a write transaction")
}

func (p readProvider) MarkDirty(pgno uint32) error {
	return serrors.NewNotSupported("write page outside a write transaction")
}

// Open opens the database file at path, recovering from a leftover rollback
// journal first and overlaying (or, when writable, checkpointing) a leftover
// WAL.
func Open(path string, opts ...Option) (*Database, error) {
	cfg := config{cachePages: defaultCachePages}
	for _, opt := range opts {
		opt(&cfg)
	}

	if !cfg.readOnly {
		if _, err := pager.RecoverJournal(path, journalPath(path)); err != nil {
			return nil, err
		}
	}

	hdr, err := readFileHeader(path)
	if err != nil {
		return nil, err
	}
	pageSize := uint32(hdr.GetPageSize())

	db := &Database{
		path:     path,
		cfg:      cfg,
		pageSize: pageSize,
		header:   *hdr,
	}

	var base pagesource.PageSource
	if cfg.useMmap {
		mm, err := pagesource.OpenMemoryMappedPageSource(path, pageSize)
		if err != nil {
			return nil, err
		}
		base = mm
	} else {
		f, err := pagesource.OpenFilePageSource(path, pageSize, cfg.readOnly)
		if err != nil {
			return nil, err
		}
		db.file = f
		base = f
	}
	if cfg.cipher != nil {
		base = pagesource.NewTransformPageSource(base, cipherTransform{cfg.cipher})
	}
	db.cache = pagesource.NewCachedPageSource(base, cfg.cachePages)

	top := pagesource.PageSource(db.cache)
	snap, err := pager.ReadWal(walPath(path), pageSize)
	if err != nil {
		db.cache.Dispose()
		return nil, err
	}
	if len(snap.FrameMap) > 0 {
		if db.file != nil && !cfg.readOnly {
			// Writable open folds the committed WAL tail into the file so the
			// session starts from a clean log.
			if err := pager.Checkpoint(snap, db.file, walPath(path)); err != nil {
				db.cache.Dispose()
				return nil, err
			}
			if err := db.reloadHeader(); err != nil {
				db.cache.Dispose()
				return nil, err
			}
		} else {
			top = pagesource.NewWalPageSource(db.cache, snap.Data, snap.FrameMap, snap.DBSize)
		}
	}

	db.proxy = pagesource.NewProxyPageSource(top)
	db.rebuildBtree()
	db.schemaCookie = db.header.SchemaCookie
	return db, nil
}

// OpenMemory opens a database over an in-memory byte image. Writes are
// supported: commits materialize a new image and re-base readers onto it.
func OpenMemory(data []byte, opts ...Option) (*Database, error) {
	cfg := config{cachePages: defaultCachePages}
	for _, opt := range opts {
		opt(&cfg)
	}

	var hdr format.Header
	if err := hdr.Parse(data); err != nil {
		return nil, serrors.NewCorruption(1, err.Error())
	}
	pageSize := uint32(hdr.GetPageSize())

	db := &Database{
		cfg:      cfg,
		pageSize: pageSize,
		header:   hdr,
	}
	db.mem = pagesource.NewMemoryPageSource(data, pageSize)

	var base pagesource.PageSource = db.mem
	if cfg.cipher != nil {
		base = pagesource.NewTransformPageSource(base, cipherTransform{cfg.cipher})
	}
	db.cache = pagesource.NewCachedPageSource(base, cfg.cachePages)
	db.proxy = pagesource.NewProxyPageSource(db.cache)
	db.rebuildBtree()
	db.schemaCookie = hdr.SchemaCookie
	return db, nil
}

// Create writes a fresh database at path — header plus a single empty schema
// root page — and opens it.
func Create(path string, opts ...Option) (*Database, error) {
	cfg := config{cachePages: defaultCachePages, pageSize: format.DefaultPageSize}
	for _, opt := range opts {
		opt(&cfg)
	}
	if !format.IsValidPageSize(int(cfg.pageSize)) {
		return nil, serrors.NewRange("page size", int64(cfg.pageSize))
	}

	page1 := NewDatabaseImage(cfg.pageSize)
	if cfg.cipher != nil {
		if err := cfg.cipher.Encrypt(1, page1); err != nil {
			return nil, err
		}
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, serrors.NewIO("create database", path, err)
	}
	if _, err := f.Write(page1); err != nil {
		f.Close()
		return nil, serrors.NewIO("write database", path, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return nil, serrors.NewIO("fsync database", path, err)
	}
	if err := f.Close(); err != nil {
		return nil, serrors.NewIO("close database", path, err)
	}
	return Open(path, opts...)
}

// NewDatabaseImage returns the byte image of a fresh single-page database:
// the 100-byte header followed by an empty schema table root. OpenMemory
// accepts it directly.
func NewDatabaseImage(pageSize uint32) []byte {
	hdr := format.NewHeader(int(pageSize))
	hdr.DatabaseSize = 1
	hdr.FileChangeCounter = 1
	hdr.VersionValidFor = 1

	page1 := make([]byte, pageSize)
	copy(page1, hdr.Serialize())
	page1[format.HeaderSize+btree.PageHeaderOffsetType] = btree.PageTypeLeafTable
	// Empty page: the cell content area starts at the end of the page
	// (stored as a uint16, so 65536 wraps to the conventional 0).
	binary.BigEndian.PutUint16(page1[format.HeaderSize+btree.PageHeaderOffsetCellStart:], uint16(pageSize))
	return page1
}

func journalPath(path string) string { return path + "-journal" }
func walPath(path string) string     { return path + "-wal" }

func readFileHeader(path string) (*format.Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, serrors.NewUnreachable("open", path, err)
	}
	defer f.Close()
	buf := make([]byte, format.HeaderSize)
	if _, err := f.ReadAt(buf, 0); err != nil {
		return nil, serrors.NewCorruption(1, "file shorter than database header")
	}
	var hdr format.Header
	if err := hdr.Parse(buf); err != nil {
		return nil, serrors.NewCorruption(1, err.Error())
	}
	return &hdr, nil
}

// reloadHeader re-reads the 100-byte header through the current chain.
func (db *Database) reloadHeader() error {
	var src pagesource.PageSource
	switch {
	case db.proxy != nil:
		src = db.proxy
	case db.cache != nil:
		src = db.cache
	case db.file != nil:
		src = db.file
	default:
		src = db.mem
	}
	page1 := make([]byte, db.pageSize)
	if err := src.ReadPage(1, page1); err != nil {
		return err
	}
	var hdr format.Header
	if err := hdr.Parse(page1); err != nil {
		return serrors.NewCorruption(1, err.Error())
	}
	db.header = hdr
	return nil
}

func (db *Database) rebuildBtree() {
	bt := btree.NewBtree(db.pageSize)
	bt.ReservedSize = uint32(db.header.ReservedSpace)
	bt.UsableSize = db.pageSize - bt.ReservedSize
	bt.Provider = readProvider{src: db.proxy}
	db.bt = bt
}

// Header returns the most recently loaded database header.
func (db *Database) Header() format.Header { return db.header }

// PageSize returns the database's page size in bytes.
func (db *Database) PageSize() uint32 { return db.pageSize }

// UsablePageSize returns the page size minus the header-declared reserved
// region.
func (db *Database) UsablePageSize() uint32 {
	return db.pageSize - uint32(db.header.ReservedSpace)
}

// DataVersion is a counter that strictly increases on every committed write
// through this handle.
func (db *Database) DataVersion() uint64 { return db.dataVersion }

// PageSource exposes the handle's reader-facing page source (the proxy all
// cursors read through).
func (db *Database) PageSource() pagesource.PageSource { return db.proxy }

// MemoryImage returns the current committed byte image of an in-memory
// database, or nil for file-backed handles.
func (db *Database) MemoryImage() []byte {
	if db.mem != nil {
		return db.mem.Bytes()
	}
	return nil
}

// Schema returns the loaded schema, cached until the header's schema cookie
// changes.
func (db *Database) Schema() (*Schema, error) {
	if db.schemaCache != nil && db.schemaCookie == db.header.SchemaCookie {
		return db.schemaCache, nil
	}
	s := schema.NewSchema()
	if err := s.InitializeMaster(); err != nil {
		return nil, err
	}
	if err := s.LoadFromMaster(db.bt); err != nil {
		return nil, err
	}
	db.schemaCache = s
	db.schemaCookie = db.header.SchemaCookie
	return s, nil
}

// Close releases the handle: an active transaction is rolled back, a
// writable WAL session is checkpointed, cache buffers are released, file
// handles closed or unmapped, and cipher key material zeroized.
func (db *Database) Close() error {
	if db.closed {
		return nil
	}
	db.closed = true

	if db.txn != nil {
		db.txn.Rollback()
	}
	if db.wal != nil {
		db.wal.Close()
		db.wal = nil
	}
	if db.file != nil && !db.cfg.readOnly {
		snap, err := pager.ReadWal(walPath(db.path), db.pageSize)
		if err == nil && len(snap.FrameMap) > 0 {
			pager.Checkpoint(snap, db.file, walPath(db.path))
		}
	}

	var firstErr error
	if db.cache != nil {
		// Disposing the cache cascades to the base (file, mmap, or memory).
		if err := db.cache.Dispose(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if db.cfg.cipher != nil {
		db.cfg.cipher.Zeroize()
	}
	db.bt = nil
	db.schemaCache = nil
	return firstErr
}
