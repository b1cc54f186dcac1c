package sqlite

import (
	"encoding/binary"

	serrors "github.com/revred/sharc/core/errors"
	"github.com/revred/sharc/core/sqlite/internal/btree"
	"github.com/revred/sharc/core/sqlite/internal/format"
	"github.com/revred/sharc/core/sqlite/internal/pager"
	"github.com/revred/sharc/core/sqlite/internal/parser"
	"github.com/revred/sharc/core/sqlite/internal/record"
	"github.com/revred/sharc/core/sqlite/internal/schema"
	"github.com/revred/sharc/internal/logging"
	"github.com/revred/sharc/pagesource"
)

// Txn is a write transaction. All mutations go through a page manager's
// copy-on-write buffers layered over the handle's reader chain; nothing is
// visible to readers (read-your-writes excepted) until Commit, which makes
// the dirty pages durable through the rollback journal or WAL.
//
// One writer at a time per handle; Begin while a transaction is open fails.
type Txn struct {
	db          *Database
	mgr         *pager.Manager
	bt          *btree.Btree
	provider    *btree.PageSourceProvider
	sps         pager.SavepointStack
	schemaDirty bool
	done        bool
}

// Begin opens a write transaction.
func (db *Database) Begin() (*Txn, error) {
	if db.closed {
		return nil, serrors.NewNotSupported("transaction on closed database")
	}
	if db.txn != nil {
		return nil, serrors.NewNotSupported("second concurrent write transaction")
	}
	if db.cfg.readOnly {
		return nil, serrors.NewNotSupported("write transaction on read-only database")
	}
	if db.cfg.cipher != nil && db.cfg.walMode {
		// WAL frames overlay the chain above the decryption layer, so
		// ciphertext frames would be served undecrypted.
		return nil, serrors.NewNotSupported("page cipher combined with wal mode")
	}

	t := &Txn{db: db, mgr: pager.NewManager(db.proxy)}
	t.resetBtree()
	db.txn = t
	return t, nil
}

// resetBtree builds a fresh write B-tree over the manager, dropping any
// cached page buffers (used at begin and after a savepoint rewind).
func (t *Txn) resetBtree() {
	bt := btree.NewBtree(t.db.pageSize)
	bt.ReservedSize = uint32(t.db.header.ReservedSpace)
	bt.UsableSize = t.db.pageSize - bt.ReservedSize
	t.provider = btree.NewPageSourceProvider(t.mgr)
	bt.Provider = t.provider
	t.bt = bt
}

// flush pushes the B-tree's modified page buffers into the manager's dirty
// set.
func (t *Txn) flush() error {
	return t.provider.Flush(t.bt.Pages)
}

func (t *Txn) active() error {
	if t.done {
		return serrors.NewNotSupported("operation on finished transaction")
	}
	return nil
}

// PageCount returns the page count as this transaction sees it.
func (t *Txn) PageCount() uint32 { return t.mgr.PageCount() }

// InsertRecord inserts an already-encoded record into the table B-tree
// rooted at rootPage under rowid.
func (t *Txn) InsertRecord(rootPage uint32, rowid int64, payload []byte) error {
	if err := t.active(); err != nil {
		return err
	}
	cur := btree.NewCursor(t.bt, rootPage)
	return cur.Insert(rowid, payload)
}

// Insert encodes values as a record and inserts it under rowid.
func (t *Txn) Insert(rootPage uint32, rowid int64, values []Value) error {
	return t.InsertRecord(rootPage, rowid, record.EncodeRecord(values))
}

// Delete removes the row with the given rowid; false when it did not exist.
func (t *Txn) Delete(rootPage uint32, rowid int64) (bool, error) {
	if err := t.active(); err != nil {
		return false, err
	}
	cur := btree.NewCursor(t.bt, rootPage)
	found, err := cur.SeekRowid(rowid)
	if err != nil || !found {
		return false, err
	}
	return true, cur.Delete()
}

// NextRowid returns max(rowid)+1 for the table rooted at rootPage.
func (t *Txn) NextRowid(rootPage uint32) (int64, error) {
	if err := t.active(); err != nil {
		return 0, err
	}
	return t.bt.NewRowid(rootPage)
}

// CreateTable parses a CREATE TABLE statement, allocates and initializes a
// root page for it, and records both in the schema table. Returns the new
// root page.
func (t *Txn) CreateTable(sql string) (uint32, error) {
	return t.createObject(sql, btree.PageTypeLeafTable)
}

// CreateIndex parses a CREATE INDEX statement, allocates an index root page,
// and records it in the schema table. Index entries are not derived from
// table rows automatically — callers append them with InsertIndexEntry.
func (t *Txn) CreateIndex(sql string) (uint32, error) {
	return t.createObject(sql, btree.PageTypeLeafIndex)
}

func (t *Txn) createObject(sql string, pageType byte) (uint32, error) {
	if err := t.active(); err != nil {
		return 0, err
	}

	p := parser.NewParser(sql)
	stmts, err := p.Parse()
	if err != nil {
		return 0, err
	}
	if len(stmts) != 1 {
		return 0, serrors.NewValidation("sql", "expected exactly one statement")
	}

	root, err := t.bt.AllocatePage()
	if err != nil {
		return 0, err
	}
	data, err := t.bt.GetPage(root)
	if err != nil {
		return 0, err
	}
	data[btree.PageHeaderOffsetType] = pageType
	binary.BigEndian.PutUint16(data[btree.PageHeaderOffsetCellStart:], uint16(t.bt.UsableSize))
	if err := t.bt.SetPage(root, data); err != nil {
		return 0, err
	}

	s := schema.NewSchema()
	if err := s.InitializeMaster(); err != nil {
		return 0, err
	}
	if err := s.LoadFromMaster(t.bt); err != nil {
		return 0, err
	}

	switch stmt := stmts[0].(type) {
	case *parser.CreateTableStmt:
		table, err := s.CreateTable(stmt)
		if err != nil {
			return 0, err
		}
		table.RootPage = root
		table.SQL = sql
	case *parser.CreateIndexStmt:
		index, err := s.CreateIndex(stmt)
		if err != nil {
			return 0, err
		}
		index.RootPage = root
		index.SQL = sql
	default:
		return 0, serrors.NewValidation("sql", "expected CREATE TABLE or CREATE INDEX")
	}

	if err := s.SaveToMaster(t.bt); err != nil {
		return 0, err
	}
	t.schemaDirty = true
	return root, nil
}

// InsertIndexEntry appends one key record (indexed columns followed by the
// table rowid) into the index B-tree rooted at rootPage, at its ordered
// position.
func (t *Txn) InsertIndexEntry(rootPage uint32, key []Value) error {
	if err := t.active(); err != nil {
		return err
	}
	ic := btree.NewIndexCursor(t.bt, rootPage)
	if _, err := ic.SeekFirst(key); err != nil {
		return err
	}
	pageData, err := t.bt.GetPage(ic.CurrentPage)
	if err != nil {
		return err
	}
	bp, err := btree.NewBtreePage(ic.CurrentPage, pageData, t.bt.UsableSize)
	if err != nil {
		return err
	}
	cell := btree.EncodeIndexLeafCell(record.EncodeRecord(key))
	if err := bp.InsertCell(ic.CurrentIndex, cell); err != nil {
		return err
	}
	return t.bt.SetPage(ic.CurrentPage, pageData)
}

// Savepoint opens a named rewind point inside the transaction.
func (t *Txn) Savepoint(name string) error {
	if err := t.active(); err != nil {
		return err
	}
	if err := t.flush(); err != nil {
		return err
	}
	t.sps.Open(t.mgr, name)
	return nil
}

// Release drops the named savepoint; its changes stay in the transaction.
func (t *Txn) Release(name string) error {
	if err := t.active(); err != nil {
		return err
	}
	if err := t.flush(); err != nil {
		return err
	}
	return t.sps.Release(name)
}

// RollbackTo rewinds the transaction to the named savepoint's state. The
// savepoint remains open.
func (t *Txn) RollbackTo(name string) error {
	if err := t.active(); err != nil {
		return err
	}
	// Changes since the savepoint live partly in the B-tree's page cache and
	// partly in the manager; both are discarded.
	if err := t.sps.RollbackTo(t.mgr, name); err != nil {
		return err
	}
	t.resetBtree()
	return nil
}

// Commit makes the transaction durable and re-bases the handle's readers
// onto the committed state. On error the transaction rolls back; the
// database file is restored from the journal on the next open if the
// process dies mid-apply.
func (t *Txn) Commit() error {
	if err := t.active(); err != nil {
		return err
	}
	if err := t.flush(); err != nil {
		t.Rollback()
		return err
	}

	dirty := t.mgr.DirtyPages()
	if len(dirty) == 0 {
		t.finish()
		return nil
	}

	if err := t.stampHeader(); err != nil {
		t.Rollback()
		return err
	}

	db := t.db
	var err error
	switch {
	case db.mem != nil:
		err = db.commitMemory(t.mgr)
	case db.cfg.walMode:
		if db.wal == nil {
			db.wal, err = pager.NewWalWriter(walPath(db.path), db.pageSize)
		}
		if err == nil {
			err = pager.CommitWal(t.mgr, db.wal)
		}
	default:
		if db.cfg.cipher != nil {
			for _, pgno := range t.mgr.DirtyPages() {
				if cerr := db.cfg.cipher.Encrypt(pgno, t.mgr.DirtyPage(pgno)); cerr != nil {
					t.Rollback()
					return cerr
				}
			}
		}
		err = pager.CommitJournal(t.mgr, db.file, journalPath(db.path))
	}
	if err != nil {
		t.Rollback()
		return err
	}

	schemaDirty := t.schemaDirty
	t.finish()
	return db.afterCommit(dirty, schemaDirty)
}

// stampHeader writes the post-transaction page count and change counter into
// the dirty copy of page 1, so the header travels with the commit's apply
// step — never before the journal/WAL is durable.
func (t *Txn) stampHeader() error {
	page1, err := t.mgr.GetPageForWrite(1)
	if err != nil {
		return err
	}
	var hdr format.Header
	if err := hdr.Parse(page1); err != nil {
		return serrors.NewCorruption(1, err.Error())
	}
	hdr.DatabaseSize = t.mgr.PageCount()
	hdr.FileChangeCounter++
	hdr.VersionValidFor = hdr.FileChangeCounter
	if t.schemaDirty {
		hdr.SchemaCookie++
	}
	copy(page1, hdr.Serialize())
	return nil
}

// Rollback discards the transaction: dirty buffers and savepoint snapshots
// return to the pool, and the handle is ready for a new Begin.
func (t *Txn) Rollback() error {
	if t.done {
		return nil
	}
	t.finish()
	logging.TxnRollback("rollback requested")
	return nil
}

func (t *Txn) finish() {
	t.done = true
	t.sps.Clear()
	t.mgr.Discard()
	t.bt = nil
	t.provider = nil
	if t.db.txn == t {
		t.db.txn = nil
	}
}

// commitMemory materializes the committed image and re-bases readers onto a
// fresh memory source and cache.
func (db *Database) commitMemory(mgr *pager.Manager) error {
	count := mgr.PageCount()
	size := int(db.pageSize)
	buf := make([]byte, int(count)*size)
	for p := uint32(1); p <= count; p++ {
		off := int(p-1) * size
		if err := mgr.ReadPage(p, buf[off:off+size]); err != nil {
			return err
		}
		if db.cfg.cipher != nil {
			if err := db.cfg.cipher.Encrypt(p, buf[off:off+size]); err != nil {
				return err
			}
		}
	}

	db.mem = pagesource.NewMemoryPageSource(buf, db.pageSize)
	var base pagesource.PageSource = db.mem
	if db.cfg.cipher != nil {
		base = pagesource.NewTransformPageSource(base, cipherTransform{db.cfg.cipher})
	}
	db.cache = pagesource.NewCachedPageSource(base, db.cfg.cachePages)
	db.proxy.Rebase(db.cache)
	logging.TxnCommit(len(mgr.DirtyPages()), "memory")
	return nil
}

// afterCommit re-bases the reader side on the committed state: stale cache
// slots drop, the WAL overlay (if any) is rebuilt, the header reloads, and
// the schema cache invalidates when the cookie moved.
func (db *Database) afterCommit(dirty []uint32, schemaDirty bool) error {
	if db.mem == nil {
		for _, pgno := range dirty {
			// Out-of-range is expected for pages the file does not hold yet
			// (WAL mode); anything cached is what matters.
			_ = db.cache.Invalidate(pgno)
		}
		if db.cfg.walMode {
			snap, err := pager.ReadWal(walPath(db.path), db.pageSize)
			if err != nil {
				return err
			}
			if len(snap.FrameMap) > 0 {
				db.proxy.Rebase(pagesource.NewWalPageSource(db.cache, snap.Data, snap.FrameMap, snap.DBSize))
			}
		}
	}

	if err := db.reloadHeader(); err != nil {
		return err
	}
	db.rebuildBtree()
	if schemaDirty {
		db.schemaCache = nil
	}
	db.dataVersion++
	return nil
}
