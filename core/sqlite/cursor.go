package sqlite

import (
	"github.com/revred/sharc/core/sqlite/internal/btree"
)

// TableCursor walks a rowid-keyed table B-tree in key order. One cursor per
// concurrent reader; a cursor is not safe for shared use.
type TableCursor struct {
	c *btree.BtCursor
}

// IndexCursor walks an index B-tree whose cells carry a multi-column key
// record (the indexed columns followed by the referenced table rowid).
type IndexCursor struct {
	c *btree.IndexCursor
}

// NewTableCursor opens a cursor over the table B-tree rooted at rootPage.
func (db *Database) NewTableCursor(rootPage uint32) *TableCursor {
	return &TableCursor{c: btree.NewCursor(db.bt, rootPage)}
}

// NewIndexCursor opens a cursor over the index B-tree rooted at rootPage.
func (db *Database) NewIndexCursor(rootPage uint32) *IndexCursor {
	return &IndexCursor{c: btree.NewIndexCursor(db.bt, rootPage)}
}

// Reset returns the cursor to "before first".
func (tc *TableCursor) Reset() { tc.c.Reset() }

// MoveNext advances in rowid order; false means the table is exhausted.
func (tc *TableCursor) MoveNext() (bool, error) { return tc.c.MoveNext() }

// Seek positions the cursor on rowid, returning true on an exact match.
// On a miss the cursor rests at the first cell with a larger rowid (or at
// the end), ready for an ascending scan.
func (tc *TableCursor) Seek(rowid int64) (bool, error) { return tc.c.SeekRowid(rowid) }

// Rowid returns the current cell's rowid.
func (tc *TableCursor) Rowid() int64 { return tc.c.GetKey() }

// Payload returns the current cell's full record bytes, reassembling
// overflow chains into a per-cursor buffer when the cell spills. The slice
// is borrowed: copy before the next cursor move.
func (tc *TableCursor) Payload() ([]byte, error) { return tc.c.Payload() }

// Valid reports whether the cursor rests on a cell.
func (tc *TableCursor) Valid() bool { return tc.c.IsValid() }

// Reset returns the cursor to "before first".
func (ic *IndexCursor) Reset() { ic.c.Reset() }

// MoveNext advances in index key order; false means the index is exhausted.
func (ic *IndexCursor) MoveNext() (bool, error) { return ic.c.MoveNext() }

// SeekFirst positions the cursor on the first entry whose leading columns
// equal partialKey, returning true iff such an entry exists. On a miss the
// cursor rests at the first larger entry, ready for an ascending scan.
func (ic *IndexCursor) SeekFirst(partialKey []Value) (bool, error) {
	return ic.c.SeekFirst(partialKey)
}

// Payload returns the current cell's key record bytes (overflow reassembled),
// borrowed until the next cursor move.
func (ic *IndexCursor) Payload() ([]byte, error) { return ic.c.Payload() }

// Valid reports whether the cursor rests on a cell.
func (ic *IndexCursor) Valid() bool { return ic.c.IsValid() }
