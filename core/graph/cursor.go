package graph

import (
	"github.com/revred/sharc/core/sqlite"
)

// EdgeCursor iterates the edges adjacent to one node. Cursors are built as
// position-on-first-match-then-scan: Reset binary-searches (or rewinds) to
// the first candidate, MoveNext yields matching edges until the match key is
// exhausted. Reset re-targets the same cursor object so a multi-hop
// traversal performs one allocation per cursor, not per hop.
type EdgeCursor interface {
	// MoveNext advances to the next matching edge; false when the current
	// match key has no more edges.
	MoveNext() (bool, error)
	// Reset re-targets the cursor at a new match key (and optional kind).
	Reset(matchKey int64, kind int64, hasKind bool) error
	// Edge returns the decoded current edge, valid until the next MoveNext
	// or Reset.
	Edge() *Edge
}

// IndexEdgeCursor rides an index whose leading column is the match column.
// Each hit follows the stored rowid back into the edge table for the full
// row (the index is non-covering).
type IndexEdgeCursor struct {
	rs        *RelationStore
	indexRoot uint32
	matchOrd  int

	ic      *sqlite.IndexCursor
	reader  *sqlite.Reader
	idxRow  sqlite.Row
	edge    Edge
	match   int64
	kind    int64
	hasKind bool
	started bool
	done    bool
}

// Reset positions the cursor before the first edge whose match column equals
// matchKey.
func (c *IndexEdgeCursor) Reset(matchKey int64, kind int64, hasKind bool) error {
	c.match = matchKey
	c.kind = kind
	c.hasKind = hasKind
	c.started = false
	c.done = false
	if c.ic == nil {
		c.ic = c.rs.db.NewIndexCursor(c.indexRoot)
	} else {
		c.ic.Reset()
	}
	if c.reader == nil {
		r, err := c.rs.db.NewReader(c.rs.adapter.Table, nil)
		if err != nil {
			return err
		}
		c.reader = r
	}
	return nil
}

// MoveNext advances to the next edge of the current match key, skipping
// kinds the filter rejects.
func (c *IndexEdgeCursor) MoveNext() (bool, error) {
	for {
		if c.done {
			return false, nil
		}
		if !c.started {
			c.started = true
			found, err := c.ic.SeekFirst([]sqlite.Value{sqlite.Int(c.match)})
			if err != nil {
				return false, err
			}
			if !found || !c.ic.Valid() {
				c.done = true
				return false, nil
			}
		} else {
			ok, err := c.ic.MoveNext()
			if err != nil {
				return false, err
			}
			if !ok {
				c.done = true
				return false, nil
			}
		}

		payload, err := c.ic.Payload()
		if err != nil {
			return false, err
		}
		if err := c.idxRow.Load(payload); err != nil {
			return false, err
		}
		leading, err := c.idxRow.Int64(0)
		if err != nil {
			return false, err
		}
		if leading != c.match {
			// Past the run of matching entries: the scan is over.
			c.done = true
			return false, nil
		}
		rowid, err := c.idxRow.Int64(c.idxRow.ColumnCount() - 1)
		if err != nil {
			return false, err
		}

		found, err := c.reader.Seek(rowid)
		if err != nil {
			return false, err
		}
		if !found {
			// Dangling index entry; skip it.
			continue
		}
		if err := c.rs.decodeEdge(c.reader, &c.edge); err != nil {
			return false, err
		}
		if c.hasKind && c.edge.Kind != c.kind {
			continue
		}
		return true, nil
	}
}

// Edge returns the current decoded edge.
func (c *IndexEdgeCursor) Edge() *Edge { return &c.edge }

// TableScanEdgeCursor is the no-index fallback: a full scan over the edge
// table filtering on the match column.
type TableScanEdgeCursor struct {
	rs       *RelationStore
	matchOrd int

	reader  *sqlite.Reader
	edge    Edge
	match   int64
	kind    int64
	hasKind bool
}

// Reset rewinds the scan for a new match key.
func (c *TableScanEdgeCursor) Reset(matchKey int64, kind int64, hasKind bool) error {
	c.match = matchKey
	c.kind = kind
	c.hasKind = hasKind
	if c.reader == nil {
		r, err := c.rs.db.NewReader(c.rs.adapter.Table, nil)
		if err != nil {
			return err
		}
		c.reader = r
	}
	c.reader.Reset()
	return nil
}

// MoveNext scans forward to the next matching edge.
func (c *TableScanEdgeCursor) MoveNext() (bool, error) {
	for {
		ok, err := c.reader.Next()
		if err != nil || !ok {
			return false, err
		}
		v, err := c.reader.Int64(c.matchOrd)
		if err != nil {
			return false, err
		}
		if v != c.match {
			continue
		}
		if err := c.rs.decodeEdge(c.reader, &c.edge); err != nil {
			return false, err
		}
		if c.hasKind && c.edge.Kind != c.kind {
			continue
		}
		return true, nil
	}
}

// Edge returns the current decoded edge.
func (c *TableScanEdgeCursor) Edge() *Edge { return &c.edge }
