package btree

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/revred/sharc/core/sqlite/internal/record"
)

// IndexCursor traverses an index b-tree, whose cells carry a multi-column
// key (the indexed columns followed by the table rowid) as their payload
// rather than a table cursor's separate int64 key. It reuses BtCursor's
// page-stack descent for Next/Previous and adds key-prefix seeking.
type IndexCursor struct {
	*BtCursor
}

// NewIndexCursor creates a cursor over the index b-tree rooted at rootPage.
func NewIndexCursor(bt *Btree, rootPage uint32) *IndexCursor {
	return &IndexCursor{BtCursor: NewCursor(bt, rootPage)}
}

// decodeKeyColumns decodes the leading numColumns columns of an index
// cell's payload (the indexed columns; the trailing rowid column, if any,
// is never consulted by SeekFirst). The header scratch covers the record's
// full column count — a partial key is shorter than the record, which always
// carries at least the rowid column beyond it — growing on ErrShortScratch.
func decodeKeyColumns(payload []byte, numColumns int) ([]record.Value, error) {
	scratch := numColumns + 1
	if scratch < 8 {
		scratch = 8
	}
	var types []record.SerialType
	var n, bodyStart int
	for {
		types = make([]record.SerialType, scratch)
		var err error
		n, bodyStart, err = record.ReadHeader(payload, types)
		if err == nil {
			break
		}
		if errors.Is(err, record.ErrShortScratch) && scratch < 32768 {
			scratch *= 2
			continue
		}
		return nil, err
	}
	if n < numColumns {
		numColumns = n
	}
	offsets := make([]int, n)
	record.ComputeOffsets(types[:n], bodyStart, offsets)

	out := make([]record.Value, numColumns)
	for i := 0; i < numColumns; i++ {
		t := types[i]
		switch {
		case t == record.TypeNull:
			out[i] = record.NullValue()
		case t == record.TypeFloat64:
			f, err := record.DecodeFloat(payload, offsets[i])
			if err != nil {
				return nil, err
			}
			out[i] = record.FloatValue(f)
		case t.IsText():
			b, err := record.DecodeBlobOrText(payload, t, offsets[i])
			if err != nil {
				return nil, err
			}
			out[i] = record.TextValue(string(b))
		case t.IsBlob():
			b, err := record.DecodeBlobOrText(payload, t, offsets[i])
			if err != nil {
				return nil, err
			}
			out[i] = record.BlobValue(b)
		default:
			iv, err := record.DecodeInt(payload, t, offsets[i])
			if err != nil {
				return nil, err
			}
			out[i] = record.IntValue(iv)
		}
	}
	return out, nil
}

// compareValue orders two decoded column values the way SQLite's default
// collation does: NULL < numeric < text < blob, numeric by value, text and
// blob lexicographically.
func compareValue(a, b record.Value) int {
	rank := func(v record.Value) int {
		switch v.Kind {
		case record.KindNull:
			return 0
		case record.KindInt, record.KindFloat:
			return 1
		case record.KindText:
			return 2
		default:
			return 3
		}
	}
	ra, rb := rank(a), rank(b)
	if ra != rb {
		return ra - rb
	}
	switch ra {
	case 0:
		return 0
	case 1:
		af, bf := numericValue(a), numericValue(b)
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	case 2:
		return bytes.Compare([]byte(a.Text), []byte(b.Text))
	default:
		return bytes.Compare(a.Blob, b.Blob)
	}
}

func numericValue(v record.Value) float64 {
	if v.Kind == record.KindFloat {
		return v.Flt
	}
	return float64(v.Int)
}

// compareKeyPrefix compares the leading len(partial) columns of cell against
// partial, in column order, short-circuiting on the first unequal column.
func compareKeyPrefix(cell []record.Value, partial []record.Value) int {
	for i, want := range partial {
		if i >= len(cell) {
			return -1
		}
		if c := compareValue(cell[i], want); c != 0 {
			return c
		}
	}
	return 0
}

// SeekFirst positions the cursor at the first index entry whose leading
// columns equal partialKey, or the first entry greater than it if no exact
// match exists (found is false in that case; the cursor is still valid and
// positioned for an ascending Next()-driven scan, matching the table
// cursor's SeekRowid "not found but positioned" contract). An empty
// partialKey seeks to the first entry in the index.
func (c *IndexCursor) SeekFirst(partialKey []record.Value) (found bool, err error) {
	c.Depth = 0
	c.PageStack[0] = c.RootPage
	c.IndexStack[0] = 0

	pageNum := c.RootPage
	for {
		pageData, err := c.Btree.GetPage(pageNum)
		if err != nil {
			c.State = CursorInvalid
			return false, fmt.Errorf("index page %d: %w", pageNum, err)
		}
		header, err := ParsePageHeader(pageData, pageNum)
		if err != nil {
			c.State = CursorInvalid
			return false, fmt.Errorf("index page %d header: %w", pageNum, err)
		}

		idx, exact, err := c.indexBinarySearch(pageData, header, partialKey)
		if err != nil {
			c.State = CursorInvalid
			return false, err
		}

		if header.IsLeaf {
			c.CurrentPage = pageNum
			c.CurrentIndex = idx
			c.CurrentHeader = header
			c.IndexStack[c.Depth] = idx
			c.State = CursorValid
			if idx < int(header.NumCells) {
				cellOffset, err := header.GetCellPointer(pageData, idx)
				if err != nil {
					c.State = CursorInvalid
					return false, err
				}
				cell, err := ParseCell(header.PageType, pageData[cellOffset:], c.Btree.UsableSize)
				if err != nil {
					c.State = CursorInvalid
					return false, err
				}
				c.CurrentCell = cell
				return exact, nil
			}
			return false, nil
		}

		var childPage uint32
		if idx >= int(header.NumCells) {
			childPage = header.RightChild
		} else {
			cellOffset, err := header.GetCellPointer(pageData, idx)
			if err != nil {
				c.State = CursorInvalid
				return false, err
			}
			cell, err := ParseCell(header.PageType, pageData[cellOffset:], c.Btree.UsableSize)
			if err != nil {
				c.State = CursorInvalid
				return false, err
			}
			childPage = cell.ChildPage
		}

		c.Depth++
		if c.Depth >= MaxBtreeDepth {
			c.State = CursorInvalid
			return false, fmt.Errorf("btree depth exceeded")
		}
		pageNum = childPage
		c.PageStack[c.Depth] = pageNum
		c.IndexStack[c.Depth] = 0
	}
}

// indexBinarySearch returns the position of the first cell whose key
// columns are >= partialKey, and whether that cell is an exact prefix
// match.
func (c *IndexCursor) indexBinarySearch(pageData []byte, header *PageHeader, partialKey []record.Value) (int, bool, error) {
	left, right := 0, int(header.NumCells)
	exact := false
	for left < right {
		mid := (left + right) / 2
		cellOffset, err := header.GetCellPointer(pageData, mid)
		if err != nil {
			return left, false, err
		}
		cell, err := ParseCell(header.PageType, pageData[cellOffset:], c.Btree.UsableSize)
		if err != nil {
			return left, false, err
		}
		payload, err := c.Btree.AssemblePayload(cell, &c.overflowBuf)
		if err != nil {
			return left, false, err
		}
		keyCols, err := decodeKeyColumns(payload, len(partialKey))
		if err != nil {
			return left, false, err
		}
		cmp := compareKeyPrefix(keyCols, partialKey)
		switch {
		case cmp == 0:
			exact = true
			right = mid
		case cmp < 0:
			left = mid + 1
		default:
			right = mid
		}
	}
	return left, exact, nil
}
