package sqlite

import (
	"strings"

	serrors "github.com/revred/sharc/core/errors"
	"github.com/revred/sharc/core/sqlite/internal/schema"
)

// FilterFunc is a row predicate: rows it rejects are skipped by the reader.
type FilterFunc func(r *Reader) (bool, error)

// Reader iterates a table's rows with optional column projection and row
// filters. Column access goes through the shared zero-copy Row machinery;
// an INTEGER PRIMARY KEY column (stored as NULL in the record, its value
// being the rowid) is resolved transparently.
type Reader struct {
	cur        *TableCursor
	row        Row
	table      *schema.Table
	projection []int // projected ordinal -> physical ordinal; nil = identity
	filters    []FilterFunc
	rowidAlias int // physical ordinal of the INTEGER PRIMARY KEY column, -1 if none
}

// NewReader opens a reader over table. projection lists column names to
// expose in order (nil or empty exposes all columns); filters are applied in
// order on every row.
func (db *Database) NewReader(table string, projection []string, filters ...FilterFunc) (*Reader, error) {
	s, err := db.Schema()
	if err != nil {
		return nil, err
	}
	t, ok := s.GetTable(table)
	if !ok {
		return nil, serrors.NewNotFound("table", table)
	}
	return db.newReaderForTable(t, projection, filters...)
}

func (db *Database) newReaderForTable(t *schema.Table, projection []string, filters ...FilterFunc) (*Reader, error) {
	r := &Reader{
		cur:        db.NewTableCursor(t.RootPage),
		table:      t,
		filters:    filters,
		rowidAlias: rowidAliasOrdinal(t),
	}
	if len(projection) > 0 {
		r.projection = make([]int, len(projection))
		for i, name := range projection {
			ord := t.GetColumnIndex(name)
			if ord < 0 {
				return nil, serrors.NewNotFound("column", name)
			}
			r.projection[i] = ord
		}
	}
	return r, nil
}

// rowidAliasOrdinal returns the ordinal of the table's INTEGER PRIMARY KEY
// column, whose record slot is NULL on disk with the rowid carrying the
// value, or -1 when the table has none.
func rowidAliasOrdinal(t *schema.Table) int {
	if t.WithoutRowID || len(t.PrimaryKey) != 1 {
		return -1
	}
	ord := t.GetColumnIndex(t.PrimaryKey[0])
	if ord < 0 {
		return -1
	}
	if !strings.EqualFold(t.Columns[ord].Type, "integer") {
		return -1
	}
	return ord
}

// Reset rewinds the reader to before the first row.
func (r *Reader) Reset() { r.cur.Reset() }

// Next advances to the next row passing every filter; false at the end.
func (r *Reader) Next() (bool, error) {
	for {
		ok, err := r.cur.MoveNext()
		if err != nil || !ok {
			return false, err
		}
		payload, err := r.cur.Payload()
		if err != nil {
			return false, err
		}
		if err := r.row.Load(payload); err != nil {
			return false, err
		}
		pass := true
		for _, f := range r.filters {
			keep, err := f(r)
			if err != nil {
				return false, err
			}
			if !keep {
				pass = false
				break
			}
		}
		if pass {
			return true, nil
		}
	}
}

// Seek positions the reader on the given rowid (filters are not applied to a
// sought row). Returns true on an exact match.
func (r *Reader) Seek(rowid int64) (bool, error) {
	found, err := r.cur.Seek(rowid)
	if err != nil || !found {
		return found, err
	}
	payload, err := r.cur.Payload()
	if err != nil {
		return false, err
	}
	return true, r.row.Load(payload)
}

// Rowid returns the current row's rowid.
func (r *Reader) Rowid() int64 { return r.cur.Rowid() }

// ColumnCount returns the number of projected columns.
func (r *Reader) ColumnCount() int {
	if r.projection != nil {
		return len(r.projection)
	}
	return r.row.ColumnCount()
}

// physical maps a projected ordinal to the record's physical ordinal.
func (r *Reader) physical(i int) int {
	if r.projection != nil {
		if i < 0 || i >= len(r.projection) {
			return -1
		}
		return r.projection[i]
	}
	return i
}

// Value returns projected column i of the current row.
func (r *Reader) Value(i int) (Value, error) {
	p := r.physical(i)
	if p < 0 {
		return Value{}, serrors.NewRange("column ordinal", int64(i))
	}
	if p == r.rowidAlias && r.row.IsNull(p) {
		return Int(r.cur.Rowid()), nil
	}
	return r.row.Value(p)
}

// Int64 decodes projected column i as an integer.
func (r *Reader) Int64(i int) (int64, error) {
	p := r.physical(i)
	if p < 0 {
		return 0, serrors.NewRange("column ordinal", int64(i))
	}
	if p == r.rowidAlias && r.row.IsNull(p) {
		return r.cur.Rowid(), nil
	}
	return r.row.Int64(p)
}

// Float64 decodes projected column i as a double.
func (r *Reader) Float64(i int) (float64, error) {
	p := r.physical(i)
	if p < 0 {
		return 0, serrors.NewRange("column ordinal", int64(i))
	}
	return r.row.Float64(p)
}

// Text decodes projected column i as a string.
func (r *Reader) Text(i int) (string, error) {
	p := r.physical(i)
	if p < 0 {
		return "", serrors.NewRange("column ordinal", int64(i))
	}
	return r.row.Text(p)
}

// Bytes returns projected column i's borrowed text/blob bytes.
func (r *Reader) Bytes(i int) ([]byte, error) {
	p := r.physical(i)
	if p < 0 {
		return nil, serrors.NewRange("column ordinal", int64(i))
	}
	return r.row.Bytes(p)
}

// IsNull reports whether projected column i is NULL (a rowid-alias column is
// never NULL: its value is the rowid).
func (r *Reader) IsNull(i int) bool {
	p := r.physical(i)
	if p < 0 {
		return false
	}
	if p == r.rowidAlias {
		return false
	}
	return r.row.IsNull(p)
}

// Table returns the reader's table definition.
func (r *Reader) Table() *schema.Table { return r.table }
