// Package layer offers named, forward-only row cursors composed as
// decorator chains over any row source: a projection remaps column
// ordinals, a filter drops rows a predicate rejects, and chains terminate at
// a table or reader leaf. Opening a chain validates it — depth is capped and
// cycles are rejected — and every per-row accessor is allocation-free.
package layer

import (
	serrors "github.com/revred/sharc/core/errors"
	"github.com/revred/sharc/core/sqlite"
)

// MaxDepth caps a decorator chain's length.
const MaxDepth = 10

// RowSource is a forward-only cursor over rows of Values.
type RowSource interface {
	// Reset rewinds to before the first row.
	Reset() error
	// MoveNext advances; false at the end.
	MoveNext() (bool, error)
	// ColumnCount returns the current row's width.
	ColumnCount() int
	// Column returns column i of the current row.
	Column(i int) (sqlite.Value, error)
}

// Layer is a named row source decorating another: an optional projection
// (ordinal remap) and an optional row predicate. A Layer with neither is a
// transparent rename.
type Layer struct {
	name       string
	src        RowSource
	projection []int
	predicate  func(RowSource) (bool, error)
}

// Name returns the layer's name.
func (l *Layer) Name() string { return l.name }

// NewProjection decorates src, exposing the listed source ordinals in order.
func NewProjection(name string, src RowSource, columns []int) *Layer {
	proj := make([]int, len(columns))
	copy(proj, columns)
	return &Layer{name: name, src: src, projection: proj}
}

// NewFilter decorates src with a row predicate; pred sees the underlying
// source positioned on the candidate row.
func NewFilter(name string, src RowSource, pred func(RowSource) (bool, error)) *Layer {
	return &Layer{name: name, src: src, predicate: pred}
}

// Open validates the chain rooted at l: depth at most MaxDepth, no layer
// appearing twice (a cycle). It returns l itself, reset and ready to
// iterate.
func Open(l *Layer) (*Layer, error) {
	depth := 0
	seen := map[*Layer]bool{}
	for at := l; at != nil; {
		depth++
		if depth > MaxDepth {
			return nil, serrors.NewValidation("layer chain", "depth exceeds cap")
		}
		if seen[at] {
			return nil, serrors.NewValidation("layer chain", "cycle detected at layer "+at.name)
		}
		seen[at] = true
		next, ok := at.src.(*Layer)
		if !ok {
			break
		}
		at = next
	}
	if err := l.Reset(); err != nil {
		return nil, err
	}
	return l, nil
}

// Reset rewinds the whole chain.
func (l *Layer) Reset() error { return l.src.Reset() }

// MoveNext advances to the next row the predicate accepts.
func (l *Layer) MoveNext() (bool, error) {
	for {
		ok, err := l.src.MoveNext()
		if err != nil || !ok {
			return false, err
		}
		if l.predicate != nil {
			keep, err := l.predicate(l.src)
			if err != nil {
				return false, err
			}
			if !keep {
				continue
			}
		}
		return true, nil
	}
}

// ColumnCount returns the projected width.
func (l *Layer) ColumnCount() int {
	if l.projection != nil {
		return len(l.projection)
	}
	return l.src.ColumnCount()
}

// Column returns projected column i of the current row.
func (l *Layer) Column(i int) (sqlite.Value, error) {
	if l.projection != nil {
		if i < 0 || i >= len(l.projection) {
			return sqlite.Value{}, serrors.NewRange("column ordinal", int64(i))
		}
		i = l.projection[i]
	}
	return l.src.Column(i)
}

// ReaderSource adapts a table reader into a RowSource leaf.
type ReaderSource struct {
	r *sqlite.Reader
}

// NewReaderSource wraps r.
func NewReaderSource(r *sqlite.Reader) *ReaderSource { return &ReaderSource{r: r} }

func (s *ReaderSource) Reset() error { s.r.Reset(); return nil }

func (s *ReaderSource) MoveNext() (bool, error) { return s.r.Next() }

func (s *ReaderSource) ColumnCount() int { return s.r.ColumnCount() }

func (s *ReaderSource) Column(i int) (sqlite.Value, error) { return s.r.Value(i) }

// Reader exposes the wrapped reader, e.g. for predicates that want typed
// accessors instead of Values.
func (s *ReaderSource) Reader() *sqlite.Reader { return s.r }
