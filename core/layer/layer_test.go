package layer

import (
	"path/filepath"
	"testing"

	"github.com/revred/sharc/core/sqlite"
)

// sliceSource is an in-memory RowSource for decorator tests.
type sliceSource struct {
	rows [][]sqlite.Value
	pos  int
}

func newSliceSource(rows [][]sqlite.Value) *sliceSource {
	return &sliceSource{rows: rows, pos: -1}
}

func (s *sliceSource) Reset() error { s.pos = -1; return nil }

func (s *sliceSource) MoveNext() (bool, error) {
	if s.pos+1 >= len(s.rows) {
		return false, nil
	}
	s.pos++
	return true, nil
}

func (s *sliceSource) ColumnCount() int {
	if s.pos < 0 || s.pos >= len(s.rows) {
		return 0
	}
	return len(s.rows[s.pos])
}

func (s *sliceSource) Column(i int) (sqlite.Value, error) {
	return s.rows[s.pos][i], nil
}

func testRows() [][]sqlite.Value {
	return [][]sqlite.Value{
		{sqlite.Int(1), sqlite.Text("alpha"), sqlite.Float(0.1)},
		{sqlite.Int(2), sqlite.Text("beta"), sqlite.Float(0.9)},
		{sqlite.Int(3), sqlite.Text("gamma"), sqlite.Float(0.5)},
	}
}

func TestProjectionRemapsOrdinals(t *testing.T) {
	l, err := Open(NewProjection("names-first", newSliceSource(testRows()), []int{1, 0}))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if l.ColumnCount() != 2 {
		t.Fatalf("ColumnCount = %d, want 2", l.ColumnCount())
	}

	ok, err := l.MoveNext()
	if err != nil || !ok {
		t.Fatalf("MoveNext = (%v, %v)", ok, err)
	}
	v0, err := l.Column(0)
	if err != nil {
		t.Fatal(err)
	}
	if v0.Text != "alpha" {
		t.Fatalf("column 0 = %+v, want text alpha", v0)
	}
	v1, err := l.Column(1)
	if err != nil {
		t.Fatal(err)
	}
	if v1.Int != 1 {
		t.Fatalf("column 1 = %+v, want int 1", v1)
	}

	if _, err := l.Column(2); err == nil {
		t.Fatal("out-of-range projected ordinal accepted")
	}
}

func TestFilterDropsRows(t *testing.T) {
	highScore := func(src RowSource) (bool, error) {
		v, err := src.Column(2)
		if err != nil {
			return false, err
		}
		return v.Flt >= 0.5, nil
	}
	l, err := Open(NewFilter("high-score", newSliceSource(testRows()), highScore))
	if err != nil {
		t.Fatal(err)
	}

	var names []string
	for {
		ok, err := l.MoveNext()
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			break
		}
		v, err := l.Column(1)
		if err != nil {
			t.Fatal(err)
		}
		names = append(names, v.Text)
	}
	if len(names) != 2 || names[0] != "beta" || names[1] != "gamma" {
		t.Fatalf("names = %v, want [beta gamma]", names)
	}
}

func TestFilterThenProjectionCompose(t *testing.T) {
	filter := NewFilter("nonzero", newSliceSource(testRows()), func(src RowSource) (bool, error) {
		v, err := src.Column(0)
		return v.Int != 2, err
	})
	l, err := Open(NewProjection("just-names", filter, []int{1}))
	if err != nil {
		t.Fatal(err)
	}

	var names []string
	for {
		ok, err := l.MoveNext()
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			break
		}
		v, err := l.Column(0)
		if err != nil {
			t.Fatal(err)
		}
		names = append(names, v.Text)
	}
	if len(names) != 2 || names[0] != "alpha" || names[1] != "gamma" {
		t.Fatalf("names = %v, want [alpha gamma]", names)
	}
}

func TestOpenRejectsDeepChains(t *testing.T) {
	var src RowSource = newSliceSource(testRows())
	var top *Layer
	for i := 0; i <= MaxDepth; i++ {
		top = NewProjection("deep", src, []int{0})
		src = top
	}
	if _, err := Open(top); err == nil {
		t.Fatal("chain deeper than the cap accepted")
	}
}

func TestOpenRejectsCycles(t *testing.T) {
	a := NewProjection("a", newSliceSource(testRows()), []int{0})
	b := NewProjection("b", a, []int{0})
	a.src = b // a -> b -> a
	if _, err := Open(b); err == nil {
		t.Fatal("cyclic chain accepted")
	}
}

func TestReaderSourceLeaf(t *testing.T) {
	path := filepath.Join(t.TempDir(), "layer.db")
	db, err := sqlite.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	txn, err := db.Begin()
	if err != nil {
		t.Fatal(err)
	}
	root, err := txn.CreateTable("CREATE TABLE scores(name TEXT, points INTEGER)")
	if err != nil {
		t.Fatal(err)
	}
	rows := []struct {
		name   string
		points int64
	}{{"ada", 90}, {"bob", 40}, {"cleo", 75}}
	for i, row := range rows {
		if err := txn.Insert(root, int64(i+1), []sqlite.Value{sqlite.Text(row.name), sqlite.Int(row.points)}); err != nil {
			t.Fatal(err)
		}
	}
	if err := txn.Commit(); err != nil {
		t.Fatal(err)
	}

	r, err := db.NewReader("scores", nil)
	if err != nil {
		t.Fatal(err)
	}
	passing := NewFilter("passing", NewReaderSource(r), func(src RowSource) (bool, error) {
		v, err := src.Column(1)
		return v.Int >= 60, err
	})
	l, err := Open(NewProjection("names", passing, []int{0}))
	if err != nil {
		t.Fatal(err)
	}

	var names []string
	for {
		ok, err := l.MoveNext()
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			break
		}
		v, err := l.Column(0)
		if err != nil {
			t.Fatal(err)
		}
		names = append(names, v.Text)
	}
	if len(names) != 2 || names[0] != "ada" || names[1] != "cleo" {
		t.Fatalf("names = %v, want [ada cleo]", names)
	}
}
