package sqlite_test

// Differential tests: files written by modernc.org/sqlite (a full SQLite
// implementation) are opened and read by this engine, and files written by
// this engine are re-opened by modernc.org/sqlite. Agreement at the row
// level is the strongest file-format evidence available without linking the
// C library.

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/revred/sharc/core/sqlite"
)

// seedReferenceDB builds a database with the reference implementation.
func seedReferenceDB(t *testing.T, stmts ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ref.db")
	ref, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open reference db: %v", err)
	}
	defer ref.Close()
	for _, stmt := range stmts {
		if _, err := ref.Exec(stmt); err != nil {
			t.Fatalf("exec %q: %v", stmt, err)
		}
	}
	return path
}

func TestReadReferenceFile(t *testing.T) {
	path := seedReferenceDB(t,
		"CREATE TABLE items(id INTEGER PRIMARY KEY, label TEXT, score REAL, data BLOB)",
		"INSERT INTO items VALUES (1, 'alpha', 1.5, x'DEADBEEF')",
		"INSERT INTO items VALUES (2, 'beta', -2.25, NULL)",
		"INSERT INTO items VALUES (3, NULL, 0.0, x'00')",
	)

	db, err := sqlite.Open(path, sqlite.ReadOnly())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	r, err := db.NewReader("items", nil)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}

	type item struct {
		id    int64
		label string
		score float64
	}
	want := []item{{1, "alpha", 1.5}, {2, "beta", -2.25}, {3, "", 0}}
	i := 0
	for {
		ok, err := r.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if !ok {
			break
		}
		if i >= len(want) {
			t.Fatalf("more rows than expected")
		}
		id, err := r.Int64(0)
		if err != nil {
			t.Fatal(err)
		}
		if id != want[i].id {
			t.Errorf("row %d id = %d, want %d", i, id, want[i].id)
		}
		if !r.IsNull(1) {
			label, err := r.Text(1)
			if err != nil {
				t.Fatal(err)
			}
			if label != want[i].label {
				t.Errorf("row %d label = %q, want %q", i, label, want[i].label)
			}
		}
		score, err := r.Float64(2)
		if err != nil {
			t.Fatal(err)
		}
		if score != want[i].score {
			t.Errorf("row %d score = %v, want %v", i, score, want[i].score)
		}
		i++
	}
	if i != 3 {
		t.Fatalf("rows = %d, want 3", i)
	}
}

func TestSeekInLargeReferenceTable(t *testing.T) {
	if testing.Short() {
		t.Skip("builds a 1,000,000-row fixture")
	}
	path := filepath.Join(t.TempDir(), "big.db")
	ref, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ref.Exec("CREATE TABLE seq(id INTEGER PRIMARY KEY, n INTEGER)"); err != nil {
		t.Fatal(err)
	}
	// Multi-row VALUES are capped at 500 terms (compound-select limit).
	const total = 1000000
	const chunk = 500
	tx, err := ref.Begin()
	if err != nil {
		t.Fatal(err)
	}
	for lo := 1; lo <= total; lo += chunk {
		var sb strings.Builder
		sb.WriteString("INSERT INTO seq VALUES ")
		for i := lo; i < lo+chunk; i++ {
			if i > lo {
				sb.WriteByte(',')
			}
			fmt.Fprintf(&sb, "(%d,%d)", i, i)
		}
		if _, err := tx.Exec(sb.String()); err != nil {
			t.Fatal(err)
		}
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}
	ref.Close()

	db, err := sqlite.Open(path, sqlite.ReadOnly())
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	s, err := db.Schema()
	if err != nil {
		t.Fatal(err)
	}
	table, ok := s.GetTable("seq")
	if !ok {
		t.Fatal("seq table not found")
	}

	cur := db.NewTableCursor(table.RootPage)
	found, err := cur.Seek(987654)
	if err != nil {
		t.Fatalf("Seek: %v", err)
	}
	if !found {
		t.Fatal("Seek(987654) missed")
	}

	r, err := db.NewReader("seq", nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.Seek(987654); err != nil {
		t.Fatal(err)
	}
	id, err := r.Int64(0)
	if err != nil {
		t.Fatal(err)
	}
	if id != 987654 {
		t.Fatalf("first column = %d, want 987654", id)
	}

	// Absent rowid past the last row: the seek reports a miss.
	found, err = cur.Seek(total + 5)
	if err != nil {
		t.Fatal(err)
	}
	if found {
		t.Fatal("Seek past the end reported a hit")
	}
}

func TestOverflowPayloadFromReference(t *testing.T) {
	body := strings.Repeat("x", 20000)
	path := seedReferenceDB(t,
		"CREATE TABLE blobs(id INTEGER PRIMARY KEY, body TEXT)",
		"INSERT INTO blobs VALUES (1, '"+body+"')",
	)

	db, err := sqlite.Open(path, sqlite.ReadOnly())
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	r, err := db.NewReader("blobs", nil)
	if err != nil {
		t.Fatal(err)
	}
	ok, err := r.Next()
	if err != nil || !ok {
		t.Fatalf("Next = (%v, %v)", ok, err)
	}
	got, err := r.Text(1)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 20000 {
		t.Fatalf("reassembled length = %d, want 20000", len(got))
	}
	if got != body {
		t.Fatal("reassembled payload differs from inserted body")
	}
}

func TestReferenceReadsOurFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ours.db")
	db, err := sqlite.Create(path)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	txn, err := db.Begin()
	if err != nil {
		t.Fatal(err)
	}
	root, err := txn.CreateTable("CREATE TABLE greetings(id INTEGER PRIMARY KEY, msg TEXT)")
	if err != nil {
		t.Fatal(err)
	}
	for i := int64(1); i <= 5; i++ {
		if err := txn.Insert(root, i, []sqlite.Value{sqlite.Null(), sqlite.Text(fmt.Sprintf("hello %d", i))}); err != nil {
			t.Fatal(err)
		}
	}
	if err := txn.Commit(); err != nil {
		t.Fatal(err)
	}
	db.Close()

	ref, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatal(err)
	}
	defer ref.Close()
	rows, err := ref.Query("SELECT id, msg FROM greetings ORDER BY id")
	if err != nil {
		t.Fatalf("reference engine rejected our file: %v", err)
	}
	defer rows.Close()
	n := int64(0)
	for rows.Next() {
		n++
		var id int64
		var msg string
		if err := rows.Scan(&id, &msg); err != nil {
			t.Fatal(err)
		}
		if id != n || msg != fmt.Sprintf("hello %d", n) {
			t.Fatalf("row %d = (%d, %q)", n, id, msg)
		}
	}
	if err := rows.Err(); err != nil {
		t.Fatal(err)
	}
	if n != 5 {
		t.Fatalf("rows = %d, want 5", n)
	}
}
