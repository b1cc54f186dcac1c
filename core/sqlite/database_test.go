package sqlite

import (
	"path/filepath"
	"testing"
)

func createTestDB(t *testing.T) (*Database, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Create(path)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, path
}

func mustBegin(t *testing.T, db *Database) *Txn {
	t.Helper()
	txn, err := db.Begin()
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	return txn
}

func TestCreateOpenRoundTrip(t *testing.T) {
	db, path := createTestDB(t)

	txn := mustBegin(t, db)
	root, err := txn.CreateTable("CREATE TABLE notes(id INTEGER PRIMARY KEY, body TEXT)")
	if err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	for i := int64(1); i <= 10; i++ {
		if err := txn.Insert(root, i, []Value{Null(), Text("note body")}); err != nil {
			t.Fatalf("Insert %d: %v", i, err)
		}
	}
	if err := txn.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	// Same handle.
	r, err := db.NewReader("notes", nil)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	count := 0
	for {
		ok, err := r.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if !ok {
			break
		}
		count++
		id, err := r.Int64(0)
		if err != nil {
			t.Fatalf("Int64: %v", err)
		}
		if id != r.Rowid() {
			t.Fatalf("rowid alias: column = %d, rowid = %d", id, r.Rowid())
		}
	}
	if count != 10 {
		t.Fatalf("rows = %d, want 10", count)
	}
	db.Close()

	// Fresh handle from disk.
	db2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db2.Close()
	r2, err := db2.NewReader("notes", []string{"body"})
	if err != nil {
		t.Fatalf("NewReader(projection): %v", err)
	}
	rows := 0
	for {
		ok, err := r2.Next()
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			break
		}
		body, err := r2.Text(0)
		if err != nil {
			t.Fatal(err)
		}
		if body != "note body" {
			t.Fatalf("body = %q", body)
		}
		rows++
	}
	if rows != 10 {
		t.Fatalf("reopened rows = %d, want 10", rows)
	}
}

func TestWriteIsolationUntilCommit(t *testing.T) {
	db, _ := createTestDB(t)

	txn := mustBegin(t, db)
	root, err := txn.CreateTable("CREATE TABLE t(v TEXT)")
	if err != nil {
		t.Fatal(err)
	}
	if err := txn.Insert(root, 1, []Value{Text("pending")}); err != nil {
		t.Fatal(err)
	}

	// Before commit: the reader side must not see the table.
	s, err := db.Schema()
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := s.GetTable("t"); ok {
		t.Fatal("uncommitted table visible to readers")
	}
	v0 := db.DataVersion()

	if err := txn.Commit(); err != nil {
		t.Fatal(err)
	}
	if db.DataVersion() <= v0 {
		t.Fatal("DataVersion did not increase on commit")
	}

	s, err = db.Schema()
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := s.GetTable("t"); !ok {
		t.Fatal("committed table not visible")
	}
}

func TestRollbackDiscardsEverything(t *testing.T) {
	db, _ := createTestDB(t)

	txn := mustBegin(t, db)
	if _, err := txn.CreateTable("CREATE TABLE gone(v TEXT)"); err != nil {
		t.Fatal(err)
	}
	if err := txn.Rollback(); err != nil {
		t.Fatal(err)
	}

	s, err := db.Schema()
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := s.GetTable("gone"); ok {
		t.Fatal("rolled-back table visible")
	}
	if db.Header().DatabaseSize != 1 {
		t.Fatalf("page count = %d, want 1", db.Header().DatabaseSize)
	}

	// The handle accepts a new transaction.
	txn2 := mustBegin(t, db)
	txn2.Rollback()
}

func TestSavepointRewind(t *testing.T) {
	db, _ := createTestDB(t)

	txn := mustBegin(t, db)
	root, err := txn.CreateTable("CREATE TABLE sp(v INTEGER)")
	if err != nil {
		t.Fatal(err)
	}
	if err := txn.Insert(root, 1, []Value{Int(1)}); err != nil {
		t.Fatal(err)
	}
	if err := txn.Savepoint("mid"); err != nil {
		t.Fatal(err)
	}
	if err := txn.Insert(root, 2, []Value{Int(2)}); err != nil {
		t.Fatal(err)
	}
	if err := txn.RollbackTo("mid"); err != nil {
		t.Fatal(err)
	}
	if err := txn.Insert(root, 3, []Value{Int(3)}); err != nil {
		t.Fatal(err)
	}
	if err := txn.Release("mid"); err != nil {
		t.Fatal(err)
	}
	if err := txn.Commit(); err != nil {
		t.Fatal(err)
	}

	r, err := db.NewReader("sp", nil)
	if err != nil {
		t.Fatal(err)
	}
	var got []int64
	for {
		ok, err := r.Next()
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			break
		}
		got = append(got, r.Rowid())
	}
	if len(got) != 2 || got[0] != 1 || got[1] != 3 {
		t.Fatalf("rowids = %v, want [1 3]", got)
	}
}

func TestDeleteRow(t *testing.T) {
	db, _ := createTestDB(t)

	txn := mustBegin(t, db)
	root, err := txn.CreateTable("CREATE TABLE d(v INTEGER)")
	if err != nil {
		t.Fatal(err)
	}
	for i := int64(1); i <= 3; i++ {
		if err := txn.Insert(root, i, []Value{Int(i * 10)}); err != nil {
			t.Fatal(err)
		}
	}
	found, err := txn.Delete(root, 2)
	if err != nil || !found {
		t.Fatalf("Delete(2) = (%v, %v)", found, err)
	}
	found, err = txn.Delete(root, 99)
	if err != nil || found {
		t.Fatalf("Delete(99) = (%v, %v), want miss", found, err)
	}
	if err := txn.Commit(); err != nil {
		t.Fatal(err)
	}

	cur := db.NewTableCursor(root)
	var rowids []int64
	for {
		ok, err := cur.MoveNext()
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			break
		}
		rowids = append(rowids, cur.Rowid())
	}
	if len(rowids) != 2 || rowids[0] != 1 || rowids[1] != 3 {
		t.Fatalf("rowids = %v, want [1 3]", rowids)
	}
}

func TestSeekPositioning(t *testing.T) {
	db, _ := createTestDB(t)

	txn := mustBegin(t, db)
	root, err := txn.CreateTable("CREATE TABLE s(v INTEGER)")
	if err != nil {
		t.Fatal(err)
	}
	for _, rowid := range []int64{10, 20, 30} {
		if err := txn.Insert(root, rowid, []Value{Int(rowid)}); err != nil {
			t.Fatal(err)
		}
	}
	if err := txn.Commit(); err != nil {
		t.Fatal(err)
	}

	cur := db.NewTableCursor(root)
	found, err := cur.Seek(20)
	if err != nil || !found {
		t.Fatalf("Seek(20) = (%v, %v), want hit", found, err)
	}
	if cur.Rowid() != 20 {
		t.Fatalf("Rowid = %d, want 20", cur.Rowid())
	}

	// Miss: cursor rests at the first larger rowid.
	cur.Reset()
	found, err = cur.Seek(25)
	if err != nil || found {
		t.Fatalf("Seek(25) = (%v, %v), want miss", found, err)
	}
	if cur.Rowid() != 30 {
		t.Fatalf("after missed seek, Rowid = %d, want 30", cur.Rowid())
	}
}

func TestOpenMemoryRoundTrip(t *testing.T) {
	db, err := OpenMemory(NewDatabaseImage(4096))
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer db.Close()

	txn, err := db.Begin()
	if err != nil {
		t.Fatal(err)
	}
	root, err := txn.CreateTable("CREATE TABLE m(v TEXT)")
	if err != nil {
		t.Fatal(err)
	}
	if err := txn.Insert(root, 1, []Value{Text("in memory")}); err != nil {
		t.Fatal(err)
	}
	if err := txn.Commit(); err != nil {
		t.Fatal(err)
	}

	r, err := db.NewReader("m", nil)
	if err != nil {
		t.Fatal(err)
	}
	ok, err := r.Next()
	if err != nil || !ok {
		t.Fatalf("Next = (%v, %v)", ok, err)
	}
	v, err := r.Text(0)
	if err != nil || v != "in memory" {
		t.Fatalf("value = (%q, %v)", v, err)
	}

	// The committed image reopens as a fresh handle.
	img := db.MemoryImage()
	db2, err := OpenMemory(img)
	if err != nil {
		t.Fatal(err)
	}
	defer db2.Close()
	r2, err := db2.NewReader("m", nil)
	if err != nil {
		t.Fatal(err)
	}
	if ok, err := r2.Next(); !ok || err != nil {
		t.Fatalf("reopened image Next = (%v, %v)", ok, err)
	}
}

func TestIndexCursorSeekFirst(t *testing.T) {
	db, _ := createTestDB(t)

	txn := mustBegin(t, db)
	root, err := txn.CreateTable("CREATE TABLE people(name TEXT)")
	if err != nil {
		t.Fatal(err)
	}
	idx, err := txn.CreateIndex("CREATE INDEX idx_people_name ON people(name)")
	if err != nil {
		t.Fatal(err)
	}
	names := []string{"carol", "alice", "bob", "alice"}
	for i, name := range names {
		rowid := int64(i + 1)
		if err := txn.Insert(root, rowid, []Value{Text(name)}); err != nil {
			t.Fatal(err)
		}
		if err := txn.InsertIndexEntry(idx, []Value{Text(name), Int(rowid)}); err != nil {
			t.Fatal(err)
		}
	}
	if err := txn.Commit(); err != nil {
		t.Fatal(err)
	}

	ic := db.NewIndexCursor(idx)
	found, err := ic.SeekFirst([]Value{Text("alice")})
	if err != nil || !found {
		t.Fatalf("SeekFirst(alice) = (%v, %v)", found, err)
	}
	// Both alice entries scan out before bob.
	var row Row
	var rowids []int64
	for ic.Valid() {
		payload, err := ic.Payload()
		if err != nil {
			t.Fatal(err)
		}
		if err := row.Load(payload); err != nil {
			t.Fatal(err)
		}
		name, err := row.Text(0)
		if err != nil {
			t.Fatal(err)
		}
		if name != "alice" {
			break
		}
		rowid, err := row.Int64(1)
		if err != nil {
			t.Fatal(err)
		}
		rowids = append(rowids, rowid)
		if ok, err := ic.MoveNext(); err != nil || !ok {
			break
		}
	}
	if len(rowids) != 2 {
		t.Fatalf("alice rowids = %v, want 2 entries", rowids)
	}

	// Missing key: positioned at the next larger entry.
	ic2 := db.NewIndexCursor(idx)
	found, err = ic2.SeekFirst([]Value{Text("az")})
	if err != nil {
		t.Fatal(err)
	}
	if found {
		t.Fatal("SeekFirst(az) reported exact match")
	}
}
