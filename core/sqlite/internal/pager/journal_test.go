package pager

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func writeTestDB(t *testing.T, path string, pageSize uint32, pages ...byte) {
	t.Helper()
	buf := make([]byte, int(pageSize)*len(pages))
	for i, fill := range pages {
		for j := 0; j < int(pageSize); j++ {
			buf[i*int(pageSize)+j] = fill
		}
	}
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestJournalRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test-journal")

	frames := []JournalFrame{
		{Pgno: 1, Data: bytes.Repeat([]byte{0x01}, 512)},
		{Pgno: 3, Data: bytes.Repeat([]byte{0x03}, 512)},
	}
	if err := WriteJournal(path, 512, 3, frames); err != nil {
		t.Fatalf("WriteJournal: %v", err)
	}

	pageSize, origCount, got, err := ReadJournal(path)
	if err != nil {
		t.Fatalf("ReadJournal: %v", err)
	}
	if pageSize != 512 || origCount != 3 {
		t.Fatalf("header = (%d, %d), want (512, 3)", pageSize, origCount)
	}
	if len(got) != 2 {
		t.Fatalf("frames = %d, want 2", len(got))
	}
	for i := range frames {
		if got[i].Pgno != frames[i].Pgno || !bytes.Equal(got[i].Data, frames[i].Data) {
			t.Fatalf("frame %d mismatch", i)
		}
	}
}

func TestJournalBadMagic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad-journal")
	if err := os.WriteFile(path, []byte("NOT_A_JOURNAL_AT_ALL"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, _, _, err := ReadJournal(path); err == nil {
		t.Fatal("expected corruption error for bad magic")
	}
}

func TestRecoverJournalRestoresAndTruncates(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")
	jPath := dbPath + "-journal"

	// Pre-transaction state: 2 pages of 0x01, 0x02.
	writeTestDB(t, dbPath, 512, 0x01, 0x02)

	// Journal captures the originals, as a transaction would before applying.
	frames := []JournalFrame{
		{Pgno: 1, Data: bytes.Repeat([]byte{0x01}, 512)},
		{Pgno: 2, Data: bytes.Repeat([]byte{0x02}, 512)},
	}
	if err := WriteJournal(jPath, 512, 2, frames); err != nil {
		t.Fatal(err)
	}

	// Simulate a crash mid-apply: page 1 overwritten, page 3 appended.
	writeTestDB(t, dbPath, 512, 0xFF, 0x02, 0xEE)

	recovered, err := RecoverJournal(dbPath, jPath)
	if err != nil {
		t.Fatalf("RecoverJournal: %v", err)
	}
	if !recovered {
		t.Fatal("expected recovery to run")
	}

	data, err := os.ReadFile(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) != 1024 {
		t.Fatalf("file length after recovery = %d, want 1024 (truncated to 2 pages)", len(data))
	}
	if data[0] != 0x01 || data[512] != 0x02 {
		t.Fatalf("pages not restored: got %#x, %#x", data[0], data[512])
	}

	if _, err := os.Stat(jPath); !os.IsNotExist(err) {
		t.Fatal("journal not removed after recovery")
	}

	// No journal left: recovery is a no-op.
	recovered, err = RecoverJournal(dbPath, jPath)
	if err != nil {
		t.Fatal(err)
	}
	if recovered {
		t.Fatal("recovery without journal should be a no-op")
	}
}

func TestJournalTruncatedTrailingFrameDropped(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "partial-journal")

	frames := []JournalFrame{{Pgno: 1, Data: bytes.Repeat([]byte{0x01}, 512)}}
	if err := WriteJournal(path, 512, 1, frames); err != nil {
		t.Fatal(err)
	}
	// Append half a frame, as a crash mid-journal-write would leave.
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.Write(make([]byte, 200)); err != nil {
		t.Fatal(err)
	}
	f.Close()

	_, _, got, err := ReadJournal(path)
	if err != nil {
		t.Fatalf("ReadJournal: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("frames = %d, want 1 (truncated tail dropped)", len(got))
	}
}
