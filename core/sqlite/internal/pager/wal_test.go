package pager

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/revred/sharc/pagesource"
)

func TestWalWriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.db-wal")

	w, err := NewWalWriter(path, 512)
	if err != nil {
		t.Fatalf("NewWalWriter: %v", err)
	}
	p1 := bytes.Repeat([]byte{0x11}, 512)
	p2 := bytes.Repeat([]byte{0x22}, 512)
	if err := w.AppendFrame(1, 0, p1); err != nil {
		t.Fatal(err)
	}
	if err := w.AppendFrame(2, 2, p2); err != nil {
		t.Fatal(err)
	}
	if err := w.Sync(); err != nil {
		t.Fatal(err)
	}
	w.Close()

	snap, err := ReadWal(path, 512)
	if err != nil {
		t.Fatalf("ReadWal: %v", err)
	}
	if snap.DBSize != 2 {
		t.Fatalf("DBSize = %d, want 2", snap.DBSize)
	}
	if len(snap.FrameMap) != 2 {
		t.Fatalf("FrameMap size = %d, want 2", len(snap.FrameMap))
	}
	off1 := snap.FrameMap[1]
	if !bytes.Equal(snap.Data[off1:off1+512], p1) {
		t.Fatal("page 1 bytes mismatch")
	}
}

func TestWalUncommittedTailDiscarded(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.db-wal")

	w, err := NewWalWriter(path, 512)
	if err != nil {
		t.Fatal(err)
	}
	committed := bytes.Repeat([]byte{0xAA}, 512)
	if err := w.AppendFrame(1, 1, committed); err != nil {
		t.Fatal(err)
	}
	// Frames after the last commit frame: must be ignored on read.
	if err := w.AppendFrame(2, 0, bytes.Repeat([]byte{0xBB}, 512)); err != nil {
		t.Fatal(err)
	}
	if err := w.AppendFrame(3, 0, bytes.Repeat([]byte{0xCC}, 512)); err != nil {
		t.Fatal(err)
	}
	w.Close()

	snap, err := ReadWal(path, 512)
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.FrameMap) != 1 {
		t.Fatalf("FrameMap size = %d, want 1 (uncommitted tail discarded)", len(snap.FrameMap))
	}
	if _, ok := snap.FrameMap[1]; !ok {
		t.Fatal("committed page 1 missing")
	}
}

func TestWalLaterCommitWins(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.db-wal")

	w, err := NewWalWriter(path, 512)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.AppendFrame(1, 1, bytes.Repeat([]byte{0x01}, 512)); err != nil {
		t.Fatal(err)
	}
	newer := bytes.Repeat([]byte{0x02}, 512)
	if err := w.AppendFrame(1, 1, newer); err != nil {
		t.Fatal(err)
	}
	w.Close()

	snap, err := ReadWal(path, 512)
	if err != nil {
		t.Fatal(err)
	}
	off := snap.FrameMap[1]
	if !bytes.Equal(snap.Data[off:off+512], newer) {
		t.Fatal("later committed version of page 1 did not win")
	}
}

func TestWalCorruptFrameStopsScan(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.db-wal")

	w, err := NewWalWriter(path, 512)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.AppendFrame(1, 1, bytes.Repeat([]byte{0x01}, 512)); err != nil {
		t.Fatal(err)
	}
	if err := w.AppendFrame(2, 2, bytes.Repeat([]byte{0x02}, 512)); err != nil {
		t.Fatal(err)
	}
	w.Close()

	// Flip a byte inside the second frame's page data.
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	secondFrame := WalHeaderSize + (WalFrameHeaderSize + 512) + WalFrameHeaderSize + 10
	data[secondFrame] ^= 0xFF
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	snap, err := ReadWal(path, 512)
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.FrameMap) != 1 {
		t.Fatalf("FrameMap size = %d, want 1 (scan stops at corrupt frame)", len(snap.FrameMap))
	}
	if snap.DBSize != 1 {
		t.Fatalf("DBSize = %d, want 1", snap.DBSize)
	}
}

func TestWalMissingFileEmptySnapshot(t *testing.T) {
	snap, err := ReadWal(filepath.Join(t.TempDir(), "nope-wal"), 512)
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.FrameMap) != 0 || snap.DBSize != 0 {
		t.Fatal("missing WAL should yield an empty snapshot")
	}
}

func TestCommitJournalAppliesAndCleansUp(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")
	jPath := dbPath + "-journal"
	writeTestDB(t, dbPath, 512, 0x01, 0x02)

	file, err := pagesource.OpenFilePageSource(dbPath, 512, false)
	if err != nil {
		t.Fatal(err)
	}
	defer file.Dispose()

	m := NewManager(file)
	buf, err := m.GetPageForWrite(2)
	if err != nil {
		t.Fatal(err)
	}
	buf[0] = 0xBE
	if _, _, err := m.AllocatePage(); err != nil {
		t.Fatal(err)
	}

	if err := CommitJournal(m, file, jPath); err != nil {
		t.Fatalf("CommitJournal: %v", err)
	}

	data, err := os.ReadFile(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) != 3*512 {
		t.Fatalf("file length = %d, want %d", len(data), 3*512)
	}
	if data[512] != 0xBE {
		t.Fatalf("page 2 not applied: got %#x", data[512])
	}
	if _, err := os.Stat(jPath); !os.IsNotExist(err) {
		t.Fatal("journal left behind after commit")
	}
}
