package pager

import (
	"os"

	serrors "github.com/revred/sharc/core/errors"
	"github.com/revred/sharc/internal/logging"
	"github.com/revred/sharc/pagesource"
)

// CommitJournal makes m's dirty pages durable in rollback-journal mode:
//
//  1. save the pre-transaction image of every dirty page that existed in the
//     base file into the journal,
//  2. fsync the journal,
//  3. apply the dirty pages to the database file (the header page, carrying
//     the new page count, travels with them),
//  4. fsync the database file,
//  5. delete the journal.
//
// A crash after (2) replays cleanly on the next open; a crash before (2)
// leaves the file untouched. On any error the caller must Rollback: the
// database file is recovered from the journal on the next open.
func CommitJournal(m *Manager, file *pagesource.FilePageSource, journalPath string) error {
	dirty := m.DirtyPages()
	if len(dirty) == 0 {
		return nil
	}

	// Originals are read from the raw file, not through the manager's base
	// chain: a decrypting or caching layer must not leak into the journal,
	// which recovery will write back verbatim.
	var frames []JournalFrame
	for _, pgno := range dirty {
		if pgno > m.origCount || pgno > file.PageCount() {
			continue
		}
		orig := make([]byte, m.pageSize)
		if err := file.ReadPage(pgno, orig); err != nil {
			return err
		}
		frames = append(frames, JournalFrame{Pgno: pgno, Data: orig})
	}
	if err := WriteJournal(journalPath, m.pageSize, m.origCount, frames); err != nil {
		return err
	}

	for _, pgno := range dirty {
		if err := file.WritePage(pgno, m.DirtyPage(pgno)); err != nil {
			return err
		}
	}
	if err := file.Flush(); err != nil {
		return err
	}

	if err := os.Remove(journalPath); err != nil {
		return serrors.NewIO("remove journal", journalPath, err)
	}
	logging.TxnCommit(len(dirty), "journal")
	return nil
}

// CommitWal makes m's dirty pages durable in WAL mode: every dirty page is
// appended as a frame, the last one as the commit frame carrying the new
// total page count, and the WAL is fsynced. The database file itself is not
// touched; readers overlay the WAL until a checkpoint folds it in.
func CommitWal(m *Manager, w *WalWriter) error {
	dirty := m.DirtyPages()
	if len(dirty) == 0 {
		return nil
	}
	for i, pgno := range dirty {
		dbSize := uint32(0)
		if i == len(dirty)-1 {
			dbSize = m.PageCount()
		}
		if err := w.AppendFrame(pgno, dbSize, m.DirtyPage(pgno)); err != nil {
			return err
		}
	}
	if err := w.Sync(); err != nil {
		return err
	}
	logging.TxnCommit(len(dirty), "wal")
	return nil
}

// Checkpoint folds a WAL snapshot into the database file: the latest
// committed version of every page is written at its offset, the file is
// truncated/extended to the snapshot's declared size, fsynced, and the WAL
// file removed. Safe to re-run after a crash (idempotent until the WAL is
// gone).
func Checkpoint(snap *WalSnapshot, file *pagesource.FilePageSource, walPath string) error {
	if len(snap.FrameMap) == 0 {
		return nil
	}
	pageSize := file.PageSize()
	for pgno, off := range snap.FrameMap {
		if err := file.WritePage(pgno, snap.Data[off:off+int(pageSize)]); err != nil {
			return err
		}
	}
	if snap.DBSize != 0 && snap.DBSize < file.PageCount() {
		if err := file.Truncate(snap.DBSize); err != nil {
			return err
		}
	}
	if err := file.Flush(); err != nil {
		return err
	}
	if err := os.Remove(walPath); err != nil && !os.IsNotExist(err) {
		return serrors.NewIO("remove wal", walPath, err)
	}
	return nil
}
