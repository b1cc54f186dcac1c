package pager

import (
	"encoding/binary"
	"os"

	serrors "github.com/revred/sharc/core/errors"
)

// Rollback journal layout: a 16-byte header (8-byte magic, big-endian page
// size, big-endian original page count) followed by frames of (4-byte
// big-endian page number, full original page bytes). Only pages that existed
// in the base file are saved; pages allocated by the transaction are undone
// by truncating back to the original page count on recovery.
const (
	JournalMagic      = "SHARC_RJ"
	journalHeaderSize = 16
)

// JournalFrame is one saved original page.
type JournalFrame struct {
	Pgno uint32
	Data []byte
}

// WriteJournal creates (truncating any stale journal at) path, writes the
// header and frames, and fsyncs before returning. After WriteJournal returns
// nil the transaction may start modifying the database file.
func WriteJournal(path string, pageSize, origPageCount uint32, frames []JournalFrame) error {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return serrors.NewIO("create journal", path, err)
	}
	defer f.Close()

	hdr := make([]byte, journalHeaderSize)
	copy(hdr, JournalMagic)
	binary.BigEndian.PutUint32(hdr[8:], pageSize)
	binary.BigEndian.PutUint32(hdr[12:], origPageCount)
	if _, err := f.Write(hdr); err != nil {
		return serrors.NewIO("write journal header", path, err)
	}

	var pgno [4]byte
	for _, fr := range frames {
		binary.BigEndian.PutUint32(pgno[:], fr.Pgno)
		if _, err := f.Write(pgno[:]); err != nil {
			return serrors.NewIO("write journal frame", path, err)
		}
		if _, err := f.Write(fr.Data[:pageSize]); err != nil {
			return serrors.NewIO("write journal frame", path, err)
		}
	}

	if err := f.Sync(); err != nil {
		return serrors.NewIO("fsync journal", path, err)
	}
	return nil
}

// ReadJournal parses the journal at path. A short or wrong-magic file yields
// a corruption error; a truncated trailing frame is dropped (the crash
// happened mid-journal-write, before the database file was touched, so the
// complete frames are still a faithful undo log).
func ReadJournal(path string) (pageSize, origPageCount uint32, frames []JournalFrame, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, 0, nil, serrors.NewIO("read journal", path, err)
	}
	if len(data) < journalHeaderSize || string(data[:8]) != JournalMagic {
		return 0, 0, nil, serrors.NewCorruption(0, "journal header malformed")
	}
	pageSize = binary.BigEndian.Uint32(data[8:12])
	origPageCount = binary.BigEndian.Uint32(data[12:16])
	if pageSize == 0 {
		return 0, 0, nil, serrors.NewCorruption(0, "journal page size zero")
	}

	frameSize := 4 + int(pageSize)
	for off := journalHeaderSize; off+frameSize <= len(data); off += frameSize {
		pgno := binary.BigEndian.Uint32(data[off : off+4])
		page := make([]byte, pageSize)
		copy(page, data[off+4:off+frameSize])
		frames = append(frames, JournalFrame{Pgno: pgno, Data: page})
	}
	return pageSize, origPageCount, frames, nil
}

// RecoverJournal applies a leftover journal to the database file at dbPath:
// every saved frame is written back at its page offset, the file is truncated
// to the recorded original page count, the file is fsynced, and only then is
// the journal deleted. Returns whether a recovery was performed.
func RecoverJournal(dbPath, journalPath string) (bool, error) {
	if _, err := os.Stat(journalPath); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, serrors.NewIO("stat journal", journalPath, err)
	}

	pageSize, origCount, frames, err := ReadJournal(journalPath)
	if err != nil {
		return false, err
	}

	f, err := os.OpenFile(dbPath, os.O_RDWR, 0o644)
	if err != nil {
		return false, serrors.NewIO("open database for recovery", dbPath, err)
	}
	defer f.Close()

	for _, fr := range frames {
		if fr.Pgno == 0 || fr.Pgno > origCount {
			continue
		}
		off := int64(fr.Pgno-1) * int64(pageSize)
		if _, err := f.WriteAt(fr.Data, off); err != nil {
			return false, serrors.NewIO("restore page", dbPath, err)
		}
	}
	if err := f.Truncate(int64(origCount) * int64(pageSize)); err != nil {
		return false, serrors.NewIO("truncate database", dbPath, err)
	}
	if err := f.Sync(); err != nil {
		return false, serrors.NewIO("fsync database", dbPath, err)
	}
	if err := os.Remove(journalPath); err != nil {
		return false, serrors.NewIO("remove journal", journalPath, err)
	}
	return true, nil
}
