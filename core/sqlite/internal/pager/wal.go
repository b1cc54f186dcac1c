package pager

import (
	"crypto/rand"
	"encoding/binary"
	"os"

	serrors "github.com/revred/sharc/core/errors"
)

// WAL layout constants. The header magic selects the checksum byte order:
// 0x377f0682 little-endian words, 0x377f0683 big-endian words. All other
// multi-byte fields are big-endian regardless of the magic.
const (
	WalMagicLE = 0x377f0682
	WalMagicBE = 0x377f0683

	WalFormatVersion = 3007000

	WalHeaderSize      = 32
	WalFrameHeaderSize = 24
)

// walChecksum folds data (whose length must be a multiple of 8) into the
// running checksum (s1, s2) using SQLite's cumulative pairwise sum:
//
//	s1 += x[i] + s2; s2 += x[i+1] + s1
func walChecksum(order binary.ByteOrder, s1, s2 uint32, data []byte) (uint32, uint32) {
	for i := 0; i+8 <= len(data); i += 8 {
		x0 := order.Uint32(data[i:])
		x1 := order.Uint32(data[i+4:])
		s1 += x0 + s2
		s2 += x1 + s1
	}
	return s1, s2
}

// WalWriter appends frames to a write-ahead log file, maintaining the
// cumulative checksum seeded by the header. One writer per WAL file;
// checkpointing resets the log by creating a fresh writer (new salts).
type WalWriter struct {
	f        *os.File
	path     string
	pageSize uint32
	order    binary.ByteOrder
	salt1    uint32
	salt2    uint32
	s1, s2   uint32
	frames   int
}

// NewWalWriter truncates (or creates) the WAL at path and writes a fresh
// header with random salts and little-endian checksums. The header checksum
// covers its first 24 bytes and seeds every frame checksum after it.
func NewWalWriter(path string, pageSize uint32) (*WalWriter, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, serrors.NewIO("create wal", path, err)
	}

	var saltBytes [8]byte
	if _, err := rand.Read(saltBytes[:]); err != nil {
		f.Close()
		return nil, serrors.NewIO("generate wal salts", path, err)
	}

	w := &WalWriter{
		f:        f,
		path:     path,
		pageSize: pageSize,
		order:    binary.LittleEndian,
		salt1:    binary.BigEndian.Uint32(saltBytes[0:4]),
		salt2:    binary.BigEndian.Uint32(saltBytes[4:8]),
	}

	hdr := make([]byte, WalHeaderSize)
	binary.BigEndian.PutUint32(hdr[0:], WalMagicLE)
	binary.BigEndian.PutUint32(hdr[4:], WalFormatVersion)
	binary.BigEndian.PutUint32(hdr[8:], pageSize)
	binary.BigEndian.PutUint32(hdr[12:], 0) // checkpoint sequence
	binary.BigEndian.PutUint32(hdr[16:], w.salt1)
	binary.BigEndian.PutUint32(hdr[20:], w.salt2)
	w.s1, w.s2 = walChecksum(w.order, 0, 0, hdr[:24])
	binary.BigEndian.PutUint32(hdr[24:], w.s1)
	binary.BigEndian.PutUint32(hdr[28:], w.s2)

	if _, err := f.Write(hdr); err != nil {
		f.Close()
		return nil, serrors.NewIO("write wal header", path, err)
	}
	return w, nil
}

// AppendFrame writes one frame carrying page. dbSizeAfterCommit is zero for
// ordinary frames; a nonzero value marks the commit frame and records the
// database's new total page count. The cumulative checksum covers the first
// 8 bytes of the frame header, then the page data.
func (w *WalWriter) AppendFrame(pgno, dbSizeAfterCommit uint32, page []byte) error {
	if uint32(len(page)) < w.pageSize {
		return serrors.NewRange("wal frame page length", int64(len(page)))
	}
	hdr := make([]byte, WalFrameHeaderSize)
	binary.BigEndian.PutUint32(hdr[0:], pgno)
	binary.BigEndian.PutUint32(hdr[4:], dbSizeAfterCommit)
	binary.BigEndian.PutUint32(hdr[8:], w.salt1)
	binary.BigEndian.PutUint32(hdr[12:], w.salt2)

	w.s1, w.s2 = walChecksum(w.order, w.s1, w.s2, hdr[:8])
	w.s1, w.s2 = walChecksum(w.order, w.s1, w.s2, page[:w.pageSize])
	binary.BigEndian.PutUint32(hdr[16:], w.s1)
	binary.BigEndian.PutUint32(hdr[20:], w.s2)

	if _, err := w.f.Write(hdr); err != nil {
		return serrors.NewIO("write wal frame", w.path, err)
	}
	if _, err := w.f.Write(page[:w.pageSize]); err != nil {
		return serrors.NewIO("write wal frame", w.path, err)
	}
	w.frames++
	return nil
}

// Sync fsyncs the WAL; a commit is durable once Sync returns after the
// commit frame.
func (w *WalWriter) Sync() error {
	if err := w.f.Sync(); err != nil {
		return serrors.NewIO("fsync wal", w.path, err)
	}
	return nil
}

// Close releases the file handle without deleting the log.
func (w *WalWriter) Close() error { return w.f.Close() }

// WalSnapshot is the result of reading a WAL: the latest committed frame
// offset per page, and the database size declared by the last commit frame.
// FrameMap offsets point at page data inside Data (frame headers skipped),
// ready for pagesource.NewWalPageSource.
type WalSnapshot struct {
	Data     []byte
	FrameMap map[uint32]int
	DBSize   uint32
}

// ReadWal validates and walks the WAL at path. Frames whose salts differ
// from the header's, or whose cumulative checksum does not match, end the
// scan: everything from the first invalid frame on is ignored. Frames after
// the last commit frame are uncommitted and likewise discarded. A missing
// file returns an empty snapshot.
func ReadWal(path string, pageSize uint32) (*WalSnapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &WalSnapshot{FrameMap: map[uint32]int{}}, nil
		}
		return nil, serrors.NewIO("read wal", path, err)
	}
	if len(data) < WalHeaderSize {
		return &WalSnapshot{FrameMap: map[uint32]int{}}, nil
	}

	magic := binary.BigEndian.Uint32(data[0:4])
	var order binary.ByteOrder
	switch magic {
	case WalMagicLE:
		order = binary.LittleEndian
	case WalMagicBE:
		order = binary.BigEndian
	default:
		return nil, serrors.NewCorruption(0, "wal magic invalid")
	}
	if binary.BigEndian.Uint32(data[8:12]) != pageSize {
		return nil, serrors.NewCorruption(0, "wal page size mismatch")
	}
	salt1 := binary.BigEndian.Uint32(data[16:20])
	salt2 := binary.BigEndian.Uint32(data[20:24])

	s1, s2 := walChecksum(order, 0, 0, data[:24])
	if s1 != binary.BigEndian.Uint32(data[24:28]) || s2 != binary.BigEndian.Uint32(data[28:32]) {
		return nil, serrors.NewCorruption(0, "wal header checksum mismatch")
	}

	snap := &WalSnapshot{Data: data, FrameMap: make(map[uint32]int)}
	pending := make(map[uint32]int)
	frameSize := WalFrameHeaderSize + int(pageSize)

	for off := WalHeaderSize; off+frameSize <= len(data); off += frameSize {
		hdr := data[off : off+WalFrameHeaderSize]
		if binary.BigEndian.Uint32(hdr[8:12]) != salt1 || binary.BigEndian.Uint32(hdr[12:16]) != salt2 {
			break
		}
		page := data[off+WalFrameHeaderSize : off+frameSize]
		s1, s2 = walChecksum(order, s1, s2, hdr[:8])
		s1, s2 = walChecksum(order, s1, s2, page)
		if s1 != binary.BigEndian.Uint32(hdr[16:20]) || s2 != binary.BigEndian.Uint32(hdr[20:24]) {
			break
		}

		pgno := binary.BigEndian.Uint32(hdr[0:4])
		pending[pgno] = off + WalFrameHeaderSize

		if dbSize := binary.BigEndian.Uint32(hdr[4:8]); dbSize != 0 {
			// Commit frame: promote pending frames. Later committed versions
			// of the same page overwrite earlier ones.
			for p, o := range pending {
				snap.FrameMap[p] = o
				delete(pending, p)
			}
			snap.DBSize = dbSize
		}
	}
	return snap, nil
}
