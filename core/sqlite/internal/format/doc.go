// Package format defines the SQLite file-format constants and the 100-byte
// database header: field offsets, page-type bytes, text encodings, and the
// Header struct with its parse/serialize/validate round trip. It is the
// foundational layer every other storage package builds on.
//
// # Database file header
//
// Every database file begins with a 100-byte header carrying the magic
// string ("SQLite format 3\x00"), the page size (a power of two between 512
// and 65536, where a stored value of 1 means 65536), format versions, the
// page count, schema cookie, text encoding, and freelist bookkeeping.
//
//	var hdr format.Header
//	if err := hdr.Parse(firstHundredBytes); err != nil {
//		return err
//	}
//	pageSize := hdr.GetPageSize()
//
// NewHeader produces a header for a fresh database; Serialize writes the
// exact 100-byte image back.
//
// # Page types
//
// B-tree pages come in four kinds, identified by the first byte of their
// page header:
//
//   - Interior index (0x02)
//   - Interior table (0x05)
//   - Leaf index (0x0a)
//   - Leaf table (0x0d)
//
// The per-page header layout (freeblock offset, cell count, cell-content
// start, fragmented-byte count, and the interior-only right-most child) is
// exposed through the Btree* offset constants.
//
// # Validation
//
// IsValidPageSize and Header.Validate gate every open: a header that fails
// them is surfaced as corruption before any page is interpreted.
//
// Reference: https://www.sqlite.org/fileformat.html
package format
