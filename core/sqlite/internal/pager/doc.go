// Package pager implements the write path of the storage engine: the page
// manager that holds copy-on-write dirty buffers over a read-only page
// source, the rollback journal that saves pre-transaction page images, and
// the write-ahead log reader/writer with cumulative checksums and salts.
//
// Commit ordering is the pager's one hard invariant: dirty pages are first
// made durable in the journal (or WAL), then applied to the database file,
// and the header page — which carries the new page count — is written only
// during the apply step. Recovery restores journaled pages and truncates the
// file back to the recorded pre-transaction page count, so pages allocated
// by an interrupted transaction vanish without ever having been journaled.
package pager
