package arc

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/revred/sharc/core/ledger"
	"github.com/revred/sharc/core/sqlite"
)

// sqliteMagic is the 16-byte file-format magic every arc must open with.
const sqliteMagic = "SQLite format 3\x00"

// ledgerSuffix names the sidecar file carrying an arc's ledger JSON.
const ledgerSuffix = ".ledger"

// LocalLocator opens arcs from the local filesystem (authority "local").
// Its validation pipeline — size cap, magic check, ledger integrity, trust
// anchors — is shared with the HTTPS locator, which funnels downloaded
// bytes through validateAndOpen.
type LocalLocator struct {
	opts Options
}

// NewLocalLocator creates a locator with the given options.
func NewLocalLocator(opts Options) *LocalLocator {
	return &LocalLocator{opts: opts}
}

// Open resolves the URI's path (relative to BaseDirectory when set),
// enforces the traversal fence, and runs the validation pipeline.
func (l *LocalLocator) Open(ctx context.Context, uri URI) OpenResult {
	path := filepath.FromSlash(uri.Path)
	if l.opts.BaseDirectory != "" && !filepath.IsAbs(path) {
		path = filepath.Join(l.opts.BaseDirectory, path)
	}

	if l.opts.BaseDirectory != "" {
		baseAbs, err := filepath.Abs(l.opts.BaseDirectory)
		if err != nil {
			return untrusted("cannot resolve base directory: " + err.Error())
		}
		pathAbs, err := filepath.Abs(path)
		if err != nil {
			return untrusted("cannot resolve arc path: " + err.Error())
		}
		if pathAbs != baseAbs && !strings.HasPrefix(pathAbs, baseAbs+string(filepath.Separator)) {
			return untrusted(fmt.Sprintf("path traversal outside base directory: %s escapes %s", uri.Path, l.opts.BaseDirectory))
		}
		path = pathAbs
	}

	info, err := os.Stat(path)
	if err != nil {
		return unreachable("arc file not found: " + path)
	}
	return l.validateAndOpen(uri, path, info.Size())
}

// validateAndOpen runs the shared pipeline over a file already on disk:
// size cap, magic bytes, database open, ledger hash-chain, trust anchors.
func (l *LocalLocator) validateAndOpen(uri URI, path string, size int64) OpenResult {
	if size > l.opts.maxSize() {
		return untrusted(fmt.Sprintf("arc size %s exceeds cap %s",
			humanize.Bytes(uint64(size)), humanize.Bytes(uint64(l.opts.maxSize()))))
	}

	f, err := os.Open(path)
	if err != nil {
		return unreachable("cannot open arc file: " + err.Error())
	}
	magic := make([]byte, len(sqliteMagic))
	_, err = f.ReadAt(magic, 0)
	f.Close()
	if err != nil || string(magic) != sqliteMagic {
		return untrusted("file is not an arc database (magic bytes mismatch)")
	}

	db, err := sqlite.Open(path, sqlite.ReadOnly())
	if err != nil {
		return untrusted("arc database failed to open: " + err.Error())
	}

	led, res := l.loadLedger(path)
	if res != nil {
		db.Close()
		return *res
	}

	handle := &Handle{URI: uri, DB: db, Ledger: led, Agents: ledger.Signers(led)}

	warnings, res := l.checkTrust(handle.Agents)
	if res != nil {
		db.Close()
		return *res
	}
	return OpenResult{Status: Available, Handle: handle, Warnings: warnings}
}

// loadLedger reads and (unless disabled) verifies the arc's sidecar ledger.
// A missing sidecar is an empty ledger, not a failure.
func (l *LocalLocator) loadLedger(path string) (ledger.Ledger, *OpenResult) {
	data, err := os.ReadFile(path + ledgerSuffix)
	if err != nil {
		if os.IsNotExist(err) {
			return ledger.Ledger{}, nil
		}
		res := unreachable("cannot read arc ledger: " + err.Error())
		return ledger.Ledger{}, &res
	}
	led, err := ledger.Unmarshal(data)
	if err != nil {
		res := untrusted("malformed arc ledger: " + err.Error())
		return ledger.Ledger{}, &res
	}
	if !l.opts.SkipValidation {
		if err := ledger.Verify(led); err != nil {
			res := untrusted("ledger hash chain broken: " + err.Error())
			return ledger.Ledger{}, &res
		}
	}
	return led, nil
}

// checkTrust applies the unknown-signer policy over the ledger's agent IDs.
func (l *LocalLocator) checkTrust(agents []ledger.AgentID) ([]string, *OpenResult) {
	if l.opts.UnknownSignerPolicy == AcceptAll {
		return nil, nil
	}
	var warnings []string
	for _, agent := range agents {
		if l.opts.TrustAnchors[agent] {
			continue
		}
		switch l.opts.UnknownSignerPolicy {
		case RejectUnknown:
			res := untrusted("unknown signer " + string(agent))
			return nil, &res
		case WarnUnknown:
			warnings = append(warnings, "unknown signer "+string(agent))
		}
	}
	return warnings, nil
}
