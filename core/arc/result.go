package arc

import (
	"github.com/revred/sharc/core/ledger"
	"github.com/revred/sharc/core/sqlite"
)

// Status classifies an arc open's outcome.
type Status int

const (
	// Available: the arc opened and passed every enabled check.
	Available Status = iota
	// Unreachable: the arc's bytes could not be obtained (missing file, HTTP
	// failure, malformed URI).
	Unreachable
	// Untrusted: the bytes were obtained but failed validation or trust
	// policy (bad magic, size cap, traversal escape, broken ledger, unknown
	// signer under a reject policy).
	Untrusted
	// UnsupportedAuthority: no locator is registered for the URI's authority.
	UnsupportedAuthority
)

func (s Status) String() string {
	switch s {
	case Available:
		return "available"
	case Unreachable:
		return "unreachable"
	case Untrusted:
		return "untrusted"
	case UnsupportedAuthority:
		return "unsupported authority"
	default:
		return "unknown"
	}
}

// OpenResult is the sum type every locator returns. Exactly one of Handle
// (Available) or Message (everything else) is meaningful; Warnings may
// accompany an Available result (e.g. unknown signers under WarnUnknown).
type OpenResult struct {
	Status   Status
	Handle   *Handle
	Message  string
	Warnings []string
}

func unreachable(msg string) OpenResult { return OpenResult{Status: Unreachable, Message: msg} }
func untrusted(msg string) OpenResult   { return OpenResult{Status: Untrusted, Message: msg} }

// Handle bundles an opened arc database with its ledger and the registry of
// agents seen in it. The handle owns the underlying database; Close releases
// it.
type Handle struct {
	URI    URI
	DB     *sqlite.Database
	Ledger ledger.Ledger
	Agents []ledger.AgentID
}

// Close releases the underlying database.
func (h *Handle) Close() error {
	if h.DB == nil {
		return nil
	}
	return h.DB.Close()
}

// UnknownSignerPolicy decides what an unrecognized ledger signer does to an
// open.
type UnknownSignerPolicy int

const (
	// WarnUnknown attaches a warning per unknown signer; the arc stays
	// Available.
	WarnUnknown UnknownSignerPolicy = iota
	// AcceptAll skips the trust-anchor check entirely.
	AcceptAll
	// RejectUnknown turns any unknown signer into an Untrusted result.
	RejectUnknown
)

// DefaultMaxFileSize caps arc files at 100 MiB unless overridden.
const DefaultMaxFileSize = 100 * 1024 * 1024

// Options configures locators. The zero value means: 100 MiB cap, integrity
// validation on, no trust anchors, warn on unknown signers, no base
// directory fence.
type Options struct {
	// MaxFileSizeBytes caps an arc's size; 0 selects DefaultMaxFileSize.
	MaxFileSizeBytes int64
	// SkipValidation disables the ledger hash-chain check after open
	// (validate_on_open defaults to true, hence the inverted name).
	SkipValidation bool
	// TrustAnchors is the set of expected signer identities; nil means no
	// anchors are configured and every signer is unknown.
	TrustAnchors map[ledger.AgentID]bool
	// UnknownSignerPolicy gates signers outside TrustAnchors.
	UnknownSignerPolicy UnknownSignerPolicy
	// BaseDirectory roots relative local paths and fences absolute ones; ""
	// disables the fence.
	BaseDirectory string
}

func (o Options) maxSize() int64 {
	if o.MaxFileSizeBytes <= 0 {
		return DefaultMaxFileSize
	}
	return o.MaxFileSizeBytes
}
