// Package ledger implements the BLAKE3 hash-chain that accompanies an arc
// database: an append-only list of signer entries whose integrity a local
// or HTTPS arc locator can verify before trusting the file's contents.
package ledger

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/zeebo/blake3"

	serrors "github.com/revred/sharc/core/errors"
)

// AgentID identifies a signer in the ledger's trust model. It is opaque to
// this package; callers typically mint UUIDs.
type AgentID string

// Entry is one link in the hash chain: an agent's attestation over the
// previous entry's hash plus whatever payload that attestation carries
// (e.g. "I observed this database at commit N").
type Entry struct {
	Seq      uint64  `json:"seq"`
	Agent    AgentID `json:"agent"`
	Payload  []byte  `json:"payload,omitempty"`
	PrevHash string  `json:"prev_hash"`
	Hash     string  `json:"hash"`
}

// Ledger is the ordered chain of entries for one arc database.
type Ledger struct {
	Entries []Entry `json:"entries"`
}

// HashBytes returns the lowercase hex BLAKE3-256 digest of data.
func HashBytes(data []byte) string {
	h := blake3.Sum256(data)
	return hex.EncodeToString(h[:])
}

// entryDigestInput is the canonical byte form hashed into Entry.Hash. It
// deliberately excludes Hash itself.
func entryDigestInput(e Entry) []byte {
	buf, _ := json.Marshal(struct {
		Seq      uint64  `json:"seq"`
		Agent    AgentID `json:"agent"`
		Payload  []byte  `json:"payload,omitempty"`
		PrevHash string  `json:"prev_hash"`
	}{e.Seq, e.Agent, e.Payload, e.PrevHash})
	return buf
}

// Append adds a new entry signed by agent, chaining off the ledger's
// current tip, and returns the extended ledger (l is not mutated).
func Append(l *Ledger, agent AgentID, payload []byte) Ledger {
	prev := "0"
	var seq uint64
	if l != nil && len(l.Entries) > 0 {
		tip := l.Entries[len(l.Entries)-1]
		prev = tip.Hash
		seq = tip.Seq + 1
	}
	e := Entry{Seq: seq, Agent: agent, Payload: payload, PrevHash: prev}
	e.Hash = HashBytes(entryDigestInput(e))

	out := Ledger{Entries: make([]Entry, 0, len(entriesOf(l))+1)}
	out.Entries = append(out.Entries, entriesOf(l)...)
	out.Entries = append(out.Entries, e)
	return out
}

func entriesOf(l *Ledger) []Entry {
	if l == nil {
		return nil
	}
	return l.Entries
}

// Verify walks the chain from genesis and confirms every entry's hash
// matches its (seq, agent, payload, prev_hash) tuple and that prev_hash
// links to the preceding entry's hash — the integrity check arc locators
// run before trusting a file.
func Verify(l Ledger) error {
	prev := "0"
	for i, e := range l.Entries {
		if e.PrevHash != prev {
			return serrors.NewUntrusted("ledger", fmt.Sprintf("entry %d: prev_hash mismatch", i))
		}
		want := HashBytes(entryDigestInput(Entry{Seq: e.Seq, Agent: e.Agent, Payload: e.Payload, PrevHash: e.PrevHash}))
		if want != e.Hash {
			return serrors.NewUntrusted("ledger", fmt.Sprintf("entry %d: hash mismatch", i))
		}
		prev = e.Hash
	}
	return nil
}

// Signers returns the distinct set of agent IDs that appear in the ledger,
// in first-seen order — the input to the arc locator's trust-anchor check.
func Signers(l Ledger) []AgentID {
	seen := make(map[AgentID]bool, len(l.Entries))
	out := make([]AgentID, 0, len(l.Entries))
	for _, e := range l.Entries {
		if !seen[e.Agent] {
			seen[e.Agent] = true
			out = append(out, e.Agent)
		}
	}
	return out
}

// Marshal/Unmarshal round-trip a ledger to/from the JSON blob stored
// alongside (or inside a reserved table of) the arc database.

func Marshal(l Ledger) ([]byte, error) { return json.Marshal(l) }

func Unmarshal(data []byte) (Ledger, error) {
	var l Ledger
	if len(data) == 0 {
		return l, nil
	}
	if err := json.Unmarshal(data, &l); err != nil {
		return Ledger{}, serrors.NewUntrusted("ledger", "malformed ledger JSON")
	}
	return l, nil
}
