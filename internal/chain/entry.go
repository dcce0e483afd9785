// Package chain keeps a per-session, append-only SHA-256 hash chain over
// accepted feature snapshots.
package chain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// GenesisHash is the prev_hash of the first entry of every session.
const GenesisHash = "sha256:0000000000000000000000000000000000000000000000000000000000000000"

// ErrLocked is returned by appends to a session whose chain is broken.
var ErrLocked = errors.New("chain: session locked")

// Entry is one link of a session chain. All fields are plain strings and
// numbers so that json.Marshal is deterministic.
type Entry struct {
	Session   string          `json:"session"`
	Seq       int             `json:"seq"`
	PrevHash  string          `json:"prev_hash"`
	Hash      string          `json:"hash"`
	Salt      string          `json:"salt"`
	Timestamp string          `json:"ts"`
	Digest    string          `json:"digest"`
	Snapshot  json.RawMessage `json:"snapshot"`
}

// BreakError describes the first inconsistent entry of a chain.
type BreakError struct {
	Session string
	Seq     int
	Reason  string
}

func (e *BreakError) Error() string {
	return fmt.Sprintf("chain: session %s broken at seq %d: %s", e.Session, e.Seq, e.Reason)
}

// HashBytes returns "sha256:<hex>" of data.
func HashBytes(data []byte) string {
	h := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(h[:])
}

// ComputeHash binds an entry to its predecessor.
func ComputeHash(prevHash, digest, salt, timestamp string) string {
	return HashBytes([]byte(strings.Join([]string{prevHash, digest, salt, timestamp}, "\n")))
}

// VerifyEntries checks sequence numbers, predecessor links, snapshot
// digests and entry hashes. It returns nil or a *BreakError.
func VerifyEntries(session string, entries []Entry) error {
	prev := GenesisHash
	for i, e := range entries {
		brk := func(format string, args ...any) error {
			return &BreakError{Session: session, Seq: e.Seq, Reason: fmt.Sprintf(format, args...)}
		}
		if e.Session != session {
			return brk("entry belongs to session %q", e.Session)
		}
		if e.Seq != i+1 {
			return brk("sequence %d at position %d", e.Seq, i+1)
		}
		if e.PrevHash != prev {
			return brk("prev_hash %s, expected %s", e.PrevHash, prev)
		}
		if d := HashBytes(e.Snapshot); d != e.Digest {
			return brk("snapshot digest %s, stored %s", d, e.Digest)
		}
		if h := ComputeHash(e.PrevHash, e.Digest, e.Salt, e.Timestamp); h != e.Hash {
			return brk("hash %s, stored %s", h, e.Hash)
		}
		prev = e.Hash
	}
	return nil
}

// VerifyResult is the report form of a verification, as printed by the
// CLI and returned by tools.
type VerifyResult struct {
	Session string `json:"session"`
	Valid   bool   `json:"valid"`
	Entries int    `json:"entries"`
	Error   string `json:"error,omitempty"`
	Seq     int    `json:"seq,omitempty"`
}

// Result converts a VerifyEntries outcome into a VerifyResult.
func Result(session string, entries []Entry, err error) VerifyResult {
	r := VerifyResult{Session: session, Valid: err == nil, Entries: len(entries)}
	var brk *BreakError
	if errors.As(err, &brk) {
		r.Error = brk.Reason
		r.Seq = brk.Seq
	} else if err != nil {
		r.Error = err.Error()
	}
	return r
}
