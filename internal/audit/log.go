// Package audit implements the kernel's hash-chained, bounded,
// append-only event record.
package audit

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"crypto/sha256"

	"github.com/Michiganman2353/ESTA-Logic/internal/config"
	"github.com/Michiganman2353/ESTA-Logic/pkg/kerrors"
	"github.com/Michiganman2353/ESTA-Logic/pkg/redact"
)

// genesisHash anchors the chain before any entry exists.
var genesisHash = sha256.Sum256([]byte("ESTA-KERNEL-GENESIS"))

// Entry is an immutable, independently cloneable audit record.
type Entry struct {
	Sequence  uint64
	Timestamp int64 // ms since epoch
	Event     Event
	Source    string
	PrevHash  string // hex
	Hash      string // hex
}

// Log is the append-only, bounded, hash-chained audit record. Its ring
// and sequence counter are exclusively owned by the Log itself; every
// other component appends through Append and never mutates an Entry in
// place.
type Log struct {
	mu         sync.RWMutex
	entries    []Entry
	maxEntries int
	sequence   uint64
	lastHash   [32]byte
	verbose    bool
}

// New constructs an empty Log per opts.
func New(opts config.AuditOptions) *Log {
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = 1
	}
	return &Log{
		entries:    make([]Entry, 0, opts.MaxEntries),
		maxEntries: opts.MaxEntries,
		lastHash:   genesisHash,
		verbose:    opts.Verbose,
	}
}

// Append records event attributed to source, chaining it to the prior
// entry's hash, and returns the newly created entry.
func (l *Log) Append(event Event, source string) Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.sequence++
	now := time.Now().UnixMilli()
	prevHash := l.lastHash

	canonical, err := json.Marshal(event)
	if err != nil {
		// Marshaling our own closed event vocabulary cannot fail; if it
		// somehow does, fall back to the type name so the chain still
		// advances deterministically.
		canonical = []byte(event.Kind)
	}

	hash := computeHash(l.sequence, now, canonical, []byte(source), prevHash[:])

	entry := Entry{
		Sequence:  l.sequence,
		Timestamp: now,
		Event:     event,
		Source:    source,
		PrevHash:  hex.EncodeToString(prevHash[:]),
		Hash:      hex.EncodeToString(hash[:]),
	}

	if len(l.entries) >= l.maxEntries {
		l.entries = l.entries[1:]
	}
	l.entries = append(l.entries, entry)
	l.lastHash = hash

	return entry
}

// AppendCustom appends a Custom event, redacting its message text before
// it is stored.
func (l *Log) AppendCustom(category, message, source string) Entry {
	return l.Append(Event{Kind: KindCustom, Custom: &Custom{
		Category: category,
		Message:  redact.String(message),
	}}, source)
}

func computeHash(sequence uint64, timestampMs int64, canonicalEvent, source, prevHash []byte) [32]byte {
	var seqBuf, tsBuf [8]byte
	binary.LittleEndian.PutUint64(seqBuf[:], sequence)
	binary.LittleEndian.PutUint64(tsBuf[:], uint64(timestampMs))

	h := sha256.New()
	h.Write(seqBuf[:])
	h.Write(tsBuf[:])
	h.Write(canonicalEvent)
	h.Write(source)
	h.Write(prevHash)

	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// VerificationResult is the outcome of VerifyChain.
type VerificationResult struct {
	Valid        bool
	FirstInvalid uint64 // sequence of the first bad entry; 0 if Valid
}

// VerifyChain recomputes every entry's hash and checks continuity against
// its predecessor. For a log that has never been trimmed, the first
// entry's PrevHash must equal the genesis hash; for a trimmed log, the
// oldest in-memory entry's PrevHash is trusted as the anchor, per the
// documented head-drop semantics.
func (l *Log) VerifyChain() VerificationResult {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var prevHash string
	for i, e := range l.entries {
		canonical, err := json.Marshal(e.Event)
		if err != nil {
			canonical = []byte(e.Event.Kind)
		}
		prevRaw, err := hex.DecodeString(e.PrevHash)
		if err != nil {
			return VerificationResult{Valid: false, FirstInvalid: e.Sequence}
		}
		want := computeHash(e.Sequence, e.Timestamp, canonical, []byte(e.Source), prevRaw)
		if hex.EncodeToString(want[:]) != e.Hash {
			return VerificationResult{Valid: false, FirstInvalid: e.Sequence}
		}
		if i == 0 {
			if e.Sequence == 1 && e.PrevHash != hex.EncodeToString(genesisHash[:]) {
				return VerificationResult{Valid: false, FirstInvalid: e.Sequence}
			}
			prevHash = e.Hash
			continue
		}
		if e.PrevHash != prevHash {
			return VerificationResult{Valid: false, FirstInvalid: e.Sequence}
		}
		prevHash = e.Hash
	}
	return VerificationResult{Valid: true}
}

// All returns an independent clone of every retained entry, oldest first.
func (l *Log) All() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return clone(l.entries)
}

// Query filters retained entries by the supplied criteria, all of which
// apply together (AND semantics). A zero-value field in Filter is
// treated as "no constraint" for that field.
type Filter struct {
	Limit         int    // 0 means unlimited
	Source        string // "" means any source
	AfterSequence uint64 // 0 means no lower bound
	Since         time.Time
	Until         time.Time
}

// Query returns entries matching f, oldest first, truncated to f.Limit
// most recent matches if set.
func (l *Log) Query(f Filter) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var matched []Entry
	for _, e := range l.entries {
		if f.Source != "" && e.Source != f.Source {
			continue
		}
		if e.Sequence <= f.AfterSequence {
			continue
		}
		if !f.Since.IsZero() && e.Timestamp < f.Since.UnixMilli() {
			continue
		}
		if !f.Until.IsZero() && e.Timestamp > f.Until.UnixMilli() {
			continue
		}
		matched = append(matched, e)
	}

	if f.Limit > 0 && len(matched) > f.Limit {
		matched = matched[len(matched)-f.Limit:]
	}
	return clone(matched)
}

// SequenceHighWaterMark returns the most recently assigned sequence
// number, or 0 if nothing has been appended yet.
func (l *Log) SequenceHighWaterMark() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.sequence
}

func clone(entries []Entry) []Entry {
	if entries == nil {
		return nil
	}
	out := make([]Entry, len(entries))
	copy(out, entries)
	return out
}

// AsError wraps a failed VerifyChain result as a ChainInvalid
// KernelError, returning nil for a valid result.
func (r VerificationResult) AsError() *kerrors.KernelError {
	if r.Valid {
		return nil
	}
	return kerrors.ChainInvalid(r.FirstInvalid)
}
