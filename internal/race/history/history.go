// Package history implements the per-byte access-history shadow slot: the
// one piece of mutable state the check driver (internal/race/driver)
// reads and mutates on every tracked memory access.
//
// Everything in this package is deliberately dumb. The slot holds a lock,
// a state word, and a lazily-allocated list of records; it performs no
// synchronization of its own beyond exposing the lock, and no policy
// decisions beyond the bookkeeping needed to keep the state word
// consistent with the record list. All of the interesting logic — when to
// upgrade, when to clear, when a race has occurred — lives in the driver.
package history

import (
	"github.com/kolkov/romp/internal/race/label"
	"github.com/kolkov/romp/internal/race/lockset"
	"github.com/kolkov/romp/internal/race/pfq"
)

// Flag is a bit in a slot's state word that is not part of the history
// state machine.
type Flag uint64

const (
	// DataRaceFound marks a slot on which a race has already been
	// reported. Once set, records are cleared and stay empty until the
	// slot is recycled.
	DataRaceFound Flag = 1 << 63

	// MemoryRecycled marks a slot whose backing memory was reused by a
	// new task after the previous owning task exited. The next access
	// clears flags and records and starts over.
	MemoryRecycled Flag = 1 << 62
)

// stateMask covers the low two bits of the state word, disjoint from the
// flag bits above so SetState and SetFlag never step on each other.
const stateMask = 0x3

// State is the abstract history-state label threaded through
// manageAccessRecord. The core only knows about Empty, SingleRead, and
// SingleWrite; any other value is an opaque token returned by the
// external policy and round-tripped unchanged.
type State uint64

const (
	// Empty is the initial state: no records.
	Empty State = iota
	// SingleRead is the state immediately after the first record
	// inserted was a read.
	SingleRead
	// SingleWrite is the state immediately after the first record
	// inserted was a write.
	SingleWrite
)

// Record is an immutable snapshot of one past access to a byte.
type Record struct {
	IsWrite     bool
	Label       label.Label
	LockSet     lockset.LockSet
	Task        label.TaskID
	InstnAddr   uintptr
	HWLock      bool
}

// NewRecord builds a Record from the inputs the driver has on hand for the
// access currently under consideration.
func NewRecord(isWrite bool, lbl label.Label, ls lockset.LockSet, task label.TaskID, instnAddr uintptr, hwLock bool) Record {
	return Record{
		IsWrite:   isWrite,
		Label:     lbl,
		LockSet:   ls,
		Task:      task,
		InstnAddr: instnAddr,
		HWLock:    hwLock,
	}
}

// Counters mirrors the §4.5 classification taxonomy, scoped to one slot.
// The driver bumps exactly one field per completed call, alongside the
// matching process-global counter.
type Counters struct {
	NoModRWCon  uint64
	NoModRRCon  uint64
	NoModNoCon  uint64
	ModRWConUS  uint64
	ModRWConUF  uint64
	ModRRConUS  uint64
	ModRRConUF  uint64
	ModNoConUS  uint64
	ModNoConUF  uint64
}

// AccessHistory is the shadow state for a single tracked byte. The zero
// value is a valid, empty, never-yet-touched slot.
type AccessHistory struct {
	lock    pfq.Lock
	state   uint64 // flags in the high bits, State in the low two
	records []Record
	NumAccess uint64
	Counters  Counters
}

// Lock returns the slot's PFQ reader/writer lock. The driver is
// responsible for acquiring and releasing it around every operation below.
func (h *AccessHistory) Lock() *pfq.Lock {
	return &h.lock
}

// PeekRecords returns the current record slice without allocating one if
// absent. A nil return means "no records yet" and is distinct from a
// non-nil empty slice (which means "records existed and were cleared").
// Both are treated as empty by the driver, but only a non-nil slice may be
// appended to directly.
func (h *AccessHistory) PeekRecords() []Record {
	return h.records
}

// GetRecords force-allocates the record slice if absent. Callable only
// while the writer lock is held (I1).
func (h *AccessHistory) GetRecords() []Record {
	if h.records == nil {
		h.records = make([]Record, 0, 4)
	}
	return h.records
}

// SetRecords replaces the slot's record slice wholesale. Callable only
// while the writer lock is held.
func (h *AccessHistory) SetRecords(records []Record) {
	h.records = records
}

// ClearRecords empties the record slice without discarding the backing
// array, matching std::vector::clear's semantics in the slot this package
// is modeled on.
func (h *AccessHistory) ClearRecords() {
	if h.records != nil {
		h.records = h.records[:0]
	}
}

// SetFlag sets one or more bits of the non-state portion of the state word.
func (h *AccessHistory) SetFlag(flag Flag) {
	h.state |= uint64(flag)
}

// ClearFlag clears one flag, leaving the state label and other flags
// untouched.
func (h *AccessHistory) ClearFlag(flag Flag) {
	h.state &^= uint64(flag)
}

// ClearFlags clears both defined flags.
func (h *AccessHistory) ClearFlags() {
	h.state &^= uint64(DataRaceFound | MemoryRecycled)
}

// DataRaceFound reports whether a race has already been reported on this
// slot (I3).
func (h *AccessHistory) DataRaceFound() bool {
	return h.state&uint64(DataRaceFound) != 0
}

// MemIsRecycled reports whether the slot's backing memory was reused since
// the last access seen here.
func (h *AccessHistory) MemIsRecycled() bool {
	return h.state&uint64(MemoryRecycled) != 0
}

// GetState returns the abstract history-state label (I4).
func (h *AccessHistory) GetState() State {
	return State(h.state & stateMask)
}

// SetState overwrites the abstract history-state label, leaving flag bits
// untouched.
func (h *AccessHistory) SetState(s State) {
	h.state = (h.state &^ stateMask) | (uint64(s) & stateMask)
}
