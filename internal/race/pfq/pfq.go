// Package pfq implements a phase-fair, ticket-based reader/writer lock with
// an atomic reader-to-writer upgrade.
//
// The lock exists for exactly one reason: the check driver (see the driver
// package) inspects an access-history slot's records under a cheap reader
// hold, and only wants to pay for exclusivity when it has decided mutation
// is actually necessary. A plain sync.RWMutex cannot answer "did anything
// change while I was deciding?" — Upgrade can, by returning one of three
// outcomes that tell the caller exactly how much of its prior reading it is
// allowed to keep trusting.
//
// Phase fairness means a reader that arrives after a writer is already
// queued is batched behind that writer, and a writer does not starve
// readers beyond the wave of readers already in progress when it arrived.
// Writers are serialized among themselves by an internal MCS queue, which
// also backs the upgrade path so an upgrading reader joins the same FIFO
// writer queue as any other writer.
package pfq

import (
	"sync/atomic"

	"github.com/kolkov/romp/internal/race/mcs"
)

// Ticket is returned by ReadLock and must be presented to ReadUnlock or
// Upgrade. It identifies nothing beyond "a reader hold is outstanding";
// today's implementation does not need the value to validate matched
// lock/unlock pairs, but callers must still treat it as opaque.
type Ticket uint64

// UpgradeOutcome classifies how a reader-to-writer upgrade completed.
type UpgradeOutcome int

const (
	// UpgradeAtomic means the upgrade flipped the lock state from
	// "one reader, this one" directly to "writer held" with no other
	// reader or writer observing the lock in between. Anything the caller
	// read under its reader hold remains valid.
	UpgradeAtomic UpgradeOutcome = iota

	// UpgradeNonAtomic means the caller's reader hold had to be released
	// and re-queued because other readers were present at the moment of
	// upgrade. Another writer may have run in the interim; the caller
	// must discard any reads that are not covariant with the slot's
	// current state.
	UpgradeNonAtomic

	// UpgradeBlocked means the caller was the sole reader at the moment
	// of upgrade, but either a writer was already queued or holding the
	// lock, so the caller had to wait its turn in the writer queue, or
	// another reader joined before the writer queue was claimed and the
	// caller had to wait for it to drain (rrContend is then set). As with
	// UpgradeNonAtomic, prior reads must be treated as stale.
	UpgradeBlocked
)

// String renders the outcome for logs and test failure messages.
func (o UpgradeOutcome) String() string {
	switch o {
	case UpgradeAtomic:
		return "atomic"
	case UpgradeNonAtomic:
		return "non-atomic"
	case UpgradeBlocked:
		return "blocked"
	default:
		return "unknown"
	}
}

// Restart reports whether the driver must discard its traversal state and
// re-read the slot from the beginning after this outcome.
func (o UpgradeOutcome) Restart() bool {
	return o != UpgradeAtomic
}

// Lock is a phase-fair reader/writer lock with upgrade support.
//
// The zero value is an unlocked Lock, ready to use.
type Lock struct {
	// readers is the count of currently outstanding reader holds.
	readers atomic.Int64

	// writerWaiting signals to arriving readers that a writer wants the
	// lock, so they batch behind it instead of prolonging the read phase
	// indefinitely. It is advisory for fairness, not for correctness:
	// writerHeld is what actually excludes readers.
	writerWaiting atomic.Bool

	// writerHeld is true for the duration of an exclusive critical
	// section. ReadLock always re-checks this after incrementing readers
	// so a racing writer can never be missed.
	writerHeld atomic.Bool

	// ticketCounter hands out monotonically increasing reader tickets.
	ticketCounter atomic.Uint64

	// writerQueue serializes writers (including upgrading readers) in
	// FIFO order, exactly like any other MCS critical section.
	writerQueue mcs.Lock
}

// ReadLock acquires the shared lock. It returns a ticket to present at
// ReadUnlock or Upgrade, and whether a writer was already waiting or
// holding the lock at the moment this call started waiting.
func (l *Lock) ReadLock() (Ticket, bool) {
	ticket := Ticket(l.ticketCounter.Add(1))
	contendedWithWriter := l.writerWaiting.Load() || l.writerHeld.Load()

	for {
		// Phase fairness: do not join the read phase while a writer is
		// queued or active; batch behind it instead.
		if l.writerWaiting.Load() || l.writerHeld.Load() {
			continue
		}
		l.readers.Add(1)
		if !l.writerHeld.Load() {
			break
		}
		// A writer slipped in between our check and our increment.
		// Back off and retry rather than holding a reader slot
		// concurrently with a writer.
		l.readers.Add(-1)
	}

	return ticket, contendedWithWriter
}

// ReadUnlock releases a single shared hold acquired by ReadLock.
func (l *Lock) ReadUnlock(_ Ticket) {
	l.readers.Add(-1)
}

// WriteLock acquires the exclusive lock, serializing with other writers via
// node's place in the internal MCS queue and waiting for all active readers
// to drain.
func (l *Lock) WriteLock(node *mcs.Node) {
	l.writerQueue.Acquire(node)
	l.writerWaiting.Store(true)
	for l.readers.Load() > 0 {
	}
	l.writerHeld.Store(true)
	l.writerWaiting.Store(false)
}

// WriteUnlock releases the exclusive lock acquired by WriteLock or by a
// completed Upgrade.
func (l *Lock) WriteUnlock(node *mcs.Node) {
	l.writerHeld.Store(false)
	l.writerQueue.Release(node)
}

// Upgrade attempts to convert the caller's held reader lock (identified by
// ticket) into the writer lock. rrContend is set to true whenever the
// upgrade observed contention from other readers, as opposed to contention
// from a writer.
//
// Atomic upgrade requires both: the reader count reaches exactly one (this
// call is the only remaining shared holder) and the writer queue is
// uncontended at the instant this call tries to join it. Either condition
// failing forces the caller to release its share and queue normally, which
// is observable to the caller as UpgradeNonAtomic or UpgradeBlocked.
//
// Claiming the writer queue uncontended is necessary but not sufficient: a
// reader already past its own writerWaiting/writerHeld check in ReadLock can
// still complete readers.Add(1) after we observe readers == 1, so the
// reader count is re-checked once more after we hold the writer queue slot,
// the same way WriteLock drains readers after announcing intent, before the
// outcome is allowed to be reported as Atomic.
func (l *Lock) Upgrade(node *mcs.Node, _ Ticket, rrContend *bool) UpgradeOutcome {
	*rrContend = false

	if l.readers.CompareAndSwap(1, 0) {
		// We are provably the sole remaining reader. Signal our intent
		// so no new reader joins while we try to claim the writer queue.
		l.writerWaiting.Store(true)
		if l.writerQueue.TryAcquire(node) {
			// Claiming the writer queue is not enough on its own: a
			// reader that read writerWaiting/writerHeld as false before
			// we set them may still complete its own readers.Add(1) and
			// observe writerHeld as false, joining the read side after
			// we already believe we are the sole holder. Re-verify the
			// reader count is still drained now that writerWaiting is
			// visible to such a straggler; if one slipped in, we cannot
			// claim atomicity and must fall back to the blocked path
			// while still holding the writer queue slot we just took.
			if l.readers.Load() == 0 {
				l.writerHeld.Store(true)
				l.writerWaiting.Store(false)
				return UpgradeAtomic
			}
			*rrContend = true
			for l.readers.Load() > 0 {
			}
			l.writerHeld.Store(true)
			l.writerWaiting.Store(false)
			return UpgradeBlocked
		}
		// Another writer already holds or precedes us in the queue; our
		// reader-side view may be stale by the time we are granted the
		// writer lock.
		l.writerQueue.Acquire(node)
		for l.readers.Load() > 0 {
		}
		l.writerHeld.Store(true)
		l.writerWaiting.Store(false)
		return UpgradeBlocked
	}

	// Other readers are concurrently holding the lock. Release our share
	// and queue for the writer lock like any other writer would.
	*rrContend = true
	l.readers.Add(-1)
	l.WriteLock(node)
	return UpgradeNonAtomic
}
