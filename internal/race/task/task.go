// Package task models one OpenMP-style task's live state: its identity,
// its current position in the happens-before lattice, and the locks it
// currently holds. This is the concrete stand-in for what spec section 6
// calls "task/label/lockset handles" — the core driver never imports this
// package directly, but the public API (package race) uses it to build
// the opaque label and lockset values the driver consumes.
package task

import (
	"sync"

	"github.com/kolkov/romp/internal/race/label"
	"github.com/kolkov/romp/internal/race/lockset"
)

// DataSharing classifies how a piece of memory relates to the task
// currently accessing it, mirroring the external analyzeDataSharing
// oracle's result alphabet.
type DataSharing int

const (
	// Shared memory is visible to more than one task and must go through
	// race analysis.
	Shared DataSharing = iota
	// ThreadPrivateBelowExit is stack memory local to the executing
	// thread below the current task's exit frame; races on it are
	// impossible by construction.
	ThreadPrivateBelowExit
	// StaticThreadPrivate is memory declared thread-private for the
	// lifetime of the thread (e.g. threadprivate globals); likewise
	// exempt from race analysis.
	StaticThreadPrivate
)

// Data is the per-task mutable record threaded through every access this
// task makes. A Task owns exactly one Data for its lifetime; forked child
// tasks get their own Data seeded from the parent's label.
type Data struct {
	mu      sync.Mutex
	id      label.TaskID
	current label.Label
	locks   lockset.LockSet

	// ExitFrame marks the stack address below which memory is considered
	// thread-private even after this task itself has exited, mirroring
	// the original runtime's exitFrame bookkeeping.
	ExitFrame uintptr

	// dupFilter records, per byte address touched this task phase,
	// whether the recorded access was a write. A write entry makes any
	// later access to the same address this phase a duplicate; a read
	// entry only makes a later read a duplicate, since a later write
	// still needs checking.
	dupFilter map[uintptr]bool
}

// New allocates task state for a freshly created task.
func New() *Data {
	id := label.NextTaskID()
	return &Data{
		id:      id,
		current: label.New(id),
		locks:   lockset.Empty,
	}
}

// Fork derives a child task's initial state from the parent. The child
// gets a fresh TaskID and a label that happens-after the parent's current
// label; it inherits no locks, matching OpenMP's rule that a task does
// not inherit its creator's held locks.
func (d *Data) Fork() *Data {
	d.mu.Lock()
	parentLabel := d.current
	d.mu.Unlock()

	childID := label.NextTaskID()
	return &Data{
		id:      childID,
		current: label.New(childID).Join(parentLabel.Tick()),
		locks:   lockset.Empty,
	}
}

// Join absorbs other's label into this task's current label, modeling a
// taskwait or barrier synchronization point.
func (d *Data) Join(other *Data) {
	other.mu.Lock()
	otherLabel := other.current
	other.mu.Unlock()

	d.mu.Lock()
	d.current = d.current.Join(otherLabel)
	d.mu.Unlock()
}

// Tick advances this task's own label, used after any synchronization
// event that must be distinguishable from what came before it.
func (d *Data) Tick() {
	d.mu.Lock()
	d.current = d.current.Tick()
	d.mu.Unlock()
}

// Label returns a snapshot of the task's current label, safe to embed in
// a Record.
func (d *Data) Label() label.Label {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current.Snapshot()
}

// ID returns the task's identifier.
func (d *Data) ID() label.TaskID {
	return d.id
}

// LockSet returns a snapshot of the task's currently held locks.
func (d *Data) LockSet() lockset.LockSet {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.locks
}

// AcquireLock records that this task now holds id.
func (d *Data) AcquireLock(id lockset.LockID) {
	d.mu.Lock()
	d.locks = d.locks.Add(id)
	d.mu.Unlock()
}

// ReleaseLock records that this task no longer holds id.
func (d *Data) ReleaseLock(id lockset.LockID) {
	d.mu.Lock()
	d.locks = d.locks.Remove(id)
	d.mu.Unlock()
}

// IsDupAccess reports whether (addr, isWrite) is a duplicate of an access
// already recorded this task phase, and records the access if not. A
// prior write to addr makes any later access a duplicate; a prior read
// only makes a later read a duplicate, since a write still needs full
// race analysis.
func (d *Data) IsDupAccess(addr uintptr, isWrite bool) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	prevWrite, seen := d.dupFilter[addr]
	if !seen {
		if d.dupFilter == nil {
			d.dupFilter = make(map[uintptr]bool)
		}
		d.dupFilter[addr] = isWrite
		return false
	}
	if prevWrite {
		return true
	}
	if !isWrite {
		return true
	}
	d.dupFilter[addr] = true
	return false
}

// ResetDupFilter clears the duplicate-access filter, marking the start of
// a new task phase (e.g. after a taskwait).
func (d *Data) ResetDupFilter() {
	d.mu.Lock()
	d.dupFilter = nil
	d.mu.Unlock()
}
