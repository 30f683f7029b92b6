// Package label implements the concrete vector-clock representation behind
// a task's position in the happens-before lattice.
//
// The check driver treats labels as opaque values: it imports this package
// only to name the Label and TaskID types, never looks inside them, and
// only ever compares them through an injected happens-before function (see
// internal/race/policy). This package exists
// to give that policy something concrete to compare, and to give callers
// (the public race package, instrumentation sites) a way to produce and
// advance labels as tasks fork, join, and synchronize.
//
// A Label pairs a task's own logical clock with a full vector clock
// snapshot joined in from every task it has synchronized with. The vector
// clock slot for a task is indexed by its TaskID; comparing two labels is
// the standard vector-clock partial order.
package label

import "sync/atomic"

// MaxTasks bounds the number of distinct task identifiers a single run can
// track. Chosen generously: a bit more than the default OS thread limit on
// most Linux configurations, since explicit tasks can vastly outnumber the
// worker threads that execute them.
const MaxTasks = 1 << 16

// TaskID identifies one task (initial, implicit, or explicit) for the
// lifetime of a run. IDs are never reused.
type TaskID uint32

// idCounter hands out monotonically increasing TaskIDs.
var idCounter atomic.Uint32

// NextTaskID allocates a fresh TaskID. Safe for concurrent use.
func NextTaskID() TaskID {
	return TaskID(idCounter.Add(1) - 1)
}

// Clock is a vector of per-task logical clocks, fixed-size to avoid
// allocation on the comparison hot path.
type Clock [MaxTasks]uint32

// Label is an immutable-by-convention snapshot of one task's position in
// the happens-before lattice at the moment it was taken. Callers must treat
// a Label handed to the check driver as frozen; advancing a task's own
// label produces a new value rather than mutating the one already
// recorded in a Record.
type Label struct {
	Task  TaskID
	Clock *Clock
}

// New returns the initial label for a freshly allocated task: its own
// clock slot at 1, every other slot at 0.
func New(task TaskID) Label {
	c := &Clock{}
	c[task] = 1
	return Label{Task: task, Clock: c}
}

// Snapshot returns an independent copy of l suitable for embedding in a
// Record; mutating the task's live label afterward does not affect it.
func (l Label) Snapshot() Label {
	c := &Clock{}
	*c = *l.Clock
	return Label{Task: l.Task, Clock: c}
}

// Tick advances l's own clock slot by one and returns the new label. Used
// on task creation and after synchronization points that must be
// distinguishable from what came before.
func (l Label) Tick() Label {
	next := l.Snapshot()
	next.Clock[l.Task]++
	return next
}

// Join returns a label whose clock is the point-wise maximum of l and
// other's clocks, attributed to l's task. Used when a task synchronizes
// with another (e.g. a taskwait or a barrier) and must absorb everything
// the other task happened-before.
func (l Label) Join(other Label) Label {
	next := l.Snapshot()
	for i := range next.Clock {
		if other.Clock[i] > next.Clock[i] {
			next.Clock[i] = other.Clock[i]
		}
	}
	return next
}

// HappensBefore reports whether l happens-before other: every entry of l's
// clock is less than or equal to the corresponding entry of other's.
// Identical clocks also report ordered (see below). diffIndex reports the lowest task index
// at which the two clocks differ, or -1 if they are identical; this is the
// value the reference happens-before oracle hands back to the driver as
// the second return of the external happensBefore contract.
func (l Label) HappensBefore(other Label) (ordered bool, diffIndex int) {
	diffIndex = -1
	ordered = true
	for i := range l.Clock {
		if l.Clock[i] > other.Clock[i] {
			ordered = false
		}
		if diffIndex == -1 && l.Clock[i] != other.Clock[i] {
			diffIndex = i
		}
	}
	if diffIndex == -1 {
		// Identical clocks: not strictly ordered, but not concurrent either.
		// The driver treats this the same as ordered, since there is
		// nothing for a race to disagree about.
		return true, -1
	}
	return ordered, diffIndex
}

// Concurrent reports whether neither label happens-before the other.
func (l Label) Concurrent(other Label) bool {
	aBeforeB, _ := l.HappensBefore(other)
	bBeforeA, _ := other.HappensBefore(l)
	return !aBeforeB && !bBeforeA
}
