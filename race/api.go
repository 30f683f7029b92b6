package race

import (
	"os"
	"sync"

	"github.com/rs/zerolog"

	"github.com/kolkov/romp/internal/race/counters"
	"github.com/kolkov/romp/internal/race/driver"
	"github.com/kolkov/romp/internal/race/lockset"
	"github.com/kolkov/romp/internal/race/policy"
	"github.com/kolkov/romp/internal/race/report"
	"github.com/kolkov/romp/internal/race/shadow"
	"github.com/kolkov/romp/internal/race/task"
)

// Task is a handle to one fork-join task's detector-visible state. Callers
// never construct a Task directly; they get one from Detector.NewTask or
// Detector.Fork.
type Task struct {
	data *task.Data
}

// Access describes a single memory reference to be checked for races.
type Access struct {
	// Address is the byte address being read or written.
	Address uintptr
	// IsWrite is true for a store, false for a load.
	IsWrite bool
	// InstnAddr is the program counter of the instruction making the
	// access, used only for symbolizing reports; pass race.CallerPC() at
	// the call site that wraps a real memory reference.
	InstnAddr uintptr
	// HWLock is true when the access was performed under a hardware bus
	// lock (e.g. a LOCK-prefixed instruction or atomic intrinsic) and so
	// can never race with another HWLock access to the same byte.
	HWLock bool
	// Sharing overrides the default Shared classification, letting a
	// caller mark stack or threadprivate memory as exempt from checking.
	Sharing task.DataSharing
}

// Detector is one race-detection session: a shadow memory, the process-wide
// counters and seen-map the driver threads through every check, and the
// logger used for its lifecycle and summary output.
//
// A Detector is safe for concurrent use by many goroutines representing
// concurrent tasks, mirroring the teacher's process-wide detector singleton
// but avoiding package-level mutable state so more than one can coexist
// (useful for running the same binary's test suite against independent
// detector instances).
type Detector struct {
	shadow  *shadow.Memory
	global  *counters.Global
	seen    *driver.SeenMap
	reports *driver.ReportList
	drv     *driver.Driver

	log zerolog.Logger

	mu      sync.Mutex
	started bool
}

// New constructs a Detector with deferred reporting: races are queued and
// symbolized only when Fini is called. Use NewImmediate for a detector that
// reports races as they are discovered.
func New() *Detector {
	return newDetector(true, nil)
}

// NewImmediate constructs a Detector that invokes sink synchronously the
// moment a race is discovered, instead of batching reports for Fini.
func NewImmediate(sink func(histInstn, curInstn, byteAddr uintptr)) *Detector {
	return newDetector(false, sink)
}

func newDetector(deferred bool, sink driver.ReportFunc) *Detector {
	global := &counters.Global{}
	seen := driver.NewSeenMap()
	reports := &driver.ReportList{}

	drv := driver.New(global, seen, reports, policy.HappensBefore, policy.AnalyzeRace, policy.ManageAccessRecord)
	drv.Deferred = deferred
	drv.ReportSink = sink

	return &Detector{
		shadow:  shadow.New(),
		global:  global,
		seen:    seen,
		reports: reports,
		drv:     drv,
		log:     zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Str("component", "race").Logger(),
	}
}

// Init marks the detector's session as started and logs its configuration.
// Calling Check before Init is safe but Init gives callers a single place to
// observe process-lifetime start in logs.
func (d *Detector) Init() {
	d.mu.Lock()
	d.started = true
	d.mu.Unlock()
	d.log.Info().Bool("deferred", d.drv.Deferred).Msg("race detector initialized")
}

// Fini finalizes the session: it symbolizes any deferred race reports,
// logs a summary of the accumulated counters, and returns the formatted
// reports for the caller to inspect or print.
func (d *Detector) Fini() []report.Formatted {
	d.mu.Lock()
	d.started = false
	d.mu.Unlock()

	pending := d.reports.Drain()
	formatted := report.FormatAll(pending)

	snap := d.global.Snapshot()
	ev := d.log.Info().
		Int64("checks", snap.NumCheckFuncCall).
		Int64("bytes_checked", snap.NumBytesChecked).
		Int64("overflows", snap.NumAccessHistoryOverflow).
		Int64("races_found", snap.NumDataRace).
		Int("distinct_bytes_tracked", d.seen.Len())
	for bucket, count := range snap.Buckets {
		ev = ev.Int64(bucket, count)
	}
	ev.Msg("race detector finalized")

	for _, r := range formatted {
		d.log.Warn().
			Uint64("byte_addr", uint64(r.ByteAddr)).
			Str("prev", r.Hist.String()).
			Str("cur", r.Cur.String()).
			Msg("data race")
	}

	return formatted
}

// NewTask creates the root task of a detector session.
func (d *Detector) NewTask() *Task {
	return &Task{data: task.New()}
}

// Fork derives a child task from parent, matching OpenMP's task-creation
// happens-before rule: the child's label happens-after the parent's label
// at the moment of fork, and the child starts with no locks held.
func (d *Detector) Fork(parent *Task) *Task {
	return &Task{data: parent.data.Fork()}
}

// JoinTask absorbs child's label into parent, modeling a taskwait or an
// implicit barrier at the end of a parallel region.
func (d *Detector) JoinTask(parent, child *Task) {
	parent.data.Join(child.data)
}

// AcquireLock records that t now holds the named lock. id is any value the
// caller uses consistently to identify a mutual-exclusion primitive (e.g. a
// pointer to the underlying lock object, cast to uintptr).
func (t *Task) AcquireLock(id uintptr) {
	t.data.AcquireLock(lockset.LockID(id))
}

// ReleaseLock records that t no longer holds the named lock.
func (t *Task) ReleaseLock(id uintptr) {
	t.data.ReleaseLock(lockset.LockID(id))
}

// ResetPhase clears t's duplicate-access filter, marking the boundary of a
// new task phase (e.g. immediately after a taskwait returns).
func (t *Task) ResetPhase() {
	t.data.ResetDupFilter()
}

// Check runs the full check algorithm for acc on behalf of t: it consults
// t's duplicate-access filter first (a cheap, task-local skip for repeated
// accesses of compatible mode within the same phase), then resolves acc's
// shadow slot and delegates to the core driver.
func (d *Detector) Check(t *Task, acc Access) {
	if t.data.IsDupAccess(acc.Address, acc.IsWrite) {
		return
	}

	d.global.NumBytesChecked.Add(1)
	slot := d.shadow.Slot(acc.Address)

	info := driver.CheckInfo{
		IsWrite:     acc.IsWrite,
		InstnAddr:   acc.InstnAddr,
		HWLock:      acc.HWLock,
		ByteAddress: acc.Address,
		Task:        t.data.ID(),
		DataSharing: toDriverSharing(acc.Sharing),
	}

	d.drv.Check(slot, t.data.Label(), t.data.LockSet(), info)
}

func toDriverSharing(s task.DataSharing) driver.DataSharing {
	switch s {
	case task.ThreadPrivateBelowExit:
		return driver.ThreadPrivateBelowExit
	case task.StaticThreadPrivate:
		return driver.StaticThreadPrivate
	default:
		return driver.Shared
	}
}
