// Package driver implements the check algorithm: the per-byte decision
// procedure that decides whether a newly observed memory access races
// with anything already recorded against its shadow slot, and updates
// that slot accordingly.
//
// The driver is deliberately ignorant of what a label or a lockset
// actually contains, and of how happens-before, race-analysis, and
// record-management decisions are made — those are injected as function
// values at construction (see HappensBeforeFunc, AnalyzeRaceFunc,
// ManageAccessRecordFunc). What it owns is strictly the locking protocol
// around a history.AccessHistory slot: when to hold the reader lock, when
// an upgrade to the writer lock is required, and what to do when that
// upgrade cannot be proven atomic.
package driver

import (
	"github.com/kolkov/romp/internal/race/counters"
	"github.com/kolkov/romp/internal/race/history"
	"github.com/kolkov/romp/internal/race/label"
	"github.com/kolkov/romp/internal/race/lockset"
	"github.com/kolkov/romp/internal/race/mcs"
	"github.com/kolkov/romp/internal/race/pfq"
)

// RecordThreshold is the record-count above which a call to Check bumps
// the overflow counter. Crossing it is not an error: it only means the
// slot's record list has grown large enough that the external policy is
// not collapsing it as aggressively as the common case expects.
const RecordThreshold = 64

// DataSharing classifies how the accessed memory relates to the task
// making the access. It mirrors task.DataSharing without importing that
// package, so the driver stays decoupled from the task model; the race
// package is responsible for converting between the two.
type DataSharing int

const (
	Shared DataSharing = iota
	ThreadPrivateBelowExit
	StaticThreadPrivate
)

// CheckInfo carries everything about the current access that the driver
// needs beyond the slot itself.
type CheckInfo struct {
	IsWrite     bool
	InstnAddr   uintptr
	HWLock      bool
	ByteAddress uintptr
	Task        label.TaskID
	DataSharing DataSharing
}

// HappensBeforeFunc decides whether histLabel happens-before curLabel,
// and at which index their underlying representations first diverge.
type HappensBeforeFunc func(histLabel, curLabel label.Label) (ordered bool, diffIndex int)

// AnalyzeRaceFunc decides whether hist and cur constitute a data race,
// given the happens-before relationship already computed between them.
type AnalyzeRaceFunc func(hist, cur history.Record, ordered bool, diffIndex int) bool

// ManageAccessRecordFunc decides how to update the slot's record list for
// a (hist, cur) pair that AnalyzeRaceFunc has already cleared of racing.
// It receives and returns the record slice directly — the driver applies
// no interpretation of its own to how the slice changed, only to the
// returned resume index.
type ManageAccessRecordFunc func(records []history.Record, idx int, hist, cur history.Record, ordered bool, diffIndex int) (nextState history.State, nextRecords []history.Record, nextIdx int)

// ReportFunc is the runtime race-report sink, called immediately when the
// driver is not configured for deferred reporting.
type ReportFunc func(histInstn, curInstn, byteAddr uintptr)

// Report is one deferred race report, queued for end-of-run symbolization.
type Report struct {
	HistInstn uintptr
	CurInstn  uintptr
	ByteAddr  uintptr
}

// ReportList is the process-wide deferred race-report list, guarded by
// its own MCS lock so appends are totally ordered with respect to each
// other without contending with the seen-map's lock.
type ReportList struct {
	mu      mcs.Lock
	reports []Report
}

// Append adds rep to the list.
func (l *ReportList) Append(rep Report) {
	var node mcs.Node
	l.mu.Acquire(&node)
	l.reports = append(l.reports, rep)
	l.mu.Release(&node)
}

// Drain returns and clears all accumulated reports. Intended for
// finalize-time symbolization.
func (l *ReportList) Drain() []Report {
	var node mcs.Node
	l.mu.Acquire(&node)
	out := l.reports
	l.reports = nil
	l.mu.Release(&node)
	return out
}

// SeenMap is the process-wide record of every slot the driver has ever
// touched, guarded by its own MCS lock. It exists purely for
// end-of-run diagnostics (how many distinct bytes were tracked, how many
// times each was checked) and plays no role in race detection itself.
type SeenMap struct {
	mu     mcs.Lock
	counts map[*history.AccessHistory]int
}

// NewSeenMap returns an empty SeenMap.
func NewSeenMap() *SeenMap {
	return &SeenMap{counts: make(map[*history.AccessHistory]int)}
}

// Record increments the visit count for slot.
func (m *SeenMap) Record(slot *history.AccessHistory) {
	var node mcs.Node
	m.mu.Acquire(&node)
	m.counts[slot]++
	m.mu.Release(&node)
}

// Len returns the number of distinct slots recorded so far.
func (m *SeenMap) Len() int {
	var node mcs.Node
	m.mu.Acquire(&node)
	n := len(m.counts)
	m.mu.Release(&node)
	return n
}

// Driver holds the injected policy and the process-wide state the check
// algorithm reads and mutates across every call.
type Driver struct {
	Global  *counters.Global
	Seen    *SeenMap
	Reports *ReportList

	HappensBefore     HappensBeforeFunc
	AnalyzeRace       AnalyzeRaceFunc
	ManageAccessRecord ManageAccessRecordFunc

	// ReportSink is invoked immediately on race discovery when Deferred
	// is false. It may be nil only if Deferred is true.
	ReportSink ReportFunc
	// Deferred selects end-of-run symbolization (append to Reports)
	// instead of an immediate callback.
	Deferred bool
}

// New builds a Driver over the given policy functions and process-wide
// state.
func New(global *counters.Global, seen *SeenMap, reports *ReportList, hb HappensBeforeFunc, ar AnalyzeRaceFunc, mar ManageAccessRecordFunc) *Driver {
	return &Driver{
		Global:             global,
		Seen:               seen,
		Reports:            reports,
		HappensBefore:      hb,
		AnalyzeRace:        ar,
		ManageAccessRecord: mar,
	}
}

// upgradeHelper is the shared "do we need to become the writer" step used
// at every point in Check that is about to mutate the slot. It returns
// true iff the caller must discard everything it peeked this pass and
// restart from the top: the upgrade outcome was anything but Atomic.
//
// Once writerHeld is already true, this is a no-op that returns false:
// the driver never re-enters the upgrade path while already holding the
// writer lock, which is what guarantees forward progress — at most one
// upgrade attempt per pass can force a restart.
func upgradeHelper(lock *pfq.Lock, node *mcs.Node, ticket pfq.Ticket, writerHeld, readerHeld *bool, rrContend, modIntent, upgradeSuccess *bool) bool {
	*modIntent = true
	if *writerHeld {
		return false
	}
	var rr bool
	outcome := lock.Upgrade(node, ticket, &rr)
	if rr {
		*rrContend = true
	}
	*writerHeld = true
	*readerHeld = false
	if outcome == pfq.UpgradeAtomic {
		*upgradeSuccess = true
		return false
	}
	return true
}

// Check runs the data-race check algorithm for one access against slot.
func (d *Driver) Check(slot *history.AccessHistory, curLabel label.Label, curLockSet lockset.LockSet, info CheckInfo) {
	d.Global.NumCheckFuncCall.Add(1)
	slot.NumAccess++

	var (
		modIntent, rwContend, rrContend, upgradeSuccess bool
		writerHeld, readerHeld                          bool
		node                                            mcs.Node
	)

	lockPtr := slot.Lock()
	ticket, contended := lockPtr.ReadLock()
	if contended {
		rwContend = true
	}
	readerHeld = true

	curRecord := history.NewRecord(info.IsWrite, curLabel, curLockSet, info.Task, info.InstnAddr, info.HWLock)

restartLoop:
	for {
		records := slot.PeekRecords()

		if info.DataSharing == ThreadPrivateBelowExit || info.DataSharing == StaticThreadPrivate {
			break restartLoop
		}

		if records == nil {
			if upgradeHelper(lockPtr, &node, ticket, &writerHeld, &readerHeld, &rrContend, &modIntent, &upgradeSuccess) {
				continue restartLoop
			}
			records = slot.GetRecords()
		}

		if len(records) > RecordThreshold {
			d.Global.NumAccessHistoryOverflow.Add(1)
		}

		if slot.DataRaceFound() {
			if len(records) > 0 {
				if upgradeHelper(lockPtr, &node, ticket, &writerHeld, &readerHeld, &rrContend, &modIntent, &upgradeSuccess) {
					continue restartLoop
				}
				slot.ClearRecords()
			}
			break restartLoop
		}

		if slot.MemIsRecycled() {
			if upgradeHelper(lockPtr, &node, ticket, &writerHeld, &readerHeld, &rrContend, &modIntent, &upgradeSuccess) {
				continue restartLoop
			}
			slot.ClearFlags()
			slot.ClearRecords()
			records = slot.PeekRecords()
		}

		if len(records) == 0 {
			if upgradeHelper(lockPtr, &node, ticket, &writerHeld, &readerHeld, &rrContend, &modIntent, &upgradeSuccess) {
				continue restartLoop
			}
			if curRecord.IsWrite {
				slot.SetState(history.SingleWrite)
			} else {
				slot.SetState(history.SingleRead)
			}
			slot.SetRecords(append(slot.GetRecords(), curRecord))
			break restartLoop
		}

		idx := 0
		for idx < len(records) {
			histRecord := records[idx]
			ordered, diffIndex := d.HappensBefore(histRecord.Label, curRecord.Label)

			if d.AnalyzeRace(histRecord, curRecord, ordered, diffIndex) {
				d.Global.NumDataRace.Add(1)
				if d.Deferred {
					d.Reports.Append(Report{HistInstn: histRecord.InstnAddr, CurInstn: curRecord.InstnAddr, ByteAddr: info.ByteAddress})
				} else if d.ReportSink != nil {
					d.ReportSink(histRecord.InstnAddr, curRecord.InstnAddr, info.ByteAddress)
				}
				slot.SetFlag(history.DataRaceFound)
				// Restart so the race-found branch above clears the
				// records under the writer lock.
				continue restartLoop
			}

			if !writerHeld {
				if upgradeHelper(lockPtr, &node, ticket, &writerHeld, &readerHeld, &rrContend, &modIntent, &upgradeSuccess) {
					continue restartLoop
				}
			}

			state, newRecords, nextIdx := d.ManageAccessRecord(records, idx, histRecord, curRecord, ordered, diffIndex)
			slot.SetState(state)
			records = newRecords
			slot.SetRecords(records)
			idx = nextIdx
		}
		break restartLoop
	}

	if writerHeld {
		lockPtr.WriteUnlock(&node)
	} else if readerHeld {
		lockPtr.ReadUnlock(ticket)
	}

	contention := counters.NoContention
	switch {
	case rwContend:
		contention = counters.ReadWriteContention
	case rrContend:
		contention = counters.ReadReadContention
	}
	bucket := counters.Classify(modIntent, contention, upgradeSuccess)
	d.Global.Bump(bucket)
	bumpSlotCounter(&slot.Counters, bucket)

	d.Seen.Record(slot)
}

func bumpSlotCounter(c *history.Counters, bucket counters.Bucket) {
	switch bucket {
	case counters.NoModRWCon:
		c.NoModRWCon++
	case counters.NoModRRCon:
		c.NoModRRCon++
	case counters.NoModNoCon:
		c.NoModNoCon++
	case counters.ModRWConUS:
		c.ModRWConUS++
	case counters.ModRWConUF:
		c.ModRWConUF++
	case counters.ModRRConUS:
		c.ModRRConUS++
	case counters.ModRRConUF:
		c.ModRRConUF++
	case counters.ModNoConUS:
		c.ModNoConUS++
	case counters.ModNoConUF:
		c.ModNoConUF++
	}
}
