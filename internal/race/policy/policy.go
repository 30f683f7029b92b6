// Package policy implements the reference decision functions the check
// driver treats as opaque: happensBefore, analyzeRace, and
// manageAccessRecord.
//
// The driver (internal/race/driver) never imports this package directly;
// it is parameterized over function values matching these signatures so a
// caller can substitute a test double or an alternative policy entirely.
// This package supplies the policy the public API (package race) wires in
// by default, built on the label and lockset representations in this
// module. Crucially, ManageAccessRecord performs the record-list mutation
// itself rather than returning an action token: the driver only ever sees
// the resulting slice and an index to resume iteration from, so the
// action alphabet stays entirely inside this package, as the core's
// opacity requirement demands.
package policy

import (
	"github.com/kolkov/romp/internal/race/history"
	"github.com/kolkov/romp/internal/race/label"
)

// Multiple is the history state used once a slot's record list holds more
// than one access that must each still be checked against future
// accesses; it is opaque to the core beyond round-tripping through
// SetState/GetState.
const Multiple history.State = 3

// HappensBefore is the reference happens-before oracle: it delegates
// straight to the label representation's own vector-clock comparison.
func HappensBefore(histLabel, curLabel label.Label) (ordered bool, diffIndex int) {
	return histLabel.HappensBefore(curLabel)
}

// AnalyzeRace is the reference race-analysis oracle. Two accesses race
// when: they are not happens-before ordered, at least one is a write,
// they were not both made under a hardware lock (HWLock), and they share
// no common lock. Two unordered reads never race regardless of locks; a
// common lock, or a hardware lock on both sides, rules out a race
// regardless of ordering.
func AnalyzeRace(hist, cur history.Record, ordered bool, _ int) bool {
	if ordered {
		return false
	}
	if !hist.IsWrite && !cur.IsWrite {
		return false
	}
	if hist.HWLock && cur.HWLock {
		return false
	}
	if hist.LockSet.Intersects(cur.LockSet) {
		return false
	}
	return true
}

// ManageAccessRecord is the reference record-management policy, invoked
// only once AnalyzeRace has already ruled out a race for the pair
// (records[idx], cur). It returns the slot's next history-state label,
// the (possibly reallocated) record slice, and the index the driver
// should resume iterating from.
//
// The current access is recorded exactly once per pass, when the last
// record is reached. When the history access happens-before the current
// one, the history record carries no information a future check could not
// get from the current access instead: the last record is replaced in
// place by the current access, and an earlier one is removed (the driver
// resumes at the same index) — this is what keeps a record list bounded
// under long happens-before chains (e.g. a task read repeatedly by a
// strictly later series of tasks). When the two accesses are unordered but
// race-free (ruled out by a common lock, or both are reads), the history
// record is still live evidence for some future access and is kept; if it
// is the last record, the current access is inserted as a new, independent
// record immediately after it, and the driver does not revisit that newly
// inserted record during this pass.
func ManageAccessRecord(records []history.Record, idx int, hist, cur history.Record, ordered bool, _ int) (history.State, []history.Record, int) {
	_ = hist
	last := idx == len(records)-1
	if ordered && !last {
		records = append(records[:idx], records[idx+1:]...)
		return Multiple, records, idx
	}
	if !ordered && !last {
		return Multiple, records, idx + 1
	}
	if ordered {
		records[idx] = cur
		state := history.SingleRead
		if cur.IsWrite {
			state = history.SingleWrite
		}
		if len(records) > 1 {
			state = Multiple
		}
		return state, records, idx + 1
	}

	out := make([]history.Record, 0, len(records)+1)
	out = append(out, records[:idx+1]...)
	out = append(out, cur)
	out = append(out, records[idx+1:]...)
	return Multiple, out, idx + 2
}
