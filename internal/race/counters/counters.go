// Package counters implements the §4.5 classification taxonomy and its
// process-global aggregation.
//
// Every completed check-driver call is classified into exactly one bucket
// by three inputs: whether it ever attempted an upgrade (modIntent),
// what kind of contention (if any) it observed, and — when it attempted
// an upgrade — whether that upgrade was atomic. The driver bumps both the
// matching global counter here and the matching field on the slot it
// touched (internal/race/history.Counters).
package counters

import "sync/atomic"

// ContentionKind classifies what, if anything, a check observed
// contending for the slot's lock.
type ContentionKind int

const (
	// NoContention means the reader lock was acquired uncontended and,
	// if an upgrade was attempted, it saw no other reader present. Such
	// an upgrade may still have been non-atomic (it waited behind a
	// queued writer).
	NoContention ContentionKind = iota
	// ReadWriteContention means a writer was active or queued when the
	// reader lock was acquired.
	ReadWriteContention
	// ReadReadContention means another reader was present at the moment
	// an upgrade was attempted.
	ReadReadContention
)

// Bucket names one of the nine cells of the §4.5 classification table.
type Bucket int

const (
	NoModRWCon Bucket = iota
	NoModRRCon
	NoModNoCon
	ModRWConUS
	ModRWConUF
	ModRRConUS
	ModRRConUF
	ModNoConUS
	ModNoConUF
)

// String names a bucket for logging.
func (b Bucket) String() string {
	switch b {
	case NoModRWCon:
		return "NoModRWCon"
	case NoModRRCon:
		return "NoModRRCon"
	case NoModNoCon:
		return "NoModNoCon"
	case ModRWConUS:
		return "ModRWConUS"
	case ModRWConUF:
		return "ModRWConUF"
	case ModRRConUS:
		return "ModRRConUS"
	case ModRRConUF:
		return "ModRRConUF"
	case ModNoConUS:
		return "ModNoConUS"
	case ModNoConUF:
		return "ModNoConUF"
	default:
		return "Undefined"
	}
}

// Classify implements the §4.5 decision table. upgradeSuccess is only
// meaningful when modIntent is true, and means the upgrade outcome was
// atomic ("US" — upgrade succeeded); a non-atomic or blocked upgrade is
// "UF" — upgrade failed to stay atomic.
func Classify(modIntent bool, contention ContentionKind, upgradeSuccess bool) Bucket {
	if !modIntent {
		switch contention {
		case ReadWriteContention:
			return NoModRWCon
		case ReadReadContention:
			return NoModRRCon
		default:
			return NoModNoCon
		}
	}
	switch contention {
	case ReadWriteContention:
		if upgradeSuccess {
			return ModRWConUS
		}
		return ModRWConUF
	case ReadReadContention:
		if upgradeSuccess {
			return ModRRConUS
		}
		return ModRRConUF
	default:
		if upgradeSuccess {
			return ModNoConUS
		}
		return ModNoConUF
	}
}

// Global holds the process-wide counters, bumped atomically from every
// check-driver call and from the driver's own housekeeping (bytes
// checked, overflow, races found).
type Global struct {
	NumCheckFuncCall       atomic.Int64
	NumBytesChecked        atomic.Int64
	NumAccessHistoryOverflow atomic.Int64
	NumDataRace            atomic.Int64

	buckets [9]atomic.Int64
}

// Bump increments the global counter for bucket b.
func (g *Global) Bump(b Bucket) {
	g.buckets[b].Add(1)
}

// Count returns the current value of bucket b's global counter.
func (g *Global) Count(b Bucket) int64 {
	return g.buckets[b].Load()
}

// Snapshot is an immutable point-in-time copy of every global counter,
// suitable for logging or a finalize-time report.
type Snapshot struct {
	NumCheckFuncCall         int64
	NumBytesChecked          int64
	NumAccessHistoryOverflow int64
	NumDataRace              int64
	Buckets                  map[string]int64
}

// Snapshot captures the current values of all counters.
func (g *Global) Snapshot() Snapshot {
	s := Snapshot{
		NumCheckFuncCall:         g.NumCheckFuncCall.Load(),
		NumBytesChecked:          g.NumBytesChecked.Load(),
		NumAccessHistoryOverflow: g.NumAccessHistoryOverflow.Load(),
		NumDataRace:              g.NumDataRace.Load(),
		Buckets:                  make(map[string]int64, 9),
	}
	for b := NoModRWCon; b <= ModNoConUF; b++ {
		s.Buckets[b.String()] = g.Count(b)
	}
	return s
}
