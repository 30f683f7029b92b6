package policy

import (
	"reflect"
	"testing"

	"github.com/kolkov/romp/internal/race/history"
	"github.com/kolkov/romp/internal/race/label"
	"github.com/kolkov/romp/internal/race/lockset"
)

func TestHappensBeforeOrderedChain(t *testing.T) {
	taskA := label.New(0)
	taskB := label.New(1).Join(taskA.Tick())

	ordered, _ := HappensBefore(taskA, taskB)
	if !ordered {
		t.Fatal("expected taskA to happen-before taskB")
	}
}

func TestAnalyzeRaceConcurrentWrites(t *testing.T) {
	hist := history.NewRecord(true, label.New(0), lockset.Empty, 0, 0x10, false)
	cur := history.NewRecord(true, label.New(1), lockset.Empty, 1, 0x20, false)

	if !AnalyzeRace(hist, cur, false, -1) {
		t.Fatal("expected a race between two unordered, unlocked writes")
	}
}

func TestAnalyzeRaceOrderedNeverRaces(t *testing.T) {
	hist := history.NewRecord(true, label.New(0), lockset.Empty, 0, 0x10, false)
	cur := history.NewRecord(true, label.New(1), lockset.Empty, 1, 0x20, false)

	if AnalyzeRace(hist, cur, true, 0) {
		t.Fatal("ordered accesses must never race")
	}
}

func TestAnalyzeRaceTwoReadsNeverRace(t *testing.T) {
	hist := history.NewRecord(false, label.New(0), lockset.Empty, 0, 0x10, false)
	cur := history.NewRecord(false, label.New(1), lockset.Empty, 1, 0x20, false)

	if AnalyzeRace(hist, cur, false, -1) {
		t.Fatal("two unordered reads must never race")
	}
}

func TestAnalyzeRaceCommonLockRulesOutRace(t *testing.T) {
	shared := lockset.Empty.Add(1)
	hist := history.NewRecord(true, label.New(0), shared, 0, 0x10, false)
	cur := history.NewRecord(true, label.New(1), shared, 1, 0x20, false)

	if AnalyzeRace(hist, cur, false, -1) {
		t.Fatal("a common held lock must rule out the race")
	}
}

func TestManageAccessRecordOrderedReplacesInPlace(t *testing.T) {
	hist := history.NewRecord(false, label.New(0), lockset.Empty, 0, 0x10, false)
	cur := history.NewRecord(true, label.New(1), lockset.Empty, 1, 0x20, false)
	records := []history.Record{hist}

	state, next, idx := ManageAccessRecord(records, 0, hist, cur, true, 0)
	if len(next) != 1 || !reflect.DeepEqual(next[0], cur) {
		t.Fatalf("expected the single record to be replaced with cur, got %+v", next)
	}
	if state != history.SingleWrite {
		t.Fatalf("state = %v, want SingleWrite", state)
	}
	if idx != 1 {
		t.Fatalf("idx = %d, want 1", idx)
	}
}

func TestManageAccessRecordUnorderedInsertsAfter(t *testing.T) {
	hist := history.NewRecord(false, label.New(0), lockset.Empty, 0, 0x10, false)
	cur := history.NewRecord(false, label.New(1), lockset.Empty, 1, 0x20, false)
	records := []history.Record{hist}

	state, next, idx := ManageAccessRecord(records, 0, hist, cur, false, -1)
	if len(next) != 2 {
		t.Fatalf("expected two records after insertion, got %d", len(next))
	}
	if !reflect.DeepEqual(next[0], hist) || !reflect.DeepEqual(next[1], cur) {
		t.Fatal("expected cur to be inserted immediately after hist")
	}
	if state != Multiple {
		t.Fatalf("state = %v, want Multiple", state)
	}
	if idx != 2 {
		t.Fatalf("idx = %d, want 2 (skip the newly inserted record)", idx)
	}
}
