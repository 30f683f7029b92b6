package label

import "testing"

func TestNewTaskIDsAreUnique(t *testing.T) {
	a := NextTaskID()
	b := NextTaskID()
	if a == b {
		t.Fatal("NextTaskID must not repeat")
	}
}

func TestTickAdvancesOwnSlotOnly(t *testing.T) {
	l := New(0)
	next := l.Tick()
	if next.Clock[0] != l.Clock[0]+1 {
		t.Fatalf("own clock slot = %d, want %d", next.Clock[0], l.Clock[0]+1)
	}
	for i := 1; i < 8; i++ {
		if next.Clock[i] != l.Clock[i] {
			t.Fatalf("Tick mutated an unrelated slot %d", i)
		}
	}
}

func TestJoinTakesPointwiseMax(t *testing.T) {
	a := New(0).Tick().Tick()
	b := New(1).Tick()

	joined := a.Join(b)
	if joined.Clock[0] != a.Clock[0] || joined.Clock[1] != b.Clock[1] {
		t.Fatalf("Join did not take the point-wise max: %v", joined.Clock[:2])
	}
}

func TestHappensBeforeOrderedChain(t *testing.T) {
	a := New(0)
	b := New(1).Join(a.Tick())

	ordered, diff := a.HappensBefore(b)
	if !ordered {
		t.Fatal("a must happen-before b")
	}
	if diff < 0 {
		t.Fatal("diffIndex should identify a divergent slot")
	}
}

func TestConcurrentLabelsAreMutuallyUnordered(t *testing.T) {
	a := New(0)
	b := New(1)

	if !a.Concurrent(b) {
		t.Fatal("two freshly created labels with no synchronization must be concurrent")
	}
}

func TestSnapshotIsIndependent(t *testing.T) {
	l := New(0)
	snap := l.Snapshot()
	l2 := l.Tick()
	if snap.Clock[0] == l2.Clock[0] {
		t.Fatal("snapshot should not observe later ticks on the original label")
	}
}
