package lockset

import "testing"

func TestAddAndContains(t *testing.T) {
	s := Empty.Add(5).Add(2).Add(5)
	if s.Len() != 2 {
		t.Fatalf("Len() = %d, want 2 (duplicate add should not grow the set)", s.Len())
	}
	if !s.Contains(5) || !s.Contains(2) {
		t.Fatal("expected both 5 and 2 to be present")
	}
}

func TestRemove(t *testing.T) {
	s := Empty.Add(1).Add(2).Remove(1)
	if s.Contains(1) {
		t.Fatal("1 should have been removed")
	}
	if !s.Contains(2) {
		t.Fatal("2 should remain")
	}
}

func TestIntersects(t *testing.T) {
	a := Empty.Add(1).Add(3)
	b := Empty.Add(2).Add(3)
	c := Empty.Add(4)

	if !a.Intersects(b) {
		t.Fatal("a and b share lock 3")
	}
	if a.Intersects(c) {
		t.Fatal("a and c share no locks")
	}
}

func TestEmptyIntersectsNothing(t *testing.T) {
	if Empty.Intersects(Empty) {
		t.Fatal("the empty set does not intersect itself")
	}
}

func TestOriginalUnmodifiedByAdd(t *testing.T) {
	base := Empty.Add(1)
	_ = base.Add(2)
	if base.Contains(2) {
		t.Fatal("Add must not mutate the receiver")
	}
}
