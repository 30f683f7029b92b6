package shadow

import (
	"sync"
	"testing"

	"github.com/kolkov/romp/internal/race/history"
)

func TestSlotIsStableAcrossCalls(t *testing.T) {
	m := New()
	a := m.Slot(0x1000)
	b := m.Slot(0x1000)
	if a != b {
		t.Fatal("Slot must return the same AccessHistory for the same address")
	}
}

func TestSlotIsDistinctAcrossAddresses(t *testing.T) {
	m := New()
	a := m.Slot(0x1000)
	b := m.Slot(0x2000)
	if a == b {
		t.Fatal("Slot must return distinct AccessHistory for distinct addresses")
	}
}

func TestSlotConcurrentLookupsConverge(t *testing.T) {
	m := New()
	const goroutines = 64

	found := make([]*history.AccessHistory, goroutines)
	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func(i int) {
			defer wg.Done()
			found[i] = m.Slot(0x5000)
		}(i)
	}
	wg.Wait()

	want := found[0]
	for i, got := range found {
		if got != want {
			t.Fatalf("goroutine %d saw a different slot pointer than goroutine 0", i)
		}
	}
}

func TestResetForgetsSlots(t *testing.T) {
	m := New()
	before := m.Slot(0x9000)
	m.Reset()
	after := m.Slot(0x9000)
	if before == after {
		t.Fatal("Reset should cause subsequent lookups to allocate a fresh slot")
	}
}
