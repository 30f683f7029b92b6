// Package shadow implements the address-to-AccessHistory mapping that sits
// between the instrumentation bridge and the check driver.
//
// The mapping must never lose an entry: two calls that resolve the same
// byte address must always observe the same *history.AccessHistory, for
// the lifetime of that address's shadow state, or the driver's per-slot
// lock and record list stop meaning anything. The implementation below
// follows the teacher's lock-free fixed-array design for the common case
// (fast, zero-allocation lookups on the hot path) but backs it with a
// sync.Map overflow table for hash collisions past the linear-probe limit,
// so correctness never depends on the collision rate staying low.
package shadow

import (
	"sync"
	"sync/atomic"

	"github.com/kolkov/romp/internal/race/history"
)

const (
	// slots is the size of the fast fixed array, sized as a power of two
	// so masking replaces modulo.
	slots    = 1 << 16
	slotMask = slots - 1

	// maxProbes bounds linear probing in the fast array before falling
	// back to the overflow map.
	maxProbes = 8
)

type cell struct {
	addr uintptr
	slot *history.AccessHistory
}

// Memory maps application byte addresses to AccessHistory slots.
type Memory struct {
	cells    [slots]atomic.Pointer[cell]
	overflow sync.Map // uintptr -> *history.AccessHistory, used past maxProbes
}

// New returns an empty shadow memory, ready to use.
func New() *Memory {
	return &Memory{}
}

// fastHash spreads addresses across the fixed array using a
// multiplicative golden-ratio hash; collisions are handled by linear
// probing in Slot.
func fastHash(addr uintptr) uint64 {
	const goldenRatio = 0x9E3779B97F4A7C15
	return (uint64(addr) * goldenRatio) >> 48
}

// Slot returns the AccessHistory for addr, allocating one on first touch.
// Every subsequent call for the same address returns the same pointer.
func (m *Memory) Slot(addr uintptr) *history.AccessHistory {
	hash := fastHash(addr)

	for i := uint64(0); i < maxProbes; i++ {
		idx := (hash + i) & slotMask
		existing := m.cells[idx].Load()
		if existing == nil {
			candidate := &cell{addr: addr, slot: &history.AccessHistory{}}
			if m.cells[idx].CompareAndSwap(nil, candidate) {
				return candidate.slot
			}
			existing = m.cells[idx].Load()
		}
		if existing != nil && existing.addr == addr {
			return existing.slot
		}
	}

	// Linear probing exhausted: fall back to the overflow map, which
	// never drops an entry regardless of collision rate.
	fresh := &history.AccessHistory{}
	actual, _ := m.overflow.LoadOrStore(addr, fresh)
	return actual.(*history.AccessHistory)
}

// Reset discards all tracked slots. Intended for test isolation and
// process-lifetime reinitialization, never for use while other goroutines
// may still be resolving addresses.
func (m *Memory) Reset() {
	for i := range m.cells {
		m.cells[i].Store(nil)
	}
	m.overflow.Range(func(key, _ any) bool {
		m.overflow.Delete(key)
		return true
	})
}
