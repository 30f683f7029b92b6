// Package mcs implements the Mellor-Crummey/Scott queue-based lock.
//
// The MCS lock provides strict FIFO mutual exclusion while each waiter spins
// only on a field of its own stack-allocated node, never on shared state.
// This is used throughout the detector core to guard short critical sections
// over global maps (the race-report list, the access-history seen-map)
// where fairness under contention matters more than raw uncontended latency.
//
// Reference: J. M. Mellor-Crummey and M. L. Scott, "Algorithms for scalable
// synchronization on shared-memory multiprocessors", ACM TOCS 9(1), 1991.
package mcs

import "sync/atomic"

// Node is a per-call-site queue node. Callers stack-allocate one Node for
// the duration of a single critical section; a Node must never be reused
// while still linked into a Lock's queue.
type Node struct {
	next    atomic.Pointer[Node]
	blocked atomic.Bool
}

// Lock is a fair, FIFO, queue-based mutex.
//
// The zero value is an unlocked Lock, ready to use.
type Lock struct {
	tail atomic.Pointer[Node]
}

// Acquire blocks until the lock is held, enqueueing node at the tail of the
// wait queue. FIFO order among contenders is guaranteed: whoever's
// tail-exchange linearizes first is served first.
func (l *Lock) Acquire(node *Node) {
	node.next.Store(nil)

	// The acquire-release exchange publishes our node.next initialization to
	// whoever later reads it as a predecessor, and synchronizes with the
	// predecessor's own prior critical section.
	predecessor := l.tail.Swap(node)
	if predecessor == nil {
		// No contention: lock acquired immediately.
		return
	}

	// No other thread has observed this node yet, so a plain store of
	// blocked is safe here.
	node.blocked.Store(true)

	// Release-store publishes the blocked=true write before the
	// predecessor can observe the link and later clear it.
	predecessor.next.Store(node)

	// Spin on our own node until the predecessor signals us. The acquire
	// load here synchronizes-with the predecessor's release store in
	// Release, making the predecessor's critical-section writes visible.
	for node.blocked.Load() {
	}
}

// TryAcquire attempts to acquire the lock without blocking. It succeeds only
// if the lock is uncontended at the instant of the attempt.
func (l *Lock) TryAcquire(node *Node) bool {
	node.next.Store(nil)
	return l.tail.CompareAndSwap(nil, node)
}

// Release releases the lock previously acquired with Acquire or a
// successful TryAcquire using the same node.
func (l *Lock) Release(node *Node) {
	// Acquire-load: if we observe a successor, we must see its completed
	// link write.
	successor := node.next.Load()
	if successor == nil {
		// Possibly at the tail. Try to unlink ourselves.
		if l.tail.CompareAndSwap(node, nil) {
			return
		}

		// A successor is in the process of linking behind us; wait for it.
		for successor == nil {
			successor = node.next.Load()
		}
	}

	// Release-store: publishes our critical-section writes to the waking
	// successor.
	successor.blocked.Store(false)
}
