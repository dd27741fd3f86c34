// Package epoch implements a three-slot epoch-based reclamation ring: the
// mechanism C6 uses to free a retired leaf or inner node only once no
// thread could still be dereferencing it.
package epoch

import (
	"sync"
	"sync/atomic"
)

// outside marks a thread as not currently inside a critical section.
const outside = ^uint64(0)

// nextEpoch[e] is the epoch a thread at e moves to on the next Advance.
// previousEpoch[e] is the epoch that must be reader-free before a thread
// at e is allowed to call Advance.
var nextEpoch = [3]uint64{1, 2, 0}
var previousEpoch = [3]uint64{2, 0, 1}

// Reclaimable is anything an epoch-deferred free list can hold.
type Reclaimable interface{}

// Manager coordinates a bounded three-epoch reclamation ring shared by all
// readers and writers of one index.
type Manager struct {
	current uint64 // global epoch, one of {0,1,2}

	mu      sync.Mutex
	locals  map[*Guard]struct{} // registered per-thread guards
	pending [3][]Reclaimable    // free list per epoch slot
}

// NewManager returns a reclamation ring starting at epoch 0.
func NewManager() *Manager {
	return &Manager{locals: make(map[*Guard]struct{})}
}

// Guard is a thread's (goroutine's) handle into the ring. A goroutine that
// calls Enter must call Leave exactly once before discarding the guard, or
// obtain a fresh guard via Manager.Acquire each time — both styles work since
// Enter/Leave toggle the same local epoch field.
type Guard struct {
	mgr   *Manager
	local uint64 // atomic: the epoch this thread last entered, or outside
}

// Acquire registers a new guard for the calling goroutine. The guard starts
// outside any critical section.
func (m *Manager) Acquire() *Guard {
	g := &Guard{mgr: m, local: outside}
	m.mu.Lock()
	m.locals[g] = struct{}{}
	m.mu.Unlock()
	return g
}

// Release unregisters a guard permanently — call this when a goroutine that
// will never touch the index again exits.
func (g *Guard) Release() {
	g.mgr.mu.Lock()
	delete(g.mgr.locals, g)
	g.mgr.mu.Unlock()
}

// Enter marks the start of a critical section: the calling thread copies the
// current global epoch into its local slot, pinning any node retired at or
// after that epoch from being reclaimed for the guard's lifetime.
func (g *Guard) Enter() {
	atomic.StoreUint64(&g.local, atomic.LoadUint64(&g.mgr.current))
}

// Leave marks the end of a critical section.
func (g *Guard) Leave() {
	atomic.StoreUint64(&g.local, outside)
}

// Retire places node on the current epoch's free list. It becomes eligible
// for reclamation once the global epoch has advanced twice past the epoch
// it was retired in.
func (m *Manager) Retire(node Reclaimable) {
	if node == nil {
		return
	}
	e := atomic.LoadUint64(&m.current)
	m.mu.Lock()
	m.pending[e] = append(m.pending[e], node)
	m.mu.Unlock()
}

// canAdvance reports whether every registered guard is either outside a
// critical section or has a local epoch different from the previous epoch
// of the current global epoch — i.e. no thread could still be observing
// a node retired two epochs ago.
func (m *Manager) canAdvance() bool {
	cur := atomic.LoadUint64(&m.current)
	prev := previousEpoch[cur]
	for g := range m.locals {
		local := atomic.LoadUint64(&g.local)
		if local != outside && local == prev {
			return false
		}
	}
	return true
}

// Advance attempts to move the global epoch forward by one slot, freeing the
// free list two slots behind the new epoch. It is a no-op — not an error —
// when some thread is still observing the epoch that would be stranded; the
// caller is expected to retry opportunistically rather than block.
func (m *Manager) Advance() (advanced bool, freed int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.canAdvance() {
		return false, 0
	}
	cur := m.current
	next := nextEpoch[cur]

	// The slot we are about to overwrite with fresh retirees is two epochs
	// behind `next` in the ring, i.e. it is `cur`'s previous epoch — by the
	// time we reach `next` a second time every node in it is unreachable.
	freeSlot := previousEpoch[cur]
	freed = len(m.pending[freeSlot])
	m.pending[freeSlot] = nil

	atomic.StoreUint64(&m.current, next)
	return true, freed
}

// Quiesce calls Advance until it stops making progress, for tests and for
// Index.Close to drain outstanding retirees deterministically.
func (m *Manager) Quiesce(maxRounds int) int {
	total := 0
	for i := 0; i < maxRounds; i++ {
		advanced, freed := m.Advance()
		total += freed
		if !advanced {
			break
		}
	}
	return total
}

// PendingCount returns the number of nodes awaiting reclamation across all
// three epoch slots, for Stats().
func (m *Manager) PendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, slot := range m.pending {
		n += len(slot)
	}
	return n
}

// ActiveGuardCount returns the number of guards currently inside a critical
// section, for Stats().
func (m *Manager) ActiveGuardCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for g := range m.locals {
		if atomic.LoadUint64(&g.local) != outside {
			n++
		}
	}
	return n
}
