// Package directory implements the index root (C7): a small sparse
// directory of child leaves that grows through three fixed capacity tiers
// (8, 64, 512) before rebuilding wholesale into a learned inner node once
// it outgrows the largest tier.
package directory

import (
	"sort"
	"sync"

	"golang.org/x/sync/singleflight"

	"lindex/pkg/inner"
	"lindex/pkg/kv"
	"lindex/pkg/leaf"
)

// Child is what the directory routes a key to.
type Child = *leaf.Handle

// Config bundles the tunables NeatenRoot needs to build the replacement
// learned inner node.
type Config struct {
	Inner inner.Config
}

type slot struct {
	Boundary kv.Key
	Child    Child
}

// tier capacities, per §4.7: 8 anchor slots, then 64, then 512 before the
// structure rebuilds into a learned inner node.
var tierCapacity = [...]int{8, 64, 512}

// Directory is the index root. Below the overflow threshold it is a plain
// sorted array bounded by the current tier's capacity — simpler than the
// source's three physically distinct anchor tiers with line-local
// borrow-from-neighbor, but preserving the capacities, the tier-by-tier
// growth, and the NeatenRoot rebuild the spec calls for (see DESIGN.md).
// Once it outgrows tier 3 it delegates permanently to a learned inner.Node.
type Directory struct {
	mu sync.RWMutex

	tier    int // index into tierCapacity; 0, 1, or 2
	entries []slot

	learned *inner.Node

	cfg   Config
	group singleflight.Group
}

// New returns an empty directory starting at the smallest tier.
func New(cfg Config) *Directory {
	return &Directory{cfg: cfg}
}

// Lookup returns the child whose boundary is the largest <= k.
func (d *Directory) Lookup(k kv.Key) (Child, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.learned != nil {
		return d.learned.Lookup(k)
	}
	return floorSearch(d.entries, k)
}

// Insert adds or updates the child for boundary, growing through tiers and
// finally triggering NeatenRoot as capacity demands.
func (d *Directory) Insert(boundary kv.Key, child Child) {
	d.mu.Lock()
	if d.learned != nil {
		d.insertLearnedLocked(boundary, child)
		d.mu.Unlock()
		return
	}

	idx := sort.Search(len(d.entries), func(i int) bool { return d.entries[i].Boundary >= boundary })
	if idx < len(d.entries) && d.entries[idx].Boundary == boundary {
		d.entries[idx].Child = child
		d.mu.Unlock()
		return
	}

	if len(d.entries) < tierCapacity[d.tier] {
		d.insertAtLocked(idx, boundary, child)
		d.mu.Unlock()
		return
	}

	if d.tier+1 < len(tierCapacity) {
		d.tier++
		idx = sort.Search(len(d.entries), func(i int) bool { return d.entries[i].Boundary >= boundary })
		d.insertAtLocked(idx, boundary, child)
		d.mu.Unlock()
		return
	}

	// Already at tier 3 and full: rebuild into a learned inner node. The
	// rebuild itself runs outside the lock (singleflight collapses
	// concurrent callers onto one rebuild) so a burst of inserts hitting
	// the ceiling together doesn't serialize on the full dump+train cost.
	snapshot := append([]slot(nil), d.entries...)
	d.mu.Unlock()

	result, _, _ := d.group.Do("neaten", func() (any, error) {
		return inner.New(toInnerEntries(snapshot), d.cfg.Inner), nil
	})

	d.mu.Lock()
	if d.learned == nil {
		d.learned = result.(*inner.Node)
	}
	d.insertLearnedLocked(boundary, child)
	d.mu.Unlock()
}

func (d *Directory) insertLearnedLocked(boundary kv.Key, child Child) {
	if d.learned.InsertChild(boundary, child) {
		d.learned = d.learned.Rebuild(d.cfg.Inner)
	}
}

func (d *Directory) insertAtLocked(idx int, boundary kv.Key, child Child) {
	d.entries = append(d.entries, slot{})
	copy(d.entries[idx+1:], d.entries[idx:len(d.entries)-1])
	d.entries[idx] = slot{Boundary: boundary, Child: child}
}

// UpdateChild replaces the child pointer for an existing boundary, leaving
// the boundary itself unchanged. No path in this module calls it: a morph
// reuses the same *leaf.Handle (see pkg/morph), and a split reuses the
// handle for its left half and registers the fresh right-hand handle with
// Insert (see pkg/lindex/split.go).
func (d *Directory) UpdateChild(boundary kv.Key, child Child) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.learned != nil {
		return d.learned.UpdateChild(boundary, child)
	}
	idx := sort.Search(len(d.entries), func(i int) bool { return d.entries[i].Boundary >= boundary })
	if idx >= len(d.entries) || d.entries[idx].Boundary != boundary {
		return false
	}
	d.entries[idx].Child = child
	return true
}

// Dump returns every (boundary, child) pair in ascending order.
func (d *Directory) Dump() []Entry {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.learned != nil {
		out := make([]Entry, 0, d.learned.Count())
		for _, e := range d.learned.Dump() {
			out = append(out, Entry{Boundary: e.Boundary, Child: e.Child})
		}
		return out
	}
	out := make([]Entry, len(d.entries))
	for i, s := range d.entries {
		out[i] = Entry{Boundary: s.Boundary, Child: s.Child}
	}
	return out
}

// Entry mirrors inner.Entry at the directory's public surface, so callers
// don't need to import pkg/inner just to read Dump's output.
type Entry struct {
	Boundary kv.Key
	Child    Child
}

// Count returns the number of children the directory currently holds.
func (d *Directory) Count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.learned != nil {
		return d.learned.Count()
	}
	return len(d.entries)
}

func floorSearch(entries []slot, k kv.Key) (Child, bool) {
	idx := sort.Search(len(entries), func(i int) bool { return entries[i].Boundary > k }) - 1
	if idx < 0 {
		return nil, false
	}
	return entries[idx].Child, true
}

func toInnerEntries(entries []slot) []inner.Entry {
	out := make([]inner.Entry, len(entries))
	for i, s := range entries {
		out[i] = inner.Entry{Boundary: s.Boundary, Child: s.Child}
	}
	return out
}
