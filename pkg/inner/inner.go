// Package inner implements the learned inner node (C4): a bucketed slot
// array sized from a linear model, one overflow bit per 8-slot line
// spilling into a side sorted array, and a small-node fallback below
// BNODE_SIZE that skips the model entirely.
package inner

import (
	"sort"
	"sync"

	"lindex/pkg/kv"
	"lindex/pkg/leaf"
	"lindex/pkg/plr"
	"lindex/pkg/rlock"
)

// Child is what a slot routes a key to — always a leaf handle in this
// design: the root directory rebuilds into at most one layer of learned
// inner node above the leaves (see DESIGN.md), so inner nodes never need to
// route to another inner node.
type Child = *leaf.Handle

// Entry is a single (boundary key, child) pair, the inner node's unit of
// dump/rebuild.
type Entry struct {
	Boundary kv.Key
	Child    Child
}

const (
	// lineWidth is the number of model-predicted slots per overflow line.
	lineWidth = 8
	// smallNodeThreshold is BNODE_SIZE: subtrees with fewer children than
	// this skip the learned model and fall back to a sorted array.
	smallNodeThreshold = 16
)

// Node is a learned inner node. It is either in small-node mode (small !=
// nil, chosen by New for fewer than smallNodeThreshold entries; InsertChild
// keeps adding to the sorted array and never switches modes) or in learned
// mode, in which case model, lines and overflow are populated.
type Node struct {
	small *smallNode // non-nil iff operating in the BNODE_SIZE fallback mode

	model     plr.Model
	lineLocks []rlock.VersionedLock
	slots     []Entry     // len == lineCount*lineWidth
	overflow  []*smallNode // len == lineCount; nil entry means the line hasn't overflowed

	countMu  sync.Mutex // guards count/ofCount together (rebuild-trigger bookkeeping)
	count    int
	ofCount  int
	capacity int

	fillRatio    float64
	overflowMax  float64

	NodeLock rlock.NodeLock
}

// smallNode is a plain sorted array under a single mutex — the fallback
// representation for tiny subtrees (inner.Node below BNODE_SIZE) and for a
// line's overflow side structure.
type smallNode struct {
	mu      sync.Mutex
	entries []Entry
}

func newSmallNode(entries []Entry) *smallNode {
	cp := append([]Entry(nil), entries...)
	sort.Slice(cp, func(i, j int) bool { return cp[i].Boundary < cp[j].Boundary })
	return &smallNode{entries: cp}
}

func (s *smallNode) lookup(k kv.Key) (Child, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return floorSearch(s.entries, k)
}

func (s *smallNode) floorEntry(k kv.Key) (kv.Key, Child, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return floorEntry(s.entries, k)
}

func (s *smallNode) insert(boundary kv.Key, child Child) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := sort.Search(len(s.entries), func(i int) bool { return s.entries[i].Boundary >= boundary })
	if idx < len(s.entries) && s.entries[idx].Boundary == boundary {
		s.entries[idx].Child = child
		return
	}
	s.entries = append(s.entries, Entry{})
	copy(s.entries[idx+1:], s.entries[idx:len(s.entries)-1])
	s.entries[idx] = Entry{Boundary: boundary, Child: child}
}

func (s *smallNode) update(boundary kv.Key, child Child) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := sort.Search(len(s.entries), func(i int) bool { return s.entries[i].Boundary >= boundary })
	if idx >= len(s.entries) || s.entries[idx].Boundary != boundary {
		return false
	}
	for ; idx < len(s.entries) && s.entries[idx].Boundary == boundary; idx++ {
		s.entries[idx].Child = child
	}
	return true
}

func (s *smallNode) dump() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Entry(nil), s.entries...)
}

// floorSearch returns the child of the entry with the largest Boundary <= k.
func floorSearch(entries []Entry, k kv.Key) (Child, bool) {
	_, child, found := floorEntry(entries, k)
	return child, found
}

// floorEntry returns the boundary and child of the entry with the largest
// Boundary <= k.
func floorEntry(entries []Entry, k kv.Key) (kv.Key, Child, bool) {
	idx := sort.Search(len(entries), func(i int) bool { return entries[i].Boundary > k }) - 1
	if idx < 0 {
		return kv.KeyMin, nil, false
	}
	return entries[idx].Boundary, entries[idx].Child, true
}

func roundUp8(n int) int { return (n + lineWidth - 1) / lineWidth * lineWidth }

// Config bundles the tunables New needs from the index-wide configuration.
type Config struct {
	FillRatio   float64 // rho_inner: target fraction of capacity occupied after construction
	OverflowMax float64 // OF_MAX: overflow-count/count ratio that triggers a rebuild
	Margin      int      // MARGIN: slot margin kept clear at each end of the predicted range
}

// New builds an inner node from a sorted slice of (boundary, child) pairs.
// Fewer than smallNodeThreshold entries falls back to a plain sorted array;
// otherwise a model is trained on the central 75% (avoiding tail distortion,
// same technique as ROLeaf) and entries are bucketed into lines by
// prediction, overflowing into a per-line side smallNode when a line fills.
func New(entries []Entry, cfg Config) *Node {
	n := len(entries)
	if n < smallNodeThreshold {
		return &Node{small: newSmallNode(entries), fillRatio: cfg.FillRatio, overflowMax: cfg.OverflowMax}
	}

	sorted := append([]Entry(nil), entries...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Boundary < sorted[j].Boundary })

	capacity := roundUp8(int(float64(n) / maxFloat(cfg.FillRatio, 0.1)))
	lineCount := capacity / lineWidth

	node := &Node{
		lineLocks:   make([]rlock.VersionedLock, lineCount),
		slots:       make([]Entry, capacity),
		overflow:    make([]*smallNode, lineCount),
		capacity:    capacity,
		fillRatio:   cfg.FillRatio,
		overflowMax: cfg.OverflowMax,
	}
	for i := range node.slots {
		node.slots[i] = Entry{Boundary: kv.KeyMin}
	}

	var b plr.Builder
	lo, hi := n/8, n-n/8
	if hi <= lo {
		lo, hi = 0, n
	}
	for i := lo; i < hi; i++ {
		b.Add(sorted[i].Boundary, int64(i))
	}
	model, err := b.Build()
	if err != nil {
		model = plr.Model{}
	}
	margin := cfg.Margin
	usable := capacity - 2*margin
	if usable < lineWidth {
		usable = lineWidth
		margin = 0
	}
	if n > 0 {
		scale := float64(usable) / float64(n)
		node.model = plr.Model{Slope: model.Slope * scale, Intercept: model.Intercept*scale + float64(margin)}
	}

	for _, e := range sorted {
		node.insertLearned(e.Boundary, e.Child)
	}
	return node
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func (n *Node) lineFor(k kv.Key) int {
	pos := n.model.PredictRounded(k)
	j := int(pos) / lineWidth
	if j < 0 {
		j = 0
	}
	if j >= len(n.lineLocks) {
		j = len(n.lineLocks) - 1
	}
	return j
}

// occupiedInLine returns the count of non-empty, front-packed slots in the
// line starting at base.
func occupiedInLine(line []Entry) int {
	for i, e := range line {
		if e.Boundary == kv.KeyMin && e.Child == nil {
			return i
		}
	}
	return len(line)
}

// insertLearned is the learned-mode insert used both by New's bulk build
// and by InsertChild.
func (n *Node) insertLearned(boundary kv.Key, child Child) (needsRebuild bool) {
	j := n.lineFor(boundary)
	base := j * lineWidth

	n.lineLocks[j].Lock()
	slotsSlice := n.slots[base : base+lineWidth]
	occ := occupiedInLine(slotsSlice)

	idx := sort.Search(occ, func(i int) bool { return slotsSlice[i].Boundary >= boundary })
	isUpdate := idx < occ && slotsSlice[idx].Boundary == boundary
	spilled := false
	if isUpdate {
		slotsSlice[idx].Child = child
	} else if occ < lineWidth {
		copy(slotsSlice[idx+1:occ+1], slotsSlice[idx:occ])
		slotsSlice[idx] = Entry{Boundary: boundary, Child: child}
	} else {
		spilled = true
	}
	n.lineLocks[j].Unlock()

	if spilled {
		if n.overflow[j] == nil {
			n.overflow[j] = newSmallNode(nil)
		}
		n.overflow[j].insert(boundary, child)
		n.countMu.Lock()
		n.ofCount++
		n.count++
		needsRebuild = n.shouldRebuildLocked()
		n.countMu.Unlock()
		return needsRebuild
	}
	if !isUpdate {
		n.countMu.Lock()
		n.count++
		needsRebuild = n.shouldRebuildLocked()
		n.countMu.Unlock()
	}
	return needsRebuild
}

func (n *Node) shouldRebuildLocked() bool {
	if n.count >= n.capacity {
		return true
	}
	if n.count == 0 {
		return false
	}
	return float64(n.ofCount) > float64(n.count)*n.overflowMax
}

// Lookup predicts k's line, checks one line to the right for a prediction
// that undershot, then widens strictly leftward (toward the start of the
// node) until a line actually yields an entry with boundary <= k. The model
// is a plain least-squares fit with no enforced error bound, so for a
// skewed or sparse boundary distribution the line holding k's floor can sit
// more than one line away from the prediction; an occupied line whose
// entries are all greater than k means the floor is further left, not that
// k is absent, so that case must keep widening rather than stop.
func (n *Node) Lookup(k kv.Key) (Child, bool) {
	if n.small != nil {
		return n.small.lookup(k)
	}

	j := n.lineFor(k)
	start := j + 1
	if start >= len(n.lineLocks) {
		start = len(n.lineLocks) - 1
	}
	for i := start; i >= 0; i-- {
		if child, ok, done := n.lookupLine(i, k); done && ok {
			return child, true
		}
	}
	return nil, false
}

// lookupLine returns (child, found, usable) — usable is false when the line
// has no entry at all (so the caller should try a neighbor), true
// otherwise (even if the specific floor search misses within the line).
func (n *Node) lookupLine(j int, k kv.Key) (Child, bool, bool) {
	base := j * lineWidth
	var bo rlock.Backoff
	for {
		v, locked := n.lineLocks[j].ReadBegin()
		if locked {
			bo.Wait()
			continue
		}
		slotsSlice := n.slots[base : base+lineWidth]
		occ := occupiedInLine(slotsSlice)
		lineBoundary, child, found := floorEntry(slotsSlice[:occ], k)

		if ov := n.overflow[j]; ov != nil {
			if ovBoundary, ovChild, ovFound := ov.floorEntry(k); ovFound {
				if !found || ovBoundary > lineBoundary {
					child, found = ovChild, true
				}
			}
		}

		if !n.lineLocks[j].ReadValidate(v) {
			bo.Wait()
			continue
		}
		if occ == 0 && n.overflow[j] == nil {
			return nil, false, false
		}
		return child, found, true
	}
}

// InsertChild predicts boundary's slot and inserts; if the target line is
// full it spills into the line's overflow side structure. It reports
// whether the caller must now Rebuild this subtree (overflow ratio or hard
// capacity exceeded).
func (n *Node) InsertChild(boundary kv.Key, child Child) (needsRebuild bool) {
	if n.small != nil {
		n.small.insert(boundary, child)
		return false
	}
	return n.insertLearned(boundary, child)
}

// UpdateChild locates the slot whose boundary equals the given key and
// updates its child pointer, including any equal-boundary run within the
// same line.
func (n *Node) UpdateChild(boundary kv.Key, newChild Child) bool {
	if n.small != nil {
		return n.small.update(boundary, newChild)
	}
	j := n.lineFor(boundary)
	base := j * lineWidth

	n.lineLocks[j].Lock()
	slotsSlice := n.slots[base : base+lineWidth]
	occ := occupiedInLine(slotsSlice)
	updated := false
	for i := 0; i < occ; i++ {
		if slotsSlice[i].Boundary == boundary {
			slotsSlice[i].Child = newChild
			updated = true
		}
	}
	n.lineLocks[j].Unlock()

	if updated {
		return true
	}
	if ov := n.overflow[j]; ov != nil {
		return ov.update(boundary, newChild)
	}
	return false
}

// Dump returns every (boundary, child) pair in ascending boundary order.
func (n *Node) Dump() []Entry {
	if n.small != nil {
		out := n.small.dump()
		sort.Slice(out, func(i, j int) bool { return out[i].Boundary < out[j].Boundary })
		return out
	}

	var all []Entry
	for j := range n.lineLocks {
		base := j * lineWidth
		n.lineLocks[j].Lock()
		occ := occupiedInLine(n.slots[base : base+lineWidth])
		all = append(all, n.slots[base:base+occ]...)
		n.lineLocks[j].Unlock()

		if n.overflow[j] != nil {
			all = append(all, n.overflow[j].dump()...)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Boundary < all[j].Boundary })
	return all
}

// Count returns the number of (boundary, child) pairs held.
func (n *Node) Count() int {
	if n.small != nil {
		return len(n.small.dump())
	}
	n.countMu.Lock()
	defer n.countMu.Unlock()
	return n.count
}

// Rebuild dumps the subtree and constructs a fresh inner node with a
// freshly trained model, for the caller to atomically swap in.
func (n *Node) Rebuild(cfg Config) *Node {
	return New(n.Dump(), cfg)
}
