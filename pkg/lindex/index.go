// Package lindex is the external interface (§6): a concurrent, ordered,
// learned index assembled from the lower layers (pkg/plr, pkg/leaf,
// pkg/inner, pkg/morph, pkg/directory, pkg/epoch, pkg/rlock). Index is the
// only exported entry point most callers need; the sub-packages remain
// independently usable for anyone assembling a different layout.
package lindex

import (
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"

	"lindex/pkg/directory"
	"lindex/pkg/epoch"
	"lindex/pkg/inner"
	"lindex/pkg/kv"
	"lindex/pkg/leaf"
	"lindex/pkg/morph"
	"lindex/pkg/plr"
)

// Index is the concurrent learned ordered index described by the external
// interface table in §6: bulk_load, insert, lookup, update, remove, scan.
type Index struct {
	cfg Config

	epochMgr    *epoch.Manager
	morphEngine *morph.Engine
	guards      sync.Pool // *epoch.Guard, one per concurrent caller at a time

	dirMu sync.RWMutex // guards reassignment of dir itself; dir's own fields have finer locks
	dir   *directory.Directory

	closed atomic.Bool

	liveCount   atomic.Int64
	insertCount atomic.Int64
	updateCount atomic.Int64
	removeCount atomic.Int64
	lookupCount atomic.Int64
	scanCount   atomic.Int64
	splitCount  atomic.Int64
}

// New returns a ready-to-use, empty index. BulkLoad may replace its
// contents once, before any concurrent caller observes it; absent a
// BulkLoad call the index starts as a single empty write-optimized leaf
// spanning the whole key space, so Insert works immediately too.
func New(cfg Config) *Index {
	idx := &Index{cfg: cfg, epochMgr: epoch.NewManager()}
	idx.guards.New = func() any { return idx.epochMgr.Acquire() }
	idx.morphEngine = morph.New(idx.morphConfig(), idx.epochMgr)
	idx.dir = directory.New(idx.directoryConfig())
	idx.seedEmptyLeaf(idx.dir)
	if cfg.BackgroundMorph {
		idx.morphEngine.Start()
	}
	return idx
}

func (idx *Index) morphConfig() morph.Config {
	return morph.Config{
		Thresholds:   idx.cfg.MorphThresholds,
		LeafCapacity: idx.cfg.LeafCapacity,
		PieceSize:    idx.cfg.PieceSize,
		ProbeSize:    idx.cfg.ProbeSize,
		Margin:       idx.cfg.Margin,
		MaxFillRatio: idx.cfg.MaxFillRatio,
		Background:   idx.cfg.BackgroundMorph,
	}
}

func (idx *Index) directoryConfig() directory.Config {
	return directory.Config{Inner: inner.Config{
		FillRatio:   idx.cfg.MaxFillRatio,
		OverflowMax: idx.cfg.OverflowMaxRatio,
		Margin:      idx.cfg.Margin,
	}}
}

func (idx *Index) seedEmptyLeaf(dir *directory.Directory) {
	l := leaf.NewWOLeaf(idx.cfg.LeafCapacity, idx.cfg.PieceSize, kv.KeyMax)
	dir.Insert(kv.KeyMin, leaf.NewHandle(l))
}

// acquireGuard pins the current epoch for the duration of one operation.
// Guards are pooled rather than allocated per call (and never kept past a
// single operation, so two goroutines never touch the same one at once) —
// the per-thread amortization design notes (§9) call for, applied to the
// reclamation guard instead of a sub-node free list.
func (idx *Index) acquireGuard() *epoch.Guard {
	g := idx.guards.Get().(*epoch.Guard)
	g.Enter()
	return g
}

func (idx *Index) releaseGuard(g *epoch.Guard) {
	g.Leave()
	idx.guards.Put(g)
}

func (idx *Index) currentDir() *directory.Directory {
	idx.dirMu.RLock()
	defer idx.dirMu.RUnlock()
	return idx.dir
}

// BulkLoad replaces the index's contents with sorted_records, fitting a
// streaming PLR segmentation (C1, epsilon_leaf) over the whole input to
// decide leaf boundaries — each segment becomes one or more write-optimized
// leaves, cut into chunks of at most LeafCapacity*InitialFillRatio records
// (LeafCapacity when that product is not below it). Per §6 this must complete before any concurrent operation;
// the caller is responsible for that ordering, matching the usual
// bulk-construction contract of no concurrent access during construction.
func (idx *Index) BulkLoad(records []kv.Record) error {
	if idx.closed.Load() {
		return ErrTreeClosed
	}
	for i := 1; i < len(records); i++ {
		if records[i].Key <= records[i-1].Key {
			return ErrUnsorted
		}
	}

	dir := directory.New(idx.directoryConfig())
	if len(records) == 0 {
		idx.seedEmptyLeaf(dir)
		idx.installDir(dir)
		idx.liveCount.Store(0)
		return nil
	}

	// records is non-empty here (handled above), so Fit's only failure
	// mode — an empty input — cannot occur.
	segments, _ := plr.Fit(records, idx.cfg.EpsilonLeaf)

	budget := idx.cfg.LeafCapacity
	if fit := int(float64(idx.cfg.LeafCapacity) * idx.cfg.InitialFillRatio); fit > 0 && fit < budget {
		budget = fit
	}

	offset := 0
	first := true
	var prev *leaf.Handle
	for _, seg := range segments {
		chunk := records[offset : offset+int(seg.Count)]
		offset += int(seg.Count)

		for len(chunk) > 0 {
			take := min(len(chunk), budget)
			part := chunk[:take]
			chunk = chunk[take:]

			skey := kv.KeyMax
			switch {
			case len(chunk) > 0:
				skey = chunk[0].Key
			case offset < len(records):
				skey = records[offset].Key
			}

			l := leaf.NewWOLeafFromSorted(idx.cfg.LeafCapacity, idx.cfg.PieceSize, skey, part)
			h := leaf.NewHandle(l)
			if prev != nil {
				prev.Load().Hdr().SetSibling(h)
			}

			boundary := part[0].Key
			if first {
				boundary = kv.KeyMin
				first = false
			}
			dir.Insert(boundary, h)
			prev = h
		}
	}

	idx.installDir(dir)
	idx.liveCount.Store(int64(len(records)))
	return nil
}

func (idx *Index) installDir(dir *directory.Directory) {
	idx.dirMu.Lock()
	idx.dir = dir
	idx.dirMu.Unlock()
}

// Insert stores (k, v), reporting true iff k was not previously present as
// any leaf slot (tombstoned or live) — the "inserted vs updated" boolean
// §6 specifies. A CapacityExceeded leaf split is retried transparently;
// per §7 that internal recovery is never surfaced to the caller.
func (idx *Index) Insert(k kv.Key, v kv.Value) (bool, error) {
	if !v.Present() {
		return false, ErrInvalidValue
	}
	if idx.closed.Load() {
		return false, ErrTreeClosed
	}

	g := idx.acquireGuard()
	defer idx.releaseGuard(g)

	// A Store that fills the leaf has already written k before reporting
	// SplitRequired, so the retry finds k via Update; remember that the
	// first attempt was the one that added it.
	wasNew := false
	for {
		h, ok := idx.currentDir().Lookup(k)
		if !ok {
			return false, ErrKeyOutOfRange
		}
		l := h.Load()

		inserted, result, err := leaf.Insert(l, k, v)
		if err != nil {
			return false, err
		}
		inserted = inserted || wasNew
		wasNew = inserted
		if result == leaf.SplitRequired {
			idx.splitLeaf(h, l)
			continue
		}

		if inserted {
			idx.liveCount.Add(1)
		}
		idx.insertCount.Add(1)
		idx.morphJudge(h, true)
		return inserted, nil
	}
}

// Lookup returns the value stored for k, or (0, false) if absent or
// tombstoned. It takes only shared (read) locks to route k through the
// directory, then reads the leaf through its versioned retry loop without
// locking it. With inline morphing enabled, the access it records may run
// a morph on the caller's goroutine.
func (idx *Index) Lookup(k kv.Key) (kv.Value, bool) {
	if idx.closed.Load() {
		return 0, false
	}
	g := idx.acquireGuard()
	defer idx.releaseGuard(g)

	h, ok := idx.currentDir().Lookup(k)
	if !ok {
		return 0, false
	}
	v, found := h.Load().Lookup(k)
	idx.lookupCount.Add(1)
	idx.morphJudge(h, false)
	return v, found
}

// Update overwrites k's payload in place, reporting whether k was found.
// It never creates a new key (§6: "Idempotent").
func (idx *Index) Update(k kv.Key, v kv.Value) bool {
	if idx.closed.Load() {
		return false
	}
	g := idx.acquireGuard()
	defer idx.releaseGuard(g)

	h, ok := idx.currentDir().Lookup(k)
	if !ok {
		return false
	}
	found := h.Load().Update(k, v)
	if found {
		idx.updateCount.Add(1)
		idx.morphJudge(h, true)
	}
	return found
}

// Remove tombstones k in place, reporting whether it was previously
// present.
func (idx *Index) Remove(k kv.Key) bool {
	if idx.closed.Load() {
		return false
	}
	g := idx.acquireGuard()
	defer idx.releaseGuard(g)

	h, ok := idx.currentDir().Lookup(k)
	if !ok {
		return false
	}
	removed := h.Load().Remove(k)
	if removed {
		idx.removeCount.Add(1)
		idx.liveCount.Add(-1)
		idx.morphJudge(h, true)
	}
	return removed
}

// Scan returns up to n live records in ascending key order starting at the
// first present key >= from, following the sibling chain across leaves.
func (idx *Index) Scan(from kv.Key, n int) []kv.Record {
	if n <= 0 || idx.closed.Load() {
		return nil
	}
	g := idx.acquireGuard()
	defer idx.releaseGuard(g)

	h, ok := idx.currentDir().Lookup(from)
	if !ok {
		return nil
	}
	out := h.Load().Scan(from, n)
	idx.scanCount.Add(1)
	idx.morphJudge(h, false)
	return out
}

func (idx *Index) morphJudge(h *leaf.Handle, isWrite bool) {
	if !idx.cfg.MorphingEnabled {
		return
	}
	idx.morphEngine.Judge(h, isWrite)
}

// Close stops the background morph pool (if running) and drains pending
// epoch reclamation deterministically. Afterwards Insert, BulkLoad and a
// second Close return ErrTreeClosed; Lookup, Update, Remove and Scan report
// a miss.
func (idx *Index) Close() error {
	if !idx.closed.CompareAndSwap(false, true) {
		return ErrTreeClosed
	}
	idx.morphEngine.Stop()
	idx.epochMgr.Quiesce(8)
	return nil
}

// Stats returns a point-in-time snapshot: a diagnostic surface a caller
// polls or exports, never something consulted on the hot path.
type Stats struct {
	KeyCount      int64
	InsertCount   int64
	UpdateCount   int64
	RemoveCount   int64
	LookupCount   int64
	ScanCount     int64
	SplitCount    int64
	Morph         morph.StatsSnapshot
	EpochPending  int
	ActiveReaders int
}

func (idx *Index) Stats() Stats {
	return Stats{
		KeyCount:      idx.liveCount.Load(),
		InsertCount:   idx.insertCount.Load(),
		UpdateCount:   idx.updateCount.Load(),
		RemoveCount:   idx.removeCount.Load(),
		LookupCount:   idx.lookupCount.Load(),
		ScanCount:     idx.scanCount.Load(),
		SplitCount:    idx.splitCount.Load(),
		Morph:         idx.morphEngine.Stats(),
		EpochPending:  idx.epochMgr.PendingCount(),
		ActiveReaders: idx.epochMgr.ActiveGuardCount(),
	}
}

// Collector returns a prometheus.Collector exporting split/morph/reclaim
// counters, or nil if Config.Metrics was left false. Registration is
// entirely the caller's choice — Collect only reads already-maintained
// atomics, so it never touches the hot path regardless.
func (idx *Index) Collector() prometheus.Collector {
	if !idx.cfg.Metrics {
		return nil
	}
	return &collector{idx: idx, morph: morph.NewCollector(idx.morphEngine)}
}
