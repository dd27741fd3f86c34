package morph

import (
	"lindex/pkg/epoch"
	"lindex/pkg/leaf"
)

// Engine drives morph judging and execution for every leaf reached through
// the index. Leaf-level work (judging, migrating, swapping) is synchronous
// state held on the leaf itself (Header.stats, Header.lsn, NodeLock); Engine
// only carries the shared policy (Config) and the epoch manager old leaves
// are retired into.
type Engine struct {
	cfg      Config
	epochMgr *epoch.Manager
	stats    Stats

	pool *pool // nil unless Config.Background
}

// New builds a morph engine. If cfg.Background is set, call Start before
// any Judge calls to spin up the worker pool; Stop shuts it down.
func New(cfg Config, epochMgr *epoch.Manager) *Engine {
	e := &Engine{cfg: cfg, epochMgr: epochMgr}
	if cfg.Background {
		e.pool = newPool(e)
	}
	return e
}

// Start launches the background worker pool. It is a no-op when the engine
// is configured for inline morphing.
func (e *Engine) Start() {
	if e.pool != nil {
		e.pool.start()
	}
}

// Stop drains and stops the background worker pool, waiting for in-flight
// migrations to finish. It is a no-op when the engine is configured for
// inline morphing.
func (e *Engine) Stop() {
	if e.pool != nil {
		e.pool.stop()
	}
}

// Judge records an access against h's current leaf and, if the resulting
// popcount crosses a threshold, triggers (or schedules) a morph. It reports
// whether a morph was triggered or scheduled — never whether it completed,
// since completion can race with the caller under the inline path and
// always races under the background path.
func (e *Engine) Judge(h *leaf.Handle, isWrite bool) bool {
	l := h.Load()
	if l == nil {
		return false
	}
	hdr := l.Hdr()
	popcount := hdr.RecordAccess(isWrite)
	target, shouldMorph := decideTarget(l.Kind(), popcount, e.cfg.Thresholds)
	if !shouldMorph {
		return false
	}

	lsn := hdr.LSN()
	if e.pool != nil {
		return e.pool.enqueue(h, lsn, target)
	}
	return e.tryMorphNow(h, lsn, target)
}

// tryMorphNow attempts the node lock without blocking; a losing caller
// treats a concurrent morph (or split, or another tryMorphNow) as a no-op
// rather than stalling its own store/lookup.
func (e *Engine) tryMorphNow(h *leaf.Handle, lsn uint32, target leaf.Kind) bool {
	l := h.Load()
	if l == nil {
		return false
	}
	if !l.Hdr().NodeLock.TryLock() {
		e.stats.skippedLocked.Add(1)
		return false
	}
	defer l.Hdr().NodeLock.Unlock()
	return e.apply(h, lsn, target)
}

// morphBlocking is the background-worker counterpart of tryMorphNow: it
// blocks for the node lock rather than giving up, since a background
// worker has nothing better to do while it waits.
func (e *Engine) morphBlocking(h *leaf.Handle, lsn uint32, target leaf.Kind) bool {
	l := h.Load()
	if l == nil {
		return false
	}
	l.Hdr().NodeLock.Lock()
	defer l.Hdr().NodeLock.Unlock()
	return e.apply(h, lsn, target)
}

// apply performs the actual migration: build the replacement leaf, publish
// it as a shadow so concurrent readers can still find keys mid-migration and
// concurrent writers mirror their mutations into it, swap the handle, and
// retire the old leaf. It must be called with the leaf's NodeLock held.
func (e *Engine) apply(h *leaf.Handle, lsn uint32, target leaf.Kind) bool {
	cur := h.Load()
	if cur == nil || lsn != cur.Hdr().LSN() || cur.Kind() == target {
		// Stale: either another morph already ran, or this leaf moved on.
		return false
	}
	cur.Hdr().BumpLSN()
	e.stats.attempted.Add(1)

	next := buildTarget(cur, target, e.cfg)
	cur.Hdr().SetShadow(leaf.NewHandle(next))

	// buildTarget's own dump ran before the shadow above went live, so a
	// write landing on cur in that gap wasn't mirrored into next. Replaying
	// cur's current state now that mirroring is active reconciles it: every
	// key present in cur at this point ends up in next too, per §4.5 step 2.
	for _, r := range cur.Dump() {
		_, _, _ = leaf.Insert(next, r.Key, r.Value)
	}

	cur.Hdr().HeaderLock.Lock()
	next.Hdr().HeaderLock.Lock()
	h.CompareAndSwap(cur, next)
	next.Hdr().HeaderLock.Unlock()
	cur.Hdr().HeaderLock.Unlock()

	if e.epochMgr != nil {
		e.epochMgr.Retire(cur)
	}
	e.stats.applied.Add(1)
	return true
}

// Stats returns a point-in-time snapshot of morph activity counters.
func (e *Engine) Stats() StatsSnapshot {
	return e.stats.snapshot()
}
