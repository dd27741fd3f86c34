package leaf

import (
	"math/bits"
	"sync/atomic"

	"lindex/pkg/kv"
	"lindex/pkg/rlock"
)

// Header holds the fields every leaf layout shares: the generation counter,
// the rolling access-pattern bitmap the morph engine samples, the sibling
// and shadow links, the node-level locks, and the split key. WOLeaf and
// ROLeaf each embed one.
type Header struct {
	lsn     atomic.Uint32
	stats   atomic.Uint64
	sibling atomic.Pointer[Handle]
	shadow  atomic.Pointer[Handle]
	skey    atomic.Int64

	NodeLock   rlock.NodeLock
	HeaderLock rlock.HeaderLock
}

// LSN returns the current generation counter, bumped once per scheduled
// morph so a second observer racing to schedule the same transition can
// recognize it already happened.
func (h *Header) LSN() uint32 { return h.lsn.Load() }

// BumpLSN increments and returns the new generation counter.
func (h *Header) BumpLSN() uint32 { return h.lsn.Add(1) }

// RecordAccess folds one more access into the 64-bit rolling bitmap (1 for
// a write, 0 for a read) and returns the new popcount — the morph engine's
// decision input.
func (h *Header) RecordAccess(isWrite bool) (popcount int) {
	for {
		old := h.stats.Load()
		next := old << 1
		if isWrite {
			next |= 1
		}
		if h.stats.CompareAndSwap(old, next) {
			return bits.OnesCount64(next)
		}
	}
}

// Stats returns the raw rolling bitmap, for diagnostics.
func (h *Header) Stats() uint64 { return h.stats.Load() }

// Sibling returns the handle of the next leaf in key order, or nil for the
// rightmost leaf.
func (h *Header) Sibling() *Handle { return h.sibling.Load() }

// SetSibling relinks the sibling pointer; only ever called under NodeLock.
func (h *Header) SetSibling(next *Handle) { h.sibling.Store(next) }

// Shadow returns the in-progress morph target, or nil if no morph is under
// way.
func (h *Header) Shadow() *Handle { return h.shadow.Load() }

// SetShadow publishes or clears the morph shadow.
func (h *Header) SetShadow(s *Handle) { h.shadow.Store(s) }

// mirrorStore, mirrorUpdate, and mirrorRemove forward a just-applied mutation
// to the in-progress morph target, if any, so a write landing on the old
// leaf while a migration is under way is never visible only there. This is
// the write-side counterpart of Lookup's read-through-shadow-on-miss: §4.5
// step 2 requires every write to the old leaf to also reach the new one.
func (h *Header) mirrorStore(k kv.Key, v kv.Value) {
	if s := h.Shadow(); s != nil {
		if sl := s.Load(); sl != nil {
			_, _, _ = Insert(sl, k, v)
		}
	}
}

func (h *Header) mirrorUpdate(k kv.Key, v kv.Value) {
	if s := h.Shadow(); s != nil {
		if sl := s.Load(); sl != nil {
			sl.Update(k, v)
		}
	}
}

func (h *Header) mirrorRemove(k kv.Key) {
	if s := h.Shadow(); s != nil {
		if sl := s.Load(); sl != nil {
			sl.Remove(k)
		}
	}
}

// SplitKey returns the exclusive upper bound of this leaf's key range.
func (h *Header) SplitKey() kv.Key { return kv.Key(h.skey.Load()) }

// SetSplitKey updates the exclusive upper bound; only ever called under
// NodeLock or during construction.
func (h *Header) SetSplitKey(k kv.Key) { h.skey.Store(int64(k)) }
