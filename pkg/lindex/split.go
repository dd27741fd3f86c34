package lindex

import (
	"lindex/pkg/kv"
	"lindex/pkg/leaf"
)

// splitLeaf implements §4.2/§4.8's split algorithm generically over both
// leaf kinds: dump all live records, pick a split index biased toward
// where the post-split models will fit well, and install two leaves in
// stale's place. The left half reuses h — every existing sibling pointer
// and directory entry that already referenced h observes the new content
// the instant Store publishes it, exactly the handle-indirection technique
// pkg/leaf.Handle documents. The right half gets a fresh handle, inserted
// into the directory at the pivot key (directory.UpdateChild exists for
// this path's counterpart, reusing a handle, which never happens here).
func (idx *Index) splitLeaf(h *leaf.Handle, stale leaf.Leaf) {
	hdr := stale.Hdr()
	hdr.NodeLock.Lock()
	defer hdr.NodeLock.Unlock()

	if h.Load() != stale {
		// Someone else already split or morphed this leaf out from under
		// us while we were waiting on the lock; the caller's retry loop
		// will see the new state.
		return
	}

	records := stale.Dump()
	if len(records) < 2 {
		return
	}

	cut := leaf.ChooseSplitIndex(records)
	if cut <= 0 || cut >= len(records) {
		cut = len(records) / 2
	}

	leftRecs, rightRecs := records[:cut], records[cut:]
	pivot := rightRecs[0].Key
	upperBound := hdr.SplitKey()
	sibling := hdr.Sibling()

	left := idx.buildLeafFromSorted(stale.Kind(), leftRecs, pivot)
	right := idx.buildLeafFromSorted(stale.Kind(), rightRecs, upperBound)
	rightHandle := leaf.NewHandle(right)

	left.Hdr().SetSibling(rightHandle)
	right.Hdr().SetSibling(sibling)

	hdr.HeaderLock.Lock()
	h.Store(left)
	hdr.HeaderLock.Unlock()

	idx.epochMgr.Retire(stale)
	idx.splitCount.Add(1)
	idx.currentDir().Insert(pivot, rightHandle)

	debugAssert(pivot > kv.KeyMin, "split pivot must exceed KeyMin")
	debugAssert(pivot < upperBound || upperBound == kv.KeyMax, "split pivot must stay below the leaf's upper bound")
}

func (idx *Index) buildLeafFromSorted(kind leaf.Kind, sorted []kv.Record, skey kv.Key) leaf.Leaf {
	if kind == leaf.KindRO {
		return leaf.BuildROLeaf(sorted, idx.cfg.LeafCapacity, idx.cfg.ProbeSize, idx.cfg.Margin, skey, idx.cfg.MaxFillRatio)
	}
	return leaf.NewWOLeafFromSorted(idx.cfg.LeafCapacity, idx.cfg.PieceSize, skey, sorted)
}
