// Package morph implements the live migration of a leaf between the
// write-optimized and read-optimized layouts based on its recent access
// pattern: a popcount over a shift-register of write/read bits decides when
// a leaf has become write-heavy or read-heavy enough to switch shape.
package morph

import "lindex/pkg/leaf"

// Thresholds are the popcount cutoffs over a leaf's access-pattern window
// that decide a morph direction. A window recording mostly writes drives
// the popcount up; mostly reads drives it down.
type Thresholds struct {
	// Low triggers WOLeaf -> ROLeaf once popcount falls to or below it.
	Low uint8
	// High triggers ROLeaf -> WOLeaf once popcount rises to or above it.
	High uint8
}

// DefaultThresholds matches the values basenode.cc trains against: a leaf
// recording 44 or fewer writes out of its last 64 accesses goes read-
// optimized, and one recording 56 or more goes write-optimized.
var DefaultThresholds = Thresholds{Low: 44, High: 56}

// Config bundles everything the engine needs to build a replacement leaf
// and to schedule the work.
type Config struct {
	Thresholds   Thresholds
	LeafCapacity int
	PieceSize    int
	ProbeSize    int
	Margin       int
	MaxFillRatio float64
	// Background, when true, hands morph work to the worker pool instead of
	// running it inline on the caller's goroutine.
	Background bool
}

// decideTarget reports the layout a leaf with the given current kind and
// access popcount should switch to, if any.
func decideTarget(kind leaf.Kind, popcount int, th Thresholds) (leaf.Kind, bool) {
	switch kind {
	case leaf.KindWO:
		if popcount <= int(th.Low) {
			return leaf.KindRO, true
		}
	case leaf.KindRO:
		if popcount >= int(th.High) {
			return leaf.KindWO, true
		}
	}
	return kind, false
}

// buildTarget constructs a fresh leaf of the target kind holding the same
// records, split key and sibling as src.
func buildTarget(src leaf.Leaf, target leaf.Kind, cfg Config) leaf.Leaf {
	sorted := src.Dump()
	skey := src.Hdr().SplitKey()

	var out leaf.Leaf
	switch target {
	case leaf.KindRO:
		out = leaf.BuildROLeaf(sorted, cfg.LeafCapacity, cfg.ProbeSize, cfg.Margin, skey, cfg.MaxFillRatio)
	case leaf.KindWO:
		out = leaf.NewWOLeafFromSorted(cfg.LeafCapacity, cfg.PieceSize, skey, sorted)
	}
	out.Hdr().SetSibling(src.Hdr().Sibling())
	return out
}
