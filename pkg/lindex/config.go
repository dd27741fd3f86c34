package lindex

import "lindex/pkg/morph"

// Config bundles every tunable the index consumes at construction — a
// single-struct-at-New pattern standing in for scattered global constants
// (N_L, P, B, MARGIN, ...) and the "Recognized configuration options"
// table (§6).
type Config struct {
	// MorphingEnabled gates C5 entirely; false means leaves keep whatever
	// layout BulkLoad or a split gave them forever.
	MorphingEnabled bool
	// LeafCapacity is N_L, the hard per-leaf record capacity.
	LeafCapacity int
	// PieceSize is P, the WOLeaf sorted-piece width.
	PieceSize int
	// ProbeSize is B, the ROLeaf bucket size.
	ProbeSize int
	// EpsilonLeaf is the PLR error bound (in slots) the streaming fitter
	// enforces when BulkLoad segments sorted_records into leaves.
	EpsilonLeaf float64
	// EpsilonInner is accepted for parity with the option table but unused:
	// the inner-node and ROLeaf model builders restored from
	// roinner.cc/rwleaf.cc (pkg/plr.Builder) fit a single least-squares
	// segment over a fixed central window rather than an error-bounded
	// multi-segment stream, so there is no error bound to thread through —
	// see DESIGN.md.
	EpsilonInner float64
	// InitialFillRatio targets this fraction of LeafCapacity per leaf after
	// BulkLoad and after a split.
	InitialFillRatio float64
	// MaxFillRatio is the ROLeaf split threshold and the inner-node/
	// directory sizing target (rho_inner).
	MaxFillRatio float64
	// OverflowMaxRatio is OF_MAX, the inner-node overflow/count ratio that
	// triggers a rebuild.
	OverflowMaxRatio float64
	// MorphThresholds are W_low/W_high for the popcount morph decision.
	MorphThresholds morph.Thresholds
	// BackgroundMorph hands scheduled morphs to a worker pool instead of
	// running them inline on the caller's goroutine.
	BackgroundMorph bool
	// Margin is MARGIN, the slot margin left clear at each end of a
	// trained model's predicted range (ROLeaf and inner node alike).
	Margin int
	// Metrics opts into Index.Collector() returning a non-nil
	// prometheus.Collector. Left false, Collector always returns nil so a
	// caller never pays for metric registration it didn't ask for.
	Metrics bool
}

// DefaultConfig returns reasonable defaults for a general-purpose index.
func DefaultConfig() Config {
	return Config{
		MorphingEnabled:  true,
		LeafCapacity:     1280,
		PieceSize:        128,
		ProbeSize:        16,
		EpsilonLeaf:      8,
		EpsilonInner:     8,
		InitialFillRatio: 0.6,
		MaxFillRatio:     0.9,
		OverflowMaxRatio: 0.3,
		MorphThresholds:  morph.DefaultThresholds,
		BackgroundMorph:  false,
		Margin:           8,
	}
}
