package leaf

import "sync/atomic"

// Handle is the parent-held indirection a Leaf sits behind. A split gives a
// new leaf its own Handle; a morph reuses the existing Handle and swaps only
// what it points to, so every sibling pointer and every inner-node child
// slot that already referenced this Handle observes the new layout the
// instant the swap happens, with no memcpy or aliasing required — this is
// the Go-native replacement for the source's in-place header-swap-by-memcpy
// trick (see design notes on handle indirection).
type Handle struct {
	p atomic.Pointer[Leaf]
}

// NewHandle returns a Handle currently pointing at l.
func NewHandle(l Leaf) *Handle {
	h := &Handle{}
	h.Store(l)
	return h
}

// Load returns the leaf currently behind the handle, or nil if none.
func (h *Handle) Load() Leaf {
	if h == nil {
		return nil
	}
	lp := h.p.Load()
	if lp == nil {
		return nil
	}
	return *lp
}

// Store atomically publishes l as the handle's new target. This is the
// single instruction that makes a split's new sibling or a morph's new
// layout visible to every existing holder of the handle.
func (h *Handle) Store(l Leaf) {
	h.p.Store(&l)
}

// CompareAndSwap atomically swaps old for new, used by the morph engine's
// header-swap step so a concurrent swap attempt (which should never happen
// under the node lock, but is guarded anyway) fails loudly rather than
// silently overwriting.
func (h *Handle) CompareAndSwap(old, new Leaf) bool {
	oldP := h.p.Load()
	if oldP == nil || *oldP != old {
		return false
	}
	return h.p.CompareAndSwap(oldP, &new)
}
