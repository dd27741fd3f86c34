// Package leaf implements the two leaf layouts C2/C3 describes — WOLeaf
// (write-optimized, log-structured) and ROLeaf (read-optimized, model
// indexed bucket array) — behind a common Leaf interface, plus the header
// every leaf shares and the split-key selection sub-algorithm (§4.8).
package leaf

import "lindex/pkg/kv"

// Kind tags which concrete layout a Leaf is, the Go sum-type discriminant
// standing in for the source header's node_type byte.
type Kind uint8

const (
	KindWO Kind = iota
	KindRO
)

func (k Kind) String() string {
	if k == KindRO {
		return "RO"
	}
	return "WO"
}

// StoreResult is the outcome of a Leaf.Store call.
type StoreResult int

const (
	InsertedOk StoreResult = iota
	SplitRequired
)

// Leaf is the common surface both layouts implement; the morph engine,
// inner nodes, and the root directory operate on leaves exclusively through
// this interface so they never need to know which layout they're holding.
type Leaf interface {
	Kind() Kind
	Hdr() *Header

	Store(k kv.Key, v kv.Value) (StoreResult, error)
	Lookup(k kv.Key) (kv.Value, bool)
	Update(k kv.Key, v kv.Value) bool
	Remove(k kv.Key) bool
	Scan(from kv.Key, n int) []kv.Record
	Dump() []kv.Record
	Count() int
}

// Insert is the insert-or-update combinator the external Index interface
// needs: try Update first (the key may already live in the leaf), falling
// back to Store (append/bucket-insert a genuinely new key) otherwise. It
// reports true when a new key was inserted, false when an existing one was
// updated, mirroring the source's treatment of store as append-only and
// update as the in-place path.
func Insert(l Leaf, k kv.Key, v kv.Value) (inserted bool, result StoreResult, err error) {
	if l.Update(k, v) {
		return false, InsertedOk, nil
	}
	res, err := l.Store(k, v)
	return true, res, err
}
