// pkg/kv/types.go
// Package kv defines the key, value, and record primitives shared by every
// layer of the learned index: the model fitter, the leaf layouts, the inner
// nodes, and the root directory all operate on these same three types.
package kv

import "math"

// Key is the totally ordered scalar the index is keyed on.
type Key int64

// Value is an opaque fixed-width payload. Zero means "no payload" — a
// tombstone or an unused slot, never a legitimate stored value.
type Value uint64

// KeyMin is the lowest representable key. It marks empty slots in bucketed
// layouts and is never a valid inserted key.
const KeyMin Key = math.MinInt64

// KeyMax is the highest representable key, used as the sentinel split key
// of the rightmost leaf in the sibling chain (I2).
const KeyMax Key = math.MaxInt64

// Record is a single (key, value) pair.
type Record struct {
	Key   Key
	Value Value
}

// Records implements sort.Interface over a key-ascending slice of Record.
type Records []Record

func (r Records) Len() int           { return len(r) }
func (r Records) Less(i, j int) bool { return r[i].Key < r[j].Key }
func (r Records) Swap(i, j int)      { r[i], r[j] = r[j], r[i] }

// Present reports whether v represents a stored payload rather than a
// tombstone or an empty slot.
func (v Value) Present() bool { return v != 0 }
