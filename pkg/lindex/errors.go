package lindex

import "errors"

// Sentinel errors: every operation that can fail reports one of these
// rather than a formatted/wrapped error, so callers can compare with
// errors.Is.
var (
	// ErrTreeClosed is returned by Insert, BulkLoad and Close when called
	// after Close.
	ErrTreeClosed = errors.New("lindex: index is closed")
	// ErrInvalidValue is returned by Insert when v is the zero value, which
	// is reserved to mean "tombstone" (kv.Value.Present).
	ErrInvalidValue = errors.New("lindex: value must be non-zero")
	// ErrKeyOutOfRange surfaces only a directory invariant violation (no
	// leaf claims the key's range) and should never occur in normal
	// operation — the leftmost leaf always starts at kv.KeyMin.
	ErrKeyOutOfRange = errors.New("lindex: key not covered by any leaf")
	// ErrUnsorted is returned by BulkLoad when the input is not strictly
	// ascending by key, which bulk_load's contract requires.
	ErrUnsorted = errors.New("lindex: bulk_load input is not strictly ascending")
)
