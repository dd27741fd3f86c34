package plr

import "golang.org/x/exp/constraints"

// RankOf narrows any integer index type to the int64 rank Add and Fit
// expect. Bulk-load callers often carry their position counter in whatever
// integer width their own batching uses (uint32 page offsets, for
// instance); RankOf saves them a manual cast at every call site.
func RankOf[T constraints.Integer](i T) int64 { return int64(i) }
