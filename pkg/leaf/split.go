package leaf

import "lindex/pkg/kv"

// pivotCount is the number of evenly-spaced sample points used to locate a
// good split index, matching the source's PIVOT_NUM.
const pivotCount = 32

// ChooseSplitIndex implements §4.8: given a sorted dump of n records,
// place pivotCount pivots evenly across the range, interpolate a
// straight line between the first and last record, and pick as the split
// index the midpoint between the two pivots, among the central half of the
// pivots, whose keys deviate furthest from that line — concentrating the post-split models' error on two
// separate regions instead of leaving it all on one side of a naive median
// split. Degenerates to a plain median for inputs too small to sample.
func ChooseSplitIndex(records []kv.Record) int {
	n := len(records)
	if n < 2 {
		return n
	}
	if n <= pivotCount {
		return n / 2
	}

	step := n / pivotCount
	first := records[0]
	last := records[n-1]
	slope := float64(last.Key-first.Key) / float64(n-1)

	lo, hi := pivotCount/4, pivotCount*3/4
	bestIdx1, bestIdx2 := -1, -1
	bestDist1, bestDist2 := -1.0, -1.0

	for p := lo; p < hi; p++ {
		idx := p * step
		if idx >= n {
			break
		}
		predicted := float64(first.Key) + slope*float64(idx)
		dist := float64(records[idx].Key) - predicted
		if dist < 0 {
			dist = -dist
		}
		if dist > bestDist1 {
			bestDist2, bestIdx2 = bestDist1, bestIdx1
			bestDist1, bestIdx1 = dist, idx
		} else if dist > bestDist2 {
			bestDist2, bestIdx2 = dist, idx
		}
	}

	switch {
	case bestIdx1 < 0:
		return n / 2
	case bestIdx2 < 0:
		return bestIdx1
	default:
		mid := (bestIdx1 + bestIdx2) / 2
		if mid <= 0 || mid >= n {
			return n / 2
		}
		return mid
	}
}
