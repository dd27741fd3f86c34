package leaf

import (
	"sort"

	"lindex/pkg/kv"
	"lindex/pkg/rlock"
)

// WOLeaf is the write-optimized, log-structured leaf (C2): a dense record
// array of fixed capacity, appended to at the tail; records in
// [initial, readonly) are partitioned into sorted pieces of size P, and
// [readonly, readable) is an unsorted tail scanned linearly.
type WOLeaf struct {
	Header

	seq rlock.VersionedLock // guards every mutation of records/counters

	capacity  int
	pieceSize int

	records  []kv.Record
	initial  int // count, fixed at construction (the bulk-loaded prefix)
	readonly int
	readable int
}

// NewWOLeaf constructs an empty write-optimized leaf with the given
// capacity and piece size, covering [ , skey).
func NewWOLeaf(capacity, pieceSize int, skey kv.Key) *WOLeaf {
	l := &WOLeaf{
		capacity:  capacity,
		pieceSize: pieceSize,
		records:   make([]kv.Record, capacity),
	}
	l.SetSplitKey(skey)
	return l
}

// NewWOLeafFromSorted builds a write-optimized leaf already populated from
// a sorted record slice — the bulk-load / split / morph-target path. The
// whole prefix becomes the `initial` region: it is already sorted, so no
// piece-sorting work is needed until further inserts arrive.
func NewWOLeafFromSorted(capacity, pieceSize int, skey kv.Key, sorted []kv.Record) *WOLeaf {
	l := NewWOLeaf(capacity, pieceSize, skey)
	n := copy(l.records, sorted)
	l.initial = n
	l.readonly = n
	l.readable = n
	return l
}

func (l *WOLeaf) Kind() Kind    { return KindWO }
func (l *WOLeaf) Hdr() *Header  { return &l.Header }
func (l *WOLeaf) Count() int {
	l.seq.Lock()
	defer l.seq.Unlock()
	return l.liveCountLocked()
}

func (l *WOLeaf) liveCountLocked() int {
	n := 0
	for i := 0; i < l.readable; i++ {
		if l.records[i].Value.Present() {
			n++
		}
	}
	return n
}

// Store appends (k, v) at readable, closing a piece whenever a full
// pieceSize run has accumulated since the last close.
func (l *WOLeaf) Store(k kv.Key, v kv.Value) (StoreResult, error) {
	l.seq.Lock()
	if l.readable >= l.capacity {
		l.seq.Unlock()
		return SplitRequired, nil
	}

	l.records[l.readable] = kv.Record{Key: k, Value: v}
	l.readable++

	if l.readable-l.readonly >= l.pieceSize {
		sort.Sort(kv.Records(l.records[l.readonly:l.readable]))
		l.readonly = l.readable
	}
	full := l.readable >= l.capacity
	l.seq.Unlock()

	l.mirrorStore(k, v)

	if full {
		return SplitRequired, nil
	}
	return InsertedOk, nil
}

// Lookup binary-searches the sorted prefix and each sorted piece, then
// linear-scans the unsorted tail, retrying the whole read if a concurrent
// writer was detected in flight.
func (l *WOLeaf) Lookup(k kv.Key) (kv.Value, bool) {
	var bo rlock.Backoff
	for {
		v, locked := l.seq.ReadBegin()
		if locked {
			bo.Wait()
			continue
		}

		initial, readonly, readable := l.initial, l.readonly, l.readable

		value, found := binarySearch(l.records[:initial], k)
		if !found {
			for start := initial; start < readonly; start += l.pieceSize {
				end := min(start+l.pieceSize, readonly)
				if value, found = binarySearch(l.records[start:end], k); found {
					break
				}
			}
		}
		if !found {
			for i := readonly; i < readable; i++ {
				if l.records[i].Key == k {
					value, found = l.records[i].Value, true
					break
				}
			}
		}

		if !l.seq.ReadValidate(v) {
			bo.Wait()
			continue
		}
		if found && value.Present() {
			return value, true
		}
		break
	}

	if shadow := l.Shadow(); shadow != nil {
		if sl := shadow.Load(); sl != nil {
			return sl.Lookup(k)
		}
	}
	return 0, false
}

// Update locates k via the same search as Lookup and overwrites its payload
// in place, reporting whether k was present.
func (l *WOLeaf) Update(k kv.Key, v kv.Value) bool {
	l.seq.Lock()
	idx, found := l.locateLocked(k)
	if found {
		l.records[idx].Value = v
	}
	l.seq.Unlock()
	if !found {
		return false
	}
	l.mirrorUpdate(k, v)
	return true
}

// Remove tombstones k in place (writes a zero payload), reporting whether k
// was present.
func (l *WOLeaf) Remove(k kv.Key) bool {
	l.seq.Lock()
	idx, found := l.locateLocked(k)
	found = found && l.records[idx].Value.Present()
	if found {
		l.records[idx].Value = 0
	}
	l.seq.Unlock()
	if !found {
		return false
	}
	l.mirrorRemove(k)
	return true
}

func (l *WOLeaf) locateLocked(k kv.Key) (int, bool) {
	if idx, ok := binarySearchIndex(l.records[:l.initial], k); ok {
		return idx, true
	}
	for start := l.initial; start < l.readonly; start += l.pieceSize {
		end := min(start+l.pieceSize, l.readonly)
		if idx, ok := binarySearchIndex(l.records[start:end], k); ok {
			return idx, true
		}
	}
	for i := l.readonly; i < l.readable; i++ {
		if l.records[i].Key == k {
			return i, true
		}
	}
	return 0, false
}

// Dump returns every live record in ascending key order via a k-way merge
// of the sorted prefix, each sorted piece, and a sorted copy of the tail.
func (l *WOLeaf) Dump() []kv.Record {
	l.seq.Lock()
	runs := l.sortedRunsLocked()
	l.seq.Unlock()
	return mergeSortedRuns(runs)
}

// sortedRunsLocked must be called with seq held; it never mutates the
// persistent tail layout, instead sorting a private copy for the merge.
func (l *WOLeaf) sortedRunsLocked() [][]kv.Record {
	var runs [][]kv.Record
	if l.initial > 0 {
		runs = append(runs, l.records[:l.initial])
	}
	for start := l.initial; start < l.readonly; start += l.pieceSize {
		end := min(start+l.pieceSize, l.readonly)
		runs = append(runs, l.records[start:end])
	}
	if l.readable > l.readonly {
		tail := make([]kv.Record, l.readable-l.readonly)
		copy(tail, l.records[l.readonly:l.readable])
		sort.Sort(kv.Records(tail))
		runs = append(runs, tail)
	}
	return runs
}

// Scan returns up to n live records starting at the first key >= from,
// following the sibling chain if this leaf runs out before n is reached.
func (l *WOLeaf) Scan(from kv.Key, n int) []kv.Record {
	if n <= 0 {
		return nil
	}
	all := l.Dump()
	start := sort.Search(len(all), func(i int) bool { return all[i].Key >= from })
	end := min(start+n, len(all))
	out := append([]kv.Record(nil), all[start:end]...)

	if len(out) < n {
		if sib := l.Sibling(); sib != nil {
			if next := sib.Load(); next != nil {
				out = append(out, next.Scan(kv.KeyMin, n-len(out))...)
			}
		}
	}
	return out
}

func binarySearch(run []kv.Record, k kv.Key) (kv.Value, bool) {
	idx, ok := binarySearchIndex(run, k)
	if !ok {
		return 0, false
	}
	return run[idx].Value, true
}

func binarySearchIndex(run []kv.Record, k kv.Key) (int, bool) {
	lo, hi := 0, len(run)
	for lo < hi {
		mid := (lo + hi) / 2
		if run[mid].Key < k {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo < len(run) && run[lo].Key == k {
		return lo, true
	}
	return 0, false
}
