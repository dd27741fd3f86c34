package leaf

import (
	"sort"
	"sync/atomic"

	"lindex/pkg/kv"
	"lindex/pkg/plr"
	"lindex/pkg/rlock"
)

// roBucket is one of ROLeaf's model-addressed buckets: a small sorted
// vector guarded by its own versioned lock, so concurrent stores into
// different buckets never contend.
type roBucket struct {
	lock    rlock.VersionedLock
	records []kv.Record
}

// ROLeaf is the read-optimized, model-indexed leaf (C3): a linear model
// predicts which bucket a key belongs to, and each bucket is a small sorted
// vector probed independently under its own versioned lock.
type ROLeaf struct {
	Header

	model     plr.Model
	probeSize int
	buckets   []roBucket

	count          atomic.Int64
	splitThreshold int
}

// NewROLeaf constructs an empty read-optimized leaf with a pre-trained
// model and bucket count. Used directly by tests and by BuildROLeaf below.
func NewROLeaf(probeSize int, skey kv.Key, model plr.Model, numBuckets, splitThreshold int) *ROLeaf {
	l := &ROLeaf{
		model:          model,
		probeSize:      probeSize,
		buckets:        make([]roBucket, numBuckets),
		splitThreshold: splitThreshold,
	}
	l.SetSplitKey(skey)
	return l
}

// BuildROLeaf fits a model on the central 75% of sorted (to avoid tail
// distortion, per §4.3), scales its output into [margin, leafCapacity -
// margin), and bulk-inserts every record through the resulting bucket
// layout. This is the MARGIN-scaled training technique restored from
// roinner.cc/rwleaf.cc (see DESIGN.md).
func BuildROLeaf(sorted []kv.Record, leafCapacity, probeSize, margin int, skey kv.Key, maxFillRatio float64) *ROLeaf {
	n := len(sorted)

	var b plr.Builder
	lo, hi := n/8, n-n/8
	if hi <= lo {
		lo, hi = 0, n
	}
	for i := lo; i < hi; i++ {
		b.Add(sorted[i].Key, int64(i))
	}
	model, err := b.Build()
	if err != nil {
		model = plr.Model{}
	}

	usable := leafCapacity - 2*margin
	if usable < probeSize {
		usable = probeSize
	}
	scaled := model
	if n > 0 {
		scale := float64(usable) / float64(n)
		scaled = plr.Model{
			Slope:     model.Slope * scale,
			Intercept: model.Intercept*scale + float64(margin),
		}
	}

	numBuckets := (leafCapacity + probeSize - 1) / probeSize
	if numBuckets < 1 {
		numBuckets = 1
	}
	splitThreshold := int(float64(leafCapacity) * maxFillRatio)

	l := NewROLeaf(probeSize, skey, scaled, numBuckets, splitThreshold)
	for _, r := range sorted {
		l.Store(r.Key, r.Value)
	}
	return l
}

func (l *ROLeaf) Kind() Kind   { return KindRO }
func (l *ROLeaf) Hdr() *Header { return &l.Header }
func (l *ROLeaf) Count() int   { return int(l.count.Load()) }

func (l *ROLeaf) bucketFor(k kv.Key) int {
	pos := l.model.PredictRounded(k)
	j := int(pos) / l.probeSize
	if j < 0 {
		j = 0
	}
	if j >= len(l.buckets) {
		j = len(l.buckets) - 1
	}
	return j
}

// Store predicts k's bucket, updates it in place if present, otherwise
// inserts at the sorted position (the backing slice grows via append, Go's
// amortized-doubling growth standing in for the source's explicit x1.5
// vector growth).
func (l *ROLeaf) Store(k kv.Key, v kv.Value) (StoreResult, error) {
	j := l.bucketFor(k)
	b := &l.buckets[j]

	b.lock.Lock()
	idx, found := binarySearchIndex(b.records, k)
	if found {
		b.records[idx].Value = v
	} else {
		b.records = append(b.records, kv.Record{})
		copy(b.records[idx+1:], b.records[idx:len(b.records)-1])
		b.records[idx] = kv.Record{Key: k, Value: v}
	}
	b.lock.Unlock()

	if !found {
		l.count.Add(1)
	}
	l.mirrorStore(k, v)
	if int(l.count.Load()) >= l.splitThreshold {
		return SplitRequired, nil
	}
	return InsertedOk, nil
}

// Lookup predicts k's bucket, reads it with seqlock retry, and falls back
// to the morph shadow (if one is in flight) on a local miss.
func (l *ROLeaf) Lookup(k kv.Key) (kv.Value, bool) {
	j := l.bucketFor(k)
	b := &l.buckets[j]

	var bo rlock.Backoff
	var value kv.Value
	var found bool
	for {
		v, locked := b.lock.ReadBegin()
		if locked {
			bo.Wait()
			continue
		}
		value, found = binarySearch(b.records, k)
		if !b.lock.ReadValidate(v) {
			bo.Wait()
			continue
		}
		break
	}

	if found && value.Present() {
		return value, true
	}
	if shadow := l.Shadow(); shadow != nil {
		if sl := shadow.Load(); sl != nil {
			return sl.Lookup(k)
		}
	}
	return 0, false
}

// Update locates k in its predicted bucket and overwrites the payload.
func (l *ROLeaf) Update(k kv.Key, v kv.Value) bool {
	j := l.bucketFor(k)
	b := &l.buckets[j]

	b.lock.Lock()
	idx, found := binarySearchIndex(b.records, k)
	if found {
		b.records[idx].Value = v
	}
	b.lock.Unlock()
	if !found {
		return false
	}
	l.mirrorUpdate(k, v)
	return true
}

// Remove tombstones k in its predicted bucket.
func (l *ROLeaf) Remove(k kv.Key) bool {
	j := l.bucketFor(k)
	b := &l.buckets[j]

	b.lock.Lock()
	idx, found := binarySearchIndex(b.records, k)
	found = found && b.records[idx].Value.Present()
	if found {
		b.records[idx].Value = 0
	}
	b.lock.Unlock()
	if !found {
		return false
	}
	l.mirrorRemove(k)
	return true
}

// Dump materializes every live record across all buckets in ascending key
// order.
func (l *ROLeaf) Dump() []kv.Record {
	var all []kv.Record
	for i := range l.buckets {
		b := &l.buckets[i]
		b.lock.Lock()
		for _, r := range b.records {
			if r.Value.Present() {
				all = append(all, r)
			}
		}
		b.lock.Unlock()
	}
	sort.Sort(kv.Records(all))
	return all
}

// Scan returns up to n live records starting at the first key >= from,
// following the sibling chain if this leaf runs out first.
func (l *ROLeaf) Scan(from kv.Key, n int) []kv.Record {
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
