package lindex

import (
	"sort"
	"testing"

	"lindex/pkg/kv"
)

func smallConfig() Config {
	cfg := DefaultConfig()
	cfg.LeafCapacity = 32
	cfg.PieceSize = 4
	cfg.ProbeSize = 4
	cfg.InitialFillRatio = 0.6
	cfg.MaxFillRatio = 0.9
	cfg.Margin = 2
	return cfg
}

func recordsOf(pairs ...int64) []kv.Record {
	out := make([]kv.Record, len(pairs)/2)
	for i := range out {
		out[i] = kv.Record{Key: kv.Key(pairs[2*i]), Value: kv.Value(pairs[2*i+1])}
	}
	return out
}

// S1: bulk-load a handful of keys, check lookup/miss/scan.
func TestBulkLoadLookupAndScan(t *testing.T) {
	idx := New(smallConfig())
	if err := idx.BulkLoad(recordsOf(10, 100, 20, 200, 30, 300, 40, 400, 50, 500)); err != nil {
		t.Fatalf("BulkLoad: %v", err)
	}

	if v, ok := idx.Lookup(30); !ok || v != 300 {
		t.Fatalf("Lookup(30) = (%v, %v), want (300, true)", v, ok)
	}
	if _, ok := idx.Lookup(25); ok {
		t.Fatal("Lookup(25) should miss")
	}

	got := idx.Scan(15, 3)
	want := recordsOf(20, 200, 30, 300, 40, 400)
	assertRecordsEqual(t, got, want)
}

// S2: insert out of order from empty, verify every key is visible after
// each insert and a full scan returns them in ascending order.
func TestInsertFromEmptyThenScanAscending(t *testing.T) {
	idx := New(smallConfig())
	inserts := recordsOf(5, 50, 1, 10, 3, 30, 2, 20, 4, 40)
	for _, r := range inserts {
		if _, err := idx.Insert(r.Key, r.Value); err != nil {
			t.Fatalf("Insert(%d): %v", r.Key, err)
		}
		if v, ok := idx.Lookup(r.Key); !ok || v != r.Value {
			t.Fatalf("Lookup(%d) after insert = (%v,%v), want (%v,true)", r.Key, v, ok, r.Value)
		}
	}

	got := idx.Scan(0, 10)
	want := recordsOf(1, 10, 2, 20, 3, 30, 4, 40, 5, 50)
	assertRecordsEqual(t, got, want)
}

// P1/P2: last-write-wins and tombstone-then-miss.
func TestUpdateOverwritesAndRemoveTombstones(t *testing.T) {
	idx := New(smallConfig())
	if _, err := idx.Insert(7, 70); err != nil {
		t.Fatal(err)
	}
	if !idx.Update(7, 700) {
		t.Fatal("Update on an existing key should succeed")
	}
	if v, ok := idx.Lookup(7); !ok || v != 700 {
		t.Fatalf("Lookup(7) = (%v,%v), want (700,true)", v, ok)
	}

	if !idx.Remove(7) {
		t.Fatal("Remove on an existing key should succeed")
	}
	if _, ok := idx.Lookup(7); ok {
		t.Fatal("Lookup after Remove should miss")
	}
	if idx.Remove(7) {
		t.Fatal("Remove of an already-removed key should report false")
	}

	inserted, err := idx.Insert(7, 7000)
	if err != nil {
		t.Fatal(err)
	}
	_ = inserted // insert-after-remove is reported via leaf.Insert's own contract (see DESIGN.md)
	if v, ok := idx.Lookup(7); !ok || v != 7000 {
		t.Fatalf("Lookup(7) after reinsert = (%v,%v), want (7000,true)", v, ok)
	}
}

func TestInsertRejectsZeroValue(t *testing.T) {
	idx := New(smallConfig())
	if _, err := idx.Insert(1, 0); err != ErrInvalidValue {
		t.Fatalf("Insert with v=0: err = %v, want ErrInvalidValue", err)
	}
}

// B1: extreme keys.
func TestBoundaryKeys(t *testing.T) {
	idx := New(smallConfig())
	if _, err := idx.Insert(kv.KeyMin+1, 1); err != nil {
		t.Fatalf("Insert(KeyMin+1): %v", err)
	}
	if _, err := idx.Insert(kv.KeyMax-1, 2); err != nil {
		t.Fatalf("Insert(KeyMax-1): %v", err)
	}
	if v, ok := idx.Lookup(kv.KeyMin + 1); !ok || v != 1 {
		t.Fatalf("Lookup(KeyMin+1) = (%v,%v)", v, ok)
	}
	if v, ok := idx.Lookup(kv.KeyMax - 1); !ok || v != 2 {
		t.Fatalf("Lookup(KeyMax-1) = (%v,%v)", v, ok)
	}
}

// B2: bulk-loading n=0 and n=1.
func TestBulkLoadEmptyAndSingleton(t *testing.T) {
	empty := New(smallConfig())
	if err := empty.BulkLoad(nil); err != nil {
		t.Fatalf("BulkLoad(nil): %v", err)
	}
	if _, ok := empty.Lookup(1); ok {
		t.Fatal("empty index should have nothing")
	}
	if _, err := empty.Insert(1, 10); err != nil {
		t.Fatalf("Insert into freshly bulk-loaded-empty index: %v", err)
	}
	if v, ok := empty.Lookup(1); !ok || v != 10 {
		t.Fatalf("Lookup(1) = (%v,%v), want (10,true)", v, ok)
	}

	single := New(smallConfig())
	if err := single.BulkLoad(recordsOf(42, 420)); err != nil {
		t.Fatalf("BulkLoad singleton: %v", err)
	}
	if v, ok := single.Lookup(42); !ok || v != 420 {
		t.Fatalf("Lookup(42) = (%v,%v), want (420,true)", v, ok)
	}
}

// B3: scan with n=0 and n>total.
func TestScanBoundaries(t *testing.T) {
	idx := New(smallConfig())
	if err := idx.BulkLoad(recordsOf(1, 1, 2, 2, 3, 3)); err != nil {
		t.Fatal(err)
	}
	if got := idx.Scan(0, 0); len(got) != 0 {
		t.Fatalf("Scan(0,0) = %v, want empty", got)
	}
	got := idx.Scan(0, 1000)
	want := recordsOf(1, 1, 2, 2, 3, 3)
	assertRecordsEqual(t, got, want)
}

func TestBulkLoadRejectsUnsorted(t *testing.T) {
	idx := New(smallConfig())
	if err := idx.BulkLoad(recordsOf(2, 20, 1, 10)); err != ErrUnsorted {
		t.Fatalf("BulkLoad(unsorted): err = %v, want ErrUnsorted", err)
	}
}

// S3: enough sequential inserts to force at least two splits; sibling
// traversal via Scan must still return every key in order (P3/P4).
func TestSequentialInsertsForceSplits(t *testing.T) {
	cfg := smallConfig()
	idx := New(cfg)
	n := 4 * cfg.LeafCapacity

	for i := 0; i < n; i++ {
		if _, err := idx.Insert(kv.Key(i), kv.Value(i+1)); err != nil {
			t.Fatalf("Insert(%d): %v", i, err)
		}
	}

	if idx.Stats().SplitCount < 2 {
		t.Fatalf("SplitCount = %d, want >= 2", idx.Stats().SplitCount)
	}

	got := idx.Scan(kv.KeyMin, n+10)
	if len(got) != n {
		t.Fatalf("Scan returned %d records, want %d", len(got), n)
	}
	if !sort.SliceIsSorted(got, func(i, j int) bool { return got[i].Key < got[j].Key }) {
		t.Fatal("Scan result is not ascending")
	}
	for i, r := range got {
		if r.Key != kv.Key(i) || r.Value != kv.Value(i+1) {
			t.Fatalf("record %d = %+v, want {%d %d}", i, r, i, i+1)
		}
	}

	if v, ok := idx.Lookup(kv.Key(n - 1)); !ok || v != kv.Value(n) {
		t.Fatalf("Lookup(N-1) = (%v,%v), want (%d,true)", v, ok, n)
	}
}

// P5/P8: a split (and, indirectly, a morph) must preserve the exact set of
// live records observable through the root.
func TestSplitPreservesLiveSet(t *testing.T) {
	cfg := smallConfig()
	cfg.MorphingEnabled = false
	idx := New(cfg)

	const n = 200
	inSet := make(map[kv.Key]kv.Value, n)
	for i := 0; i < n; i++ {
		k, v := kv.Key(i*3), kv.Value(i*3+1)
		if _, err := idx.Insert(k, v); err != nil {
			t.Fatalf("Insert(%d): %v", k, err)
		}
		inSet[k] = v
	}

	got := idx.Scan(kv.KeyMin, n+1)
	if len(got) != len(inSet) {
		t.Fatalf("Scan returned %d records, want %d", len(got), len(inSet))
	}
	for _, r := range got {
		if want, ok := inSet[r.Key]; !ok || want != r.Value {
			t.Fatalf("unexpected record %+v", r)
		}
	}
}

func assertRecordsEqual(t *testing.T, got, want []kv.Record) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d (%v vs %v)", len(got), len(want), got, want)
	}
	for i := range got {
		if got[i] != want[i] {
			t.Fatalf("record %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}
