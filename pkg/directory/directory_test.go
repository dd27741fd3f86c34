package directory

import (
	"sort"
	"testing"

	"lindex/pkg/inner"
	"lindex/pkg/kv"
	"lindex/pkg/leaf"
)

func testConfig() Config {
	return Config{Inner: inner.Config{FillRatio: 0.7, OverflowMax: 0.3, Margin: 2}}
}

func childFor(skey kv.Key) Child {
	return leaf.NewHandle(leaf.NewWOLeaf(32, 4, skey))
}

func TestInsertAndLookupWithinTier1(t *testing.T) {
	d := New(testConfig())
	for i := 0; i < 5; i++ {
		d.Insert(kv.Key(i*10), childFor(kv.Key(i*10+10)))
	}
	if d.Count() != 5 {
		t.Fatalf("Count() = %d, want 5", d.Count())
	}
	c, ok := d.Lookup(25)
	if !ok {
		t.Fatal("Lookup(25) should hit")
	}
	want, _ := d.Lookup(20)
	if c != want {
		t.Fatal("Lookup(25) should floor to boundary 20's child")
	}
}

func TestExpandAcrossTiers(t *testing.T) {
	d := New(testConfig())
	const n = 100 // exceeds tier 1 (8) and tier 2 (64), forces growth into tier 3
	for i := 0; i < n; i++ {
		d.Insert(kv.Key(i*10), childFor(kv.Key(i*10+10)))
	}
	if d.Count() != n {
		t.Fatalf("Count() = %d, want %d", d.Count(), n)
	}
	for i := 0; i < n; i++ {
		boundary := kv.Key(i * 10)
		c, ok := d.Lookup(boundary)
		if !ok {
			t.Fatalf("Lookup(%d) missed after tier growth", boundary)
		}
		want, _ := d.Lookup(boundary)
		if c != want {
			t.Fatalf("Lookup(%d) inconsistent", boundary)
		}
	}
}

func TestNeatenRootOnOverflow(t *testing.T) {
	d := New(testConfig())
	const n = 600 // exceeds tier 3's 512 capacity, forces NeatenRoot
	for i := 0; i < n; i++ {
		d.Insert(kv.Key(i*10), childFor(kv.Key(i*10+10)))
	}
	if d.learned == nil {
		t.Fatal("expected NeatenRoot to have rebuilt into a learned inner node")
	}
	if d.Count() != n {
		t.Fatalf("Count() = %d, want %d", d.Count(), n)
	}
	for i := 0; i < n; i++ {
		boundary := kv.Key(i * 10)
		if _, ok := d.Lookup(boundary); !ok {
			t.Fatalf("Lookup(%d) missed after NeatenRoot", boundary)
		}
	}
}

func TestUpdateChild(t *testing.T) {
	d := New(testConfig())
	for i := 0; i < 20; i++ {
		d.Insert(kv.Key(i*10), childFor(kv.Key(i*10+10)))
	}
	replacement := childFor(kv.KeyMax)
	if !d.UpdateChild(50, replacement) {
		t.Fatal("UpdateChild of an existing boundary should succeed")
	}
	c, _ := d.Lookup(50)
	if c != replacement {
		t.Fatal("Lookup after UpdateChild should see the replacement")
	}
	if d.UpdateChild(999999, replacement) {
		t.Fatal("UpdateChild of an absent boundary should fail")
	}
}

func TestDumpSorted(t *testing.T) {
	d := New(testConfig())
	for i := 19; i >= 0; i-- {
		d.Insert(kv.Key(i*10), childFor(kv.Key(i*10+10)))
	}
	got := d.Dump()
	if len(got) != 20 {
		t.Fatalf("Dump returned %d entries, want 20", len(got))
	}
	if !sort.SliceIsSorted(got, func(i, j int) bool { return got[i].Boundary < got[j].Boundary }) {
		t.Fatal("Dump is not sorted")
	}
}
