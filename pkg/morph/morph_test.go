package morph

import (
	"testing"

	"lindex/pkg/epoch"
	"lindex/pkg/kv"
	"lindex/pkg/leaf"
)

func testConfig(background bool) Config {
	return Config{
		Thresholds:   DefaultThresholds,
		LeafCapacity: 256,
		PieceSize:    8,
		ProbeSize:    8,
		Margin:       4,
		MaxFillRatio: 0.9,
		Background:   background,
	}
}

// Popcount tracks writes (1) vs reads (0) over the last 64 accesses: a low
// popcount means a read-heavy leaf, which should become read-optimized; a
// high popcount means a write-heavy leaf, which should become
// write-optimized.

func TestDecideTargetReadHeavyTriggersReadOptimized(t *testing.T) {
	if _, ok := decideTarget(leaf.KindWO, 44, DefaultThresholds); !ok {
		t.Fatal("popcount at Low threshold should trigger WO->RO")
	}
	if _, ok := decideTarget(leaf.KindWO, 45, DefaultThresholds); ok {
		t.Fatal("popcount above Low threshold should not trigger")
	}
}

func TestDecideTargetWriteHeavyTriggersWriteOptimized(t *testing.T) {
	if _, ok := decideTarget(leaf.KindRO, 56, DefaultThresholds); !ok {
		t.Fatal("popcount at High threshold should trigger RO->WO")
	}
	if _, ok := decideTarget(leaf.KindRO, 55, DefaultThresholds); ok {
		t.Fatal("popcount below High threshold should not trigger")
	}
}

func TestJudgeMorphsReadHeavyLeafInline(t *testing.T) {
	l := leaf.NewWOLeaf(256, 8, kv.KeyMax)
	for i := kv.Key(0); i < 50; i++ {
		l.Store(i, kv.Value(i+1))
	}
	h := leaf.NewHandle(l)

	mgr := epoch.NewManager()
	e := New(testConfig(false), mgr)

	var triggered bool
	for i := 0; i < 64; i++ {
		if e.Judge(h, false) {
			triggered = true
			break
		}
	}
	if !triggered {
		t.Fatal("64 consecutive reads should eventually trigger a WO->RO morph")
	}
	if h.Load().Kind() != leaf.KindRO {
		t.Fatalf("leaf kind after morph = %v, want RO", h.Load().Kind())
	}

	for i := kv.Key(0); i < 50; i++ {
		v, ok := h.Load().Lookup(i)
		if !ok || v != kv.Value(i+1) {
			t.Fatalf("record %d lost across morph: got %v, %v", i, v, ok)
		}
	}
}

func TestJudgeMorphsWriteHeavyLeafInline(t *testing.T) {
	var recs []kv.Record
	for i := kv.Key(0); i < 100; i++ {
		recs = append(recs, kv.Record{Key: i, Value: kv.Value(i + 1)})
	}
	l := leaf.BuildROLeaf(recs, 256, 8, 4, kv.KeyMax, 0.9)
	h := leaf.NewHandle(l)

	mgr := epoch.NewManager()
	e := New(testConfig(false), mgr)

	var triggered bool
	for i := 0; i < 64; i++ {
		if e.Judge(h, true) {
			triggered = true
			break
		}
	}
	if !triggered {
		t.Fatal("64 consecutive writes should eventually trigger a RO->WO morph")
	}
	if h.Load().Kind() != leaf.KindWO {
		t.Fatalf("leaf kind after morph = %v, want WO", h.Load().Kind())
	}
	for _, r := range recs {
		v, ok := h.Load().Lookup(r.Key)
		if !ok || v != r.Value {
			t.Fatalf("record %d lost across morph: got %v, %v", r.Key, v, ok)
		}
	}
}

func TestJudgeBackgroundPool(t *testing.T) {
	l := leaf.NewWOLeaf(256, 8, kv.KeyMax)
	for i := kv.Key(0); i < 50; i++ {
		l.Store(i, kv.Value(i+1))
	}
	h := leaf.NewHandle(l)

	mgr := epoch.NewManager()
	e := New(testConfig(true), mgr)
	e.Start()
	defer e.Stop()

	var scheduled bool
	for i := 0; i < 64; i++ {
		if e.Judge(h, false) {
			scheduled = true
			break
		}
	}
	if !scheduled {
		t.Fatal("64 consecutive reads should eventually schedule a morph")
	}
	e.Stop()

	stats := e.Stats()
	if stats.Attempted == 0 {
		t.Fatal("background worker should have attempted the scheduled morph")
	}
}

func TestApplyRejectsStaleLSN(t *testing.T) {
	l := leaf.NewWOLeaf(256, 8, kv.KeyMax)
	h := leaf.NewHandle(l)
	mgr := epoch.NewManager()
	e := New(testConfig(false), mgr)

	staleLSN := l.Hdr().LSN() + 1 // a lsn that doesn't match current
	if e.apply(h, staleLSN, leaf.KindRO) {
		t.Fatal("apply with a stale lsn should be a no-op")
	}
	if h.Load().Kind() != leaf.KindWO {
		t.Fatal("leaf should be unchanged after a rejected stale apply")
	}
}
