package btree

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/oarkflow/chainstore/host"
	"github.com/oarkflow/chainstore/host/memdb"
)

func newMap[K ~uint32 | ~int | ~string, V any](t *testing.T) *Map[K, V] {
	t.Helper()
	store, err := memdb.New()
	if err != nil {
		t.Fatal(err)
	}
	return Pull[K, V](store, host.NewKeyPtr(host.Key{}))
}

func TestMapFillsOneNodeThenSplits(t *testing.T) {
	m := newMap[uint32, uint32](t)

	for k := uint32(0); k < Capacity; k++ {
		if old := m.Put(k, k*10); old != nil {
			t.Fatalf("Put(%d) displaced %d", k, *old)
		}
	}
	if m.NodeCount() != 1 {
		t.Fatalf("NodeCount = %d with %d pairs, want a single node", m.NodeCount(), Capacity)
	}
	if m.Len() != Capacity {
		t.Fatalf("Len = %d", m.Len())
	}

	// One more pair overflows the root: split into two leaves plus a new
	// root.
	m.Put(Capacity, Capacity*10)
	if m.NodeCount() != 3 {
		t.Errorf("NodeCount after split = %d, want 3", m.NodeCount())
	}
	if m.Len() != Capacity+1 {
		t.Errorf("Len after split = %d", m.Len())
	}
	for k := uint32(0); k <= Capacity; k++ {
		if v := m.Get(k); v == nil || *v != k*10 {
			t.Errorf("Get(%d) = %v after split", k, v)
		}
	}

	// Removing the overflowing pair merges the leaves back: one node
	// again.
	if v := m.Remove(Capacity); v == nil || *v != Capacity*10 {
		t.Fatalf("Remove(%d) = %v", Capacity, v)
	}
	if m.NodeCount() != 1 {
		t.Errorf("NodeCount after shrink = %d, want 1", m.NodeCount())
	}
	if m.Len() != Capacity {
		t.Errorf("Len after shrink = %d", m.Len())
	}
	for k := uint32(0); k < Capacity; k++ {
		if v := m.Get(k); v == nil || *v != k*10 {
			t.Errorf("Get(%d) = %v after shrink", k, v)
		}
	}
}

func TestMapPutReplacesInPlace(t *testing.T) {
	m := newMap[string, uint32](t)
	m.Put("k", 1)
	nodes := m.NodeCount()

	if old := m.Put("k", 2); old == nil || *old != 1 {
		t.Fatalf("Put displaced %v, want 1", old)
	}
	if m.Len() != 1 || m.NodeCount() != nodes {
		t.Error("replacement changed the tree shape")
	}
	if v := m.Get("k"); *v != 2 {
		t.Errorf("Get = %d", *v)
	}
}

func TestMapRemove(t *testing.T) {
	m := newMap[uint32, string](t)
	if m.Remove(1) != nil {
		t.Error("Remove on empty map returned a value")
	}

	m.Put(1, "one")
	m.Put(2, "two")
	if v := m.Remove(1); v == nil || *v != "one" {
		t.Fatalf("Remove(1) = %v", v)
	}
	if m.Contains(1) {
		t.Error("key 1 survives removal")
	}
	if m.Remove(1) != nil {
		t.Error("second Remove(1) returned a value")
	}
	if m.Len() != 1 {
		t.Errorf("Len = %d", m.Len())
	}
}

func TestMapDrainLeavesStorageEmpty(t *testing.T) {
	store, _ := memdb.New()
	root := host.NewKey(31)
	m := Pull[uint32, uint32](store, host.NewKeyPtr(root))

	const n = 500
	for k := uint32(0); k < n; k++ {
		m.Put(k, k)
	}
	if m.NodeCount() < 2 {
		t.Fatalf("NodeCount = %d, expected a multi-level tree", m.NodeCount())
	}
	for k := uint32(0); k < n; k++ {
		if v := m.Remove(k); v == nil || *v != k {
			t.Fatalf("Remove(%d) = %v", k, v)
		}
	}
	if !m.IsEmpty() || m.NodeCount() != 0 {
		t.Errorf("Len=%d NodeCount=%d after drain", m.Len(), m.NodeCount())
	}
	if !m.StorageEmpty() {
		t.Error("arenas not drained")
	}
	m.Flush()
	// Both arenas drained: only the three header cells remain.
	if store.Len() != 3 {
		t.Errorf("store holds %d cells after drained flush, want 3", store.Len())
	}
}

func TestMapRandomChurnAgainstReference(t *testing.T) {
	m := newMap[int, int](t)
	ref := make(map[int]int)
	rng := rand.New(rand.NewSource(99))

	for i := 0; i < 10000; i++ {
		k := rng.Intn(800)
		switch {
		case rng.Intn(3) > 0:
			v := rng.Int()
			old, had := ref[k]
			got := m.Put(k, v)
			if had != (got != nil) || (had && *got != old) {
				t.Fatalf("op %d: Put(%d) displaced %v, reference had %v/%v", i, k, got, old, had)
			}
			ref[k] = v
		default:
			old, had := ref[k]
			got := m.Remove(k)
			if had != (got != nil) || (had && *got != old) {
				t.Fatalf("op %d: Remove(%d) = %v, reference had %v/%v", i, k, got, old, had)
			}
			delete(ref, k)
		}
		if m.Len() != uint32(len(ref)) {
			t.Fatalf("op %d: Len = %d, reference holds %d", i, m.Len(), len(ref))
		}
	}

	for k, v := range ref {
		if got := m.Get(k); got == nil || *got != v {
			t.Errorf("Get(%d) = %v, want %d", k, got, v)
		}
	}
}

func TestMapForEachAscending(t *testing.T) {
	m := newMap[int, int](t)
	rng := rand.New(rand.NewSource(5))
	keys := rng.Perm(300)
	for _, k := range keys {
		m.Put(k, -k)
	}

	var visited []int
	m.ForEach(func(k, v int) bool {
		if v != -k {
			t.Errorf("pair %d carries %d", k, v)
		}
		visited = append(visited, k)
		return true
	})
	if len(visited) != len(keys) {
		t.Fatalf("visited %d pairs, want %d", len(visited), len(keys))
	}
	if !sort.IntsAreSorted(visited) {
		t.Error("ForEach order is not ascending")
	}

	// Early stop.
	count := 0
	m.ForEach(func(int, int) bool {
		count++
		return count < 10
	})
	if count != 10 {
		t.Errorf("ForEach visited %d pairs after early stop", count)
	}
}

func TestMapGetMutPersists(t *testing.T) {
	store, _ := memdb.New()
	root := host.NewKey(17)

	m := Pull[string, uint64](store, host.NewKeyPtr(root))
	m.Put("counter", 1)
	*m.GetMut("counter") += 41
	m.Flush()

	r := Pull[string, uint64](store, host.NewKeyPtr(root))
	if v := r.Get("counter"); v == nil || *v != 42 {
		t.Errorf(`Get("counter") = %v after reload`, v)
	}
}

func TestMapRoundTrip(t *testing.T) {
	store, _ := memdb.New()
	root := host.NewKey(23)

	m := New[uint32, string](store)
	for k := uint32(0); k < 100; k++ {
		m.Put(k, "v")
	}
	m.PushStorage(host.NewKeyPtr(root))

	r := Pull[uint32, string](store, host.NewKeyPtr(root))
	if r.Len() != 100 {
		t.Fatalf("reloaded Len = %d", r.Len())
	}
	for k := uint32(0); k < 100; k++ {
		if !r.Contains(k) {
			t.Fatalf("key %d missing after reload", k)
		}
	}
	// The reloaded map keeps working: grow it past another split level.
	for k := uint32(100); k < 400; k++ {
		r.Put(k, "w")
	}
	r.Flush()
	again := Pull[uint32, string](store, host.NewKeyPtr(root))
	if again.Len() != 400 {
		t.Errorf("Len = %d after second reload", again.Len())
	}
}

func TestMapEntry(t *testing.T) {
	m := newMap[string, uint32](t)

	e := m.Entry("missing")
	if e.Occupied() {
		t.Fatal("vacant entry reports occupied")
	}
	if e.Get() != nil {
		t.Error("vacant entry carries a value")
	}
	if _, _, ok := e.RemoveEntry(); ok {
		t.Error("RemoveEntry on a vacant slot succeeded")
	}
	if v := e.OrInsert(7); v == nil || *v != 7 {
		t.Fatalf("OrInsert = %v", v)
	}
	if v := m.Get("missing"); v == nil || *v != 7 {
		t.Errorf("OrInsert did not store, Get = %v", v)
	}

	e = m.Entry("missing")
	if !e.Occupied() || e.Key() != "missing" {
		t.Fatal("entry after insert is not occupied")
	}
	if v := e.OrInsert(99); *v != 7 {
		t.Errorf("OrInsert on occupied entry = %d, want existing 7", *v)
	}
	if old := e.Insert(8); old == nil || *old != 7 {
		t.Errorf("Insert displaced %v", old)
	}

	e = m.Entry("missing")
	k, v, ok := e.RemoveEntry()
	if !ok || k != "missing" || v != 8 {
		t.Errorf("RemoveEntry = (%q, %d, %v)", k, v, ok)
	}
	if m.Contains("missing") {
		t.Error("key survives RemoveEntry")
	}
}

func TestMapDescendingInsertAscendingRemove(t *testing.T) {
	// Descending inserts stress the left-hand split path; ascending
	// removals stress the merge cascade up the left spine.
	m := newMap[int, int](t)
	const n = 1000
	for k := n - 1; k >= 0; k-- {
		m.Put(k, k)
	}
	for k := 0; k < n; k++ {
		if v := m.Remove(k); v == nil || *v != k {
			t.Fatalf("Remove(%d) = %v", k, v)
		}
		if want := uint32(n - 1 - k); m.Len() != want {
			t.Fatalf("Len = %d, want %d", m.Len(), want)
		}
	}
	if !m.StorageEmpty() {
		t.Error("arenas not drained")
	}
}
