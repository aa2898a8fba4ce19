package lazy

import (
	"testing"

	"github.com/oarkflow/chainstore/host"
	"github.com/oarkflow/chainstore/host/memdb"
	"github.com/oarkflow/chainstore/host/recorder"
)

func newRecorded(t *testing.T) *recorder.Recorder {
	t.Helper()
	store, err := memdb.New()
	if err != nil {
		t.Fatal(err)
	}
	return recorder.New(store)
}

func expectPanic(t *testing.T, msg string, fn func()) {
	t.Helper()
	defer func() {
		if recover() == nil {
			t.Errorf("%s: expected panic", msg)
		}
	}()
	fn()
}

func u64(v uint64) *uint64 { return &v }

func TestIndexMapFlushTouchesOnlyMutatedCells(t *testing.T) {
	rec := newRecorded(t)
	ptr := host.NewKeyPtr(host.Key{})
	m := PullIndexMap[uint64](rec, ptr)

	m.Put(3, u64(30))
	m.Put(9, u64(90))
	m.Flush()

	if got := rec.Puts(m.KeyAt(3)); got != 1 {
		t.Errorf("cell 3 written %d times, want 1", got)
	}
	if got := rec.Puts(m.KeyAt(9)); got != 1 {
		t.Errorf("cell 9 written %d times, want 1", got)
	}
	if got := rec.TotalPuts(); got != 2 {
		t.Errorf("total writes %d, want 2", got)
	}

	// A flush with nothing mutated in between is free.
	rec.Reset()
	m.Flush()
	if rec.TotalPuts()+rec.TotalDels() != 0 {
		t.Error("clean flush issued I/O")
	}

	// Reading does not dirty.
	if v := m.Get(3); v == nil || *v != 30 {
		t.Fatalf("Get(3) = %v", v)
	}
	m.Flush()
	if rec.TotalPuts()+rec.TotalDels() != 0 {
		t.Error("flush after pure read issued I/O")
	}

	// GetMut conservatively dirties exactly one cell.
	*m.GetMut(3) = 31
	m.Flush()
	if rec.TotalPuts() != 1 || rec.Puts(m.KeyAt(3)) != 1 {
		t.Errorf("flush after GetMut wrote %d cells", rec.TotalPuts())
	}

	// Take schedules a clear for that one cell.
	rec.Reset()
	if v := m.Take(9); v == nil || *v != 90 {
		t.Fatalf("Take(9) = %v", v)
	}
	m.Flush()
	if rec.TotalDels() != 1 || rec.Dels(m.KeyAt(9)) != 1 {
		t.Errorf("flush after Take cleared %d cells", rec.TotalDels())
	}
}

func TestIndexMapRoundTrip(t *testing.T) {
	store, err := memdb.New()
	if err != nil {
		t.Fatal(err)
	}
	root := host.NewKey(7)

	m := NewIndexMap[string](store)
	s := "hello"
	m.Put(0, &s)
	w := "world"
	m.Put(1000, &w)
	m.Push(host.NewKeyPtr(root))

	reloaded := PullIndexMap[string](store, host.NewKeyPtr(root))
	if v := reloaded.Get(0); v == nil || *v != "hello" {
		t.Errorf("Get(0) = %v after reload", v)
	}
	if v := reloaded.Get(1000); v == nil || *v != "world" {
		t.Errorf("Get(1000) = %v after reload", v)
	}
	if v := reloaded.Get(5); v != nil {
		t.Errorf("Get(5) = %v, want absent", *v)
	}
}

func TestIndexMapPutGetAndSwap(t *testing.T) {
	store, _ := memdb.New()
	m := PullIndexMap[uint64](store, host.NewKeyPtr(host.Key{}))

	if old := m.PutGet(4, u64(40)); old != nil {
		t.Errorf("PutGet on empty cell returned %v", *old)
	}
	if old := m.PutGet(4, u64(41)); old == nil || *old != 40 {
		t.Errorf("PutGet displaced %v, want 40", old)
	}

	m.Put(5, u64(50))
	m.Swap(4, 5)
	if v := m.Get(4); *v != 50 {
		t.Errorf("after swap cell 4 = %d", *v)
	}
	if v := m.Get(5); *v != 41 {
		t.Errorf("after swap cell 5 = %d", *v)
	}

	// Swapping two absent cells must not create dirty state.
	rec := newRecorded(t)
	m2 := PullIndexMap[uint64](rec, host.NewKeyPtr(host.Key{}))
	m2.Swap(1, 2)
	m2.Flush()
	if rec.TotalPuts()+rec.TotalDels() != 0 {
		t.Error("swap of two empty cells issued I/O")
	}
}

func TestIndexMapUnpulledAccessPanics(t *testing.T) {
	store, _ := memdb.New()
	m := NewIndexMap[uint64](store)
	expectPanic(t, "lazy load on unbound map", func() { m.Get(0) })
	expectPanic(t, "flush of unbound map", func() { m.Flush() })
}

func TestIndexMapCorruptCellPanics(t *testing.T) {
	store, _ := memdb.New()
	root := host.NewKey(0)
	m := PullIndexMap[uint64](store, host.NewKeyPtr(root))
	// 0xc1 is not a valid MessagePack byte.
	if err := store.Put(m.KeyAt(2), []byte{0xc1}); err != nil {
		t.Fatal(err)
	}
	expectPanic(t, "decode of corrupted cell", func() { m.Get(2) })
}

func TestIndexMapPushKeyMismatchPanics(t *testing.T) {
	store, _ := memdb.New()
	m := PullIndexMap[uint64](store, host.NewKeyPtr(host.NewKey(0)))
	expectPanic(t, "push at different key", func() {
		m.Push(host.NewKeyPtr(host.NewKey(999)))
	})
}
