package alloc

import (
	"math/rand"
	"testing"

	"github.com/oarkflow/chainstore/host"
	"github.com/oarkflow/chainstore/host/memdb"
)

func newAllocator(t *testing.T) *Allocator {
	t.Helper()
	store, err := memdb.New()
	if err != nil {
		t.Fatal(err)
	}
	return PullAllocator(store, host.NewKeyPtr(host.Key{}))
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

func TestAllocFirstFitReusesFreedSlot(t *testing.T) {
	a := newAllocator(t)

	if got := a.Alloc(); got != 0 {
		t.Fatalf("first Alloc = %d, want 0", got)
	}
	if got := a.Alloc(); got != 1 {
		t.Fatalf("second Alloc = %d, want 1", got)
	}
	a.Free(0)
	if got := a.Alloc(); got != 0 {
		t.Fatalf("Alloc after Free(0) = %d, want reused slot 0", got)
	}

	a.Free(0)
	expectPanic(t, "second Free of the same slot", func() { a.Free(0) })
}

func TestFreeOfNeverAllocatedSlotPanics(t *testing.T) {
	a := newAllocator(t)
	a.Alloc()
	expectPanic(t, "free past the bitmap", func() { a.Free(100) })
}

func TestAllocFreePairRestoresState(t *testing.T) {
	a := newAllocator(t)
	for i := 0; i < 10; i++ {
		a.Alloc()
	}
	slots := a.Slots()

	got := a.Alloc()
	a.Free(got)

	if a.IsAllocated(got) {
		t.Error("slot still allocated after Free")
	}
	if err := a.CheckCounts(); err != nil {
		t.Error(err)
	}
	// The next Alloc lands on the same slot again.
	if again := a.Alloc(); again != got {
		t.Errorf("Alloc after paired Alloc/Free = %d, want %d", again, got)
	}
	if a.Slots() != slots+1 {
		t.Errorf("bitmap grew to %d slots, want %d", a.Slots(), slots+1)
	}
}

func TestAllocGrowsAcrossWindowsAndBlocks(t *testing.T) {
	a := newAllocator(t)

	// Two full count blocks plus change: crosses 64 windows and the
	// 8192-bit block boundary.
	n := uint32(2*BlockBits + 100)
	for i := uint32(0); i < n; i++ {
		if got := a.Alloc(); got != DynamicAllocation(i) {
			t.Fatalf("Alloc #%d = %d", i, got)
		}
	}
	if err := a.CheckCounts(); err != nil {
		t.Fatal(err)
	}

	// Punch holes in the middle of the first block and the second.
	holes := []DynamicAllocation{10, 255, 256, 8191, 8192, 9000}
	for _, h := range holes {
		a.Free(h)
	}
	if err := a.CheckCounts(); err != nil {
		t.Fatal(err)
	}
	// First-fit fills the holes back in ascending order.
	for _, want := range []DynamicAllocation{10, 255, 256, 8191, 8192, 9000} {
		if got := a.Alloc(); got != want {
			t.Fatalf("refill Alloc = %d, want %d", got, want)
		}
	}
	// All holes filled: the next allocation grows again.
	if got := a.Alloc(); got != DynamicAllocation(n) {
		t.Errorf("Alloc after refill = %d, want %d", got, n)
	}
}

func TestAllocCountsMirrorUnderRandomChurn(t *testing.T) {
	a := newAllocator(t)
	rng := rand.New(rand.NewSource(42))

	live := make(map[DynamicAllocation]bool)
	for i := 0; i < 5000; i++ {
		if len(live) == 0 || rng.Intn(3) > 0 {
			slot := a.Alloc()
			if live[slot] {
				t.Fatalf("Alloc handed out live slot %d", slot)
			}
			live[slot] = true
		} else {
			for slot := range live {
				a.Free(slot)
				delete(live, slot)
				break
			}
		}
	}
	if err := a.CheckCounts(); err != nil {
		t.Fatal(err)
	}
	for slot := range live {
		if !a.IsAllocated(slot) {
			t.Errorf("live slot %d not marked allocated", slot)
		}
	}
}

func TestAllocatorRoundTrip(t *testing.T) {
	store, err := memdb.New()
	if err != nil {
		t.Fatal(err)
	}
	root := host.NewKey(11)

	a := PullAllocator(store, host.NewKeyPtr(root))
	for i := 0; i < 300; i++ {
		a.Alloc()
	}
	a.Free(7)
	a.Free(299)
	a.Flush()

	b := PullAllocator(store, host.NewKeyPtr(root))
	if b.Slots() != a.Slots() {
		t.Fatalf("reloaded slots = %d, want %d", b.Slots(), a.Slots())
	}
	if err := b.CheckCounts(); err != nil {
		t.Fatal(err)
	}
	// The reloaded allocator continues with the same first-fit view.
	if got := b.Alloc(); got != 7 {
		t.Errorf("reloaded Alloc = %d, want 7", got)
	}
	if got := b.Alloc(); got != 299 {
		t.Errorf("reloaded Alloc = %d, want 299", got)
	}
}

func TestDynamicAllocationKeyDisjointFromStaticRegion(t *testing.T) {
	k := DynamicAllocation(0).Key()
	if k[0] != 0xFE {
		t.Errorf("dynamic region base byte = %#x", k[0])
	}
	if DynamicAllocation(1).Key() == k {
		t.Error("distinct allocations share a cell")
	}
}
