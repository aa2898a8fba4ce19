package alloc

import (
	"fmt"
	"math"
	"math/bits"

	"github.com/hideo55/go-popcount"

	"github.com/oarkflow/chainstore/host"
	"github.com/oarkflow/chainstore/lazy"
	"github.com/oarkflow/chainstore/lib"
)

const (
	// WindowBits is the granularity of the counting index: one
	// population count per 256-bit run of the free bitmap.
	WindowBits = 256

	wordsPerWindow  = WindowBits / 64
	windowsPerBlock = 32

	// BlockBits is the coverage of one CountFree block.
	BlockBits = WindowBits * windowsPerBlock
)

// Window is one 256-bit run of the free bitmap, stored as a single
// cell. A set bit marks an allocated slot.
type Window struct {
	Words [wordsPerWindow]uint64
}

// pop returns the number of allocated slots in the window.
func (w *Window) pop() uint64 {
	return popcount.CountSlice(w.Words[:])
}

// CountFree summarizes 32 windows: an 8-bit population count per
// window plus a full bit, because a full window holds 256 set bits and
// 256 does not fit a uint8.
type CountFree struct {
	Counts [windowsPerBlock]uint8
	Full   uint32
}

func (c *CountFree) isFull(w uint32) bool {
	return c.Full&(1<<w) != 0
}

func (c *CountFree) set(w uint32, pop uint64) {
	if pop == WindowBits {
		c.Full |= 1 << w
		c.Counts[w] = math.MaxUint8
		return
	}
	c.Full &^= 1 << w
	c.Counts[w] = uint8(pop)
}

// Allocator hands out and reclaims slots of the dynamic storage region
// using a first-fit scan: the counting index finds the first non-full
// window, a bit scan inside that window finds the first free slot.
// State lives in storage — a header cell with the slot count, one lazy
// map of count blocks and one of bitmap windows — so the allocator
// itself follows the pull/flush discipline of every other collection.
type Allocator struct {
	store host.Store

	header      *host.Key
	slots       uint32 // logical length of the free bitmap
	headerDirty bool

	counts  *lazy.IndexMap[CountFree]
	windows *lazy.IndexMap[Window]
}

// NewAllocator returns an unbound, empty allocator.
func NewAllocator(store host.Store) *Allocator {
	return &Allocator{
		store:   store,
		counts:  lazy.NewIndexMap[CountFree](store),
		windows: lazy.NewIndexMap[Window](store),
	}
}

// PullAllocator binds an allocator to the region reserved from ptr and
// reads its header eagerly. Count blocks and bitmap windows load on
// demand.
func PullAllocator(store host.Store, ptr *host.KeyPtr) *Allocator {
	a := &Allocator{store: store}
	header := ptr.Next(1)
	a.header = &header
	if data, ok := store.Get(header); ok {
		slots, err := lib.Deserialize[uint32](data)
		if err != nil {
			panic("alloc: corrupted allocator header: " + header.String())
		}
		a.slots = slots
	}
	a.counts = lazy.PullIndexMap[CountFree](store, ptr)
	a.windows = lazy.PullIndexMap[Window](store, ptr)
	return a
}

// Footprint covers the header cell plus the two lazy maps.
func (a *Allocator) Footprint() uint64 {
	return 1 + a.counts.Footprint() + a.windows.Footprint()
}

// Slots returns the logical length of the free bitmap, allocated or
// not.
func (a *Allocator) Slots() uint32 {
	return a.slots
}

// Alloc returns the first free slot, growing the bitmap when every slot
// below the current length is taken.
func (a *Allocator) Alloc() DynamicAllocation {
	slot, ok := a.firstFree()
	if !ok {
		// First zero bit sits at (or past) the end of the bitmap:
		// grow by one slot instead of flipping an existing bit.
		if a.slots == math.MaxUint32 {
			panic("alloc: dynamic storage slot space exhausted")
		}
		slot = a.slots
		a.slots++
		a.headerDirty = true
	}
	a.setBit(slot)
	return DynamicAllocation(slot)
}

// Free reclaims a slot. Freeing a slot that is not currently allocated
// is fatal.
func (a *Allocator) Free(allocation DynamicAllocation) {
	slot := uint32(allocation)
	if slot >= a.slots || !a.bit(slot) {
		panic(fmt.Sprintf("alloc: double free of dynamic storage slot %d", slot))
	}
	a.clearBit(slot)
}

// IsAllocated reports whether slot is currently handed out.
func (a *Allocator) IsAllocated(allocation DynamicAllocation) bool {
	slot := uint32(allocation)
	return slot < a.slots && a.bit(slot)
}

// firstFree scans the counting index for the first window with spare
// capacity, then bit-scans that window. The scan never inspects more
// than one window of raw bitmap.
func (a *Allocator) firstFree() (uint32, bool) {
	nWindows := (a.slots + WindowBits - 1) / WindowBits
	for gw := uint32(0); gw < nWindows; gw++ {
		block, w := gw/windowsPerBlock, gw%windowsPerBlock
		cf := a.counts.Get(block)
		if cf == nil {
			// No counts recorded: every window in the block is empty.
		} else if cf.isFull(w) {
			continue
		}
		win := a.windows.Get(gw)
		var words [wordsPerWindow]uint64
		if win != nil {
			words = win.Words
		}
		for i, word := range words {
			if ^word == 0 {
				continue
			}
			slot := gw*WindowBits + uint32(i*64+bits.TrailingZeros64(^word))
			if slot >= a.slots {
				// The free bit lives in the unindexed tail of the last
				// window; that means grow, not flip.
				return 0, false
			}
			return slot, true
		}
	}
	return 0, false
}

// bit reads a single bitmap bit.
func (a *Allocator) bit(slot uint32) bool {
	win := a.windows.Get(slot / WindowBits)
	if win == nil {
		return false
	}
	bit := slot % WindowBits
	return win.Words[bit/64]&(1<<(bit%64)) != 0
}

// setBit marks slot allocated and mirrors the change into the counting
// index. Counts and bitmap disagree only between the two writes below.
func (a *Allocator) setBit(slot uint32) {
	gw := slot / WindowBits
	win := a.windows.GetMut(gw)
	if win == nil {
		a.windows.Put(gw, &Window{})
		win = a.windows.GetMut(gw)
	}
	bit := slot % WindowBits
	win.Words[bit/64] |= 1 << (bit % 64)
	a.mirrorCount(gw, win.pop())
}

// clearBit marks slot free and mirrors the change.
func (a *Allocator) clearBit(slot uint32) {
	gw := slot / WindowBits
	win := a.windows.GetMut(gw)
	bit := slot % WindowBits
	win.Words[bit/64] &^= 1 << (bit % 64)
	a.mirrorCount(gw, win.pop())
}

func (a *Allocator) mirrorCount(gw uint32, pop uint64) {
	block, w := gw/windowsPerBlock, gw%windowsPerBlock
	cf := a.counts.GetMut(block)
	if cf == nil {
		a.counts.Put(block, &CountFree{})
		cf = a.counts.GetMut(block)
	}
	cf.set(w, pop)
}

// CheckCounts recomputes every cached window population and compares it
// against the counting index. Test hook for the mirror invariant.
func (a *Allocator) CheckCounts() error {
	nWindows := (a.slots + WindowBits - 1) / WindowBits
	for gw := uint32(0); gw < nWindows; gw++ {
		var pop uint64
		if win := a.windows.Get(gw); win != nil {
			pop = win.pop()
		}
		block, w := gw/windowsPerBlock, gw%windowsPerBlock
		var have uint64
		if cf := a.counts.Get(block); cf != nil {
			if cf.isFull(w) {
				have = WindowBits
			} else {
				have = uint64(cf.Counts[w])
			}
		}
		if pop != have {
			return fmt.Errorf("alloc: window %d holds %d set bits but counts say %d", gw, pop, have)
		}
	}
	return nil
}

// Push reserves the allocator's region from ptr and flushes dirty
// state.
func (a *Allocator) Push(ptr *host.KeyPtr) {
	header := ptr.Next(1)
	if a.header != nil && *a.header != header {
		panic("alloc: push key mismatch, pull and push footprint sequences differ")
	}
	a.header = &header
	a.flushHeader()
	a.counts.Push(ptr)
	a.windows.Push(ptr)
}

// Flush writes the header (when the slot count moved) and every dirty
// count block and bitmap window.
func (a *Allocator) Flush() {
	if a.header == nil {
		panic("alloc: flush of allocator that was never pulled or pushed")
	}
	a.flushHeader()
	a.counts.Flush()
	a.windows.Flush()
}

func (a *Allocator) flushHeader() {
	if !a.headerDirty {
		return
	}
	data, err := lib.Serialize(a.slots)
	if err != nil {
		panic("alloc: header encode failed: " + err.Error())
	}
	if err := a.store.Put(*a.header, data); err != nil {
		panic("alloc: host store write failed: " + err.Error())
	}
	a.headerDirty = false
}
