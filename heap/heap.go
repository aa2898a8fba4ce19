package heap

import (
	"math"

	"golang.org/x/exp/constraints"

	"github.com/oarkflow/chainstore/host"
	"github.com/oarkflow/chainstore/lazy"
	"github.com/oarkflow/chainstore/lib"
)

const (
	// TernaryChildren is the default heap arity.
	TernaryChildren = 3
	// BinaryChildren selects the classic binary layout.
	BinaryChildren = 2
)

type header struct {
	Len      uint32
	Children uint32
}

// Heap is a k-ary max-heap over a dense run of storage cells: the
// element at slot i parents slots k*i+1 .. k*i+k. Only the cells a push
// or pop actually touches are loaded and only those are flushed.
type Heap[V constraints.Ordered] struct {
	store host.Store

	key         *host.Key
	len         uint32
	children    uint32
	headerDirty bool

	elems *lazy.Chunk[V]
}

// New returns an unbound ternary heap.
func New[V constraints.Ordered](store host.Store) *Heap[V] {
	return newHeap[V](store, TernaryChildren)
}

// NewBinary returns an unbound binary heap.
func NewBinary[V constraints.Ordered](store host.Store) *Heap[V] {
	return newHeap[V](store, BinaryChildren)
}

func newHeap[V constraints.Ordered](store host.Store, children uint32) *Heap[V] {
	return &Heap[V]{store: store, children: children, elems: lazy.NewChunk[V](store)}
}

// Pull binds a heap to the region reserved from ptr, reading length and
// arity from the header. A heap never pushed before comes back empty
// and ternary.
func Pull[V constraints.Ordered](store host.Store, ptr *host.KeyPtr) *Heap[V] {
	h := &Heap[V]{store: store, children: TernaryChildren}
	key := ptr.Next(1)
	h.key = &key
	if data, ok := store.Get(key); ok {
		hd, err := lib.Deserialize[header](data)
		if err != nil {
			panic("heap: corrupted heap header: " + key.String())
		}
		h.len = hd.Len
		h.children = hd.Children
	}
	h.elems = lazy.PullChunk[V](store, ptr)
	return h
}

func (h *Heap[V]) Footprint() uint64 {
	return 1 + h.elems.Footprint()
}

// Len returns the number of stored elements.
func (h *Heap[V]) Len() uint32 {
	return h.len
}

func (h *Heap[V]) IsEmpty() bool {
	return h.len == 0
}

// Push inserts value and restores heap order by sifting it up.
func (h *Heap[V]) Push(value V) {
	if h.len == math.MaxUint32 {
		panic("heap: length overflow")
	}
	h.elems.Put(h.len, &value)
	h.len++
	h.headerDirty = true
	h.siftUp(h.len - 1)
}

// Pop removes and returns the maximum, nil on an empty heap.
func (h *Heap[V]) Pop() *V {
	if h.len == 0 {
		return nil
	}
	last := h.len - 1
	h.len--
	h.headerDirty = true
	if last == 0 {
		return h.elems.Take(0)
	}
	h.elems.Swap(0, last)
	value := h.elems.Take(last)
	h.repairTop()
	return value
}

// Peek returns the maximum without removing it.
func (h *Heap[V]) Peek() *V {
	if h.len == 0 {
		return nil
	}
	return h.elems.Get(0)
}

// PeekMut lets fn mutate the maximum in place, then repairs heap order.
func (h *Heap[V]) PeekMut(fn func(*V)) {
	if h.len == 0 {
		return
	}
	fn(h.elems.GetMut(0))
	h.repairTop()
}

// ForEach visits elements in slot order, which is not sorted order.
func (h *Heap[V]) ForEach(fn func(value V) bool) {
	for i := uint32(0); i < h.len; i++ {
		if !fn(*h.elems.Get(i)) {
			return
		}
	}
}

// Values returns the elements in slot order. Unordered by contract.
func (h *Heap[V]) Values() []V {
	out := make([]V, 0, h.len)
	h.ForEach(func(v V) bool {
		out = append(out, v)
		return true
	})
	return out
}

// siftUp swaps the element at index with its parent until the parent is
// at least as large.
func (h *Heap[V]) siftUp(index uint32) {
	for index > 0 {
		parent := (index - 1) / h.children
		if !(*h.elems.Get(parent) < *h.elems.Get(index)) {
			return
		}
		h.elems.Swap(index, parent)
		index = parent
	}
}

// repairTop sifts the root down: swap with the largest child while that
// child is larger.
func (h *Heap[V]) repairTop() {
	index := uint32(0)
	for {
		succ, ok := h.findSuccessor(index)
		if !ok || !(*h.elems.Get(index) < *h.elems.Get(succ)) {
			return
		}
		h.elems.Swap(index, succ)
		index = succ
	}
}

// findSuccessor returns the largest child of index, if it has any.
func (h *Heap[V]) findSuccessor(index uint32) (uint32, bool) {
	first := h.children*index + 1
	if first >= h.len {
		return 0, false
	}
	best := first
	for child := first + 1; child < h.len && child < first+h.children; child++ {
		if *h.elems.Get(best) < *h.elems.Get(child) {
			best = child
		}
	}
	return best, true
}

// PushStorage reserves the heap's region from ptr and flushes dirty
// state. Named apart from Push, which inserts an element.
func (h *Heap[V]) PushStorage(ptr *host.KeyPtr) {
	key := ptr.Next(1)
	if h.key != nil && *h.key != key {
		panic("heap: push key mismatch, pull and push footprint sequences differ")
	}
	h.key = &key
	h.flushHeader()
	h.elems.Push(ptr)
}

// Flush writes the header when the length moved plus every dirty cell.
func (h *Heap[V]) Flush() {
	if h.key == nil {
		panic("heap: flush of heap that was never pulled or pushed")
	}
	h.flushHeader()
	h.elems.Flush()
}

func (h *Heap[V]) flushHeader() {
	if !h.headerDirty {
		return
	}
	data, err := lib.Serialize(header{Len: h.len, Children: h.children})
	if err != nil {
		panic("heap: header encode failed: " + err.Error())
	}
	if err := h.store.Put(*h.key, data); err != nil {
		panic("heap: host store write failed: " + err.Error())
	}
	h.headerDirty = false
}
