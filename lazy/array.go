package lazy

import (
	"fmt"

	"github.com/oarkflow/chainstore/host"
	"github.com/oarkflow/chainstore/lib"
)

// Array is a fixed-capacity variant of IndexMap: the capacity is set at
// construction and bounds the footprint. Reads past the capacity are
// merely absent; writes and the At index operator treat an out-of-range
// index as a structural bug.
type Array[V any] struct {
	store    host.Store
	key      *host.Key
	capacity uint32
	cache    []*Entry[V]
}

// NewArray returns an unbound array with the given capacity.
func NewArray[V any](store host.Store, capacity uint32) *Array[V] {
	return &Array[V]{store: store, capacity: capacity, cache: make([]*Entry[V], capacity)}
}

// PullArray binds an array of the given capacity to the region reserved
// from ptr.
func PullArray[V any](store host.Store, capacity uint32, ptr *host.KeyPtr) *Array[V] {
	a := NewArray[V](store, capacity)
	key := ptr.Next(a.Footprint())
	a.key = &key
	return a
}

// Footprint is one cell per element slot.
func (a *Array[V]) Footprint() uint64 {
	return uint64(a.capacity)
}

// Capacity returns the fixed element capacity.
func (a *Array[V]) Capacity() uint32 {
	return a.capacity
}

func (a *Array[V]) Key() *host.Key {
	return a.key
}

func (a *Array[V]) loadThrough(index uint32) *Entry[V] {
	if e := a.cache[index]; e != nil {
		return e
	}
	if a.key == nil {
		panic("lazy: array not pulled from storage")
	}
	cell := a.key.Add(uint64(index))
	e := preserved[V](nil)
	if data, ok := a.store.Get(cell); ok {
		value, err := lib.Deserialize[V](data)
		if err != nil {
			panic("lazy: corrupted storage cell: " + cell.String())
		}
		e = preserved(&value)
	}
	a.cache[index] = e
	return e
}

// Get returns the value at index, nil for an empty or out-of-range
// slot.
func (a *Array[V]) Get(index uint32) *V {
	if index >= a.capacity {
		return nil
	}
	return a.loadThrough(index).Value()
}

// GetMut returns the value at index for mutation, nil when out of
// range.
func (a *Array[V]) GetMut(index uint32) *V {
	if index >= a.capacity {
		return nil
	}
	return a.loadThrough(index).ValueMut()
}

// At is the indexing operator: it panics on an out-of-range index and
// on an empty slot.
func (a *Array[V]) At(index uint32) *V {
	v := a.Get(index)
	if v == nil {
		panic(fmt.Sprintf("lazy: array index %d out of bounds or empty (capacity %d)", index, a.capacity))
	}
	return v
}

func (a *Array[V]) checkBounds(index uint32) {
	if index >= a.capacity {
		panic(fmt.Sprintf("lazy: array write at %d exceeds capacity %d", index, a.capacity))
	}
}

// Put overwrites the slot at index without reading it.
func (a *Array[V]) Put(index uint32, value *V) {
	a.checkBounds(index)
	if e := a.cache[index]; e != nil {
		e.Put(value)
		return
	}
	a.cache[index] = mutated(value)
}

// PutGet replaces the slot at index and returns the displaced value.
func (a *Array[V]) PutGet(index uint32, value *V) *V {
	a.checkBounds(index)
	return a.loadThrough(index).Put(value)
}

// Take removes and returns the value at index, nil when out of range.
func (a *Array[V]) Take(index uint32) *V {
	if index >= a.capacity {
		return nil
	}
	return a.loadThrough(index).Take()
}

// Swap exchanges the slots at a and b.
func (arr *Array[V]) Swap(a, b uint32) {
	arr.checkBounds(a)
	arr.checkBounds(b)
	if a == b {
		return
	}
	ea, eb := arr.loadThrough(a), arr.loadThrough(b)
	if ea.Value() == nil && eb.Value() == nil {
		return
	}
	ea.Put(eb.Put(ea.Value()))
}

// Push reserves the array's region from ptr and flushes dirty slots.
func (a *Array[V]) Push(ptr *host.KeyPtr) {
	key := ptr.Next(a.Footprint())
	if a.key != nil && *a.key != key {
		panic("lazy: push key mismatch, pull and push footprint sequences differ")
	}
	a.key = &key
	a.Flush()
}

// Flush writes dirty slots back to storage.
func (a *Array[V]) Flush() {
	if a.key == nil {
		panic("lazy: flush of array that was never pulled or pushed")
	}
	for index, e := range a.cache {
		if e == nil || !e.Dirty() {
			continue
		}
		cell := a.key.Add(uint64(index))
		if v := e.Value(); v != nil {
			data, err := lib.Serialize(*v)
			if err != nil {
				panic("lazy: cell encode failed: " + err.Error())
			}
			if err := a.store.Put(cell, data); err != nil {
				panic("lazy: host store write failed: " + err.Error())
			}
		} else {
			if err := a.store.Del(cell); err != nil {
				panic("lazy: host store clear failed: " + err.Error())
			}
		}
		e.markClean()
	}
}
