package stash

import (
	"github.com/oarkflow/chainstore/host"
	"github.com/oarkflow/chainstore/lazy"
	"github.com/oarkflow/chainstore/lib"
)

// entry is one stash slot. An occupied slot carries a value; a vacant
// slot carries the index of the next vacant slot, threading an
// intrusive free list through the slots themselves.
type entry[V any] struct {
	Next  uint32
	Value *V
}

type header struct {
	Len        uint32
	MaxLen     uint32
	NextVacant uint32
}

// Stash stores values under stable uint32 indices with O(1) put and
// take. Freed indices are reused in LIFO order off the free list, and
// index assignment depends only on the sequence of puts and takes —
// never on the values — so replicas driven by the same operations
// assign the same indices.
type Stash[V any] struct {
	store host.Store

	key         *host.Key
	len         uint32
	maxLen      uint32
	nextVacant  uint32
	headerDirty bool

	entries *lazy.Chunk[entry[V]]
}

// New returns an unbound, empty stash.
func New[V any](store host.Store) *Stash[V] {
	return &Stash[V]{store: store, entries: lazy.NewChunk[entry[V]](store)}
}

// Pull binds a stash to the region reserved from ptr and reads its
// header eagerly; slots load on demand.
func Pull[V any](store host.Store, ptr *host.KeyPtr) *Stash[V] {
	s := &Stash[V]{store: store}
	key := ptr.Next(1)
	s.key = &key
	if data, ok := store.Get(key); ok {
		h, err := lib.Deserialize[header](data)
		if err != nil {
			panic("stash: corrupted stash header: " + key.String())
		}
		s.len, s.maxLen, s.nextVacant = h.Len, h.MaxLen, h.NextVacant
	}
	s.entries = lazy.PullChunk[entry[V]](store, ptr)
	return s
}

// Footprint covers the header cell plus the slot chunk.
func (s *Stash[V]) Footprint() uint64 {
	return 1 + s.entries.Footprint()
}

// Len returns the number of occupied slots.
func (s *Stash[V]) Len() uint32 {
	return s.len
}

// MaxLen returns the iteration bound: the highest slot count the stash
// has ever reached since it was last drained.
func (s *Stash[V]) MaxLen() uint32 {
	return s.maxLen
}

// IsEmpty reports whether no slot is occupied.
func (s *Stash[V]) IsEmpty() bool {
	return s.len == 0
}

// Put stores value and returns its slot index, reusing the most
// recently freed slot when one exists.
func (s *Stash[V]) Put(value V) uint32 {
	var index uint32
	if s.nextVacant == s.maxLen {
		// Free list empty: append.
		index = s.maxLen
		s.maxLen++
		s.nextVacant = s.maxLen
		s.entries.Put(index, &entry[V]{Value: &value})
	} else {
		index = s.nextVacant
		e := s.entries.GetMut(index)
		if e == nil || e.Value != nil {
			panic("stash: free list points at a missing or occupied slot")
		}
		s.nextVacant = e.Next
		e.Next = 0
		e.Value = &value
	}
	s.len++
	s.headerDirty = true
	return index
}

// Get returns the value at index, nil for vacant or out-of-range slots.
func (s *Stash[V]) Get(index uint32) *V {
	if index >= s.maxLen {
		return nil
	}
	e := s.entries.Get(index)
	if e == nil {
		return nil
	}
	return e.Value
}

// GetMut returns the value at index for mutation, nil for vacant or
// out-of-range slots.
func (s *Stash[V]) GetMut(index uint32) *V {
	if index >= s.maxLen {
		return nil
	}
	e := s.entries.GetMut(index)
	if e == nil {
		return nil
	}
	return e.Value
}

// Take removes and returns the value at index, pushing the slot onto
// the free list. Taking a vacant or out-of-range slot is a nil no-op,
// so a double take cannot fault.
func (s *Stash[V]) Take(index uint32) *V {
	if index >= s.maxLen {
		return nil
	}
	e := s.entries.GetMut(index)
	if e == nil || e.Value == nil {
		return nil
	}
	value := e.Value
	e.Value = nil
	e.Next = s.nextVacant
	s.nextVacant = index
	s.len--
	s.headerDirty = true
	if s.len == 0 {
		s.drain()
	}
	return value
}

// drain resets a fully vacant stash: every slot cell is scheduled for
// clearing and the free list collapses, so a drained stash leaves no
// slot cells behind after the next flush.
func (s *Stash[V]) drain() {
	for i := uint32(0); i < s.maxLen; i++ {
		s.entries.ClearAt(i)
	}
	s.maxLen = 0
	s.nextVacant = 0
	s.headerDirty = true
}

// ForEach visits occupied slots in index order until fn returns false.
func (s *Stash[V]) ForEach(fn func(index uint32, value *V) bool) {
	for i := uint32(0); i < s.maxLen; i++ {
		e := s.entries.Get(i)
		if e == nil || e.Value == nil {
			continue
		}
		if !fn(i, e.Value) {
			return
		}
	}
}

// Push reserves the stash's region from ptr and flushes dirty state.
func (s *Stash[V]) Push(ptr *host.KeyPtr) {
	key := ptr.Next(1)
	if s.key != nil && *s.key != key {
		panic("stash: push key mismatch, pull and push footprint sequences differ")
	}
	s.key = &key
	s.flushHeader()
	s.entries.Push(ptr)
}

// Flush writes the header when it moved plus every dirty slot.
func (s *Stash[V]) Flush() {
	if s.key == nil {
		panic("stash: flush of stash that was never pulled or pushed")
	}
	s.flushHeader()
	s.entries.Flush()
}

func (s *Stash[V]) flushHeader() {
	if !s.headerDirty {
		return
	}
	data, err := lib.Serialize(header{Len: s.len, MaxLen: s.maxLen, NextVacant: s.nextVacant})
	if err != nil {
		panic("stash: header encode failed: " + err.Error())
	}
	if err := s.store.Put(*s.key, data); err != nil {
		panic("stash: host store write failed: " + err.Error())
	}
	s.headerDirty = false
}
