package lazy

import (
	"github.com/oarkflow/log"

	"github.com/oarkflow/chainstore/host"
	"github.com/oarkflow/chainstore/lib"
)

// indexMapFootprint reserves one cell per possible uint32 index.
const indexMapFootprint = uint64(1) << 32

// IndexMap maps uint32 indices onto cells at base+index, loading each
// cell on first access and flushing only the cells mutated since the
// last flush. Absence from the cache says nothing about absence from
// storage; reads always go load-through.
type IndexMap[V any] struct {
	store host.Store
	key   *host.Key
	cache map[uint32]*Entry[V]
}

// NewIndexMap returns an unbound map: usable as a pure in-memory cache
// until it is pushed, but any load-through access panics.
func NewIndexMap[V any](store host.Store) *IndexMap[V] {
	return &IndexMap[V]{store: store, cache: make(map[uint32]*Entry[V])}
}

// PullIndexMap binds a map to the key region reserved from ptr. Cells
// are not read until accessed.
func PullIndexMap[V any](store host.Store, ptr *host.KeyPtr) *IndexMap[V] {
	m := NewIndexMap[V](store)
	key := ptr.Next(indexMapFootprint)
	m.key = &key
	return m
}

func (m *IndexMap[V]) Footprint() uint64 {
	return indexMapFootprint
}

// Key returns the base key, nil while unbound.
func (m *IndexMap[V]) Key() *host.Key {
	return m.key
}

// KeyAt computes the cell key of index. Panics while unbound.
func (m *IndexMap[V]) KeyAt(index uint32) host.Key {
	if m.key == nil {
		panic("lazy: index map not pulled from storage")
	}
	return m.key.Add(uint64(index))
}

// loadThrough returns the cached entry for index, reading the cell on a
// miss. A cell that fails to decode is corruption, not a soft error.
func (m *IndexMap[V]) loadThrough(index uint32) *Entry[V] {
	if e, ok := m.cache[index]; ok {
		return e
	}
	cell := m.KeyAt(index)
	e := preserved[V](nil)
	if data, ok := m.store.Get(cell); ok {
		value, err := lib.Deserialize[V](data)
		if err != nil {
			log.Error().Err(err).Str("cell", cell.String()).Msg("lazy: cell decode failed")
			panic("lazy: corrupted storage cell: " + cell.String())
		}
		e = preserved(&value)
	}
	m.cache[index] = e
	return e
}

// Get returns the value at index, nil if the cell is empty.
func (m *IndexMap[V]) Get(index uint32) *V {
	return m.loadThrough(index).Value()
}

// GetMut returns the value at index for mutation, marking it dirty.
func (m *IndexMap[V]) GetMut(index uint32) *V {
	return m.loadThrough(index).ValueMut()
}

// Put overwrites the cell at index without reading its old value. A nil
// value schedules the cell for clearing.
func (m *IndexMap[V]) Put(index uint32, value *V) {
	if e, ok := m.cache[index]; ok {
		e.Put(value)
		return
	}
	m.cache[index] = mutated(value)
}

// PutGet replaces the value at index and returns the displaced one.
// Unlike Put this reads the old cell first.
func (m *IndexMap[V]) PutGet(index uint32, value *V) *V {
	return m.loadThrough(index).Put(value)
}

// Take removes and returns the value at index.
func (m *IndexMap[V]) Take(index uint32) *V {
	return m.loadThrough(index).Take()
}

// Swap exchanges the values at a and b. Swapping two empty cells leaves
// both clean.
func (m *IndexMap[V]) Swap(a, b uint32) {
	if a == b {
		return
	}
	ea, eb := m.loadThrough(a), m.loadThrough(b)
	if ea.Value() == nil && eb.Value() == nil {
		return
	}
	ea.Put(eb.Put(ea.Value()))
}

// Push reserves this map's key region from ptr and flushes dirty cells.
// A map that was pulled must be pushed at the same key: the pull and
// push passes of a composite structure have to consume identical
// footprint sequences.
func (m *IndexMap[V]) Push(ptr *host.KeyPtr) {
	key := ptr.Next(indexMapFootprint)
	if m.key != nil && *m.key != key {
		panic("lazy: push key mismatch, pull and push footprint sequences differ")
	}
	m.key = &key
	m.Flush()
}

// Flush writes every dirty cell — one Put or Del per cell — and leaves
// clean cells untouched. A second flush with no mutations in between
// issues no I/O at all.
func (m *IndexMap[V]) Flush() {
	if m.key == nil {
		panic("lazy: flush of index map that was never pulled or pushed")
	}
	for index, e := range m.cache {
		if !e.Dirty() {
			continue
		}
		cell := m.key.Add(uint64(index))
		if v := e.Value(); v != nil {
			data, err := lib.Serialize(*v)
			if err != nil {
				panic("lazy: cell encode failed: " + err.Error())
			}
			if err := m.store.Put(cell, data); err != nil {
				panic("lazy: host store write failed: " + err.Error())
			}
		} else {
			if err := m.store.Del(cell); err != nil {
				panic("lazy: host store clear failed: " + err.Error())
			}
		}
		e.markClean()
	}
}
