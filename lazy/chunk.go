package lazy

import (
	"github.com/oarkflow/chainstore/host"
	"github.com/oarkflow/chainstore/lib"
)

const chunkFootprint = uint64(1) << 32

// Chunk is a contiguous run of cells addressed base+0..base+2^32-1.
// It is the storage primitive under the dense collections (heap,
// stash entries): same load-through cache and dirty-only flush as
// IndexMap, plus cell clearing helpers for shrink paths.
type Chunk[V any] struct {
	store host.Store
	key   *host.Key
	cache map[uint32]*Entry[V]
}

// NewChunk returns an unbound chunk; lazy loads panic until it is
// pulled or pushed.
func NewChunk[V any](store host.Store) *Chunk[V] {
	return &Chunk[V]{store: store, cache: make(map[uint32]*Entry[V])}
}

// PullChunk binds a chunk to the region reserved from ptr.
func PullChunk[V any](store host.Store, ptr *host.KeyPtr) *Chunk[V] {
	c := NewChunk[V](store)
	key := ptr.Next(chunkFootprint)
	c.key = &key
	return c
}

func (c *Chunk[V]) Footprint() uint64 {
	return chunkFootprint
}

func (c *Chunk[V]) Key() *host.Key {
	return c.key
}

func (c *Chunk[V]) loadThrough(index uint32) *Entry[V] {
	if e, ok := c.cache[index]; ok {
		return e
	}
	if c.key == nil {
		panic("lazy: chunk not pulled from storage")
	}
	cell := c.key.Add(uint64(index))
	e := preserved[V](nil)
	if data, ok := c.store.Get(cell); ok {
		value, err := lib.Deserialize[V](data)
		if err != nil {
			panic("lazy: corrupted storage cell: " + cell.String())
		}
		e = preserved(&value)
	}
	c.cache[index] = e
	return e
}

// Get returns the value at index, nil for an empty cell.
func (c *Chunk[V]) Get(index uint32) *V {
	return c.loadThrough(index).Value()
}

// GetMut returns the value at index for mutation.
func (c *Chunk[V]) GetMut(index uint32) *V {
	return c.loadThrough(index).ValueMut()
}

// Put overwrites the cell at index, pure write path: the old cell value
// is never read.
func (c *Chunk[V]) Put(index uint32, value *V) {
	if e, ok := c.cache[index]; ok {
		e.Put(value)
		return
	}
	c.cache[index] = mutated(value)
}

// PutGet replaces the value at index and returns the displaced one.
func (c *Chunk[V]) PutGet(index uint32, value *V) *V {
	return c.loadThrough(index).Put(value)
}

// Take removes and returns the value at index.
func (c *Chunk[V]) Take(index uint32) *V {
	return c.loadThrough(index).Take()
}

// ClearAt schedules the cell at index for clearing without reading it.
func (c *Chunk[V]) ClearAt(index uint32) {
	c.Put(index, nil)
}

// Swap exchanges the values at a and b.
func (c *Chunk[V]) Swap(a, b uint32) {
	if a == b {
		return
	}
	ea, eb := c.loadThrough(a), c.loadThrough(b)
	if ea.Value() == nil && eb.Value() == nil {
		return
	}
	ea.Put(eb.Put(ea.Value()))
}

// Push reserves the chunk's region from ptr and flushes dirty cells.
func (c *Chunk[V]) Push(ptr *host.KeyPtr) {
	key := ptr.Next(chunkFootprint)
	if c.key == nil {
		c.key = &key
	}
	c.Flush()
}

// Flush writes dirty cells back, one host call per mutated cell.
func (c *Chunk[V]) Flush() {
	if c.key == nil {
		panic("lazy: flush of chunk that was never pulled or pushed")
	}
	for index, e := range c.cache {
		if !e.Dirty() {
			continue
		}
		cell := c.key.Add(uint64(index))
		if v := e.Value(); v != nil {
			data, err := lib.Serialize(*v)
			if err != nil {
				panic("lazy: cell encode failed: " + err.Error())
			}
			if err := c.store.Put(cell, data); err != nil {
				panic("lazy: host store write failed: " + err.Error())
			}
		} else {
			if err := c.store.Del(cell); err != nil {
				panic("lazy: host store clear failed: " + err.Error())
			}
		}
		e.markClean()
	}
}
