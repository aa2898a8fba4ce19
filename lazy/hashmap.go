package lazy

import (
	sha256 "github.com/minio/sha256-simd"
	"github.com/oarkflow/msgpack"

	"github.com/oarkflow/chainstore/host"
	"github.com/oarkflow/chainstore/lib"
)

// HashMap maps arbitrary comparable keys onto cells. Contiguous offset
// arithmetic cannot cover an unbounded key domain, so each cell address
// is derived by hashing the map's base key together with the encoded
// element key; the digest width is exactly one cell address.
type HashMap[K comparable, V any] struct {
	store host.Store
	key   *host.Key
	cache map[K]*Entry[V]
}

// NewHashMap returns an unbound map.
func NewHashMap[K comparable, V any](store host.Store) *HashMap[K, V] {
	return &HashMap[K, V]{store: store, cache: make(map[K]*Entry[V])}
}

// PullHashMap binds a map to the single header slot reserved from ptr.
// Element cells live at hashed addresses and consume no footprint.
func PullHashMap[K comparable, V any](store host.Store, ptr *host.KeyPtr) *HashMap[K, V] {
	m := NewHashMap[K, V](store)
	key := ptr.Next(1)
	m.key = &key
	return m
}

func (m *HashMap[K, V]) Footprint() uint64 {
	return 1
}

func (m *HashMap[K, V]) Key() *host.Key {
	return m.key
}

// KeyFor derives the cell address of an element key: the SHA-256 of the
// base key concatenated with the element key's encoding.
func (m *HashMap[K, V]) KeyFor(key K) host.Key {
	if m.key == nil {
		panic("lazy: hash map not pulled from storage")
	}
	encoded, err := msgpack.Marshal(key)
	if err != nil {
		panic("lazy: hash map key encode failed: " + err.Error())
	}
	buf := make([]byte, 0, host.KeySize+len(encoded))
	buf = append(buf, m.key[:]...)
	buf = append(buf, encoded...)
	return host.Key(sha256.Sum256(buf))
}

func (m *HashMap[K, V]) loadThrough(key K) *Entry[V] {
	if e, ok := m.cache[key]; ok {
		return e
	}
	cell := m.KeyFor(key)
	e := preserved[V](nil)
	if data, ok := m.store.Get(cell); ok {
		value, err := lib.Deserialize[V](data)
		if err != nil {
			panic("lazy: corrupted storage cell: " + cell.String())
		}
		e = preserved(&value)
	}
	m.cache[key] = e
	return e
}

// Get returns the value for key, nil if absent.
func (m *HashMap[K, V]) Get(key K) *V {
	return m.loadThrough(key).Value()
}

// GetMut returns the value for key for mutation.
func (m *HashMap[K, V]) GetMut(key K) *V {
	return m.loadThrough(key).ValueMut()
}

// Put overwrites the value for key without reading the old one.
func (m *HashMap[K, V]) Put(key K, value *V) {
	if e, ok := m.cache[key]; ok {
		e.Put(value)
		return
	}
	m.cache[key] = mutated(value)
}

// PutGet replaces the value for key and returns the displaced one.
func (m *HashMap[K, V]) PutGet(key K, value *V) *V {
	return m.loadThrough(key).Put(value)
}

// Take removes and returns the value for key.
func (m *HashMap[K, V]) Take(key K) *V {
	return m.loadThrough(key).Take()
}

// Swap exchanges the values of a and b.
func (m *HashMap[K, V]) Swap(a, b K) {
	if a == b {
		return
	}
	ea, eb := m.loadThrough(a), m.loadThrough(b)
	if ea.Value() == nil && eb.Value() == nil {
		return
	}
	ea.Put(eb.Put(ea.Value()))
}

// Push reserves the map's header slot from ptr and flushes dirty cells.
func (m *HashMap[K, V]) Push(ptr *host.KeyPtr) {
	key := ptr.Next(1)
	if m.key != nil && *m.key != key {
		panic("lazy: push key mismatch, pull and push footprint sequences differ")
	}
	m.key = &key
	m.Flush()
}

// Flush writes every dirty cell, leaving clean ones untouched.
func (m *HashMap[K, V]) Flush() {
	if m.key == nil {
		panic("lazy: flush of hash map that was never pulled or pushed")
	}
	for key, e := range m.cache {
		if !e.Dirty() {
			continue
		}
		cell := m.KeyFor(key)
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
