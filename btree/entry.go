package btree

import (
	"golang.org/x/exp/constraints"
)

// MapEntry is a view of one key's slot, occupied or vacant, taken in a
// single descent. It mirrors the get-or-insert access pattern without a
// separate existence probe. A MapEntry is only valid until the next
// mutation of the map.
type MapEntry[K constraints.Ordered, V any] struct {
	m        *Map[K, V]
	key      K
	pairIdx  uint32
	occupied bool
}

// Entry returns the slot view for key.
func (m *Map[K, V]) Entry(key K) MapEntry[K, V] {
	h, pos, ok := m.locate(key)
	if !ok {
		return MapEntry[K, V]{m: m, key: key}
	}
	return MapEntry[K, V]{m: m, key: key, pairIdx: m.nodeRef(h).Pairs[pos], occupied: true}
}

// Occupied reports whether the key was present when the entry was
// taken.
func (e MapEntry[K, V]) Occupied() bool {
	return e.occupied
}

// Key returns the key this entry was taken for.
func (e MapEntry[K, V]) Key() K {
	return e.key
}

// Get returns the current value, nil for a vacant entry.
func (e MapEntry[K, V]) Get() *V {
	if !e.occupied {
		return nil
	}
	return &e.m.pairs.Get(e.pairIdx).Value
}

// Insert stores value in the slot. For an occupied entry the old value
// is replaced in place — no tree mutation — and returned.
func (e MapEntry[K, V]) Insert(value V) *V {
	if e.occupied {
		p := e.m.pairs.GetMut(e.pairIdx)
		old := p.Value
		p.Value = value
		return &old
	}
	return e.m.Put(e.key, value)
}

// OrInsert returns the current value, inserting fallback first when the
// entry is vacant.
func (e MapEntry[K, V]) OrInsert(fallback V) *V {
	if e.occupied {
		return &e.m.pairs.GetMut(e.pairIdx).Value
	}
	e.m.Put(e.key, fallback)
	return e.m.GetMut(e.key)
}

// RemoveEntry deletes an occupied slot and returns its key and value.
// Vacant entries report false.
func (e MapEntry[K, V]) RemoveEntry() (K, V, bool) {
	if !e.occupied {
		var zero V
		return e.key, zero, false
	}
	value := e.m.Remove(e.key)
	return e.key, *value, true
}
