package lazy

// Entry is a single cached storage cell: an optional decoded value plus
// a dirty flag. A clean ("preserved") entry mirrors what the host store
// holds; a dirty ("mutated") entry must be written back — or its cell
// cleared — on the next flush. The entry owns its value, so pointers
// handed out by the containers stay valid while the cache grows.
type Entry[V any] struct {
	value *V
	dirty bool
}

// preserved wraps a value freshly loaded from storage, assumed in sync.
func preserved[V any](value *V) *Entry[V] {
	return &Entry[V]{value: value}
}

// mutated wraps a value freshly written in memory, assumed out of sync.
func mutated[V any](value *V) *Entry[V] {
	return &Entry[V]{value: value, dirty: true}
}

// Value returns the cached value, nil if the cell is empty.
func (e *Entry[V]) Value() *V {
	return e.value
}

// ValueMut returns the cached value for mutation. Any mutable access is
// conservatively assumed to dirty the entry.
func (e *Entry[V]) ValueMut() *V {
	if e.value != nil {
		e.dirty = true
	}
	return e.value
}

// Put replaces the cached value and returns the displaced one. A
// nil-for-nil replacement is a no-op and does not dirty the entry.
func (e *Entry[V]) Put(value *V) *V {
	old := e.value
	e.value = value
	if old != nil || value != nil {
		e.dirty = true
	}
	return old
}

// Take removes and returns the cached value. The entry stays behind as
// an empty dirty cell so the flush clears the backing slot.
func (e *Entry[V]) Take() *V {
	return e.Put(nil)
}

// Dirty reports whether the entry must be flushed.
func (e *Entry[V]) Dirty() bool {
	return e.dirty
}

func (e *Entry[V]) markClean() {
	e.dirty = false
}
