package host

// Footprinter is implemented by every storage-resident structure. The
// footprint is the number of contiguous cell slots the structure
// reserves starting at its base key; sibling fields of a composite
// structure receive disjoint key regions purely from their footprints.
type Footprinter interface {
	Footprint() uint64
}

// KeyPtr is a cursor over the key space. Composite structures pull and
// push their fields through the same cursor in declaration order, so
// both passes must consume identical footprint sequences.
type KeyPtr struct {
	cur Key
}

// NewKeyPtr returns a cursor positioned at root.
func NewKeyPtr(root Key) *KeyPtr {
	return &KeyPtr{cur: root}
}

// Next returns the current key and advances the cursor by footprint.
// The returned key is the base of the region just reserved.
func (p *KeyPtr) Next(footprint uint64) Key {
	k := p.cur
	p.cur = p.cur.Add(footprint)
	return k
}

// NextFor reserves a region sized for f and returns its base key.
func (p *KeyPtr) NextFor(f Footprinter) Key {
	return p.Next(f.Footprint())
}

// Current returns the cursor position without advancing it.
func (p *KeyPtr) Current() Key {
	return p.cur
}
