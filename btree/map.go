package btree

import (
	"golang.org/x/exp/constraints"

	"github.com/oarkflow/chainstore/host"
	"github.com/oarkflow/chainstore/lib"
	"github.com/oarkflow/chainstore/stash"
)

// pair is one key/value payload. Pairs live in their own storage arena
// and are only ever referenced by index from nodes.
type pair[K constraints.Ordered, V any] struct {
	Key   K
	Value V
}

type mapHeader struct {
	Root uint32
	Len  uint32
}

// Map is an ordered map backed by a B-tree whose nodes and key/value
// pairs occupy two separate storage arenas. Node handles and pair
// indices are arena slots, so the tree has no pointers — a node names
// its children and its payloads by index alone.
type Map[K constraints.Ordered, V any] struct {
	store host.Store

	key         *host.Key
	root        uint32
	len         uint32
	headerDirty bool

	nodes *stash.Stash[node]
	pairs *stash.Stash[pair[K, V]]
}

// New returns an unbound, empty map.
func New[K constraints.Ordered, V any](store host.Store) *Map[K, V] {
	return &Map[K, V]{
		store: store,
		root:  nilIdx,
		nodes: stash.New[node](store),
		pairs: stash.New[pair[K, V]](store),
	}
}

// Pull binds a map to the region reserved from ptr and reads its
// header; nodes and pairs load on demand as lookups touch them.
func Pull[K constraints.Ordered, V any](store host.Store, ptr *host.KeyPtr) *Map[K, V] {
	m := &Map[K, V]{store: store, root: nilIdx}
	key := ptr.Next(1)
	m.key = &key
	if data, ok := store.Get(key); ok {
		h, err := lib.Deserialize[mapHeader](data)
		if err != nil {
			panic("btree: corrupted map header: " + key.String())
		}
		m.root, m.len = h.Root, h.Len
	}
	m.nodes = stash.Pull[node](store, ptr)
	m.pairs = stash.Pull[pair[K, V]](store, ptr)
	return m
}

// Footprint covers the header cell plus the two arenas.
func (m *Map[K, V]) Footprint() uint64 {
	return 1 + m.nodes.Footprint() + m.pairs.Footprint()
}

// Len returns the number of stored pairs.
func (m *Map[K, V]) Len() uint32 {
	return m.len
}

func (m *Map[K, V]) IsEmpty() bool {
	return m.len == 0
}

// NodeCount returns the number of live tree nodes.
func (m *Map[K, V]) NodeCount() uint32 {
	return m.nodes.Len()
}

// StorageEmpty reports whether both arenas have been drained back to
// zero slots, i.e. a fully removed tree left nothing behind.
func (m *Map[K, V]) StorageEmpty() bool {
	return m.root == nilIdx && m.nodes.MaxLen() == 0 && m.pairs.MaxLen() == 0
}

func (m *Map[K, V]) nodeRef(h uint32) *node {
	n := m.nodes.Get(h)
	if n == nil {
		panic("btree: dangling node handle")
	}
	return n
}

func (m *Map[K, V]) nodeMut(h uint32) *node {
	n := m.nodes.GetMut(h)
	if n == nil {
		panic("btree: dangling node handle")
	}
	return n
}

func (m *Map[K, V]) pairKey(idx uint32) K {
	p := m.pairs.Get(idx)
	if p == nil {
		panic("btree: dangling pair index")
	}
	return p.Key
}

// searchNode finds the position of key within n: (pos, true) when the
// pair at pos holds key, else (pos, false) with pos naming the edge to
// descend.
func (m *Map[K, V]) searchNode(n *node, key K) (uint32, bool) {
	for i := uint32(0); i < n.Len; i++ {
		k := m.pairKey(n.Pairs[i])
		if key == k {
			return i, true
		}
		if key < k {
			return i, false
		}
	}
	return n.Len, false
}

// locate descends from the root to the node holding key.
func (m *Map[K, V]) locate(key K) (handle, pos uint32, ok bool) {
	h := m.root
	for h != nilIdx {
		n := m.nodeRef(h)
		pos, found := m.searchNode(n, key)
		if found {
			return h, pos, true
		}
		if n.leaf() {
			return nilIdx, 0, false
		}
		h = n.Edges[pos]
	}
	return nilIdx, 0, false
}

// Get returns the value stored under key, nil if absent.
func (m *Map[K, V]) Get(key K) *V {
	h, pos, ok := m.locate(key)
	if !ok {
		return nil
	}
	return &m.pairs.Get(m.nodeRef(h).Pairs[pos]).Value
}

// GetMut returns the value under key for mutation, marking its pair
// cell dirty.
func (m *Map[K, V]) GetMut(key K) *V {
	h, pos, ok := m.locate(key)
	if !ok {
		return nil
	}
	return &m.pairs.GetMut(m.nodeRef(h).Pairs[pos]).Value
}

// Contains reports whether key is present.
func (m *Map[K, V]) Contains(key K) bool {
	_, _, ok := m.locate(key)
	return ok
}

// Put stores value under key, returning the displaced value when the
// key was already present.
func (m *Map[K, V]) Put(key K, value V) *V {
	if m.root == nilIdx {
		pairIdx := m.pairs.Put(pair[K, V]{Key: key, Value: value})
		rootHandle := m.nodes.Put(*newNode())
		r := m.nodeMut(rootHandle)
		r.Pairs[0] = pairIdx
		r.Len = 1
		m.root = rootHandle
		m.len = 1
		m.headerDirty = true
		return nil
	}
	h := m.root
	for {
		n := m.nodeRef(h)
		pos, found := m.searchNode(n, key)
		if found {
			p := m.pairs.GetMut(n.Pairs[pos])
			old := p.Value
			p.Value = value
			return &old
		}
		if n.leaf() {
			pairIdx := m.pairs.Put(pair[K, V]{Key: key, Value: value})
			m.insertAt(h, pos, pairIdx, nilIdx)
			m.len++
			m.headerDirty = true
			return nil
		}
		h = n.Edges[pos]
	}
}

// insertAt places pairIdx (and, on recursive promotion, the right-hand
// edge produced by a lower split) into node h at pos, splitting h when
// it is already at capacity.
func (m *Map[K, V]) insertAt(h, pos, pairIdx, rightEdge uint32) {
	n := m.nodeMut(h)
	if n.Len < Capacity {
		n.insertPair(pos, pairIdx)
		if rightEdge != nilIdx {
			n.insertEdge(pos+1, rightEdge)
		}
		n.Len++
		if !n.leaf() {
			m.reindexEdges(h, pos+1)
		}
		return
	}
	m.splitInsert(h, pos, pairIdx, rightEdge)
}

// splitInsert splits the full node h while folding in the incoming
// entry: the lower half stays in h, the upper half moves to a fresh
// right sibling, and the median pair is promoted into the parent —
// recursively splitting the parent when it too is full, and minting a
// new root when h was the root.
func (m *Map[K, V]) splitInsert(h, pos, pairIdx, rightEdge uint32) {
	n := m.nodeMut(h)

	// All Capacity+1 pairs and their edges, in order, with the incoming
	// entry folded in at pos.
	var allPairs [Capacity + 1]uint32
	var allEdges [Capacity + 2]uint32
	copy(allPairs[:pos], n.Pairs[:pos])
	allPairs[pos] = pairIdx
	copy(allPairs[pos+1:], n.Pairs[pos:n.Len])
	copy(allEdges[:pos+1], n.Edges[:pos+1])
	allEdges[pos+1] = rightEdge
	copy(allEdges[pos+2:], n.Edges[pos+1:n.Len+1])

	mid := uint32(Capacity+1) / 2
	promoted := allPairs[mid]
	leaf := n.leaf()

	rightHandle := m.nodes.Put(*newNode())
	n = m.nodeMut(h) // arena may have reloaded the slot
	right := m.nodeMut(rightHandle)

	// Lower half back into h.
	n.Len = mid
	copy(n.Pairs[:mid], allPairs[:mid])
	for i := mid; i < Capacity; i++ {
		n.Pairs[i] = nilIdx
	}
	// Upper half into the right sibling.
	right.Len = Capacity - mid
	copy(right.Pairs[:right.Len], allPairs[mid+1:])

	if !leaf {
		copy(n.Edges[:mid+1], allEdges[:mid+1])
		for i := mid + 1; i < Capacity+1; i++ {
			n.Edges[i] = nilIdx
		}
		copy(right.Edges[:right.Len+1], allEdges[mid+1:])
		m.reindexEdges(h, 0)
		m.reindexEdges(rightHandle, 0)
	}

	if n.Parent == nilIdx {
		rootHandle := m.nodes.Put(*newNode())
		r := m.nodeMut(rootHandle)
		r.Pairs[0] = promoted
		r.Len = 1
		r.Edges[0] = h
		r.Edges[1] = rightHandle
		m.reindexEdges(rootHandle, 0)
		m.root = rootHandle
		m.headerDirty = true
		return
	}

	parent, parentIdx := n.Parent, n.ParentIdx
	right.Parent = parent // reindexEdges in insertAt finishes the job
	m.insertAt(parent, parentIdx, promoted, rightHandle)
}

// reindexEdges rewrites the parent back-pointers of h's children from
// edge slot from onward.
func (m *Map[K, V]) reindexEdges(h, from uint32) {
	n := m.nodeRef(h)
	for i := from; i <= n.Len; i++ {
		child := n.Edges[i]
		if child == nilIdx {
			continue
		}
		c := m.nodeMut(child)
		c.Parent = h
		c.ParentIdx = i
	}
}

// Remove deletes key and returns its value, nil if absent.
func (m *Map[K, V]) Remove(key K) *V {
	h := m.root
	var pos uint32
	for {
		if h == nilIdx {
			return nil
		}
		n := m.nodeRef(h)
		p, found := m.searchNode(n, key)
		if found {
			pos = p
			break
		}
		if n.leaf() {
			return nil
		}
		h = n.Edges[p]
	}

	n := m.nodeRef(h)
	if !n.leaf() {
		// Swap with the in-order predecessor, the rightmost pair of the
		// left subtree, then delete from that leaf instead.
		leafHandle := n.Edges[pos]
		for {
			ln := m.nodeRef(leafHandle)
			if ln.leaf() {
				break
			}
			leafHandle = ln.Edges[ln.Len]
		}
		nMut := m.nodeMut(h)
		leafMut := m.nodeMut(leafHandle)
		nMut.Pairs[pos], leafMut.Pairs[leafMut.Len-1] = leafMut.Pairs[leafMut.Len-1], nMut.Pairs[pos]
		h, pos = leafHandle, leafMut.Len-1
	}

	leaf := m.nodeMut(h)
	pairIdx := leaf.Pairs[pos]
	leaf.removePair(pos)
	leaf.Len--
	removed := m.pairs.Take(pairIdx)
	if removed == nil {
		panic("btree: dangling pair index")
	}
	m.len--
	m.headerDirty = true
	m.fixUnderflow(h)
	return &removed.Value
}

// fixUnderflow restores the minimum-occupancy invariant from h upward.
// Merging is preferred over borrowing: whenever the underfull node, a
// sibling and their separator fit in one node they are folded together
// and the parent is rechecked, so a tree shrunk back under Capacity
// pairs collapses all the way to a single node. Borrowing only kicks in
// when both siblings are too full to merge with. The root is exempt
// from the minimum and collapses when it empties.
func (m *Map[K, V]) fixUnderflow(h uint32) {
	for {
		n := m.nodeRef(h)
		if n.Parent == nilIdx {
			if n.Len > 0 {
				return
			}
			if n.leaf() {
				// Tree fully drained.
				m.nodes.Take(h)
				m.root = nilIdx
			} else {
				child := n.Edges[0]
				m.nodes.Take(h)
				m.root = child
				c := m.nodeMut(child)
				c.Parent = nilIdx
				c.ParentIdx = 0
			}
			m.headerDirty = true
			return
		}
		if n.Len >= minLen {
			return
		}
		parent, idx := n.Parent, n.ParentIdx
		pn := m.nodeRef(parent)
		if idx > 0 && m.nodeRef(pn.Edges[idx-1]).Len+n.Len+1 <= Capacity {
			m.merge(parent, idx-1)
			h = parent
			continue
		}
		if idx < pn.Len && n.Len+m.nodeRef(pn.Edges[idx+1]).Len+1 <= Capacity {
			m.merge(parent, idx)
			h = parent
			continue
		}
		// Both siblings are near capacity, so either has spares.
		if idx > 0 && m.nodeRef(pn.Edges[idx-1]).Len > minLen {
			m.borrowLeft(parent, idx)
			return
		}
		m.borrowRight(parent, idx)
		return
	}
}

// borrowLeft rotates one pair clockwise through the parent: the
// separating pair drops into the underfull child, the left sibling's
// last pair replaces it, and for internal nodes the sibling's last
// edge comes along.
func (m *Map[K, V]) borrowLeft(parent, idx uint32) {
	p := m.nodeMut(parent)
	c := m.nodeMut(p.Edges[idx])
	l := m.nodeMut(p.Edges[idx-1])

	c.insertPair(0, p.Pairs[idx-1])
	c.Len++
	p.Pairs[idx-1] = l.Pairs[l.Len-1]
	l.Pairs[l.Len-1] = nilIdx

	if !c.leaf() {
		c.insertEdge(0, l.Edges[l.Len])
		l.Edges[l.Len] = nilIdx
		m.reindexEdges(p.Edges[idx], 0)
	}
	l.Len--
}

// borrowRight is the mirror rotation from the right sibling.
func (m *Map[K, V]) borrowRight(parent, idx uint32) {
	p := m.nodeMut(parent)
	c := m.nodeMut(p.Edges[idx])
	r := m.nodeMut(p.Edges[idx+1])

	c.Pairs[c.Len] = p.Pairs[idx]
	c.Len++
	p.Pairs[idx] = r.Pairs[0]
	r.removePair(0)

	if !c.leaf() {
		moved := r.Edges[0]
		c.Edges[c.Len] = moved
		mc := m.nodeMut(moved)
		mc.Parent = p.Edges[idx]
		mc.ParentIdx = c.Len
		r.removeEdge(0)
		m.reindexEdges(p.Edges[idx+1], 0)
	}
	r.Len--
}

// merge folds the separating pair at sepIdx and the whole right child
// into the left child, freeing the right child's arena slot.
func (m *Map[K, V]) merge(parent, sepIdx uint32) {
	p := m.nodeMut(parent)
	leftHandle, rightHandle := p.Edges[sepIdx], p.Edges[sepIdx+1]
	l := m.nodeMut(leftHandle)
	r := m.nodeRef(rightHandle)

	l.Pairs[l.Len] = p.Pairs[sepIdx]
	copy(l.Pairs[l.Len+1:], r.Pairs[:r.Len])
	if !l.leaf() {
		copy(l.Edges[l.Len+1:], r.Edges[:r.Len+1])
	}
	l.Len += 1 + r.Len
	if !l.leaf() {
		m.reindexEdges(leftHandle, 0)
	}

	p.removePair(sepIdx)
	p.removeEdge(sepIdx + 1)
	p.Len--
	m.reindexEdges(parent, sepIdx)

	m.nodes.Take(rightHandle)
}

// ForEach visits pairs in ascending key order until fn returns false.
func (m *Map[K, V]) ForEach(fn func(key K, value V) bool) {
	if m.root == nilIdx {
		return
	}
	m.forEachNode(m.root, fn)
}

func (m *Map[K, V]) forEachNode(h uint32, fn func(key K, value V) bool) bool {
	n := m.nodeRef(h)
	leaf := n.leaf()
	for i := uint32(0); i < n.Len; i++ {
		if !leaf && !m.forEachNode(n.Edges[i], fn) {
			return false
		}
		p := m.pairs.Get(n.Pairs[i])
		if !fn(p.Key, p.Value) {
			return false
		}
	}
	if !leaf {
		return m.forEachNode(n.Edges[n.Len], fn)
	}
	return true
}

// PushStorage reserves the map's region from ptr and flushes dirty
// state.
func (m *Map[K, V]) PushStorage(ptr *host.KeyPtr) {
	key := ptr.Next(1)
	if m.key != nil && *m.key != key {
		panic("btree: push key mismatch, pull and push footprint sequences differ")
	}
	m.key = &key
	m.flushHeader()
	m.nodes.Push(ptr)
	m.pairs.Push(ptr)
}

// Flush writes the header when it moved plus every dirty node and pair
// cell.
func (m *Map[K, V]) Flush() {
	if m.key == nil {
		panic("btree: flush of map that was never pulled or pushed")
	}
	m.flushHeader()
	m.nodes.Flush()
	m.pairs.Flush()
}

func (m *Map[K, V]) flushHeader() {
	if !m.headerDirty {
		return
	}
	data, err := lib.Serialize(mapHeader{Root: m.root, Len: m.len})
	if err != nil {
		panic("btree: header encode failed: " + err.Error())
	}
	if err := m.store.Put(*m.key, data); err != nil {
		panic("btree: host store write failed: " + err.Error())
	}
	m.headerDirty = false
}
