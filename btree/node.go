package btree

const (
	// degree is the branching parameter B: nodes hold up to 2B-1 pairs
	// and 2B edges.
	degree = 6

	// Capacity is the maximum number of pairs per node.
	Capacity = 2*degree - 1

	// minLen is the pair count a non-root node may not drop below.
	minLen = degree - 1
)

// nilIdx marks an unused handle slot. Both node handles and pair
// storage indices use it.
const nilIdx = ^uint32(0)

// node is one B-tree node. It never holds keys or values itself: Pairs
// are indices into the map's pair storage and Edges are handles into
// the node storage, so rebalancing moves four-byte indices around while
// the payloads stay where they were written. Parent and ParentIdx point
// back at the exact edge slot holding this node; every operation that
// relocates a node must restore that back-pointer before returning.
type node struct {
	Parent    uint32
	ParentIdx uint32
	Len       uint32
	Pairs     [Capacity]uint32
	Edges     [Capacity + 1]uint32
}

func newNode() *node {
	n := &node{Parent: nilIdx}
	for i := range n.Pairs {
		n.Pairs[i] = nilIdx
	}
	for i := range n.Edges {
		n.Edges[i] = nilIdx
	}
	return n
}

// leaf reports whether the node has no edges. Internal nodes always
// populate edge zero.
func (n *node) leaf() bool {
	return n.Edges[0] == nilIdx
}

// insertPair shifts pairs at and after pos one slot right and writes
// idx at pos.
func (n *node) insertPair(pos, idx uint32) {
	copy(n.Pairs[pos+1:n.Len+1], n.Pairs[pos:n.Len])
	n.Pairs[pos] = idx
}

// removePair shifts pairs after pos one slot left and vacates the last
// occupied slot.
func (n *node) removePair(pos uint32) {
	copy(n.Pairs[pos:n.Len-1], n.Pairs[pos+1:n.Len])
	n.Pairs[n.Len-1] = nilIdx
}

// insertEdge shifts edges at and after pos one slot right and writes h
// at pos. Callers fix the ParentIdx of every shifted child.
func (n *node) insertEdge(pos, h uint32) {
	copy(n.Edges[pos+1:n.Len+2], n.Edges[pos:n.Len+1])
	n.Edges[pos] = h
}

// removeEdge shifts edges after pos one slot left.
func (n *node) removeEdge(pos uint32) {
	copy(n.Edges[pos:n.Len], n.Edges[pos+1:n.Len+1])
	n.Edges[n.Len] = nilIdx
}
