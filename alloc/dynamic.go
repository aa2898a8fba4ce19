package alloc

import (
	"github.com/oarkflow/chainstore/host"
)

// DynamicAllocation is a slot handed out by the Allocator. Its cell
// address lives in the dynamic region of the key space, far above the
// statically laid-out structures.
type DynamicAllocation uint32

// dynamicRegion is the base key of dynamically allocated cells. The
// high byte keeps the region disjoint from cursor-assigned keys, which
// grow upward from zero.
var dynamicRegion = func() host.Key {
	var k host.Key
	k[0] = 0xFE
	return k
}()

// Key returns the cell address backing this allocation.
func (d DynamicAllocation) Key() host.Key {
	return dynamicRegion.Add(uint64(d))
}
