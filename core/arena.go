package core

// NodeArena stores mesh nodes by index. Freed slots go on a stack and the
// most recently freed slot is handed out first; storage only grows when the
// stack is empty. Indices stay stable until freed.
//
// The arena never shrinks. Callers must not touch an index after freeing it.
type NodeArena struct {
	nodes []MeshNode
	free  []NodeIndex
}

// NewNodeArena creates an arena with room for capacity nodes
func NewNodeArena(capacity int) *NodeArena {
	return &NodeArena{
		nodes: make([]MeshNode, 0, capacity),
	}
}

// Allocate stores node and returns its index.
func (a *NodeArena) Allocate(node MeshNode) NodeIndex {
	if n := len(a.free); n > 0 {
		ni := a.free[n-1]
		a.free = a.free[:n-1]
		a.nodes[ni] = node
		return ni
	}
	a.nodes = append(a.nodes, node)
	return NodeIndex(len(a.nodes) - 1)
}

// Free returns the slot to the free list.
func (a *NodeArena) Free(ni NodeIndex) {
	a.nodes[ni] = MeshNode{}
	a.free = append(a.free, ni)
}

// At returns the node stored at ni.
func (a *NodeArena) At(ni NodeIndex) *MeshNode {
	return &a.nodes[ni]
}

// Len is the number of slots ever allocated, live or free.
func (a *NodeArena) Len() int {
	return len(a.nodes)
}

// FreeCount is the number of slots waiting for reuse.
func (a *NodeArena) FreeCount() int {
	return len(a.free)
}

// Live is the number of slots currently in use.
func (a *NodeArena) Live() int {
	return len(a.nodes) - len(a.free)
}
