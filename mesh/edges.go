package mesh

import (
	"fmt"

	"oceansurface/core"
)

// edgeKey is an undirected edge between two nodes, lower index first.
type edgeKey struct {
	a, b core.NodeIndex
}

func makeEdgeKey(a, b core.NodeIndex) edgeKey {
	if a > b {
		a, b = b, a
	}
	return edgeKey{a, b}
}

// edgeRecord tracks the diamonds bordering an edge and the midpoint node
// shared by whichever of them has split.
type edgeRecord struct {
	owners  [2]Handle
	count   int
	mid     core.NodeIndex
	midRefs int
}

// edgeTable links diamonds across edges. Each edge has at most two owners;
// a midpoint lives as long as one owner is split.
type edgeTable struct {
	records map[edgeKey]*edgeRecord
}

func newEdgeTable() edgeTable {
	return edgeTable{records: make(map[edgeKey]*edgeRecord)}
}

func (t *edgeTable) attach(e edgeKey, h Handle) {
	r := t.records[e]
	if r == nil {
		r = &edgeRecord{mid: core.NoNode}
		t.records[e] = r
	}
	if r.count == len(r.owners) {
		panic(fmt.Sprintf("mesh: edge %d-%d already has two diamonds", e.a, e.b))
	}
	r.owners[r.count] = h
	r.count++
}

func (t *edgeTable) detach(e edgeKey, h Handle) {
	r := t.records[e]
	if r == nil {
		return
	}
	for i := 0; i < r.count; i++ {
		if r.owners[i] == h {
			r.count--
			r.owners[i] = r.owners[r.count]
			r.owners[r.count] = Handle{}
			break
		}
	}
	t.collect(e, r)
}

// ownerCount is the number of diamonds bordering e.
func (t *edgeTable) ownerCount(e edgeKey) int {
	if r := t.records[e]; r != nil {
		return r.count
	}
	return 0
}

// neighbor returns the other diamond bordering e, or the zero handle.
func (t *edgeTable) neighbor(e edgeKey, h Handle) Handle {
	r := t.records[e]
	if r == nil {
		return Handle{}
	}
	for i := 0; i < r.count; i++ {
		if r.owners[i] != h {
			return r.owners[i]
		}
	}
	return Handle{}
}

// midpoint returns the node splitting e, if either side is split.
func (t *edgeTable) midpoint(e edgeKey) (core.NodeIndex, bool) {
	if r := t.records[e]; r != nil && r.midRefs > 0 {
		return r.mid, true
	}
	return core.NoNode, false
}

// acquireMid returns the midpoint of e, calling create if none exists yet.
func (t *edgeTable) acquireMid(e edgeKey, create func() core.NodeIndex) core.NodeIndex {
	r := t.records[e]
	if r == nil {
		panic(fmt.Sprintf("mesh: split across unknown edge %d-%d", e.a, e.b))
	}
	if r.midRefs == 0 {
		r.mid = create()
	}
	r.midRefs++
	return r.mid
}

// releaseMid drops one reference to the midpoint of e. It returns the node
// and true when that was the last reference and the node should be freed.
func (t *edgeTable) releaseMid(e edgeKey) (core.NodeIndex, bool) {
	r := t.records[e]
	if r == nil || r.midRefs == 0 {
		return core.NoNode, false
	}
	r.midRefs--
	if r.midRefs > 0 {
		return r.mid, false
	}
	mid := r.mid
	r.mid = core.NoNode
	t.collect(e, r)
	return mid, true
}

func (t *edgeTable) collect(e edgeKey, r *edgeRecord) {
	if r.count == 0 && r.midRefs == 0 {
		delete(t.records, e)
	}
}

func (t *edgeTable) len() int {
	return len(t.records)
}
