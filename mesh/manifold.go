package mesh

import (
	"errors"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"oceansurface/core"
)

// Manifold owns the diamond hierarchy: the diamond table, the root diamonds
// from the projection's topology and the edge links between neighbours.
// Splits keep the hierarchy a restricted quadtree, so leaves sharing an edge
// never differ by more than one level.
type Manifold struct {
	proj  Projection
	mgr   *Manager
	slots []*Diamond
	free  []uint32
	roots []Handle
	edges edgeTable
	count int
}

func newManifold(proj Projection, mgr *Manager) *Manifold {
	return &Manifold{
		proj:  proj,
		mgr:   mgr,
		edges: newEdgeTable(),
	}
}

// initialize creates the shared base nodes and one root diamond per face.
func (m *Manifold) initialize() {
	topo := m.proj.Topology()
	nodes := make([]core.NodeIndex, len(topo.Coords))
	for i, c := range topo.Coords {
		nodes[i] = m.mgr.nodes.Allocate(m.proj.CreateNode(c))
	}
	for _, f := range topo.Faces {
		var corners [4]core.NodeIndex
		for i, ci := range f.Corners {
			corners[i] = nodes[ci]
		}
		m.roots = append(m.roots, m.create(Handle{}, -1, f, corners))
	}
}

// Projection returns the projection the manifold was built from
func (m *Manifold) Projection() Projection {
	return m.proj
}

// Roots returns handles to the top-level diamonds.
func (m *Manifold) Roots() []Handle {
	return append([]Handle(nil), m.roots...)
}

// Count is the number of active diamonds.
func (m *Manifold) Count() int {
	return m.count
}

// Lookup resolves h, returning nil for stale or zero handles.
func (m *Manifold) Lookup(h Handle) *Diamond {
	return m.get(h)
}

// Leaves returns every leaf in depth-first order.
func (m *Manifold) Leaves() []Handle {
	var out []Handle
	var walk func(h Handle)
	walk = func(h Handle) {
		d := m.get(h)
		if d == nil {
			return
		}
		if d.IsLeaf() {
			out = append(out, h)
			return
		}
		for _, c := range d.children {
			walk(c)
		}
	}
	for _, r := range m.roots {
		walk(r)
	}
	return out
}

func (m *Manifold) get(h Handle) *Diamond {
	if h.gen == 0 || int(h.index) >= len(m.slots) {
		return nil
	}
	d := m.slots[h.index]
	if d.status != StatusActive || d.handle.gen != h.gen {
		return nil
	}
	return d
}

func (m *Manifold) create(parent Handle, quadrant int, f Face, corners [4]core.NodeIndex) Handle {
	var idx uint32
	var d *Diamond
	if n := len(m.free); n > 0 {
		idx = m.free[n-1]
		m.free = m.free[:n-1]
		d = m.slots[idx]
	} else {
		idx = uint32(len(m.slots))
		d = &Diamond{}
		m.slots = append(m.slots, d)
	}

	*d = Diamond{
		handle:   Handle{index: idx, gen: d.handle.gen + 1},
		key:      f.Key,
		level:    f.Key.Level,
		quadrant: quadrant,
		status:   StatusActive,
		corners:  corners,
		coords:   f.Coords,
		center:   core.NoNode,
		parent:   parent,
	}
	d.bound = m.computeBound(d)
	for i := 0; i < 4; i++ {
		m.edges.attach(d.edge(i), d.handle)
	}
	// render with whatever the parent renders with until our own image lands
	if p := m.get(parent); p != nil {
		d.targetOwner = p.targetOwner
		d.currentOwner = p.currentOwner
		d.syncedRevision = p.syncedRevision
	}
	m.count++
	return d.handle
}

func (m *Manifold) destroy(h Handle) {
	d := m.get(h)
	if d == nil {
		return
	}
	for i := 0; i < 4; i++ {
		m.edges.detach(d.edge(i), h)
	}
	*d = Diamond{handle: d.handle, status: StatusEmpty}
	m.free = append(m.free, h.index)
	m.count--
}

func (m *Manifold) computeBound(d *Diamond) Bound {
	var pts [9]mgl64.Vec3
	for i, ni := range d.corners {
		pts[i] = m.mgr.nodes.At(ni).Position
	}
	// the surface bulges past the corners; include the projected center
	pts[4] = m.proj.CreateNode(m.proj.Midpoint(d.coords[0], d.coords[2])).Position
	b := boundOf(pts[:5])
	for i := 0; i < 4; i++ {
		pts[5+i] = m.proj.CreateNode(m.proj.Midpoint(d.coords[i], d.coords[(i+1)%4])).Position
	}
	return b.withCone(pts[4], pts[:])
}

// split subdivides leaf h into four children, first splitting any coarser
// neighbour that would otherwise end up two levels apart. It reports whether
// h was split.
func (m *Manifold) split(h Handle) bool {
	d := m.get(h)
	if d == nil || !d.IsLeaf() || d.level >= m.mgr.opts.MaxActiveLevel {
		return false
	}
	if !m.splitCoarserNeighbors(d) {
		return false
	}

	var mids [4]core.NodeIndex
	var midCoords [4]mgl64.Vec3
	for i := 0; i < 4; i++ {
		coord := m.proj.Midpoint(d.coords[i], d.coords[(i+1)%4])
		midCoords[i] = coord
		mids[i] = m.edges.acquireMid(d.edge(i), func() core.NodeIndex {
			return m.mgr.nodes.Allocate(m.proj.CreateNode(coord))
		})
	}
	kc := m.proj.Midpoint(d.coords[0], d.coords[2])
	d.center = m.mgr.nodes.Allocate(m.proj.CreateNode(kc))

	c, mc, k := d.corners, mids, d.center
	corners := [4][4]core.NodeIndex{
		{c[0], mc[0], k, mc[3]},
		{mc[0], c[1], mc[1], k},
		{k, mc[1], c[2], mc[2]},
		{mc[3], k, mc[2], c[3]},
	}
	cc, mk := d.coords, midCoords
	coords := [4][4]mgl64.Vec3{
		{cc[0], mk[0], kc, mk[3]},
		{mk[0], cc[1], mk[1], kc},
		{kc, mk[1], cc[2], mk[2]},
		{mk[3], kc, mk[2], cc[3]},
	}

	d.split = true
	m.mgr.cancelSplit(d)
	for q := 0; q < 4; q++ {
		d.children[q] = m.create(h, q, Face{Coords: coords[q], Key: d.key.Child(q)}, corners[q])
	}
	return true
}

// splitCoarserNeighbors splits the leaf across each of d's outer edges that
// is a level above d. Those edges have only d attached; the coarser leaf is
// found through the parent's edge.
func (m *Manifold) splitCoarserNeighbors(d *Diamond) bool {
	p := m.get(d.parent)
	if p == nil {
		return true
	}
	for _, i := range outerEdges(d.quadrant) {
		if m.edges.ownerCount(d.edge(i)) == 2 {
			continue
		}
		n := m.get(m.edges.neighbor(p.edge(i), p.handle))
		if n == nil || !n.IsLeaf() {
			continue
		}
		if !m.split(n.handle) {
			return false
		}
		m.mgr.stats.ForcedSplits++
	}
	return true
}

type mergeOutcome int

const (
	mergeDone mergeOutcome = iota
	mergeInvalid
	mergeDeferred
	mergeRefused
)

// merge collapses h's children. Children that are themselves split are
// queued for merging instead and h waits for a later pass. A merge that
// would leave a leaf next to leaves two levels finer is refused, and the
// split neighbours in the way are queued instead. Either way the queued
// diamonds run just ahead of h.
func (m *Manifold) merge(h Handle, priority float64) mergeOutcome {
	d := m.get(h)
	if d == nil || d.IsLeaf() {
		return mergeInvalid
	}

	ahead := math.Nextafter(priority, math.Inf(1))
	deferred := false
	for _, ch := range d.children {
		if c := m.get(ch); c != nil && !c.IsLeaf() {
			m.mgr.QueueForMerge(ch, ahead)
			deferred = true
		}
	}
	if deferred {
		return mergeDeferred
	}

	refused := false
	for q, ch := range d.children {
		c := m.get(ch)
		for _, i := range outerEdges(q) {
			if _, ok := m.edges.midpoint(c.edge(i)); !ok {
				continue
			}
			refused = true
			n := m.get(m.edges.neighbor(c.edge(i), ch))
			if n == nil || n.IsLeaf() {
				continue
			}
			if n.mergeJob == nil || n.mergeJob.priority < ahead {
				m.mgr.QueueForMerge(n.handle, ahead)
			}
		}
	}
	if refused {
		return mergeRefused
	}

	for _, ch := range d.children {
		m.destroy(ch)
	}
	d.children = [4]Handle{}
	d.split = false
	for i := 0; i < 4; i++ {
		if ni, last := m.edges.releaseMid(d.edge(i)); last {
			m.mgr.nodes.Free(ni)
		}
	}
	m.mgr.nodes.Free(d.center)
	d.center = core.NoNode
	return mergeDone
}

// cull walks the hierarchy against v, scheduling splits, merges and image
// fetches, and adds visible leaves to b.
func (m *Manifold) cull(v *view, b *drawListBuilder) {
	for _, r := range m.roots {
		m.cullDiamond(r, v, b)
	}
}

func (m *Manifold) cullDiamond(h Handle, v *view, b *drawListBuilder) {
	d := m.get(h)
	if d == nil {
		return
	}
	opts := &m.mgr.opts
	visible := v.visible(d.bound)
	sse := v.screenSpaceError(d.bound)

	if d.IsLeaf() {
		switch {
		case d.level < opts.MinActiveLevel:
			m.mgr.QueueForSplit(h, SplitPriority)
		case visible && sse > opts.SplitThreshold && d.level < opts.MaxActiveLevel:
			m.mgr.QueueForSplit(h, sse)
		default:
			m.mgr.cancelSplit(d)
		}
		if visible {
			if !d.imageAttempted {
				m.mgr.QueueForImage(h, sse)
			}
			b.add(m, d)
		}
		return
	}

	if d.level >= opts.MinActiveLevel && (!visible || sse < opts.MergeThreshold || d.level >= opts.MaxActiveLevel) {
		m.mgr.QueueForMerge(h, -sse)
	} else {
		m.mgr.cancelMerge(d)
	}
	// hidden diamonds that cannot merge themselves still let their
	// children merge
	if !visible && d.level >= opts.MinActiveLevel {
		return
	}
	for _, c := range d.children {
		m.cullDiamond(c, v, b)
	}
}

// Check verifies the structural invariants of the hierarchy and returns
// every violation found.
func (m *Manifold) Check() error {
	var errs []error
	active := 0
	for _, d := range m.slots {
		if d.status != StatusActive {
			continue
		}
		active++
		if d.splitJob != nil && d.mergeJob != nil {
			errs = append(errs, fmt.Errorf("%s: queued for both split and merge", d))
		}
		if d.split {
			for q, ch := range d.children {
				c := m.get(ch)
				switch {
				case c == nil:
					errs = append(errs, fmt.Errorf("%s: child %d is not active", d, q))
				case c.parent != d.handle:
					errs = append(errs, fmt.Errorf("%s: child %s has parent %s", d, c, c.parent))
				case c.level != d.level+1:
					errs = append(errs, fmt.Errorf("%s: child %s at level %d", d, c, c.level))
				}
			}
			continue
		}
		for q, ch := range d.children {
			if !ch.IsZero() {
				errs = append(errs, fmt.Errorf("%s: leaf has child %d", d, q))
			}
		}
		// a split neighbour's children along the shared edge must be leaves
		for i := 0; i < 4; i++ {
			mid, ok := m.edges.midpoint(d.edge(i))
			if !ok {
				continue
			}
			for _, half := range [2]edgeKey{makeEdgeKey(d.corners[i], mid), makeEdgeKey(mid, d.corners[(i+1)%4])} {
				if _, ok := m.edges.midpoint(half); ok {
					errs = append(errs, fmt.Errorf("%s: neighbour across edge %d is two levels finer", d, i))
				}
			}
		}
	}
	if active != m.count {
		errs = append(errs, fmt.Errorf("active count %d, table holds %d", m.count, active))
	}
	return errors.Join(errs...)
}
