package mesh

import (
	"testing"

	"oceansurface/tasks"
)

const testRadius = 6371000.0

func newTestManager(t *testing.T, proj Projection, layers Layers, opts Options, d Dispatcher) *Manager {
	t.Helper()
	if d == nil {
		d = tasks.Inline{}
	}
	m, err := NewManager(proj, layers, opts, d)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { m.Close() })
	return m
}

// manualOptions disables the minimum level so tests drive every split.
func manualOptions() Options {
	opts := DefaultOptions()
	opts.MinActiveLevel = 0
	opts.MaxJobsPerFrame = 16
	return opts
}

func checkInvariants(t *testing.T, m *Manager) {
	t.Helper()
	if err := m.Manifold().Check(); err != nil {
		t.Fatalf("invariants violated:\n%v", err)
	}
}

func mustSplit(t *testing.T, m *Manager, h Handle) *Diamond {
	t.Helper()
	m.QueueForSplit(h, 1)
	m.Update()
	d := m.Manifold().Lookup(h)
	if d == nil || d.IsLeaf() {
		t.Fatalf("%v was not split", h)
	}
	return d
}

func TestBaseMesh(t *testing.T) {
	tests := []struct {
		name  string
		proj  Projection
		roots int
		nodes int
	}{
		{"cube", NewCubeProjection(testRadius), 6, 8},
		{"geodetic", NewGeodeticProjection(testRadius), 8, 12},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestManager(t, tt.proj, Layers{}, manualOptions(), nil)
			if got := len(m.Manifold().Roots()); got != tt.roots {
				t.Errorf("roots %d, want %d", got, tt.roots)
			}
			if got := m.Nodes().Live(); got != tt.nodes {
				t.Errorf("nodes %d, want %d", got, tt.nodes)
			}
			for _, h := range m.Manifold().Roots() {
				d := m.Manifold().Lookup(h)
				if d == nil || !d.IsLeaf() || d.Status() != StatusActive {
					t.Errorf("root %v is not an active leaf", h)
				}
			}
			checkInvariants(t, m)
		})
	}
}

func TestSplitCreatesChildren(t *testing.T) {
	m := newTestManager(t, NewCubeProjection(testRadius), Layers{}, manualOptions(), nil)
	root := m.Manifold().Roots()[0]
	d := mustSplit(t, m, root)

	if got := m.Nodes().Live(); got != 8+5 {
		t.Errorf("nodes %d, want 13", got)
	}
	if got := m.Manifold().Count(); got != 10 {
		t.Errorf("diamonds %d, want 10", got)
	}
	for q, ch := range d.Children() {
		c := m.Manifold().Lookup(ch)
		if c == nil {
			t.Fatalf("child %d missing", q)
		}
		if c.Parent() != root {
			t.Errorf("child %d parent %v, want %v", q, c.Parent(), root)
		}
		if c.Key() != d.Key().Child(q) {
			t.Errorf("child %d key %s, want %s", q, c.Key(), d.Key().Child(q))
		}
		if c.Bound().Radius >= d.Bound().Radius {
			t.Errorf("child %d bound %.0f not smaller than parent %.0f", q, c.Bound().Radius, d.Bound().Radius)
		}
	}
	// child corners share the parent's corners and center
	if d.Children()[0] == d.Children()[1] {
		t.Fatal("children share a handle")
	}
	c0 := m.Manifold().Lookup(d.Children()[0])
	if c0.Corners()[0] != d.Corners()[0] || c0.Corners()[2] != d.Center() {
		t.Errorf("child 0 corners %v do not start at parent corner %d and end at center %d",
			c0.Corners(), d.Corners()[0], d.Center())
	}
	checkInvariants(t, m)
}

func TestSplitMergeRoundTrip(t *testing.T) {
	m := newTestManager(t, NewCubeProjection(testRadius), Layers{}, manualOptions(), nil)
	root := m.Manifold().Roots()[0]
	before := m.Manifold().Lookup(root).Corners()

	d := mustSplit(t, m, root)
	children := d.Children()
	arenaLen := m.Nodes().Len()

	m.QueueForMerge(root, 0)
	st := m.Update()
	if st.Merges != 1 {
		t.Fatalf("merges %d, want 1", st.Merges)
	}
	if !d.IsLeaf() || d.Corners() != before {
		t.Error("merge did not restore the leaf")
	}
	if got := m.Nodes().Live(); got != 8 {
		t.Errorf("live nodes %d, want 8", got)
	}
	if got := m.Nodes().FreeCount(); got != 5 {
		t.Errorf("free nodes %d, want 5", got)
	}
	for q, ch := range children {
		if m.Manifold().Lookup(ch) != nil {
			t.Errorf("child %d still resolves after merge", q)
		}
	}

	// splitting again reuses the freed nodes
	mustSplit(t, m, root)
	if got := m.Nodes().Len(); got != arenaLen {
		t.Errorf("arena grew to %d, want %d", got, arenaLen)
	}
	checkInvariants(t, m)
}

func TestAdjacentSplitsShareMidpoint(t *testing.T) {
	m := newTestManager(t, NewCubeProjection(testRadius), Layers{}, manualOptions(), nil)
	roots := m.Manifold().Roots()

	// +X and +Y share an edge
	mustSplit(t, m, roots[0])
	mustSplit(t, m, roots[2])
	if got := m.Nodes().Live(); got != 8+5+4 {
		t.Errorf("nodes %d, want 17", got)
	}
	checkInvariants(t, m)
}

// splitCorner splits root 0 and then its first child, which borders two
// unsplit roots.
func splitCorner(t *testing.T, m *Manager) (root, child Handle) {
	t.Helper()
	root = m.Manifold().Roots()[0]
	d := mustSplit(t, m, root)
	child = d.Children()[0]

	m.QueueForSplit(child, 1)
	st := m.Update()
	if st.Splits != 1 || st.ForcedSplits != 2 {
		t.Fatalf("splits %d forced %d, want 1 and 2", st.Splits, st.ForcedSplits)
	}
	return root, child
}

func TestSplitForcesCoarserNeighbors(t *testing.T) {
	m := newTestManager(t, NewCubeProjection(testRadius), Layers{}, manualOptions(), nil)
	splitCorner(t, m)

	if got := m.Manifold().Count(); got != 6+4*4 {
		t.Errorf("diamonds %d, want 22", got)
	}
	if got := m.Nodes().Live(); got != 25 {
		t.Errorf("nodes %d, want 25", got)
	}
	split := 0
	for _, h := range m.Manifold().Roots() {
		if !m.Manifold().Lookup(h).IsLeaf() {
			split++
		}
	}
	if split != 3 {
		t.Errorf("%d roots split, want 3", split)
	}
	checkInvariants(t, m)
}

func TestMergeRefusedNextToFinerLeaves(t *testing.T) {
	m := newTestManager(t, NewCubeProjection(testRadius), Layers{}, manualOptions(), nil)
	root, _ := splitCorner(t, m)

	var neighbor Handle
	for _, h := range m.Manifold().Roots() {
		if h != root && !m.Manifold().Lookup(h).IsLeaf() {
			neighbor = h
			break
		}
	}
	opts := m.Options()
	opts.MaxJobsPerFrame = 1
	if err := m.Apply(opts); err != nil {
		t.Fatal(err)
	}
	m.QueueForMerge(neighbor, 0)
	st := m.Update()
	if st.RefusedMerges != 1 || st.Merges != 0 {
		t.Errorf("refused %d merges %d, want 1 and 0", st.RefusedMerges, st.Merges)
	}
	if m.Manifold().Lookup(neighbor).IsLeaf() {
		t.Error("neighbor merged next to a finer split")
	}
	checkInvariants(t, m)
}

func TestRefusedMergeQueuesBlockingNeighbor(t *testing.T) {
	m := newTestManager(t, NewCubeProjection(testRadius), Layers{}, manualOptions(), nil)
	root, child := splitCorner(t, m)

	var neighbor Handle
	for _, h := range m.Manifold().Roots() {
		if h != root && !m.Manifold().Lookup(h).IsLeaf() {
			neighbor = h
			break
		}
	}
	m.QueueForMerge(neighbor, 0)
	st := m.Update()
	if st.RefusedMerges != 1 || st.Merges != 1 {
		t.Fatalf("refused %d merges %d, want 1 and 1", st.RefusedMerges, st.Merges)
	}
	if !m.Manifold().Lookup(child).IsLeaf() {
		t.Error("the finer split blocking the merge is still split")
	}

	m.QueueForMerge(neighbor, 0)
	if st = m.Update(); st.Merges != 1 {
		t.Fatalf("merges %d, want 1", st.Merges)
	}
	if !m.Manifold().Lookup(neighbor).IsLeaf() {
		t.Error("neighbor still split once unblocked")
	}
	checkInvariants(t, m)
}

func TestMergeDefersToSplitChildren(t *testing.T) {
	m := newTestManager(t, NewCubeProjection(testRadius), Layers{}, manualOptions(), nil)
	root, child := splitCorner(t, m)

	m.QueueForMerge(root, 0)
	st := m.Update()
	if st.DeferredMerges != 1 || st.Merges != 1 {
		t.Fatalf("deferred %d merges %d, want 1 and 1", st.DeferredMerges, st.Merges)
	}
	if !m.Manifold().Lookup(child).IsLeaf() {
		t.Error("split child was not merged first")
	}
	if m.Manifold().Lookup(root).IsLeaf() {
		t.Error("root merged in the same pass as its child")
	}

	m.QueueForMerge(root, 0)
	st = m.Update()
	if st.Merges != 1 {
		t.Fatalf("merges %d, want 1", st.Merges)
	}
	if got := m.Nodes().Live(); got != 17 {
		t.Errorf("nodes %d, want 17", got)
	}
	checkInvariants(t, m)
}

func TestQueueSplitXorMerge(t *testing.T) {
	m := newTestManager(t, NewCubeProjection(testRadius), Layers{}, manualOptions(), nil)
	root := m.Manifold().Roots()[0]
	d := m.Manifold().Lookup(root)

	m.QueueForSplit(root, 1)
	m.QueueForMerge(root, 1)
	if d.QueuedForSplit() || !d.QueuedForMerge() {
		t.Errorf("after merge: split %v merge %v", d.QueuedForSplit(), d.QueuedForMerge())
	}
	if m.splitQueue.Len() != 0 || m.mergeQueue.Len() != 1 {
		t.Errorf("queues split %d merge %d, want 0 and 1", m.splitQueue.Len(), m.mergeQueue.Len())
	}

	m.QueueForSplit(root, 1)
	if !d.QueuedForSplit() || d.QueuedForMerge() {
		t.Errorf("after split: split %v merge %v", d.QueuedForSplit(), d.QueuedForMerge())
	}
	if m.splitQueue.Len() != 1 || m.mergeQueue.Len() != 0 {
		t.Errorf("queues split %d merge %d, want 1 and 0", m.splitQueue.Len(), m.mergeQueue.Len())
	}
	checkInvariants(t, m)
}

func TestRequeueUpdatesPriority(t *testing.T) {
	opts := manualOptions()
	opts.MaxJobsPerFrame = 1
	m := newTestManager(t, NewCubeProjection(testRadius), Layers{}, opts, nil)
	roots := m.Manifold().Roots()

	// +X and -X are opposite faces, so neither split forces the other
	m.QueueForSplit(roots[0], 1)
	m.QueueForSplit(roots[1], 2)
	m.QueueForSplit(roots[0], 3)
	if m.splitQueue.Len() != 2 {
		t.Fatalf("split queue %d, want 2", m.splitQueue.Len())
	}

	m.Update()
	if m.Manifold().Lookup(roots[0]).IsLeaf() {
		t.Error("highest priority diamond was not split first")
	}
	if !m.Manifold().Lookup(roots[1]).IsLeaf() {
		t.Error("second diamond split despite a budget of one")
	}
}

func TestMaxJobsPerFrame(t *testing.T) {
	m := newTestManager(t, NewCubeProjection(testRadius), Layers{}, manualOptions(), nil)
	for _, h := range m.Manifold().Roots() {
		m.QueueForSplit(h, 1)
	}
	if st := m.Update(); st.Splits != 6 {
		t.Fatalf("splits %d, want 6", st.Splits)
	}

	opts := m.Options()
	opts.MaxJobsPerFrame = 1
	if err := m.Apply(opts); err != nil {
		t.Fatal(err)
	}
	for _, h := range m.Manifold().Leaves()[:10] {
		m.QueueForSplit(h, 1)
	}
	for i := 0; i < 10; i++ {
		st := m.Update()
		if st.Splits != 1 || st.ForcedSplits != 0 {
			t.Fatalf("update %d: splits %d forced %d, want 1 and 0", i, st.Splits, st.ForcedSplits)
		}
		if st.SplitQueue != 9-i {
			t.Errorf("update %d: %d splits left, want %d", i, st.SplitQueue, 9-i)
		}
	}
	checkInvariants(t, m)
}

func TestStaleSplitSkipped(t *testing.T) {
	m := newTestManager(t, NewCubeProjection(testRadius), Layers{}, manualOptions(), nil)
	roots := m.Manifold().Roots()
	d := mustSplit(t, m, roots[0])
	child := d.Children()[0]

	opts := m.Options()
	opts.MaxJobsPerFrame = 1
	if err := m.Apply(opts); err != nil {
		t.Fatal(err)
	}

	m.QueueForSplit(child, 1)
	m.QueueForSplit(roots[1], 10)
	m.QueueForMerge(roots[0], 0)
	st := m.Update()
	if st.Splits != 1 || st.Merges != 1 {
		t.Fatalf("splits %d merges %d, want 1 and 1", st.Splits, st.Merges)
	}
	if m.Manifold().Lookup(child) != nil {
		t.Fatal("child survived its parent's merge")
	}

	count, live := m.Manifold().Count(), m.Nodes().Live()
	st = m.Update()
	if st.Stale != 1 || st.Splits != 0 {
		t.Errorf("stale %d splits %d, want 1 and 0", st.Stale, st.Splits)
	}
	if m.Manifold().Count() != count || m.Nodes().Live() != live {
		t.Error("stale entry mutated the hierarchy")
	}
	checkInvariants(t, m)
}

func TestStaleHandleAfterSlotReuse(t *testing.T) {
	m := newTestManager(t, NewCubeProjection(testRadius), Layers{}, manualOptions(), nil)
	root := m.Manifold().Roots()[0]
	old := mustSplit(t, m, root).Children()

	m.QueueForMerge(root, 0)
	m.Update()
	fresh := mustSplit(t, m, root).Children()

	for q := range old {
		if old[q] == fresh[q] {
			t.Errorf("child %d handle %v reused", q, old[q])
		}
		if m.Manifold().Lookup(old[q]) != nil {
			t.Errorf("old child %d handle still resolves", q)
		}
	}
}

func TestGeodeticSplit(t *testing.T) {
	m := newTestManager(t, NewGeodeticProjection(testRadius), Layers{}, manualOptions(), nil)
	for _, h := range m.Manifold().Roots() {
		m.QueueForSplit(h, 1)
	}
	m.Update()
	for _, h := range m.Manifold().Leaves()[:8] {
		m.QueueForSplit(h, 1)
	}
	m.Update()
	checkInvariants(t, m)

	// the antimeridian edge is shared, so the westernmost and easternmost
	// roots meet at the same nodes
	roots := m.Manifold().Roots()
	west := m.Manifold().Lookup(roots[0]).Corners()
	east := m.Manifold().Lookup(roots[3]).Corners()
	if west[0] != east[1] || west[3] != east[2] {
		t.Errorf("antimeridian not shared: west %v east %v", west, east)
	}
}
