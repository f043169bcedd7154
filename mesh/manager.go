// Package mesh maintains a view-dependent, crack-free triangulation of an
// ocean surface as a hierarchy of diamonds that split and merge each frame.
package mesh

import (
	"container/heap"
	"fmt"
	"log"
	"math"

	"oceansurface/core"
	"oceansurface/tasks"
)

// ServiceName labels the worker pool a Manager creates for itself.
const ServiceName = "Ocean Service"

// SplitPriority is the priority of leaves forced below the minimum active
// level.
const SplitPriority = math.MaxFloat32

// Dispatcher runs fetch requests off the update thread.
type Dispatcher interface {
	Add(r tasks.Runner, priority float64) error
}

// FrameStats reports what one frame did.
type FrameStats struct {
	Frame uint64

	Splits, ForcedSplits                  int
	Merges, DeferredMerges, RefusedMerges int
	Images, EmptyImages                   int
	Stale                                 int
	Refreshed                             int
	SplitQueue, MergeQueue, ImageQueue    int
	Diamonds, Nodes                       int
	Primitives, Triangles                 int
}

type imageJob struct {
	handle   Handle
	priority float64
}

// Manager drives the mesh. Every method except Post must be called from the
// single update goroutine.
type Manager struct {
	opts       Options
	layers     Layers
	nodes      *core.NodeArena
	manifold   *Manifold
	dispatcher Dispatcher
	service    *tasks.Service // owned, nil when a dispatcher was supplied

	splitQueue jobQueue
	mergeQueue jobQueue
	imageQueue []imageJob
	dirtyQueue []Handle

	surface *Texture
	sink    Sink
	posts   chan func(*Options)

	frame    uint64
	culls    uint64
	stats    FrameStats
	drawList *DrawList
}

// NewManager builds the base mesh for proj. When dispatcher is nil the
// manager starts its own worker pool and stops it on Close.
func NewManager(proj Projection, layers Layers, opts Options, dispatcher Dispatcher) (*Manager, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	m := &Manager{
		opts:       opts,
		layers:     layers,
		nodes:      core.NewNodeArena(1024),
		dispatcher: dispatcher,
		posts:      make(chan func(*Options), 64),
	}
	if dispatcher == nil {
		m.service = tasks.NewService(ServiceName, tasks.DefaultWorkers)
		m.dispatcher = m.service
	}
	m.manifold = newManifold(proj, m)
	m.manifold.initialize()

	if layers.Empty() {
		log.Printf("no mask, bathymetry or elevation source; tiles render untextured")
	}
	log.Printf("%s manifold with %d root diamonds, radius %.0f", proj.Name(), len(m.manifold.roots), proj.Radius())
	return m, nil
}

// Options returns the active configuration.
func (m *Manager) Options() Options {
	return m.opts
}

// Apply replaces the configuration after validating it.
func (m *Manager) Apply(opts Options) error {
	if err := opts.Validate(); err != nil {
		return err
	}
	m.opts = opts
	return nil
}

// Post queues an option change from any goroutine. It is applied at the
// start of the next Frame. Post reports false if too many changes are
// already waiting.
func (m *Manager) Post(fn func(*Options)) bool {
	select {
	case m.posts <- fn:
		return true
	default:
		return false
	}
}

func (m *Manager) drainPosts() {
	for {
		select {
		case fn := <-m.posts:
			opts := m.opts
			fn(&opts)
			if err := m.Apply(opts); err != nil {
				log.Printf("rejected option change: %v", err)
			}
		default:
			return
		}
	}
}

// Manifold exposes the diamond hierarchy for inspection.
func (m *Manager) Manifold() *Manifold {
	return m.manifold
}

// Nodes exposes the node arena for inspection.
func (m *Manager) Nodes() *core.NodeArena {
	return m.nodes
}

// SetSink sets the receiver of published draw lists.
func (m *Manager) SetSink(s Sink) {
	m.sink = s
}

// SetSurfaceTexture sets the detail texture bound on UnitSurface of every
// tile that receives an image from now on.
func (m *Manager) SetSurfaceTexture(t *Texture) {
	m.surface = t
}

// DrawList returns the draw list from the last cull.
func (m *Manager) DrawList() *DrawList {
	return m.drawList
}

// Close stops the manager's own worker pool, if it has one.
func (m *Manager) Close() error {
	if m.service == nil {
		return nil
	}
	return m.service.Close()
}

// QueueForSplit schedules a split of h or raises the priority of a pending
// one. A pending merge of h is cancelled.
func (m *Manager) QueueForSplit(h Handle, priority float64) {
	d := m.manifold.get(h)
	if d == nil {
		return
	}
	m.cancelMerge(d)
	d.splitJob = m.push(&m.splitQueue, d.splitJob, h, priority)
}

// QueueForMerge schedules a merge of h or updates a pending one. A pending
// split of h is cancelled.
func (m *Manager) QueueForMerge(h Handle, priority float64) {
	d := m.manifold.get(h)
	if d == nil {
		return
	}
	m.cancelSplit(d)
	d.mergeJob = m.push(&m.mergeQueue, d.mergeJob, h, priority)
}

func (m *Manager) push(q *jobQueue, job *diamondJob, h Handle, priority float64) *diamondJob {
	if job != nil && job.index >= 0 {
		job.priority = priority
		job.culls = m.culls
		heap.Fix(q, job.index)
		return job
	}
	job = &diamondJob{handle: h, priority: priority, culls: m.culls}
	heap.Push(q, job)
	return job
}

func (m *Manager) cancelSplit(d *Diamond) {
	if d.splitJob != nil {
		if d.splitJob.index >= 0 {
			heap.Remove(&m.splitQueue, d.splitJob.index)
		}
		d.splitJob = nil
	}
}

func (m *Manager) cancelMerge(d *Diamond) {
	if d.mergeJob != nil {
		if d.mergeJob.index >= 0 {
			heap.Remove(&m.mergeQueue, d.mergeJob.index)
		}
		d.mergeJob = nil
	}
}

// QueueForImage starts fetching tile imagery for h unless a fetch is already
// queued or in flight.
func (m *Manager) QueueForImage(h Handle, priority float64) {
	d := m.manifold.get(h)
	if d == nil || d.queuedForImage || d.imageRequest != nil {
		return
	}
	req := newImageRequest(m.layers, d.key, m.opts.MosaicSize)
	if req == nil {
		return
	}
	if err := m.dispatcher.Add(req.task, priority); err != nil {
		log.Printf("%s: %s request not dispatched: %v", d.key, req.kind, err)
		return
	}
	d.imageRequest = req
	d.queuedForImage = true
	d.imageAttempted = true
	m.imageQueue = append(m.imageQueue, imageJob{handle: h, priority: priority})
}

// QueueForRefresh schedules h to pick up its state owner's latest state set
// in the dirty phase.
func (m *Manager) QueueForRefresh(h Handle) {
	m.dirtyQueue = append(m.dirtyQueue, h)
}

// Update runs the split, merge, image and dirty phases. Each of the first
// three handles at most MaxJobsPerFrame entries.
func (m *Manager) Update() FrameStats {
	m.frame++
	m.stats = FrameStats{Frame: m.frame}

	m.runSplits()
	m.runMerges()
	m.runImages()
	m.runRefreshes()

	m.stats.SplitQueue = m.splitQueue.Len()
	m.stats.MergeQueue = m.mergeQueue.Len()
	m.stats.ImageQueue = len(m.imageQueue)
	m.stats.Diamonds = m.manifold.Count()
	m.stats.Nodes = m.nodes.Live()
	return m.stats
}

func (m *Manager) runSplits() {
	for j := 0; j < m.opts.MaxJobsPerFrame && m.splitQueue.Len() > 0; j++ {
		job := heap.Pop(&m.splitQueue).(*diamondJob)
		d := m.manifold.get(job.handle)
		if d == nil {
			m.stats.Stale++
			continue
		}
		if d.splitJob != job {
			panic(fmt.Sprintf("mesh: %s popped from split queue but not marked for split", d))
		}
		d.splitJob = nil
		// the last cull never reached d, so no view asked for this split
		if job.culls < m.culls {
			m.stats.Stale++
			continue
		}
		if m.manifold.split(job.handle) {
			m.cancelMerge(d)
			m.stats.Splits++
		}
	}
}

func (m *Manager) runMerges() {
	for j := 0; j < m.opts.MaxJobsPerFrame && m.mergeQueue.Len() > 0; j++ {
		job := heap.Pop(&m.mergeQueue).(*diamondJob)
		d := m.manifold.get(job.handle)
		if d == nil {
			m.stats.Stale++
			continue
		}
		if d.mergeJob != job {
			panic(fmt.Sprintf("mesh: %s popped from merge queue but not marked for merge", d))
		}
		d.mergeJob = nil
		switch m.manifold.merge(job.handle, job.priority) {
		case mergeDone:
			m.cancelSplit(d)
			m.stats.Merges++
		case mergeDeferred:
			m.stats.DeferredMerges++
		case mergeRefused:
			m.stats.RefusedMerges++
		}
	}
}

// runImages visits the oldest image jobs. Finished fetches are applied and
// removed; unfinished ones keep their place.
func (m *Manager) runImages() {
	visit := min(m.opts.MaxJobsPerFrame, len(m.imageQueue))
	kept := m.imageQueue[:0]
	for i, job := range m.imageQueue {
		if i >= visit {
			kept = append(kept, job)
			continue
		}
		d := m.manifold.get(job.handle)
		if d == nil {
			m.stats.Stale++
			continue
		}
		req := d.imageRequest
		if req == nil || !req.task.Completed() {
			kept = append(kept, job)
			continue
		}
		d.imageRequest = nil
		d.queuedForImage = false
		tex := textureFromResult(req.task.Result())
		if tex == nil {
			m.stats.EmptyImages++
			if m.opts.Verbose {
				log.Printf("%s: %s request returned nothing", d.key, req.kind)
			}
			continue
		}
		m.applyImage(d, tex)
		m.stats.Images++
	}
	clear(m.imageQueue[len(kept):])
	m.imageQueue = kept
}

func (m *Manager) applyImage(d *Diamond, tex *Texture) {
	d.state.SetTexture(UnitTile, tex)
	if m.surface != nil {
		d.state.SetTexture(UnitSurface, m.surface)
	}
	d.state.Dirty()
	d.hasFinalImage = true
	m.retarget(d, d.handle)
}

// retarget points d and every descendant without an image of its own at
// owner's state set.
func (m *Manager) retarget(d *Diamond, owner Handle) {
	if d.handle != owner && d.hasFinalImage {
		return
	}
	d.targetOwner = owner
	if m.opts.DirtyQueue {
		m.QueueForRefresh(d.handle)
	} else {
		m.refresh(d)
	}
	for _, ch := range d.children {
		if c := m.manifold.get(ch); c != nil {
			m.retarget(c, owner)
		}
	}
}

func (m *Manager) runRefreshes() {
	for _, h := range m.dirtyQueue {
		d := m.manifold.get(h)
		if d == nil {
			m.stats.Stale++
			continue
		}
		if m.refresh(d) {
			m.stats.Refreshed++
		}
	}
	clear(m.dirtyQueue)
	m.dirtyQueue = m.dirtyQueue[:0]
}

// refresh moves d onto its target owner's current state revision.
func (m *Manager) refresh(d *Diamond) bool {
	owner := m.manifold.get(d.targetOwner)
	if owner == nil {
		return false
	}
	if d.currentOwner == d.targetOwner && !owner.state.OutOfSyncWith(d.syncedRevision) {
		return false
	}
	d.currentOwner = d.targetOwner
	owner.state.Sync(&d.syncedRevision)
	return true
}

// Cull traverses the hierarchy against cam, queueing work for the next
// Update, and returns the draw list of visible leaves.
func (m *Manager) Cull(cam Camera) *DrawList {
	m.culls++
	v := newView(cam, m.manifold.proj.Radius())
	b := newDrawListBuilder(m.frame, m.opts.SeaLevel, m.nodes)
	m.manifold.cull(&v, b)
	m.drawList = b.list
	return m.drawList
}

// Frame applies posted option changes, runs Update and Cull, and publishes
// the draw list to the sink.
func (m *Manager) Frame(cam Camera) FrameStats {
	m.drainPosts()
	st := m.Update()
	dl := m.Cull(cam)
	st.Primitives = len(dl.Primitives)
	st.Triangles = dl.Triangles()
	if m.sink != nil {
		m.sink.SetDrawList(dl)
	}
	if m.opts.Verbose && (st.Splits+st.Merges+st.Images) > 0 {
		log.Printf("frame %d: %d splits (%d forced), %d merges, %d images, %d diamonds, %d triangles",
			st.Frame, st.Splits, st.ForcedSplits, st.Merges, st.Images, st.Diamonds, st.Triangles)
	}
	return st
}
