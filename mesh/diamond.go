package mesh

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl64"

	"oceansurface/core"
	"oceansurface/tiles"
)

// Status of a diamond slot
type Status uint8

const (
	StatusEmpty Status = iota
	StatusActive
)

func (s Status) String() string {
	switch s {
	case StatusEmpty:
		return "EMPTY"
	case StatusActive:
		return "ACTIVE"
	}
	return fmt.Sprintf("Status(%d)", uint8(s))
}

// Handle is a weak reference to a diamond in the Manifold's table. A handle
// stops resolving once its diamond is destroyed, even if the slot is reused.
type Handle struct {
	index uint32
	gen   uint32
}

// IsZero reports whether h was never assigned.
func (h Handle) IsZero() bool {
	return h.gen == 0
}

func (h Handle) String() string {
	return fmt.Sprintf("#%d.%d", h.index, h.gen)
}

// Diamond is a quad of two triangles sharing the c0-c2 diagonal. Corners run
// counter-clockwise in tile space starting at the tile's minimum corner:
//
//	c3 --- c2
//	|     / |
//	|   /   |
//	c0 --- c1
//
// Children follow the same layout: child q covers quadrant q of the tile.
type Diamond struct {
	handle   Handle
	key      tiles.TileKey
	level    int
	quadrant int // index among siblings, -1 for roots
	status   Status

	corners  [4]core.NodeIndex
	coords   [4]mgl64.Vec3
	center   core.NodeIndex
	parent   Handle
	children [4]Handle
	split    bool
	bound    Bound

	splitJob       *diamondJob
	mergeJob       *diamondJob
	queuedForImage bool
	imageRequest   *imageRequest
	imageAttempted bool
	hasFinalImage  bool

	state          StateSet
	targetOwner    Handle
	currentOwner   Handle
	syncedRevision uint64
}

func (d *Diamond) Handle() Handle             { return d.handle }
func (d *Diamond) Key() tiles.TileKey         { return d.key }
func (d *Diamond) Level() int                 { return d.level }
func (d *Diamond) Status() Status             { return d.status }
func (d *Diamond) Parent() Handle             { return d.parent }
func (d *Diamond) Children() [4]Handle        { return d.children }
func (d *Diamond) Corners() [4]core.NodeIndex { return d.corners }
func (d *Diamond) Center() core.NodeIndex     { return d.center }
func (d *Diamond) Bound() Bound               { return d.bound }
func (d *Diamond) State() *StateSet           { return &d.state }
func (d *Diamond) HasFinalImage() bool        { return d.hasFinalImage }

// IsLeaf reports whether the diamond has no children.
func (d *Diamond) IsLeaf() bool {
	return !d.split
}

// QueuedForSplit reports whether a split job is pending.
func (d *Diamond) QueuedForSplit() bool {
	return d.splitJob != nil
}

// QueuedForMerge reports whether a merge job is pending.
func (d *Diamond) QueuedForMerge() bool {
	return d.mergeJob != nil
}

// QueuedForImage reports whether the diamond sits in the image queue.
func (d *Diamond) QueuedForImage() bool {
	return d.queuedForImage
}

// ImageRequestKind returns the kind of the in-flight fetch, if any.
func (d *Diamond) ImageRequestKind() (RequestKind, bool) {
	if d.imageRequest == nil {
		return 0, false
	}
	return d.imageRequest.kind, true
}

func (d *Diamond) String() string {
	return d.key.String()
}

// edge returns the key of edge i, running from corner i to corner i+1.
func (d *Diamond) edge(i int) edgeKey {
	return makeEdgeKey(d.corners[i], d.corners[(i+1)%4])
}

// outerEdges lists the edges of child q that lie on the parent's boundary.
// They share the parent's edge numbering.
func outerEdges(q int) [2]int {
	return [2]int{q, (q + 3) % 4}
}
