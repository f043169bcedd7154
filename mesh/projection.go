package mesh

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/go-gl/mathgl/mgl64"

	"oceansurface/core"
	"oceansurface/tiles"
)

// Bound is a bounding sphere in world coordinates. A non-zero Axis adds a
// cone around the planet center: every point of the patch lies within Spread
// radians of Axis and no farther than Reach from the center.
type Bound struct {
	Center mgl64.Vec3
	Radius float64
	Axis   mgl64.Vec3
	Spread float64
	Reach  float64
}

// Face is one root diamond of a projection's topology.
type Face struct {
	// Corners index into Topology.Coords, counter-clockwise from the tile
	// minimum. Faces sharing an index share the node.
	Corners [4]int
	// Coords are the manifold coordinates the face interpolates between.
	// They can differ from Topology.Coords where a face wraps around.
	Coords [4]mgl64.Vec3
	Key    tiles.TileKey
}

// Topology is the base mesh a Manifold starts from.
type Topology struct {
	Coords []mgl64.Vec3
	Faces  []Face
}

// Projection maps manifold coordinates onto the world.
type Projection interface {
	Name() string
	Radius() float64
	Topology() Topology
	// Midpoint returns the manifold coordinate halfway between a and b.
	Midpoint(a, b mgl64.Vec3) mgl64.Vec3
	// CreateNode projects a manifold coordinate into a mesh node.
	CreateNode(coord mgl64.Vec3) core.MeshNode
	InitialBound() Bound
}

// sphereNode builds the node for a unit direction on a sphere of radius r.
// Texture coordinates are normalized longitude and latitude.
func sphereNode(coord, dir mgl64.Vec3, r float64) core.MeshNode {
	lat, lon := core.UnitToLatLon(dir)
	return core.MeshNode{
		Coord:    coord,
		Position: dir.Mul(r),
		Normal:   mgl32.Vec3{float32(dir.X()), float32(dir.Y()), float32(dir.Z())},
		TexCoord: mgl32.Vec2{float32((lon + 180) / 360), float32((lat + 90) / 180)},
	}
}

func sphereBound(r float64) Bound {
	return Bound{Radius: r}
}

// boundOf returns the sphere around pts centered on their average.
func boundOf(pts []mgl64.Vec3) Bound {
	var c mgl64.Vec3
	for _, p := range pts {
		c = c.Add(p)
	}
	c = c.Mul(1 / float64(len(pts)))
	r := 0.0
	for _, p := range pts {
		r = math.Max(r, p.Sub(c).Len())
	}
	return Bound{Center: c, Radius: r}
}

// withCone adds the cone around axis covering pts to b.
func (b Bound) withCone(axis mgl64.Vec3, pts []mgl64.Vec3) Bound {
	if axis.Len() == 0 {
		return b
	}
	b.Axis = axis.Normalize()
	b.Spread, b.Reach = 0, 0
	for _, p := range pts {
		n := p.Len()
		if n == 0 {
			return Bound{Center: b.Center, Radius: b.Radius}
		}
		b.Reach = math.Max(b.Reach, n)
		cos := math.Max(-1, math.Min(1, b.Axis.Dot(p)/n))
		b.Spread = math.Max(b.Spread, math.Acos(cos))
	}
	// patch edges need not be great circles
	b.Spread *= 1.01
	return b
}
