package mesh

import (
	"github.com/go-gl/mathgl/mgl64"

	"oceansurface/core"
	"oceansurface/tiles"
)

// CubeProjection subdivides the six faces of a cube and pushes every node
// out onto the sphere. Manifold coordinates are points on the cube surface.
type CubeProjection struct {
	radius float64
}

// NewCubeProjection creates a cube-sphere projection of the given radius.
func NewCubeProjection(radius float64) *CubeProjection {
	return &CubeProjection{radius: radius}
}

func (p *CubeProjection) Name() string    { return "cube" }
func (p *CubeProjection) Radius() float64 { return p.radius }

// Topology returns the eight cube corners and six faces.
func (p *CubeProjection) Topology() Topology {
	var topo Topology
	// corner i has x, y, z signs from bits 0, 1, 2
	for i := 0; i < 8; i++ {
		topo.Coords = append(topo.Coords, mgl64.Vec3{sign(i & 1), sign(i & 2), sign(i & 4)})
	}
	for f := core.CubeFace(0); f < core.CubeFaceCount; f++ {
		face := Face{Key: tiles.TileKey{Profile: tiles.ProfileCube, Face: int(f)}}
		st := [4][2]float64{{-1, -1}, {1, -1}, {1, 1}, {-1, 1}}
		for i, c := range st {
			pt := f.Point(c[0], c[1])
			face.Coords[i] = pt
			face.Corners[i] = cubeCorner(pt)
		}
		topo.Faces = append(topo.Faces, face)
	}
	return topo
}

// Midpoint is linear on the cube surface.
func (p *CubeProjection) Midpoint(a, b mgl64.Vec3) mgl64.Vec3 {
	return a.Add(b).Mul(0.5)
}

func (p *CubeProjection) CreateNode(coord mgl64.Vec3) core.MeshNode {
	return sphereNode(coord, coord.Normalize(), p.radius)
}

func (p *CubeProjection) InitialBound() Bound {
	return sphereBound(p.radius)
}

func sign(bit int) float64 {
	if bit != 0 {
		return 1
	}
	return -1
}

func cubeCorner(pt mgl64.Vec3) int {
	i := 0
	if pt.X() > 0 {
		i |= 1
	}
	if pt.Y() > 0 {
		i |= 2
	}
	if pt.Z() > 0 {
		i |= 4
	}
	return i
}
