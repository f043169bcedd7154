package mesh

import (
	"github.com/go-gl/mathgl/mgl64"

	"oceansurface/core"
	"oceansurface/tiles"
)

// GeodeticProjection tiles the globe in longitude/latitude: four columns of
// 90 degrees by two rows. Manifold coordinates are (lon, lat, 0) in degrees.
// The poles are boundary edges; every other edge is shared, including the
// antimeridian.
type GeodeticProjection struct {
	radius float64
}

// NewGeodeticProjection creates a lon/lat projection of the given radius.
func NewGeodeticProjection(radius float64) *GeodeticProjection {
	return &GeodeticProjection{radius: radius}
}

func (p *GeodeticProjection) Name() string    { return "geodetic" }
func (p *GeodeticProjection) Radius() float64 { return p.radius }

func (p *GeodeticProjection) Topology() Topology {
	const cols, rows = tiles.GeodeticColumns, tiles.GeodeticRows

	var topo Topology
	for r := 0; r <= rows; r++ {
		for c := 0; c < cols; c++ {
			topo.Coords = append(topo.Coords, geodeticCorner(c, r))
		}
	}
	index := func(c, r int) int { return r*cols + c%cols }

	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			topo.Faces = append(topo.Faces, Face{
				Corners: [4]int{index(c, r), index(c+1, r), index(c+1, r+1), index(c, r+1)},
				// the eastern column keeps lon 180 so midpoints stay inside the tile
				Coords: [4]mgl64.Vec3{
					geodeticCorner(c, r), geodeticCorner(c+1, r),
					geodeticCorner(c+1, r+1), geodeticCorner(c, r+1),
				},
				Key: tiles.TileKey{Profile: tiles.ProfileGeodetic, Face: r*cols + c},
			})
		}
	}
	return topo
}

func geodeticCorner(col, row int) mgl64.Vec3 {
	return mgl64.Vec3{-180 + 90*float64(col), -90 + 90*float64(row), 0}
}

func (p *GeodeticProjection) Midpoint(a, b mgl64.Vec3) mgl64.Vec3 {
	return a.Add(b).Mul(0.5)
}

func (p *GeodeticProjection) CreateNode(coord mgl64.Vec3) core.MeshNode {
	n := sphereNode(coord, core.LatLonToUnit(coord.Y(), coord.X()), p.radius)
	// keep the tile's own longitude so texture space does not fold at 180
	n.TexCoord[0] = float32((coord.X() + 180) / 360)
	return n
}

func (p *GeodeticProjection) InitialBound() Bound {
	return sphereBound(p.radius)
}
