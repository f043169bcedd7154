// Package tiles describes tiled mask/elevation data sources and the keys
// used to address them.
package tiles

import (
	"fmt"
	"math"

	"oceansurface/core"
)

// Profile names the tiling scheme a TileKey belongs to
type Profile int

const (
	// ProfileCube tiles each of the six cube-sphere faces as a quadtree.
	ProfileCube Profile = iota
	// ProfileGeodetic tiles the globe as 4x2 root quads of 90° each.
	ProfileGeodetic
)

func (p Profile) String() string {
	switch p {
	case ProfileCube:
		return "cube"
	case ProfileGeodetic:
		return "geodetic"
	}
	return fmt.Sprintf("profile(%d)", int(p))
}

// GeodeticColumns and GeodeticRows give the root layout of ProfileGeodetic.
const (
	GeodeticColumns = 4
	GeodeticRows    = 2
	geodeticSpan    = 90.0
)

// TileKey identifies a rectangular tile at a subdivision level. X grows
// east (or along the face U axis), Y grows north (or along V).
type TileKey struct {
	Profile Profile
	Face    int
	Level   int
	X, Y    int
}

// Child returns the key of quadrant q: 0=(x,y) 1=(x+1,y) 2=(x+1,y+1) 3=(x,y+1)
// at the next level.
func (k TileKey) Child(q int) TileKey {
	c := TileKey{Profile: k.Profile, Face: k.Face, Level: k.Level + 1, X: k.X * 2, Y: k.Y * 2}
	switch q {
	case 1:
		c.X++
	case 2:
		c.X++
		c.Y++
	case 3:
		c.Y++
	}
	return c
}

// Parent returns the key one level up. The root returns itself.
func (k TileKey) Parent() TileKey {
	if k.Level == 0 {
		return k
	}
	return TileKey{Profile: k.Profile, Face: k.Face, Level: k.Level - 1, X: k.X / 2, Y: k.Y / 2}
}

// Tiles returns the number of tiles per side of a face at this level.
func (k TileKey) Tiles() int {
	return 1 << k.Level
}

func (k TileKey) String() string {
	return fmt.Sprintf("%s/%d/%d/%d/%d", k.Profile, k.Face, k.Level, k.X, k.Y)
}

// LatLon returns latitude/longitude in degrees of the tile-space point (u, v),
// both in [0, 1].
func (k TileKey) LatLon(u, v float64) (lat, lon float64) {
	n := float64(k.Tiles())
	switch k.Profile {
	case ProfileGeodetic:
		col := k.Face % GeodeticColumns
		row := k.Face / GeodeticColumns
		size := geodeticSpan / n
		lon = -180 + geodeticSpan*float64(col) + (float64(k.X)+u)*size
		lat = -90 + geodeticSpan*float64(row) + (float64(k.Y)+v)*size
		return lat, lon
	default:
		s := -1 + 2*(float64(k.X)+u)/n
		t := -1 + 2*(float64(k.Y)+v)/n
		p := core.CubeFace(k.Face).Point(s, t)
		return core.UnitToLatLon(p.Normalize())
	}
}

// Extent returns the geographic bounding box of the tile.
func (k TileKey) Extent() Extent {
	if k.Profile == ProfileGeodetic {
		south, west := k.LatLon(0, 0)
		north, east := k.LatLon(1, 1)
		return Extent{West: west, South: south, East: east, North: north}
	}

	const samples = 5
	e := Extent{West: math.Inf(1), South: math.Inf(1), East: math.Inf(-1), North: math.Inf(-1)}
	for i := 0; i < samples; i++ {
		for j := 0; j < samples; j++ {
			lat, lon := k.LatLon(float64(i)/(samples-1), float64(j)/(samples-1))
			e.West = math.Min(e.West, lon)
			e.East = math.Max(e.East, lon)
			e.South = math.Min(e.South, lat)
			e.North = math.Max(e.North, lat)
		}
	}

	// A polar face tile containing the pole spans every longitude.
	face := core.CubeFace(k.Face)
	if face == core.FacePosY || face == core.FaceNegY {
		n := float64(k.Tiles())
		s0 := -1 + 2*float64(k.X)/n
		t0 := -1 + 2*float64(k.Y)/n
		if s0 <= 0 && s0+2/n >= 0 && t0 <= 0 && t0+2/n >= 0 {
			if face == core.FacePosY {
				e.North = 90
			} else {
				e.South = -90
			}
			e.West, e.East = -180, 180
		}
	}
	if e.East-e.West > 180 {
		e.West, e.East = -180, 180
	}
	return e
}

// Extent is a geographic bounding box in degrees
type Extent struct {
	West, South, East, North float64
}

// Contains reports whether the point lies inside the extent, edges included.
func (e Extent) Contains(lat, lon float64) bool {
	return lat >= e.South && lat <= e.North && lon >= e.West && lon <= e.East
}

// Intersects reports whether two extents overlap with positive area.
func (e Extent) Intersects(o Extent) bool {
	return e.West < o.East && o.West < e.East && e.South < o.North && o.South < e.North
}

// Normalize maps a point to unit coordinates inside the extent.
func (e Extent) Normalize(lat, lon float64) (u, v float64) {
	u = (lon - e.West) / (e.East - e.West)
	v = (lat - e.South) / (e.North - e.South)
	return u, v
}
