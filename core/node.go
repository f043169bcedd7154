package core

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/go-gl/mathgl/mgl64"
)

// NodeIndex addresses a MeshNode inside a NodeArena.
type NodeIndex uint32

// NoNode marks an unset node reference.
const NoNode NodeIndex = math.MaxUint32

// MeshNode is a single mesh vertex
type MeshNode struct {
	Coord    mgl64.Vec3 // manifold-space coordinate
	Position mgl64.Vec3 // world position on the reference surface
	Normal   mgl32.Vec3
	TexCoord mgl32.Vec2
}
