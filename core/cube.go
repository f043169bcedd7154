package core

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl64"
)

// CubeFace identifies one face of the cube-sphere.
type CubeFace int

const (
	FacePosX CubeFace = iota
	FaceNegX
	FacePosY
	FaceNegY
	FacePosZ
	FaceNegZ
)

// CubeFaceCount is the number of faces on the cube-sphere
const CubeFaceCount = 6

// FaceAxes describes the orientation of a cube face. U x V == Normal so
// corners walked (-,-) (+,-) (+,+) (-,+) wind counter-clockwise seen from
// outside.
type FaceAxes struct {
	Normal mgl64.Vec3
	U      mgl64.Vec3
	V      mgl64.Vec3
}

var cubeFaceAxes = [CubeFaceCount]FaceAxes{
	FacePosX: {Normal: mgl64.Vec3{1, 0, 0}, U: mgl64.Vec3{0, 0, -1}, V: mgl64.Vec3{0, 1, 0}},
	FaceNegX: {Normal: mgl64.Vec3{-1, 0, 0}, U: mgl64.Vec3{0, 0, 1}, V: mgl64.Vec3{0, 1, 0}},
	FacePosY: {Normal: mgl64.Vec3{0, 1, 0}, U: mgl64.Vec3{1, 0, 0}, V: mgl64.Vec3{0, 0, -1}},
	FaceNegY: {Normal: mgl64.Vec3{0, -1, 0}, U: mgl64.Vec3{1, 0, 0}, V: mgl64.Vec3{0, 0, 1}},
	FacePosZ: {Normal: mgl64.Vec3{0, 0, 1}, U: mgl64.Vec3{1, 0, 0}, V: mgl64.Vec3{0, 1, 0}},
	FaceNegZ: {Normal: mgl64.Vec3{0, 0, -1}, U: mgl64.Vec3{-1, 0, 0}, V: mgl64.Vec3{0, 1, 0}},
}

// Axes returns the orientation of the face.
func (f CubeFace) Axes() FaceAxes {
	return cubeFaceAxes[f]
}

// Point returns the point on the cube surface for face coordinates s, t in [-1, 1].
func (f CubeFace) Point(s, t float64) mgl64.Vec3 {
	a := cubeFaceAxes[f]
	return a.Normal.Add(a.U.Mul(s)).Add(a.V.Mul(t))
}

func (f CubeFace) String() string {
	switch f {
	case FacePosX:
		return "+X"
	case FaceNegX:
		return "-X"
	case FacePosY:
		return "+Y"
	case FaceNegY:
		return "-Y"
	case FacePosZ:
		return "+Z"
	case FaceNegZ:
		return "-Z"
	}
	return fmt.Sprintf("face(%d)", int(f))
}
