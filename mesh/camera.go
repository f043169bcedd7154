package mesh

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Camera is the view a frame is culled against.
type Camera struct {
	Eye, Center, Up mgl64.Vec3
	FovY            float64 // radians
	Aspect          float64
	Near, Far       float64
	ViewportHeight  float64 // pixels
}

// LookAt builds a camera at eye looking at center with a 45 degree field of
// view. Clip planes are sized to the eye distance.
func LookAt(eye, center mgl64.Vec3, viewportHeight float64) Camera {
	up := mgl64.Vec3{0, 1, 0}
	if dir := center.Sub(eye); dir.Len() > 0 && math.Abs(dir.Normalize().Dot(up)) > 0.999 {
		up = mgl64.Vec3{0, 0, 1}
	}
	dist := eye.Sub(center).Len()
	return Camera{
		Eye:            eye,
		Center:         center,
		Up:             up,
		FovY:           mgl64.DegToRad(45),
		Aspect:         16.0 / 9.0,
		Near:           math.Max(dist*1e-4, 1),
		Far:            (eye.Len() + center.Len() + dist) * 2,
		ViewportHeight: viewportHeight,
	}
}

func (c Camera) View() mgl64.Mat4 {
	return mgl64.LookAtV(c.Eye, c.Center, c.Up)
}

func (c Camera) Projection() mgl64.Mat4 {
	return mgl64.Perspective(c.FovY, c.Aspect, c.Near, c.Far)
}

// PixelScale converts an angular size at unit distance into pixels.
func (c Camera) PixelScale() float64 {
	return c.ViewportHeight / (2 * math.Tan(c.FovY/2))
}

// view is the per-frame culling state derived from a Camera.
type view struct {
	eye        mgl64.Vec3
	planes     [6]mgl64.Vec4
	horizon    horizon
	pixelScale float64
}

func newView(c Camera, radius float64) view {
	v := view{
		eye:        c.Eye,
		horizon:    newHorizon(c.Eye, radius),
		pixelScale: c.PixelScale(),
	}

	// Gribb/Hartmann plane extraction from the clip matrix rows
	m := c.Projection().Mul4(c.View())
	r0, r1, r2, r3 := m.Row(0), m.Row(1), m.Row(2), m.Row(3)
	v.planes = [6]mgl64.Vec4{
		r3.Add(r0), r3.Sub(r0),
		r3.Add(r1), r3.Sub(r1),
		r3.Add(r2), r3.Sub(r2),
	}
	for i, p := range v.planes {
		if n := p.Vec3().Len(); n > 0 {
			v.planes[i] = p.Mul(1 / n)
		}
	}
	return v
}

// visible reports whether b intersects the frustum and is not hidden behind
// the planet.
func (v *view) visible(b Bound) bool {
	for _, p := range v.planes {
		if p.Vec3().Dot(b.Center)+p.W() < -b.Radius {
			return false
		}
	}
	return !v.horizon.occludes(b)
}

// screenSpaceError is the projected size of b in pixels.
func (v *view) screenSpaceError(b Bound) float64 {
	d := v.eye.Sub(b.Center).Len() - b.Radius
	d = math.Max(d, 0.01*b.Radius)
	if d <= 0 {
		return math.MaxFloat32
	}
	return b.Radius / d * v.pixelScale
}

// horizon tests occlusion by a sphere, working in a space where the sphere
// has unit radius.
type horizon struct {
	cv     mgl64.Vec3
	vhMag2 float64
	scale  float64
}

func newHorizon(eye mgl64.Vec3, radius float64) horizon {
	const minAltitude = 1e-5 // fraction of the radius

	scale := 1 / radius
	cv := eye.Mul(scale)
	if cv.Len() == 0 {
		cv = mgl64.Vec3{0, 1, 0}
	}
	if floor := cv.Normalize().Mul(1 + minAltitude); cv.Dot(cv) < floor.Dot(floor) {
		cv = floor
	}
	return horizon{cv: cv, vhMag2: cv.Dot(cv) - 1, scale: scale}
}

// occludes reports whether b lies entirely behind the horizon, either the
// top of its sphere pushed out radially by its radius or its whole cone.
func (h horizon) occludes(b Bound) bool {
	return h.occludesSphere(b) || h.occludesCone(b)
}

// occludesSphere never hides bounds enclosing the planet center.
func (h horizon) occludesSphere(b Bound) bool {
	if b.Center.Len() <= b.Radius {
		return false
	}
	target := b.Center.Add(b.Center.Normalize().Mul(b.Radius))
	vt := target.Mul(h.scale).Sub(h.cv)
	vtMag2 := vt.Dot(vt)
	if vtMag2 == 0 {
		return false
	}
	vtDotVc := -vt.Dot(h.cv)
	behind := vtDotVc > h.vhMag2
	inside := vtDotVc*vtDotVc/vtMag2 > h.vhMag2
	return behind && inside
}

// occludesCone hides a cone whose nearest edge is farther from the eye
// direction than a point at its reach can be seen.
func (h horizon) occludesCone(b Bound) bool {
	if b.Axis == (mgl64.Vec3{}) {
		return false
	}
	eyeDist := h.cv.Len()
	phi := math.Acos(math.Max(-1, math.Min(1, b.Axis.Dot(h.cv)/eyeDist)))
	limit := math.Acos(1 / eyeDist)
	if reach := b.Reach * h.scale; reach > 1 {
		limit += math.Acos(1 / reach)
	}
	return phi-b.Spread > limit
}
