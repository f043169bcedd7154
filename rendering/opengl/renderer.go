//go:build opengl
// +build opengl

// Package opengl draws published ocean draw lists in a GLFW window.
package opengl

import (
	"fmt"
	"math"
	"runtime"
	"sync/atomic"
	"unsafe"

	"github.com/go-gl/gl/v4.3-core/gl"
	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/go-gl/mathgl/mgl64"

	"oceansurface/mesh"
)

// floats per expanded vertex: position, normal, tile UV, surface UV
const vertexStride = 3 + 3 + 2 + 2

// Renderer is a mesh.Sink that draws the latest draw list. SetDrawList may
// be called from any goroutine; everything else runs on the thread that
// called NewRenderer.
type Renderer struct {
	window *glfw.Window

	program  uint32
	vao, vbo uint32
	textures *textureCache

	latest   atomic.Pointer[mesh.DrawList]
	uploaded *mesh.DrawList
	ranges   [][2]int32 // first, count per primitive

	// Uniform locations
	viewProjLoc, uvTransformLoc int32
	hasTileLoc, hasSurfaceLoc   int32
	tileTexLoc, surfaceTexLoc   int32
	lightDirLoc                 int32

	// Render settings
	width, height int
	wireframe     bool
	radius        float64

	// Orbit camera
	MouseDown       bool
	lastMouseX      float64
	lastMouseY      float64
	cameraDistance  float64
	cameraRotationX float64
	cameraRotationY float64

	post func(func(*mesh.Options)) bool
}

// NewRenderer opens a window for a surface of the given radius. post, if
// not nil, receives option changes made from the keyboard.
func NewRenderer(width, height int, radius float64, post func(func(*mesh.Options)) bool) (*Renderer, error) {
	runtime.LockOSThread()

	// Initialize GLFW
	if err := glfw.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize GLFW: %v", err)
	}

	// Configure OpenGL context
	glfw.WindowHint(glfw.Resizable, glfw.True)
	glfw.WindowHint(glfw.ContextVersionMajor, 4)
	glfw.WindowHint(glfw.ContextVersionMinor, 3)
	glfw.WindowHint(glfw.OpenGLProfile, glfw.OpenGLCoreProfile)
	glfw.WindowHint(glfw.OpenGLForwardCompatible, glfw.True)

	window, err := glfw.CreateWindow(width, height, "Ocean Surface", nil, nil)
	if err != nil {
		glfw.Terminate()
		return nil, fmt.Errorf("failed to create window: %v", err)
	}
	window.MakeContextCurrent()
	glfw.SwapInterval(1)

	if err := gl.Init(); err != nil {
		window.Destroy()
		glfw.Terminate()
		return nil, fmt.Errorf("failed to initialize OpenGL: %v", err)
	}
	fmt.Println("OpenGL version:", gl.GoStr(gl.GetString(gl.VERSION)))

	r := &Renderer{
		window:         window,
		textures:       newTextureCache(),
		width:          width,
		height:         height,
		radius:         radius,
		cameraDistance: radius * 3,
		post:           post,
	}

	gl.Enable(gl.DEPTH_TEST)
	gl.Enable(gl.CULL_FACE)
	gl.ClearColor(0.05, 0.05, 0.1, 1.0)

	program, err := newTileProgram()
	if err != nil {
		r.Terminate()
		return nil, fmt.Errorf("failed to compile tile shaders: %v", err)
	}
	r.program = program
	r.lookupUniforms()
	r.createBuffers()

	window.SetSizeCallback(func(w *glfw.Window, width, height int) {
		r.onResize(width, height)
	})
	window.SetKeyCallback(func(w *glfw.Window, key glfw.Key, scancode int, action glfw.Action, mods glfw.ModifierKey) {
		r.onKey(key, action)
	})
	window.SetScrollCallback(func(w *glfw.Window, xoff, yoff float64) {
		r.onScroll(yoff)
	})
	window.SetMouseButtonCallback(func(w *glfw.Window, button glfw.MouseButton, action glfw.Action, mods glfw.ModifierKey) {
		r.onMouseButton(button, action)
	})
	window.SetCursorPosCallback(func(w *glfw.Window, xpos, ypos float64) {
		r.onMouseMove(xpos, ypos)
	})

	return r, nil
}

func (r *Renderer) lookupUniforms() {
	loc := func(name string) int32 {
		return gl.GetUniformLocation(r.program, gl.Str(name+"\x00"))
	}
	r.viewProjLoc = loc("viewProj")
	r.uvTransformLoc = loc("uvTransform")
	r.hasTileLoc = loc("hasTile")
	r.hasSurfaceLoc = loc("hasSurface")
	r.tileTexLoc = loc("tileTexture")
	r.surfaceTexLoc = loc("surfaceTexture")
	r.lightDirLoc = loc("lightDir")
}

func (r *Renderer) createBuffers() {
	gl.GenVertexArrays(1, &r.vao)
	gl.GenBuffers(1, &r.vbo)
	gl.BindVertexArray(r.vao)
	gl.BindBuffer(gl.ARRAY_BUFFER, r.vbo)

	stride := int32(vertexStride * 4)
	offset := 0
	for i, size := range []int32{3, 3, 2, 2} {
		gl.EnableVertexAttribArray(uint32(i))
		gl.VertexAttribPointerWithOffset(uint32(i), size, gl.FLOAT, false, stride, uintptr(offset))
		offset += int(size) * 4
	}
	gl.BindVertexArray(0)
}

// SetDrawList implements mesh.Sink.
func (r *Renderer) SetDrawList(dl *mesh.DrawList) {
	r.latest.Store(dl)
}

// upload expands the latest draw list into per-primitive vertices. Tile UVs
// differ between primitives sharing a position, so vertices are not shared.
func (r *Renderer) upload() {
	dl := r.latest.Load()
	if dl == nil || dl == r.uploaded {
		return
	}
	r.uploaded = dl

	data := make([]float32, 0, dl.Triangles()*3*vertexStride)
	r.ranges = r.ranges[:0]
	for _, p := range dl.Primitives {
		first := int32(len(data) / vertexStride)
		for _, v := range p.Vertices {
			pos, n, st := dl.Positions[v.Index], dl.Normals[v.Index], dl.TexCoords[v.Index]
			data = append(data, pos[0], pos[1], pos[2], n[0], n[1], n[2], v.UV[0], v.UV[1], st[0], st[1])
		}
		r.ranges = append(r.ranges, [2]int32{first, int32(len(p.Vertices))})
	}

	gl.BindBuffer(gl.ARRAY_BUFFER, r.vbo)
	if len(data) > 0 {
		gl.BufferData(gl.ARRAY_BUFFER, len(data)*4, unsafe.Pointer(&data[0]), gl.DYNAMIC_DRAW)
	}
}

// Camera returns the orbit camera as a culling camera.
func (r *Renderer) Camera() mesh.Camera {
	cam := mesh.LookAt(r.eye(), mgl64.Vec3{}, float64(r.height))
	if r.height > 0 {
		cam.Aspect = float64(r.width) / float64(r.height)
	}
	return cam
}

func (r *Renderer) eye() mgl64.Vec3 {
	return mgl64.Vec3{
		r.cameraDistance * math.Cos(r.cameraRotationY) * math.Cos(r.cameraRotationX),
		r.cameraDistance * math.Sin(r.cameraRotationY),
		r.cameraDistance * math.Cos(r.cameraRotationY) * math.Sin(r.cameraRotationX),
	}
}

// Render draws the latest draw list seen from cam.
func (r *Renderer) Render(cam mesh.Camera) {
	r.upload()

	gl.Clear(gl.COLOR_BUFFER_BIT | gl.DEPTH_BUFFER_BIT)
	if r.wireframe {
		gl.PolygonMode(gl.FRONT_AND_BACK, gl.LINE)
	} else {
		gl.PolygonMode(gl.FRONT_AND_BACK, gl.FILL)
	}

	gl.UseProgram(r.program)
	viewProj := toMat4(cam.Projection().Mul4(cam.View()))
	gl.UniformMatrix4fv(r.viewProjLoc, 1, false, &viewProj[0])
	light := mgl32.Vec3{1, 1, 1}.Normalize()
	gl.Uniform3fv(r.lightDirLoc, 1, &light[0])
	gl.Uniform1i(r.tileTexLoc, mesh.UnitTile)
	gl.Uniform1i(r.surfaceTexLoc, mesh.UnitSurface)

	if dl := r.uploaded; dl != nil {
		gl.BindVertexArray(r.vao)
		for i, p := range dl.Primitives {
			r.bindTexture(mesh.UnitTile, r.hasTileLoc, p.Textures[mesh.UnitTile])
			r.bindTexture(mesh.UnitSurface, r.hasSurfaceLoc, p.Textures[mesh.UnitSurface])
			gl.Uniform4fv(r.uvTransformLoc, 1, &p.UVTransform[0])
			gl.DrawArrays(gl.TRIANGLES, r.ranges[i][0], r.ranges[i][1])
		}
		gl.BindVertexArray(0)
		r.textures.sweep()
	}

	if err := gl.GetError(); err != gl.NO_ERROR {
		fmt.Printf("OpenGL error after draw: 0x%x\n", err)
	}
	r.window.SwapBuffers()
}

func (r *Renderer) bindTexture(unit uint32, hasLoc int32, t *mesh.Texture) {
	if t == nil || t.Image == nil {
		gl.Uniform1i(hasLoc, 0)
		return
	}
	r.textures.bind(unit, t)
	gl.Uniform1i(hasLoc, 1)
}

func toMat4(m mgl64.Mat4) mgl32.Mat4 {
	var out mgl32.Mat4
	for i, v := range m {
		out[i] = float32(v)
	}
	return out
}

// Event handlers
func (r *Renderer) onResize(width, height int) {
	r.width = width
	r.height = height
	gl.Viewport(0, 0, int32(width), int32(height))
}

func (r *Renderer) onKey(key glfw.Key, action glfw.Action) {
	if action != glfw.Press && action != glfw.Repeat {
		return
	}

	switch key {
	case glfw.KeyEscape:
		r.window.SetShouldClose(true)
	case glfw.KeyW:
		r.wireframe = !r.wireframe
	case glfw.KeyPageUp:
		r.postChange(func(o *mesh.Options) { o.SeaLevel += 10 })
	case glfw.KeyPageDown:
		r.postChange(func(o *mesh.Options) { o.SeaLevel -= 10 })
	case glfw.KeyV:
		r.postChange(func(o *mesh.Options) { o.Verbose = !o.Verbose })
	}
}

func (r *Renderer) postChange(fn func(*mesh.Options)) {
	if r.post != nil && !r.post(fn) {
		fmt.Println("Option change dropped, manager busy")
	}
}

func (r *Renderer) onScroll(yoff float64) {
	// Zoom towards the surface, never inside it
	dist := r.cameraDistance * (1.0 - yoff*0.1)
	r.cameraDistance = math.Max(dist, r.radius*1.0001)
}

func (r *Renderer) onMouseButton(button glfw.MouseButton, action glfw.Action) {
	if button != glfw.MouseButtonLeft {
		return
	}
	if action == glfw.Press {
		r.MouseDown = true
		r.lastMouseX, r.lastMouseY = r.window.GetCursorPos()
	} else if action == glfw.Release {
		r.MouseDown = false
	}
}

func (r *Renderer) onMouseMove(xpos, ypos float64) {
	if !r.MouseDown {
		return
	}
	dx := xpos - r.lastMouseX
	dy := ypos - r.lastMouseY

	// Slow down near the surface so a drag covers a similar screen distance
	altitude := (r.cameraDistance - r.radius) / r.radius
	sensitivity := 0.008 * math.Min(altitude, 1)

	r.cameraRotationX += dx * sensitivity
	r.cameraRotationY += dy * sensitivity

	// Clamp vertical rotation
	r.cameraRotationY = math.Max(-1.5, math.Min(1.5, r.cameraRotationY))

	r.lastMouseX = xpos
	r.lastMouseY = ypos
}

// ShouldClose returns true if the window should close
func (r *Renderer) ShouldClose() bool {
	return r.window.ShouldClose()
}

// PollEvents processes window events
func (r *Renderer) PollEvents() {
	glfw.PollEvents()
}

// Terminate cleans up OpenGL resources
func (r *Renderer) Terminate() {
	r.textures.release()
	if r.program != 0 {
		gl.DeleteProgram(r.program)
	}
	if r.vao != 0 {
		gl.DeleteVertexArrays(1, &r.vao)
	}
	if r.vbo != 0 {
		gl.DeleteBuffers(1, &r.vbo)
	}
	r.window.Destroy()
	glfw.Terminate()
}
