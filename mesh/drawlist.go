package mesh

import (
	"github.com/go-gl/mathgl/mgl32"

	"oceansurface/core"
	"oceansurface/tiles"
)

// Sink receives the draw list published at the end of every frame.
type Sink interface {
	SetDrawList(dl *DrawList)
}

// Vertex references a position in the draw list plus the tile-space UV it
// is sampled at.
type Vertex struct {
	Index uint32
	UV    mgl32.Vec2
}

// Primitive is the triangle list of one visible leaf.
type Primitive struct {
	Key      tiles.TileKey
	Vertices []Vertex

	// Textures come from the diamond whose state set the leaf renders with,
	// which may be an ancestor. UVTransform maps the leaf's tile UVs into
	// that ancestor's tile as (scaleU, scaleV, offsetU, offsetV).
	Textures    [MaxTextureUnits]*Texture
	Revision    uint64
	UVTransform mgl32.Vec4
}

// DrawList is an immutable snapshot of the visible surface. It owns its
// vertex data and may be read from any goroutine once published.
type DrawList struct {
	Frame      uint64
	SeaLevel   float64
	Positions  []mgl32.Vec3
	Normals    []mgl32.Vec3
	TexCoords  []mgl32.Vec2
	Primitives []Primitive
}

// Triangles counts the triangles across all primitives.
func (dl *DrawList) Triangles() int {
	n := 0
	for _, p := range dl.Primitives {
		n += len(p.Vertices) / 3
	}
	return n
}

var (
	cornerUV = [4]mgl32.Vec2{{0, 0}, {1, 0}, {1, 1}, {0, 1}}
	midUV    = [4]mgl32.Vec2{{0.5, 0}, {1, 0.5}, {0.5, 1}, {0, 0.5}}
)

type drawListBuilder struct {
	list  *DrawList
	nodes *core.NodeArena
	remap map[core.NodeIndex]uint32
}

func newDrawListBuilder(frame uint64, seaLevel float64, nodes *core.NodeArena) *drawListBuilder {
	return &drawListBuilder{
		list:  &DrawList{Frame: frame, SeaLevel: seaLevel},
		nodes: nodes,
		remap: make(map[core.NodeIndex]uint32),
	}
}

func (b *drawListBuilder) vertex(ni core.NodeIndex, uv mgl32.Vec2) Vertex {
	idx, ok := b.remap[ni]
	if !ok {
		n := b.nodes.At(ni)
		normal := n.Normal
		offset := normal.Mul(float32(b.list.SeaLevel))
		pos := mgl32.Vec3{float32(n.Position.X()), float32(n.Position.Y()), float32(n.Position.Z())}.Add(offset)

		idx = uint32(len(b.list.Positions))
		b.list.Positions = append(b.list.Positions, pos)
		b.list.Normals = append(b.list.Normals, normal)
		b.list.TexCoords = append(b.list.TexCoords, n.TexCoord)
		b.remap[ni] = idx
	}
	return Vertex{Index: idx, UV: uv}
}

// add triangulates leaf d, fanning in the midpoints its neighbours created so
// the surface has no T-junction cracks.
func (b *drawListBuilder) add(m *Manifold, d *Diamond) {
	var c, mid [4]*Vertex
	for i := 0; i < 4; i++ {
		v := b.vertex(d.corners[i], cornerUV[i])
		c[i] = &v
		if ni, ok := m.edges.midpoint(d.edge(i)); ok {
			mv := b.vertex(ni, midUV[i])
			mid[i] = &mv
		}
	}

	p := Primitive{Key: d.key, UVTransform: mgl32.Vec4{1, 1, 0, 0}}
	p.Vertices = appendTriangle(p.Vertices, c[0], c[1], c[2], mid[0], mid[1])
	p.Vertices = appendTriangle(p.Vertices, c[2], c[3], c[0], mid[2], mid[3])

	if owner := m.get(d.currentOwner); owner != nil {
		p.Textures = owner.state.textures
		p.Revision = d.syncedRevision
		p.UVTransform = uvTransform(d.key, owner.key)
	}
	b.list.Primitives = append(b.list.Primitives, p)
}

// appendTriangle emits triangle abc, split at the midpoints of ab and bc
// when present. Winding is preserved.
func appendTriangle(out []Vertex, a, b, c, mab, mbc *Vertex) []Vertex {
	switch {
	case mab == nil && mbc == nil:
		return append(out, *a, *b, *c)
	case mbc == nil:
		return append(out, *a, *mab, *c, *mab, *b, *c)
	case mab == nil:
		return append(out, *a, *b, *mbc, *a, *mbc, *c)
	}
	return append(out, *a, *mab, *c, *mab, *b, *mbc, *mab, *mbc, *c)
}

// uvTransform maps tile UVs of key into the tile of ancestor owner.
func uvTransform(key, owner tiles.TileKey) mgl32.Vec4 {
	dl := key.Level - owner.Level
	if dl <= 0 {
		return mgl32.Vec4{1, 1, 0, 0}
	}
	n := 1 << dl
	scale := 1 / float32(n)
	return mgl32.Vec4{scale, scale, float32(key.X%n) * scale, float32(key.Y%n) * scale}
}
